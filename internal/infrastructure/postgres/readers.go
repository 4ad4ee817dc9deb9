package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wms-platform/lot-ledger/internal/domain"
)

type itemReader struct {
	s *Store
}

func (r itemReader) FindByID(ctx context.Context, ownerID, itemID string) (*domain.InventoryItem, error) {
	return findItem(ctx, r.s.pool, `id = $1 AND owner_id = $2 AND status = 'ACTIVE'`, itemID, ownerID)
}

func (r itemReader) FindAll(ctx context.Context, ownerID string) ([]*domain.InventoryItem, error) {
	rows, err := r.s.pool.Query(ctx, `
		SELECT `+itemColumns+` FROM inventory_items
		WHERE owner_id = $1 AND status = 'ACTIVE'
		ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, storeError("find items", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, storeError("find items", err)
	}
	return items, nil
}

type movementReader struct {
	s *Store
}

func (r movementReader) FindByID(ctx context.Context, ownerID, movementID string) (*domain.Movement, error) {
	return findMovement(ctx, r.s.pool, domain.ErrMovementNotFound,
		`m.id = $1 AND m.owner_id = $2 AND m.status = 'ACTIVE'`, movementID, ownerID)
}

func (r movementReader) FindAll(ctx context.Context, ownerID string) ([]*domain.Movement, error) {
	return queryMovements(ctx, r.s.pool, "find movements", `
		SELECT `+movementColumns+` FROM movements m
		WHERE m.owner_id = $1 AND m.status = 'ACTIVE'
		ORDER BY m.created_at DESC, m.id DESC`, ownerID)
}

func (r movementReader) FindEntries(ctx context.Context, ownerID string, withExpirationOnly bool) ([]*domain.Movement, error) {
	query := `
		SELECT ` + movementColumns + ` FROM movements m
		WHERE m.owner_id = $1 AND m.type = 'ENTRY' AND m.status = 'ACTIVE' AND m.remaining_quantity > 0`
	if withExpirationOnly {
		query += ` AND m.expiration_date IS NOT NULL`
	}
	return queryMovements(ctx, r.s.pool, "find entries", query+` ORDER BY m.created_at, m.id COLLATE "C"`, ownerID)
}

// where collects optional predicates and their positional arguments
type where struct {
	conds []string
	args  []any
}

// add appends a predicate. Each %d in cond is replaced by the placeholder of arg.
func (w *where) add(cond string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, strings.ReplaceAll(cond, "%d", fmt.Sprint(len(w.args))))
}

func (w *where) addRaw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) String() string {
	return strings.Join(w.conds, " AND ")
}

// page returns the LIMIT/OFFSET clause with its arguments appended
func (w *where) page(p domain.Pagination) (string, []any) {
	args := append([]any{}, w.args...)
	clause := ""
	if p.Limit() > 0 {
		args = append(args, p.Limit())
		clause += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	args = append(args, p.Skip())
	clause += fmt.Sprintf(" OFFSET $%d", len(args))
	return clause, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds an ILIKE pattern for a literal substring
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

type reports struct {
	s *Store
}

func (r reports) count(ctx context.Context, table, op string, w *where) (int64, error) {
	var total int64
	start := time.Now()
	err := r.s.pool.QueryRow(ctx, `SELECT count(*) FROM `+table+` WHERE `+w.String(), w.args...).Scan(&total)
	r.s.observe(table, op, start, err)
	if err != nil {
		return 0, storeError(op, err)
	}
	return total, nil
}

func (r reports) CurrentStock(ctx context.Context, ownerID string, f domain.CurrentStockFilter, p domain.Pagination) ([]*domain.InventoryItem, int64, error) {
	w := &where{}
	w.add("owner_id = $%d", ownerID)
	w.addRaw("status = 'ACTIVE'")
	if f.ItemID != nil {
		w.add("id = $%d", *f.ItemID)
	}
	if f.ItemName != nil {
		w.add("name ILIKE $%d", containsPattern(*f.ItemName))
	}
	if f.MinQty != nil {
		w.add("on_hand_qty >= $%d", *f.MinQty)
	}
	if f.MaxQty != nil {
		w.add("on_hand_qty <= $%d", *f.MaxQty)
	}

	total, err := r.count(ctx, "inventory_items", "count current stock", w)
	if err != nil {
		return nil, 0, err
	}

	clause, args := w.page(p)
	start := time.Now()
	rows, err := r.s.pool.Query(ctx, `SELECT `+itemColumns+` FROM inventory_items WHERE `+w.String()+` ORDER BY name, id`+clause, args...)
	r.s.observe("inventory_items", "current stock", start, err)
	if err != nil {
		return nil, 0, storeError("current stock", err)
	}
	items, err := collectItems(rows)
	if err != nil {
		return nil, 0, storeError("current stock", err)
	}
	return items, total, nil
}

func (r reports) MovementHistory(ctx context.Context, ownerID string, f domain.MovementHistoryFilter, p domain.Pagination) ([]domain.MovementRow, int64, error) {
	w := &where{}
	w.add("m.owner_id = $%d", ownerID)
	w.addRaw("m.status = 'ACTIVE'")
	w.add("m.created_at >= $%d", f.StartDate.UTC())
	w.add("m.created_at <= $%d", f.EndDate.UTC())
	if f.ItemID != nil {
		w.add("m.item_id = $%d", *f.ItemID)
	}
	if f.Type != nil {
		w.add("m.type = $%d", string(*f.Type))
	}
	if f.BatchCode != nil {
		w.add("m.batch_code ILIKE $%d", containsPattern(*f.BatchCode))
	}

	total, err := r.count(ctx, "movements m", "count movement history", w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.rows(ctx, "movement history", w, "m.created_at DESC, m.id DESC", p)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r reports) ExpiringStock(ctx context.Context, ownerID string, f domain.ExpiringStockFilter, p domain.Pagination) ([]domain.MovementRow, int64, error) {
	w := &where{}
	w.add("m.owner_id = $%d", ownerID)
	w.addRaw("m.type = 'ENTRY' AND m.status = 'ACTIVE'")
	if f.ItemID != nil {
		w.add("m.item_id = $%d", *f.ItemID)
	}
	from, to, requireStock := f.ExpirationWindow()
	if requireStock {
		w.addRaw("m.remaining_quantity > 0")
	}
	if from != nil {
		w.add("m.expiration_date >= $%d", from.UTC())
	}
	if to != nil {
		w.add("m.expiration_date <= $%d", to.UTC())
	}

	total, err := r.count(ctx, "movements m", "count expiring stock", w)
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.rows(ctx, "expiring stock", w, "m.expiration_date ASC NULLS LAST, m.id", p)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// rows pages the matching movements joined with their item names
func (r reports) rows(ctx context.Context, op string, w *where, orderBy string, p domain.Pagination) ([]domain.MovementRow, error) {
	clause, args := w.page(p)
	query := `
		SELECT ` + movementColumns + `, COALESCE(i.name, '')
		FROM movements m
		LEFT JOIN inventory_items i ON i.id = m.item_id AND i.owner_id = m.owner_id
		WHERE ` + w.String() + `
		ORDER BY ` + orderBy + clause

	start := time.Now()
	pgRows, err := r.s.pool.Query(ctx, query, args...)
	r.s.observe("movements", op, start, err)
	if err != nil {
		return nil, storeError(op, err)
	}
	out, err := collectRows(pgRows)
	if err != nil {
		return nil, storeError(op, err)
	}
	return out, nil
}
