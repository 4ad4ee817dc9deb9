package application

import (
	"context"
	"strings"
	"time"

	"github.com/wms-platform/lot-ledger/internal/domain"
	"github.com/wms-platform/lot-ledger/pkg/api"
	"github.com/wms-platform/lot-ledger/pkg/logging"
)

// DefaultExpiringDays is the look-ahead window of the expiring-soon report
const DefaultExpiringDays = 10

// ReportService runs the paginated read-only reports
type ReportService struct {
	reports domain.ReportRepository
	logger  *logging.Logger
	now     func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(store domain.Store, logger *logging.Logger) *ReportService {
	return &ReportService{
		reports: store.Reports(),
		logger:  logger.WithComponent("reports"),
		now:     time.Now,
	}
}

func pagination(p api.PageRequest) domain.Pagination {
	p = p.Normalize()
	return domain.Pagination{Page: p.Page, PageSize: p.PageSize}
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// CurrentStock lists active items with their on-hand quantity and value
func (s *ReportService) CurrentStock(ctx context.Context, q CurrentStockQuery) (*api.PageResponse[CurrentStockRowDTO], error) {
	if q.MinQty != nil && q.MaxQty != nil && *q.MinQty > *q.MaxQty {
		return nil, toAppError(domain.NewValidationError("minQuantity", "cannot be greater than maxQuantity"))
	}

	page := pagination(q.Page)
	filter := domain.CurrentStockFilter{
		ItemID:   trimmed(q.ItemID),
		ItemName: trimmed(q.ItemName),
		MinQty:   q.MinQty,
		MaxQty:   q.MaxQty,
	}

	items, total, err := s.reports.CurrentStock(ctx, q.OwnerID, filter, page)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to build current stock report", "error", err)
		return nil, toAppError(err)
	}

	rows := make([]CurrentStockRowDTO, 0, len(items))
	for _, item := range items {
		rows = append(rows, ToCurrentStockRow(item))
	}
	resp := api.NewPageResponse(rows, page.Page, page.PageSize, total)
	return &resp, nil
}

// MovementHistory lists active movements created within the date range, newest first
func (s *ReportService) MovementHistory(ctx context.Context, q MovementHistoryQuery) (*api.PageResponse[MovementHistoryRowDTO], error) {
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		return nil, toAppError(domain.NewValidationError("startDate", "startDate and endDate are required"))
	}
	if q.StartDate.After(q.EndDate) {
		return nil, toAppError(domain.NewValidationError("startDate", "cannot be after endDate"))
	}

	filter := domain.MovementHistoryFilter{
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		ItemID:    trimmed(q.ItemID),
		BatchCode: trimmed(q.BatchCode),
	}
	if t := trimmed(q.Type); t != nil {
		movementType, err := domain.ParseMovementType(*t)
		if err != nil {
			return nil, toAppError(err)
		}
		filter.Type = &movementType
	}

	page := pagination(q.Page)
	movements, total, err := s.reports.MovementHistory(ctx, q.OwnerID, filter, page)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to build movement history report", "error", err)
		return nil, toAppError(err)
	}

	rows := make([]MovementHistoryRowDTO, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, ToMovementHistoryRow(m))
	}
	resp := api.NewPageResponse(rows, page.Page, page.PageSize, total)
	return &resp, nil
}

// ExpiringStock lists lots by expiration date; lots without one come last
func (s *ReportService) ExpiringStock(ctx context.Context, q ExpiringStockQuery) (*api.PageResponse[ExpiringStockRowDTO], error) {
	status := domain.ExpiringStatusSoon
	if v := strings.TrimSpace(q.Status); v != "" {
		status = domain.ExpiringStatus(strings.ToLower(v))
		if !status.IsValid() {
			return nil, toAppError(domain.NewValidationError("status", "must be one of expired, expiring-soon, all"))
		}
	}

	days := DefaultExpiringDays
	if q.DaysUntilExpiration != nil {
		if *q.DaysUntilExpiration < 0 {
			return nil, toAppError(domain.NewValidationError("daysUntilExpiration", "cannot be negative"))
		}
		days = *q.DaysUntilExpiration
	}

	now := s.now()
	filter := domain.ExpiringStockFilter{
		Status:              status,
		DaysUntilExpiration: days,
		ItemID:              trimmed(q.ItemID),
		Now:                 now,
	}

	page := pagination(q.Page)
	lots, total, err := s.reports.ExpiringStock(ctx, q.OwnerID, filter, page)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to build expiring stock report", "error", err)
		return nil, toAppError(err)
	}

	rows := make([]ExpiringStockRowDTO, 0, len(lots))
	for _, lot := range lots {
		rows = append(rows, ToExpiringStockRow(lot, now))
	}
	resp := api.NewPageResponse(rows, page.Page, page.PageSize, total)
	return &resp, nil
}
