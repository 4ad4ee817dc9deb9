package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType is the closed set of ledger events
type MovementType string

const (
	// MovementEntry creates a lot
	MovementEntry MovementType = "ENTRY"
	// MovementSale consumes lots in FIFO order
	MovementSale MovementType = "SALE"
	// MovementExit removes stock from one named lot
	MovementExit MovementType = "EXIT"
	// MovementExpiration writes off one named lot
	MovementExpiration MovementType = "EXPIRATION"
)

// MaxQuantity bounds a single movement
const MaxQuantity int64 = 1_000_000_000_000

// MovementTypes lists every movement type in declaration order
var MovementTypes = []MovementType{MovementEntry, MovementSale, MovementExit, MovementExpiration}

// IsValid checks if the movement type is one of the known types
func (t MovementType) IsValid() bool {
	switch t {
	case MovementEntry, MovementSale, MovementExit, MovementExpiration:
		return true
	default:
		return false
	}
}

// String returns the string representation of the movement type
func (t MovementType) String() string {
	return string(t)
}

// RequiresBatch returns true if the caller must name a batch code
func (t MovementType) RequiresBatch() bool {
	switch t {
	case MovementEntry, MovementExit, MovementExpiration:
		return true
	default:
		return false
	}
}

// ParseMovementType parses a movement type, case-insensitively
func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", NewValidationError("type", "must be one of ENTRY, SALE, EXIT, EXPIRATION")
	}
	return t, nil
}

// Status is the soft-delete state shared by items and movements
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Movement is an immutable ledger event. ENTRY movements double as lots:
// their RemainingQuantity is the unconsumed balance of the batch.
type Movement struct {
	ID                string
	OwnerID           string
	ItemID            string
	Type              MovementType
	Quantity          int64
	UnitCost          decimal.Decimal
	BatchCode         string
	RemainingQuantity int64
	Description       string
	ExpirationDate    *time.Time
	Status            Status
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// NewID returns a time-ordered identifier, so ID order follows insertion order
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewEntryMovement creates a lot with its full quantity remaining
func NewEntryMovement(ownerID, itemID, batchCode string, quantity int64, unitCost decimal.Decimal, description string, expirationDate *time.Time, now time.Time) (*Movement, error) {
	if err := validateMovementInput(itemID, batchCode, quantity, unitCost, true); err != nil {
		return nil, err
	}

	return &Movement{
		ID:                NewID(),
		OwnerID:           ownerID,
		ItemID:            itemID,
		Type:              MovementEntry,
		Quantity:          quantity,
		UnitCost:          RoundCost(unitCost),
		BatchCode:         strings.TrimSpace(batchCode),
		RemainingQuantity: quantity,
		Description:       description,
		ExpirationDate:    expirationDate,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// NewConsumptionMovement creates a SALE, EXIT or EXPIRATION record. These never act as lots.
func NewConsumptionMovement(movementType MovementType, ownerID, itemID, batchCode string, quantity int64, unitCost decimal.Decimal, description string, now time.Time) (*Movement, error) {
	if movementType == MovementEntry || !movementType.IsValid() {
		return nil, NewValidationError("type", "consumption movement type required")
	}
	if err := validateMovementInput(itemID, batchCode, quantity, unitCost, false); err != nil {
		return nil, err
	}

	return &Movement{
		ID:                NewID(),
		OwnerID:           ownerID,
		ItemID:            itemID,
		Type:              movementType,
		Quantity:          quantity,
		UnitCost:          RoundCost(unitCost),
		BatchCode:         batchCode,
		RemainingQuantity: 0,
		Description:       description,
		Status:            StatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

func validateMovementInput(itemID, batchCode string, quantity int64, unitCost decimal.Decimal, requireBatch bool) error {
	if strings.TrimSpace(itemID) == "" {
		return NewValidationError("itemId", "is required")
	}
	if quantity <= 0 {
		return NewValidationError("quantity", "must be at least 1")
	}
	if quantity > MaxQuantity {
		return NewValidationError("quantity", fmt.Sprintf("must not exceed %d", MaxQuantity))
	}
	if unitCost.IsNegative() {
		return NewValidationError("unitCost", "cannot be negative")
	}
	if requireBatch && strings.TrimSpace(batchCode) == "" {
		return NewValidationError("batchCode", "is required")
	}
	return nil
}

// IsActive returns true unless the movement was soft-deleted
func (m *Movement) IsActive() bool {
	return m.Status == StatusActive
}

// IsLot returns true for active entries, the only consumption sources
func (m *Movement) IsLot() bool {
	return m.Type == MovementEntry && m.IsActive()
}

// HasStock returns true if the lot still has an unconsumed balance
func (m *Movement) HasStock() bool {
	return m.IsLot() && m.RemainingQuantity > 0
}

// Take consumes up to qty units from the lot and returns the amount taken
func (m *Movement) Take(qty int64) int64 {
	if !m.HasStock() || qty <= 0 {
		return 0
	}
	taken := min(qty, m.RemainingQuantity)
	m.RemainingQuantity -= taken
	return taken
}

// UpdateDetails edits the attributes that do not affect the ledger
func (m *Movement) UpdateDetails(description *string, expirationDate *time.Time, now time.Time) {
	if description != nil {
		m.Description = *description
	}
	if expirationDate != nil {
		m.ExpirationDate = expirationDate
	}
	m.UpdatedAt = now
}

// Deactivate soft-deletes the movement. Lots it consumed are not re-credited.
func (m *Movement) Deactivate(now time.Time) {
	m.Status = StatusInactive
	m.UpdatedAt = now
}

// LotConsumption records how many units a movement took from one lot
type LotConsumption struct {
	MovementID string `json:"movementId"`
	BatchCode  string `json:"batchCode"`
	Quantity   int64  `json:"quantity"`
}

// BatchSummary renders the lots used by a consumption: the single batch code,
// or all codes joined with commas in order of first use.
func BatchSummary(used []LotConsumption) string {
	codes := make([]string, 0, len(used))
	seen := make(map[string]struct{}, len(used))
	for _, u := range used {
		if _, ok := seen[u.BatchCode]; ok {
			continue
		}
		seen[u.BatchCode] = struct{}{}
		codes = append(codes, u.BatchCode)
	}
	return strings.Join(codes, ",")
}
