package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType enumerates stock movement directions.
type MovementType string

const (
	MovementIn         MovementType = "IN"
	MovementOut        MovementType = "OUT"
	MovementAdjustment MovementType = "ADJUSTMENT"
)

// Product is the minimal item master the valuation engine needs. Tracked
// products carry stock levels; untracked ones are expensed straight through.
type Product struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	SKU       string
	Name      string
	IsTracked bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StockLevel holds on-hand quantity and weighted average cost per product
// per warehouse. Rows are created lazily on the first receipt.
type StockLevel struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	AvgCost     decimal.Decimal
	UpdatedAt   time.Time
}

// StockMovement is the append-only trail behind every level change. Quantity
// is always the non-negative magnitude; Type carries the direction.
type StockMovement struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Type        MovementType
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	RefType     string
	RefID       *uuid.UUID
	ActorID     uuid.UUID
	OccurredAt  time.Time
}

// ReceiptInput describes an inbound movement, typically from a posted bill.
type ReceiptInput struct {
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	Quantity    decimal.Decimal
	UnitCost    decimal.Decimal
	RefType     string
	RefID       *uuid.UUID
}

// AdjustmentInput sets the absolute on-hand quantity. UnitCost, when set,
// overwrites the average cost; otherwise the existing average is kept.
type AdjustmentInput struct {
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	ProductID   uuid.UUID
	WarehouseID uuid.UUID
	NewQuantity decimal.Decimal
	UnitCost    *decimal.Decimal
	Reason      string
}

// MovementFilter narrows movement history queries.
type MovementFilter struct {
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	Limit       int
}

var (
	// ErrProductNotFound indicates a missing product row.
	ErrProductNotFound = errors.New("inventory: product not found")
	// ErrLevelNotFound indicates no stock level row exists yet.
	ErrLevelNotFound = errors.New("inventory: stock level not found")
	// ErrNotTracked indicates a stock operation against an untracked product.
	ErrNotTracked = errors.New("inventory: product is not stock tracked")
	// ErrNoChange indicates an adjustment target equal to the current quantity.
	ErrNoChange = errors.New("inventory: adjustment changes nothing")
	// ErrInvalidQuantity indicates a non-positive or negative quantity.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost indicates a negative unit cost.
	ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")
)
