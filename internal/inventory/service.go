package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/cache"
	"github.com/0x3b3fc/erp-pro-sub001/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service maintains stock levels under weighted average costing.
type Service struct {
	repo  Repository
	audit AuditPort
	cache *cache.Versioned
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithCache enables versioned caching of stock level reads. Writers bump
// the version after every committed movement.
func (s *Service) WithCache(c *cache.Versioned) {
	s.cache = c
}

// InvalidateCache bumps the stock cache version. Orchestrators that apply
// receipts inside their own transaction call this after commit.
func (s *Service) InvalidateCache(ctx context.Context) {
	_ = s.cache.Bump(ctx)
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) ListLevels(ctx context.Context, tenantID uuid.UUID, warehouseID *uuid.UUID) ([]StockLevel, error) {
	if s.cache == nil {
		return s.repo.ListLevels(ctx, tenantID, warehouseID)
	}
	parts := []string{tenantID.String(), "levels"}
	if warehouseID != nil {
		parts = append(parts, warehouseID.String())
	}
	key, err := s.cache.BuildKey(ctx, parts...)
	if err != nil {
		return s.repo.ListLevels(ctx, tenantID, warehouseID)
	}
	var levels []StockLevel
	err = s.cache.FetchJSON(ctx, key, &levels, func(ctx context.Context) (any, error) {
		return s.repo.ListLevels(ctx, tenantID, warehouseID)
	})
	if err != nil {
		return s.repo.ListLevels(ctx, tenantID, warehouseID)
	}
	return levels, nil
}

func (s *Service) ListMovements(ctx context.Context, tenantID uuid.UUID, filter MovementFilter) ([]StockMovement, error) {
	return s.repo.ListMovements(ctx, tenantID, filter)
}

// ApplyReceipt books an inbound movement and folds its cost into the
// weighted average.
func (s *Service) ApplyReceipt(ctx context.Context, input ReceiptInput) (StockLevel, error) {
	var level StockLevel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		updated, err := s.ApplyReceiptTx(ctx, tx, input)
		if err != nil {
			return err
		}
		level = updated
		return nil
	})
	if err != nil {
		return StockLevel{}, err
	}
	_ = s.cache.Bump(ctx)
	s.record(ctx, input.TenantID, input.ActorID, "inventory.receipt", input.ProductID, map[string]any{
		"warehouse_id": input.WarehouseID.String(),
		"quantity":     input.Quantity.String(),
		"unit_cost":    input.UnitCost.String(),
	})
	return level, nil
}

// ApplyReceiptTx runs the receipt against a caller-provided transaction so
// orchestrators can keep the stock update atomic with the ledger posting.
//
// The new average is (q0*c0 + q*uc) / (q0+q) when the resulting quantity is
// positive, otherwise the incoming unit cost. Exact decimal math throughout.
func (s *Service) ApplyReceiptTx(ctx context.Context, tx Tx, input ReceiptInput) (StockLevel, error) {
	if input.TenantID == uuid.Nil || input.ProductID == uuid.Nil || input.WarehouseID == uuid.Nil {
		return StockLevel{}, errors.New("inventory: tenant, product and warehouse required")
	}
	if !input.Quantity.IsPositive() {
		return StockLevel{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return StockLevel{}, ErrInvalidUnitCost
	}
	product, err := tx.GetProduct(ctx, input.TenantID, input.ProductID)
	if err != nil {
		return StockLevel{}, err
	}
	if !product.IsTracked {
		return StockLevel{}, ErrNotTracked
	}
	level, err := s.levelOrNew(ctx, tx, input.TenantID, input.ProductID, input.WarehouseID)
	if err != nil {
		return StockLevel{}, err
	}

	newQty := level.Quantity.Add(input.Quantity)
	if newQty.IsPositive() {
		currentValue := level.Quantity.Mul(level.AvgCost)
		receiptValue := input.Quantity.Mul(input.UnitCost)
		level.AvgCost = currentValue.Add(receiptValue).Div(newQty)
	} else {
		level.AvgCost = input.UnitCost
	}
	level.Quantity = newQty

	if err := tx.UpsertLevel(ctx, level); err != nil {
		return StockLevel{}, err
	}
	movement := StockMovement{
		ID:          uuid.New(),
		TenantID:    input.TenantID,
		ProductID:   input.ProductID,
		WarehouseID: input.WarehouseID,
		Type:        MovementIn,
		Quantity:    input.Quantity,
		UnitCost:    input.UnitCost,
		RefType:     input.RefType,
		RefID:       input.RefID,
		ActorID:     input.ActorID,
		OccurredAt:  s.now(),
	}
	if err := tx.InsertMovement(ctx, movement); err != nil {
		return StockLevel{}, err
	}
	return level, nil
}

// ApplyAdjustment sets the on-hand quantity to an absolute target. The
// difference is recorded as an ADJUSTMENT movement with its magnitude; the
// average cost is kept unless the input overrides it.
func (s *Service) ApplyAdjustment(ctx context.Context, input AdjustmentInput) (StockLevel, error) {
	if input.TenantID == uuid.Nil || input.ProductID == uuid.Nil || input.WarehouseID == uuid.Nil {
		return StockLevel{}, errors.New("inventory: tenant, product and warehouse required")
	}
	if input.NewQuantity.IsNegative() {
		return StockLevel{}, ErrInvalidQuantity
	}
	if input.UnitCost != nil && input.UnitCost.IsNegative() {
		return StockLevel{}, ErrInvalidUnitCost
	}
	var level StockLevel
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		product, err := tx.GetProduct(ctx, input.TenantID, input.ProductID)
		if err != nil {
			return err
		}
		if !product.IsTracked {
			return ErrNotTracked
		}
		current, err := s.levelOrNew(ctx, tx, input.TenantID, input.ProductID, input.WarehouseID)
		if err != nil {
			return err
		}
		difference := input.NewQuantity.Sub(current.Quantity)
		if difference.IsZero() {
			return ErrNoChange
		}
		current.Quantity = input.NewQuantity
		if input.UnitCost != nil {
			current.AvgCost = *input.UnitCost
		}
		if err := tx.UpsertLevel(ctx, current); err != nil {
			return err
		}
		movement := StockMovement{
			ID:          uuid.New(),
			TenantID:    input.TenantID,
			ProductID:   input.ProductID,
			WarehouseID: input.WarehouseID,
			Type:        MovementAdjustment,
			Quantity:    difference.Abs(),
			UnitCost:    current.AvgCost,
			RefType:     "ADJUSTMENT",
			ActorID:     input.ActorID,
			OccurredAt:  s.now(),
		}
		if err := tx.InsertMovement(ctx, movement); err != nil {
			return err
		}
		level = current
		return nil
	})
	if err != nil {
		return StockLevel{}, err
	}
	_ = s.cache.Bump(ctx)
	s.record(ctx, input.TenantID, input.ActorID, "inventory.adjust", input.ProductID, map[string]any{
		"warehouse_id": input.WarehouseID.String(),
		"new_quantity": input.NewQuantity.String(),
		"reason":       input.Reason,
	})
	return level, nil
}

// levelOrNew loads the locked stock level or returns a zero-valued row for
// lazy creation.
func (s *Service) levelOrNew(ctx context.Context, tx Tx, tenantID, productID, warehouseID uuid.UUID) (StockLevel, error) {
	level, err := tx.GetLevelForUpdate(ctx, tenantID, productID, warehouseID)
	if err != nil {
		if !errors.Is(err, ErrLevelNotFound) {
			return StockLevel{}, err
		}
		level = StockLevel{
			ID:          uuid.New(),
			TenantID:    tenantID,
			ProductID:   productID,
			WarehouseID: warehouseID,
			Quantity:    decimal.Zero,
			AvgCost:     decimal.Zero,
		}
	}
	return level, nil
}

func (s *Service) record(ctx context.Context, tenantID, actorID uuid.UUID, action string, productID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_level",
		EntityID: productID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
