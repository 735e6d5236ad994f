package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/db"
)

// Repository persists inventory data in PostgreSQL.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (Product, error)
	ListLevels(ctx context.Context, tenantID uuid.UUID, warehouseID *uuid.UUID) ([]StockLevel, error)
	ListMovements(ctx context.Context, tenantID uuid.UUID, filter MovementFilter) ([]StockMovement, error)
}

// Tx exposes the transactional stock operations. Document orchestrators
// embed this interface to apply receipts inside their own transaction.
type Tx interface {
	GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (Product, error)
	GetLevelForUpdate(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (StockLevel, error)
	UpsertLevel(ctx context.Context, level StockLevel) error
	InsertMovement(ctx context.Context, movement StockMovement) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTx(tx))
	})
}

const productColumns = `id, tenant_id, sku, name, is_tracked, created_at, updated_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.TenantID, &p.SKU, &p.Name, &p.IsTracked, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (r *repository) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (Product, error) {
	return scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID))
}

func (r *repository) ListLevels(ctx context.Context, tenantID uuid.UUID, warehouseID *uuid.UUID) ([]StockLevel, error) {
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, product_id, warehouse_id, quantity, avg_cost, updated_at
FROM stock_levels WHERE tenant_id=$1 AND ($2::uuid IS NULL OR warehouse_id=$2) ORDER BY product_id, warehouse_id`, tenantID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var levels []StockLevel
	for rows.Next() {
		var level StockLevel
		if err := rows.Scan(&level.ID, &level.TenantID, &level.ProductID, &level.WarehouseID, &level.Quantity, &level.AvgCost, &level.UpdatedAt); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	return levels, rows.Err()
}

func (r *repository) ListMovements(ctx context.Context, tenantID uuid.UUID, filter MovementFilter) ([]StockMovement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, product_id, warehouse_id, type, quantity, unit_cost, ref_type, ref_id, actor_id, occurred_at
FROM stock_movements WHERE tenant_id=$1 AND ($2::uuid IS NULL OR product_id=$2) AND ($3::uuid IS NULL OR warehouse_id=$3)
ORDER BY occurred_at DESC LIMIT $4`, tenantID, filter.ProductID, filter.WarehouseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []StockMovement
	for rows.Next() {
		var m StockMovement
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ProductID, &m.WarehouseID, &m.Type, &m.Quantity, &m.UnitCost, &m.RefType, &m.RefID, &m.ActorID, &m.OccurredAt); err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

type txRepository struct {
	tx pgx.Tx
}

// NewTx wraps a pgx transaction in the inventory Tx interface.
func NewTx(tx pgx.Tx) Tx {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (Product, error) {
	return scanProduct(r.tx.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE tenant_id=$1 AND id=$2`, tenantID, productID))
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (StockLevel, error) {
	var level StockLevel
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, product_id, warehouse_id, quantity, avg_cost, updated_at
FROM stock_levels WHERE tenant_id=$1 AND product_id=$2 AND warehouse_id=$3 FOR UPDATE`, tenantID, productID, warehouseID).
		Scan(&level.ID, &level.TenantID, &level.ProductID, &level.WarehouseID, &level.Quantity, &level.AvgCost, &level.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockLevel{}, ErrLevelNotFound
		}
		return StockLevel{}, err
	}
	return level, nil
}

func (r *txRepository) UpsertLevel(ctx context.Context, level StockLevel) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_levels (id, tenant_id, product_id, warehouse_id, quantity, avg_cost)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (tenant_id, product_id, warehouse_id)
DO UPDATE SET quantity=EXCLUDED.quantity, avg_cost=EXCLUDED.avg_cost, updated_at=NOW()`,
		level.ID, level.TenantID, level.ProductID, level.WarehouseID, level.Quantity, level.AvgCost)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, movement StockMovement) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO stock_movements (id, tenant_id, product_id, warehouse_id, type, quantity, unit_cost, ref_type, ref_id, actor_id, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		movement.ID, movement.TenantID, movement.ProductID, movement.WarehouseID, movement.Type,
		movement.Quantity, movement.UnitCost, movement.RefType, movement.RefID, movement.ActorID, movement.OccurredAt)
	return err
}
