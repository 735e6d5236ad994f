package fiscalyears

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

type Repository interface {
	FindOpenByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (FiscalYear, error)
	List(ctx context.Context, tenantID uuid.UUID) ([]FiscalYear, error)
	Insert(ctx context.Context, fy FiscalYear) (FiscalYear, error)
	Overlaps(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (bool, error)
	Close(ctx context.Context, tenantID, id uuid.UUID, closedAt time.Time) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const fyColumns = `id, tenant_id, name, start_date, end_date, status, closed_at, created_at, updated_at`

func scanFiscalYear(row pgx.Row) (FiscalYear, error) {
	var fy FiscalYear
	err := row.Scan(&fy.ID, &fy.TenantID, &fy.Name, &fy.StartDate, &fy.EndDate, &fy.Status, &fy.ClosedAt, &fy.CreatedAt, &fy.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, shared.ErrNoOpenFiscalYear
		}
		return FiscalYear{}, err
	}
	return fy, nil
}

// FindOpenByDate returns the open fiscal year covering the supplied date.
func (r *repository) FindOpenByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (FiscalYear, error) {
	return scanFiscalYear(r.db.QueryRow(ctx, `SELECT `+fyColumns+`
FROM fiscal_years WHERE tenant_id=$1 AND status='OPEN' AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, tenantID, date))
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID) ([]FiscalYear, error) {
	rows, err := r.db.Query(ctx, `SELECT `+fyColumns+` FROM fiscal_years WHERE tenant_id=$1 ORDER BY start_date`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var years []FiscalYear
	for rows.Next() {
		fy, err := scanFiscalYear(rows)
		if err != nil {
			return nil, err
		}
		years = append(years, fy)
	}
	return years, rows.Err()
}

func (r *repository) Insert(ctx context.Context, fy FiscalYear) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO fiscal_years (id, tenant_id, name, start_date, end_date, status)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING created_at, updated_at`, fy.ID, fy.TenantID, fy.Name, fy.StartDate, fy.EndDate, fy.Status)
	if err := row.Scan(&fy.CreatedAt, &fy.UpdatedAt); err != nil {
		return FiscalYear{}, err
	}
	return fy, nil
}

func (r *repository) Overlaps(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM fiscal_years WHERE tenant_id=$1 AND start_date <= $3 AND end_date >= $2)`, tenantID, start, end).Scan(&exists)
	return exists, err
}

func (r *repository) Close(ctx context.Context, tenantID, id uuid.UUID, closedAt time.Time) error {
	cmd, err := r.db.Exec(ctx, `UPDATE fiscal_years SET status='CLOSED', closed_at=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2 AND status='OPEN'`, tenantID, id, closedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNoOpenFiscalYear
	}
	return nil
}
