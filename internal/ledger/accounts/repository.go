package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

type Repository interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]Account, error)
	Get(ctx context.Context, tenantID, id uuid.UUID) (Account, error)
	GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error)
	Insert(ctx context.Context, account Account) (Account, error)
	Update(ctx context.Context, account Account) error
	Delete(ctx context.Context, tenantID, id uuid.UUID) error
	ShiftSubtreeLevels(ctx context.Context, tenantID, rootID uuid.UUID, delta int) error
	HasChildren(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
	HasPostings(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, tenant_id, code, name, type, parent_id, level, is_header, is_system, balance, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Level, &a.IsHeader, &a.IsSystem, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *repository) Get(ctx context.Context, tenantID, id uuid.UUID) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
}

func (r *repository) Insert(ctx context.Context, account Account) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts (id, tenant_id, code, name, type, parent_id, level, is_header, is_system, balance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING created_at, updated_at`,
		account.ID, account.TenantID, account.Code, account.Name, account.Type, account.ParentID, account.Level, account.IsHeader, account.IsSystem, account.Balance)
	if err := row.Scan(&account.CreatedAt, &account.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, shared.ErrDuplicateCode
		}
		return Account{}, err
	}
	return account, nil
}

func (r *repository) Update(ctx context.Context, account Account) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET code=$3, name=$4, parent_id=$5, level=$6, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, account.TenantID, account.ID, account.Code, account.Name, account.ParentID, account.Level)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shared.ErrDuplicateCode
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

// ShiftSubtreeLevels moves every descendant of rootID by delta levels. Used
// when a re-parent changes the root's depth so children keep level =
// parent.level + 1.
func (r *repository) ShiftSubtreeLevels(ctx context.Context, tenantID, rootID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	_, err := r.db.Exec(ctx, `WITH RECURSIVE subtree AS (
    SELECT id FROM accounts WHERE tenant_id=$1 AND parent_id=$2
    UNION ALL
    SELECT a.id FROM accounts a JOIN subtree s ON a.parent_id = s.id WHERE a.tenant_id=$1
)
UPDATE accounts SET level = level + $3, updated_at=NOW()
WHERE tenant_id=$1 AND id IN (SELECT id FROM subtree)`, tenantID, rootID, delta)
	return err
}

func (r *repository) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *repository) HasChildren(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}

func (r *repository) HasPostings(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM journal_lines WHERE tenant_id=$1 AND account_id=$2)`, tenantID, id).Scan(&exists)
	return exists, err
}
