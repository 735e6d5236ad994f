package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/fiscalyears"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/db"
)

// Repository encapsulates DB access for journal entries.
type Repository interface {
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]JournalEntry, error)
	GetWithLines(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Tx exposes the operations available inside a posting transaction. Document
// orchestrators embed this interface to compose ledger postings with their
// own writes in one transaction.
type Tx interface {
	GetOpenFiscalYear(ctx context.Context, tenantID uuid.UUID, date time.Time) (fiscalyears.FiscalYear, error)
	GetAccountsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounts.Account, error)
	NextEntryNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
	InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, lines []JournalLine) error
	ApplyBalanceDelta(ctx context.Context, tenantID, accountID uuid.UUID, delta decimal.Decimal) error
	GetEntryForUpdate(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error)
	GetLines(ctx context.Context, tenantID, entryID uuid.UUID) ([]JournalLine, error)
	UpdateEntryStatus(ctx context.Context, tenantID, entryID uuid.UUID, status EntryStatus, postedBy *uuid.UUID, postedAt *time.Time) error
	DeleteEntry(ctx context.Context, tenantID, entryID uuid.UUID) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, entry_number, fiscal_year_id, date, reference, description, total_debit, total_credit, status, source_type, source_id, reverses_entry_id, created_by, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.EntryNumber, &e.FiscalYearID, &e.Date, &e.Reference, &e.Description,
		&e.TotalDebit, &e.TotalCredit, &e.Status, &e.SourceType, &e.SourceID, &e.ReversesEntryID,
		&e.CreatedBy, &e.PostedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 ORDER BY entry_number DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(r.db.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	lines, err := queryLines(ctx, r.db, tenantID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, NewTx(tx))
	})
}

type txRepository struct {
	tx pgx.Tx
}

// NewTx wraps a pgx transaction in the journal Tx interface so document
// orchestrators can post entries inside their own transaction.
func NewTx(tx pgx.Tx) Tx {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetOpenFiscalYear(ctx context.Context, tenantID uuid.UUID, date time.Time) (fiscalyears.FiscalYear, error) {
	var fy fiscalyears.FiscalYear
	err := r.tx.QueryRow(ctx, `SELECT id, tenant_id, name, start_date, end_date, status, closed_at, created_at, updated_at
FROM fiscal_years WHERE tenant_id=$1 AND status='OPEN' AND $2 BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1 FOR SHARE`, tenantID, date).
		Scan(&fy.ID, &fy.TenantID, &fy.Name, &fy.StartDate, &fy.EndDate, &fy.Status, &fy.ClosedAt, &fy.CreatedAt, &fy.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fiscalyears.FiscalYear{}, shared.ErrNoOpenFiscalYear
		}
		return fiscalyears.FiscalYear{}, err
	}
	return fy, nil
}

func (r *txRepository) GetAccountsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounts.Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, tenant_id, code, name, type, parent_id, level, is_header, is_system, balance, created_at, updated_at
FROM accounts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY code FOR UPDATE`, tenantID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]accounts.Account, len(ids))
	for rows.Next() {
		var a accounts.Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.Level, &a.IsHeader, &a.IsSystem, &a.Balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

// NextEntryNumber increments and reads the per-tenant counter row. The
// counter spans fiscal years because entry numbers carry no year component;
// a per-year counter would restart at one and collide with the prior year's
// numbers under the (tenant_id, entry_number) unique constraint, which
// remains the backstop against races.
func (r *txRepository) NextEntryNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_sequences (tenant_id, last_number) VALUES ($1,1)
ON CONFLICT (tenant_id) DO UPDATE SET last_number = journal_sequences.last_number + 1
RETURNING last_number`, tenantID).Scan(&n)
	return n, err
}

func (r *txRepository) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journal_entries (id, tenant_id, entry_number, fiscal_year_id, date, reference, description, total_debit, total_credit, status, source_type, source_id, reverses_entry_id, created_by, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING created_at, updated_at`,
		entry.ID, entry.TenantID, entry.EntryNumber, entry.FiscalYearID, entry.Date, entry.Reference, entry.Description,
		entry.TotalDebit, entry.TotalCredit, entry.Status, entry.SourceType, entry.SourceID, entry.ReversesEntryID,
		entry.CreatedBy, entry.PostedBy, entry.PostedAt)
	if err := row.Scan(&entry.CreatedAt, &entry.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return JournalEntry{}, shared.ErrEntryNumberConflict
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, lines []JournalLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (id, entry_id, tenant_id, line_no, account_id, debit, credit, description, cost_center_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			line.ID, line.EntryID, line.TenantID, line.LineNo, line.AccountID, line.Debit, line.Credit, line.Description, line.CostCenterID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, tenantID, accountID uuid.UUID, delta decimal.Decimal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, entryID))
}

func (r *txRepository) GetLines(ctx context.Context, tenantID, entryID uuid.UUID) ([]JournalLine, error) {
	return queryLines(ctx, r.tx, tenantID, entryID)
}

func (r *txRepository) UpdateEntryStatus(ctx context.Context, tenantID, entryID uuid.UUID, status EntryStatus, postedBy *uuid.UUID, postedAt *time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journal_entries SET status=$3, posted_by=COALESCE($4, posted_by), posted_at=COALESCE($5, posted_at), updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, entryID, status, postedBy, postedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

func (r *txRepository) DeleteEntry(ctx context.Context, tenantID, entryID uuid.UUID) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE tenant_id=$1 AND entry_id=$2`, tenantID, entryID); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryLines(ctx context.Context, q queryer, tenantID, entryID uuid.UUID) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, tenant_id, line_no, account_id, debit, credit, description, cost_center_id, created_at
FROM journal_lines WHERE tenant_id=$1 AND entry_id=$2 ORDER BY line_no ASC`, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.TenantID, &line.LineNo, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &line.CostCenterID, &line.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
