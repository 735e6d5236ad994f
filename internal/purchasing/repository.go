package purchasing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0x3b3fc/erp-pro-sub001/internal/inventory"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/journals"
	"github.com/0x3b3fc/erp-pro-sub001/internal/platform/db"
)

// Repository persists bills and the tenant posting config.
type Repository interface {
	List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Bill, error)
	GetWithLines(ctx context.Context, tenantID, billID uuid.UUID) (Bill, error)
	GetPostingAccounts(ctx context.Context, tenantID uuid.UUID) (map[string]uuid.UUID, error)
	SetPostingAccount(ctx context.Context, tenantID uuid.UUID, key string, accountID uuid.UUID) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the single-transaction surface of bill approval: bill
// writes, the journal posting operations, and the stock receipt operations
// all run against the same pgx transaction.
type TxRepository interface {
	journals.Tx
	inventory.Tx

	GetBillForUpdate(ctx context.Context, tenantID, billID uuid.UUID) (Bill, error)
	GetBillLines(ctx context.Context, tenantID, billID uuid.UUID) ([]BillLine, error)
	InsertBill(ctx context.Context, bill Bill) (Bill, error)
	InsertBillLines(ctx context.Context, lines []BillLine) error
	UpdateBillStatus(ctx context.Context, tenantID, billID uuid.UUID, status BillStatus, journalEntryID *uuid.UUID) error
	NextBillNumber(ctx context.Context, tenantID uuid.UUID) (int64, error)
	GetPostingAccounts(ctx context.Context, tenantID uuid.UUID) (map[string]uuid.UUID, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const billColumns = `id, tenant_id, number, supplier_id, date, status, subtotal, tax_total, total, journal_entry_id, created_by, created_at, updated_at`

func scanBill(row pgx.Row) (Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.TenantID, &b.Number, &b.SupplierID, &b.Date, &b.Status,
		&b.Subtotal, &b.TaxTotal, &b.Total, &b.JournalEntryID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, ErrBillNotFound
		}
		return Bill{}, err
	}
	return b, nil
}

func (r *repository) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Bill, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `SELECT `+billColumns+` FROM bills WHERE tenant_id=$1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var bills []Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		bills = append(bills, bill)
	}
	return bills, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, tenantID, billID uuid.UUID) (Bill, error) {
	bill, err := scanBill(r.db.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE tenant_id=$1 AND id=$2`, tenantID, billID))
	if err != nil {
		return Bill{}, err
	}
	lines, err := queryBillLines(ctx, r.db, tenantID, billID)
	if err != nil {
		return Bill{}, err
	}
	bill.Lines = lines
	return bill, nil
}

func (r *repository) GetPostingAccounts(ctx context.Context, tenantID uuid.UUID) (map[string]uuid.UUID, error) {
	return queryPostingAccounts(ctx, r.db, tenantID)
}

func (r *repository) SetPostingAccount(ctx context.Context, tenantID uuid.UUID, key string, accountID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `INSERT INTO posting_accounts (tenant_id, key, account_id) VALUES ($1,$2,$3)
ON CONFLICT (tenant_id, key) DO UPDATE SET account_id=EXCLUDED.account_id, updated_at=NOW()`, tenantID, key, accountID)
	return err
}

// WithTx executes fn inside a repeatable-read transaction shared by bill,
// journal, and stock writes.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{
			Tx:          journals.NewTx(tx),
			inventoryTx: inventory.NewTx(tx),
			tx:          tx,
		})
	})
}

type txRepository struct {
	journals.Tx
	inventoryTx inventory.Tx
	tx          pgx.Tx
}

func (r *txRepository) GetProduct(ctx context.Context, tenantID, productID uuid.UUID) (inventory.Product, error) {
	return r.inventoryTx.GetProduct(ctx, tenantID, productID)
}

func (r *txRepository) GetLevelForUpdate(ctx context.Context, tenantID, productID, warehouseID uuid.UUID) (inventory.StockLevel, error) {
	return r.inventoryTx.GetLevelForUpdate(ctx, tenantID, productID, warehouseID)
}

func (r *txRepository) UpsertLevel(ctx context.Context, level inventory.StockLevel) error {
	return r.inventoryTx.UpsertLevel(ctx, level)
}

func (r *txRepository) InsertMovement(ctx context.Context, movement inventory.StockMovement) error {
	return r.inventoryTx.InsertMovement(ctx, movement)
}

func (r *txRepository) GetBillForUpdate(ctx context.Context, tenantID, billID uuid.UUID) (Bill, error) {
	return scanBill(r.tx.QueryRow(ctx, `SELECT `+billColumns+` FROM bills WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, billID))
}

func (r *txRepository) GetBillLines(ctx context.Context, tenantID, billID uuid.UUID) ([]BillLine, error) {
	return queryBillLines(ctx, r.tx, tenantID, billID)
}

func (r *txRepository) InsertBill(ctx context.Context, bill Bill) (Bill, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO bills (id, tenant_id, number, supplier_id, date, status, subtotal, tax_total, total, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING created_at, updated_at`,
		bill.ID, bill.TenantID, bill.Number, bill.SupplierID, bill.Date, bill.Status,
		bill.Subtotal, bill.TaxTotal, bill.Total, bill.CreatedBy)
	if err := row.Scan(&bill.CreatedAt, &bill.UpdatedAt); err != nil {
		return Bill{}, err
	}
	return bill, nil
}

func (r *txRepository) InsertBillLines(ctx context.Context, lines []BillLine) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO bill_lines (id, bill_id, tenant_id, line_no, product_id, warehouse_id, description, quantity, unit_price, tax_rate, subtotal, tax_amount)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			line.ID, line.BillID, line.TenantID, line.LineNo, line.ProductID, line.WarehouseID,
			line.Description, line.Quantity, line.UnitPrice, line.TaxRate, line.Subtotal, line.TaxAmount); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) UpdateBillStatus(ctx context.Context, tenantID, billID uuid.UUID, status BillStatus, journalEntryID *uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bills SET status=$3, journal_entry_id=COALESCE($4, journal_entry_id), updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, tenantID, billID, status, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBillNotFound
	}
	return nil
}

func (r *txRepository) NextBillNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	var n int64
	err := r.tx.QueryRow(ctx, `INSERT INTO bill_sequences (tenant_id, last_number) VALUES ($1,1)
ON CONFLICT (tenant_id) DO UPDATE SET last_number = bill_sequences.last_number + 1
RETURNING last_number`, tenantID).Scan(&n)
	return n, err
}

func (r *txRepository) GetPostingAccounts(ctx context.Context, tenantID uuid.UUID) (map[string]uuid.UUID, error) {
	return queryPostingAccounts(ctx, r.tx, tenantID)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryBillLines(ctx context.Context, q queryer, tenantID, billID uuid.UUID) ([]BillLine, error) {
	rows, err := q.Query(ctx, `SELECT id, bill_id, tenant_id, line_no, product_id, warehouse_id, description, quantity, unit_price, tax_rate, subtotal, tax_amount
FROM bill_lines WHERE tenant_id=$1 AND bill_id=$2 ORDER BY line_no ASC`, tenantID, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BillLine
	for rows.Next() {
		var line BillLine
		if err := rows.Scan(&line.ID, &line.BillID, &line.TenantID, &line.LineNo, &line.ProductID, &line.WarehouseID,
			&line.Description, &line.Quantity, &line.UnitPrice, &line.TaxRate, &line.Subtotal, &line.TaxAmount); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func queryPostingAccounts(ctx context.Context, q queryer, tenantID uuid.UUID) (map[string]uuid.UUID, error) {
	rows, err := q.Query(ctx, `SELECT key, account_id FROM posting_accounts WHERE tenant_id=$1`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var key string
		var accountID uuid.UUID
		if err := rows.Scan(&key, &accountID); err != nil {
			return nil, err
		}
		out[key] = accountID
	}
	return out, rows.Err()
}
