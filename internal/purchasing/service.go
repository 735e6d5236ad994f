package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/0x3b3fc/erp-pro-sub001/internal/inventory"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/journals"
	ledgershared "github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
	"github.com/0x3b3fc/erp-pro-sub001/internal/shared"
)

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// expectedAccountTypes maps each posting key to the account type it must
// carry. Checked when the mapping is set, and trusted at approval time.
var expectedAccountTypes = map[string]accounts.AccountType{
	KeyAccountsPayable: accounts.AccountTypeLiability,
	KeyInventory:       accounts.AccountTypeAsset,
	KeyVATInput:        accounts.AccountTypeAsset,
	KeyPurchaseExpense: accounts.AccountTypeExpense,
}

// Service orchestrates purchase bills: draft CRUD, posting config, and the
// single-transaction approval that writes the journal entry, the stock
// receipts, and the status flip together.
type Service struct {
	repo      Repository
	journals  *journals.Service
	inventory *inventory.Service
	accounts  accounts.Repository
	audit     AuditPort
	now       func() time.Time
}

func NewService(repo Repository, journalSvc *journals.Service, inventorySvc *inventory.Service, accountsRepo accounts.Repository, audit AuditPort) *Service {
	return &Service{
		repo:      repo,
		journals:  journalSvc,
		inventory: inventorySvc,
		accounts:  accountsRepo,
		audit:     audit,
		now:       time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]Bill, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

func (s *Service) Get(ctx context.Context, tenantID, billID uuid.UUID) (Bill, error) {
	return s.repo.GetWithLines(ctx, tenantID, billID)
}

// LineInput describes one proposed bill line.
type LineInput struct {
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
}

// CreateBillInput groups fields for a new draft bill.
type CreateBillInput struct {
	TenantID   uuid.UUID
	ActorID    uuid.UUID
	SupplierID uuid.UUID
	Date       time.Time
	Lines      []LineInput
}

// CreateBill stores a draft with computed per-line and header totals.
func (s *Service) CreateBill(ctx context.Context, input CreateBillInput) (Bill, error) {
	if input.TenantID == uuid.Nil || input.SupplierID == uuid.Nil {
		return Bill{}, errors.New("purchasing: tenant and supplier required")
	}
	if len(input.Lines) == 0 {
		return Bill{}, ErrEmptyBill
	}
	if input.Date.IsZero() {
		input.Date = s.now()
	}
	for i, line := range input.Lines {
		if !line.Quantity.IsPositive() {
			return Bill{}, fmt.Errorf("purchasing: line %d quantity must be positive", i+1)
		}
		if line.UnitPrice.IsNegative() || line.TaxRate.IsNegative() {
			return Bill{}, fmt.Errorf("purchasing: line %d price and tax rate must be >= 0", i+1)
		}
	}

	var bill Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		seq, err := tx.NextBillNumber(ctx, input.TenantID)
		if err != nil {
			return err
		}
		bill = Bill{
			ID:         uuid.New(),
			TenantID:   input.TenantID,
			Number:     fmt.Sprintf("BILL-%06d", seq),
			SupplierID: input.SupplierID,
			Date:       input.Date,
			Status:     BillStatusDraft,
			CreatedBy:  input.ActorID,
		}
		subtotal, taxTotal := decimal.Zero, decimal.Zero
		lines := make([]BillLine, 0, len(input.Lines))
		for i, in := range input.Lines {
			lineSubtotal := in.Quantity.Mul(in.UnitPrice)
			lineTax := lineSubtotal.Mul(in.TaxRate).Div(decimal.NewFromInt(100))
			subtotal = subtotal.Add(lineSubtotal)
			taxTotal = taxTotal.Add(lineTax)
			lines = append(lines, BillLine{
				ID:          uuid.New(),
				BillID:      bill.ID,
				TenantID:    input.TenantID,
				LineNo:      i + 1,
				ProductID:   in.ProductID,
				WarehouseID: in.WarehouseID,
				Description: in.Description,
				Quantity:    in.Quantity,
				UnitPrice:   in.UnitPrice,
				TaxRate:     in.TaxRate,
				Subtotal:    lineSubtotal,
				TaxAmount:   lineTax,
			})
		}
		bill.Subtotal = subtotal
		bill.TaxTotal = taxTotal
		bill.Total = subtotal.Add(taxTotal)
		inserted, err := tx.InsertBill(ctx, bill)
		if err != nil {
			return err
		}
		if err := tx.InsertBillLines(ctx, lines); err != nil {
			return err
		}
		bill = inserted
		bill.Lines = lines
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "bill.create", bill.ID, map[string]any{"number": bill.Number})
	return bill, nil
}

// PostBill approves a draft bill: one transaction writes the journal entry,
// the stock receipts for tracked warehouse lines, and the DRAFT to APPROVED
// flip with the journal link. A lost entry-number race is retried once.
func (s *Service) PostBill(ctx context.Context, tenantID, actorID, billID uuid.UUID) (Bill, error) {
	bill, err := s.postBillOnce(ctx, tenantID, actorID, billID)
	if errors.Is(err, ledgershared.ErrEntryNumberConflict) {
		bill, err = s.postBillOnce(ctx, tenantID, actorID, billID)
	}
	if err != nil {
		return Bill{}, err
	}
	s.inventory.InvalidateCache(ctx)
	s.record(ctx, tenantID, actorID, "bill.post", billID, map[string]any{
		"number":           bill.Number,
		"journal_entry_id": bill.JournalEntryID.String(),
	})
	return bill, nil
}

func (s *Service) postBillOnce(ctx context.Context, tenantID, actorID, billID uuid.UUID) (Bill, error) {
	var bill Bill
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBillForUpdate(ctx, tenantID, billID)
		if err != nil {
			return err
		}
		if current.Status != BillStatusDraft || current.JournalEntryID != nil {
			return ErrAlreadyPosted
		}
		if !current.Status.CanTransition(BillStatusApproved) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, BillStatusApproved)
		}
		lines, err := tx.GetBillLines(ctx, tenantID, billID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrEmptyBill
		}
		if !current.Total.IsPositive() {
			return ErrZeroTotalBill
		}
		cfg, err := tx.GetPostingAccounts(ctx, tenantID)
		if err != nil {
			return err
		}
		for _, key := range RequiredPostingKeys {
			if _, ok := cfg[key]; !ok {
				return fmt.Errorf("%w: %s", ErrMissingSystemAccount, key)
			}
		}

		stockLines, expenseLines, err := s.partitionLines(ctx, tx, tenantID, lines)
		if err != nil {
			return err
		}
		inventoryTotal := sumSubtotals(stockLines)
		expenseTotal := sumSubtotals(expenseLines)
		vatTotal := current.TaxTotal

		journalLines := make([]journals.LineInput, 0, 4)
		if inventoryTotal.IsPositive() {
			journalLines = append(journalLines, journals.LineInput{
				AccountID:   cfg[KeyInventory],
				Debit:       inventoryTotal,
				Description: fmt.Sprintf("Inventory on %s", current.Number),
			})
		}
		if expenseTotal.IsPositive() {
			journalLines = append(journalLines, journals.LineInput{
				AccountID:   cfg[KeyPurchaseExpense],
				Debit:       expenseTotal,
				Description: fmt.Sprintf("Expenses on %s", current.Number),
			})
		}
		if vatTotal.IsPositive() {
			journalLines = append(journalLines, journals.LineInput{
				AccountID:   cfg[KeyVATInput],
				Debit:       vatTotal,
				Description: fmt.Sprintf("Input VAT on %s", current.Number),
			})
		}
		journalLines = append(journalLines, journals.LineInput{
			AccountID:   cfg[KeyAccountsPayable],
			Credit:      current.Total,
			Description: fmt.Sprintf("Payable for %s", current.Number),
		})

		entry, err := s.journals.PostTx(ctx, tx, journals.PostingInput{
			TenantID:    tenantID,
			ActorID:     actorID,
			Date:        current.Date,
			Reference:   current.Number,
			Description: fmt.Sprintf("Purchase bill %s", current.Number),
			Status:      journals.StatusPosted,
			SourceType:  "BILL",
			SourceID:    &current.ID,
			Lines:       journalLines,
		})
		if err != nil {
			return err
		}

		for _, line := range stockLines {
			if _, err := s.inventory.ApplyReceiptTx(ctx, tx, inventory.ReceiptInput{
				TenantID:    tenantID,
				ActorID:     actorID,
				ProductID:   *line.ProductID,
				WarehouseID: *line.WarehouseID,
				Quantity:    line.Quantity,
				UnitCost:    line.UnitPrice,
				RefType:     "BILL",
				RefID:       &current.ID,
			}); err != nil {
				return err
			}
		}

		if err := tx.UpdateBillStatus(ctx, tenantID, billID, BillStatusApproved, &entry.ID); err != nil {
			return err
		}
		bill = current
		bill.Status = BillStatusApproved
		bill.JournalEntryID = &entry.ID
		bill.Lines = lines
		return nil
	})
	if err != nil {
		return Bill{}, err
	}
	return bill, nil
}

// partitionLines splits bill lines into stock receipts and plain expenses. A
// line feeds inventory only when it names a product and a warehouse and the
// product is stock tracked.
func (s *Service) partitionLines(ctx context.Context, tx TxRepository, tenantID uuid.UUID, lines []BillLine) (stock, expense []BillLine, err error) {
	for _, line := range lines {
		if line.ProductID == nil || line.WarehouseID == nil {
			expense = append(expense, line)
			continue
		}
		product, err := tx.GetProduct(ctx, tenantID, *line.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if !product.IsTracked {
			expense = append(expense, line)
			continue
		}
		stock = append(stock, line)
	}
	return stock, expense, nil
}

// GetPostingAccounts returns the tenant's posting config.
func (s *Service) GetPostingAccounts(ctx context.Context, tenantID uuid.UUID) (map[string]uuid.UUID, error) {
	return s.repo.GetPostingAccounts(ctx, tenantID)
}

// SetPostingAccount maps a posting key to an account after checking the
// account exists, is not a header, and carries the expected type.
func (s *Service) SetPostingAccount(ctx context.Context, tenantID, actorID uuid.UUID, key string, accountID uuid.UUID) error {
	expected, ok := expectedAccountTypes[key]
	if !ok {
		return fmt.Errorf("%w: unknown key %q", ErrBadPostingAccount, key)
	}
	account, err := s.accounts.Get(ctx, tenantID, accountID)
	if err != nil {
		return err
	}
	if account.IsHeader {
		return fmt.Errorf("%w: %s is a header account", ErrBadPostingAccount, account.Code)
	}
	if account.Type != expected {
		return fmt.Errorf("%w: %s must be %s", ErrBadPostingAccount, key, expected)
	}
	if err := s.repo.SetPostingAccount(ctx, tenantID, key, accountID); err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "bill.posting_config", accountID, map[string]any{"key": key})
	return nil
}

func sumSubtotals(lines []BillLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal)
	}
	return total
}

func (s *Service) record(ctx context.Context, tenantID, actorID uuid.UUID, action string, entityID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "bill",
		EntityID: entityID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}
