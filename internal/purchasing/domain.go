package purchasing

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BillStatus enumerates purchase bill lifecycle values.
type BillStatus string

const (
	BillStatusDraft    BillStatus = "DRAFT"
	BillStatusApproved BillStatus = "APPROVED"
)

// billTransitions is the only table of legal status changes.
var billTransitions = map[BillStatus]map[BillStatus]bool{
	BillStatusDraft: {BillStatusApproved: true},
}

// CanTransition reports whether the status change is legal.
func (s BillStatus) CanTransition(to BillStatus) bool {
	return billTransitions[s][to]
}

// Bill is a supplier invoice. Approving a bill posts it to the ledger and
// links the journal entry; approved bills are immutable.
type Bill struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Number         string
	SupplierID     uuid.UUID
	Date           time.Time
	Status         BillStatus
	Subtotal       decimal.Decimal
	TaxTotal       decimal.Decimal
	Total          decimal.Decimal
	JournalEntryID *uuid.UUID
	CreatedBy      uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Lines          []BillLine
}

// BillLine is one purchased item or service. Lines with a product and a
// warehouse feed inventory on approval; the rest are expensed.
type BillLine struct {
	ID          uuid.UUID
	BillID      uuid.UUID
	TenantID    uuid.UUID
	LineNo      int
	ProductID   *uuid.UUID
	WarehouseID *uuid.UUID
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	TaxRate     decimal.Decimal
	Subtotal    decimal.Decimal
	TaxAmount   decimal.Decimal
}

// Posting config keys. Every key must map to a tenant account before any
// bill can be approved.
const (
	KeyAccountsPayable = "AP"
	KeyInventory       = "INVENTORY"
	KeyVATInput        = "VAT_INPUT"
	KeyPurchaseExpense = "PURCHASE_EXPENSE"
)

// RequiredPostingKeys lists the account mappings bill approval depends on.
var RequiredPostingKeys = []string{KeyAccountsPayable, KeyInventory, KeyVATInput, KeyPurchaseExpense}

var (
	// ErrBillNotFound indicates a missing bill.
	ErrBillNotFound = errors.New("purchasing: bill not found")
	// ErrAlreadyPosted indicates the bill already carries a journal link.
	ErrAlreadyPosted = errors.New("purchasing: bill already posted")
	// ErrMissingSystemAccount indicates an unmapped posting config key.
	// Approval fails before any write; nothing falls back silently.
	ErrMissingSystemAccount = errors.New("purchasing: posting account not configured")
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = errors.New("purchasing: invalid status transition")
	// ErrEmptyBill indicates a bill without lines.
	ErrEmptyBill = errors.New("purchasing: bill requires at least one line")
	// ErrZeroTotalBill indicates a bill whose lines sum to nothing.
	ErrZeroTotalBill = errors.New("purchasing: bill total must be positive")
	// ErrBadPostingAccount indicates a mapping to a missing, header, or
	// wrongly typed account.
	ErrBadPostingAccount = errors.New("purchasing: posting account unusable")
)
