package journals

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	StatusDraft    EntryStatus = "DRAFT"
	StatusPosted   EntryStatus = "POSTED"
	StatusReversed EntryStatus = "REVERSED"
)

// transitions is the only table of legal status changes. Reversed is
// terminal.
var transitions = map[EntryStatus]map[EntryStatus]bool{
	StatusDraft:  {StatusPosted: true},
	StatusPosted: {StatusReversed: true},
}

// CanTransition reports whether the status change is legal.
func (s EntryStatus) CanTransition(to EntryStatus) bool {
	return transitions[s][to]
}

// JournalEntry is the atomic unit of the ledger. Once posted it is immutable
// except for the reversal linkage.
type JournalEntry struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	EntryNumber     string
	FiscalYearID    uuid.UUID
	Date            time.Time
	Reference       string
	Description     string
	TotalDebit      decimal.Decimal
	TotalCredit     decimal.Decimal
	Status          EntryStatus
	SourceType      string
	SourceID        *uuid.UUID
	ReversesEntryID *uuid.UUID
	CreatedBy       uuid.UUID
	PostedBy        *uuid.UUID
	PostedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Lines           []JournalLine
}

// JournalLine stores one debit or credit row of an entry.
type JournalLine struct {
	ID           uuid.UUID
	EntryID      uuid.UUID
	TenantID     uuid.UUID
	LineNo       int
	AccountID    uuid.UUID
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	CostCenterID *uuid.UUID
	CreatedAt    time.Time
}

// FormatEntryNumber renders the tenant-scoped sequence as JE-######.
func FormatEntryNumber(n int64) string {
	return fmt.Sprintf("JE-%06d", n)
}
