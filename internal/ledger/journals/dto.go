package journals

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput describes one proposed journal line.
type LineInput struct {
	AccountID    uuid.UUID
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	CostCenterID *uuid.UUID
}

// PostingInput groups fields required to create a journal entry. Status must
// be StatusDraft (manual entries) or StatusPosted (document-driven postings).
type PostingInput struct {
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	Date        time.Time
	Reference   string
	Description string
	Status      EntryStatus
	SourceType  string
	SourceID    *uuid.UUID
	// ReversesEntryID links a reversal back to the entry it negates.
	ReversesEntryID *uuid.UUID
	Lines           []LineInput
}

// Validate ensures posting input meets minimum criteria before any I/O. The
// full line validation, which needs account lookups, runs inside the posting
// transaction.
func (in PostingInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("ledger: tenant required")
	}
	if in.ActorID == uuid.Nil {
		return errors.New("ledger: actor required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: posting date required")
	}
	if in.Status != StatusDraft && in.Status != StatusPosted {
		return errors.New("ledger: entries are created as draft or posted")
	}
	return validateLineShape(in.Lines)
}

// Totals returns the summed debit and credit over the lines.
func (in PostingInput) Totals() (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range in.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// ReverseInput wraps parameters for reversing a posted entry.
type ReverseInput struct {
	TenantID    uuid.UUID
	ActorID     uuid.UUID
	EntryID     uuid.UUID
	Description string
}
