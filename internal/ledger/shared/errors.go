package shared

import "errors"

var (
	// ErrTooFewLines indicates less than two journal lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrLineSign indicates a line where debit/credit are not mutually exclusive.
	ErrLineSign = errors.New("ledger: line must carry exactly one of debit or credit")
	// ErrUnbalanced indicates total debit != total credit.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrInvalidAccount indicates a missing, foreign-tenant, or header posting target.
	ErrInvalidAccount = errors.New("ledger: account cannot receive postings")
	// ErrNoOpenFiscalYear indicates no open fiscal year covers the posting date.
	ErrNoOpenFiscalYear = errors.New("ledger: no open fiscal year for date")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAlreadyReversed indicates the entry was reversed before.
	ErrAlreadyReversed = errors.New("ledger: journal entry already reversed")
	// ErrInvalidTransition indicates a status change outside the transition table.
	ErrInvalidTransition = errors.New("ledger: invalid status transition")
	// ErrEntryNumberConflict indicates the numbering race lost twice.
	ErrEntryNumberConflict = errors.New("ledger: entry number conflict")
	// ErrAccountNotFound indicates a missing chart of accounts node.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrSystemAccount indicates an attempt to mutate a system account.
	ErrSystemAccount = errors.New("ledger: system account is immutable")
	// ErrAccountCycle indicates a re-parent that would close a loop.
	ErrAccountCycle = errors.New("ledger: account parent chain must not cycle")
	// ErrDuplicateCode indicates the account code exists for the tenant.
	ErrDuplicateCode = errors.New("ledger: account code already in use")
	// ErrFiscalYearOverlap indicates overlapping fiscal year ranges.
	ErrFiscalYearOverlap = errors.New("ledger: fiscal year overlaps an existing one")
)
