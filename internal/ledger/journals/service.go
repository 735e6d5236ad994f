package journals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/fiscalyears"
	ledgershared "github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
	"github.com/0x3b3fc/erp-pro-sub001/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the journal posting and reversal engine.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]JournalEntry, error) {
	return s.repo.List(ctx, tenantID, limit, offset)
}

func (s *Service) Get(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error) {
	return s.repo.GetWithLines(ctx, tenantID, entryID)
}

// Post validates and persists a new journal entry. A lost entry-number race
// surfaces from the transaction as ErrEntryNumberConflict and is retried
// exactly once with a freshly allocated number.
func (s *Service) Post(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	entry, err := s.postOnce(ctx, input)
	if errors.Is(err, ledgershared.ErrEntryNumberConflict) {
		entry, err = s.postOnce(ctx, input)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "journal.post", entry.ID, map[string]any{
		"entry_number": entry.EntryNumber,
		"status":       string(entry.Status),
		"source_type":  entry.SourceType,
	})
	return entry, nil
}

func (s *Service) postOnce(ctx context.Context, input PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		inserted, err := s.PostTx(ctx, tx, input)
		if err != nil {
			return err
		}
		entry = inserted
		return nil
	})
	return entry, err
}

// PostTx runs the posting algorithm against a caller-provided transaction.
// Document orchestrators use it to keep the ledger write atomic with their
// own state changes. No retry happens at this level; the owning transaction
// must be retried whole after a number conflict.
func (s *Service) PostTx(ctx context.Context, tx Tx, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	accts, err := tx.GetAccountsForUpdate(ctx, input.TenantID, lineAccountIDs(input.Lines))
	if err != nil {
		return JournalEntry{}, err
	}
	if err := ValidateLines(input.TenantID, input.Lines, accts); err != nil {
		return JournalEntry{}, err
	}
	date := fiscalyears.DateOnly(input.Date)
	fy, err := tx.GetOpenFiscalYear(ctx, input.TenantID, date)
	if err != nil {
		return JournalEntry{}, err
	}
	seq, err := tx.NextEntryNumber(ctx, input.TenantID)
	if err != nil {
		return JournalEntry{}, err
	}

	totalDebit, totalCredit := input.Totals()
	now := s.now()
	entry := JournalEntry{
		ID:              uuid.New(),
		TenantID:        input.TenantID,
		EntryNumber:     FormatEntryNumber(seq),
		FiscalYearID:    fy.ID,
		Date:            date,
		Reference:       input.Reference,
		Description:     input.Description,
		TotalDebit:      totalDebit,
		TotalCredit:     totalCredit,
		Status:          input.Status,
		SourceType:      input.SourceType,
		SourceID:        input.SourceID,
		ReversesEntryID: input.ReversesEntryID,
		CreatedBy:       input.ActorID,
	}
	if input.Status == StatusPosted {
		actor := input.ActorID
		entry.PostedBy = &actor
		postedAt := now
		entry.PostedAt = &postedAt
	}
	inserted, err := tx.InsertEntry(ctx, entry)
	if err != nil {
		return JournalEntry{}, err
	}
	lines := buildLines(inserted, input.Lines)
	if err := tx.InsertLines(ctx, lines); err != nil {
		return JournalEntry{}, err
	}
	if inserted.Status == StatusPosted {
		if err := propagateBalances(ctx, tx, inserted.TenantID, lines, accts); err != nil {
			return JournalEntry{}, err
		}
	}
	inserted.Lines = lines
	return inserted, nil
}

// PostDraft transitions a draft entry to posted and propagates balances.
func (s *Service) PostDraft(ctx context.Context, tenantID, actorID, entryID uuid.UUID) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(StatusPosted) {
			return fmt.Errorf("%w: %s -> %s", ledgershared.ErrInvalidTransition, current.Status, StatusPosted)
		}
		lines, err := tx.GetLines(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		accts, err := tx.GetAccountsForUpdate(ctx, tenantID, journalLineAccountIDs(lines))
		if err != nil {
			return err
		}
		if err := ValidateLines(tenantID, toLineInputs(lines), accts); err != nil {
			return err
		}
		if _, err := tx.GetOpenFiscalYear(ctx, tenantID, current.Date); err != nil {
			return err
		}
		postedAt := s.now()
		actor := actorID
		if err := tx.UpdateEntryStatus(ctx, tenantID, entryID, StatusPosted, &actor, &postedAt); err != nil {
			return err
		}
		if err := propagateBalances(ctx, tx, tenantID, lines, accts); err != nil {
			return err
		}
		entry = current
		entry.Status = StatusPosted
		entry.PostedBy = &actor
		entry.PostedAt = &postedAt
		entry.Lines = lines
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, tenantID, actorID, "journal.post_draft", entryID, map[string]any{"entry_number": entry.EntryNumber})
	return entry, nil
}

// Reverse creates the mirror entry that exactly negates a posted entry and
// marks the original reversed, all in one transaction. The reversal is dated
// now, not on the original date.
func (s *Service) Reverse(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	reversal, err := s.reverseOnce(ctx, input)
	if errors.Is(err, ledgershared.ErrEntryNumberConflict) {
		reversal, err = s.reverseOnce(ctx, input)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "journal.reverse", input.EntryID, map[string]any{
		"reversal_id":     reversal.ID.String(),
		"reversal_number": reversal.EntryNumber,
	})
	return reversal, nil
}

func (s *Service) reverseOnce(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == uuid.Nil {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		original, err := tx.GetEntryForUpdate(ctx, input.TenantID, input.EntryID)
		if err != nil {
			return err
		}
		switch original.Status {
		case StatusReversed:
			return ledgershared.ErrAlreadyReversed
		case StatusPosted:
			// ok
		default:
			return fmt.Errorf("%w: draft entries are deleted, not reversed", ledgershared.ErrInvalidTransition)
		}
		lines, err := tx.GetLines(ctx, input.TenantID, input.EntryID)
		if err != nil {
			return err
		}
		description := input.Description
		if description == "" {
			description = fmt.Sprintf("Reversal of %s", original.EntryNumber)
		}
		posting := PostingInput{
			TenantID:        input.TenantID,
			ActorID:         input.ActorID,
			Date:            s.now(),
			Reference:       original.Reference,
			Description:     description,
			Status:          StatusPosted,
			SourceType:      "REVERSAL",
			SourceID:        &original.ID,
			ReversesEntryID: &original.ID,
			Lines:           reverseLines(lines),
		}
		inserted, err := s.PostTx(ctx, tx, posting)
		if err != nil {
			return err
		}
		if err := tx.UpdateEntryStatus(ctx, input.TenantID, original.ID, StatusReversed, nil, nil); err != nil {
			return err
		}
		reversal = inserted
		return nil
	})
	return reversal, err
}

// DeleteDraft removes a draft entry with its lines. Posted entries are
// immutable; they can only be reversed.
func (s *Service) DeleteDraft(ctx context.Context, tenantID, actorID, entryID uuid.UUID) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.GetEntryForUpdate(ctx, tenantID, entryID)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: only drafts can be deleted", ledgershared.ErrInvalidTransition)
		}
		return tx.DeleteEntry(ctx, tenantID, entryID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "journal.delete_draft", entryID, nil)
	return nil
}

func (s *Service) record(ctx context.Context, tenantID, actorID uuid.UUID, action string, entryID uuid.UUID, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: entryID.String(),
		Meta:     meta,
		At:       s.now(),
	})
}

// propagateBalances applies the uniform sign convention to every affected
// account: debit-normal accounts grow by debit-credit, credit-normal by
// credit-debit.
func propagateBalances(ctx context.Context, tx Tx, tenantID uuid.UUID, lines []JournalLine, accts map[uuid.UUID]accounts.Account) error {
	for _, line := range lines {
		account, ok := accts[line.AccountID]
		if !ok {
			return ledgershared.ErrAccountNotFound
		}
		delta := accounts.BalanceDelta(account.Type, line.Debit, line.Credit)
		if delta.IsZero() {
			continue
		}
		if err := tx.ApplyBalanceDelta(ctx, tenantID, account.ID, delta); err != nil {
			return err
		}
	}
	return nil
}

func buildLines(entry JournalEntry, inputs []LineInput) []JournalLine {
	lines := make([]JournalLine, 0, len(inputs))
	for i, in := range inputs {
		lines = append(lines, JournalLine{
			ID:           uuid.New(),
			EntryID:      entry.ID,
			TenantID:     entry.TenantID,
			LineNo:       i + 1,
			AccountID:    in.AccountID,
			Debit:        in.Debit,
			Credit:       in.Credit,
			Description:  in.Description,
			CostCenterID: in.CostCenterID,
		})
	}
	return lines
}

// reverseLines mirrors each line with debit and credit swapped, keeping
// accounts, amounts, and cost centers.
func reverseLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Credit,
			Credit:       line.Debit,
			Description:  line.Description,
			CostCenterID: line.CostCenterID,
		})
	}
	return out
}

func toLineInputs(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			Description:  line.Description,
			CostCenterID: line.CostCenterID,
		})
	}
	return out
}

func journalLineAccountIDs(lines []JournalLine) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		ids = append(ids, line.AccountID)
	}
	return ids
}
