package journals

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/accounts"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/fiscalyears"
	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
	appshared "github.com/0x3b3fc/erp-pro-sub001/internal/shared"
)

// memoryLedger implements Repository and Tx against maps so the posting
// algorithm can run without a database.
type memoryLedger struct {
	accounts     map[uuid.UUID]accounts.Account
	fiscalYears  []fiscalyears.FiscalYear
	entries      map[uuid.UUID]JournalEntry
	lines        map[uuid.UUID][]JournalLine
	sequences    map[string]int64
	entryNumbers map[string]bool

	// conflictNext makes the next N entry inserts fail with a number
	// conflict, simulating a concurrent writer winning the unique index.
	conflictNext int
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{
		accounts:     make(map[uuid.UUID]accounts.Account),
		entries:      make(map[uuid.UUID]JournalEntry),
		lines:        make(map[uuid.UUID][]JournalLine),
		sequences:    make(map[string]int64),
		entryNumbers: make(map[string]bool),
	}
}

func (m *memoryLedger) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, entry := range m.entries {
		if entry.TenantID == tenantID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (m *memoryLedger) GetWithLines(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error) {
	entry, err := m.GetEntryForUpdate(ctx, tenantID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Lines = append([]JournalLine(nil), m.lines[entryID]...)
	return entry, nil
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return fn(ctx, m)
}

func (m *memoryLedger) GetOpenFiscalYear(ctx context.Context, tenantID uuid.UUID, date time.Time) (fiscalyears.FiscalYear, error) {
	for _, fy := range m.fiscalYears {
		if fy.TenantID == tenantID && fy.Status == fiscalyears.StatusOpen && fy.Contains(date) {
			return fy, nil
		}
	}
	return fiscalyears.FiscalYear{}, shared.ErrNoOpenFiscalYear
}

func (m *memoryLedger) GetAccountsForUpdate(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]accounts.Account, error) {
	out := make(map[uuid.UUID]accounts.Account, len(ids))
	for _, id := range ids {
		if account, ok := m.accounts[id]; ok && account.TenantID == tenantID {
			out[id] = account
		}
	}
	return out, nil
}

func (m *memoryLedger) NextEntryNumber(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	key := tenantID.String()
	m.sequences[key]++
	return m.sequences[key], nil
}

func (m *memoryLedger) InsertEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	if m.conflictNext > 0 {
		m.conflictNext--
		return JournalEntry{}, shared.ErrEntryNumberConflict
	}
	key := entry.TenantID.String() + "|" + entry.EntryNumber
	if m.entryNumbers[key] {
		return JournalEntry{}, shared.ErrEntryNumberConflict
	}
	m.entryNumbers[key] = true
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	m.entries[entry.ID] = entry
	return entry, nil
}

func (m *memoryLedger) InsertLines(ctx context.Context, lines []JournalLine) error {
	for _, line := range lines {
		m.lines[line.EntryID] = append(m.lines[line.EntryID], line)
	}
	return nil
}

func (m *memoryLedger) ApplyBalanceDelta(ctx context.Context, tenantID, accountID uuid.UUID, delta decimal.Decimal) error {
	account, ok := m.accounts[accountID]
	if !ok || account.TenantID != tenantID {
		return shared.ErrAccountNotFound
	}
	account.Balance = account.Balance.Add(delta)
	m.accounts[accountID] = account
	return nil
}

func (m *memoryLedger) GetEntryForUpdate(ctx context.Context, tenantID, entryID uuid.UUID) (JournalEntry, error) {
	entry, ok := m.entries[entryID]
	if !ok || entry.TenantID != tenantID {
		return JournalEntry{}, shared.ErrEntryNotFound
	}
	return entry, nil
}

func (m *memoryLedger) GetLines(ctx context.Context, tenantID, entryID uuid.UUID) ([]JournalLine, error) {
	return append([]JournalLine(nil), m.lines[entryID]...), nil
}

func (m *memoryLedger) UpdateEntryStatus(ctx context.Context, tenantID, entryID uuid.UUID, status EntryStatus, postedBy *uuid.UUID, postedAt *time.Time) error {
	entry, ok := m.entries[entryID]
	if !ok || entry.TenantID != tenantID {
		return shared.ErrEntryNotFound
	}
	entry.Status = status
	if postedBy != nil {
		entry.PostedBy = postedBy
	}
	if postedAt != nil {
		entry.PostedAt = postedAt
	}
	m.entries[entryID] = entry
	return nil
}

func (m *memoryLedger) DeleteEntry(ctx context.Context, tenantID, entryID uuid.UUID) error {
	entry, ok := m.entries[entryID]
	if !ok || entry.TenantID != tenantID {
		return shared.ErrEntryNotFound
	}
	delete(m.entries, entryID)
	delete(m.lines, entryID)
	return nil
}

type memoryAudit struct {
	logs []appshared.AuditLog
}

func (a *memoryAudit) Record(ctx context.Context, log appshared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type ledgerFixture struct {
	repo     *memoryLedger
	audit    *memoryAudit
	service  *Service
	tenantID uuid.UUID
	actorID  uuid.UUID

	cash    accounts.Account
	payable accounts.Account
	equity  accounts.Account
	revenue accounts.Account
	expense accounts.Account
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	repo := newMemoryLedger()
	audit := &memoryAudit{}
	f := &ledgerFixture{
		repo:     repo,
		audit:    audit,
		service:  NewService(repo, audit),
		tenantID: uuid.New(),
		actorID:  uuid.New(),
	}
	f.service.WithNow(func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) })

	repo.fiscalYears = append(repo.fiscalYears, fiscalyears.FiscalYear{
		ID:        uuid.New(),
		TenantID:  f.tenantID,
		Name:      "FY 2025",
		StartDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:    fiscalyears.StatusOpen,
	})

	f.cash = f.addAccount("1010", accounts.AccountTypeAsset)
	f.payable = f.addAccount("2010", accounts.AccountTypeLiability)
	f.equity = f.addAccount("3010", accounts.AccountTypeEquity)
	f.revenue = f.addAccount("4000", accounts.AccountTypeRevenue)
	f.expense = f.addAccount("5000", accounts.AccountTypeExpense)
	return f
}

func (f *ledgerFixture) addAccount(code string, accountType accounts.AccountType) accounts.Account {
	account := accounts.Account{
		ID:       uuid.New(),
		TenantID: f.tenantID,
		Code:     code,
		Name:     "Account " + code,
		Type:     accountType,
		Balance:  decimal.Zero,
	}
	f.repo.accounts[account.ID] = account
	return account
}

func (f *ledgerFixture) balance(id uuid.UUID) decimal.Decimal {
	return f.repo.accounts[id].Balance
}

func (f *ledgerFixture) postingInput(status EntryStatus, lines []LineInput) PostingInput {
	return PostingInput{
		TenantID:    f.tenantID,
		ActorID:     f.actorID,
		Date:        time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		Description: "test entry",
		Status:      status,
		Lines:       lines,
	}
}

func TestPostPropagatesSignedBalances(t *testing.T) {
	f := newLedgerFixture(t)

	// Debit grows asset and expense; credit grows liability, equity, revenue.
	entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("1000")},
		{AccountID: f.expense.ID, Debit: amount("400")},
		{AccountID: f.payable.ID, Credit: amount("500")},
		{AccountID: f.equity.ID, Credit: amount("300")},
		{AccountID: f.revenue.ID, Credit: amount("600")},
	}))
	require.NoError(t, err)
	require.Equal(t, StatusPosted, entry.Status)
	require.Equal(t, "JE-000001", entry.EntryNumber)
	require.True(t, entry.TotalDebit.Equal(amount("1400")))
	require.True(t, entry.TotalCredit.Equal(amount("1400")))
	require.NotNil(t, entry.PostedBy)
	require.NotNil(t, entry.PostedAt)
	require.Len(t, entry.Lines, 5)
	require.Equal(t, 1, entry.Lines[0].LineNo)
	require.Equal(t, 5, entry.Lines[4].LineNo)

	require.True(t, f.balance(f.cash.ID).Equal(amount("1000")))
	require.True(t, f.balance(f.expense.ID).Equal(amount("400")))
	require.True(t, f.balance(f.payable.ID).Equal(amount("500")))
	require.True(t, f.balance(f.equity.ID).Equal(amount("300")))
	require.True(t, f.balance(f.revenue.ID).Equal(amount("600")))

	// Mirror posting drives every balance back to zero.
	_, err = f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Credit: amount("1000")},
		{AccountID: f.expense.ID, Credit: amount("400")},
		{AccountID: f.payable.ID, Debit: amount("500")},
		{AccountID: f.equity.ID, Debit: amount("300")},
		{AccountID: f.revenue.ID, Debit: amount("600")},
	}))
	require.NoError(t, err)
	for _, id := range []uuid.UUID{f.cash.ID, f.expense.ID, f.payable.ID, f.equity.ID, f.revenue.ID} {
		require.True(t, f.balance(id).IsZero(), "account %s", id)
	}
}

func TestEntryNumbersAreSequential(t *testing.T) {
	f := newLedgerFixture(t)

	for i := 1; i <= 3; i++ {
		entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
			{AccountID: f.cash.ID, Debit: amount("10")},
			{AccountID: f.revenue.ID, Credit: amount("10")},
		}))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("JE-%06d", i), entry.EntryNumber)
	}
}

func TestEntryNumbersContinueAcrossFiscalYears(t *testing.T) {
	f := newLedgerFixture(t)
	f.repo.fiscalYears = append(f.repo.fiscalYears, fiscalyears.FiscalYear{
		ID:        uuid.New(),
		TenantID:  f.tenantID,
		Name:      "FY 2026",
		StartDate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:    fiscalyears.StatusOpen,
	})

	lines := []LineInput{
		{AccountID: f.cash.ID, Debit: amount("10")},
		{AccountID: f.revenue.ID, Credit: amount("10")},
	}
	for i := 1; i <= 2; i++ {
		entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, lines))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("JE-%06d", i), entry.EntryNumber)
	}

	// The counter spans fiscal years; a restart at one would collide with
	// JE-000001 from the prior year and exhaust the single retry.
	input := f.postingInput(StatusPosted, lines)
	input.Date = time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	entry, err := f.service.Post(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, "JE-000003", entry.EntryNumber)
}

func TestPostAcceptsTimestampOnLastFiscalDay(t *testing.T) {
	f := newLedgerFixture(t)

	// end_date is a date; a clock component must not push the comparison
	// past midnight of the final day.
	input := f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	})
	input.Date = time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC)
	entry, err := f.service.Post(context.Background(), input)
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), entry.Date)
}

func TestReverseOnLastFiscalDay(t *testing.T) {
	f := newLedgerFixture(t)

	entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("250")},
		{AccountID: f.revenue.ID, Credit: amount("250")},
	}))
	require.NoError(t, err)

	// Reversals are dated at the current time; late on the year's last day
	// the entry must still land inside the open year.
	f.service.WithNow(func() time.Time { return time.Date(2025, 12, 31, 17, 30, 0, 0, time.UTC) })
	reversal, err := f.service.Reverse(context.Background(), ReverseInput{
		TenantID: f.tenantID,
		ActorID:  f.actorID,
		EntryID:  entry.ID,
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), reversal.Date)
	require.True(t, f.balance(f.cash.ID).IsZero())
	require.True(t, f.balance(f.revenue.ID).IsZero())
}

func TestPostDraftLeavesBalancesUntouched(t *testing.T) {
	f := newLedgerFixture(t)

	entry, err := f.service.Post(context.Background(), f.postingInput(StatusDraft, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("500")},
		{AccountID: f.revenue.ID, Credit: amount("500")},
	}))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, entry.Status)
	require.Nil(t, entry.PostedBy)
	require.True(t, f.balance(f.cash.ID).IsZero())
	require.True(t, f.balance(f.revenue.ID).IsZero())

	posted, err := f.service.PostDraft(context.Background(), f.tenantID, f.actorID, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	require.Equal(t, f.actorID, *posted.PostedBy)
	require.True(t, f.balance(f.cash.ID).Equal(amount("500")))
	require.True(t, f.balance(f.revenue.ID).Equal(amount("500")))

	// A posted entry cannot be posted again.
	_, err = f.service.PostDraft(context.Background(), f.tenantID, f.actorID, entry.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPostRejectsDateOutsideOpenFiscalYear(t *testing.T) {
	f := newLedgerFixture(t)

	input := f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	})
	input.Date = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)
	_, err := f.service.Post(context.Background(), input)
	require.ErrorIs(t, err, shared.ErrNoOpenFiscalYear)
}

func TestPostRetriesOnceAfterNumberConflict(t *testing.T) {
	f := newLedgerFixture(t)
	f.repo.conflictNext = 1

	entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	}))
	require.NoError(t, err)
	// The retry re-allocates, so the first number is burned.
	require.Equal(t, "JE-000002", entry.EntryNumber)
	require.Len(t, f.repo.entries, 1)

	f.repo.conflictNext = 2
	_, err = f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	}))
	require.ErrorIs(t, err, shared.ErrEntryNumberConflict)
}

func TestReverseRestoresBalancesExactly(t *testing.T) {
	f := newLedgerFixture(t)

	entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("350.75")},
		{AccountID: f.revenue.ID, Credit: amount("350.75")},
	}))
	require.NoError(t, err)

	reversal, err := f.service.Reverse(context.Background(), ReverseInput{
		TenantID: f.tenantID,
		ActorID:  f.actorID,
		EntryID:  entry.ID,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPosted, reversal.Status)
	require.Equal(t, "REVERSAL", reversal.SourceType)
	require.NotNil(t, reversal.ReversesEntryID)
	require.Equal(t, entry.ID, *reversal.ReversesEntryID)
	require.Equal(t, "Reversal of JE-000001", reversal.Description)
	// Reversal carries the service clock date, not the original date.
	require.Equal(t, time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC), reversal.Date)

	require.Len(t, reversal.Lines, 2)
	require.Equal(t, f.cash.ID, reversal.Lines[0].AccountID)
	require.True(t, reversal.Lines[0].Credit.Equal(amount("350.75")))
	require.True(t, reversal.Lines[1].Debit.Equal(amount("350.75")))

	require.True(t, f.balance(f.cash.ID).IsZero())
	require.True(t, f.balance(f.revenue.ID).IsZero())

	original, err := f.service.Get(context.Background(), f.tenantID, entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReversed, original.Status)

	// Reversed is terminal.
	_, err = f.service.Reverse(context.Background(), ReverseInput{
		TenantID: f.tenantID,
		ActorID:  f.actorID,
		EntryID:  entry.ID,
	})
	require.ErrorIs(t, err, shared.ErrAlreadyReversed)
}

func TestReverseRejectsDrafts(t *testing.T) {
	f := newLedgerFixture(t)

	draft, err := f.service.Post(context.Background(), f.postingInput(StatusDraft, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	}))
	require.NoError(t, err)

	_, err = f.service.Reverse(context.Background(), ReverseInput{
		TenantID: f.tenantID,
		ActorID:  f.actorID,
		EntryID:  draft.ID,
	})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestDeleteDraft(t *testing.T) {
	f := newLedgerFixture(t)

	draft, err := f.service.Post(context.Background(), f.postingInput(StatusDraft, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	}))
	require.NoError(t, err)

	require.NoError(t, f.service.DeleteDraft(context.Background(), f.tenantID, f.actorID, draft.ID))
	_, err = f.service.Get(context.Background(), f.tenantID, draft.ID)
	require.ErrorIs(t, err, shared.ErrEntryNotFound)

	posted, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	}))
	require.NoError(t, err)
	err = f.service.DeleteDraft(context.Background(), f.tenantID, f.actorID, posted.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestPostRecordsAuditTrail(t *testing.T) {
	f := newLedgerFixture(t)

	entry, err := f.service.Post(context.Background(), f.postingInput(StatusPosted, []LineInput{
		{AccountID: f.cash.ID, Debit: amount("100")},
		{AccountID: f.revenue.ID, Credit: amount("100")},
	}))
	require.NoError(t, err)

	require.Len(t, f.audit.logs, 1)
	log := f.audit.logs[0]
	require.Equal(t, "journal.post", log.Action)
	require.Equal(t, entry.ID.String(), log.EntityID)
	require.Equal(t, f.tenantID, log.TenantID)
}
