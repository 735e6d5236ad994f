package accounts

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

type memoryAccounts struct {
	byID     map[uuid.UUID]Account
	postings map[uuid.UUID]bool
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{
		byID:     make(map[uuid.UUID]Account),
		postings: make(map[uuid.UUID]bool),
	}
}

func (m *memoryAccounts) List(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	var out []Account
	for _, a := range m.byID {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryAccounts) Get(ctx context.Context, tenantID, id uuid.UUID) (Account, error) {
	a, ok := m.byID[id]
	if !ok || a.TenantID != tenantID {
		return Account{}, shared.ErrAccountNotFound
	}
	return a, nil
}

func (m *memoryAccounts) GetByCode(ctx context.Context, tenantID uuid.UUID, code string) (Account, error) {
	for _, a := range m.byID {
		if a.TenantID == tenantID && a.Code == code {
			return a, nil
		}
	}
	return Account{}, shared.ErrAccountNotFound
}

func (m *memoryAccounts) Insert(ctx context.Context, account Account) (Account, error) {
	for _, a := range m.byID {
		if a.TenantID == account.TenantID && a.Code == account.Code {
			return Account{}, shared.ErrDuplicateCode
		}
	}
	m.byID[account.ID] = account
	return account, nil
}

func (m *memoryAccounts) Update(ctx context.Context, account Account) error {
	if _, ok := m.byID[account.ID]; !ok {
		return shared.ErrAccountNotFound
	}
	m.byID[account.ID] = account
	return nil
}

func (m *memoryAccounts) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	a, ok := m.byID[id]
	if !ok || a.TenantID != tenantID {
		return shared.ErrAccountNotFound
	}
	delete(m.byID, id)
	return nil
}

func (m *memoryAccounts) ShiftSubtreeLevels(ctx context.Context, tenantID, rootID uuid.UUID, delta int) error {
	if delta == 0 {
		return nil
	}
	frontier := []uuid.UUID{rootID}
	for len(frontier) > 0 {
		var next []uuid.UUID
		for id, a := range m.byID {
			if a.TenantID != tenantID || a.ParentID == nil {
				continue
			}
			for _, parent := range frontier {
				if *a.ParentID == parent {
					a.Level += delta
					m.byID[id] = a
					next = append(next, id)
				}
			}
		}
		frontier = next
	}
	return nil
}

func (m *memoryAccounts) HasChildren(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	for _, a := range m.byID {
		if a.TenantID == tenantID && a.ParentID != nil && *a.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryAccounts) HasPostings(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	return m.postings[id], nil
}

func TestCreateDerivesLevelFromParent(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	root, err := service.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Code:     "1000",
		Name:     "Assets",
		Type:     AccountTypeAsset,
		IsHeader: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, root.Level)
	require.True(t, root.Balance.IsZero())

	child, err := service.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Code:     "1010",
		Name:     "Cash",
		Type:     AccountTypeAsset,
		ParentID: &root.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 2, child.Level)

	grandchild, err := service.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Code:     "1011",
		Name:     "Petty Cash",
		Type:     AccountTypeAsset,
		ParentID: &child.ID,
	})
	require.NoError(t, err)
	require.Equal(t, 3, grandchild.Level)
}

func TestCreateRejectsTypeMismatchWithParent(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	root, err := service.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Code:     "1000",
		Name:     "Assets",
		Type:     AccountTypeAsset,
		IsHeader: true,
	})
	require.NoError(t, err)

	_, err = service.Create(context.Background(), CreateInput{
		TenantID: tenantID,
		Code:     "4000",
		Name:     "Revenue",
		Type:     AccountTypeRevenue,
		ParentID: &root.ID,
	})
	require.Error(t, err)
}

func TestCreateRejectsDuplicateCodePerTenant(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	_, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1010", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	_, err = service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1010", Name: "Cash Again", Type: AccountTypeAsset})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)

	// Same code under another tenant is fine.
	_, err = service.Create(context.Background(), CreateInput{TenantID: uuid.New(), Code: "1010", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)
}

func TestUpdateGuardsSystemAccountsAndCycles(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	system, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "2100", Name: "Accounts Payable", Type: AccountTypeLiability, IsSystem: true})
	require.NoError(t, err)
	_, err = service.Update(context.Background(), UpdateInput{TenantID: tenantID, ID: system.ID, Code: "2100", Name: "Renamed"})
	require.ErrorIs(t, err, shared.ErrSystemAccount)

	parent, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1000", Name: "Assets", Type: AccountTypeAsset, IsHeader: true})
	require.NoError(t, err)
	child, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1010", Name: "Cash", Type: AccountTypeAsset, ParentID: &parent.ID})
	require.NoError(t, err)

	// Re-parenting the root under its own descendant closes a loop.
	_, err = service.Update(context.Background(), UpdateInput{TenantID: tenantID, ID: parent.ID, Code: "1000", Name: "Assets", ParentID: &child.ID})
	require.ErrorIs(t, err, shared.ErrAccountCycle)

	_, err = service.Update(context.Background(), UpdateInput{TenantID: tenantID, ID: child.ID, Code: "1010", Name: "Cash", ParentID: &child.ID})
	require.ErrorIs(t, err, shared.ErrAccountCycle)
}

func TestUpdateReparentShiftsSubtreeLevels(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	root, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1000", Name: "Assets", Type: AccountTypeAsset, IsHeader: true})
	require.NoError(t, err)
	group, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1100", Name: "Current Assets", Type: AccountTypeAsset, ParentID: &root.ID, IsHeader: true})
	require.NoError(t, err)
	branch, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1110", Name: "Bank", Type: AccountTypeAsset, ParentID: &group.ID, IsHeader: true})
	require.NoError(t, err)
	leaf, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1111", Name: "Main Account", Type: AccountTypeAsset, ParentID: &branch.ID})
	require.NoError(t, err)
	require.Equal(t, 3, branch.Level)
	require.Equal(t, 4, leaf.Level)

	// Lifting the branch to the root shifts every descendant with it.
	moved, err := service.Update(context.Background(), UpdateInput{TenantID: tenantID, ID: branch.ID, Code: "1110", Name: "Bank", ParentID: &root.ID})
	require.NoError(t, err)
	require.Equal(t, 2, moved.Level)

	got, err := service.Get(context.Background(), tenantID, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.Level)

	// Detaching to a root keeps the invariant too.
	moved, err = service.Update(context.Background(), UpdateInput{TenantID: tenantID, ID: branch.ID, Code: "1110", Name: "Bank"})
	require.NoError(t, err)
	require.Equal(t, 1, moved.Level)
	got, err = service.Get(context.Background(), tenantID, leaf.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.Level)
}

func TestUpdateRejectsTypeMismatchWithNewParent(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	liabilities, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "2000", Name: "Liabilities", Type: AccountTypeLiability, IsHeader: true})
	require.NoError(t, err)
	cash, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1010", Name: "Cash", Type: AccountTypeAsset})
	require.NoError(t, err)

	_, err = service.Update(context.Background(), UpdateInput{TenantID: tenantID, ID: cash.ID, Code: "1010", Name: "Cash", ParentID: &liabilities.ID})
	require.Error(t, err)

	got, err := service.Get(context.Background(), tenantID, cash.ID)
	require.NoError(t, err)
	require.Nil(t, got.ParentID)
}

func TestDeleteGuards(t *testing.T) {
	repo := newMemoryAccounts()
	service := NewService(repo)
	tenantID := uuid.New()

	parent, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1000", Name: "Assets", Type: AccountTypeAsset, IsHeader: true})
	require.NoError(t, err)
	child, err := service.Create(context.Background(), CreateInput{TenantID: tenantID, Code: "1010", Name: "Cash", Type: AccountTypeAsset, ParentID: &parent.ID})
	require.NoError(t, err)

	err = service.Delete(context.Background(), tenantID, parent.ID)
	require.Error(t, err)

	repo.postings[child.ID] = true
	err = service.Delete(context.Background(), tenantID, child.ID)
	require.Error(t, err)

	repo.postings[child.ID] = false
	require.NoError(t, service.Delete(context.Background(), tenantID, child.ID))
	require.NoError(t, service.Delete(context.Background(), tenantID, parent.ID))
}
