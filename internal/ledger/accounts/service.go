package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

// CreateInput groups fields for a new account.
type CreateInput struct {
	TenantID uuid.UUID
	Code     string
	Name     string
	Type     AccountType
	ParentID *uuid.UUID
	IsHeader bool
	IsSystem bool
}

// UpdateInput groups mutable fields of an existing account.
type UpdateInput struct {
	TenantID uuid.UUID
	ID       uuid.UUID
	Code     string
	Name     string
	ParentID *uuid.UUID
}

// Service maintains the chart of accounts tree. The balance column is never
// mutated here; only the posting engine touches it, inside its own
// transaction.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	return s.repo.List(ctx, tenantID)
}

func (s *Service) Get(ctx context.Context, tenantID, id uuid.UUID) (Account, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// Create inserts a new account. Level is derived from the parent: root
// accounts sit at level 1, children at parent.level+1.
func (s *Service) Create(ctx context.Context, input CreateInput) (Account, error) {
	if input.TenantID == uuid.Nil {
		return Account{}, errors.New("ledger: tenant required")
	}
	if input.Code == "" || input.Name == "" {
		return Account{}, errors.New("ledger: code and name required")
	}
	if !input.Type.Valid() {
		return Account{}, errors.New("ledger: unknown account type")
	}
	level := 1
	if input.ParentID != nil {
		parent, err := s.repo.Get(ctx, input.TenantID, *input.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != input.Type {
			return Account{}, errors.New("ledger: child must share parent account type")
		}
		level = parent.Level + 1
	}
	account := Account{
		ID:       uuid.New(),
		TenantID: input.TenantID,
		Code:     input.Code,
		Name:     input.Name,
		Type:     input.Type,
		ParentID: input.ParentID,
		Level:    level,
		IsHeader: input.IsHeader,
		IsSystem: input.IsSystem,
		Balance:  decimal.Zero,
	}
	return s.repo.Insert(ctx, account)
}

// Update renames or re-parents an account. System accounts are immutable, a
// re-parent must not close a cycle in the parent chain, must keep the parent
// type, and shifts the whole subtree so children stay at parent.level+1.
func (s *Service) Update(ctx context.Context, input UpdateInput) (Account, error) {
	current, err := s.repo.Get(ctx, input.TenantID, input.ID)
	if err != nil {
		return Account{}, err
	}
	if current.IsSystem {
		return Account{}, shared.ErrSystemAccount
	}
	level := 1
	if input.ParentID != nil {
		if *input.ParentID == input.ID {
			return Account{}, shared.ErrAccountCycle
		}
		parent, err := s.repo.Get(ctx, input.TenantID, *input.ParentID)
		if err != nil {
			return Account{}, err
		}
		if parent.Type != current.Type {
			return Account{}, errors.New("ledger: child must share parent account type")
		}
		if err := s.ensureNoCycle(ctx, input.TenantID, input.ID, parent); err != nil {
			return Account{}, err
		}
		level = parent.Level + 1
	}
	delta := level - current.Level
	current.Code = input.Code
	current.Name = input.Name
	current.ParentID = input.ParentID
	current.Level = level
	if err := s.repo.Update(ctx, current); err != nil {
		return Account{}, err
	}
	if delta != 0 {
		if err := s.repo.ShiftSubtreeLevels(ctx, input.TenantID, current.ID, delta); err != nil {
			return Account{}, err
		}
	}
	return current, nil
}

// Delete removes an account with no children and no postings.
func (s *Service) Delete(ctx context.Context, tenantID, id uuid.UUID) error {
	account, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if account.IsSystem {
		return shared.ErrSystemAccount
	}
	hasChildren, err := s.repo.HasChildren(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if hasChildren {
		return errors.New("ledger: account has children")
	}
	hasPostings, err := s.repo.HasPostings(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if hasPostings {
		return errors.New("ledger: account has postings")
	}
	return s.repo.Delete(ctx, tenantID, id)
}

// ensureNoCycle walks the candidate parent chain up to the root and fails if
// it passes through the account being moved.
func (s *Service) ensureNoCycle(ctx context.Context, tenantID, accountID uuid.UUID, parent Account) error {
	node := parent
	for {
		if node.ID == accountID {
			return shared.ErrAccountCycle
		}
		if node.ParentID == nil {
			return nil
		}
		next, err := s.repo.Get(ctx, tenantID, *node.ParentID)
		if err != nil {
			return err
		}
		node = next
	}
}
