package fiscalyears

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

// Service gates postings on the tenant's open fiscal year.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ResolveOpen returns the open fiscal year covering date, or
// shared.ErrNoOpenFiscalYear. The failure is fatal to a posting and is never
// retried.
func (s *Service) ResolveOpen(ctx context.Context, tenantID uuid.UUID, date time.Time) (FiscalYear, error) {
	if tenantID == uuid.Nil {
		return FiscalYear{}, errors.New("ledger: tenant required")
	}
	return s.repo.FindOpenByDate(ctx, tenantID, DateOnly(date))
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]FiscalYear, error) {
	return s.repo.List(ctx, tenantID)
}

// Create opens a new fiscal year after checking the range does not overlap
// an existing one for the tenant.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, name string, start, end time.Time) (FiscalYear, error) {
	if tenantID == uuid.Nil {
		return FiscalYear{}, errors.New("ledger: tenant required")
	}
	if name == "" {
		return FiscalYear{}, errors.New("ledger: fiscal year name required")
	}
	if !start.Before(end) {
		return FiscalYear{}, errors.New("ledger: start date must precede end date")
	}
	overlaps, err := s.repo.Overlaps(ctx, tenantID, start, end)
	if err != nil {
		return FiscalYear{}, err
	}
	if overlaps {
		return FiscalYear{}, shared.ErrFiscalYearOverlap
	}
	return s.repo.Insert(ctx, FiscalYear{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Name:      name,
		StartDate: start,
		EndDate:   end,
		Status:    StatusOpen,
	})
}

// Close marks the fiscal year closed; closed years reject further postings.
func (s *Service) Close(ctx context.Context, tenantID, id uuid.UUID) error {
	return s.repo.Close(ctx, tenantID, id, s.now())
}
