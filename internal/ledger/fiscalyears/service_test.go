package fiscalyears

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/0x3b3fc/erp-pro-sub001/internal/ledger/shared"
)

type memoryFiscalYears struct {
	years []FiscalYear
}

func (m *memoryFiscalYears) FindOpenByDate(ctx context.Context, tenantID uuid.UUID, date time.Time) (FiscalYear, error) {
	for _, fy := range m.years {
		if fy.TenantID == tenantID && fy.Status == StatusOpen && fy.Contains(date) {
			return fy, nil
		}
	}
	return FiscalYear{}, shared.ErrNoOpenFiscalYear
}

func (m *memoryFiscalYears) List(ctx context.Context, tenantID uuid.UUID) ([]FiscalYear, error) {
	var out []FiscalYear
	for _, fy := range m.years {
		if fy.TenantID == tenantID {
			out = append(out, fy)
		}
	}
	return out, nil
}

func (m *memoryFiscalYears) Insert(ctx context.Context, fy FiscalYear) (FiscalYear, error) {
	m.years = append(m.years, fy)
	return fy, nil
}

func (m *memoryFiscalYears) Overlaps(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (bool, error) {
	for _, fy := range m.years {
		if fy.TenantID != tenantID {
			continue
		}
		if !start.After(fy.EndDate) && !end.Before(fy.StartDate) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryFiscalYears) Close(ctx context.Context, tenantID, id uuid.UUID, closedAt time.Time) error {
	for i, fy := range m.years {
		if fy.TenantID == tenantID && fy.ID == id && fy.Status == StatusOpen {
			m.years[i].Status = StatusClosed
			m.years[i].ClosedAt = &closedAt
			return nil
		}
	}
	return shared.ErrNoOpenFiscalYear
}

func day(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

func TestResolveOpenGatesOnDateAndStatus(t *testing.T) {
	repo := &memoryFiscalYears{}
	service := NewService(repo)
	tenantID := uuid.New()

	fy, err := service.Create(context.Background(), tenantID, "FY 2025", day(2025, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)
	require.Equal(t, StatusOpen, fy.Status)

	got, err := service.ResolveOpen(context.Background(), tenantID, day(2025, 6, 15))
	require.NoError(t, err)
	require.Equal(t, fy.ID, got.ID)

	// Boundary dates are inside the window.
	_, err = service.ResolveOpen(context.Background(), tenantID, day(2025, 1, 1))
	require.NoError(t, err)
	_, err = service.ResolveOpen(context.Background(), tenantID, day(2025, 12, 31))
	require.NoError(t, err)

	_, err = service.ResolveOpen(context.Background(), tenantID, day(2026, 1, 1))
	require.ErrorIs(t, err, shared.ErrNoOpenFiscalYear)

	// Another tenant's year does not leak.
	_, err = service.ResolveOpen(context.Background(), uuid.New(), day(2025, 6, 15))
	require.ErrorIs(t, err, shared.ErrNoOpenFiscalYear)

	require.NoError(t, service.Close(context.Background(), tenantID, fy.ID))
	_, err = service.ResolveOpen(context.Background(), tenantID, day(2025, 6, 15))
	require.ErrorIs(t, err, shared.ErrNoOpenFiscalYear)
}

func TestCreateRejectsOverlap(t *testing.T) {
	repo := &memoryFiscalYears{}
	service := NewService(repo)
	tenantID := uuid.New()

	_, err := service.Create(context.Background(), tenantID, "FY 2025", day(2025, 1, 1), day(2025, 12, 31))
	require.NoError(t, err)

	_, err = service.Create(context.Background(), tenantID, "FY 2025 H2", day(2025, 7, 1), day(2026, 6, 30))
	require.ErrorIs(t, err, shared.ErrFiscalYearOverlap)

	_, err = service.Create(context.Background(), tenantID, "FY 2026", day(2026, 1, 1), day(2026, 12, 31))
	require.NoError(t, err)

	_, err = service.Create(context.Background(), tenantID, "Backwards", day(2027, 12, 31), day(2027, 1, 1))
	require.Error(t, err)
}
