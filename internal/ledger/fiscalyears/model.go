package fiscalyears

import (
	"time"

	"github.com/google/uuid"
)

// Status enumerates fiscal year states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// FiscalYear represents a tenant accounting period window.
type FiscalYear struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    Status
	ClosedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DateOnly strips the clock from a timestamp. Fiscal year bounds are DATE
// columns; callers must normalise before comparing or the time of day pushes
// a boundary-day timestamp past end_date at midnight.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Contains reports whether date falls inside the [start, end] window. The
// comparison is exact, matching the SQL gate; pass dates through DateOnly.
func (fy FiscalYear) Contains(date time.Time) bool {
	return !date.Before(fy.StartDate) && !date.After(fy.EndDate)
}
