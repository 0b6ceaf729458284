// Package quota tracks how many domains the engine has issued per UTC day,
// backing the daily half of the batch scheduler's quota arithmetic. The
// project-wide half comes from live site occupancy and needs no store.
package quota

import (
	"context"
	"time"
)

// DayKey buckets a moment into the UTC day its issuance counts under.
// Issuance near midnight counts toward the day the submission started.
func DayKey(at time.Time) string {
	return at.UTC().Format("2006-01-02")
}

// Store counts issued domains per day.
type Store interface {
	// IssuedOn returns the count recorded for a day, zero when the day has
	// no entry.
	IssuedOn(ctx context.Context, day string) (int, error)

	// AddIssued adds n to a day's count and returns the new total.
	AddIssued(ctx context.Context, day string, n int) (int, error)
}
