package refresh

import (
	"context"
	"fmt"

	"outagebot/internal/schedule"
)

// Source is where published schedules come from.
type Source interface {
	// FetchPageFingerprintInput returns only the schedule-relevant text of
	// the publication, used to detect changes cheaply.
	FetchPageFingerprintInput(ctx context.Context) (string, error)
	// FetchRawSchedule returns one DaySchedule per published date, before
	// sanitizing and the midnight merge.
	FetchRawSchedule(ctx context.Context) ([]schedule.DaySchedule, error)
}

// SourceFetchError is a network, timeout or parse failure of the Source.
// The cycle is a no-op and is retried on the next interval.
type SourceFetchError struct {
	Stage string // "fingerprint" or "schedule"
	Err   error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("source fetch (%s): %v", e.Stage, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }
