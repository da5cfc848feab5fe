package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"outagebot/internal/metrics"
	"outagebot/internal/schedule"
	"outagebot/internal/snapshot"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

// DayStatus is whether a date has any real outage after normalization.
type DayStatus struct {
	Date          string
	HasAnyOutages bool
}

// Result is the outcome of one cycle.
type Result struct {
	CycleID     string
	Fingerprint string
	// Changed is true when the diff reported at least one changed key.
	Changed   bool
	Changes   []snapshot.Change
	DayStatus []DayStatus
}

// Refresher runs refresh cycles against one Source.
type Refresher struct {
	src  Source
	gate *Gate
	diff *snapshot.Engine
	log  logx.Logger
}

func New(src Source, store storage.Store, log logx.Logger) *Refresher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Refresher{
		src:  src,
		gate: NewGate(store),
		diff: snapshot.New(store, log.With(logx.String("comp", "snapshot"))),
		log:  log,
	}
}

// RunOnce runs one cycle. On a SourceFetchError nothing is persisted. The
// fingerprint is committed only after every snapshot has been written, so
// a cycle that fails part way is retried in full next time.
func (r *Refresher) RunOnce(ctx context.Context) (res Result, err error) {
	started := time.Now()
	res.CycleID = uuid.NewString()
	log := r.log.With(logx.String("cycle", res.CycleID))
	defer func() {
		metrics.RefreshDuration.Observe(time.Since(started).Seconds())
		metrics.RefreshCycles.WithLabelValues(cycleResult(res, err)).Inc()
	}()

	input, err := r.src.FetchPageFingerprintInput(ctx)
	if err != nil {
		return res, &SourceFetchError{Stage: "fingerprint", Err: err}
	}
	res.Fingerprint = Fingerprint(input)

	changed, err := r.gate.Changed(ctx, res.Fingerprint)
	if err != nil {
		return res, fmt.Errorf("read fingerprint: %w", err)
	}
	if !changed {
		log.Debug("page unchanged")
		return res, nil
	}

	raw, err := r.src.FetchRawSchedule(ctx)
	if err != nil {
		return res, &SourceFetchError{Stage: "schedule", Err: err}
	}

	clean, serr := schedule.Sanitize(raw)
	if serr != nil {
		log.Warn("dropped malformed schedule entries", logx.Err(serr))
	}
	days := schedule.Normalize(clean)

	res.Changes, err = r.diff.Apply(ctx, snapshot.Payloads(days))
	if err != nil {
		return res, err
	}
	res.Changed = len(res.Changes) > 0
	for _, d := range days {
		res.DayStatus = append(res.DayStatus, DayStatus{Date: d.Date, HasAnyOutages: d.HasAnyOutages()})
	}
	for _, c := range res.Changes {
		kind := "updated"
		if c.Appeared() {
			kind = "appeared"
		}
		metrics.SnapshotChanges.WithLabelValues(kind).Inc()
	}

	if err := r.gate.Commit(ctx, res.Fingerprint); err != nil {
		return res, fmt.Errorf("commit fingerprint: %w", err)
	}
	log.Info("schedule refreshed",
		logx.Int("days", len(days)),
		logx.Int("changes", len(res.Changes)),
	)
	return res, nil
}

func cycleResult(res Result, err error) string {
	switch {
	case err != nil:
		var sfe *SourceFetchError
		if errors.As(err, &sfe) {
			return "fetch_error"
		}
		return "error"
	case res.Changed:
		return "changed"
	case len(res.DayStatus) > 0:
		return "no_changes"
	default:
		return "unchanged"
	}
}
