package alerts

import (
	"context"
	"sync/atomic"
	"time"

	"outagebot/internal/metrics"
	"outagebot/internal/notifier"
	"outagebot/internal/schedule"
	"outagebot/internal/snapshot"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

// Store is the state a tick reads and the ledger it writes.
type Store interface {
	storage.SnapshotStore
	storage.Ledger
	storage.Subscriptions
	storage.PrefsStore
}

type Config struct {
	Location        *time.Location
	EarlyTolerance  time.Duration
	CatchupBefore   time.Duration
	CatchupStartEnd time.Duration
	// PruneEvery runs the ledger purge on every n-th tick; 0 disables it.
	PruneEvery int
	Retention  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.EarlyTolerance <= 0 {
		c.EarlyTolerance = 30 * time.Second
	}
	if c.CatchupBefore <= 0 {
		c.CatchupBefore = 5 * time.Minute
	}
	if c.CatchupStartEnd <= 0 {
		c.CatchupStartEnd = 2 * time.Minute
	}
	if c.PruneEvery < 0 {
		c.PruneEvery = 0
	}
	if c.Retention <= 0 {
		c.Retention = 7 * 24 * time.Hour
	}
	return c
}

type Scheduler struct {
	cfg   Config
	store Store
	sink  notifier.Sink
	log   logx.Logger
	now   func() time.Time

	ticks atomic.Uint64
}

func New(cfg Config, store Store, sink notifier.Sink, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{cfg: cfg.withDefaults(), store: store, sink: sink, log: log, now: time.Now}
}

// SetClock replaces the time source.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

type lookup struct {
	windows []schedule.Window
	err     error
}

// tickState is scoped to one Tick.
type tickState struct {
	now  time.Time
	memo map[string]lookup
}

// Tick runs one scheduler pass. Failures for a single chat, queue or send
// are logged and skipped; only a failure to list subscriptions is
// returned.
func (s *Scheduler) Tick(ctx context.Context) error {
	n := s.ticks.Add(1)
	metrics.Ticks.Inc()
	if s.cfg.PruneEvery > 0 && n%uint64(s.cfg.PruneEvery) == 0 {
		if _, err := s.Prune(ctx); err != nil {
			s.log.Warn("ledger prune failed", logx.Err(err))
		}
	}

	ts := &tickState{now: s.now().In(s.cfg.Location), memo: map[string]lookup{}}
	today := schedule.DateOf(ts.now, s.cfg.Location)
	dates := []string{today}
	// Yesterday carries merged outages that end today.
	if d, err := schedule.AddDays(today, -1); err == nil {
		dates = append([]string{d}, dates...)
	}
	if d, err := schedule.AddDays(today, 1); err == nil {
		dates = append(dates, d)
	}

	subs, err := s.store.ListAllSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		prefs, err := s.store.GetPrefs(ctx, sub.ChatID)
		if err != nil {
			s.log.Warn("load prefs failed", logx.Int64("chat", sub.ChatID), logx.Err(err))
			continue
		}
		for _, queue := range sub.Queues {
			s.processQueue(ctx, ts, sub.ChatID, queue, prefs, dates)
		}
	}
	return nil
}

func (s *Scheduler) processQueue(ctx context.Context, ts *tickState, chatID int64, queue string, prefs schedule.Prefs, dates []string) {
	var all []schedule.Window
	for _, date := range dates {
		lk := s.windows(ctx, ts, queue, date)
		if lk.err != nil {
			metrics.QueueLookupErrors.Inc()
			s.log.Warn("queue skipped for this tick", logx.Int64("chat", chatID), logx.Err(lk.err))
			return
		}
		all = append(all, lk.windows...)
	}

	lead := time.Duration(prefs.LeadMinutes) * time.Minute
	for _, w := range all {
		candidates := []struct {
			typ     EventType
			enabled bool
			at      time.Time
			date    string
			catchup time.Duration
		}{
			{EventBefore, prefs.NotifyBefore, w.Start.Add(-lead), w.Date, s.cfg.CatchupBefore},
			{EventStart, prefs.NotifyStart, w.Start, w.Date, s.cfg.CatchupStartEnd},
			{EventEnd, prefs.NotifyEnd, w.End, schedule.DateOf(w.End, s.cfg.Location), s.cfg.CatchupStartEnd},
		}
		for _, c := range candidates {
			if !c.enabled || !s.inWindow(ts.now, c.at, c.catchup) {
				continue
			}
			if prefs.Quiet.Active(ts.now) {
				metrics.Notifications.WithLabelValues(string(c.typ), "quiet").Inc()
				continue
			}
			ev := storage.SentEvent{
				EventID:     EventID(chatID, queue, c.date, c.typ, c.at),
				ChatID:      chatID,
				Queue:       queue,
				Type:        string(c.typ),
				ScheduledAt: c.at,
			}
			s.fire(ctx, ev, messageFor(c.typ, queue, w, prefs.LeadMinutes))
		}
	}
}

// inWindow reports whether now is within [at-early, at+catchup].
func (s *Scheduler) inWindow(now, at time.Time, catchup time.Duration) bool {
	return !now.Before(at.Add(-s.cfg.EarlyTolerance)) && !now.After(at.Add(catchup))
}

func (s *Scheduler) fire(ctx context.Context, ev storage.SentEvent, text string) {
	log := s.log.With(logx.String("event", ev.EventID))
	sent, err := s.store.WasSent(ctx, ev.EventID)
	if err != nil {
		log.Warn("ledger lookup failed", logx.Err(err))
		return
	}
	if sent {
		metrics.Notifications.WithLabelValues(ev.Type, "dedup").Inc()
		return
	}
	if err := s.sink.Send(ctx, ev.ChatID, text, nil); err != nil {
		// Not recorded, so a later tick inside the catch-up window retries.
		metrics.Notifications.WithLabelValues(ev.Type, "failed").Inc()
		log.Warn("notification not delivered", logx.Err(err))
		return
	}
	metrics.Notifications.WithLabelValues(ev.Type, "sent").Inc()
	ev.SentAt = s.now()
	if err := s.store.MarkSent(ctx, ev); err != nil {
		log.Error("mark sent failed", logx.Err(err))
		return
	}
	log.Debug("notification sent")
}

// windows loads and resolves a queue's payload once per tick.
func (s *Scheduler) windows(ctx context.Context, ts *tickState, queue, date string) lookup {
	key := date + "|" + queue
	if lk, ok := ts.memo[key]; ok {
		return lk
	}
	var lk lookup
	p, ok, err := snapshot.Load(ctx, s.store, date, queue)
	switch {
	case err != nil:
		lk.err = &QueueLookupError{Queue: queue, Date: date, Err: err}
	case ok:
		ws, werr := p.Windows(s.cfg.Location)
		if werr != nil {
			s.log.Debug("malformed intervals skipped",
				logx.String("queue", queue), logx.String("date", date), logx.Err(werr))
		}
		lk.windows = ws
	}
	ts.memo[key] = lk
	return lk
}

// Prune removes ledger rows older than the retention window.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	n, err := s.store.PruneSent(ctx, s.now().Add(-s.cfg.Retention))
	if err != nil {
		return 0, err
	}
	metrics.LedgerPruned.Add(float64(n))
	if n > 0 {
		s.log.Info("ledger pruned", logx.Int64("rows", n))
	}
	return n, nil
}
