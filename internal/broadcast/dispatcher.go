// Package broadcast reacts to a refresh cycle that changed stored payloads.
//
// Stage 1 tells every subscribed chat when today or tomorrow goes from no
// outages to some outages. Stage 2 tells each chat about changes to the
// queues it follows. Both are deduplicated through the sent-event ledger.
package broadcast

import (
	"context"
	"strconv"
	"strings"
	"time"

	"outagebot/internal/metrics"
	"outagebot/internal/notifier"
	"outagebot/internal/refresh"
	"outagebot/internal/schedule"
	"outagebot/internal/snapshot"
	"outagebot/internal/storage"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

const (
	EventDayOn       = "DAY_ON"
	EventQueueChange = "QUEUE_CHANGE"
)

// DayFlagKey is the cache key holding "1" or "0" for a date.
func DayFlagKey(date string) string { return "day_has_outages:" + date }

type Store interface {
	storage.Cache
	storage.Ledger
	storage.Subscriptions
	storage.PrefsStore
}

type Config struct {
	Location *time.Location
	// ArtifactMinStartHour is the earliest start hour at which a lone
	// merged interval is taken for a midnight-merge artifact.
	ArtifactMinStartHour int
}

type Dispatcher struct {
	cfg   Config
	store Store
	sink  notifier.Sink
	log   logx.Logger
	now   func() time.Time
}

func New(cfg Config, store Store, sink notifier.Sink, log logx.Logger) *Dispatcher {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.ArtifactMinStartHour <= 0 {
		cfg.ArtifactMinStartHour = 20
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{cfg: cfg, store: store, sink: sink, log: log, now: time.Now}
}

func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Handle runs both stages for one refresh result. Results without changes
// are ignored. Per-chat and Stage 1 failures are logged and day flags are
// persisted regardless. The returned error is only for failures that stop
// Stage 2.
func (d *Dispatcher) Handle(ctx context.Context, res refresh.Result) error {
	if !res.Changed || len(res.Changes) == 0 || len(res.DayStatus) == 0 {
		return nil
	}
	now := d.now().In(d.cfg.Location)
	today := schedule.DateOf(now, d.cfg.Location)
	tomorrow, err := schedule.AddDays(today, 1)
	if err != nil {
		return err
	}
	log := d.log.With(logx.String("cycle", res.CycleID))

	d.dayFlips(ctx, log, res, now, today, tomorrow)
	return d.queueChanges(ctx, log, res.Changes, now, today, tomorrow)
}

func (d *Dispatcher) dayFlips(ctx context.Context, log logx.Logger, res refresh.Result, now time.Time, today, tomorrow string) {
	for _, ds := range res.DayStatus {
		if ds.Date != today && ds.Date != tomorrow {
			continue
		}
		key := DayFlagKey(ds.Date)
		prev, _, err := d.store.GetValue(ctx, key)
		if err != nil {
			log.Warn("read day flag failed", logx.String("date", ds.Date), logx.Err(err))
			continue
		}

		if prev != "1" && ds.HasAnyOutages {
			dayChanges := changesOn(res.Changes, ds.Date)
			if ds.Date == tomorrow || d.anyOutageAhead(dayChanges, now) {
				if err := d.broadcastDayOn(ctx, log, ds.Date, ds.Date == tomorrow, dayVersion(dayChanges, res.Fingerprint), now); err != nil {
					log.Warn("day flip broadcast failed", logx.String("date", ds.Date), logx.Err(err))
				}
			}
		}

		flag := "0"
		if ds.HasAnyOutages {
			flag = "1"
		}
		if err := d.store.SetValue(ctx, key, flag); err != nil {
			log.Warn("persist day flag failed", logx.String("date", ds.Date), logx.Err(err))
		}
	}
}

func (d *Dispatcher) broadcastDayOn(ctx context.Context, log logx.Logger, date string, tomorrow bool, version string, now time.Time) error {
	subs, err := d.store.ListAllSubscriptions(ctx)
	if err != nil {
		return err
	}
	seen := map[int64]struct{}{}
	for _, sub := range subs {
		if _, dup := seen[sub.ChatID]; dup {
			continue
		}
		seen[sub.ChatID] = struct{}{}
		if d.quiet(ctx, log, sub.ChatID, now, EventDayOn) {
			continue
		}
		ev := storage.SentEvent{
			EventID:     strings.Join([]string{strconv.FormatInt(sub.ChatID, 10), "ALL", date, EventDayOn, version}, "|"),
			ChatID:      sub.ChatID,
			Queue:       "ALL",
			Type:        EventDayOn,
			ScheduledAt: now,
		}
		d.deliver(ctx, log, ev, dayOnText(tomorrow), dayOnKeyboard())
	}
	log.Info("day flip broadcast", logx.String("date", date), logx.Int("chats", len(seen)))
	return nil
}

func (d *Dispatcher) queueChanges(ctx context.Context, log logx.Logger, changes []snapshot.Change, now time.Time, today, tomorrow string) error {
	byQueue := map[string][]snapshot.Change{}
	for _, c := range changes {
		if c.Date != today && c.Date != tomorrow {
			continue
		}
		byQueue[c.Queue] = append(byQueue[c.Queue], c)
	}
	if len(byQueue) == 0 {
		return nil
	}

	subs, err := d.store.ListAllSubscriptions(ctx)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		relevant := false
		for _, q := range sub.Queues {
			if len(byQueue[q]) > 0 {
				relevant = true
				break
			}
		}
		if !relevant || d.quiet(ctx, log, sub.ChatID, now, EventQueueChange) {
			continue
		}
		for _, q := range sub.Queues {
			for _, c := range byQueue[q] {
				if d.isMergeArtifact(c) {
					log.Debug("midnight merge artifact skipped", logx.String("queue", q), logx.String("date", c.Date))
					continue
				}
				ev := storage.SentEvent{
					EventID:     strings.Join([]string{strconv.FormatInt(sub.ChatID, 10), q, c.Date, EventQueueChange, c.NextHash}, "|"),
					ChatID:      sub.ChatID,
					Queue:       q,
					Type:        EventQueueChange,
					ScheduledAt: now,
				}
				d.deliver(ctx, log, ev, queueChangeText(q, c), checkScheduleKeyboard(c.Date == tomorrow))
			}
		}
	}
	return nil
}

// quiet reports whether chatID is inside its quiet hours. A chat whose
// prefs cannot be read is skipped as well.
func (d *Dispatcher) quiet(ctx context.Context, log logx.Logger, chatID int64, now time.Time, typ string) bool {
	prefs, err := d.store.GetPrefs(ctx, chatID)
	if err != nil {
		log.Warn("load prefs failed", logx.Int64("chat", chatID), logx.Err(err))
		return true
	}
	if prefs.Quiet.Active(now) {
		metrics.Notifications.WithLabelValues(typ, "quiet").Inc()
		return true
	}
	return false
}

func (d *Dispatcher) deliver(ctx context.Context, log logx.Logger, ev storage.SentEvent, text string, kb *kit.Keyboard) {
	log = log.With(logx.String("event", ev.EventID))
	sent, err := d.store.WasSent(ctx, ev.EventID)
	if err != nil {
		log.Warn("ledger lookup failed", logx.Err(err))
		return
	}
	if sent {
		metrics.Notifications.WithLabelValues(ev.Type, "dedup").Inc()
		return
	}
	if err := d.sink.Send(ctx, ev.ChatID, text, kb); err != nil {
		metrics.Notifications.WithLabelValues(ev.Type, "failed").Inc()
		log.Warn("broadcast not delivered", logx.Err(err))
		return
	}
	metrics.Notifications.WithLabelValues(ev.Type, "sent").Inc()
	ev.SentAt = d.now()
	if err := d.store.MarkSent(ctx, ev); err != nil {
		log.Error("mark sent failed", logx.Err(err))
	}
}

// anyOutageAhead reports whether any changed payload has an outage that
// has not ended yet.
func (d *Dispatcher) anyOutageAhead(changes []snapshot.Change, now time.Time) bool {
	for _, c := range changes {
		ws, _ := c.Payload.Windows(d.cfg.Location)
		for _, w := range ws {
			if w.End.After(now) {
				return true
			}
		}
	}
	return false
}

// isMergeArtifact matches a change that consists only of a late evening
// outage stretched past midnight by the merge: one real interval that
// crosses midnight, carries the merge marker, has no 00:00 endpoint,
// starts at or after ArtifactMinStartHour and comes without adjustments.
func (d *Dispatcher) isMergeArtifact(c snapshot.Change) bool {
	if len(c.Payload.Adjustments) > 0 {
		return false
	}
	ivs := c.Payload.RealIntervals()
	if len(ivs) != 1 {
		return false
	}
	iv := ivs[0]
	if !iv.ToNextDay || !strings.Contains(iv.Raw, schedule.MergeJoin) {
		return false
	}
	if iv.From == schedule.Midnight || iv.To == schedule.Midnight {
		return false
	}
	h, _, err := schedule.ParseClock(iv.From)
	return err == nil && h >= d.cfg.ArtifactMinStartHour
}

func changesOn(changes []snapshot.Change, date string) []snapshot.Change {
	var out []snapshot.Change
	for _, c := range changes {
		if c.Date == date {
			out = append(out, c)
		}
	}
	return out
}

// dayVersion identifies the content that triggered a day flip, so a
// republished day broadcasts again while a repeated cycle does not.
func dayVersion(dayChanges []snapshot.Change, fingerprint string) string {
	hashes := make([]string, 0, len(dayChanges))
	for _, c := range dayChanges {
		hashes = append(hashes, c.NextHash)
	}
	seed := strings.Join(hashes, "|")
	if seed == "" {
		seed = fingerprint
	}
	return schedule.SHA256Hex([]byte(seed))
}
