package alerts

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"outagebot/internal/notifier"
	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

type sentMsg struct {
	chatID int64
	text   string
}

type fakeSink struct {
	mu       sync.Mutex
	fail     int
	failChat int64
	msgs     []sentMsg
	calls    int
}

func (f *fakeSink) Send(_ context.Context, chatID int64, text string, _ *kit.Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.fail {
		return errors.New("network down")
	}
	if f.failChat != 0 && chatID == f.failChat {
		return &notifier.SendError{ChatID: chatID, Attempts: 4, Err: errors.New("bot was blocked by the user")}
	}
	f.msgs = append(f.msgs, sentMsg{chatID: chatID, text: text})
	return nil
}

// countingStore counts snapshot reads and can fail them for one queue.
type countingStore struct {
	*storage.Memory
	mu        sync.Mutex
	reads     int
	failQueue string
}

func (c *countingStore) GetSnapshot(ctx context.Context, date, queue string) (storage.Snapshot, error) {
	c.mu.Lock()
	c.reads++
	c.mu.Unlock()
	if queue == c.failQueue {
		return storage.Snapshot{}, errors.New("disk I/O error")
	}
	return c.Memory.GetSnapshot(ctx, date, queue)
}

func kyiv(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func put(t *testing.T, st storage.SnapshotStore, p schedule.Payload) {
	t.Helper()
	b, err := p.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if err := st.UpsertSnapshot(context.Background(), storage.Snapshot{Date: p.Date, Queue: p.Queue, Payload: b}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
}

func subscribe(t *testing.T, st storage.Store, chatID int64, queue string, quiet bool) {
	t.Helper()
	ctx := context.Background()
	if err := st.AddSubscription(ctx, chatID, queue); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := st.UpdatePrefs(ctx, chatID, schedule.PrefsPatch{QuietEnabled: &quiet}); err != nil {
		t.Fatalf("prefs: %v", err)
	}
}

type harness struct {
	sched *Scheduler
	sink  *fakeSink
	now   time.Time
}

func newHarness(t *testing.T, st Store) *harness {
	t.Helper()
	h := &harness{sink: &fakeSink{}}
	h.sched = New(Config{Location: kyiv(t)}, st, h.sink, logx.Nop())
	h.sched.SetClock(func() time.Time { return h.now })
	return h
}

func (h *harness) tickAt(t *testing.T, date, clock string, offset time.Duration) {
	t.Helper()
	at, err := schedule.At(date, clock, h.sched.cfg.Location)
	if err != nil {
		t.Fatalf("At: %v", err)
	}
	h.now = at.Add(offset)
	if err := h.sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
}

func TestTickFiresBeforeOnceAtLeadTime(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	subscribe(t, st, 100, "1.1", false)
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})

	h := newHarness(t, st)
	h.tickAt(t, "2025-06-10", "17:30", 0)

	if len(h.sink.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(h.sink.msgs))
	}
	msg := h.sink.msgs[0].text
	for _, want := range []string{"1.1", "18:00–20:00", "30"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q does not mention %q", msg, want)
		}
	}
	id := "100|1.1|2025-06-10|BEFORE|2025-06-10T17:30:00+03:00"
	if ok, _ := st.WasSent(context.Background(), id); !ok {
		t.Fatalf("event %s not recorded", id)
	}

	h.tickAt(t, "2025-06-10", "17:31", 0)
	if len(h.sink.msgs) != 1 {
		t.Fatalf("second tick resent: %d messages", len(h.sink.msgs))
	}
}

func TestTickCatchesUpLateStart(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	subscribe(t, st, 1, "1.1", false)
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})

	h := newHarness(t, st)
	h.tickAt(t, "2025-06-10", "18:01", 30*time.Second)
	h.tickAt(t, "2025-06-10", "18:02", 0)

	if len(h.sink.msgs) != 1 || !strings.HasPrefix(h.sink.msgs[0].text, "🔌") {
		t.Fatalf("messages = %+v, want one START", h.sink.msgs)
	}

	h.tickAt(t, "2025-06-10", "18:02", 30*time.Second)
	if len(h.sink.msgs) != 1 {
		t.Fatal("fired outside the catch-up window")
	}
}

func TestTickFiringWindowEdges(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		clock  string
		offset time.Duration
		fires  bool
	}{
		{"early tolerance", "17:59", 30 * time.Second, true},
		{"too early", "17:59", 29 * time.Second, false},
		{"last catch-up second", "18:02", 0, true},
		{"after catch-up", "18:02", time.Second, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			st := storage.NewMemory()
			subscribe(t, st, 1, "1.1", false)
			off := false
			_, _ = st.UpdatePrefs(context.Background(), 1, schedule.PrefsPatch{NotifyBefore: &off})
			put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})

			h := newHarness(t, st)
			h.tickAt(t, "2025-06-10", tt.clock, tt.offset)
			if got := len(h.sink.msgs) == 1; got != tt.fires {
				t.Fatalf("fired = %v, want %v", got, tt.fires)
			}
		})
	}
}

func TestTickNeverFiresOnShadow(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	subscribe(t, st, 1, "1.1", false)
	days := schedule.Normalize([]schedule.DaySchedule{
		{Date: "2025-06-10", Queues: map[string][]schedule.Interval{"1.1": {{From: "20:00", To: "00:00"}}}},
		{Date: "2025-06-11", Queues: map[string][]schedule.Interval{"1.1": {{From: "00:00", To: "04:00"}}}},
	})
	for _, d := range days {
		put(t, st, d.Payload("1.1"))
	}

	h := newHarness(t, st)
	// The shadow on 2025-06-11 reads 20:00–04:00; as a real interval it
	// would fire here.
	h.tickAt(t, "2025-06-11", "20:00", 0)
	h.tickAt(t, "2025-06-11", "19:30", 0)
	if len(h.sink.msgs) != 0 {
		t.Fatalf("shadow fired: %+v", h.sink.msgs)
	}

	// The merged interval's END lands on the next day and still fires.
	h.tickAt(t, "2025-06-11", "04:00", 0)
	if len(h.sink.msgs) != 1 || !strings.HasPrefix(h.sink.msgs[0].text, "✅") {
		t.Fatalf("messages = %+v, want one END", h.sink.msgs)
	}
	id := "1|1.1|2025-06-11|END|2025-06-11T04:00:00+03:00"
	if ok, _ := st.WasSent(context.Background(), id); !ok {
		t.Fatalf("END id %s not recorded", id)
	}
}

func TestTickRespectsQuietHours(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	subscribe(t, st, 1, "1.1", true) // default quiet 22:00–08:00
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "23:00", To: "23:30"}}})

	h := newHarness(t, st)
	h.tickAt(t, "2025-06-10", "23:00", 0)
	if len(h.sink.msgs) != 0 {
		t.Fatal("sent during quiet hours")
	}
	if ok, _ := st.WasSent(context.Background(), EventID(1, "1.1", "2025-06-10", EventStart, h.now)); ok {
		t.Fatal("quiet-suppressed event was recorded as sent")
	}
}

func TestTickSendFailureRetriesNextTick(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	subscribe(t, st, 1, "1.1", false)
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})

	h := newHarness(t, st)
	h.sink.fail = 1
	h.tickAt(t, "2025-06-10", "18:00", 0)
	if st.SentCount() != 0 {
		t.Fatal("failed send was recorded")
	}
	h.tickAt(t, "2025-06-10", "18:01", 0)
	if len(h.sink.msgs) != 1 || st.SentCount() != 1 {
		t.Fatalf("retry: msgs=%d ledger=%d", len(h.sink.msgs), st.SentCount())
	}
}

func TestTickIsolatesFailedSendPerChat(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	subscribe(t, st, 1, "1.1", false)
	subscribe(t, st, 2, "1.1", false)
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})

	h := newHarness(t, st)
	h.sink.failChat = 1
	h.tickAt(t, "2025-06-10", "18:00", 0)

	if len(h.sink.msgs) != 1 || h.sink.msgs[0].chatID != 2 {
		t.Fatalf("messages = %+v, want one for chat 2", h.sink.msgs)
	}
	ctx := context.Background()
	if ok, _ := st.WasSent(ctx, EventID(2, "1.1", "2025-06-10", EventStart, h.now)); !ok {
		t.Fatal("chat 2 START not recorded")
	}
	if ok, _ := st.WasSent(ctx, EventID(1, "1.1", "2025-06-10", EventStart, h.now)); ok {
		t.Fatal("failed chat 1 START was recorded")
	}
}

func TestTickDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "outagebot.db")}

	st, err := storage.Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	subscribe(t, st, 1, "1.1", false)
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})
	h := newHarness(t, st)
	h.tickAt(t, "2025-06-10", "18:00", 0)
	if len(h.sink.msgs) != 1 {
		t.Fatalf("first run sent %d messages, want 1", len(h.sink.msgs))
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err = storage.Open(ctx, cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	h = newHarness(t, st)
	h.tickAt(t, "2025-06-10", "18:01", 0)
	if len(h.sink.msgs) != 0 {
		t.Fatalf("restarted scheduler resent: %+v", h.sink.msgs)
	}
}

func TestTickIsolatesQueueLookupFailures(t *testing.T) {
	t.Parallel()
	st := &countingStore{Memory: storage.NewMemory(), failQueue: "2.1"}
	subscribe(t, st, 1, "2.1", false)
	subscribe(t, st, 1, "1.1", false)
	subscribe(t, st, 2, "1.1", false)
	put(t, st, schedule.Payload{Date: "2025-06-10", Queue: "1.1", Outages: []schedule.Interval{{From: "18:00", To: "20:00"}}})

	h := newHarness(t, st)
	h.tickAt(t, "2025-06-10", "18:00", 0)
	if len(h.sink.msgs) != 2 {
		t.Fatalf("sent %d messages, want one per chat for 1.1", len(h.sink.msgs))
	}
	// 1.1 is read once per date (3) despite two subscribers; 2.1 fails on
	// its first date and is skipped.
	if st.reads != 4 {
		t.Fatalf("snapshot reads = %d, want 4", st.reads)
	}
}

func TestTickPrunesPeriodically(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	h := newHarness(t, st)
	h.sched.cfg.PruneEvery = 3
	old := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_ = st.MarkSent(context.Background(), storage.SentEvent{EventID: "old", SentAt: old})

	h.tickAt(t, "2025-06-10", "12:00", 0)
	h.tickAt(t, "2025-06-10", "12:01", 0)
	if st.SentCount() != 1 {
		t.Fatal("pruned before the n-th tick")
	}
	h.tickAt(t, "2025-06-10", "12:02", 0)
	if st.SentCount() != 0 {
		t.Fatal("old ledger row survived the prune tick")
	}
}

func TestEventIDFormat(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 1, 2, 3, 4, 0, 0, kyiv(t))
	if got := EventID(-100, "6.2", "2025-01-02", EventEnd, at); got != "-100|6.2|2025-01-02|END|2025-01-02T03:04:00+02:00" {
		t.Fatalf("EventID = %s", got)
	}
}
