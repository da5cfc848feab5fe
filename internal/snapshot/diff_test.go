package snapshot

import (
	"context"
	"testing"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

func payload(date, queue string, ivs ...schedule.Interval) schedule.Payload {
	return schedule.Payload{Date: date, Queue: queue, Outages: ivs}
}

func TestApplyReportsAppearanceThenNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	e := New(st, logx.Nop())

	in := []schedule.Payload{
		payload("2025-01-01", "1.1", schedule.Interval{From: "10:00", To: "12:00"}),
		payload("2025-01-01", "2.1"),
	}
	changes, err := e.Apply(ctx, in)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("first cycle changes = %d, want 2", len(changes))
	}
	for _, c := range changes {
		if !c.Appeared() || c.NextHash == "" {
			t.Fatalf("change = %+v, want appearance", c)
		}
	}

	changes, err = e.Apply(ctx, in)
	if err != nil || len(changes) != 0 {
		t.Fatalf("second cycle = %v, %v, want no changes", changes, err)
	}
}

func TestApplyReportsUpdateWithPrevHash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	e := New(st, logx.Nop())

	first := payload("2025-01-01", "1.1", schedule.Interval{From: "10:00", To: "12:00"})
	c1, _ := e.Apply(ctx, []schedule.Payload{first})

	second := payload("2025-01-01", "1.1", schedule.Interval{From: "10:00", To: "14:00"})
	c2, err := e.Apply(ctx, []schedule.Payload{second})
	if err != nil || len(c2) != 1 {
		t.Fatalf("Apply = %v, %v", c2, err)
	}
	if c2[0].PrevHash != c1[0].NextHash || c2[0].Appeared() {
		t.Fatalf("update prev = %q, want %q", c2[0].PrevHash, c1[0].NextHash)
	}

	got, ok, err := Load(ctx, st, "2025-01-01", "1.1")
	if err != nil || !ok || got.Outages[0].To != "14:00" {
		t.Fatalf("Load = %+v, %v, %v", got, ok, err)
	}
}

func TestApplyIgnoresRemovedKeys(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	e := New(st, logx.Nop())

	_, _ = e.Apply(ctx, []schedule.Payload{payload("2025-01-01", "1.1"), payload("2025-01-01", "2.1")})
	changes, err := e.Apply(ctx, []schedule.Payload{payload("2025-01-01", "1.1")})
	if err != nil || len(changes) != 0 {
		t.Fatalf("removal produced %v, %v", changes, err)
	}
	if _, ok, _ := Load(ctx, st, "2025-01-01", "2.1"); !ok {
		t.Fatal("vanished key was deleted from the store")
	}
}

func TestApplyTreatsUnreadableBaselineAsUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := storage.NewMemory()
	_ = st.UpsertSnapshot(ctx, storage.Snapshot{Date: "2025-01-01", Queue: "1.1", Payload: []byte("{broken")})

	changes, err := New(st, logx.Nop()).Apply(ctx, []schedule.Payload{payload("2025-01-01", "1.1")})
	if err != nil || len(changes) != 1 || changes[0].Appeared() {
		t.Fatalf("changes = %+v, %v", changes, err)
	}
}

func TestPayloadsUnionsAdjustmentQueues(t *testing.T) {
	t.Parallel()
	days := []schedule.DaySchedule{{
		Date:        "2025-01-01",
		Queues:      map[string][]schedule.Interval{"1.1": {{From: "10:00", To: "12:00"}}},
		Adjustments: []schedule.Adjustment{{Queues: []string{"4.2"}, Kind: schedule.AdjustEndAt, Time: "15:00"}},
	}}
	ps := Payloads(days)
	if len(ps) != 2 || ps[0].Queue != "1.1" || ps[1].Queue != "4.2" {
		t.Fatalf("Payloads = %+v", ps)
	}
	if len(ps[0].Adjustments) != 0 || len(ps[1].Adjustments) != 1 {
		t.Fatalf("adjustments not scoped per queue: %+v", ps)
	}
}
