package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"outagebot/internal/schedule"
	logx "outagebot/pkg/logx"
)

func openTestStores(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	sq, err := Open(ctx, Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "state.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStoreSnapshots(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		if _, err := st.GetSnapshot(ctx, "2025-01-01", "1.1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: missing snapshot err = %v, want ErrNotFound", name, err)
		}
		for _, body := range []string{`{"v":1}`, `{"v":2}`} {
			if err := st.UpsertSnapshot(ctx, Snapshot{Date: "2025-01-01", Queue: "1.1", Payload: []byte(body)}); err != nil {
				t.Fatalf("%s: upsert: %v", name, err)
			}
		}
		got, err := st.GetSnapshot(ctx, "2025-01-01", "1.1")
		if err != nil {
			t.Fatalf("%s: get: %v", name, err)
		}
		if string(got.Payload) != `{"v":2}` {
			t.Fatalf("%s: payload = %s", name, got.Payload)
		}
	}
}

func TestStoreLedger(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	old := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for name, st := range openTestStores(t) {
		ok, err := st.WasSent(ctx, "a")
		if err != nil || ok {
			t.Fatalf("%s: WasSent before mark = %v, %v", name, ok, err)
		}
		ev := SentEvent{EventID: "a", ChatID: 1, Queue: "1.1", Type: "START", ScheduledAt: old, SentAt: old}
		if err := st.MarkSent(ctx, ev); err != nil {
			t.Fatalf("%s: mark: %v", name, err)
		}
		if err := st.MarkSent(ctx, ev); err != nil {
			t.Fatalf("%s: second mark must be a no-op, got %v", name, err)
		}
		fresh := ev
		fresh.EventID = "b"
		fresh.SentAt = old.Add(48 * time.Hour)
		if err := st.MarkSent(ctx, fresh); err != nil {
			t.Fatalf("%s: mark b: %v", name, err)
		}
		n, err := st.PruneSent(ctx, old.Add(24*time.Hour))
		if err != nil || n != 1 {
			t.Fatalf("%s: prune = %d, %v, want 1", name, n, err)
		}
		if ok, _ := st.WasSent(ctx, "a"); ok {
			t.Fatalf("%s: pruned event still reported sent", name)
		}
		if ok, _ := st.WasSent(ctx, "b"); !ok {
			t.Fatalf("%s: fresh event pruned", name)
		}
	}
}

func TestStoreCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		if _, ok, err := st.GetValue(ctx, "k"); ok || err != nil {
			t.Fatalf("%s: missing key = %v, %v", name, ok, err)
		}
		_ = st.SetValue(ctx, "k", "0")
		_ = st.SetValue(ctx, "k", "1")
		v, ok, err := st.GetValue(ctx, "k")
		if err != nil || !ok || v != "1" {
			t.Fatalf("%s: GetValue = %q, %v, %v", name, v, ok, err)
		}
	}
}

func TestStoreSubscriptions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		_ = st.AddSubscription(ctx, 2, "3.1")
		_ = st.AddSubscription(ctx, 1, "2.1")
		_ = st.AddSubscription(ctx, 1, "1.1")
		_ = st.AddSubscription(ctx, 1, "1.1")

		qs, err := st.ListQueues(ctx, 1)
		if err != nil || !reflect.DeepEqual(qs, []string{"1.1", "2.1"}) {
			t.Fatalf("%s: ListQueues = %v, %v", name, qs, err)
		}
		all, err := st.ListAllSubscriptions(ctx)
		if err != nil {
			t.Fatalf("%s: list all: %v", name, err)
		}
		want := []Subscription{{ChatID: 1, Queues: []string{"1.1", "2.1"}}, {ChatID: 2, Queues: []string{"3.1"}}}
		if !reflect.DeepEqual(all, want) {
			t.Fatalf("%s: ListAllSubscriptions = %+v", name, all)
		}

		_ = st.RemoveSubscription(ctx, 1, "2.1")
		_ = st.ClearSubscriptions(ctx, 2)
		all, _ = st.ListAllSubscriptions(ctx)
		want = []Subscription{{ChatID: 1, Queues: []string{"1.1"}}}
		if !reflect.DeepEqual(all, want) {
			t.Fatalf("%s: after removal = %+v", name, all)
		}
	}
}

func TestStorePrefs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openTestStores(t) {
		p, err := st.GetPrefs(ctx, 7)
		if err != nil || !reflect.DeepEqual(p, schedule.DefaultPrefs()) {
			t.Fatalf("%s: default prefs = %+v, %v", name, p, err)
		}
		lead := 60
		off := false
		p, err = st.UpdatePrefs(ctx, 7, schedule.PrefsPatch{LeadMinutes: &lead, QuietEnabled: &off})
		if err != nil || p.LeadMinutes != 60 || p.Quiet.Enabled {
			t.Fatalf("%s: update = %+v, %v", name, p, err)
		}
		bad := -1
		if _, err := st.UpdatePrefs(ctx, 7, schedule.PrefsPatch{LeadMinutes: &bad}); !errors.Is(err, schedule.ErrInvalidLead) {
			t.Fatalf("%s: invalid lead err = %v", name, err)
		}
		p, _ = st.GetPrefs(ctx, 7)
		if p.LeadMinutes != 60 {
			t.Fatalf("%s: rejected patch persisted: %+v", name, p)
		}
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), Config{Driver: "none"}, logx.Nop()); !errors.Is(err, ErrDisabled) {
		t.Fatalf("none driver err = %v", err)
	}
	if _, err := Open(context.Background(), Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
