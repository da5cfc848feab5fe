package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"outagebot/internal/config"
	"outagebot/internal/source/file"
	"outagebot/internal/source/hoe"
	"outagebot/internal/storage"
	"outagebot/internal/task"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }
func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestRefreshCycleBroadcastsOnceAndThenSettles(t *testing.T) {
	dir := t.TempDir()
	sched := writeFile(t, dir, "schedule.yaml", `
days:
  - date: "2025-01-01"
    queues:
      "1.1":
        - { from: "14:00", to: "16:00", raw: "14:00-16:00" }
`)
	cfgPath := writeFile(t, dir, "config.yaml", `
telegram:
  token: "test"
logging:
  level: error
storage:
  driver: memory
source:
  kind: file
  path: "`+sched+`"
`)
	_, cfg, set, err := loadConfig(cfgPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	ctx := context.Background()
	store, err := storage.Open(ctx, mapStorageConfig(cfg, set), logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	if err := store.AddSubscription(ctx, 42, "1.1"); err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	ad := &fakeAdapter{}
	c := wire(cfg, set, store, ad, logx.Nop())
	noon := time.Date(2025, 1, 1, 12, 0, 0, 0, set.Location)
	c.dispatcher.SetClock(func() time.Time { return noon })

	res, err := c.refreshCycle(ctx)
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if !res.Changed {
		t.Fatal("first cycle reported no change")
	}
	first := ad.texts()
	if len(first) == 0 {
		t.Fatal("first cycle sent nothing")
	}
	if !strings.Contains(strings.Join(first, "\n"), "1.1") {
		t.Fatalf("no message mentions queue 1.1: %q", first)
	}

	res, err = c.refreshCycle(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if res.Changed {
		t.Fatal("unchanged source reported a change")
	}
	if got := len(ad.texts()); got != len(first) {
		t.Fatalf("second cycle sent %d more message(s)", got-len(first))
	}
}

func TestMapping(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{Token: "t", OpsChatID: -100},
		Logging:  config.LoggingConfig{Level: "warn", OpsChat: config.LoggingOpsChat{Enabled: true, MinLevel: "error"}},
		Storage:  config.StorageConfig{Driver: "PG", DSN: "postgres://x"},
		Source:   config.SourceConfig{Kind: "file", Path: "/tmp/s.yaml"},
	}
	set, err := config.Resolve(cfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if sc := mapStorageConfig(cfg, set); sc.Driver != "postgres" || sc.DSN != "postgres://x" {
		t.Fatalf("storage = %+v", sc)
	}
	if lc := mapLoggingConfig(cfg); lc.OpsChat.ChatID != -100 || !lc.OpsChat.Enabled {
		t.Fatalf("logging = %+v", lc)
	}
	if lc := mapLoggingConfig(withoutOpsChat(cfg)); lc.OpsChat.Enabled || !cfg.Logging.OpsChat.Enabled {
		t.Fatal("withoutOpsChat must copy, not mutate")
	}
	if _, ok := newSource(cfg, set, logx.Nop()).(*file.Source); !ok {
		t.Fatal("source.kind=file did not build a file source")
	}
	hcfg := *cfg
	hcfg.Source = config.SourceConfig{}
	hset, err := config.Resolve(&hcfg)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if _, ok := newSource(&hcfg, hset, logx.Nop()).(*hoe.Source); !ok {
		t.Fatal("default source is not hoe")
	}
	if ac := mapAlertsConfig(set); ac.PruneEvery != 360 || ac.Location == nil {
		t.Fatalf("alerts = %+v", ac)
	}
	if oc := mapOpsConfig(cfg, set); oc.Addr != config.DefaultOpsAddr {
		t.Fatalf("ops = %+v", oc)
	}
}

func TestScheduleRegistersDrivers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sched := writeFile(t, dir, "schedule.yaml", "days: []\n")
	cfgPath := writeFile(t, dir, "config.yaml", `
telegram:
  token: "test"
storage:
  driver: memory
source:
  kind: file
  path: "`+sched+`"
`)
	_, cfg, set, err := loadConfig(cfgPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	store, err := storage.Open(context.Background(), mapStorageConfig(cfg, set), logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	c := wire(cfg, set, store, &fakeAdapter{}, logx.Nop())

	r := task.New(set.Location, logx.Nop())
	defer r.Stop()
	if err := c.schedule(r, set); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	got := map[string]task.Info{}
	for _, info := range r.Snapshot() {
		got[info.Name] = info
	}
	alerts, ok := got[taskAlerts]
	if !ok || alerts.Spec != set.AlertsCron {
		t.Fatalf("alerts task = %+v", alerts)
	}
	// A tick deadline would let a few hung sends starve later chats.
	if alerts.Timeout != 0 {
		t.Fatalf("alerts tick timeout = %v, want none", alerts.Timeout)
	}
	if rf, ok := got[taskRefresh]; !ok || rf.Timeout != set.RefreshTimeout {
		t.Fatalf("refresh task = %+v", rf)
	}
}
