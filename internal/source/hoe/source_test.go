package hoe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"outagebot/internal/schedule"
	logx "outagebot/pkg/logx"
)

const page = `<html><body>
<nav><a href="/">Головна</a></nav>
<p>Відповідно до розпорядження НЕК «Укренерго» застосовуються графіки погодинних відключень.</p>
<p><img src="/a.png" alt="ГПВ-10.06.25"></p>
<ul>
  <li>підчерга 1.1 – з 08:00 до 10:00</li>
  <li>підчерга 1.1 – з 20:00 до 24:00</li>
  <li>Підчерга   2.1 - з 9:00 до 11:30</li>
  <li>Підчерги 1.1, 2.1 – заживлення о 15:30</li>
</ul>
<p><img src="/b.png" alt="ГПВ-11.06.2025"></p>
<div><ul>
  <li>підчерга 1.1 – з 00:00 до 02:00</li>
</ul></div>
<p><img src="/c.png" alt="ГПВ-11.06.2025"></p>
<ul><li>підчерга 6.2 – з 12:00 до 14:00</li></ul>
<p><img src="/logo.png" alt="logo"></p>
<ul><li>Новини компанії</li></ul>
</body></html>`

func newServer(t *testing.T, body *atomic.Value, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("User-Agent") == "" || !strings.HasPrefix(r.Header.Get("Accept-Language"), "uk-UA") {
			http.Error(w, "missing headers", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchParsesScheduleBlocks(t *testing.T) {
	t.Parallel()
	var body atomic.Value
	body.Store(page)
	var hits atomic.Int32
	srv := newServer(t, &body, &hits)

	src := New(Config{URL: srv.URL}, logx.Nop())
	ctx := context.Background()
	if _, err := src.FetchPageFingerprintInput(ctx); err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	days, err := src.FetchRawSchedule(ctx)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("page fetched %d times in one cycle, want 1", hits.Load())
	}
	if len(days) != 2 {
		t.Fatalf("days = %d, want 2 (duplicate date ignored)", len(days))
	}

	d0 := days[0]
	if d0.Date != "2025-06-10" {
		t.Fatalf("first date = %s", d0.Date)
	}
	q11 := d0.Queues["1.1"]
	if len(q11) != 2 || q11[1].From != "20:00" || q11[1].To != "24:00" {
		t.Fatalf("1.1 intervals = %+v", q11)
	}
	if q21 := d0.Queues["2.1"]; len(q21) != 1 || q21[0].From != "9:00" {
		t.Fatalf("2.1 intervals = %+v", q21)
	}
	if len(d0.Adjustments) != 1 {
		t.Fatalf("adjustments = %+v", d0.Adjustments)
	}
	adj := d0.Adjustments[0]
	if adj.Kind != schedule.AdjustPowerOnAt || adj.Time != "15:30" || len(adj.Queues) != 2 {
		t.Fatalf("adjustment = %+v", adj)
	}

	d1 := days[1]
	if d1.Date != "2025-06-11" || len(d1.Queues["1.1"]) != 1 || len(d1.Queues["6.2"]) != 0 {
		t.Fatalf("second day = %+v", d1)
	}
}

func TestFingerprintIgnoresIrrelevantContent(t *testing.T) {
	t.Parallel()
	var body atomic.Value
	body.Store(page)
	var hits atomic.Int32
	srv := newServer(t, &body, &hits)
	src := New(Config{URL: srv.URL}, logx.Nop())
	ctx := context.Background()

	a, err := src.FetchPageFingerprintInput(ctx)
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	if !strings.Contains(a, "IMG:ГПВ-10.06.25") || !strings.Contains(a, "P:Відповідно") {
		t.Fatalf("relevant text = %q", a)
	}

	body.Store(strings.Replace(page, "Головна", "Новини", 1))
	b, _ := src.FetchPageFingerprintInput(ctx)
	if a != b {
		t.Fatal("navigation change altered the fingerprint input")
	}

	body.Store(strings.Replace(page, "з 08:00 до 10:00", "з 08:00 до 11:00", 1))
	c, _ := src.FetchPageFingerprintInput(ctx)
	if a == c {
		t.Fatal("schedule change did not alter the fingerprint input")
	}
}

func TestFetchRejectsBadStatus(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	if _, err := New(Config{URL: srv.URL}, logx.Nop()).FetchRawSchedule(context.Background()); err == nil {
		t.Fatal("expected error on 502")
	}
}

func TestParseAdjustment(t *testing.T) {
	t.Parallel()
	tests := []struct {
		line string
		kind schedule.AdjustmentKind
		time string
		ok   bool
	}{
		{"Підчерга 3.2 – відключення з 14:00", schedule.AdjustStartAt, "14:00", true},
		{"Підчерга 4.1 – відключення продовжено до 18:30", schedule.AdjustEndAt, "18:30", true},
		{"Підчерга 5.1 – світло з’явиться о 19:00", schedule.AdjustPowerOnAt, "19:00", true},
		{"Підчерга 5.1 – без змін", "", "", false},
		{"Оновлено 27.12.2025 о 10:00", "", "", false},
	}
	for _, tt := range tests {
		adj, ok := parseAdjustment(tt.line)
		if ok != tt.ok || adj.Kind != tt.kind || adj.Time != tt.time {
			t.Fatalf("parseAdjustment(%q) = %+v, %v", tt.line, adj, ok)
		}
	}
}

func TestDateFromAlt(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{"ГПВ-27.12.25": "2025-12-27", "ГПВ-01.02.2026": "2026-02-01"} {
		if got, ok := dateFromAlt(in); !ok || got != want {
			t.Fatalf("dateFromAlt(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := dateFromAlt("logo"); ok {
		t.Fatal("non-date caption accepted")
	}
}
