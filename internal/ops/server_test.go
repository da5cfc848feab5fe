package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"outagebot/internal/notifier"
	rtsup "outagebot/internal/runtime/supervisor"
	"outagebot/internal/task"
	logx "outagebot/pkg/logx"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func get(t *testing.T, h http.Handler, path string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerRoutes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		deps Deps
		path string
		want int
		body string
	}{
		{"healthz", Deps{}, "/healthz", http.StatusOK, "ok"},
		{"ready", Deps{Store: pinger{}}, "/readyz", http.StatusOK, "ready"},
		{"not ready", Deps{Store: pinger{err: errors.New("down")}}, "/readyz", http.StatusServiceUnavailable, "storage unavailable"},
		{"metrics", Deps{}, "/metrics", http.StatusOK, "go_goroutines"},
		{"pprof", Deps{}, "/debug/pprof/", http.StatusOK, "goroutine"},
		{"unknown", Deps{}, "/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := New(Config{}, tt.deps, logx.Nop()).Handler()
			rec := get(t, h, tt.path, nil)
			if rec.Code != tt.want {
				t.Fatalf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
			}
			if !strings.Contains(rec.Body.String(), tt.body) {
				t.Fatalf("GET %s body %q lacks %q", tt.path, rec.Body.String(), tt.body)
			}
		})
	}
}

func TestTokenGuard(t *testing.T) {
	t.Parallel()
	h := New(Config{Token: "s3cret"}, Deps{}, logx.Nop()).Handler()

	if rec := get(t, h, "/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz should stay open, got %d", rec.Code)
	}
	if rec := get(t, h, "/metrics", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", rec.Code)
	}
	if rec := get(t, h, "/metrics?token=wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token: %d", rec.Code)
	}
	if rec := get(t, h, "/metrics?token=s3cret", nil); rec.Code != http.StatusOK {
		t.Fatalf("query token: %d", rec.Code)
	}
	if rec := get(t, h, "/readyz", map[string]string{"Authorization": "Bearer s3cret"}); rec.Code != http.StatusOK {
		t.Fatalf("bearer token: %d", rec.Code)
	}
}

func TestStatusListsTasksAndSupervisors(t *testing.T) {
	t.Parallel()
	deps := Deps{
		Tasks: func() []task.Info { return []task.Info{{Name: "alerts.tick", Runs: 3}} },
		Supervisors: func() map[string][]rtsup.Stats {
			return map[string][]rtsup.Stats{"telegram": {{Name: "poll", Restarts: 1}}}
		},
		Deliveries: func() []notifier.HistoryItem {
			out := make([]notifier.HistoryItem, 0, 25)
			for i := 0; i < 25; i++ {
				out = append(out, notifier.HistoryItem{ChatID: int64(i), Text: "x"})
			}
			return out
		},
	}
	rec := get(t, New(Config{}, deps, logx.Nop()).Handler(), "/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d", rec.Code)
	}
	var got status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Runs != 3 {
		t.Fatalf("tasks = %+v", got.Tasks)
	}
	if s := got.Supervisors["telegram"]; len(s) != 1 || s[0].Restarts != 1 {
		t.Fatalf("supervisors = %+v", got.Supervisors)
	}
	if len(got.Recent) != recentDeliveries || got.Recent[0].ChatID != 5 || got.Recent[len(got.Recent)-1].ChatID != 24 {
		t.Fatalf("recent deliveries = %+v", got.Recent)
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:9090", true},
		{"localhost:9090", true},
		{"[::1]:9090", true},
		{":9090", false},
		{"0.0.0.0:9090", false},
		{"10.0.0.5:9090", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := IsLoopbackAddr(tt.addr); got != tt.want {
			t.Fatalf("IsLoopbackAddr(%q) = %v, want %v", tt.addr, got, tt.want)
		}
	}
}
