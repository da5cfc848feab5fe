package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	logx "outagebot/pkg/logx"
)

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestFetchRawScheduleYAML(t *testing.T) {
	t.Parallel()
	p := write(t, "schedule.yaml", `
days:
  - date: "2025-01-01"
    queues:
      "1.1":
        - { from: "20:00", to: "00:00", raw: "20:00-24:00" }
      2.1: []
    adjustments:
      - { queues: ["1.1"], kind: end_at, time: "23:00", text: "до 23:00" }
  - date: "2025-01-02"
`)
	src := New(p, logx.Nop())
	days, err := src.FetchRawSchedule(context.Background())
	if err != nil {
		t.Fatalf("FetchRawSchedule: %v", err)
	}
	if len(days) != 2 {
		t.Fatalf("days = %d", len(days))
	}
	if got := days[0].Queues["1.1"]; len(got) != 1 || got[0].To != "00:00" {
		t.Fatalf("1.1 = %+v", got)
	}
	if _, ok := days[0].Queues["2.1"]; !ok {
		t.Fatal("numeric YAML key not kept as queue 2.1")
	}
	if days[1].Queues == nil {
		t.Fatal("empty day should have a non-nil queue map")
	}
	if len(days[0].Adjustments) != 1 || days[0].Adjustments[0].Time != "23:00" {
		t.Fatalf("adjustments = %+v", days[0].Adjustments)
	}

	in, err := src.FetchPageFingerprintInput(context.Background())
	if err != nil || in == "" {
		t.Fatalf("fingerprint input = %q, %v", in, err)
	}
}

func TestFetchRawScheduleRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, body string
	}{
		{"bad date", `{"days":[{"date":"01.01.2025","queues":{}}]}`},
		{"duplicate date", `{"days":[{"date":"2025-01-01"},{"date":"2025-01-01"}]}`},
		{"unknown field", `{"days":[],"extra":1}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			src := New(write(t, "s.json", tt.body), logx.Nop())
			if _, err := src.FetchRawSchedule(context.Background()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestMissingFile(t *testing.T) {
	t.Parallel()
	src := New(filepath.Join(t.TempDir(), "none.json"), logx.Nop())
	if _, err := src.FetchPageFingerprintInput(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
