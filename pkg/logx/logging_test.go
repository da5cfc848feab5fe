package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "alerts"))
	log.Info("tick done", Int("sent", 2), Err(errors.New("boom")), String("comp", "override"))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}
	if m["message"] != "tick done" {
		t.Fatalf("message = %v", m["message"])
	}
	if m["comp"] != "override" {
		t.Fatalf("comp = %v, want later field to win", m["comp"])
	}
	if m["sent"] != float64(2) {
		t.Fatalf("sent = %v", m["sent"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v", m["err"])
	}
	if c, _ := m["caller"].(string); !strings.HasPrefix(c, "logging_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}
	if !log.Enabled(LevelError) || log.Enabled(LevelDebug) {
		t.Fatal("Enabled() disagrees with configured level")
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var log Logger
	if !log.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	log.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop() is an explicit logger, not zero")
	}
}

func TestFormatOpsLine(t *testing.T) {
	t.Parallel()
	line := `{"level":"warn","time":"x","message":"send failed","chat":"42","attempt":3}`
	got := formatOpsLine([]byte(line))
	want := "[WARN] send failed\n- attempt=3\n- chat=42"
	if got != want {
		t.Fatalf("formatOpsLine() = %q, want %q", got, want)
	}
	if got := formatOpsLine([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("non-json line = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" INFO ", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Fatalf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
