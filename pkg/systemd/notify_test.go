package systemd

import (
	"context"
	"testing"
	"time"

	logx "outagebot/pkg/logx"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")
	Ready(logx.Nop())
	Stopping(logx.Nop())
	if got := WatchdogInterval(); got != 0 {
		t.Fatalf("WatchdogInterval() = %v, want 0", got)
	}
}

func TestWatchdogIntervalHalvesConfiguredTimeout(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "10000000")
	t.Setenv("WATCHDOG_PID", "")
	if got := WatchdogInterval(); got != 5*time.Second {
		t.Fatalf("WatchdogInterval() = %v, want 5s", got)
	}
}

func TestWatchdogReturnsOnCancel(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		Watchdog(ctx, time.Millisecond, func() bool { calls++; return true }, logx.Nop())
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watchdog did not return after cancel")
	}
	if calls == 0 {
		t.Fatal("healthy was never consulted")
	}
}
