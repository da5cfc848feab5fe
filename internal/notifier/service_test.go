package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

type fakeAdapter struct {
	mu    sync.Mutex
	fails int
	calls int
	last  *kit.SendOptions
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, _ string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = opt
	if f.calls <= f.fails {
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	return kit.MessageRef{ChatID: to.ChatID, MessageID: f.calls}, nil
}

func (f *fakeAdapter) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeAdapter) AnswerCallback(context.Context, string, string) error { return nil }

func newTestService(ad kit.Adapter, retries int) *Service {
	s := New(Config{RatePerSec: 1000, RetryMax: retries}, ad, logx.Nop())
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 2}
	s := newTestService(ad, 3)
	kb := &kit.Keyboard{Rows: [][]kit.Button{kit.Row(kit.Button{Text: "Меню", Data: "BACK_MAIN"})}}
	if err := s.Send(context.Background(), 42, "hello", kb); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ad.calls != 3 {
		t.Fatalf("calls = %d, want 3", ad.calls)
	}
	if ad.last == nil || ad.last.Keyboard != kb {
		t.Fatal("keyboard not passed to adapter")
	}
	if h := s.History(); len(h) != 1 || h[0].ChatID != 42 {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendReturnsSendErrorWhenExhausted(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{fails: 10}
	err := newTestService(ad, 1).Send(context.Background(), 7, "x", nil)
	var se *SendError
	if !errors.As(err, &se) || se.ChatID != 7 || se.Attempts != 2 {
		t.Fatalf("err = %v, want SendError after 2 attempts", err)
	}
}

func TestSendWithoutAdapter(t *testing.T) {
	t.Parallel()
	if err := New(Config{}, nil, logx.Nop()).Send(context.Background(), 1, "x", nil); !errors.Is(err, ErrNoAdapter) {
		t.Fatalf("err = %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 8; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > time.Second {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %v not within jitter of base", d)
	}
}
