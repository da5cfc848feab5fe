package notifier

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"outagebot/internal/metrics"
	kit "outagebot/internal/transport"
	logx "outagebot/pkg/logx"
)

var ErrNoAdapter = errors.New("notifier has no transport adapter")

// Service implements Sink on top of a transport adapter.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter kit.Adapter

	cfg     Config
	limiter *rate.Limiter

	// sleep waits between retries; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log,
		sleep:   sleepCtx,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers text to chatID. It returns a *SendError when every attempt
// failed, or the context error if ctx ended first.
func (s *Service) Send(ctx context.Context, chatID int64, text string, kb *kit.Keyboard) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	log := s.log
	s.mu.Unlock()

	if ad == nil {
		return ErrNoAdapter
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	opts := &kit.SendOptions{DisablePreview: true, Keyboard: kb}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := ad.SendText(callCtx, kit.ChatTarget{ChatID: chatID}, text, opts)
		cancel()
		if err == nil {
			metrics.SendAttempts.WithLabelValues("ok").Inc()
			s.appendHistory(chatID, text)
			return nil
		}
		lastErr = err
		log.Debug("send failed", logx.Int64("chat", chatID), logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		metrics.SendAttempts.WithLabelValues("retry").Inc()
		if err := s.sleep(ctx, retryDelay(cfg, attempt)); err != nil {
			return err
		}
	}
	metrics.SendAttempts.WithLabelValues("error").Inc()
	return &SendError{ChatID: chatID, Attempts: maxAttempts, Err: lastErr}
}

// History returns recently delivered messages, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(chatID int64, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ChatID: chatID, Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// attempt starts at 1 (first attempt), delay is for the NEXT attempt.
	base := cfg.RetryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	maxD := cfg.RetryMaxDelay
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	// Exponential backoff: base * 2^(attempt-1)
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
