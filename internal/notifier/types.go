package notifier

import (
	"context"
	"fmt"
	"time"

	kit "outagebot/internal/transport"
)

// Sink is what the dispatchers send through.
type Sink interface {
	Send(ctx context.Context, chatID int64, text string, kb *kit.Keyboard) error
}

// Config controls rate limiting and retries.
type Config struct {
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
}

// HistoryItem is one delivered message, as listed on the ops status page.
type HistoryItem struct {
	At     time.Time `json:"at"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text"`
}

// SendError is a delivery that failed after all attempts.
type SendError struct {
	ChatID   int64
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to chat %d failed after %d attempt(s): %v", e.ChatID, e.Attempts, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
