package storage

import (
	"context"
	"errors"
	"time"

	"outagebot/internal/schedule"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("not found")
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable at DSN
//   - "memory": process-local maps (tests, dry runs)
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Snapshot is the last stored payload for a (date, queue) key.
type Snapshot struct {
	Date      string
	Queue     string
	Payload   []byte
	UpdatedAt time.Time
}

// SentEvent is one row of the delivery ledger.
type SentEvent struct {
	EventID     string
	ChatID      int64
	Queue       string
	Type        string
	ScheduledAt time.Time
	SentAt      time.Time
}

// Subscription lists the queues a chat follows.
type Subscription struct {
	ChatID int64
	Queues []string
}

type SnapshotStore interface {
	// GetSnapshot returns ErrNotFound when the key was never stored.
	GetSnapshot(ctx context.Context, date, queue string) (Snapshot, error)
	UpsertSnapshot(ctx context.Context, s Snapshot) error
}

type Ledger interface {
	WasSent(ctx context.Context, eventID string) (bool, error)
	// MarkSent is idempotent: recording the same id twice keeps the first row.
	MarkSent(ctx context.Context, e SentEvent) error
	PruneSent(ctx context.Context, before time.Time) (int64, error)
}

type Cache interface {
	GetValue(ctx context.Context, key string) (value string, ok bool, err error)
	SetValue(ctx context.Context, key, value string) error
}

type Subscriptions interface {
	AddSubscription(ctx context.Context, chatID int64, queue string) error
	RemoveSubscription(ctx context.Context, chatID int64, queue string) error
	ClearSubscriptions(ctx context.Context, chatID int64) error
	ListQueues(ctx context.Context, chatID int64) ([]string, error)
	ListAllSubscriptions(ctx context.Context) ([]Subscription, error)
}

type PrefsStore interface {
	// GetPrefs creates the default row on first access.
	GetPrefs(ctx context.Context, chatID int64) (schedule.Prefs, error)
	UpdatePrefs(ctx context.Context, chatID int64, patch schedule.PrefsPatch) (schedule.Prefs, error)
}

// Store is everything the bot persists.
type Store interface {
	SnapshotStore
	Ledger
	Cache
	Subscriptions
	PrefsStore
	Ping(ctx context.Context) error
	Close() error
}

type subRow struct {
	chatID int64
	queue  string
}

// groupSubscriptions folds (chat, queue) rows ordered by chat into one
// entry per chat.
func groupSubscriptions(rows []subRow) []Subscription {
	var out []Subscription
	for _, r := range rows {
		if n := len(out); n > 0 && out[n-1].ChatID == r.chatID {
			out[n-1].Queues = append(out[n-1].Queues, r.queue)
			continue
		}
		out = append(out, Subscription{ChatID: r.chatID, Queues: []string{r.queue}})
	}
	return out
}
