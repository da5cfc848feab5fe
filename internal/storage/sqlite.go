package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"outagebot/internal/schedule"
	logx "outagebot/pkg/logx"
)

//go:embed migrations/sqlite.sql
var sqliteMigrations embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; this also serializes concurrent
	// writes from the two periodic drivers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if err := st.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := sqliteMigrations.ReadFile("migrations/sqlite.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- snapshots ----

func (s *sqliteStore) GetSnapshot(ctx context.Context, date, queue string) (Snapshot, error) {
	var (
		payload string
		ms      int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT payload, updated_at FROM outages_snapshot WHERE date = ? AND queue = ?`, date, queue,
	).Scan(&payload, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Date: date, Queue: queue, Payload: []byte(payload), UpdatedAt: time.UnixMilli(ms)}, nil
}

func (s *sqliteStore) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	at := snap.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO outages_snapshot(date, queue, payload, updated_at) VALUES(?,?,?,?)
		 ON CONFLICT(date, queue) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		snap.Date, snap.Queue, string(snap.Payload), at.UnixMilli(),
	)
	return err
}

// ---- ledger ----

func (s *sqliteStore) WasSent(ctx context.Context, eventID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM sent_events WHERE event_id = ?`, eventID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) MarkSent(ctx context.Context, e SentEvent) error {
	if e.SentAt.IsZero() {
		e.SentAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_events(event_id, chat_id, queue, type, scheduled_at, sent_at) VALUES(?,?,?,?,?,?)
		 ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.ChatID, e.Queue, e.Type, e.ScheduledAt.UnixMilli(), e.SentAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) PruneSent(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sent_events WHERE sent_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ---- cache ----

func (s *sqliteStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM cache_state WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *sqliteStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_state(key, value, updated_at) VALUES(?,?,?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().UnixMilli(),
	)
	return err
}

// ---- subscriptions ----

func (s *sqliteStore) AddSubscription(ctx context.Context, chatID int64, queue string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscriptions(chat_id, queue, created_at) VALUES(?,?,?) ON CONFLICT(chat_id, queue) DO NOTHING`,
		chatID, queue, s.now().UnixMilli(),
	)
	return err
}

func (s *sqliteStore) RemoveSubscription(ctx context.Context, chatID int64, queue string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE chat_id = ? AND queue = ?`, chatID, queue)
	return err
}

func (s *sqliteStore) ClearSubscriptions(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE chat_id = ?`, chatID)
	return err
}

func (s *sqliteStore) ListQueues(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT queue FROM subscriptions WHERE chat_id = ? ORDER BY queue`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListAllSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, queue FROM subscriptions ORDER BY chat_id, queue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var raw []subRow
	for rows.Next() {
		var r subRow
		if err := rows.Scan(&r.chatID, &r.queue); err != nil {
			return nil, err
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupSubscriptions(raw), nil
}

// ---- prefs ----

func (s *sqliteStore) GetPrefs(ctx context.Context, chatID int64) (schedule.Prefs, error) {
	def := schedule.DefaultPrefs()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_prefs(chat_id, lead_minutes, notify_before, notify_start, notify_end,
		   quiet_enabled, quiet_start, quiet_end, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?) ON CONFLICT(chat_id) DO NOTHING`,
		chatID, def.LeadMinutes, boolInt(def.NotifyBefore), boolInt(def.NotifyStart), boolInt(def.NotifyEnd),
		boolInt(def.Quiet.Enabled), def.Quiet.Start, def.Quiet.End, s.now().UnixMilli(),
	)
	if err != nil {
		return schedule.Prefs{}, err
	}

	var (
		p                         schedule.Prefs
		before, start, end, quiet int
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT lead_minutes, notify_before, notify_start, notify_end, quiet_enabled, quiet_start, quiet_end
		 FROM notification_prefs WHERE chat_id = ?`, chatID,
	).Scan(&p.LeadMinutes, &before, &start, &end, &quiet, &p.Quiet.Start, &p.Quiet.End)
	if err != nil {
		return schedule.Prefs{}, err
	}
	p.NotifyBefore = before != 0
	p.NotifyStart = start != 0
	p.NotifyEnd = end != 0
	p.Quiet.Enabled = quiet != 0
	return p, nil
}

func (s *sqliteStore) UpdatePrefs(ctx context.Context, chatID int64, patch schedule.PrefsPatch) (schedule.Prefs, error) {
	cur, err := s.GetPrefs(ctx, chatID)
	if err != nil {
		return schedule.Prefs{}, err
	}
	next, err := cur.Apply(patch)
	if err != nil {
		return cur, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE notification_prefs SET lead_minutes = ?, notify_before = ?, notify_start = ?, notify_end = ?,
		   quiet_enabled = ?, quiet_start = ?, quiet_end = ?, updated_at = ?
		 WHERE chat_id = ?`,
		next.LeadMinutes, boolInt(next.NotifyBefore), boolInt(next.NotifyStart), boolInt(next.NotifyEnd),
		boolInt(next.Quiet.Enabled), next.Quiet.Start, next.Quiet.End, s.now().UnixMilli(), chatID,
	)
	if err != nil {
		return cur, err
	}
	return next, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
