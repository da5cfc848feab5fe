package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"outagebot/internal/schedule"
	logx "outagebot/pkg/logx"
)

//go:embed migrations/postgres/*.sql
var postgresMigrations embed.FS

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
	now  func() time.Time
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := migratePostgres(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres store ready")
	return &postgresStore{pool: pool, log: log, now: time.Now}, nil
}

func migratePostgres(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(postgresMigrations)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := goose.UpContext(ctx, db, "migrations/postgres"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *postgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *postgresStore) GetSnapshot(ctx context.Context, date, queue string) (Snapshot, error) {
	out := Snapshot{Date: date, Queue: queue}
	var payload string
	err := s.pool.QueryRow(ctx,
		`SELECT payload, updated_at FROM outages_snapshot WHERE date = $1 AND queue = $2`, date, queue,
	).Scan(&payload, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, err
	}
	out.Payload = []byte(payload)
	return out, nil
}

func (s *postgresStore) UpsertSnapshot(ctx context.Context, snap Snapshot) error {
	at := snap.UpdatedAt
	if at.IsZero() {
		at = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO outages_snapshot(date, queue, payload, updated_at) VALUES($1,$2,$3,$4)
		 ON CONFLICT (date, queue) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		snap.Date, snap.Queue, string(snap.Payload), at,
	)
	return err
}

func (s *postgresStore) WasSent(ctx context.Context, eventID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sent_events WHERE event_id = $1)`, eventID).Scan(&ok)
	return ok, err
}

func (s *postgresStore) MarkSent(ctx context.Context, e SentEvent) error {
	if e.SentAt.IsZero() {
		e.SentAt = s.now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sent_events(event_id, chat_id, queue, type, scheduled_at, sent_at) VALUES($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (event_id) DO NOTHING`,
		e.EventID, e.ChatID, e.Queue, e.Type, e.ScheduledAt, e.SentAt,
	)
	return err
}

func (s *postgresStore) PruneSent(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sent_events WHERE sent_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *postgresStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM cache_state WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *postgresStore) SetValue(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cache_state(key, value, updated_at) VALUES($1,$2,now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value,
	)
	return err
}

func (s *postgresStore) AddSubscription(ctx context.Context, chatID int64, queue string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions(chat_id, queue) VALUES($1,$2) ON CONFLICT (chat_id, queue) DO NOTHING`,
		chatID, queue,
	)
	return err
}

func (s *postgresStore) RemoveSubscription(ctx context.Context, chatID int64, queue string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE chat_id = $1 AND queue = $2`, chatID, queue)
	return err
}

func (s *postgresStore) ClearSubscriptions(ctx context.Context, chatID int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE chat_id = $1`, chatID)
	return err
}

func (s *postgresStore) ListQueues(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT queue FROM subscriptions WHERE chat_id = $1 ORDER BY queue`, chatID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *postgresStore) ListAllSubscriptions(ctx context.Context) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `SELECT chat_id, queue FROM subscriptions ORDER BY chat_id, queue`)
	if err != nil {
		return nil, err
	}
	raw, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (subRow, error) {
		var sr subRow
		err := r.Scan(&sr.chatID, &sr.queue)
		return sr, err
	})
	if err != nil {
		return nil, err
	}
	return groupSubscriptions(raw), nil
}

func (s *postgresStore) GetPrefs(ctx context.Context, chatID int64) (schedule.Prefs, error) {
	def := schedule.DefaultPrefs()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_prefs(chat_id, lead_minutes, notify_before, notify_start, notify_end,
		   quiet_enabled, quiet_start, quiet_end)
		 VALUES($1,$2,$3,$4,$5,$6,$7,$8) ON CONFLICT (chat_id) DO NOTHING`,
		chatID, def.LeadMinutes, def.NotifyBefore, def.NotifyStart, def.NotifyEnd,
		def.Quiet.Enabled, def.Quiet.Start, def.Quiet.End,
	)
	if err != nil {
		return schedule.Prefs{}, err
	}
	var p schedule.Prefs
	err = s.pool.QueryRow(ctx,
		`SELECT lead_minutes, notify_before, notify_start, notify_end, quiet_enabled, quiet_start, quiet_end
		 FROM notification_prefs WHERE chat_id = $1`, chatID,
	).Scan(&p.LeadMinutes, &p.NotifyBefore, &p.NotifyStart, &p.NotifyEnd, &p.Quiet.Enabled, &p.Quiet.Start, &p.Quiet.End)
	if err != nil {
		return schedule.Prefs{}, err
	}
	return p, nil
}

func (s *postgresStore) UpdatePrefs(ctx context.Context, chatID int64, patch schedule.PrefsPatch) (schedule.Prefs, error) {
	cur, err := s.GetPrefs(ctx, chatID)
	if err != nil {
		return schedule.Prefs{}, err
	}
	next, err := cur.Apply(patch)
	if err != nil {
		return cur, err
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE notification_prefs SET lead_minutes = $1, notify_before = $2, notify_start = $3, notify_end = $4,
		   quiet_enabled = $5, quiet_start = $6, quiet_end = $7, updated_at = now()
		 WHERE chat_id = $8`,
		next.LeadMinutes, next.NotifyBefore, next.NotifyStart, next.NotifyEnd,
		next.Quiet.Enabled, next.Quiet.Start, next.Quiet.End, chatID,
	)
	if err != nil {
		return cur, err
	}
	return next, nil
}
