// Package snapshot detects which (date, queue) payloads changed since the
// previous refresh by comparing content hashes against the stored baseline.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"outagebot/internal/schedule"
	"outagebot/internal/storage"
	logx "outagebot/pkg/logx"
)

// Change is one key whose content differs from the stored baseline.
// PrevHash is empty when the key had no stored payload.
type Change struct {
	Date     string
	Queue    string
	PrevHash string
	NextHash string
	Payload  schedule.Payload
}

// Appeared reports whether this is the first payload seen for the key.
func (c Change) Appeared() bool { return c.PrevHash == "" }

// Engine diffs payloads against a SnapshotStore.
type Engine struct {
	store storage.SnapshotStore
	log   logx.Logger
	now   func() time.Time
}

func New(store storage.SnapshotStore, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{store: store, log: log, now: time.Now}
}

// Payloads flattens normalized days into per-queue payloads, ordered by
// date then queue.
func Payloads(days []schedule.DaySchedule) []schedule.Payload {
	var out []schedule.Payload
	for _, d := range days {
		for _, q := range d.QueueIDs() {
			out = append(out, d.Payload(q))
		}
	}
	return out
}

// Apply hashes every payload, compares it with the stored one and returns
// the keys that changed. Every payload is upserted whether it changed or
// not. Keys that disappeared from the input are left untouched and produce
// no Change.
func (e *Engine) Apply(ctx context.Context, payloads []schedule.Payload) ([]Change, error) {
	var changes []Change
	at := e.now()
	for _, p := range payloads {
		canon, err := p.Canonical()
		if err != nil {
			return changes, fmt.Errorf("encode %s/%s: %w", p.Date, p.Queue, err)
		}
		next := schedule.SHA256Hex(canon)

		prev, err := e.storedHash(ctx, p.Date, p.Queue)
		if err != nil {
			return changes, err
		}
		if prev != next {
			changes = append(changes, Change{Date: p.Date, Queue: p.Queue, PrevHash: prev, NextHash: next, Payload: p})
		}

		if err := e.store.UpsertSnapshot(ctx, storage.Snapshot{Date: p.Date, Queue: p.Queue, Payload: canon, UpdatedAt: at}); err != nil {
			return changes, fmt.Errorf("upsert snapshot %s/%s: %w", p.Date, p.Queue, err)
		}
	}
	return changes, nil
}

func (e *Engine) storedHash(ctx context.Context, date, queue string) (string, error) {
	snap, err := e.store.GetSnapshot(ctx, date, queue)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load snapshot %s/%s: %w", date, queue, err)
	}
	h, err := schedule.HashStored(snap.Payload)
	if err != nil {
		// An unreadable baseline still counts as a prior version, so the
		// key is reported as updated rather than newly appeared.
		e.log.Warn("stored snapshot unreadable",
			logx.String("date", date), logx.String("queue", queue), logx.Err(err))
		return schedule.SHA256Hex(snap.Payload), nil
	}
	return h, nil
}

// Load returns the stored payload for a key. ok is false when none exists.
func Load(ctx context.Context, store storage.SnapshotStore, date, queue string) (p schedule.Payload, ok bool, err error) {
	snap, err := store.GetSnapshot(ctx, date, queue)
	if errors.Is(err, storage.ErrNotFound) {
		return schedule.Payload{}, false, nil
	}
	if err != nil {
		return schedule.Payload{}, false, err
	}
	p, err = schedule.DecodePayload(snap.Payload)
	if err != nil {
		return schedule.Payload{}, false, err
	}
	return p, true, nil
}
