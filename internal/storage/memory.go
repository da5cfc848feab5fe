package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"outagebot/internal/schedule"
)

// Memory is a process-local Store. Contents are lost on exit.
type Memory struct {
	mu        sync.Mutex
	snapshots map[string]Snapshot
	sent      map[string]SentEvent
	cache     map[string]string
	subs      map[int64]map[string]struct{}
	prefs     map[int64]schedule.Prefs
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		snapshots: map[string]Snapshot{},
		sent:      map[string]SentEvent{},
		cache:     map[string]string{},
		subs:      map[int64]map[string]struct{}{},
		prefs:     map[int64]schedule.Prefs{},
		now:       time.Now,
	}
}

func snapKey(date, queue string) string { return date + "|" + queue }

func (m *Memory) Ping(context.Context) error { return nil }
func (m *Memory) Close() error               { return nil }

func (m *Memory) GetSnapshot(_ context.Context, date, queue string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[snapKey(date, queue)]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	s.Payload = append([]byte(nil), s.Payload...)
	return s, nil
}

func (m *Memory) UpsertSnapshot(_ context.Context, s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = m.now()
	}
	s.Payload = append([]byte(nil), s.Payload...)
	m.snapshots[snapKey(s.Date, s.Queue)] = s
	return nil
}

func (m *Memory) WasSent(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sent[eventID]
	return ok, nil
}

func (m *Memory) MarkSent(_ context.Context, e SentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sent[e.EventID]; ok {
		return nil
	}
	if e.SentAt.IsZero() {
		e.SentAt = m.now()
	}
	m.sent[e.EventID] = e
	return nil
}

func (m *Memory) PruneSent(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, e := range m.sent {
		if e.SentAt.Before(before) {
			delete(m.sent, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) GetValue(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.cache[key]
	return v, ok, nil
}

func (m *Memory) SetValue(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[key] = value
	return nil
}

func (m *Memory) AddSubscription(_ context.Context, chatID int64, queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := m.subs[chatID]
	if set == nil {
		set = map[string]struct{}{}
		m.subs[chatID] = set
	}
	set[queue] = struct{}{}
	return nil
}

func (m *Memory) RemoveSubscription(_ context.Context, chatID int64, queue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs[chatID], queue)
	if len(m.subs[chatID]) == 0 {
		delete(m.subs, chatID)
	}
	return nil
}

func (m *Memory) ClearSubscriptions(_ context.Context, chatID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, chatID)
	return nil
}

func (m *Memory) ListQueues(_ context.Context, chatID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedQueues(m.subs[chatID]), nil
}

func (m *Memory) ListAllSubscriptions(context.Context) ([]Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]int64, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]Subscription, 0, len(ids))
	for _, id := range ids {
		out = append(out, Subscription{ChatID: id, Queues: sortedQueues(m.subs[id])})
	}
	return out, nil
}

func sortedQueues(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for q := range set {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) GetPrefs(_ context.Context, chatID int64) (schedule.Prefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prefsLocked(chatID), nil
}

func (m *Memory) prefsLocked(chatID int64) schedule.Prefs {
	p, ok := m.prefs[chatID]
	if !ok {
		p = schedule.DefaultPrefs()
		m.prefs[chatID] = p
	}
	return p
}

func (m *Memory) UpdatePrefs(_ context.Context, chatID int64, patch schedule.PrefsPatch) (schedule.Prefs, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := m.prefsLocked(chatID)
	next, err := cur.Apply(patch)
	if err != nil {
		return cur, err
	}
	m.prefs[chatID] = next
	return next, nil
}

// SentCount is a test helper reporting the number of ledger rows.
func (m *Memory) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
