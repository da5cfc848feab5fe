package alerts

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"outagebot/internal/schedule"
)

type EventType string

const (
	EventBefore EventType = "BEFORE"
	EventStart  EventType = "START"
	EventEnd    EventType = "END"
)

// EventID is chat|queue|date|TYPE|instant. date is the day the instant
// belongs to for END and the interval's own day otherwise.
func EventID(chatID int64, queue, date string, typ EventType, instant time.Time) string {
	return strings.Join([]string{
		strconv.FormatInt(chatID, 10),
		queue,
		date,
		string(typ),
		instant.Format(time.RFC3339),
	}, "|")
}

// QueueLookupError is a failure loading a queue's payload during a tick.
// Only that queue is skipped.
type QueueLookupError struct {
	Queue string
	Date  string
	Err   error
}

func (e *QueueLookupError) Error() string {
	return fmt.Sprintf("lookup queue %s on %s: %v", e.Queue, e.Date, e.Err)
}

func (e *QueueLookupError) Unwrap() error { return e.Err }

func messageFor(typ EventType, queue string, w schedule.Window, lead int) string {
	switch typ {
	case EventBefore:
		return fmt.Sprintf("⏳ Підчерга %s: через %d хв буде відключення (%s).", queue, lead, w.Span())
	case EventStart:
		return fmt.Sprintf("🔌 Підчерга %s: відключення почалось (%s).", queue, w.Span())
	default:
		return fmt.Sprintf("✅ Підчерга %s: відключення завершилось (%s), мало з’явитись світло.", queue, w.Span())
	}
}
