package schedule

import (
	"errors"
	"regexp"
	"slices"
	"sort"
)

// Kind tells a real outage interval apart from the display-only duplicate
// the midnight merge leaves on the following day.
type Kind uint8

const (
	Real Kind = iota
	ShadowDuplicate
)

func (k Kind) String() string {
	if k == ShadowDuplicate {
		return "shadow"
	}
	return "real"
}

// Interval is one published outage window on a given day.
//
// The JSON shape is stored in snapshots and hashed, so field names and
// order are part of the persisted format.
type Interval struct {
	From      string `json:"from"`
	To        string `json:"to"`
	ToNextDay bool   `json:"toNextDay"`
	Shadow    bool   `json:"shadow"`
	Raw       string `json:"raw"`
}

func (iv Interval) Kind() Kind {
	if iv.Shadow {
		return ShadowDuplicate
	}
	return Real
}

type AdjustmentKind string

const (
	AdjustStartAt   AdjustmentKind = "start_at"
	AdjustEndAt     AdjustmentKind = "end_at"
	AdjustPowerOnAt AdjustmentKind = "power_on_at"
)

// Adjustment is an out-of-band correction published next to the base
// schedule. It is displayed, never used for firing times.
type Adjustment struct {
	Queues       []string       `json:"queues"`
	Kind         AdjustmentKind `json:"kind"`
	Time         string         `json:"time"`
	Text         string         `json:"text"`
	SectionTitle string         `json:"sectionTitle,omitempty"`
}

// Covers reports whether the adjustment names queue.
func (a Adjustment) Covers(queue string) bool {
	return slices.Contains(a.Queues, queue)
}

// DaySchedule is everything published for one date.
type DaySchedule struct {
	Date        string                `json:"date"`
	Queues      map[string][]Interval `json:"queues"`
	Adjustments []Adjustment          `json:"adjustments"`
}

// Clone returns a deep copy.
func (d DaySchedule) Clone() DaySchedule {
	out := DaySchedule{Date: d.Date, Queues: make(map[string][]Interval, len(d.Queues))}
	for q, ivs := range d.Queues {
		out.Queues[q] = append([]Interval(nil), ivs...)
	}
	for _, a := range d.Adjustments {
		a.Queues = append([]string(nil), a.Queues...)
		out.Adjustments = append(out.Adjustments, a)
	}
	return out
}

// QueueIDs returns the union of queues that have intervals and queues named
// by adjustments, sorted.
func (d DaySchedule) QueueIDs() []string {
	seen := map[string]struct{}{}
	for q := range d.Queues {
		seen[q] = struct{}{}
	}
	for _, a := range d.Adjustments {
		for _, q := range a.Queues {
			seen[q] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for q := range seen {
		out = append(out, q)
	}
	sort.Strings(out)
	return out
}

// Payload builds the per-queue view of the day.
func (d DaySchedule) Payload(queue string) Payload {
	p := Payload{Date: d.Date, Queue: queue}
	p.Outages = append(p.Outages, d.Queues[queue]...)
	for _, a := range d.Adjustments {
		if a.Covers(queue) {
			a.Queues = append([]string(nil), a.Queues...)
			p.Adjustments = append(p.Adjustments, a)
		}
	}
	return p
}

// HasAnyOutages reports whether any queue has a real interval that day.
func (d DaySchedule) HasAnyOutages() bool {
	for _, ivs := range d.Queues {
		for _, iv := range ivs {
			if iv.Kind() == Real {
				return true
			}
		}
	}
	return false
}

var reQueue = regexp.MustCompile(`^\d+\.\d+$`)

// ErrInvalidQueue is returned for user input that is not a queue id.
var ErrInvalidQueue = errors.New(`invalid queue, expected a value like "1.1"`)

// ValidQueue reports whether q looks like a queue id ("1.1", "6.2").
func ValidQueue(q string) bool { return reQueue.MatchString(q) }

// KnownQueues is the queue set the regional utility publishes.
var KnownQueues = []string{"1.1", "1.2", "2.1", "2.2", "3.1", "3.2", "4.1", "4.2", "5.1", "5.2", "6.1", "6.2"}
