package schedule

import (
	"sort"
)

// MergeJoin separates the raw source lines of two intervals joined by the
// midnight merge.
const MergeJoin = " ⏎ "

// Normalize folds outages that the publisher split at midnight into one
// interval on the earlier day.
//
// Days are sorted ascending. For every pair of calendar-adjacent days and
// every queue, when day N's last interval ends at 00:00 (toNextDay=false)
// and day N+1's first interval starts at 00:00, the two become one interval
// on day N with toNextDay=true, and day N+1's first interval is replaced by
// a shadow copy of the merged interval. Shadow intervals never take part in
// a merge, so running Normalize on its own output changes nothing.
//
// The input is not modified.
func Normalize(days []DaySchedule) []DaySchedule {
	out := make([]DaySchedule, len(days))
	for i, d := range days {
		out[i] = d.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date < out[j].Date })

	for i := 0; i+1 < len(out); i++ {
		a, b := &out[i], &out[i+1]
		next, err := AddDays(a.Date, 1)
		if err != nil || next != b.Date {
			continue
		}
		for _, q := range unionQueues(a, b) {
			mergeQueue(a, b, q)
		}
	}
	return out
}

func unionQueues(a, b *DaySchedule) []string {
	seen := map[string]struct{}{}
	for q := range a.Queues {
		seen[q] = struct{}{}
	}
	for q := range b.Queues {
		seen[q] = struct{}{}
	}
	qs := make([]string, 0, len(seen))
	for q := range seen {
		qs = append(qs, q)
	}
	sort.Strings(qs)
	return qs
}

func mergeQueue(a, b *DaySchedule, queue string) {
	left, right := a.Queues[queue], b.Queues[queue]
	if len(left) == 0 || len(right) == 0 {
		return
	}
	lastA := left[len(left)-1]
	firstB := right[0]
	if lastA.Kind() != Real || firstB.Kind() != Real {
		return
	}
	if lastA.To != Midnight || lastA.ToNextDay || firstB.From != Midnight {
		return
	}

	merged := Interval{
		From:      lastA.From,
		To:        firstB.To,
		ToNextDay: true,
		Raw:       lastA.Raw + MergeJoin + firstB.Raw,
	}
	shadow := merged
	shadow.ToNextDay = false
	shadow.Shadow = true

	left[len(left)-1] = merged
	right[0] = shadow
}
