package schedule

import (
	"strings"
)

// FormatDateUA renders an ISO date as dd.mm.yyyy.
func FormatDateUA(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return date
	}
	return parts[2] + "." + parts[1] + "." + parts[0]
}

// FormatInterval renders "HH:MM–HH:MM", marking ends on the next day.
func FormatInterval(iv Interval) string {
	s := iv.From + "–" + iv.To
	if iv.ToNextDay {
		s += " (+1 день)"
	}
	return s
}

// FormatIntervalsShort renders real intervals comma-separated, or "—".
func FormatIntervalsShort(outages []Interval) string {
	parts := make([]string, 0, len(outages))
	for _, iv := range outages {
		if iv.Kind() != Real {
			continue
		}
		parts = append(parts, FormatInterval(iv))
	}
	if len(parts) == 0 {
		return "—"
	}
	return strings.Join(parts, ", ")
}

// FormatAdjustmentsShort renders up to limit bullet lines for queue.
// ok is false when nothing applies.
func FormatAdjustmentsShort(adjs []Adjustment, queue string, limit int) (text string, ok bool) {
	lines := make([]string, 0, limit)
	for _, a := range adjs {
		if !a.Covers(queue) {
			continue
		}
		t := strings.TrimSpace(a.Text)
		if t == "" {
			continue
		}
		if limit > 0 && len(lines) == limit {
			break
		}
		lines = append(lines, "• "+t)
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// FormatDayView renders a chat's queues for one day.
func FormatDayView(tomorrow bool, date string, payloads []Payload) string {
	var b strings.Builder
	if tomorrow {
		b.WriteString("Графік на завтра (" + FormatDateUA(date) + "):")
	} else {
		b.WriteString("Графік на сьогодні (" + FormatDateUA(date) + "):")
	}

	found := false
	for _, p := range payloads {
		if len(p.RealIntervals()) > 0 || len(p.Adjustments) > 0 {
			found = true
			break
		}
	}
	if !found {
		b.WriteString("\n\nВідключень для твоїх черг не знайдено.")
		return b.String()
	}

	for _, p := range payloads {
		b.WriteString("\n\nПідчерга " + p.Queue + ":")
		ivs := p.RealIntervals()
		if len(ivs) == 0 {
			b.WriteString(" відключень не знайдено.")
		}
		for _, iv := range ivs {
			b.WriteString("\n• " + FormatInterval(iv))
		}
		if adj, ok := FormatAdjustmentsShort(p.Adjustments, p.Queue, 3); ok {
			b.WriteString("\nОперативні зміни:\n" + adj)
		}
	}
	return b.String()
}
