package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// QuietHours is a daily window during which a chat receives nothing.
type QuietHours struct {
	Enabled bool
	Start   string
	End     string
}

// Active reports whether now (already in the schedule timezone) falls in
// the window.
//
//   - disabled: never quiet
//   - Start == End: always quiet
//   - Start < End: quiet on [Start, End)
//   - Start > End: wraps midnight, quiet when now >= Start or now < End
//
// A window with an unparsable bound is treated as not quiet.
func (q QuietHours) Active(now time.Time) bool {
	if !q.Enabled {
		return false
	}
	start, err := ClockMinutes(q.Start)
	if err != nil {
		return false
	}
	end, err := ClockMinutes(q.End)
	if err != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()
	switch {
	case start == end:
		return true
	case start < end:
		return cur >= start && cur < end
	default:
		return cur >= start || cur < end
	}
}

// ParseQuietRange parses "HH:MM-HH:MM" (an en dash is accepted too).
func ParseQuietRange(s string) (start, end string, err error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "–", "-")
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("invalid quiet range %q, expected HH:MM-HH:MM", s)
	}
	start = SanitizeClock(parts[0])
	end = SanitizeClock(parts[1])
	if _, _, err := ParseClock(start); err != nil {
		return "", "", err
	}
	if _, _, err := ParseClock(end); err != nil {
		return "", "", err
	}
	return start, end, nil
}

// ---- Preferences ----

const (
	DefaultLeadMinutes = 30
	MaxLeadMinutes     = 180
)

var ErrInvalidLead = errors.New("lead minutes must be within 0..180")

// Prefs are a chat's notification preferences.
type Prefs struct {
	LeadMinutes  int
	NotifyBefore bool
	NotifyStart  bool
	NotifyEnd    bool
	Quiet        QuietHours
}

// DefaultPrefs is what a chat gets on first access.
func DefaultPrefs() Prefs {
	return Prefs{
		LeadMinutes:  DefaultLeadMinutes,
		NotifyBefore: true,
		NotifyStart:  true,
		NotifyEnd:    true,
		Quiet:        QuietHours{Enabled: true, Start: "22:00", End: "08:00"},
	}
}

// PrefsPatch is a partial update; nil fields are left alone.
type PrefsPatch struct {
	LeadMinutes  *int
	NotifyBefore *bool
	NotifyStart  *bool
	NotifyEnd    *bool
	QuietEnabled *bool
	QuietStart   *string
	QuietEnd     *string
}

// Apply returns p with patch applied, or an error if the result is invalid.
func (p Prefs) Apply(patch PrefsPatch) (Prefs, error) {
	orig := p
	if patch.LeadMinutes != nil {
		if *patch.LeadMinutes < 0 || *patch.LeadMinutes > MaxLeadMinutes {
			return orig, ErrInvalidLead
		}
		p.LeadMinutes = *patch.LeadMinutes
	}
	if patch.NotifyBefore != nil {
		p.NotifyBefore = *patch.NotifyBefore
	}
	if patch.NotifyStart != nil {
		p.NotifyStart = *patch.NotifyStart
	}
	if patch.NotifyEnd != nil {
		p.NotifyEnd = *patch.NotifyEnd
	}
	if patch.QuietEnabled != nil {
		p.Quiet.Enabled = *patch.QuietEnabled
	}
	if patch.QuietStart != nil {
		if _, _, err := ParseClock(*patch.QuietStart); err != nil {
			return orig, err
		}
		p.Quiet.Start = *patch.QuietStart
	}
	if patch.QuietEnd != nil {
		if _, _, err := ParseClock(*patch.QuietEnd); err != nil {
			return orig, err
		}
		p.Quiet.End = *patch.QuietEnd
	}
	return p, nil
}
