package schedule

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Payload is the per-(date, queue) unit that gets hashed, diffed and stored.
type Payload struct {
	Date        string       `json:"date"`
	Queue       string       `json:"queue"`
	Outages     []Interval   `json:"outages"`
	Adjustments []Adjustment `json:"adjustments"`
}

// Canonical returns the stable JSON encoding used for hashing and storage.
// Empty lists encode as [] so that a nil and an empty slice hash the same.
func (p Payload) Canonical() ([]byte, error) {
	if p.Outages == nil {
		p.Outages = []Interval{}
	}
	if p.Adjustments == nil {
		p.Adjustments = []Adjustment{}
	}
	for i := range p.Adjustments {
		if p.Adjustments[i].Queues == nil {
			p.Adjustments[i].Queues = []string{}
		}
	}
	return json.Marshal(p)
}

// Hash is the hex sha256 of the canonical encoding.
func (p Payload) Hash() (string, error) {
	b, err := p.Canonical()
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

// DecodePayload parses a stored payload.
func DecodePayload(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

// HashStored re-derives the hash of a stored payload. Decoding and
// re-encoding keeps the hash stable even if the stored bytes were written
// with different whitespace or key order.
func HashStored(raw []byte) (string, error) {
	p, err := DecodePayload(raw)
	if err != nil {
		return "", err
	}
	return p.Hash()
}

// SHA256Hex returns the lowercase hex sha256 of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// RealIntervals returns the intervals that can fire notifications.
func (p Payload) RealIntervals() []Interval {
	out := make([]Interval, 0, len(p.Outages))
	for _, iv := range p.Outages {
		if iv.Kind() == Real {
			out = append(out, iv)
		}
	}
	return out
}

// Window is a real outage resolved to absolute instants. Only real
// intervals become windows, so code that fires on windows cannot fire on a
// shadow duplicate.
type Window struct {
	Date  string
	Start time.Time
	End   time.Time
	Raw   string
}

// Span renders the window as "HH:MM–HH:MM".
func (w Window) Span() string {
	return w.Start.Format("15:04") + "–" + w.End.Format("15:04")
}

// Windows resolves the payload's real intervals in loc. Intervals with a
// malformed time are skipped and reported in the joined error; the
// returned windows are usable either way.
//
// An interval ending at 00:00 that was not merged ends at the following
// midnight.
func (p Payload) Windows(loc *time.Location) ([]Window, error) {
	var (
		out  []Window
		errs []error
	)
	for _, iv := range p.RealIntervals() {
		start, err := At(p.Date, iv.From, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		end, err := At(p.Date, iv.To, loc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if iv.ToNextDay || !end.After(start) {
			end = end.AddDate(0, 0, 1)
		}
		out = append(out, Window{Date: p.Date, Start: start, End: end, Raw: iv.Raw})
	}
	return out, errors.Join(errs...)
}
