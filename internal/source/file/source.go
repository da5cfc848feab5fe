// Package file serves schedules from a local JSON or YAML document. It is
// used for dry runs and for feeding schedules by hand when the utility page
// is unavailable.
//
// Document shape:
//
//	days:
//	  - date: "2025-01-01"
//	    queues:
//	      "1.1":
//	        - { from: "20:00", to: "00:00" }
//	    adjustments: []
package file

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"outagebot/internal/config"
	"outagebot/internal/schedule"
	logx "outagebot/pkg/logx"
)

type document struct {
	Days []schedule.DaySchedule `json:"days"`
}

type Source struct {
	path string
	log  logx.Logger
}

func New(path string, log logx.Logger) *Source {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{path: strings.TrimSpace(path), log: log}
}

// FetchPageFingerprintInput returns the whole document; any edit counts as a
// change.
func (s *Source) FetchPageFingerprintInput(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *Source) FetchRawSchedule(ctx context.Context) ([]schedule.DaySchedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var doc document
	if err := config.DecodeStrict(s.path, b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	seen := make(map[string]bool, len(doc.Days))
	for i, d := range doc.Days {
		if _, err := time.Parse(time.DateOnly, d.Date); err != nil {
			return nil, fmt.Errorf("days[%d]: invalid date %q", i, d.Date)
		}
		if seen[d.Date] {
			return nil, fmt.Errorf("days[%d]: duplicate date %s", i, d.Date)
		}
		seen[d.Date] = true
		if doc.Days[i].Queues == nil {
			doc.Days[i].Queues = map[string][]schedule.Interval{}
		}
		for q := range d.Queues {
			if !schedule.ValidQueue(q) {
				s.log.Warn("file source: unknown queue", logx.String("date", d.Date), logx.String("queue", q))
			}
		}
	}
	s.log.Debug("file source loaded", logx.String("path", s.path), logx.Int("days", len(doc.Days)))
	return doc.Days, nil
}
