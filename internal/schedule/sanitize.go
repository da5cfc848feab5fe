package schedule

import "errors"

// Sanitize repairs source time strings with SanitizeClock and drops the
// intervals and adjustments that still do not parse. The dropped entries
// are reported as a joined MalformedTimeError; the returned days are
// usable either way. The input is not modified.
func Sanitize(days []DaySchedule) ([]DaySchedule, error) {
	var errs []error
	out := make([]DaySchedule, 0, len(days))
	for _, d := range days {
		c := d.Clone()
		for q, ivs := range c.Queues {
			kept := ivs[:0]
			for _, iv := range ivs {
				iv.From = SanitizeClock(iv.From)
				iv.To = SanitizeClock(iv.To)
				if err := validClocks(iv.From, iv.To); err != nil {
					errs = append(errs, err)
					continue
				}
				kept = append(kept, iv)
			}
			c.Queues[q] = kept
		}
		adjs := c.Adjustments[:0]
		for _, a := range c.Adjustments {
			a.Time = SanitizeClock(a.Time)
			if _, _, err := ParseClock(a.Time); err != nil {
				errs = append(errs, err)
				continue
			}
			adjs = append(adjs, a)
		}
		c.Adjustments = adjs
		out = append(out, c)
	}
	return out, errors.Join(errs...)
}

func validClocks(vals ...string) error {
	for _, v := range vals {
		if _, _, err := ParseClock(v); err != nil {
			return err
		}
	}
	return nil
}
