package alarm

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// NextFire returns the next instant strictly after now at which an alarm with
// the given time of day and recurrence fires. The result is in now's location,
// which callers set to the bot's configured zone.
func NextFire(at TimeOfDay, rec Recurrence, now time.Time) time.Time {
	loc := now.Location()
	y, m, d := now.Date()
	next := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
	for !next.After(now) {
		d++
		next = time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
	}
	if rec == Workdays {
		for isWeekend(next.Weekday()) {
			d++
			next = time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
		}
	}
	return next
}

func isWeekend(wd time.Weekday) bool { return wd == time.Saturday || wd == time.Sunday }

// CronSpec renders the standard five-field cron expression equivalent to a
// recurring alarm. Once alarms have no cron form.
func CronSpec(at TimeOfDay, rec Recurrence) (string, bool) {
	switch rec {
	case Daily:
		return fmt.Sprintf("%d %d * * *", at.Minute, at.Hour), true
	case Workdays:
		return fmt.Sprintf("%d %d * * 1-5", at.Minute, at.Hour), true
	default:
		return "", false
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Upcoming previews up to n fire times after now. Once alarms yield a single
// instant.
func Upcoming(at TimeOfDay, rec Recurrence, now time.Time, n int) []time.Time {
	if n <= 0 {
		return nil
	}
	spec, ok := CronSpec(at, rec)
	if !ok {
		return []time.Time{NextFire(at, rec, now)}
	}
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return []time.Time{NextFire(at, rec, now)}
	}
	out := make([]time.Time, 0, n)
	t := now
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out
}
