package alarm

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultMessage is the prompt used when an alarm is created without text.
const DefaultMessage = "Alarm!"

// TimeOfDay is a wall-clock time (minute resolution) in the bot's fixed zone.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts "H:MM" or "HH:MM" with hour 0-23 and minute 0-59.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	raw := strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok || !isDigits(hh) || !isDigits(mm) || len(hh) > 2 || len(mm) > 2 {
		return TimeOfDay{}, invalid("time", s, "expected HH:MM")
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, invalid("time", s, "hour must be 00-23")
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return TimeOfDay{}, invalid("time", s, "minute must be 00-59")
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// MustTime is ParseTimeOfDay for constants; it panics on bad input.
func MustTime(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Minutes returns minutes since midnight; used for ordering.
func (t TimeOfDay) Minutes() int { return t.Hour*60 + t.Minute }

type Recurrence uint8

const (
	Daily Recurrence = iota
	Workdays
	Once
)

// ParseRecurrence maps the persisted token to a Recurrence.
// An empty token means Daily so older records without a type still load.
func ParseRecurrence(s string) (Recurrence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "daily":
		return Daily, nil
	case "workdays", "workday", "weekdays":
		return Workdays, nil
	case "once":
		return Once, nil
	default:
		return Daily, invalid("type", s, "expected daily, workdays or once")
	}
}

// String returns the persisted token.
func (r Recurrence) String() string {
	switch r {
	case Workdays:
		return "workdays"
	case Once:
		return "once"
	default:
		return "daily"
	}
}

// Label is the human form shown in listings.
func (r Recurrence) Label() string {
	switch r {
	case Workdays:
		return "Mon-Fri"
	case Once:
		return "Once"
	default:
		return "Every day"
	}
}

func (r Recurrence) Recurring() bool { return r != Once }

// Key identifies an alarm: one per owner per time of day.
type Key struct {
	Owner int64
	At    TimeOfDay
}

func (k Key) String() string { return strconv.FormatInt(k.Owner, 10) + "@" + k.At.String() }

// Alarm is the durable definition of a user alarm.
type Alarm struct {
	Owner      int64
	At         TimeOfDay
	Message    string
	Recurrence Recurrence
}

// New builds an alarm, substituting DefaultMessage for blank text.
func New(owner int64, at TimeOfDay, message string, rec Recurrence) Alarm {
	message = strings.TrimSpace(message)
	if message == "" {
		message = DefaultMessage
	}
	return Alarm{Owner: owner, At: at, Message: message, Recurrence: rec}
}

func (a Alarm) Key() Key { return Key{Owner: a.Owner, At: a.At} }
