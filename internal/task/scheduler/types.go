package scheduler

import (
	"errors"
	"sync"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/eventbus"
	logx "alarmbot/pkg/logx"
)

var ErrStopped = errors.New("scheduler stopped")

// Event types published on the bus.
const (
	EventArmed     = "alarm.armed"
	EventCancelled = "alarm.cancelled"
	EventFired     = "alarm.fired"
)

// Config controls the scheduler.
type Config struct {
	// Location is the single zone all times of day are interpreted in.
	Location *time.Location
	// Clock defaults to the wall clock.
	Clock Clock
}

// Fired describes one timer expiry.
type Fired struct {
	ID          string
	Alarm       alarm.Alarm
	ScheduledAt time.Time
	FiredAt     time.Time
	Transient   bool
	// Next is the re-armed fire time for recurring alarms; zero otherwise.
	Next time.Time
}

// FireHandler receives fired timers. It runs on the timer's goroutine after
// the registry lock is released, so it may call back into the Service.
type FireHandler func(f Fired)

// Entry is a read-only view of an armed timer.
type Entry struct {
	Key   alarm.Key
	Alarm alarm.Alarm
	Next  time.Time
}

// TimerEvent is the Data of bus events.
type TimerEvent struct {
	ID         string    `json:"id"`
	Owner      int64     `json:"owner"`
	At         string    `json:"at,omitempty"`
	Recurrence string    `json:"recurrence,omitempty"`
	Next       time.Time `json:"next,omitempty"`
	Transient  bool      `json:"transient,omitempty"`
}

type entry struct {
	id        string
	alarm     alarm.Alarm
	next      time.Time
	gen       uint64
	timer     Timer
	transient bool
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   eventbus.Bus
	clock Clock
	loc   *time.Location

	onFire FireHandler

	gen       uint64
	armed     map[alarm.Key]*entry
	transient map[string]*entry
	stopped   bool
}
