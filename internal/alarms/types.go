package alarms

import (
	"context"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/task/scheduler"
	kit "alarmbot/internal/transport"
)

const (
	TestMessage   = "TESTING!"
	SnoozeMessage = "SNOOZE: wake up!"

	DefaultTestDelay   = 5 * time.Second
	DefaultSnoozeDelay = 5 * time.Minute
)

// Event types published by the Service.
const (
	EventRetired        = "alarm.retired"
	EventDeliveryFailed = "alarm.delivery_failed"
)

type Config struct {
	TestDelay   time.Duration
	SnoozeDelay time.Duration
	// DeliverTimeout bounds the enqueue of one fired alarm.
	DeliverTimeout time.Duration
}

// Notifier hands a message to the delivery pipeline.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Renderer turns a fired timer into the outgoing text and send options.
type Renderer func(f scheduler.Fired) (text string, opt *kit.SendOptions)

// Listed is one alarm as shown to its owner.
type Listed struct {
	Alarm alarm.Alarm
	// Next is zero when no timer is armed for the record.
	Next time.Time
}

// RestoreReport summarizes RestoreAll.
type RestoreReport struct {
	Total   int
	Armed   int
	Skipped []*alarm.RestoreEntryError
	// Cleared counts timers that were live before restore reset them.
	Cleared int
}
