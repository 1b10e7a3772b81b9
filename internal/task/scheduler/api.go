package scheduler

import (
	"errors"
	"time"

	"alarmbot/internal/alarm"
	logx "alarmbot/pkg/logx"

	"github.com/google/uuid"
)

// Arm schedules a at its next occurrence, replacing any timer with the same
// key. It returns the fire time.
func (s *Service) Arm(a alarm.Alarm) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return time.Time{}, ErrStopped
	}
	e := s.armLocked(a)
	s.log.Debug("alarm armed",
		logx.Int64("owner", a.Owner),
		logx.Stringer("at", a.At),
		logx.Stringer("recurrence", a.Recurrence),
		logx.Time("next", e.next),
	)
	return e.next, nil
}

func (s *Service) armLocked(a alarm.Alarm) *entry {
	key := a.Key()
	if old, ok := s.armed[key]; ok {
		old.timer.Stop()
	}
	now := s.clock.Now()
	next := alarm.NextFire(a.At, a.Recurrence, now.In(s.loc))
	e := &entry{id: key.String(), alarm: a, next: next, gen: s.nextGen()}
	gen := e.gen
	e.timer = s.clock.AfterFunc(next.Sub(now), func() { s.fire(key, gen) })
	s.armed[key] = e
	s.publish(EventArmed, e)
	return e
}

// Cancel stops the timer for key. It reports whether one was armed. After
// Cancel returns the timer will not fire.
func (s *Service) Cancel(key alarm.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.armed[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.armed, key)
	s.publish(EventCancelled, e)
	s.log.Debug("alarm cancelled", logx.Int64("owner", key.Owner), logx.Stringer("at", key.At))
	return true
}

// ArmTransient schedules a one-shot message for owner after delay. Transient
// timers are never persisted and can not be cancelled by key.
func (s *Service) ArmTransient(delay time.Duration, owner int64, message string) (string, time.Time, error) {
	if delay < 0 {
		return "", time.Time{}, errors.New("negative delay")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return "", time.Time{}, ErrStopped
	}
	now := s.clock.Now()
	id := "tmp:" + uuid.NewString()
	e := &entry{
		id:        id,
		alarm:     alarm.Alarm{Owner: owner, Message: message, Recurrence: alarm.Once},
		next:      now.Add(delay).In(s.loc),
		gen:       s.nextGen(),
		transient: true,
	}
	gen := e.gen
	e.timer = s.clock.AfterFunc(delay, func() { s.fireTransient(id, gen) })
	s.transient[id] = e
	s.publish(EventArmed, e)
	s.log.Debug("transient armed", logx.String("id", id), logx.Int64("owner", owner), logx.Duration("delay", delay))
	return id, e.next, nil
}

// Armed reports whether key has a live timer.
func (s *Service) Armed(key alarm.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[key]
	return ok
}

// Next returns the pending fire time for key.
func (s *Service) Next(key alarm.Key) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.armed[key]
	if !ok {
		return time.Time{}, false
	}
	return e.next, true
}

// Reset cancels every keyed timer and returns how many there were.
// Transient timers are left alone.
func (s *Service) Reset() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.armed)
	for k, e := range s.armed {
		e.timer.Stop()
		delete(s.armed, k)
	}
	return n
}
