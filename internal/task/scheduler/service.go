package scheduler

import (
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/eventbus"
	logx "alarmbot/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock()
	}
	return &Service{
		log:       log,
		bus:       bus,
		clock:     clock,
		loc:       loc,
		armed:     map[alarm.Key]*entry{},
		transient: map[string]*entry{},
	}
}

// OnFire installs the handler for fired timers. Set it before arming.
func (s *Service) OnFire(h FireHandler) {
	s.mu.Lock()
	s.onFire = h
	s.mu.Unlock()
}

func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Now is the scheduler clock in the scheduler zone.
func (s *Service) Now() time.Time {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	return s.clock.Now().In(loc)
}

// SetLocation switches the zone and re-arms every keyed timer in it.
// Transient timers keep their absolute deadline.
func (s *Service) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc.String() == loc.String() {
		return
	}
	old := s.loc
	s.loc = loc
	if s.stopped {
		return
	}
	for _, e := range s.armed {
		s.armLocked(e.alarm)
	}
	s.log.Info("scheduler timezone changed",
		logx.String("from", old.String()),
		logx.String("to", loc.String()),
		logx.Int("rearmed", len(s.armed)),
	)
}

// Stop cancels every timer. Later Arm calls fail with ErrStopped.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	n := len(s.armed) + len(s.transient)
	for k, e := range s.armed {
		e.timer.Stop()
		delete(s.armed, k)
	}
	for id, e := range s.transient {
		e.timer.Stop()
		delete(s.transient, id)
	}
	s.log.Debug("scheduler stopped", logx.Int("cancelled", n))
}

func (s *Service) publish(typ string, e *entry) {
	if s.bus == nil {
		return
	}
	ev := TimerEvent{ID: e.id, Owner: e.alarm.Owner, Transient: e.transient}
	if !e.transient {
		ev.At = e.alarm.At.String()
		ev.Recurrence = e.alarm.Recurrence.String()
	}
	if typ != EventCancelled {
		ev.Next = e.next
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: ev})
}

// fire runs on the clock's goroutine. A stale generation means the entry was
// cancelled or replaced after the timer was created.
func (s *Service) fire(key alarm.Key, gen uint64) {
	s.mu.Lock()
	e, ok := s.armed[key]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	f := s.firedLocked(e)
	if e.alarm.Recurrence.Recurring() {
		// Wakeups may be early or late; never schedule at or before the
		// occurrence that just fired.
		from := s.clock.Now().In(s.loc)
		if e.next.After(from) {
			from = e.next
		}
		next := alarm.NextFire(e.alarm.At, e.alarm.Recurrence, from)
		e.gen = s.nextGen()
		e.next = next
		g := e.gen
		e.timer = s.clock.AfterFunc(next.Sub(s.clock.Now()), func() { s.fire(key, g) })
		f.Next = next
	} else {
		delete(s.armed, key)
	}
	s.publish(EventFired, e)
	h := s.onFire
	s.mu.Unlock()

	s.log.Debug("alarm fired",
		logx.Int64("owner", key.Owner),
		logx.Stringer("at", key.At),
		logx.Time("scheduled", f.ScheduledAt),
		logx.Time("next", f.Next),
	)
	if h != nil {
		h(f)
	}
}

func (s *Service) fireTransient(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.transient[id]
	if !ok || e.gen != gen || s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.transient, id)
	f := s.firedLocked(e)
	s.publish(EventFired, e)
	h := s.onFire
	s.mu.Unlock()

	s.log.Debug("transient fired", logx.String("id", id), logx.Int64("owner", e.alarm.Owner))
	if h != nil {
		h(f)
	}
}

func (s *Service) firedLocked(e *entry) Fired {
	return Fired{
		ID:          e.id,
		Alarm:       e.alarm,
		ScheduledAt: e.next,
		FiredAt:     s.clock.Now().In(s.loc),
		Transient:   e.transient,
	}
}

func (s *Service) nextGen() uint64 {
	s.gen++
	return s.gen
}
