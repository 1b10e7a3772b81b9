package alarms

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/eventbus"
	"alarmbot/internal/storage"
	"alarmbot/internal/task/scheduler"
	kit "alarmbot/internal/transport"
	logx "alarmbot/pkg/logx"
)

// Service is the reconciler between storage and the scheduler.
type Service struct {
	mu sync.Mutex

	cfg    Config
	store  storage.Store
	sched  *scheduler.Service
	notify Notifier
	bus    eventbus.Bus
	log    logx.Logger

	rmu    sync.RWMutex
	render Renderer
}

// New wires the service as the scheduler's fire handler.
func New(cfg Config, store storage.Store, sched *scheduler.Service, notify Notifier, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.TestDelay <= 0 {
		cfg.TestDelay = DefaultTestDelay
	}
	if cfg.SnoozeDelay <= 0 {
		cfg.SnoozeDelay = DefaultSnoozeDelay
	}
	if cfg.DeliverTimeout <= 0 {
		cfg.DeliverTimeout = 5 * time.Second
	}
	s := &Service{
		cfg:    cfg,
		store:  store,
		sched:  sched,
		notify: notify,
		bus:    bus,
		log:    log,
		render: PlainText,
	}
	sched.OnFire(s.handleFire)
	return s
}

// PlainText renders the alarm message without markup.
func PlainText(f scheduler.Fired) (string, *kit.SendOptions) {
	return f.Alarm.Message, nil
}

// SetRenderer replaces how fired alarms are rendered. nil restores PlainText.
func (s *Service) SetRenderer(r Renderer) {
	if r == nil {
		r = PlainText
	}
	s.rmu.Lock()
	s.render = r
	s.rmu.Unlock()
}

// Apply updates the delays used by Test and Snooze.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.TestDelay > 0 {
		s.cfg.TestDelay = cfg.TestDelay
	}
	if cfg.SnoozeDelay > 0 {
		s.cfg.SnoozeDelay = cfg.SnoozeDelay
	}
	if cfg.DeliverTimeout > 0 {
		s.cfg.DeliverTimeout = cfg.DeliverTimeout
	}
}

// Set stores the alarm, replacing any alarm at the same (owner, time), then
// arms it. A storage failure aborts before arming.
func (s *Service) Set(ctx context.Context, owner int64, at, message string, rec alarm.Recurrence) (Listed, error) {
	tod, err := alarm.ParseTimeOfDay(at)
	if err != nil {
		return Listed{}, err
	}
	a := alarm.New(owner, tod, message, rec)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Upsert(ctx, storage.FromAlarm(a)); err != nil {
		return Listed{}, &alarm.PersistenceError{Op: "set", Err: err}
	}
	next, err := s.sched.Arm(a)
	if err != nil {
		return Listed{}, err
	}
	s.log.Info("alarm set",
		logx.Int64("owner", owner),
		logx.Stringer("at", tod),
		logx.Stringer("recurrence", rec),
		logx.Time("next", next),
	)
	return Listed{Alarm: a, Next: next}, nil
}

// Stop removes the alarm from storage and cancels its timer. It returns
// alarm.ErrNotFound only when neither side knew the key.
func (s *Service) Stop(ctx context.Context, owner int64, at string) error {
	tod, err := alarm.ParseTimeOfDay(at)
	if err != nil {
		return err
	}
	key := alarm.Key{Owner: owner, At: tod}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed, err := s.store.Remove(ctx, owner, tod.String())
	if err != nil {
		// Nothing changed: the record and its timer both stay.
		return &alarm.PersistenceError{Op: "stop", Err: err}
	}
	cancelled := s.sched.Cancel(key)
	if !cancelled && !removed {
		return alarm.ErrNotFound
	}
	if cancelled != removed {
		s.log.Warn("alarm state was inconsistent", logx.String("key", key.String()), logx.Bool("armed", cancelled), logx.Bool("stored", removed))
	}
	s.log.Info("alarm stopped", logx.String("key", key.String()))
	return nil
}

// List returns the owner's stored alarms ordered by time of day.
func (s *Service) List(ctx context.Context, owner int64) ([]Listed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, &alarm.PersistenceError{Op: "list", Err: err}
	}
	out := make([]Listed, 0, len(recs))
	for _, r := range recs {
		if r.ChatID != owner {
			continue
		}
		a, err := r.Alarm()
		if err != nil {
			continue
		}
		next, _ := s.sched.Next(a.Key())
		out = append(out, Listed{Alarm: a, Next: next})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Alarm.At.Minutes() < out[j].Alarm.At.Minutes()
	})
	return out, nil
}

// ListAll returns every stored alarm; used by the CLI.
func (s *Service) ListAll(ctx context.Context) ([]Listed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recs, err := s.store.List(ctx)
	if err != nil {
		return nil, &alarm.PersistenceError{Op: "list", Err: err}
	}
	out := make([]Listed, 0, len(recs))
	for _, r := range recs {
		a, err := r.Alarm()
		if err != nil {
			continue
		}
		next, _ := s.sched.Next(a.Key())
		out = append(out, Listed{Alarm: a, Next: next})
	}
	return out, nil
}

// Test arms a transient timer that fires TestMessage shortly.
func (s *Service) Test(ctx context.Context, owner int64) (time.Time, error) {
	s.mu.Lock()
	delay := s.cfg.TestDelay
	s.mu.Unlock()
	_, at, err := s.sched.ArmTransient(delay, owner, TestMessage)
	return at, err
}

// Snooze arms a transient timer that fires SnoozeMessage after the snooze delay.
func (s *Service) Snooze(ctx context.Context, owner int64) (time.Time, error) {
	s.mu.Lock()
	delay := s.cfg.SnoozeDelay
	s.mu.Unlock()
	_, at, err := s.sched.ArmTransient(delay, owner, SnoozeMessage)
	return at, err
}

// TestDelay is how long after /test the test alarm fires.
func (s *Service) TestDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.TestDelay
}

// SnoozeDelay is the current snooze length.
func (s *Service) SnoozeDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SnoozeDelay
}

// RestoreAll rebuilds every keyed timer from storage. Live keyed timers are
// cleared first, so calling it again never arms duplicates. Records that do
// not parse are skipped and reported.
func (s *Service) RestoreAll(ctx context.Context) (RestoreReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep RestoreReport
	recs, err := s.store.List(ctx)
	if err != nil {
		return rep, &alarm.PersistenceError{Op: "restore", Err: err}
	}
	rep.Cleared = s.sched.Reset()
	rep.Total = len(recs)
	for i, r := range recs {
		a, err := r.Alarm()
		if err != nil {
			rep.Skipped = append(rep.Skipped, &alarm.RestoreEntryError{Index: i, Entry: strconv.FormatInt(r.ChatID, 10) + "@" + r.Time, Err: err})
			continue
		}
		if _, err := s.sched.Arm(a); err != nil {
			return rep, err
		}
		rep.Armed++
	}
	for _, e := range rep.Skipped {
		s.log.Warn("restore skipped entry", logx.Err(e))
	}
	s.log.Info("alarms restored",
		logx.Int("total", rep.Total),
		logx.Int("armed", rep.Armed),
		logx.Int("skipped", len(rep.Skipped)),
	)
	return rep, nil
}

// RetireOnce deletes the stored record of a fired one-shot alarm. It does
// nothing when a timer is armed at key again, since that belongs to a newer
// set.
func (s *Service) RetireOnce(ctx context.Context, key alarm.Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sched.Armed(key) {
		return false, nil
	}
	removed, err := s.store.Remove(ctx, key.Owner, key.At.String())
	if err != nil {
		return false, &alarm.PersistenceError{Op: "retire", Err: err}
	}
	if removed && s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventRetired, Time: time.Now(), Data: scheduler.TimerEvent{
			ID:         key.String(),
			Owner:      key.Owner,
			At:         key.At.String(),
			Recurrence: alarm.Once.String(),
		}})
	}
	return removed, nil
}

// handleFire runs on the timer goroutine. One-shot records are retired before
// delivery so a crash in between loses the message instead of replaying it.
func (s *Service) handleFire(f scheduler.Fired) {
	s.mu.Lock()
	timeout := s.cfg.DeliverTimeout
	s.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if !f.Transient && f.Alarm.Recurrence == alarm.Once {
		if _, err := s.RetireOnce(ctx, f.Alarm.Key()); err != nil {
			s.log.Error("retire once failed", logx.String("key", f.Alarm.Key().String()), logx.Err(err))
		}
	}

	s.rmu.RLock()
	render := s.render
	s.rmu.RUnlock()
	text, opt := render(f)

	if s.notify == nil {
		return
	}
	err := s.notify.Notify(ctx, kit.Notification{
		Target:  kit.ChatTarget{ChatID: f.Alarm.Owner},
		Text:    text,
		Options: opt,
	})
	if err == nil {
		return
	}
	derr := &alarm.DeliveryError{Owner: f.Alarm.Owner, Err: err}
	s.log.Warn("alarm delivery failed", logx.String("id", f.ID), logx.Err(derr))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: EventDeliveryFailed, Time: time.Now(), Data: derr})
	}
}

// IsNotFound reports whether err is alarm.ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, alarm.ErrNotFound) }
