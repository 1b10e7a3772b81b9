package alarms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/eventbus"
	"alarmbot/internal/storage"
	"alarmbot/internal/task/scheduler"
	kit "alarmbot/internal/transport"
	logx "alarmbot/pkg/logx"

	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*3600)

type fakeNotifier struct {
	mu   sync.Mutex
	sent []kit.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n kit.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sent))
	for _, n := range f.sent {
		out = append(out, n.Text)
	}
	return out
}

// flakyStore fails mutations while failing is set.
type flakyStore struct {
	storage.Store
	mu      sync.Mutex
	failing bool
}

var errDisk = errors.New("disk full")

func (s *flakyStore) fail(on bool) {
	s.mu.Lock()
	s.failing = on
	s.mu.Unlock()
}

func (s *flakyStore) broken() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failing
}

func (s *flakyStore) Upsert(ctx context.Context, r storage.Record) error {
	if s.broken() {
		return errDisk
	}
	return s.Store.Upsert(ctx, r)
}

func (s *flakyStore) Remove(ctx context.Context, chatID int64, hhmm string) (bool, error) {
	if s.broken() {
		return false, errDisk
	}
	return s.Store.Remove(ctx, chatID, hhmm)
}

func (s *flakyStore) List(ctx context.Context) ([]storage.Record, error) {
	if s.broken() {
		return nil, errDisk
	}
	return s.Store.List(ctx)
}

type fixture struct {
	svc   *Service
	sched *scheduler.Service
	clock *scheduler.ManualClock
	store *flakyStore
	out   *fakeNotifier
	bus   eventbus.Bus
}

func newFixture(t *testing.T, start time.Time) *fixture {
	t.Helper()
	clock := scheduler.NewManualClock(start)
	bus := eventbus.New()
	sched := scheduler.New(scheduler.Config{Location: wib, Clock: clock}, logx.Nop(), bus)
	store := &flakyStore{Store: storage.NewMemory()}
	out := &fakeNotifier{}
	svc := New(Config{}, store, sched, out, logx.Nop(), bus)
	t.Cleanup(sched.Stop)
	return &fixture{svc: svc, sched: sched, clock: clock, store: store, out: out, bus: bus}
}

func TestSetDailyScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, wib))
	ctx := context.Background()

	got, err := f.svc.Set(ctx, 1, "07:00", "wake up", alarm.Daily)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, wib), got.Next)

	recs, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []storage.Record{{ChatID: 1, Time: "07:00", Message: "wake up", Type: "daily"}}, recs)

	f.clock.Advance(23 * time.Hour)
	require.Equal(t, []string{"wake up"}, f.out.texts())
	key := alarm.Key{Owner: 1, At: alarm.MustTime("07:00")}
	require.True(t, f.sched.Armed(key))
	next, ok := f.sched.Next(key)
	require.True(t, ok)
	require.True(t, next.Equal(time.Date(2024, 1, 3, 7, 0, 0, 0, wib)), "next %s", next)

	// a recurring fire leaves the stored record as it was
	after, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Equal(t, recs, after)
}

func TestSetWorkdaysScenario(t *testing.T) {
	t.Parallel()

	// Friday 2024-01-05 10:00.
	f := newFixture(t, time.Date(2024, 1, 5, 10, 0, 0, 0, wib))
	got, err := f.svc.Set(context.Background(), 1, "09:00", "", alarm.Workdays)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 8, 9, 0, 0, 0, wib), got.Next)
	require.Equal(t, alarm.DefaultMessage, got.Alarm.Message)
}

func TestSetOnceScenario(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 14, 0, 0, 0, wib))
	ctx := context.Background()
	ch, unsub := f.bus.Subscribe(16, EventRetired)
	defer unsub()

	got, err := f.svc.Set(ctx, 1, "15:00", "meeting", alarm.Once)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 15, 0, 0, 0, wib), got.Next)

	f.clock.Advance(time.Hour)
	require.Equal(t, []string{"meeting"}, f.out.texts())
	require.False(t, f.sched.Armed(got.Alarm.Key()))

	recs, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, recs)
	require.Len(t, ch, 1)

	f.clock.Advance(48 * time.Hour)
	require.Len(t, f.out.texts(), 1, "once never fires again")
}

func TestSetReplacesSameKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()

	_, err := f.svc.Set(ctx, 1, "7:00", "first", alarm.Daily)
	require.NoError(t, err)
	_, err = f.svc.Set(ctx, 1, "07:00", "second", alarm.Once)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "second", list[0].Alarm.Message)
	require.Equal(t, alarm.Once, list[0].Alarm.Recurrence)
	require.Len(t, f.sched.Snapshot(), 1)

	f.clock.Advance(time.Hour)
	require.Equal(t, []string{"second"}, f.out.texts())
}

func TestSetValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	for _, at := range []string{"", "7", "24:00", "07:60", "ab:cd"} {
		_, err := f.svc.Set(context.Background(), 1, at, "", alarm.Daily)
		require.True(t, alarm.IsValidation(err), at)
	}
	require.Empty(t, f.sched.Snapshot())
}

func TestSetPersistenceFailureDoesNotArm(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	f.store.fail(true)

	_, err := f.svc.Set(context.Background(), 1, "07:00", "", alarm.Daily)
	require.True(t, alarm.IsPersistence(err))
	require.ErrorIs(t, err, errDisk)
	require.Empty(t, f.sched.Snapshot())
}

func TestList(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()
	_, err := f.svc.Set(ctx, 1, "21:00", "night", alarm.Daily)
	require.NoError(t, err)
	_, err = f.svc.Set(ctx, 1, "9:30", "morning", alarm.Workdays)
	require.NoError(t, err)
	_, err = f.svc.Set(ctx, 2, "08:00", "other", alarm.Daily)
	require.NoError(t, err)

	list, err := f.svc.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "09:30", list[0].Alarm.At.String())
	require.Equal(t, "21:00", list[1].Alarm.At.String())
	require.Equal(t, time.Date(2024, 1, 1, 9, 30, 0, 0, wib), list[0].Next)

	empty, err := f.svc.List(ctx, 3)
	require.NoError(t, err)
	require.Empty(t, empty)

	all, err := f.svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()
	_, err := f.svc.Set(ctx, 1, "07:00", "", alarm.Daily)
	require.NoError(t, err)

	require.NoError(t, f.svc.Stop(ctx, 1, "7:00"))
	require.ErrorIs(t, f.svc.Stop(ctx, 1, "07:00"), alarm.ErrNotFound)
	require.True(t, IsNotFound(f.svc.Stop(ctx, 2, "07:00")))
	require.True(t, alarm.IsValidation(f.svc.Stop(ctx, 1, "nope")))

	f.clock.Advance(48 * time.Hour)
	require.Empty(t, f.out.texts())
}

func TestStopWithOneSideStale(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()

	t.Run("record without timer", func(t *testing.T) {
		require.NoError(t, f.store.Upsert(ctx, storage.Record{ChatID: 1, Time: "07:00", Type: "daily"}))
		require.NoError(t, f.svc.Stop(ctx, 1, "07:00"))
		recs, err := f.store.List(ctx)
		require.NoError(t, err)
		require.Empty(t, recs)
	})

	t.Run("timer without record", func(t *testing.T) {
		_, err := f.sched.Arm(alarm.New(1, alarm.MustTime("08:00"), "", alarm.Daily))
		require.NoError(t, err)
		require.NoError(t, f.svc.Stop(ctx, 1, "08:00"))
		require.Empty(t, f.sched.Snapshot())
	})
}

func TestStopPersistenceFailureKeepsTimer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()
	got, err := f.svc.Set(ctx, 1, "07:00", "", alarm.Daily)
	require.NoError(t, err)

	f.store.fail(true)
	err = f.svc.Stop(ctx, 1, "07:00")
	require.True(t, alarm.IsPersistence(err))
	require.True(t, f.sched.Armed(got.Alarm.Key()))
}

func TestTestAndSnooze(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()

	at, err := f.svc.Test(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 6, 0, 5, 0, wib), at)

	at, err = f.svc.Snooze(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 1, 1, 6, 5, 0, 0, wib), at)

	f.clock.Advance(5 * time.Second)
	require.Equal(t, []string{TestMessage}, f.out.texts())
	f.clock.Advance(5 * time.Minute)
	require.Equal(t, []string{TestMessage, SnoozeMessage}, f.out.texts())

	recs, err := f.store.List(ctx)
	require.NoError(t, err)
	require.Empty(t, recs, "transient timers are never stored")

	f.svc.Apply(Config{SnoozeDelay: time.Minute})
	require.Equal(t, time.Minute, f.svc.SnoozeDelay())
}

func TestRestoreAll(t *testing.T) {
	t.Parallel()

	// Restore happens at 08:00; the 07:00 daily alarm must wait for tomorrow.
	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, wib))
	ctx := context.Background()
	for _, r := range []storage.Record{
		{ChatID: 1, Time: "07:00", Message: "daily", Type: "daily"},
		{ChatID: 1, Time: "09:00", Message: "work", Type: "workdays"},
		{ChatID: 2, Time: "08:30", Message: "once", Type: "once"},
		{ChatID: 2, Time: "25:00", Message: "bad time", Type: "daily"},
		{ChatID: 3, Time: "10:00", Message: "bad type", Type: "hourly"},
	} {
		require.NoError(t, f.store.Upsert(ctx, r))
	}

	rep, err := f.svc.RestoreAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 5, rep.Total)
	require.Equal(t, 3, rep.Armed)
	require.Len(t, rep.Skipped, 2)
	require.Len(t, f.sched.Snapshot(), 3)

	next, ok := f.sched.Next(alarm.Key{Owner: 1, At: alarm.MustTime("07:00")})
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, wib), next)
	require.Empty(t, f.out.texts(), "restore never fires a passed alarm immediately")

	// A second restore clears first and never duplicates.
	rep, err = f.svc.RestoreAll(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, rep.Cleared)
	require.Len(t, f.sched.Snapshot(), 3)

	f.clock.Advance(24 * time.Hour)
	require.ElementsMatch(t, []string{"once", "work", "daily"}, f.out.texts())
}

func TestRestoreStorageUnavailable(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 8, 0, 0, 0, wib))
	f.store.fail(true)
	_, err := f.svc.RestoreAll(context.Background())
	require.True(t, alarm.IsPersistence(err))
}

func TestRetireOnceSkipsRearmedKey(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()
	got, err := f.svc.Set(ctx, 1, "07:00", "", alarm.Once)
	require.NoError(t, err)

	removed, err := f.svc.RetireOnce(ctx, got.Alarm.Key())
	require.NoError(t, err)
	require.False(t, removed, "armed key belongs to a live alarm")

	require.True(t, f.sched.Cancel(got.Alarm.Key()))
	removed, err = f.svc.RetireOnce(ctx, got.Alarm.Key())
	require.NoError(t, err)
	require.True(t, removed)
}

func TestDeliveryFailureKeepsSchedule(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	ctx := context.Background()
	ch, unsub := f.bus.Subscribe(4, EventDeliveryFailed)
	defer unsub()
	f.out.err = errors.New("telegram down")

	got, err := f.svc.Set(ctx, 1, "07:00", "", alarm.Daily)
	require.NoError(t, err)
	f.clock.Advance(time.Hour)

	require.Len(t, ch, 1)
	e := <-ch
	var derr *alarm.DeliveryError
	require.ErrorAs(t, e.Data.(error), &derr)
	require.Equal(t, int64(1), derr.Owner)

	next, ok := f.sched.Next(got.Alarm.Key())
	require.True(t, ok)
	require.Equal(t, time.Date(2024, 1, 2, 7, 0, 0, 0, wib), next)
}

func TestRenderer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, time.Date(2024, 1, 1, 6, 0, 0, 0, wib))
	f.svc.SetRenderer(func(fd scheduler.Fired) (string, *kit.SendOptions) {
		return "ALARM " + fd.Alarm.Message, &kit.SendOptions{ParseMode: "HTML"}
	})
	_, err := f.svc.Test(context.Background(), 1)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)

	f.out.mu.Lock()
	defer f.out.mu.Unlock()
	require.Len(t, f.out.sent, 1)
	require.Equal(t, "ALARM "+TestMessage, f.out.sent[0].Text)
	require.Equal(t, "HTML", f.out.sent[0].Options.ParseMode)
	require.Equal(t, int64(1), f.out.sent[0].Target.ChatID)
}
