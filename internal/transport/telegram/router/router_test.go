package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/alarms"
	"alarmbot/internal/storage"
	"alarmbot/internal/task/scheduler"
	kit "alarmbot/internal/transport"
	logx "alarmbot/pkg/logx"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

var wib = time.FixedZone("WIB", 7*3600)

type sent struct {
	To   kit.ChatTarget
	Text string
	Opt  *kit.SendOptions
}

type edited struct {
	Ref  kit.MessageRef
	Text string
}

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []sent
	edited   []edited
	answered []string
	menu     []kit.BotCommand
}

func (a *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(context.Context) error                     { return nil }

func (a *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, sent{To: to, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: len(a.sent)}, nil
}

func (a *fakeAdapter) EditText(_ context.Context, ref kit.MessageRef, text string, _ *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.edited = append(a.edited, edited{Ref: ref, Text: text})
	return nil
}

func (a *fakeAdapter) AnswerCallback(_ context.Context, id string, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answered = append(a.answered, id)
	return nil
}

func (a *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.menu = cmds
	return nil
}

func (a *fakeAdapter) last() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1].Text
}

func (a *fakeAdapter) sentCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sent)
}

type fixture struct {
	m     *CommandManager
	ad    *fakeAdapter
	svc   *alarms.Service
	sched *scheduler.Service
}

// newFixture starts on Monday 2024-01-01 08:00 WIB.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := scheduler.NewManualClock(time.Date(2024, 1, 1, 8, 0, 0, 0, wib))
	sched := scheduler.New(scheduler.Config{Location: wib, Clock: clock}, logx.Nop(), nil)
	t.Cleanup(sched.Stop)
	svc := alarms.New(alarms.Config{}, storage.NewMemory(), sched, nil, logx.Nop(), nil)

	ad := &fakeAdapter{}
	m := NewCommandManager(logx.Nop(), ad, 1)
	m.SetRegistry(AlarmCommands(svc))
	return &fixture{m: m, ad: ad, svc: svc, sched: sched}
}

// run calls the command handler for text in chat 42 and returns the reply.
func (f *fixture) run(t *testing.T, text string) string {
	t.Helper()
	word, rest, ok := splitCommand(text)
	require.True(t, ok, text)
	cmd, ok := f.m.lookup(word)
	require.True(t, ok, word)
	req := &Request{
		Update:  kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, Text: text}},
		Chat:    kit.ChatTarget{ChatID: 42},
		Command: cmd.Name,
		Args:    strings.Fields(rest),
		Rest:    rest,
		Adapter: f.ad,
		Logger:  logx.Nop(),
	}
	before := f.ad.sentCount()
	_ = cmd.Handle(context.Background(), req)
	require.Equal(t, before+1, f.ad.sentCount(), "expected one reply to %q", text)
	return f.ad.last()
}

func (f *fixture) press(t *testing.T, action string) error {
	t.Helper()
	route := f.m.callbacks[callbackScope][action]
	require.NotNil(t, route.Handle)
	up := kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "cb1", ChatID: 42, MessageID: 7, Data: callbackScope + ":" + action}}
	req := &Request{Update: up, Chat: kit.ChatTarget{ChatID: 42}, Adapter: f.ad, Logger: logx.Nop()}
	return route.Handle(context.Background(), req, "")
}

func TestSplitCommand(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		word string
		rest string
		ok   bool
	}{
		{"/set 07:00 wake up", "set", "07:00 wake up", true},
		{"  /SET@alarm_bot 07:00  ", "set", "07:00", true},
		{"/list", "list", "", true},
		{"/once\n15:00 meeting", "once", "15:00 meeting", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"/@bot", "", "", false},
	}
	for _, tc := range cases {
		word, rest, ok := splitCommand(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		require.Equal(t, tc.word, word, tc.in)
		require.Equal(t, tc.rest, rest, tc.in)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	require.Equal(t, "workdays", sanitizeTelegramCommand(" WorkDays "))
	require.Equal(t, "snooze_now", sanitizeTelegramCommand("snooze-now"))
	require.Equal(t, "cmd_24h", sanitizeTelegramCommand("24h"))
	require.Equal(t, "", sanitizeTelegramCommand("!!!"))
}

func TestSetCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	reply := f.run(t, "/set 07:00 wake <up>")
	require.Contains(t, reply, "<b>Every day</b>")
	require.Contains(t, reply, "<code>07:00</code>")
	require.Contains(t, reply, "wake &lt;up&gt;")
	require.Contains(t, reply, "Tue 02 Jan 07:00")

	reply = f.run(t, "/kerja 9:00")
	require.Contains(t, reply, "<b>Mon-Fri</b>")
	require.Contains(t, reply, "<code>09:00</code>")
	require.Contains(t, reply, alarm.DefaultMessage)

	reply = f.run(t, "/sekali 15:30 meeting")
	require.Contains(t, reply, "<b>Once</b>")
	require.Contains(t, reply, "Mon 01 Jan 15:30")

	require.True(t, f.sched.Armed(alarm.Key{Owner: 42, At: alarm.MustTime("07:00")}))
	require.True(t, f.sched.Armed(alarm.Key{Owner: 42, At: alarm.MustTime("09:00")}))
	require.True(t, f.sched.Armed(alarm.Key{Owner: 42, At: alarm.MustTime("15:30")}))
}

func TestSetCommandUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, "❌ Format: <code>/set HH:MM [message]</code>", f.run(t, "/set"))
	require.Equal(t, "❌ Format: <code>/set HH:MM [message]</code>", f.run(t, "/set 25:00 late"))
	require.Equal(t, "❌ Format: <code>/once HH:MM [message]</code>", f.run(t, "/once noon"))
	require.Equal(t, "❌ Format: <code>/stop HH:MM</code>", f.run(t, "/stop"))
	require.Equal(t, 0, f.sched.Stats().Armed)
}

func TestListAndStop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, "📭 No alarms yet.", f.run(t, "/list"))

	f.run(t, "/workdays 09:00 standup")
	f.run(t, "/set 07:00 wake up")

	reply := f.run(t, "/list")
	require.Less(t, strings.Index(reply, "07:00"), strings.Index(reply, "09:00"))
	require.Contains(t, reply, "Every day")
	require.Contains(t, reply, "Mon-Fri")
	require.Contains(t, reply, "standup")

	require.Equal(t, "🗑️ Alarm at <code>07:00</code> removed.", f.run(t, "/stop 07:00"))
	require.False(t, f.sched.Armed(alarm.Key{Owner: 42, At: alarm.MustTime("07:00")}))
	require.Equal(t, "❌ No alarm at <code>07:00</code>.", f.run(t, "/stop 07:00"))

	reply = f.run(t, "/list")
	require.NotContains(t, reply, "07:00")
	require.Contains(t, reply, "09:00")
}

func TestTestCommand(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.Equal(t, "🔔 Test alarm in 5 seconds...", f.run(t, "/test"))
	require.Equal(t, 1, f.sched.Stats().Transient)
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := f.run(t, "/start")
	require.Equal(t, helpText(), reply)
	for _, c := range []string{"/set", "/workdays", "/kerja", "/once", "/sekali", "/list", "/stop", "/test"} {
		require.Contains(t, reply, c)
	}
}

func TestSnoozeAndAckCallbacks(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.press(t, actionSnooze))
	require.NoError(t, f.press(t, actionAck))

	require.Equal(t, []edited{
		{Ref: kit.MessageRef{ChatID: 42, MessageID: 7}, Text: "💤 OK, snoozed for 5 minutes."},
		{Ref: kit.MessageRef{ChatID: 42, MessageID: 7}, Text: "✅ Alarm dismissed."},
	}, f.ad.edited)
	require.Equal(t, 1, f.sched.Stats().Transient)
}

func TestAlarmRenderer(t *testing.T) {
	t.Parallel()

	render := AlarmRenderer(func() time.Duration { return 5 * time.Minute })
	text, opt := render(scheduler.Fired{Alarm: alarm.New(1, alarm.MustTime("07:00"), "tea & toast", alarm.Daily)})
	require.Equal(t, "⏰ <b>ALARM!</b>\n\n📝 tea &amp; toast", text)
	require.NotNil(t, opt)
	require.Equal(t, "HTML", opt.ParseMode)

	rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	require.True(t, ok)
	require.Len(t, rm.InlineKeyboard, 1)
	require.Len(t, rm.InlineKeyboard[0], 2)
	require.Equal(t, "💤 Snooze 5 minutes", rm.InlineKeyboard[0][0].Text)
	require.Equal(t, "alarm:snooze", rm.InlineKeyboard[0][0].Data)
	require.Equal(t, "alarm:ack", rm.InlineKeyboard[0][1].Data)
}

func TestUpdateMenuSkipsHidden(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.NoError(t, f.m.UpdateMenu(context.Background()))

	names := make([]string, 0, len(f.ad.menu))
	for _, c := range f.ad.menu {
		names = append(names, c.Command)
	}
	require.Equal(t, []string{"help", "set", "workdays", "once", "list", "stop", "test"}, names)
}

func TestDispatchLoop(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update)
	done := make(chan error, 1)
	go func() { done <- f.m.DispatchLoop(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, Text: "/nope"}}
	require.Eventually(t, func() bool { return f.ad.last() == "Unknown command. Try /help" }, time.Second, 5*time.Millisecond)

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, Text: "/set@alarm_bot 06:30 run"}}
	require.Eventually(t, func() bool { return strings.Contains(f.ad.last(), "<code>06:30</code>") }, time.Second, 5*time.Millisecond)
	require.True(t, f.sched.Armed(alarm.Key{Owner: 42, At: alarm.MustTime("06:30")}))

	// Plain chatter is ignored.
	n := f.ad.sentCount()
	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 42, Text: "good morning"}}

	updates <- kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{ID: "c9", ChatID: 42, MessageID: 3, Data: "alarm:ack"}}
	require.Eventually(t, func() bool {
		f.ad.mu.Lock()
		defer f.ad.mu.Unlock()
		return len(f.ad.answered) == 1 && len(f.ad.edited) == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, n, f.ad.sentCount())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("dispatch loop did not stop")
	}
}
