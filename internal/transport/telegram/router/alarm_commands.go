package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/alarms"
	"alarmbot/internal/task/scheduler"
	kit "alarmbot/internal/transport"
	logx "alarmbot/pkg/logx"
	"alarmbot/pkg/tgui"
)

// AlarmService is the command surface of the reconciler.
type AlarmService interface {
	Set(ctx context.Context, owner int64, at, message string, rec alarm.Recurrence) (alarms.Listed, error)
	Stop(ctx context.Context, owner int64, at string) error
	List(ctx context.Context, owner int64) ([]alarms.Listed, error)
	Test(ctx context.Context, owner int64) (time.Time, error)
	Snooze(ctx context.Context, owner int64) (time.Time, error)
	TestDelay() time.Duration
	SnoozeDelay() time.Duration
}

const (
	callbackScope = "alarm"
	actionSnooze  = "snooze"
	actionAck     = "ack"

	nextLayout = "Mon 02 Jan 15:04"
)

var (
	snoozeData = tgui.MustData(callbackScope, actionSnooze, "")
	ackData    = tgui.MustData(callbackScope, actionAck, "")
)

// AlarmCommands builds the chat commands and button callbacks backed by svc.
func AlarmCommands(svc AlarmService) ([]Command, []CallbackRoute) {
	h := &alarmHandlers{svc: svc}
	cmds := []Command{
		{Name: "start", Description: "Show how to use the bot", Handle: h.help, Hidden: true},
		{Name: "help", Aliases: []string{"h"}, Description: "Show how to use the bot", Handle: h.help},
		{
			Name:        "set",
			Description: "Alarm every day",
			Usage:       "/set HH:MM [message]",
			Handle:      h.set(alarm.Daily, "/set"),
		},
		{
			Name:        "workdays",
			Aliases:     []string{"kerja"},
			Description: "Alarm Monday to Friday",
			Usage:       "/workdays HH:MM [message]",
			Handle:      h.set(alarm.Workdays, "/workdays"),
		},
		{
			Name:        "once",
			Aliases:     []string{"sekali"},
			Description: "Alarm once at the next HH:MM",
			Usage:       "/once HH:MM [message]",
			Handle:      h.set(alarm.Once, "/once"),
		},
		{Name: "list", Description: "List your alarms", Usage: "/list", Handle: h.list},
		{Name: "stop", Description: "Delete an alarm", Usage: "/stop HH:MM", Handle: h.stop},
		{Name: "test", Description: "Test fire in a few seconds", Usage: "/test", Handle: h.test},
	}
	cbs := []CallbackRoute{
		{Scope: callbackScope, Action: actionSnooze, Handle: h.snooze},
		{Scope: callbackScope, Action: actionAck, Handle: h.ack},
	}
	return cmds, cbs
}

// AlarmRenderer formats a fired alarm with snooze and dismiss buttons.
func AlarmRenderer(snooze func() time.Duration) alarms.Renderer {
	return func(f scheduler.Fired) (string, *kit.SendOptions) {
		text := joinLines(
			"⏰ "+tgui.B("ALARM!"),
			"",
			"📝 "+tgui.Esc(f.Alarm.Message),
		)
		markup := tgui.NewInline().Row(
			tgui.Btn("💤 Snooze "+humanDelay(snooze()), snoozeData),
			tgui.Btn("✅ Dismiss", ackData),
		).Markup()
		return text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup}
	}
}

type alarmHandlers struct {
	svc AlarmService
}

func (h *alarmHandlers) help(ctx context.Context, req *Request) error {
	return req.ReplyHTML(ctx, helpText())
}

func (h *alarmHandlers) set(rec alarm.Recurrence, usage string) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if len(req.Args) == 0 {
			return replyUsage(ctx, req, usage+" HH:MM [message]")
		}
		at := req.Args[0]
		msg := strings.TrimSpace(strings.TrimPrefix(req.Rest, at))
		got, err := h.svc.Set(ctx, req.Chat.ChatID, at, msg, rec)
		if err != nil {
			return h.fail(ctx, req, err, usage+" HH:MM [message]")
		}
		return req.ReplyHTML(ctx, joinLines(
			"✅ Alarm "+tgui.B(rec.Label())+" set for "+tgui.Code(got.Alarm.At.String()),
			"📝 Message: "+tgui.Esc(got.Alarm.Message),
			"⏭ Next: "+tgui.Esc(got.Next.Format(nextLayout)),
		))
	}
}

func (h *alarmHandlers) list(ctx context.Context, req *Request) error {
	items, err := h.svc.List(ctx, req.Chat.ChatID)
	if err != nil {
		return h.fail(ctx, req, err, "/list")
	}
	if len(items) == 0 {
		return req.Reply(ctx, "📭 No alarms yet.", nil)
	}
	lines := []tgui.H{"📋 " + tgui.B("Your alarms:"), ""}
	for _, it := range items {
		line := "• " + tgui.Code(it.Alarm.At.String()) +
			" (" + recurrenceIcon(it.Alarm.Recurrence) + " " + tgui.Esc(it.Alarm.Recurrence.Label()) + ") - " +
			tgui.Esc(tgui.TruncRunes(it.Alarm.Message, 80))
		if !it.Next.IsZero() {
			line += " " + tgui.I("next "+it.Next.Format(nextLayout))
		}
		lines = append(lines, line)
	}
	return req.ReplyHTML(ctx, joinLines(lines...))
}

func (h *alarmHandlers) stop(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return replyUsage(ctx, req, "/stop HH:MM")
	}
	at := req.Args[0]
	err := h.svc.Stop(ctx, req.Chat.ChatID, at)
	switch {
	case err == nil:
		return req.ReplyHTML(ctx, "🗑️ Alarm at "+string(tgui.Code(at))+" removed.")
	case alarms.IsNotFound(err):
		return req.ReplyHTML(ctx, "❌ No alarm at "+string(tgui.Code(at))+".")
	default:
		return h.fail(ctx, req, err, "/stop HH:MM")
	}
}

func (h *alarmHandlers) test(ctx context.Context, req *Request) error {
	if _, err := h.svc.Test(ctx, req.Chat.ChatID); err != nil {
		return h.fail(ctx, req, err, "/test")
	}
	return req.Reply(ctx, "🔔 Test alarm in "+humanDelay(h.svc.TestDelay())+"...", nil)
}

func (h *alarmHandlers) snooze(ctx context.Context, req *Request, _ string) error {
	if _, err := h.svc.Snooze(ctx, req.Chat.ChatID); err != nil {
		return err
	}
	return h.edit(ctx, req, "💤 OK, snoozed for "+humanDelay(h.svc.SnoozeDelay())+".")
}

func (h *alarmHandlers) ack(ctx context.Context, req *Request, _ string) error {
	return h.edit(ctx, req, "✅ Alarm dismissed.")
}

// edit replaces the alarm message (and its buttons) in place.
func (h *alarmHandlers) edit(ctx context.Context, req *Request, text string) error {
	cb := req.Update.Callback
	if cb == nil {
		return req.Reply(ctx, text, nil)
	}
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	return req.Adapter.EditText(ctx, ref, text, nil)
}

// fail maps reconciler errors to replies. Only unexpected errors are
// returned, so the request log records them as failures.
func (h *alarmHandlers) fail(ctx context.Context, req *Request, err error, usage string) error {
	switch {
	case alarm.IsValidation(err):
		return replyUsage(ctx, req, usage)
	case alarm.IsPersistence(err):
		req.Logger.Error("alarm storage failed", logx.Err(err))
		_ = req.Reply(ctx, "⚠️ Could not save your alarms right now. Please try again later.", nil)
		return err
	default:
		_ = req.Reply(ctx, "⚠️ Something went wrong. Please try again.", nil)
		return err
	}
}

func replyUsage(ctx context.Context, req *Request, usage string) error {
	return req.ReplyHTML(ctx, "❌ Format: "+string(tgui.Code(usage)))
}

func recurrenceIcon(r alarm.Recurrence) tgui.H {
	switch r {
	case alarm.Workdays:
		return "🏢"
	case alarm.Once:
		return "1️⃣"
	default:
		return "🔁"
	}
}

// humanDelay renders whole minutes as "5 minutes" and shorter spans in seconds.
func humanDelay(d time.Duration) string {
	switch {
	case d >= time.Minute && d%time.Minute == 0:
		n := int(d / time.Minute)
		if n == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", n)
	default:
		n := int(d.Round(time.Second) / time.Second)
		if n == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", n)
	}
}
