package router

import (
	"strings"

	"alarmbot/internal/alarm"
	"alarmbot/pkg/tgui"
)

// joinLines keeps blank lines, unlike tgui.JoinH.
func joinLines(lines ...tgui.H) string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return strings.Join(out, "\n")
}

// helpText is the /start and /help reply, HTML parse mode.
func helpText() string {
	return joinLines(
		"👋 "+tgui.B("Alarm bot"),
		"",
		"1️⃣ "+tgui.Code("/set 07:00 [message]")+" - every day",
		"2️⃣ "+tgui.Code("/workdays 07:00 [message]")+" - Monday to Friday ("+tgui.Code("/kerja")+")",
		"3️⃣ "+tgui.Code("/once 15:00 [message]")+" - once, at the next 15:00 ("+tgui.Code("/sekali")+")",
		"4️⃣ "+tgui.Code("/list")+" - show your alarms",
		"5️⃣ "+tgui.Code("/stop 07:00")+" - delete an alarm",
		"6️⃣ "+tgui.Code("/test")+" - test fire",
		"",
		tgui.I("Without a message the alarm says \""+alarm.DefaultMessage+"\"."),
	)
}
