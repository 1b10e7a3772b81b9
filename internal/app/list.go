package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"alarmbot/internal/alarm"
	"alarmbot/internal/config"
	"alarmbot/internal/storage"
	logx "alarmbot/pkg/logx"
	"alarmbot/pkg/tgui"
)

// ListAlarms prints the stored alarms, optionally for one chat, with their
// next fire times from now. Storage is read without being opened for
// writing, and Telegram is never touched.
func ListAlarms(ctx context.Context, w io.Writer, cfg *config.Config, chat int64, now time.Time, log logx.Logger) error {
	sc, err := MapStorageConfig(cfg)
	if err != nil {
		return err
	}
	recs, err := storage.ReadAll(ctx, sc)
	if err != nil {
		return fmt.Errorf("read storage: %w", err)
	}
	log.Debug("alarm store read", logx.String("driver", sc.Driver), logx.Int("records", len(recs)))
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	now = now.In(loc)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHAT\tTIME\tTYPE\tNEXT\tMESSAGE")
	n := 0
	for _, r := range recs {
		if chat != 0 && r.ChatID != chat {
			continue
		}
		n++
		msg := tgui.TruncRunes(strings.ReplaceAll(r.Message, "\n", " "), 40)
		a, err := r.Alarm()
		if err != nil {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ChatID, r.Time, r.Type, "invalid: "+err.Error(), msg)
			continue
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", a.Owner, a.At, a.Recurrence, formatUpcoming(alarm.Upcoming(a.At, a.Recurrence, now, 3)), msg)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d alarm(s), timezone %s\n", n, loc)
	return err
}

func formatUpcoming(ts []time.Time) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.Format("Mon 02 Jan 15:04")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, ", ")
}
