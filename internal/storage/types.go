package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"alarmbot/internal/alarm"
)

var (
	ErrClosed        = errors.New("storage closed")
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrMalformed     = errors.New("malformed alarm store")
)

// Config configures storage.
//
// Driver values: "file" (default), "sqlite", "memory".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one persisted alarm, kept raw so that rows which no longer parse
// survive until restore reports them.
type Record struct {
	ChatID  int64  `json:"chat_id"`
	Time    string `json:"time"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// FromAlarm converts a validated alarm into its persisted form.
func FromAlarm(a alarm.Alarm) Record {
	return Record{
		ChatID:  a.Owner,
		Time:    a.At.String(),
		Message: a.Message,
		Type:    a.Recurrence.String(),
	}
}

// Alarm decodes the record. A missing message becomes alarm.DefaultMessage
// and a missing type becomes daily.
func (r Record) Alarm() (alarm.Alarm, error) {
	at, err := alarm.ParseTimeOfDay(r.Time)
	if err != nil {
		return alarm.Alarm{}, err
	}
	rec, err := alarm.ParseRecurrence(r.Type)
	if err != nil {
		return alarm.Alarm{}, err
	}
	return alarm.New(r.ChatID, at, r.Message, rec), nil
}

// Store is the alarm persistence API. Every mutating call is durable once it
// returns nil.
type Store interface {
	// List returns every record ordered by chat then time.
	List(ctx context.Context) ([]Record, error)
	// Upsert writes r, replacing any record with the same key.
	Upsert(ctx context.Context, r Record) error
	// Remove deletes the record at (chatID, hhmm) and reports whether one existed.
	Remove(ctx context.Context, chatID int64, hhmm string) (bool, error)
	Close() error
}

type recordKey struct {
	chatID int64
	time   string
}

// canonicalTime normalizes "7:05" to "07:05" so both spellings hit one key.
// Unparsable input is kept verbatim.
func canonicalTime(s string) string {
	if t, err := alarm.ParseTimeOfDay(s); err == nil {
		return t.String()
	}
	return strings.TrimSpace(s)
}

func keyOf(chatID int64, hhmm string) recordKey {
	return recordKey{chatID: chatID, time: canonicalTime(hhmm)}
}

func normalize(r Record) Record {
	r.Time = canonicalTime(r.Time)
	return r
}

func sortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].ChatID != rs[j].ChatID {
			return rs[i].ChatID < rs[j].ChatID
		}
		return rs[i].Time < rs[j].Time
	})
}
