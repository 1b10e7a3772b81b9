package alarm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*60*60)

func at(y int, m time.Month, d, hh, mm, ss int) time.Time {
	return time.Date(y, m, d, hh, mm, ss, 0, wib)
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "07:00", want: "07:00"},
		{in: "7:05", want: "07:05"},
		{in: " 23:59 ", want: "23:59"},
		{in: "00:00", want: "00:00"},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "1200", wantErr: true},
		{in: "ab:cd", wantErr: true},
		{in: "", wantErr: true},
		{in: "123:00", wantErr: true},
		{in: "-1:00", wantErr: true},
		{in: "+7:+5", wantErr: true},
		{in: "-0:00", wantErr: true},
		{in: "07:-0", wantErr: true},
		{in: "7 :05", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			t.Parallel()

			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				require.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got.String())
		})
	}
}

func TestParseRecurrence(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Recurrence{
		"":         Daily,
		"daily":    Daily,
		"WORKDAYS": Workdays,
		"once":     Once,
	} {
		got, err := ParseRecurrence(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseRecurrence("hourly")
	require.True(t, IsValidation(err))
}

func TestNewDefaultsMessage(t *testing.T) {
	t.Parallel()

	a := New(42, MustTime("06:30"), "   ", Daily)
	require.Equal(t, DefaultMessage, a.Message)
	require.Equal(t, Key{Owner: 42, At: TimeOfDay{Hour: 6, Minute: 30}}, a.Key())
	require.Equal(t, "42@06:30", a.Key().String())
}

func TestNextFire(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		at   string
		rec  Recurrence
		now  time.Time
		want time.Time
	}{
		{"daily already passed", "07:00", Daily, at(2024, 1, 1, 8, 0, 0), at(2024, 1, 2, 7, 0, 0)},
		{"daily later today", "07:00", Daily, at(2024, 1, 1, 6, 59, 59), at(2024, 1, 1, 7, 0, 0)},
		{"daily exactly now", "07:00", Daily, at(2024, 1, 1, 7, 0, 0), at(2024, 1, 2, 7, 0, 0)},
		{"daily seconds past", "07:00", Daily, at(2024, 1, 1, 7, 0, 30), at(2024, 1, 2, 7, 0, 0)},
		{"month rollover", "00:15", Daily, at(2024, 1, 31, 23, 30, 0), at(2024, 2, 1, 0, 15, 0)},
		{"leap day", "06:00", Daily, at(2024, 2, 28, 7, 0, 0), at(2024, 2, 29, 6, 0, 0)},
		{"workdays friday evening", "09:00", Workdays, at(2024, 1, 5, 10, 0, 0), at(2024, 1, 8, 9, 0, 0)},
		{"workdays saturday", "09:00", Workdays, at(2024, 1, 6, 8, 0, 0), at(2024, 1, 8, 9, 0, 0)},
		{"workdays sunday", "09:00", Workdays, at(2024, 1, 7, 23, 0, 0), at(2024, 1, 8, 9, 0, 0)},
		{"workdays friday morning", "09:00", Workdays, at(2024, 1, 5, 8, 0, 0), at(2024, 1, 5, 9, 0, 0)},
		{"workdays monday morning", "09:00", Workdays, at(2024, 1, 8, 8, 59, 0), at(2024, 1, 8, 9, 0, 0)},
		{"workdays midweek", "09:00", Workdays, at(2024, 1, 3, 8, 0, 0), at(2024, 1, 3, 9, 0, 0)},
		{"once later today", "15:00", Once, at(2024, 1, 1, 14, 0, 0), at(2024, 1, 1, 15, 0, 0)},
		{"once tomorrow", "15:00", Once, at(2024, 1, 6, 16, 0, 0), at(2024, 1, 7, 15, 0, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := NextFire(MustTime(tc.at), tc.rec, tc.now)
			require.True(t, tc.want.Equal(got), "want %s got %s", tc.want, got)
			require.True(t, got.After(tc.now))
		})
	}
}

func TestNextFireProperties(t *testing.T) {
	t.Parallel()

	start := at(2024, 3, 1, 0, 0, 0)
	for step := 0; step < 24*14; step += 5 {
		now := start.Add(time.Duration(step) * 47 * time.Minute)
		for _, hhmm := range []string{"00:00", "06:45", "12:30", "23:59"} {
			tod := MustTime(hhmm)
			for _, rec := range []Recurrence{Daily, Workdays, Once} {
				next := NextFire(tod, rec, now)
				require.True(t, next.After(now))
				require.Less(t, next.Sub(now), 4*24*time.Hour)
				require.Equal(t, tod.Hour, next.Hour())
				require.Equal(t, tod.Minute, next.Minute())
				if rec == Workdays {
					require.NotEqual(t, time.Saturday, next.Weekday())
					require.NotEqual(t, time.Sunday, next.Weekday())
				} else {
					require.LessOrEqual(t, next.Sub(now), 24*time.Hour)
				}
			}
		}
	}
}

func TestCronSpecMatchesNextFire(t *testing.T) {
	t.Parallel()

	spec, ok := CronSpec(MustTime("07:05"), Daily)
	require.True(t, ok)
	require.Equal(t, "5 7 * * *", spec)

	spec, ok = CronSpec(MustTime("09:00"), Workdays)
	require.True(t, ok)
	require.Equal(t, "0 9 * * 1-5", spec)

	_, ok = CronSpec(MustTime("09:00"), Once)
	require.False(t, ok)

	now := at(2024, 1, 4, 12, 0, 0)
	for i := 0; i < 20; i++ {
		now = now.Add(13 * time.Hour)
		for _, rec := range []Recurrence{Daily, Workdays} {
			tod := MustTime("09:00")
			runs := Upcoming(tod, rec, now, 3)
			require.Len(t, runs, 3)
			require.True(t, NextFire(tod, rec, now).Equal(runs[0]), "rec=%s now=%s", rec, now)
			require.True(t, runs[1].After(runs[0]))
		}
	}
}

func TestUpcomingOnce(t *testing.T) {
	t.Parallel()

	now := at(2024, 1, 1, 14, 0, 0)
	runs := Upcoming(MustTime("15:00"), Once, now, 5)
	require.Len(t, runs, 1)
	require.True(t, at(2024, 1, 1, 15, 0, 0).Equal(runs[0]))
	require.Nil(t, Upcoming(MustTime("15:00"), Once, now, 0))
}
