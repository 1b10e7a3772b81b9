package scheduler

import (
	"sort"
	"time"
)

// Stats is a point-in-time view for logs and the list command.
type Stats struct {
	Timezone  string    `json:"timezone"`
	Armed     int       `json:"armed"`
	Transient int       `json:"transient"`
	NextFire  time.Time `json:"next_fire,omitempty"`
	Stopped   bool      `json:"stopped"`
}

// Snapshot returns the keyed timers ordered by owner then time of day.
func (s *Service) Snapshot() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.armed))
	for k, e := range s.armed {
		out = append(out, Entry{Key: k, Alarm: e.alarm, Next: e.next})
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key.Owner != out[j].Key.Owner {
			return out[i].Key.Owner < out[j].Key.Owner
		}
		return out[i].Key.At.Minutes() < out[j].Key.At.Minutes()
	})
	return out
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Timezone:  s.loc.String(),
		Armed:     len(s.armed),
		Transient: len(s.transient),
		Stopped:   s.stopped,
	}
	for _, e := range s.armed {
		if st.NextFire.IsZero() || e.next.Before(st.NextFire) {
			st.NextFire = e.next
		}
	}
	for _, e := range s.transient {
		if st.NextFire.IsZero() || e.next.Before(st.NextFire) {
			st.NextFire = e.next
		}
	}
	return st
}
