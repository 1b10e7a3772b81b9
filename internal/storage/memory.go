package storage

import (
	"context"
	"sync"
)

// memoryStore keeps records in a map.
type memoryStore struct {
	mu     sync.Mutex
	rows   map[recordKey]Record
	closed bool
}

// NewMemory returns a non-durable store.
func NewMemory() Store {
	return &memoryStore{rows: map[recordKey]Record{}}
}

func (s *memoryStore) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return snapshot(s.rows), nil
}

func (s *memoryStore) Upsert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r = normalize(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.rows[keyOf(r.ChatID, r.Time)] = r
	return nil
}

func (s *memoryStore) Remove(ctx context.Context, chatID int64, hhmm string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := keyOf(chatID, hhmm)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.rows[k]; !ok {
		return false, nil
	}
	delete(s.rows, k)
	return true, nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func snapshot(rows map[recordKey]Record) []Record {
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}
