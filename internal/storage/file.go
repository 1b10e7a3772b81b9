package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	logx "alarmbot/pkg/logx"
)

// fileStore keeps the whole alarm set in memory and rewrites one JSON file on
// every change. The layout matches a plain array of records:
//
//	[{"chat_id": 1, "time": "07:00", "message": "Alarm!", "type": "daily"}]
//
// A write goes to <path>.tmp, is fsynced, then renamed over <path>. A crash at
// any point leaves either the old or the new file, never a torn one.
type fileStore struct {
	log  logx.Logger
	path string

	mu     sync.Mutex
	rows   map[recordKey]Record
	closed bool

	// writeFile is swapped in tests to simulate disk failures.
	writeFile func(path string, data []byte) error
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	s := &fileStore{
		log:       log,
		path:      path,
		rows:      map[recordKey]Record{},
		writeFile: atomicWrite,
	}
	s.load()
	return s, nil
}

// load reads the file. Missing or empty files yield an empty set; unreadable
// content is moved aside and the store starts empty.
func (s *fileStore) load() {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		s.log.Error("alarm store unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		return
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return
	}

	recs, err := decodeRecords(b)
	if err != nil {
		aside := s.path + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		if rerr := os.Rename(s.path, aside); rerr != nil {
			s.log.Error("alarm store malformed; starting empty (could not move aside)",
				logx.String("path", s.path), logx.Err(err), logx.String("rename_err", rerr.Error()))
			return
		}
		s.log.Error("alarm store malformed; moved aside and starting empty",
			logx.String("path", s.path), logx.String("moved_to", aside), logx.Err(err))
		return
	}
	for _, r := range recs {
		s.rows[keyOf(r.ChatID, r.Time)] = r
	}
	s.log.Debug("alarm store loaded", logx.String("path", s.path), logx.Int("records", len(s.rows)))
}

// decodeRecords parses the file layout. Later duplicates win, same as a
// replacing save.
func decodeRecords(b []byte) ([]Record, error) {
	var raw []Record
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	rows := make(map[recordKey]Record, len(raw))
	for _, r := range raw {
		r = normalize(r)
		rows[keyOf(r.ChatID, r.Time)] = r
	}
	return snapshot(rows), nil
}

func (s *fileStore) List(ctx context.Context) ([]Record, error) {
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

func (s *fileStore) Upsert(ctx context.Context, r Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r = normalize(r)
	k := keyOf(r.ChatID, r.Time)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, had := s.rows[k]
	s.rows[k] = r
	if err := s.flushLocked(); err != nil {
		if had {
			s.rows[k] = prev
		} else {
			delete(s.rows, k)
		}
		return err
	}
	return nil
}

func (s *fileStore) Remove(ctx context.Context, chatID int64, hhmm string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	k := keyOf(chatID, hhmm)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	prev, had := s.rows[k]
	if !had {
		return false, nil
	}
	delete(s.rows, k)
	if err := s.flushLocked(); err != nil {
		s.rows[k] = prev
		return false, err
	}
	return true, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fileStore) flushLocked() error {
	b, err := json.MarshalIndent(snapshot(s.rows), "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return s.writeFile(s.path, b)
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	syncDir(filepath.Dir(path))
	return nil
}

// syncDir makes the rename durable. Not every platform supports fsync on a
// directory, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
