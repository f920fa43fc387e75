package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "ftmaint/pkg/logx"
)

// fileStore is a dependency-free persistence backend: one append-only
// JSON Lines file. The whole log is kept in memory; PruneOlderThan
// compacts by atomic rewrite.
//
// Intended for small installations and tests; sqlite is the default.
type fileStore struct {
	log  logx.Logger
	path string

	mu      sync.Mutex
	f       *os.File
	records []Record
	nextID  int64
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{log: log, path: path, nextID: 1}
	if err := st.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	st.f = f
	return st, nil
}

func (s *fileStore) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var r Record
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Torn tail write; skip the line but keep the rest.
			s.log.Warn("history: skipping corrupt line", logx.String("path", s.path))
			continue
		}
		if r.ID >= s.nextID {
			s.nextID = r.ID + 1
		}
		s.records = append(s.records, r)
	}
	return sc.Err()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) Append(_ context.Context, r Record) error {
	if strings.TrimSpace(r.DatabaseName) == "" {
		return errors.New("history: database name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrDisabled
	}

	r.ID = s.nextID
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := s.f.Write(append(b, '\n')); err != nil {
		return err
	}
	s.nextID++
	s.records = append(s.records, r)
	return nil
}

func (s *fileStore) AverageDuration(_ context.Context, db string, action Action, since time.Time) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sum float64
		n   int
	)
	for _, r := range s.records {
		if r.DatabaseName != db || r.Action != action {
			continue
		}
		if r.FinishTime.Before(since) {
			continue
		}
		sum += r.DurationMinutes
		n++
	}
	if n == 0 {
		return 0, false, nil
	}
	return sum / float64(n), true, nil
}

func (s *fileStore) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, ErrDisabled
	}

	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.FinishTime.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	if removed == 0 {
		return 0, nil
	}
	s.records = kept

	if err := s.rewriteLocked(); err != nil {
		return removed, err
	}
	return removed, nil
}

// rewriteLocked compacts the log via temp file + rename.
func (s *fileStore) rewriteLocked() error {
	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, r := range s.records {
		b, err := json.Marshal(r)
		if err != nil {
			_ = f.Close()
			return err
		}
		if _, err := w.Write(append(b, '\n')); err != nil {
			_ = f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	old := s.f
	nf, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	s.f = nf
	if old != nil {
		_ = old.Close()
	}
	return nil
}
