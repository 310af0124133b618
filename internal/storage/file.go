package storage

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

	"envpool/internal/job"
	logx "envpool/pkg/logx"
)

// fileStore keeps results in memory and persists them as:
//   - <prefix>.results.snapshot.json (periodic snapshot)
//   - <prefix>.results.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every CompactEvery writes and
// on Close.
type fileStore struct {
	log logx.Logger

	mu           sync.Mutex
	snapshotPath string
	journal      *os.File
	results      map[string]Result
	writes       int
	compactEvery int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	prefix := filepath.Join(dir, base)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".results.snapshot.json"
	journalPath := prefix + ".results.journal.jsonl"

	results := map[string]Result{}
	if err := loadSnapshot(snapPath, results); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("results snapshot unreadable", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, results); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	every := cfg.CompactEvery
	if every <= 0 {
		every = 500
	}
	log.Debug("file store opened", logx.String("prefix", prefix), logx.Int("results", len(results)))
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		results:      results,
		compactEvery: every,
	}, nil
}

func (s *fileStore) MarkDone(_ context.Context, id job.Identity, status string) error {
	key := strings.TrimSpace(id.Key)
	r := Result{Key: key, Row: id.Row, Status: status, At: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.results[key] = r
	s.writes++
	if s.writes%s.compactEvery == 0 {
		if err := s.compactLocked(); err != nil {
			s.log.Warn("results compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) Lookup(_ context.Context, key string) (Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[strings.TrimSpace(key)]
	return r, ok, nil
}

func (s *fileStore) Results(context.Context) ([]Result, error) {
	s.mu.Lock()
	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	s.mu.Unlock()
	sortResults(out)
	return out, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.results); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string]Result) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]Result
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]Result) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Result
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil || r.Key == "" {
			continue
		}
		out[r.Key] = r
	}
	return sc.Err()
}
