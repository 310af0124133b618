package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"envpool/internal/job"
)

type Memory struct {
	mu      sync.RWMutex
	results map[string]Result
}

func NewMemory() *Memory { return &Memory{results: map[string]Result{}} }

func (m *Memory) MarkDone(_ context.Context, id job.Identity, status string) error {
	key := strings.TrimSpace(id.Key)
	m.mu.Lock()
	m.results[key] = Result{Key: key, Row: id.Row, Status: status, At: time.Now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Lookup(_ context.Context, key string) (Result, bool, error) {
	m.mu.RLock()
	r, ok := m.results[strings.TrimSpace(key)]
	m.mu.RUnlock()
	return r, ok, nil
}

func (m *Memory) Results(context.Context) ([]Result, error) {
	m.mu.RLock()
	out := make([]Result, 0, len(m.results))
	for _, r := range m.results {
		out = append(out, r)
	}
	m.mu.RUnlock()
	sortResults(out)
	return out, nil
}

func (m *Memory) Close() error { return nil }

func sortResults(rs []Result) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Row != rs[j].Row {
			return rs[i].Row < rs[j].Row
		}
		return rs[i].Key < rs[j].Key
	})
}
