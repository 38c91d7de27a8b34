package history

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps entries in process, newest first, up to a limit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	// Most recent entries first
	order []string
	limit int
}

// NewMemoryStore creates a store holding at most limit entries. A
// non-positive limit keeps everything.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		order:   make([]string, 0),
		limit:   limit,
	}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[e.ID]; ok {
		s.removeLocked(e.ID)
	}
	s.entries[e.ID] = &e
	s.order = append([]string{e.ID}, s.order...)

	for s.limit > 0 && len(s.order) > s.limit {
		oldest := s.order[len(s.order)-1]
		delete(s.entries, oldest)
		s.order = s.order[:len(s.order)-1]
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// List returns the matching page and the total number of stored entries.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) ([]Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []Entry
	for _, id := range s.order {
		e := s.entries[id]
		if e == nil {
			continue
		}
		if !opts.Since.IsZero() && e.CreatedAt.Before(opts.Since) {
			continue
		}
		if !opts.Before.IsZero() && e.CreatedAt.After(opts.Before) {
			continue
		}
		matches = append(matches, *e)
	}

	if opts.Order == "asc" {
		sort.SliceStable(matches, func(i, j int) bool {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		})
	}
	return page(matches, opts.Start, opts.Limit), len(s.entries), nil
}

func page(matches []Entry, start, limit int) []Entry {
	if start > 0 && start < len(matches) {
		matches = matches[start:]
	} else if start >= len(matches) {
		matches = nil
	}
	if limit > 0 && limit < len(matches) {
		matches = matches[:limit]
	}
	return matches
}

func (s *MemoryStore) Totals(_ context.Context) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var t Totals
	for _, e := range s.entries {
		t.add(e)
	}
	return t, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return ErrNotFound
	}
	s.removeLocked(id)
	return nil
}

func (s *MemoryStore) removeLocked(id string) {
	delete(s.entries, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]*Entry)
	s.order = make([]string, 0)
	return nil
}

func (s *MemoryStore) Close() {}
