// Package favorites holds the per-session set of favorite contest IDs.
// Sets are serializable; nothing here persists them.
package favorites

import (
	"encoding/json"
	"sort"
	"sync"
)

// Set is a concurrency-safe set of contest IDs. The zero value is ready to use.
type Set struct {
	mu  sync.RWMutex
	ids map[int]struct{}
}

// New returns a set containing ids.
func New(ids ...int) *Set {
	s := &Set{}
	for _, id := range ids {
		s.add(id)
	}
	return s
}

// Toggle flips the membership of id.
func (s *Set) Toggle(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	if s.ids == nil {
		s.ids = make(map[int]struct{})
	}
	s.ids[id] = struct{}{}
}

// Has reports whether id is a favorite.
func (s *Set) Has(id int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok
}

func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s *Set) IDs() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]int, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	s.mu.Lock()
	s.ids = nil
	s.mu.Unlock()
	for _, id := range ids {
		s.add(id)
	}
	return nil
}

func (s *Set) add(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[int]struct{})
	}
	s.ids[id] = struct{}{}
}
