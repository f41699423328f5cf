// Package region tracks which regions contribute to the plotted counts.
package region

import (
	"sort"
	"sync"

	"github.com/djlord-it/botgraph/internal/domain"
)

// Selection is the set of region ids currently included in aggregation.
// A Selection without metadata is unfiltered: Aggregate uses global totals.
type Selection struct {
	mu       sync.RWMutex
	meta     domain.RegionMeta
	included map[string]bool
}

// NewSelection returns an unfiltered selection.
func NewSelection() *Selection {
	return &Selection{included: make(map[string]bool)}
}

// SetMeta installs region metadata and includes every known region.
// Empty metadata leaves the selection unfiltered.
func (s *Selection) SetMeta(meta domain.RegionMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(meta) == 0 {
		s.meta = nil
		s.included = make(map[string]bool)
		return
	}
	s.meta = make(domain.RegionMeta, len(meta))
	s.included = make(map[string]bool, len(meta))
	for id, desc := range meta {
		s.meta[id] = desc
		s.included[id] = true
	}
}

// Available reports whether region metadata was loaded.
func (s *Selection) Available() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta != nil
}

// Known reports whether id is a region from the metadata.
func (s *Selection) Known(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.meta[id]
	return ok
}

// Set includes or excludes id. Unknown ids are ignored and false is returned.
func (s *Selection) Set(id string, include bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.meta[id]; !ok {
		return false
	}
	s.included[id] = include
	return true
}

// Toggle flips id and returns the new state. ok is false for unknown ids.
func (s *Selection) Toggle(id string) (included, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, known := s.meta[id]; !known {
		return false, false
	}
	s.included[id] = !s.included[id]
	return s.included[id], true
}

// IncludeAll includes every known region.
func (s *Selection) IncludeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.meta {
		s.included[id] = true
	}
}

// Contains reports whether id is included.
func (s *Selection) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.included[id]
}

// Included returns the included ids, sorted.
func (s *Selection) Included() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, in := range s.included {
		if in {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Entry describes one region for the selector UI.
type Entry struct {
	ID         string `json:"id"`
	Descriptor string `json:"descriptor"`
	Included   bool   `json:"included"`
}

// Entries lists every known region sorted by descriptor.
func (s *Selection) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.meta))
	for id, desc := range s.meta {
		entries = append(entries, Entry{ID: id, Descriptor: desc, Included: s.included[id]})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Descriptor != entries[j].Descriptor {
			return entries[i].Descriptor < entries[j].Descriptor
		}
		return entries[i].ID < entries[j].ID
	})
	return entries
}

// Aggregate sums the counts of the included regions. Per-region counts are
// looked up by descriptor. Without metadata the global totals are returned
// unchanged. An empty selection always yields zero counts. When regions are
// selected but the upstream reports no per-region counts, the global totals
// are used.
func (s *Selection) Aggregate(stats domain.Stats) domain.Counts {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.meta == nil {
		return stats.Totals
	}

	var (
		sum      domain.Counts
		selected bool
	)
	for id, in := range s.included {
		if !in {
			continue
		}
		desc, ok := s.meta[id]
		if !ok {
			continue
		}
		selected = true
		sum = sum.Add(stats.Regions[desc])
	}
	if !selected {
		return domain.Counts{}
	}
	if len(stats.Regions) == 0 {
		return stats.Totals
	}
	return sum
}
