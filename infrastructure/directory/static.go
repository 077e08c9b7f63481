// Package directory provides an in-process routing oracle populated from
// configuration.
package directory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/felixgeelhaar/itinerary/domain/directory"
	"github.com/felixgeelhaar/itinerary/domain/payload"
	"github.com/felixgeelhaar/itinerary/domain/routing"
	"github.com/felixgeelhaar/itinerary/infrastructure/logging"
)

// Static is a routing oracle over a fixed set of advertised entries. Entries
// are grouped by data id and kept sorted by expense.
type Static struct {
	mu      sync.RWMutex
	entries map[string][]*directory.Entry
}

// NewStatic creates an oracle advertising entries.
func NewStatic(entries ...*directory.Entry) *Static {
	s := &Static{entries: make(map[string][]*directory.Entry)}
	for _, e := range entries {
		s.Register(e)
	}
	return s
}

// Register advertises e, replacing an entry with the same key.
func (s *Static) Register(e *directory.Entry) {
	if e == nil {
		return
	}
	c := *e

	s.mu.Lock()
	defer s.mu.Unlock()

	id := c.DataID()
	list := slices.DeleteFunc(s.entries[id], func(x *directory.Entry) bool {
		return x.Key() == c.Key()
	})
	list = append(list, &c)
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Expense < list[j].Expense
	})
	s.entries[id] = list
}

// Remove withdraws the entry with key, expense ignored. It reports whether
// anything was removed.
func (s *Static) Remove(key string) bool {
	key = directory.RemoveExpense(key)
	id := directory.KeyDataID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	list, ok := s.entries[id]
	if !ok {
		return false
	}
	n := len(list)
	list = slices.DeleteFunc(list, func(x *directory.Entry) bool {
		return x.Key() == key
	})
	if len(list) == 0 {
		delete(s.entries, id)
	} else {
		s.entries[id] = list
	}
	return len(list) != n
}

// Entries returns every advertised entry ordered by data id then expense.
func (s *Static) Entries() []*directory.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []*directory.Entry
	for _, id := range ids {
		for _, e := range s.entries[id] {
			c := *e
			out = append(out, &c)
		}
	}
	return out
}

// Len returns the number of advertised entries.
func (s *Static) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, list := range s.entries {
		n += len(list)
	}
	return n
}

// NextKeys returns at most one candidate for dataID.
//
// A payload arriving from another data id, or from nowhere, gets the
// cheapest candidate. A payload retrying the same data id gets the first
// candidate more expensive than last, so each service of a stage is tried
// at most once.
func (s *Static) NextKeys(_ context.Context, dataID string, _ payload.Payload, last *directory.Entry) ([]*directory.Entry, error) {
	candidates := s.lookup(dataID)
	if len(candidates) == 0 {
		logging.Trace().
			Add(logging.DataID(dataID)).
			Msg("nothing advertised")
		return nil, nil
	}

	first := candidates[0]
	if last == nil || (last.DataID() != dataID && first.ServiceLocation != last.ServiceLocation) {
		return []*directory.Entry{first}, nil
	}

	le := last.Expense % directory.RemoteExpenseOverhead
	for _, e := range candidates {
		te := e.Expense % directory.RemoteExpenseOverhead
		sameHost := e.HostURL() == last.HostURL()

		switch {
		case te < le:
			continue
		case te == le && e.Expense >= last.Expense && !sameHost:
			continue
		case e.Expense <= last.Expense && sameHost:
			continue
		}
		return []*directory.Entry{e}, nil
	}
	return nil, nil
}

// lookup merges the lists of every wildcard id, sorted by expense.
func (s *Static) lookup(dataID string) []*directory.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*directory.Entry
	seen := make(map[string]struct{})
	for _, id := range WildcardIDs(dataID) {
		for _, e := range s.entries[id] {
			if _, dup := seen[e.Key()]; dup {
				continue
			}
			seen[e.Key()] = struct{}{}
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Expense < out[j].Expense
	})
	return out
}

var _ routing.Oracle = (*Static)(nil)
