// Package mem implements an in-memory record store.
package mem

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
)

var _ store.Store = &Store{}

// Store is a memory-based implementation of the record store.
// Records are deep-copied on the way in and out,
// so callers never share mutable state with the store.
type Store struct {
	mu       sync.Mutex
	spaces   map[string]anchorhold.Space
	anchors  map[string]anchorhold.Anchor
	events   map[string][]anchorhold.AnchorEvent // spaceID -> events in insertion order
	pending  []anchorhold.PendingOperation
	lastSync time.Time
}

// New produces a new Store.
func New() *Store {
	return &Store{
		spaces:  make(map[string]anchorhold.Space),
		anchors: make(map[string]anchorhold.Anchor),
		events:  make(map[string][]anchorhold.AnchorEvent),
	}
}

// SaveSpace implements store.Store.
func (s *Store) SaveSpace(_ context.Context, sp anchorhold.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces[sp.ID] = sp.Clone()
	return nil
}

// LoadSpace implements store.Store.
func (s *Store) LoadSpace(_ context.Context, id string) (*anchorhold.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[id]
	if !ok {
		return nil, nil
	}
	out := sp.Clone()
	return &out, nil
}

// LoadAllSpaces implements store.Store.
func (s *Store) LoadAllSpaces(_ context.Context) ([]anchorhold.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]anchorhold.Space, 0, len(s.spaces))
	for _, sp := range s.spaces {
		out = append(out, sp.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteSpace implements store.Store.
// The space's anchor records go with it; its events do not.
func (s *Store) DeleteSpace(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.spaces, id)
	for aid, a := range s.anchors {
		if a.SpaceID == id {
			delete(s.anchors, aid)
		}
	}
	return nil
}

// SaveAnchor implements store.Store.
func (s *Store) SaveAnchor(_ context.Context, a anchorhold.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anchors[a.ID] = a.Clone()
	return nil
}

// LoadAnchor implements store.Store.
func (s *Store) LoadAnchor(_ context.Context, id string) (*anchorhold.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anchors[id]
	if !ok {
		return nil, nil
	}
	out := a.Clone()
	return &out, nil
}

// LoadAnchors implements store.Store.
func (s *Store) LoadAnchors(_ context.Context, spaceID string) ([]anchorhold.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []anchorhold.Anchor
	for _, a := range s.anchors {
		if a.SpaceID == spaceID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadAnchorsModifiedSince implements store.Store.
func (s *Store) LoadAnchorsModifiedSince(_ context.Context, t time.Time) ([]anchorhold.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []anchorhold.Anchor
	for _, a := range s.anchors {
		if a.UpdatedAt.After(t) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PurgeDeletedAnchors implements store.Store.
func (s *Store) PurgeDeletedAnchors(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, a := range s.anchors {
		if a.DeletedAt != nil && a.DeletedAt.Before(before) {
			delete(s.anchors, id)
			n++
		}
	}
	return n, nil
}

// AppendEvent implements store.Store.
func (s *Store) AppendEvent(_ context.Context, e anchorhold.AnchorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.SpaceID] = append(s.events[e.SpaceID], e.Clone())
	return nil
}

// LoadEvents implements store.Store.
func (s *Store) LoadEvents(_ context.Context, spaceID string) ([]anchorhold.AnchorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs := s.events[spaceID]
	out := make([]anchorhold.AnchorEvent, len(evs))
	for i, e := range evs {
		out[i] = e.Clone()
	}
	return out, nil
}

// CurrentVersion implements store.Store.
func (s *Store) CurrentVersion(_ context.Context, anchorID, spaceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int
	for _, e := range s.events[spaceID] {
		if e.AnchorID == anchorID && e.Version > max {
			max = e.Version
		}
	}
	return max, nil
}

// SavePendingOperations implements store.Store.
func (s *Store) SavePendingOperations(_ context.Context, ops []anchorhold.PendingOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make([]anchorhold.PendingOperation, len(ops))
	copy(s.pending, ops)
	return nil
}

// LoadPendingOperations implements store.Store.
func (s *Store) LoadPendingOperations(_ context.Context) ([]anchorhold.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]anchorhold.PendingOperation, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

// SaveLastSync implements store.Store.
func (s *Store) SaveLastSync(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = t
	return nil
}

// LoadLastSync implements store.Store.
func (s *Store) LoadLastSync(_ context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync, nil
}

// TotalSize implements store.Store.
// For the in-memory store this is the encoded size of every record.
func (s *Store) TotalSize(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	add := func(v interface{}) error {
		b, err := json.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "sizing record")
		}
		total += int64(len(b))
		return nil
	}

	for _, sp := range s.spaces {
		if err := add(sp); err != nil {
			return 0, err
		}
	}
	for _, a := range s.anchors {
		if err := add(a); err != nil {
			return 0, err
		}
	}
	for _, evs := range s.events {
		for _, e := range evs {
			if err := add(e); err != nil {
				return 0, err
			}
		}
	}
	if len(s.pending) > 0 {
		if err := add(s.pending); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// ClearAll implements store.Store.
func (s *Store) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spaces = make(map[string]anchorhold.Space)
	s.anchors = make(map[string]anchorhold.Anchor)
	s.events = make(map[string][]anchorhold.AnchorEvent)
	s.pending = nil
	s.lastSync = time.Time{}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (store.Store, error) {
		return New(), nil
	})
}
