// Package mem implements an in-memory remote replica,
// with injectable failures, for exercising sync and retry paths in tests.
package mem

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/remote"
)

var _ remote.Store = &Store{}

// Store is a memory-based remote replica.
//
// Setting FailUploads (or FailDeletes) makes the corresponding
// operations fail with the given error until cleared,
// which is how tests simulate an unreachable backend.
type Store struct {
	mu          sync.Mutex
	spaces      map[string]anchorhold.Space
	anchors     map[string]anchorhold.Anchor
	events      map[string]anchorhold.AnchorEvent
	failUploads error
	failDeletes error

	// Uploads counts successful upload calls, by record kind.
	Uploads map[string]int
}

// New produces a new Store.
func New() *Store {
	return &Store{
		spaces:  make(map[string]anchorhold.Space),
		anchors: make(map[string]anchorhold.Anchor),
		events:  make(map[string]anchorhold.AnchorEvent),
		Uploads: make(map[string]int),
	}
}

// FailUploads makes subsequent uploads fail with err; nil clears the failure.
func (s *Store) FailUploads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploads = err
}

// FailDeletes makes subsequent deletes and purges fail with err;
// nil clears the failure.
func (s *Store) FailDeletes(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDeletes = err
}

// Put seeds a record directly, bypassing failure injection.
func (s *Store) Put(rec interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r := rec.(type) {
	case anchorhold.Space:
		s.spaces[r.ID] = r.Clone()
	case anchorhold.Anchor:
		s.anchors[r.ID] = r.Clone()
	case anchorhold.AnchorEvent:
		s.events[r.ID] = r.Clone()
	}
}

// EventCount reports how many event records the replica holds.
func (s *Store) EventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// UploadSpace implements remote.Store.
func (s *Store) UploadSpace(_ context.Context, sp anchorhold.Space) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads != nil {
		return s.failUploads
	}
	s.spaces[sp.ID] = sp.Clone()
	s.Uploads["space"]++
	return nil
}

// DownloadSpace implements remote.Store.
func (s *Store) DownloadSpace(_ context.Context, id string) (*anchorhold.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.spaces[id]
	if !ok {
		return nil, nil
	}
	out := sp.Clone()
	return &out, nil
}

// ListSpacesModifiedSince implements remote.Store.
func (s *Store) ListSpacesModifiedSince(_ context.Context, t time.Time) ([]anchorhold.Space, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []anchorhold.Space
	for _, sp := range s.spaces {
		if sp.UpdatedAt.After(t) {
			out = append(out, sp.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteSpace implements remote.Store.
func (s *Store) DeleteSpace(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes != nil {
		return s.failDeletes
	}
	delete(s.spaces, id)
	return nil
}

// UploadAnchor implements remote.Store.
func (s *Store) UploadAnchor(_ context.Context, a anchorhold.Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads != nil {
		return s.failUploads
	}
	s.anchors[a.ID] = a.Clone()
	s.Uploads["anchor"]++
	return nil
}

// DownloadAnchor implements remote.Store.
func (s *Store) DownloadAnchor(_ context.Context, id string) (*anchorhold.Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.anchors[id]
	if !ok {
		return nil, nil
	}
	out := a.Clone()
	return &out, nil
}

// ListAnchorsModifiedSince implements remote.Store.
func (s *Store) ListAnchorsModifiedSince(_ context.Context, t time.Time) ([]anchorhold.Anchor, error) {
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

// DeleteAnchor implements remote.Store.
func (s *Store) DeleteAnchor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes != nil {
		return s.failDeletes
	}
	delete(s.anchors, id)
	return nil
}

// UploadEvent implements remote.Store.
func (s *Store) UploadEvent(_ context.Context, e anchorhold.AnchorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUploads != nil {
		return s.failUploads
	}
	s.events[e.ID] = e.Clone()
	s.Uploads["event"]++
	return nil
}

// PurgeAnchors implements remote.Store.
func (s *Store) PurgeAnchors(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes != nil {
		return s.failDeletes
	}
	for id, a := range s.anchors {
		if a.DeletedAt != nil && a.DeletedAt.Before(before) {
			delete(s.anchors, id)
		}
	}
	return nil
}

// PurgeEvents implements remote.Store.
func (s *Store) PurgeEvents(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDeletes != nil {
		return s.failDeletes
	}
	for id, e := range s.events {
		if e.Timestamp.Before(before) {
			delete(s.events, id)
		}
	}
	return nil
}
