// Package lru implements a store that acts as a least-recently-used
// read cache for single-record lookups against a nested store.
package lru

import (
	"context"
	"encoding/json"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
)

var _ store.Store = &Store{}

// Store caches LoadSpace and LoadAnchor results in memory.
// Writes pass through to the nested store and refresh the cache;
// listing, event, and queue operations are uncached.
// Destructive operations invalidate what they touch.
type Store struct {
	spaces  *lru.Cache // space id -> anchorhold.Space
	anchors *lru.Cache // anchor id -> anchorhold.Anchor
	s       store.Store
}

// New produces a new Store backed by `s`,
// caching up to `size` spaces and `size` anchors.
func New(s store.Store, size int) (*Store, error) {
	spaces, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	anchors, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Store{spaces: spaces, anchors: anchors, s: s}, nil
}

func (s *Store) SaveSpace(ctx context.Context, sp anchorhold.Space) error {
	err := s.s.SaveSpace(ctx, sp)
	if err != nil {
		return err
	}
	s.spaces.Add(sp.ID, sp.Clone())
	return nil
}

func (s *Store) LoadSpace(ctx context.Context, id string) (*anchorhold.Space, error) {
	if got, ok := s.spaces.Get(id); ok {
		sp := got.(anchorhold.Space).Clone()
		return &sp, nil
	}
	sp, err := s.s.LoadSpace(ctx, id)
	if err != nil || sp == nil {
		return sp, err
	}
	s.spaces.Add(id, sp.Clone())
	return sp, nil
}

func (s *Store) LoadAllSpaces(ctx context.Context) ([]anchorhold.Space, error) {
	return s.s.LoadAllSpaces(ctx)
}

func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	err := s.s.DeleteSpace(ctx, id)
	if err != nil {
		return err
	}
	s.spaces.Remove(id)
	// Cached anchors of the deleted space are stale too.
	for _, k := range s.anchors.Keys() {
		if got, ok := s.anchors.Peek(k); ok && got.(anchorhold.Anchor).SpaceID == id {
			s.anchors.Remove(k)
		}
	}
	return nil
}

func (s *Store) SaveAnchor(ctx context.Context, a anchorhold.Anchor) error {
	err := s.s.SaveAnchor(ctx, a)
	if err != nil {
		return err
	}
	s.anchors.Add(a.ID, a.Clone())
	return nil
}

func (s *Store) LoadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error) {
	if got, ok := s.anchors.Get(id); ok {
		a := got.(anchorhold.Anchor).Clone()
		return &a, nil
	}
	a, err := s.s.LoadAnchor(ctx, id)
	if err != nil || a == nil {
		return a, err
	}
	s.anchors.Add(id, a.Clone())
	return a, nil
}

func (s *Store) LoadAnchors(ctx context.Context, spaceID string) ([]anchorhold.Anchor, error) {
	return s.s.LoadAnchors(ctx, spaceID)
}

func (s *Store) LoadAnchorsModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Anchor, error) {
	return s.s.LoadAnchorsModifiedSince(ctx, t)
}

func (s *Store) PurgeDeletedAnchors(ctx context.Context, before time.Time) (int, error) {
	n, err := s.s.PurgeDeletedAnchors(ctx, before)
	if err != nil {
		return n, err
	}
	for _, k := range s.anchors.Keys() {
		if got, ok := s.anchors.Peek(k); ok {
			a := got.(anchorhold.Anchor)
			if a.DeletedAt != nil && a.DeletedAt.Before(before) {
				s.anchors.Remove(k)
			}
		}
	}
	return n, nil
}

func (s *Store) AppendEvent(ctx context.Context, e anchorhold.AnchorEvent) error {
	return s.s.AppendEvent(ctx, e)
}

func (s *Store) LoadEvents(ctx context.Context, spaceID string) ([]anchorhold.AnchorEvent, error) {
	return s.s.LoadEvents(ctx, spaceID)
}

func (s *Store) CurrentVersion(ctx context.Context, anchorID, spaceID string) (int, error) {
	return s.s.CurrentVersion(ctx, anchorID, spaceID)
}

func (s *Store) SavePendingOperations(ctx context.Context, ops []anchorhold.PendingOperation) error {
	return s.s.SavePendingOperations(ctx, ops)
}

func (s *Store) LoadPendingOperations(ctx context.Context) ([]anchorhold.PendingOperation, error) {
	return s.s.LoadPendingOperations(ctx)
}

func (s *Store) SaveLastSync(ctx context.Context, t time.Time) error {
	return s.s.SaveLastSync(ctx, t)
}

func (s *Store) LoadLastSync(ctx context.Context) (time.Time, error) {
	return s.s.LoadLastSync(ctx)
}

func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	return s.s.TotalSize(ctx)
}

func (s *Store) ClearAll(ctx context.Context) error {
	err := s.s.ClearAll(ctx)
	if err != nil {
		return err
	}
	s.spaces.Purge()
	s.anchors.Purge()
	return nil
}

func init() {
	store.Register("lru", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		var size int
		switch n := conf["size"].(type) {
		case json.Number:
			size64, err := n.Int64()
			if err != nil {
				return nil, errors.Wrapf(err, "parsing size %v", n)
			}
			size = int(size64)
		case int:
			size = n
		default:
			return nil, errors.New(`missing "size" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, size)
	})
}
