// Package logging implements a store that delegates everything to a nested store,
// logging operations as they happen.
package logging

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
)

var _ store.Store = &Store{}

type Store struct {
	s store.Store
}

func New(s store.Store) *Store {
	return &Store{s: s}
}

func (s *Store) SaveSpace(ctx context.Context, sp anchorhold.Space) error {
	err := s.s.SaveSpace(ctx, sp)
	if err != nil {
		log.Printf("ERROR SaveSpace %s: %s", sp.ID, err)
	} else {
		log.Printf("SaveSpace %s (%d payload bytes)", sp.ID, len(sp.Payload))
	}
	return err
}

func (s *Store) LoadSpace(ctx context.Context, id string) (*anchorhold.Space, error) {
	sp, err := s.s.LoadSpace(ctx, id)
	if err != nil {
		log.Printf("ERROR LoadSpace %s: %s", id, err)
	} else {
		log.Printf("LoadSpace %s, present=%v", id, sp != nil)
	}
	return sp, err
}

func (s *Store) LoadAllSpaces(ctx context.Context) ([]anchorhold.Space, error) {
	spaces, err := s.s.LoadAllSpaces(ctx)
	if err != nil {
		log.Printf("ERROR LoadAllSpaces: %s", err)
	} else {
		log.Printf("LoadAllSpaces: %d", len(spaces))
	}
	return spaces, err
}

func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	err := s.s.DeleteSpace(ctx, id)
	if err != nil {
		log.Printf("ERROR DeleteSpace %s: %s", id, err)
	} else {
		log.Printf("DeleteSpace %s", id)
	}
	return err
}

func (s *Store) SaveAnchor(ctx context.Context, a anchorhold.Anchor) error {
	err := s.s.SaveAnchor(ctx, a)
	if err != nil {
		log.Printf("ERROR SaveAnchor %s: %s", a.ID, err)
	} else {
		log.Printf("SaveAnchor %s in space %s", a.ID, a.SpaceID)
	}
	return err
}

func (s *Store) LoadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error) {
	a, err := s.s.LoadAnchor(ctx, id)
	if err != nil {
		log.Printf("ERROR LoadAnchor %s: %s", id, err)
	} else {
		log.Printf("LoadAnchor %s, present=%v", id, a != nil)
	}
	return a, err
}

func (s *Store) LoadAnchors(ctx context.Context, spaceID string) ([]anchorhold.Anchor, error) {
	anchors, err := s.s.LoadAnchors(ctx, spaceID)
	if err != nil {
		log.Printf("ERROR LoadAnchors %s: %s", spaceID, err)
	} else {
		log.Printf("LoadAnchors %s: %d", spaceID, len(anchors))
	}
	return anchors, err
}

func (s *Store) LoadAnchorsModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Anchor, error) {
	anchors, err := s.s.LoadAnchorsModifiedSince(ctx, t)
	if err != nil {
		log.Printf("ERROR LoadAnchorsModifiedSince %s: %s", t, err)
	} else {
		log.Printf("LoadAnchorsModifiedSince %s: %d", t, len(anchors))
	}
	return anchors, err
}

func (s *Store) PurgeDeletedAnchors(ctx context.Context, before time.Time) (int, error) {
	n, err := s.s.PurgeDeletedAnchors(ctx, before)
	if err != nil {
		log.Printf("ERROR PurgeDeletedAnchors %s: %s", before, err)
	} else {
		log.Printf("PurgeDeletedAnchors %s: %d purged", before, n)
	}
	return n, err
}

func (s *Store) AppendEvent(ctx context.Context, e anchorhold.AnchorEvent) error {
	err := s.s.AppendEvent(ctx, e)
	if err != nil {
		log.Printf("ERROR AppendEvent %s (%s v%d): %s", e.ID, e.Type, e.Version, err)
	} else {
		log.Printf("AppendEvent %s: anchor %s %s v%d", e.ID, e.AnchorID, e.Type, e.Version)
	}
	return err
}

func (s *Store) LoadEvents(ctx context.Context, spaceID string) ([]anchorhold.AnchorEvent, error) {
	events, err := s.s.LoadEvents(ctx, spaceID)
	if err != nil {
		log.Printf("ERROR LoadEvents %s: %s", spaceID, err)
	} else {
		log.Printf("LoadEvents %s: %d", spaceID, len(events))
	}
	return events, err
}

func (s *Store) CurrentVersion(ctx context.Context, anchorID, spaceID string) (int, error) {
	v, err := s.s.CurrentVersion(ctx, anchorID, spaceID)
	if err != nil {
		log.Printf("ERROR CurrentVersion %s: %s", anchorID, err)
	} else {
		log.Printf("CurrentVersion %s: %d", anchorID, v)
	}
	return v, err
}

func (s *Store) SavePendingOperations(ctx context.Context, ops []anchorhold.PendingOperation) error {
	err := s.s.SavePendingOperations(ctx, ops)
	if err != nil {
		log.Printf("ERROR SavePendingOperations (%d): %s", len(ops), err)
	} else {
		log.Printf("SavePendingOperations: %d", len(ops))
	}
	return err
}

func (s *Store) LoadPendingOperations(ctx context.Context) ([]anchorhold.PendingOperation, error) {
	ops, err := s.s.LoadPendingOperations(ctx)
	if err != nil {
		log.Printf("ERROR LoadPendingOperations: %s", err)
	} else {
		log.Printf("LoadPendingOperations: %d", len(ops))
	}
	return ops, err
}

func (s *Store) SaveLastSync(ctx context.Context, t time.Time) error {
	err := s.s.SaveLastSync(ctx, t)
	if err != nil {
		log.Printf("ERROR SaveLastSync %s: %s", t, err)
	} else {
		log.Printf("SaveLastSync %s", t)
	}
	return err
}

func (s *Store) LoadLastSync(ctx context.Context) (time.Time, error) {
	t, err := s.s.LoadLastSync(ctx)
	if err != nil {
		log.Printf("ERROR LoadLastSync: %s", err)
	} else {
		log.Printf("LoadLastSync: %s", t)
	}
	return t, err
}

func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	size, err := s.s.TotalSize(ctx)
	if err != nil {
		log.Printf("ERROR TotalSize: %s", err)
	} else {
		log.Printf("TotalSize: %d", size)
	}
	return size, err
}

func (s *Store) ClearAll(ctx context.Context) error {
	err := s.s.ClearAll(ctx)
	if err != nil {
		log.Printf("ERROR ClearAll: %s", err)
	} else {
		log.Printf("ClearAll")
	}
	return err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
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
		return New(nestedStore), nil
	})
}
