package lru

import (
	"context"
	"testing"
	"time"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
	"github.com/anchorhold/anchorhold/store/mem"
	"github.com/anchorhold/anchorhold/testutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(mem.New(), 100)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRecords(t *testing.T) {
	testutil.Records(context.Background(), t, newTestStore(t))
}

func TestEvents(t *testing.T) {
	testutil.Events(context.Background(), t, newTestStore(t))
}

func TestQueue(t *testing.T) {
	testutil.Queue(context.Background(), t, newTestStore(t))
}

// countingStore counts single-record loads reaching the nested store.
type countingStore struct {
	store.Store
	spaceLoads, anchorLoads int
}

func (c *countingStore) LoadSpace(ctx context.Context, id string) (*anchorhold.Space, error) {
	c.spaceLoads++
	return c.Store.LoadSpace(ctx, id)
}

func (c *countingStore) LoadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error) {
	c.anchorLoads++
	return c.Store.LoadAnchor(ctx, id)
}

func TestCacheShieldsNestedStore(t *testing.T) {
	ctx := context.Background()
	counting := &countingStore{Store: mem.New()}
	s, err := New(counting, 100)
	if err != nil {
		t.Fatal(err)
	}

	at := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	if err = s.SaveSpace(ctx, anchorhold.Space{ID: "sp1", Name: "kitchen", CreatedAt: at, UpdatedAt: at}); err != nil {
		t.Fatal(err)
	}
	if err = s.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "sp1", Transform: anchorhold.Identity, CreatedAt: at, UpdatedAt: at}); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if sp, err := s.LoadSpace(ctx, "sp1"); err != nil || sp == nil {
			t.Fatalf("loading sp1: space %v, err %v", sp, err)
		}
		if a, err := s.LoadAnchor(ctx, "a1"); err != nil || a == nil {
			t.Fatalf("loading a1: anchor %v, err %v", a, err)
		}
	}
	if counting.spaceLoads > 1 {
		t.Errorf("%d space loads reached the nested store, want at most 1", counting.spaceLoads)
	}
	if counting.anchorLoads > 1 {
		t.Errorf("%d anchor loads reached the nested store, want at most 1", counting.anchorLoads)
	}

	// Destructive operations invalidate.
	if err = s.DeleteSpace(ctx, "sp1"); err != nil {
		t.Fatal(err)
	}
	if sp, err := s.LoadSpace(ctx, "sp1"); err != nil || sp != nil {
		t.Errorf("got space %v after deletion, want nil (err %v)", sp, err)
	}
	if a, err := s.LoadAnchor(ctx, "a1"); err != nil || a != nil {
		t.Errorf("got anchor %v after cascade, want nil (err %v)", a, err)
	}
}
