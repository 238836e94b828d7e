// Package testutil has helpers for testing store implementations.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
)

var base = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

func space(id, name string, at time.Time) anchorhold.Space {
	return anchorhold.Space{
		ID:        id,
		Name:      name,
		Payload:   []byte("payload of " + id),
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func anchor(id, spaceID string, at time.Time) anchorhold.Anchor {
	t := anchorhold.Identity
	t[12] = float64(len(id))
	return anchorhold.Anchor{
		ID:        id,
		SpaceID:   spaceID,
		Transform: t,
		Metadata:  anchorhold.Metadata{"label": anchorhold.String(id)},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func diffOpts() cmp.Option {
	return cmp.AllowUnexported(anchorhold.Value{})
}

// Records exercises a Store's space and anchor record operations:
// round-trips, missing-id behavior, modified-since filtering,
// cascading space deletion, and purging.
func Records(ctx context.Context, t *testing.T, s store.Store) {
	missing, err := s.LoadSpace(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("got %v loading a missing space, want nil", missing)
	}

	sp1 := space("sp1", "kitchen", base)
	sp2 := space("sp2", "garage", base.Add(time.Minute))
	for _, sp := range []anchorhold.Space{sp1, sp2} {
		if err = s.SaveSpace(ctx, sp); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.LoadSpace(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sp1, *got, diffOpts()); diff != "" {
		t.Errorf("space mismatch (-want +got):\n%s", diff)
	}

	// Saving again with the same id overwrites, not duplicates.
	sp1.Name = "kitchen 2"
	sp1.UpdatedAt = base.Add(2 * time.Minute)
	if err = s.SaveSpace(ctx, sp1); err != nil {
		t.Fatal(err)
	}
	all, err := s.LoadAllSpaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("got %d spaces, want 2", len(all))
	}

	gone, err := s.LoadAnchor(ctx, "nope")
	if err != nil {
		t.Fatal(err)
	}
	if gone != nil {
		t.Errorf("got %v loading a missing anchor, want nil", gone)
	}

	a1 := anchor("a1", "sp1", base)
	a2 := anchor("a2", "sp1", base.Add(time.Minute))
	b1 := anchor("b1", "sp2", base.Add(2*time.Minute))
	for _, a := range []anchorhold.Anchor{a1, a2, b1} {
		if err = s.SaveAnchor(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	gotA, err := s.LoadAnchor(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(a1, *gotA, diffOpts()); diff != "" {
		t.Errorf("anchor mismatch (-want +got):\n%s", diff)
	}

	inSpace, err := s.LoadAnchors(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	if len(inSpace) != 2 {
		t.Errorf("got %d anchors in sp1, want 2", len(inSpace))
	}

	// Modified-since is strictly after.
	modified, err := s.LoadAnchorsModifiedSince(ctx, a1.UpdatedAt)
	if err != nil {
		t.Fatal(err)
	}
	if len(modified) != 2 {
		t.Errorf("got %d anchors modified after %s, want 2", len(modified), a1.UpdatedAt)
	}
	for _, a := range modified {
		if a.ID == "a1" {
			t.Error("anchor whose UpdatedAt equals the cutoff reported as modified")
		}
	}

	// Deleting a space cascades to its anchor records.
	if err = s.DeleteSpace(ctx, "sp1"); err != nil {
		t.Fatal(err)
	}
	if sp, _ := s.LoadSpace(ctx, "sp1"); sp != nil {
		t.Error("deleted space still loads")
	}
	if inSpace, err = s.LoadAnchors(ctx, "sp1"); err != nil {
		t.Fatal(err)
	}
	if len(inSpace) != 0 {
		t.Errorf("got %d anchors after space deletion, want 0", len(inSpace))
	}
	if kept, _ := s.LoadAnchor(ctx, "b1"); kept == nil {
		t.Error("anchor of an unrelated space removed by cascade")
	}

	// Purge removes records soft-deleted before the cutoff only.
	deletedOld := anchor("old", "sp2", base)
	oldAt := base.Add(time.Minute)
	deletedOld.DeletedAt = &oldAt
	deletedNew := anchor("new", "sp2", base)
	newAt := base.Add(time.Hour)
	deletedNew.DeletedAt = &newAt
	for _, a := range []anchorhold.Anchor{deletedOld, deletedNew} {
		if err = s.SaveAnchor(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	n, err := s.PurgeDeletedAnchors(ctx, base.Add(30*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d purged, want 1", n)
	}
	if a, _ := s.LoadAnchor(ctx, "old"); a != nil {
		t.Error("purged anchor still loads")
	}
	if a, _ := s.LoadAnchor(ctx, "new"); a == nil {
		t.Error("anchor deleted after the cutoff was purged")
	}
	if a, _ := s.LoadAnchor(ctx, "b1"); a == nil {
		t.Error("live anchor was purged")
	}
}

// Events exercises a Store's append-only event log:
// insertion ordering, round-tripping, and version tracking.
func Events(ctx context.Context, t *testing.T, s store.Store) {
	events, err := s.LoadEvents(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events from an empty log, want 0", len(events))
	}

	tr := anchorhold.Identity
	evs := []anchorhold.AnchorEvent{
		{
			ID:        "ev1",
			AnchorID:  "a1",
			SpaceID:   "sp1",
			Type:      anchorhold.EventCreated,
			Timestamp: base.Add(time.Minute), // deliberately later than ev2
			Version:   1,
			Transform: &tr,
			Metadata:  anchorhold.Metadata{"label": anchorhold.String("a1")},
		},
		{
			ID:        "ev2",
			AnchorID:  "a1",
			SpaceID:   "sp1",
			Type:      anchorhold.EventMoved,
			Timestamp: base,
			Version:   2,
			Transform: &tr,
		},
		{
			ID:        "ev3",
			AnchorID:  "a2",
			SpaceID:   "sp1",
			Type:      anchorhold.EventCreated,
			Timestamp: base.Add(2 * time.Minute),
			Version:   1,
			Transform: &tr,
			Metadata:  anchorhold.Metadata{"label": anchorhold.String("a2")},
			Actor:     "dev2",
		},
		{
			ID:        "ev4",
			AnchorID:  "a1",
			SpaceID:   "sp1",
			Type:      anchorhold.EventRestored,
			Timestamp: base.Add(3 * time.Minute),
			Version:   3,
			Transform: &tr,
			// Empty, not nil: the snapshot must survive the round-trip as {}.
			Metadata: anchorhold.Metadata{},
		},
	}
	for _, ev := range evs {
		if err = s.AppendEvent(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.LoadEvents(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	// Insertion order, not timestamp order.
	if diff := cmp.Diff(evs, got, diffOpts()); diff != "" {
		t.Errorf("event log mismatch (-want +got):\n%s", diff)
	}
	for _, ev := range got {
		if err = ev.Check(); err != nil {
			t.Errorf("reloaded event fails its own invariant: %s", err)
		}
	}

	if other, _ := s.LoadEvents(ctx, "sp2"); len(other) != 0 {
		t.Errorf("got %d events from another space's log, want 0", len(other))
	}

	v, err := s.CurrentVersion(ctx, "a1", "sp1")
	if err != nil {
		t.Fatal(err)
	}
	if v != 3 {
		t.Errorf("got current version %d for a1, want 3", v)
	}
	if v, _ = s.CurrentVersion(ctx, "a2", "sp1"); v != 1 {
		t.Errorf("got current version %d for a2, want 1", v)
	}
	if v, _ = s.CurrentVersion(ctx, "nope", "sp1"); v != 0 {
		t.Errorf("got current version %d for an unknown anchor, want 0", v)
	}
}

// Queue exercises a Store's pending-operation queue,
// the sync watermark, TotalSize, and ClearAll.
func Queue(ctx context.Context, t *testing.T, s store.Store) {
	ops, err := s.LoadPendingOperations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 0 {
		t.Errorf("got %d pending operations initially, want 0", len(ops))
	}

	last, err := s.LoadLastSync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !last.IsZero() {
		t.Errorf("got initial sync watermark %s, want zero", last)
	}

	want := []anchorhold.PendingOperation{
		{Kind: anchorhold.OpSaveSpace, TargetID: "sp1", CreatedAt: base},
		{Kind: anchorhold.OpSaveAnchor, TargetID: "a1", RetryCount: 3, CreatedAt: base.Add(time.Minute)},
		{Kind: anchorhold.OpDeleteSpace, TargetID: "sp2", CreatedAt: base.Add(2 * time.Minute)},
	}
	if err = s.SavePendingOperations(ctx, want); err != nil {
		t.Fatal(err)
	}
	if ops, err = s.LoadPendingOperations(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Errorf("pending operations mismatch (-want +got):\n%s", diff)
	}

	// Saving replaces the whole queue.
	if err = s.SavePendingOperations(ctx, want[:1]); err != nil {
		t.Fatal(err)
	}
	if ops, _ = s.LoadPendingOperations(ctx); len(ops) != 1 {
		t.Errorf("got %d pending operations after replacement, want 1", len(ops))
	}

	mark := base.Add(time.Hour)
	if err = s.SaveLastSync(ctx, mark); err != nil {
		t.Fatal(err)
	}
	if last, err = s.LoadLastSync(ctx); err != nil {
		t.Fatal(err)
	}
	if !last.Equal(mark) {
		t.Errorf("got sync watermark %s, want %s", last, mark)
	}

	if err = s.SaveSpace(ctx, space("sz", "attic", base)); err != nil {
		t.Fatal(err)
	}
	size, err := s.TotalSize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size <= 0 {
		t.Errorf("got total size %d, want positive", size)
	}

	if err = s.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if all, _ := s.LoadAllSpaces(ctx); len(all) != 0 {
		t.Error("spaces survived ClearAll")
	}
	if ops, _ = s.LoadPendingOperations(ctx); len(ops) != 0 {
		t.Error("pending operations survived ClearAll")
	}
	if last, _ = s.LoadLastSync(ctx); !last.IsZero() {
		t.Error("sync watermark survived ClearAll")
	}
}
