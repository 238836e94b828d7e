package mem

import (
	"context"
	stderrs "errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/anchorhold/anchorhold"
)

var base = time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	sp := anchorhold.Space{ID: "sp1", Name: "kitchen", Payload: []byte("pts"), CreatedAt: base, UpdatedAt: base}
	if err := s.UploadSpace(ctx, sp); err != nil {
		t.Fatal(err)
	}
	got, err := s.DownloadSpace(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(sp, *got); diff != "" {
		t.Errorf("space mismatch (-want +got):\n%s", diff)
	}

	if absent, err := s.DownloadSpace(ctx, "nope"); err != nil || absent != nil {
		t.Errorf("got (%v, %v) downloading a missing space, want (nil, nil)", absent, err)
	}

	if err = s.DeleteSpace(ctx, "sp1"); err != nil {
		t.Fatal(err)
	}
	if gone, _ := s.DownloadSpace(ctx, "sp1"); gone != nil {
		t.Error("deleted space still downloads")
	}
}

func TestListModifiedSinceIsStrict(t *testing.T) {
	ctx := context.Background()
	s := New()

	for i, id := range []string{"a1", "a2", "a3"} {
		a := anchorhold.Anchor{
			ID:        id,
			SpaceID:   "sp1",
			Transform: anchorhold.Identity,
			CreatedAt: base,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.UploadAnchor(ctx, a); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.ListAnchorsModifiedSince(ctx, base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "a3" {
		t.Errorf("got %v, want just a3", got)
	}
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := stderrs.New("boom")

	s.FailUploads(boom)
	err := s.UploadAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "sp1", Transform: anchorhold.Identity})
	if !stderrs.Is(err, boom) {
		t.Errorf("got %v from a failing upload, want boom", err)
	}
	if s.Uploads["anchor"] != 0 {
		t.Error("failed upload counted")
	}

	s.FailUploads(nil)
	if err = s.UploadAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "sp1", Transform: anchorhold.Identity, UpdatedAt: base}); err != nil {
		t.Fatal(err)
	}
	if s.Uploads["anchor"] != 1 {
		t.Errorf("got %d anchor uploads, want 1", s.Uploads["anchor"])
	}

	s.FailDeletes(boom)
	if err = s.DeleteAnchor(ctx, "a1"); !stderrs.Is(err, boom) {
		t.Errorf("got %v from a failing delete, want boom", err)
	}
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	s := New()

	oldAt := base
	a := anchorhold.Anchor{ID: "a1", SpaceID: "sp1", Transform: anchorhold.Identity, UpdatedAt: base, DeletedAt: &oldAt}
	s.Put(a)
	live := anchorhold.Anchor{ID: "a2", SpaceID: "sp1", Transform: anchorhold.Identity, UpdatedAt: base}
	s.Put(live)

	tr := anchorhold.Identity
	s.Put(anchorhold.AnchorEvent{ID: "ev1", AnchorID: "a1", SpaceID: "sp1", Type: anchorhold.EventMoved, Timestamp: base, Version: 1, Transform: &tr})

	if err := s.PurgeAnchors(ctx, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if gone, _ := s.DownloadAnchor(ctx, "a1"); gone != nil {
		t.Error("purged anchor still downloads")
	}
	if kept, _ := s.DownloadAnchor(ctx, "a2"); kept == nil {
		t.Error("live anchor purged")
	}

	if err := s.PurgeEvents(ctx, base.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if s.EventCount() != 0 {
		t.Errorf("got %d events after purge, want 0", s.EventCount())
	}
}
