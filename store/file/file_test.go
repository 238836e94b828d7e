package file

import (
	"context"
	stderrs "errors"
	"os"
	"testing"
	"time"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/testutil"
)

func TestRecords(t *testing.T) {
	testutil.Records(context.Background(), t, New(t.TempDir()))
}

func TestEvents(t *testing.T) {
	testutil.Events(context.Background(), t, New(t.TempDir()))
}

func TestQueue(t *testing.T) {
	testutil.Queue(context.Background(), t, New(t.TempDir()))
}

func appendRaw(t *testing.T, s *Store, spaceID, raw string) {
	t.Helper()
	path := recordPath(s.eventsRoot(), spaceID, ".log")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err = f.WriteString(raw); err != nil {
		t.Fatal(err)
	}
}

func testEvent(id string, version int) anchorhold.AnchorEvent {
	tr := anchorhold.Identity
	return anchorhold.AnchorEvent{
		ID:        id,
		AnchorID:  "a1",
		SpaceID:   "sp1",
		Type:      anchorhold.EventMoved,
		Timestamp: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
		Version:   version,
		Transform: &tr,
	}
}

func TestTornFinalLineIsIgnored(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if err := s.AppendEvent(ctx, testEvent("ev1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendEvent(ctx, testEvent("ev2", 2)); err != nil {
		t.Fatal(err)
	}

	// A crash mid-append leaves a truncated trailing line.
	appendRaw(t, s, "sp1", `{"id":"ev3","anch`)

	events, err := s.LoadEvents(ctx, "sp1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want the 2 whole ones", len(events))
	}
	if events[1].ID != "ev2" {
		t.Errorf("got last event %s, want ev2", events[1].ID)
	}
}

func TestCorruptInteriorLine(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if err := s.AppendEvent(ctx, testEvent("ev1", 1)); err != nil {
		t.Fatal(err)
	}
	appendRaw(t, s, "sp1", "not json at all\n")
	if err := s.AppendEvent(ctx, testEvent("ev2", 2)); err != nil {
		t.Fatal(err)
	}

	_, err := s.LoadEvents(ctx, "sp1")
	var corrupt *anchorhold.CorruptLogError
	if !stderrs.As(err, &corrupt) {
		t.Fatalf("got %v, want a CorruptLogError", err)
	}
	if corrupt.SpaceID != "sp1" {
		t.Errorf("got CorruptLogError for space %s, want sp1", corrupt.SpaceID)
	}
}

func TestStrayFilesAreIgnored(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	if err := s.SaveSpace(ctx, anchorhold.Space{
		ID:        "sp1",
		Name:      "kitchen",
		Payload:   []byte("pts"),
		CreatedAt: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.spacesRoot()+"/.tmp-leftover", []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.spacesRoot()+"/README.json", []byte("junk"), 0644); err != nil {
		t.Fatal(err)
	}

	all, err := s.LoadAllSpaces(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("got %d spaces, want 1", len(all))
	}
}
