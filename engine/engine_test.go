package engine

import (
	"context"
	stderrs "errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/compress"
	remotemem "github.com/anchorhold/anchorhold/remote/mem"
	storemem "github.com/anchorhold/anchorhold/store/mem"
)

// clock is a deterministic time source that advances one second
// per reading, so successive writes get strictly increasing stamps.
type clock struct {
	t time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func testEngine(cfg Config) (*Engine, *storemem.Store) {
	st := storemem.New()
	if cfg.Now == nil {
		cfg.Now = newClock().now
	}
	return New(st, cfg), st
}

func poseAt(x, y, z float64) anchorhold.Transform {
	t := anchorhold.Identity
	t[12], t[13], t[14] = x, y, z
	return t
}

func TestSaveAnchorVersionSequence(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(Config{})

	t1 := poseAt(1, 0, 0)
	t2 := poseAt(2, 0, 0)
	m1 := anchorhold.Metadata{"label": anchorhold.String("desk")}
	m2 := anchorhold.Metadata{"label": anchorhold.String("shelf")}

	a, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: t1, Metadata: m1})
	if err != nil {
		t.Fatal(err)
	}

	a.Transform = t2
	if a, err = e.SaveAnchor(ctx, a); err != nil {
		t.Fatal(err)
	}

	a.Metadata = m2
	if a, err = e.SaveAnchor(ctx, a); err != nil {
		t.Fatal(err)
	}

	if _, err = e.DeleteAnchor(ctx, "a1"); err != nil {
		t.Fatal(err)
	}

	got, err := e.Rollback(ctx, "a1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Transform.Equal(t1) {
		t.Errorf("got transform %v after rollback, want %v", got.Transform, t1)
	}
	if !got.Metadata.Equal(m1) {
		t.Error("rollback did not restore version-1 metadata")
	}
	if got.IsDeleted() {
		t.Error("anchor still deleted after rollback")
	}

	history, err := e.History(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	wantTypes := []anchorhold.EventType{
		anchorhold.EventCreated,
		anchorhold.EventMoved,
		anchorhold.EventUpdated,
		anchorhold.EventDeleted,
		anchorhold.EventRestored,
	}
	if len(history) != len(wantTypes) {
		t.Fatalf("got %d events, want %d", len(history), len(wantTypes))
	}
	for i, ev := range history {
		if ev.Version != i+1 {
			t.Errorf("event %d has version %d, want %d", i, ev.Version, i+1)
		}
		if ev.Type != wantTypes[i] {
			t.Errorf("event %d has type %s, want %s", i, ev.Type, wantTypes[i])
		}
	}

	restored := history[4]
	if restored.Transform == nil || !restored.Transform.Equal(t1) {
		t.Error("restored event does not carry the version-1 transform")
	}
	if !restored.Metadata.Equal(m1) {
		t.Error("restored event does not carry the version-1 metadata")
	}
}

func TestSaveAnchorIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(Config{})

	a, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity})
	if err != nil {
		t.Fatal(err)
	}

	again, err := e.SaveAnchor(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if !again.UpdatedAt.Equal(a.UpdatedAt) {
		t.Errorf("identical save bumped UpdatedAt from %s to %s", a.UpdatedAt, again.UpdatedAt)
	}

	history, err := e.History(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 {
		t.Errorf("got %d events after identical re-save, want 1", len(history))
	}
}

func TestLegacyMigration(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(Config{})

	origCreated := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	legacy := anchorhold.Anchor{
		ID:        "old",
		SpaceID:   "s1",
		Transform: poseAt(9, 9, 9),
		Metadata:  anchorhold.Metadata{"label": anchorhold.String("legacy")},
		CreatedAt: origCreated,
		UpdatedAt: origCreated,
	}
	if err := st.SaveAnchor(ctx, legacy); err != nil {
		t.Fatal(err)
	}

	legacy.Metadata = anchorhold.Metadata{"label": anchorhold.String("renamed")}
	if _, err := e.SaveAnchor(ctx, legacy); err != nil {
		t.Fatal(err)
	}

	history, err := e.History(ctx, "old")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d events, want 2", len(history))
	}

	synth := history[0]
	if synth.Type != anchorhold.EventCreated {
		t.Errorf("first event has type %s, want created", synth.Type)
	}
	if !synth.Timestamp.Equal(origCreated) {
		t.Errorf("synthetic created event stamped %s, want the record's original %s", synth.Timestamp, origCreated)
	}
	if synth.Transform == nil || !synth.Transform.Equal(poseAt(9, 9, 9)) {
		t.Error("synthetic created event does not carry the legacy transform")
	}
	if got, _ := synth.Metadata["label"].AsString(); got != "legacy" {
		t.Errorf("synthetic created event has label %q, want the legacy value", got)
	}

	if history[1].Type != anchorhold.EventUpdated {
		t.Errorf("second event has type %s, want updated", history[1].Type)
	}
	if history[1].Version != 2 {
		t.Errorf("second event has version %d, want 2", history[1].Version)
	}
}

func TestDeleteIgnoresConcurrentEdits(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(Config{})

	saved, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: poseAt(1, 1, 1)})
	if err != nil {
		t.Fatal(err)
	}

	// An unsaved edit on the caller's copy.
	edited := saved
	edited.Transform = poseAt(5, 5, 5)
	_ = edited

	deleted, err := e.DeleteAnchor(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted.Transform.Equal(poseAt(1, 1, 1)) {
		t.Error("delete picked up an unsaved transform edit")
	}
	if !deleted.IsDeleted() {
		t.Error("anchor not marked deleted")
	}

	history, err := e.History(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("got %d events, want created+deleted only", len(history))
	}
	if history[1].Type != anchorhold.EventDeleted {
		t.Errorf("second event has type %s, want deleted", history[1].Type)
	}
}

func TestSaveAnchorInvalidReference(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(Config{})

	_, err := e.SaveAnchor(ctx, anchorhold.Anchor{SpaceID: "s1"})
	if !stderrs.Is(err, anchorhold.ErrInvalidReference) {
		t.Errorf("got %v saving an anchor with no id, want ErrInvalidReference", err)
	}

	if _, err = e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity}); err != nil {
		t.Fatal(err)
	}
	_, err = e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "other", Transform: anchorhold.Identity})
	if !stderrs.Is(err, anchorhold.ErrInvalidReference) {
		t.Errorf("got %v moving an anchor across spaces, want ErrInvalidReference", err)
	}
}

func TestRollbackVersionNotFound(t *testing.T) {
	ctx := context.Background()
	e, _ := testEngine(Config{})

	if _, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity}); err != nil {
		t.Fatal(err)
	}

	_, err := e.Rollback(ctx, "a1", 7)
	var vnf *anchorhold.VersionNotFoundError
	if !stderrs.As(err, &vnf) {
		t.Fatalf("got %v, want a VersionNotFoundError", err)
	}
	if vnf.AnchorID != "a1" || vnf.Version != 7 {
		t.Errorf("got VersionNotFoundError{%s, %d}, want {a1, 7}", vnf.AnchorID, vnf.Version)
	}
}

func TestOnSaveFailureEnqueuesAndReportsSyncError(t *testing.T) {
	ctx := context.Background()
	rem := remotemem.New()
	rem.FailUploads(stderrs.New("backend unreachable"))
	e, st := testEngine(Config{Remote: rem, Strategy: SyncOnSave})

	_, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity})
	var se *anchorhold.SyncError
	if !stderrs.As(err, &se) {
		t.Fatalf("got %v, want a SyncError", err)
	}

	// Local write already succeeded.
	if a, err := st.LoadAnchor(ctx, "a1"); err != nil || a == nil {
		t.Fatalf("local record missing after SyncError (anchor %v, err %v)", a, err)
	}

	ops, err := st.LoadPendingOperations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ops) != 1 || ops[0].Kind != anchorhold.OpSaveAnchor || ops[0].TargetID != "a1" {
		t.Errorf("got pending operations %v, want one save-anchor of a1", ops)
	}

	// A second failing save of the same anchor must not duplicate the entry.
	a, _ := st.LoadAnchor(ctx, "a1")
	a.Metadata = anchorhold.Metadata{"label": anchorhold.String("x")}
	if _, err = e.SaveAnchor(ctx, *a); !stderrs.As(err, &se) {
		t.Fatalf("got %v, want a SyncError", err)
	}
	if ops, _ = st.LoadPendingOperations(ctx); len(ops) != 1 {
		t.Errorf("got %d pending operations after repeat failure, want 1", len(ops))
	}
}

func TestQueueDropsAfterFiveFailures(t *testing.T) {
	ctx := context.Background()
	rem := remotemem.New()
	rem.FailUploads(stderrs.New("backend unreachable"))
	e, st := testEngine(Config{Remote: rem, Strategy: SyncOnSave})

	if _, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity}); err == nil {
		t.Fatal("got no error from save with an unreachable backend")
	}

	for i := 1; i <= maxRetries; i++ {
		res, err := e.Sync(ctx)
		if err == nil {
			t.Fatalf("sync %d succeeded with an unreachable backend", i)
		}
		ops, lerr := st.LoadPendingOperations(ctx)
		if lerr != nil {
			t.Fatal(lerr)
		}
		if i < maxRetries {
			if len(ops) != 1 {
				t.Fatalf("after sync %d: got %d pending operations, want 1", i, len(ops))
			}
			if ops[0].RetryCount != i {
				t.Errorf("after sync %d: got retry count %d, want %d", i, ops[0].RetryCount, i)
			}
		} else {
			if len(ops) != 0 {
				t.Errorf("after sync %d: got %d pending operations, want the entry dropped", i, len(ops))
			}
			if res.Dropped != 1 {
				t.Errorf("after sync %d: got %d dropped, want 1", i, res.Dropped)
			}
		}
	}
}

func TestSyncWithoutRemote(t *testing.T) {
	e, _ := testEngine(Config{})
	_, err := e.Sync(context.Background())
	if !stderrs.Is(err, anchorhold.ErrCloudNotConfigured) {
		t.Errorf("got %v, want ErrCloudNotConfigured", err)
	}
}

func TestSyncUploadsModifiedRecords(t *testing.T) {
	ctx := context.Background()
	rem := remotemem.New()
	e, st := testEngine(Config{Remote: rem})

	if _, err := e.SaveSpace(ctx, anchorhold.Space{ID: "s1", Name: "room"}); err != nil {
		t.Fatal(err)
	}
	a, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity})
	if err != nil {
		t.Fatal(err)
	}
	a.Transform = poseAt(1, 2, 3)
	if _, err = e.SaveAnchor(ctx, a); err != nil {
		t.Fatal(err)
	}

	res, err := e.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rem.Uploads["space"] != 1 {
		t.Errorf("got %d space uploads, want 1", rem.Uploads["space"])
	}
	if rem.Uploads["anchor"] != 1 {
		t.Errorf("got %d anchor uploads, want 1", rem.Uploads["anchor"])
	}
	if rem.EventCount() != 2 {
		t.Errorf("got %d remote events, want 2", rem.EventCount())
	}
	if res.Uploaded != 4 {
		t.Errorf("got %d uploaded, want 4", res.Uploaded)
	}

	if last, err := st.LoadLastSync(ctx); err != nil || last.IsZero() {
		t.Errorf("sync watermark not advanced (last %s, err %v)", last, err)
	}

	// Nothing changed, so a second sync moves nothing.
	if res, err = e.Sync(ctx); err != nil {
		t.Fatal(err)
	}
	if res.Uploaded != 0 || res.Downloaded != 0 {
		t.Errorf("idle sync moved records: %+v", res)
	}
}

func TestDownloadLastWriteWins(t *testing.T) {
	ctx := context.Background()
	rem := remotemem.New()
	e, st := testEngine(Config{Remote: rem})

	t0 := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	local := anchorhold.Anchor{
		ID:        "a1",
		SpaceID:   "s1",
		Transform: poseAt(1, 1, 1),
		Metadata:  anchorhold.Metadata{"label": anchorhold.String("local")},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	if err := st.SaveAnchor(ctx, local); err != nil {
		t.Fatal(err)
	}

	older := local.Clone()
	older.Metadata = anchorhold.Metadata{"label": anchorhold.String("stale")}
	older.UpdatedAt = t0.Add(-time.Second)
	rem.Put(older)

	// An older remote copy never overwrites the local record.
	var res Result
	if err := e.downloadModified(ctx, time.Time{}, &res); err != nil {
		t.Fatal(err)
	}
	got, err := st.LoadAnchor(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if label, _ := got.Metadata["label"].AsString(); label != "local" {
		t.Errorf("older remote record overwrote local (label %q)", label)
	}
	if res.Downloaded != 0 {
		t.Errorf("got %d downloaded, want 0", res.Downloaded)
	}

	// Nor does a tie.
	tie := older.Clone()
	tie.UpdatedAt = t0
	rem.Put(tie)
	if err = e.downloadModified(ctx, time.Time{}, &res); err != nil {
		t.Fatal(err)
	}
	got, _ = st.LoadAnchor(ctx, "a1")
	if label, _ := got.Metadata["label"].AsString(); label != "local" {
		t.Errorf("equal-timestamp remote record overwrote local (label %q)", label)
	}

	// A strictly newer remote copy wins.
	newer := older.Clone()
	newer.Metadata = anchorhold.Metadata{"label": anchorhold.String("fresh")}
	newer.UpdatedAt = t0.Add(time.Second)
	rem.Put(newer)

	// A record with no local counterpart is always adopted.
	foreign := anchorhold.Anchor{
		ID:        "a2",
		SpaceID:   "s1",
		Transform: poseAt(7, 7, 7),
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	rem.Put(foreign)

	res = Result{}
	if err = e.downloadModified(ctx, time.Time{}, &res); err != nil {
		t.Fatal(err)
	}
	got, _ = st.LoadAnchor(ctx, "a1")
	if label, _ := got.Metadata["label"].AsString(); label != "fresh" {
		t.Errorf("newer remote record did not win (label %q)", label)
	}
	adopted, _ := st.LoadAnchor(ctx, "a2")
	if adopted == nil {
		t.Error("locally absent record not adopted")
	} else if diff := cmp.Diff(foreign, *adopted, cmp.AllowUnexported(anchorhold.Value{})); diff != "" {
		t.Errorf("adopted record mismatch (-want +got):\n%s", diff)
	}
	if res.Downloaded != 2 {
		t.Errorf("got %d downloaded, want 2", res.Downloaded)
	}
}

func TestSpaceCompressionRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, st := testEngine(Config{Level: compress.Balanced})

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i % 7)
	}

	if _, err := e.SaveSpace(ctx, anchorhold.Space{ID: "s1", Name: "room", Payload: payload}); err != nil {
		t.Fatal(err)
	}

	raw, err := st.LoadSpace(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if !raw.Compressed {
		t.Error("stored record not marked compressed")
	}
	if len(raw.Payload) >= len(payload) {
		t.Errorf("stored payload is %d bytes, want smaller than %d", len(raw.Payload), len(payload))
	}

	sp, err := e.LoadSpace(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sp.Compressed {
		t.Error("loaded record still marked compressed")
	}
	if diff := cmp.Diff(payload, sp.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadSpaceFallsBackToRemote(t *testing.T) {
	ctx := context.Background()
	rem := remotemem.New()
	e, st := testEngine(Config{Remote: rem})

	t0 := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	rem.Put(anchorhold.Space{ID: "s1", Name: "room", Payload: []byte("pts"), CreatedAt: t0, UpdatedAt: t0})

	sp, err := e.LoadSpace(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if sp.Name != "room" || string(sp.Payload) != "pts" {
		t.Errorf("got space %+v from remote fallback", sp)
	}

	// The downloaded record is adopted locally.
	if adopted, err := st.LoadSpace(ctx, "s1"); err != nil || adopted == nil {
		t.Errorf("downloaded space not adopted locally (space %v, err %v)", adopted, err)
	}

	_, err = e.LoadSpace(ctx, "nope")
	if !stderrs.Is(err, anchorhold.ErrNotFound) {
		t.Errorf("got %v loading a space that exists nowhere, want ErrNotFound", err)
	}
}

func TestPurgeForwardsToRemote(t *testing.T) {
	ctx := context.Background()
	rem := remotemem.New()
	clk := newClock()
	e, st := testEngine(Config{Remote: rem, Now: clk.now})

	if _, err := e.SaveAnchor(ctx, anchorhold.Anchor{ID: "a1", SpaceID: "s1", Transform: anchorhold.Identity}); err != nil {
		t.Fatal(err)
	}
	deleted, err := e.DeleteAnchor(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	rem.Put(deleted)

	cutoff := deleted.DeletedAt.Add(time.Hour)
	n, err := e.PurgeDeletedAnchors(ctx, cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d purged locally, want 1", n)
	}
	if a, _ := st.LoadAnchor(ctx, "a1"); a != nil {
		t.Error("purged anchor still present locally")
	}
	if a, _ := rem.DownloadAnchor(ctx, "a1"); a != nil {
		t.Error("purged anchor still present remotely")
	}
}
