package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/timeline"
)

// SaveAnchor persists an anchor snapshot and appends the event
// describing its transition from the stored record:
// created, deleted, restored, moved, or updated, in that priority.
// A save that changes nothing appends no event
// and leaves the stored record untouched.
// Event versions for one anchor are 1, 2, 3, … with no gaps.
//
// A stored record with no event history (predating the log)
// first gets a synthetic created event
// stamped with the record's original CreatedAt.
//
// With the on-save strategy the snapshot and event are uploaded;
// an upload failure enqueues a retry and is reported as a SyncError.
func (e *Engine) SaveAnchor(ctx context.Context, a anchorhold.Anchor) (anchorhold.Anchor, error) {
	if a.ID == "" || a.SpaceID == "" {
		return a, errors.Wrap(anchorhold.ErrInvalidReference, "anchor has no id or no space id")
	}

	unlock := e.lockAnchor(a.ID)
	defer unlock()

	existing, err := e.local.LoadAnchor(ctx, a.ID)
	if err != nil {
		return a, errors.Wrapf(err, "loading existing anchor %s", a.ID)
	}
	if existing != nil && existing.SpaceID != a.SpaceID {
		return a, errors.Wrapf(anchorhold.ErrInvalidReference, "anchor %s belongs to space %s, not %s", a.ID, existing.SpaceID, a.SpaceID)
	}

	cur, err := e.ensureHistory(ctx, existing)
	if err != nil {
		return a, err
	}

	var typ anchorhold.EventType
	switch {
	case existing == nil:
		typ = anchorhold.EventCreated
	case existing.DeletedAt == nil && a.DeletedAt != nil:
		typ = anchorhold.EventDeleted
	case existing.DeletedAt != nil && a.DeletedAt == nil:
		typ = anchorhold.EventRestored
	case !existing.Transform.Equal(a.Transform):
		typ = anchorhold.EventMoved
	case !existing.Metadata.Equal(a.Metadata):
		typ = anchorhold.EventUpdated
	default:
		// Idempotent no-op: nothing changed, nothing recorded.
		return *existing, nil
	}

	now := e.now()
	if existing != nil {
		a.CreatedAt = existing.CreatedAt
	} else if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	ev := e.newEvent(a, typ, cur+1, now)
	if err = e.appendEvent(ctx, ev); err != nil {
		return a, err
	}
	if err = e.local.SaveAnchor(ctx, a); err != nil {
		return a, errors.Wrapf(err, "storing anchor %s", a.ID)
	}
	return a, e.uploadAnchorWrite(ctx, a, ev)
}

// DeleteAnchor soft-deletes the stored anchor record,
// appending exactly one deleted event.
// It operates on the record as stored:
// any unsaved transform or metadata edits on the caller's side
// are not picked up by the deletion.
// Deleting an already-deleted anchor is a no-op.
func (e *Engine) DeleteAnchor(ctx context.Context, id string) (anchorhold.Anchor, error) {
	unlock := e.lockAnchor(id)
	defer unlock()

	existing, err := e.local.LoadAnchor(ctx, id)
	if err != nil {
		return anchorhold.Anchor{}, errors.Wrapf(err, "loading anchor %s", id)
	}
	if existing == nil {
		return anchorhold.Anchor{}, &anchorhold.NotFoundError{Kind: "anchor", ID: id}
	}
	if existing.IsDeleted() {
		return *existing, nil
	}

	cur, err := e.ensureHistory(ctx, existing)
	if err != nil {
		return anchorhold.Anchor{}, err
	}

	now := e.now()
	deleted := existing.AsDeleted(now)

	ev := e.newEvent(deleted, anchorhold.EventDeleted, cur+1, now)
	if err = e.appendEvent(ctx, ev); err != nil {
		return deleted, err
	}
	if err = e.local.SaveAnchor(ctx, deleted); err != nil {
		return deleted, errors.Wrapf(err, "storing anchor %s", id)
	}
	return deleted, e.uploadAnchorWrite(ctx, deleted, ev)
}

// Rollback reinstates an anchor's state as of one of its past versions.
// The historical state is reconstructed from the event log,
// its soft-delete flag force-cleared,
// and a restored event appended at the next version:
// history only ever grows forward.
// The reinstated anchor is persisted as current and returned.
func (e *Engine) Rollback(ctx context.Context, anchorID string, toVersion int) (anchorhold.Anchor, error) {
	unlock := e.lockAnchor(anchorID)
	defer unlock()

	existing, err := e.local.LoadAnchor(ctx, anchorID)
	if err != nil {
		return anchorhold.Anchor{}, errors.Wrapf(err, "loading anchor %s", anchorID)
	}
	if existing == nil {
		return anchorhold.Anchor{}, &anchorhold.NotFoundError{Kind: "anchor", ID: anchorID}
	}

	events, err := e.anchorEvents(ctx, existing.SpaceID, anchorID)
	if err != nil {
		return anchorhold.Anchor{}, err
	}

	var maxVersion int
	found := false
	for _, ev := range events {
		if ev.Version == toVersion {
			found = true
		}
		if ev.Version > maxVersion {
			maxVersion = ev.Version
		}
	}
	if !found {
		return anchorhold.Anchor{}, &anchorhold.VersionNotFoundError{AnchorID: anchorID, Version: toVersion}
	}

	restored, _, err := timeline.Reconstruct(anchorID, events, toVersion)
	if err != nil {
		return anchorhold.Anchor{}, err
	}

	now := e.now()
	restored.SpaceID = existing.SpaceID
	restored.DeletedAt = nil
	restored.UpdatedAt = now

	ev := e.newEvent(restored, anchorhold.EventRestored, maxVersion+1, now)
	if err = e.appendEvent(ctx, ev); err != nil {
		return restored, err
	}
	if err = e.local.SaveAnchor(ctx, restored); err != nil {
		return restored, errors.Wrapf(err, "storing anchor %s", anchorID)
	}
	return restored, e.uploadAnchorWrite(ctx, restored, ev)
}

// LoadAnchor returns the anchor with the given id.
func (e *Engine) LoadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error) {
	a, err := e.local.LoadAnchor(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading anchor %s", id)
	}
	if a == nil {
		return nil, &anchorhold.NotFoundError{Kind: "anchor", ID: id}
	}
	return a, nil
}

// LoadAnchors returns the anchors belonging to a space,
// soft-deleted ones included.
func (e *Engine) LoadAnchors(ctx context.Context, spaceID string) ([]anchorhold.Anchor, error) {
	return e.local.LoadAnchors(ctx, spaceID)
}

// History returns an anchor's events in version order.
func (e *Engine) History(ctx context.Context, anchorID string) ([]anchorhold.AnchorEvent, error) {
	existing, err := e.local.LoadAnchor(ctx, anchorID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading anchor %s", anchorID)
	}
	if existing == nil {
		return nil, &anchorhold.NotFoundError{Kind: "anchor", ID: anchorID}
	}
	return e.anchorEvents(ctx, existing.SpaceID, anchorID)
}

// StateAt folds a space's event log into the set of anchors active
// at the given instant.
func (e *Engine) StateAt(ctx context.Context, spaceID string, at time.Time) ([]anchorhold.Anchor, error) {
	events, err := e.local.LoadEvents(ctx, spaceID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading events of space %s", spaceID)
	}
	return timeline.New(spaceID, events).StateAt(at), nil
}

// Diff reports how a space's anchors changed between two instants.
func (e *Engine) Diff(ctx context.Context, spaceID string, from, to time.Time) (timeline.Diff, error) {
	events, err := e.local.LoadEvents(ctx, spaceID)
	if err != nil {
		return timeline.Diff{}, errors.Wrapf(err, "loading events of space %s", spaceID)
	}
	return timeline.New(spaceID, events).Diff(from, to), nil
}

// ensureHistory returns the anchor's current event version,
// first synthesizing the created event for a stored record
// that predates the event log.
func (e *Engine) ensureHistory(ctx context.Context, existing *anchorhold.Anchor) (int, error) {
	if existing == nil {
		return 0, nil
	}
	cur, err := e.local.CurrentVersion(ctx, existing.ID, existing.SpaceID)
	if err != nil {
		return 0, errors.Wrapf(err, "getting current version of anchor %s", existing.ID)
	}
	if cur > 0 {
		return cur, nil
	}

	ev := e.newEvent(*existing, anchorhold.EventCreated, 1, existing.CreatedAt)
	if err = e.appendEvent(ctx, ev); err != nil {
		return 0, err
	}
	return 1, nil
}

// newEvent builds the event recording one transition of a,
// with the snapshot fields its type calls for.
func (e *Engine) newEvent(a anchorhold.Anchor, typ anchorhold.EventType, version int, at time.Time) anchorhold.AnchorEvent {
	ev := anchorhold.AnchorEvent{
		ID:        uuid.New().String(),
		AnchorID:  a.ID,
		SpaceID:   a.SpaceID,
		Type:      typ,
		Timestamp: at,
		Version:   version,
	}
	switch typ {
	case anchorhold.EventCreated, anchorhold.EventRestored:
		t := a.Transform
		ev.Transform = &t
		ev.Metadata = snapshotMetadata(a.Metadata)
	case anchorhold.EventMoved:
		t := a.Transform
		ev.Transform = &t
	case anchorhold.EventUpdated:
		ev.Metadata = snapshotMetadata(a.Metadata)
	}
	return ev
}

func snapshotMetadata(m anchorhold.Metadata) anchorhold.Metadata {
	if m == nil {
		return anchorhold.Metadata{}
	}
	return m.Clone()
}

func (e *Engine) appendEvent(ctx context.Context, ev anchorhold.AnchorEvent) error {
	if err := ev.Check(); err != nil {
		return errors.Wrap(err, "checking event")
	}
	return errors.Wrapf(e.local.AppendEvent(ctx, ev), "appending %s event for anchor %s", ev.Type, ev.AnchorID)
}

// uploadAnchorWrite pushes a freshly written snapshot and event
// to the remote store under the on-save strategy.
// On failure the write joins the retry queue
// and the caller gets a SyncError:
// locally safe, not yet replicated.
func (e *Engine) uploadAnchorWrite(ctx context.Context, a anchorhold.Anchor, ev anchorhold.AnchorEvent) error {
	if e.strategy != SyncOnSave || e.remote == nil {
		return nil
	}
	err := e.remote.UploadAnchor(ctx, a)
	if err == nil {
		err = e.remote.UploadEvent(ctx, ev)
	}
	if err != nil {
		e.enqueue(ctx, anchorhold.OpSaveAnchor, a.ID)
		return &anchorhold.SyncError{Cause: err}
	}
	return nil
}

func (e *Engine) anchorEvents(ctx context.Context, spaceID, anchorID string) ([]anchorhold.AnchorEvent, error) {
	events, err := e.local.LoadEvents(ctx, spaceID)
	if err != nil {
		return nil, errors.Wrapf(err, "loading events of space %s", spaceID)
	}
	var out []anchorhold.AnchorEvent
	for _, ev := range events {
		if ev.AnchorID == anchorID {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
