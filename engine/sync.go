package engine

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/anchorhold/anchorhold"
)

// maxRetries is how many failed sync attempts a pending operation
// survives before it is dropped.
const maxRetries = 5

// Result reports what one Sync call moved.
type Result struct {
	// Flushed counts queued operations that finally succeeded.
	Flushed int

	// Dropped counts queued operations discarded after exhausting
	// their retries. Anything counted here never reached the remote.
	Dropped int

	// Uploaded counts local records pushed to the remote.
	Uploaded int

	// Downloaded counts remote records adopted locally.
	Downloaded int
}

// Sync reconciles the local store with the remote replica,
// in three ordered phases:
// drain the persisted retry queue,
// upload local records modified since the last sync,
// and download remote records modified since then,
// adopting a remote record only when its updatedAt
// is strictly newer than the local one
// (ties keep the local record; locally absent records are adopted).
//
// The sync watermark advances to the call's start time
// only after the upload phase succeeds.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	var res Result

	if e.remote == nil {
		return res, anchorhold.ErrCloudNotConfigured
	}

	if err := e.drainQueue(ctx, &res); err != nil {
		return res, err
	}

	start := e.now()
	last, err := e.local.LoadLastSync(ctx)
	if err != nil {
		return res, errors.Wrap(err, "loading sync watermark")
	}

	if err = e.uploadModified(ctx, last, &res); err != nil {
		return res, err
	}
	if err = e.local.SaveLastSync(ctx, start); err != nil {
		return res, errors.Wrap(err, "saving sync watermark")
	}

	return res, e.downloadModified(ctx, last, &res)
}

// drainQueue re-attempts each persisted pending operation.
// A failed attempt bumps the operation's retry count;
// an operation failing its fifth attempt is dropped for good,
// which is logged and counted in Result.Dropped.
func (e *Engine) drainQueue(ctx context.Context, res *Result) error {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	ops, err := e.local.LoadPendingOperations(ctx)
	if err != nil {
		return errors.Wrap(err, "loading pending operations")
	}

	var keep []anchorhold.PendingOperation
	for _, op := range ops {
		err := e.attempt(ctx, op)
		if err == nil {
			res.Flushed++
			continue
		}
		op.RetryCount++
		if op.RetryCount >= maxRetries {
			log.Printf("dropping pending %s of %s after %d failed attempts: %s", op.Kind, op.TargetID, op.RetryCount, err)
			res.Dropped++
			continue
		}
		keep = append(keep, op)
	}
	return errors.Wrap(e.local.SavePendingOperations(ctx, keep), "saving pending operations")
}

// attempt replays one queued operation against the remote store.
// A target that no longer exists locally satisfies its queue entry:
// there is nothing left to upload.
func (e *Engine) attempt(ctx context.Context, op anchorhold.PendingOperation) error {
	switch op.Kind {
	case anchorhold.OpSaveSpace:
		sp, err := e.local.LoadSpace(ctx, op.TargetID)
		if err != nil {
			return errors.Wrapf(err, "loading space %s", op.TargetID)
		}
		if sp == nil {
			return nil
		}
		return e.remote.UploadSpace(ctx, *sp)

	case anchorhold.OpDeleteSpace:
		return e.remote.DeleteSpace(ctx, op.TargetID)

	case anchorhold.OpSaveAnchor:
		a, err := e.local.LoadAnchor(ctx, op.TargetID)
		if err != nil {
			return errors.Wrapf(err, "loading anchor %s", op.TargetID)
		}
		if a == nil {
			return nil
		}
		if err = e.remote.UploadAnchor(ctx, *a); err != nil {
			return err
		}
		// The event that failed alongside the snapshot is not
		// recorded in the queue entry. Uploads are idempotent
		// upserts by id, so re-pushing the anchor's whole history
		// restores at-least-once delivery.
		events, err := e.anchorEvents(ctx, a.SpaceID, a.ID)
		if err != nil {
			return err
		}
		for _, ev := range events {
			if err = e.remote.UploadEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil

	default:
		return errors.Errorf("unknown pending operation kind %q", op.Kind)
	}
}

// uploadModified pushes every local space and anchor whose UpdatedAt
// is strictly after the watermark,
// and the events of the modified anchors.
func (e *Engine) uploadModified(ctx context.Context, last time.Time, res *Result) error {
	spaces, err := e.local.LoadAllSpaces(ctx)
	if err != nil {
		return errors.Wrap(err, "loading spaces")
	}
	anchors, err := e.local.LoadAnchorsModifiedSince(ctx, last)
	if err != nil {
		return errors.Wrap(err, "loading modified anchors")
	}

	var events []anchorhold.AnchorEvent
	seenSpace := make(map[string]bool)
	for _, a := range anchors {
		if seenSpace[a.SpaceID] {
			continue
		}
		seenSpace[a.SpaceID] = true

		spaceEvents, err := e.local.LoadEvents(ctx, a.SpaceID)
		if err != nil {
			return errors.Wrapf(err, "loading events of space %s", a.SpaceID)
		}
		for _, ev := range spaceEvents {
			if ev.Timestamp.After(last) {
				events = append(events, ev)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	var uploaded int
	for _, sp := range spaces {
		if !sp.UpdatedAt.After(last) {
			continue
		}
		sp := sp
		uploaded++
		g.Go(func() error {
			return errors.Wrapf(e.remote.UploadSpace(gctx, sp), "uploading space %s", sp.ID)
		})
	}
	for _, a := range anchors {
		a := a
		uploaded++
		g.Go(func() error {
			return errors.Wrapf(e.remote.UploadAnchor(gctx, a), "uploading anchor %s", a.ID)
		})
	}
	for _, ev := range events {
		ev := ev
		uploaded++
		g.Go(func() error {
			return errors.Wrapf(e.remote.UploadEvent(gctx, ev), "uploading event %s", ev.ID)
		})
	}
	if err = g.Wait(); err != nil {
		return &anchorhold.SyncError{Cause: err}
	}
	res.Uploaded += uploaded
	return nil
}

// downloadModified adopts remote records modified after the watermark,
// last-write-wins: a remote record overwrites the local one only when
// its UpdatedAt is strictly greater.
func (e *Engine) downloadModified(ctx context.Context, last time.Time, res *Result) error {
	spaces, err := e.remote.ListSpacesModifiedSince(ctx, last)
	if err != nil {
		return &anchorhold.SyncError{Cause: err}
	}
	for _, sp := range spaces {
		local, err := e.local.LoadSpace(ctx, sp.ID)
		if err != nil {
			return errors.Wrapf(err, "loading space %s", sp.ID)
		}
		if local != nil && !sp.UpdatedAt.After(local.UpdatedAt) {
			continue
		}
		if err = e.local.SaveSpace(ctx, sp); err != nil {
			return errors.Wrapf(err, "adopting space %s", sp.ID)
		}
		res.Downloaded++
	}

	anchors, err := e.remote.ListAnchorsModifiedSince(ctx, last)
	if err != nil {
		return &anchorhold.SyncError{Cause: err}
	}
	for _, a := range anchors {
		local, err := e.local.LoadAnchor(ctx, a.ID)
		if err != nil {
			return errors.Wrapf(err, "loading anchor %s", a.ID)
		}
		if local != nil && !a.UpdatedAt.After(local.UpdatedAt) {
			continue
		}
		if err = e.local.SaveAnchor(ctx, a); err != nil {
			return errors.Wrapf(err, "adopting anchor %s", a.ID)
		}
		res.Downloaded++
	}
	return nil
}
