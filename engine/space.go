package engine

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/compress"
)

// SaveSpace persists a space record,
// compressing its payload per the configured level.
// The returned copy reflects the timestamps and payload actually stored.
//
// With the on-save strategy the record is also uploaded;
// an upload failure enqueues a retry and is reported as a SyncError,
// the local write having already succeeded.
func (e *Engine) SaveSpace(ctx context.Context, sp anchorhold.Space) (anchorhold.Space, error) {
	if sp.ID == "" {
		return sp, errors.Wrap(anchorhold.ErrInvalidReference, "space has no id")
	}

	existing, err := e.local.LoadSpace(ctx, sp.ID)
	if err != nil {
		return sp, errors.Wrapf(err, "loading existing space %s", sp.ID)
	}

	now := e.now()
	if existing != nil {
		sp.CreatedAt = existing.CreatedAt
	} else if sp.CreatedAt.IsZero() {
		sp.CreatedAt = now
	}
	sp.UpdatedAt = now

	sp.Compressed = false
	if e.level != compress.None && len(sp.Payload) > 0 {
		compressed, err := compress.Compress(sp.Payload, e.level)
		if err != nil {
			return sp, errors.Wrapf(err, "compressing payload of space %s", sp.ID)
		}
		sp.Payload = compressed
		sp.Compressed = true
	}

	if err = e.local.SaveSpace(ctx, sp); err != nil {
		return sp, errors.Wrapf(err, "storing space %s", sp.ID)
	}

	if e.strategy == SyncOnSave && e.remote != nil {
		if err = e.remote.UploadSpace(ctx, sp); err != nil {
			e.enqueue(ctx, anchorhold.OpSaveSpace, sp.ID)
			return sp, &anchorhold.SyncError{Cause: err}
		}
	}
	return sp, nil
}

// LoadSpace returns the space with the given id,
// its payload decompressed.
// On a local miss with a remote configured,
// the remote copy is downloaded and adopted locally.
// A NotFoundError means the space exists nowhere.
func (e *Engine) LoadSpace(ctx context.Context, id string) (*anchorhold.Space, error) {
	sp, err := e.local.LoadSpace(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "loading space %s", id)
	}
	if sp == nil && e.remote != nil {
		sp, err = e.remote.DownloadSpace(ctx, id)
		if err != nil {
			return nil, errors.Wrapf(err, "downloading space %s", id)
		}
		if sp != nil {
			if err = e.local.SaveSpace(ctx, *sp); err != nil {
				return nil, errors.Wrapf(err, "adopting downloaded space %s", id)
			}
		}
	}
	if sp == nil {
		return nil, &anchorhold.NotFoundError{Kind: "space", ID: id}
	}
	return e.inflate(sp)
}

// LoadSpaces returns every locally stored space, payloads decompressed.
func (e *Engine) LoadSpaces(ctx context.Context) ([]anchorhold.Space, error) {
	spaces, err := e.local.LoadAllSpaces(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading spaces")
	}
	out := make([]anchorhold.Space, 0, len(spaces))
	for i := range spaces {
		sp, err := e.inflate(&spaces[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *sp)
	}
	return out, nil
}

func (e *Engine) inflate(sp *anchorhold.Space) (*anchorhold.Space, error) {
	out := sp.Clone()
	if !out.Compressed {
		return &out, nil
	}
	data, err := compress.Decompress(out.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing payload of space %s", sp.ID)
	}
	out.Payload = data
	out.Compressed = false
	return &out, nil
}

// DeleteSpace removes a space and its anchor records from the local store.
// Event history is untouched.
// With the on-save strategy the remote copy is deleted too;
// a remote failure enqueues a retry and is reported as a SyncError.
func (e *Engine) DeleteSpace(ctx context.Context, id string) error {
	existing, err := e.local.LoadSpace(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "loading space %s", id)
	}
	if existing == nil {
		return &anchorhold.NotFoundError{Kind: "space", ID: id}
	}

	if err = e.local.DeleteSpace(ctx, id); err != nil {
		return errors.Wrapf(err, "deleting space %s", id)
	}

	if e.strategy == SyncOnSave && e.remote != nil {
		if err = e.remote.DeleteSpace(ctx, id); err != nil {
			e.enqueue(ctx, anchorhold.OpDeleteSpace, id)
			return &anchorhold.SyncError{Cause: err}
		}
	}
	return nil
}

// PurgeDeletedAnchors permanently removes anchor records soft-deleted
// before the cutoff from the local store and,
// when a remote is configured,
// from the replica along with its events older than the cutoff.
// No event is emitted: purge is destructive and unversioned.
func (e *Engine) PurgeDeletedAnchors(ctx context.Context, before time.Time) (int, error) {
	n, err := e.local.PurgeDeletedAnchors(ctx, before)
	if err != nil {
		return n, errors.Wrap(err, "purging local anchors")
	}
	if e.remote != nil {
		if err = e.remote.PurgeAnchors(ctx, before); err != nil {
			return n, errors.Wrap(err, "purging remote anchors")
		}
		if err = e.remote.PurgeEvents(ctx, before); err != nil {
			return n, errors.Wrap(err, "purging remote events")
		}
	}
	return n, nil
}
