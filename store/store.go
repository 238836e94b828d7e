// Package store defines the local durable store contract
// and the registry through which backends are created from configuration.
package store

import (
	"context"
	"time"

	"github.com/anchorhold/anchorhold"
)

// Store is the local durable record store: the source of truth.
//
// Each record write is all-or-nothing from the caller's perspective:
// a crash mid-write must not leave a readable-but-corrupt record.
// A Store assumes a single logical writer
// and provides no multi-process locking.
//
// Load methods for single records return (nil, nil) when the id is absent;
// absence is not an error at this layer.
type Store interface {
	// SaveSpace writes a space's metadata and payload blob as a unit.
	SaveSpace(context.Context, anchorhold.Space) error

	// LoadSpace returns the space with the given id, or nil if not present.
	LoadSpace(ctx context.Context, id string) (*anchorhold.Space, error)

	// LoadAllSpaces returns every stored space.
	LoadAllSpaces(context.Context) ([]anchorhold.Space, error)

	// DeleteSpace removes a space record and the records of its anchors.
	// Event history is untouched.
	DeleteSpace(ctx context.Context, id string) error

	// SaveAnchor writes one anchor record.
	SaveAnchor(context.Context, anchorhold.Anchor) error

	// LoadAnchor returns the anchor with the given id, or nil if not present.
	LoadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error)

	// LoadAnchors returns the anchors belonging to a space,
	// soft-deleted ones included.
	LoadAnchors(ctx context.Context, spaceID string) ([]anchorhold.Anchor, error)

	// LoadAnchorsModifiedSince returns the anchors whose UpdatedAt
	// is strictly after t.
	LoadAnchorsModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Anchor, error)

	// PurgeDeletedAnchors permanently removes anchor records
	// whose DeletedAt precedes the cutoff,
	// returning how many were removed.
	// Their event history is untouched.
	PurgeDeletedAnchors(ctx context.Context, before time.Time) (int, error)

	// AppendEvent appends one event to its space's log.
	// The log is write-once, read-many, and kept in insertion order.
	AppendEvent(context.Context, anchorhold.AnchorEvent) error

	// LoadEvents returns a space's events in insertion order.
	LoadEvents(ctx context.Context, spaceID string) ([]anchorhold.AnchorEvent, error)

	// CurrentVersion returns the highest event version recorded
	// for an anchor, or 0 if it has no events.
	CurrentVersion(ctx context.Context, anchorID, spaceID string) (int, error)

	// SavePendingOperations replaces the persisted retry queue
	// with the given snapshot.
	SavePendingOperations(context.Context, []anchorhold.PendingOperation) error

	// LoadPendingOperations returns the persisted retry queue.
	LoadPendingOperations(context.Context) ([]anchorhold.PendingOperation, error)

	// SaveLastSync records the instant up to which local and remote
	// are known to agree.
	SaveLastSync(context.Context, time.Time) error

	// LoadLastSync returns the recorded sync watermark,
	// or the zero time if none has been recorded.
	LoadLastSync(context.Context) (time.Time, error)

	// TotalSize reports aggregate storage used, in bytes.
	TotalSize(context.Context) (int64, error)

	// ClearAll destroys every record: spaces, anchors, events,
	// the retry queue, and the sync watermark.
	ClearAll(context.Context) error
}
