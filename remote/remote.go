// Package remote defines the boundary to a remote replica store.
//
// The remote side is a durable cache of the local store, never
// authoritative except during sync's download-reconciliation phase.
// Transport and auth are the adapter's business; the engine only needs
// per-kind upload (an idempotent upsert by id), download,
// list-modified-since, delete, and purge-older-than.
package remote

import (
	"context"
	"time"

	"github.com/anchorhold/anchorhold"
)

// Store is a remote replica adapter.
type Store interface {
	// UploadSpace upserts a space record by id.
	UploadSpace(context.Context, anchorhold.Space) error

	// DownloadSpace returns the remote space with the given id,
	// or nil if absent.
	DownloadSpace(ctx context.Context, id string) (*anchorhold.Space, error)

	// ListSpacesModifiedSince returns the remote spaces whose UpdatedAt
	// is strictly after t.
	ListSpacesModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Space, error)

	// DeleteSpace removes a remote space record by id.
	// Deleting an absent record is not an error.
	DeleteSpace(ctx context.Context, id string) error

	// UploadAnchor upserts an anchor record by id.
	UploadAnchor(context.Context, anchorhold.Anchor) error

	// DownloadAnchor returns the remote anchor with the given id,
	// or nil if absent.
	DownloadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error)

	// ListAnchorsModifiedSince returns the remote anchors whose UpdatedAt
	// is strictly after t.
	ListAnchorsModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Anchor, error)

	// DeleteAnchor removes a remote anchor record by id.
	// Deleting an absent record is not an error.
	DeleteAnchor(ctx context.Context, id string) error

	// UploadEvent upserts an event record by id.
	UploadEvent(context.Context, anchorhold.AnchorEvent) error

	// PurgeAnchors removes remote anchor records
	// soft-deleted before the cutoff.
	PurgeAnchors(ctx context.Context, before time.Time) error

	// PurgeEvents removes remote event records
	// whose timestamp precedes the cutoff.
	PurgeEvents(ctx context.Context, before time.Time) error
}
