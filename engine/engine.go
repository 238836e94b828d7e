// Package engine is the storage orchestrator:
// it ties the local store, the event log, the compression codec,
// and the optional remote replica into one save/load/sync surface.
//
// The local store is the source of truth.
// The remote store is a durable replica,
// written through on save (when so configured)
// and reconciled by Sync;
// it is never authoritative except during download reconciliation.
//
// Save, delete, and rollback are serialized per anchor id
// within one Engine.
// Multiple Engines sharing one underlying store are unsupported.
package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/compress"
	"github.com/anchorhold/anchorhold/remote"
	"github.com/anchorhold/anchorhold/store"
)

// Strategy tells the engine when to push writes to the remote store.
type Strategy int

const (
	// SyncManual pushes nothing until Sync is called.
	SyncManual Strategy = iota

	// SyncOnSave uploads each write as it happens,
	// enqueueing a retry on failure.
	SyncOnSave
)

// Config contains the optional parts of an Engine.
type Config struct {
	// Remote is the replica to sync against.
	// If nil, Sync reports anchorhold.ErrCloudNotConfigured
	// and saves never leave the local store.
	Remote remote.Store

	// Strategy tells the engine when to upload. Default SyncManual.
	Strategy Strategy

	// Level is the compression level applied to space payloads.
	Level compress.Level

	// Now is the engine's clock. Defaults to time.Now.
	Now func() time.Time
}

// Engine orchestrates the local store and the remote replica.
type Engine struct {
	local    store.Store
	remote   remote.Store
	strategy Strategy
	level    compress.Level
	now      func() time.Time

	mu      sync.Mutex // guards locks
	locks   map[string]*sync.Mutex
	queueMu sync.Mutex // guards the pending-operation queue
}

// New produces an Engine backed by the given local store.
func New(local store.Store, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		local:    local,
		remote:   cfg.Remote,
		strategy: cfg.Strategy,
		level:    cfg.Level,
		now:      now,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockAnchor acquires the mutex for one anchor id,
// returning the function that releases it.
func (e *Engine) lockAnchor(id string) func() {
	e.mu.Lock()
	mu, ok := e.locks[id]
	if !ok {
		mu = new(sync.Mutex)
		e.locks[id] = mu
	}
	e.mu.Unlock()

	mu.Lock()
	return mu.Unlock
}

// enqueue adds a pending operation to the persisted retry queue,
// deduplicating by kind and target.
// Queue persistence failures are logged, not returned:
// the caller is already on a remote-failure path
// and the local write has succeeded.
func (e *Engine) enqueue(ctx context.Context, kind anchorhold.OpKind, targetID string) {
	e.queueMu.Lock()
	defer e.queueMu.Unlock()

	ops, err := e.local.LoadPendingOperations(ctx)
	if err != nil {
		log.Printf("ERROR loading pending operations (dropping %s of %s): %s", kind, targetID, err)
		return
	}
	for _, op := range ops {
		if op.Kind == kind && op.TargetID == targetID {
			return
		}
	}
	ops = append(ops, anchorhold.PendingOperation{
		Kind:      kind,
		TargetID:  targetID,
		CreatedAt: e.now(),
	})
	if err = e.local.SavePendingOperations(ctx, ops); err != nil {
		log.Printf("ERROR persisting pending operations (dropping %s of %s): %s", kind, targetID, err)
	}
}

// Size reports the local store's aggregate storage used, in bytes.
func (e *Engine) Size(ctx context.Context) (int64, error) {
	return e.local.TotalSize(ctx)
}

// Clear destroys every local record:
// spaces, anchors, events, the retry queue, and the sync watermark.
// The remote store is untouched.
func (e *Engine) Clear(ctx context.Context) error {
	return e.local.ClearAll(ctx)
}
