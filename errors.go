package anchorhold

import (
	"errors"
	"fmt"
)

// ErrNotFound is the error returned when a required record does not exist.
// NotFoundError values unwrap to it,
// so callers can test with errors.Is(err, ErrNotFound).
var ErrNotFound = errors.New("not found")

// ErrCloudNotConfigured is returned by operations that need a remote store
// when none is configured.
var ErrCloudNotConfigured = errors.New("cloud backend not configured")

// ErrInvalidReference is returned when a record's identifiers are unusable:
// an empty id, an empty parent space id,
// or an attempt to move an anchor to a different space.
var ErrInvalidReference = errors.New("invalid reference")

// NotFoundError reports which record, of which kind, was missing.
type NotFoundError struct {
	Kind string // "space", "anchor"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// SyncError reports a failed remote operation.
// It is recoverable:
// the local write has already succeeded,
// the failed remote action is in the retry queue,
// and a later Sync will re-attempt it.
// Callers should read it as "locally safe, not yet replicated."
type SyncError struct {
	Cause error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("cloud sync failed: %s", e.Cause)
}

func (e *SyncError) Unwrap() error { return e.Cause }

// VersionNotFoundError reports a rollback target version
// that does not exist in an anchor's history.
type VersionNotFoundError struct {
	AnchorID string
	Version  int
}

func (e *VersionNotFoundError) Error() string {
	return fmt.Sprintf("anchor %s has no version %d", e.AnchorID, e.Version)
}

// ReconstructionError reports an anchor history that cannot be folded
// into a state: its event sequence does not begin with a created event.
type ReconstructionError struct {
	AnchorID string
}

func (e *ReconstructionError) Error() string {
	return fmt.Sprintf("cannot reconstruct anchor %s: history does not begin with a created event", e.AnchorID)
}

// CorruptLogError reports a detected structural invariant violation
// in a space's event log.
type CorruptLogError struct {
	SpaceID string
}

func (e *CorruptLogError) Error() string {
	return fmt.Sprintf("event log for space %s is corrupt", e.SpaceID)
}
