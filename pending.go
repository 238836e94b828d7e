package anchorhold

import "time"

// OpKind is the kind of a deferred remote-sync action.
type OpKind string

// The remote-sync actions that can be queued for retry.
const (
	OpSaveSpace   OpKind = "saveSpace"
	OpDeleteSpace OpKind = "deleteSpace"
	OpSaveAnchor  OpKind = "saveAnchor"
)

// PendingOperation is a queued remote-sync action awaiting retry
// after a prior failure.
// The queue is persisted as a whole through the local store
// and drained by the engine's Sync.
type PendingOperation struct {
	Kind       OpKind    `json:"kind"`
	TargetID   string    `json:"targetId"`
	RetryCount int       `json:"retryCount"`
	CreatedAt  time.Time `json:"createdAt"`
}
