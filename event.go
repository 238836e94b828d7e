package anchorhold

import (
	"fmt"
	"time"
)

// EventType classifies one state transition of one anchor.
type EventType string

// The closed set of event types.
const (
	EventCreated  EventType = "created"
	EventMoved    EventType = "moved"
	EventUpdated  EventType = "updated"
	EventDeleted  EventType = "deleted"
	EventRestored EventType = "restored"
)

// AnchorEvent is an immutable record of one state transition of one anchor,
// the unit of the append-only log.
// For a given anchor, versions are 1, 2, 3, … with no gaps:
// one event per version.
//
// Which snapshot fields are present depends on the type:
// created and restored carry both transform and metadata,
// moved carries only the transform,
// updated only the metadata,
// and deleted carries neither.
type AnchorEvent struct {
	ID        string     `json:"id"`
	AnchorID  string     `json:"anchorId"`
	SpaceID   string     `json:"spaceId"`
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Version   int        `json:"version"`
	// No omitempty on Metadata: an empty snapshot must persist as {},
	// distinct from an absent one.
	Transform *Transform `json:"transform,omitempty"`
	Metadata  Metadata   `json:"metadata"`
	Actor     string     `json:"actor,omitempty"`
}

// Check verifies the structural invariants of e:
// a known type, a positive version,
// and snapshot-field presence matching the type.
func (e AnchorEvent) Check() error {
	if e.Version < 1 {
		return fmt.Errorf("event %s has version %d, want 1 or greater", e.ID, e.Version)
	}
	switch e.Type {
	case EventCreated, EventRestored:
		if e.Transform == nil || e.Metadata == nil {
			return fmt.Errorf("%s event %s missing transform or metadata snapshot", e.Type, e.ID)
		}
	case EventMoved:
		if e.Transform == nil {
			return fmt.Errorf("moved event %s missing transform snapshot", e.ID)
		}
	case EventUpdated:
		if e.Metadata == nil {
			return fmt.Errorf("updated event %s missing metadata snapshot", e.ID)
		}
	case EventDeleted:
		// no snapshot fields
	default:
		return fmt.Errorf("event %s has unknown type %q", e.ID, e.Type)
	}
	return nil
}

// Clone returns a copy of e sharing no mutable state with it.
func (e AnchorEvent) Clone() AnchorEvent {
	out := e
	if e.Transform != nil {
		t := *e.Transform
		out.Transform = &t
	}
	out.Metadata = e.Metadata.Clone()
	return out
}
