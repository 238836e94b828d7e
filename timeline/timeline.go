// Package timeline folds a space's append-only event log
// into anchor state at an arbitrary instant,
// computes diffs between two instants,
// and reconstructs a single anchor at a given version.
package timeline

import (
	"sort"
	"time"

	"github.com/anchorhold/anchorhold"
)

// Timeline is a space's events in timestamp order.
// It is derived from the event log on demand, never persisted.
type Timeline struct {
	SpaceID string
	Events  []anchorhold.AnchorEvent
}

// New produces a Timeline over the given events.
// The events are copied and sorted by timestamp;
// the sort is stable,
// so log insertion order breaks timestamp ties.
func New(spaceID string, events []anchorhold.AnchorEvent) Timeline {
	sorted := make([]anchorhold.AnchorEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return Timeline{SpaceID: spaceID, Events: sorted}
}

// folded is the fold accumulator for one anchor.
// The inactive flag is internal to folding:
// a deleted event sets it, a restored event clears it,
// and inactive anchors are excluded from StateAt's output.
type folded struct {
	anchor   anchorhold.Anchor
	inactive bool
}

// StateAt reconstructs every anchor's visible state at the given instant:
// it folds the events whose timestamp is at or before `at`,
// per anchor, in timestamp order.
//
// A created event seeds state;
// moved overwrites the transform, updated the metadata;
// deleted marks the anchor inactive and restored reactivates it,
// optionally overwriting transform and metadata.
// Each of these also advances UpdatedAt to the event's timestamp.
//
// Events for an anchor with no preceding created event are silently
// dropped — folding a partial or filtered event subset is legitimate,
// and such orphans simply contribute no entry.
//
// The result contains only active anchors, ordered by id.
func (tl Timeline) StateAt(at time.Time) []anchorhold.Anchor {
	state := make(map[string]*folded)

	for _, e := range tl.Events {
		if e.Timestamp.After(at) {
			continue
		}

		f, ok := state[e.AnchorID]
		if e.Type == anchorhold.EventCreated {
			a := anchorhold.Anchor{
				ID:        e.AnchorID,
				SpaceID:   e.SpaceID,
				Metadata:  e.Metadata.Clone(),
				CreatedAt: e.Timestamp,
				UpdatedAt: e.Timestamp,
			}
			if e.Transform != nil {
				a.Transform = *e.Transform
			}
			state[e.AnchorID] = &folded{anchor: a}
			continue
		}
		if !ok {
			// No created event seen for this anchor: drop.
			continue
		}

		switch e.Type {
		case anchorhold.EventMoved:
			if e.Transform != nil {
				f.anchor.Transform = *e.Transform
			}
		case anchorhold.EventUpdated:
			f.anchor.Metadata = e.Metadata.Clone()
		case anchorhold.EventDeleted:
			f.inactive = true
		case anchorhold.EventRestored:
			f.inactive = false
			if e.Transform != nil {
				f.anchor.Transform = *e.Transform
			}
			if e.Metadata != nil {
				f.anchor.Metadata = e.Metadata.Clone()
			}
		}
		f.anchor.UpdatedAt = e.Timestamp
	}

	var out []anchorhold.Anchor
	for _, f := range state {
		if !f.inactive {
			out = append(out, f.anchor)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Reconstruct folds the events of one anchor,
// up to and including the given version,
// into that anchor's state at that version.
// The first event for the anchor must be its created event;
// otherwise the history cannot seed a state
// and Reconstruct fails with a ReconstructionError.
//
// The soft-delete marker is reported via the second result:
// true means the folded state is deleted at that version.
func Reconstruct(anchorID string, events []anchorhold.AnchorEvent, toVersion int) (anchorhold.Anchor, bool, error) {
	var own []anchorhold.AnchorEvent
	for _, e := range events {
		if e.AnchorID == anchorID && e.Version <= toVersion {
			own = append(own, e)
		}
	}
	sort.Slice(own, func(i, j int) bool { return own[i].Version < own[j].Version })

	if len(own) == 0 || own[0].Type != anchorhold.EventCreated {
		return anchorhold.Anchor{}, false, &anchorhold.ReconstructionError{AnchorID: anchorID}
	}

	seed := own[0]
	a := anchorhold.Anchor{
		ID:        anchorID,
		SpaceID:   seed.SpaceID,
		Metadata:  seed.Metadata.Clone(),
		CreatedAt: seed.Timestamp,
		UpdatedAt: seed.Timestamp,
	}
	if seed.Transform != nil {
		a.Transform = *seed.Transform
	}

	var deleted bool
	for _, e := range own[1:] {
		switch e.Type {
		case anchorhold.EventMoved:
			if e.Transform != nil {
				a.Transform = *e.Transform
			}
		case anchorhold.EventUpdated:
			a.Metadata = e.Metadata.Clone()
		case anchorhold.EventDeleted:
			deleted = true
		case anchorhold.EventRestored:
			deleted = false
			if e.Transform != nil {
				a.Transform = *e.Transform
			}
			if e.Metadata != nil {
				a.Metadata = e.Metadata.Clone()
			}
		}
		a.UpdatedAt = e.Timestamp
	}
	return a, deleted, nil
}
