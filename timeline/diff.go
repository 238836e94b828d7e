package timeline

import (
	"time"

	"github.com/anchorhold/anchorhold"
)

// Moved is a diff entry for an anchor whose transform changed,
// carrying the transform it had at the diff's starting instant.
type Moved struct {
	Anchor   anchorhold.Anchor
	Previous anchorhold.Transform
}

// Updated is a diff entry for an anchor whose metadata changed
// (and whose transform did not),
// carrying the metadata it had at the diff's starting instant.
type Updated struct {
	Anchor   anchorhold.Anchor
	Previous anchorhold.Metadata
}

// Diff is the comparison of a space's state at two instants:
// five disjoint sets of anchors, keyed by anchor id.
type Diff struct {
	SpaceID   string
	From, To  time.Time
	Added     []anchorhold.Anchor
	Removed   []anchorhold.Anchor
	Moved     []Moved
	Updated   []Updated
	Unchanged []anchorhold.Anchor
}

// ChangeCount is the number of anchors that differ between the two instants.
func (d Diff) ChangeCount() int {
	return len(d.Added) + len(d.Removed) + len(d.Moved) + len(d.Updated)
}

// HasChanges reports whether anything differs between the two instants.
func (d Diff) HasChanges() bool {
	return d.ChangeCount() > 0
}

// Diff compares the timeline's state at two instants.
//
// An anchor present only at `to` is added;
// only at `from`, removed.
// For anchors present at both instants,
// a transform change classifies it as moved —
// even if the metadata changed too,
// transform changes take priority and the anchor appears only in Moved.
// A metadata-only change classifies it as updated.
// Otherwise it is unchanged.
func (tl Timeline) Diff(from, to time.Time) Diff {
	var (
		before = tl.StateAt(from)
		after  = tl.StateAt(to)
		prev   = make(map[string]anchorhold.Anchor, len(before))
	)
	for _, a := range before {
		prev[a.ID] = a
	}

	d := Diff{SpaceID: tl.SpaceID, From: from, To: to}
	seen := make(map[string]bool, len(after))

	for _, a := range after {
		seen[a.ID] = true
		p, ok := prev[a.ID]
		switch {
		case !ok:
			d.Added = append(d.Added, a)
		case !a.Transform.Equal(p.Transform):
			d.Moved = append(d.Moved, Moved{Anchor: a, Previous: p.Transform})
		case !a.Metadata.Equal(p.Metadata):
			d.Updated = append(d.Updated, Updated{Anchor: a, Previous: p.Metadata})
		default:
			d.Unchanged = append(d.Unchanged, a)
		}
	}

	for _, p := range before {
		if !seen[p.ID] {
			d.Removed = append(d.Removed, p)
		}
	}

	return d
}
