package anchorhold

import "time"

// Transform is a column-major 4×4 matrix: an anchor's pose.
type Transform [16]float64

// Identity is the identity transform.
var Identity = Transform{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

// Equal reports whether t and other are exactly equal, element by element.
func (t Transform) Equal(other Transform) bool {
	return t == other
}

// Anchor is a positioned, annotated object belonging to one space.
// The SpaceID of an anchor never changes once set.
// A nil DeletedAt means the anchor is live;
// a non-nil one marks it soft-deleted
// (the record and its history remain until purged).
//
// Anchor values are treated as immutable:
// the With* methods return updated copies and never modify the receiver.
type Anchor struct {
	ID        string     `json:"id"`
	SpaceID   string     `json:"spaceId"`
	Transform Transform  `json:"transform"`
	Metadata  Metadata   `json:"metadata"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// IsDeleted reports whether a is soft-deleted.
func (a Anchor) IsDeleted() bool {
	return a.DeletedAt != nil
}

// WithTransform returns a copy of a with the given transform
// and its UpdatedAt bumped to now.
func (a Anchor) WithTransform(t Transform, now time.Time) Anchor {
	out := a.Clone()
	out.Transform = t
	out.UpdatedAt = now
	return out
}

// WithMetadata returns a copy of a with the given metadata
// and its UpdatedAt bumped to now.
func (a Anchor) WithMetadata(m Metadata, now time.Time) Anchor {
	out := a.Clone()
	out.Metadata = m.Clone()
	out.UpdatedAt = now
	return out
}

// AsDeleted returns a soft-deleted copy of a:
// DeletedAt and UpdatedAt are both set to now.
// Transform and metadata are untouched.
func (a Anchor) AsDeleted(now time.Time) Anchor {
	out := a.Clone()
	out.DeletedAt = &now
	out.UpdatedAt = now
	return out
}

// AsRestored returns a copy of a with the soft-delete marker cleared
// and UpdatedAt bumped to now.
func (a Anchor) AsRestored(now time.Time) Anchor {
	out := a.Clone()
	out.DeletedAt = nil
	out.UpdatedAt = now
	return out
}

// Clone returns a copy of a sharing no mutable state with it.
func (a Anchor) Clone() Anchor {
	out := a
	out.Metadata = a.Metadata.Clone()
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
