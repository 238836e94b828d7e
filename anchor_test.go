package anchorhold

import (
	"testing"
	"time"
)

func TestAnchorCopyMethods(t *testing.T) {
	t0 := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	orig := Anchor{
		ID:        "a1",
		SpaceID:   "sp1",
		Transform: Identity,
		Metadata:  Metadata{"label": String("desk")},
		CreatedAt: t0,
		UpdatedAt: t0,
	}

	pose := Identity
	pose[12] = 3
	moved := orig.WithTransform(pose, t1)
	if !moved.Transform.Equal(pose) || !moved.UpdatedAt.Equal(t1) {
		t.Errorf("WithTransform produced %+v", moved)
	}
	if !orig.Transform.Equal(Identity) || !orig.UpdatedAt.Equal(t0) {
		t.Error("WithTransform modified the receiver")
	}

	relabeled := orig.WithMetadata(Metadata{"label": String("shelf")}, t1)
	if got, _ := relabeled.Metadata["label"].AsString(); got != "shelf" {
		t.Errorf("WithMetadata produced label %q", got)
	}
	if got, _ := orig.Metadata["label"].AsString(); got != "desk" {
		t.Error("WithMetadata modified the receiver")
	}

	deleted := orig.AsDeleted(t1)
	if !deleted.IsDeleted() || !deleted.DeletedAt.Equal(t1) || !deleted.UpdatedAt.Equal(t1) {
		t.Errorf("AsDeleted produced %+v", deleted)
	}
	if orig.IsDeleted() {
		t.Error("AsDeleted modified the receiver")
	}

	restored := deleted.AsRestored(t1.Add(time.Minute))
	if restored.IsDeleted() {
		t.Error("AsRestored left the anchor deleted")
	}
	if !deleted.IsDeleted() {
		t.Error("AsRestored modified the receiver")
	}
}

func TestAnchorCloneIsDeep(t *testing.T) {
	t0 := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)
	orig := Anchor{
		ID:        "a1",
		SpaceID:   "sp1",
		Transform: Identity,
		Metadata:  Metadata{"label": String("desk")},
		CreatedAt: t0,
		UpdatedAt: t0,
		DeletedAt: &t0,
	}

	c := orig.Clone()
	c.Metadata["label"] = String("changed")
	later := t0.Add(time.Hour)
	*c.DeletedAt = later

	if got, _ := orig.Metadata["label"].AsString(); got != "desk" {
		t.Error("mutating the clone's metadata changed the original")
	}
	if !orig.DeletedAt.Equal(t0) {
		t.Error("mutating the clone's DeletedAt changed the original")
	}
}
