// Package gcs implements a remote replica on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	"encoding/json"
	stderrs "errors"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/remote"
)

var _ remote.Store = &Store{}

// Store is a Google Cloud Storage-based remote replica.
//
// Each record is one object whose body is the record's JSON.
// Object names are "<kind>:<hex id>",
// so per-kind listing is a prefix query.
// The record's UpdatedAt
// (the Timestamp, for events)
// is mirrored into object metadata,
// letting list-modified-since filter without reading bodies.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// FromConfig produces a Store from a config map
// with a "bucket" parameter and an optional "creds" parameter
// naming a credentials file.
func FromConfig(ctx context.Context, conf map[string]interface{}) (*Store, error) {
	bucketName, ok := conf["bucket"].(string)
	if !ok {
		return nil, errors.New(`missing "bucket" parameter`)
	}
	var options []option.ClientOption
	if creds, ok := conf["creds"].(string); ok && creds != "" {
		options = append(options, option.WithCredentialsFile(creds))
	}
	c, err := storage.NewClient(ctx, options...)
	if err != nil {
		return nil, errors.Wrap(err, "creating cloud storage client")
	}
	return New(c.Bucket(bucketName)), nil
}

const (
	spacePrefix  = "space:"
	anchorPrefix = "anchor:"
	eventPrefix  = "event:"

	updatedAtKey = "updatedAt"
	deletedAtKey = "deletedAt"
)

func objName(prefix, id string) string {
	return prefix + hex.EncodeToString([]byte(id))
}

func (s *Store) upload(ctx context.Context, name string, rec interface{}, meta map[string]string) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", name)
	}

	w := s.bucket.Object(name).NewWriter(ctx)
	w.Metadata = meta
	_, err = w.Write(data)
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", name)
	}
	return errors.Wrapf(w.Close(), "closing object %s", name)
}

func (s *Store) download(ctx context.Context, name string, rec interface{}) (bool, error) {
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "opening object %s", name)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return false, errors.Wrapf(err, "reading object %s", name)
	}
	return true, errors.Wrapf(json.Unmarshal(data, rec), "decoding object %s", name)
}

func (s *Store) delete(ctx context.Context, name string) error {
	err := s.bucket.Object(name).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "deleting object %s", name)
}

// eachModifiedSince visits each object under prefix whose updatedAt
// metadata is strictly after t, reading and decoding its body via f.
func (s *Store) eachModifiedSince(ctx context.Context, prefix string, t time.Time, f func(name string) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "iterating objects under %s", prefix)
		}

		at, err := metaTime(obj.Metadata, updatedAtKey)
		if err != nil {
			return errors.Wrapf(err, "reading %s of %s", updatedAtKey, obj.Name)
		}
		if !at.After(t) {
			continue
		}
		if err = f(obj.Name); err != nil {
			return err
		}
	}
}

func metaTime(meta map[string]string, key string) (time.Time, error) {
	str, ok := meta[key]
	if !ok || str == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, str)
}

func timeMeta(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// UploadSpace implements remote.Store.
func (s *Store) UploadSpace(ctx context.Context, sp anchorhold.Space) error {
	return s.upload(ctx, objName(spacePrefix, sp.ID), sp, map[string]string{
		updatedAtKey: timeMeta(sp.UpdatedAt),
	})
}

// DownloadSpace implements remote.Store.
func (s *Store) DownloadSpace(ctx context.Context, id string) (*anchorhold.Space, error) {
	var sp anchorhold.Space
	ok, err := s.download(ctx, objName(spacePrefix, id), &sp)
	if err != nil || !ok {
		return nil, err
	}
	return &sp, nil
}

// ListSpacesModifiedSince implements remote.Store.
func (s *Store) ListSpacesModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Space, error) {
	var out []anchorhold.Space
	err := s.eachModifiedSince(ctx, spacePrefix, t, func(name string) error {
		var sp anchorhold.Space
		ok, err := s.download(ctx, name, &sp)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, sp)
		}
		return nil
	})
	return out, err
}

// DeleteSpace implements remote.Store.
func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	return s.delete(ctx, objName(spacePrefix, id))
}

// UploadAnchor implements remote.Store.
func (s *Store) UploadAnchor(ctx context.Context, a anchorhold.Anchor) error {
	meta := map[string]string{updatedAtKey: timeMeta(a.UpdatedAt)}
	if a.DeletedAt != nil {
		meta[deletedAtKey] = timeMeta(*a.DeletedAt)
	}
	return s.upload(ctx, objName(anchorPrefix, a.ID), a, meta)
}

// DownloadAnchor implements remote.Store.
func (s *Store) DownloadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error) {
	var a anchorhold.Anchor
	ok, err := s.download(ctx, objName(anchorPrefix, id), &a)
	if err != nil || !ok {
		return nil, err
	}
	return &a, nil
}

// ListAnchorsModifiedSince implements remote.Store.
func (s *Store) ListAnchorsModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Anchor, error) {
	var out []anchorhold.Anchor
	err := s.eachModifiedSince(ctx, anchorPrefix, t, func(name string) error {
		var a anchorhold.Anchor
		ok, err := s.download(ctx, name, &a)
		if err != nil {
			return err
		}
		if ok {
			out = append(out, a)
		}
		return nil
	})
	return out, err
}

// DeleteAnchor implements remote.Store.
func (s *Store) DeleteAnchor(ctx context.Context, id string) error {
	return s.delete(ctx, objName(anchorPrefix, id))
}

// UploadEvent implements remote.Store.
func (s *Store) UploadEvent(ctx context.Context, e anchorhold.AnchorEvent) error {
	return s.upload(ctx, objName(eventPrefix, e.ID), e, map[string]string{
		updatedAtKey: timeMeta(e.Timestamp),
	})
}

// PurgeAnchors implements remote.Store.
// Anchors soft-deleted before the cutoff are removed by inspecting
// the deletedAt object metadata, without reading bodies.
func (s *Store) PurgeAnchors(ctx context.Context, before time.Time) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: anchorPrefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating anchor objects")
		}

		deletedAt, err := metaTime(obj.Metadata, deletedAtKey)
		if err != nil {
			return errors.Wrapf(err, "reading %s of %s", deletedAtKey, obj.Name)
		}
		if deletedAt.IsZero() || !deletedAt.Before(before) {
			continue
		}
		if err = s.delete(ctx, obj.Name); err != nil {
			return err
		}
	}
}

// PurgeEvents implements remote.Store.
func (s *Store) PurgeEvents(ctx context.Context, before time.Time) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: eventPrefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating event objects")
		}

		at, err := metaTime(obj.Metadata, updatedAtKey)
		if err != nil {
			return errors.Wrapf(err, "reading %s of %s", updatedAtKey, obj.Name)
		}
		if at.IsZero() || !at.Before(before) {
			continue
		}
		if err = s.delete(ctx, obj.Name); err != nil {
			return err
		}
	}
}
