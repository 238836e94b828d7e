// Package file implements a record store as a file hierarchy.
package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
)

var _ store.Store = &Store{}

// Store is a file-based implementation of the record store.
//
// Layout beneath the root:
// one JSON file per space under spaces/,
// one per anchor under anchors/,
// one append-only line-delimited event log per space under events/,
// the whole retry queue in pending.json,
// and the sync watermark in lastsync.
// File names are the hex encoding of the record id.
//
// Record files are written to a temporary name and renamed into place,
// so a crash mid-write never leaves a readable-but-corrupt record.
// A torn final line in an event log
// (a crash mid-append)
// reads as if the append never happened;
// a corrupt interior line is reported as a CorruptLogError.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) spacesRoot() string  { return filepath.Join(s.root, "spaces") }
func (s *Store) anchorsRoot() string { return filepath.Join(s.root, "anchors") }
func (s *Store) eventsRoot() string  { return filepath.Join(s.root, "events") }
func (s *Store) pendingPath() string { return filepath.Join(s.root, "pending.json") }
func (s *Store) lastSyncPath() string {
	return filepath.Join(s.root, "lastsync")
}

func recordPath(dir, id, ext string) string {
	return filepath.Join(dir, hex.EncodeToString([]byte(id))+ext)
}

func idFromName(name, ext string) (string, error) {
	b, err := hex.DecodeString(strings.TrimSuffix(name, ext))
	return string(b), err
}

// writeAtomic makes data visible at path all-or-nothing:
// full write to a temporary file in the same directory,
// sync, then rename over the destination.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmp := f.Name()

	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", tmp)
	}

	err = os.Rename(tmp, path)
	if err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "renaming %s into place", tmp)
	}
	return nil
}

// SaveSpace implements store.Store.
func (s *Store) SaveSpace(_ context.Context, sp anchorhold.Space) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return errors.Wrapf(err, "encoding space %s", sp.ID)
	}
	return writeAtomic(recordPath(s.spacesRoot(), sp.ID, ".json"), data)
}

// LoadSpace implements store.Store.
func (s *Store) LoadSpace(_ context.Context, id string) (*anchorhold.Space, error) {
	data, err := os.ReadFile(recordPath(s.spacesRoot(), id, ".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading space %s", id)
	}
	var sp anchorhold.Space
	err = json.Unmarshal(data, &sp)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding space %s", id)
	}
	return &sp, nil
}

// LoadAllSpaces implements store.Store.
func (s *Store) LoadAllSpaces(ctx context.Context) ([]anchorhold.Space, error) {
	var out []anchorhold.Space
	err := s.eachRecord(s.spacesRoot(), func(data []byte) error {
		var sp anchorhold.Space
		if err := json.Unmarshal(data, &sp); err != nil {
			return errors.Wrap(err, "decoding space")
		}
		out = append(out, sp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteSpace implements store.Store.
// The space's anchor records go with it; its event log does not.
func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	anchors, err := s.LoadAnchors(ctx, id)
	if err != nil {
		return err
	}
	for _, a := range anchors {
		err = os.Remove(recordPath(s.anchorsRoot(), a.ID, ".json"))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "removing anchor %s", a.ID)
		}
	}
	err = os.Remove(recordPath(s.spacesRoot(), id, ".json"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "removing space %s", id)
	}
	return nil
}

// SaveAnchor implements store.Store.
func (s *Store) SaveAnchor(_ context.Context, a anchorhold.Anchor) error {
	data, err := json.Marshal(a)
	if err != nil {
		return errors.Wrapf(err, "encoding anchor %s", a.ID)
	}
	return writeAtomic(recordPath(s.anchorsRoot(), a.ID, ".json"), data)
}

// LoadAnchor implements store.Store.
func (s *Store) LoadAnchor(_ context.Context, id string) (*anchorhold.Anchor, error) {
	data, err := os.ReadFile(recordPath(s.anchorsRoot(), id, ".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading anchor %s", id)
	}
	var a anchorhold.Anchor
	err = json.Unmarshal(data, &a)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding anchor %s", id)
	}
	return &a, nil
}

func (s *Store) loadAnchorsWhere(keep func(anchorhold.Anchor) bool) ([]anchorhold.Anchor, error) {
	var out []anchorhold.Anchor
	err := s.eachRecord(s.anchorsRoot(), func(data []byte) error {
		var a anchorhold.Anchor
		if err := json.Unmarshal(data, &a); err != nil {
			return errors.Wrap(err, "decoding anchor")
		}
		if keep(a) {
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// LoadAnchors implements store.Store.
func (s *Store) LoadAnchors(_ context.Context, spaceID string) ([]anchorhold.Anchor, error) {
	return s.loadAnchorsWhere(func(a anchorhold.Anchor) bool { return a.SpaceID == spaceID })
}

// LoadAnchorsModifiedSince implements store.Store.
func (s *Store) LoadAnchorsModifiedSince(_ context.Context, t time.Time) ([]anchorhold.Anchor, error) {
	return s.loadAnchorsWhere(func(a anchorhold.Anchor) bool { return a.UpdatedAt.After(t) })
}

// PurgeDeletedAnchors implements store.Store.
func (s *Store) PurgeDeletedAnchors(_ context.Context, before time.Time) (int, error) {
	doomed, err := s.loadAnchorsWhere(func(a anchorhold.Anchor) bool {
		return a.DeletedAt != nil && a.DeletedAt.Before(before)
	})
	if err != nil {
		return 0, err
	}
	for _, a := range doomed {
		err = os.Remove(recordPath(s.anchorsRoot(), a.ID, ".json"))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return 0, errors.Wrapf(err, "removing anchor %s", a.ID)
		}
	}
	return len(doomed), nil
}

// AppendEvent implements store.Store.
func (s *Store) AppendEvent(_ context.Context, e anchorhold.AnchorEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encoding event %s", e.ID)
	}
	data = append(data, '\n')

	err = os.MkdirAll(s.eventsRoot(), 0755)
	if err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.eventsRoot())
	}

	path := recordPath(s.eventsRoot(), e.SpaceID, ".log")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return errors.Wrapf(err, "opening event log %s", path)
	}
	defer f.Close()

	_, err = f.Write(data)
	return errors.Wrapf(err, "appending to event log %s", path)
}

// LoadEvents implements store.Store.
func (s *Store) LoadEvents(_ context.Context, spaceID string) ([]anchorhold.AnchorEvent, error) {
	path := recordPath(s.eventsRoot(), spaceID, ".log")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "opening event log %s", path)
	}
	defer f.Close()

	var (
		out     []anchorhold.AnchorEvent
		scanner = bufio.NewScanner(f)
		badLine = -1
	)
	scanner.Buffer(nil, 16*1024*1024)
	for n := 0; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e anchorhold.AnchorEvent
		if err := json.Unmarshal(line, &e); err != nil {
			if badLine >= 0 {
				// Two undecodable lines: this is not a torn tail.
				return nil, &anchorhold.CorruptLogError{SpaceID: spaceID}
			}
			badLine = n
			continue
		}
		if badLine >= 0 {
			// A good line after a bad one: the bad one was interior.
			return nil, &anchorhold.CorruptLogError{SpaceID: spaceID}
		}
		out = append(out, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "scanning event log %s", path)
	}
	// A single undecodable final line is a torn append; the event was
	// never durably written, so it reads as absent.
	return out, nil
}

// CurrentVersion implements store.Store.
func (s *Store) CurrentVersion(ctx context.Context, anchorID, spaceID string) (int, error) {
	events, err := s.LoadEvents(ctx, spaceID)
	if err != nil {
		return 0, err
	}
	var max int
	for _, e := range events {
		if e.AnchorID == anchorID && e.Version > max {
			max = e.Version
		}
	}
	return max, nil
}

// SavePendingOperations implements store.Store.
func (s *Store) SavePendingOperations(_ context.Context, ops []anchorhold.PendingOperation) error {
	if ops == nil {
		ops = []anchorhold.PendingOperation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return errors.Wrap(err, "encoding pending operations")
	}

	err = s.flocker.Lock(s.pendingPath())
	if err != nil {
		return errors.Wrap(err, "locking pending-operations file")
	}
	defer s.flocker.Unlock(s.pendingPath())

	return writeAtomic(s.pendingPath(), data)
}

// LoadPendingOperations implements store.Store.
func (s *Store) LoadPendingOperations(_ context.Context) ([]anchorhold.PendingOperation, error) {
	data, err := os.ReadFile(s.pendingPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading pending operations")
	}
	var ops []anchorhold.PendingOperation
	err = json.Unmarshal(data, &ops)
	return ops, errors.Wrap(err, "decoding pending operations")
}

// SaveLastSync implements store.Store.
func (s *Store) SaveLastSync(_ context.Context, t time.Time) error {
	err := s.flocker.Lock(s.lastSyncPath())
	if err != nil {
		return errors.Wrap(err, "locking lastsync file")
	}
	defer s.flocker.Unlock(s.lastSyncPath())

	return writeAtomic(s.lastSyncPath(), []byte(t.UTC().Format(time.RFC3339Nano)))
}

// LoadLastSync implements store.Store.
func (s *Store) LoadLastSync(_ context.Context) (time.Time, error) {
	data, err := os.ReadFile(s.lastSyncPath())
	if errors.Is(err, os.ErrNotExist) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, "reading lastsync")
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	return t, errors.Wrap(err, "parsing lastsync")
}

// TotalSize implements store.Store.
func (s *Store) TotalSize(_ context.Context) (int64, error) {
	var total int64
	err := filepath.Walk(s.root, func(_ string, info os.FileInfo, err error) error {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	return total, errors.Wrapf(err, "walking %s", s.root)
}

// ClearAll implements store.Store.
func (s *Store) ClearAll(_ context.Context) error {
	for _, p := range []string{s.spacesRoot(), s.anchorsRoot(), s.eventsRoot(), s.pendingPath(), s.lastSyncPath()} {
		err := os.RemoveAll(p)
		if err != nil {
			return errors.Wrapf(err, "removing %s", p)
		}
	}
	return nil
}

// eachRecord calls f with the contents of each record file in dir.
// Temporary files from in-flight atomic writes are skipped.
func (s *Store) eachRecord(dir string, f func(data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", dir)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if _, err := idFromName(entry.Name(), ".json"); err != nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "reading %s", entry.Name())
		}
		if err := f(data); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (store.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}
