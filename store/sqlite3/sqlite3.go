// Package sqlite3 implements a record store in a Sqlite database.
package sqlite3

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrs "errors"
	"time"

	"github.com/bobg/sqlutil"
	_ "github.com/mattn/go-sqlite3" // register the sqlite3 type for sql.Open
	"github.com/pkg/errors"

	"github.com/anchorhold/anchorhold"
	"github.com/anchorhold/anchorhold/store"
)

var _ store.Store = &Store{}

// Store is a Sqlite-based record store.
// Records are stored as JSON blobs;
// the columns used for filtering
// (parent space, modification and deletion instants, event version)
// are broken out and indexed.
// Event insertion order is the autoincrement seq column.
type Store struct {
	db *sql.DB
}

// Schema is the SQL that New executes.
// It creates the tables and indexes if they do not exist.
// (If they do exist, they must have the columns, constraints, and indexing described here.)
const Schema = `
CREATE TABLE IF NOT EXISTS spaces (
  id TEXT PRIMARY KEY NOT NULL,
  data BLOB NOT NULL,
  updated_ns INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS anchors (
  id TEXT PRIMARY KEY NOT NULL,
  space_id TEXT NOT NULL,
  data BLOB NOT NULL,
  updated_ns INTEGER NOT NULL,
  deleted_ns INTEGER
);

CREATE INDEX IF NOT EXISTS anchor_space_idx ON anchors (space_id);
CREATE INDEX IF NOT EXISTS anchor_updated_idx ON anchors (updated_ns);

CREATE TABLE IF NOT EXISTS events (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  anchor_id TEXT NOT NULL,
  space_id TEXT NOT NULL,
  version INTEGER NOT NULL,
  data BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS event_space_idx ON events (space_id, seq);
CREATE INDEX IF NOT EXISTS event_anchor_idx ON events (anchor_id, version);

CREATE TABLE IF NOT EXISTS pending (
  id INTEGER PRIMARY KEY CHECK (id = 0),
  data BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
  key TEXT PRIMARY KEY NOT NULL,
  value TEXT NOT NULL
);
`

// New produces a new Store using `db` for storage.
// It expects to create the schema tables,
// or for them already to exist in the correct shape.
// (See variable Schema.)
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	_, err := db.ExecContext(ctx, Schema)
	return &Store{db: db}, err
}

// SaveSpace implements store.Store.
func (s *Store) SaveSpace(ctx context.Context, sp anchorhold.Space) error {
	data, err := json.Marshal(sp)
	if err != nil {
		return errors.Wrapf(err, "encoding space %s", sp.ID)
	}

	const q = `
		INSERT INTO spaces (id, data, updated_ns) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_ns = excluded.updated_ns`

	_, err = s.db.ExecContext(ctx, q, sp.ID, data, sp.UpdatedAt.UnixNano())
	return errors.Wrapf(err, "upserting space %s", sp.ID)
}

// LoadSpace implements store.Store.
func (s *Store) LoadSpace(ctx context.Context, id string) (*anchorhold.Space, error) {
	const q = `SELECT data FROM spaces WHERE id = $1`

	var data []byte
	err := s.db.QueryRowContext(ctx, q, id).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "querying space %s", id)
	}
	var sp anchorhold.Space
	err = json.Unmarshal(data, &sp)
	return &sp, errors.Wrapf(err, "decoding space %s", id)
}

// LoadAllSpaces implements store.Store.
func (s *Store) LoadAllSpaces(ctx context.Context) ([]anchorhold.Space, error) {
	const q = `SELECT data FROM spaces ORDER BY id`

	var out []anchorhold.Space
	err := sqlutil.ForQueryRows(ctx, s.db, q, func(data []byte) error {
		var sp anchorhold.Space
		if err := json.Unmarshal(data, &sp); err != nil {
			return errors.Wrap(err, "decoding space")
		}
		out = append(out, sp)
		return nil
	})
	return out, errors.Wrap(err, "querying spaces")
}

// DeleteSpace implements store.Store.
// The space's anchor rows go with it; its event rows do not.
func (s *Store) DeleteSpace(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning tx")
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM anchors WHERE space_id = $1`, id); err != nil {
		return errors.Wrapf(err, "deleting anchors of space %s", id)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM spaces WHERE id = $1`, id); err != nil {
		return errors.Wrapf(err, "deleting space %s", id)
	}
	return errors.Wrap(tx.Commit(), "committing")
}

// SaveAnchor implements store.Store.
func (s *Store) SaveAnchor(ctx context.Context, a anchorhold.Anchor) error {
	data, err := json.Marshal(a)
	if err != nil {
		return errors.Wrapf(err, "encoding anchor %s", a.ID)
	}

	var deletedNS *int64
	if a.DeletedAt != nil {
		ns := a.DeletedAt.UnixNano()
		deletedNS = &ns
	}

	const q = `
		INSERT INTO anchors (id, space_id, data, updated_ns, deleted_ns) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			space_id = excluded.space_id,
			data = excluded.data,
			updated_ns = excluded.updated_ns,
			deleted_ns = excluded.deleted_ns`

	_, err = s.db.ExecContext(ctx, q, a.ID, a.SpaceID, data, a.UpdatedAt.UnixNano(), deletedNS)
	return errors.Wrapf(err, "upserting anchor %s", a.ID)
}

// LoadAnchor implements store.Store.
func (s *Store) LoadAnchor(ctx context.Context, id string) (*anchorhold.Anchor, error) {
	const q = `SELECT data FROM anchors WHERE id = $1`

	var data []byte
	err := s.db.QueryRowContext(ctx, q, id).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "querying anchor %s", id)
	}
	var a anchorhold.Anchor
	err = json.Unmarshal(data, &a)
	return &a, errors.Wrapf(err, "decoding anchor %s", id)
}

func (s *Store) queryAnchors(ctx context.Context, q string, args ...interface{}) ([]anchorhold.Anchor, error) {
	var out []anchorhold.Anchor
	args = append(args, func(data []byte) error {
		var a anchorhold.Anchor
		if err := json.Unmarshal(data, &a); err != nil {
			return errors.Wrap(err, "decoding anchor")
		}
		out = append(out, a)
		return nil
	})
	err := sqlutil.ForQueryRows(ctx, s.db, q, args...)
	return out, errors.Wrap(err, "querying anchors")
}

// LoadAnchors implements store.Store.
func (s *Store) LoadAnchors(ctx context.Context, spaceID string) ([]anchorhold.Anchor, error) {
	const q = `SELECT data FROM anchors WHERE space_id = $1 ORDER BY id`
	return s.queryAnchors(ctx, q, spaceID)
}

// LoadAnchorsModifiedSince implements store.Store.
func (s *Store) LoadAnchorsModifiedSince(ctx context.Context, t time.Time) ([]anchorhold.Anchor, error) {
	const q = `SELECT data FROM anchors WHERE updated_ns > $1 ORDER BY id`
	return s.queryAnchors(ctx, q, t.UnixNano())
}

// PurgeDeletedAnchors implements store.Store.
func (s *Store) PurgeDeletedAnchors(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM anchors WHERE deleted_ns IS NOT NULL AND deleted_ns < $1`

	res, err := s.db.ExecContext(ctx, q, before.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "purging anchors")
	}
	aff, err := res.RowsAffected()
	return int(aff), errors.Wrap(err, "counting affected rows")
}

// AppendEvent implements store.Store.
func (s *Store) AppendEvent(ctx context.Context, e anchorhold.AnchorEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "encoding event %s", e.ID)
	}

	const q = `INSERT INTO events (id, anchor_id, space_id, version, data) VALUES ($1, $2, $3, $4, $5)`

	_, err = s.db.ExecContext(ctx, q, e.ID, e.AnchorID, e.SpaceID, e.Version, data)
	return errors.Wrapf(err, "inserting event %s", e.ID)
}

// LoadEvents implements store.Store.
func (s *Store) LoadEvents(ctx context.Context, spaceID string) ([]anchorhold.AnchorEvent, error) {
	const q = `SELECT data FROM events WHERE space_id = $1 ORDER BY seq`

	var out []anchorhold.AnchorEvent
	err := sqlutil.ForQueryRows(ctx, s.db, q, spaceID, func(data []byte) error {
		var e anchorhold.AnchorEvent
		if err := json.Unmarshal(data, &e); err != nil {
			return errors.Wrap(err, "decoding event")
		}
		out = append(out, e)
		return nil
	})
	return out, errors.Wrapf(err, "querying events of space %s", spaceID)
}

// CurrentVersion implements store.Store.
func (s *Store) CurrentVersion(ctx context.Context, anchorID, spaceID string) (int, error) {
	const q = `SELECT COALESCE(MAX(version), 0) FROM events WHERE anchor_id = $1 AND space_id = $2`

	var v int
	err := s.db.QueryRowContext(ctx, q, anchorID, spaceID).Scan(&v)
	return v, errors.Wrapf(err, "querying version of anchor %s", anchorID)
}

// SavePendingOperations implements store.Store.
func (s *Store) SavePendingOperations(ctx context.Context, ops []anchorhold.PendingOperation) error {
	if ops == nil {
		ops = []anchorhold.PendingOperation{}
	}
	data, err := json.Marshal(ops)
	if err != nil {
		return errors.Wrap(err, "encoding pending operations")
	}

	const q = `
		INSERT INTO pending (id, data) VALUES (0, $1)
		ON CONFLICT (id) DO UPDATE SET data = excluded.data`

	_, err = s.db.ExecContext(ctx, q, data)
	return errors.Wrap(err, "upserting pending operations")
}

// LoadPendingOperations implements store.Store.
func (s *Store) LoadPendingOperations(ctx context.Context) ([]anchorhold.PendingOperation, error) {
	const q = `SELECT data FROM pending WHERE id = 0`

	var data []byte
	err := s.db.QueryRowContext(ctx, q).Scan(&data)
	if stderrs.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "querying pending operations")
	}
	var ops []anchorhold.PendingOperation
	err = json.Unmarshal(data, &ops)
	return ops, errors.Wrap(err, "decoding pending operations")
}

// SaveLastSync implements store.Store.
func (s *Store) SaveLastSync(ctx context.Context, t time.Time) error {
	const q = `
		INSERT INTO meta (key, value) VALUES ('last_sync', $1)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`

	_, err := s.db.ExecContext(ctx, q, t.UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "upserting last sync")
}

// LoadLastSync implements store.Store.
func (s *Store) LoadLastSync(ctx context.Context) (time.Time, error) {
	const q = `SELECT value FROM meta WHERE key = 'last_sync'`

	var str string
	err := s.db.QueryRowContext(ctx, q).Scan(&str)
	if stderrs.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, "querying last sync")
	}
	t, err := time.Parse(time.RFC3339Nano, str)
	return t, errors.Wrapf(err, "parsing last sync %s", str)
}

// TotalSize implements store.Store.
func (s *Store) TotalSize(ctx context.Context) (int64, error) {
	const q = `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`

	var size int64
	err := s.db.QueryRowContext(ctx, q).Scan(&size)
	return size, errors.Wrap(err, "querying database size")
}

// ClearAll implements store.Store.
func (s *Store) ClearAll(ctx context.Context) error {
	for _, q := range []string{
		`DELETE FROM spaces`,
		`DELETE FROM anchors`,
		`DELETE FROM events`,
		`DELETE FROM pending`,
		`DELETE FROM meta`,
	} {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return errors.Wrapf(err, "executing %s", q)
		}
	}
	return nil
}

func init() {
	store.Register("sqlite3", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		conn, ok := conf["conn"].(string)
		if !ok {
			return nil, errors.New(`missing "conn" parameter`)
		}
		db, err := sql.Open("sqlite3", conn)
		if err != nil {
			return nil, errors.Wrap(err, "opening db")
		}
		return New(ctx, db)
	})
}
