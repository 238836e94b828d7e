package sqlite3

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anchorhold/anchorhold/testutil"
)

func newTestStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "anchorhold.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRecords(t *testing.T) {
	ctx := context.Background()
	testutil.Records(ctx, t, newTestStore(ctx, t))
}

func TestEvents(t *testing.T) {
	ctx := context.Background()
	testutil.Events(ctx, t, newTestStore(ctx, t))
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	testutil.Queue(ctx, t, newTestStore(ctx, t))
}
