package pg

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"

	"github.com/anchorhold/anchorhold/testutil"
)

// To run these tests,
// set ANCHORHOLD_PG_TESTING_CONN to a Postgres connection string,
// e.g. "host=/run/postgresql dbname=anchorhold_test sslmode=disable".
// The database's contents are destroyed by the tests.
func newTestStore(ctx context.Context, t *testing.T) *Store {
	t.Helper()
	conn := os.Getenv("ANCHORHOLD_PG_TESTING_CONN")
	if conn == "" {
		t.Skipf("set ANCHORHOLD_PG_TESTING_CONN to run this test")
	}
	db, err := sql.Open("postgres", conn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := New(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if err = s.ClearAll(ctx); err != nil {
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
