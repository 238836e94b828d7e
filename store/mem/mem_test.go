package mem

import (
	"context"
	"testing"

	"github.com/anchorhold/anchorhold/testutil"
)

func TestRecords(t *testing.T) {
	testutil.Records(context.Background(), t, New())
}

func TestEvents(t *testing.T) {
	testutil.Events(context.Background(), t, New())
}

func TestQueue(t *testing.T) {
	testutil.Queue(context.Background(), t, New())
}
