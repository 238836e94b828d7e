package logging

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/anchorhold/anchorhold/store/mem"
	"github.com/anchorhold/anchorhold/testutil"
)

func TestLogging(t *testing.T) {
	orig := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(orig)

	ctx := context.Background()
	t.Run("records", func(t *testing.T) { testutil.Records(ctx, t, New(mem.New())) })
	t.Run("events", func(t *testing.T) { testutil.Events(ctx, t, New(mem.New())) })
	t.Run("queue", func(t *testing.T) { testutil.Queue(ctx, t, New(mem.New())) })
}
