// Package compress is the codec applied to large payload blobs
// on their way into and out of storage.
package compress

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Level selects how much work the codec does.
type Level int

const (
	// None stores bytes untouched: Compress is the identity function.
	None Level = iota

	// Balanced applies a deflate transform,
	// trading some CPU for smaller records.
	Balanced
)

func (l Level) String() string {
	switch l {
	case None:
		return "none"
	case Balanced:
		return "balanced"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// ParseLevel maps the configuration strings "none" and "balanced" to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none", "":
		return None, nil
	case "balanced":
		return Balanced, nil
	}
	return None, fmt.Errorf("unknown compression level %q", s)
}

// ErrCompress is the error for encoder-side failures.
var ErrCompress = errors.New("compression failed")

// ErrDecompress is the error for decoder-side failures,
// including output growth running out before the stream ends.
var ErrDecompress = errors.New("decompression failed")

const (
	initialBufSize = 64 * 1024
	maxBufSize     = 1 << 30
)

// Compress encodes inp at the given level.
// With None it returns inp unchanged.
// Decompress(Compress(x, Balanced)) == x for every byte sequence,
// including the empty one.
func Compress(inp []byte, level Level) ([]byte, error) {
	if level == None {
		return inp, nil
	}

	buf := new(bytes.Buffer)
	w, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return nil, errors.Wrap(err, "creating flate writer")
	}
	if _, err = w.Write(inp); err != nil {
		return nil, errors.Wrapf(ErrCompress, "writing %d bytes: %s", len(inp), err)
	}
	if err = w.Close(); err != nil {
		return nil, errors.Wrapf(ErrCompress, "flushing: %s", err)
	}

	out := buf.Bytes()
	if len(out) == 0 && len(inp) > 0 {
		return nil, errors.Wrapf(ErrCompress, "empty encoded output for %d input bytes", len(inp))
	}
	return out, nil
}

// Decompress decodes a Balanced-compressed byte sequence.
// The original size is not known in advance,
// so the output buffer grows progressively;
// if growth is exhausted before the stream ends,
// Decompress fails with ErrDecompress rather than truncating.
func Decompress(inp []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(inp))
	defer r.Close()

	out := make([]byte, initialBufSize)
	var n int
	for {
		if n == len(out) {
			if len(out) >= maxBufSize {
				return nil, errors.Wrapf(ErrDecompress, "output exceeds %d bytes", maxBufSize)
			}
			size := len(out) * 2
			if size > maxBufSize {
				size = maxBufSize
			}
			grown := make([]byte, size)
			copy(grown, out)
			out = grown
		}

		m, err := r.Read(out[n:])
		n += m
		if err == io.EOF {
			return out[:n], nil
		}
		if err != nil {
			return nil, errors.Wrapf(ErrDecompress, "after %d bytes: %s", n, err)
		}
	}
}
