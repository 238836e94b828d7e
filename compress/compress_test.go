package compress

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	repeating := make([]byte, 10000)
	for i := range repeating {
		repeating[i] = byte('a' + i%7)
	}

	random := make([]byte, 100000)
	rng := rand.New(rand.NewSource(17))
	rng.Read(random)

	cases := []struct {
		name string
		inp  []byte
	}{
		{name: "empty", inp: nil},
		{name: "one_byte", inp: []byte{0x2a}},
		{name: "repeating", inp: repeating},
		{name: "random", inp: random},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			enc, err := Compress(c.inp, Balanced)
			if err != nil {
				t.Fatal(err)
			}
			got, err := Decompress(enc)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, c.inp) {
				t.Errorf("got %d bytes, want %d, contents differ", len(got), len(c.inp))
			}
		})
	}
}

func TestNoneIsIdentity(t *testing.T) {
	inp := []byte("some payload bytes")
	got, err := Compress(inp, None)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, inp) {
		t.Errorf("got %v, want input unchanged", got)
	}
}

func TestRepeatingInputShrinks(t *testing.T) {
	inp := bytes.Repeat([]byte("anchorhold"), 1000)
	enc, err := Compress(inp, Balanced)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc) >= len(inp) {
		t.Errorf("encoded %d bytes from %d; expected shrinkage on repeating input", len(enc), len(inp))
	}
}

func TestDecompressGarbage(t *testing.T) {
	_, err := Decompress([]byte{0xff, 0x00, 0xde, 0xad, 0xbe, 0xef})
	if !errors.Is(err, ErrDecompress) {
		t.Errorf("got %v, want ErrDecompress", err)
	}
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		s       string
		want    Level
		wantErr bool
	}{
		{s: "none", want: None},
		{s: "", want: None},
		{s: "balanced", want: Balanced},
		{s: "zippy", wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.s)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseLevel(%q): got nil error", c.s)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseLevel(%q): %s", c.s, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.s, got, c.want)
		}
	}
}
