package frame

import (
	"bytes"
	"testing"
)

func stream(n, size int) []byte {
	out := make([]byte, n*size)
	for i := range out {
		out[i] = byte(i % 251)
	}
	return out
}

func collect(d *Decoder, chunk []byte) [][]byte {
	var out [][]byte
	for f := range d.Feed(chunk) {
		out = append(out, bytes.Clone(f))
	}
	return out
}

func chunked(data []byte, step, size int) [][]byte {
	d := NewDecoder(size)
	var out [][]byte
	for start := 0; start < len(data); start += step {
		end := min(start+step, len(data))
		out = append(out, collect(d, data[start:end])...)
	}
	return out
}

func TestFeedChunkBoundariesDoNotAffectFraming(t *testing.T) {
	const size = 17
	data := append(stream(9, size), 1, 2, 3)

	whole := collect(NewDecoder(size), data)
	if len(whole) != 9 {
		t.Fatalf("unexpected frame count=%d", len(whole))
	}
	for _, step := range []int{1, 2, 5, 16, 17, 18, 33, 64, len(data)} {
		got := chunked(data, step, size)
		if len(got) != len(whole) {
			t.Fatalf("step=%d frame count got=%d want=%d", step, len(got), len(whole))
		}
		for i := range got {
			if !bytes.Equal(got[i], whole[i]) {
				t.Fatalf("step=%d frame %d mismatch", step, i)
			}
		}
	}
}

func TestFeedRetainsRemainder(t *testing.T) {
	d := NewDecoder(4)
	if got := collect(d, []byte{1, 2, 3}); len(got) != 0 {
		t.Fatalf("expected no frames, got %d", len(got))
	}
	if d.Buffered() != 3 {
		t.Fatalf("unexpected buffered=%d", d.Buffered())
	}
	got := collect(d, []byte{4, 5})
	if len(got) != 1 || !bytes.Equal(got[0], []byte{1, 2, 3, 4}) {
		t.Fatalf("unexpected frames: %v", got)
	}
	if d.Buffered() != 1 {
		t.Fatalf("unexpected buffered=%d", d.Buffered())
	}
}

func TestFeedEarlyStopKeepsFrames(t *testing.T) {
	d := NewDecoder(2)
	for f := range d.Feed([]byte{1, 2, 3, 4, 5, 6}) {
		if !bytes.Equal(f, []byte{1, 2}) {
			t.Fatalf("unexpected first frame: %v", f)
		}
		break
	}
	if d.Buffered() != 4 {
		t.Fatalf("unexpected buffered after early stop=%d", d.Buffered())
	}
	got := collect(d, nil)
	if len(got) != 2 || !bytes.Equal(got[1], []byte{5, 6}) {
		t.Fatalf("unexpected remaining frames: %v", got)
	}
}

func TestFeedAccumulatesWithoutIteration(t *testing.T) {
	d := NewDecoder(3)
	_ = d.Feed([]byte{1, 2})
	got := collect(d, []byte{3})
	if len(got) != 1 || !bytes.Equal(got[0], []byte{1, 2, 3}) {
		t.Fatalf("unexpected frames: %v", got)
	}
}

func TestReset(t *testing.T) {
	d := NewDecoder(3)
	_ = collect(d, []byte{1, 2})
	d.Reset()
	if d.Buffered() != 0 {
		t.Fatalf("expected empty buffer after reset")
	}
}
