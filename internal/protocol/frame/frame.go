// Package frame splits an inbound byte stream into fixed-size frames.
package frame

import "iter"

// Decoder buffers partial tails between chunks. It is owned by exactly one
// connection's read loop and is not safe for concurrent use.
type Decoder struct {
	size int
	buf  []byte
	off  int
}

func NewDecoder(size int) *Decoder {
	if size <= 0 {
		panic("frame: decoder size must be positive")
	}
	return &Decoder{size: size}
}

// Feed appends chunk to the buffer and returns the complete frames now
// available. A yielded frame aliases the decoder buffer and is only valid
// until the iterator advances. Frames left unconsumed when the caller stops
// early remain buffered for the next Feed.
func (d *Decoder) Feed(chunk []byte) iter.Seq[[]byte] {
	d.buf = append(d.buf, chunk...)
	return func(yield func([]byte) bool) {
		defer d.compact()
		for len(d.buf)-d.off >= d.size {
			f := d.buf[d.off : d.off+d.size : d.off+d.size]
			d.off += d.size
			if !yield(f) {
				return
			}
		}
	}
}

// Buffered reports how many bytes are waiting for a complete frame.
func (d *Decoder) Buffered() int {
	return len(d.buf) - d.off
}

// Reset drops any buffered bytes so the decoder can serve a new stream.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
}

func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	n := copy(d.buf, d.buf[d.off:])
	d.buf = d.buf[:n]
	d.off = 0
}
