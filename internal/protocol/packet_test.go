package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func rawFrame(symbol string, side byte, qty, price, seq int32) []byte {
	buf := make([]byte, PacketSize)
	copy(buf[0:4], symbol)
	buf[4] = side
	binary.BigEndian.PutUint32(buf[5:9], uint32(qty))
	binary.BigEndian.PutUint32(buf[9:13], uint32(price))
	binary.BigEndian.PutUint32(buf[13:17], uint32(seq))
	return buf
}

func TestDecodePacketFields(t *testing.T) {
	p, err := DecodePacket(rawFrame("MSFT", 'B', 50, 100, 1))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := Packet{Symbol: "MSFT", Side: "B", Quantity: 50, Price: 100, Sequence: 1}
	if p != want {
		t.Fatalf("unexpected packet got=%+v want=%+v", p, want)
	}
}

func TestDecodePacketTrimsPadding(t *testing.T) {
	p, err := DecodePacket(rawFrame("GE  ", ' ', 1, 2, 3))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Symbol != "GE" || p.Side != "" {
		t.Fatalf("padding not trimmed: %+v", p)
	}

	nul := rawFrame("AB", 'S', 1, 2, 3)
	p, err = DecodePacket(nul)
	if err != nil {
		t.Fatalf("decode nul padded: %v", err)
	}
	if p.Symbol != "AB" {
		t.Fatalf("nul padding not trimmed: %q", p.Symbol)
	}
}

func TestDecodePacketInvalidSize(t *testing.T) {
	for _, n := range []int{0, 16, 18} {
		_, err := DecodePacket(make([]byte, n))
		if !errors.Is(err, ErrInvalidFrameSize) {
			t.Fatalf("len=%d expected ErrInvalidFrameSize, got %v", n, err)
		}
	}
}

func TestDecodePacketMalformedText(t *testing.T) {
	frame := rawFrame("AAPL", 'B', 1, 2, 3)
	frame[2] = 0xff
	if _, err := DecodePacket(frame); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket, got %v", err)
	}
	frame = rawFrame("AAPL", 0x07, 1, 2, 3)
	if _, err := DecodePacket(frame); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket for control byte, got %v", err)
	}
}

func TestPacketNumericRoundTrip(t *testing.T) {
	cases := []Packet{
		{Symbol: "AAPL", Side: "B", Quantity: 1, Price: 1, Sequence: 1},
		{Symbol: "META", Side: "S", Quantity: -50, Price: -1, Sequence: 14},
		{Symbol: "X", Side: "B", Quantity: 2147483647, Price: -2147483648, Sequence: 255},
		{Symbol: "AMZN", Side: "S", Quantity: 0, Price: 0, Sequence: -7},
	}
	for _, in := range cases {
		wire, err := EncodePacket(in)
		if err != nil {
			t.Fatalf("encode %+v: %v", in, err)
		}
		out, err := DecodePacket(wire)
		if err != nil {
			t.Fatalf("decode %+v: %v", in, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch got=%+v want=%+v", out, in)
		}
		again, err := EncodePacket(out)
		if err != nil {
			t.Fatalf("re-encode: %v", err)
		}
		if !bytes.Equal(wire, again) {
			t.Fatalf("re-encode mismatch seq=%d", in.Sequence)
		}
	}
}

func TestEncodePacketRejectsOversizedText(t *testing.T) {
	if _, err := EncodePacket(Packet{Symbol: "GOOGL", Side: "B"}); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket for symbol, got %v", err)
	}
	if _, err := EncodePacket(Packet{Symbol: "GOOG", Side: "BS"}); !errors.Is(err, ErrMalformedPacket) {
		t.Fatalf("expected ErrMalformedPacket for side, got %v", err)
	}
}
