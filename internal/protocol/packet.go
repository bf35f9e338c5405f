package protocol

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// PacketSize is the fixed width of one response packet on the wire.
const PacketSize = 17

const (
	symbolOffset   = 0
	symbolLen      = 4
	sideOffset     = 4
	sideLen        = 1
	quantityOffset = 5
	priceOffset    = 9
	sequenceOffset = 13
)

// Packet is one decoded feed record. Values are never mutated after decode.
type Packet struct {
	Symbol   string `json:"symbol"`
	Side     string `json:"buySellIndicator"`
	Quantity int32  `json:"quantity"`
	Price    int32  `json:"price"`
	Sequence int32  `json:"packetSequence"`
}

// DecodePacket validates and decodes exactly one 17-byte frame.
func DecodePacket(frame []byte) (Packet, error) {
	if len(frame) != PacketSize {
		return Packet{}, fmt.Errorf("%w: got=%d want=%d", ErrInvalidFrameSize, len(frame), PacketSize)
	}
	symbol, err := decodeText(frame, "symbol", symbolOffset, symbolLen)
	if err != nil {
		return Packet{}, err
	}
	side, err := decodeText(frame, "side", sideOffset, sideLen)
	if err != nil {
		return Packet{}, err
	}
	return Packet{
		Symbol:   strings.TrimRight(symbol, " \x00"),
		Side:     strings.Trim(side, " \x00"),
		Quantity: int32(binary.BigEndian.Uint32(frame[quantityOffset : quantityOffset+4])),
		Price:    int32(binary.BigEndian.Uint32(frame[priceOffset : priceOffset+4])),
		Sequence: int32(binary.BigEndian.Uint32(frame[sequenceOffset : sequenceOffset+4])),
	}, nil
}

// EncodePacket is the inverse of DecodePacket. Text fields are space padded.
func EncodePacket(p Packet) ([]byte, error) {
	if len(p.Symbol) > symbolLen {
		return nil, fmt.Errorf("%w: symbol %q exceeds %d bytes", ErrMalformedPacket, p.Symbol, symbolLen)
	}
	if len(p.Side) > sideLen {
		return nil, fmt.Errorf("%w: side %q exceeds %d byte", ErrMalformedPacket, p.Side, sideLen)
	}
	buf := make([]byte, PacketSize)
	copy(buf[symbolOffset:symbolOffset+symbolLen], padText(p.Symbol, symbolLen))
	copy(buf[sideOffset:sideOffset+sideLen], padText(p.Side, sideLen))
	binary.BigEndian.PutUint32(buf[quantityOffset:quantityOffset+4], uint32(p.Quantity))
	binary.BigEndian.PutUint32(buf[priceOffset:priceOffset+4], uint32(p.Price))
	binary.BigEndian.PutUint32(buf[sequenceOffset:sequenceOffset+4], uint32(p.Sequence))
	if _, err := DecodePacket(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Text fields are fixed-width ASCII; NUL is accepted as padding.
func decodeText(frame []byte, name string, offset, n int) (string, error) {
	field := frame[offset : offset+n]
	for i, b := range field {
		if b >= 0x80 || (b < 0x20 && b != 0) || b == 0x7f {
			return "", fmt.Errorf("%w: field=%s offset=%d byte=0x%02x", ErrMalformedPacket, name, offset+i, b)
		}
	}
	return string(field), nil
}

func padText(s string, n int) string {
	return s + strings.Repeat(" ", n-len(s))
}
