package protocol

import "errors"

var (
	ErrInvalidFrameSize   = errors.New("protocol: invalid frame size")
	ErrMalformedPacket    = errors.New("protocol: malformed packet")
	ErrSequenceOutOfRange = errors.New("protocol: sequence out of range")
)
