package protocol

import "fmt"

// Request call types (byte 0 of every request).
const (
	CallStreamAll uint8 = 1
	CallResend    uint8 = 2
)

// RequestSize is the fixed width of every client request.
const RequestSize = 2

// MaxResendSequence is the largest sequence number the 1-byte resend field
// can address. The wire format is kept as-is for server compatibility.
const MaxResendSequence = 255

// BulkRequest asks the server to stream every packet.
func BulkRequest() []byte {
	return []byte{CallStreamAll, 0}
}

// ResendRequest asks the server to resend one packet. Sequence numbers the
// 1-byte field cannot carry are rejected rather than truncated.
func ResendRequest(seq int32) ([]byte, error) {
	if seq < 0 || seq > MaxResendSequence {
		return nil, fmt.Errorf("%w: resend seq=%d max=%d", ErrSequenceOutOfRange, seq, MaxResendSequence)
	}
	return []byte{CallResend, uint8(seq)}, nil
}
