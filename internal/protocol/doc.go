// Package protocol owns the market feed wire contract.
//
// Ownership boundary:
// - 17-byte packet layout and decode/encode primitives
// - 2-byte request payloads (stream-all, resend)
// - frame-level error taxonomy
//
// Framing of the inbound byte stream lives in protocol/frame; session
// control and gap recovery live in protocol/session.
package protocol
