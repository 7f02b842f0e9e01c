package quic

import "errors"

// MaxCIDLen is the largest connection ID QUIC allows on the wire.
const MaxCIDLen = 20

var errCIDTooLong = errors.New("quic: connection id longer than 20 bytes")

// ConnectionID is a small value type, never a heap reference: design
// note in the spec calls out that a variable-length CID embedded in a
// fixed-size array avoids allocation on the hot parse path. Equality
// is byte-wise; the zero-length value is the "null" id, meaning
// address-based lookup only.
type ConnectionID struct {
	len  uint8
	data [MaxCIDLen]byte
}

// NewConnectionID copies b into a ConnectionID. b must be 0..20 bytes.
func NewConnectionID(b []byte) (ConnectionID, error) {
	var c ConnectionID
	if len(b) > MaxCIDLen {
		return c, errCIDTooLong
	}
	c.len = uint8(len(b))
	copy(c.data[:], b)
	return c, nil
}

// Len returns the length of the connection id in bytes.
func (c ConnectionID) Len() int { return int(c.len) }

// Bytes returns the connection id's bytes. The returned slice aliases
// the receiver's backing array; callers must not retain it past the
// receiver's lifetime if the receiver is subsequently reused.
func (c ConnectionID) Bytes() []byte { return c.data[:c.len] }

// IsNull reports whether this is the zero-length sentinel connection
// id ("address-based lookup only").
func (c ConnectionID) IsNull() bool { return c.len == 0 }

// Equal reports byte-wise equality.
func (c ConnectionID) Equal(other ConnectionID) bool {
	if c.len != other.len {
		return false
	}
	return c.data == other.data
}

// key returns a comparable value suitable as a map key, without
// allocating a string for every lookup on the hot path... though Go
// map keys of fixed arrays are themselves comparable, so the whole
// struct can be used directly; key exists for readability at call
// sites that index the registry.
func (c ConnectionID) key() ConnectionID { return c }

// parseConnectionID reads an L-byte connection id starting at data[0],
// where L is supplied by the caller (either read from a preceding
// length byte for long headers, or implied by local context for short
// headers). Returns the id and bytes consumed, or consumed == 0 if
// data is too short.
func parseConnectionID(data []byte, l int) (ConnectionID, int) {
	var c ConnectionID
	if l > MaxCIDLen || len(data) < l {
		return c, 0
	}
	c.len = uint8(l)
	copy(c.data[:], data[:l])
	return c, l
}

// appendConnectionID appends a length-prefixed connection id to buf
// (the long-header on-wire form: one length byte followed by the id).
func appendConnectionID(buf []byte, c ConnectionID) []byte {
	buf = append(buf, c.len)
	return append(buf, c.data[:c.len]...)
}
