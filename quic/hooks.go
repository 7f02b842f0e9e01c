package quic

import "net/netip"

// FrameDecoder is the external collaborator that turns a decrypted
// payload into protocol events. The core guarantees payload is
// exactly the decrypted application-data slice and that epoch
// matches the key context used to produce it.
type FrameDecoder interface {
	DecodeFrames(conn *Connection, payload []byte, epoch Epoch, receiveTime int64, path *Path) error
}

// TLSEngine is the external collaborator that owns the CRYPTO stream
// and the handshake secrets. The core calls it after admitting a
// packet carrying handshake bytes, and polls HandshakeComplete to
// drive the ClientHandshakeStart/ServerHandshake transitions and the
// Initial-space implicit-ack rule.
type TLSEngine interface {
	ProcessCryptoStream(conn *Connection) error
	HandshakeComplete(conn *Connection) bool
}

// Callbacks is the up-call surface: Ready fires once on handshake
// completion, StatelessReset fires once when a reset is detected and
// applied, Segment fires once per processed coalesced segment with its
// outcome kind, and ConnectionCreated fires once a server-side Initial
// has fully admitted and committed to the registry. The Endpoint calls
// these without a nil check; NewEndpoint installs a no-op
// implementation, so Endpoint.Callbacks must not be set to nil.
type Callbacks interface {
	OnReady(conn *Connection)
	OnStatelessReset(conn *Connection)
	OnSegment(kind Kind)
	OnConnectionCreated(conn *Connection)
}

// SendQueue is the non-blocking collaborator stateless responses
// (Version Negotiation, Retry, Stateless Reset) are hander off to.
// The core never blocks on I/O; Enqueue must not block either.
type SendQueue interface {
	Enqueue(dest netip.AddrPort, datagram []byte)
}

// noopCallbacks is the default Callbacks used when an Endpoint is
// constructed without one, so call sites never need a nil check.
type noopCallbacks struct{}

func (noopCallbacks) OnReady(*Connection)            {}
func (noopCallbacks) OnStatelessReset(*Connection)    {}
func (noopCallbacks) OnSegment(Kind)                 {}
func (noopCallbacks) OnConnectionCreated(*Connection) {}
