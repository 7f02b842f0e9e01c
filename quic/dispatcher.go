package quic

import (
	"log"
	"net/netip"
)

// Endpoint is the entry point: one value per UDP socket, holding the
// configuration, the connection registry, and the external
// collaborators named in §6. It has no package-level state — per
// design note, every operation takes the endpoint by reference
// instead of reaching for a singleton.
type Endpoint struct {
	Config    *EndpointConfig
	Registry  *Registry
	Frames    FrameDecoder
	TLS       TLSEngine
	Callbacks Callbacks
	Send      SendQueue
	Logger    *log.Logger
}

// NewEndpoint wires the required collaborators. Callbacks defaults to
// a no-op implementation so OnReady/OnStatelessReset never need a nil
// check at the call site; Logger defaults to log.Default().
func NewEndpoint(cfg *EndpointConfig, registry *Registry, frames FrameDecoder, tls TLSEngine, send SendQueue) *Endpoint {
	return &Endpoint{
		Config:    cfg,
		Registry:  registry,
		Frames:    frames,
		TLS:       tls,
		Callbacks: noopCallbacks{},
		Send:      send,
		Logger:    log.Default(),
	}
}

// Incoming is the one entry point that consumes a datagram and
// returns when all of its coalesced segments are either processed,
// dropped, or have caused a fatal connection error. It drives
// B->C->E->D->G->H in the order the segment dispatcher component
// specifies: parse header (C, using varint/CID primitives from A),
// look up the connection (E), remove header protection and decrypt
// (D), admit by packet type (G), then record into the duplicate/ack
// bookkeeping (H).
//
// now is the receive timestamp in the driver's clock units, threaded
// through to frame decode and path bandwidth accounting.
func (e *Endpoint) Incoming(data []byte, raddr netip.AddrPort, now int64) {
	datagramLen := len(data)
	pos := 0
	var firstDCID ConnectionID
	for pos < len(data) {
		segment := data[pos:]
		hdr := ParseHeader(segment, raddr, e.Config)

		consumed := segmentLength(segment, &hdr)
		if consumed <= 0 {
			consumed = len(segment)
		}

		if pos == 0 {
			firstDCID = hdr.DestCID
		} else if e.Config.EnforceCoalescedCIDCheck && !hdr.DestCID.Equal(firstDCID) {
			out := outcome(KindCnxIdCheck, errCoalescedCIDMismatch)
			e.Logger.Printf("quic: dropped segment from %s: %s", raddr, out)
			e.Callbacks.OnSegment(out.Kind())
			pos += consumed
			continue
		}

		out := e.dispatchSegment(segment, &hdr, raddr, now, datagramLen)
		if out.Kind() != KindOK && out.Kind() != KindRetry {
			e.Logger.Printf("quic: dropped segment from %s: %s", raddr, out)
		}
		e.Callbacks.OnSegment(out.Kind())

		pos += consumed
	}
}

// segmentLength computes how many bytes of data this segment occupies
// so the dispatcher can advance to the next coalesced segment. Long
// headers with an explicit payload-length field are bounded by
// PNOffset+PayloadLength (read before header protection removal
// shrinks PayloadLength by the PN length); every other form — Retry,
// Version Negotiation, short header, and a header the parser could
// not make sense of — always runs to the end of the datagram, since
// none of them carry a length field.
func segmentLength(segment []byte, hdr *PacketHeader) int {
	switch hdr.Type {
	case PacketInitial, PacketZeroRTT, PacketHandshake:
		return int(hdr.PNOffset) + int(hdr.PayloadLength)
	default:
		return len(segment)
	}
}

// dispatchSegment selects and runs the per-type handler, after the
// connection-lookup step common to every type.
func (e *Endpoint) dispatchSegment(segment []byte, hdr *PacketHeader, raddr netip.AddrPort, now int64, datagramLen int) *Outcome {
	switch hdr.Type {
	case PacketError:
		if hdr.VersionIndex < 0 && hdr.Version != 0 {
			e.emitVersionNegotiation(hdr, raddr)
			return outcome(KindUnsupportedVersion, nil)
		}
		return outcome(KindMalformed, errTruncatedHeader)

	case PacketVersionNegotiation:
		return e.handleVersionNegotiation(segment, hdr, raddr)

	case PacketInitial:
		conn, found := e.lookupConnection(hdr, raddr)
		return e.handleInitial(segment, hdr, raddr, now, datagramLen, conn, found)

	case PacketZeroRTT:
		conn, found := e.lookupConnection(hdr, raddr)
		if !found {
			return outcome(KindCnxIdCheck, nil)
		}
		return e.handleZeroRTT(segment, hdr, now, conn)

	case PacketHandshake:
		conn, found := e.lookupConnection(hdr, raddr)
		if !found {
			return outcome(KindCnxIdCheck, nil)
		}
		return e.handleHandshake(segment, hdr, now, conn)

	case PacketRetry:
		conn, found := e.lookupConnection(hdr, raddr)
		if !found {
			return outcome(KindCnxIdCheck, nil)
		}
		return e.handleRetry(segment, hdr, conn)

	case PacketOneRttPhase0, PacketOneRttPhase1:
		conn, found := e.lookupConnection(hdr, raddr)
		if !found {
			return e.tryStatelessReset(segment, raddr)
		}
		return e.handleOneRTT(segment, hdr, raddr, now, conn)

	default:
		return outcome(KindDetected, nil)
	}
}

// lookupConnection implements the ordered connection-lookup policy:
// (1) by DCID if nonzero, (2) by peer address for Initial/0-RTT whose
// DCID still matches that connection's initial_cid, (3) by peer
// address for short-header packets when the endpoint issues
// zero-length local CIDs. Any address match that contradicts the
// packet's expected identification rules is discarded rather than
// returned.
func (e *Endpoint) lookupConnection(hdr *PacketHeader, raddr netip.AddrPort) (*Connection, bool) {
	if !hdr.DestCID.IsNull() {
		if conn, ok := e.Registry.ByID(hdr.DestCID); ok {
			return conn, true
		}
	}

	switch hdr.Type {
	case PacketInitial, PacketZeroRTT:
		if conn, ok := e.Registry.ByAddr(raddr); ok {
			if conn.InitialCID.Equal(hdr.DestCID) {
				return conn, true
			}
		}
	case PacketOneRttPhase0, PacketOneRttPhase1:
		if e.Config.LocalCIDLen == 0 {
			if conn, ok := e.Registry.ByAddr(raddr); ok {
				return conn, true
			}
		}
	}

	return nil, false
}
