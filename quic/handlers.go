package quic

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"
)

// defaultPathValidationTimeout bounds how long a path challenge
// stays armed before the path is considered unvalidated; a real RTT
// estimate belongs to the loss-recovery collaborator, out of scope
// here, so ingress uses this fixed placeholder.
const defaultPathValidationTimeout int64 = 3_000_000_000 // 3s in ns

// handleVersionNegotiation implements §4.7.1: valid only while the
// client is in ClientInitSent. The body is a list of 32-bit versions;
// the client picks the first one it also supports.
func (e *Endpoint) handleVersionNegotiation(segment []byte, hdr *PacketHeader, raddr netip.AddrPort) *Outcome {
	conn, found := e.lookupConnection(hdr, raddr)
	if !found {
		return outcome(KindCnxIdCheck, nil)
	}
	if conn.State != StateClientInitSent {
		return outcome(KindUnexpectedPacket, nil)
	}

	body := segment[hdr.Offset:]
	chosen := -1
	for i := 0; i+4 <= len(body); i += 4 {
		v := binary.BigEndian.Uint32(body[i : i+4])
		if idx := e.Config.versionIndex(v); idx >= 0 {
			chosen = idx
			break
		}
	}
	if chosen < 0 {
		conn.State = StateDisconnected
		return outcome(KindDetected, nil)
	}

	conn.VersionIndex = chosen
	if newState, ok := conn.State.onVersionNegotiation(); ok {
		conn.State = newState
	}
	return outcome(KindOK, nil)
}

// handleInitial routes to the server-creation, server-repeat, or
// client path depending on whether a connection already exists and
// which role it plays.
func (e *Endpoint) handleInitial(segment []byte, hdr *PacketHeader, raddr netip.AddrPort, now int64, datagramLen int, conn *Connection, found bool) *Outcome {
	if !found {
		return e.handleServerNewInitial(segment, hdr, raddr, now, datagramLen)
	}
	if conn.ClientMode {
		return e.handleClientInitial(segment, hdr, now, conn)
	}
	return e.handleServerRepeatInitial(segment, hdr, now, conn)
}

// handleServerNewInitial admits a server-bound Initial with no
// matching connection: anti-amplification floor, retry-token
// enforcement, then connection creation and commit.
func (e *Endpoint) handleServerNewInitial(segment []byte, hdr *PacketHeader, raddr netip.AddrPort, now int64, datagramLen int) *Outcome {
	if datagramLen < e.Config.MinInitialDatagramSize {
		return outcome(KindInitialTooShort, nil)
	}

	send, recv, err := NewInitialKeys(hdr.DestCID.Bytes(), false)
	if err != nil {
		return outcome(KindMemory, err)
	}

	plaintext, out := Open(segment, hdr, &recv, 0, nil)
	if out != nil {
		return out
	}

	if e.Config.RetryTokenEnforced {
		token := segment[hdr.TokenOffset : hdr.TokenOffset+hdr.TokenLength]
		if hdr.TokenLength == 0 || !VerifyRetryToken(e.Config.ServerSecret, raddr.Addr(), token) {
			e.queueRetry(hdr, raddr)
			return outcome(KindRetry, nil)
		}
	}

	conn := NewConnection(hdr.DestCID, false, hdr.VersionIndex)
	conn.CryptoContext[EpochInitial] = EpochKeys{Send: send, Recv: recv}
	conn.Path0 = Path{LocalCID: hdr.DestCID, RemoteCID: hdr.SrceCID, PeerAddr: raddr}
	conn.PktCtx[SpaceInitial].Received.Record(hdr.PN64, now)
	conn.PktCtx[SpaceInitial].AckNeeded = true
	conn.ResetSecret = DeriveResetSecret(e.Config.ServerSecret, hdr.DestCID)

	if newState, ok := conn.State.onClientInitialObserved(); ok {
		conn.State = newState
	}

	e.Registry.Create(conn)
	e.Callbacks.OnConnectionCreated(conn)

	if e.TLS != nil {
		if err := e.TLS.ProcessCryptoStream(conn); err != nil {
			e.Registry.Delete(conn, nil, nil)
			return outcome(KindDetected, err)
		}
	}
	if e.Frames != nil {
		if err := e.Frames.DecodeFrames(conn, plaintext, EpochInitial, now, &conn.Path0); err != nil {
			e.Registry.Delete(conn, nil, nil)
			return outcome(KindDetected, err)
		}
	}

	return outcome(KindOK, nil)
}

// handleServerRepeatInitial handles a retransmitted or additional
// client Initial once the server-side connection already exists.
func (e *Endpoint) handleServerRepeatInitial(segment []byte, hdr *PacketHeader, now int64, conn *Connection) *Outcome {
	recv, ok := conn.epochKeysFor(EpochInitial)
	if !ok {
		return outcome(KindUnexpectedPacket, nil)
	}

	pktCtx := &conn.PktCtx[SpaceInitial]
	plaintext, out := Open(segment, hdr, recv, pktCtx.largestReceivedOrZero(), &pktCtx.Received)
	if out != nil {
		if out.Kind() == KindDuplicate {
			pktCtx.AckNeeded = true
		}
		return out
	}

	pktCtx.Received.Record(hdr.PN64, now)
	pktCtx.AckNeeded = true

	if e.Frames != nil {
		if err := e.Frames.DecodeFrames(conn, plaintext, EpochInitial, now, &conn.Path0); err != nil {
			return outcome(KindDetected, err)
		}
	}
	return outcome(KindOK, nil)
}

// handleClientInitial treats an Initial arriving at a client-mode
// connection as the server's first cleartext response: it latches
// the server's chosen SCID on first receipt and requires every
// subsequent Initial to echo the same one.
func (e *Endpoint) handleClientInitial(segment []byte, hdr *PacketHeader, now int64, conn *Connection) *Outcome {
	recv, ok := conn.epochKeysFor(EpochInitial)
	if !ok {
		return outcome(KindUnexpectedPacket, nil)
	}

	pktCtx := &conn.PktCtx[SpaceInitial]
	plaintext, out := Open(segment, hdr, recv, pktCtx.largestReceivedOrZero(), &pktCtx.Received)
	if out != nil {
		if out.Kind() == KindDuplicate {
			pktCtx.AckNeeded = true
		}
		return out
	}

	if conn.Path0.RemoteCID.IsNull() {
		conn.Path0.RemoteCID = hdr.SrceCID
	} else if !conn.Path0.RemoteCID.Equal(hdr.SrceCID) {
		return outcome(KindCnxIdCheck, errSCIDMismatch)
	}

	pktCtx.Received.Record(hdr.PN64, now)
	pktCtx.AckNeeded = true

	if newState, ok := conn.State.onServerHandshakeObserved(); ok {
		conn.State = newState
	}

	if e.Frames != nil {
		if err := e.Frames.DecodeFrames(conn, plaintext, EpochInitial, now, &conn.Path0); err != nil {
			return outcome(KindDetected, err)
		}
	}
	return outcome(KindOK, nil)
}

// handleHandshake is role-symmetric: both client and server decrypt
// with the Handshake epoch keys and feed CRYPTO bytes to the TLS
// engine. Once both handshake-key directions are installed and the
// engine reports completion, the Initial packet-number space is
// implicitly acknowledged — the peer is guaranteed to have moved past
// it, so Initial retransmissions stop being necessary.
func (e *Endpoint) handleHandshake(segment []byte, hdr *PacketHeader, now int64, conn *Connection) *Outcome {
	recv, ok := conn.epochKeysFor(EpochHandshake)
	if !ok {
		return outcome(KindUnexpectedPacket, nil)
	}

	pktCtx := &conn.PktCtx[SpaceHandshake]
	plaintext, out := Open(segment, hdr, recv, pktCtx.largestReceivedOrZero(), &pktCtx.Received)
	if out != nil {
		if out.Kind() == KindDuplicate {
			pktCtx.AckNeeded = true
		}
		return out
	}

	pktCtx.Received.Record(hdr.PN64, now)
	pktCtx.AckNeeded = true

	if conn.ClientMode {
		if newState, ok := conn.State.onServerHandshakeObserved(); ok {
			conn.State = newState
		}
	}

	if e.TLS != nil {
		if err := e.TLS.ProcessCryptoStream(conn); err != nil {
			return outcome(KindDetected, err)
		}
		if e.TLS.HandshakeComplete(conn) {
			if newState, ok := conn.State.onHandshakeComplete(); ok {
				conn.State = newState
				e.Callbacks.OnReady(conn)
			}
			conn.PktCtx[SpaceInitial].AckNeeded = false
		}
	}

	if e.Frames != nil {
		if err := e.Frames.DecodeFrames(conn, plaintext, EpochHandshake, now, &conn.Path0); err != nil {
			return outcome(KindDetected, err)
		}
	}
	return outcome(KindOK, nil)
}

// handleRetry implements §4.5's Retry acceptance rule: only valid in
// ClientInitSent/ClientInitResent, the echoed original-DCID must
// match, and acceptance replaces initial_cid with the Retry's SCID
// and restarts the Initial key schedule and packet numbers from that
// new CID.
func (e *Endpoint) handleRetry(segment []byte, hdr *PacketHeader, conn *Connection) *Outcome {
	if conn.State != StateClientInitSent && conn.State != StateClientInitResent {
		return outcome(KindUnexpectedPacket, nil)
	}

	payload := segment[hdr.Offset : int(hdr.Offset)+int(hdr.PayloadLength)]
	if len(payload) < 1 {
		return outcome(KindMalformed, errTruncatedHeader)
	}
	odcil := int(payload[0])
	odcid, n := parseConnectionID(payload[1:], odcil)
	if n == 0 || !odcid.Equal(conn.InitialCID) {
		return outcome(KindCnxIdCheck, errOriginalDCIDCheck)
	}

	token := payload[1+odcil:]
	conn.RetryToken = append([]byte(nil), token...)
	conn.InitialCID = hdr.SrceCID
	conn.Path0.RemoteCID = hdr.SrceCID

	send, recv, err := NewInitialKeys(hdr.SrceCID.Bytes(), true)
	if err != nil {
		return outcome(KindMemory, err)
	}
	conn.CryptoContext[EpochInitial] = EpochKeys{Send: send, Recv: recv}
	conn.PktCtx[SpaceInitial] = PktContext{}

	if newState, ok := conn.State.onRetry(); ok {
		conn.State = newState
	}
	return outcome(KindRetry, nil)
}

// handleZeroRTT admits server-side 0-RTT traffic in the Application
// space under the 0-RTT epoch keys.
func (e *Endpoint) handleZeroRTT(segment []byte, hdr *PacketHeader, now int64, conn *Connection) *Outcome {
	recv, ok := conn.epochKeysFor(EpochZeroRTT)
	if !ok {
		return outcome(KindUnexpectedPacket, nil)
	}

	pktCtx := &conn.PktCtx[SpaceApplication]
	plaintext, out := Open(segment, hdr, recv, pktCtx.largestReceivedOrZero(), &pktCtx.Received)
	if out != nil {
		if out.Kind() == KindDuplicate {
			pktCtx.AckNeeded = true
		}
		return out
	}

	pktCtx.Received.Record(hdr.PN64, now)
	pktCtx.AckNeeded = true

	if e.Frames != nil {
		if err := e.Frames.DecodeFrames(conn, plaintext, EpochZeroRTT, now, &conn.Path0); err != nil {
			return outcome(KindDetected, err)
		}
	}
	return outcome(KindOK, nil)
}

// handleOneRTT is the steady-state packet handler: requires at least
// ClientAlmostReady/ServerAlmostReady, arms a path challenge on
// address change, and updates the path's bandwidth estimate.
func (e *Endpoint) handleOneRTT(segment []byte, hdr *PacketHeader, raddr netip.AddrPort, now int64, conn *Connection) *Outcome {
	if !conn.State.isAtLeastAlmostReady() {
		return outcome(KindUnexpectedPacket, nil)
	}

	recv, ok := conn.epochKeysFor(EpochOneRTT)
	if !ok {
		return outcome(KindUnexpectedPacket, nil)
	}

	pktCtx := &conn.PktCtx[SpaceApplication]
	plaintext, out := Open(segment, hdr, recv, pktCtx.largestReceivedOrZero(), &pktCtx.Received)
	if out != nil {
		if out.Kind() == KindDuplicate {
			pktCtx.AckNeeded = true
		}
		return out
	}

	pktCtx.Received.Record(hdr.PN64, now)
	pktCtx.AckNeeded = true

	if raddr != conn.Path0.PeerAddr && !isUnspecifiedAddr(raddr) {
		conn.Path0.PeerAddr = raddr
		conn.Path0.ChallengeArmed = true
		conn.Path0.ChallengeVerified = false
		conn.Path0.Challenge = randomU64()
		conn.Path0.ChallengeDeadline = now + defaultPathValidationTimeout
		e.Registry.BindAddr(raddr, conn)
	}
	conn.Path0.updateBandwidth(len(plaintext), now)

	if e.Frames != nil {
		if err := e.Frames.DecodeFrames(conn, plaintext, EpochOneRTT, now, &conn.Path0); err != nil {
			return outcome(KindDetected, err)
		}
	}
	return outcome(KindOK, nil)
}

// tryStatelessReset is reached when a short-header-looking datagram's
// DCID matches no connection. Per design note, address-based lookup
// is tried before the trailing-secret comparison — never the other
// way around — since the packet may equally be traffic for a
// pre-migration address rather than an actual reset.
func (e *Endpoint) tryStatelessReset(segment []byte, raddr netip.AddrPort) *Outcome {
	if len(segment) < e.Config.MinStatelessResetSize {
		return outcome(KindCnxIdCheck, nil)
	}

	conn, found := e.Registry.ByAddr(raddr)
	if !found {
		return outcome(KindCnxIdCheck, nil)
	}
	if !matchesResetSecret(segment, conn.ResetSecret) {
		return outcome(KindCnxIdCheck, nil)
	}

	conn.State = conn.State.onStatelessReset()
	e.Callbacks.OnStatelessReset(conn)
	return outcome(KindStatelessReset, nil)
}

// emitVersionNegotiation builds and enqueues a Version Negotiation
// datagram echoing the CIDs in reverse, per §4.5: the reply's dest-cid
// is the input's scid and vice versa.
func (e *Endpoint) emitVersionNegotiation(hdr *PacketHeader, raddr netip.AddrPort) {
	if e.Send == nil {
		return
	}

	buf := make([]byte, 0, 16+4*len(e.Config.SupportedVersions))
	buf = append(buf, 0xC0) // long-header bit + fixed bit; low bits unspecified
	buf = append(buf, 0, 0, 0, 0)
	buf = appendConnectionID(buf, hdr.SrceCID)
	buf = appendConnectionID(buf, hdr.DestCID)
	for _, v := range e.Config.SupportedVersions {
		buf = append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
	}

	e.Send.Enqueue(raddr, buf)
}

// queueRetry builds and enqueues a Retry datagram carrying a freshly
// computed token, per §4.6.
func (e *Endpoint) queueRetry(hdr *PacketHeader, raddr netip.AddrPort) {
	if e.Send == nil {
		return
	}

	scid := randomConnectionID(e.Config.LocalCIDLen)
	token := GenerateRetryToken(e.Config.ServerSecret, raddr.Addr())

	buf := make([]byte, 0, 32+hdr.DestCID.Len())
	buf = append(buf, 0xF0) // long header, fixed bit, type=3 (Retry)
	version := uint32(0)
	if hdr.VersionIndex >= 0 && hdr.VersionIndex < len(e.Config.SupportedVersions) {
		version = e.Config.SupportedVersions[hdr.VersionIndex]
	}
	buf = append(buf, byte(version>>24), byte(version>>16), byte(version>>8), byte(version))
	buf = appendConnectionID(buf, hdr.SrceCID)
	buf = appendConnectionID(buf, scid)
	buf = append(buf, byte(hdr.DestCID.Len()))
	buf = append(buf, hdr.DestCID.Bytes()...)
	buf = append(buf, token...)

	e.Send.Enqueue(raddr, buf)
}

func isUnspecifiedAddr(addr netip.AddrPort) bool {
	a := addr.Addr()
	return a == netip.IPv4Unspecified() || a == netip.IPv6Unspecified()
}

func randomU64() uint64 {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint64(b[:])
}

func randomConnectionID(length int) ConnectionID {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	cid, _ := NewConnectionID(b)
	return cid
}
