package quic

import (
	"net/netip"
	"testing"
)

// fakeFrameDecoder records every DecodeFrames call it sees.
type fakeFrameDecoder struct {
	calls []fakeFrameCall
	err   error
}

type fakeFrameCall struct {
	conn    *Connection
	payload []byte
	epoch   Epoch
}

func (f *fakeFrameDecoder) DecodeFrames(conn *Connection, payload []byte, epoch Epoch, receiveTime int64, path *Path) error {
	f.calls = append(f.calls, fakeFrameCall{conn, payload, epoch})
	return f.err
}

// fakeTLSEngine records ProcessCryptoStream calls and reports
// HandshakeComplete according to a settable flag.
type fakeTLSEngine struct {
	processCalls int
	complete     bool
	err          error
}

func (f *fakeTLSEngine) ProcessCryptoStream(conn *Connection) error {
	f.processCalls++
	return f.err
}

func (f *fakeTLSEngine) HandshakeComplete(conn *Connection) bool {
	return f.complete
}

// fakeSendQueue records every enqueued stateless datagram.
type fakeSendQueue struct {
	sent []fakeSent
}

type fakeSent struct {
	dest netip.AddrPort
	data []byte
}

func (f *fakeSendQueue) Enqueue(dest netip.AddrPort, datagram []byte) {
	f.sent = append(f.sent, fakeSent{dest, append([]byte{}, datagram...)})
}

// fakeCallbacks records every up-call it sees.
type fakeCallbacks struct {
	readyCalls   []*Connection
	resetCalls   []*Connection
	segmentCalls []Kind
	createdCalls []*Connection
}

func (f *fakeCallbacks) OnReady(conn *Connection)         { f.readyCalls = append(f.readyCalls, conn) }
func (f *fakeCallbacks) OnStatelessReset(conn *Connection) { f.resetCalls = append(f.resetCalls, conn) }
func (f *fakeCallbacks) OnSegment(kind Kind)               { f.segmentCalls = append(f.segmentCalls, kind) }
func (f *fakeCallbacks) OnConnectionCreated(conn *Connection) {
	f.createdCalls = append(f.createdCalls, conn)
}

func newTestEndpoint(cfg *EndpointConfig, frames FrameDecoder, tls TLSEngine, send SendQueue) (*Endpoint, *Registry) {
	registry := NewRegistry()
	ep := NewEndpoint(cfg, registry, frames, tls, send)
	return ep, registry
}

func TestIncomingServerNewInitialCreatesConnection(t *testing.T) {
	cfg := testConfig()
	dcid := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	scid := []byte{1, 2, 3, 4}

	clientSend, _, err := NewInitialKeys(dcid, true)
	if err != nil {
		t.Fatalf("NewInitialKeys: %v", err)
	}

	plaintext := make([]byte, 1200)
	data := buildProtectedInitial(t, clientSend, dcid, scid, 0, plaintext)

	frames := &fakeFrameDecoder{}
	tls := &fakeTLSEngine{}
	ep, registry := newTestEndpoint(cfg, frames, tls, nil)

	raddr := netip.MustParseAddrPort("198.51.100.9:51000")
	ep.Incoming(data, raddr, 1000)

	if registry.Len() != 1 {
		t.Fatalf("registry.Len() = %d, want 1 connection created", registry.Len())
	}
	wantCID, _ := NewConnectionID(dcid)
	conn, ok := registry.ByID(wantCID)
	if !ok {
		t.Fatal("connection should be indexed under the client's destination CID")
	}
	if conn.ClientMode {
		t.Error("server-created connection should not be in client mode")
	}
	if len(frames.calls) != 1 {
		t.Fatalf("DecodeFrames calls = %d, want 1", len(frames.calls))
	}
	if tls.processCalls != 1 {
		t.Fatalf("ProcessCryptoStream calls = %d, want 1", tls.processCalls)
	}
}

func TestIncomingInitialTooShortDropped(t *testing.T) {
	cfg := testConfig()
	dcid := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	scid := []byte{1, 2, 3, 4}

	clientSend, _, err := NewInitialKeys(dcid, true)
	if err != nil {
		t.Fatalf("NewInitialKeys: %v", err)
	}

	// A small Initial, well under the anti-amplification floor.
	data := buildProtectedInitial(t, clientSend, dcid, scid, 0, []byte("short"))

	frames := &fakeFrameDecoder{}
	ep, registry := newTestEndpoint(cfg, frames, nil, nil)

	ep.Incoming(data, netip.MustParseAddrPort("198.51.100.9:51000"), 1000)

	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0 (datagram under the MTU floor)", registry.Len())
	}
	if len(frames.calls) != 0 {
		t.Error("frames should never be decoded for an undersized Initial")
	}
}

func TestIncomingRetryTokenEnforcedQueuesRetry(t *testing.T) {
	cfg := testConfig()
	cfg.RetryTokenEnforced = true
	cfg.ServerSecret = []byte("server-wide-secret")

	dcid := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	scid := []byte{1, 2, 3, 4}

	clientSend, _, err := NewInitialKeys(dcid, true)
	if err != nil {
		t.Fatalf("NewInitialKeys: %v", err)
	}

	plaintext := make([]byte, 1200)
	data := buildProtectedInitial(t, clientSend, dcid, scid, 0, plaintext)

	send := &fakeSendQueue{}
	ep, registry := newTestEndpoint(cfg, nil, nil, send)

	ep.Incoming(data, netip.MustParseAddrPort("198.51.100.9:51000"), 1000)

	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d, want 0 before a valid retry token is presented", registry.Len())
	}
	if len(send.sent) != 1 {
		t.Fatalf("Enqueue calls = %d, want 1 (the queued Retry)", len(send.sent))
	}
	if (send.sent[0].data[0]&longTypeMask)>>longTypeShift != 3 {
		t.Error("queued datagram should be a Retry (long type 3)")
	}
}

func TestIncomingStatelessResetMatchingSecret(t *testing.T) {
	cfg := testConfig()
	registry := NewRegistry()
	callbacks := &fakeCallbacks{}
	ep := NewEndpoint(cfg, registry, nil, nil, nil)
	ep.Callbacks = callbacks

	cid, _ := NewConnectionID([]byte{1, 2, 3, 4})
	conn := NewConnection(cid, false, 0)
	addr := netip.MustParseAddrPort("203.0.113.9:4433")
	conn.Path0.PeerAddr = addr
	conn.ResetSecret = DeriveResetSecret([]byte("server-wide-secret"), cid)
	registry.Create(conn)

	datagram := make([]byte, minStatelessResetCandidateLen+4)
	datagram[0] = fixedBit // short-header-looking, not matching any known CID
	copy(datagram[len(datagram)-ResetSecretLength:], conn.ResetSecret[:])

	ep.Incoming(datagram, addr, 2000)

	if conn.State != StateDisconnected {
		t.Errorf("connection state = %v, want Disconnected after stateless reset", conn.State)
	}
	if len(callbacks.resetCalls) != 1 {
		t.Fatalf("OnStatelessReset calls = %d, want 1", len(callbacks.resetCalls))
	}
}

func TestIncomingCoalescedCIDMismatchDropped(t *testing.T) {
	cfg := testConfig()
	cfg.EnforceCoalescedCIDCheck = true

	dcidA := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	dcidB := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22}
	scid := []byte{1, 2, 3, 4}

	keysA, _, err := NewInitialKeys(dcidA, true)
	if err != nil {
		t.Fatalf("NewInitialKeys(A): %v", err)
	}
	keysB, _, err := NewInitialKeys(dcidB, true)
	if err != nil {
		t.Fatalf("NewInitialKeys(B): %v", err)
	}

	plaintext := make([]byte, 1200)
	segA := buildProtectedInitial(t, keysA, dcidA, scid, 0, plaintext)
	segB := buildProtectedInitial(t, keysB, dcidB, scid, 0, plaintext)
	datagram := append(append([]byte{}, segA...), segB...)

	frames := &fakeFrameDecoder{}
	tls := &fakeTLSEngine{}
	ep, registry := newTestEndpoint(cfg, frames, tls, nil)

	ep.Incoming(datagram, netip.MustParseAddrPort("198.51.100.9:51000"), 1000)

	if registry.Len() != 1 {
		t.Errorf("registry.Len() = %d, want 1 (the mismatched second segment must be dropped)", registry.Len())
	}
	if len(frames.calls) != 1 {
		t.Errorf("DecodeFrames calls = %d, want 1", len(frames.calls))
	}
}

func TestIncomingCoalescedCIDMismatchAllowedWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.EnforceCoalescedCIDCheck = false

	dcidA := []byte{0x83, 0x94, 0xc8, 0xf0, 0x3e, 0x51, 0x57, 0x08}
	dcidB := []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff, 0x11, 0x22}
	scid := []byte{1, 2, 3, 4}

	keysA, _, err := NewInitialKeys(dcidA, true)
	if err != nil {
		t.Fatalf("NewInitialKeys(A): %v", err)
	}
	keysB, _, err := NewInitialKeys(dcidB, true)
	if err != nil {
		t.Fatalf("NewInitialKeys(B): %v", err)
	}

	plaintext := make([]byte, 1200)
	segA := buildProtectedInitial(t, keysA, dcidA, scid, 0, plaintext)
	segB := buildProtectedInitial(t, keysB, dcidB, scid, 0, plaintext)
	datagram := append(append([]byte{}, segA...), segB...)

	frames := &fakeFrameDecoder{}
	tls := &fakeTLSEngine{}
	ep, registry := newTestEndpoint(cfg, frames, tls, nil)

	ep.Incoming(datagram, netip.MustParseAddrPort("198.51.100.9:51000"), 1000)

	if registry.Len() != 2 {
		t.Errorf("registry.Len() = %d, want 2 (mismatch check disabled, both segments admitted)", registry.Len())
	}
	if len(frames.calls) != 2 {
		t.Errorf("DecodeFrames calls = %d, want 2", len(frames.calls))
	}
}

func TestIncomingUnsupportedVersionEmitsVersionNegotiation(t *testing.T) {
	cfg := testConfig()
	dcid := []byte{1, 2, 3, 4}
	scid := []byte{5, 6, 7, 8}
	buf := buildLongHeader(t, 0, 0xAABBCCDD, dcid, scid, nil, 20)

	send := &fakeSendQueue{}
	ep, registry := newTestEndpoint(cfg, nil, nil, send)

	ep.Incoming(buf, netip.MustParseAddrPort("198.51.100.9:51000"), 1000)

	if registry.Len() != 0 {
		t.Error("no connection should be created for an unsupported version")
	}
	if len(send.sent) != 1 {
		t.Fatalf("Enqueue calls = %d, want 1 (Version Negotiation)", len(send.sent))
	}
	if send.sent[0].data[0]&longHeaderBit == 0 {
		t.Error("Version Negotiation datagram should carry the long-header bit")
	}
}
