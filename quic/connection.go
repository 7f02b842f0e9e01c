package quic

import "net/netip"

// EpochKeys is one epoch's send and receive CryptoKeys. Both
// directions are populated together once the TLS engine (or, for
// Initial, the CID-derived schedule) has produced the corresponding
// secrets; a zero-value EpochKeys (nil AEAD) means that epoch is not
// yet installed.
type EpochKeys struct {
	Send CryptoKeys
	Recv CryptoKeys
}

func (k EpochKeys) installed() bool {
	return k.Send.AEAD != nil && k.Recv.AEAD != nil
}

// PktContext is the per-packet-number-space bookkeeping: outgoing
// sequence counter, the receive-range set backing duplicate
// detection and largest-received tracking, and whether an ACK is
// owed.
type PktContext struct {
	SendSequence uint64
	Received     ReceiveRanges
	AckNeeded    bool
}

// largestReceivedOrZero returns the reference packet number used for
// reconstruction: the largest received so far in this space, or 0
// before any packet has arrived (matching end_of_sack_range's
// zero-valued initial state upstream).
func (pc *PktContext) largestReceivedOrZero() uint64 {
	largest, ok := pc.Received.LargestReceived()
	if !ok {
		return 0
	}
	return largest
}

// Path is one network path a connection has been observed on:
// addressing plus the state of an in-flight path-validation
// challenge, should the peer's address have changed mid-connection.
type Path struct {
	LocalCID  ConnectionID
	RemoteCID ConnectionID
	PeerAddr  netip.AddrPort

	ChallengeArmed    bool
	ChallengeVerified bool
	Challenge         uint64
	ChallengeDeadline int64 // now + defaultPathValidationTimeout, driver-clock units

	// RecvBandwidthEWMA is an exponentially weighted moving average
	// of the sizes, in bytes, of admitted 1-RTT packets on this path;
	// the time between packets does not enter into it. Consumed by
	// congestion control outside this core.
	RecvBandwidthEWMA float64
	lastRecvTime      int64
}

// updateBandwidth folds one admitted packet's size into the moving
// average, using an exponential weight consistent with the teacher's
// counter-smoothing style rather than a full BBR-grade estimator,
// which belongs to the out-of-scope congestion-control module.
func (p *Path) updateBandwidth(sizeBytes int, now int64) {
	const alpha = 0.2
	if p.lastRecvTime == 0 {
		p.RecvBandwidthEWMA = float64(sizeBytes)
	} else {
		p.RecvBandwidthEWMA = alpha*float64(sizeBytes) + (1-alpha)*p.RecvBandwidthEWMA
	}
	p.lastRecvTime = now
}

// Connection is the long-lived per-peer state the registry owns.
// Only the fields the ingress core reads or mutates are modeled here;
// stream state, loss recovery, and congestion control live in the
// collaborators named in the external-interfaces contract.
type Connection struct {
	InitialCID ConnectionID

	Path0 Path

	// CryptoContext is indexed by Epoch (0=Initial, 1=0-RTT,
	// 2=Handshake, 3=1-RTT).
	CryptoContext [4]EpochKeys

	// PktCtx is indexed by PacketNumberSpace.
	PktCtx [3]PktContext

	State ConnState

	ClientMode   bool
	VersionIndex int

	ResetSecret [16]byte

	// RetryToken is the token echoed back on the next client Initial
	// after a server Retry, and the token a server validates on
	// inbound Initials when retry enforcement is on.
	RetryToken []byte
}

// NewConnection builds the initial state for either role. Callers on
// the server side populate InitialCID from the first Initial's DCID
// before committing the connection to the registry; client-side
// callers pick InitialCID themselves when dialing.
func NewConnection(initialCID ConnectionID, clientMode bool, versionIndex int) *Connection {
	c := &Connection{
		InitialCID:   initialCID,
		ClientMode:   clientMode,
		VersionIndex: versionIndex,
	}
	if clientMode {
		c.State = StateClientInit
	} else {
		c.State = StateServerInit
	}
	return c
}

// epochKeysFor returns the receive CryptoKeys of the given epoch, or
// false if that epoch is not yet installed.
func (c *Connection) epochKeysFor(epoch Epoch) (*CryptoKeys, bool) {
	ek := &c.CryptoContext[epoch]
	if !ek.installed() {
		return nil, false
	}
	return &ek.Recv, true
}
