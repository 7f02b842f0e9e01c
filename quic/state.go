package quic

// ConnState is the handshake/teardown state machine. Only the ingress
// core's view is modeled: the transitions a received packet can
// trigger. Transitions caused by sending (e.g., arming a retransmit)
// belong to the send path and are out of scope.
type ConnState int

const (
	StateClientInit ConnState = iota
	StateClientInitSent
	StateClientInitResent
	StateClientHandshakeStart
	StateClientHandshakeProgress
	StateClientAlmostReady
	StateClientReady
	StateServerInit
	StateServerHandshake
	StateServerAlmostReady
	StateServerReady
	StateClosingReceived
	StateClosing
	StateDraining
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateClientInit:
		return "ClientInit"
	case StateClientInitSent:
		return "ClientInitSent"
	case StateClientInitResent:
		return "ClientInitResent"
	case StateClientHandshakeStart:
		return "ClientHandshakeStart"
	case StateClientHandshakeProgress:
		return "ClientHandshakeProgress"
	case StateClientAlmostReady:
		return "ClientAlmostReady"
	case StateClientReady:
		return "ClientReady"
	case StateServerInit:
		return "ServerInit"
	case StateServerHandshake:
		return "ServerHandshake"
	case StateServerAlmostReady:
		return "ServerAlmostReady"
	case StateServerReady:
		return "ServerReady"
	case StateClosingReceived:
		return "ClosingReceived"
	case StateClosing:
		return "Closing"
	case StateDraining:
		return "Draining"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

// isAtLeastAlmostReady reports whether state is ClientAlmostReady,
// ClientReady, ServerAlmostReady, or ServerReady — the gate the
// steady-state 1-RTT handler checks before admitting a packet.
func (s ConnState) isAtLeastAlmostReady() bool {
	switch s {
	case StateClientAlmostReady, StateClientReady, StateServerAlmostReady, StateServerReady:
		return true
	default:
		return false
	}
}

// onVersionNegotiation applies the ClientInitSent --VN--> ClientInit
// transition; any other state leaves s unchanged (VN is only valid
// for a client that just sent its first Initial).
func (s ConnState) onVersionNegotiation() (ConnState, bool) {
	if s == StateClientInitSent {
		return StateClientInit, true
	}
	return s, false
}

// onRetry applies ClientInitSent|ClientInitResent --Retry--> ClientInitResent.
func (s ConnState) onRetry() (ConnState, bool) {
	switch s {
	case StateClientInitSent, StateClientInitResent:
		return StateClientInitResent, true
	default:
		return s, false
	}
}

// onServerHandshakeObserved applies
// ClientInit{Sent,Resent} --server Initial/Handshake--> ClientHandshakeStart.
func (s ConnState) onServerHandshakeObserved() (ConnState, bool) {
	switch s {
	case StateClientInitSent, StateClientInitResent:
		return StateClientHandshakeStart, true
	default:
		return s, false
	}
}

// onClientInitialObserved applies ServerInit --client Initial--> ServerHandshake.
func (s ConnState) onClientInitialObserved() (ConnState, bool) {
	if s == StateServerInit {
		return StateServerHandshake, true
	}
	return s, false
}

// onHandshakeComplete applies the TLS-completion transitions for
// whichever role s belongs to.
func (s ConnState) onHandshakeComplete() (ConnState, bool) {
	switch s {
	case StateClientHandshakeStart, StateClientHandshakeProgress:
		return StateClientAlmostReady, true
	case StateServerHandshake:
		return StateServerAlmostReady, true
	default:
		return s, false
	}
}

// onStatelessReset applies Any --stateless reset--> Disconnected.
func (s ConnState) onStatelessReset() ConnState {
	return StateDisconnected
}

// onConnectionCloseReceived applies
// Closing --CONNECTION_CLOSE received--> Draining(server)/Disconnected(client).
func (s ConnState) onConnectionCloseReceived(clientMode bool) (ConnState, bool) {
	if s != StateClosing {
		return s, false
	}
	if clientMode {
		return StateDisconnected, true
	}
	return StateDraining, true
}
