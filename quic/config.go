package quic

// EndpointConfig is the single configuration value threaded by
// reference into every ingress operation. Design note: the source
// this core is modeled on keeps a process-wide supported-versions
// table and a process-wide extension registry; here both are folded
// into one endpoint-scoped value with no implicit singleton.
type EndpointConfig struct {
	// SupportedVersions lists the QUIC versions this endpoint will
	// negotiate, in preference order. Index 0 is the default offered
	// on outbound connections.
	SupportedVersions []uint32

	// LocalCIDLen is the length in bytes of connection IDs this
	// endpoint issues, and therefore the implied DCID length on
	// incoming short-header packets addressed to it.
	LocalCIDLen int

	// ServerSecret keys the retry-token HMAC and the stateless-reset
	// token derivation. Server-side only.
	ServerSecret []byte

	// MinInitialDatagramSize is the enforced minimum UDP payload
	// size for a server-bound Initial (anti-amplification floor).
	MinInitialDatagramSize int

	// RetryTokenEnforced, when true, requires a client Initial to
	// carry a previously issued, verifying retry token before the
	// server creates connection state.
	RetryTokenEnforced bool

	// EnforceCoalescedCIDCheck preserves the ability to require that
	// every coalesced segment in a datagram shares the same
	// destination CID. The upstream check is present but disabled
	// for multipath; this flag makes the choice explicit rather than
	// silently dropping or silently enforcing it.
	EnforceCoalescedCIDCheck bool

	// MinStatelessResetSize is the smallest short-header-looking
	// datagram length that is considered as a stateless reset
	// candidate.
	MinStatelessResetSize int
}

// versionIndex returns the position of v in SupportedVersions, or -1.
func (c *EndpointConfig) versionIndex(v uint32) int {
	for i, sv := range c.SupportedVersions {
		if sv == v {
			return i
		}
	}
	return -1
}

// DefaultEndpointConfig returns sane defaults matching common QUIC
// deployments: a single supported version, 8-byte local CIDs, a
// 1200-byte anti-amplification floor, retry enforcement off, and the
// coalesced-CID check enabled.
func DefaultEndpointConfig(version uint32, serverSecret []byte) EndpointConfig {
	return EndpointConfig{
		SupportedVersions:        []uint32{version},
		LocalCIDLen:              8,
		ServerSecret:             serverSecret,
		MinInitialDatagramSize:   1200,
		RetryTokenEnforced:       false,
		EnforceCoalescedCIDCheck: true,
		MinStatelessResetSize:    minStatelessResetCandidateLen,
	}
}
