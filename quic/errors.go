package quic

import "errors"

// Kind classifies why a packet or segment did not reach the frame
// decoder. It is a closed taxonomy, not a freeform error type — every
// ingress outcome maps to exactly one of these.
type Kind int

const (
	// KindOK means the segment was admitted and handed to the frame
	// decoder (or, for Version Negotiation, drove a legitimate state
	// transition).
	KindOK Kind = iota

	// KindMalformed is a header bounds violation, varint truncation,
	// or impossible CID length. Dropped silently.
	KindMalformed

	// KindUnsupportedVersion is a long header with an unknown
	// version. A Version Negotiation datagram is emitted, then the
	// segment is dropped.
	KindUnsupportedVersion

	// KindAeadCheck is a header-protection or AEAD failure. Dropped
	// silently; a connection created specifically for this packet is
	// torn down.
	KindAeadCheck

	// KindDuplicate is a packet number already present in the
	// receive set for its space. Frame processing is skipped,
	// ack_needed is set, the segment is dropped.
	KindDuplicate

	// KindUnexpectedPacket is correctly decrypted but arrives in the
	// wrong connection state (e.g. 1-RTT before keys exist).
	KindUnexpectedPacket

	// KindCnxIdCheck is an SCID echo mismatch, or a DCID matching no
	// known identifier where one was required.
	KindCnxIdCheck

	// KindRetry marks a legitimate Retry: not an error upward.
	KindRetry

	// KindStatelessReset is a trailing-16-byte secret match. The
	// bound connection is torn down.
	KindStatelessReset

	// KindInitialTooShort is a server-bound Initial in a datagram
	// under the enforced minimum MTU.
	KindInitialTooShort

	// KindDetected is a catch-all protocol violation not covered by
	// a more specific kind above.
	KindDetected

	// KindMemory is an allocation failure. Propagated; the
	// connection may be torn down by the caller.
	KindMemory
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindMalformed:
		return "Malformed"
	case KindUnsupportedVersion:
		return "UnsupportedVersion"
	case KindAeadCheck:
		return "AeadCheck"
	case KindDuplicate:
		return "Duplicate"
	case KindUnexpectedPacket:
		return "UnexpectedPacket"
	case KindCnxIdCheck:
		return "CnxIdCheck"
	case KindRetry:
		return "Retry"
	case KindStatelessReset:
		return "StatelessReset"
	case KindInitialTooShort:
		return "InitialTooShort"
	case KindDetected:
		return "Detected"
	case KindMemory:
		return "Memory"
	default:
		return "Unknown"
	}
}

// Outcome is the result of processing one coalesced segment: a kind
// plus an optional wrapped cause. It satisfies the error interface so
// it can be returned and compared with errors.Is against the sentinels
// below, but callers that need to branch on kind should use Kind()
// rather than string-matching.
type Outcome struct {
	kind  Kind
	cause error
}

// outcome builds an Outcome of the given kind, optionally wrapping
// cause for logging.
func outcome(k Kind, cause error) *Outcome {
	return &Outcome{kind: k, cause: cause}
}

func (o *Outcome) Error() string {
	if o == nil {
		return "quic: ok"
	}
	if o.cause != nil {
		return "quic: " + o.kind.String() + ": " + o.cause.Error()
	}
	return "quic: " + o.kind.String()
}

func (o *Outcome) Unwrap() error {
	if o == nil {
		return nil
	}
	return o.cause
}

// Kind reports the taxonomy bucket of an Outcome, or KindOK for nil.
func (o *Outcome) Kind() Kind {
	if o == nil {
		return KindOK
	}
	return o.kind
}

// Sentinel causes that components wrap into an Outcome. Kept distinct
// from Kind so that logging can report the precise failure inside a
// broad bucket like Malformed.
var (
	errTruncatedVarint      = errors.New("quic: varint truncated")
	errTruncatedHeader      = errors.New("quic: header truncated")
	errReservedBit          = errors.New("quic: fixed bit not set")
	errCIDOverflow          = errors.New("quic: connection id exceeds datagram")
	errPayloadOverflow      = errors.New("quic: payload length exceeds datagram")
	errSampleOverflow       = errors.New("quic: header protection sample runs past datagram end")
	errAEADCheck            = errors.New("quic: AEAD authentication failed")
	errSCIDMismatch         = errors.New("quic: echoed scid does not match remote_cid")
	errOriginalDCIDCheck    = errors.New("quic: retry odcid does not match connection initial_cid")
	errRetryTokenMismatch   = errors.New("quic: retry token does not verify under server secret")
	errCoalescedCIDMismatch = errors.New("quic: coalesced segment destination cid does not match the first segment's")
)
