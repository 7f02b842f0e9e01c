package quic

import (
	"crypto/hmac"
	"crypto/sha256"
)

// ResetSecretLength is the fixed length of a stateless reset token,
// compared against the trailing bytes of a short-header-looking
// datagram addressed to no known connection.
const ResetSecretLength = 16

// DeriveResetSecret computes the per-CID stateless reset secret a
// server hands a client during the handshake: a truncated
// HMAC-SHA256 over the connection's local CID, keyed by the
// server-wide secret, so the secret is reproducible without storing
// it per connection.
func DeriveResetSecret(serverSecret []byte, localCID ConnectionID) [ResetSecretLength]byte {
	mac := hmac.New(sha256.New, serverSecret)
	mac.Write(localCID.Bytes())
	sum := mac.Sum(nil)
	var out [ResetSecretLength]byte
	copy(out[:], sum[:ResetSecretLength])
	return out
}

// matchesResetSecret compares the trailing ResetSecretLength bytes of
// a datagram against conn's stored secret in constant time.
func matchesResetSecret(data []byte, secret [ResetSecretLength]byte) bool {
	if len(data) < ResetSecretLength {
		return false
	}
	trailer := data[len(data)-ResetSecretLength:]
	return hmac.Equal(trailer, secret[:])
}

// minStatelessResetCandidateLen is the smallest datagram length that
// can plausibly be a stateless reset: one flags byte plus the
// 16-byte secret, with at least a handful of padding bytes so it
// cannot be confused with a minimal short header carrying no payload.
const minStatelessResetCandidateLen = ResetSecretLength + 5
