package quic

import (
	"crypto/hmac"
	"crypto/sha256"
	"net/netip"
)

// RetryTokenLength is the fixed on-wire length of a retry token: a
// truncated HMAC, per §4.6.
const RetryTokenLength = 16

// GenerateRetryToken computes the token a server embeds in a Retry
// packet: a truncated HMAC-SHA256 over the peer's raw IP bytes (4 for
// v4, 16 for v6), keyed by the server-wide secret.
func GenerateRetryToken(serverSecret []byte, addr netip.Addr) []byte {
	mac := hmac.New(sha256.New, serverSecret)
	ip := addr.Unmap()
	b := ip.AsSlice()
	mac.Write(b)
	sum := mac.Sum(nil)
	return sum[:RetryTokenLength]
}

// VerifyRetryToken reports whether token was produced by
// GenerateRetryToken for addr under serverSecret, using a
// constant-time comparison so token guessing cannot be timed.
func VerifyRetryToken(serverSecret []byte, addr netip.Addr, token []byte) bool {
	if len(token) != RetryTokenLength {
		return false
	}
	want := GenerateRetryToken(serverSecret, addr)
	return hmac.Equal(want, token)
}
