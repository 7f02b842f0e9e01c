package quic

import (
	"net/netip"
	"testing"
)

func TestRetryTokenRoundTrip(t *testing.T) {
	secret := []byte("server-wide-retry-secret")
	addr := netip.MustParseAddr("203.0.113.5")

	token := GenerateRetryToken(secret, addr)
	if len(token) != RetryTokenLength {
		t.Fatalf("len(token) = %d, want %d", len(token), RetryTokenLength)
	}
	if !VerifyRetryToken(secret, addr, token) {
		t.Error("a freshly generated token should verify")
	}
}

func TestRetryTokenRejectsWrongAddress(t *testing.T) {
	secret := []byte("server-wide-retry-secret")
	addr := netip.MustParseAddr("203.0.113.5")
	other := netip.MustParseAddr("203.0.113.6")

	token := GenerateRetryToken(secret, addr)
	if VerifyRetryToken(secret, other, token) {
		t.Error("token minted for one address should not verify for another")
	}
}

func TestRetryTokenRejectsWrongSecret(t *testing.T) {
	addr := netip.MustParseAddr("203.0.113.5")
	token := GenerateRetryToken([]byte("secret-a"), addr)
	if VerifyRetryToken([]byte("secret-b"), addr, token) {
		t.Error("token should not verify under a different server secret")
	}
}

func TestRetryTokenRejectsWrongLength(t *testing.T) {
	secret := []byte("server-wide-retry-secret")
	addr := netip.MustParseAddr("203.0.113.5")
	if VerifyRetryToken(secret, addr, []byte{1, 2, 3}) {
		t.Error("a short token should never verify")
	}
}

func TestRetryTokenSameForV4AndV4MappedV6(t *testing.T) {
	secret := []byte("server-wide-retry-secret")
	v4 := netip.MustParseAddr("203.0.113.5")
	v6 := netip.MustParseAddr("::ffff:203.0.113.5") // maps to the same v4 address

	tokenV4 := GenerateRetryToken(secret, v4)
	tokenV6 := GenerateRetryToken(secret, v6)
	if string(tokenV4) != string(tokenV6) {
		t.Error("Unmap() should make a v4-mapped v6 address generate the same token as its v4 form")
	}
}
