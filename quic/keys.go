package quic

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// initialSalt is the version-1 Initial salt from RFC 9001 Section
// 5.2, used to derive Initial secrets from a client's first DCID.
var initialSalt = []byte{
	0x38, 0x76, 0x2c, 0xf7, 0xf5, 0x59, 0x34, 0xb3,
	0x4d, 0x17, 0x9a, 0xe6, 0xa4, 0xc8, 0x0c, 0xad,
	0xcc, 0xbb, 0x7f, 0x0a,
}

var errUnknownCipherSuite = errors.New("quic: unknown AEAD cipher suite")

// Suite selects the negotiated AEAD/HP cipher suite. The Initial
// epoch always uses AES-128-GCM regardless of the suite eventually
// negotiated by the handshake; later epochs take the suite the TLS
// engine reports.
type Suite int

const (
	SuiteAES128GCM Suite = iota
	SuiteAES256GCM
	SuiteChaCha20Poly1305
)

// CryptoKeys holds one direction's worth of derived key material for
// one epoch: the AEAD packet-payload key plus the header-protection
// key, and a ready-to-use cipher.AEAD built from them.
type CryptoKeys struct {
	Key  []byte
	IV   []byte
	HP   []byte
	AEAD cipher.AEAD
	Suite Suite
}

// deriveInitialSecrets produces the client and server Initial
// secrets from the connection's first destination CID, per RFC 9001
// Section 5.2: initial_secret = HKDF-Extract(initial_salt, dcid).
func deriveInitialSecrets(dcid []byte) (clientSecret, serverSecret []byte) {
	initialSecret := hkdf.Extract(sha256.New, dcid, initialSalt)
	clientSecret = hkdfExpandLabel(initialSecret, "client in", nil, sha256.Size)
	serverSecret = hkdfExpandLabel(initialSecret, "server in", nil, sha256.Size)
	return clientSecret, serverSecret
}

// NewInitialKeys derives the Initial-epoch CryptoKeys for both
// directions from a connection's first DCID. isClient selects which
// derived secret becomes this endpoint's send key versus receive key.
func NewInitialKeys(dcid []byte, isClient bool) (send, recv CryptoKeys, err error) {
	clientSecret, serverSecret := deriveInitialSecrets(dcid)

	clientKeys, err := deriveKeys(clientSecret, SuiteAES128GCM)
	if err != nil {
		return CryptoKeys{}, CryptoKeys{}, err
	}
	serverKeys, err := deriveKeys(serverSecret, SuiteAES128GCM)
	if err != nil {
		return CryptoKeys{}, CryptoKeys{}, err
	}

	if isClient {
		return clientKeys, serverKeys, nil
	}
	return serverKeys, clientKeys, nil
}

// DeriveEpochKeys derives the send/receive CryptoKeys for a
// non-Initial epoch from the traffic secrets the TLS engine hands
// back once it has processed enough of the CRYPTO stream. The core
// itself never computes these secrets; it only turns them into AEAD
// and header-protection keys.
func DeriveEpochKeys(sendSecret, recvSecret []byte, suite Suite) (send, recv CryptoKeys, err error) {
	send, err = deriveKeys(sendSecret, suite)
	if err != nil {
		return CryptoKeys{}, CryptoKeys{}, err
	}
	recv, err = deriveKeys(recvSecret, suite)
	if err != nil {
		return CryptoKeys{}, CryptoKeys{}, err
	}
	return send, recv, nil
}

// deriveKeys expands one traffic secret into the Key/IV/HP triple and
// wraps Key into an AEAD instance for the given suite.
func deriveKeys(secret []byte, suite Suite) (CryptoKeys, error) {
	var keyLen int
	switch suite {
	case SuiteAES128GCM:
		keyLen = 16
	case SuiteAES256GCM:
		keyLen = 32
	case SuiteChaCha20Poly1305:
		keyLen = chacha20poly1305.KeySize
	default:
		return CryptoKeys{}, errUnknownCipherSuite
	}

	key := hkdfExpandLabel(secret, "quic key", nil, keyLen)
	iv := hkdfExpandLabel(secret, "quic iv", nil, 12)
	hp := hkdfExpandLabel(secret, "quic hp", nil, keyLen)

	var aead cipher.AEAD
	var err error
	switch suite {
	case SuiteAES128GCM, SuiteAES256GCM:
		var block cipher.Block
		block, err = aes.NewCipher(key)
		if err != nil {
			return CryptoKeys{}, err
		}
		aead, err = cipher.NewGCM(block)
	case SuiteChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key)
	}
	if err != nil {
		return CryptoKeys{}, err
	}

	return CryptoKeys{Key: key, IV: iv, HP: hp, AEAD: aead, Suite: suite}, nil
}

// hkdfExpandLabel implements the TLS 1.3 / QUIC HKDF-Expand-Label
// construction (RFC 8446 Section 7.1, reused by RFC 9001 Section 5.1)
// with the "tls13 " prefix fixed and no hash-suite negotiation beyond
// SHA-256, matching every epoch this core derives keys for.
func hkdfExpandLabel(secret []byte, label string, context []byte, length int) []byte {
	fullLabel := "tls13 " + label

	info := make([]byte, 0, 2+1+len(fullLabel)+1+len(context))
	info = append(info, byte(length>>8), byte(length))
	info = append(info, byte(len(fullLabel)))
	info = append(info, fullLabel...)
	info = append(info, byte(len(context)))
	info = append(info, context...)

	out := make([]byte, length)
	r := hkdf.Expand(sha256.New, secret, info)
	if _, err := r.Read(out); err != nil {
		panic("quic: hkdf expand: " + err.Error())
	}
	return out
}
