package quic

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func hexBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("hex.DecodeString(%q): %v", s, err)
	}
	return b
}

// TestInitialSecretsRFC9001Vectors checks the client/server Initial
// secret derivation against the worked example in RFC 9001 Appendix A,
// for the well-known destination connection id 8394c8f03e515708.
func TestInitialSecretsRFC9001Vectors(t *testing.T) {
	dcid := hexBytes(t, "8394c8f03e515708")

	wantClient := hexBytes(t, "c00cf151ca5be075ed0ebfb5c80323c42d6b7db67881289af4008f1f6c357aea")
	wantServer := hexBytes(t, "3c199828fd139efd216c155ad844cc81fb82fa8d7446fa7d78be803acdda951b")

	clientSecret, serverSecret := deriveInitialSecrets(dcid)
	if !bytes.Equal(clientSecret, wantClient) {
		t.Errorf("client initial secret = %x, want %x", clientSecret, wantClient)
	}
	if !bytes.Equal(serverSecret, wantServer) {
		t.Errorf("server initial secret = %x, want %x", serverSecret, wantServer)
	}
}

// TestInitialKeysRFC9001Vectors checks the Key/IV/HP triple derived
// from each Initial secret against RFC 9001 Appendix A.
func TestInitialKeysRFC9001Vectors(t *testing.T) {
	dcid := hexBytes(t, "8394c8f03e515708")
	clientSecret, serverSecret := deriveInitialSecrets(dcid)

	clientKeys, err := deriveKeys(clientSecret, SuiteAES128GCM)
	if err != nil {
		t.Fatalf("deriveKeys(client): %v", err)
	}
	serverKeys, err := deriveKeys(serverSecret, SuiteAES128GCM)
	if err != nil {
		t.Fatalf("deriveKeys(server): %v", err)
	}

	checks := []struct {
		name string
		got  []byte
		want string
	}{
		{"client key", clientKeys.Key, "1f369613dd76d5467730efcbe3b1a22d"},
		{"client iv", clientKeys.IV, "fa044b2f42a3fd3b46fb255c"},
		{"client hp", clientKeys.HP, "9f50449e04a0e810283a1e9933adedd2"},
		{"server key", serverKeys.Key, "cf3a5331653c364c88f0f379b6067e37"},
		{"server iv", serverKeys.IV, "0ac1493ca1905853b0bba03e"},
		{"server hp", serverKeys.HP, "c206b8d9b9f0f37644430b490eeaa314"},
	}
	for _, c := range checks {
		want := hexBytes(t, c.want)
		if !bytes.Equal(c.got, want) {
			t.Errorf("%s = %x, want %x", c.name, c.got, want)
		}
	}
}

func TestNewInitialKeysClientServerMirror(t *testing.T) {
	dcid := hexBytes(t, "8394c8f03e515708")

	clientSend, clientRecv, err := NewInitialKeys(dcid, true)
	if err != nil {
		t.Fatalf("NewInitialKeys(client): %v", err)
	}
	serverSend, serverRecv, err := NewInitialKeys(dcid, false)
	if err != nil {
		t.Fatalf("NewInitialKeys(server): %v", err)
	}

	if !bytes.Equal(clientSend.Key, serverRecv.Key) {
		t.Error("client's send key should equal server's receive key")
	}
	if !bytes.Equal(serverSend.Key, clientRecv.Key) {
		t.Error("server's send key should equal client's receive key")
	}
}

func TestDeriveEpochKeysRoundTrip(t *testing.T) {
	sendSecret := bytes.Repeat([]byte{0x11}, 32)
	recvSecret := bytes.Repeat([]byte{0x22}, 32)

	send, recv, err := DeriveEpochKeys(sendSecret, recvSecret, SuiteChaCha20Poly1305)
	if err != nil {
		t.Fatalf("DeriveEpochKeys: %v", err)
	}
	if send.AEAD == nil || recv.AEAD == nil {
		t.Fatal("AEAD should be populated for both directions")
	}
	if bytes.Equal(send.Key, recv.Key) {
		t.Error("distinct secrets should not derive identical keys")
	}
	if send.Suite != SuiteChaCha20Poly1305 || recv.Suite != SuiteChaCha20Poly1305 {
		t.Error("Suite should be recorded on both CryptoKeys")
	}
}

func TestDeriveKeysUnknownSuite(t *testing.T) {
	_, err := deriveKeys(bytes.Repeat([]byte{0x01}, 32), Suite(99))
	if err != errUnknownCipherSuite {
		t.Errorf("error = %v, want errUnknownCipherSuite", err)
	}
}
