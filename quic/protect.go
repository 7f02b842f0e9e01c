package quic

import (
	"crypto/aes"
	"encoding/binary"

	"golang.org/x/crypto/chacha20"
)

const hpSampleLen = 16

// headerProtectionMask computes the 5-byte mask RFC 9001 Section 5.4
// derives from a ciphertext sample: AES-ECB of the sample for the
// AES-GCM suites, or the ChaCha20 block function keystream for
// ChaCha20-Poly1305.
func headerProtectionMask(keys *CryptoKeys, sample []byte) ([5]byte, error) {
	var mask [5]byte
	switch keys.Suite {
	case SuiteAES128GCM, SuiteAES256GCM:
		block, err := aes.NewCipher(keys.HP)
		if err != nil {
			return mask, err
		}
		var out [16]byte
		block.Encrypt(out[:], sample)
		copy(mask[:], out[:5])
	case SuiteChaCha20Poly1305:
		counter := binary.LittleEndian.Uint32(sample[0:4])
		nonce := sample[4:16]
		c, err := chacha20.NewUnauthenticatedCipher(keys.HP, nonce)
		if err != nil {
			return mask, err
		}
		c.SetCounter(counter)
		var zero [5]byte
		c.XORKeyStream(mask[:], zero[:])
	default:
		return mask, errUnknownCipherSuite
	}
	return mask, nil
}

// unprotectHeader removes header protection in place: it unmasks the
// first byte's low bits, then the n packet-number bytes the unmasked
// first byte reveals, reading the truncated PN big-endian. On a
// truncated sample it sets the sentinel pn/pnmask the spec calls for
// so AEAD authentication below fails cleanly instead of panicking.
func unprotectHeader(data []byte, hdr *PacketHeader, keys *CryptoKeys) error {
	isLong := data[0]&longHeaderBit != 0

	sampleOffset := int(hdr.PNOffset) + 4
	if sampleOffset+hpSampleLen > len(data) {
		hdr.PN = 0xFFFFFFFF
		hdr.PNMask = 0xFFFFFFFF00000000
		hdr.Offset = hdr.PNOffset
		return nil
	}

	mask, err := headerProtectionMask(keys, data[sampleOffset:sampleOffset+hpSampleLen])
	if err != nil {
		return err
	}

	if isLong {
		data[0] ^= mask[0] & 0x0F
	} else {
		data[0] ^= mask[0] & 0x1F
	}

	n := int(data[0]&pnLenMask) + 1
	pnStart := int(hdr.PNOffset)
	if pnStart+n > len(data) {
		hdr.PN = 0xFFFFFFFF
		hdr.PNMask = 0xFFFFFFFF00000000
		hdr.Offset = hdr.PNOffset
		return nil
	}

	var pn uint32
	for i := 0; i < n; i++ {
		data[pnStart+i] ^= mask[1+i]
		pn = pn<<8 | uint32(data[pnStart+i])
	}

	hdr.PN = pn
	hdr.PNMask = pnMask(n)
	hdr.Offset = hdr.PNOffset + uint32(n)

	if int(hdr.PayloadLength) < n {
		hdr.PayloadLength = 0
	} else {
		hdr.PayloadLength -= uint16(n)
	}

	if !isLong {
		if data[0]&keyPhaseBit != 0 {
			hdr.Type = PacketOneRttPhase1
		} else {
			hdr.Type = PacketOneRttPhase0
		}
	}

	return nil
}

// packetNonce builds the per-packet AEAD nonce: the epoch IV XORed
// with the reconstructed packet number in its low-order bytes, per
// RFC 9001 Section 5.3.
func packetNonce(iv []byte, pn64 uint64) []byte {
	nonce := make([]byte, len(iv))
	copy(nonce, iv)
	var pnBytes [8]byte
	binary.BigEndian.PutUint64(pnBytes[:], pn64)
	offset := len(nonce) - 8
	for i := 0; i < 8 && offset+i >= 0; i++ {
		nonce[offset+i] ^= pnBytes[i]
	}
	return nonce
}

// Open performs header-protection removal, packet-number
// reconstruction, duplicate lookup against recvSet, and in-place AEAD
// decryption as a single pass over one segment — mirroring the
// upstream contract where already-received detection is an
// out-parameter of the same call that authenticates the packet,
// rather than a second decrypt.
//
// data is the segment buffer ParseHeader parsed (the datagram from this
// segment's first byte onward); hdr has already been produced by
// ParseHeader and is mutated further here (Offset/PN/PN64/PNMask,
// and Type for short headers once the key-phase bit is visible).
// largestReceived is pkt_ctx[hdr.Space].first_sack_item.end_of_sack_range.
//
// On success the returned slice aliases data and holds the decrypted
// payload. On KindDuplicate the payload is not decrypted at all
// (frame processing must be skipped regardless) and the caller is
// still responsible for setting ack_needed.
func Open(data []byte, hdr *PacketHeader, keys *CryptoKeys, largestReceived uint64, recvSet *ReceiveRanges) ([]byte, *Outcome) {
	if hdr.Type == PacketRetry {
		hdr.PN, hdr.PN64, hdr.PNMask = 0, 0, 0
		return data[hdr.Offset : int(hdr.Offset)+int(hdr.PayloadLength)], nil
	}

	if err := unprotectHeader(data, hdr, keys); err != nil {
		return nil, outcome(KindAeadCheck, err)
	}

	expected := largestReceived + 1
	hdr.PN64 = reconstructPN(expected, hdr.PNMask, hdr.PN)

	if recvSet != nil && recvSet.Contains(hdr.PN64) {
		return nil, outcome(KindDuplicate, nil)
	}

	start := int(hdr.Offset)
	end := start + int(hdr.PayloadLength)
	if end > len(data) || start > end {
		return nil, outcome(KindAeadCheck, errAEADCheck)
	}

	ciphertext := data[start:end]
	aad := data[:hdr.Offset]
	nonce := packetNonce(keys.IV, hdr.PN64)

	plaintext, err := keys.AEAD.Open(ciphertext[:0], nonce, ciphertext, aad)
	if err != nil {
		return nil, outcome(KindAeadCheck, errAEADCheck)
	}

	return plaintext, nil
}
