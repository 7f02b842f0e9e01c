package quic

import "net/netip"

// PacketType enumerates the wire-level packet forms this core
// distinguishes. OneRttPhase0/OneRttPhase1 are both the short-header
// steady-state form; which one applies is only known after header
// protection is removed (the key-phase bit lives in the protected
// first byte).
type PacketType int

const (
	PacketError PacketType = iota
	PacketInitial
	PacketZeroRTT
	PacketHandshake
	PacketRetry
	PacketOneRttPhase0
	PacketOneRttPhase1
	PacketVersionNegotiation
)

func (t PacketType) String() string {
	switch t {
	case PacketInitial:
		return "Initial"
	case PacketZeroRTT:
		return "ZeroRtt"
	case PacketHandshake:
		return "Handshake"
	case PacketRetry:
		return "Retry"
	case PacketOneRttPhase0:
		return "OneRttPhase0"
	case PacketOneRttPhase1:
		return "OneRttPhase1"
	case PacketVersionNegotiation:
		return "VersionNegotiation"
	default:
		return "Error"
	}
}

const (
	longHeaderBit  = 0x80
	fixedBit       = 0x40
	longTypeMask   = 0x30
	longTypeShift  = 4
	pnLenMask      = 0x03
	keyPhaseBit    = 0x04
	minLongHeader  = 7 // flags(1) + version(4) + dcil(1) + scil(1), minimum
	minShortHeader = 1
)

// PacketHeader is the parser's output: a stack-scoped record
// describing one coalesced segment. Offsets are relative to the start
// of the buffer passed to ParseHeader, which the dispatcher makes the
// segment itself, so it slices that segment buffer directly.
type PacketHeader struct {
	Type         PacketType
	Version      uint32
	VersionIndex int // -1 if unsupported or not applicable (VN)

	DestCID ConnectionID
	SrceCID ConnectionID

	TokenOffset uint32
	TokenLength uint32

	Offset   uint32 // end of header / start of PN (pre-HP) or payload (post-HP)
	PNOffset uint32 // start of the truncated PN bytes within the datagram

	PN     uint32 // raw truncated packet number
	PN64   uint64 // reconstructed 62-bit packet number
	PNMask uint64

	PayloadLength uint16

	Epoch Epoch
	Space PacketNumberSpace

	HasSpinBit bool
	Spin       uint8
}

// ParseHeader performs the version-aware first-pass parse described
// in the header-parser component: long vs. short header dispatch,
// version support lookup, and CID/token/length field extraction. It
// never reads past len(data); any bounds violation yields a header
// whose Type is PacketError, matching the "report malformed by setting
// offset := datagram_length, ptype := Error" contract of the wire
// primitives.
//
// raddr is currently unused by the parser itself (connection lookup
// against it happens in the registry) but is accepted so that future
// per-source-address parse policy does not change this signature.
func ParseHeader(data []byte, raddr netip.AddrPort, cfg *EndpointConfig) PacketHeader {
	if len(data) == 0 {
		return malformedHeader(data)
	}
	if data[0]&fixedBit == 0 {
		return malformedHeader(data)
	}
	if data[0]&longHeaderBit != 0 {
		return parseLongHeader(data, cfg)
	}
	return parseShortHeader(data, cfg)
}

func malformedHeader(data []byte) PacketHeader {
	return PacketHeader{
		Type:         PacketError,
		VersionIndex: -1,
		Offset:       uint32(len(data)),
	}
}

func parseLongHeader(data []byte, cfg *EndpointConfig) PacketHeader {
	if len(data) < minLongHeader {
		return malformedHeader(data)
	}

	version := uint32(data[1])<<24 | uint32(data[2])<<16 | uint32(data[3])<<8 | uint32(data[4])
	offset := 5

	dcil := int(data[offset])
	offset++
	dcid, n := parseConnectionID(data[offset:], dcil)
	if n != dcil {
		return malformedHeader(data)
	}
	offset += n

	if offset >= len(data) {
		return malformedHeader(data)
	}
	scil := int(data[offset])
	offset++
	scid, n := parseConnectionID(data[offset:], scil)
	if n == 0 {
		return malformedHeader(data)
	}
	offset += n

	if version == 0 {
		return PacketHeader{
			Type:         PacketVersionNegotiation,
			Version:      0,
			VersionIndex: -1,
			DestCID:      dcid,
			SrceCID:      scid,
			Space:        SpaceInitial,
			Offset:       uint32(offset),
		}
	}

	vi := cfg.versionIndex(version)
	if vi < 0 {
		return PacketHeader{
			Type:         PacketError,
			Version:      version,
			VersionIndex: -1,
			DestCID:      dcid,
			SrceCID:      scid,
			Offset:       uint32(offset),
		}
	}

	longType := (data[0] & longTypeMask) >> longTypeShift

	h := PacketHeader{
		Version:      version,
		VersionIndex: vi,
		DestCID:      dcid,
		SrceCID:      scid,
	}

	switch longType {
	case 0: // Initial
		h.Type = PacketInitial
		h.Space = SpaceInitial
		h.Epoch = EpochInitial

		tokenLen, consumed := unmarshalVarint(data[offset:])
		if consumed == 0 {
			return malformedHeader(data)
		}
		offset += consumed
		h.TokenOffset = uint32(offset)
		h.TokenLength = uint32(tokenLen)
		offset += int(tokenLen)
		if offset > len(data) {
			return malformedHeader(data)
		}

		return finishLongPayload(data, offset, h)

	case 1: // 0-RTT
		h.Type = PacketZeroRTT
		h.Space = SpaceApplication
		h.Epoch = EpochZeroRTT
		return finishLongPayload(data, offset, h)

	case 2: // Handshake
		h.Type = PacketHandshake
		h.Space = SpaceHandshake
		h.Epoch = EpochHandshake
		return finishLongPayload(data, offset, h)

	case 3: // Retry
		h.Type = PacketRetry
		h.Space = SpaceInitial
		h.Epoch = EpochInitial
		h.Offset = uint32(offset)
		h.PayloadLength = uint16(len(data) - offset)
		return h

	default:
		return malformedHeader(data)
	}
}

// finishLongPayload decodes the varint payload length shared by
// Initial/0-RTT/Handshake long headers and records where the
// (still header-protected) PN bytes begin.
func finishLongPayload(data []byte, offset int, h PacketHeader) PacketHeader {
	payloadLen, consumed := unmarshalVarint(data[offset:])
	if consumed == 0 {
		return malformedHeader(data)
	}
	offset += consumed

	if uint64(offset)+payloadLen > uint64(len(data)) {
		return malformedHeader(data)
	}

	h.PNOffset = uint32(offset)
	h.Offset = uint32(offset)
	h.PayloadLength = uint16(payloadLen)
	return h
}

func parseShortHeader(data []byte, cfg *EndpointConfig) PacketHeader {
	if len(data) < minShortHeader+cfg.LocalCIDLen {
		return malformedHeader(data)
	}

	dcid, n := parseConnectionID(data[1:], cfg.LocalCIDLen)
	if n != cfg.LocalCIDLen {
		return malformedHeader(data)
	}
	offset := 1 + n

	return PacketHeader{
		Type:         PacketOneRttPhase0,
		VersionIndex: -1,
		DestCID:      dcid,
		Space:        SpaceApplication,
		Epoch:        EpochOneRTT,
		Offset:       uint32(offset),
		PNOffset:     uint32(offset),
		PayloadLength: uint16(len(data) - offset),
		HasSpinBit:   true,
	}
}
