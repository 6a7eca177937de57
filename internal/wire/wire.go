// Package wire implements bit-exact serialization of the transport's packet
// taxonomy: fixed-layout headers converted between host structs and
// big-endian wire bytes, with the sanity checks the transport depends on.
//
// Every header type exposes a Serialize/Deserialize pair. Deserialize never
// panics; malformed input yields one of the sentinel errors below so the
// receive loop can log-and-drop per the Wire error kind in §7.
package wire

import (
	"encoding/binary"
	"errors"
)

func writeUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func writeUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func readUint16(b []byte) uint16     { return binary.BigEndian.Uint16(b) }
func readUint32(b []byte) uint32     { return binary.BigEndian.Uint32(b) }

var (
	ErrTooShort    = errors.New("wire: packet too short")
	ErrBadVersion  = errors.New("wire: unsupported version")
	ErrBadFragment = errors.New("wire: fragment_index >= fragment_total")
	ErrUnknownType = errors.New("wire: unknown packet type")
)

// Codec identifies the video coding format carried in a VIDEO/FEC packet.
type Codec uint8

const (
	CodecH264 Codec = iota + 1
	CodecH265
	CodecAV1
)

func (c Codec) Valid() bool {
	return c == CodecH264 || c == CodecH265 || c == CodecAV1
}

func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "h264"
	case CodecH265:
		return "h265"
	case CodecAV1:
		return "av1"
	default:
		return "unknown"
	}
}

// PacketType is the top-level tag distinguishing wire packet kinds. Its
// numeric value doubles as the low-6-bit type field embedded in the
// AUDIO/INPUT ver_type byte (see classifyTyped).
type PacketType uint8

const (
	PacketVideo PacketType = iota + 1
	PacketAudio
	PacketInput
	PacketController
	PacketClipboard
	PacketClipAck
	PacketQoSFeedback
	PacketFEC
	PacketNACK
)

func (t PacketType) String() string {
	switch t {
	case PacketVideo:
		return "VIDEO"
	case PacketAudio:
		return "AUDIO"
	case PacketInput:
		return "INPUT"
	case PacketController:
		return "CONTROLLER"
	case PacketClipboard:
		return "CLIPBOARD"
	case PacketClipAck:
		return "CLIP_ACK"
	case PacketQoSFeedback:
		return "QOS_FEEDBACK"
	case PacketFEC:
		return "FEC"
	case PacketNACK:
		return "NACK"
	default:
		return "UNKNOWN"
	}
}

// Verbatim first-byte tags for packet kinds outside the video/audio/input
// upper-bits scheme (§3: "for the rest, the first byte is the tag
// verbatim"). All occupy the 0xC0-0xFF range, whose top two bits (0b11)
// never occur as a valid `version` field on a VIDEO/AUDIO/INPUT header.
const (
	tagClipboard   = 0xC0
	tagClipAck     = 0xC1
	tagController  = 0xC2
	tagQoSFeedback = 0xF0
	tagFEC         = 0xFE
	tagNACK        = 0xFA
)

const wireVersion = 1

// Classify inspects the first byte (and, for VIDEO disambiguation, the
// packet length plus codec byte) of a received datagram and returns the
// packet type it belongs to. This is the §4.1 classify() helper used by the
// receive loop before full header parsing; the pipeline's receive stage
// calls it on every decrypted datagram to pick the deserializer.
func Classify(data []byte) (PacketType, error) {
	if len(data) == 0 {
		return 0, ErrTooShort
	}
	first := data[0]

	switch first {
	case tagClipboard:
		return PacketClipboard, nil
	case tagClipAck:
		return PacketClipAck, nil
	case tagController:
		return PacketController, nil
	case tagQoSFeedback:
		return PacketQoSFeedback, nil
	case tagFEC:
		return PacketFEC, nil
	case tagNACK:
		return PacketNACK, nil
	}

	// AUDIO/INPUT: version occupies the top 2 bits, packet type the low 6.
	type6 := first & 0x3F
	switch PacketType(type6) {
	case PacketAudio:
		if len(data) < audioHeaderLen {
			return 0, ErrTooShort
		}
		return PacketAudio, nil
	case PacketInput:
		if len(data) < inputHeaderLen {
			return 0, ErrTooShort
		}
		return PacketInput, nil
	}

	// Otherwise presume VIDEO iff the codec byte (offset 1) names a known
	// codec (§4.1, §9 open question on the ambiguous-byte fallback).
	if len(data) >= videoHeaderLen {
		codec := Codec(data[1])
		if codec.Valid() {
			return PacketVideo, nil
		}
	}
	return 0, ErrUnknownType
}
