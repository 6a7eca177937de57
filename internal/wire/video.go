package wire

import "encoding/binary"

// videoHeaderLen is the fixed §3/§4.1 VIDEO header size. A compiled-in
// sanity check, not just documentation.
const videoHeaderLen = 16

// FrameType distinguishes intra-coded (I) frames from inter-coded (P/B).
type FrameType uint8

const (
	FrameTypeP FrameType = iota
	FrameTypeI
)

// VideoHeader is the host-byte-order form of the 16-byte VIDEO/FEC wire
// header (§3). FEC packets reuse this exact shape with Codec repurposed as
// a group-id field (§4.4).
type VideoHeader struct {
	Version        uint8 // 2 bits on the wire
	FrameType      FrameType
	Keyframe       bool
	Codec          Codec // FEC packets store their group id here instead
	SequenceNumber uint16
	TimestampUs    uint32
	FrameNumber    uint16
	FragmentIndex  uint8
	FragmentTotal  uint8
	PayloadLength  uint32
}

// SerializeVideo writes header+payload as the 16-byte big-endian VIDEO
// header (I1: FragmentIndex < FragmentTotal is the caller's job to
// guarantee; SerializeVideo rejects violations) followed by payload.
func SerializeVideo(h VideoHeader, payload []byte) ([]byte, error) {
	if h.FragmentTotal == 0 || h.FragmentIndex >= h.FragmentTotal {
		return nil, ErrBadFragment
	}
	out := make([]byte, videoHeaderLen+len(payload))
	writeVideoHeader(out, h, uint32(len(payload)))
	copy(out[videoHeaderLen:], payload)
	return out, nil
}

func writeVideoHeader(buf []byte, h VideoHeader, payloadLen uint32) {
	var b0 byte
	b0 |= (h.Version & 0x03) << 6
	if h.FrameType == FrameTypeI {
		b0 |= 1 << 5
	}
	if h.Keyframe {
		b0 |= 1 << 4
	}
	buf[0] = b0
	buf[1] = byte(h.Codec)
	binary.BigEndian.PutUint16(buf[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(buf[4:8], h.TimestampUs)
	binary.BigEndian.PutUint16(buf[8:10], h.FrameNumber)
	buf[10] = h.FragmentIndex
	buf[11] = h.FragmentTotal
	binary.BigEndian.PutUint32(buf[12:16], payloadLen)
}

// DeserializeVideo parses a 16-byte VIDEO/FEC header and the payload that
// follows. PayloadLength in the header is informational; the returned
// payload slice is bounded by the actual buffer length, whichever is
// shorter, so a truncated datagram yields a short payload rather than an
// out-of-range panic.
func DeserializeVideo(data []byte) (VideoHeader, []byte, error) {
	if len(data) < videoHeaderLen {
		return VideoHeader{}, nil, ErrTooShort
	}
	b0 := data[0]
	h := VideoHeader{
		Version:        b0 >> 6,
		Keyframe:       b0&(1<<4) != 0,
		Codec:          Codec(data[1]),
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		TimestampUs:    binary.BigEndian.Uint32(data[4:8]),
		FrameNumber:    binary.BigEndian.Uint16(data[8:10]),
		FragmentIndex:  data[10],
		FragmentTotal:  data[11],
		PayloadLength:  binary.BigEndian.Uint32(data[12:16]),
	}
	if b0&(1<<5) != 0 {
		h.FrameType = FrameTypeI
	} else {
		h.FrameType = FrameTypeP
	}
	if h.Version != wireVersion {
		return VideoHeader{}, nil, ErrBadVersion
	}
	if h.FragmentTotal == 0 || h.FragmentIndex >= h.FragmentTotal {
		return VideoHeader{}, nil, ErrBadFragment
	}

	payload := data[videoHeaderLen:]
	if uint32(len(payload)) > h.PayloadLength {
		payload = payload[:h.PayloadLength]
	}
	return h, payload, nil
}
