package wire

import "encoding/binary"

const audioHeaderLen = 8

// AudioHeader is the 8-byte AUDIO wire header (§3): an Opus frame follows,
// 48 kHz stereo, 10 ms per packet.
type AudioHeader struct {
	Version        uint8
	ChannelID      uint8
	SequenceNumber uint16
	TimestampUs    uint32
}

func SerializeAudio(h AudioHeader, payload []byte) []byte {
	out := make([]byte, audioHeaderLen+len(payload))
	out[0] = (h.Version&0x03)<<6 | byte(PacketAudio)
	out[1] = h.ChannelID
	binary.BigEndian.PutUint16(out[2:4], h.SequenceNumber)
	binary.BigEndian.PutUint32(out[4:8], h.TimestampUs)
	copy(out[audioHeaderLen:], payload)
	return out
}

func DeserializeAudio(data []byte) (AudioHeader, []byte, error) {
	if len(data) < audioHeaderLen {
		return AudioHeader{}, nil, ErrTooShort
	}
	verType := data[0]
	h := AudioHeader{
		Version:        verType >> 6,
		ChannelID:      data[1],
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		TimestampUs:    binary.BigEndian.Uint32(data[4:8]),
	}
	if PacketType(verType&0x3F) != PacketAudio {
		return AudioHeader{}, nil, ErrUnknownType
	}
	if h.Version != wireVersion {
		return AudioHeader{}, nil, ErrBadVersion
	}
	return h, data[audioHeaderLen:], nil
}
