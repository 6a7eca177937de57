package wire

import "encoding/binary"

const qosBaseLen = 22

// QoSFeedback is the receiver→sender feedback packet (§3, §4.7). The base
// 22 bytes carry two inline NACK sequence numbers; when NackCount > 2 the
// remaining sequence numbers are appended after the base header.
type QoSFeedback struct {
	Flags            uint8
	LastSeqReceived  uint16
	EstimatedBwKbps  uint32
	PacketLossX100   uint16 // 250 = 2.50%
	AvgJitterUs      uint16
	DelayGradientUs  int32
	NackSeqs         []uint16 // full NACK list; len() becomes nack_count on the wire
}

// SerializeQoSFeedback lays out the base 22 bytes followed by any NACK
// sequence numbers beyond the first two.
func SerializeQoSFeedback(f QoSFeedback) []byte {
	nackCount := len(f.NackSeqs)
	out := make([]byte, qosBaseLen+extraNackBytes(nackCount))
	out[0] = tagQoSFeedback
	out[1] = f.Flags
	binary.BigEndian.PutUint16(out[2:4], f.LastSeqReceived)
	binary.BigEndian.PutUint32(out[4:8], f.EstimatedBwKbps)
	binary.BigEndian.PutUint16(out[8:10], f.PacketLossX100)
	binary.BigEndian.PutUint16(out[10:12], f.AvgJitterUs)
	binary.BigEndian.PutUint32(out[12:16], uint32(f.DelayGradientUs))
	binary.BigEndian.PutUint16(out[16:18], uint16(nackCount))

	var s0, s1 uint16
	if nackCount > 0 {
		s0 = f.NackSeqs[0]
	}
	if nackCount > 1 {
		s1 = f.NackSeqs[1]
	}
	binary.BigEndian.PutUint16(out[18:20], s0)
	binary.BigEndian.PutUint16(out[20:22], s1)

	for i := 2; i < nackCount; i++ {
		off := qosBaseLen + (i-2)*2
		binary.BigEndian.PutUint16(out[off:off+2], f.NackSeqs[i])
	}
	return out
}

func extraNackBytes(nackCount int) int {
	if nackCount <= 2 {
		return 0
	}
	return (nackCount - 2) * 2
}

func DeserializeQoSFeedback(data []byte) (QoSFeedback, error) {
	if len(data) < qosBaseLen {
		return QoSFeedback{}, ErrTooShort
	}
	if data[0] != tagQoSFeedback {
		return QoSFeedback{}, ErrUnknownType
	}
	f := QoSFeedback{
		Flags:           data[1],
		LastSeqReceived: binary.BigEndian.Uint16(data[2:4]),
		EstimatedBwKbps: binary.BigEndian.Uint32(data[4:8]),
		PacketLossX100:  binary.BigEndian.Uint16(data[8:10]),
		AvgJitterUs:     binary.BigEndian.Uint16(data[10:12]),
		DelayGradientUs: int32(binary.BigEndian.Uint32(data[12:16])),
	}
	nackCount := int(binary.BigEndian.Uint16(data[16:18]))
	s0 := binary.BigEndian.Uint16(data[18:20])
	s1 := binary.BigEndian.Uint16(data[20:22])

	need := qosBaseLen + extraNackBytes(nackCount)
	if len(data) < need {
		return QoSFeedback{}, ErrTooShort
	}

	f.NackSeqs = make([]uint16, 0, nackCount)
	if nackCount > 0 {
		f.NackSeqs = append(f.NackSeqs, s0)
	}
	if nackCount > 1 {
		f.NackSeqs = append(f.NackSeqs, s1)
	}
	for i := 2; i < nackCount; i++ {
		off := qosBaseLen + (i-2)*2
		f.NackSeqs = append(f.NackSeqs, binary.BigEndian.Uint16(data[off:off+2]))
	}
	return f, nil
}
