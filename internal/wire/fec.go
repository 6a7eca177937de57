package wire

// FECHeader reuses the VIDEO header's 16-byte shape (§3): Codec is
// repurposed as the group-id field, and the payload is the pair-wise XOR of
// two data packet payloads, zero-padded to the longer operand (§4.4).
type FECHeader struct {
	SequenceNumber uint16
	GroupID        uint8
	FragmentIndex  uint8 // index of the repair packet within its group
	FragmentTotal  uint8 // redundancy count R for this group
	PayloadLength  uint32
}

func SerializeFEC(h FECHeader, payload []byte) []byte {
	out := make([]byte, videoHeaderLen+len(payload))
	out[0] = tagFEC
	out[1] = h.GroupID
	writeUint16(out[2:4], h.SequenceNumber)
	// bytes 4:8 (timestamp) and 8:10 (frame_number) are unused by FEC.
	out[10] = h.FragmentIndex
	out[11] = h.FragmentTotal
	writeUint32(out[12:16], uint32(len(payload)))
	copy(out[videoHeaderLen:], payload)
	return out
}

func DeserializeFEC(data []byte) (FECHeader, []byte, error) {
	if len(data) < videoHeaderLen {
		return FECHeader{}, nil, ErrTooShort
	}
	if data[0] != tagFEC {
		return FECHeader{}, nil, ErrUnknownType
	}
	h := FECHeader{
		GroupID:        data[1],
		SequenceNumber: readUint16(data[2:4]),
		FragmentIndex:  data[10],
		FragmentTotal:  data[11],
		PayloadLength:  readUint32(data[12:16]),
	}
	if h.FragmentTotal == 0 || h.FragmentIndex >= h.FragmentTotal {
		return FECHeader{}, nil, ErrBadFragment
	}
	payload := data[videoHeaderLen:]
	if uint32(len(payload)) > h.PayloadLength {
		payload = payload[:h.PayloadLength]
	}
	return h, payload, nil
}

// NACKPacket is a standalone out-of-cadence retransmission request. In this
// protocol NACKs are normally piggybacked on QOS_FEEDBACK (§4.7); this type
// exists for taxonomy completeness (§3) and is reserved for a future
// priority channel — not emitted by the NACK emitter described in §4.5.
type NACKPacket struct {
	Seqs []uint16
}

func SerializeNACK(p NACKPacket) []byte {
	out := make([]byte, 3+2*len(p.Seqs))
	out[0] = tagNACK
	writeUint16(out[1:3], uint16(len(p.Seqs)))
	for i, s := range p.Seqs {
		off := 3 + i*2
		writeUint16(out[off:off+2], s)
	}
	return out
}

func DeserializeNACK(data []byte) (NACKPacket, error) {
	if len(data) < 3 {
		return NACKPacket{}, ErrTooShort
	}
	if data[0] != tagNACK {
		return NACKPacket{}, ErrUnknownType
	}
	count := int(readUint16(data[1:3]))
	need := 3 + 2*count
	if len(data) < need {
		return NACKPacket{}, ErrTooShort
	}
	p := NACKPacket{Seqs: make([]uint16, count)}
	for i := range p.Seqs {
		off := 3 + i*2
		p.Seqs[i] = readUint16(data[off : off+2])
	}
	return p, nil
}
