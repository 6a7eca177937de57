package wire

import "encoding/binary"

// controllerHeaderLen: the spec's prose states "13 bytes" but its own field
// list (type, controller_id, 16b sequence, 16b buttons, 2 trigger bytes,
// four int16 thumbstick axes) sums to 16. Resolved in DESIGN.md: the field
// list is normative, the prose byte count is a stale miscount. 16 bytes.
const controllerHeaderLen = 16

// ControllerPacket is the CONTROLLER packet (§3), sent on change at up to
// 120 Hz. The whole packet is the header; there is no separate payload.
type ControllerPacket struct {
	ControllerID uint8 // 0..3
	Sequence     uint16
	Buttons      uint16
	LeftTrigger  uint8
	RightTrigger uint8
	ThumbLX      int16
	ThumbLY      int16
	ThumbRX      int16
	ThumbRY      int16
}

func SerializeController(p ControllerPacket) []byte {
	out := make([]byte, controllerHeaderLen)
	out[0] = tagController
	out[1] = p.ControllerID
	binary.BigEndian.PutUint16(out[2:4], p.Sequence)
	binary.BigEndian.PutUint16(out[4:6], p.Buttons)
	out[6] = p.LeftTrigger
	out[7] = p.RightTrigger
	binary.BigEndian.PutUint16(out[8:10], uint16(p.ThumbLX))
	binary.BigEndian.PutUint16(out[10:12], uint16(p.ThumbLY))
	binary.BigEndian.PutUint16(out[12:14], uint16(p.ThumbRX))
	binary.BigEndian.PutUint16(out[14:16], uint16(p.ThumbRY))
	return out
}

func DeserializeController(data []byte) (ControllerPacket, error) {
	if len(data) < controllerHeaderLen {
		return ControllerPacket{}, ErrTooShort
	}
	if data[0] != tagController {
		return ControllerPacket{}, ErrUnknownType
	}
	return ControllerPacket{
		ControllerID: data[1],
		Sequence:     binary.BigEndian.Uint16(data[2:4]),
		Buttons:      binary.BigEndian.Uint16(data[4:6]),
		LeftTrigger:  data[6],
		RightTrigger: data[7],
		ThumbLX:      int16(binary.BigEndian.Uint16(data[8:10])),
		ThumbLY:      int16(binary.BigEndian.Uint16(data[10:12])),
		ThumbRX:      int16(binary.BigEndian.Uint16(data[12:14])),
		ThumbRY:      int16(binary.BigEndian.Uint16(data[14:16])),
	}, nil
}
