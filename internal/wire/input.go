package wire

import "encoding/binary"

const inputHeaderLen = 4

// InputType enumerates the four fixed-layout input event payloads.
type InputType uint8

const (
	InputMouseMove InputType = iota
	InputMouseButton
	InputKey
	InputScroll
)

// InputHeader is the 4-byte INPUT wire header (§3).
type InputHeader struct {
	Version       uint8
	InputType     InputType
	PayloadLength uint16
}

func SerializeInput(h InputHeader, payload []byte) []byte {
	out := make([]byte, inputHeaderLen+len(payload))
	out[0] = (h.Version&0x03)<<6 | byte(PacketInput)
	out[1] = byte(h.InputType)
	binary.BigEndian.PutUint16(out[2:4], uint16(len(payload)))
	copy(out[inputHeaderLen:], payload)
	return out
}

func DeserializeInput(data []byte) (InputHeader, []byte, error) {
	if len(data) < inputHeaderLen {
		return InputHeader{}, nil, ErrTooShort
	}
	verType := data[0]
	h := InputHeader{
		Version:       verType >> 6,
		InputType:     InputType(data[1]),
		PayloadLength: binary.BigEndian.Uint16(data[2:4]),
	}
	if PacketType(verType&0x3F) != PacketInput {
		return InputHeader{}, nil, ErrUnknownType
	}
	if h.Version != wireVersion {
		return InputHeader{}, nil, ErrBadVersion
	}
	payload := data[inputHeaderLen:]
	if uint16(len(payload)) > h.PayloadLength {
		payload = payload[:h.PayloadLength]
	}
	return h, payload, nil
}

// MouseMoveEvent is the 5-byte MOUSE_MOVE payload: x,y (int16 BE) + buttons mask (1 byte).
type MouseMoveEvent struct {
	X, Y    int16
	Buttons uint8
}

func (e MouseMoveEvent) Marshal() []byte {
	out := make([]byte, 5)
	binary.BigEndian.PutUint16(out[0:2], uint16(e.X))
	binary.BigEndian.PutUint16(out[2:4], uint16(e.Y))
	out[4] = e.Buttons
	return out
}

func UnmarshalMouseMove(b []byte) (MouseMoveEvent, error) {
	if len(b) < 5 {
		return MouseMoveEvent{}, ErrTooShort
	}
	return MouseMoveEvent{
		X:       int16(binary.BigEndian.Uint16(b[0:2])),
		Y:       int16(binary.BigEndian.Uint16(b[2:4])),
		Buttons: b[4],
	}, nil
}

// MouseButtonEvent is the 2-byte MOUSE_BUTTON payload: button id + down flag.
type MouseButtonEvent struct {
	Button uint8
	Down   bool
}

func (e MouseButtonEvent) Marshal() []byte {
	down := byte(0)
	if e.Down {
		down = 1
	}
	return []byte{e.Button, down}
}

func UnmarshalMouseButton(b []byte) (MouseButtonEvent, error) {
	if len(b) < 2 {
		return MouseButtonEvent{}, ErrTooShort
	}
	return MouseButtonEvent{Button: b[0], Down: b[1] != 0}, nil
}

// KeyEvent is the 4-byte KEY payload: keycode (uint16 BE) + modifiers + down flag.
type KeyEvent struct {
	Keycode   uint16
	Modifiers uint8
	Down      bool
}

func (e KeyEvent) Marshal() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], e.Keycode)
	out[2] = e.Modifiers
	if e.Down {
		out[3] = 1
	}
	return out
}

func UnmarshalKey(b []byte) (KeyEvent, error) {
	if len(b) < 4 {
		return KeyEvent{}, ErrTooShort
	}
	return KeyEvent{
		Keycode:   binary.BigEndian.Uint16(b[0:2]),
		Modifiers: b[2],
		Down:      b[3] != 0,
	}, nil
}

// ScrollEvent is the 4-byte SCROLL payload: x,y delta (int16 BE each).
type ScrollEvent struct {
	DeltaX, DeltaY int16
}

func (e ScrollEvent) Marshal() []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint16(out[0:2], uint16(e.DeltaX))
	binary.BigEndian.PutUint16(out[2:4], uint16(e.DeltaY))
	return out
}

func UnmarshalScroll(b []byte) (ScrollEvent, error) {
	if len(b) < 4 {
		return ScrollEvent{}, ErrTooShort
	}
	return ScrollEvent{
		DeltaX: int16(binary.BigEndian.Uint16(b[0:2])),
		DeltaY: int16(binary.BigEndian.Uint16(b[2:4])),
	}, nil
}
