package wire

import "errors"

const clipboardHeaderLen = 9
const clipAckHeaderLen = 4

// MaxClipboardPayload is the §3 cap on a single CLIPBOARD packet's text
// payload.
const MaxClipboardPayload = 65536

// ClipboardDirection distinguishes which peer originated the text.
type ClipboardDirection uint8

const (
	ClipboardViewerToHost ClipboardDirection = iota
	ClipboardHostToViewer
)

// ClipboardFormat enumerates supported payload encodings. v1 only defines
// TEXT_UTF8 (§3).
type ClipboardFormat uint8

const ClipboardFormatTextUTF8 ClipboardFormat = 0

// ClipboardHeader is the CLIPBOARD wire header (§3).
type ClipboardHeader struct {
	Direction ClipboardDirection
	Sequence  uint16
	Format    ClipboardFormat
	Length    uint32
}

func SerializeClipboard(h ClipboardHeader, text []byte) ([]byte, error) {
	if len(text) > MaxClipboardPayload {
		return nil, errClipboardTooLarge
	}
	out := make([]byte, clipboardHeaderLen+len(text))
	out[0] = tagClipboard
	out[1] = byte(h.Direction)
	writeUint16(out[2:4], h.Sequence)
	out[4] = byte(h.Format)
	writeUint32(out[5:9], uint32(len(text)))
	copy(out[clipboardHeaderLen:], text)
	return out, nil
}

func DeserializeClipboard(data []byte) (ClipboardHeader, []byte, error) {
	if len(data) < clipboardHeaderLen {
		return ClipboardHeader{}, nil, ErrTooShort
	}
	if data[0] != tagClipboard {
		return ClipboardHeader{}, nil, ErrUnknownType
	}
	h := ClipboardHeader{
		Direction: ClipboardDirection(data[1]),
		Sequence:  readUint16(data[2:4]),
		Format:    ClipboardFormat(data[4]),
		Length:    readUint32(data[5:9]),
	}
	payload := data[clipboardHeaderLen:]
	if uint32(len(payload)) > h.Length {
		payload = payload[:h.Length]
	}
	if len(payload) > MaxClipboardPayload {
		return ClipboardHeader{}, nil, errClipboardTooLarge
	}
	return h, payload, nil
}

// ClipAck acknowledges a CLIPBOARD packet by mirroring its sequence number.
type ClipAck struct {
	Sequence uint16
}

func SerializeClipAck(a ClipAck) []byte {
	out := make([]byte, clipAckHeaderLen)
	out[0] = tagClipAck
	writeUint16(out[2:4], a.Sequence)
	return out
}

func DeserializeClipAck(data []byte) (ClipAck, error) {
	if len(data) < clipAckHeaderLen {
		return ClipAck{}, ErrTooShort
	}
	if data[0] != tagClipAck {
		return ClipAck{}, ErrUnknownType
	}
	return ClipAck{Sequence: readUint16(data[2:4])}, nil
}

var errClipboardTooLarge = errors.New("wire: clipboard payload exceeds 65536 bytes")
