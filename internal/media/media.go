// Package media defines the pinned external-collaborator contracts from §6:
// Decoder, Encoder and Renderer. The pipeline coordinator (internal/pipeline)
// depends only on these interfaces; concrete backends (internal/media/swcodec
// for software H264, or a future hardware backend) implement them.
package media

import (
	"errors"
	"time"
)

// Codec identifies a negotiated video codec (§6 session configuration:
// "codec ∈ {H264,H265,AV1}").
type Codec string

const (
	CodecH264 Codec = "h264"
	CodecH265 Codec = "h265"
	CodecAV1  Codec = "av1"
)

var (
	ErrInvalidCodec      = errors.New("media: invalid codec")
	ErrInvalidDimensions = errors.New("media: invalid width/height")
	ErrInvalidBitrate    = errors.New("media: invalid bitrate")
	ErrNotInitialized    = errors.New("media: handle not initialized")
)

// DecoderConfig is the decoder's init(codec, width, height) contract (§6).
type DecoderConfig struct {
	Codec  Codec
	Width  int
	Height int
}

// DecodedFrame is one decoder output: raw pixel data plus presentation
// metadata threaded through from the VIDEO packet header.
type DecodedFrame struct {
	Pixels      []byte
	Width       int
	Height      int
	TimestampUs uint32
	Keyframe    bool
}

// Decoder is the §6 "Decoder contract (external)": init / decode / flush /
// release. Implementations need not be thread-safe beyond "only the Decode
// stage calls decode" (§6) — the pipeline coordinator enforces that by
// construction (one Decode goroutine per session).
type Decoder interface {
	Init(cfg DecoderConfig) error
	Decode(payload []byte, timestampUs uint32, isKeyframe bool) (DecodedFrame, error)
	Flush() error
	Release() error
}

// EncoderConfig is the encoder's init(config) contract (§6), carrying the
// session's initial codec/dimensions/rate parameters.
type EncoderConfig struct {
	Codec      Codec
	Width      int
	Height     int
	BitrateKbps int
	FPS        int
	GOPLength  int
}

// EncodedPacket is one encoder output.
type EncodedPacket struct {
	Payload     []byte
	TimestampUs uint32
	Keyframe    bool
}

// Encoder is the §6 "Encoder contract (external)": init / encode /
// reconfigure / force_idr / flush. reconfigure and force_idr are the rate
// controller's (§4.8) two hooks into the encoder.
type Encoder interface {
	Init(cfg EncoderConfig) error
	Encode(frame []byte, captureTime time.Time) (EncodedPacket, error)
	Reconfigure(bitrateKbps, fps int) error
	ForceIDR() error
	Flush() error
}

// Renderer is the §6 "Renderer contract (external)": a single-slot
// latest-wins sink. EnqueueFrame replaces whatever frame is pending;
// Present is invoked by the Render stage on its own pacing.
type Renderer interface {
	EnqueueFrame(frame DecodedFrame)
	Present() error
}

// AudioDecoder is not one of §6's pinned contracts, but §4.9's Audio stage
// description ("on decode failure invokes packet-loss concealment once")
// implies one; added here as a supplementary interface in the same style
// as Decoder, with a sibling Conceal method covering the one-shot PLC path.
type AudioDecoder interface {
	Decode(payload []byte, timestampUs uint32) ([]byte, error)
	Conceal(timestampUs uint32) ([]byte, error)
}

// AudioSink is the playback-side counterpart consumed by the §4.9 Audio
// stage; not named explicitly as a pinned contract in §6 but implied by
// "enqueues PCM to the playback sink".
type AudioSink interface {
	EnqueuePCM(samples []byte, timestampUs uint32)
}
