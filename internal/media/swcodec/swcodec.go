// Package swcodec implements internal/media's Encoder and Decoder contracts
// with a software H264 backend via github.com/y9o/go-openh264 (a purego
// binding of Cisco's openh264), replacing the teacher's placeholder
// passthrough software encoder with a real codec.
package swcodec

import (
	"fmt"
	"sync"
	"time"

	"github.com/y9o/go-openh264/openh264dec"
	"github.com/y9o/go-openh264/openh264enc"

	"github.com/relaycast/core/internal/logging"
	"github.com/relaycast/core/internal/media"
)

var log = logging.L("swcodec")

// Encoder wraps an openh264 encoder instance behind media.Encoder.
type Encoder struct {
	mu     sync.Mutex
	cfg    media.EncoderConfig
	enc    *openh264enc.Encoder
	closed bool
}

// NewEncoder returns an unconfigured Encoder; Init must be called before
// Encode.
func NewEncoder() *Encoder {
	return &Encoder{}
}

func (e *Encoder) Init(cfg media.EncoderConfig) error {
	if cfg.Codec != media.CodecH264 {
		return fmt.Errorf("%w: swcodec only supports H264, got %s", media.ErrInvalidCodec, cfg.Codec)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return media.ErrInvalidDimensions
	}
	if cfg.BitrateKbps <= 0 {
		return media.ErrInvalidBitrate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	enc, err := openh264enc.NewEncoder(&openh264enc.Params{
		Width:        cfg.Width,
		Height:       cfg.Height,
		BitrateBps:   cfg.BitrateKbps * 1000,
		MaxFrameRate: float32(cfg.FPS),
		GOPLength:    cfg.GOPLength,
		UsageType:    openh264enc.ScreenContentRealTime,
	})
	if err != nil {
		return fmt.Errorf("swcodec: openh264 encoder init: %w", err)
	}
	e.enc = enc
	e.cfg = cfg
	log.Info("encoder initialized", "width", cfg.Width, "height", cfg.Height, "bitrateKbps", cfg.BitrateKbps, "fps", cfg.FPS)
	return nil
}

// Encode submits one I420 frame and returns the encoded Annex-B/NAL payload.
func (e *Encoder) Encode(frame []byte, captureTime time.Time) (media.EncodedPacket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.enc == nil {
		return media.EncodedPacket{}, media.ErrNotInitialized
	}

	out, isKeyframe, err := e.enc.EncodeFrame(frame)
	if err != nil {
		return media.EncodedPacket{}, fmt.Errorf("swcodec: encode: %w", err)
	}
	return media.EncodedPacket{
		Payload:     out,
		TimestampUs: uint32(captureTime.UnixMicro()),
		Keyframe:    isKeyframe,
	}, nil
}

func (e *Encoder) Reconfigure(bitrateKbps, fps int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		return media.ErrNotInitialized
	}
	if bitrateKbps > 0 {
		if err := e.enc.SetBitrate(bitrateKbps * 1000); err != nil {
			return fmt.Errorf("swcodec: set bitrate: %w", err)
		}
		e.cfg.BitrateKbps = bitrateKbps
	}
	if fps > 0 {
		if err := e.enc.SetMaxFrameRate(float32(fps)); err != nil {
			return fmt.Errorf("swcodec: set fps: %w", err)
		}
		e.cfg.FPS = fps
	}
	return nil
}

func (e *Encoder) ForceIDR() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.enc == nil {
		return media.ErrNotInitialized
	}
	return e.enc.ForceIntraFrame()
}

func (e *Encoder) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.enc == nil {
		return nil
	}
	e.closed = true
	return e.enc.Close()
}

// Decoder wraps an openh264 decoder instance behind media.Decoder.
type Decoder struct {
	mu     sync.Mutex
	cfg    media.DecoderConfig
	dec    *openh264dec.Decoder
	closed bool
}

// NewDecoder returns an unconfigured Decoder; Init must be called before
// Decode.
func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Init(cfg media.DecoderConfig) error {
	if cfg.Codec != media.CodecH264 {
		return fmt.Errorf("%w: swcodec only supports H264, got %s", media.ErrInvalidCodec, cfg.Codec)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	dec, err := openh264dec.NewDecoder(nil)
	if err != nil {
		return fmt.Errorf("swcodec: openh264 decoder init: %w", err)
	}
	d.dec = dec
	d.cfg = cfg
	return nil
}

func (d *Decoder) Decode(payload []byte, timestampUs uint32, isKeyframe bool) (media.DecodedFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.dec == nil {
		return media.DecodedFrame{}, media.ErrNotInitialized
	}

	yuv, width, height, err := d.dec.DecodeFrame(payload)
	if err != nil {
		return media.DecodedFrame{}, fmt.Errorf("swcodec: decode: %w", err)
	}
	if yuv == nil {
		// Decoder buffered the NAL without producing a picture yet (e.g.
		// parameter sets only); not an error.
		return media.DecodedFrame{}, nil
	}
	return media.DecodedFrame{
		Pixels:      yuv,
		Width:       width,
		Height:      height,
		TimestampUs: timestampUs,
		Keyframe:    isKeyframe,
	}, nil
}

func (d *Decoder) Flush() error {
	return nil
}

func (d *Decoder) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.dec == nil {
		return nil
	}
	d.closed = true
	return d.dec.Close()
}
