// Package ratecontrol implements the §4.8 host-side rate controller: an
// AIMD bitrate adjuster driven by QOS_FEEDBACK packets, plus NACK-triggered
// replay from the sender-side packet cache.
package ratecontrol

import (
	"github.com/relaycast/core/internal/transport/cache"
	"github.com/relaycast/core/internal/wire"
)

// §4.8 thresholds, expressed in the wire's hundredths-of-a-percent and
// microsecond units.
const (
	lossDecreaseThresholdX100  = 300   // >3%
	lossForceIDRThresholdX100  = 1000  // >10%
	delayGradientDecreaseUs    = 20000 // >20,000us
	lossIncreaseThresholdX100  = 50    // <0.5%
	delayGradientIncreaseUs    = 5000  // <5,000us
	consecutiveGoodForIncrease = 3
	consecutiveBadForBwClamp   = 2

	decreaseFactor  = 0.85 // multiplicative 15% decrease
	bwClampFactor   = 0.9
	bwUnderestimate = 0.7 // estimated_bw_kbps < 0.7 x current_bitrate
)

// Sender abstracts the UDP socket write used to replay a cached packet; the
// pipeline coordinator supplies the real implementation (DTLS-encrypted
// send), tests supply a recording stub.
type Sender interface {
	Send(payload []byte) error
}

// Controller is the §4.8 rate controller. Not safe for concurrent Update
// calls; the QoS-consumer thread is its single writer (§5: "single-writer
// (QoS-consumer thread) on the encoder reconfigure handle").
type Controller struct {
	minBitrateKbps int
	maxBitrateKbps int

	currentBitrateKbps int
	currentFPS         int
	maxFPS             int

	goodStreak int
	badBwCount int

	cache *cache.Ring

	onBitrateChange func(bitrateKbps, fps int)
	onForceIDR      func()
}

// Config holds the tunable bounds and change hooks for a new Controller.
type Config struct {
	MinBitrateKbps  int
	MaxBitrateKbps  int
	InitialBitrate  int
	MaxFPS          int
	InitialFPS      int
	Cache           *cache.Ring
	OnBitrateChange func(bitrateKbps, fps int)
	OnForceIDR      func()
}

// New returns a Controller seeded at cfg.InitialBitrate, clamped to bounds.
func New(cfg Config) *Controller {
	initial := cfg.InitialBitrate
	if initial <= 0 {
		initial = cfg.MinBitrateKbps
	}
	initial = clampInt(initial, cfg.MinBitrateKbps, cfg.MaxBitrateKbps)

	fps := cfg.InitialFPS
	if fps <= 0 {
		fps = cfg.MaxFPS
	}

	return &Controller{
		minBitrateKbps:  cfg.MinBitrateKbps,
		maxBitrateKbps:  cfg.MaxBitrateKbps,
		currentBitrateKbps: initial,
		currentFPS:      fps,
		maxFPS:          cfg.MaxFPS,
		cache:           cfg.Cache,
		onBitrateChange: cfg.OnBitrateChange,
		onForceIDR:      cfg.OnForceIDR,
	}
}

// CurrentBitrateKbps reports the controller's current target.
func (c *Controller) CurrentBitrateKbps() int { return c.currentBitrateKbps }

// SetMaxFPS updates the FPS ceiling, e.g. on a gaming-mode change
// (set_gaming_mode control command).
func (c *Controller) SetMaxFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.maxFPS = fps
	if c.currentFPS > fps {
		c.currentFPS = fps
	}
}

// Update applies one QOS_FEEDBACK interval's reaction rules (§4.8) and, if
// the bitrate or FPS changed, invokes OnBitrateChange. It then forwards any
// piggybacked NACK sequences to the packet cache for replay via send.
func (c *Controller) Update(feedback wire.QoSFeedback, send Sender) {
	prevBitrate := c.currentBitrateKbps
	prevFPS := c.currentFPS

	degrade := feedback.PacketLossX100 > lossDecreaseThresholdX100 ||
		feedback.DelayGradientUs > delayGradientDecreaseUs
	good := feedback.PacketLossX100 < lossIncreaseThresholdX100 &&
		feedback.DelayGradientUs < delayGradientIncreaseUs

	if degrade {
		c.goodStreak = 0
		c.currentBitrateKbps = clampInt(int(float64(c.currentBitrateKbps)*decreaseFactor), c.minBitrateKbps, c.maxBitrateKbps)
		if feedback.PacketLossX100 > lossForceIDRThresholdX100 && c.onForceIDR != nil {
			c.onForceIDR()
		}
	} else if good {
		c.goodStreak++
		if c.goodStreak >= consecutiveGoodForIncrease && c.currentBitrateKbps < c.maxBitrateKbps {
			step := c.minBitrateKbps / 8
			if step < 1 {
				step = 1
			}
			c.currentBitrateKbps = clampInt(c.currentBitrateKbps+step, c.minBitrateKbps, c.maxBitrateKbps)
			c.goodStreak = 0
		}
	} else {
		c.goodStreak = 0
	}

	if float64(feedback.EstimatedBwKbps) < bwUnderestimate*float64(c.currentBitrateKbps) {
		c.badBwCount++
		if c.badBwCount >= consecutiveBadForBwClamp {
			clamped := int(float64(feedback.EstimatedBwKbps) * bwClampFactor)
			if clamped < c.currentBitrateKbps {
				c.currentBitrateKbps = clampInt(clamped, c.minBitrateKbps, c.maxBitrateKbps)
			}
			c.badBwCount = 0
		}
	} else {
		c.badBwCount = 0
	}

	c.currentFPS = clampInt(c.currentFPS, 1, c.maxFPS)

	if (c.currentBitrateKbps != prevBitrate || c.currentFPS != prevFPS) && c.onBitrateChange != nil {
		c.onBitrateChange(c.currentBitrateKbps, c.currentFPS)
	}

	c.Replay(feedback.NackSeqs, send)
}

// Replay looks up each requested sequence in the packet cache and resends
// it verbatim; a miss (the ring has wrapped past that slot) is silently
// ignored (§4.8: "ignore misses (cache wrapped)"). Exported separately from
// Update so a standalone NACK packet (§3 taxonomy, not emitted by the
// receiver's NACK emitter but handled for completeness) can trigger replay
// without perturbing the AIMD bitrate state.
func (c *Controller) Replay(seqs []uint16, send Sender) {
	if c.cache == nil || send == nil {
		return
	}
	for _, seq := range seqs {
		payload, ok := c.cache.Get(seq)
		if !ok {
			continue
		}
		_ = send.Send(payload)
	}
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
