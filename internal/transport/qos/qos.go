// Package qos implements the §4.7 QoS reporter: a fixed-cadence accumulator
// of receive-side network quality signals, emitted as QOS_FEEDBACK packets
// back to the sender.
package qos

import (
	"time"

	"github.com/relaycast/core/internal/wire"
)

// DefaultInterval is the §4.7 default reporting cadence.
const DefaultInterval = 200 * time.Millisecond

// jitterAlpha is the RFC-3550 smoothing divisor (1/16).
const jitterAlpha = 16.0

// Reporter accumulates per-interval receive statistics and produces
// QOS_FEEDBACK snapshots. Not safe for concurrent use; the receive stage
// that feeds it and the timer that snapshots it must be serialized by the
// caller (the pipeline coordinator owns both on one goroutine's behalf, or
// guards this with its own lock).
type Reporter struct {
	// jitter is the running RFC-3550 smoothed estimate; it persists across
	// intervals, only the snapshot report is periodic.
	jitter float64

	havePrev    bool
	prevArrival time.Time
	prevTsUs    uint32

	packetsReceived int
	bytesReceived   int

	samples []gradientSample

	haveIntervalStart bool
}

type gradientSample struct {
	x float64 // sample index within the interval
	y float64 // arrival_time - timestamp_us, in microseconds
}

// New returns an empty Reporter.
func New() *Reporter {
	return &Reporter{}
}

// RecordPacket feeds one received VIDEO/AUDIO packet's arrival into the
// running jitter estimate and the current interval's accumulators.
func (r *Reporter) RecordPacket(arrival time.Time, timestampUs uint32, sizeBytes int) {
	r.packetsReceived++
	r.bytesReceived += sizeBytes

	if r.havePrev {
		arrivalDeltaUs := float64(arrival.Sub(r.prevArrival).Microseconds())
		tsDeltaUs := float64(int64(timestampUs) - int64(r.prevTsUs))
		d := arrivalDeltaUs - tsDeltaUs
		if d < 0 {
			d = -d
		}
		r.jitter += (d - r.jitter) / jitterAlpha
	}
	r.havePrev = true
	r.prevArrival = arrival
	r.prevTsUs = timestampUs

	y := float64(arrival.UnixMicro()) - float64(timestampUs)
	r.samples = append(r.samples, gradientSample{x: float64(len(r.samples)), y: y})
}

// CurrentJitter returns the running smoothed jitter estimate without
// waiting for the next Snapshot, for consumers (the NACK ticker) that need
// an up-to-date jitter figure more often than the 200ms reporting cadence.
func (r *Reporter) CurrentJitter() time.Duration {
	return time.Duration(r.jitter) * time.Microsecond
}

// delayGradient is the least-squares slope of accumulated (sampleIndex,
// arrival_time-timestamp_us) pairs for the current interval, in signed
// microseconds per sample (§4.7).
func (r *Reporter) delayGradient() int32 {
	n := float64(len(r.samples))
	if n < 2 {
		return 0
	}
	var sx, sy, sxy, sxx float64
	for _, s := range r.samples {
		sx += s.x
		sy += s.y
		sxy += s.x * s.y
		sxx += s.x * s.x
	}
	denom := n*sxx - sx*sx
	if denom == 0 {
		return 0
	}
	slope := (n*sxy - sx*sy) / denom
	return int32(slope)
}

// bandwidthKbps estimates throughput from bytes received over the interval
// length (§4.7).
func (r *Reporter) bandwidthKbps(interval time.Duration) uint32 {
	if interval <= 0 {
		return 0
	}
	bits := float64(r.bytesReceived) * 8
	kbps := bits / interval.Seconds() / 1000
	if kbps < 0 {
		kbps = 0
	}
	return uint32(kbps)
}

// Snapshot produces a QOS_FEEDBACK value from the current interval's
// accumulators and resets the interval (the running jitter estimate is not
// reset). elapsed is the wall-clock duration since the previous snapshot,
// used for the bandwidth estimate. lastSeqReceived and nackSeqs are
// supplied by the receive stage and NACK emitter respectively; packetsLost
// is the delta in the NACK tracker's DroppedCount() since the previous
// snapshot.
func (r *Reporter) Snapshot(elapsed time.Duration, lastSeqReceived uint16, packetsLost uint16, nackSeqs []uint16) wire.QoSFeedback {
	f := wire.QoSFeedback{
		LastSeqReceived: lastSeqReceived,
		EstimatedBwKbps: r.bandwidthKbps(elapsed),
		PacketLossX100:  lossRatioX100(r.packetsReceived, packetsLost),
		AvgJitterUs:     clampUint16(r.jitter),
		DelayGradientUs: r.delayGradient(),
		NackSeqs:        nackSeqs,
	}

	r.packetsReceived = 0
	r.bytesReceived = 0
	r.samples = r.samples[:0]

	return f
}

// lossRatioX100 expresses lost/(received+lost) as hundredths of a percent
// (e.g. 250 = 2.50%), matching the wire field's scale.
func lossRatioX100(received int, lost uint16) uint16 {
	total := received + int(lost)
	if total == 0 {
		return 0
	}
	ratio := float64(lost) / float64(total) * 10000
	if ratio > 65535 {
		return 65535
	}
	return uint16(ratio)
}

func clampUint16(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > 65535 {
		return 65535
	}
	return uint16(v)
}
