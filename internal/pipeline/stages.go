package pipeline

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/relaycast/core/internal/wire"
)

// maxDatagram is the largest post-decryption UDP payload the receive loop
// will read into (§6: "Max datagram payload after DTLS decryption is 1400
// bytes"); sized with headroom for any transport slack.
const maxDatagram = 2048

// receiveLoop is stage 1 (§4.9): blocking read, decrypt, classify,
// dispatch. It does no heavy work — every dispatch target either enqueues
// or hands off to another stage/subsystem.
func (c *Coordinator) receiveLoop(ctx context.Context) {
	buf := make([]byte, maxDatagram)
	starved := time.Now()

	for c.running.Load() {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}

		if c.channel == nil {
			return
		}
		_ = c.channel.SetReadDeadline(time.Now().Add(receivePoll))
		n, err := c.channel.Decrypt(buf)
		if err != nil {
			if isTimeout(err) {
				if time.Since(starved) > 2*time.Second {
					c.reconnecting("no video for over 2s")
				}
				continue
			}
			c.reconnecting(err.Error())
			continue
		}
		if n == 0 {
			continue
		}
		if c.dispatch(buf[:n]) {
			starved = time.Now()
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// dispatch classifies one decrypted datagram and routes it per §4.9 point
// 1. It reports whether the datagram was a VIDEO packet, so the receive
// loop's starvation timer (§4.9: ">2s without any video") resets only on
// video traffic, not on audio/clipboard/control chatter.
func (c *Coordinator) dispatch(data []byte) bool {
	kind, err := wire.Classify(data)
	if err != nil {
		log.Debug("dropping unclassifiable packet", "error", err)
		return false
	}

	now := time.Now()
	switch kind {
	case wire.PacketVideo:
		h, payload, err := wire.DeserializeVideo(data)
		if err != nil {
			log.Debug("dropping malformed VIDEO packet", "error", err)
			return false
		}
		c.metrics.RecordReceive()
		if c.fecCache != nil {
			raw := make([]byte, len(data))
			copy(raw, data)
			c.fecCache.Store(h.SequenceNumber, raw)
		}
		c.ingestVideo(h, payload, now)
		return true

	case wire.PacketFEC:
		fh, repairPayload, err := wire.DeserializeFEC(data)
		if err != nil {
			log.Debug("dropping malformed FEC packet", "error", err)
			return false
		}
		c.tryRecoverFEC(fh, repairPayload)

	case wire.PacketAudio:
		h, payload, err := wire.DeserializeAudio(data)
		if err != nil {
			log.Debug("dropping malformed AUDIO packet", "error", err)
			return false
		}
		c.metrics.RecordAudioReceive()
		select {
		case c.audioQueue <- audioPacket{payload: payload, timestampUs: h.TimestampUs}:
		default:
			c.metrics.RecordDrop()
		}

	case wire.PacketInput:
		h, payload, err := wire.DeserializeInput(data)
		if err != nil {
			log.Debug("dropping malformed INPUT packet", "error", err)
			return false
		}
		if c.sidecars.OnInput != nil {
			c.sidecars.OnInput(h, payload)
		}

	case wire.PacketController:
		p, err := wire.DeserializeController(data)
		if err != nil {
			log.Debug("dropping malformed CONTROLLER packet", "error", err)
			return false
		}
		if c.sidecars.OnController != nil {
			c.sidecars.OnController(p)
		}

	case wire.PacketClipboard:
		h, text, err := wire.DeserializeClipboard(data)
		if err != nil {
			log.Debug("dropping malformed CLIPBOARD packet", "error", err)
			return false
		}
		if c.sidecars.OnClipboard != nil {
			c.sidecars.OnClipboard(h, text)
		}

	case wire.PacketClipAck:
		a, err := wire.DeserializeClipAck(data)
		if err != nil {
			log.Debug("dropping malformed CLIP_ACK packet", "error", err)
			return false
		}
		if c.sidecars.OnClipAck != nil {
			c.sidecars.OnClipAck(a)
		}

	case wire.PacketQoSFeedback:
		f, err := wire.DeserializeQoSFeedback(data)
		if err != nil {
			log.Debug("dropping malformed QOS_FEEDBACK packet", "error", err)
			return false
		}
		if c.rateController != nil {
			c.rateController.Update(f, c.senderAdapter())
		}

	case wire.PacketNACK:
		p, err := wire.DeserializeNACK(data)
		if err != nil {
			log.Debug("dropping malformed NACK packet", "error", err)
			return false
		}
		if c.rateController != nil {
			c.rateController.Replay(p.Seqs, c.senderAdapter())
		}
	}
	return false
}

// channelSender adapts Channel.Encrypt to ratecontrol.Sender.
type channelSender struct{ c Channel }

func (s channelSender) Send(payload []byte) error { return s.c.Encrypt(payload) }

func (c *Coordinator) senderAdapter() channelSender { return channelSender{c: c.channel} }

// decodeLoop is stage 2 (§4.9): pops complete frames from the jitter
// buffer at ~5ms polling intervals, decodes, and enqueues to the renderer.
func (c *Coordinator) decodeLoop() {
	ticker := time.NewTicker(decodePoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.running.Load() {
				return
			}
			c.decodeOnce()
		}
	}
}

func (c *Coordinator) decodeOnce() {
	if c.jitterBuf == nil {
		return
	}
	popped, ok := c.jitterBuf.Pop(time.Now())
	if !ok {
		return
	}
	if c.jitterBuf.NeedsRefresh() {
		log.Debug("jitter buffer signaled a keyframe reset; decoder will refresh on next keyframe")
	}
	if c.decoder == nil {
		return
	}

	start := time.Now()
	frame, err := c.decoder.Decode(popped.Payload, popped.Header.TimestampUs, popped.Header.Keyframe)
	c.metrics.RecordDecode(time.Since(start))
	if err != nil {
		c.metrics.RecordDrop()
		log.Debug("decode failed, dropping frame", "frame", popped.Header.FrameNumber, "error", err)
		return
	}
	if c.renderer != nil {
		c.renderer.EnqueueFrame(frame)
	}
}

// renderLoop is stage 3 (§4.9): always presents the freshest available
// frame; older pending frames are implicitly discarded by the renderer's
// single-slot latest-wins contract.
func (c *Coordinator) renderLoop() {
	ticker := time.NewTicker(renderPoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.running.Load() {
				return
			}
			if c.renderer == nil {
				continue
			}
			if err := c.renderer.Present(); err != nil {
				log.Debug("present failed", "error", err)
				continue
			}
			c.metrics.RecordRender()
		}
	}
}

// audioLoop is stage 4 (§4.9): consumes the audio queue; on decode failure
// invokes packet-loss concealment once; enqueues PCM to the playback sink.
func (c *Coordinator) audioLoop() {
	ticker := time.NewTicker(audioPoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case pkt := <-c.audioQueue:
			c.handleAudioPacket(pkt)
		case <-ticker.C:
			if !c.running.Load() {
				return
			}
		}
	}
}

func (c *Coordinator) handleAudioPacket(pkt audioPacket) {
	if c.audioDecoder == nil {
		if c.audioSink != nil {
			c.audioSink.EnqueuePCM(pkt.payload, pkt.timestampUs)
		}
		return
	}

	pcm, err := c.audioDecoder.Decode(pkt.payload, pkt.timestampUs)
	if err != nil {
		c.metrics.RecordAudioConcealment()
		pcm, err = c.audioDecoder.Conceal(pkt.timestampUs)
		if err != nil {
			log.Debug("audio concealment failed", "error", err)
			return
		}
	}
	if c.audioSink != nil {
		c.audioSink.EnqueuePCM(pcm, pkt.timestampUs)
	}
}

// nackTickerLoop polls the NACK tracker on the §4.5 ~5ms cadence and
// accumulates due sequences for the next QoS snapshot to carry.
func (c *Coordinator) nackTickerLoop() {
	ticker := time.NewTicker(nackPoll)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !c.running.Load() {
				return
			}
			if c.nackTracker == nil {
				continue
			}
			jitterEstimate := time.Duration(0)
			if c.qosReporter != nil {
				jitterEstimate = c.qosReporter.CurrentJitter()
			}
			due := c.nackTracker.Due(c.rttEstimate, jitterEstimate)
			if len(due) == 0 {
				continue
			}
			c.dueMu.Lock()
			c.duePending = append(c.duePending, due...)
			c.dueMu.Unlock()
		}
	}
}

// qosTimerLoop emits a QOS_FEEDBACK packet on the §4.7 default 200ms
// cadence, draining whatever NACK sequences the ticker accumulated since
// the last report.
func (c *Coordinator) qosTimerLoop() {
	if c.qosReporter == nil {
		return
	}
	ticker := time.NewTicker(c.qosInterval)
	defer ticker.Stop()

	var lastDropped uint64
	last := time.Now()

	for {
		select {
		case <-c.done:
			return
		case now := <-ticker.C:
			if !c.running.Load() {
				return
			}
			elapsed := now.Sub(last)
			last = now

			var lossDelta uint16
			if c.nackTracker != nil {
				dropped := c.nackTracker.DroppedCount()
				delta := dropped - lastDropped
				lastDropped = dropped
				if delta > 0xFFFF {
					lossDelta = 0xFFFF
				} else {
					lossDelta = uint16(delta)
				}
			}

			c.dueMu.Lock()
			seqs := c.duePending
			c.duePending = nil
			c.dueMu.Unlock()

			feedback := c.qosReporter.Snapshot(elapsed, c.lastSequenceReceived(), lossDelta, seqs)
			if c.channel != nil {
				if err := c.channel.Encrypt(wire.SerializeQoSFeedback(feedback)); err != nil {
					log.Debug("failed to send QOS_FEEDBACK", "error", err)
				}
			}
		}
	}
}
