// Package pipeline implements the §4.9 pipeline coordinator and the §5
// concurrency model: four long-lived worker goroutines (Receive, Decode,
// Render, Audio) plus an independent QoS timer and NACK ticker, all sharing
// one session's transport subsystems under fine-grained mutexes rather than
// a single global lock. One Coordinator serves either protocol role (or
// both at once, on a true peer-to-peer leg): whichever sidecars and
// collaborators a role doesn't use are simply left nil and the
// corresponding dispatch path is a no-op.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaycast/core/internal/logging"
	"github.com/relaycast/core/internal/media"
	"github.com/relaycast/core/internal/transport/cache"
	"github.com/relaycast/core/internal/transport/fec"
	"github.com/relaycast/core/internal/transport/jitter"
	"github.com/relaycast/core/internal/transport/nack"
	"github.com/relaycast/core/internal/transport/qos"
	"github.com/relaycast/core/internal/transport/ratecontrol"
	"github.com/relaycast/core/internal/wire"
)

var log = logging.L("pipeline")

// Poll intervals from §5's suspension/blocking-point table.
const (
	receivePoll = 100 * time.Millisecond
	decodePoll  = 5 * time.Millisecond
	renderPoll  = 16 * time.Millisecond
	audioPoll   = 5 * time.Millisecond
	nackPoll    = 5 * time.Millisecond
)

// defaultRTTEstimate seeds the NACK emitter's threshold (rtt+jitter+2ms)
// until a real RTT measurement is wired in; the spec names rtt_estimate as
// an input to §4.5 but does not define how it is produced (Open Question,
// recorded in DESIGN.md).
const defaultRTTEstimate = 50 * time.Millisecond

// Channel is the encrypted transport this coordinator reads from and writes
// to — satisfied by *dtlschannel.Channel; an interface here so tests can
// supply an in-memory double.
type Channel interface {
	Decrypt(buf []byte) (int, error)
	Encrypt(payload []byte) error
	SetReadDeadline(t time.Time) error
	Shutdown() error
}

// Sidecars are the optional dispatch hooks for packet kinds this core
// doesn't own the semantics of (clipboard sync, controller/input
// forwarding). A nil hook means that packet kind is silently dropped.
type Sidecars struct {
	OnClipboard  func(wire.ClipboardHeader, []byte)
	OnClipAck    func(wire.ClipAck)
	OnController func(wire.ControllerPacket)
	OnInput      func(wire.InputHeader, []byte)
}

// Config wires a Coordinator's collaborators. Every collaborator field is
// optional except Channel; a nil collaborator means this role doesn't use
// that stage (e.g. a pure sender has no Decoder/Renderer/AudioSink, a pure
// receiver has no RateController).
type Config struct {
	Channel Channel

	JitterBuffer   *jitter.Buffer
	NackTracker    *nack.Tracker
	QoSReporter    *qos.Reporter
	RateController *ratecontrol.Controller
	FECCache       *cache.Ring // receive-side recovery cache; distinct from the sender's replay cache owned by RateController

	Decoder      media.Decoder
	Renderer     media.Renderer
	AudioDecoder media.AudioDecoder
	AudioSink    media.AudioSink

	Sidecars Sidecars

	QoSInterval time.Duration
	RTTEstimate time.Duration

	AudioQueueDepth int
}

type audioPacket struct {
	payload     []byte
	timestampUs uint32
}

// Coordinator owns one session's Receive/Decode/Render/Audio worker
// goroutines, QoS timer, and NACK ticker (§5: "Exactly four long-lived
// worker threads per session ... plus the QoS timer and the NACK ticker").
type Coordinator struct {
	channel Channel

	jitterBuf      *jitter.Buffer
	nackTracker    *nack.Tracker
	qosReporter    *qos.Reporter
	rateController *ratecontrol.Controller
	fecCache       *cache.Ring

	decoder      media.Decoder
	renderer     media.Renderer
	audioDecoder media.AudioDecoder
	audioSink    media.AudioSink

	sidecars Sidecars

	qosInterval time.Duration
	rttEstimate time.Duration

	audioQueue chan audioPacket

	metrics *Metrics

	stateMu sync.RWMutex
	state   State
	errMsg  string

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
	stopOnce sync.Once
	disconnectOnce sync.Once

	lastSeq atomic.Uint32 // last video sequence number received (16 bits used)

	dueMu       sync.Mutex
	duePending  []uint16

	onDisconnect func(state State, errMsg string)
}

// New constructs a Coordinator in StateIdle. It does not start any
// goroutines; call Start.
func New(cfg Config) *Coordinator {
	interval := cfg.QoSInterval
	if interval <= 0 {
		interval = qos.DefaultInterval
	}
	rtt := cfg.RTTEstimate
	if rtt <= 0 {
		rtt = defaultRTTEstimate
	}
	depth := cfg.AudioQueueDepth
	if depth <= 0 {
		depth = 64
	}

	return &Coordinator{
		channel:        cfg.Channel,
		jitterBuf:      cfg.JitterBuffer,
		nackTracker:    cfg.NackTracker,
		qosReporter:    cfg.QoSReporter,
		rateController: cfg.RateController,
		fecCache:       cfg.FECCache,
		decoder:        cfg.Decoder,
		renderer:       cfg.Renderer,
		audioDecoder:   cfg.AudioDecoder,
		audioSink:      cfg.AudioSink,
		sidecars:       cfg.Sidecars,
		qosInterval:    interval,
		rttEstimate:    rtt,
		audioQueue:     make(chan audioPacket, depth),
		metrics:        newMetrics(),
		state:          StateIdle,
		done:           make(chan struct{}),
	}
}

// OnDisconnect registers the callback invoked exactly once when the
// coordinator transitions to Error (§7: "surfaces to the coordinator's
// disconnect callback").
func (c *Coordinator) OnDisconnect(f func(state State, errMsg string)) {
	c.onDisconnect = f
}

// State reports the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

func (c *Coordinator) setState(s State, errMsg string) {
	c.stateMu.Lock()
	c.state = s
	c.errMsg = errMsg
	c.stateMu.Unlock()
	if s == StateError && c.onDisconnect != nil {
		c.disconnectOnce.Do(func() { c.onDisconnect(s, errMsg) })
	}
}

// Metrics returns a snapshot of the current session counters.
func (c *Coordinator) Metrics() Snapshot {
	return c.metrics.Snapshot()
}

// Start launches the four worker goroutines plus the QoS timer and NACK
// ticker, in the §4.9 order: renderer -> decoder -> audio sink ->
// transport (NACK, QoS, receive). No input stage is started here; INPUT
// packets are handed to the OnInput sidecar. Since this is a single process
// wiring goroutines rather than external processes, "starting" a stage
// here means launching its goroutine in that relative order, so any stage
// that immediately depends on another being ready (e.g. Decode pushing to
// an already-running Render) sees it alive first.
func (c *Coordinator) Start(ctx context.Context) {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.setState(StateConnecting, "")

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.renderLoop() }()

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.decodeLoop() }()

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.audioLoop() }()

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.nackTickerLoop() }()

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.qosTimerLoop() }()

	c.wg.Add(1)
	go func() { defer c.wg.Done(); c.receiveLoop(ctx) }()

	c.setState(StateStreaming, "")
}

// Stop is idempotent (§4.9: "It is idempotent"): it flips the running flag,
// closes done (waking every select-based wait immediately rather than
// waiting out each stage's own poll interval), shuts down the channel to
// unblock any in-flight Decrypt, and joins all goroutines before returning.
// Stop order is the reverse of Start: transport -> audio sink ->
// decoder -> renderer; since every stage here already watches `done`, the
// practical ordering guarantee is "no stage outlives another stage it
// depends on", which joining the WaitGroup as a whole provides regardless
// of exact goroutine teardown order.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.running.Store(false)
		close(c.done)
		if c.channel != nil {
			_ = c.channel.Shutdown()
		}
		c.wg.Wait()
		c.setState(StateStopped, "")
	})
}

func (c *Coordinator) fail(errMsg string) {
	log.Error("pipeline failure", "error", errMsg)
	c.setState(StateError, errMsg)
}

// reconnecting marks a transient transport/crypto fault (§7) without
// tearing down the whole coordinator; internal/session is responsible for
// actually redriving P2P and re-handshaking, then calling Start again on a
// fresh Coordinator — this method only reflects the state for observers.
func (c *Coordinator) reconnecting(reason string) {
	log.Warn("pipeline entering reconnecting", "reason", reason)
	c.setState(StateReconnecting, reason)
}

// lastSequenceReceived reports the most recent VIDEO sequence number seen,
// for the next QOS_FEEDBACK's last_seq_received field.
func (c *Coordinator) lastSequenceReceived() uint16 {
	return uint16(c.lastSeq.Load())
}

// ingestVideo feeds one reassembled-or-direct VIDEO packet into the NACK
// tracker, QoS reporter, and jitter buffer — the common path shared by
// directly-received packets and FEC-recovered ones.
func (c *Coordinator) ingestVideo(h wire.VideoHeader, payload []byte, now time.Time) {
	c.lastSeq.Store(uint32(h.SequenceNumber))
	if c.nackTracker != nil {
		c.nackTracker.OnPacketReceived(h.SequenceNumber)
	}
	if c.qosReporter != nil {
		c.qosReporter.RecordPacket(now, h.TimestampUs, len(payload))
	}
	if c.jitterBuf == nil {
		return
	}
	if err := c.jitterBuf.Push(h, payload, now); err != nil {
		log.Debug("jitter buffer rejected frame", "frame", h.FrameNumber, "error", err)
	}
}

// tryRecoverFEC checks whether exactly one half of the pair a repair packet
// covers is missing from the receive cache, and if so reconstructs and
// re-ingests it (§4.4: opportunistic recovery of at most one loss per
// pair).
func (c *Coordinator) tryRecoverFEC(fh wire.FECHeader, repairPayload []byte) {
	if c.fecCache == nil {
		return
	}
	seqA := fh.SequenceNumber
	seqB := seqA + 1

	a, okA := c.fecCache.Get(seqA)
	b, okB := c.fecCache.Get(seqB)

	var missingSeq uint16
	var survivor []byte
	switch {
	case okA && !okB:
		missingSeq, survivor = seqB, a
	case okB && !okA:
		missingSeq, survivor = seqA, b
	default:
		return // both present (nothing to do) or both missing (unrecoverable)
	}

	recovered := fec.Recover(repairPayload, survivor)
	h, payload, err := wire.DeserializeVideo(recovered)
	if err != nil {
		log.Debug("FEC recovery produced an unparseable packet", "seq", missingSeq, "error", err)
		return
	}
	c.fecCache.Store(missingSeq, recovered)
	c.ingestVideo(h, payload, time.Now())
}
