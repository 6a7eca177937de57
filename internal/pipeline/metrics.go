package pipeline

import (
	"sync"
	"time"
)

// Metrics tracks real-time pipeline performance counters, surfaced via the
// control channel's get_stats command (§6). Adapted from the teacher's
// StreamMetrics (capture/encode/send counters for a capture-side session)
// to this receive-side coordinator's stages (decode/render/audio + network
// loss/bandwidth carried separately by the QoS reporter).
type Metrics struct {
	mu sync.RWMutex

	FramesReceived uint64
	FramesDecoded  uint64
	FramesRendered uint64
	FramesDropped  uint64

	AudioPacketsReceived uint64
	AudioConcealments    uint64

	LastDecodeTime time.Duration

	startTime time.Time
}

func newMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) RecordReceive() {
	m.mu.Lock()
	m.FramesReceived++
	m.mu.Unlock()
}

func (m *Metrics) RecordDecode(d time.Duration) {
	m.mu.Lock()
	m.FramesDecoded++
	m.LastDecodeTime = d
	m.mu.Unlock()
}

func (m *Metrics) RecordRender() {
	m.mu.Lock()
	m.FramesRendered++
	m.mu.Unlock()
}

func (m *Metrics) RecordDrop() {
	m.mu.Lock()
	m.FramesDropped++
	m.mu.Unlock()
}

func (m *Metrics) RecordAudioReceive() {
	m.mu.Lock()
	m.AudioPacketsReceived++
	m.mu.Unlock()
}

func (m *Metrics) RecordAudioConcealment() {
	m.mu.Lock()
	m.AudioConcealments++
	m.mu.Unlock()
}

// Snapshot is a point-in-time copy for logging and the get_stats response.
type Snapshot struct {
	FramesReceived       uint64
	FramesDecoded        uint64
	FramesRendered       uint64
	FramesDropped        uint64
	AudioPacketsReceived uint64
	AudioConcealments    uint64
	DecodeMs             float64
	Uptime               time.Duration
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		FramesReceived:       m.FramesReceived,
		FramesDecoded:        m.FramesDecoded,
		FramesRendered:       m.FramesRendered,
		FramesDropped:        m.FramesDropped,
		AudioPacketsReceived: m.AudioPacketsReceived,
		AudioConcealments:    m.AudioConcealments,
		DecodeMs:             float64(m.LastDecodeTime.Microseconds()) / 1000.0,
		Uptime:               time.Since(m.startTime),
	}
}
