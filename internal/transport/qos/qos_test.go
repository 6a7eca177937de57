package qos

import (
	"testing"
	"time"
)

func TestBandwidthEstimate(t *testing.T) {
	r := New()
	base := time.Now()
	// 1000 bytes received over a 200ms interval -> 8000 bits / 0.2s = 40000 bps = 40 kbps.
	r.RecordPacket(base, 0, 1000)
	f := r.Snapshot(200*time.Millisecond, 1, 0, nil)
	if f.EstimatedBwKbps != 40 {
		t.Fatalf("expected 40 kbps, got %d", f.EstimatedBwKbps)
	}
}

func TestSnapshotResetsIntervalAccumulators(t *testing.T) {
	r := New()
	base := time.Now()
	r.RecordPacket(base, 0, 500)
	r.Snapshot(200*time.Millisecond, 1, 0, nil)

	f := r.Snapshot(200*time.Millisecond, 1, 0, nil)
	if f.EstimatedBwKbps != 0 {
		t.Fatalf("expected reset bandwidth, got %d", f.EstimatedBwKbps)
	}
}

func TestLossRatioX100(t *testing.T) {
	r := New()
	base := time.Now()
	for i := 0; i < 98; i++ {
		r.RecordPacket(base, 0, 100)
	}
	// 2 lost out of 100 total -> 2.00% -> 200.
	f := r.Snapshot(200*time.Millisecond, 1, 2, nil)
	if f.PacketLossX100 != 200 {
		t.Fatalf("expected 200 (2.00%%), got %d", f.PacketLossX100)
	}
}

func TestJitterAccumulatesSmoothedEstimate(t *testing.T) {
	r := New()
	base := time.Now()

	// Perfectly paced packets (arrival delta == timestamp delta) should
	// keep jitter at zero.
	r.RecordPacket(base, 0, 100)
	r.RecordPacket(base.Add(20*time.Millisecond), 20000, 100)
	r.RecordPacket(base.Add(40*time.Millisecond), 40000, 100)
	f := r.Snapshot(200*time.Millisecond, 1, 0, nil)
	if f.AvgJitterUs != 0 {
		t.Fatalf("expected zero jitter for perfectly paced arrivals, got %d", f.AvgJitterUs)
	}
}

func TestJitterGrowsWithIrregularArrival(t *testing.T) {
	r := New()
	base := time.Now()
	r.RecordPacket(base, 0, 100)
	// Arrival delayed by 30ms relative to the 20ms timestamp cadence.
	r.RecordPacket(base.Add(50*time.Millisecond), 20000, 100)
	f := r.Snapshot(200*time.Millisecond, 1, 0, nil)
	if f.AvgJitterUs == 0 {
		t.Fatal("expected nonzero jitter after an irregular arrival")
	}
}

func TestDelayGradientSign(t *testing.T) {
	r := New()
	base := time.Now()
	// Each packet arrives progressively later relative to its timestamp,
	// i.e. growing one-way delay -> positive slope.
	r.RecordPacket(base, 0, 100)
	r.RecordPacket(base.Add(25*time.Millisecond), 20000, 100)
	r.RecordPacket(base.Add(55*time.Millisecond), 40000, 100)
	f := r.Snapshot(200*time.Millisecond, 1, 0, nil)
	if f.DelayGradientUs <= 0 {
		t.Fatalf("expected positive delay gradient, got %d", f.DelayGradientUs)
	}
}

func TestNackSeqsPassthrough(t *testing.T) {
	r := New()
	f := r.Snapshot(200*time.Millisecond, 1, 0, []uint16{5, 6, 7})
	if len(f.NackSeqs) != 3 {
		t.Fatalf("expected 3 nack seqs, got %d", len(f.NackSeqs))
	}
}
