package ratecontrol

import (
	"testing"

	"github.com/relaycast/core/internal/transport/cache"
	"github.com/relaycast/core/internal/wire"
)

type recordingSender struct {
	sent [][]byte
}

func (s *recordingSender) Send(payload []byte) error {
	s.sent = append(s.sent, payload)
	return nil
}

func TestDecreaseOnHighLoss(t *testing.T) {
	c := New(Config{MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60})
	c.Update(wire.QoSFeedback{PacketLossX100: 400}, nil)
	if c.CurrentBitrateKbps() != 3400 {
		t.Fatalf("expected 15%% decrease to 3400, got %d", c.CurrentBitrateKbps())
	}
}

func TestDecreaseFloorsAtMin(t *testing.T) {
	c := New(Config{MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 550, MaxFPS: 60})
	c.Update(wire.QoSFeedback{PacketLossX100: 400}, nil)
	if c.CurrentBitrateKbps() != 500 {
		t.Fatalf("expected floor at min 500, got %d", c.CurrentBitrateKbps())
	}
}

func TestDecreaseOnDelayGradient(t *testing.T) {
	c := New(Config{MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60})
	c.Update(wire.QoSFeedback{DelayGradientUs: 25000}, nil)
	if c.CurrentBitrateKbps() != 3400 {
		t.Fatalf("expected 15%% decrease on delay gradient, got %d", c.CurrentBitrateKbps())
	}
}

func TestForceIDROnSevereLoss(t *testing.T) {
	fired := false
	c := New(Config{
		MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60,
		OnForceIDR: func() { fired = true },
	})
	c.Update(wire.QoSFeedback{PacketLossX100: 1200}, nil)
	if !fired {
		t.Fatal("expected force IDR on >10% loss")
	}
}

func TestNoForceIDRBelowSevereThreshold(t *testing.T) {
	fired := false
	c := New(Config{
		MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60,
		OnForceIDR: func() { fired = true },
	})
	c.Update(wire.QoSFeedback{PacketLossX100: 400}, nil)
	if fired {
		t.Fatal("did not expect force IDR below 10% loss")
	}
}

func TestAdditiveIncreaseAfterThreeGoodIntervals(t *testing.T) {
	c := New(Config{MinBitrateKbps: 800, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60})
	good := wire.QoSFeedback{PacketLossX100: 10, DelayGradientUs: 1000, EstimatedBwKbps: 10000}
	c.Update(good, nil)
	c.Update(good, nil)
	if c.CurrentBitrateKbps() != 4000 {
		t.Fatalf("expected no change before 3rd good interval, got %d", c.CurrentBitrateKbps())
	}
	c.Update(good, nil)
	if c.CurrentBitrateKbps() != 4100 {
		t.Fatalf("expected +min/8=100 increase to 4100, got %d", c.CurrentBitrateKbps())
	}
}

func TestIncreaseCapsAtMax(t *testing.T) {
	c := New(Config{MinBitrateKbps: 800, MaxBitrateKbps: 4050, InitialBitrate: 4000, MaxFPS: 60})
	good := wire.QoSFeedback{PacketLossX100: 10, DelayGradientUs: 1000, EstimatedBwKbps: 10000}
	c.Update(good, nil)
	c.Update(good, nil)
	c.Update(good, nil)
	if c.CurrentBitrateKbps() != 4050 {
		t.Fatalf("expected cap at max 4050, got %d", c.CurrentBitrateKbps())
	}
}

func TestBandwidthClampAfterSustainedUnderestimate(t *testing.T) {
	c := New(Config{MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60})
	// Underestimate: bw < 0.7*4000 = 2800. Needs 2 consecutive intervals.
	fb := wire.QoSFeedback{PacketLossX100: 10, DelayGradientUs: 1000, EstimatedBwKbps: 2000}
	c.Update(fb, nil)
	if c.CurrentBitrateKbps() != 4000 {
		t.Fatalf("expected no clamp after only 1 bad interval, got %d", c.CurrentBitrateKbps())
	}
	c.Update(fb, nil)
	want := int(2000 * 0.9)
	if c.CurrentBitrateKbps() != want {
		t.Fatalf("expected clamp to %d, got %d", want, c.CurrentBitrateKbps())
	}
}

func TestBitrateChangeCallbackFires(t *testing.T) {
	var gotBitrate, gotFPS int
	calls := 0
	c := New(Config{
		MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60,
		OnBitrateChange: func(b, f int) { gotBitrate, gotFPS = b, f; calls++ },
	})
	c.Update(wire.QoSFeedback{PacketLossX100: 400}, nil)
	if calls != 1 {
		t.Fatalf("expected exactly 1 callback, got %d", calls)
	}
	if gotBitrate != 3400 || gotFPS != 60 {
		t.Fatalf("unexpected callback args: bitrate=%d fps=%d", gotBitrate, gotFPS)
	}
}

func TestNoCallbackWhenUnchanged(t *testing.T) {
	calls := 0
	c := New(Config{
		MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60,
		OnBitrateChange: func(b, f int) { calls++ },
	})
	// Neither degrade nor a completed good streak: no change.
	c.Update(wire.QoSFeedback{PacketLossX100: 100, DelayGradientUs: 10000}, nil)
	if calls != 0 {
		t.Fatalf("expected no callback, got %d calls", calls)
	}
}

func TestNackReplayHitsAndMisses(t *testing.T) {
	ring := cache.New()
	ring.Store(5, []byte("hello"))
	// seq 6 never stored -> miss, ignored.
	c := New(Config{MinBitrateKbps: 500, MaxBitrateKbps: 8000, InitialBitrate: 4000, MaxFPS: 60, Cache: ring})
	sender := &recordingSender{}
	c.Update(wire.QoSFeedback{NackSeqs: []uint16{5, 6}}, sender)
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly 1 replay, got %d", len(sender.sent))
	}
	if string(sender.sent[0]) != "hello" {
		t.Fatalf("unexpected replayed payload %q", sender.sent[0])
	}
}
