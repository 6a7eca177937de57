package fec

import (
	"bytes"
	"testing"

	"github.com/relaycast/core/internal/wire"
)

func TestClampGroupSize(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, MinGroupSize}, {1, MinGroupSize}, {2, 2}, {48, 48}, {49, MaxGroupSize}, {1000, MaxGroupSize},
	}
	for _, c := range cases {
		if got := ClampGroupSize(c.in); got != c.want {
			t.Errorf("ClampGroupSize(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestClampRatio(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{-1, 0}, {0, 0}, {0.5, 0.5}, {1, 1}, {2, 1},
	}
	for _, c := range cases {
		if got := ClampRatio(c.in); got != c.want {
			t.Errorf("ClampRatio(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestRedundancyCountCappedAtHalf(t *testing.T) {
	if got := RedundancyCount(10, 1.0); got != 5 {
		t.Fatalf("expected cap at floor(n/2)=5, got %d", got)
	}
	if got := RedundancyCount(11, 1.0); got != 5 {
		t.Fatalf("expected floor(11/2)=5, got %d", got)
	}
	if got := RedundancyCount(10, 0); got != 0 {
		t.Fatalf("expected 0 redundancy at ratio 0, got %d", got)
	}
}

func TestEncodeRecoversLostPacket(t *testing.T) {
	a := []byte("aaaaaaaa")
	b := []byte("bbbbbb") // shorter, exercises zero-pad

	e := NewEncoder()
	repair := e.Encode([][]byte{a, b}, 100, 1)
	if len(repair) != 1 {
		t.Fatalf("expected 1 repair packet, got %d", len(repair))
	}

	h, payload, err := wire.DeserializeFEC(repair[0])
	if err != nil {
		t.Fatal(err)
	}
	if h.SequenceNumber != 100 || h.FragmentTotal != 1 {
		t.Fatalf("unexpected header: %+v", h)
	}

	// Recover b from a and the repair payload (pad b's reconstruction to
	// len(a) then trim trailing zero padding that b never had).
	recovered := Recover(payload, a)
	recovered = bytes.TrimRight(recovered, "\x00")
	if !bytes.Equal(recovered, b) {
		t.Fatalf("recovered %q, want %q", recovered, b)
	}

	recoveredA := Recover(payload, padTo(b, len(a)))
	if !bytes.Equal(recoveredA, a) {
		t.Fatalf("recovered a %q, want %q", recoveredA, a)
	}
}

func padTo(b []byte, n int) []byte {
	out := make([]byte, n)
	copy(out, b)
	return out
}

func TestEncodeNoRedundancyReturnsNil(t *testing.T) {
	e := NewEncoder()
	if out := e.Encode([][]byte{[]byte("a"), []byte("b")}, 0, 0); out != nil {
		t.Fatalf("expected nil, got %v", out)
	}
}

func TestGroupIDIncrements(t *testing.T) {
	e := NewEncoder()
	r1 := e.Encode([][]byte{[]byte("a"), []byte("b")}, 0, 1)
	r2 := e.Encode([][]byte{[]byte("c"), []byte("d")}, 2, 1)
	h1, _, _ := wire.DeserializeFEC(r1[0])
	h2, _, _ := wire.DeserializeFEC(r2[0])
	if h1.GroupID == h2.GroupID {
		t.Fatalf("expected distinct group ids, got %d and %d", h1.GroupID, h2.GroupID)
	}
}
