package signaling

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/relaycast/core/internal/p2p"
)

func TestToCandidateDTOsPreservesFields(t *testing.T) {
	candidates := []p2p.Candidate{
		{Type: p2p.CandidateHost, IP: net.ParseIP("192.168.1.10").To4(), Port: 55000, Priority: 2130706432},
		{Type: p2p.CandidateServerReflexive, IP: net.ParseIP("203.0.113.7").To4(), Port: 51820, Priority: 1694498816},
	}

	dtos := ToCandidateDTOs(candidates)
	if len(dtos) != 2 {
		t.Fatalf("expected 2 DTOs, got %d", len(dtos))
	}
	if dtos[0].Type != "host" || dtos[0].IP != "192.168.1.10" || dtos[0].Port != 55000 {
		t.Fatalf("unexpected host DTO: %+v", dtos[0])
	}
	if dtos[1].Type != "srflx" || dtos[1].IP != "203.0.113.7" || dtos[1].Priority != 1694498816 {
		t.Fatalf("unexpected srflx DTO: %+v", dtos[1])
	}
}

func TestHelloMarshalsWithTypeField(t *testing.T) {
	h := Hello{
		SessionID:   "sess-1",
		Fingerprint: "aa:bb:cc",
		Candidates:  []CandidateDTO{{Type: "host", IP: "10.0.0.1", Port: 1234, Priority: 100}},
	}
	h.Type = "hello"

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var roundTripped Hello
	if err := json.Unmarshal(data, &roundTripped); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if roundTripped.Type != "hello" || roundTripped.SessionID != "sess-1" {
		t.Fatalf("unexpected round-trip: %+v", roundTripped)
	}
	if len(roundTripped.Candidates) != 1 || roundTripped.Candidates[0].IP != "10.0.0.1" {
		t.Fatalf("unexpected candidates after round-trip: %+v", roundTripped.Candidates)
	}
}

func TestRemotePeerUnmarshalsFromEnvelope(t *testing.T) {
	raw := []byte(`{"type":"remote_peer","ip":"198.51.100.5","port":4000,"fingerprint":"11:22:33","role":"client"}`)

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Type != "remote_peer" {
		t.Fatalf("expected remote_peer, got %q", envelope.Type)
	}

	var peer RemotePeer
	if err := json.Unmarshal(raw, &peer); err != nil {
		t.Fatalf("unmarshal peer: %v", err)
	}
	if peer.IP != "198.51.100.5" || peer.Port != 4000 || peer.Role != "client" {
		t.Fatalf("unexpected peer: %+v", peer)
	}
}

func TestNewClientStartsNotRunning(t *testing.T) {
	c := New(Config{ServerURL: "https://example.test", SessionID: "s1"}, nil)
	c.runningMu.RLock()
	running := c.running
	c.runningMu.RUnlock()
	if running {
		t.Fatal("expected new client to not be running until Start is called")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	c := New(Config{ServerURL: "https://example.test", SessionID: "s1"}, nil)
	c.Stop()
	c.Stop() // must not panic on double close
}
