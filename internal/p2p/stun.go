package p2p

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/pion/stun/v3"
)

// bindingTimeout and bindingRetries are the §4.10 STUN retry schedule: wait
// 500ms for a response, retry up to 3 times.
const (
	bindingTimeout = 500 * time.Millisecond
	bindingRetries = 3
)

// ErrSTUNTimeout is returned when a STUN server does not answer after all
// retries.
var ErrSTUNTimeout = errors.New("p2p: stun binding request timed out")

// ResolveServerReflexive sends a STUN Binding Request over conn to
// stunServer ("host:port") and returns the resulting server-reflexive
// candidate. conn is used as-is (no new socket is opened), so the
// reflexive address corresponds to the NAT mapping for this specific host
// candidate.
func ResolveServerReflexive(conn *net.UDPConn, stunServer string) (Candidate, error) {
	raddr, err := net.ResolveUDPAddr("udp4", stunServer)
	if err != nil {
		return Candidate{}, fmt.Errorf("p2p: resolve stun server %q: %w", stunServer, err)
	}

	request, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return Candidate{}, fmt.Errorf("p2p: build stun request: %w", err)
	}

	buf := make([]byte, 1500)
	for attempt := 0; attempt < bindingRetries; attempt++ {
		if _, err := conn.WriteToUDP(request.Raw, raddr); err != nil {
			return Candidate{}, fmt.Errorf("p2p: send stun request: %w", err)
		}

		if err := conn.SetReadDeadline(time.Now().Add(bindingTimeout)); err != nil {
			return Candidate{}, fmt.Errorf("p2p: set read deadline: %w", err)
		}
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.Debug("stun binding attempt timed out", "server", stunServer, "attempt", attempt+1, "error", err)
			continue
		}
		if from.IP.String() != raddr.IP.String() {
			continue // spoofed or stray reply from a different address
		}

		ip, port, err := parseBindingResponse(buf[:n], request.TransactionID)
		if err != nil {
			log.Debug("discarding malformed stun response", "server", stunServer, "error", err)
			continue
		}

		_ = conn.SetReadDeadline(time.Time{})
		return Candidate{
			Type:     CandidateServerReflexive,
			IP:       ip,
			Port:     port,
			Priority: serverReflexivePriority,
			Conn:     conn,
		}, nil
	}

	_ = conn.SetReadDeadline(time.Time{})
	return Candidate{}, ErrSTUNTimeout
}

// parseBindingResponse validates a STUN message as a Binding Success
// Response matching txID, then extracts the mapped address, preferring
// XOR-MAPPED-ADDRESS over MAPPED-ADDRESS (§4.10, §6).
func parseBindingResponse(data []byte, txID [stun.TransactionIDSize]byte) (net.IP, int, error) {
	msg := &stun.Message{Raw: data}
	if err := msg.Decode(); err != nil {
		return nil, 0, fmt.Errorf("decode: %w", err)
	}
	if msg.Type != stun.BindingSuccess {
		return nil, 0, fmt.Errorf("unexpected message type %v", msg.Type)
	}
	if msg.TransactionID != txID {
		return nil, 0, errors.New("transaction id mismatch")
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(msg); err == nil {
		return xorAddr.IP, xorAddr.Port, nil
	}

	var mappedAddr stun.MappedAddress
	if err := mappedAddr.GetFrom(msg); err == nil {
		return mappedAddr.IP, mappedAddr.Port, nil
	}

	return nil, 0, errors.New("no mapped address attribute present")
}
