// Package p2p implements the §4.10 P2P bootstrap: host candidate
// enumeration and STUN-derived server-reflexive candidates. Pairing and
// connectivity checks are the external signaler's job (internal/signaling
// carries candidates to it); this package only gathers and prioritizes.
package p2p

import "net"

// CandidateType distinguishes a locally-bound address from one learned via
// STUN.
type CandidateType int

const (
	CandidateHost CandidateType = iota
	CandidateServerReflexive
)

func (t CandidateType) String() string {
	switch t {
	case CandidateHost:
		return "host"
	case CandidateServerReflexive:
		return "srflx"
	default:
		return "unknown"
	}
}

// serverReflexivePriority is the §4.10 fixed priority for any
// server-reflexive candidate, regardless of which STUN server produced it.
const serverReflexivePriority = 1694498816

// hostPriorityBase is the §4.10 base host-candidate priority; the i-th
// enumerated interface gets hostPriorityBase - i.
const hostPriorityBase = 2130706432

// Candidate is one address this host could be reached at.
type Candidate struct {
	Type     CandidateType
	IP       net.IP
	Port     int
	Priority uint32

	// Conn is the UDP socket this candidate was bound to (host candidates)
	// or discovered through (server-reflexive candidates share their host
	// candidate's socket). Callers needing the actual socket to send/receive
	// on use this; Candidate itself is otherwise a value type for exchange
	// with the signaler.
	Conn *net.UDPConn
}

func hostPriority(index int) uint32 {
	p := hostPriorityBase - index
	if p < 0 {
		return 0
	}
	return uint32(p)
}
