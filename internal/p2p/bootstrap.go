package p2p

import (
	"context"
	"net"
	"sync"

	"github.com/relaycast/core/internal/workerpool"
)

// GatherResult is the outcome of one bootstrap pass: every candidate this
// host could be reached at, ready to hand to the external signaler.
type GatherResult struct {
	Candidates []Candidate
}

// gatherPoolSize bounds how many STUN binding requests run concurrently
// during one Gather call; each one already has its own 500ms*3 retry
// budget; running them serially would multiply that out across every
// host-candidate/server pair.
const gatherPoolSize = 8

// Gather enumerates host candidates and, for each one, attempts a STUN
// binding against every configured server concurrently (bounded by a
// worker pool, since each attempt can take up to 1.5s across retries),
// collecting whichever server-reflexive candidates succeed. A STUN
// failure on one server/socket pair is not fatal to the overall gather —
// §4.10 describes STUN purely as an additive source of extra candidates,
// and a host behind a NAT with one bad conn shouldn't lose its other host
// candidates.
func Gather(stunServers []string) (GatherResult, error) {
	hostCandidates, err := EnumerateHostCandidates()
	if err != nil {
		return GatherResult{}, err
	}

	attempts := len(hostCandidates) * len(stunServers)
	all := make([]Candidate, 0, len(hostCandidates)+attempts)
	all = append(all, hostCandidates...)

	if attempts == 0 {
		return GatherResult{Candidates: all}, nil
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	pool := workerpool.New(gatherPoolSize, attempts)

	for _, hc := range hostCandidates {
		for _, server := range stunServers {
			hc, server := hc, server
			wg.Add(1)
			ok := pool.Submit(func() {
				defer wg.Done()
				srflx, err := ResolveServerReflexive(hc.Conn, server)
				if err != nil {
					log.Debug("stun resolution failed", "host_candidate", hc.IP.String(), "server", server, "error", err)
					return
				}
				mu.Lock()
				all = append(all, srflx)
				mu.Unlock()
			})
			if !ok {
				wg.Done()
			}
		}
	}

	wg.Wait()
	pool.StopAccepting()
	pool.Drain(context.Background())

	return GatherResult{Candidates: all}, nil
}

// CloseUnused closes every host candidate's socket except the one backing
// the selected remote peer, once pairing (the external signaler's job) has
// picked a winner.
func CloseUnused(candidates []Candidate, selected Candidate) {
	closed := make(map[*net.UDPConn]bool)
	for _, c := range candidates {
		if c.Conn == nil || c.Conn == selected.Conn || closed[c.Conn] {
			continue
		}
		_ = c.Conn.Close()
		closed[c.Conn] = true
	}
}

// RemotePeer is the result of the external signaler's pairing: an
// already-selected candidate for the other side. §4.10: "this core accepts
// an already-selected remote candidate (IP + port) and records it as the
// DTLS/UDP peer."
type RemotePeer struct {
	IP   net.IP
	Port int
}

// Dial replaces the candidate's unconnected listening socket with one bound
// to the same local address but connected to the chosen remote peer, so
// subsequent Read/Write calls are implicitly scoped to that single peer —
// the shape internal/dtlschannel expects from the net.Conn it wraps. The
// standard library has no way to "connect" an already-open *net.UDPConn in
// place, so this closes the original and redials from the same local port.
func Dial(conn *net.UDPConn, peer RemotePeer) (*net.UDPConn, error) {
	laddr := conn.LocalAddr().(*net.UDPAddr)
	if err := conn.Close(); err != nil {
		return nil, err
	}
	return net.DialUDP("udp4", laddr, udpAddr(peer))
}

func udpAddr(peer RemotePeer) *net.UDPAddr {
	return &net.UDPAddr{IP: peer.IP, Port: peer.Port}
}
