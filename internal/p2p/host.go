package p2p

import (
	"net"

	"github.com/relaycast/core/internal/logging"
)

var log = logging.L("p2p")

// EnumerateHostCandidates binds one UDP socket per up, non-loopback IPv4
// interface address, to an OS-chosen ephemeral port (§4.10), and assigns
// each a descending host-candidate priority in enumeration order.
//
// Callers own the returned sockets: close the ones not selected for the
// session once a remote candidate is chosen, keep the winner for the DTLS
// channel.
func EnumerateHostCandidates() ([]Candidate, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	index := 0
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			log.Debug("skipping interface, failed to read addresses", "interface", iface.Name, "error", err)
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}

			conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ip4, Port: 0})
			if err != nil {
				log.Debug("failed to bind candidate socket", "interface", iface.Name, "ip", ip4.String(), "error", err)
				continue
			}

			localAddr := conn.LocalAddr().(*net.UDPAddr)
			candidates = append(candidates, Candidate{
				Type:     CandidateHost,
				IP:       ip4,
				Port:     localAddr.Port,
				Priority: hostPriority(index),
				Conn:     conn,
			})
			index++
		}
	}

	return candidates, nil
}
