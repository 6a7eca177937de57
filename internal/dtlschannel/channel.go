// Package dtlschannel implements the §4.2 single-peer DTLS 1.2 channel: a
// one-shot handshake over a pre-connected UDP socket, followed by per-
// datagram encrypt/decrypt until shutdown. There is no certificate
// authority and no mutual authentication (an explicit Non-goal); the peer
// is identified purely by the SHA-256 fingerprint of its self-signed
// certificate, exchanged out-of-band through signaling before the
// handshake starts.
package dtlschannel

import (
	"context"
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/dtls/v3"

	"github.com/relaycast/core/internal/logging"
)

var log = logging.L("dtls")

// Role distinguishes the two handshake sides. Exactly one peer dials as
// Client and one accepts as Server; which is which is decided by signaling
// (typically the host is Server, the viewer is Client), not by this
// package.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

// handshakeTimeout is the §4.2 5-second handshake deadline.
const handshakeTimeout = 5 * time.Second

// handshakePoll is the §4.2 100ms select poll interval used by pion/dtls's
// internal flight retransmission scheduler; passed through FlightInterval
// so retransmits happen often enough to fit inside the 5s deadline over a
// lossy link.
const handshakePoll = 100 * time.Millisecond

// cipherSuites holds the single cipher suite §4.2 permits.
var cipherSuites = []dtls.CipherSuiteID{dtls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256}

// Channel is a handshaked DTLS session bound to one UDP peer.
type Channel struct {
	conn         *dtls.Conn
	localFP      string
	peerFP       string
	negotiatedAt time.Time
}

// ErrFingerprintMismatch is returned when the peer's certificate does not
// match the fingerprint exchanged via signaling. This is a fatal Crypto
// error per §7 — the coordinator must not retry the handshake in place.
var ErrFingerprintMismatch = fmt.Errorf("dtlschannel: peer certificate fingerprint mismatch")

// Identity is a session's ephemeral self-signed certificate, generated
// before the peer's fingerprint is known so its own Fingerprint can be sent
// out-of-band via signaling ahead of the handshake.
type Identity struct {
	key      *ecdsa.PrivateKey
	certDER  []byte
	certPEM  tls.Certificate
	fingerprint string
}

// NewIdentity generates a fresh ephemeral P-256 self-signed certificate
// (§4.2: "ephemeral P-256 key generated per session").
func NewIdentity() (*Identity, error) {
	key, der, err := generateCert()
	if err != nil {
		return nil, err
	}
	return &Identity{
		key:     key,
		certDER: der,
		certPEM: tls.Certificate{
			Certificate: [][]byte{der},
			PrivateKey:  key,
		},
		fingerprint: Fingerprint(der),
	}, nil
}

// Fingerprint is this identity's SHA-256 certificate fingerprint, the value
// to send to the peer via signaling before calling Handshake.
func (id *Identity) Fingerprint() string { return id.fingerprint }

// Handshake performs the §4.2 one-shot DTLS 1.2 handshake over socket,
// which must already be connected (or will be driven) to the peer.
// expectedPeerFingerprint is the hex-colon SHA-256 fingerprint received out
// of band via signaling; the handshake is rejected unless the peer's
// certificate matches it exactly.
func Handshake(ctx context.Context, role Role, socket net.Conn, id *Identity, expectedPeerFingerprint string) (*Channel, error) {
	cert := id.certPEM

	var peerFP string
	verify := func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("dtlschannel: no peer certificate presented")
		}
		peerFP = Fingerprint(rawCerts[0])
		if !strings.EqualFold(peerFP, expectedPeerFingerprint) {
			return ErrFingerprintMismatch
		}
		return nil
	}

	cfg := &dtls.Config{
		Certificates:          []tls.Certificate{cert},
		CipherSuites:          cipherSuites,
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: verify,
		FlightInterval:        handshakePoll,
		MTU:                   1400,
	}

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	var conn *dtls.Conn
	var err error
	switch role {
	case RoleClient:
		conn, err = dtls.ClientWithContext(hctx, socket, cfg)
	case RoleServer:
		conn, err = dtls.ServerWithContext(hctx, socket, cfg)
	default:
		return nil, fmt.Errorf("dtlschannel: unknown role %d", role)
	}
	if err != nil {
		log.Warn("dtls handshake failed", "role", roleName(role), "error", err)
		return nil, fmt.Errorf("dtlschannel: handshake: %w", err)
	}

	log.Info("dtls handshake complete", "role", roleName(role), "peer_fingerprint", peerFP)
	return &Channel{conn: conn, localFP: id.fingerprint, peerFP: peerFP, negotiatedAt: time.Now()}, nil
}

func roleName(r Role) string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// LocalFingerprint is this session's own certificate fingerprint, exchanged
// to the peer via signaling before Handshake is called on either side.
func (c *Channel) LocalFingerprint() string { return c.localFP }

// PeerFingerprint is the verified fingerprint of the remote certificate.
func (c *Channel) PeerFingerprint() string { return c.peerFP }

// Encrypt seals plaintext as a DTLS application-data record and writes it
// to the underlying socket.
func (c *Channel) Encrypt(plaintext []byte) error {
	_, err := c.conn.Write(plaintext)
	if err != nil {
		return fmt.Errorf("dtlschannel: encrypt: %w", err)
	}
	return nil
}

// Decrypt reads and decrypts the next application-data record into buf,
// returning the number of plaintext bytes. A legitimate zero-length,
// nil-error result can occur if the underlying record was a handshake or
// alert record rather than application data (§4.2) — callers must not
// treat n==0, err==nil as a failure.
func (c *Channel) Decrypt(buf []byte) (int, error) {
	n, err := c.conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("dtlschannel: decrypt: %w", err)
	}
	return n, nil
}

// SetReadDeadline bounds the next Decrypt call, giving the receive stage a
// finite poll interval (§5: "blocks on the UDP socket up to 100 ms per
// poll") so it can observe cancellation without a dedicated wake token.
func (c *Channel) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// Shutdown closes the DTLS session, sending a close_notify alert.
func (c *Channel) Shutdown() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("dtlschannel: shutdown: %w", err)
	}
	return nil
}
