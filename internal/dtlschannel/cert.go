package dtlschannel

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// generateCert creates an ephemeral self-signed ECDSA P-256 certificate
// valid for 24 hours (§4.2: "self-signed EC P-256 certificate per session,
// 24-hour validity"). There is no CA and no certificate chain; the only
// identity check performed anywhere is the fingerprint comparison in
// Handshake.
func generateCert() (*ecdsa.PrivateKey, []byte, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("dtlschannel: generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("dtlschannel: generate serial: %w", err)
	}
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "relaycast-session"},
		NotBefore:    now.Add(-5 * time.Minute),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("dtlschannel: create certificate: %w", err)
	}
	return key, der, nil
}

// Fingerprint returns the hex-colon-separated SHA-256 digest of a DER
// certificate, matching the format exchanged out-of-band via signaling
// (§7: "Peer identity = hex-colon-separated SHA-256 of the peer's DER
// certificate").
func Fingerprint(der []byte) string {
	sum := sha256.Sum256(der)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}
