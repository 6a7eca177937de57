// Package signaling is the client stub for the external signaling service
// §4.10 delegates pairing and connectivity checks to: it carries this
// host's candidates and certificate fingerprint out to the signaler, and
// delivers back the signaler's chosen remote candidate and fingerprint.
// The signaler itself (matching logic, session directory, web dashboard)
// is out of scope; this package only speaks its wire protocol.
package signaling

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relaycast/core/internal/logging"
	"github.com/relaycast/core/internal/p2p"
)

var log = logging.L("signaling")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

// Config holds the signaling client's connection parameters.
type Config struct {
	ServerURL string
	SessionID string
	AuthToken string
}

// CandidateDTO is the wire shape of one p2p.Candidate exchanged with the
// signaler (JSON, not the binary wire protocol — this is out-of-band).
type CandidateDTO struct {
	Type     string `json:"type"`
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Priority uint32 `json:"priority"`
}

// Hello is this host's outbound announcement: its candidates and DTLS
// certificate fingerprint.
type Hello struct {
	Type        string         `json:"type"`
	SessionID   string         `json:"sessionId"`
	Fingerprint string         `json:"fingerprint"`
	Candidates  []CandidateDTO `json:"candidates"`
}

// RemotePeer is the signaler's inbound reply once it has paired both
// sides: the chosen remote candidate, the peer's fingerprint, and which
// DTLS role this side should take.
type RemotePeer struct {
	Type        string `json:"type"`
	IP          string `json:"ip"`
	Port        int    `json:"port"`
	Fingerprint string `json:"fingerprint"`
	Role        string `json:"role"` // "client" or "server"
}

// RemotePeerHandler is invoked once per session when the signaler delivers
// the chosen peer.
type RemotePeerHandler func(RemotePeer)

// ToCandidateDTOs converts gathered p2p candidates to their wire shape for
// a Hello message.
func ToCandidateDTOs(candidates []p2p.Candidate) []CandidateDTO {
	out := make([]CandidateDTO, len(candidates))
	for i, c := range candidates {
		out[i] = CandidateDTO{
			Type:     c.Type.String(),
			IP:       c.IP.String(),
			Port:     c.Port,
			Priority: c.Priority,
		}
	}
	return out
}

// Client manages the WebSocket connection to the signaling service,
// reconnecting with exponential backoff on drop.
type Client struct {
	config  Config
	onPeer  RemotePeerHandler
	conn    *websocket.Conn
	connMu  sync.RWMutex
	sendCh  chan []byte
	done    chan struct{}
	stopOnce sync.Once

	runningMu sync.RWMutex
	running   bool
}

// New constructs a signaling Client. onPeer is invoked from the read pump
// goroutine whenever a remote_peer message arrives.
func New(cfg Config, onPeer RemotePeerHandler) *Client {
	return &Client{
		config: cfg,
		onPeer: onPeer,
		sendCh: make(chan []byte, 16),
		done:   make(chan struct{}),
	}
}

// Start begins the reconnect loop; blocks until Stop is called or the
// process is torn down, so callers run it in its own goroutine.
func (c *Client) Start() {
	c.runningMu.Lock()
	if c.running {
		c.runningMu.Unlock()
		return
	}
	c.running = true
	c.runningMu.Unlock()

	c.reconnectLoop()
}

// Stop closes the connection and ends the reconnect loop. Idempotent.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.runningMu.Lock()
		c.running = false
		c.runningMu.Unlock()

		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			_ = c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()
	})
}

// SendHello announces this host's candidates and fingerprint to the
// signaler.
func (c *Client) SendHello(h Hello) error {
	h.Type = "hello"
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("signaling: marshal hello: %w", err)
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("signaling: client stopped")
	default:
		return fmt.Errorf("signaling: send channel full")
	}
}

func (c *Client) buildURL() (string, error) {
	u, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = fmt.Sprintf("/api/v1/signaling/%s", c.config.SessionID)
	q := u.Query()
	q.Set("token", c.config.AuthToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) connect() error {
	wsURL, err := c.buildURL()
	if err != nil {
		return fmt.Errorf("signaling: build url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("signaling: dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	log.Info("connected to signaling service", "server", c.config.ServerURL, "session", c.config.SessionID)
	return nil
}

func (c *Client) reconnectLoop() {
	backoff := initialBackoff

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Warn("signaling connection failed", "error", err)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}
			select {
			case <-c.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = initialBackoff

		pumpDone := make(chan struct{})
		go c.writePump(pumpDone)
		c.readPump()
		close(pumpDone)

		c.runningMu.RLock()
		running := c.running
		c.runningMu.RUnlock()
		if !running {
			return
		}
	}
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("signaling read error", "error", err)
			}
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.Warn("failed to parse signaling message", "error", err)
			continue
		}

		if envelope.Type != "remote_peer" {
			continue
		}

		var peer RemotePeer
		if err := json.Unmarshal(message, &peer); err != nil {
			log.Warn("failed to parse remote_peer message", "error", err)
			continue
		}
		if c.onPeer != nil {
			c.onPeer(peer)
		}
	}
}

func (c *Client) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return
		case message := <-c.sendCh:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Warn("signaling write error", "error", err)
				return
			}
		case <-ticker.C:
			c.connMu.RLock()
			conn := c.conn
			c.connMu.RUnlock()
			if conn == nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
