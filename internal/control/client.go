package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
)

// Client issues newline-delimited JSON requests over an existing control
// channel connection and reads back one Response per request. It is not
// safe for concurrent use by multiple goroutines against the same
// connection; callers that need concurrent commands should open
// multiple connections.
type Client struct {
	conn    net.Conn
	enc     *json.Encoder
	scanner *bufio.Scanner
}

// NewClient wraps an already-dialed connection (see Dial).
func NewClient(conn net.Conn) *Client {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Client{
		conn:    conn,
		enc:     json.NewEncoder(conn),
		scanner: scanner,
	}
}

// Call sends one command with the given params and blocks for its
// Response.
func (c *Client) Call(command string, params any) (Response, error) {
	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return Response{}, fmt.Errorf("control: marshal params: %w", err)
		}
		raw = b
	}

	if err := c.enc.Encode(Request{Command: command, Params: raw}); err != nil {
		return Response{}, fmt.Errorf("control: write request: %w", err)
	}

	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return Response{}, fmt.Errorf("control: read response: %w", err)
		}
		return Response{}, fmt.Errorf("control: connection closed before response")
	}

	var resp Response
	if err := json.Unmarshal(c.scanner.Bytes(), &resp); err != nil {
		return Response{}, fmt.Errorf("control: unmarshal response: %w", err)
	}
	return resp, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
