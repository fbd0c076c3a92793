// Package client is the peer side of the bridge protocol: it dials the
// loopback endpoint, frames requests, and correlates replies by id. The
// external tooling (and the integration tests) drive the bridge through it.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// ErrClosed is returned by calls on a closed client.
var ErrClosed = errors.New("client closed")

// RPCError wraps an error Response so callers can switch on the code.
type RPCError struct {
	Envelope protocol.ErrorEnvelope
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Envelope.Code, e.Envelope.Message)
}

// Client is a synchronous single-connection peer. One request is in flight
// at a time; the bridge answers in order, so correlation is a simple id
// check. Safe for concurrent use; calls serialize on an internal lock.
type Client struct {
	mu       sync.Mutex
	conn     net.Conn
	nextID   int64
	maxFrame int
	closed   bool
}

// Options tune the client.
type Options struct {
	// DialTimeout bounds the connect; zero means 5s, matching the original
	// client's default.
	DialTimeout time.Duration
	// MaxFrameBytes caps reply payloads; zero uses the protocol default.
	MaxFrameBytes int
}

// Dial connects to addr ("127.0.0.1:8765").
func Dial(addr string, opts Options) (*Client, error) {
	timeout := opts.DialTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &Client{conn: conn, maxFrame: opts.MaxFrameBytes}, nil
}

// Call sends method with params and waits for the matching reply. A reply
// carrying an error envelope is returned as *RPCError. Server-initiated
// pushes with a foreign id are skipped, the way the original client
// tolerated server heartbeats.
func (c *Client) Call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}

	c.nextID++
	req := protocol.Request{ID: c.nextID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if err := protocol.WriteFrame(c.conn, payload, c.maxFrame); err != nil {
		return nil, err
	}

	for {
		frame, err := protocol.ReadFrame(c.conn, c.maxFrame)
		if err != nil {
			return nil, err
		}
		var resp protocol.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			return nil, fmt.Errorf("malformed reply: %w", err)
		}
		if resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return nil, &RPCError{Envelope: *resp.Error}
		}
		return resp.Result, nil
	}
}

// Handshake performs the reserved handshake, advertising our protocol
// version, and returns the bridge's reply.
func (c *Client) Handshake() (version string, epoch int64, err error) {
	raw, err := c.Call(protocol.MethodHandshake, map[string]any{
		"protocol_version": protocol.Version,
	})
	if err != nil {
		return "", 0, err
	}
	var result struct {
		ProtocolVersion string `json:"protocol_version"`
		Epoch           int64  `json:"epoch"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", 0, fmt.Errorf("malformed handshake result: %w", err)
	}
	return result.ProtocolVersion, result.Epoch, nil
}

// Heartbeat performs the reserved heartbeat and returns the host tick.
func (c *Client) Heartbeat() (tick int64, err error) {
	raw, err := c.Call(protocol.MethodHeartbeat, nil)
	if err != nil {
		return 0, err
	}
	var result struct {
		Alive bool  `json:"alive"`
		Tick  int64 `json:"tick"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return 0, fmt.Errorf("malformed heartbeat result: %w", err)
	}
	if !result.Alive {
		return result.Tick, errors.New("bridge reported not alive")
	}
	return result.Tick, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
