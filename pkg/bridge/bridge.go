// Package bridge connects a single-threaded host (the game's main thread)
// with one external peer speaking length-prefixed JSON commands over
// loopback TCP. Network I/O runs on background goroutines; all host state is
// touched only inside Tick, which the host calls once per frame. The two
// sides meet exclusively at the inbound/outbound queues.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// Logger is satisfied by logging.Logger; kept minimal to avoid dependency
// cycles.
type Logger interface {
	Printf(format string, v ...any)
}

// CommandRecord describes one dispatched command for operational history.
type CommandRecord struct {
	Session   string
	Epoch     int64
	RequestID int64
	Method    string
	ErrorCode int32
	OK        bool
	Duration  time.Duration
}

// Recorder receives a CommandRecord per dispatched command. Implementations
// must not block; the journal hands records to a background writer.
type Recorder interface {
	Record(rec CommandRecord)
}

// ConnState is the listener's observable connection state.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateListening
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Snapshot is a point-in-time health view, safe from any goroutine.
type Snapshot struct {
	State         string `json:"state"`
	Listening     bool   `json:"listening"`
	Connected     bool   `json:"connected"`
	Epoch         int64  `json:"epoch"`
	Session       string `json:"session,omitempty"`
	InboundDepth  int    `json:"inbound_depth"`
	OutboundDepth int    `json:"outbound_depth"`
	Tick          int64  `json:"tick"`
}

// Options configure a Bridge.
type Options struct {
	// BindAddress must resolve to a loopback address. Defaults to 127.0.0.1.
	BindAddress string
	// Port to listen on; 0 lets the OS pick one. The daemon's config layer
	// supplies the conventional 8765.
	Port int
	// MaxFrameBytes caps one wire payload. Defaults to
	// protocol.DefaultMaxFrameBytes.
	MaxFrameBytes int
	// TickBudget limits commands dispatched per tick; <= 0 drains fully.
	// Both queues are unbounded, so a slow peer grows the outbound queue
	// rather than stalling the host; watch Snapshot depths.
	TickBudget int
	Logger     Logger
	Journal    Recorder
}

// command crosses from the read loop to the dispatch loop.
type command struct {
	epoch    int64
	session  string
	req      protocol.Request
	protoErr *protocol.ErrorEnvelope
}

// reply crosses back from the dispatch loop to the writer.
type reply struct {
	epoch int64
	resp  protocol.Response
}

// Bridge owns the listener, the queues, and the dispatch state.
type Bridge struct {
	router   *Router
	logger   Logger
	journal  Recorder
	addr     string
	maxFrame int
	budget   int

	inbound  *queue[command]
	outbound *queue[reply]

	mu      sync.Mutex
	ln      net.Listener
	conn    net.Conn
	state   ConnState
	epoch   int64
	session string
	closed  bool

	runCtx context.Context

	// Dispatch-loop state, touched only from Tick.
	handshakeEpoch int64

	tick atomic.Int64
}

// New validates opts and builds a stopped Bridge. The router is sealed when
// Start is called; register all handlers first.
func New(router *Router, opts Options) (*Bridge, error) {
	if router == nil {
		return nil, errors.New("nil router")
	}
	host := opts.BindAddress
	if host == "" {
		host = "127.0.0.1"
	}
	if !isLoopbackHost(host) {
		return nil, fmt.Errorf("bind address %q is not loopback", host)
	}
	maxFrame := opts.MaxFrameBytes
	if maxFrame <= 0 {
		maxFrame = protocol.DefaultMaxFrameBytes
	}
	return &Bridge{
		router:   router,
		logger:   opts.Logger,
		journal:  opts.Journal,
		addr:     net.JoinHostPort(host, strconv.Itoa(opts.Port)),
		maxFrame: maxFrame,
		budget:   opts.TickBudget,
		inbound:  newQueue[command](),
		outbound: newQueue[reply](),
		state:    StateDisconnected,
	}, nil
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Start opens the listener and launches the accept and writer goroutines.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln != nil {
		return errors.New("bridge already started")
	}
	if b.closed {
		return errors.New("bridge stopped")
	}
	ln, err := net.Listen("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", b.addr, err)
	}
	b.router.seal()
	b.ln = ln
	b.state = StateListening
	b.runCtx = ctx
	go b.acceptLoop()
	go b.writeLoop()
	b.logf("listening on %s", ln.Addr())
	return nil
}

// Addr returns the bound address, or empty before Start.
func (b *Bridge) Addr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ln == nil {
		return ""
	}
	return b.ln.Addr().String()
}

// Stop closes the listener, the active connection, and both queues.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	ln, conn := b.ln, b.conn
	b.ln, b.conn = nil, nil
	b.state = StateDisconnected
	b.mu.Unlock()

	b.inbound.Close()
	b.outbound.Close()
	if conn != nil {
		conn.Close()
	}
	if ln != nil {
		return ln.Close()
	}
	return nil
}

// Status reports the current health snapshot.
func (b *Bridge) Status() Snapshot {
	b.mu.Lock()
	state, epoch, session := b.state, b.epoch, b.session
	b.mu.Unlock()
	return Snapshot{
		State:         state.String(),
		Listening:     state != StateDisconnected,
		Connected:     state == StateConnected,
		Epoch:         epoch,
		Session:       session,
		InboundDepth:  b.inbound.Len(),
		OutboundDepth: b.outbound.Len(),
		Tick:          b.tick.Load(),
	}
}

func (b *Bridge) logf(format string, v ...any) {
	if b.logger != nil {
		b.logger.Printf(format, v...)
	} else {
		log.Printf(format, v...)
	}
}
