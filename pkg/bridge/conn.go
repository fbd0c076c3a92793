package bridge

import (
	"encoding/json"
	"errors"
	"io"
	"net"

	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// acceptLoop admits one peer at a time. A second connection attempt while one
// is active is closed immediately, never queued.
func (b *Bridge) acceptLoop() {
	for {
		b.mu.Lock()
		ln := b.ln
		b.mu.Unlock()
		if ln == nil {
			return
		}
		conn, err := ln.Accept()
		if err != nil {
			if b.isClosed() {
				return
			}
			b.logf("accept error: %v", err)
			continue
		}

		b.mu.Lock()
		if b.closed || b.conn != nil {
			b.mu.Unlock()
			b.logf("refusing second peer %s", conn.RemoteAddr())
			conn.Close()
			continue
		}
		b.epoch++
		b.session = newSessionID()
		b.conn = conn
		b.state = StateConnected
		epoch, session := b.epoch, b.session
		b.mu.Unlock()

		b.logf("peer connected: %s epoch=%d session=%s", conn.RemoteAddr(), epoch, session)
		go b.readLoop(conn, epoch, session)
	}
}

// readLoop decodes frames into commands until the connection dies. Frame and
// JSON-level failures where no request id can be recovered are transport
// errors: the connection is torn down and the listener returns to accepting.
func (b *Bridge) readLoop(conn net.Conn, epoch int64, session string) {
	for {
		payload, err := protocol.ReadFrame(conn, b.maxFrame)
		if err != nil {
			if !errors.Is(err, io.EOF) && !b.isClosed() {
				b.logf("read error on epoch %d: %v", epoch, err)
			}
			b.teardown(epoch, conn)
			return
		}

		var probe struct {
			ID     *int64          `json:"id"`
			Method *string         `json:"method"`
			Params json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(payload, &probe); err != nil {
			// The envelope did not decode. If an id is still recoverable the
			// peer gets a ParseError reply; otherwise there is nothing to
			// correlate a reply to and the connection is dropped.
			var onlyID struct {
				ID *int64 `json:"id"`
			}
			if jerr := json.Unmarshal(payload, &onlyID); jerr == nil && onlyID.ID != nil {
				b.inbound.Push(command{
					epoch:    epoch,
					session:  session,
					req:      protocol.Request{ID: *onlyID.ID},
					protoErr: protocol.Errorf(protocol.CodeParseError, "malformed request", nil),
				})
				continue
			}
			b.logf("unparseable frame on epoch %d: %v", epoch, err)
			b.teardown(epoch, conn)
			return
		}
		if probe.ID == nil {
			b.logf("request without id on epoch %d", epoch)
			b.teardown(epoch, conn)
			return
		}

		cmd := command{
			epoch:   epoch,
			session: session,
			req:     protocol.Request{ID: *probe.ID, Params: probe.Params},
		}
		if probe.Method == nil || *probe.Method == "" {
			cmd.protoErr = protocol.Errorf(protocol.CodeInvalidRequest, "method required", nil)
		} else {
			cmd.req.Method = *probe.Method
		}
		b.inbound.Push(cmd)
	}
}

// writeLoop runs for the bridge's lifetime: it drains the outbound queue,
// discards replies whose epoch is stale (their peer is gone; a reply must
// never leak across connections), and writes the rest to the live socket.
func (b *Bridge) writeLoop() {
	for {
		rep, ok := b.outbound.Pop()
		if !ok {
			return
		}
		b.mu.Lock()
		conn, epoch := b.conn, b.epoch
		b.mu.Unlock()
		if conn == nil || rep.epoch != epoch {
			b.logf("discarding reply id=%d for stale epoch %d", rep.resp.ID, rep.epoch)
			continue
		}
		payload, err := json.Marshal(rep.resp)
		if err != nil {
			b.logf("reply marshal error id=%d: %v", rep.resp.ID, err)
			continue
		}
		if err := protocol.WriteFrame(conn, payload, b.maxFrame); err != nil {
			b.logf("write error on epoch %d: %v", rep.epoch, err)
			b.teardown(rep.epoch, conn)
		}
	}
}

// teardown closes the connection belonging to epoch and returns the listener
// to the accepting state. Safe to call from both loops; the second call for
// the same epoch is a no-op.
func (b *Bridge) teardown(epoch int64, conn net.Conn) {
	b.mu.Lock()
	current := b.conn == conn && b.epoch == epoch
	if current {
		b.conn = nil
		if !b.closed {
			b.state = StateListening
		}
	}
	b.mu.Unlock()
	conn.Close()
	if current {
		b.logf("peer disconnected: epoch=%d", epoch)
	}
}

func (b *Bridge) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}
