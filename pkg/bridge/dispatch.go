package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// Tick is the host's per-frame entry point and the only place handlers run.
// It drains the inbound queue up to the configured budget, dispatching each
// command in arrival order, and never blocks: when the queue is empty it
// returns immediately.
func (b *Bridge) Tick() {
	tick := b.tick.Add(1)
	for n := 0; b.budget <= 0 || n < b.budget; n++ {
		cmd, ok := b.inbound.TryPop()
		if !ok {
			return
		}
		resp := b.dispatch(cmd, tick)
		b.outbound.Push(reply{epoch: cmd.epoch, resp: resp})
	}
}

func (b *Bridge) dispatch(cmd command, tick int64) protocol.Response {
	start := time.Now()
	resp := b.dispatchOne(cmd, tick)
	if b.journal != nil {
		rec := CommandRecord{
			Session:   cmd.session,
			Epoch:     cmd.epoch,
			RequestID: cmd.req.ID,
			Method:    cmd.req.Method,
			OK:        resp.Error == nil,
			Duration:  time.Since(start),
		}
		if resp.Error != nil {
			rec.ErrorCode = resp.Error.Code
		}
		b.journal.Record(rec)
	}
	return resp
}

func (b *Bridge) dispatchOne(cmd command, tick int64) protocol.Response {
	if cmd.protoErr != nil {
		return protocol.Fail(cmd.req.ID, cmd.protoErr)
	}
	switch cmd.req.Method {
	case protocol.MethodHandshake:
		return b.handleHandshake(cmd)
	case protocol.MethodHeartbeat:
		resp, err := protocol.OK(cmd.req.ID, map[string]any{"alive": true, "tick": tick})
		if err != nil {
			return protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeHandlerFailure, err.Error(), nil))
		}
		return resp
	}
	if b.handshakeEpoch != cmd.epoch {
		return protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeHandshakeRequired,
			"handshake required before domain commands", nil))
	}
	handler := b.router.Resolve(cmd.req.Method)
	if handler == nil {
		return protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeMethodNotFound,
			fmt.Sprintf("method %q not found", cmd.req.Method), nil))
	}
	return b.invoke(handler, cmd)
}

// handleHandshake validates the optional protocol_version param and, on
// success, marks the command's epoch as handshaken. A mismatch is answered
// without closing the connection; the peer decides whether to hang up.
func (b *Bridge) handleHandshake(cmd command) protocol.Response {
	if len(cmd.req.Params) > 0 {
		var params struct {
			ProtocolVersion string `json:"protocol_version"`
		}
		if err := json.Unmarshal(cmd.req.Params, &params); err != nil {
			return protocol.Fail(cmd.req.ID, protocol.ValidationError("handshake params must be an object"))
		}
		if params.ProtocolVersion != "" && params.ProtocolVersion != protocol.Version {
			return protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeVersionMismatch,
				fmt.Sprintf("protocol version %q not supported", params.ProtocolVersion),
				map[string]any{"supported": protocol.Version}))
		}
	}
	b.handshakeEpoch = cmd.epoch
	resp, err := protocol.OK(cmd.req.ID, map[string]any{
		"protocol_version": protocol.Version,
		"epoch":            cmd.epoch,
	})
	if err != nil {
		return protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeHandlerFailure, err.Error(), nil))
	}
	return resp
}

// invoke runs a domain handler, converting panics and marshal failures into
// HandlerFailure replies. A broken handler must never take the host down or
// stop the rest of the drain batch.
func (b *Bridge) invoke(handler HandlerFunc, cmd command) (resp protocol.Response) {
	defer func() {
		if r := recover(); r != nil {
			b.logf("handler %q panicked: %v", cmd.req.Method, r)
			resp = protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeHandlerFailure,
				fmt.Sprintf("handler %q failed", cmd.req.Method),
				map[string]any{"panic": fmt.Sprint(r)}))
		}
	}()
	result, herr := handler(b.runCtx, cmd.req.Params)
	if herr != nil {
		return protocol.Fail(cmd.req.ID, herr)
	}
	resp, err := protocol.OK(cmd.req.ID, result)
	if err != nil {
		return protocol.Fail(cmd.req.ID, protocol.Errorf(protocol.CodeHandlerFailure,
			fmt.Sprintf("result marshal failed: %v", err), nil))
	}
	return resp
}
