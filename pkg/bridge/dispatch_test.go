package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// newTestBridge builds a bridge without a listener; tests feed the inbound
// queue directly and read the outbound queue.
func newTestBridge(t *testing.T, budget int) *Bridge {
	t.Helper()
	r := NewRouter()
	if err := r.Register("echo", func(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
		return map[string]any{"params": params}, nil
	}); err != nil {
		t.Fatalf("register echo: %v", err)
	}
	if err := r.Register("boom", func(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
		panic("handler exploded")
	}); err != nil {
		t.Fatalf("register boom: %v", err)
	}
	if err := r.Register("reject", func(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope) {
		return nil, protocol.ValidationError("bad input")
	}); err != nil {
		t.Fatalf("register reject: %v", err)
	}
	b, err := New(r, Options{TickBudget: budget})
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}
	b.runCtx = context.Background()
	return b
}

func pushRequest(b *Bridge, epoch, id int64, method, params string) {
	cmd := command{
		epoch:   epoch,
		session: "01TESTSESSION",
		req:     protocol.Request{ID: id, Method: method},
	}
	if params != "" {
		cmd.req.Params = json.RawMessage(params)
	}
	b.inbound.Push(cmd)
}

func popReply(t *testing.T, b *Bridge) reply {
	t.Helper()
	rep, ok := b.outbound.TryPop()
	if !ok {
		t.Fatal("expected a reply on the outbound queue")
	}
	return rep
}

func TestDispatchHandshakeThenEcho(t *testing.T) {
	b := newTestBridge(t, 0)
	b.epoch = 1

	pushRequest(b, 1, 1, "handshake", `{}`)
	pushRequest(b, 1, 2, "echo", `{"v":42}`)
	b.Tick()

	hs := popReply(t, b)
	if hs.resp.Error != nil {
		t.Fatalf("handshake failed: %+v", hs.resp.Error)
	}
	var result struct {
		ProtocolVersion string `json:"protocol_version"`
		Epoch           int64  `json:"epoch"`
	}
	if err := json.Unmarshal(hs.resp.Result, &result); err != nil {
		t.Fatalf("unmarshal handshake: %v", err)
	}
	if result.ProtocolVersion != "1.0" || result.Epoch != 1 {
		t.Fatalf("unexpected handshake result: %+v", result)
	}

	echo := popReply(t, b)
	if echo.resp.ID != 2 || echo.resp.Error != nil {
		t.Fatalf("unexpected echo reply: %+v", echo.resp)
	}
}

func TestDispatchRequiresHandshake(t *testing.T) {
	b := newTestBridge(t, 0)

	pushRequest(b, 1, 1, "echo", `{}`)
	b.Tick()

	rep := popReply(t, b)
	if rep.resp.Error == nil || rep.resp.Error.Code != protocol.CodeHandshakeRequired {
		t.Fatalf("expected HandshakeRequired, got %+v", rep.resp.Error)
	}
}

func TestDispatchHeartbeatAlwaysAllowed(t *testing.T) {
	b := newTestBridge(t, 0)

	pushRequest(b, 1, 1, "heartbeat", "")
	b.Tick()
	first := popReply(t, b)
	if first.resp.Error != nil {
		t.Fatalf("heartbeat failed: %+v", first.resp.Error)
	}
	var beat struct {
		Alive bool  `json:"alive"`
		Tick  int64 `json:"tick"`
	}
	if err := json.Unmarshal(first.resp.Result, &beat); err != nil {
		t.Fatalf("unmarshal heartbeat: %v", err)
	}
	if !beat.Alive || beat.Tick < 1 {
		t.Fatalf("unexpected heartbeat: %+v", beat)
	}

	// Tick is non-decreasing across calls.
	pushRequest(b, 1, 2, "heartbeat", "")
	b.Tick()
	second := popReply(t, b)
	var beat2 struct {
		Tick int64 `json:"tick"`
	}
	if err := json.Unmarshal(second.resp.Result, &beat2); err != nil {
		t.Fatalf("unmarshal heartbeat: %v", err)
	}
	if beat2.Tick < beat.Tick {
		t.Fatalf("tick went backwards: %d then %d", beat.Tick, beat2.Tick)
	}
}

func TestDispatchMethodNotFound(t *testing.T) {
	b := newTestBridge(t, 0)
	b.handshakeEpoch = 1

	pushRequest(b, 1, 7, "does_not_exist", `{"anything":true}`)
	b.Tick()

	rep := popReply(t, b)
	if rep.resp.Error == nil || rep.resp.Error.Code != protocol.CodeMethodNotFound {
		t.Fatalf("expected MethodNotFound, got %+v", rep.resp.Error)
	}
	if rep.resp.ID != 7 {
		t.Fatalf("reply id mismatch: %d", rep.resp.ID)
	}
}

func TestDispatchHandlerPanicContained(t *testing.T) {
	b := newTestBridge(t, 0)
	b.handshakeEpoch = 1

	pushRequest(b, 1, 1, "boom", "")
	pushRequest(b, 1, 2, "echo", `{}`)
	b.Tick() // must not panic

	failed := popReply(t, b)
	if failed.resp.Error == nil || failed.resp.Error.Code != protocol.CodeHandlerFailure {
		t.Fatalf("expected HandlerFailure, got %+v", failed.resp.Error)
	}
	data, ok := failed.resp.Error.Data.(map[string]any)
	if !ok || data["panic"] != "handler exploded" {
		t.Fatalf("expected panic summary in data, got %+v", failed.resp.Error.Data)
	}

	// The rest of the drain batch still ran.
	echoed := popReply(t, b)
	if echoed.resp.ID != 2 || echoed.resp.Error != nil {
		t.Fatalf("expected echo after panic, got %+v", echoed.resp)
	}
}

func TestDispatchValidationError(t *testing.T) {
	b := newTestBridge(t, 0)
	b.handshakeEpoch = 1

	pushRequest(b, 1, 3, "reject", `{}`)
	b.Tick()

	rep := popReply(t, b)
	if rep.resp.Error == nil || rep.resp.Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("expected InvalidParams, got %+v", rep.resp.Error)
	}
}

func TestDispatchOrderPreserved(t *testing.T) {
	b := newTestBridge(t, 0)
	b.handshakeEpoch = 1

	const n = 50
	for i := int64(1); i <= n; i++ {
		pushRequest(b, 1, i, "echo", fmt.Sprintf(`{"seq":%d}`, i))
	}
	b.Tick()

	for i := int64(1); i <= n; i++ {
		rep := popReply(t, b)
		if rep.resp.ID != i {
			t.Fatalf("reply order broken: expected id %d, got %d", i, rep.resp.ID)
		}
	}
}

func TestDispatchTickBudget(t *testing.T) {
	b := newTestBridge(t, 2)
	b.handshakeEpoch = 1

	for i := int64(1); i <= 5; i++ {
		pushRequest(b, 1, i, "echo", "")
	}

	b.Tick()
	if got := b.inbound.Len(); got != 3 {
		t.Fatalf("expected 3 commands left after budgeted tick, got %d", got)
	}
	b.Tick()
	b.Tick()
	if got := b.inbound.Len(); got != 0 {
		t.Fatalf("expected drained queue, got %d", got)
	}
	if got := b.outbound.Len(); got != 5 {
		t.Fatalf("expected 5 replies, got %d", got)
	}
}

func TestDispatchProtocolError(t *testing.T) {
	b := newTestBridge(t, 0)

	b.inbound.Push(command{
		epoch:    1,
		req:      protocol.Request{ID: 9},
		protoErr: protocol.Errorf(protocol.CodeInvalidRequest, "method required", nil),
	})
	b.Tick()

	rep := popReply(t, b)
	if rep.resp.ID != 9 || rep.resp.Error == nil || rep.resp.Error.Code != protocol.CodeInvalidRequest {
		t.Fatalf("expected InvalidRequest for id 9, got %+v", rep.resp)
	}
}

type fakeRecorder struct {
	mu   sync.Mutex
	recs []CommandRecord
}

func (f *fakeRecorder) Record(rec CommandRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
}

func TestDispatchRecordsToJournal(t *testing.T) {
	rec := &fakeRecorder{}
	b := newTestBridge(t, 0)
	b.journal = rec
	b.handshakeEpoch = 1

	pushRequest(b, 1, 1, "echo", `{}`)
	pushRequest(b, 1, 2, "does_not_exist", "")
	b.Tick()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(rec.recs))
	}
	if !rec.recs[0].OK || rec.recs[0].Method != "echo" {
		t.Fatalf("unexpected first record: %+v", rec.recs[0])
	}
	if rec.recs[1].OK || rec.recs[1].ErrorCode != protocol.CodeMethodNotFound {
		t.Fatalf("unexpected second record: %+v", rec.recs[1])
	}
	if rec.recs[0].Session != "01TESTSESSION" {
		t.Fatalf("record metadata missing: %+v", rec.recs[0])
	}
}
