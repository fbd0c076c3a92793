package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/ifBars/S1MCPServer-sub001/pkg/protocol"
)

// HandlerFunc processes a request's params and returns a result or a
// structured error. Handlers run on the host tick and may touch host state;
// they must not block.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, *protocol.ErrorEnvelope)

// Router maps method names to handlers. It is populated before the bridge
// starts and read-only afterwards, so dispatch needs no locking.
type Router struct {
	handlers map[string]HandlerFunc
	sealed   bool
}

// NewRouter returns an empty registry.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]HandlerFunc)}
}

// Register installs a handler. Duplicate names, reserved names, and empty
// names are configuration bugs and fail immediately.
func (r *Router) Register(method string, handler HandlerFunc) error {
	if r.sealed {
		return fmt.Errorf("register %q: router sealed, registration after startup is forbidden", method)
	}
	if method == "" {
		return fmt.Errorf("register: empty method name")
	}
	if method == protocol.MethodHandshake || method == protocol.MethodHeartbeat {
		return fmt.Errorf("register %q: reserved method", method)
	}
	if handler == nil {
		return fmt.Errorf("register %q: nil handler", method)
	}
	if _, dup := r.handlers[method]; dup {
		return fmt.Errorf("register %q: already registered", method)
	}
	r.handlers[method] = handler
	return nil
}

// Resolve returns the handler for method, or nil when unknown.
func (r *Router) Resolve(method string) HandlerFunc {
	return r.handlers[method]
}

// Methods lists registered method names, sorted.
func (r *Router) Methods() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// seal marks the registry immutable. Called when the bridge starts consuming.
func (r *Router) seal() {
	r.sealed = true
}
