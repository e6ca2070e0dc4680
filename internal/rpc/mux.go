package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// Mux routes requests to the handler registered for their pattern.
type Mux struct {
	apiKey string

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

func NewMux(apiKey string) *Mux {
	return &Mux{
		apiKey:   apiKey,
		handlers: make(map[string]HandlerFunc),
	}
}

func (m *Mux) Handle(pattern string, h HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.handlers[pattern]; exists {
		panic(fmt.Sprintf("rpc: pattern %q registered twice", pattern))
	}
	m.handlers[pattern] = h
}

// Serve decodes a raw request, dispatches it and encodes the reply.
func (m *Mux) Serve(ctx context.Context, body []byte) []byte {
	var req Request
	var resp *Response
	if err := json.Unmarshal(body, &req); err != nil {
		resp = errorResponse(domain.BadRequest("Invalid request payload"))
	} else {
		resp = m.Dispatch(ctx, &req)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		slog.Error("rpc reply encoding failed", "pattern", req.Pattern, "error", err)
		raw, _ = json.Marshal(errorResponse(err))
	}
	return raw
}

func (m *Mux) Dispatch(ctx context.Context, req *Request) (resp *Response) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			slog.Error("rpc handler panicked", "pattern", req.Pattern, "panic", p)
			fmt.Print(string(debug.Stack()))
			resp = errorResponse(fmt.Errorf("panic: %v", p))
		}
		slog.Info("rpc handled", "pattern", req.Pattern, "status", resp.StatusCode, "duration", time.Since(start))
	}()

	if req.APIKey != m.apiKey {
		return errorResponse(domain.Unauthorized("Unauthorized"))
	}

	m.mu.RLock()
	h, ok := m.handlers[req.Pattern]
	m.mu.RUnlock()
	if !ok {
		return errorResponse(domain.NotFound(fmt.Sprintf("no handler for pattern %s", req.Pattern)))
	}

	data, err := h(ctx, req)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			slog.Error("rpc handler failed", "pattern", req.Pattern, "error", err)
		}
		return errorResponse(err)
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return errorResponse(err)
	}
	return &Response{
		StatusCode: http.StatusOK,
		Success:    true,
		Data:       raw,
	}
}

func errorResponse(err error) *Response {
	return &Response{
		StatusCode: domain.KindOf(err).Status(),
		Success:    false,
		Error:      domain.PublicMessage(err),
	}
}

// LocalClient calls a Mux in the same process, going through the same JSON encoding
// as the broker transport.
type LocalClient struct {
	mux    *Mux
	apiKey string
}

func NewLocalClient(mux *Mux, apiKey string) *LocalClient {
	return &LocalClient{mux: mux, apiKey: apiKey}
}

func (c *LocalClient) Call(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error {
	body, err := encodeRequest(pattern, c.apiKey, user, payload)
	if err != nil {
		return err
	}
	return decodeResponse(c.mux.Serve(ctx, body), out)
}
