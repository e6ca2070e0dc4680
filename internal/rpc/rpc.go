package rpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/sysu-ecnc-dev/attendance-manager/backend/internal/domain"
)

// Request is the envelope of every internal call. APIKey is the shared secret every
// internal caller attaches and every callee verifies before dispatching.
type Request struct {
	Pattern        string                 `json:"pattern"`
	APIKey         string                 `json:"apiKey"`
	AuthorizedUser *domain.AuthorizedUser `json:"authorizedUser,omitempty"`
	Payload        json.RawMessage        `json:"payload,omitempty"`
}

// Bind decodes the request payload into v.
func (r *Request) Bind(v any) error {
	if len(r.Payload) == 0 {
		return domain.BadRequest("Invalid request payload")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return domain.BadRequest("Invalid request payload")
	}
	return nil
}

type Response struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

type HandlerFunc func(ctx context.Context, req *Request) (any, error)

// Client sends a request to one internal service and waits for its reply. Data of a
// successful reply is decoded into out when out is not nil; an unsuccessful reply comes
// back as a *domain.Error with the callee's classification.
type Client interface {
	Call(ctx context.Context, pattern string, user *domain.AuthorizedUser, payload any, out any) error
}

// Authorized rejects calls that do not carry the caller identity.
func Authorized(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) (any, error) {
		if req.AuthorizedUser == nil || req.AuthorizedUser.UserID == 0 {
			return nil, domain.Unauthorized("Unauthorized")
		}
		return next(ctx, req)
	}
}

func encodeRequest(pattern, apiKey string, user *domain.AuthorizedUser, payload any) ([]byte, error) {
	req := Request{
		Pattern:        pattern,
		APIKey:         apiKey,
		AuthorizedUser: user,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		req.Payload = raw
	}
	return json.Marshal(req)
}

func decodeResponse(body []byte, out any) error {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.BadGateway(err)
	}
	if !resp.Success {
		return &domain.Error{
			Kind:    domain.KindFromStatus(resp.StatusCode),
			Message: resp.Error,
		}
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return domain.BadGateway(errors.Join(errors.New("decoding rpc reply"), err))
	}
	return nil
}
