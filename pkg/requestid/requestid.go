package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header carries the request ID on incoming requests and on calls made on their behalf.
const Header = "X-Request-Id"

type contextKey string

const requestIDKey contextKey = "request_id"

func Generate() string {
	return uuid.New().String()
}

func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromContext returns an empty string when the context carries no request ID.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func FromContextPtr(ctx context.Context) *string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return &requestID
	}
	return nil
}

func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}

// Propagate copies the request ID found in ctx onto an outgoing request.
func Propagate(ctx context.Context, req *http.Request) {
	if requestID := FromContext(ctx); requestID != "" {
		req.Header.Set(Header, requestID)
	}
}
