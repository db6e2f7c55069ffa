package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/taskbridge/marketplace/pkg/requestid"
)

// RequestID makes the request ID available through the requestid package and echoes it back.
// The caller's X-Request-Id wins over the one chi generated, a fresh UUID is used otherwise.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestid.Header)
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		if id == "" {
			id = requestid.Generate()
		}

		w.Header().Set(requestid.Header, id)
		next.ServeHTTP(w, r.WithContext(requestid.ToContext(r.Context(), id)))
	})
}
