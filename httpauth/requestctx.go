package httpauth

import (
	"net/http"

	"github.com/caseygil/attack-workbench-rest-api/internal/logctx"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestContext tags each request with an id and attaches its attributes
// to the context for logctx. A well-formed inbound X-Request-Id is reused.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := logctx.WithRequestData(r.Context(), &logctx.RequestData{
			RequestID:  id,
			Method:     r.Method,
			UserAgent:  r.UserAgent(),
			RemoteAddr: r.RemoteAddr,
			Path:       r.URL.Path,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
