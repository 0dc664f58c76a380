package httpauth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/caseygil/attack-workbench-rest-api/internal/logctx"
	"github.com/google/uuid"
)

func TestRequestContext(t *testing.T) {
	var got *logctx.RequestData
	h := RequestContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = logctx.RequestDataFrom(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got == nil || got.Path != "/api/session" || got.Method != http.MethodGet {
		t.Fatalf("request data not attached: %+v", got)
	}
	if _, err := uuid.Parse(got.RequestID); err != nil || rec.Header().Get("X-Request-Id") != got.RequestID {
		t.Fatalf("request id: %q header %q", got.RequestID, rec.Header().Get("X-Request-Id"))
	}

	inbound := uuid.NewString()
	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", inbound)
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got.RequestID != inbound {
		t.Fatalf("inbound request id not reused: %q", got.RequestID)
	}

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-Id", "not a uuid\r\n")
	h.ServeHTTP(httptest.NewRecorder(), r)
	if got.RequestID == "not a uuid\r\n" {
		t.Fatalf("malformed inbound id must be replaced")
	}
}
