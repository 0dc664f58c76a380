package httpauth

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/auth"
	"github.com/caseygil/attack-workbench-rest-api/challenge/memory"
	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
	"github.com/caseygil/attack-workbench-rest-api/serviceauth"
)

type stack struct {
	svc    *serviceauth.Service
	reg    *serviceauth.Registry
	tokens *jwtauth.ServiceTokens
}

func newStack(t *testing.T) *stack {
	t.Helper()
	reg, err := serviceauth.NewRegistry(
		serviceauth.Account{Name: "svc-A", Secret: []byte("k1"), Roles: []auth.Role{auth.RoleEditor}},
		serviceauth.Account{Name: "svc-admin", Secret: []byte("k9"), Roles: []auth.Role{auth.RoleAdmin}},
	)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	cache, err := memory.New(memory.WithSweepInterval(0))
	if err != nil {
		t.Fatalf("memory.New: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	tokens, err := jwtauth.NewServiceTokens([]byte("workbench-test-signing-secret-0123456789"), "attack-workbench")
	if err != nil {
		t.Fatalf("NewServiceTokens: %v", err)
	}
	svc, err := serviceauth.New(reg, cache, tokens)
	if err != nil {
		t.Fatalf("serviceauth.New: %v", err)
	}
	return &stack{svc: svc, reg: reg, tokens: tokens}
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestRoutes_PostHandshake(t *testing.T) {
	s := newStack(t)
	h := Routes(s.svc)

	rec := postJSON(t, h, serviceauth.ChallengePath, serviceauth.ChallengeRequest{ServiceName: "svc-A"})
	if rec.Code != http.StatusOK {
		t.Fatalf("challenge: want 200, got %d %s", rec.Code, rec.Body.String())
	}
	var ch serviceauth.ChallengeResponse
	if err := json.NewDecoder(rec.Body).Decode(&ch); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}

	rec = postJSON(t, h, serviceauth.TokenPath, serviceauth.TokenRequest{ServiceName: "svc-A", ChallengeHash: serviceauth.ComputeProof(ch.Challenge, []byte("k1"))})
	if rec.Code != http.StatusOK {
		t.Fatalf("token: want 200, got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("token response must not be cached")
	}
	var tok serviceauth.TokenResponse
	if err := json.NewDecoder(rec.Body).Decode(&tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.TokenType != "Bearer" || tok.ExpiresIn != int(serviceauth.DefaultTokenTimeout/time.Second) || tok.AccessToken == "" {
		t.Fatalf("unexpected token response: %+v", tok)
	}
	if _, err := s.tokens.Verify(tok.AccessToken); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
}

func TestRoutes_ErrorMapping(t *testing.T) {
	s := newStack(t)
	h := Routes(s.svc)

	rec := postJSON(t, h, serviceauth.ChallengePath, serviceauth.ChallengeRequest{ServiceName: "svc-Z"})
	if rec.Code != http.StatusNotFound || errorCode(t, rec) != serviceauth.CodeServiceNotFound {
		t.Fatalf("unknown service: got %d", rec.Code)
	}

	rec = postJSON(t, h, serviceauth.TokenPath, serviceauth.TokenRequest{ServiceName: "svc-A", ChallengeHash: "abc"})
	if rec.Code != http.StatusBadRequest || errorCode(t, rec) != serviceauth.CodeChallengeNotFound {
		t.Fatalf("no challenge: got %d", rec.Code)
	}

	_ = postJSON(t, h, serviceauth.ChallengePath, serviceauth.ChallengeRequest{ServiceName: "svc-A"})
	rec = postJSON(t, h, serviceauth.TokenPath, serviceauth.TokenRequest{ServiceName: "svc-A", ChallengeHash: "abc"})
	if rec.Code != http.StatusUnauthorized || errorCode(t, rec) != serviceauth.CodeInvalidChallengeHash {
		t.Fatalf("wrong hash: got %d", rec.Code)
	}

	rec = postJSON(t, h, serviceauth.ChallengePath, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing serviceName: want 400, got %d", rec.Code)
	}

	r := httptest.NewRequest(http.MethodPost, serviceauth.ChallengePath, strings.NewReader(`{"serviceName":"svc-A"}`))
	r.Header.Set("Content-Type", "text/plain")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("wrong content type: want 415, got %d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodPost, serviceauth.TokenPath, strings.NewReader(`{not json`))
	r.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: want 400, got %d", rec.Code)
	}
}

func TestRoutes_GetCompatibilityForms(t *testing.T) {
	s := newStack(t)
	h := Routes(s.svc)

	r := httptest.NewRequest(http.MethodGet, serviceauth.ChallengePath+"?serviceName=svc-A", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET challenge: %d %s", rec.Code, rec.Body.String())
	}
	var ch serviceauth.ChallengeResponse
	_ = json.NewDecoder(rec.Body).Decode(&ch)

	r = httptest.NewRequest(http.MethodGet, serviceauth.TokenPath+"?serviceName=svc-A", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("GET token without Apikey header: want 400, got %d", rec.Code)
	}

	r = httptest.NewRequest(http.MethodGet, serviceauth.TokenPath+"?serviceName=svc-A", nil)
	r.Header.Set("Authorization", "Apikey "+serviceauth.ComputeProof(ch.Challenge, []byte("k1")))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET token: %d %s", rec.Code, rec.Body.String())
	}
}

// TestEndToEnd runs the client handshake against a live server and uses the
// token on protected routes.
func TestEndToEnd(t *testing.T) {
	s := newStack(t)
	authn := NewAuthenticator(WithBearer(serviceauth.NewAuthenticator(s.reg, s.tokens)))

	mux := http.NewServeMux()
	mux.Handle("/api/authn/service/", Routes(s.svc))
	mux.Handle("GET /api/session", authn.Middleware(echoPrincipal()))
	mux.Handle("GET /api/config/system", authn.Middleware(RequireRole(auth.RoleAdmin)(echoPrincipal())))
	srv := httptest.NewServer(RequestContext(mux))
	defer srv.Close()

	client := serviceauth.NewClient(srv.URL, serviceauth.WithHTTPClient(srv.Client()))

	get := func(path, tok string) *http.Response {
		t.Helper()
		req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+path, nil)
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
		res, err := srv.Client().Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		t.Cleanup(func() { _ = res.Body.Close() })
		return res
	}

	editor, err := client.Authenticate(t.Context(), "svc-A", []byte("k1"))
	if err != nil {
		t.Fatalf("Authenticate svc-A: %v", err)
	}
	if res := get("/api/session", editor.AccessToken); res.StatusCode != http.StatusOK {
		t.Fatalf("/api/session as svc-A: %d", res.StatusCode)
	}
	if res := get("/api/config/system", editor.AccessToken); res.StatusCode != http.StatusForbidden {
		t.Fatalf("/api/config/system as editor: want 403, got %d", res.StatusCode)
	}
	if res := get("/api/config/system", ""); res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("/api/config/system anonymous: want 401, got %d", res.StatusCode)
	}

	admin, err := client.Authenticate(t.Context(), "svc-admin", []byte("k9"))
	if err != nil {
		t.Fatalf("Authenticate svc-admin: %v", err)
	}
	res := get("/api/config/system", admin.AccessToken)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("/api/config/system as admin: %d", res.StatusCode)
	}
	if res.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}

	if _, err := client.Authenticate(t.Context(), "svc-A", []byte("wrong")); !errors.Is(err, serviceauth.ErrInvalidChallengeHash) {
		t.Fatalf("wrong secret: want ErrInvalidChallengeHash, got %v", err)
	}
}
