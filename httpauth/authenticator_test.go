package httpauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/caseygil/attack-workbench-rest-api/auth"
	"github.com/caseygil/attack-workbench-rest-api/auth/authtest"
)

var (
	svcA  = &auth.Principal{Kind: auth.KindService, ID: "svc-A", Roles: []auth.Role{auth.RoleEditor}, Strategy: auth.StrategyServiceToken}
	alice = &auth.Principal{Kind: auth.KindUser, ID: "alice", Roles: []auth.Role{auth.RoleAdmin}, Strategy: auth.StrategySession}
)

// cookieSession treats any "sess" cookie with value "alice" as alice's session.
var cookieSession = SessionSourceFunc(func(r *http.Request) (*auth.Principal, bool) {
	c, err := r.Cookie("sess")
	if err != nil || c.Value != "alice" {
		return nil, false
	}
	return alice, true
})

func echoPrincipal() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.PrincipalFrom(r.Context())
		if !ok {
			http.Error(w, "no principal", http.StatusTeapot)
			return
		}
		_, _ = w.Write([]byte(p.ID))
	})
}

func do(h http.Handler, authz string, withSession bool) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	if authz != "" {
		r.Header.Set("Authorization", authz)
	}
	if withSession {
		r.AddCookie(&http.Cookie{Name: "sess", Value: "alice"})
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestMiddleware_StrategySelection(t *testing.T) {
	bearer := authtest.NewStatic().Add("good", svcA)

	tests := []struct {
		name        string
		opts        []Option
		authz       string
		withSession bool
		wantStatus  int
		wantBody    string
		wantErrCode string
	}{
		{name: "valid bearer", opts: []Option{WithBearer(bearer)}, authz: "Bearer good", wantStatus: 200, wantBody: "svc-A"},
		{name: "lowercase scheme", opts: []Option{WithBearer(bearer)}, authz: "bearer good", wantStatus: 200, wantBody: "svc-A"},
		{name: "invalid bearer", opts: []Option{WithBearer(bearer)}, authz: "Bearer bad", wantStatus: 401, wantErrCode: "invalid_token"},
		{name: "invalid bearer never falls back to session", opts: []Option{WithBearer(bearer), WithSessionSource(cookieSession)}, authz: "Bearer bad", withSession: true, wantStatus: 401, wantErrCode: "invalid_token"},
		{name: "valid bearer wins over session", opts: []Option{WithBearer(bearer), WithSessionSource(cookieSession)}, authz: "Bearer good", withSession: true, wantStatus: 200, wantBody: "svc-A"},
		{name: "session only", opts: []Option{WithBearer(bearer), WithSessionSource(cookieSession)}, withSession: true, wantStatus: 200, wantBody: "alice"},
		{name: "header without bearer strategy rejected", opts: []Option{WithSessionSource(cookieSession)}, authz: "Bearer good", withSession: true, wantStatus: 401, wantErrCode: "invalid_token"},
		{name: "nothing", opts: []Option{WithBearer(bearer), WithSessionSource(cookieSession)}, wantStatus: 401},
		{name: "session strategy disabled", opts: []Option{WithBearer(bearer)}, withSession: true, wantStatus: 401},
		{name: "wrong scheme", opts: []Option{WithBearer(bearer)}, authz: "Basic Zm9vOmJhcg==", wantStatus: 401, wantErrCode: "invalid_request"},
		{name: "empty token", opts: []Option{WithBearer(bearer)}, authz: "Bearer    ", wantStatus: 401, wantErrCode: "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAuthenticator(tt.opts...).Middleware(echoPrincipal())
			rec := do(h, tt.authz, tt.withSession)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status: want %d, got %d (%s)", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Fatalf("body: want %q, got %q", tt.wantBody, rec.Body.String())
			}
			if rec.Code == http.StatusUnauthorized {
				ch := rec.Header().Get("WWW-Authenticate")
				if !strings.HasPrefix(ch, "Bearer") {
					t.Fatalf("missing bearer challenge, got %q", ch)
				}
				if tt.wantErrCode == "" && strings.Contains(ch, "error=") {
					t.Fatalf("no error code expected without credentials, got %q", ch)
				}
				if tt.wantErrCode != "" && !strings.Contains(ch, `error="`+tt.wantErrCode+`"`) {
					t.Fatalf("want error=%q in %q", tt.wantErrCode, ch)
				}
			}
		})
	}
}

func TestMiddleware_BearerChainOrder(t *testing.T) {
	first := authtest.NewStatic().Add("svc-token", svcA)
	user := &auth.Principal{Kind: auth.KindUser, ID: "bob", Strategy: auth.StrategyOIDC}
	second := authtest.NewStatic().Add("idp-token", user)
	h := NewAuthenticator(WithBearer(first, second)).Middleware(echoPrincipal())

	if rec := do(h, "Bearer svc-token", false); rec.Code != 200 || rec.Body.String() != "svc-A" {
		t.Fatalf("service token: %d %s", rec.Code, rec.Body.String())
	}
	if second.Calls() != 0 {
		t.Fatalf("second verifier consulted after first succeeded")
	}
	if rec := do(h, "Bearer idp-token", false); rec.Code != 200 || rec.Body.String() != "bob" {
		t.Fatalf("idp token: %d %s", rec.Code, rec.Body.String())
	}
	rec := do(h, "Bearer neither", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown token: want 401, got %d", rec.Code)
	}
	var body errorBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "unauthorized" {
		t.Fatalf("error code: %+v", body)
	}
}

func TestMiddleware_VerifierInfrastructureError(t *testing.T) {
	broken := auth.AuthenticatorFunc(func(_ context.Context, _ string) (*auth.Principal, error) {
		return nil, errors.New("jwks fetch failed")
	})
	h := NewAuthenticator(WithBearer(broken)).Middleware(echoPrincipal())
	if rec := do(h, "Bearer x", false); rec.Code != http.StatusInternalServerError {
		t.Fatalf("want 500, got %d", rec.Code)
	}
}

func TestBuildBearerChallenge(t *testing.T) {
	tests := []struct {
		realm  string
		params map[string]string
		want   string
	}{
		{want: "Bearer"},
		{realm: "workbench", want: `Bearer realm="workbench"`},
		{
			realm:  "workbench",
			params: map[string]string{"error_description": `say "hi"`, "error": "invalid_token"},
			want:   `Bearer realm="workbench", error="invalid_token", error_description="say \"hi\""`,
		},
	}
	for _, tt := range tests {
		if got := buildBearerChallenge(tt.realm, tt.params); got != tt.want {
			t.Errorf("buildBearerChallenge(%q, %v) = %q, want %q", tt.realm, tt.params, got, tt.want)
		}
	}
}
