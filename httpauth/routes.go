package httpauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/caseygil/attack-workbench-rest-api/serviceauth"
	"github.com/elnormous/contenttype"
)

const maxBodyBytes = 64 << 10

// RouteOption configures the handshake routes.
type RouteOption func(*routes)

// WithRoutesLogger sets the logger used by the handshake routes.
func WithRoutesLogger(l *slog.Logger) RouteOption {
	return func(rt *routes) { rt.log = l }
}

// WithRateLimit wraps the handshake routes in rl.
func WithRateLimit(rl *RateLimiter) RouteOption {
	return func(rt *routes) { rt.limiter = rl }
}

type routes struct {
	svc     *serviceauth.Service
	log     *slog.Logger
	limiter *RateLimiter
}

// Routes returns a handler serving the service challenge and token
// endpoints, in both their JSON POST and query-string GET forms.
func Routes(svc *serviceauth.Service, opts ...RouteOption) http.Handler {
	rt := &routes{svc: svc, log: slog.Default()}
	for _, opt := range opts {
		opt(rt)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+serviceauth.ChallengePath, rt.postChallenge)
	mux.HandleFunc("GET "+serviceauth.ChallengePath, rt.getChallenge)
	mux.HandleFunc("POST "+serviceauth.TokenPath, rt.postToken)
	mux.HandleFunc("GET "+serviceauth.TokenPath, rt.getToken)

	if rt.limiter != nil {
		return rt.limiter.Middleware(mux)
	}
	return mux
}

func (rt *routes) postChallenge(w http.ResponseWriter, r *http.Request) {
	var in serviceauth.ChallengeRequest
	if !rt.decodeJSON(w, r, &in) {
		return
	}
	rt.issueChallenge(w, r, in.ServiceName)
}

func (rt *routes) getChallenge(w http.ResponseWriter, r *http.Request) {
	rt.issueChallenge(w, r, r.URL.Query().Get("serviceName"))
}

func (rt *routes) issueChallenge(w http.ResponseWriter, r *http.Request, serviceName string) {
	if serviceName == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "serviceName is required")
		return
	}
	n, err := rt.svc.CreateChallenge(r.Context(), serviceName)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, serviceauth.ChallengeResponse{Challenge: n})
}

func (rt *routes) postToken(w http.ResponseWriter, r *http.Request) {
	var in serviceauth.TokenRequest
	if !rt.decodeJSON(w, r, &in) {
		return
	}
	rt.redeem(w, r, in.ServiceName, in.ChallengeHash)
}

func (rt *routes) getToken(w http.ResponseWriter, r *http.Request) {
	const apikeyPrefix = "apikey "
	h := r.Header.Get(authorizationHeader)
	if len(h) <= len(apikeyPrefix) || !strings.EqualFold(h[:len(apikeyPrefix)], apikeyPrefix) {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "Authorization: Apikey <challengeHash> is required")
		return
	}
	rt.redeem(w, r, r.URL.Query().Get("serviceName"), strings.TrimSpace(h[len(apikeyPrefix):]))
}

func (rt *routes) redeem(w http.ResponseWriter, r *http.Request, serviceName, proof string) {
	if serviceName == "" || proof == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "serviceName and challengeHash are required")
		return
	}
	grant, err := rt.svc.RedeemChallenge(r.Context(), serviceName, proof)
	if err != nil {
		rt.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, serviceauth.TokenResponse{
		AccessToken: grant.Token,
		TokenType:   "Bearer",
		ExpiresIn:   grant.ExpiresIn,
	})
}

func (rt *routes) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		rt.log.WarnContext(r.Context(), "content_type.unsupported")
		writeJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "content-type must be application/json")
		return false
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		rt.log.WarnContext(r.Context(), "json.decode.fail", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (rt *routes) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, serviceauth.ErrServiceNotFound):
		writeJSONError(w, http.StatusNotFound, serviceauth.CodeServiceNotFound, "service not found")
	case errors.Is(err, serviceauth.ErrChallengeNotFound):
		writeJSONError(w, http.StatusBadRequest, serviceauth.CodeChallengeNotFound, "no outstanding challenge for service")
	case errors.Is(err, serviceauth.ErrInvalidChallengeHash):
		writeJSONError(w, http.StatusUnauthorized, serviceauth.CodeInvalidChallengeHash, "challenge hash does not match")
	default:
		rt.log.ErrorContext(r.Context(), "authn.service.internal", slog.String("err", err.Error()))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
