package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/caseygil/attack-workbench-rest-api/auth"
	"github.com/caseygil/attack-workbench-rest-api/challenge"
	"github.com/caseygil/attack-workbench-rest-api/challenge/memory"
	"github.com/caseygil/attack-workbench-rest-api/challenge/redis"
	"github.com/caseygil/attack-workbench-rest-api/config"
	"github.com/caseygil/attack-workbench-rest-api/httpauth"
	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
	"github.com/caseygil/attack-workbench-rest-api/serviceauth"
	"github.com/caseygil/attack-workbench-rest-api/session"
)

// newServer assembles the HTTP handler from cfg. The returned cleanup
// releases the challenge cache and rate limiter.
func newServer(ctx context.Context, cfg *config.Config, log *slog.Logger) (http.Handler, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (http.Handler, func(), error) {
		cleanup()
		return nil, func() {}, err
	}

	mux := http.NewServeMux()
	var bearer []auth.Authenticator

	if cfg.EnableServiceAccounts {
		accts, err := cfg.Accounts()
		if err != nil {
			return fail(err)
		}
		reg, err := serviceauth.NewRegistry(accts...)
		if err != nil {
			return fail(err)
		}
		tokens, err := jwtauth.NewServiceTokens([]byte(cfg.TokenSigningSecret), cfg.TokenIssuer)
		if err != nil {
			return fail(err)
		}
		cache, err := newChallengeCache(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, func() { _ = cache.Close() })

		svc, err := serviceauth.New(reg, cache, tokens,
			serviceauth.WithChallengeTTL(cfg.ChallengeTTL),
			serviceauth.WithTokenTimeout(cfg.TokenTimeout),
			serviceauth.WithLogger(log),
		)
		if err != nil {
			return fail(err)
		}

		routeOpts := []httpauth.RouteOption{httpauth.WithRoutesLogger(log)}
		if cfg.AuthnRateLimitRPS > 0 {
			rl := httpauth.NewRateLimiter(cfg.AuthnRateLimitRPS, cfg.AuthnRateLimitBurst)
			closers = append(closers, rl.Close)
			routeOpts = append(routeOpts, httpauth.WithRateLimit(rl))
		}
		mux.Handle("/api/authn/service/", httpauth.Routes(svc, routeOpts...))
		bearer = append(bearer, serviceauth.NewAuthenticator(reg, tokens))
		log.Info("authn.strategy.enabled", slog.String("strategy", string(auth.StrategyServiceToken)), slog.Int("accounts", reg.Len()))
	}

	if cfg.EnableOIDCBearer {
		idp, err := newIdentityProvider(ctx, cfg)
		if err != nil {
			return fail(err)
		}
		bearer = append(bearer, idp)
		log.Info("authn.strategy.enabled", slog.String("strategy", string(auth.StrategyOIDC)), slog.String("issuer", cfg.OIDCIssuer))
	}

	authnOpts := []httpauth.Option{httpauth.WithBearer(bearer...), httpauth.WithLogger(log), httpauth.WithRealm("workbench")}
	if cfg.EnableSessions {
		keys := session.NewKeyRing()
		keys.AddEd25519Key("primary", session.KeyFromSeed(cfg.SessionKeySeed))
		if err := keys.SetActive("primary"); err != nil {
			return fail(err)
		}
		codec, err := session.NewCodec(keys,
			session.WithCookieName(cfg.SessionCookieName),
			session.WithTTL(cfg.SessionTTL),
			session.WithSecureCookie(cfg.SessionSecureCookie),
			session.WithLogger(log),
		)
		if err != nil {
			return fail(err)
		}
		authnOpts = append(authnOpts, httpauth.WithSessionSource(codec))
		log.Info("authn.strategy.enabled", slog.String("strategy", string(auth.StrategySession)))
	}
	authn := httpauth.NewAuthenticator(authnOpts...)

	mux.Handle("GET /api/session", authn.Middleware(http.HandlerFunc(handleSession)))
	mux.Handle("GET /api/config/system", authn.Middleware(httpauth.RequireRole(auth.RoleAdmin)(systemConfigHandler(cfg))))

	return httpauth.RequestContext(mux), cleanup, nil
}

func newChallengeCache(ctx context.Context, cfg *config.Config) (challenge.Cache, error) {
	switch cfg.ChallengeCache {
	case config.CacheRedis:
		return redis.Dial(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix)
	case config.CacheMemory:
		return memory.New()
	default:
		return nil, fmt.Errorf("unknown challenge cache %q", cfg.ChallengeCache)
	}
}

func newIdentityProvider(ctx context.Context, cfg *config.Config) (auth.Authenticator, error) {
	if cfg.OIDCJWKSURL != "" {
		sc := auth.SecurityConfig{
			Issuer:     cfg.OIDCIssuer,
			Audiences:  []string{cfg.OIDCAudience},
			JWKSURL:    cfg.OIDCJWKSURL,
			RolesClaim: cfg.OIDCRolesClaim,
		}
		return sc.NewManualJWTAuthenticator(ctx)
	}
	return auth.NewFromDiscovery(ctx, cfg.OIDCIssuer, cfg.OIDCAudience, auth.WithRolesClaim(cfg.OIDCRolesClaim))
}

type sessionResponse struct {
	ID       string   `json:"id"`
	Kind     string   `json:"kind"`
	Strategy string   `json:"strategy"`
	Roles    []string `json:"roles"`
}

func handleSession(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	out := sessionResponse{ID: p.ID, Kind: string(p.Kind), Strategy: string(p.Strategy), Roles: []string{}}
	for _, role := range p.Roles {
		out.Roles = append(out.Roles, string(role))
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

type systemConfigResponse struct {
	ServiceAccountsEnabled bool   `json:"serviceAccountsEnabled"`
	OIDCBearerEnabled      bool   `json:"oidcBearerEnabled"`
	SessionsEnabled        bool   `json:"sessionsEnabled"`
	ChallengeCache         string `json:"challengeCache"`
	TokenTimeoutSeconds    int    `json:"tokenTimeoutSeconds"`
	ChallengeTTLSeconds    int    `json:"challengeTtlSeconds"`
}

func systemConfigHandler(cfg *config.Config) http.Handler {
	body := systemConfigResponse{
		ServiceAccountsEnabled: cfg.EnableServiceAccounts,
		OIDCBearerEnabled:      cfg.EnableOIDCBearer,
		SessionsEnabled:        cfg.EnableSessions,
		ChallengeCache:         cfg.ChallengeCache,
		TokenTimeoutSeconds:    int(cfg.TokenTimeout.Seconds()),
		ChallengeTTLSeconds:    int(cfg.ChallengeTTL.Seconds()),
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})
}
