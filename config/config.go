// Package config loads the immutable runtime configuration of the API's
// authentication layer.
//
// Scalar settings come from WORKBENCH_* environment variables. The service
// account registry comes from a YAML file named by
// WORKBENCH_SERVICE_ACCOUNTS_FILE:
//
//	serviceAccounts:
//	  - name: svc-A
//	    secret: k1            # or secretEnv: SVC_A_SECRET
//	    roles: [editor]
//
// Configuration is loaded once at startup and validated as a whole; there
// is no reload.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caseygil/attack-workbench-rest-api/auth"
	"github.com/caseygil/attack-workbench-rest-api/internal/jwtauth"
	"github.com/caseygil/attack-workbench-rest-api/serviceauth"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Challenge cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config is the process configuration.
type Config struct {
	ListenAddr string `env:"WORKBENCH_LISTEN_ADDR,default=:3000"`
	LogLevel   string `env:"WORKBENCH_LOG_LEVEL,default=info"`
	LogFormat  string `env:"WORKBENCH_LOG_FORMAT,default=json"`

	// Service accounts.
	EnableServiceAccounts bool          `env:"WORKBENCH_SERVICE_ACCOUNTS_ENABLED,default=true"`
	ServiceAccountsFile   string        `env:"WORKBENCH_SERVICE_ACCOUNTS_FILE"`
	TokenSigningSecret    string        `env:"WORKBENCH_TOKEN_SIGNING_SECRET"`
	TokenIssuer           string        `env:"WORKBENCH_TOKEN_ISSUER,default=attack-workbench"`
	TokenTimeout          time.Duration `env:"WORKBENCH_TOKEN_TIMEOUT,default=300s"`
	ChallengeTTL          time.Duration `env:"WORKBENCH_CHALLENGE_TTL,default=60s"`

	// Challenge cache.
	ChallengeCache string `env:"WORKBENCH_CHALLENGE_CACHE,default=memory"`
	RedisAddr      string `env:"WORKBENCH_REDIS_ADDR,default=localhost:6379"`
	RedisKeyPrefix string `env:"WORKBENCH_REDIS_KEY_PREFIX,default=workbench:challenge:"`

	// External identity provider bearer tokens.
	EnableOIDCBearer bool   `env:"WORKBENCH_OIDC_BEARER_ENABLED,default=false"`
	OIDCIssuer       string `env:"WORKBENCH_OIDC_ISSUER"`
	OIDCAudience     string `env:"WORKBENCH_OIDC_AUDIENCE"`
	OIDCJWKSURL      string `env:"WORKBENCH_OIDC_JWKS_URL"`
	OIDCRolesClaim   string `env:"WORKBENCH_OIDC_ROLES_CLAIM,default=roles"`

	// Sessions established by the interactive login flow.
	EnableSessions      bool          `env:"WORKBENCH_SESSIONS_ENABLED,default=false"`
	SessionKeySeed      string        `env:"WORKBENCH_SESSION_KEY_SEED"`
	SessionCookieName   string        `env:"WORKBENCH_SESSION_COOKIE_NAME,default=workbench_session"`
	SessionTTL          time.Duration `env:"WORKBENCH_SESSION_TTL,default=8h"`
	SessionSecureCookie bool          `env:"WORKBENCH_SESSION_SECURE_COOKIE,default=false"`

	// Rate limiting of the handshake endpoints. Zero RPS disables it.
	AuthnRateLimitRPS   float64 `env:"WORKBENCH_AUTHN_RATE_LIMIT_RPS,default=5"`
	AuthnRateLimitBurst int     `env:"WORKBENCH_AUTHN_RATE_LIMIT_BURST,default=10"`

	ServiceAccounts []ServiceAccount
}

// ServiceAccount is one entry of the service account file.
type ServiceAccount struct {
	Name      string   `yaml:"name"`
	Secret    string   `yaml:"secret,omitempty"`
	SecretEnv string   `yaml:"secretEnv,omitempty"`
	Roles     []string `yaml:"roles"`
}

type accountsFile struct {
	ServiceAccounts []ServiceAccount `yaml:"serviceAccounts"`
}

// FromEnv decodes Config from the environment, loads the service account
// file if one is named, and validates the result.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if cfg.ServiceAccountsFile != "" {
		accts, err := LoadServiceAccounts(cfg.ServiceAccountsFile)
		if err != nil {
			return nil, err
		}
		cfg.ServiceAccounts = accts
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadServiceAccounts reads the service account YAML file at path.
// Secrets given by secretEnv are resolved from the environment.
func LoadServiceAccounts(path string) ([]ServiceAccount, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service accounts file: %w", err)
	}
	var f accountsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse service accounts file %s: %w", path, err)
	}
	for i := range f.ServiceAccounts {
		sa := &f.ServiceAccounts[i]
		if sa.Secret == "" && sa.SecretEnv != "" {
			sa.Secret = os.Getenv(sa.SecretEnv)
		}
	}
	return f.ServiceAccounts, nil
}

// Validate checks cross-field invariants. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.EnableServiceAccounts {
		if len(c.TokenSigningSecret) < jwtauth.MinServiceSecretLen {
			errs = append(errs, fmt.Errorf("WORKBENCH_TOKEN_SIGNING_SECRET must be at least %d bytes", jwtauth.MinServiceSecretLen))
		}
		if c.TokenIssuer == "" {
			errs = append(errs, errors.New("WORKBENCH_TOKEN_ISSUER is required"))
		}
		if c.TokenTimeout < time.Second {
			errs = append(errs, errors.New("WORKBENCH_TOKEN_TIMEOUT must be at least 1s"))
		}
		if c.ChallengeTTL <= 0 {
			errs = append(errs, errors.New("WORKBENCH_CHALLENGE_TTL must be positive"))
		}
		switch c.ChallengeCache {
		case CacheMemory, CacheRedis:
		default:
			errs = append(errs, fmt.Errorf("WORKBENCH_CHALLENGE_CACHE: unknown backend %q", c.ChallengeCache))
		}
		if _, err := c.Accounts(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.EnableOIDCBearer {
		if c.OIDCIssuer == "" {
			errs = append(errs, errors.New("WORKBENCH_OIDC_ISSUER is required when OIDC bearer tokens are enabled"))
		}
		if c.OIDCAudience == "" {
			errs = append(errs, errors.New("WORKBENCH_OIDC_AUDIENCE is required when OIDC bearer tokens are enabled"))
		}
	}

	if c.EnableSessions && c.SessionKeySeed == "" {
		errs = append(errs, errors.New("WORKBENCH_SESSION_KEY_SEED is required when sessions are enabled"))
	}

	if c.AuthnRateLimitRPS < 0 || (c.AuthnRateLimitRPS > 0 && c.AuthnRateLimitBurst < 1) {
		errs = append(errs, errors.New("authn rate limit: rps must be >= 0 and burst >= 1 when enabled"))
	}

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Accounts converts the configured service accounts to registry entries.
func (c *Config) Accounts() ([]serviceauth.Account, error) {
	out := make([]serviceauth.Account, 0, len(c.ServiceAccounts))
	var errs []error
	for _, sa := range c.ServiceAccounts {
		roles, err := auth.ParseRoles(sa.Roles)
		if err != nil {
			errs = append(errs, fmt.Errorf("service account %q: %w", sa.Name, err))
			continue
		}
		out = append(out, serviceauth.Account{Name: sa.Name, Secret: []byte(sa.Secret), Roles: roles})
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	// NewRegistry enforces name and secret invariants.
	if _, err := serviceauth.NewRegistry(out...); err != nil {
		return nil, fmt.Errorf("service accounts: %w", err)
	}
	return out, nil
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("WORKBENCH_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
