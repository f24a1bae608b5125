package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures process-wide configuration. Loaded once at startup and
// passed explicitly into the components that need it; nothing reads ambient
// environment state at call time.
type Server struct {
	Addr        string
	DatabaseURL string
	RedisAddr   string
	FrontendURL string

	// SigningSecret signs bearer tokens and derives the transit-state
	// encryption key for federated logins.
	SigningSecret string

	TokenTTL        time.Duration
	TransitStateTTL time.Duration
	InvitationTTL   time.Duration

	BasicAuthEnabled    bool
	RegistrationAllowed bool

	// ProvidersFile points at the YAML file describing federated identity
	// providers. Empty means federated login is disabled.
	ProvidersFile string

	// ProviderHTTPTimeout bounds outbound calls to provider token and
	// userinfo endpoints. There is no internal retry; the browser redirect
	// flow has no natural retry point.
	ProviderHTTPTimeout time.Duration

	SessionCleanupInterval time.Duration

	// Seed* provision a first owner tenant and account on boot when all
	// three are set. Idempotent; existing emails are left alone.
	SeedOwnerEmail    string
	SeedOwnerPassword string
	SeedOwnerOrg      string
}

const (
	defaultTokenTTL        = 7 * 24 * time.Hour
	defaultTransitStateTTL = 10 * time.Minute
	defaultInvitationTTL   = 7 * 24 * time.Hour
	defaultProviderTimeout = 10 * time.Second
	defaultCleanupInterval = time.Hour
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:                   envOr("AUTH_ADDR", ":8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		RedisAddr:              os.Getenv("REDIS_ADDR"),
		FrontendURL:            envOr("FRONTEND_URL", "http://localhost:3000"),
		SigningSecret:          envOr("AUTH_SIGNING_SECRET", "dev-secret-key-change-in-production"),
		TokenTTL:               envDuration("TOKEN_TTL", defaultTokenTTL),
		TransitStateTTL:        envDuration("TRANSIT_STATE_TTL", defaultTransitStateTTL),
		InvitationTTL:          envDuration("INVITATION_TTL", defaultInvitationTTL),
		BasicAuthEnabled:       envBool("BASIC_AUTH_ENABLED", true),
		RegistrationAllowed:    envBool("REGISTRATION_ALLOWED", true),
		ProvidersFile:          os.Getenv("AUTH_PROVIDERS_FILE"),
		ProviderHTTPTimeout:    envDuration("PROVIDER_HTTP_TIMEOUT", defaultProviderTimeout),
		SessionCleanupInterval: envDuration("SESSION_CLEANUP_INTERVAL", defaultCleanupInterval),
		SeedOwnerEmail:         os.Getenv("SEED_OWNER_EMAIL"),
		SeedOwnerPassword:      os.Getenv("SEED_OWNER_PASSWORD"),
		SeedOwnerOrg:           os.Getenv("SEED_OWNER_ORG"),
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
