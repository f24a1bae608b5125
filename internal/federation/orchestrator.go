package federation

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"painchain/internal/platform/metrics"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Identity is the outcome of a completed federated login attempt: a typed
// view of the provider's claims, ready for tenant resolution. The raw claim
// bag rides along for the account link record only.
type Identity struct {
	Provider    *Provider
	Subject     string
	Email       string
	DisplayName string

	// TenantDomain is the domain to auto-join by: the provider's tenant
	// claim when configured, otherwise the email domain.
	TenantDomain string

	Claims ClaimBag
}

// Orchestrator drives the external-IdP authorization-code exchange:
// authorization URL construction, transit-state round trip, code exchange,
// and claims fetch.
type Orchestrator struct {
	registry *Registry
	codec    *TransitCodec
	client   *Client
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type OrchestratorOption func(*Orchestrator)

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func NewOrchestrator(registry *Registry, codec *TransitCodec, client *Client, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		codec:    codec,
		client:   client,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Providers lists the enabled providers for the login page.
func (o *Orchestrator) Providers() []*Provider {
	return o.registry.Enabled()
}

// AuthorizationURL builds the provider redirect target with a fresh
// encrypted transit state embedded.
func (o *Orchestrator) AuthorizationURL(providerID id.ProviderID, redirectURI string) (string, error) {
	provider, ok := o.registry.Find(providerID)
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "unknown or disabled provider")
	}

	state, err := o.codec.NewState(provider.ID)
	if err != nil {
		return "", err
	}
	encState, err := o.codec.Encrypt(state)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(provider.AuthorizationEndpoint)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "provider authorization endpoint invalid")
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", provider.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(provider.Scopes, " "))
	q.Set("state", encState)
	u.RawQuery = q.Encode()

	o.logger.Info("federated login initiated",
		"provider_id", provider.ID.String(),
		"state_nonce", state.Nonce,
	)
	return u.String(), nil
}

// HandleCallback completes the login attempt: decrypts and checks the transit
// state, exchanges the code, fetches claims, and derives the tenant domain.
func (o *Orchestrator) HandleCallback(ctx context.Context, code, encState, redirectURI string) (*Identity, error) {
	state, err := o.codec.Decrypt(encState)
	if err != nil {
		return nil, err
	}
	provider, ok := o.registry.Find(state.ProviderID)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidState, "state references an unknown provider")
	}

	start := time.Now()
	accessToken, err := o.client.ExchangeCode(ctx, provider, code, redirectURI)
	if err != nil {
		o.logger.WarnContext(ctx, "federated code exchange failed",
			"provider_id", provider.ID.String(),
			"error", err,
		)
		return nil, err
	}

	claims, err := o.client.FetchUserinfo(ctx, provider, accessToken)
	if err != nil {
		o.logger.WarnContext(ctx, "federated userinfo fetch failed",
			"provider_id", provider.ID.String(),
			"error", err,
		)
		return nil, err
	}
	if o.metrics != nil {
		o.metrics.FederatedExchange.Observe(time.Since(start).Seconds())
	}

	subject, err := claims.Subject()
	if err != nil {
		return nil, err
	}
	email := claims.Email()

	ident := &Identity{
		Provider:    provider,
		Subject:     subject,
		Email:       email,
		DisplayName: claims.DisplayName(),
		Claims:      claims,
	}

	if provider.TenantClaimPath != "" {
		domain, err := claims.StringClaim(provider.TenantClaimPath)
		if err != nil {
			return nil, err
		}
		ident.TenantDomain = strings.ToLower(domain)
	} else if at := strings.LastIndex(email, "@"); at >= 0 && at < len(email)-1 {
		ident.TenantDomain = email[at+1:]
	}

	o.logger.InfoContext(ctx, "federated claims resolved",
		"provider_id", provider.ID.String(),
		"state_nonce", state.Nonce,
	)
	return ident, nil
}
