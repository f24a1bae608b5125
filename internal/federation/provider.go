package federation

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	id "painchain/pkg/domain"
)

// Provider is the read-only configuration of one external identity provider.
// Configured at startup; never mutated during a login flow.
type Provider struct {
	ID           id.ProviderID `yaml:"id"`
	Name         string        `yaml:"name"`
	IconURL      string        `yaml:"icon_url"`
	Issuer       string        `yaml:"issuer"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`

	AuthorizationEndpoint string `yaml:"authorization_endpoint"`
	TokenEndpoint         string `yaml:"token_endpoint"`
	UserinfoEndpoint      string `yaml:"userinfo_endpoint"`

	Scopes []string `yaml:"scopes"`

	// TenantClaimPath is a dotted lookup path into the userinfo response
	// used to derive the tenant domain. Empty means the email domain is used.
	TenantClaimPath string `yaml:"tenant_claim_path"`

	Enabled bool `yaml:"enabled"`
	Order   int  `yaml:"order"`
}

// Registry holds the configured providers, keyed by ID. Disabled providers
// stay configured but are invisible to login.
type Registry struct {
	providers map[id.ProviderID]*Provider
}

func NewRegistry(providers []*Provider) (*Registry, error) {
	byID := make(map[id.ProviderID]*Provider, len(providers))
	for _, p := range providers {
		if p.ID.IsNil() {
			return nil, fmt.Errorf("provider with empty id")
		}
		if _, ok := byID[p.ID]; ok {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		byID[p.ID] = p
	}
	return &Registry{providers: byID}, nil
}

// LoadRegistry reads provider configuration from a YAML file. An empty path
// yields an empty registry: federated login disabled.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return NewRegistry(nil)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}
	var doc struct {
		Providers []*Provider `yaml:"providers"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse providers file: %w", err)
	}
	return NewRegistry(doc.Providers)
}

// Find returns an enabled provider by ID.
func (r *Registry) Find(providerID id.ProviderID) (*Provider, bool) {
	p, ok := r.providers[providerID]
	if !ok || !p.Enabled {
		return nil, false
	}
	return p, true
}

// Enabled lists enabled providers in display order.
func (r *Registry) Enabled() []*Provider {
	out := make([]*Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Enabled {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ID < out[j].ID
	})
	return out
}
