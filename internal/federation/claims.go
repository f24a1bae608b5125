package federation

import (
	"fmt"
	"strings"

	dErrors "painchain/pkg/domain-errors"
)

// ClaimBag is the open key-value payload returned by a provider's userinfo
// endpoint. It stays at this boundary: downstream logic only ever sees
// explicitly extracted, typed values.
type ClaimBag map[string]any

// StringClaim extracts a string at a dotted path ("org.domain"). Returns a
// TenantClaimMissing error when the path is absent or not a string.
func (b ClaimBag) StringClaim(path string) (string, error) {
	var current any = map[string]any(b)
	for _, key := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return "", dErrors.New(dErrors.CodeTenantClaimMissing,
				fmt.Sprintf("claim path %q not found in provider response", path))
		}
		current, ok = node[key]
		if !ok {
			return "", dErrors.New(dErrors.CodeTenantClaimMissing,
				fmt.Sprintf("claim path %q not found in provider response", path))
		}
	}
	value, ok := current.(string)
	if !ok || value == "" {
		return "", dErrors.New(dErrors.CodeTenantClaimMissing,
			fmt.Sprintf("claim path %q is not a string", path))
	}
	return value, nil
}

// Subject returns the provider's stable subject identifier.
func (b ClaimBag) Subject() (string, error) {
	sub, ok := b["sub"].(string)
	if !ok || sub == "" {
		return "", dErrors.New(dErrors.CodeUserinfoFetchFailed, "provider response has no subject")
	}
	return sub, nil
}

// Email returns the email claim, if present.
func (b ClaimBag) Email() string {
	email, _ := b["email"].(string)
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayName returns the best available human-readable name.
func (b ClaimBag) DisplayName() string {
	for _, key := range []string{"name", "preferred_username", "nickname"} {
		if v, ok := b[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
