package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	dErrors "painchain/pkg/domain-errors"
)

// Client performs the outbound provider calls of the authorization-code
// exchange. Both calls carry explicit timeouts and are never retried: the
// browser redirect flow has no natural retry point.
type Client struct {
	http *http.Client
}

func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// tokenResponse is the subset of the provider token response we consume.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// ExchangeCode trades an authorization code for an access token at the
// provider's token endpoint using the configured client credentials.
func (c *Client) ExchangeCode(ctx context.Context, provider *Provider, code, redirectURI string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", provider.ClientID)
	form.Set("client_secret", provider.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, provider.TokenEndpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not build token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTokenExchangeFailed, "token endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", dErrors.New(dErrors.CodeTokenExchangeFailed,
			fmt.Sprintf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeTokenExchangeFailed, "token response malformed")
	}
	if tr.AccessToken == "" {
		return "", dErrors.New(dErrors.CodeTokenExchangeFailed, "token response has no access token")
	}
	return tr.AccessToken, nil
}

// FetchUserinfo retrieves the subject claims with the freshly exchanged
// access token.
func (c *Client) FetchUserinfo(ctx context.Context, provider *Provider, accessToken string) (ClaimBag, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.UserinfoEndpoint, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "could not build userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUserinfoFetchFailed, "userinfo endpoint unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.New(dErrors.CodeUserinfoFetchFailed,
			fmt.Sprintf("userinfo endpoint returned %d", resp.StatusCode))
	}

	var claims ClaimBag
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUserinfoFetchFailed, "userinfo response malformed")
	}
	return claims, nil
}
