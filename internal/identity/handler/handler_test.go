package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"painchain/internal/federation"
	"painchain/internal/identity/service"
)

// methodsStub serves only AuthMethods; the embedded interface panics if any
// other operation is reached.
type methodsStub struct {
	Service
	methods service.Methods
}

func (s methodsStub) AuthMethods() service.Methods { return s.methods }

func TestHandleMethodsProviderShape(t *testing.T) {
	stub := methodsStub{methods: service.Methods{
		BasicAuthEnabled:    true,
		RegistrationAllowed: false,
		Providers: []*federation.Provider{
			{ID: "corp-idp", Name: "Corp IdP", IconURL: "https://idp.example/icon.svg", Order: 1},
			{ID: "backup-idp", Name: "Backup IdP", Order: 2},
		},
	}}
	h := New(stub, slog.New(slog.NewTextHandler(io.Discard, nil)), "http://front.example")

	r := chi.NewRouter()
	h.Register(r)
	req := httptest.NewRequest(http.MethodGet, "/auth/methods", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		BasicAuthEnabled    bool             `json:"basic_auth_enabled"`
		RegistrationAllowed bool             `json:"registration_allowed"`
		Providers           []map[string]any `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	assert.True(t, body.BasicAuthEnabled)
	assert.False(t, body.RegistrationAllowed)
	require.Len(t, body.Providers, 2)

	first := body.Providers[0]
	assert.Equal(t, "corp-idp", first["id"])
	assert.Equal(t, "Corp IdP", first["name"])
	assert.Equal(t, "https://idp.example/icon.svg", first["icon_url"])
	assert.Equal(t, float64(1), first["order"])

	second := body.Providers[1]
	assert.Equal(t, float64(2), second["order"])
	// No icon configured, so the field is omitted rather than sent empty.
	_, hasIcon := second["icon_url"]
	assert.False(t, hasIcon)
}
