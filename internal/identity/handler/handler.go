// Package handler exposes the authentication HTTP surface. It decodes
// requests, delegates to the identity service, and shapes responses; no
// business rules live here.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"painchain/internal/identity/models"
	"painchain/internal/identity/service"
	"painchain/internal/platform/middleware"
	tenantmodels "painchain/internal/tenant/models"
	jsonResponse "painchain/internal/transport/http/json"
	"painchain/internal/transport/http/shared"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Service is the identity orchestration surface the handler needs.
type Service interface {
	Login(ctx context.Context, email, password string, meta models.SessionMetadata) (*service.AuthResult, error)
	Register(ctx context.Context, p service.RegisterParams) (*service.AuthResult, error)
	FederatedBegin(providerID id.ProviderID, redirectURI string) (string, error)
	FederatedCallback(ctx context.Context, code, state, redirectURI string, meta models.SessionMetadata) (*service.AuthResult, error)
	Logout(ctx context.Context, sessionID id.SessionID) error
	LogoutAll(ctx context.Context, userID id.UserID) (int, error)
	Me(ctx context.Context, userID id.UserID) (*service.Profile, error)
	ListSessions(ctx context.Context, userID id.UserID) ([]*models.Session, error)
	RevokeSession(ctx context.Context, callerID id.UserID, sessionID id.SessionID) error
	AuthMethods() service.Methods
}

type Handler struct {
	identity    Service
	logger      *slog.Logger
	frontendURL string
}

func New(identity Service, logger *slog.Logger, frontendURL string) *Handler {
	return &Handler{
		identity:    identity,
		logger:      logger,
		frontendURL: strings.TrimRight(frontendURL, "/"),
	}
}

// Register wires the public auth routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/auth/methods", h.HandleMethods)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/register", h.HandleRegister)
	r.Get("/auth/federated/{provider}", h.HandleFederatedBegin)
	r.Get("/auth/federated/callback", h.HandleFederatedCallback)
}

// RegisterProtected wires the routes behind RequireAuth.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/logout-all", h.HandleLogoutAll)
	r.Get("/auth/sessions", h.HandleListSessions)
	r.Delete("/auth/sessions/{session_id}", h.HandleRevokeSession)
}

// HandleMethods implements GET /auth/methods: what the login page renders.
func (h *Handler) HandleMethods(w http.ResponseWriter, r *http.Request) {
	m := h.identity.AuthMethods()
	providers := make([]providerView, 0, len(m.Providers))
	for _, p := range m.Providers {
		providers = append(providers, providerView{
			ID:      p.ID.String(),
			Name:    p.Name,
			IconURL: p.IconURL,
			Order:   p.Order,
		})
	}
	jsonResponse.WriteJSON(w, http.StatusOK, methodsResponse{
		BasicAuthEnabled:    m.BasicAuthEnabled,
		RegistrationAllowed: m.RegistrationAllowed,
		Providers:           providers,
	})
}

// HandleLogin implements POST /auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return
	}

	result, err := h.identity.Login(ctx, req.Email, req.Password, clientMeta(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, newAuthResponse(result))
}

// HandleRegister implements POST /auth/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return
	}

	result, err := h.identity.Register(ctx, service.RegisterParams{
		Email:            req.Email,
		Password:         req.Password,
		DisplayName:      req.DisplayName,
		InvitationToken:  req.InvitationToken,
		OrganizationName: req.OrganizationName,
		Meta:             clientMeta(r),
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusCreated, newAuthResponse(result))
}

// HandleFederatedBegin implements GET /auth/federated/{provider}: a 302 to
// the provider's authorization endpoint.
func (h *Handler) HandleFederatedBegin(w http.ResponseWriter, r *http.Request) {
	providerID := id.ProviderID(chi.URLParam(r, "provider"))
	target, err := h.identity.FederatedBegin(providerID, callbackURI(r))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleFederatedCallback implements GET /auth/federated/callback. The
// browser arrives here from the provider; success and failure both end in a
// redirect to the front-end, which owns rendering.
func (h *Handler) HandleFederatedCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	result, err := h.identity.FederatedCallback(ctx, q.Get("code"), q.Get("state"), callbackURI(r), clientMeta(r))
	if err != nil {
		h.logger.WarnContext(ctx, "federated callback failed",
			"error", err,
			"request_id", middleware.GetRequestID(ctx),
		)
		h.redirectFrontend(w, r, url.Values{"error": {string(dErrors.CodeOf(err))}})
		return
	}
	h.redirectFrontend(w, r, url.Values{"token": {result.Token}})
}

// HandleMe implements GET /auth/me.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	profile, err := h.identity.Me(ctx, ident.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, meResponse{
		User:   newUserView(profile.User),
		Tenant: newTenantView(profile.Tenant),
	})
}

// HandleLogout implements POST /auth/logout: revokes the presenting session.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	if err := h.identity.Logout(ctx, ident.SessionID); err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// HandleLogoutAll implements POST /auth/logout-all.
func (h *Handler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	revoked, err := h.identity.LogoutAll(ctx, ident.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "logged_out",
		"sessions_revoked": revoked,
	})
}

// HandleListSessions implements GET /auth/sessions.
func (h *Handler) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	sessions, err := h.identity.ListSessions(ctx, ident.UserID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	views := make([]sessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, newSessionView(sess, sess.ID == ident.SessionID))
	}
	jsonResponse.WriteJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

// HandleRevokeSession implements DELETE /auth/sessions/{session_id}.
func (h *Handler) HandleRevokeSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	sessionID, err := id.ParseSessionID(chi.URLParam(r, "session_id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid session id"))
		return
	}
	if err := h.identity.RevokeSession(ctx, ident.UserID, sessionID); err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) redirectFrontend(w http.ResponseWriter, r *http.Request, params url.Values) {
	http.Redirect(w, r, h.frontendURL+"/auth/callback?"+params.Encode(), http.StatusFound)
}

// callbackURI reconstructs this deployment's federated callback address from
// the incoming request so provider redirects land back on the same host.
func callbackURI(r *http.Request) string {
	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host + "/api/auth/federated/callback"
}

// clientMeta captures the client context recorded on the session.
func clientMeta(r *http.Request) models.SessionMetadata {
	ip := r.Header.Get("X-Forwarded-For")
	if idx := strings.Index(ip, ","); idx >= 0 {
		ip = ip[:idx]
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			ip = host
		} else {
			ip = r.RemoteAddr
		}
	}
	return models.SessionMetadata{
		IP:        ip,
		UserAgent: r.UserAgent(),
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	DisplayName      string `json:"display_name"`
	InvitationToken  string `json:"invitation_token"`
	OrganizationName string `json:"organization_name"`
}

type methodsResponse struct {
	BasicAuthEnabled    bool           `json:"basic_auth_enabled"`
	RegistrationAllowed bool           `json:"registration_allowed"`
	Providers           []providerView `json:"providers"`
}

type providerView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
	Order   int    `json:"order"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

func newAuthResponse(result *service.AuthResult) authResponse {
	return authResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
		User:      newUserView(result.User),
	}
}

type userView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	TenantID    string     `json:"tenant_id"`
	Role        string     `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:          u.ID.String(),
		Email:       u.Email,
		DisplayName: u.DisplayName,
		TenantID:    u.TenantID.String(),
		Role:        u.Role.String(),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

type meResponse struct {
	User   userView   `json:"user"`
	Tenant tenantView `json:"tenant"`
}

type tenantView struct {
	ID      string   `json:"id"`
	Slug    string   `json:"slug"`
	Name    string   `json:"name"`
	Domains []string `json:"domains,omitempty"`
}

func newTenantView(t *tenantmodels.Tenant) tenantView {
	return tenantView{
		ID:      t.ID.String(),
		Slug:    t.Slug,
		Name:    t.Name,
		Domains: t.Domains,
	}
}

type sessionView struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	IP          string     `json:"ip,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastSeenAt  time.Time  `json:"last_seen_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
	Current     bool       `json:"current"`
}

func newSessionView(s *models.Session, current bool) sessionView {
	return sessionView{
		ID:          s.ID.String(),
		DisplayName: s.DisplayName,
		IP:          s.IP,
		CreatedAt:   s.CreatedAt,
		LastSeenAt:  s.LastSeenAt,
		ExpiresAt:   s.ExpiresAt,
		RevokedAt:   s.RevokedAt,
		Current:     current,
	}
}
