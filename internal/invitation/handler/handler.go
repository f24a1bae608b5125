// Package handler exposes the invitation HTTP surface.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	invmodels "painchain/internal/invitation/models"
	"painchain/internal/invitation/service"
	"painchain/internal/platform/middleware"
	jsonResponse "painchain/internal/transport/http/json"
	"painchain/internal/transport/http/shared"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Service is the invitation surface the handler needs.
type Service interface {
	Create(ctx context.Context, p service.CreateParams) (*invmodels.Invitation, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*invmodels.Invitation, error)
	Revoke(ctx context.Context, token string, caller service.Caller) error
	PublicLookup(ctx context.Context, token string) (*invmodels.PublicView, error)
}

type Handler struct {
	invitations Service
	logger      *slog.Logger
}

func New(invitations Service, logger *slog.Logger) *Handler {
	return &Handler{invitations: invitations, logger: logger}
}

// Register wires the public lookup route.
func (h *Handler) Register(r chi.Router) {
	r.Get("/invitations/{token}", h.HandlePublicLookup)
}

// RegisterProtected wires the management routes behind RequireAuth.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Post("/invitations", h.HandleCreate)
	r.Get("/invitations", h.HandleList)
	r.Delete("/invitations/{token}", h.HandleRevoke)
}

// HandleCreate implements POST /invitations. The service enforces that only
// owners and admins may invite.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "Invalid JSON in request body"))
		return
	}

	role := id.Role(req.Role)
	if req.Role != "" {
		parsed, err := id.ParseRole(req.Role)
		if err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "unknown role"))
			return
		}
		role = parsed
	}

	var expiresIn time.Duration
	if req.ExpiresInHours > 0 {
		expiresIn = time.Duration(req.ExpiresInHours) * time.Hour
	}

	inv, err := h.invitations.Create(ctx, service.CreateParams{
		CreatorID:   ident.UserID,
		CreatorRole: ident.Role,
		TenantID:    ident.TenantID,
		Role:        role,
		MaxUses:     req.MaxUses,
		ExpiresIn:   expiresIn,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusCreated, newInvitationView(inv))
}

// HandleList implements GET /invitations for the caller's tenant.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	invs, err := h.invitations.ListByTenant(ctx, ident.TenantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	views := make([]invitationView, 0, len(invs))
	for _, inv := range invs {
		views = append(views, newInvitationView(inv))
	}
	jsonResponse.WriteJSON(w, http.StatusOK, map[string]any{"invitations": views})
}

// HandleRevoke implements DELETE /invitations/{token}.
func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ident, ok := middleware.GetIdentity(ctx)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	err := h.invitations.Revoke(ctx, chi.URLParam(r, "token"), service.Caller{
		UserID:   ident.UserID,
		TenantID: ident.TenantID,
		Role:     ident.Role,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// HandlePublicLookup implements GET /invitations/{token} for the
// unauthenticated join page. Only safe fields leave the server.
func (h *Handler) HandlePublicLookup(w http.ResponseWriter, r *http.Request) {
	view, err := h.invitations.PublicLookup(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	jsonResponse.WriteJSON(w, http.StatusOK, view)
}

type createRequest struct {
	Role           string `json:"role"`
	MaxUses        int    `json:"max_uses"`
	ExpiresInHours int    `json:"expires_in_hours"`
}

type invitationView struct {
	Token     string     `json:"token"`
	Role      string     `json:"role"`
	MaxUses   int        `json:"max_uses"`
	UseCount  int        `json:"use_count"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func newInvitationView(inv *invmodels.Invitation) invitationView {
	return invitationView{
		Token:     inv.Token,
		Role:      inv.Role.String(),
		MaxUses:   inv.MaxUses,
		UseCount:  inv.UseCount,
		ExpiresAt: inv.ExpiresAt,
		RevokedAt: inv.RevokedAt,
		CreatedAt: inv.CreatedAt,
	}
}
