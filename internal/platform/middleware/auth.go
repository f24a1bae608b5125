package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// TokenParser validates a signed bearer token and returns its identity claims.
type TokenParser interface {
	Parse(tokenString string) (*Identity, error)
}

// SessionChecker confirms the session behind a token is still live.
// Returns a domain error with CodeSessionRevoked or CodeTokenExpired when it
// is not; a nil error marks the session active and touches its activity time.
type SessionChecker interface {
	Validate(ctx context.Context, sessionID id.SessionID) error
}

// Identity is the authenticated caller extracted from a bearer token.
type Identity struct {
	UserID    id.UserID
	TenantID  id.TenantID
	SessionID id.SessionID
	Email     string
	Role      id.Role
}

type identityKey struct{}

// GetIdentity retrieves the authenticated identity from the context.
func GetIdentity(ctx context.Context) (*Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(*Identity)
	return ident, ok
}

// WithIdentity stores an identity in the context. Exported for handler tests.
func WithIdentity(ctx context.Context, ident *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

const bearerPrefix = "Bearer "

// RequireAuth validates the Authorization header and the backing session.
// A revoked session surfaces as a generic unauthorized to the caller; the
// precise reason is logged for operators only.
func RequireAuth(parser TokenParser, sessions SessionChecker, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			ident, err := parser.Parse(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			if err := sessions.Validate(ctx, ident.SessionID); err != nil {
				logger.WarnContext(ctx, "unauthorized access - session not valid",
					"reason", string(dErrors.CodeOf(err)),
					"session_id", ident.SessionID.String(),
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, ident)))
		})
	}
}

// TenantGuard rejects any request whose declared tenant does not match the
// authenticated identity's tenant. The X-Tenant-Id header is optional; when
// absent the identity's own tenant is implied.
func TenantGuard(logger *slog.Logger, onReject func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			declared := r.Header.Get("X-Tenant-Id")
			if declared == "" {
				next.ServeHTTP(w, r)
				return
			}

			ident, ok := GetIdentity(ctx)
			if !ok {
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			declaredID, err := id.ParseTenantID(declared)
			if err != nil || declaredID != ident.TenantID {
				logger.WarnContext(ctx, "tenant guard rejection",
					"declared_tenant", declared,
					"user_tenant", ident.TenantID.String(),
					"user_id", ident.UserID.String(),
					"request_id", GetRequestID(ctx),
				)
				if onReject != nil {
					onReject()
				}
				writeForbidden(w, "Tenant mismatch")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a route to identities holding one of the given roles.
func RequireRole(logger *slog.Logger, roles ...id.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ident, ok := GetIdentity(ctx)
			if !ok {
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}
			for _, role := range roles {
				if ident.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			logger.WarnContext(ctx, "forbidden - insufficient role",
				"role", ident.Role.String(),
				"user_id", ident.UserID.String(),
				"request_id", GetRequestID(ctx),
			)
			writeForbidden(w, "Insufficient role")
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

func writeForbidden(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"` + description + `"}`))
}
