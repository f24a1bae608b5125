// Package session tracks the server-side record behind every issued token.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/mssola/useragent"

	"painchain/internal/identity/models"
	"painchain/internal/platform/metrics"
	"painchain/internal/sentinel"
	"painchain/pkg/clock"
	id "painchain/pkg/domain"
	dErrors "painchain/pkg/domain-errors"
)

// Store is the persistence the ledger needs. Memory, Postgres, and Redis
// implementations live in internal/identity/store/session.
type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error)
	TouchActivity(ctx context.Context, sessionID id.SessionID, now time.Time) error
	Revoke(ctx context.Context, sessionID id.SessionID, now time.Time) error
	RevokeAllByUser(ctx context.Context, userID id.UserID, now time.Time) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Ledger is the authority on whether a session (and therefore its token) is
// still live. Tokens carry the session ID as jti; every authenticated request
// consults the ledger so revocation takes effect immediately.
type Ledger struct {
	store   Store
	ttl     time.Duration
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type LedgerOption func(*Ledger)

func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) LedgerOption {
	return func(l *Ledger) { l.metrics = m }
}

func WithClock(c clock.Clock) LedgerOption {
	return func(l *Ledger) { l.clock = c }
}

func NewLedger(store Store, ttl time.Duration, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store: store,
		ttl:   ttl,
		clock: clock.System{},
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Create opens a new session for the user. The session lifetime matches the
// token lifetime so the two expire together.
func (l *Ledger) Create(ctx context.Context, userID id.UserID, meta models.SessionMetadata) (*models.Session, error) {
	now := l.clock.Now()
	session := &models.Session{
		ID:          id.NewSessionID(),
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(l.ttl),
		LastSeenAt:  now,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
		DisplayName: deviceName(meta.UserAgent),
	}
	if err := l.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create session")
	}
	if l.metrics != nil {
		l.metrics.ActiveSessions.Inc()
	}
	l.logger.InfoContext(ctx, "session created",
		"session_id", session.ID.String(),
		"user_id", userID.String(),
		"device", session.DisplayName,
	)
	return session, nil
}

// Validate confirms the session is live and touches its activity timestamp.
// A missing row and an expired row both come back as TokenExpired-class
// failures; only an explicit revocation reports SessionRevoked.
func (l *Ledger) Validate(ctx context.Context, sessionID id.SessionID) error {
	session, err := l.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeTokenInvalid, "session does not exist")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	if session.IsRevoked() {
		return dErrors.New(dErrors.CodeSessionRevoked, "session has been revoked")
	}
	now := l.clock.Now()
	if !now.Before(session.ExpiresAt) {
		return dErrors.New(dErrors.CodeTokenExpired, "session has expired")
	}
	if err := l.store.TouchActivity(ctx, sessionID, now); err != nil {
		// Activity tracking is best effort; the session itself checked out.
		l.logger.WarnContext(ctx, "session activity update failed",
			"session_id", sessionID.String(),
			"error", err,
		)
	}
	return nil
}

// Revoke closes one session. Idempotent: revoking an absent or already
// revoked session succeeds without effect.
func (l *Ledger) Revoke(ctx context.Context, sessionID id.SessionID) error {
	if err := l.store.Revoke(ctx, sessionID, l.clock.Now()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "revoke session")
	}
	if l.metrics != nil {
		l.metrics.SessionsRevoked.Inc()
		l.metrics.ActiveSessions.Dec()
	}
	l.logger.InfoContext(ctx, "session revoked", "session_id", sessionID.String())
	return nil
}

// RevokeAll closes every live session of the user and reports how many.
func (l *Ledger) RevokeAll(ctx context.Context, userID id.UserID) (int, error) {
	revoked, err := l.store.RevokeAllByUser(ctx, userID, l.clock.Now())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "revoke sessions")
	}
	if l.metrics != nil {
		l.metrics.SessionsRevoked.Add(float64(revoked))
		l.metrics.ActiveSessions.Sub(float64(revoked))
	}
	l.logger.InfoContext(ctx, "all sessions revoked",
		"user_id", userID.String(),
		"count", revoked,
	)
	return revoked, nil
}

// ListByUser returns every session record of the user, live or not, newest
// first, for the account's session management view.
func (l *Ledger) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	sessions, err := l.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list sessions")
	}
	sortSessionsNewestFirst(sessions)
	return sessions, nil
}

// Find returns one session by ID.
func (l *Ledger) Find(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	session, err := l.store.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "session not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load session")
	}
	return session, nil
}

// DeleteExpired drops sessions past their expiry. Called from the cleanup
// loop in cmd/server.
func (l *Ledger) DeleteExpired(ctx context.Context) (int, error) {
	deleted, err := l.store.DeleteExpired(ctx, l.clock.Now())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "delete expired sessions")
	}
	if deleted > 0 {
		l.logger.InfoContext(ctx, "expired sessions deleted", "count", deleted)
	}
	return deleted, nil
}

func sortSessionsNewestFirst(sessions []*models.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
}

// deviceName derives a human-readable label from the User-Agent header.
func deviceName(rawUA string) string {
	if rawUA == "" {
		return "Unknown device"
	}
	ua := useragent.New(rawUA)
	browser, _ := ua.Browser()
	osInfo := ua.OSInfo().Name
	switch {
	case browser != "" && osInfo != "":
		return browser + " on " + osInfo
	case browser != "":
		return browser
	case osInfo != "":
		return osInfo
	default:
		return "Unknown device"
	}
}
