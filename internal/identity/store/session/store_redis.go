package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"painchain/internal/identity/models"
	"painchain/internal/sentinel"
	id "painchain/pkg/domain"
)

const (
	sessionKeyPrefix     = "session:"
	userSessionKeyPrefix = "user_sessions:"

	// redisTTLSlack keeps revoked/expired rows readable a little past expiry
	// so the ledger can distinguish expired from never-existed in logs.
	redisTTLSlack = time.Hour
)

// sessionJSON is the JSON-serializable representation of a Session.
type sessionJSON struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	CreatedAt   int64  `json:"created_at"`   // Unix nano
	ExpiresAt   int64  `json:"expires_at"`   // Unix nano
	LastSeenAt  int64  `json:"last_seen_at"` // Unix nano
	RevokedAt   *int64 `json:"revoked_at,omitempty"`
	IP          string `json:"ip"`
	UserAgent   string `json:"user_agent"`
	DisplayName string `json:"display_name"`
}

func sessionToJSON(s *models.Session) *sessionJSON {
	j := &sessionJSON{
		ID:          uuid.UUID(s.ID).String(),
		UserID:      uuid.UUID(s.UserID).String(),
		CreatedAt:   s.CreatedAt.UnixNano(),
		ExpiresAt:   s.ExpiresAt.UnixNano(),
		LastSeenAt:  s.LastSeenAt.UnixNano(),
		IP:          s.IP,
		UserAgent:   s.UserAgent,
		DisplayName: s.DisplayName,
	}
	if s.RevokedAt != nil {
		ts := s.RevokedAt.UnixNano()
		j.RevokedAt = &ts
	}
	return j
}

func sessionFromJSON(j *sessionJSON) (*models.Session, error) {
	sessionID, err := uuid.Parse(j.ID)
	if err != nil {
		return nil, fmt.Errorf("parse session id: %w", err)
	}
	userID, err := uuid.Parse(j.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	s := &models.Session{
		ID:          id.SessionID(sessionID),
		UserID:      id.UserID(userID),
		CreatedAt:   time.Unix(0, j.CreatedAt),
		ExpiresAt:   time.Unix(0, j.ExpiresAt),
		LastSeenAt:  time.Unix(0, j.LastSeenAt),
		IP:          j.IP,
		UserAgent:   j.UserAgent,
		DisplayName: j.DisplayName,
	}
	if j.RevokedAt != nil {
		t := time.Unix(0, *j.RevokedAt)
		s.RevokedAt = &t
	}
	return s, nil
}

// RedisStore persists sessions in Redis. Rows carry a TTL slightly past the
// session expiry so expired-session cleanup is mostly delegated to Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func sessionKey(sessionID id.SessionID) string {
	return sessionKeyPrefix + sessionID.String()
}

func userKey(userID id.UserID) string {
	return userSessionKeyPrefix + userID.String()
}

func (s *RedisStore) Create(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt) + redisTTLSlack

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(session.ID), payload, ttl)
	pipe.SAdd(ctx, userKey(session.UserID), session.ID.String())
	pipe.Expire(ctx, userKey(session.UserID), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, sessionID id.SessionID) (*models.Session, error) {
	payload, err := s.client.Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	var j sessionJSON
	if err := json.Unmarshal(payload, &j); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return sessionFromJSON(&j)
}

func (s *RedisStore) ListByUser(ctx context.Context, userID id.UserID) ([]*models.Session, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions by user: %w", err)
	}

	sessions := make([]*models.Session, 0, len(ids))
	for _, raw := range ids {
		sessionID, err := id.ParseSessionID(raw)
		if err != nil {
			continue
		}
		session, err := s.FindByID(ctx, sessionID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				// Row expired out of Redis; drop the dangling index entry.
				s.client.SRem(ctx, userKey(userID), raw)
				continue
			}
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (s *RedisStore) TouchActivity(ctx context.Context, sessionID id.SessionID, now time.Time) error {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	session.RecordActivity(now)
	return s.save(ctx, session)
}

func (s *RedisStore) Revoke(ctx context.Context, sessionID id.SessionID, now time.Time) error {
	session, err := s.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}
	if !session.Revoke(now) {
		return nil
	}
	return s.save(ctx, session)
}

func (s *RedisStore) RevokeAllByUser(ctx context.Context, userID id.UserID, now time.Time) (int, error) {
	sessions, err := s.ListByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	revoked := 0
	for _, session := range sessions {
		if !session.Revoke(now) {
			continue
		}
		if err := s.save(ctx, session); err != nil {
			return revoked, err
		}
		revoked++
	}
	return revoked, nil
}

// DeleteExpired is a no-op counter for Redis: rows expire via TTL. It exists
// so the cleanup loop can run against any ledger store implementation.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func (s *RedisStore) save(ctx context.Context, session *models.Session) error {
	payload, err := json.Marshal(sessionToJSON(session))
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt) + redisTTLSlack
	if ttl <= 0 {
		ttl = redisTTLSlack
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
