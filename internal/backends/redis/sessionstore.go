package redis

import (
	"context"
	"errors"
	"fetchguard/internal/types"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyNameTemplate = "_fg_session_%s"
)

// SessionStore keeps one JSON value per user, expiring with the token.
type SessionStore struct {
	cli *redis.Client
	now func() time.Time
}

func NewSessionStore(cli *redis.Client) *SessionStore {
	return &SessionStore{cli: cli, now: time.Now}
}

func (s *SessionStore) LoadSession(ctx context.Context, userID string) (types.SessionRecord, error) {
	out := s.cli.Get(ctx, getSessionKey(userID))
	if out.Err() != nil {
		if errors.Is(out.Err(), redis.Nil) {
			return types.SessionRecord{}, types.ErrNotFound
		}
		return types.SessionRecord{}, types.Err(types.ErrDataStoreAccess, out.Err(), "load session %s", userID)
	}
	var rec types.SessionRecord
	if err := json.Unmarshal([]byte(out.Val()), &rec); err != nil {
		return types.SessionRecord{}, types.Err(types.ErrEncode, err, "session %s", userID)
	}
	return rec, nil
}

func (s *SessionStore) SaveSession(ctx context.Context, rec types.SessionRecord) error {
	if rec.UserID == "" {
		return types.Err(types.ErrInvalidParam, nil, "session without user id")
	}
	out, err := json.Marshal(rec)
	if err != nil {
		return types.Err(types.ErrEncode, err, "session %s", rec.UserID)
	}
	// 0 keeps the key forever; a token that already expired gets a one second grace instead.
	var ttl time.Duration
	if rec.TokenExpiry > 0 {
		ttl = max(time.Unix(rec.TokenExpiry, 0).Sub(s.now()), time.Second)
	}
	if err := s.cli.Set(ctx, getSessionKey(rec.UserID), string(out), ttl).Err(); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "save session %s", rec.UserID)
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, userID string) error {
	if err := s.cli.Del(ctx, getSessionKey(userID)).Err(); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "delete session %s", userID)
	}
	return nil
}

func getSessionKey(userID string) string {
	return fmt.Sprintf(sessionKeyNameTemplate, userID)
}
