package ports

import (
	"context"
	"fetchguard/internal/types"
)

// SessionStore persists sessions outside the process, for callers that want a login to survive a restart.
type SessionStore interface {
	// LoadSession MUST return types.ErrNotFound if there is no session for userID.
	LoadSession(ctx context.Context, userID string) (types.SessionRecord, error)

	SaveSession(ctx context.Context, rec types.SessionRecord) error

	DeleteSession(ctx context.Context, userID string) error
}
