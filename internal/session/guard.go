package session

import (
	"context"
	"fetchguard/internal/ports"
	"fetchguard/internal/types"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Status is the outcome of CheckAndExpire.
type Status int

const (
	Valid Status = iota
	ExpiredToken
	TimedOut
	LoggedOut
)

var StatusTextMap = map[Status]string{
	Valid:        "valid",
	ExpiredToken: "expired_token",
	TimedOut:     "timed_out",
	LoggedOut:    "logged_out",
}

func (s Status) String() string { return StatusTextMap[s] }

// Identity is who the session belongs to.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Guard holds one login session: identity, bearer token, token expiry and last activity.
// A session is live while the token is set, not past its expiry, and the user was active within the
// inactivity timeout. Expiry is only detected on CheckAndExpire, which clears the session when it finds
// it dead; there is no background sweep.
type Guard struct {
	mu           sync.Mutex
	id           Identity
	token        string
	tokenExpiry  time.Time
	lastActivity time.Time
	timeout      time.Duration
	now          func() time.Time
}

// NewGuard returns a logged-out guard with the given inactivity timeout.
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = types.DefaultTimeoutMinutes * time.Minute
	}
	return &Guard{timeout: timeout, now: time.Now}
}

// SetNowFn replaces the clock. Used in tests.
func (g *Guard) SetNowFn(f func() time.Time) {
	g.mu.Lock()
	g.now = f
	g.mu.Unlock()
}

// Store logs in: the token expires tokenTTL from now and activity starts now.
func (g *Guard) Store(id Identity, token string, tokenTTL time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.id = id
	g.token = token
	g.tokenExpiry = now.Add(tokenTTL)
	g.lastActivity = now
	log.WithFields(log.Fields{
		"user_id":      id.UserID,
		"role":         id.Role,
		"token_expiry": g.tokenExpiry,
	}).Info("session stored")
}

// RefreshActivity marks the user active now. It is ignored when logged out.
func (g *Guard) RefreshActivity() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" {
		return false
	}
	g.lastActivity = g.now()
	return true
}

// UpdateToken swaps in a refreshed token. It is ignored when logged out.
func (g *Guard) UpdateToken(token string, tokenTTL time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" || token == "" {
		return false
	}
	g.token = token
	g.tokenExpiry = g.now().Add(tokenTTL)
	return true
}

// CheckAndExpire evaluates liveness and, if the session is dead, clears it in the same critical
// section. Concurrent callers observe one clear.
func (g *Guard) CheckAndExpire() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.checkLocked()
}

func (g *Guard) checkLocked() Status {
	if g.token == "" {
		return LoggedOut
	}
	now := g.now()
	st := Valid
	switch {
	case !now.Before(g.tokenExpiry):
		st = ExpiredToken
	case now.Sub(g.lastActivity) >= g.timeout:
		st = TimedOut
	}
	if st != Valid {
		log.WithFields(log.Fields{
			"user_id": g.id.UserID,
			"status":  st.String(),
		}).Info("session expired")
		g.clearLocked()
	}
	return st
}

func (g *Guard) IsLoggedIn() bool {
	return g.CheckAndExpire() == Valid
}

// Err is nil for a live session. Otherwise it wraps ErrNotLoggedIn or ErrSessionExpired.
func (g *Guard) Err() error {
	switch st := g.CheckAndExpire(); st {
	case Valid:
		return nil
	case LoggedOut:
		return types.ErrNotLoggedIn
	default:
		return types.Err(types.ErrSessionExpired, nil, "session %s", st)
	}
}

// IsTokenExpiringSoon reports whether the token expires within threshold. It never mutates and is
// false when there is no token.
func (g *Guard) IsTokenExpiringSoon(threshold time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" {
		return false
	}
	return g.tokenExpiry.Sub(g.now()) < threshold
}

// Clear logs out unconditionally.
func (g *Guard) Clear() {
	g.mu.Lock()
	g.clearLocked()
	g.mu.Unlock()
}

func (g *Guard) clearLocked() {
	g.id = Identity{}
	g.token = ""
	g.tokenExpiry = time.Time{}
	g.lastActivity = time.Time{}
}

// User returns the held identity without checking expiry.
func (g *Guard) User() (Identity, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.id, g.token != ""
}

// Token returns the held token without checking expiry.
func (g *Guard) Token() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.token, g.token != ""
}

func (g *Guard) Snapshot() (types.SessionRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.token == "" {
		return types.SessionRecord{}, false
	}
	return types.SessionRecord{
		UserID:         g.id.UserID,
		Username:       g.id.Username,
		Role:           g.id.Role,
		Token:          g.token,
		TokenExpiry:    g.tokenExpiry.Unix(),
		LastActivity:   g.lastActivity.Unix(),
		TimeoutMinutes: int(g.timeout / time.Minute),
	}, true
}

// Restore loads a persisted session and immediately checks it, so a stale record comes back cleared.
func (g *Guard) Restore(rec types.SessionRecord) Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.id = Identity{UserID: rec.UserID, Username: rec.Username, Role: rec.Role}
	g.token = rec.Token
	g.tokenExpiry = time.Unix(rec.TokenExpiry, 0)
	g.lastActivity = time.Unix(rec.LastActivity, 0)
	if rec.TimeoutMinutes > 0 {
		g.timeout = time.Duration(rec.TimeoutMinutes) * time.Minute
	}
	return g.checkLocked()
}

// Save writes the current session to store. It is a no-op when logged out.
func (g *Guard) Save(ctx context.Context, store ports.SessionStore) error {
	rec, ok := g.Snapshot()
	if !ok {
		return nil
	}
	if err := store.SaveSession(ctx, rec); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "save session %s", rec.UserID)
	}
	return nil
}

// Load restores the session of userID from store. A record that is no longer valid is deleted from the store.
func (g *Guard) Load(ctx context.Context, store ports.SessionStore, userID string) (Status, error) {
	rec, err := store.LoadSession(ctx, userID)
	if err != nil {
		return LoggedOut, fmt.Errorf("load session: %w", err)
	}
	st := g.Restore(rec)
	if st != Valid {
		if err := store.DeleteSession(ctx, userID); err != nil {
			log.WithError(err).WithField("user_id", userID).Warn("failed to delete stale session")
		}
	}
	return st, nil
}

// Logout clears the session and removes it from store when one is given.
func (g *Guard) Logout(ctx context.Context, store ports.SessionStore) error {
	id, _ := g.User()
	g.Clear()
	if store == nil || id.UserID == "" {
		return nil
	}
	if err := store.DeleteSession(ctx, id.UserID); err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "delete session %s", id.UserID)
	}
	return nil
}
