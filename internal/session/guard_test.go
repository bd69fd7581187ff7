package session

import (
	"context"
	"fetchguard/internal/types"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite

	now   time.Time
	guard *Guard
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.now = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	s.guard = NewGuard(30 * time.Minute)
	s.guard.SetNowFn(func() time.Time { return s.now })
}

var alice = Identity{UserID: "u-1", Username: "alice", Role: "admin"}

func (s *UnitTestSuite) TestInitialLoggedOut() {
	s.Equal(LoggedOut, s.guard.CheckAndExpire())
	s.False(s.guard.IsLoggedIn())
	s.False(s.guard.RefreshActivity())
	s.ErrorIs(s.guard.Err(), types.ErrNotLoggedIn)
	_, ok := s.guard.User()
	s.False(ok)
}

func (s *UnitTestSuite) TestInactivityTimeout() {
	s.guard.Store(alice, "tok", 8*time.Hour)
	s.True(s.guard.IsLoggedIn())

	s.now = s.now.Add(30*time.Minute + time.Second)
	s.Equal(TimedOut, s.guard.CheckAndExpire())
	s.False(s.guard.IsLoggedIn())
	_, ok := s.guard.User()
	s.False(ok)
	_, ok = s.guard.Token()
	s.False(ok)
}

func (s *UnitTestSuite) TestRefreshActivityExtendsSession() {
	s.guard.Store(alice, "tok", 8*time.Hour)
	s.now = s.now.Add(20 * time.Minute)
	s.True(s.guard.RefreshActivity())
	s.now = s.now.Add(20 * time.Minute)
	s.True(s.guard.IsLoggedIn())
	u, ok := s.guard.User()
	s.True(ok)
	s.Equal(alice, u)
}

func (s *UnitTestSuite) TestTokenExpiry() {
	s.guard.Store(alice, "tok", 10*time.Minute)
	s.now = s.now.Add(10 * time.Minute)
	err := s.guard.Err()
	s.ErrorIs(err, types.ErrSessionExpired)
	s.Equal(LoggedOut, s.guard.CheckAndExpire(), "expiry cleared the session")
}

func (s *UnitTestSuite) TestTokenExpiryReportedBeforeTimeout() {
	s.guard.Store(alice, "tok", 10*time.Minute)
	s.now = s.now.Add(time.Hour)
	s.Equal(ExpiredToken, s.guard.CheckAndExpire())
}

func (s *UnitTestSuite) TestExpiringSoonIsPure() {
	s.False(s.guard.IsTokenExpiringSoon(time.Hour))
	s.guard.Store(alice, "tok", 10*time.Minute)
	s.False(s.guard.IsTokenExpiringSoon(5 * time.Minute))
	s.now = s.now.Add(6 * time.Minute)
	s.True(s.guard.IsTokenExpiringSoon(5 * time.Minute))

	s.now = s.now.Add(time.Hour)
	s.True(s.guard.IsTokenExpiringSoon(5 * time.Minute))
	_, ok := s.guard.Token()
	s.True(ok, "IsTokenExpiringSoon never clears")
}

func (s *UnitTestSuite) TestUpdateToken() {
	s.False(s.guard.UpdateToken("new", time.Hour))
	s.guard.Store(alice, "old", 10*time.Minute)
	s.now = s.now.Add(9 * time.Minute)
	s.True(s.guard.UpdateToken("new", time.Hour))
	s.now = s.now.Add(5 * time.Minute)
	s.True(s.guard.IsLoggedIn())
	tok, _ := s.guard.Token()
	s.Equal("new", tok)
}

func (s *UnitTestSuite) TestClear() {
	s.guard.Store(alice, "tok", time.Hour)
	s.guard.Clear()
	s.Equal(LoggedOut, s.guard.CheckAndExpire())
	s.guard.Clear()
	s.Equal(LoggedOut, s.guard.CheckAndExpire())
}

func (s *UnitTestSuite) TestConcurrentExpiryClearsOnce() {
	s.guard.Store(alice, "tok", time.Hour)
	s.now = s.now.Add(2 * time.Hour)

	var expired, loggedOut int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch s.guard.CheckAndExpire() {
			case ExpiredToken:
				atomic.AddInt32(&expired, 1)
			case LoggedOut:
				atomic.AddInt32(&loggedOut, 1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), expired)
	s.Equal(int32(19), loggedOut)
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]types.SessionRecord
}

func newMemStore() *memStore { return &memStore{recs: map[string]types.SessionRecord{}} }

func (m *memStore) LoadSession(_ context.Context, userID string) (types.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[userID]
	if !ok {
		return types.SessionRecord{}, types.ErrNotFound
	}
	return r, nil
}

func (m *memStore) SaveSession(_ context.Context, rec types.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[rec.UserID] = rec
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recs, userID)
	return nil
}

func (s *UnitTestSuite) TestSaveAndLoad() {
	ctx := context.Background()
	store := newMemStore()
	s.NoError(s.guard.Save(ctx, store), "logged out save is a no-op")
	s.Empty(store.recs)

	s.guard.Store(alice, "tok", time.Hour)
	s.NoError(s.guard.Save(ctx, store))

	other := NewGuard(time.Minute)
	other.SetNowFn(func() time.Time { return s.now })
	st, err := other.Load(ctx, store, alice.UserID)
	s.NoError(err)
	s.Equal(Valid, st)
	u, ok := other.User()
	s.True(ok)
	s.Equal(alice, u)

	_, err = other.Load(ctx, store, "nobody")
	s.ErrorIs(err, types.ErrNotFound)

	s.NoError(other.Logout(ctx, store))
	s.Empty(store.recs)
}

func (s *UnitTestSuite) TestLoadStaleSessionDeletesIt() {
	ctx := context.Background()
	store := newMemStore()
	s.guard.Store(alice, "tok", time.Hour)
	s.NoError(s.guard.Save(ctx, store))

	s.now = s.now.Add(2 * time.Hour)
	other := NewGuard(time.Minute)
	other.SetNowFn(func() time.Time { return s.now })
	st, err := other.Load(ctx, store, alice.UserID)
	s.NoError(err)
	s.Equal(ExpiredToken, st)
	s.Empty(store.recs)
}
