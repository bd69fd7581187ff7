package api

import (
	"context"
	"fetchguard/internal/cache"
	"fetchguard/internal/orchestrator"
	"fetchguard/internal/ports"
	"fetchguard/internal/session"
	"fetchguard/internal/types"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite

	now   time.Time
	guard *session.Guard
	orch  *orchestrator.Orchestrator
	h     *Handler
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) SetupTest() {
	s.now = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return s.now }

	c := cache.NewTTL[[]byte](4, time.Minute)
	c.SetNowFn(clock)
	s.guard = session.NewGuard(30 * time.Minute)
	s.guard.SetNowFn(clock)

	var err error
	s.orch, err = orchestrator.New(orchestrator.Options{
		Transport: ports.TransportFunc(func(context.Context, types.Method, string, any) ([]byte, error) {
			return []byte(`{}`), nil
		}),
		Cache:          c,
		Session:        s.guard,
		AllowAnonymous: true,
	})
	s.Require().NoError(err)
	s.h = NewHandler(s.orch, 5*time.Minute)
	s.h.sweeper.SetNowFn(clock)
}

func (s *UnitTestSuite) do(method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.h.Router().ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func (s *UnitTestSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Equal("application/json", rec.Header().Get("Content-Type"))
	s.NoError(json.Unmarshal(rec.Body.Bytes(), v))
}

func (s *UnitTestSuite) TestHealth() {
	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health").Code)
}

func (s *UnitTestSuite) TestStats() {
	c := s.orch.Cache()
	c.Set("/a", []byte("1"), time.Minute)
	c.Set("/b", []byte("2"), time.Second)
	s.now = s.now.Add(2 * time.Second)

	rec := s.do(http.MethodGet, "/cache/stats")
	s.Equal(http.StatusOK, rec.Code)
	var st cache.Stats
	s.decode(rec, &st)
	s.Equal(cache.Stats{Total: 2, Expired: 1, Valid: 1, MaxSize: 4, UsagePercent: 50}, st)

	s.Equal(http.StatusMethodNotAllowed, s.do(http.MethodPost, "/cache/stats").Code)
}

func (s *UnitTestSuite) TestInvalidate() {
	c := s.orch.Cache()
	c.Set("/events?page=1", []byte("1"), 0)
	c.Set("/events?page=2", []byte("2"), 0)
	c.Set("/users", []byte("3"), 0)

	rec := s.do(http.MethodPost, "/cache/invalidate?pattern=events")
	s.Equal(http.StatusOK, rec.Code)
	var out struct {
		Removed int `json:"removed"`
	}
	s.decode(rec, &out)
	s.Equal(2, out.Removed)
	s.Equal(1, c.Len())

	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/cache/invalidate").Code)
	s.Equal(http.StatusMethodNotAllowed, s.do(http.MethodGet, "/cache/invalidate?pattern=x").Code)
}

func (s *UnitTestSuite) TestCleanupIsThrottled() {
	c := s.orch.Cache()
	c.Set("/a", []byte("1"), time.Second)
	s.now = s.now.Add(time.Second)

	rec := s.do(http.MethodPost, "/cache/cleanup")
	s.Equal(http.StatusOK, rec.Code)
	var out struct {
		Removed int `json:"removed"`
	}
	s.decode(rec, &out)
	s.Equal(1, out.Removed)

	s.Equal(http.StatusTooManyRequests, s.do(http.MethodPost, "/cache/cleanup").Code)
	s.now = s.now.Add(time.Second)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/cache/cleanup").Code)
}

func (s *UnitTestSuite) TestSession() {
	var out sessionResponse
	s.decode(s.do(http.MethodGet, "/session"), &out)
	s.Equal(sessionResponse{Status: "logged_out"}, out)

	s.guard.Store(session.Identity{UserID: "u-1", Username: "ada", Role: "admin"}, "secret", 3*time.Minute)
	rec := s.do(http.MethodGet, "/session")
	s.NotContains(rec.Body.String(), "secret")
	out = sessionResponse{}
	s.decode(rec, &out)
	s.Equal(sessionResponse{
		Status:       "valid",
		LoggedIn:     true,
		UserID:       "u-1",
		Username:     "ada",
		Role:         "admin",
		ExpiringSoon: true,
	}, out)

	s.now = s.now.Add(3 * time.Minute)
	out = sessionResponse{}
	s.decode(s.do(http.MethodGet, "/session"), &out)
	s.Equal(sessionResponse{Status: "expired_token"}, out)
}
