package backends

import (
	"fetchguard/internal/ratecontrol"
	"fetchguard/internal/types"
	"testing"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) TestSessionStoreDisabledByDefault() {
	s.T().Setenv(SessionBackendEnvKey, "")
	st, err := SessionStoreFromEnv()
	s.NoError(err)
	s.Nil(st)
}

func (s *UnitTestSuite) TestSessionStoreUnknownBackend() {
	s.T().Setenv(SessionBackendEnvKey, "etcd")
	_, err := SessionStoreFromEnv()
	s.ErrorIs(err, types.ErrInvalidBackend)
}

func (s *UnitTestSuite) TestRateLimiterDefaultsToLocal() {
	for _, v := range []string{"", BackendLocal} {
		s.T().Setenv(RateBackendEnvKey, v)
		lim, err := RateLimiterFromEnv()
		s.NoError(err)
		s.IsType(&ratecontrol.LocalLimiter{}, lim)
	}
}

func (s *UnitTestSuite) TestRateLimiterUnknownBackend() {
	s.T().Setenv(RateBackendEnvKey, "memcached")
	_, err := RateLimiterFromEnv()
	s.ErrorIs(err, types.ErrInvalidBackend)
}

func (s *UnitTestSuite) TestRedisClientRejectsBadDBNumber() {
	s.T().Setenv(RedisDBNum, "one")
	_, err := redisClientFromEnv()
	s.ErrorContains(err, "invalid Redis DB number")
}

func (s *UnitTestSuite) TestParseBoolean() {
	s.True(parseBoolean("true"))
	s.True(parseBoolean("1"))
	s.False(parseBoolean("nope"))
	s.False(parseBoolean(""))
}
