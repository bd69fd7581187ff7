package types

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type UnitTestSuite struct {
	suite.Suite
}

func TestUnitTestSuite(t *testing.T) {
	suite.Run(t, new(UnitTestSuite))
}

func (s *UnitTestSuite) writeConfig(content string) string {
	p := filepath.Join(s.T().TempDir(), "config.yml")
	s.Require().NoError(os.WriteFile(p, []byte(content), 0o600))
	return p
}

func (s *UnitTestSuite) TestDefaultConfigIsValid() {
	cfg := DefaultConfig()
	s.NoError(cfg.Validate())
	s.Equal(5*time.Minute, cfg.Cache.DefaultTTL())
	s.Equal(time.Minute, cfg.Cache.CleanupInterval())
	s.Equal(30*time.Minute, cfg.Session.Timeout())
	s.Equal(30*time.Second, cfg.RequestTimeout())
}

func (s *UnitTestSuite) TestLoadConfigOverlaysDefaults() {
	p := s.writeConfig(`
base_url: https://api.example.com
cache:
  max_size: 10
session:
  refresh_endpoint: /auth/refresh
pagination:
  total_expr: meta.total
`)
	cfg, err := LoadConfig(p)
	s.NoError(err)
	s.Equal("https://api.example.com", cfg.BaseURL)
	s.Equal(10, cfg.Cache.MaxSize)
	s.Equal(DefaultCacheTTL, cfg.Cache.DefaultTTLSeconds)
	s.Equal("meta.total", cfg.Pagination.TotalExpr)
	s.Equal("/auth/refresh", cfg.Session.RefreshEndpoint)
	s.Equal(5*time.Minute, cfg.Session.RefreshThreshold())
	s.Equal(DefaultItemsPerPage, cfg.Pagination.ItemsPerPage)
}

func (s *UnitTestSuite) TestLoadConfigInvalid() {
	_, err := LoadConfig(s.writeConfig("cache:\n  max_size: 0\n"))
	s.ErrorIs(err, ErrInvalidConfig)

	_, err = LoadConfig(s.writeConfig("cache: [unclosed\n"))
	s.ErrorIs(err, ErrInvalidConfig)

	_, err = LoadConfig(filepath.Join(s.T().TempDir(), "missing.yml"))
	s.ErrorIs(err, ErrInvalidConfig)
}

func (s *UnitTestSuite) TestValidate() {
	for name, mod := range map[string]func(*Config){
		"ttl":        func(c *Config) { c.Cache.DefaultTTLSeconds = 0 },
		"cleanup":    func(c *Config) { c.Cache.CleanupIntervalSeconds = -1 },
		"timeout":    func(c *Config) { c.Session.TimeoutMinutes = 0 },
		"refresh":    func(c *Config) { c.Session.RefreshThresholdMinutes = -1 },
		"page size":  func(c *Config) { c.Pagination.ItemsPerPage = 0 },
		"rate":       func(c *Config) { c.RateLimit.RequestsPerMinute = -1 },
		"req timout": func(c *Config) { c.RequestTimeoutSeconds = -1 },
		"port":       func(c *Config) { c.AdminPort = 70000 },
	} {
		cfg := DefaultConfig()
		mod(&cfg)
		s.ErrorIs(cfg.Validate(), ErrInvalidConfig, name)
	}
}

func (s *UnitTestSuite) TestErrJoinsSentinels() {
	inner := errors.New("boom")
	err := Err(ErrDataStoreAccess, inner, "load %s", "u-1")
	s.ErrorIs(err, ErrDataStoreAccess)
	s.ErrorIs(err, inner)
	s.Contains(err.Error(), "load u-1")
}

func (s *UnitTestSuite) TestStatusErrorKinds() {
	for status, kind := range map[int]TransportErrorKind{
		http.StatusUnauthorized:        AuthRejected,
		http.StatusForbidden:           AuthRejected,
		http.StatusNotFound:            HTTPError,
		http.StatusInternalServerError: HTTPError,
	} {
		err := NewStatusError(status, []byte("body"))
		te, ok := AsTransportError(err)
		s.True(ok)
		s.Equal(kind, te.Kind, status)
		s.Equal(status, te.Status)
	}

	_, ok := AsTransportError(errors.New("plain"))
	s.False(ok)
}
