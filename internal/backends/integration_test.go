//go:build integration

package backends

import (
	"context"
	"fetchguard/internal/backends/ddb"
	redisbackend "fetchguard/internal/backends/redis"
	"fetchguard/internal/ports"
	"fetchguard/internal/types"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
)

const (
	AWSMockPort    = 4566
	LocalRedisPort = 46379
	TestTableName  = "fetchguard_test"
)

// IntegrationTestSuite runs against moto on AWSMockPort, or redis on LocalRedisPort when
// TEST_USE_REDIS_BACKEND is set.
type IntegrationTestSuite struct {
	suite.Suite

	sessions ports.SessionStore
	limiter  ports.RateLimiter
}

func TestIntegrationTestSuite(t *testing.T) {
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	if os.Getenv("TEST_USE_REDIS_BACKEND") != "" {
		s.initRedisBackend()
	} else {
		s.initDDBBackend(context.Background())
	}
}

func (s *IntegrationTestSuite) initDDBBackend(ctx context.Context) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		s.FailNow("Failed to load AWS config", err)
	}
	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("http://localhost:%d", AWSMockPort))
		if o.Region == "" {
			o.Region = "us-east-1"
		}
		o.Credentials = credentials.NewStaticCredentialsProvider("test", "test", "")
	})
	s.sessions = ddb.NewSessionStore(TestTableName, ddbClient)
	s.limiter = ddb.NewRateLimiter(TestTableName, ddbClient)
}

func (s *IntegrationTestSuite) initRedisBackend() {
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("localhost:%d", LocalRedisPort),
		DB:   0,
	})
	s.sessions = redisbackend.NewSessionStore(redisClient)
	s.limiter = redisbackend.NewRateLimiter(redisClient)
}

func (s *IntegrationTestSuite) TestSessionRoundTrip() {
	ctx := context.Background()
	rec := types.SessionRecord{
		UserID:         "u-" + uuid.NewString(),
		Username:       "ada",
		Role:           "admin",
		Token:          "tok",
		TokenExpiry:    time.Now().Add(time.Hour).Unix(),
		LastActivity:   time.Now().Unix(),
		TimeoutMinutes: 30,
	}
	s.NoError(s.sessions.SaveSession(ctx, rec))

	got, err := s.sessions.LoadSession(ctx, rec.UserID)
	s.NoError(err)
	s.Equal(rec, got)

	s.NoError(s.sessions.DeleteSession(ctx, rec.UserID))
	_, err = s.sessions.LoadSession(ctx, rec.UserID)
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *IntegrationTestSuite) TestSessionMissing() {
	_, err := s.sessions.LoadSession(context.Background(), "nobody-"+uuid.NewString())
	s.ErrorIs(err, types.ErrNotFound)
}

func (s *IntegrationTestSuite) TestRateLimiterCapacity() {
	ctx := context.Background()
	scope := "ENDPOINT:" + uuid.NewString()
	for i := 0; i < 3; i++ {
		ok, err := s.limiter.Acquire(ctx, scope, 3, time.Hour)
		s.NoError(err)
		s.True(ok, "acquire %d", i)
	}
	ok, err := s.limiter.Acquire(ctx, scope, 3, time.Hour)
	s.NoError(err)
	s.False(ok)

	ok, err = s.limiter.Acquire(ctx, scope, 0, time.Hour)
	s.NoError(err)
	s.False(ok)
}
