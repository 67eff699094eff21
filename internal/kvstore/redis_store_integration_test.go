package kvstore_test // Используем _test пакет для изоляции

import (
	"context"
	"fmt"
	"testing"
	"time"

	"story-client/internal/kvstore"
	"story-client/internal/models"

	"github.com/docker/docker/client"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// RedisStoreSuite содержит состояние для интеграционных тестов Redis-бэкенда
type RedisStoreSuite struct {
	suite.Suite
	ctx         context.Context
	rdContainer *tcredis.RedisContainer
	redisClient *redis.Client
	store       kvstore.Store
	logger      *zap.Logger
}

// SetupSuite выполняется один раз перед всеми тестами в наборе
func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error

	s.logger, err = zap.NewDevelopment()
	require.NoError(s.T(), err, "Failed to create logger for tests")

	// Запускаем контейнер Redis
	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)
	redisAddr := fmt.Sprintf("%s:%s", redisHost, redisPort.Port())

	s.redisClient = redis.NewClient(&redis.Options{Addr: redisAddr})
	_, err = s.redisClient.Ping(s.ctx).Result()
	require.NoError(s.T(), err, "Failed to connect to test redis")

	s.store = kvstore.NewRedisStore(s.redisClient, s.logger)
}

// TearDownSuite выполняется один раз после всех тестов
func (s *RedisStoreSuite) TearDownSuite() {
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RedisStoreSuite) TestSetGetDelete() {
	t := s.T()

	_, err := s.store.Get(s.ctx, "missing")
	require.ErrorIs(t, err, models.ErrKeyNotFound)

	require.NoError(t, s.store.Set(s.ctx, "token", "abc"))
	v, err := s.store.Get(s.ctx, "token")
	require.NoError(t, err)
	require.Equal(t, "abc", v)

	// Перезапись существующего ключа
	require.NoError(t, s.store.Set(s.ctx, "token", "def"))
	v, err = s.store.Get(s.ctx, "token")
	require.NoError(t, err)
	require.Equal(t, "def", v)

	require.NoError(t, s.store.Delete(s.ctx, "token"))
	_, err = s.store.Get(s.ctx, "token")
	require.ErrorIs(t, err, models.ErrKeyNotFound)
}

func (s *RedisStoreSuite) TestKeysAreNamespaced() {
	t := s.T()

	require.NoError(t, s.store.Set(s.ctx, "story_list", "[]"))
	// Ключ в Redis должен лежать в своем namespace
	v, err := s.redisClient.Get(s.ctx, "story_client:story_list").Result()
	require.NoError(t, err)
	require.Equal(t, "[]", v)
}

// TestRedisStoreSuite запускает набор тестов
func TestRedisStoreSuite(t *testing.T) {
	// Пропускаем тесты, если запущены с флагом -short
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	// Проверяем доступность Docker перед запуском
	cli, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		t.Skipf("Docker client init error: %v. Ensure Docker is running and accessible.", err)
	}
	if _, err := cli.Ping(context.Background()); err != nil {
		t.Skipf("Docker daemon is not running or accessible: %v", err)
	}
	cli.Close()

	suite.Run(t, new(RedisStoreSuite))
}
