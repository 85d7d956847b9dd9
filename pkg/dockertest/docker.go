package dockertest

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		value = fallback
	}
	return value
}

func GetDockerHost() string {
	return getEnv("DOCKERTEST_HOST", "localhost")
}

// newPool skips the calling test when no docker daemon is reachable.
func newPool(t *testing.T) *dockertest.Pool {
	t.Helper()

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker is not available: %v", err)
	}
	return pool
}

type PostgresServer struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
}

func (s PostgresServer) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", s.User, s.Password, s.Host, s.Port, s.DB)
}

func StartupPostgreSQL(t *testing.T) PostgresServer {
	t.Helper()

	require := require.New(t)
	pool := newPool(t)

	resource, err := pool.Run("postgres", "14.2-alpine", []string{"POSTGRES_PASSWORD=postgres", "POSTGRES_DB=concierge"})
	require.NoError(err, "status postgres")

	t.Cleanup(func() {
		err := pool.Purge(resource)
		require.NoError(err, "purge resource %s", resource)
	})

	server := PostgresServer{
		Host:     GetDockerHost(),
		Port:     resource.GetPort("5432/tcp"),
		User:     "postgres",
		Password: "postgres",
		DB:       "concierge",
	}

	// exponential backoff-retry, because the application in the container might not be ready to accept connections yet
	err = pool.Retry(func() error {
		orm, err := gorm.Open(postgres.Open(server.DSN()), &gorm.Config{})
		if err != nil {
			return err
		}

		d, err := orm.DB()
		if err != nil {
			return err
		}
		defer d.Close()

		return d.Ping()
	})
	require.NoError(err, "wait for postgres connection")

	return server
}

type RedisServer struct {
	Address string
}

func StartupRedis(t *testing.T) RedisServer {
	t.Helper()

	require := require.New(t)
	pool := newPool(t)

	resource, err := pool.Run("redis", "7.0.7", []string{})
	require.NoError(err, "status redis")

	t.Cleanup(func() {
		err := pool.Purge(resource)
		require.NoError(err, "purge resource %s", resource)
	})

	server := RedisServer{
		Address: fmt.Sprintf("%s:%s", GetDockerHost(), resource.GetPort("6379/tcp")),
	}

	err = pool.Retry(func() error {
		client := redis.NewClient(&redis.Options{Addr: server.Address})
		defer client.Close()

		return client.Ping(context.Background()).Err()
	})
	require.NoError(err, "wait for redis connection")

	return server
}
