//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"stepwise/internal/database"
	"stepwise/internal/logger"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest) (string, string) {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, req.ExposedPorts[0])
	require.NoError(t, err)
	return host, port.Port()
}

func TestPostgresCourseStore(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "stepwise",
			"POSTGRES_PASSWORD": "stepwise",
			"POSTGRES_DB":       "stepwise",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	})

	ctx := context.Background()
	url := fmt.Sprintf("postgres://stepwise:stepwise@%s:%s/stepwise?sslmode=disable", host, port)
	db, err := database.Connect(ctx, url, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db))
	require.NoError(t, database.Migrate(ctx, db), "migration must be idempotent")

	s := NewPostgres(db)
	t.Cleanup(func() { _ = s.Close() })
	runCourseStoreSuite(t, s)
}

func TestRedisCourseStore(t *testing.T) {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	})

	s, err := NewRedis(context.Background(), host+":"+port)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	runCourseStoreSuite(t, s)
}
