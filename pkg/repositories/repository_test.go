package repositories_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/Ramsey-B/fern/pkg/database"
)

var (
	containerOnce sync.Once
	containerDSN  string
	containerErr  error
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func startPostgres(ctx context.Context) (string, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "fern",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "fern",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", err
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("postgres://fern:password@%s:%s/fern?sslmode=disable", host, port.Port()), nil
}

// getTestDB returns a migrated database shared by the package's integration tests
func getTestDB(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	logger := getTestLogger()

	containerOnce.Do(func() {
		containerDSN, containerErr = startPostgres(ctx)
		if containerErr != nil {
			return
		}

		db, err := sqlx.Connect("postgres", containerDSN)
		if err != nil {
			containerErr = err
			return
		}
		defer db.Close()

		migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
		containerErr = migrations.MigratePostgres(db.DB, "fern")
	})
	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}

	db, err := sqlx.Connect("postgres", containerDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return database.NewDatabaseInstance(db, logger)
}

func truncate(t *testing.T, db database.DB, tables ...string) {
	t.Helper()
	for _, table := range tables {
		_, err := db.ExecContext(context.Background(), "TRUNCATE "+table+" CASCADE")
		require.NoError(t, err)
	}
}
