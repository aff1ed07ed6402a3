package testutil

import (
	"context"
	"net"
	"os/exec"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/nkiryanov/rewardledger/internal/db"
)

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

type PostgresContainer struct {
	// Pool to already migrated ledger database
	Pool *pgxpool.Pool
	DSN  string

	Terminate func()
}

// StartPostgresContainer runs postgres in docker and applies ledger migrations.
// Test is skipped if docker is not reachable; any other failure stops the test.
// Call Terminate when tests are done.
func StartPostgresContainer(t *testing.T) PostgresContainer {
	t.Helper()

	if out, err := exec.Command("docker", "info", "--format", "{{.ServerVersion}}").CombinedOutput(); err != nil {
		t.Skipf("docker is not available, skip postgres backed test: %s", out)
	}

	container, err := postgres.Run(t.Context(),
		"postgres:17-alpine",
		postgres.WithDatabase("rewardledger-test"),
		postgres.WithUsername("rewardledger"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "Error happened when starting container with postgres, deal with it please")

	dsn, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err, "Error happened when getting connection string from container with postgres")
	t.Logf("Container with pg started, DSN=%v", dsn)

	pool, err := db.ConnectAndMigrate(t.Context(), dsn)
	if err != nil {
		testcontainers.CleanupContainer(t, container)
		require.NoError(t, err, "Error happened when connecting to postgres and migrating schema")
	}

	return PostgresContainer{
		Pool: pool,
		DSN:  dsn,
		Terminate: func() {
			pool.Close()
			testcontainers.CleanupContainer(t, container)
		},
	}
}

type dbtx interface {
	Begin(context.Context) (pgx.Tx, error)
}

// InTx runs testFunc in transaction that is rolled back at the end,
// so ledger state created by the test never leaks to other tests.
// Nested calls with pgx.Tx as dbtx use savepoints.
func InTx(dbtx dbtx, t *testing.T, testFunc func(tx pgx.Tx)) {
	t.Helper()

	tx, err := dbtx.Begin(t.Context())
	require.NoError(t, err, "can't begin test transaction")

	defer func() {
		// context may be already cancelled here, rollback anyway
		err := tx.Rollback(context.WithoutCancel(t.Context()))
		require.NoError(t, err, "can't rollback test transaction")
	}()

	testFunc(tx)
}
