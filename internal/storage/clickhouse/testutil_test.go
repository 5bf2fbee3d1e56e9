package clickhouse

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestDB creates a ClickHouse container and returns a connection.
// Returns a cleanup function that must be called when done.
func setupTestDB(t *testing.T) (*Conn, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	// Start ClickHouse container
	req := testcontainers.ContainerRequest{
		Image:        "clickhouse/clickhouse-server:24.1-alpine",
		ExposedPorts: []string{"9000/tcp", "8123/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Application: Ready for connections").
				WithStartupTimeout(60*time.Second),
			wait.ForListeningPort("9000/tcp"),
		),
		Env: map[string]string{
			"CLICKHOUSE_DB":       "test",
			"CLICKHOUSE_USER":     "default",
			"CLICKHOUSE_PASSWORD": "",
		},
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	// Get native port (9000)
	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "9000")
	require.NoError(t, err)

	dsn := fmt.Sprintf("clickhouse://%s:%s/test", host, port.Port())

	// Connect to ClickHouse
	conn, err := NewConn(ctx, dsn)
	require.NoError(t, err)

	// Run migrations
	runTestMigrations(t, conn)

	cleanup := func() {
		conn.Close()
		_ = container.Terminate(ctx)
	}

	return conn, cleanup
}

// runTestMigrations applies the ledger_events DDL. It prefers the migration
// file on disk so the test schema cannot drift from the embedded one, and
// falls back to inline DDL when the file is not reachable.
func runTestMigrations(t *testing.T, conn *Conn) {
	t.Helper()
	ctx := context.Background()

	content, err := os.ReadFile("../migrations/clickhouse/001_create_ledger_events.sql")
	if err != nil {
		t.Logf("could not read migration file: %v, using inline DDL", err)
		content = []byte(inlineLedgerEventsDDL)
	}

	stmt := strings.TrimSuffix(strings.TrimSpace(string(content)), ";")
	require.NoError(t, conn.Exec(ctx, stmt), "failed to apply ledger_events migration")
}

const inlineLedgerEventsDDL = `
	CREATE TABLE IF NOT EXISTS ledger_events (
		seq             UInt64,
		type            LowCardinality(String),
		ts              Int64,
		position        String,
		account         String,
		currency        String,
		payout_index    Int64,
		issued_at       Int64,
		indices         Array(UInt64),
		amount          UInt64,
		weight          UInt64,
		ratio_bps       UInt32,
		periods         UInt32,
		killed          UInt8,
		amount_per_unit String
	) ENGINE = MergeTree()
	ORDER BY seq
`
