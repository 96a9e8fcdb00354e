package tests

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"relift/internal/apply"
	"relift/internal/engine"
)

// Passthrough sql changes of a lowered changelog can run against MySQL; only
// the table rebuilds are SQLite-bound.
func TestMySQLPassthroughIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	mysqlContainer, err := mysql.Run(ctx, "mysql:8.0",
		mysql.WithDatabase("testdb"),
		mysql.WithUsername("root"),
		mysql.WithPassword("testpass"),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(mysqlContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := mysqlContainer.ConnectionString(ctx)
	require.NoError(t, err, "failed to get connection string")

	input := `databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - sql:
            sql: 'CREATE TABLE relift_probe (id INT PRIMARY KEY, label VARCHAR(64))'
  - changeSet:
      id: '2'
      author: generated
      changes:
        - sql:
            sql: 'INSERT INTO relift_probe (id, label) VALUES (1, ''alpha'')'
`
	result, err := engine.Lower(strings.NewReader(input), engine.Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Requests)

	applier := apply.NewApplier(apply.Options{
		Driver:                "mysql",
		DSN:                   dsn,
		Transaction:           true,
		AllowNonTransactional: true,
	})
	require.NoError(t, applier.Connect(ctx))
	t.Cleanup(func() { _ = applier.Close() })

	statements := applier.Statements(result.Document)
	require.Len(t, statements, 2)

	preflight := applier.Check(statements)
	assert.False(t, preflight.IsTransactional)

	require.NoError(t, applier.Run(ctx, statements, preflight))

	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var label string
	require.NoError(t, db.QueryRow(`SELECT label FROM relift_probe WHERE id = 1`).Scan(&label))
	assert.Equal(t, "alpha", label)
}
