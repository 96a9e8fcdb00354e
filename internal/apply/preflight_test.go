package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFlagsDestructiveStatements(t *testing.T) {
	analyzer := NewAnalyzer()

	preflight := analyzer.Check([]string{
		"DROP TABLE accounts",
		"SELECT 1",
	})

	assert.True(t, preflight.Destructive())
	require.NotEmpty(t, preflight.Warnings)
	assert.Equal(t, WarnDanger, preflight.Warnings[0].Level)
	assert.Contains(t, preflight.Warnings[0].Message, "DROP TABLE")
}

func TestCheckFlagsBlockingDDL(t *testing.T) {
	analyzer := NewAnalyzer()

	preflight := analyzer.Check([]string{"CREATE INDEX idx_a ON t (a)"})

	found := false
	for _, w := range preflight.Warnings {
		if w.Level == WarnCaution {
			found = true
		}
	}
	assert.True(t, found)
	assert.False(t, preflight.IsTransactional)
}

func TestCheckTransactionSafety(t *testing.T) {
	analyzer := NewAnalyzer()

	safe := analyzer.Check([]string{
		"INSERT INTO t (a) VALUES (1)",
		"UPDATE t SET a = 2",
	})
	assert.True(t, safe.IsTransactional)
	assert.False(t, safe.Destructive())

	unsafe := analyzer.Check([]string{"ALTER TABLE t ADD COLUMN b INT"})
	assert.False(t, unsafe.IsTransactional)
	assert.NotEmpty(t, unsafe.NonTxReasons)
}

func TestCheckAlterDropColumnIsDestructive(t *testing.T) {
	analyzer := NewAnalyzer()

	preflight := analyzer.Check([]string{"ALTER TABLE t DROP COLUMN old_flag"})
	assert.True(t, preflight.Destructive())
}

func TestCheckUnparseableStatementFallsBack(t *testing.T) {
	analyzer := NewAnalyzer()

	// SQLite-only syntax the MySQL-dialect parser rejects.
	preflight := analyzer.Check([]string{`DROP TABLE "odd name" /* sqlite */`})
	assert.True(t, preflight.Destructive())
}

func TestDeleteIsDestructiveButTransactional(t *testing.T) {
	analyzer := NewAnalyzer()

	preflight := analyzer.Check([]string{"DELETE FROM t WHERE a = 1"})
	assert.True(t, preflight.Destructive())
	assert.True(t, preflight.IsTransactional)
}

func TestTruncateStatement(t *testing.T) {
	tests := []struct {
		sql         string
		destructive bool
	}{
		{"TRUNCATE TABLE audit_log", true},
		{"SELECT * FROM audit_log", false},
	}
	for _, tt := range tests {
		preflight := NewAnalyzer().Check([]string{tt.sql})
		assert.Equal(t, tt.destructive, preflight.Destructive(), "sql: %s", tt.sql)
	}
}
