package introspect

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "introspect_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *sql.DB, statements ...string) {
	t.Helper()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, "statement: %s", stmt)
	}
}

func TestColumnsInCreationOrder(t *testing.T) {
	db := openTestDB(t)
	seed(t, db, `CREATE TABLE account (
		id INTEGER PRIMARY KEY,
		email TEXT NOT NULL,
		bio TEXT DEFAULT 'none',
		score REAL
	)`)

	cols, err := Columns(context.Background(), db, "account")
	require.NoError(t, err)
	require.Len(t, cols, 4)

	assert.Equal(t, "id", cols[0].Name)
	assert.True(t, cols[0].PrimaryKey())
	assert.Equal(t, "email", cols[1].Name)
	assert.True(t, cols[1].NotNull)
	assert.Equal(t, "bio", cols[2].Name)
	assert.True(t, cols[2].Default.Valid)
	assert.Equal(t, "'none'", cols[2].Default.String)
	assert.Equal(t, "score", cols[3].Name)
	assert.False(t, cols[3].NotNull)
	assert.False(t, cols[3].PrimaryKey())
}

func TestForeignKeysGroupedBySeq(t *testing.T) {
	db := openTestDB(t)
	seed(t, db,
		`CREATE TABLE orders (id INTEGER, line INTEGER, PRIMARY KEY (id, line))`,
		`CREATE TABLE users (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE order_item (
			order_id INTEGER,
			line_no INTEGER,
			owner INTEGER REFERENCES users (id) ON DELETE SET NULL,
			FOREIGN KEY (order_id, line_no) REFERENCES orders (id, line) ON DELETE CASCADE
		)`,
	)

	fks, err := ForeignKeys(context.Background(), db, "order_item")
	require.NoError(t, err)
	require.Len(t, fks, 2)

	byTable := map[string]ForeignKey{}
	for _, fk := range fks {
		byTable[fk.ReferencedTable] = fk
	}

	composite := byTable["orders"]
	assert.Equal(t, []string{"order_id", "line_no"}, composite.BaseColumns)
	assert.Equal(t, []string{"id", "line"}, composite.ReferencedColumns)
	assert.Equal(t, "CASCADE", composite.OnDelete)

	single := byTable["users"]
	assert.Equal(t, []string{"owner"}, single.BaseColumns)
	assert.Equal(t, "SET NULL", single.OnDelete)
}

func TestIndexesMarkImplicit(t *testing.T) {
	db := openTestDB(t)
	seed(t, db,
		`CREATE TABLE doc (id INTEGER, code TEXT, PRIMARY KEY (id, code))`,
		`CREATE INDEX idx_doc_code ON doc (code)`,
	)

	indexes, err := Indexes(context.Background(), db, "doc")
	require.NoError(t, err)

	var explicit, implicit int
	for _, ix := range indexes {
		if ix.Implicit() {
			implicit++
		} else {
			explicit++
			assert.Contains(t, ix.SQL.String, "CREATE INDEX")
		}
	}
	assert.Equal(t, 1, explicit)
	assert.Equal(t, 1, implicit)
}

func TestTriggersReturned(t *testing.T) {
	db := openTestDB(t)
	seed(t, db,
		`CREATE TABLE audit_src (id INTEGER PRIMARY KEY, v TEXT)`,
		`CREATE TABLE audit_dst (id INTEGER, v TEXT)`,
		`CREATE TRIGGER trg_first AFTER INSERT ON audit_src BEGIN INSERT INTO audit_dst VALUES (NEW.id, NEW.v); END`,
		`CREATE TRIGGER trg_second AFTER DELETE ON audit_src BEGIN DELETE FROM audit_dst WHERE id = OLD.id; END`,
	)

	triggers, err := Triggers(context.Background(), db, "audit_src")
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, "trg_first", triggers[0].Name)
	assert.Equal(t, "trg_second", triggers[1].Name)
	assert.Contains(t, triggers[0].SQL, "CREATE TRIGGER")
}

func TestReadTableAndListTables(t *testing.T) {
	db := openTestDB(t)
	seed(t, db,
		`CREATE TABLE alpha (id INTEGER PRIMARY KEY)`,
		`CREATE TABLE beta (id INTEGER PRIMARY KEY, alpha_id INTEGER REFERENCES alpha (id))`,
	)

	ctx := context.Background()
	tables, err := ListTables(ctx, db)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, tables)

	ts, err := ReadTable(ctx, db, "beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", ts.Name)
	assert.Contains(t, ts.CreateSQL, "CREATE TABLE beta")
	assert.Len(t, ts.Columns, 2)
	assert.Len(t, ts.ForeignKeys, 1)
	assert.Equal(t, []string{"id"}, ts.PrimaryKeyColumns())
}

func TestReadTableNotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := ReadTable(context.Background(), db, "ghost")
	var notFound *TableNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Table)
}

func TestPrimaryKeyColumnsOrderedByKeyPosition(t *testing.T) {
	db := openTestDB(t)
	// The key lists columns in reverse of their creation order.
	seed(t, db, `CREATE TABLE pair (a INTEGER, b INTEGER, PRIMARY KEY (b, a))`)

	ts, err := ReadTable(context.Background(), db, "pair")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ts.PrimaryKeyColumns())
}
