package rebuild

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"relift/internal/introspect"
	"relift/internal/resolve"
)

const (
	tmpPrefix = "__tmp_"
	bakPrefix = "__bak_"
)

// Executor swaps a table's definition in place: create temp with the new
// constraints, copy every row, rename the original aside, rename the temp
// in, drop the backup, and recreate indexes and triggers — all in one
// transaction on a dedicated connection.
type Executor struct {
	db  *sql.DB
	out io.Writer
}

// NewExecutor returns an executor writing progress to out; a nil out
// discards it.
func NewExecutor(db *sql.DB, out io.Writer) *Executor {
	if out == nil {
		out = io.Discard
	}
	return &Executor{db: db, out: out}
}

func (e *Executor) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(e.out, format, args...)
}

// Rebuild executes the full rebuild sequence for one request. On failure
// the transaction is rolled back, foreign-key enforcement is restored, and
// the triggering error is returned — typed where the failure is one the
// caller can act on, wrapped in RebuildFailedError otherwise.
func (e *Executor) Rebuild(ctx context.Context, req *Request) error {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return &RebuildFailedError{Table: req.Table, Step: "acquire connection", Err: err}
	}
	defer conn.Close()

	priorFK, err := foreignKeysEnabled(ctx, conn)
	if err != nil {
		return &RebuildFailedError{Table: req.Table, Step: "read foreign_keys pragma", Err: err}
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		return &RebuildFailedError{Table: req.Table, Step: "disable foreign_keys", Err: err}
	}
	// Older SQLite builds reject this pragma; renames still work without it.
	_, _ = conn.ExecContext(ctx, "PRAGMA legacy_alter_table=ON")

	defer func() {
		if priorFK {
			_, _ = conn.ExecContext(ctx, "PRAGMA foreign_keys=ON")
		}
	}()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return &RebuildFailedError{Table: req.Table, Step: "begin transaction", Err: err}
	}

	if err := e.rebuildInTx(ctx, conn, req); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		_, _ = conn.ExecContext(ctx, "PRAGMA foreign_keys=ON")
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		_, _ = conn.ExecContext(ctx, "ROLLBACK")
		return &RebuildFailedError{Table: req.Table, Step: "commit", Err: err}
	}
	return nil
}

func (e *Executor) rebuildInTx(ctx context.Context, conn *sql.Conn, req *Request) error {
	tables, err := introspect.ListTables(ctx, conn)
	if err != nil {
		return &RebuildFailedError{Table: req.Table, Step: "list tables", Err: err}
	}
	physical, err := resolve.Identifier(req.Table, tables)
	if err != nil {
		return &TableMissingError{Table: req.Table, Err: err}
	}
	tmpName := tmpPrefix + physical
	bakName := bakPrefix + physical

	for _, residual := range []string{tmpName, bakName} {
		if _, err := conn.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdentifier(residual)); err != nil {
			return &RebuildFailedError{Table: physical, Step: "drop residual " + residual, Err: err}
		}
	}

	ts, err := introspect.ReadTable(ctx, conn, physical)
	if err != nil {
		var notFound *introspect.TableNotFoundError
		if errors.As(err, &notFound) {
			return &TableMissingError{Table: physical, Err: err}
		}
		return &RebuildFailedError{Table: physical, Step: "read schema", Err: err}
	}
	if len(ts.Columns) == 0 {
		return &TableMissingError{Table: physical}
	}

	final := FinalForeignKeys(ts.ForeignKeys, req)
	if err := e.normalizeReferences(ctx, conn, ts, tables, final); err != nil {
		return err
	}

	createSQL := BuildCreateTable(tmpName, ts, final, AutoIncrementColumns(ts))
	e.printf("rebuilding %s (%d foreign keys)\n", physical, len(final))
	if _, err := conn.ExecContext(ctx, createSQL); err != nil {
		return &RebuildFailedError{Table: physical, Step: "create temp table", Err: err}
	}

	cols := quoteJoin(ts.ColumnNames())
	copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s",
		QuoteIdentifier(tmpName), cols, cols, QuoteIdentifier(physical))
	if _, err := conn.ExecContext(ctx, copySQL); err != nil {
		return &RebuildFailedError{Table: physical, Step: "copy rows", Err: err}
	}

	renames := []struct{ from, to string }{
		{physical, bakName},
		{tmpName, physical},
	}
	for _, r := range renames {
		err := e.withForeignKeysOff(ctx, conn, func() error {
			_, err := conn.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
				QuoteIdentifier(r.from), QuoteIdentifier(r.to)))
			return err
		})
		if err != nil {
			return &RebuildFailedError{Table: physical, Step: fmt.Sprintf("rename %s to %s", r.from, r.to), Err: err}
		}
	}

	err = e.withForeignKeysOff(ctx, conn, func() error {
		_, err := conn.ExecContext(ctx, "DROP TABLE "+QuoteIdentifier(bakName))
		return err
	})
	if err != nil {
		return &RebuildFailedError{Table: physical, Step: "drop backup table", Err: err}
	}

	for _, ix := range ts.Indexes {
		if ix.Implicit() {
			continue
		}
		if _, err := conn.ExecContext(ctx, ix.SQL.String); err != nil {
			return &RebuildFailedError{Table: physical, Step: "recreate index " + ix.Name, Err: err}
		}
	}
	for _, trg := range ts.Triggers {
		if _, err := conn.ExecContext(ctx, trg.SQL); err != nil {
			return &RebuildFailedError{Table: physical, Step: "recreate trigger " + trg.Name, Err: err}
		}
	}

	_, _ = conn.ExecContext(ctx, "PRAGMA foreign_keys=ON")
	return e.checkIntegrity(ctx, conn, physical)
}

// normalizeReferences rewrites every referenced table and every column name
// of the final foreign keys to their physical spellings.
func (e *Executor) normalizeReferences(ctx context.Context, conn *sql.Conn, ts *introspect.TableSchema, tables []string, final []ForeignKeySpec) error {
	baseCols := ts.ColumnNames()

	for i := range final {
		fk := &final[i]

		for j, col := range fk.BaseColumns {
			resolved, err := resolve.Identifier(col, baseCols)
			if err != nil {
				return err
			}
			fk.BaseColumns[j] = resolved
		}

		refTable, err := resolve.Identifier(fk.ReferencedTable, tables)
		if err != nil {
			return err
		}
		fk.ReferencedTable = refTable

		refCols, err := introspect.Columns(ctx, conn, refTable)
		if err != nil {
			return &RebuildFailedError{Table: ts.Name, Step: "read referenced table " + refTable, Err: err}
		}
		known := make([]string, len(refCols))
		for j, c := range refCols {
			known[j] = c.Name
		}
		for j, col := range fk.ReferencedColumns {
			resolved, err := resolve.Identifier(col, known)
			if err != nil {
				return err
			}
			fk.ReferencedColumns[j] = resolved
		}
	}
	return nil
}

// withForeignKeysOff runs fn with foreign-key enforcement off, restoring the
// prior state afterwards. Inside a transaction the pragma is a no-op, which
// is fine: enforcement was turned off before the transaction began.
func (e *Executor) withForeignKeysOff(ctx context.Context, conn *sql.Conn, fn func() error) error {
	enabled, err := foreignKeysEnabled(ctx, conn)
	if err != nil {
		return err
	}
	if enabled {
		if _, err := conn.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
			return err
		}
		defer func() { _, _ = conn.ExecContext(ctx, "PRAGMA foreign_keys=ON") }()
	}
	return fn()
}

func foreignKeysEnabled(ctx context.Context, conn *sql.Conn) (bool, error) {
	rows, err := conn.QueryContext(ctx, "PRAGMA foreign_keys")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	enabled := false
	if rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return false, err
		}
		enabled = v != 0
	}
	return enabled, rows.Err()
}

func (e *Executor) checkIntegrity(ctx context.Context, conn *sql.Conn, table string) error {
	rows, err := conn.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return &RebuildFailedError{Table: table, Step: "foreign_key_check", Err: err}
	}

	var violations []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.Table, &v.RowID, &v.Parent, &v.FKID); err != nil {
			rows.Close()
			return &RebuildFailedError{Table: table, Step: "scan foreign_key_check row", Err: err}
		}
		violations = append(violations, v)
	}
	if err := rows.Close(); err != nil {
		return &RebuildFailedError{Table: table, Step: "foreign_key_check", Err: err}
	}
	if len(violations) == 0 {
		return nil
	}

	offending := map[string][]introspect.ForeignKey{}
	names := map[string]bool{}
	for _, v := range violations {
		names[v.Table] = true
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		fks, err := introspect.ForeignKeys(ctx, conn, name)
		if err != nil {
			continue
		}
		offending[name] = fks
	}

	return &IntegrityError{Table: table, Violations: violations, Definitions: offending}
}

// ResidualTables returns any leftover rebuild artifacts (__tmp_ / __bak_
// tables) present in the database; a non-empty result means a prior run
// failed mid-swap and needs manual recovery.
func ResidualTables(ctx context.Context, q introspect.Querier) ([]string, error) {
	tables, err := introspect.ListTables(ctx, q)
	if err != nil {
		return nil, err
	}
	var residual []string
	for _, name := range tables {
		if strings.HasPrefix(name, tmpPrefix) || strings.HasPrefix(name, bakPrefix) {
			residual = append(residual, name)
		}
	}
	return residual, nil
}
