// Package introspect reads the live schema of a SQLite database: columns,
// primary keys, foreign keys, indexes, and triggers, plus the raw CREATE
// statements the engine needs to preserve table attributes across a rebuild.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Querier is the subset of database/sql this package needs. *sql.DB,
// *sql.Conn, and *sql.Tx all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// TableNotFoundError is returned when sqlite_master has no row for the
// requested table.
type TableNotFoundError struct {
	Table string
}

func (e *TableNotFoundError) Error() string {
	return fmt.Sprintf("table %q not found in sqlite_master", e.Table)
}

// Column is one column as reported by pragma_table_info, in creation order.
type Column struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	NotNull   bool           `json:"notNull"`
	Default   sql.NullString `json:"default"`
	PKOrdinal int            `json:"pk"` // 0 when not part of the primary key
}

// PrimaryKey reports whether the column participates in the primary key.
func (c Column) PrimaryKey() bool { return c.PKOrdinal > 0 }

// ForeignKey is one foreign-key clause aggregated from
// pragma_foreign_key_list. Rows sharing an id form one clause; columns are
// ordered by seq.
type ForeignKey struct {
	ID                int      `json:"id"`
	BaseColumns       []string `json:"baseColumns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	OnUpdate          string   `json:"onUpdate,omitempty"`
	OnDelete          string   `json:"onDelete,omitempty"`
	Match             string   `json:"match,omitempty"`
}

// Index is one entry from pragma_index_list joined with sqlite_master.
// Indexes SQLite created implicitly for a primary key or unique column
// constraint have no CREATE statement.
type Index struct {
	Name string         `json:"name"`
	SQL  sql.NullString `json:"sql"`
}

// Implicit reports whether the index was auto-created and therefore must not
// be recreated after a rebuild.
func (ix Index) Implicit() bool { return !ix.SQL.Valid }

// Trigger is one trigger attached to a table.
type Trigger struct {
	Name string `json:"name"`
	SQL  string `json:"sql"`
}

// TableSchema is the observed definition of one table.
type TableSchema struct {
	Name        string       `json:"name"`
	Columns     []Column     `json:"columns"`
	CreateSQL   string       `json:"createSql"`
	ForeignKeys []ForeignKey `json:"foreignKeys,omitempty"`
	Indexes     []Index      `json:"indexes,omitempty"`
	Triggers    []Trigger    `json:"triggers,omitempty"`
}

// ColumnNames returns the column names in creation order.
func (ts *TableSchema) ColumnNames() []string {
	names := make([]string, len(ts.Columns))
	for i, c := range ts.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKeyColumns returns the primary-key column names ordered by their
// position in the key.
func (ts *TableSchema) PrimaryKeyColumns() []string {
	var pk []Column
	for _, c := range ts.Columns {
		if c.PrimaryKey() {
			pk = append(pk, c)
		}
	}
	for i := 1; i < len(pk); i++ {
		for j := i; j > 0 && pk[j-1].PKOrdinal > pk[j].PKOrdinal; j-- {
			pk[j-1], pk[j] = pk[j], pk[j-1]
		}
	}
	names := make([]string, len(pk))
	for i, c := range pk {
		names[i] = c.Name
	}
	return names
}

// ReadTable materializes the full observed schema of one table.
func ReadTable(ctx context.Context, q Querier, name string) (*TableSchema, error) {
	createSQL, err := CreateSQL(ctx, q, name)
	if err != nil {
		return nil, err
	}

	ts := &TableSchema{Name: name, CreateSQL: createSQL}
	if ts.Columns, err = Columns(ctx, q, name); err != nil {
		return nil, err
	}
	if ts.ForeignKeys, err = ForeignKeys(ctx, q, name); err != nil {
		return nil, err
	}
	if ts.Indexes, err = Indexes(ctx, q, name); err != nil {
		return nil, err
	}
	if ts.Triggers, err = Triggers(ctx, q, name); err != nil {
		return nil, err
	}
	return ts, nil
}

// Columns returns the table's columns in the order SQLite reports them.
func Columns(ctx context.Context, q Querier, name string) ([]Column, error) {
	query := fmt.Sprintf(
		"SELECT `name`, `type`, `notnull`, `dflt_value`, `pk` FROM pragma_table_info(%s) ORDER BY `cid`",
		quoteLiteral(name))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect: table_info for %q: %w", name, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &c.PKOrdinal); err != nil {
			return nil, fmt.Errorf("introspect: scan table_info row: %w", err)
		}
		c.NotNull = notNull != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// CreateSQL returns the raw CREATE statement recorded in sqlite_master.
func CreateSQL(ctx context.Context, q Querier, name string) (string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT `sql` FROM sqlite_master WHERE `type` = 'table' AND `name` = ?", name)
	if err != nil {
		return "", fmt.Errorf("introspect: create sql for %q: %w", name, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return "", err
		}
		return "", &TableNotFoundError{Table: name}
	}
	var createSQL sql.NullString
	if err := rows.Scan(&createSQL); err != nil {
		return "", fmt.Errorf("introspect: scan create sql: %w", err)
	}
	return createSQL.String, nil
}

// ForeignKeys aggregates pragma_foreign_key_list rows into one clause per
// id, columns concatenated in seq order.
func ForeignKeys(ctx context.Context, q Querier, name string) ([]ForeignKey, error) {
	query := fmt.Sprintf(
		"SELECT `id`, `from`, `to`, `table`, `on_update`, `on_delete`, `match` FROM pragma_foreign_key_list(%s) ORDER BY `id`, `seq`",
		quoteLiteral(name))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect: foreign_key_list for %q: %w", name, err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var id int
		var from, table, onUpdate, onDelete, match string
		var to sql.NullString
		if err := rows.Scan(&id, &from, &to, &table, &onUpdate, &onDelete, &match); err != nil {
			return nil, fmt.Errorf("introspect: scan foreign_key_list row: %w", err)
		}
		if n := len(fks); n == 0 || fks[n-1].ID != id {
			fks = append(fks, ForeignKey{
				ID:              id,
				ReferencedTable: table,
				OnUpdate:        onUpdate,
				OnDelete:        onDelete,
				Match:           match,
			})
		}
		fk := &fks[len(fks)-1]
		fk.BaseColumns = append(fk.BaseColumns, from)
		fk.ReferencedColumns = append(fk.ReferencedColumns, to.String)
	}
	return fks, rows.Err()
}

// Indexes returns the table's indexes in pragma_index_list order. Implicit
// primary-key indexes surface with a NULL CREATE statement.
func Indexes(ctx context.Context, q Querier, name string) ([]Index, error) {
	query := fmt.Sprintf(
		"SELECT `il`.`name`, `m`.`sql` FROM pragma_index_list(%s) AS `il` LEFT JOIN sqlite_master AS `m` ON `m`.`name` = `il`.`name` ORDER BY `il`.`seq`",
		quoteLiteral(name))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("introspect: index_list for %q: %w", name, err)
	}
	defer rows.Close()

	var indexes []Index
	for rows.Next() {
		var ix Index
		if err := rows.Scan(&ix.Name, &ix.SQL); err != nil {
			return nil, fmt.Errorf("introspect: scan index_list row: %w", err)
		}
		indexes = append(indexes, ix)
	}
	return indexes, rows.Err()
}

// Triggers returns the table's triggers in creation order.
func Triggers(ctx context.Context, q Querier, name string) ([]Trigger, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT `name`, `sql` FROM sqlite_master WHERE `type` = 'trigger' AND `tbl_name` = ? ORDER BY `rowid`", name)
	if err != nil {
		return nil, fmt.Errorf("introspect: triggers for %q: %w", name, err)
	}
	defer rows.Close()

	var triggers []Trigger
	for rows.Next() {
		var t Trigger
		if err := rows.Scan(&t.Name, &t.SQL); err != nil {
			return nil, fmt.Errorf("introspect: scan trigger row: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

// ListTables returns the user tables of the database, excluding SQLite's
// internal sqlite_* tables.
func ListTables(ctx context.Context, q Querier) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT `name` FROM sqlite_master WHERE `type` = 'table' AND `name` NOT LIKE 'sqlite_%'")
	if err != nil {
		return nil, fmt.Errorf("introspect: list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("introspect: scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// quoteLiteral renders s as a SQL string literal for use inside a pragma
// table-valued function call, which drivers refuse to parameterize.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
