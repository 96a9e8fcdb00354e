package rebuild

import (
	"strings"

	"relift/internal/introspect"
)

// QuoteIdentifier wraps an identifier in double quotes, doubling any
// embedded quote.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteJoin(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = QuoteIdentifier(name)
	}
	return strings.Join(quoted, ",")
}

// BuildCreateTable emits the CREATE TABLE statement for the rebuild target.
// Column order, declared types, NOT NULL, defaults, the primary key, and
// AUTOINCREMENT all mirror the observed schema; the foreign-key clauses are
// the final set computed by the planner. PRIMARY KEY is inlined on the
// column only when the key has a single column.
func BuildCreateTable(target string, ts *introspect.TableSchema, fks []ForeignKeySpec, autoIncrement []string) string {
	pk := ts.PrimaryKeyColumns()
	inlinePK := len(pk) == 1

	ai := map[string]bool{}
	for _, col := range autoIncrement {
		ai[col] = true
	}

	var defs []string
	for _, col := range ts.Columns {
		parts := []string{QuoteIdentifier(col.Name)}
		if t := strings.TrimSpace(col.Type); t != "" {
			parts = append(parts, t)
		}
		if inlinePK && col.PrimaryKey() {
			parts = append(parts, "PRIMARY KEY")
			if ai[col.Name] {
				parts = append(parts, "AUTOINCREMENT")
			}
		}
		if col.NotNull {
			parts = append(parts, "NOT NULL")
		}
		if col.Default.Valid {
			parts = append(parts, "DEFAULT "+col.Default.String)
		}
		defs = append(defs, strings.Join(parts, " "))
	}

	if !inlinePK && len(pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteJoin(pk)+")")
	}

	for _, fk := range fks {
		defs = append(defs, foreignKeyClause(fk))
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(QuoteIdentifier(target))
	b.WriteString(" (\n  ")
	b.WriteString(strings.Join(defs, ",\n  "))
	b.WriteString("\n)")
	return b.String()
}

func foreignKeyClause(fk ForeignKeySpec) string {
	var b strings.Builder
	b.WriteString("FOREIGN KEY (")
	b.WriteString(quoteJoin(fk.BaseColumns))
	b.WriteString(") REFERENCES ")
	b.WriteString(QuoteIdentifier(fk.ReferencedTable))
	b.WriteString(" (")
	b.WriteString(quoteJoin(fk.ReferencedColumns))
	b.WriteString(")")
	if fk.OnDelete != "" {
		b.WriteString(" ON DELETE " + strings.ToUpper(fk.OnDelete))
	}
	if fk.OnUpdate != "" {
		b.WriteString(" ON UPDATE " + strings.ToUpper(fk.OnUpdate))
	}
	if fk.Match != "" && !strings.EqualFold(fk.Match, "NONE") {
		b.WriteString(" MATCH " + strings.ToUpper(fk.Match))
	}
	return b.String()
}
