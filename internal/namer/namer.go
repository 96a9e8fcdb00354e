// Package namer assigns deterministic names to anonymous foreign-key
// operations so the rest of the pipeline can refer to them stably.
package namer

import (
	"strings"

	"relift/internal/changelog"
)

const maxNameLength = 60

// Apply walks the document and fills in the constraintName of every
// addForeignKeyConstraint and dropForeignKeyConstraint change that has none.
// The assignment is pure and idempotent: re-running it never changes a name
// it already produced.
func Apply(doc *changelog.Document) {
	for _, cs := range doc.ChangeSets {
		for _, change := range cs.Changes {
			switch c := change.(type) {
			case *changelog.AddForeignKey:
				if strings.TrimSpace(c.ConstraintName) == "" {
					c.SetConstraintName(Name(c.BaseTableName, c.BaseColumnNames, c.ReferencedTableName))
					cs.MarkDirty()
				}
			case *changelog.DropForeignKey:
				if strings.TrimSpace(c.ConstraintName) == "" {
					c.SetConstraintName(Name(c.BaseTableName, c.BaseColumnNames, c.ReferencedTableName))
					cs.MarkDirty()
				}
			}
		}
	}
}

// Name builds the deterministic constraint name for a foreign-key operation.
// baseColumns is the comma-separated column list as written in the document;
// referencedTable may be empty (drop operations often omit it).
func Name(baseTable, baseColumns, referencedTable string) string {
	table := strings.TrimSpace(baseTable)
	if table == "" {
		table = "table"
	}

	cols := strings.Join(changelog.SplitColumnNames(baseColumns), "_")
	if cols == "" {
		cols = "col"
	}

	name := "fk_" + Slug(table) + "_" + Slug(cols)
	if rt := strings.TrimSpace(referencedTable); rt != "" {
		name += "__" + Slug(rt)
	}
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	return name
}

// Slug lowercases s, maps every character outside [a-z0-9_] to an
// underscore, collapses underscore runs, and strips a leading underscore.
// An input that slugs away entirely yields "v".
func Slug(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevUnderscore := false
	for _, r := range strings.ToLower(s) {
		ok := r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !ok {
			r = '_'
		}
		if r == '_' {
			if prevUnderscore {
				continue
			}
			prevUnderscore = true
		} else {
			prevUnderscore = false
		}
		b.WriteRune(r)
	}

	out := strings.TrimPrefix(b.String(), "_")
	if out == "" {
		return "v"
	}
	return out
}
