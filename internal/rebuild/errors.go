package rebuild

import (
	"database/sql"
	"fmt"
	"strings"

	"relift/internal/introspect"
)

// TableMissingError is returned when the rebuild target cannot be located in
// the live schema.
type TableMissingError struct {
	Table string
	Err   error
}

func (e *TableMissingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rebuild target table %q missing: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("rebuild target table %q missing", e.Table)
}

func (e *TableMissingError) Unwrap() error { return e.Err }

// RebuildFailedError wraps a database error raised by one of the rebuild
// steps. By the time the caller sees it, the transaction has been rolled
// back.
type RebuildFailedError struct {
	Table string
	Step  string
	Err   error
}

func (e *RebuildFailedError) Error() string {
	return fmt.Sprintf("rebuild of %q failed at %s: %v", e.Table, e.Step, e.Err)
}

func (e *RebuildFailedError) Unwrap() error { return e.Err }

// Violation is one row returned by PRAGMA foreign_key_check.
type Violation struct {
	Table  string
	RowID  sql.NullInt64
	Parent string
	FKID   int
}

// IntegrityError reports that the post-rebuild foreign_key_check found
// orphaned rows. Definitions holds the full foreign-key list of every
// offending table for diagnosis.
type IntegrityError struct {
	Table       string
	Violations  []Violation
	Definitions map[string][]introspect.ForeignKey
}

func (e *IntegrityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "referential integrity violated after rebuilding %q:", e.Table)
	for _, v := range e.Violations {
		rowid := "?"
		if v.RowID.Valid {
			rowid = fmt.Sprintf("%d", v.RowID.Int64)
		}
		fmt.Fprintf(&b, "\n  table=%s rowid=%s parent=%s fk=%d", v.Table, rowid, v.Parent, v.FKID)
	}
	for table, fks := range e.Definitions {
		for _, fk := range fks {
			for i := range fk.BaseColumns {
				to := ""
				if i < len(fk.ReferencedColumns) {
					to = fk.ReferencedColumns[i]
				}
				fmt.Fprintf(&b,
					"\n  fk definition: table=%s id=%d seq=%d from=%s references=%s(%s) on_update=%s on_delete=%s match=%s",
					table, fk.ID, i, fk.BaseColumns[i], fk.ReferencedTable, to, fk.OnUpdate, fk.OnDelete, fk.Match)
			}
		}
	}
	return b.String()
}
