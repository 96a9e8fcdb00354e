// Package rebuild lowers extracted foreign-key operations into physical
// SQLite table rebuilds: it computes the final constraint set per table,
// regenerates the CREATE TABLE statement with every observed attribute
// preserved, and executes the swap transactionally.
package rebuild

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"relift/internal/changelog"
	"relift/internal/introspect"
)

// ForeignKeySpec is one foreign-key clause of a rebuild plan. Column
// sequences are ordered.
type ForeignKeySpec struct {
	BaseColumns       []string `json:"baseColumns"`
	ReferencedTable   string   `json:"referencedTable"`
	ReferencedColumns []string `json:"referencedColumns"`
	OnDelete          string   `json:"onDelete,omitempty"`
	OnUpdate          string   `json:"onUpdate,omitempty"`
	Match             string   `json:"match,omitempty"`
}

// EqualByBase reports whether both specs constrain the same base column
// sequence, compared case-insensitively after whitespace trimming.
func (s ForeignKeySpec) EqualByBase(o ForeignKeySpec) bool {
	return equalFold(s.BaseColumns, o.BaseColumns)
}

// EqualByTarget reports whether both specs point at the same referenced
// table and column sequence.
func (s ForeignKeySpec) EqualByTarget(o ForeignKeySpec) bool {
	if !strings.EqualFold(strings.TrimSpace(s.ReferencedTable), strings.TrimSpace(o.ReferencedTable)) {
		return false
	}
	return equalFold(s.ReferencedColumns, o.ReferencedColumns)
}

func equalFold(a, b []string) bool {
	if len(a) == 0 || len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(strings.TrimSpace(a[i]), strings.TrimSpace(b[i])) {
			return false
		}
	}
	return true
}

// Request is the rebuild work for one table: the foreign keys to add and to
// drop, in document order.
type Request struct {
	Table string           `json:"table"`
	Add   []ForeignKeySpec `json:"add,omitempty"`
	Drop  []ForeignKeySpec `json:"drop,omitempty"`
}

// Requests converts extracted foreign-key operations into rebuild requests,
// one per base table, preserving the order in which tables first appeared.
func Requests(ops *changelog.FKOps) []*Request {
	if ops == nil || ops.Empty() {
		return nil
	}

	reqs := make([]*Request, 0, len(ops.Tables))
	for _, table := range ops.Tables {
		req := &Request{Table: table}
		for _, op := range ops.ByTable[table] {
			if op.Add != nil {
				req.Add = append(req.Add, specFromAdd(op.Add))
			} else {
				req.Drop = append(req.Drop, specFromDrop(op.Drop))
			}
		}
		reqs = append(reqs, req)
	}
	return reqs
}

func specFromAdd(c *changelog.AddForeignKey) ForeignKeySpec {
	return ForeignKeySpec{
		BaseColumns:       changelog.SplitColumnNames(c.BaseColumnNames),
		ReferencedTable:   strings.TrimSpace(c.ReferencedTableName),
		ReferencedColumns: changelog.SplitColumnNames(c.ReferencedColumnNames),
		OnDelete:          strings.TrimSpace(c.OnDelete),
		OnUpdate:          strings.TrimSpace(c.OnUpdate),
		Match:             strings.TrimSpace(c.Match),
	}
}

func specFromDrop(c *changelog.DropForeignKey) ForeignKeySpec {
	return ForeignKeySpec{
		BaseColumns:     changelog.SplitColumnNames(c.BaseColumnNames),
		ReferencedTable: strings.TrimSpace(c.ReferencedTableName),
	}
}

// FinalForeignKeys computes the foreign-key set the rebuilt table carries:
// the current set minus every clause matched by a drop (by base columns or
// by target), plus the additions. A later clause with the same base columns
// replaces an earlier one, so the result never holds two clauses over the
// same base sequence.
func FinalForeignKeys(current []introspect.ForeignKey, req *Request) []ForeignKeySpec {
	var final []ForeignKeySpec
	for _, fk := range current {
		spec := ForeignKeySpec{
			BaseColumns:       fk.BaseColumns,
			ReferencedTable:   fk.ReferencedTable,
			ReferencedColumns: fk.ReferencedColumns,
			OnDelete:          normalizeAction(fk.OnDelete),
			OnUpdate:          normalizeAction(fk.OnUpdate),
			Match:             fk.Match,
		}
		if matchesAnyDrop(spec, req.Drop) {
			continue
		}
		final = append(final, spec)
	}

	for _, add := range req.Add {
		kept := final[:0]
		for _, spec := range final {
			if !spec.EqualByBase(add) {
				kept = append(kept, spec)
			}
		}
		final = append(kept, add)
	}
	return final
}

func matchesAnyDrop(spec ForeignKeySpec, drops []ForeignKeySpec) bool {
	for _, drop := range drops {
		if spec.EqualByBase(drop) || spec.EqualByTarget(drop) {
			return true
		}
	}
	return false
}

// normalizeAction hides SQLite's "NO ACTION" default so it is not emitted
// redundantly into the rebuilt definition.
func normalizeAction(action string) string {
	if strings.EqualFold(strings.TrimSpace(action), "NO ACTION") {
		return ""
	}
	return strings.TrimSpace(action)
}

// AutoIncrementColumns returns the columns of the table that carry
// AUTOINCREMENT. SQLite permits it only on a single-column INTEGER primary
// key, and it appears nowhere in pragma output, so detection searches the
// upper-cased raw CREATE statement for the column name and the INTEGER,
// PRIMARY KEY and AUTOINCREMENT keywords.
func AutoIncrementColumns(ts *introspect.TableSchema) []string {
	pk := ts.PrimaryKeyColumns()
	if len(pk) != 1 {
		return nil
	}
	col := pk[0]
	for _, c := range ts.Columns {
		if c.Name == col && !strings.EqualFold(strings.TrimSpace(c.Type), "INTEGER") {
			return nil
		}
	}

	create := strings.ToUpper(ts.CreateSQL)
	if !strings.Contains(create, strings.ToUpper(QuoteIdentifier(col))) &&
		!strings.Contains(create, strings.ToUpper(col)) {
		return nil
	}
	if !strings.Contains(create, "INTEGER") ||
		!strings.Contains(create, "PRIMARY KEY") ||
		!strings.Contains(create, "AUTOINCREMENT") {
		return nil
	}
	return []string{col}
}

// Canonical renders the request deterministically: operations sorted by kind
// and then by their lower-cased base column list. The text is the audit hash
// preimage, so its shape must never change incompatibly.
func (r *Request) Canonical() string {
	var b strings.Builder
	b.WriteString("table ")
	b.WriteString(strings.ToLower(strings.TrimSpace(r.Table)))
	b.WriteByte('\n')

	lines := make([]string, 0, len(r.Add)+len(r.Drop))
	for _, spec := range r.Add {
		lines = append(lines, canonicalOp("add", spec))
	}
	for _, spec := range r.Drop {
		lines = append(lines, canonicalOp("drop", spec))
	}
	sort.Strings(lines)
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func canonicalOp(kind string, spec ForeignKeySpec) string {
	fields := []string{
		kind,
		strings.ToLower(strings.Join(trimAll(spec.BaseColumns), ",")),
		strings.ToLower(strings.TrimSpace(spec.ReferencedTable)),
		strings.ToLower(strings.Join(trimAll(spec.ReferencedColumns), ",")),
		strings.ToUpper(spec.OnDelete),
		strings.ToUpper(spec.OnUpdate),
		strings.ToUpper(spec.Match),
	}
	return strings.Join(fields, "|")
}

func trimAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// CanonicalAll renders a set of requests with tables sorted
// case-insensitively.
func CanonicalAll(reqs []*Request) string {
	sorted := append([]*Request(nil), reqs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].Table) < strings.ToLower(sorted[j].Table)
	})

	var b strings.Builder
	for _, req := range sorted {
		b.WriteString(req.Canonical())
	}
	return b.String()
}

// Hash is the lowercase hex SHA-256 of the canonical serialization; the
// audit store keys applied rebuilds by it.
func (r *Request) Hash() string {
	sum := sha256.Sum256([]byte(r.Canonical()))
	return hex.EncodeToString(sum[:])
}
