// Package lower rewrites a changelog document so that every remaining change
// is executable by SQLite. Unique constraints become unique indexes, data
// type modifications are deferred to a pending report, and change sets that
// target one existing table are guarded with a tableExists precondition.
//
// Foreign-key operations are expected to have been extracted already; they
// are lowered into table rebuilds, not into changelog changes.
package lower

import (
	"strings"

	"relift/internal/changelog"
)

const maxIndexNameLength = 60

// PendingTypeChange records a modifyDataType change that was dropped from
// the plan. SQLite cannot alter a column type in place; the report is
// informational and never applied.
type PendingTypeChange struct {
	Table   string `json:"table"`
	Column  string `json:"column"`
	NewType string `json:"newType"`
}

// Report is the outcome of a lowering pass over one document.
type Report struct {
	Pending []PendingTypeChange
}

// Apply lowers the document in place and returns the report. Change set
// order is preserved; sets whose changes are all lowered away are pruned.
func Apply(doc *changelog.Document) *Report {
	report := &Report{}

	kept := doc.ChangeSets[:0]
	for _, cs := range doc.ChangeSets {
		eligible := lowerChangeSet(cs, report)
		if len(cs.Changes) == 0 {
			continue
		}
		injectPrecondition(cs, eligible)
		kept = append(kept, cs)
	}
	doc.ChangeSets = kept

	return report
}

// lowerChangeSet rewrites the set's changes in place. The returned slice,
// parallel to cs.Changes, marks the changes that participate in the
// single-table precondition heuristic: createTable and addUniqueConstraint
// (observed as the createIndex it was rewritten into) do not.
func lowerChangeSet(cs *changelog.ChangeSet, report *Report) []bool {
	changes := make([]changelog.Change, 0, len(cs.Changes))
	eligible := make([]bool, 0, len(cs.Changes))

	for _, change := range cs.Changes {
		switch c := change.(type) {
		case *changelog.AddUniqueConstraint:
			changes = append(changes, uniqueToIndex(c))
			eligible = append(eligible, false)
			cs.MarkDirty()
		case *changelog.ModifyDataType:
			report.Pending = append(report.Pending, PendingTypeChange{
				Table:   c.TableName,
				Column:  c.ColumnName,
				NewType: c.NewDataType,
			})
			cs.MarkDirty()
		case *changelog.CreateTable:
			changes = append(changes, c)
			eligible = append(eligible, false)
		default:
			changes = append(changes, change)
			eligible = append(eligible, true)
		}
	}

	cs.Changes = changes
	return eligible
}

// uniqueToIndex rewrites addUniqueConstraint into a unique createIndex. The
// index name, when the constraint had none, derives from the table and
// column names.
func uniqueToIndex(c *changelog.AddUniqueConstraint) *changelog.CreateIndex {
	cols := changelog.SplitColumnNames(c.ColumnNames)

	name := strings.TrimSpace(c.ConstraintName)
	if name == "" {
		name = deriveIndexName(c.TableName, cols)
	}

	idx := &changelog.CreateIndex{
		TableName: c.TableName,
		IndexName: name,
		Unique:    true,
	}
	for _, col := range cols {
		idx.Columns = append(idx.Columns, changelog.Column{Name: col})
	}
	return idx
}

func deriveIndexName(table string, cols []string) string {
	raw := table + "_" + strings.Join(cols, "_") + "_uq"

	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		ok := r == '_' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			r = '_'
		}
		b.WriteRune(r)
	}

	name := b.String()
	if len(name) > maxIndexNameLength {
		name = name[:maxIndexNameLength]
	}
	return name
}

// injectPrecondition guards the change set with tableExists when its
// remaining eligible changes reference exactly one table and the set does
// not itself create that table. Existing preconditions are left alone.
func injectPrecondition(cs *changelog.ChangeSet, eligible []bool) {
	if cs.Preconditions != nil {
		return
	}

	table := ""
	for i, change := range cs.Changes {
		if i < len(eligible) && !eligible[i] {
			continue
		}
		target := strings.TrimSpace(change.TargetTable())
		if target == "" {
			continue
		}
		switch {
		case table == "":
			table = target
		case !strings.EqualFold(table, target):
			return // multiple distinct tables, ambiguous
		}
	}
	if table == "" {
		return
	}

	for _, change := range cs.Changes {
		if ct, ok := change.(*changelog.CreateTable); ok && strings.EqualFold(ct.TableName, table) {
			return
		}
	}

	cs.Preconditions = &changelog.Preconditions{
		OnFail:      changelog.DispositionMarkRan,
		OnError:     changelog.DispositionMarkRan,
		TableExists: []string{table},
	}
	cs.MarkDirty()
}
