package changelog

import "strings"

// FKOp is a single foreign-key operation lifted out of a document. Exactly
// one of Add or Drop is set.
type FKOp struct {
	Add  *AddForeignKey
	Drop *DropForeignKey
}

// BaseTable returns the operation's base table name.
func (op FKOp) BaseTable() string {
	if op.Add != nil {
		return op.Add.BaseTableName
	}
	return op.Drop.BaseTableName
}

// FKOps holds the foreign-key operations extracted from a document, grouped
// by base table. Tables lists base tables in order of first appearance;
// within a table, operations keep their document order.
type FKOps struct {
	Tables  []string
	ByTable map[string][]FKOp
}

// Empty reports whether no operations were extracted.
func (f *FKOps) Empty() bool { return len(f.Tables) == 0 }

// ExtractForeignKeyOps removes every addForeignKeyConstraint and
// dropForeignKeyConstraint change from the document and returns them grouped
// by base table. Change sets left without changes are pruned. Grouping keys
// are case-insensitive so mixed-case references to one table land in one
// bucket under the first-seen spelling.
func ExtractForeignKeyOps(doc *Document) *FKOps {
	ops := &FKOps{ByTable: map[string][]FKOp{}}
	keyFor := map[string]string{}

	add := func(table string, op FKOp) {
		lower := strings.ToLower(strings.TrimSpace(table))
		key, ok := keyFor[lower]
		if !ok {
			key = strings.TrimSpace(table)
			keyFor[lower] = key
			ops.Tables = append(ops.Tables, key)
		}
		ops.ByTable[key] = append(ops.ByTable[key], op)
	}

	kept := doc.ChangeSets[:0]
	for _, cs := range doc.ChangeSets {
		changes := cs.Changes[:0]
		for _, change := range cs.Changes {
			switch c := change.(type) {
			case *AddForeignKey:
				add(c.BaseTableName, FKOp{Add: c})
				cs.MarkDirty()
			case *DropForeignKey:
				add(c.BaseTableName, FKOp{Drop: c})
				cs.MarkDirty()
			default:
				changes = append(changes, change)
			}
		}
		cs.Changes = changes
		if len(cs.Changes) > 0 {
			kept = append(kept, cs)
		}
	}
	doc.ChangeSets = kept

	return ops
}
