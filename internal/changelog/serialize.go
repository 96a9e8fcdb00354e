package changelog

import (
	"strings"
)

// Serialization indent levels. Untouched change sets are emitted verbatim;
// these apply to content rebuilt from typed form.
const (
	itemIndent   = 2  // "- changeSet:"
	bodyIndent   = 6  // changeset mapping keys
	changeIndent = 8  // "- createTable:"
	fieldIndent  = 12 // change mapping keys
	columnIndent = 14 // "- column:"
	colFieldBase = 18 // column mapping keys
)

// Serialize renders the document back into its line-oriented block format.
// Change sets that were not mutated since parsing are emitted byte-identical
// to their source lines.
func (d *Document) Serialize() []byte {
	var b strings.Builder

	for _, line := range d.Header {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(rootKey)
	b.WriteByte('\n')

	for _, cs := range d.ChangeSets {
		if !cs.Dirty() {
			for _, line := range cs.raw {
				b.WriteString(line)
				b.WriteByte('\n')
			}
			continue
		}
		emitChangeSet(&b, cs)
	}

	return []byte(b.String())
}

func emitChangeSet(b *strings.Builder, cs *ChangeSet) {
	writeLine(b, itemIndent, "- changeSet:")
	writeLine(b, bodyIndent, "id: "+quote(cs.ID))
	writeLine(b, bodyIndent, "author: "+quote(cs.Author))
	if cs.Labels != "" {
		writeLine(b, bodyIndent, "labels: "+quote(cs.Labels))
	}
	for _, line := range reindent(cs.attrs, bodyIndent) {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if cs.Preconditions != nil {
		emitPreconditions(b, cs.Preconditions)
	}
	writeLine(b, bodyIndent, "changes:")
	for _, change := range cs.Changes {
		if raw := change.RawLines(); raw != nil {
			for _, line := range reindent(raw, changeIndent) {
				b.WriteString(line)
				b.WriteByte('\n')
			}
			continue
		}
		emitChange(b, change)
	}
}

func emitPreconditions(b *strings.Builder, pre *Preconditions) {
	if pre.raw != nil {
		for _, line := range reindent(pre.raw, bodyIndent) {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		return
	}
	writeLine(b, bodyIndent, "preConditions:")
	writeLine(b, bodyIndent+2, "onFail: "+pre.OnFail)
	writeLine(b, bodyIndent+2, "onError: "+pre.OnError)
	writeLine(b, bodyIndent+2, "and:")
	for _, table := range pre.TableExists {
		writeLine(b, bodyIndent+4, "- tableExists:")
		writeLine(b, bodyIndent+8, "tableName: '"+strings.ReplaceAll(table, "'", "''")+"'")
	}
}

func emitChange(b *strings.Builder, change Change) {
	writeLine(b, changeIndent, "- "+change.ChangeKind()+":")

	field := func(key, val string) {
		writeLine(b, fieldIndent, key+": "+quote(val))
	}
	optField := func(key, val string) {
		if val != "" {
			field(key, val)
		}
	}

	switch c := change.(type) {
	case *CreateTable:
		field("tableName", c.TableName)
		emitColumns(b, c.Columns, true)
	case *AddColumn:
		field("tableName", c.TableName)
		emitColumns(b, c.Columns, true)
	case *DropColumn:
		field("tableName", c.TableName)
		field("columnName", c.ColumnName)
	case *AddForeignKey:
		field("baseTableName", c.BaseTableName)
		field("baseColumnNames", c.BaseColumnNames)
		field("referencedTableName", c.ReferencedTableName)
		field("referencedColumnNames", c.ReferencedColumnNames)
		optField("constraintName", c.ConstraintName)
		optField("onDelete", c.OnDelete)
		optField("onUpdate", c.OnUpdate)
		optField("match", c.Match)
	case *DropForeignKey:
		field("baseTableName", c.BaseTableName)
		optField("constraintName", c.ConstraintName)
		optField("baseColumnNames", c.BaseColumnNames)
		optField("referencedTableName", c.ReferencedTableName)
	case *AddUniqueConstraint:
		field("tableName", c.TableName)
		field("columnNames", c.ColumnNames)
		optField("constraintName", c.ConstraintName)
	case *ModifyDataType:
		field("tableName", c.TableName)
		field("columnName", c.ColumnName)
		field("newDataType", c.NewDataType)
	case *CreateIndex:
		field("tableName", c.TableName)
		field("indexName", c.IndexName)
		if c.Unique {
			writeLine(b, fieldIndent, "unique: true")
		}
		emitColumns(b, c.Columns, false)
	case *SQLChange:
		field("sql", c.SQL)
	case *RawChange:
		// Raw changes always carry their source lines; a synthesized one
		// would have nothing to emit beyond its kind.
	}
}

func emitColumns(b *strings.Builder, cols []Column, withTypes bool) {
	if len(cols) == 0 {
		return
	}
	writeLine(b, fieldIndent, "columns:")
	for _, col := range cols {
		writeLine(b, columnIndent, "- column:")
		writeLine(b, colFieldBase, "name: "+quote(col.Name))
		if withTypes && col.Type != "" {
			writeLine(b, colFieldBase, "type: "+quote(col.Type))
		}
		if col.DefaultValue != "" {
			writeLine(b, colFieldBase, "defaultValue: "+quote(col.DefaultValue))
		}
		if col.PrimaryKey || col.Nullable != nil {
			writeLine(b, colFieldBase, "constraints:")
			if col.PrimaryKey {
				writeLine(b, colFieldBase+2, "primaryKey: true")
			}
			if col.Nullable != nil {
				writeLine(b, colFieldBase+2, "nullable: "+boolString(*col.Nullable))
			}
		}
	}
}

func writeLine(b *strings.Builder, indent int, content string) {
	b.WriteString(strings.Repeat(" ", indent))
	b.WriteString(content)
	b.WriteByte('\n')
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// reindent shifts a captured raw block so its first line lands at the target
// indentation, preserving the block's internal structure.
func reindent(lines []string, target int) []string {
	if len(lines) == 0 {
		return nil
	}
	base := -1
	for _, line := range lines {
		if !isBlank(line) {
			base = len(line) - len(strings.TrimLeft(line, " "))
			break
		}
	}
	if base == -1 || base == target {
		return lines
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if isBlank(line) {
			out[i] = line
			continue
		}
		ind := len(line) - len(strings.TrimLeft(line, " "))
		shifted := ind - base + target
		if shifted < 0 {
			shifted = 0
		}
		out[i] = strings.Repeat(" ", shifted) + strings.TrimLeft(line, " ")
	}
	return out
}

// quote wraps a scalar in single quotes when it would not survive a plain
// write: empty values, values with whitespace or colons, or values starting
// with a character the parser treats specially.
func quote(v string) string {
	if !needsQuote(v) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

func needsQuote(v string) bool {
	if v == "" {
		return true
	}
	if strings.ContainsAny(v, " \t:") {
		return true
	}
	switch v[0] {
	case '-', '?', '#', '&', '*', '!', '|', '>', '\'', '"', '%', '@', '`', '[', ']', '{', '}', ',':
		return true
	}
	return false
}
