package changelog

import (
	"fmt"
	"io"
	"os"
	"strings"
)

const rootKey = "databaseChangeLog:"

// ParseFile opens the file at the given path and parses it as a changelog
// document.
func ParseFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("changelog: open file %q: %w", path, err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads a changelog document from reader. The document uses the
// line-oriented block format with two-space indentation described by the
// input contract; scalar values may be single- or double-quoted.
func Parse(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("changelog: read input: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	// A trailing newline yields one empty trailing element; drop it so the
	// serializer can re-append a single final newline.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	p := &parser{lines: lines}
	return p.parse()
}

type parser struct {
	lines []string
}

func (p *parser) parse() (*Document, error) {
	doc := &Document{}

	i := 0
	for ; i < len(p.lines); i++ {
		trimmed := strings.TrimRight(p.lines[i], " ")
		if trimmed == rootKey {
			break
		}
		doc.Header = append(doc.Header, p.lines[i])
	}
	if i == len(p.lines) {
		return nil, malformed(1, "missing %q key", "databaseChangeLog")
	}

	i++
	itemIndent := -1
	for i < len(p.lines) {
		line := p.lines[i]
		if isBlank(line) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return nil, err
		}
		if ind == 0 {
			return nil, malformed(i+1, "unexpected top-level content after changelog items")
		}
		if itemIndent == -1 {
			itemIndent = ind
		} else if ind != itemIndent {
			return nil, malformed(i+1, "indentation collapses mid-block: got %d spaces, want %d", ind, itemIndent)
		}

		rest := strings.TrimPrefix(line[ind:], "- ")
		if rest == line[ind:] {
			return nil, malformed(i+1, "expected a sequence item under %q", "databaseChangeLog")
		}
		if strings.TrimRight(rest, " ") != "changeSet:" {
			return nil, malformed(i+1, "expected a changeSet item, got %q", strings.TrimRight(rest, " "))
		}

		end, err := p.blockEnd(i+1, itemIndent)
		if err != nil {
			return nil, err
		}
		cs, err := p.parseChangeSet(i, end)
		if err != nil {
			return nil, err
		}
		doc.ChangeSets = append(doc.ChangeSets, cs)
		i = end
	}

	return doc, nil
}

// indentOf counts the leading spaces of line i. Tab indentation is rejected.
func (p *parser) indentOf(i int) (int, error) {
	line := p.lines[i]
	for j := 0; j < len(line); j++ {
		switch line[j] {
		case ' ':
		case '\t':
			return 0, malformed(i+1, "tab indentation is not allowed")
		default:
			return j, nil
		}
	}
	return len(line), nil
}

// blockEnd returns the index of the first non-blank line at or after start
// whose indentation is <= indent, i.e. the exclusive end of the nested block
// opened before start.
func (p *parser) blockEnd(start, indent int) (int, error) {
	i := start
	for i < len(p.lines) {
		if isBlank(p.lines[i]) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return 0, err
		}
		if ind <= indent {
			return i, nil
		}
		i++
	}
	return len(p.lines), nil
}

func (p *parser) parseChangeSet(start, end int) (*ChangeSet, error) {
	cs := &ChangeSet{raw: p.lines[start:end]}

	bodyIndent := -1
	seen := map[string]int{}
	i := start + 1
	for i < end {
		if isBlank(p.lines[i]) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return nil, err
		}
		if bodyIndent == -1 {
			bodyIndent = ind
		} else if ind != bodyIndent {
			return nil, malformed(i+1, "indentation collapses mid-block: got %d spaces, want %d", ind, bodyIndent)
		}

		key, val, err := p.splitKeyValue(i)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[key]; dup {
			return nil, malformed(i+1, "duplicate key %q (first seen on line %d)", key, prev)
		}
		seen[key] = i + 1

		nested, err := p.blockEnd(i+1, bodyIndent)
		if err != nil {
			return nil, err
		}

		switch key {
		case "id", "author", "labels":
			if p.hasContent(i+1, nested) {
				return nil, malformed(i+2, "unexpected nested block under scalar key %q", key)
			}
			switch key {
			case "id":
				cs.ID = val
			case "author":
				cs.Author = val
			case "labels":
				cs.Labels = val
			}
		case "preConditions":
			pre, err := p.parsePreconditions(i, nested)
			if err != nil {
				return nil, err
			}
			cs.Preconditions = pre
		case "changes":
			changes, err := p.parseChanges(i+1, nested)
			if err != nil {
				return nil, err
			}
			cs.Changes = changes
		default:
			cs.attrs = append(cs.attrs, p.lines[i:nested]...)
		}
		i = nested
	}

	return cs, nil
}

// parsePreconditions captures the block verbatim and extracts the fields the
// engine cares about; anything else rides along in the raw lines.
func (p *parser) parsePreconditions(start, end int) (*Preconditions, error) {
	pre := &Preconditions{raw: p.lines[start:end]}
	for i := start + 1; i < end; i++ {
		if isBlank(p.lines[i]) {
			continue
		}
		trimmed := strings.TrimSpace(p.lines[i])
		trimmed = strings.TrimPrefix(trimmed, "- ")
		key, val, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}
		val = unquote(strings.TrimSpace(val))
		switch key {
		case "onFail":
			pre.OnFail = val
		case "onError":
			pre.OnError = val
		case "tableName":
			if val != "" {
				pre.TableExists = append(pre.TableExists, val)
			}
		}
	}
	return pre, nil
}

func (p *parser) parseChanges(start, end int) ([]Change, error) {
	var changes []Change

	itemIndent := -1
	i := start
	for i < end {
		if isBlank(p.lines[i]) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return nil, err
		}
		if itemIndent == -1 {
			itemIndent = ind
		} else if ind != itemIndent {
			return nil, malformed(i+1, "indentation collapses mid-block: got %d spaces, want %d", ind, itemIndent)
		}

		rest := strings.TrimPrefix(p.lines[i][ind:], "- ")
		if rest == p.lines[i][ind:] {
			return nil, malformed(i+1, "expected a change item")
		}
		kind, _, ok := strings.Cut(strings.TrimRight(rest, " "), ":")
		if !ok || kind == "" {
			return nil, malformed(i+1, "change item is not a single-key mapping")
		}

		nested, err := p.blockEnd(i+1, itemIndent)
		if err != nil {
			return nil, err
		}
		change, err := p.parseChange(kind, i, nested)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
		i = nested
	}

	return changes, nil
}

func (p *parser) parseChange(kind string, start, end int) (Change, error) {
	raw := p.lines[start:end]
	fields, cols, err := p.parseFields(start+1, end)
	if err != nil {
		return nil, err
	}

	switch kind {
	case "createTable":
		return &CreateTable{TableName: fields["tableName"], Columns: cols, raw: raw}, nil
	case "addColumn":
		return &AddColumn{TableName: fields["tableName"], Columns: cols, raw: raw}, nil
	case "dropColumn":
		return &DropColumn{TableName: fields["tableName"], ColumnName: fields["columnName"], raw: raw}, nil
	case "addForeignKeyConstraint":
		return &AddForeignKey{
			BaseTableName:         fields["baseTableName"],
			BaseColumnNames:       fields["baseColumnNames"],
			ReferencedTableName:   fields["referencedTableName"],
			ReferencedColumnNames: fields["referencedColumnNames"],
			ConstraintName:        fields["constraintName"],
			OnDelete:              fields["onDelete"],
			OnUpdate:              fields["onUpdate"],
			Match:                 fields["match"],
			raw:                   raw,
		}, nil
	case "dropForeignKeyConstraint":
		return &DropForeignKey{
			BaseTableName:       fields["baseTableName"],
			ConstraintName:      fields["constraintName"],
			BaseColumnNames:     fields["baseColumnNames"],
			ReferencedTableName: fields["referencedTableName"],
			raw:                 raw,
		}, nil
	case "addUniqueConstraint":
		return &AddUniqueConstraint{
			TableName:      fields["tableName"],
			ColumnNames:    fields["columnNames"],
			ConstraintName: fields["constraintName"],
			raw:            raw,
		}, nil
	case "modifyDataType":
		return &ModifyDataType{
			TableName:   fields["tableName"],
			ColumnName:  fields["columnName"],
			NewDataType: fields["newDataType"],
			raw:         raw,
		}, nil
	case "createIndex":
		return &CreateIndex{
			TableName: fields["tableName"],
			IndexName: fields["indexName"],
			Unique:    strings.EqualFold(fields["unique"], "true"),
			Columns:   cols,
			raw:       raw,
		}, nil
	case "sql":
		return &SQLChange{SQL: fields["sql"], raw: raw}, nil
	default:
		return &RawChange{Kind: kind, TableName: fields["tableName"], raw: raw}, nil
	}
}

// parseFields reads the scalar fields of a change block into a map and
// parses any columns sequence. Nested blocks under keys other than columns
// are skipped but retained via the caller's raw slice.
func (p *parser) parseFields(start, end int) (map[string]string, []Column, error) {
	fields := map[string]string{}
	var cols []Column
	seen := map[string]int{}

	fieldIndent := -1
	i := start
	for i < end {
		if isBlank(p.lines[i]) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return nil, nil, err
		}
		if fieldIndent == -1 {
			fieldIndent = ind
		} else if ind != fieldIndent {
			return nil, nil, malformed(i+1, "indentation collapses mid-block: got %d spaces, want %d", ind, fieldIndent)
		}

		key, val, err := p.splitKeyValue(i)
		if err != nil {
			return nil, nil, err
		}
		if prev, dup := seen[key]; dup {
			return nil, nil, malformed(i+1, "duplicate key %q (first seen on line %d)", key, prev)
		}
		seen[key] = i + 1

		nested, err := p.blockEnd(i+1, fieldIndent)
		if err != nil {
			return nil, nil, err
		}
		if key == "columns" {
			cols, err = p.parseColumns(i+1, nested)
			if err != nil {
				return nil, nil, err
			}
		} else {
			fields[key] = val
		}
		i = nested
	}

	return fields, cols, nil
}

func (p *parser) parseColumns(start, end int) ([]Column, error) {
	var cols []Column

	itemIndent := -1
	i := start
	for i < end {
		if isBlank(p.lines[i]) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return nil, err
		}
		if itemIndent == -1 {
			itemIndent = ind
		} else if ind != itemIndent {
			return nil, malformed(i+1, "indentation collapses mid-block: got %d spaces, want %d", ind, itemIndent)
		}
		rest := strings.TrimPrefix(p.lines[i][ind:], "- ")
		if rest == p.lines[i][ind:] || strings.TrimRight(rest, " ") != "column:" {
			return nil, malformed(i+1, "expected a column item")
		}

		nested, err := p.blockEnd(i+1, itemIndent)
		if err != nil {
			return nil, err
		}
		col, err := p.parseColumn(i+1, nested)
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
		i = nested
	}

	return cols, nil
}

func (p *parser) parseColumn(start, end int) (Column, error) {
	var col Column
	seen := map[string]int{}

	fieldIndent := -1
	i := start
	for i < end {
		if isBlank(p.lines[i]) {
			i++
			continue
		}
		ind, err := p.indentOf(i)
		if err != nil {
			return col, err
		}
		if fieldIndent == -1 {
			fieldIndent = ind
		} else if ind != fieldIndent {
			return col, malformed(i+1, "indentation collapses mid-block: got %d spaces, want %d", ind, fieldIndent)
		}

		key, val, err := p.splitKeyValue(i)
		if err != nil {
			return col, err
		}
		if prev, dup := seen[key]; dup {
			return col, malformed(i+1, "duplicate key %q (first seen on line %d)", key, prev)
		}
		seen[key] = i + 1

		nested, err := p.blockEnd(i+1, fieldIndent)
		if err != nil {
			return col, err
		}

		switch key {
		case "name":
			col.Name = val
		case "type":
			col.Type = val
		case "defaultValue", "defaultValueNumeric", "defaultValueComputed":
			col.DefaultValue = val
		case "constraints":
			if err := p.parseColumnConstraints(&col, i+1, nested); err != nil {
				return col, err
			}
		}
		i = nested
	}

	return col, nil
}

func (p *parser) parseColumnConstraints(col *Column, start, end int) error {
	for i := start; i < end; i++ {
		if isBlank(p.lines[i]) {
			continue
		}
		key, val, err := p.splitKeyValue(i)
		if err != nil {
			return err
		}
		switch key {
		case "primaryKey":
			col.PrimaryKey = strings.EqualFold(val, "true")
		case "nullable":
			nullable := strings.EqualFold(val, "true")
			col.Nullable = &nullable
		}
	}
	return nil
}

// splitKeyValue splits "key: value" at line i, trimming the sequence-item
// dash if present and unquoting the value.
func (p *parser) splitKeyValue(i int) (string, string, error) {
	trimmed := strings.TrimSpace(p.lines[i])
	trimmed = strings.TrimPrefix(trimmed, "- ")
	key, val, ok := strings.Cut(trimmed, ":")
	if !ok {
		return "", "", malformed(i+1, "expected a %q mapping entry", "key: value")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", malformed(i+1, "empty mapping key")
	}
	return key, unquote(strings.TrimSpace(val)), nil
}

func isBlank(line string) bool { return strings.TrimSpace(line) == "" }

// hasContent reports whether any line in [start, end) is non-blank.
func (p *parser) hasContent(start, end int) bool {
	for i := start; i < end && i < len(p.lines); i++ {
		if !isBlank(p.lines[i]) {
			return true
		}
	}
	return false
}

// unquote strips one level of surrounding single or double quotes. Doubled
// single quotes inside a single-quoted scalar collapse to one.
func unquote(v string) string {
	if len(v) < 2 {
		return v
	}
	switch {
	case v[0] == '\'' && v[len(v)-1] == '\'':
		return strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	case v[0] == '"' && v[len(v)-1] == '"':
		return v[1 : len(v)-1]
	}
	return v
}
