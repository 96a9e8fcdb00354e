// Package changelog contains the typed representation of a changelog
// document: an ordered list of change sets, each holding an ordered list of
// change operations. It provides a parser and a serializer for the
// line-oriented block format the upstream diff producer emits.
//
// Change kinds the rest of the toolchain rewrites are parsed into typed
// payloads; everything else is kept as an opaque block so an untouched
// document round-trips byte-identically.
package changelog

import "strings"

// Document is an ordered sequence of change sets, plus any raw header lines
// that preceded the databaseChangeLog key in the source.
type Document struct {
	Header     []string
	ChangeSets []*ChangeSet
}

// ChangeSet is an atomic, ordered unit of schema changes with an identity.
type ChangeSet struct {
	ID     string
	Author string
	Labels string

	Preconditions *Preconditions
	Changes       []Change

	// attrs holds changeset-level lines this package does not interpret
	// (runInTransaction, context, ...), verbatim.
	attrs []string
	// raw is the original block including the leading "- changeSet:" line.
	// A change set with raw lines and dirty == false serializes verbatim.
	raw   []string
	dirty bool
}

// MarkDirty forces the change set to be re-serialized from its typed form
// instead of its original raw lines.
func (cs *ChangeSet) MarkDirty() { cs.dirty = true }

// Dirty reports whether the change set was mutated since parsing.
func (cs *ChangeSet) Dirty() bool { return cs.dirty || cs.raw == nil }

// Preconditions guards execution of a change set.
type Preconditions struct {
	OnFail      string
	OnError     string
	TableExists []string

	raw []string
}

// DispositionMarkRan marks the change set as ran without executing it when a
// precondition fails or errors.
const DispositionMarkRan = "MARK_RAN"

// Column describes one column of a createTable / addColumn / createIndex
// change.
type Column struct {
	Name         string
	Type         string
	DefaultValue string
	Nullable     *bool
	PrimaryKey   bool
}

// Change is one schema change operation inside a change set. Recognized
// kinds have a concrete payload type; anything else is a RawChange.
type Change interface {
	// ChangeKind returns the operation key, e.g. "createTable".
	ChangeKind() string
	// RawLines returns the original lines of the change entry, or nil for
	// changes synthesized after parsing.
	RawLines() []string
	// TargetTable returns the table the change operates on, or "" when the
	// change has no single identifiable table.
	TargetTable() string
}

// CreateTable is the createTable change.
type CreateTable struct {
	TableName string
	Columns   []Column

	raw []string
}

func (c *CreateTable) ChangeKind() string  { return "createTable" }
func (c *CreateTable) RawLines() []string  { return c.raw }
func (c *CreateTable) TargetTable() string { return c.TableName }

// AddColumn is the addColumn change.
type AddColumn struct {
	TableName string
	Columns   []Column

	raw []string
}

func (c *AddColumn) ChangeKind() string  { return "addColumn" }
func (c *AddColumn) RawLines() []string  { return c.raw }
func (c *AddColumn) TargetTable() string { return c.TableName }

// DropColumn is the dropColumn change.
type DropColumn struct {
	TableName  string
	ColumnName string

	raw []string
}

func (c *DropColumn) ChangeKind() string  { return "dropColumn" }
func (c *DropColumn) RawLines() []string  { return c.raw }
func (c *DropColumn) TargetTable() string { return c.TableName }

// AddForeignKey is the addForeignKeyConstraint change. Column name lists are
// comma-separated, as in the source document.
type AddForeignKey struct {
	BaseTableName         string
	BaseColumnNames       string
	ReferencedTableName   string
	ReferencedColumnNames string
	ConstraintName        string
	OnDelete              string
	OnUpdate              string
	Match                 string

	raw []string
}

func (c *AddForeignKey) ChangeKind() string  { return "addForeignKeyConstraint" }
func (c *AddForeignKey) RawLines() []string  { return c.raw }
func (c *AddForeignKey) TargetTable() string { return c.BaseTableName }

// SetConstraintName assigns a constraint name and drops the source lines so
// the change is re-serialized from its typed form.
func (c *AddForeignKey) SetConstraintName(name string) {
	c.ConstraintName = name
	c.raw = nil
}

// DropForeignKey is the dropForeignKeyConstraint change.
type DropForeignKey struct {
	BaseTableName       string
	ConstraintName      string
	BaseColumnNames     string
	ReferencedTableName string

	raw []string
}

func (c *DropForeignKey) ChangeKind() string  { return "dropForeignKeyConstraint" }
func (c *DropForeignKey) RawLines() []string  { return c.raw }
func (c *DropForeignKey) TargetTable() string { return c.BaseTableName }

// SetConstraintName assigns a constraint name and drops the source lines so
// the change is re-serialized from its typed form.
func (c *DropForeignKey) SetConstraintName(name string) {
	c.ConstraintName = name
	c.raw = nil
}

// AddUniqueConstraint is the addUniqueConstraint change.
type AddUniqueConstraint struct {
	TableName      string
	ColumnNames    string
	ConstraintName string

	raw []string
}

func (c *AddUniqueConstraint) ChangeKind() string  { return "addUniqueConstraint" }
func (c *AddUniqueConstraint) RawLines() []string  { return c.raw }
func (c *AddUniqueConstraint) TargetTable() string { return c.TableName }

// ModifyDataType is the modifyDataType change.
type ModifyDataType struct {
	TableName   string
	ColumnName  string
	NewDataType string

	raw []string
}

func (c *ModifyDataType) ChangeKind() string  { return "modifyDataType" }
func (c *ModifyDataType) RawLines() []string  { return c.raw }
func (c *ModifyDataType) TargetTable() string { return c.TableName }

// CreateIndex is the createIndex change.
type CreateIndex struct {
	TableName string
	IndexName string
	Unique    bool
	Columns   []Column

	raw []string
}

func (c *CreateIndex) ChangeKind() string  { return "createIndex" }
func (c *CreateIndex) RawLines() []string  { return c.raw }
func (c *CreateIndex) TargetTable() string { return c.TableName }

// SQLChange is the raw sql passthrough change.
type SQLChange struct {
	SQL string

	raw []string
}

func (c *SQLChange) ChangeKind() string  { return "sql" }
func (c *SQLChange) RawLines() []string  { return c.raw }
func (c *SQLChange) TargetTable() string { return "" }

// RawChange is any change kind this package does not interpret. The block is
// preserved verbatim; tableName is peeked from the fields so the lowering
// pass can still reason about the change's target.
type RawChange struct {
	Kind      string
	TableName string

	raw []string
}

func (c *RawChange) ChangeKind() string  { return c.Kind }
func (c *RawChange) RawLines() []string  { return c.raw }
func (c *RawChange) TargetTable() string { return c.TableName }

// SplitColumnNames splits a comma-separated column name list, trimming
// whitespace around each name and dropping empties.
func SplitColumnNames(list string) []string {
	var out []string
	for part := range strings.SplitSeq(list, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
