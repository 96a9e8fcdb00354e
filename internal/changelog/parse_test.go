package changelog

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - createTable:
            tableName: parent
            columns:
              - column:
                  name: id
                  type: INTEGER
                  constraints:
                    primaryKey: true
  - changeSet:
      id: '2'
      author: generated
      changes:
        - addForeignKeyConstraint:
            baseTableName: child
            baseColumnNames: parent_id
            referencedTableName: parent
            referencedColumnNames: id
            constraintName: fk_child_parent
        - dropColumn:
            tableName: child
            columnName: legacy_flag
`

func TestParseTypedChanges(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.Len(t, doc.ChangeSets, 2)

	first := doc.ChangeSets[0]
	assert.Equal(t, "1", first.ID)
	assert.Equal(t, "generated", first.Author)
	require.Len(t, first.Changes, 1)

	ct, ok := first.Changes[0].(*CreateTable)
	require.True(t, ok)
	assert.Equal(t, "parent", ct.TableName)
	require.Len(t, ct.Columns, 1)
	assert.Equal(t, "id", ct.Columns[0].Name)
	assert.Equal(t, "INTEGER", ct.Columns[0].Type)
	assert.True(t, ct.Columns[0].PrimaryKey)

	second := doc.ChangeSets[1]
	require.Len(t, second.Changes, 2)

	fk, ok := second.Changes[0].(*AddForeignKey)
	require.True(t, ok)
	assert.Equal(t, "child", fk.BaseTableName)
	assert.Equal(t, "parent_id", fk.BaseColumnNames)
	assert.Equal(t, "parent", fk.ReferencedTableName)
	assert.Equal(t, "id", fk.ReferencedColumnNames)
	assert.Equal(t, "fk_child_parent", fk.ConstraintName)

	dc, ok := second.Changes[1].(*DropColumn)
	require.True(t, ok)
	assert.Equal(t, "child", dc.TableName)
	assert.Equal(t, "legacy_flag", dc.ColumnName)
}

func TestRoundTripByteIdentical(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	assert.Equal(t, sampleDoc, string(doc.Serialize()))
}

func TestRoundTripPreservesUnknownBlocks(t *testing.T) {
	input := `databaseChangeLog:
  - changeSet:
      id: '9'
      author: generated
      changes:
        - renameSequence:
            oldSequenceName: seq_a
            newSequenceName: seq_b
            extraNested:
              deep: value
`
	doc, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, doc.ChangeSets, 1)

	raw, ok := doc.ChangeSets[0].Changes[0].(*RawChange)
	require.True(t, ok)
	assert.Equal(t, "renameSequence", raw.Kind)

	assert.Equal(t, input, string(doc.Serialize()))
}

func TestRoundTripPreservesHeaderAndQuoting(t *testing.T) {
	input := `# generated by the schema differ
databaseChangeLog:
  - changeSet:
      id: "42"
      author: 'jane doe'
      changes:
        - sql:
            sql: 'UPDATE t SET a = 1 WHERE b = 2'
`
	doc, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "42", doc.ChangeSets[0].ID)
	assert.Equal(t, "jane doe", doc.ChangeSets[0].Author)

	sqlChange, ok := doc.ChangeSets[0].Changes[0].(*SQLChange)
	require.True(t, ok)
	assert.Equal(t, "UPDATE t SET a = 1 WHERE b = 2", sqlChange.SQL)

	assert.Equal(t, input, string(doc.Serialize()))
}

func TestParseDuplicateKeyFails(t *testing.T) {
	input := `databaseChangeLog:
  - changeSet:
      id: '1'
      id: '2'
      author: generated
      changes:
        - dropColumn:
            tableName: t
            columnName: c
`
	_, err := Parse(strings.NewReader(input))
	var malformedErr *MalformedDocumentError
	require.ErrorAs(t, err, &malformedErr)
	assert.Contains(t, malformedErr.Reason, "duplicate key")
}

func TestParseDuplicateChangeFieldFails(t *testing.T) {
	input := `databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - dropColumn:
            tableName: t
            tableName: u
            columnName: c
`
	_, err := Parse(strings.NewReader(input))
	var malformedErr *MalformedDocumentError
	require.ErrorAs(t, err, &malformedErr)
}

func TestParseIndentationCollapseFails(t *testing.T) {
	input := `databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - dropColumn:
            tableName: t
          columnName: c
`
	_, err := Parse(strings.NewReader(input))
	var malformedErr *MalformedDocumentError
	require.ErrorAs(t, err, &malformedErr)
	assert.Contains(t, malformedErr.Reason, "indentation")
}

func TestParseMissingRootKeyFails(t *testing.T) {
	_, err := Parse(strings.NewReader("changes:\n  - foo\n"))
	var malformedErr *MalformedDocumentError
	require.True(t, errors.As(err, &malformedErr))
}

func TestParseTabIndentFails(t *testing.T) {
	input := "databaseChangeLog:\n\t- changeSet:\n"
	_, err := Parse(strings.NewReader(input))
	var malformedErr *MalformedDocumentError
	require.ErrorAs(t, err, &malformedErr)
	assert.Contains(t, malformedErr.Reason, "tab")
}

func TestUnquote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"'single'", "single"},
		{`"double"`, "double"},
		{"'it''s quoted'", "it's quoted"},
		{"'", "'"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unquote(tt.in), "unquote(%q)", tt.in)
	}
}

func TestQuoteOnWrite(t *testing.T) {
	assert.Equal(t, "plain_value", quote("plain_value"))
	assert.Equal(t, "'has space'", quote("has space"))
	assert.Equal(t, "'key: value'", quote("key: value"))
	assert.Equal(t, "'-leading'", quote("-leading"))
	assert.Equal(t, "''", quote(""))
	assert.Equal(t, "it's", quote("it's"))
}

func TestSplitColumnNames(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitColumnNames(" a, b ,c "))
	assert.Nil(t, SplitColumnNames(""))
	assert.Equal(t, []string{"one"}, SplitColumnNames("one"))
}
