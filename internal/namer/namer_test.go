package namer

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relift/internal/changelog"
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]{1,60}$`)

func TestNameWithReferencedTable(t *testing.T) {
	got := Name("child", "parent_id", "parent")
	assert.Equal(t, "fk_child_parent_id__parent", got)
}

func TestNameMultipleColumns(t *testing.T) {
	got := Name("order_item", "order_id, product_id", "orders")
	assert.Equal(t, "fk_order_item_order_id_product_id__orders", got)
}

func TestNameFallbacks(t *testing.T) {
	// No columns, no referenced table.
	assert.Equal(t, "fk_revision_punishment_col", Name("revision_punishment", "", ""))
	// No base table either.
	assert.Equal(t, "fk_table_col", Name("", "", ""))
}

func TestNameDeterministicAndBounded(t *testing.T) {
	inputs := []struct{ table, cols, ref string }{
		{"child", "parent_id", "parent"},
		{"UPPER-case.Table", "Weird Col, other", "Ref!Table"},
		{strings.Repeat("very_long_table_name_", 5), "a,b,c", strings.Repeat("ref", 30)},
		{"", "", ""},
		{"日本語", "col", ""},
	}
	for _, in := range inputs {
		first := Name(in.table, in.cols, in.ref)
		second := Name(in.table, in.cols, in.ref)
		assert.Equal(t, first, second)
		assert.Regexp(t, namePattern, first)
		assert.False(t, strings.HasPrefix(first, "_"))
	}
}

func TestSlug(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Simple", "simple"},
		{"two words", "two_words"},
		{"a--b..c", "a_b_c"},
		{"___leading", "leading"},
		{"!!!", "v"},
		{"", "v"},
		{"Mixed_OK_123", "mixed_ok_123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), "Slug(%q)", tt.in)
	}
}

func TestApplyNamesAnonymousOperations(t *testing.T) {
	input := `databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - dropForeignKeyConstraint:
            baseTableName: revision_punishment
        - addForeignKeyConstraint:
            baseTableName: child
            baseColumnNames: parent_id
            referencedTableName: parent
            referencedColumnNames: id
            constraintName: fk_keep_me
`
	doc, err := changelog.Parse(strings.NewReader(input))
	require.NoError(t, err)

	Apply(doc)

	drop := doc.ChangeSets[0].Changes[0].(*changelog.DropForeignKey)
	assert.Equal(t, "fk_revision_punishment_col", drop.ConstraintName)

	add := doc.ChangeSets[0].Changes[1].(*changelog.AddForeignKey)
	assert.Equal(t, "fk_keep_me", add.ConstraintName)

	serialized := string(doc.Serialize())
	assert.Contains(t, serialized, "constraintName: fk_revision_punishment_col")
	assert.Contains(t, serialized, "constraintName: fk_keep_me")
}

func TestApplyIdempotent(t *testing.T) {
	input := `databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - addForeignKeyConstraint:
            baseTableName: child
            baseColumnNames: parent_id
            referencedTableName: parent
            referencedColumnNames: id
`
	doc, err := changelog.Parse(strings.NewReader(input))
	require.NoError(t, err)

	Apply(doc)
	first := string(doc.Serialize())
	Apply(doc)
	assert.Equal(t, first, string(doc.Serialize()))
}
