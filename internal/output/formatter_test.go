package output

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relift/internal/changelog"
	"relift/internal/engine"
	"relift/internal/lower"
	"relift/internal/rebuild"
)

func sampleResult(t *testing.T) *engine.Result {
	t.Helper()
	doc, err := changelog.Parse(strings.NewReader(`databaseChangeLog:
  - changeSet:
      id: '1'
      author: generated
      changes:
        - dropColumn:
            tableName: t
            columnName: c
`))
	require.NoError(t, err)

	return &engine.Result{
		Document: doc,
		Requests: []*rebuild.Request{{
			Table: "child",
			Add: []rebuild.ForeignKeySpec{{
				BaseColumns:       []string{"parent_id"},
				ReferencedTable:   "parent",
				ReferencedColumns: []string{"id"},
			}},
		}},
		Pending: []lower.PendingTypeChange{{Table: "t", Column: "c", NewType: "BIGINT"}},
	}
}

func TestNewFormatterSelection(t *testing.T) {
	for _, name := range []string{"", "human", "JSON", " summary "} {
		formatter, err := NewFormatter(name)
		require.NoError(t, err, "format %q", name)
		require.NotNil(t, formatter)
	}

	_, err := NewFormatter("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestHumanFormat(t *testing.T) {
	formatter, err := NewFormatter("human")
	require.NoError(t, err)

	out, err := formatter.FormatResult(sampleResult(t))
	require.NoError(t, err)

	assert.Contains(t, out, "1 change set(s)")
	assert.Contains(t, out, "child: +1/-0 foreign keys")
	assert.Contains(t, out, "add (parent_id) -> parent (id)")
	assert.Contains(t, out, "t.c -> BIGINT")
}

func TestJSONFormat(t *testing.T) {
	formatter, err := NewFormatter("json")
	require.NoError(t, err)

	out, err := formatter.FormatResult(sampleResult(t))
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "json", decoded["format"])

	summary := decoded["summary"].(map[string]any)
	assert.Equal(t, float64(1), summary["changeSets"])
	assert.Equal(t, float64(1), summary["rebuilds"])
	assert.Equal(t, float64(1), summary["pendingTypeChanges"])

	rebuilds := decoded["rebuilds"].([]any)
	require.Len(t, rebuilds, 1)
	assert.Regexp(t, `^[0-9a-f]{64}$`, rebuilds[0].(map[string]any)["hash"])
}

func TestSummaryFormat(t *testing.T) {
	formatter, err := NewFormatter("summary")
	require.NoError(t, err)

	out, err := formatter.FormatResult(sampleResult(t))
	require.NoError(t, err)

	assert.Contains(t, out, "change sets: 1")
	assert.Contains(t, out, "table rebuilds: 1")
	assert.Contains(t, out, "pending type changes: 1")
}
