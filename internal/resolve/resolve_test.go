package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentifierExactMatch(t *testing.T) {
	got, err := Identifier("Form_Developer", []string{"other", "Form_Developer"})
	require.NoError(t, err)
	assert.Equal(t, "Form_Developer", got)
}

func TestIdentifierCaseInsensitive(t *testing.T) {
	got, err := Identifier("form_developer", []string{"Form_Developer"})
	require.NoError(t, err)
	assert.Equal(t, "Form_Developer", got)
}

func TestIdentifierCanonical(t *testing.T) {
	got, err := Identifier("FormDeveloper", []string{"Form_Developer"})
	require.NoError(t, err)
	assert.Equal(t, "Form_Developer", got)
}

func TestIdentifierCamelToSnake(t *testing.T) {
	got, err := Identifier("revisionPunishment", []string{"revision_punishment"})
	require.NoError(t, err)
	assert.Equal(t, "revision_punishment", got)
}

func TestIdentifierExactWinsOverLooser(t *testing.T) {
	got, err := Identifier("users", []string{"USERS", "users"})
	require.NoError(t, err)
	assert.Equal(t, "users", got)
}

func TestIdentifierNotFound(t *testing.T) {
	_, err := Identifier("missing", []string{"zeta", "alpha"})
	var notFound *IdentifierNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.Requested)
	// Candidates are enumerated in ascending order.
	assert.Contains(t, notFound.Error(), "alpha, zeta")
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "formdeveloper", Canonical("Form_Developer"))
	assert.Equal(t, "abc123", Canonical("a-b-c-1.2.3"))
	assert.Equal(t, "", Canonical("__"))
}

func TestCamelToSnake(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"FormDeveloper", "Form_Developer"},
		{"revisionPunishment", "revision_Punishment"},
		{"already_snake", "already_snake"},
		{"HTTPServer", "HTTPServer"},
		{"a1B", "a1_B"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CamelToSnake(tt.in), "CamelToSnake(%q)", tt.in)
	}
}
