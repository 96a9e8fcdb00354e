// Package output renders lowering results for people and machines. It is
// extendable and for now provides three formats: human, JSON, and summary.
package output

import (
	"fmt"
	"strings"

	"relift/internal/engine"
)

// Format is an enum type representing the available output formats.
type Format string

const (
	FormatHuman   Format = "human"
	FormatJSON    Format = "json"
	FormatSummary Format = "summary"
)

// Formatter renders a lowering result.
type Formatter interface {
	FormatResult(*engine.Result) (string, error)
}

// NewFormatter creates a Formatter for the given name. An empty name
// defaults to the human format.
func NewFormatter(name string) (Formatter, error) {
	format := Format(strings.ToLower(strings.TrimSpace(name)))
	switch format {
	case "", FormatHuman:
		return humanFormatter{}, nil
	case FormatJSON:
		return jsonFormatter{}, nil
	case FormatSummary:
		return summaryFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s; use 'human', 'json', or 'summary'", name)
	}
}
