package output

import (
	"fmt"
	"strings"

	"relift/internal/engine"
)

type summaryFormatter struct{}

func (summaryFormatter) FormatResult(result *engine.Result) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "change sets: %d\n", len(result.Document.ChangeSets))
	fmt.Fprintf(&b, "table rebuilds: %d\n", len(result.Requests))
	fmt.Fprintf(&b, "pending type changes: %d\n", len(result.Pending))

	return b.String(), nil
}
