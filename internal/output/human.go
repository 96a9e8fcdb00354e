package output

import (
	"fmt"
	"strings"

	"relift/internal/engine"
)

type humanFormatter struct{}

func (humanFormatter) FormatResult(result *engine.Result) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "Lowered changelog: %d change set(s)\n", len(result.Document.ChangeSets))

	if len(result.Requests) > 0 {
		b.WriteString("\nTable rebuilds:\n")
		for _, req := range result.Requests {
			fmt.Fprintf(&b, "  %s: +%d/-%d foreign keys (plan %s)\n",
				req.Table, len(req.Add), len(req.Drop), req.Hash()[:12])
			for _, fk := range req.Add {
				fmt.Fprintf(&b, "    add (%s) -> %s (%s)\n",
					strings.Join(fk.BaseColumns, ","), fk.ReferencedTable, strings.Join(fk.ReferencedColumns, ","))
			}
			for _, fk := range req.Drop {
				fmt.Fprintf(&b, "    drop (%s)", strings.Join(fk.BaseColumns, ","))
				if fk.ReferencedTable != "" {
					fmt.Fprintf(&b, " -> %s", fk.ReferencedTable)
				}
				b.WriteString("\n")
			}
		}
	}

	if len(result.Pending) > 0 {
		b.WriteString("\nPending type changes (not applied):\n")
		for _, p := range result.Pending {
			fmt.Fprintf(&b, "  %s.%s -> %s\n", p.Table, p.Column, p.NewType)
		}
	}

	return b.String(), nil
}
