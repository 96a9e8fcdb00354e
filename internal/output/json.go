package output

import (
	"encoding/json"
	"fmt"

	"relift/internal/engine"
	"relift/internal/lower"
	"relift/internal/rebuild"
)

type jsonFormatter struct{}

type jsonResult struct {
	Format   string                    `json:"format"`
	Document string                    `json:"document"`
	Rebuilds []jsonRebuild             `json:"rebuilds,omitempty"`
	Pending  []lower.PendingTypeChange `json:"pendingTypeChanges,omitempty"`
	Summary  jsonSummary               `json:"summary"`
}

type jsonRebuild struct {
	Table string                   `json:"table"`
	Hash  string                   `json:"hash"`
	Add   []rebuild.ForeignKeySpec `json:"add,omitempty"`
	Drop  []rebuild.ForeignKeySpec `json:"drop,omitempty"`
}

type jsonSummary struct {
	ChangeSets         int `json:"changeSets"`
	Rebuilds           int `json:"rebuilds"`
	PendingTypeChanges int `json:"pendingTypeChanges"`
}

func (jsonFormatter) FormatResult(result *engine.Result) (string, error) {
	out := jsonResult{
		Format:   string(FormatJSON),
		Document: string(result.Document.Serialize()),
		Pending:  result.Pending,
		Summary: jsonSummary{
			ChangeSets:         len(result.Document.ChangeSets),
			Rebuilds:           len(result.Requests),
			PendingTypeChanges: len(result.Pending),
		},
	}
	for _, req := range result.Requests {
		out.Rebuilds = append(out.Rebuilds, jsonRebuild{
			Table: req.Table,
			Hash:  req.Hash(),
			Add:   req.Add,
			Drop:  req.Drop,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result: %w", err)
	}
	return string(data) + "\n", nil
}
