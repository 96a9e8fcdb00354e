// Package engine wires the lowering pipeline together: parse the changelog,
// name anonymous constraints, extract foreign-key operations, lower the
// remaining changes for SQLite, and execute the resulting table rebuilds
// audit-gated against a live database.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"relift/internal/audit"
	"relift/internal/changelog"
	"relift/internal/lower"
	"relift/internal/namer"
	"relift/internal/rebuild"
)

// Options steers one lowering run.
type Options struct {
	// AutoNameConstraints runs the constraint namer before extraction.
	AutoNameConstraints bool
}

// Result is the outcome of lowering one document.
type Result struct {
	// Document is the lowered changelog; every remaining change is
	// executable by SQLite.
	Document *changelog.Document
	// Requests are the per-table rebuilds, ordered by first appearance of
	// each table's foreign-key operations in the source.
	Requests []*rebuild.Request
	// Pending lists modifyDataType changes dropped from the plan.
	Pending []lower.PendingTypeChange
}

// Empty reports whether lowering left nothing to do: no change sets and no
// rebuilds.
func (r *Result) Empty() bool {
	return len(r.Document.ChangeSets) == 0 && len(r.Requests) == 0
}

// Lower runs the full pipeline over an input document.
func Lower(input io.Reader, opts Options) (*Result, error) {
	doc, err := changelog.Parse(input)
	if err != nil {
		return nil, err
	}

	if opts.AutoNameConstraints {
		namer.Apply(doc)
	}

	fkOps := changelog.ExtractForeignKeyOps(doc)
	report := lower.Apply(doc)

	return &Result{
		Document: doc,
		Requests: rebuild.Requests(fkOps),
		Pending:  report.Pending,
	}, nil
}

// Execute performs the rebuilds sequentially in request order. Each
// request's plan hash is checked against the audit store first; plans
// already recorded are skipped and counted as applied. Progress goes to
// out; a nil out discards it.
func Execute(ctx context.Context, db *sql.DB, requests []*rebuild.Request, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if len(requests) == 0 {
		return nil
	}

	store := audit.NewStore(db)
	if err := store.EnsureTable(ctx); err != nil {
		return err
	}

	executor := rebuild.NewExecutor(db, out)
	for _, req := range requests {
		hash := req.Hash()
		applied, err := store.WasAlreadyApplied(ctx, hash)
		if err != nil {
			return err
		}
		if applied {
			_, _ = fmt.Fprintf(out, "skipping %s: plan %s already applied\n", req.Table, hash[:12])
			continue
		}

		if err := executor.Rebuild(ctx, req); err != nil {
			return err
		}
		description := fmt.Sprintf("rebuild %s: +%d/-%d foreign keys", req.Table, len(req.Add), len(req.Drop))
		if err := store.RecordApplied(ctx, hash, description); err != nil {
			return err
		}
	}
	return nil
}
