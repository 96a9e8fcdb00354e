package apply

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/pingcap/tidb/pkg/parser/format"

	"relift/internal/changelog"
)

// Options configures a passthrough run.
type Options struct {
	Driver                string
	DSN                   string
	DryRun                bool
	Transaction           bool
	AllowNonTransactional bool
	Unsafe                bool
	Out                   io.Writer
}

// Applier executes raw sql changes from a lowered document.
type Applier struct {
	db       *sql.DB
	options  Options
	analyzer *Analyzer
	out      io.Writer
}

// NewApplier returns an applier with the given options. A nil Out discards
// progress output.
func NewApplier(options Options) *Applier {
	out := options.Out
	if out == nil {
		out = io.Discard
	}
	return &Applier{
		options:  options,
		analyzer: NewAnalyzer(),
		out:      out,
	}
}

func (a *Applier) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// Connect opens and pings the target database.
func (a *Applier) Connect(ctx context.Context) error {
	db, err := sql.Open(a.options.Driver, a.options.DSN)
	if err != nil {
		return fmt.Errorf("open database connection: %w", err)
	}
	if pingErr := db.PingContext(ctx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("ping database: %w; close also failed: %w", pingErr, closeErr)
		}
		return fmt.Errorf("ping database: %w", pingErr)
	}
	a.db = db
	return nil
}

// Close releases the database connection.
func (a *Applier) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// Statements collects the raw sql changes of the document in order,
// splitting multi-statement blocks.
func (a *Applier) Statements(doc *changelog.Document) []string {
	var statements []string
	for _, cs := range doc.ChangeSets {
		for _, change := range cs.Changes {
			c, ok := change.(*changelog.SQLChange)
			if !ok || strings.TrimSpace(c.SQL) == "" {
				continue
			}
			statements = append(statements, a.split(c.SQL)...)
		}
	}
	return statements
}

// split breaks a sql block into statements, preferring the AST parser and
// falling back to semicolon scanning for syntax it cannot handle.
func (a *Applier) split(block string) []string {
	block = strings.TrimSpace(block)
	if nodes, _, err := a.analyzer.parser.Parse(block, "", ""); err == nil && len(nodes) > 0 {
		statements := make([]string, 0, len(nodes))
		for _, node := range nodes {
			var sb strings.Builder
			restoreCtx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
			if restoreErr := node.Restore(restoreCtx); restoreErr != nil {
				continue
			}
			if stmt := strings.TrimSpace(sb.String()); stmt != "" {
				statements = append(statements, stmt)
			}
		}
		if len(statements) > 0 {
			return statements
		}
	}
	return splitBySemicolon(block)
}

func splitBySemicolon(block string) []string {
	var statements []string
	var current strings.Builder

	for line := range strings.SplitSeq(block, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			if stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(current.String()), ";")); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}
	if remaining := strings.TrimSpace(current.String()); remaining != "" {
		statements = append(statements, remaining)
	}
	return statements
}

// Check runs the preflight analyzer over the statements.
func (a *Applier) Check(statements []string) *Preflight {
	return a.analyzer.Check(statements)
}

// Run validates the preflight result and executes the statements. Dry runs
// stop after validation.
func (a *Applier) Run(ctx context.Context, statements []string, preflight *Preflight) error {
	a.report(preflight)

	if preflight.Destructive() && !a.options.Unsafe {
		return fmt.Errorf("destructive statements detected; pass --unsafe to allow them")
	}
	if a.options.Transaction && !preflight.IsTransactional && !a.options.AllowNonTransactional {
		return fmt.Errorf("non-transactional DDL detected; pass --allow-non-transactional to proceed")
	}

	if a.options.DryRun {
		a.printf("dry run: %d statement(s) validated, nothing executed\n", len(statements))
		return nil
	}

	if a.options.Transaction && preflight.IsTransactional {
		return a.runInTransaction(ctx, statements)
	}
	return a.runDirect(ctx, statements)
}

func (a *Applier) report(preflight *Preflight) {
	for _, w := range preflight.Warnings {
		a.printf("  %s: %s\n", w.Level, w.Message)
	}
	if !preflight.IsTransactional {
		a.printf("  statements are not transaction-safe:\n")
		for _, reason := range preflight.NonTxReasons {
			a.printf("    - %s\n", reason)
		}
	}
}

func (a *Applier) runInTransaction(ctx context.Context, statements []string) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	total := len(statements)
	for i, stmt := range statements {
		start := time.Now()
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			a.printf("  [%d/%d] FAILED: %s\n", i+1, total, truncate(stmt, 50))
			if rbErr := tx.Rollback(); rbErr != nil {
				return fmt.Errorf("execute failed: %w; rollback also failed: %w", err, rbErr)
			}
			return fmt.Errorf("execute failed (rolled back): %w", err)
		}
		a.printf("  [%d/%d] OK: %s (%.2fs)\n", i+1, total, truncate(stmt, 50), time.Since(start).Seconds())
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (a *Applier) runDirect(ctx context.Context, statements []string) error {
	total := len(statements)
	applied := 0
	for i, stmt := range statements {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			a.printf("  [%d/%d] FAILED: %s\n", i+1, total, truncate(stmt, 50))
			return fmt.Errorf("statement %d failed: %w (%d already applied, not rolled back)", i+1, err, applied)
		}
		a.printf("  [%d/%d] OK: %s\n", i+1, total, truncate(stmt, 50))
		applied++
	}
	return nil
}
