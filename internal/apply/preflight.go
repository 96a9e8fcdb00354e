// Package apply executes the raw sql passthrough changes of a lowered
// changelog against a live database. Before anything runs, each statement
// goes through an AST-based preflight that flags destructive and blocking
// operations and statements that break transactional application.
package apply

import (
	"fmt"
	"strings"

	"github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/ast"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"
)

// WarningLevel classifies preflight findings.
type WarningLevel string

const (
	WarnCaution WarningLevel = "CAUTION"
	WarnDanger  WarningLevel = "DANGER"
)

// Warning is one preflight finding about a statement.
type Warning struct {
	Level   WarningLevel `json:"level"`
	Message string       `json:"message"`
	SQL     string       `json:"sql,omitempty"`
}

// Preflight is the combined analysis of a statement list.
type Preflight struct {
	Warnings        []Warning `json:"warnings,omitempty"`
	IsTransactional bool      `json:"isTransactional"`
	NonTxReasons    []string  `json:"nonTxReasons,omitempty"`
}

// Destructive reports whether any finding is at DANGER level.
func (p *Preflight) Destructive() bool {
	for _, w := range p.Warnings {
		if w.Level == WarnDanger {
			return true
		}
	}
	return false
}

// analysis is the classification of a single statement.
type analysis struct {
	destructive       bool
	destructiveReason string
	blocking          []string
	txUnsafeReason    string
}

// Analyzer classifies SQL statements using TiDB's parser, with a keyword
// fallback for statements the parser rejects.
type Analyzer struct {
	parser *parser.Parser
}

// NewAnalyzer returns a ready analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{parser: parser.New()}
}

// Check analyzes every statement and aggregates the findings.
func (a *Analyzer) Check(statements []string) *Preflight {
	result := &Preflight{IsTransactional: true}

	for _, stmt := range statements {
		an := a.analyze(stmt)

		for _, reason := range an.blocking {
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnCaution,
				Message: "potentially blocking DDL: " + reason,
				SQL:     truncate(stmt, 60),
			})
		}
		if an.destructive {
			result.Warnings = append(result.Warnings, Warning{
				Level:   WarnDanger,
				Message: an.destructiveReason,
				SQL:     truncate(stmt, 60),
			})
		}
		if an.txUnsafeReason != "" {
			result.IsTransactional = false
			result.NonTxReasons = append(result.NonTxReasons,
				fmt.Sprintf("%s: %s", an.txUnsafeReason, truncate(stmt, 60)))
		}
	}
	return result
}

func (a *Analyzer) analyze(stmt string) analysis {
	nodes, _, err := a.parser.Parse(stmt, "", "")
	if err != nil || len(nodes) == 0 {
		return keywordAnalysis(stmt)
	}
	return a.analyzeNode(nodes[0])
}

func (a *Analyzer) analyzeNode(node ast.StmtNode) analysis {
	var an analysis

	switch stmt := node.(type) {
	case *ast.DropTableStmt:
		an.destructive = true
		an.destructiveReason = "DROP TABLE permanently deletes the table and all its data"
		an.txUnsafeReason = "DROP TABLE causes an implicit commit"
	case *ast.DropDatabaseStmt:
		an.destructive = true
		an.destructiveReason = "DROP DATABASE permanently deletes the entire database"
		an.txUnsafeReason = "DROP DATABASE causes an implicit commit"
	case *ast.TruncateTableStmt:
		an.destructive = true
		an.destructiveReason = "TRUNCATE TABLE deletes every row of the table"
		an.blocking = append(an.blocking, "TRUNCATE TABLE acquires an exclusive lock")
		an.txUnsafeReason = "TRUNCATE TABLE causes an implicit commit"
	case *ast.DeleteStmt:
		an.destructive = true
		an.destructiveReason = "DELETE removes rows from the table"
	case *ast.DropIndexStmt:
		an.blocking = append(an.blocking, "DROP INDEX may briefly lock the table")
		an.txUnsafeReason = "DROP INDEX causes an implicit commit"
	case *ast.CreateIndexStmt:
		an.blocking = append(an.blocking, "CREATE INDEX may lock the table while the index builds")
		an.txUnsafeReason = "CREATE INDEX causes an implicit commit"
	case *ast.CreateTableStmt:
		an.txUnsafeReason = "CREATE TABLE causes an implicit commit"
	case *ast.RenameTableStmt:
		an.blocking = append(an.blocking, "RENAME TABLE acquires an exclusive lock but is typically fast")
		an.txUnsafeReason = "RENAME TABLE causes an implicit commit"
	case *ast.AlterTableStmt:
		an.txUnsafeReason = "ALTER TABLE causes an implicit commit"
		analyzeAlterSpecs(stmt, &an)
	case *ast.InsertStmt, *ast.UpdateStmt, *ast.SelectStmt:
		// Transaction-safe DML.
	default:
		return keywordAnalysis(node.Text())
	}
	return an
}

func analyzeAlterSpecs(stmt *ast.AlterTableStmt, an *analysis) {
	for _, spec := range stmt.Specs {
		switch spec.Tp {
		case ast.AlterTableDropColumn:
			an.destructive = true
			an.destructiveReason = "DROP COLUMN permanently deletes the column and its data"
			an.blocking = append(an.blocking, "DROP COLUMN typically rebuilds and locks the table")
		case ast.AlterTableAddConstraint:
			if spec.Constraint != nil && spec.Constraint.Tp == ast.ConstraintForeignKey {
				an.blocking = append(an.blocking, "ADD FOREIGN KEY may lock the table while validating rows")
			} else {
				an.blocking = append(an.blocking, "ADD CONSTRAINT may lock the table while validating rows")
			}
		case ast.AlterTableModifyColumn, ast.AlterTableChangeColumn:
			an.blocking = append(an.blocking, "column modification may rebuild the table")
		case ast.AlterTableDropPrimaryKey:
			an.blocking = append(an.blocking, "DROP PRIMARY KEY rebuilds and locks the table")
		}
	}
}

// keywordAnalysis covers statements the AST parser cannot handle, e.g.
// SQLite-only syntax inside a passthrough block.
func keywordAnalysis(stmt string) analysis {
	var an analysis
	upper := strings.ToUpper(strings.TrimSpace(stmt))

	switch {
	case strings.HasPrefix(upper, "DROP TABLE"):
		an.destructive = true
		an.destructiveReason = "DROP TABLE permanently deletes the table and all its data"
	case strings.HasPrefix(upper, "TRUNCATE"):
		an.destructive = true
		an.destructiveReason = "TRUNCATE TABLE deletes every row of the table"
	case strings.HasPrefix(upper, "DELETE FROM"):
		an.destructive = true
		an.destructiveReason = "DELETE removes rows from the table"
	case strings.Contains(upper, "DROP COLUMN"):
		an.destructive = true
		an.destructiveReason = "DROP COLUMN permanently deletes the column and its data"
	}

	for _, prefix := range []string{"CREATE ", "DROP ", "ALTER ", "RENAME ", "TRUNCATE "} {
		if strings.HasPrefix(upper, prefix) {
			an.txUnsafeReason = "DDL statement causes an implicit commit"
			break
		}
	}
	return an
}

func truncate(stmt string, maxLen int) string {
	stmt = strings.TrimSpace(stmt)
	if len(stmt) > maxLen {
		return stmt[:maxLen-3] + "..."
	}
	return stmt
}
