// Package main contains the cli implementation of the tool. It uses cobra
// package for cli tool implementation.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"relift/internal/apply"
	"relift/internal/config"
	"relift/internal/engine"
	"relift/internal/introspect"
	"relift/internal/output"
	"relift/internal/rebuild"
)

type lowerFlags struct {
	configFile    string
	outputDir     string
	format        string
	autoName      bool
	skipWhenEmpty bool
}

type applyFlags struct {
	configFile            string
	dsn                   string
	driver                string
	dryRun                bool
	transaction           bool
	allowNonTransactional bool
	unsafe                bool
	timeout               int
}

type inspectFlags struct {
	dsn string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "relift",
		Short: "Changelog lowering and SQLite table-rebuild engine",
	}

	rootCmd.AddCommand(lowerCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(inspectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func lowerCmd() *cobra.Command {
	flags := &lowerFlags{}
	cmd := &cobra.Command{
		Use:   "lower <changelog.yaml>",
		Short: "Lower a changelog for SQLite",
		Long: `Lower rewrites a changelog document so that every remaining change is
executable by SQLite. Unique constraints become unique indexes, data type
modifications are deferred to a pending report, and foreign-key operations
are turned into table rebuild plans.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLower(args[0], flags, cmd.Flags().Changed("auto-name"), cmd.Flags().Changed("skip-when-empty"), cmd.Flags().Changed("output-dir"))
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to relift.toml options file")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "Destination directory for emitted artifacts")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "Output format: human, json, or summary")
	cmd.Flags().BoolVar(&flags.autoName, "auto-name", true, "Assign deterministic names to anonymous foreign-key operations")
	cmd.Flags().BoolVar(&flags.skipWhenEmpty, "skip-when-empty", false, "Emit no artifacts when every change set was lowered away")

	return cmd
}

func runLower(path string, flags *lowerFlags, autoNameSet, skipSet, outputDirSet bool) error {
	cfg, err := loadConfig(flags.configFile)
	if err != nil {
		return err
	}
	if autoNameSet {
		cfg.Lower.AutoNameConstraints = flags.autoName
	}
	if skipSet {
		cfg.Lower.SkipWhenEmpty = flags.skipWhenEmpty
	}
	if outputDirSet {
		cfg.Lower.OutputDir = flags.outputDir
	}

	result, err := lowerFile(path, cfg)
	if err != nil {
		return err
	}

	formatter, err := output.NewFormatter(flags.format)
	if err != nil {
		return err
	}
	formatted, err := formatter.FormatResult(result)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	fmt.Print(formatted)

	if len(result.Document.ChangeSets) == 0 && cfg.Lower.SkipWhenEmpty {
		fmt.Println("nothing to emit; skipping artifacts")
		return nil
	}
	return writeArtifacts(result, cfg.Lower.OutputDir)
}

func lowerFile(path string, cfg config.Config) (*engine.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open changelog: %w", err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	return engine.Lower(f, engine.Options{AutoNameConstraints: cfg.Lower.AutoNameConstraints})
}

func writeArtifacts(result *engine.Result, dir string) error {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	docPath := filepath.Join(dir, "changelog.lowered.yaml")
	if err := os.WriteFile(docPath, result.Document.Serialize(), 0o644); err != nil {
		return fmt.Errorf("failed to write lowered changelog: %w", err)
	}
	fmt.Printf("lowered changelog saved to %s\n", docPath)

	if len(result.Requests) > 0 {
		planPath := filepath.Join(dir, "rebuild-plan.json")
		if err := writeJSON(planPath, result.Requests); err != nil {
			return err
		}
		fmt.Printf("rebuild plan saved to %s\n", planPath)
	}
	if len(result.Pending) > 0 {
		pendingPath := filepath.Join(dir, "pending-types.json")
		if err := writeJSON(pendingPath, result.Pending); err != nil {
			return err
		}
		fmt.Printf("pending type changes saved to %s\n", pendingPath)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func applyCmd() *cobra.Command {
	flags := &applyFlags{}
	cmd := &cobra.Command{
		Use:   "apply <changelog.yaml>",
		Short: "Lower a changelog and apply it to a live database",
		Long: `Apply lowers the changelog and executes the result against a database.

On SQLite targets the foreign-key rebuild plans run first, audit-gated so a
plan already recorded is skipped. Raw sql passthrough changes run afterwards,
behind preflight checks that flag destructive and blocking statements.

Examples:
  relift apply changelog.yaml --dsn app.db
  relift apply changelog.yaml --dsn app.db --dry-run
  relift apply changelog.yaml --driver mysql --dsn "user:pass@tcp(localhost:3306)/mydb"`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runApply(args[0], flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configFile, "config", "c", "", "Path to relift.toml options file")
	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "Database connection string (required)")
	cmd.Flags().StringVar(&flags.driver, "driver", "sqlite", "Database driver: sqlite or mysql")
	cmd.Flags().BoolVarP(&flags.dryRun, "dry-run", "d", false, "Run preflight checks without executing")
	cmd.Flags().BoolVarP(&flags.transaction, "transaction", "t", true, "Run passthrough statements in a transaction if possible")
	cmd.Flags().BoolVar(&flags.allowNonTransactional, "allow-non-transactional", false, "Allow non-transactional DDL when --transaction is set")
	cmd.Flags().BoolVarP(&flags.unsafe, "unsafe", "u", false, "Allow destructive statements (DROP, TRUNCATE, etc.)")
	cmd.Flags().IntVar(&flags.timeout, "timeout", 0, "Connection timeout in seconds")

	return cmd
}

func runApply(path string, flags *applyFlags) error {
	if flags.dsn == "" {
		return fmt.Errorf("--dsn is required")
	}
	if flags.driver != "sqlite" && flags.driver != "mysql" {
		return fmt.Errorf("unsupported driver: %s", flags.driver)
	}

	cfg, err := loadConfig(flags.configFile)
	if err != nil {
		return err
	}
	timeout := flags.timeout
	if timeout == 0 {
		timeout = cfg.Apply.TimeoutSeconds
	}

	result, err := lowerFile(path, cfg)
	if err != nil {
		return err
	}
	if len(result.Requests) > 0 && flags.driver != "sqlite" {
		return fmt.Errorf("changelog requires %d table rebuild(s), which only the sqlite driver supports", len(result.Requests))
	}

	applier := apply.NewApplier(apply.Options{
		Driver:                flags.driver,
		DSN:                   flags.dsn,
		DryRun:                flags.dryRun,
		Transaction:           flags.transaction,
		AllowNonTransactional: flags.allowNonTransactional || cfg.Apply.AllowNonTransactional,
		Unsafe:                flags.unsafe || cfg.Apply.Unsafe,
		Out:                   os.Stdout,
	})
	defer func() {
		_ = applier.Close()
	}()

	statements := applier.Statements(result.Document)
	preflight := applier.Check(statements)

	if flags.dryRun {
		fmt.Printf("dry run: %d rebuild plan(s), %d passthrough statement(s)\n",
			len(result.Requests), len(statements))
		return applier.Run(context.Background(), statements, preflight)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout)*time.Second)
	defer cancel()

	fmt.Println("connecting to database")
	if err := applier.Connect(ctx); err != nil {
		return err
	}

	if len(result.Requests) > 0 {
		db, err := sql.Open("sqlite", flags.dsn)
		if err != nil {
			return fmt.Errorf("failed to open database for rebuilds: %w", err)
		}
		defer func(db *sql.DB) {
			_ = db.Close()
		}(db)

		if err := engine.Execute(ctx, db, result.Requests, os.Stdout); err != nil {
			return err
		}
		fmt.Printf("executed %d rebuild plan(s)\n", len(result.Requests))
	}

	if len(statements) == 0 {
		fmt.Println("no passthrough statements to execute")
		return nil
	}
	return applier.Run(ctx, statements, preflight)
}

func inspectCmd() *cobra.Command {
	flags := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect <table>",
		Short: "Dump the observed schema of a live SQLite table",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runInspect(args[0], flags)
		},
	}
	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "SQLite database path (required)")
	return cmd
}

func runInspect(table string, flags *inspectFlags) error {
	if flags.dsn == "" {
		return fmt.Errorf("--dsn is required")
	}

	db, err := sql.Open("sqlite", flags.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func(db *sql.DB) {
		_ = db.Close()
	}(db)

	ctx := context.Background()
	ts, err := introspect.ReadTable(ctx, db, table)
	if err != nil {
		return err
	}

	dump := struct {
		*introspect.TableSchema
		AutoIncrementColumns []string `json:"autoIncrementColumns,omitempty"`
	}{
		TableSchema:          ts,
		AutoIncrementColumns: rebuild.AutoIncrementColumns(ts),
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}
