package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/bridge"
	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/explain"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	EnsureSchema bool // create osm_base/osm_members before explaining
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain [file|-]",
		Short: "Check compiled SQL against a live database with EXPLAIN",
		Long: `Compile a query and run EXPLAIN on every statement against a live
database, which checks the SQL without reading any data.

For postgres, --dsn is a pgx connection string. For duckdb it is a database
path; without one an in-memory database is used and the schema is created
automatically.

Examples:
  overpassql explain query.overpassql --dsn postgres://osm@localhost/osm
  overpassql explain query.overpassql --dialect duckdb`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(opts, args, cmd)
		},
	}

	addDialectFlags(cmd)
	cmd.Flags().String("dsn", "", "database connection string or path")
	cmd.Flags().BoolVar(&opts.EnsureSchema, "ensure-schema", false, "create the expected tables if they are missing")

	return cmd
}

func runExplain(opts *ExplainOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	query, err := LoadQuery(cmd, args)
	if err != nil {
		return loadError(formatter, err)
	}
	compiled, err := compileQuery(ctx, nil, query, cfg.Dialect, cfg.SRID)
	if err != nil {
		return queryError(formatter, query.Name, err)
	}

	explainer, err := explain.Open(ctx, cfg.Dialect, cfg.DSN, slog.Default())
	if err != nil {
		var unsupported *dialect.UnsupportedError
		if errors.As(err, &unsupported) {
			return commandError(formatter, string(bridge.ErrCodeUnsupportedDialect), err.Error())
		}
		return commandError(formatter, ErrCodeDatabase, err.Error())
	}
	defer explainer.Close()

	if opts.EnsureSchema || (cfg.Dialect == dialect.NameDuckDB && cfg.DSN == "") {
		formatter.VerboseLog("Ensuring schema for %s", cfg.Dialect)
		if err := explainer.EnsureSchema(ctx); err != nil {
			return commandError(formatter, ErrCodeDatabase, err.Error())
		}
	}

	plans, err := explainer.ExplainAll(ctx, compiled.Statements)
	if err != nil {
		return commandError(formatter, ErrCodeDatabase, err.Error())
	}

	if formatter.Structured() {
		return formatter.Success(plans)
	}

	// Human-readable text output
	w := formatter.Writer
	for i, plan := range plans {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "-- statement %d\n", i+1)
		for _, line := range plan.Lines {
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
