package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/bridge"
	"github.com/roach88/overpassql/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Statements bool // print statements separately
}

// CompileResult holds the SQL compiled from one query.
type CompileResult struct {
	Query      string   `json:"query" yaml:"query"`
	Dialect    string   `json:"dialect" yaml:"dialect"`
	SRID       string   `json:"srid" yaml:"srid"`
	SQL        string   `json:"sql" yaml:"sql"`
	Statements []string `json:"statements" yaml:"statements"`
	Cached     bool     `json:"cached,omitempty" yaml:"cached,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [file|-]",
		Short: "Compile an Overpass QL query to SQL",
		Long: `Compile an Overpass QL query to SQL for the configured dialect.

The query is read from the named file, or from stdin when the file is
omitted or "-". Every out statement compiles to one SQL statement.

With --cache, compiled statements are kept in a SQLite database keyed by
dialect, SRID and the canonical query source.

Examples:
  overpassql compile query.overpassql
  echo 'node[amenity=cafe];out;' | overpassql compile --dialect duckdb
  overpassql compile query.overpassql --cache ~/.cache/overpassql.db --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	addDialectFlags(cmd)
	cmd.Flags().String("cache", "", "SQLite compile cache path")
	cmd.Flags().BoolVar(&opts.Statements, "statements", false, "print each statement separately")

	return cmd
}

// addDialectFlags adds the flags shared by every compiling command. Their
// values reach commands through the merged configuration.
func addDialectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("dialect", "d", "postgres", "SQL dialect (postgres|duckdb)")
	cmd.Flags().String("srid", "4326", "target spatial reference id")
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	query, err := LoadQuery(cmd, args)
	if err != nil {
		return loadError(formatter, err)
	}

	var cache *store.Store
	if cfg.Cache != "" {
		cache, err = store.Open(cfg.Cache)
		if err != nil {
			return commandError(formatter, ErrCodeCache, fmt.Sprintf("opening compile cache: %v", err))
		}
		defer cache.Close()
		formatter.VerboseLog("Using compile cache %s", cfg.Cache)
	}

	result, err := compileQuery(cmd.Context(), cache, query, cfg.Dialect, cfg.SRID)
	if err != nil {
		var bErr *bridge.Error
		if !errors.As(err, &bErr) {
			return commandError(formatter, ErrCodeCache, err.Error())
		}
		return queryError(formatter, query.Name, err)
	}

	formatter.VerboseLog("Compiled %d statement(s) for %s (cached: %t)", len(result.Statements), result.Dialect, result.Cached)
	return outputCompileSuccess(formatter, result, opts.Statements)
}

// compileQuery parses and compiles one query, going through cache when it
// is not nil.
func compileQuery(ctx context.Context, cache *store.Store, query Query, dialectName, srid string) (CompileResult, error) {
	req, err := bridge.Parse(query.Text)
	if err != nil {
		slog.Debug("query rejected", "query", query.Name, "error", err)
		return CompileResult{}, err
	}

	compile := func() ([]string, error) {
		return req.CompileStatements(dialectName, srid, nil)
	}

	var (
		statements []string
		cached     bool
	)
	if cache != nil {
		statements, cached, err = cache.GetOrCompile(ctx, dialectName, srid, req.Source(), compile)
	} else {
		statements, err = compile()
	}
	if err != nil {
		return CompileResult{}, err
	}

	return CompileResult{
		Query:      query.Name,
		Dialect:    dialectName,
		SRID:       srid,
		SQL:        bridge.JoinStatements(statements),
		Statements: statements,
		Cached:     cached,
	}, nil
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result CompileResult, separate bool) error {
	if formatter.Structured() {
		return formatter.Success(result)
	}

	if !separate {
		fmt.Fprintln(formatter.Writer, result.SQL)
		return nil
	}

	// Human-readable text output
	for i, stmt := range result.Statements {
		if i > 0 {
			fmt.Fprintln(formatter.Writer)
		}
		fmt.Fprintf(formatter.Writer, "-- statement %d\n%s;\n", i+1, stmt)
	}
	return nil
}
