package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/overpassql/internal/store"
)

// BatchItem is the outcome of compiling one query in a batch.
type BatchItem struct {
	CompileResult `yaml:",inline"`
	Error         *CLIError `json:"error,omitempty" yaml:"error,omitempty"`
}

// BatchResult holds the outcome of a batch compile.
type BatchResult struct {
	Items    []BatchItem `json:"items" yaml:"items"`
	Compiled int         `json:"compiled" yaml:"compiled"`
	Failed   int         `json:"failed" yaml:"failed"`
	Total    int         `json:"total" yaml:"total"`
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch <file|dir>...",
		Short: "Compile many queries concurrently",
		Long: `Compile many queries concurrently.

Directories expand to the .overpassql and .op files they contain. Results
are reported in argument order. A query that fails does not stop the others.

Exit codes:
  0 - Every query compiled
  1 - One or more queries failed
  2 - Command error (missing files, bad configuration, etc.)

Examples:
  overpassql batch queries/ --jobs 8
  overpassql batch a.overpassql b.overpassql --dialect duckdb --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(rootOpts, args, cmd)
		},
	}

	addDialectFlags(cmd)
	cmd.Flags().String("cache", "", "SQLite compile cache path")
	cmd.Flags().IntP("jobs", "j", 4, "number of queries compiled at once")

	return cmd
}

func runBatch(opts *RootOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	queries, err := LoadQueries(cmd, args)
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
	}

	result := BatchResult{
		Items: make([]BatchItem, len(queries)),
		Total: len(queries),
	}

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(cfg.Jobs)
	for i, query := range queries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			compiled, err := compileQuery(ctx, cache, query, cfg.Dialect, cfg.SRID)
			item := BatchItem{CompileResult: compiled}
			if err != nil {
				code, message := bridgeError(err)
				item.Query = query.Name
				item.Error = &CLIError{Code: code, Message: message}
			}
			result.Items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return commandError(formatter, ErrCodeGeneric, fmt.Sprintf("batch interrupted: %v", err))
	}

	for _, item := range result.Items {
		if item.Error != nil {
			result.Failed++
		} else {
			result.Compiled++
		}
	}
	formatter.VerboseLog("Compiled %d of %d queries with %d job(s)", result.Compiled, result.Total, cfg.Jobs)

	if formatter.Structured() {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputBatchText(formatter, result)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d query(ies) failed", result.Failed))
	}
	return nil
}

// outputBatchText outputs the batch result as text.
func outputBatchText(formatter *OutputFormatter, result BatchResult) {
	w := formatter.Writer
	for _, item := range result.Items {
		if item.Error != nil {
			fmt.Fprintf(w, "✗ %s\n  %s: %s\n", item.Query, item.Error.Code, item.Error.Message)
			continue
		}
		fmt.Fprintf(w, "✓ %s (%d statement(s))\n", item.Query, len(item.Statements))
		if formatter.Verbose {
			fmt.Fprintf(w, "%s\n", item.SQL)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Batch Summary: %d compiled, %d failed, %d total\n", result.Compiled, result.Failed, result.Total)
}
