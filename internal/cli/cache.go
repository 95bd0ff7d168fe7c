package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/store"
)

// CacheEntry describes one cached compilation.
type CacheEntry struct {
	Key        string `json:"key" yaml:"key"`
	Dialect    string `json:"dialect" yaml:"dialect"`
	SRID       string `json:"srid" yaml:"srid"`
	Source     string `json:"source" yaml:"source"`
	Statements int    `json:"statements" yaml:"statements"`
	Hits       int64  `json:"hits" yaml:"hits"`
}

// NewCacheCommand creates the cache command and its subcommands.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the compile cache",
		Long: `Inspect or clear the SQLite compile cache written by compile --cache
and batch --cache.

Examples:
  overpassql cache list --cache ~/.cache/overpassql.db
  overpassql cache purge --cache ~/.cache/overpassql.db --dialect duckdb`,
		Args: cobra.NoArgs,
	}

	cmd.PersistentFlags().String("cache", "", "SQLite compile cache path")
	cmd.PersistentFlags().StringP("dialect", "d", "", "only entries for this dialect")

	cmd.AddCommand(newCacheListCommand(rootOpts))
	cmd.AddCommand(newCachePurgeCommand(rootOpts))

	return cmd
}

func newCacheListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List cached compilations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			st, dialectName, err := openCache(rootOpts, cmd, formatter)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.List(cmd.Context(), dialectName)
			if err != nil {
				return commandError(formatter, ErrCodeCache, err.Error())
			}

			out := make([]CacheEntry, len(entries))
			for i, e := range entries {
				out[i] = CacheEntry{
					Key:        e.Key,
					Dialect:    e.Dialect,
					SRID:       e.SRID,
					Source:     e.Source,
					Statements: len(e.Statements),
					Hits:       e.Hits,
				}
			}

			if formatter.Structured() {
				return formatter.Success(out)
			}
			for _, e := range out {
				fmt.Fprintf(formatter.Writer, "%s\t%s\t%s\thits: %d\t%s\n",
					e.Key[:12], e.Dialect, e.SRID, e.Hits, oneLine(e.Source))
			}
			fmt.Fprintf(formatter.Writer, "%d cached compilation(s)\n", len(out))
			return nil
		},
	}
}

func newCachePurgeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "purge",
		Short:         "Delete cached compilations",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			st, dialectName, err := openCache(rootOpts, cmd, formatter)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Purge(cmd.Context(), dialectName)
			if err != nil {
				return commandError(formatter, ErrCodeCache, err.Error())
			}

			if formatter.Structured() {
				return formatter.Success(map[string]int64{"purged": n})
			}
			fmt.Fprintf(formatter.Writer, "Purged %d cached compilation(s)\n", n)
			return nil
		},
	}
}

// openCache opens the configured cache. The dialect filter is empty unless
// --dialect was given, since the configured dialect always has a default.
func openCache(rootOpts *RootOptions, cmd *cobra.Command, formatter *OutputFormatter) (*store.Store, string, error) {
	cfg, err := rootOpts.settings(cmd)
	if err != nil {
		return nil, "", err
	}
	if cfg.Cache == "" {
		return nil, "", commandError(formatter, ErrCodeInvalidFlag, "--cache is required")
	}

	dialectName := ""
	if cmd.Flags().Changed("dialect") {
		dialectName = cfg.Dialect
	}

	st, err := store.Open(cfg.Cache)
	if err != nil {
		return nil, "", commandError(formatter, ErrCodeCache, fmt.Sprintf("opening compile cache: %v", err))
	}
	formatter.VerboseLog("Using compile cache %s", cfg.Cache)
	return st, dialectName, nil
}

// oneLine collapses whitespace so a query source fits one output line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
