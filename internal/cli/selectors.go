package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/bridge"
)

// SelectorsOptions holds flags for the selectors command.
type SelectorsOptions struct {
	*RootOptions
	All bool // every selector list, not just the first statement's
	SQL bool // include the compiled boolean expression
}

// SelectorInfo describes one extracted selector list.
type SelectorInfo struct {
	Source string   `json:"source" yaml:"source"`
	Keys   []string `json:"keys" yaml:"keys"`
	SQL    string   `json:"sql,omitempty" yaml:"sql,omitempty"`
}

// NewSelectorsCommand creates the selectors command.
func NewSelectorsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectorsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "selectors [file|-]",
		Short: "Show the tag selectors of a query",
		Long: `Show the tag selectors of a query.

By default only the selectors of the first statement are shown; the first
statement must be an object query such as node[amenity=cafe]. With --all,
the selector list of every object query is shown in document order.

Keys lists the tags an element must carry. A list without predicates has
no key constraint and shows no keys.

Examples:
  overpassql selectors query.overpassql
  overpassql selectors query.overpassql --all --format json
  overpassql selectors query.overpassql --sql --table p`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelectors(opts, args, cmd)
		},
	}

	addDialectFlags(cmd)
	cmd.Flags().String("table", "", "table alias for compiled selector SQL")
	cmd.Flags().BoolVar(&opts.All, "all", false, "show every selector list")
	cmd.Flags().BoolVar(&opts.SQL, "sql", false, "include compiled selector SQL")

	return cmd
}

func runSelectors(opts *SelectorsOptions, args []string, cmd *cobra.Command) error {
	cfg, err := opts.settings(cmd)
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	query, err := LoadQuery(cmd, args)
	if err != nil {
		return loadError(formatter, err)
	}
	req, err := bridge.Parse(query.Text)
	if err != nil {
		return queryError(formatter, query.Name, err)
	}

	var handles []*bridge.SelectorsHandle
	if opts.All {
		handles = req.AllSelectors()
	} else {
		first, err := req.FirstSelectors()
		if err != nil {
			return queryError(formatter, query.Name, err)
		}
		handles = []*bridge.SelectorsHandle{first}
	}

	infos := make([]SelectorInfo, 0, len(handles))
	for _, h := range handles {
		info := SelectorInfo{Source: h.Source()}
		if keys, ok := h.Keys(); ok {
			info.Keys = keys
		}
		if opts.SQL {
			info.SQL, err = h.CompileToSQL(cfg.Dialect, cfg.Table, cfg.SRID, nil)
			if err != nil {
				return queryError(formatter, query.Name, err)
			}
		}
		infos = append(infos, info)
	}

	if formatter.Structured() {
		return formatter.Success(infos)
	}

	// Human-readable text output
	for _, info := range infos {
		source := info.Source
		if source == "" {
			source = "(none)"
		}
		fmt.Fprintf(formatter.Writer, "%s\tkeys: %s\n", source, strings.Join(info.Keys, ","))
		if info.SQL != "" {
			fmt.Fprintf(formatter.Writer, "  %s\n", info.SQL)
		}
	}
	return nil
}
