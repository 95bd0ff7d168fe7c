package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/bridge"
)

// NewFmtCommand creates the fmt command.
func NewFmtCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fmt [file|-]",
		Short: "Print a query in canonical form",
		Long: `Print a query in canonical form: one statement per line, with
whitespace and comments removed and literals quoted only where needed.

Formatting is idempotent, and the canonical form compiles to the same SQL
as the original query.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rootOpts.settings(cmd); err != nil {
				return err
			}
			formatter := rootOpts.formatter(cmd)

			query, err := LoadQuery(cmd, args)
			if err != nil {
				return loadError(formatter, err)
			}
			req, err := bridge.Parse(query.Text)
			if err != nil {
				return queryError(formatter, query.Name, err)
			}

			if formatter.Structured() {
				return formatter.Success(map[string]string{"source": req.Source()})
			}
			fmt.Fprint(formatter.Writer, req.Source())
			return nil
		},
	}
}
