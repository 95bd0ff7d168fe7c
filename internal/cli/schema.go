package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/bridge"
	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/sqlgen"
)

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the table definitions compiled SQL expects",
		Long: `Print the DDL for the osm_base and osm_members tables that compiled
statements query, for the configured dialect.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.settings(cmd)
			if err != nil {
				return err
			}
			formatter := rootOpts.formatter(cmd)

			d, release, err := dialect.Build(cfg.Dialect, nil, nil)
			if err != nil {
				return commandError(formatter, string(bridge.ErrCodeUnsupportedDialect), err.Error())
			}
			defer release()

			ddl := sqlgen.Schema(d)
			if formatter.Structured() {
				return formatter.Success(map[string]string{"dialect": d.Name(), "schema": ddl})
			}
			fmt.Fprint(formatter.Writer, ddl)
			return nil
		},
	}

	cmd.Flags().StringP("dialect", "d", "postgres", "SQL dialect (postgres|duckdb)")

	return cmd
}
