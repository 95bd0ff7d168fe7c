package cli

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/overpassql/internal/host"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the host protocol on stdin/stdout",
		Long: `Serve the line-delimited JSON host protocol on stdin and stdout.

A host process drives parsing and compilation through opaque handles and
answers escape callbacks inline. The server exits when stdin is closed.
Logs are written to stderr so they never mix with protocol lines.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := rootOpts.settings(cmd); err != nil {
				return err
			}

			server := host.NewServer(host.Config{
				In:     cmd.InOrStdin(),
				Out:    cmd.OutOrStdout(),
				Logger: slog.Default(),
			})

			slog.Debug("host protocol serving")
			err := server.Serve(cmd.Context())
			if err != nil && !errors.Is(err, context.Canceled) {
				return WrapExitError(ExitCommandError, "host protocol", err)
			}
			slog.Debug("host protocol stopped", "live_handles", server.Handles())
			return nil
		},
	}
}
