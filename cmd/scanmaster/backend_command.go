package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scanmaster/internal/backend"
)

func newBackendCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Run the reference scan backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.serviceLogger()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.MockBackend.Bind = bind
			}

			store, err := backend.OpenStore(cfg.BackendDatabasePath())
			if err != nil {
				return fmt.Errorf("open backend store: %w", err)
			}
			defer store.Close()

			server := backend.NewServer(cfg, store, backend.WithLogger(logger))
			out := cmd.OutOrStdout()
			return server.Run(cmd.Context(), func(addr string) {
				fmt.Fprintf(out, "Scan backend listening on http://%s\n", addr)
			})
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override mock_backend.bind")
	return cmd
}
