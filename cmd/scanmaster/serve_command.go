package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"scanmaster/internal/daemon"
	"scanmaster/internal/logging"
	"scanmaster/internal/preflight"
	"scanmaster/internal/session"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the processing queue behind the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.serviceLogger()
			if err != nil {
				return err
			}
			runCtx := cmd.Context()

			for _, failed := range preflight.Failed(preflight.RunAll(runCtx, cfg)) {
				logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
					logging.String("check", failed.Name),
					logging.String("detail", failed.Detail),
					logging.String(logging.FieldErrorHint, "run `scanmaster check` for details"),
				)
			}

			sess, err := session.Open(cfg, logger)
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			d, err := daemon.New(cfg, sess, logger)
			if err != nil {
				sess.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(runCtx); err != nil {
				if errors.Is(err, daemon.ErrAlreadyRunning) {
					return fmt.Errorf("another scanmaster serve holds %s", cfg.LockPath())
				}
				return fmt.Errorf("start daemon: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", d.Addr())

			<-runCtx.Done()
			logger.Info("scanmaster shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
			return nil
		},
	}
}
