package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scanmaster/internal/preflight"
)

// checkReport is the --json shape of `scanmaster check`.
type checkReport struct {
	Config   string             `json:"config"`
	Producer string             `json:"producer"`
	Checks   []preflight.Result `json:"checks"`
	Failed   int                `json:"failed"`
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			failed := preflight.Failed(results)

			if jsonOutput {
				report := checkReport{Config: ctx.configPath, Producer: cfg.Backend.Producer, Checks: results, Failed: len(failed)}
				if err := renderJSON(cmd.OutOrStdout(), report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := renderSectionHeader("Config", colorize)
				lines = append(lines, renderStatusLine("Path", statusInfo, ctx.configPath, colorize))
				lines = append(lines, renderStatusLine("Producer", statusInfo, cfg.Backend.Producer, colorize))
				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Preflight", colorize)...)
				for _, r := range results {
					lines = append(lines, renderStatusLine(r.Name, resultKind(r), r.Detail, colorize))
				}
				fmt.Fprintln(out, strings.Join(lines, "\n"))
			}

			if len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

func resultKind(r preflight.Result) statusKind {
	switch {
	case r.Passed:
		return statusOK
	case r.Optional:
		return statusWarn
	default:
		return statusError
	}
}
