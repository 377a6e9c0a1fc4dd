package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"scanmaster/internal/config"
	"scanmaster/internal/generator"
	"scanmaster/internal/imageref"
	"scanmaster/internal/session"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an AI sample document photo",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := ctx.fileLogger()
			if err != nil {
				return err
			}

			ref, err := generator.NewGemini(cfg.Generator, logger).Generate(cmd.Context())
			if err != nil {
				return err
			}
			_, data, err := imageref.ParseDataURI(ref)
			if err != nil {
				return fmt.Errorf("decode generated image: %w", err)
			}

			target := strings.TrimSpace(outPath)
			if target == "" {
				target = session.GeneratedName(time.Now())
			} else if target, err = config.ExpandPath(target); err != nil {
				return err
			}
			if dir := filepath.Dir(target); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", target, units.HumanSize(float64(len(data))))
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output file (default AI_Sample_NNNN.png in the current directory)")
	return cmd
}
