package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	"scanmaster/internal/api"
	"scanmaster/internal/config"
	"scanmaster/internal/imageref"
	"scanmaster/internal/queue"
	"scanmaster/internal/session"
	"scanmaster/internal/textutil"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var exportDir string
	var doExport bool
	var samples int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "process [FILE...]",
		Short: "Process a batch of images and wait for the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && samples <= 0 {
				return errors.New("provide at least one image file or --samples")
			}
			cfg, logger, err := ctx.fileLogger()
			if err != nil {
				return err
			}

			files, err := readImageFiles(args, cfg.Backend.MaxUploadBytes())
			if err != nil {
				return err
			}

			sess, err := session.Open(cfg, logger)
			if err != nil {
				return fmt.Errorf("open session: %w", err)
			}
			defer sess.Close()

			runCtx := cmd.Context()
			for range samples {
				if _, err := sess.GenerateSample(runCtx); err != nil {
					return fmt.Errorf("generate sample: %w", err)
				}
			}
			if len(files) > 0 {
				if _, err := sess.AddFiles(files...); err != nil {
					return err
				}
			}

			sess.StartProcessing(runCtx)
			if err := sess.Wait(runCtx); err != nil {
				return err
			}

			items := sess.Items()
			out := cmd.OutOrStdout()
			if jsonOutput {
				if err := renderJSON(out, api.ItemListResponse{Items: api.FromItems(items)}); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, renderItemTable(items))
				fmt.Fprintf(out, "Progress: %d%%\n", sess.Progress())
			}

			if doExport || strings.TrimSpace(exportDir) != "" {
				if err := exportResults(cmd, sess, cfg, exportDir, jsonOutput); err != nil {
					return err
				}
			}

			if failed := countStatus(items, queue.StatusError); failed > 0 {
				return fmt.Errorf("%d of %d items failed", failed, len(items))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&exportDir, "export-dir", "", "Write batch_scans.zip to this directory")
	cmd.Flags().BoolVar(&doExport, "export", false, "Write batch_scans.zip to paths.export_dir")
	cmd.Flags().IntVar(&samples, "samples", 0, "Generate this many AI sample documents and process them too")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print items as JSON")
	return cmd
}

func readImageFiles(paths []string, maxBytes int64) ([]session.File, error) {
	files := make([]session.File, 0, len(paths))
	for _, arg := range paths {
		path, err := config.ExpandPath(arg)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("inspect %q: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", path)
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			return nil, fmt.Errorf("%s is %s, larger than max_upload_size %s",
				path, units.HumanSize(float64(info.Size())), units.HumanSize(float64(maxBytes)))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		files = append(files, session.File{
			Name:     filepath.Base(path),
			MIMEType: imageref.SniffImageType(data),
			Data:     data,
		})
	}
	return files, nil
}

func exportResults(cmd *cobra.Command, sess *session.Session, cfg *config.Config, dir string, quiet bool) error {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = cfg.Paths.ExportDir
	} else {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return err
		}
		dir = expanded
	}
	path, manifest, err := sess.ExportToDir(cmd.Context(), dir)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if !quiet {
		entries := 0
		for _, item := range manifest.Items {
			entries += len(item.Entries)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d image(s) to %s\n", entries, path)
	}
	return nil
}

func renderItemTable(items []queue.Item) string {
	rows := make([][]string, 0, len(items))
	for i, item := range items {
		detail := item.ErrorMessage
		if detail == "" && len(item.Results) > 0 {
			detail = describeRef(item.Results[0].Cropped)
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			item.Name,
			textutil.StatusLabel(string(item.Status)),
			strconv.Itoa(len(item.Results)),
			detail,
		})
	}
	return renderTable(
		[]string{"#", "Name", "Status", "Results", "Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func describeRef(ref string) string {
	if mimeType, data, err := imageref.ParseDataURI(ref); err == nil {
		return fmt.Sprintf("%s, %s", mimeType, units.HumanSize(float64(len(data))))
	}
	return ref
}

func countStatus(items []queue.Item, status queue.Status) int {
	n := 0
	for _, item := range items {
		if item.Status == status {
			n++
		}
	}
	return n
}

