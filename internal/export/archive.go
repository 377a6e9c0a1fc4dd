package export

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"scanmaster/internal/imageref"
	"scanmaster/internal/queue"
	"scanmaster/internal/textutil"
)

const (
	// ArchiveName is the file name offered for a batch export.
	ArchiveName = "batch_scans.zip"
	// FolderName is the folder inside the archive holding every entry.
	FolderName   = "processed_scans"
	manifestName = "manifest.yaml"
	defaultExt   = ".jpg"
)

// ErrNothingToExport is returned when no item has been cropped yet.
var ErrNothingToExport = errors.New("no cropped items to export")

// Loader fetches the bytes behind a result reference.
type Loader interface {
	Load(ctx context.Context, ref string) ([]byte, string, error)
}

// Entry is one archive member planned from a cropped result.
type Entry struct {
	ItemID      string `yaml:"-"`
	Path        string `yaml:"path"`
	ResultIndex int    `yaml:"result_index"`
	ref         string
}

// Manifest describes the archive contents.
type Manifest struct {
	GeneratedAt time.Time      `yaml:"generated_at"`
	Archive     string         `yaml:"archive"`
	Items       []ManifestItem `yaml:"items"`
}

// ManifestItem lists one registry item and the entries written for it.
type ManifestItem struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Status  string   `yaml:"status"`
	Error   string   `yaml:"error,omitempty"`
	Entries []string `yaml:"entries,omitempty"`
}

// Plan derives archive entries from items in registry order. Only cropped
// items contribute; colliding names get a numeric suffix.
func Plan(items []queue.Item) []Entry {
	used := make(map[string]int)
	var entries []Entry
	for _, item := range items {
		if item.Status != queue.StatusCropped {
			continue
		}
		stem, ext := splitName(item.Name)
		for idx, result := range item.Results {
			ref := strings.TrimSpace(result.Cropped)
			if ref == "" {
				continue
			}
			base := stem + "_processed"
			if idx > 0 {
				base = fmt.Sprintf("%s_%d", base, idx+1)
			}
			name := base + ext
			if n := used[strings.ToLower(name)]; n > 0 {
				name = fmt.Sprintf("%s-%d%s", base, n+1, ext)
			}
			used[strings.ToLower(base+ext)]++
			entries = append(entries, Entry{
				ItemID:      item.ID,
				Path:        path.Join(FolderName, name),
				ResultIndex: idx,
				ref:         ref,
			})
		}
	}
	return entries
}

// Write streams a zip archive of the cropped results to w and returns the
// manifest it embedded. Entries that cannot be loaded abort the export.
func Write(ctx context.Context, w io.Writer, items []queue.Item, loader Loader) (Manifest, error) {
	entries := Plan(items)
	if len(entries) == 0 {
		return Manifest{}, ErrNothingToExport
	}

	manifest := buildManifest(items, entries)
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Manifest{}, err
		}
		data, err := load(ctx, loader, entry.ref)
		if err != nil {
			return Manifest{}, fmt.Errorf("export %s: %w", entry.Path, err)
		}
		header := &zip.FileHeader{Name: entry.Path, Method: zip.Store, Modified: manifest.GeneratedAt}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return Manifest{}, fmt.Errorf("export %s: %w", entry.Path, err)
		}
		if _, err := fw.Write(data); err != nil {
			return Manifest{}, fmt.Errorf("export %s: %w", entry.Path, err)
		}
	}

	raw, err := yaml.Marshal(manifest)
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}
	fw, err := zw.CreateHeader(&zip.FileHeader{Name: path.Join(FolderName, manifestName), Method: zip.Deflate, Modified: manifest.GeneratedAt})
	if err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	if _, err := fw.Write(raw); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Manifest{}, fmt.Errorf("finalize archive: %w", err)
	}
	return manifest, nil
}

// WriteFile writes the archive into dir using a temp file and rename. It
// returns the final path.
func WriteFile(ctx context.Context, dir string, items []queue.Item, loader Loader) (string, Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", Manifest{}, fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".batch_scans-*.zip")
	if err != nil {
		return "", Manifest{}, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	manifest, err := Write(ctx, tmp, items, loader)
	if closeErr := tmp.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close temp archive: %w", closeErr)
	}
	if err != nil {
		cleanup()
		return "", Manifest{}, err
	}
	target := filepath.Join(dir, ArchiveName)
	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return "", Manifest{}, fmt.Errorf("move archive into place: %w", err)
	}
	return target, manifest, nil
}

func buildManifest(items []queue.Item, entries []Entry) Manifest {
	byItem := make(map[string][]string, len(items))
	for _, entry := range entries {
		byItem[entry.ItemID] = append(byItem[entry.ItemID], path.Base(entry.Path))
	}
	manifest := Manifest{
		GeneratedAt: time.Now().UTC().Truncate(time.Second),
		Archive:     ArchiveName,
		Items:       make([]ManifestItem, 0, len(items)),
	}
	for _, item := range items {
		manifest.Items = append(manifest.Items, ManifestItem{
			ID:      item.ID,
			Name:    item.Name,
			Status:  string(item.Status),
			Error:   item.ErrorMessage,
			Entries: byItem[item.ID],
		})
	}
	return manifest
}

func load(ctx context.Context, loader Loader, ref string) ([]byte, error) {
	if imageref.Classify(ref) == imageref.KindData {
		_, data, err := imageref.ParseDataURI(ref)
		return data, err
	}
	if loader == nil {
		return nil, fmt.Errorf("no loader for reference %q", ref)
	}
	data, _, err := loader.Load(ctx, ref)
	return data, err
}

func splitName(name string) (string, string) {
	clean := textutil.SanitizeFileName(textutil.FoldName(name))
	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	if ext == "" {
		ext = defaultExt
	}
	if stem == "" {
		stem = "scan"
	}
	return stem, strings.ToLower(ext)
}
