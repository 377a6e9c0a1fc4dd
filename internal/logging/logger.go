package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"scanmaster/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level            string
	Format           string
	OutputPaths      []string
	ErrorOutputPaths []string
	Development      bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	writer, err := openWriters(
		defaultSlice(opts.OutputPaths, []string{"stdout"}),
		defaultSlice(opts.ErrorOutputPaths, []string{"stderr"}),
	)
	if err != nil {
		return nil, err
	}

	addSource := opts.Development || level <= slog.LevelDebug

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" {
		format = "console"
	}

	var handler slog.Handler
	switch format {
	case "json":
		handler = newJSONHandler(writer, levelVar, addSource)
	case "console":
		handler = newConsoleHandler(writer, levelVar, addSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return slog.New(handler), nil
}

// NewFromConfig creates a logger using application config defaults. When a
// log directory is configured, output is mirrored to scanmaster.log there.
func NewFromConfig(cfg *config.Config) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Level: "info", Format: "console"})
	}

	outputPaths := []string{"stdout"}
	errorOutputs := []string{"stderr"}
	if dir := strings.TrimSpace(cfg.Paths.LogDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
		logPath := filepath.Join(dir, "scanmaster.log")
		outputPaths = append(outputPaths, logPath)
		errorOutputs = append(errorOutputs, logPath)
	}

	return New(Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: errorOutputs,
	})
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func defaultSlice(value []string, fallback []string) []string {
	if len(value) == 0 {
		return append([]string(nil), fallback...)
	}
	return append([]string(nil), value...)
}

func openWriters(outputPaths []string, errorPaths []string) (io.Writer, error) {
	seen := make(map[string]bool)
	var writers []io.Writer
	for _, raw := range append(append([]string{}, outputPaths...), errorPaths...) {
		target := strings.TrimSpace(raw)
		if target == "" || seen[target] {
			continue
		}
		seen[target] = true
		w, err := openWriter(target)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openWriter(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory for %s: %w", target, err)
	}
	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", target, err)
	}
	return file, nil
}

func newJSONHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return attr
			}
			switch attr.Key {
			case slog.TimeKey:
				return slog.String("ts", attr.Value.Time().UTC().Format(time.RFC3339Nano))
			case slog.LevelKey:
				return slog.String(slog.LevelKey, strings.ToLower(attr.Value.String()))
			case slog.SourceKey:
				if src, ok := attr.Value.Any().(*slog.Source); ok && src != nil {
					return slog.String(slog.SourceKey, sourceLabel(src))
				}
			}
			return attr
		},
	})
}

// consoleHandler renders one line per record. Component and stage lead the
// line, the item it concerns follows, and the correlation id trails:
//
//	2026-01-02 15:04:05 INF workflow-manager/processing receipt.png#ab12cd34 item cropped results=2 req=9f1c
type consoleHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// consoleLine collects the promoted scanmaster fields of one record; the rest
// are rendered as key=value pairs in arrival order.
type consoleLine struct {
	component string
	stage     string
	itemID    string
	itemName  string
	requestID string
	extra     []string
}

func (l *consoleLine) add(key string, value slog.Value) {
	text := valueText(value)
	promote := func(dst *string) bool {
		if *dst != "" {
			return false
		}
		*dst = text
		return true
	}
	var taken bool
	switch key {
	case FieldComponent:
		taken = promote(&l.component)
	case FieldStage:
		taken = promote(&l.stage)
	case FieldItemID:
		taken = promote(&l.itemID)
	case FieldItemName:
		taken = promote(&l.itemName)
	case FieldCorrelationID:
		taken = promote(&l.requestID)
	}
	if !taken && key != "" {
		l.extra = append(l.extra, key+"="+quoteIfNeeded(text))
	}
}

// subject names the item a record is about: name#shortid, name, or #shortid.
func (l *consoleLine) subject() string {
	switch {
	case l.itemName != "" && l.itemID != "":
		return l.itemName + "#" + shortID(l.itemID)
	case l.itemName != "":
		return l.itemName
	case l.itemID != "":
		return "#" + shortID(l.itemID)
	}
	return ""
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	line := consoleLine{}
	for _, attr := range h.attrs {
		walkAttr(h.groups, attr, line.add)
	}
	record.Attrs(func(attr slog.Attr) bool {
		walkAttr(h.groups, attr, line.add)
		return true
	})

	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}
	parts := []string{at.Format(time.DateTime), levelTag(record.Level)}
	if origin := strings.Trim(line.component+"/"+line.stage, "/"); origin != "" {
		parts = append(parts, origin)
	}
	if subject := line.subject(); subject != "" {
		parts = append(parts, subject)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "-"
	}
	parts = append(parts, msg)
	parts = append(parts, line.extra...)
	if line.requestID != "" {
		parts = append(parts, "req="+line.requestID)
	}
	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			parts = append(parts, "@"+sourceLabel(src))
		}
	}

	out := strings.Join(parts, " ") + "\n"
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, out)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

// walkAttr flattens groups into dotted keys and hands each leaf to visit.
func walkAttr(prefix []string, attr slog.Attr, visit func(string, slog.Value)) {
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		if attr.Key == "" && value.Any() == nil {
			return
		}
		visit(strings.Join(append(append([]string(nil), prefix...), attr.Key), "."), value)
		return
	}
	nested := prefix
	if attr.Key != "" {
		nested = append(append([]string(nil), prefix...), attr.Key)
	}
	for _, child := range value.Group() {
		walkAttr(nested, child, visit)
	}
}

func valueText(v slog.Value) string {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n=\"") {
		return strconv.Quote(s)
	}
	return s
}

func shortID(id string) string {
	const width = 8
	if len(id) <= width {
		return id
	}
	return id[:width]
}

func sourceLabel(src *slog.Source) string {
	return filepath.Base(src.File) + ":" + strconv.Itoa(src.Line)
}

func levelTag(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	}
	return "DBG"
}
