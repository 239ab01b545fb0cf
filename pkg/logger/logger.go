// Package logger builds the slog loggers shared by every chatflow component.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	charmLog "github.com/charmbracelet/log"

	"chatflow/pkg/config"
)

const (
	envFormat    = "CHATFLOW_LOG_FORMAT"
	envLevel     = "CHATFLOW_LOG_LEVEL"
	envAddSource = "CHATFLOW_LOG_ADD_SOURCE"

	componentKey = "component"
	sessionKey   = "session_id"
)

// LogEntry is one line of JSON output.
type LogEntry struct {
	Level     string         `json:"level"`
	Timestamp string         `json:"timestamp"`
	Component string         `json:"component,omitempty"`
	Session   string         `json:"session,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Caller    string         `json:"caller,omitempty"`
}

// settings is the logging config after environment overrides.
type settings struct {
	json      bool
	level     slog.Level
	addSource bool
}

// New builds the process logger. Text output goes through charmbracelet/log; JSON
// output uses one LogEntry object per line.
func New(cfg config.LoggingConfig) (*slog.Logger, error) {
	return newWithWriter(cfg, os.Stderr)
}

// NewFile is New writing to path instead of stderr. The chat TUI owns the terminal,
// so it logs to a file.
func NewFile(cfg config.LoggingConfig, path string) (*slog.Logger, io.Closer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	log, err := newWithWriter(cfg, file)
	if err != nil {
		_ = file.Close()
		return nil, nil, err
	}

	return log, file, nil
}

// For returns log (or the default logger) tagged with component.
func For(log *slog.Logger, component string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}

	return log.With(componentKey, component)
}

// WithSession tags every record of log with the chat session id. The JSON
// handler lifts it into LogEntry.Session.
func WithSession(log *slog.Logger, sessionID string) *slog.Logger {
	if log == nil {
		log = slog.Default()
	}
	if sessionID == "" {
		return log
	}

	return log.With(sessionKey, sessionID)
}

func newWithWriter(cfg config.LoggingConfig, writer io.Writer) (*slog.Logger, error) {
	s, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	if s.json {
		return slog.New(&jsonHandler{
			level:     s.level,
			addSource: s.addSource,
			out:       &lockedWriter{w: writer},
		}), nil
	}

	pretty := charmLog.NewWithOptions(writer, charmLog.Options{
		Level:           charmLog.Level(s.level),
		ReportTimestamp: true,
		ReportCaller:    s.addSource,
		Formatter:       charmLog.TextFormatter,
	})
	return slog.New(pretty), nil
}

func resolve(cfg config.LoggingConfig) (settings, error) {
	var s settings

	switch format := strings.ToLower(envOr(envFormat, cfg.Format)); format {
	case "", "text":
	case "json":
		s.json = true
	default:
		return s, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := parseLevel(envOr(envLevel, cfg.Level))
	if err != nil {
		return s, err
	}
	s.level = level

	s.addSource = cfg.AddSource
	if raw := envOr(envAddSource, ""); raw != "" {
		switch strings.ToLower(raw) {
		case "1", "true", "yes", "on":
			s.addSource = true
		default:
			s.addSource = false
		}
	}

	return s, nil
}

// envOr returns the trimmed value of key, or fallback when it is unset or blank.
func envOr(key string, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return strings.TrimSpace(fallback)
}

func parseLevel(input string) (slog.Level, error) {
	text := strings.ToLower(input)
	switch text {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(text)); err != nil || strings.ContainsAny(text, "+-") {
		return 0, fmt.Errorf("unsupported log level %q", input)
	}
	return level, nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(line)
	return err
}

// jsonHandler renders records as LogEntry lines. Attributes added with With are
// resolved once into base and fields, then copied per record.
type jsonHandler struct {
	level     slog.Level
	addSource bool
	out       *lockedWriter

	base   LogEntry
	fields map[string]any
	prefix string
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *jsonHandler) Handle(_ context.Context, record slog.Record) error {
	at := record.Time
	if at.IsZero() {
		at = time.Now()
	}

	entry := h.base
	entry.Level = strings.ToLower(record.Level.String())
	entry.Timestamp = at.UTC().Format(time.RFC3339Nano)
	entry.Message = record.Message

	fields := maps.Clone(h.fields)
	if fields == nil {
		fields = make(map[string]any, record.NumAttrs())
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.collect(&entry, fields, attr)
		return true
	})
	if len(fields) > 0 {
		entry.Fields = fields
	}

	if h.addSource {
		if src := record.Source(); src != nil && src.File != "" {
			entry.Caller = fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line)
		}
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return h.out.write(append(line, '\n'))
}

func (h *jsonHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.fields = maps.Clone(h.fields)
	if next.fields == nil {
		next.fields = make(map[string]any, len(attrs))
	}
	for _, attr := range attrs {
		next.collect(&next.base, next.fields, attr)
	}
	return &next
}

func (h *jsonHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// collect routes attr into the top-level entry fields or the field map.
func (h *jsonHandler) collect(entry *LogEntry, fields map[string]any, attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := h.prefix + attr.Key
	if text, ok := attr.Value.Any().(string); ok {
		switch key {
		case componentKey:
			entry.Component = text
			return
		case sessionKey:
			entry.Session = text
			return
		}
	}

	fields[key] = plain(attr.Value)
}

// plain converts a slog value into something encoding/json renders readably.
func plain(value slog.Value) any {
	switch value.Kind() {
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindGroup:
		group := make(map[string]any)
		for _, attr := range value.Group() {
			group[attr.Key] = plain(attr.Value.Resolve())
		}
		return group
	case slog.KindAny:
		// errors marshal to {} otherwise
		if err, ok := value.Any().(error); ok {
			return err.Error()
		}
	}
	return value.Any()
}
