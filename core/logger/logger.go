// Package logger provides the process-wide structured logger: one line per
// record, stable key order, update metadata pulled from the context.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/m3rciful/chatstats/core/buildinfo"
)

// Options configures InitLogger. Zero values select sane defaults.
type Options struct {
	Level string
	// Format is "json" or "kv"; empty picks kv for dev profiles and json otherwise.
	Format string
	// KeysOrder overrides the leading keys, comma separated.
	KeysOrder string
	// DebugSample is "n/d" or "d"; "off" logs every sampled debug line.
	DebugSample string
	Dir         string
	File        string
	Profile     string
}

var (
	// L is the base logger.
	L = slog.Default()

	// DB logs database connection events.
	DB = L
	// MIG logs schema migration events.
	MIG = L
	// TG logs Telegram transport events.
	TG = L
	// TWire logs Bot API calls and retries.
	TWire = L
	// HTTP logs webhook front door events.
	HTTP = L
	// Stats logs stats store events.
	Stats = L
	// Bot logs command dispatcher events.
	Bot = L
)

var components = []struct {
	dst  **slog.Logger
	name string
}{
	{&DB, "db"},
	{&MIG, "db.migrate"},
	{&TG, "tg"},
	{&TWire, "tg.wire"},
	{&HTTP, "http"},
	{&Stats, "stats"},
	{&Bot, "bot"},
}

var (
	mu      sync.Mutex
	started bool
	out     *lineWriter
	files   []io.Closer

	level      slog.LevelVar
	debugRate  = newSampler(sampleRate{n: 1, d: 50})
	traceDebug bool
)

// InitLogger installs the structured logger as slog's default and rebinds
// the component loggers. Calls after the first are no-ops.
func InitLogger(opts Options) error {
	mu.Lock()
	defer mu.Unlock()
	if started {
		return nil
	}

	sinks := []io.Writer{os.Stdout}
	if f, err := openLogFile(opts.Dir, opts.File); err != nil {
		return err
	} else if f != nil {
		sinks = append(sinks, f)
		files = append(files, f)
	}

	level.Set(parseLevel(opts.Level))
	if r, ok := parseSampleRate(opts.DebugSample); ok {
		debugRate.set(r)
	}
	traceDebug = envFlag("TRACE") || envFlag("LOG_TRACE")

	out = newLineWriter(sinks, 0)
	L = slog.New(newLineHandler(&level, out, pickEncoding(opts), parseKeyOrder(opts.KeysOrder)))
	slog.SetDefault(L)
	for _, c := range components {
		*c.dst = L.With("component", c.name)
	}
	started = true

	profile := strings.ToLower(strings.TrimSpace(opts.Profile))
	if profile == "" {
		profile = "prod"
	}
	L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
		slog.String("go_version", runtime.Version()),
		slog.String("version", buildinfo.Version),
		slog.String("commit", buildinfo.Commit),
		slog.String("build_time", buildinfo.Date),
		slog.String("profile", profile),
		slog.String("log_level", levelName(level.Level())),
	)
	return nil
}

// Shutdown flushes pending lines and closes log files.
func Shutdown() error {
	mu.Lock()
	defer mu.Unlock()
	if !started {
		return nil
	}
	started = false

	var errs []error
	if out != nil {
		errs = append(errs, out.Close())
		out = nil
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	files = nil
	return errors.Join(errs...)
}

func openLogFile(dir, name string) (*os.File, error) {
	dir, name = strings.TrimSpace(dir), strings.TrimSpace(name)
	if dir == "" || name == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

func pickEncoding(opts Options) encoding {
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "kv", "text", "pretty":
		return encodeKV
	case "json":
		return encodeJSON
	}
	switch strings.ToLower(strings.TrimSpace(opts.Profile)) {
	case "dev", "debug", "development", "local":
		return encodeKV
	}
	return encodeJSON
}

func envFlag(name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(name)))
	return err == nil && v
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 in the environment keeps all of them.
func ShouldSampleDebug() bool {
	return traceDebug || debugRate.allow()
}

// LogEvent writes attrs under event. A nil logg resolves through ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	logg.LogAttrs(ctx, lvl, event, attrs...)
}

// Component returns L tagged with name.
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}
