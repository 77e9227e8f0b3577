package logger

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/nestmatch/engine/internal/config"
)

// Format selects the handler encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options describe one logger setup. Zero value means text at info level.
type Options struct {
	Level     string
	Format    Format
	Component string
	AddSource bool
}

var (
	mu     sync.RWMutex
	global *slog.Logger
)

// InitFromConfig initializes the global logger from app config.
// A nil config falls back to the defaults.
func InitFromConfig(c *config.Config) {
	if c == nil {
		Init(nil)
		return
	}
	Init(&Options{
		Level:     c.Log.Level,
		Format:    Format(c.Log.Format),
		Component: c.Log.Component,
		AddSource: c.Log.Source,
	})
}

// Init sets up the global logger. Safe to call multiple times; the last
// call wins.
func Init(o *Options) {
	if o == nil {
		o = &Options{}
	}

	mu.Lock()
	defer mu.Unlock()
	global = build(*o)
}

func build(o Options) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     parseLevel(o.Level),
		AddSource: o.AddSource,
	}

	var handler slog.Handler
	if strings.EqualFold(string(o.Format), string(FormatJSON)) {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		// Human-readable timestamps for the text handler.
		opts.ReplaceAttr = func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format("2006-01-02 15:04:05"))
			}
			return a
		}
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	if o.Component != "" {
		log = log.With("component", o.Component)
	}
	return log
}

// L returns the global logger, initializing the default one on first use.
func L() *slog.Logger {
	mu.RLock()
	l := global
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(nil)

	mu.RLock()
	defer mu.RUnlock()
	return global
}

// With creates a child logger with additional attributes.
func With(args ...any) *slog.Logger { return L().With(args...) }

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

func parseLevel(s string) slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
