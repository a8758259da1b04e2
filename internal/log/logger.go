package log

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is a slog.Logger bound to one component. The component attribute
// is attached exactly once, however often the logger is derived.
type Logger struct {
	*slog.Logger
	base      *slog.Logger
	component string
}

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Component string
	// Handler overrides the text handler on stdout built from Level.
	Handler slog.Handler
}

// ParseLevel maps LOG_LEVEL values to slog levels, Info for anything
// unknown.
func ParseLevel(s string) slog.Level {
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

// New creates a new logger with the given configuration
func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.Level,
		})
	}
	return bind(slog.New(handler), config.Component)
}

func bind(base *slog.Logger, component string) *Logger {
	l := &Logger{Logger: base, base: base, component: component}
	if component != "" {
		l.Logger = base.With(FieldComponent, component)
	}
	return l
}

// With returns a new logger with the given attributes
func (l *Logger) With(args ...any) *Logger {
	return bind(l.base.With(args...), l.component)
}

// WithComponent returns a new logger for another component, keeping the
// other attributes.
func (l *Logger) WithComponent(component string) *Logger {
	return bind(l.base, component)
}

// Component returns the logger's component name
func (l *Logger) Component() string {
	return l.component
}
