// Package log wraps slog with a component tag so every line can be traced
// back to the subsystem that wrote it.
package log

import (
	"log/slog"
	"os"
)

// Component names used across the application.
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentBudget   = "budget"
	ComponentStorage  = "storage"
	ComponentAMQP     = "amqp"
	ComponentAuth     = "auth"
	ComponentPresence = "presence"
)

// Logger is a slog.Logger that always carries its component attribute.
type Logger struct {
	*slog.Logger
	component string
}

// New builds a text logger writing to stdout at the given level.
func New(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{Logger: slog.New(handler), component: ComponentApp}
}

// FromSlog wraps an existing slog logger.
func FromSlog(l *slog.Logger) *Logger {
	return &Logger{Logger: l, component: ComponentApp}
}

// WithComponent returns a logger tagged with a specific component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With("component", component),
		component: component,
	}
}

// With returns a logger with extra attributes attached.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component}
}

// Component returns the logger's component name.
func (l *Logger) Component() string { return l.component }

// SetDefault installs the wrapped logger as slog's default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
