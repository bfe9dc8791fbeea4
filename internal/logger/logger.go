// Package logger wraps zerolog with a module tag naming the scope that
// emitted each event.
package logger

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLevel is used when no level is configured.
const DefaultLevel = zerolog.WarnLevel

// Logger is a zerolog logger tagged with a module.
type Logger struct {
	zerolog.Logger
	module string

	// root carries no module field; Named derives from it.
	root zerolog.Logger
}

// New creates a root logger writing JSON lines to w. An empty level means
// DefaultLevel.
func New(w io.Writer, level string) (*Logger, error) {
	lvl := DefaultLevel
	if level != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(strings.ToLower(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	root := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	return &Logger{Logger: root, root: root}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop(), root: zerolog.Nop()}
}

// Module returns the logger's module name.
func (l *Logger) Module() string { return l.module }

// Named derives a child logger whose module is the parent's module
// extended with name, upper-cased and dot separated.
func (l *Logger) Named(name ...string) *Logger {
	parts := make([]string, 0, len(name)+1)
	if l.module != "" {
		parts = append(parts, l.module)
	}
	for _, n := range name {
		parts = append(parts, strings.ToUpper(n))
	}
	module := strings.Join(parts, ".")
	return &Logger{Logger: l.root.With().Str("module", module).Logger(), module: module, root: l.root}
}
