// Package logger provides the runtime's structured logging, a thin
// zerolog wrapper in the same shape as every other component in this
// codebase's ambient stack.
package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	Init("info", false)
}

// Init (re)configures the package-level logger. level is parsed with
// zerolog.ParseLevel, defaulting to info on a bad value.
func Init(level string, pretty bool) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(lvl)

	var output io.Writer = os.Stdout
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()
}

// Get returns the package-level logger.
func Get() *zerolog.Logger {
	return &log
}

// WithComponent scopes a logger to a named component ("exec", "task",
// "combinator", ...).
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithWorkerName scopes a logger to one worker goroutine's name.
func WithWorkerName(name string) zerolog.Logger {
	return log.With().Str("worker", name).Logger()
}

// WithQueue scopes a logger to one execution queue's mark.
func WithQueue(mark fmt.Stringer) zerolog.Logger {
	return log.With().Str("queue", mark.String()).Logger()
}

// WithTaskID scopes a logger to one task's debug id.
func WithTaskID(id uint64) zerolog.Logger {
	return log.With().Uint64("task_id", id).Logger()
}

// Convenience methods mirroring zerolog.Logger's top-level event helpers.
func Debug() *zerolog.Event { return log.Debug() }
func Info() *zerolog.Event  { return log.Info() }
func Warn() *zerolog.Event  { return log.Warn() }
func Error() *zerolog.Event { return log.Error() }
func Fatal() *zerolog.Event { return log.Fatal() }
