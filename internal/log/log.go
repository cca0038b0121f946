// Package log provides structured component logging for the launchpad node.
package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for different parts of the system.
var (
	Ledger  zerolog.Logger
	Factory zerolog.Logger
	Token   zerolog.Logger
	FHE     zerolog.Logger
	Relayer zerolog.Logger
	RPC     zerolog.Logger
	Storage zerolog.Logger
	Sink    zerolog.Logger
	Node    zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stdout, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration.
// When file is non-empty, logs go to the console (colored or JSON per
// jsonOutput) and to the file, which always receives JSON.
func Init(level string, jsonOutput bool, file string) error {
	var console io.Writer = os.Stdout
	if !jsonOutput {
		console = consoleWriter(os.Stdout)
	}

	w := console
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		w = zerolog.MultiLevelWriter(console, f)
	}

	Logger = newLogger(w, level)
	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(consoleWriter(w), level)
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return newLogger(w, level)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// parseLevel converts a level name to zerolog.Level, defaulting to info.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Ledger = WithComponent("ledger")
	Factory = WithComponent("factory")
	Token = WithComponent("token")
	FHE = WithComponent("fhe")
	Relayer = WithComponent("relayer")
	RPC = WithComponent("rpc")
	Storage = WithComponent("storage")
	Sink = WithComponent("sink")
	Node = WithComponent("node")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Benchmark returns a func that logs the elapsed time at debug level.
//
//	defer log.Benchmark("commit")()
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Ledger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
