// Package logger provides the structured logging interface used across the
// message board, backed by zerolog, with optional daily-rotated log files for
// the server.
package logger

import (
	"fmt"
	"io"
	"net/netip"
	"os"

	"github.com/rs/zerolog"
)

// Field represents a key-value pair for structured log output.
type Field struct {
	Key   string
	Value any
}

// Err returns a Field carrying err under the "error" key.
func Err(err error) Field {
	return Field{Key: "error", Value: err}
}

// Addr returns a Field carrying a peer address under the "addr" key.
func Addr(addr netip.AddrPort) Field {
	return Field{Key: "addr", Value: addr.String()}
}

// Logger is an interface for structured logging. Loggers may be derived with
// With for component-scoped or datagram-scoped fields.
type Logger interface {
	// Debug logs a message at debug level with optional structured fields.
	Debug(msg string, fields ...Field)

	// Info logs a message at info level with optional structured fields.
	Info(msg string, fields ...Field)

	// Warn logs a message at warn level with optional structured fields.
	Warn(msg string, fields ...Field)

	// Error logs a message at error level with optional structured fields.
	Error(msg string, fields ...Field)

	// With returns a new Logger that includes the given fields in all
	// subsequent log entries. The original Logger is unchanged.
	//
	// Parameters:
	//   - fields: Key-value pairs to attach to the derived logger
	//
	// Returns:
	//   - A new Logger with the specified fields
	With(fields ...Field) Logger

	// Close releases resources held by the logger (e.g. file handles).
	// It is safe to call multiple times.
	Close() error
}

// Options selects where and how a Logger writes.
type Options struct {
	// Service is added as the "service" field and names log files.
	Service string

	// Level is a zerolog level name ("debug", "info", ...). Empty means info.
	Level string

	// Dir, when set, additionally writes to daily-rotated files in Dir.
	Dir string

	// Output is the primary writer. Nil means os.Stdout.
	Output io.Writer
}

// zerologLogger is the zerolog-based implementation of Logger.
type zerologLogger struct {
	logger     zerolog.Logger
	fileWriter *DailyFileWriter
	ownsFile   bool
}

// New builds a Logger from opts.
//
// Parameters:
//   - opts: Output, level and rotation settings
//
// Returns:
//   - The Logger
//   - An error if the level is unknown or the log directory cannot be prepared
func New(opts Options) (Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("logger: level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	var out io.Writer = os.Stdout
	if opts.Output != nil {
		out = opts.Output
	}

	var fileWriter *DailyFileWriter
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, fmt.Errorf("logger: create log directory: %w", err)
		}

		w, err := NewDailyFileWriter(opts.Service, opts.Dir)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}

		fileWriter = w
		out = io.MultiWriter(out, w)
	}

	return &zerologLogger{
		logger:     zerolog.New(out).With().Str("service", opts.Service).Timestamp().Logger().Level(level),
		fileWriter: fileWriter,
		ownsFile:   fileWriter != nil,
	}, nil
}

// NewZerologLogger wraps an existing zerolog.Logger, adding a service name and
// timestamp to all entries and filtering by level.
func NewZerologLogger(l zerolog.Logger, serviceName string, level zerolog.Level) Logger {
	return &zerologLogger{
		logger: l.With().Str("service", serviceName).Timestamp().Logger().Level(level),
	}
}

// Nop returns a Logger that discards everything. Useful in tests.
func Nop() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}

func (z *zerologLogger) Debug(msg string, fields ...Field) {
	z.logger.Debug().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Info(msg string, fields ...Field) {
	z.logger.Info().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Warn(msg string, fields ...Field) {
	z.logger.Warn().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) Error(msg string, fields ...Field) {
	z.logger.Error().Fields(toMap(fields)).Msg(msg)
}

func (z *zerologLogger) With(fields ...Field) Logger {
	return &zerologLogger{
		logger:     z.logger.With().Fields(toMap(fields)).Logger(),
		fileWriter: z.fileWriter,
	}
}

func (z *zerologLogger) Close() error {
	if z.fileWriter != nil && z.ownsFile {
		return z.fileWriter.Close()
	}

	return nil
}

// toMap converts a slice of Field into a map for zerolog.
func toMap(fields []Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}

	m := make(map[string]any, len(fields))
	for _, f := range fields {
		m[f.Key] = f.Value
	}

	return m
}
