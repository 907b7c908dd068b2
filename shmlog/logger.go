// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shmlog wraps zerolog for the structured logging every router and
// port state-machine transition goes through: state changes and recoverable
// errors at Debug/Warn, fatal contract violations at Error immediately
// before the FatalHandler callback fires.
package shmlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps a zerolog.Logger, binding the structured fields every port
// and router log line carries.
type Logger struct {
	logger zerolog.Logger
}

// New creates a Logger writing to output (os.Stdout if nil), with a
// "runtime" field identifying the process.
func New(runtime string, level zerolog.Level, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	zerolog.TimeFieldFormat = time.RFC3339

	l := zerolog.New(output).Level(level).With().
		Timestamp().
		Str("runtime", runtime).
		Logger()

	return &Logger{logger: l}
}

// WithPort binds port_id and service/instance/event fields, returning a
// child logger every subsequent call on that port should use.
func (l *Logger) WithPort(portID uint64, service, instance, event string) *Logger {
	return &Logger{
		logger: l.logger.With().
			Uint64("port_id", portID).
			Str("service", service).
			Str("instance", instance).
			Str("event", event).
			Logger(),
	}
}

// WithMempool binds a mempool index field.
func (l *Logger) WithMempool(index uint32) *Logger {
	return &Logger{logger: l.logger.With().Uint32("mempool_index", index).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

// Info logs an informational message.
func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

// Error logs a recoverable error.
func (l *Logger) Error(err error, msg string) { l.logger.Error().Err(err).Msg(msg) }

// Fatal logs a fatal contract violation. It does not exit the process —
// that decision belongs to the roudi.FatalHandler this log line precedes.
func (l *Logger) Fatal(err error, msg string) { l.logger.Error().Err(err).Bool("fatal", true).Msg(msg) }

// PortTransition logs a port state-machine transition at Debug level.
func (l *Logger) PortTransition(from, to string) {
	l.logger.Debug().Str("from", from).Str("to", to).Msg("port state transition")
}

// Dispatch logs a router dispatch decision at Debug level.
func (l *Logger) Dispatch(messageType string, matched bool) {
	l.logger.Debug().Str("message_type", messageType).Bool("matched", matched).Msg("discovery dispatch")
}
