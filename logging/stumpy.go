package logging

import (
	"io"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// StumpyLogger adapts a github.com/joeycumines/logiface logger, backed
// by the stumpy JSON event implementation, to the Logger interface.
type StumpyLogger struct {
	logger *logiface.Logger[*stumpy.Event]
}

// NewStumpyLogger builds a StumpyLogger writing newline-delimited JSON
// records to w.
func NewStumpyLogger(w io.Writer) *StumpyLogger {
	return &StumpyLogger{
		logger: stumpy.L.New(
			stumpy.L.WithStumpy(stumpy.WithWriter(w)),
		),
	}
}

func (s *StumpyLogger) Debug() Event { return &stumpyEvent{b: s.logger.Debug()} }
func (s *StumpyLogger) Info() Event  { return &stumpyEvent{b: s.logger.Info()} }
func (s *StumpyLogger) Warn() Event  { return &stumpyEvent{b: s.logger.Warning()} }
func (s *StumpyLogger) Error() Event { return &stumpyEvent{b: s.logger.Err()} }

type stumpyEvent struct {
	b *logiface.Builder[*stumpy.Event]
}

func (e *stumpyEvent) Str(key, val string) Event {
	e.b = e.b.Str(key, val)
	return e
}

func (e *stumpyEvent) Int(key string, val int) Event {
	e.b = e.b.Int(key, val)
	return e
}

func (e *stumpyEvent) Err(err error) Event {
	e.b = e.b.Err(err)
	return e
}

func (e *stumpyEvent) Log(msg string) {
	e.b.Log(msg)
}
