package logger

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// Watermill adapts a zerolog logger to watermill's logging interface.
type Watermill struct {
	l zerolog.Logger
}

var _ watermill.LoggerAdapter = Watermill{}

func NewWatermill(l zerolog.Logger) Watermill {
	return Watermill{l: l}
}

func (w Watermill) Error(msg string, err error, fields watermill.LogFields) {
	w.l.Error().Err(err).Fields(map[string]any(fields)).Msg(msg)
}

func (w Watermill) Info(msg string, fields watermill.LogFields) {
	w.l.Info().Fields(map[string]any(fields)).Msg(msg)
}

func (w Watermill) Debug(msg string, fields watermill.LogFields) {
	w.l.Debug().Fields(map[string]any(fields)).Msg(msg)
}

func (w Watermill) Trace(msg string, fields watermill.LogFields) {
	w.l.Trace().Fields(map[string]any(fields)).Msg(msg)
}

func (w Watermill) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return Watermill{l: w.l.With().Fields(map[string]any(fields)).Logger()}
}
