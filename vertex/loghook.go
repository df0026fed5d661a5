package vertex

import (
	"github.com/sarchlab/hypercube/hooking"
	"github.com/sirupsen/logrus"
)

// A LogHook echoes every record and state change of the units it is attached
// to through a logger. Records go at debug level, state changes at trace.
type LogHook struct {
	logger logrus.FieldLogger
}

// NewLogHook creates a LogHook writing to logger.
func NewLogHook(logger logrus.FieldLogger) *LogHook {
	return &LogHook{logger: logger}
}

// Func logs the hook context.
func (h *LogHook) Func(ctx hooking.HookCtx) {
	unit, ok := ctx.Domain.(*Unit)
	if !ok {
		return
	}

	entry := h.logger.WithField("vertex", unit.Address())

	switch ctx.Pos {
	case HookPosTokenStart, HookPosTokenRecv:
		rec := ctx.Detail.(Record)
		entry.Debug(rec.String())
	case HookPosTokenSend:
		entry.WithField("dimension", ctx.Detail).Trace("token forwarded")
	case HookPosStateChange:
		entry.WithField("state", ctx.Detail).Trace("state changed")
	}
}
