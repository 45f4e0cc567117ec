package trace

import (
	"context"
	"log/slog"
)

// Slog emits events to a slog.Logger. The event type becomes the message and
// Data keys are flattened as top-level attributes.
type Slog struct {
	logger *slog.Logger
}

func NewSlog(logger *slog.Logger) *Slog {
	return &Slog{logger: logger}
}

func (s *Slog) OnEvent(ctx context.Context, ev Event) {
	if s == nil || s.logger == nil {
		return
	}
	attrs := make([]slog.Attr, 0, len(ev.Data)+2)
	attrs = append(attrs, slog.String("session_id", ev.SessionID))
	if ev.Step != "" {
		attrs = append(attrs, slog.String("step", ev.Step))
	}
	for k, v := range ev.Data {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, string(ev.Type), attrs...)
}
