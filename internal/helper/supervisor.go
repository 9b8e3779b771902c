package helper

import (
	"context"
	"log/slog"
)

// Pipeline is what the supervisor drives: the shared proxy pipeline plus its
// reset hook.
type Pipeline interface {
	SendAs(ctx context.Context, req SendRequest) bool
	EditAs(ctx context.Context, req EditRequest) bool
	Reset(ctx context.Context) error
}

// Supervisor wraps the pipeline with bounded retry. Whenever an operation
// reports failure it resets the pipeline (logout, clear state, reconnect with
// the service credential) and tries again, up to the attempt ceiling. After
// the ceiling the operation is abandoned; the caller must leave the human's
// original message in place.
type Supervisor struct {
	pipeline Pipeline
	ceiling  int
	logger   *slog.Logger
}

// NewSupervisor creates a supervisor with the given attempt ceiling.
func NewSupervisor(log *slog.Logger, pipeline Pipeline, ceiling int) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if ceiling <= 0 {
		ceiling = 3
	}
	return &Supervisor{
		pipeline: pipeline,
		ceiling:  ceiling,
		logger:   log.With(slog.String("service", "supervisor")),
	}
}

// Deliver attempts a proxied send until it succeeds or the ceiling is hit.
func (s *Supervisor) Deliver(ctx context.Context, req SendRequest) bool {
	for attempt := 1; attempt <= s.ceiling; attempt++ {
		if s.pipeline.SendAs(ctx, req) {
			return true
		}
		s.logger.Debug("proxied send failed",
			slog.Int("attempt", attempt), slog.Int("ceiling", s.ceiling))
		if ctx.Err() != nil {
			break
		}
		if err := s.pipeline.Reset(ctx); err != nil {
			s.logger.Error("pipeline reset failed", slog.Any("error", err))
		}
	}
	s.logger.Error("proxied send abandoned",
		slog.String("channel_id", req.ChannelID), slog.Int("ceiling", s.ceiling))
	return false
}

// Amend attempts a proxied edit until it succeeds or the ceiling is hit.
func (s *Supervisor) Amend(ctx context.Context, req EditRequest) bool {
	for attempt := 1; attempt <= s.ceiling; attempt++ {
		if s.pipeline.EditAs(ctx, req) {
			return true
		}
		s.logger.Debug("proxied edit failed",
			slog.Int("attempt", attempt), slog.Int("ceiling", s.ceiling))
		if ctx.Err() != nil {
			break
		}
		if err := s.pipeline.Reset(ctx); err != nil {
			s.logger.Error("pipeline reset failed", slog.Any("error", err))
		}
	}
	s.logger.Error("proxied edit abandoned",
		slog.String("message_id", req.MessageID), slog.Int("ceiling", s.ceiling))
	return false
}
