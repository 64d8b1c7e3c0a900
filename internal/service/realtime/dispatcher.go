package realtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/vovakirdan/flowchat-server/internal/core"
	"github.com/vovakirdan/flowchat-server/internal/observability"
)

// Handle validates one inbound command and runs it. Malformed commands get an
// error event and never reach the handlers; the connection stays open either way.
func (s *Service) Handle(ctx context.Context, c *core.Client, cmd core.Command) {
	start := time.Now()
	name := cmd.Name()

	if verr := cmd.Validate(); verr != nil {
		s.replyError(c, name, verr)
		s.metrics.CommandHandled(name, "rejected", time.Since(start))
		s.log.Debug().Str("conn_id", c.ID).Str("event", name).Str("reason", verr.Message).Msg("command rejected")
		return
	}

	ctx, span := s.tracer.Start(ctx, name,
		attribute.String("conn_id", c.ID),
		attribute.String("user_id", c.UserID),
	)
	err := cmd.Dispatch(ctx, s, c)
	observability.End(span, err)

	status := "ok"
	if err != nil {
		status = "error"
		s.log.Warn().Err(err).Str("conn_id", c.ID).Str("user_id", c.UserID).Str("event", name).Msg("command failed")
	}
	s.metrics.CommandHandled(name, status, time.Since(start))
}

var _ core.CommandHandler = (*Service)(nil)
