package mailer

import (
	"context"
	"log/slog"

	"claimgate/pkg/email"
)

// LogDispatcher writes mail to the structured log instead of sending it.
// Development and test use only. The address is hashed; tokens and claim
// URLs never reach the log at info level.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, msg Message) error {
	d.logger.Info("mail dispatched",
		"to_hash", email.Hash(msg.To),
		"subject", msg.Subject,
		"tenant", msg.Tenant,
	)
	d.logger.Debug("mail content", "claim_url", msg.ClaimURL)
	return nil
}
