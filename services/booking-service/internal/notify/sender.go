// Package notify composes and delivers booking emails. Senders are swappable
// (SMTP, SendGrid, SES, log) without changing callers.
package notify

import (
	"context"
	"log/slog"
)

type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs instead of delivering; used when no provider is configured.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info("email not delivered (log sender)", "to", msg.To, "subject", msg.Subject)
	return nil
}
