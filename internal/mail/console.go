package mail

import (
	"context"
	"log/slog"
	"net/mail"
)

// ConsoleSender logs messages instead of delivering them.
type ConsoleSender struct {
	from   mail.Address
	logger *slog.Logger
}

func NewConsoleSender(from mail.Address, logger *slog.Logger) *ConsoleSender {
	return &ConsoleSender{from: from, logger: logger}
}

func (s *ConsoleSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email",
		"from", s.from.String(),
		"to", msg.To.String(),
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
