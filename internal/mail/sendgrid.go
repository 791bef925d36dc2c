package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultSendgridHost = "https://api.sendgrid.com"
	sendgridEndpoint    = "/v3/mail/send"
)

type SendgridSender struct {
	key    string
	host   string
	from   *sgmail.Email
	logger *slog.Logger
}

func NewSendgridSender(key, host string, from mail.Address, logger *slog.Logger) *SendgridSender {
	if host == "" {
		host = defaultSendgridHost
	}
	return &SendgridSender{
		key:    key,
		host:   host,
		from:   sgmail.NewEmail(from.Name, from.Address),
		logger: logger,
	}
}

func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	to := sgmail.NewEmail(msg.To.Name, msg.To.Address)
	email := sgmail.NewSingleEmailPlainText(s.from, msg.Subject, to, msg.Text)

	client := &sendgrid.Client{Request: sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)}
	res, err := client.SendWithContext(ctx, email)
	if err != nil {
		return fmt.Errorf("sendgrid request failed: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid responded with status %d: %s", res.StatusCode, res.Body)
	}

	s.logger.DebugContext(ctx, "email sent via sendgrid", "to", msg.To.Address, "status", res.StatusCode)
	return nil
}
