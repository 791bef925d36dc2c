package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"tutordesk/internal/config"
)

// Message is a single plain-text email to one recipient.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
}

// Sender delivers one message or returns an error describing why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

var ErrNoRecipient = errors.New("message has no recipient")

func (m Message) validate() error {
	if m.To.Address == "" {
		return ErrNoRecipient
	}
	return nil
}

// NewSender picks the delivery backend named by cfg.Provider.
func NewSender(cfg config.MailConfig, logger *slog.Logger) (Sender, error) {
	from := mail.Address{Name: cfg.FromName, Address: cfg.FromAddress}

	switch cfg.Provider {
	case "", "console":
		return NewConsoleSender(from, logger), nil
	case "sendgrid":
		return NewSendgridSender(cfg.SendgridAPIKey, cfg.SendgridHost, from, logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail provider %q", cfg.Provider)
	}
}
