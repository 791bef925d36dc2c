package notification

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"text/template"

	tdmail "tutordesk/internal/mail"
	"tutordesk/internal/metrics"
	"tutordesk/internal/student"
)

const (
	KindWelcome = "welcome"
	KindExpiry  = "expiry"
	KindPayment = "payment"

	displayDate = "Jan 02, 2006"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

//go:embed templates/*.txt
var templateFS embed.FS

var subjects = map[string]string{
	KindWelcome: "Welcome to Tutor Desk!",
	KindExpiry:  "Subscription Expiry Notice - Tutor Desk",
	KindPayment: "Payment Reminder - Tutor Desk",
}

// Notifier sends student emails. Delivery is best-effort: failures are logged and counted, never returned.
type Notifier interface {
	SendWelcome(ctx context.Context, s student.Student)
	SendSubscriptionExpiryNotice(ctx context.Context, students []student.Student)
	SendPaymentReminder(ctx context.Context, students []student.Student)
}

type notifier struct {
	sender    tdmail.Sender
	templates map[string]*template.Template
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewNotifier(sender tdmail.Sender, logger *slog.Logger, m *metrics.Metrics) (Notifier, error) {
	templates := make(map[string]*template.Template, len(subjects))
	for kind := range subjects {
		tmpl, err := template.New(kind+".txt").Option("missingkey=error").ParseFS(templateFS, "templates/"+kind+".txt")
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s template: %w", kind, err)
		}
		templates[kind] = tmpl
	}

	return &notifier{
		sender:    sender,
		templates: templates,
		logger:    logger,
		metrics:   m,
	}, nil
}

type templateData struct {
	Name       string
	Level      string
	StartDate  string
	Expiry     string
	MonthlyFee string
	PaymentDay int
}

func newTemplateData(s student.Student) templateData {
	level := s.Level
	if level == "" {
		level = "Not specified"
	}
	return templateData{
		Name:       s.Name,
		Level:      level,
		StartDate:  s.StartDate.Format(displayDate),
		Expiry:     s.SubscriptionExpiry.Format(displayDate),
		MonthlyFee: fmt.Sprintf("%.2f", s.MonthlyFee),
		PaymentDay: s.PaymentDay,
	}
}

func (n *notifier) render(kind string, s student.Student) (tdmail.Message, error) {
	var buf bytes.Buffer
	if err := n.templates[kind].Execute(&buf, newTemplateData(s)); err != nil {
		return tdmail.Message{}, err
	}
	return tdmail.Message{
		To:      mail.Address{Name: s.Name, Address: s.Email},
		Subject: subjects[kind],
		Text:    buf.String(),
	}, nil
}

func (n *notifier) deliver(ctx context.Context, kind string, s student.Student) error {
	msg, err := n.render(kind, s)
	if err == nil {
		err = n.sender.Send(ctx, msg)
	}
	if err != nil {
		err = fmt.Errorf("%w: %s to %s: %v", ErrDeliveryFailed, kind, s.Email, err)
		n.logger.ErrorContext(ctx, "failed to send notification", "kind", kind, "email", s.Email, "error", err)
	} else {
		n.logger.InfoContext(ctx, "notification sent", "kind", kind, "email", s.Email)
	}
	n.metrics.RecordNotification(ctx, kind, err)
	return err
}

func (n *notifier) deliverAll(ctx context.Context, kind string, students []student.Student) {
	if len(students) == 0 {
		n.logger.InfoContext(ctx, "no students to notify", "kind", kind)
		return
	}

	n.logger.InfoContext(ctx, "sending notifications", "kind", kind, "count", len(students))
	failed := 0
	for _, s := range students {
		if err := n.deliver(ctx, kind, s); err != nil {
			failed++
		}
	}
	if failed > 0 {
		n.logger.WarnContext(ctx, "some notifications failed", "kind", kind, "failed", failed, "total", len(students))
	}
}

func (n *notifier) SendWelcome(ctx context.Context, s student.Student) {
	_ = n.deliver(ctx, KindWelcome, s)
}

func (n *notifier) SendSubscriptionExpiryNotice(ctx context.Context, students []student.Student) {
	n.deliverAll(ctx, KindExpiry, students)
}

func (n *notifier) SendPaymentReminder(ctx context.Context, students []student.Student) {
	n.deliverAll(ctx, KindPayment, students)
}
