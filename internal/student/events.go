package student

import (
	"context"
	"time"
)

type EventType string

const (
	EventRegistered           EventType = "student.registered"
	EventUpdated              EventType = "student.updated"
	EventDeleted              EventType = "student.deleted"
	EventProgressAdded        EventType = "student.progress_added"
	EventSubscriptionExtended EventType = "student.subscription_extended"
	EventStatusChanged        EventType = "student.status_changed"
)

// Event is published after a successful lifecycle change.
type Event struct {
	Type       EventType         `json:"type"`
	StudentID  string            `json:"studentId"`
	Email      string            `json:"email,omitempty"`
	OccurredAt time.Time         `json:"occurredAt"`
	Data       map[string]string `json:"data,omitempty"`
}

// EventPublisher is implemented by the NATS and Kafka producers.
type EventPublisher interface {
	SendMessage(ctx context.Context, key string, value interface{}) error
}

// WelcomeNotifier sends the welcome email after registration.
type WelcomeNotifier interface {
	SendWelcome(ctx context.Context, student Student)
}

type noopPublisher struct{}

func (noopPublisher) SendMessage(context.Context, string, interface{}) error { return nil }

type noopNotifier struct{}

func (noopNotifier) SendWelcome(context.Context, Student) {}
