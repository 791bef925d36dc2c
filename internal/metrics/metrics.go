package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	studentsRegistered    metric.Int64Counter
	progressAdded         metric.Int64Counter
	subscriptionsExtended metric.Int64Counter
	statusChanges         metric.Int64Counter
	notificationsSent     metric.Int64Counter
	notificationsFailed   metric.Int64Counter
	schedulerRuns         metric.Int64Counter
	schedulerMatched      metric.Int64Counter
}

func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.studentsRegistered, err = meter.Int64Counter(
		"tutordesk.students.registered",
		metric.WithDescription("Total number of students registered"),
		metric.WithUnit("{student}"),
	)
	if err != nil {
		return nil, err
	}

	m.progressAdded, err = meter.Int64Counter(
		"tutordesk.progress.added",
		metric.WithDescription("Total number of progress entries added"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.subscriptionsExtended, err = meter.Int64Counter(
		"tutordesk.subscriptions.extended",
		metric.WithDescription("Total number of subscription extensions"),
		metric.WithUnit("{extension}"),
	)
	if err != nil {
		return nil, err
	}

	m.statusChanges, err = meter.Int64Counter(
		"tutordesk.students.status_changes",
		metric.WithDescription("Total number of student status changes"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, err
	}

	m.notificationsSent, err = meter.Int64Counter(
		"tutordesk.notifications.sent",
		metric.WithDescription("Total number of notification emails delivered"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, err
	}

	m.notificationsFailed, err = meter.Int64Counter(
		"tutordesk.notifications.failed",
		metric.WithDescription("Total number of notification emails that failed to deliver"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, err
	}

	m.schedulerRuns, err = meter.Int64Counter(
		"tutordesk.scheduler.runs",
		metric.WithDescription("Total number of scheduled job runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.schedulerMatched, err = meter.Int64Counter(
		"tutordesk.scheduler.matched",
		metric.WithDescription("Total number of students matched by scheduled jobs"),
		metric.WithUnit("{student}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *Metrics) RecordStudentRegistration(ctx context.Context) {
	if m != nil && m.studentsRegistered != nil {
		m.studentsRegistered.Add(ctx, 1)
	}
}

func (m *Metrics) RecordProgressAdded(ctx context.Context) {
	if m != nil && m.progressAdded != nil {
		m.progressAdded.Add(ctx, 1)
	}
}

func (m *Metrics) RecordSubscriptionExtended(ctx context.Context, months int) {
	if m != nil && m.subscriptionsExtended != nil {
		m.subscriptionsExtended.Add(ctx, 1, metric.WithAttributes(attribute.Int("months", months)))
	}
}

func (m *Metrics) RecordStatusChange(ctx context.Context, status string) {
	if m != nil && m.statusChanges != nil {
		m.statusChanges.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	}
}

// RecordNotification counts one delivery attempt of the given kind (welcome, expiry, payment).
func (m *Metrics) RecordNotification(ctx context.Context, kind string, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("kind", kind))
	if err != nil {
		if m.notificationsFailed != nil {
			m.notificationsFailed.Add(ctx, 1, attrs)
		}
		return
	}
	if m.notificationsSent != nil {
		m.notificationsSent.Add(ctx, 1, attrs)
	}
}

func (m *Metrics) RecordSchedulerRun(ctx context.Context, job string, matched int, err error) {
	if m == nil || m.schedulerRuns == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.schedulerRuns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("outcome", outcome),
	))
	if m.schedulerMatched != nil && matched > 0 {
		m.schedulerMatched.Add(ctx, int64(matched), metric.WithAttributes(attribute.String("job", job)))
	}
}

// NewMock creates a no-op Metrics instance for testing
// The returned Metrics will safely ignore all Record* calls
func NewMock() *Metrics {
	return &Metrics{}
}
