package scheduler

import (
	"context"
	"fmt"
	"time"

	"tutordesk/internal/notification"
	"tutordesk/internal/student"
)

const (
	ExpiryCheckJobName     = "subscription-expiry-check"
	PaymentReminderJobName = "payment-reminder-check"
)

// StudentSource is the slice of the student service the jobs need.
type StudentSource interface {
	ListExpiringSubscriptions(ctx context.Context, daysBeforeExpiry int) ([]student.Student, error)
	ListByStatus(ctx context.Context, status student.Status) ([]student.Student, error)
}

type ExpiryCheckJob struct {
	students         StudentSource
	notifier         notification.Notifier
	daysBeforeExpiry int
}

func NewExpiryCheckJob(students StudentSource, notifier notification.Notifier, daysBeforeExpiry int) *ExpiryCheckJob {
	return &ExpiryCheckJob{
		students:         students,
		notifier:         notifier,
		daysBeforeExpiry: daysBeforeExpiry,
	}
}

func (j *ExpiryCheckJob) Name() string { return ExpiryCheckJobName }

func (j *ExpiryCheckJob) Run(ctx context.Context) (int, error) {
	expiring, err := j.students.ListExpiringSubscriptions(ctx, j.daysBeforeExpiry)
	if err != nil {
		return 0, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	if len(expiring) > 0 {
		j.notifier.SendSubscriptionExpiryNotice(ctx, expiring)
	}
	return len(expiring), nil
}

type PaymentReminderJob struct {
	students StudentSource
	notifier notification.Notifier
	now      func() time.Time
}

func NewPaymentReminderJob(students StudentSource, notifier notification.Notifier, now func() time.Time) *PaymentReminderJob {
	if now == nil {
		now = time.Now
	}
	return &PaymentReminderJob{
		students: students,
		notifier: notifier,
		now:      now,
	}
}

func (j *PaymentReminderJob) Name() string { return PaymentReminderJobName }

func (j *PaymentReminderJob) Run(ctx context.Context) (int, error) {
	active, err := j.students.ListByStatus(ctx, student.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("list active students: %w", err)
	}

	due := DueForPaymentReminder(active, student.DateOf(j.now()))
	if len(due) > 0 {
		j.notifier.SendPaymentReminder(ctx, due)
	}
	return len(due), nil
}

// DueForPaymentReminder keeps students whose payment day is today's or tomorrow's day of month.
// Tomorrow is a real calendar date, so on the 31st it is the 1st.
func DueForPaymentReminder(students []student.Student, today time.Time) []student.Student {
	todayDay := today.Day()
	tomorrowDay := today.AddDate(0, 0, 1).Day()

	due := make([]student.Student, 0)
	for _, s := range students {
		if s.PaymentDay == todayDay || s.PaymentDay == tomorrowDay {
			due = append(due, s)
		}
	}
	return due
}
