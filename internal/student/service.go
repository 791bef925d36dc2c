package student

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service owns the student lifecycle rules.
type Service interface {
	Register(ctx context.Context, details Details) (*Student, error)
	GetByID(ctx context.Context, id string) (*Student, error)
	ListAll(ctx context.Context) ([]Student, error)
	ListByStatus(ctx context.Context, status Status) ([]Student, error)
	Update(ctx context.Context, id string, details Details) (*Student, error)
	Delete(ctx context.Context, id string) error
	AddProgressEntry(ctx context.Context, id string, input ProgressInput) (*Student, error)
	ListExpiringSubscriptions(ctx context.Context, daysBeforeExpiry int) ([]Student, error)
	ExtendSubscription(ctx context.Context, id string, monthsToAdd int) (*Student, error)
	ChangeStatus(ctx context.Context, id string, status Status) (*Student, error)
}

type Option func(*service)

// WithClock replaces time.Now. The clock's location decides what "today" is.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

type service struct {
	repo   Repository
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

func NewService(repo Repository, opts ...Option) Service {
	s := &service{
		repo:   repo,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) today() time.Time {
	return DateOf(s.now())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (d *Details) normalize() error {
	d.Name = strings.TrimSpace(d.Name)
	d.Email = normalizeEmail(d.Email)
	d.StartDate = DateOf(d.StartDate)

	fields := map[string]string{}
	if d.Name == "" {
		fields["name"] = "is required"
	}
	if d.Email == "" {
		fields["email"] = "is required"
	}
	if d.StartDate.IsZero() {
		fields["startDate"] = "is required"
	}
	if d.MonthlyFee <= 0 {
		fields["monthlyFee"] = "must be greater than 0"
	}
	if d.PaymentDay < 1 || d.PaymentDay > 31 {
		fields["paymentDay"] = "must be between 1 and 31"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (in ProgressInput) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Topic) == "" {
		fields["topic"] = "is required"
	}
	if strings.TrimSpace(in.Description) == "" {
		fields["description"] = "is required"
	}
	switch {
	case !isFinite(in.MaxGrade):
		fields["maxGrade"] = "must be a finite number"
	case in.MaxGrade <= 0:
		fields["maxGrade"] = "must be greater than 0"
	}
	switch {
	case !isFinite(in.Grade):
		fields["grade"] = "must be a finite number"
	case in.Grade < 0 || in.Grade > in.MaxGrade:
		fields["grade"] = "must be between 0 and maxGrade"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

// isFinite rejects NaN and ±Inf, which JSON cannot encode.
func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ensureEmailFree fails with ErrEmailExists when another student owns the email.
func (s *service) ensureEmailFree(ctx context.Context, email, ownerID string) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrStudentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up email: %w", err)
	}
	if existing.ID != ownerID {
		return ErrEmailExists
	}
	return nil
}

func (s *service) Register(ctx context.Context, details Details) (*Student, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "registering student", "email", details.Email)

	if err := s.ensureEmailFree(ctx, details.Email, ""); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	student := &Student{
		ID:                 s.newID(),
		Name:               details.Name,
		Email:              details.Email,
		Phone:              details.Phone,
		StartDate:          details.StartDate,
		Level:              details.Level,
		Status:             StatusActive,
		MonthlyFee:         details.MonthlyFee,
		PaymentDay:         details.PaymentDay,
		SubscriptionExpiry: AddMonths(details.StartDate, 1),
		Notes:              details.Notes,
		Progress:           []ProgressEntry{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Save(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to save student: %w", err)
	}
	return student, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*Student, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.FindByID(ctx, id)
}

func (s *service) ListAll(ctx context.Context) ([]Student, error) {
	return s.repo.FindAll(ctx)
}

func (s *service) ListByStatus(ctx context.Context, status Status) ([]Student, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	return s.repo.FindByStatus(ctx, status)
}

func (s *service) Update(ctx context.Context, id string, details Details) (*Student, error) {
	if err := details.normalize(); err != nil {
		return nil, err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "updating student", "id", id)

	if details.Email != student.Email {
		if err := s.ensureEmailFree(ctx, details.Email, student.ID); err != nil {
			return nil, err
		}
	}

	student.Name = details.Name
	student.Email = details.Email
	student.Phone = details.Phone
	student.StartDate = details.StartDate
	student.Level = details.Level
	student.MonthlyFee = details.MonthlyFee
	student.PaymentDay = details.PaymentDay
	student.Notes = details.Notes
	student.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to save student: %w", err)
	}
	return student, nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	exists, err := s.repo.ExistsByID(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrStudentNotFound
	}

	s.logger.InfoContext(ctx, "deleting student", "id", id)
	return s.repo.DeleteByID(ctx, id)
}

func (s *service) AddProgressEntry(ctx context.Context, id string, input ProgressInput) (*Student, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := s.now()
	student.Progress = append(student.Progress, ProgressEntry{
		ID:          s.newID(),
		Date:        DateOf(now),
		Topic:       strings.TrimSpace(input.Topic),
		Description: strings.TrimSpace(input.Description),
		Grade:       input.Grade,
		MaxGrade:    input.MaxGrade,
		Comments:    input.Comments,
		CreatedAt:   now.UTC(),
	})
	student.UpdatedAt = now.UTC()

	if err := s.repo.Save(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to save progress entry: %w", err)
	}
	return student, nil
}

func (s *service) ListExpiringSubscriptions(ctx context.Context, daysBeforeExpiry int) ([]Student, error) {
	if daysBeforeExpiry < 0 {
		return nil, &ValidationError{Fields: map[string]string{"daysBeforeExpiry": "must not be negative"}}
	}
	cutoff := s.today().AddDate(0, 0, daysBeforeExpiry)
	return s.repo.FindActiveWithExpiryAtOrBefore(ctx, cutoff)
}

func (s *service) ExtendSubscription(ctx context.Context, id string, monthsToAdd int) (*Student, error) {
	if monthsToAdd < 1 {
		return nil, &ValidationError{Fields: map[string]string{"monthsToAdd": "must be at least 1"}}
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := student.SubscriptionExpiry
	student.SubscriptionExpiry = AddMonths(previous, monthsToAdd)
	student.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to extend subscription: %w", err)
	}

	s.logger.InfoContext(ctx, "subscription extended",
		"id", id,
		"from", previous.Format(DateLayout),
		"to", student.SubscriptionExpiry.Format(DateLayout),
	)
	return student, nil
}

func (s *service) ChangeStatus(ctx context.Context, id string, status Status) (*Student, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}

	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if student.Status == status {
		return student, nil
	}
	if !student.Status.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, student.Status, status)
	}

	student.Status = status
	student.UpdatedAt = s.now().UTC()

	if err := s.repo.Save(ctx, student); err != nil {
		return nil, fmt.Errorf("failed to change status: %w", err)
	}
	return student, nil
}
