package student

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"tutordesk/common/metrics"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// Repository is the persistence gateway for students.
type Repository interface {
	FindByID(ctx context.Context, id string) (*Student, error)
	FindByEmail(ctx context.Context, email string) (*Student, error)
	FindAll(ctx context.Context) ([]Student, error)
	FindByStatus(ctx context.Context, status Status) ([]Student, error)
	FindActiveWithExpiryAtOrBefore(ctx context.Context, date time.Time) ([]Student, error)
	// Save inserts the student or fully replaces the stored record with the same id.
	Save(ctx context.Context, student *Student) error
	DeleteByID(ctx context.Context, id string) error
	ExistsByID(ctx context.Context, id string) (bool, error)
}

const uniqueViolation = "23505"

type repository struct {
	db      *bun.DB
	metrics *metrics.Metrics
}

func NewRepository(db *bun.DB, m *metrics.Metrics) Repository {
	return &repository{
		db:      db,
		metrics: m,
	}
}

func (r *repository) record(ctx context.Context, operation string, start time.Time, err error) {
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
	}
	r.metrics.Database.RecordQuery(ctx, "postgres", operation, "students", time.Since(start), err)
}

func (r *repository) FindByID(ctx context.Context, id string) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.db.NewSelect().Model(student).Where("id = ?", id).Scan(ctx)

	r.record(ctx, "select", start, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

func (r *repository) FindByEmail(ctx context.Context, email string) (*Student, error) {
	start := time.Now()
	student := new(Student)
	err := r.db.NewSelect().Model(student).Where("email = ?", email).Scan(ctx)

	r.record(ctx, "select", start, err)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStudentNotFound
		}
		return nil, err
	}
	return student, nil
}

func (r *repository) FindAll(ctx context.Context) ([]Student, error) {
	start := time.Now()
	students := make([]Student, 0)
	err := r.db.NewSelect().Model(&students).Order("created_at ASC", "id ASC").Scan(ctx)

	r.record(ctx, "select", start, err)

	return students, err
}

func (r *repository) FindByStatus(ctx context.Context, status Status) ([]Student, error) {
	start := time.Now()
	students := make([]Student, 0)
	err := r.db.NewSelect().
		Model(&students).
		Where("status = ?", status).
		Order("created_at ASC", "id ASC").
		Scan(ctx)

	r.record(ctx, "select", start, err)

	return students, err
}

func (r *repository) FindActiveWithExpiryAtOrBefore(ctx context.Context, date time.Time) ([]Student, error) {
	start := time.Now()
	students := make([]Student, 0)
	err := r.db.NewSelect().
		Model(&students).
		Where("status = ?", StatusActive).
		Where("subscription_expiry <= ?::date", date.Format(DateLayout)).
		Order("subscription_expiry ASC", "id ASC").
		Scan(ctx)

	r.record(ctx, "select", start, err)

	return students, err
}

func (r *repository) Save(ctx context.Context, student *Student) error {
	if student.Progress == nil {
		student.Progress = []ProgressEntry{}
	}

	start := time.Now()
	_, err := r.db.NewInsert().
		Model(student).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("email = EXCLUDED.email").
		Set("phone = EXCLUDED.phone").
		Set("start_date = EXCLUDED.start_date").
		Set("level = EXCLUDED.level").
		Set("status = EXCLUDED.status").
		Set("monthly_fee = EXCLUDED.monthly_fee").
		Set("payment_day = EXCLUDED.payment_day").
		Set("subscription_expiry = EXCLUDED.subscription_expiry").
		Set("notes = EXCLUDED.notes").
		Set("progress = EXCLUDED.progress").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	r.record(ctx, "upsert", start, err)

	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

func (r *repository) DeleteByID(ctx context.Context, id string) error {
	start := time.Now()
	result, err := r.db.NewDelete().Model((*Student)(nil)).Where("id = ?", id).Exec(ctx)

	r.record(ctx, "delete", start, err)

	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrStudentNotFound
	}
	return nil
}

func (r *repository) ExistsByID(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	exists, err := r.db.NewSelect().Model((*Student)(nil)).Where("id = ?", id).Exists(ctx)

	r.record(ctx, "exists", start, err)

	return exists, err
}
