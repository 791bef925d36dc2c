package student_test

import (
	"context"
	"testing"
	"time"

	"tutordesk/common/metrics"
	"tutordesk/internal/student"
	"tutordesk/testing/testdb"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStudent(t *testing.T, email, expiry string, status student.Status) *student.Student {
	t.Helper()

	exp, err := student.ParseDate(expiry)
	require.NoError(t, err)
	now := time.Now().UTC().Truncate(time.Millisecond)

	return &student.Student{
		ID:                 uuid.NewString(),
		Name:               "Student " + email,
		Email:              email,
		StartDate:          student.AddMonths(exp, -1),
		Status:             status,
		MonthlyFee:         99.5,
		PaymentDay:         10,
		SubscriptionExpiry: exp,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// runRepositoryContract exercises behavior every Repository implementation must share.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) student.Repository) {
	ctx := context.Background()

	t.Run("SaveAndFind", func(t *testing.T) {
		repo := newRepo(t)
		s := newStudent(t, "find@example.com", "2024-02-01", student.StatusActive)
		require.NoError(t, repo.Save(ctx, s))

		byID, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.Email, byID.Email)
		assert.Equal(t, "2024-02-01", byID.SubscriptionExpiry.Format(student.DateLayout))
		assert.Equal(t, "2024-01-01", byID.StartDate.Format(student.DateLayout))
		assert.NotNil(t, byID.Progress)

		byEmail, err := repo.FindByEmail(ctx, "find@example.com")
		require.NoError(t, err)
		assert.Equal(t, s.ID, byEmail.ID)

		_, err = repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, student.ErrStudentNotFound)
		_, err = repo.FindByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, student.ErrStudentNotFound)
	})

	t.Run("SaveReplacesAndKeepsProgressOrder", func(t *testing.T) {
		repo := newRepo(t)
		s := newStudent(t, "progress@example.com", "2024-02-01", student.StatusActive)
		require.NoError(t, repo.Save(ctx, s))

		day, _ := student.ParseDate("2024-01-20")
		for _, topic := range []string{"first", "second"} {
			s.Progress = append(s.Progress, student.ProgressEntry{
				ID: uuid.NewString(), Date: day, Topic: topic, Description: "d", Grade: 5, MaxGrade: 10,
				CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
			})
		}
		s.Name = "Renamed"
		require.NoError(t, repo.Save(ctx, s))

		got, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		require.Len(t, got.Progress, 2)
		assert.Equal(t, "first", got.Progress[0].Topic)
		assert.Equal(t, "second", got.Progress[1].Topic)
		assert.Equal(t, "2024-01-20", got.Progress[0].Date.UTC().Format(student.DateLayout))

		all, err := repo.FindAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("UniqueEmail", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Save(ctx, newStudent(t, "dup@example.com", "2024-02-01", student.StatusActive)))

		err := repo.Save(ctx, newStudent(t, "dup@example.com", "2024-03-01", student.StatusActive))
		assert.ErrorIs(t, err, student.ErrEmailExists)
	})

	t.Run("FindByStatusAndExpiry", func(t *testing.T) {
		repo := newRepo(t)
		early := newStudent(t, "early@example.com", "2024-01-10", student.StatusActive)
		edge := newStudent(t, "edge@example.com", "2024-02-01", student.StatusActive)
		late := newStudent(t, "late@example.com", "2024-02-02", student.StatusActive)
		paused := newStudent(t, "paused@example.com", "2024-01-05", student.StatusSuspended)
		for _, s := range []*student.Student{late, edge, paused, early} {
			require.NoError(t, repo.Save(ctx, s))
		}

		cutoff, _ := student.ParseDate("2024-02-01")
		expiring, err := repo.FindActiveWithExpiryAtOrBefore(ctx, cutoff)
		require.NoError(t, err)
		require.Len(t, expiring, 2)
		assert.Equal(t, early.ID, expiring[0].ID)
		assert.Equal(t, edge.ID, expiring[1].ID)

		suspended, err := repo.FindByStatus(ctx, student.StatusSuspended)
		require.NoError(t, err)
		require.Len(t, suspended, 1)
		assert.Equal(t, paused.ID, suspended[0].ID)

		none, err := repo.FindByStatus(ctx, student.StatusGraduated)
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		repo := newRepo(t)
		s := newStudent(t, "gone@example.com", "2024-02-01", student.StatusActive)
		require.NoError(t, repo.Save(ctx, s))

		exists, err := repo.ExistsByID(ctx, s.ID)
		require.NoError(t, err)
		assert.True(t, exists)

		require.NoError(t, repo.DeleteByID(ctx, s.ID))

		exists, err = repo.ExistsByID(ctx, s.ID)
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, repo.DeleteByID(ctx, s.ID), student.ErrStudentNotFound)
	})
}

func TestMemoryRepository(t *testing.T) {
	runRepositoryContract(t, func(t *testing.T) student.Repository {
		return student.NewMemoryRepository()
	})

	t.Run("ReturnsCopies", func(t *testing.T) {
		ctx := context.Background()
		repo := student.NewMemoryRepository()
		s := newStudent(t, "copy@example.com", "2024-02-01", student.StatusActive)
		require.NoError(t, repo.Save(ctx, s))

		got, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		got.Name = "mutated"
		got.Progress = append(got.Progress, student.ProgressEntry{Topic: "x"})

		again, err := repo.FindByID(ctx, s.ID)
		require.NoError(t, err)
		assert.NotEqual(t, "mutated", again.Name)
		assert.Empty(t, again.Progress)
	})
}

func TestPostgresRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	pg := testdb.SetupSharedPostgres(t)
	defer pg.Cleanup(t)

	repo := student.NewRepository(pg.DB, metrics.NewMock())
	runRepositoryContract(t, func(t *testing.T) student.Repository {
		testdb.CleanupTables(t, pg.DB, "students")
		return repo
	})
}

func TestMongoRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	mc := testdb.SetupSharedMongo(t)
	defer mc.Cleanup(t)

	runRepositoryContract(t, func(t *testing.T) student.Repository {
		database := mc.Database(t, "tutordesk_test")
		require.NoError(t, student.EnsureIndexes(context.Background(), database, "students"))
		return student.NewMongoRepository(database, "students", metrics.NewMock())
	})
}
