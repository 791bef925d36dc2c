package student_test

import (
	"context"
	"testing"

	"tutordesk/internal/student"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedSampleData(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(newClock("2024-03-01"))

	created, err := student.SeedSampleData(ctx, svc)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, s := range all {
		assert.Equal(t, student.StatusActive, s.Status)
		assert.Len(t, s.Progress, 1)
	}

	t.Run("second run creates nothing", func(t *testing.T) {
		created, err := student.SeedSampleData(ctx, svc)
		require.NoError(t, err)
		assert.Zero(t, created)

		all, err := svc.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}
