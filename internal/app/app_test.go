package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tutordesk/common/logger"
	"tutordesk/internal/config"
	"tutordesk/internal/scheduler"
	"tutordesk/internal/student"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("admin-pass"), bcrypt.MinCost)
	require.NoError(t, err)

	return &config.Config{
		Env:      "test",
		LogLevel: "error",
		Server:   config.ServerConfig{Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		Database: config.DatabaseConfig{Driver: "memory"},
		Mail:     config.MailConfig{Provider: "console", FromName: "Tutor Desk", FromAddress: "no-reply@tutordesk.local"},
		Scheduler: config.SchedulerConfig{
			Enabled:          false,
			Timezone:         "UTC",
			ExpiryCron:       "0 9 * * *",
			PaymentCron:      "0 8 * * *",
			ExpiryDaysBefore: 7,
			LockTTLSeconds:   60,
		},
		Events: config.EventsConfig{Driver: "none"},
		Auth: config.AuthConfig{
			JWTSecret:         "test-secret",
			AdminUsername:     "admin",
			AdminPasswordHash: string(hash),
			TokenTTLMinutes:   5,
		},
	}
}

type client struct {
	t      *testing.T
	router http.Handler
	token  string
}

func (c *client) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	c.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	w := httptest.NewRecorder()
	c.router.ServeHTTP(w, req)
	return w
}

func TestApp_Wiring(t *testing.T) {
	ctx := context.Background()

	a, err := NewWithConfig(ctx, testConfig(t), logger.NewNop())
	require.NoError(t, err)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		assert.NoError(t, a.Shutdown(shutdownCtx))
	}()

	c := &client{t: t, router: a.Router()}

	t.Run("health is public", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/health", nil).Code)
		assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/ready", nil).Code)
	})

	t.Run("students require a token", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/students", nil).Code)
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/scheduler/jobs", nil).Code)
	})

	t.Run("login then manage students", func(t *testing.T) {
		w := c.do(http.MethodPost, "/auth/login", map[string]string{"username": "admin", "password": "admin-pass"})
		require.Equal(t, http.StatusOK, w.Code)

		var login struct {
			AccessToken string `json:"accessToken"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&login))
		c.token = login.AccessToken

		w = c.do(http.MethodPost, "/students", map[string]interface{}{
			"name":       "Ana Lopez",
			"email":      "ana@example.com",
			"startDate":  student.DateOf(time.Now()).AddDate(0, 0, -25).Format(student.DateLayout),
			"monthlyFee": 120.5,
			"paymentDay": 5,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = c.do(http.MethodGet, "/students", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var list []student.StudentDto
		require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
		assert.Len(t, list, 1)
	})

	t.Run("scheduler jobs are registered for manual runs", func(t *testing.T) {
		w := c.do(http.MethodGet, "/scheduler/jobs", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var jobs []scheduler.JobInfo
		require.NoError(t, json.NewDecoder(w.Body).Decode(&jobs))
		require.Len(t, jobs, 2)
		assert.Equal(t, scheduler.PaymentReminderJobName, jobs[0].Name)
		assert.Equal(t, scheduler.ExpiryCheckJobName, jobs[1].Name)
		assert.Empty(t, jobs[0].Schedule)

		w = c.do(http.MethodPost, "/scheduler/jobs/"+scheduler.ExpiryCheckJobName+"/run", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var result scheduler.JobResult
		require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
		assert.Equal(t, 1, result.Matched)
		assert.Empty(t, result.Error)
	})
}

func TestApp_WithoutAuth(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""

	a, err := NewWithConfig(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	c := &client{t: t, router: a.Router()}
	assert.Equal(t, http.StatusOK, c.do(http.MethodGet, "/students", nil).Code)
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodPost, "/auth/login", map[string]string{"username": "a", "password": "b"}).Code)
}

func TestApp_SeedSampleData(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = ""
	cfg.Database.Seed = true

	a, err := NewWithConfig(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Shutdown(context.Background())

	c := &client{t: t, router: a.Router()}
	w := c.do(http.MethodGet, "/students", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var dtos []student.StudentDto
	require.NoError(t, json.NewDecoder(w.Body).Decode(&dtos))
	assert.Len(t, dtos, 3)
}

func TestApp_InvalidConfig(t *testing.T) {
	t.Run("unknown timezone", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Scheduler.Timezone = "Mars/Olympus"
		_, err := NewWithConfig(context.Background(), cfg, logger.NewNop())
		assert.Error(t, err)
	})

	t.Run("unknown mail provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Mail.Provider = "pigeon"
		_, err := NewWithConfig(context.Background(), cfg, logger.NewNop())
		assert.Error(t, err)
	})
}
