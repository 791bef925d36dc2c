package health

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tutordesk/common/httputil"
	"tutordesk/common/metrics"

	"github.com/go-chi/chi/v5"
)

const checkTimeout = 2 * time.Second

// Check probes one dependency, usually a database ping.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handler struct {
	checks  []Check
	logger  *slog.Logger
	metrics *metrics.Metrics
	grpc    *GRPCServer
}

func NewHandler(logger *slog.Logger, m *metrics.Metrics, checks ...Check) *Handler {
	return &Handler{
		checks:  checks,
		logger:  logger,
		metrics: m,
	}
}

// WithGRPC mirrors every readiness result into the gRPC health service.
func (h *Handler) WithGRPC(s *GRPCServer) *Handler {
	h.grpc = s
	return h
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	results, ready := h.CheckAll(r.Context())
	if !ready {
		httputil.RespondWithJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Checks: results})
		return
	}
	httputil.RespondWithJSON(w, http.StatusOK, HealthResponse{Status: "ready", Checks: results})
}

// CheckAll runs every probe concurrently and reports whether all passed.
func (h *Handler) CheckAll(ctx context.Context) (map[string]string, bool) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]string, len(h.checks))
		ready   = true
	)

	for _, c := range h.checks {
		wg.Add(1)
		go func(c Check) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			start := time.Now()
			err := c.Probe(checkCtx)
			h.metrics.Health.RecordDependencyCheck(ctx, c.Name, time.Since(start), err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.WarnContext(ctx, "dependency check failed", "dependency", c.Name, "error", err)
				results[c.Name] = "down"
				ready = false
				return
			}
			results[c.Name] = "up"
		}(c)
	}
	wg.Wait()

	h.grpc.SetServing(ready)
	return results, ready
}

// Watch re-runs the checks every interval until ctx is done.
func (h *Handler) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.CheckAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.CheckAll(ctx)
		}
	}
}
