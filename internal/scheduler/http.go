package scheduler

import (
	"errors"
	"log/slog"
	"net/http"

	"tutordesk/common/httputil"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	scheduler *Scheduler
	logger    *slog.Logger
}

func NewHandler(s *Scheduler, logger *slog.Logger) *Handler {
	return &Handler{scheduler: s, logger: logger}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/scheduler/jobs", h.ListJobs)
	router.Post("/scheduler/jobs/{name}/run", h.RunJob)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, h.scheduler.Jobs())
}

func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.logger.InfoContext(r.Context(), "manual job run requested", "job", name)
	result, err := h.scheduler.RunJob(r.Context(), name)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			httputil.RespondWithError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "manual job run failed", "job", name, "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, result)
}
