package student

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"tutordesk/common/httputil"
	"tutordesk/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

const defaultDaysBeforeExpiry = 7

type Handler struct {
	service   Service
	notifier  WelcomeNotifier
	publisher EventPublisher
	validate  *validator.Validate
	logger    *slog.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

type HandlerOption func(*Handler)

func WithNotifier(n WelcomeNotifier) HandlerOption {
	return func(h *Handler) {
		if n != nil {
			h.notifier = n
		}
	}
}

func WithPublisher(p EventPublisher) HandlerOption {
	return func(h *Handler) {
		if p != nil {
			h.publisher = p
		}
	}
}

func NewHandler(service Service, logger *slog.Logger, m *metrics.Metrics, opts ...HandlerOption) *Handler {
	h := &Handler{
		service:   service,
		notifier:  noopNotifier{},
		publisher: noopPublisher{},
		validate:  NewValidator(),
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewValidator reports field errors by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Post("/students", h.CreateStudent)
	router.Get("/students", h.GetAllStudents)
	router.Get("/students/expiring", h.GetExpiringStudents)
	router.Get("/students/status/{status}", h.GetStudentsByStatus)
	router.Get("/students/{id}", h.GetStudent)
	router.Put("/students/{id}", h.UpdateStudent)
	router.Delete("/students/{id}", h.DeleteStudent)
	router.Post("/students/{id}/progress", h.AddProgressEntry)
	router.Put("/students/{id}/subscription", h.ExtendSubscription)
	router.Put("/students/{id}/status", h.ChangeStatus)
}

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	details, ok := h.decodeStudentRequest(w, r)
	if !ok {
		return
	}

	h.logger.InfoContext(r.Context(), "creating student", "name", details.Name)
	student, err := h.service.Register(r.Context(), details)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordStudentRegistration(r.Context())
	h.notifier.SendWelcome(r.Context(), *student)
	h.publish(r.Context(), EventRegistered, student, nil)

	httputil.RespondWithJSON(w, http.StatusCreated, ToDto(student))
}

func (h *Handler) GetAllStudents(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "fetching all students")

	students, err := h.service.ListAll(r.Context())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, toDtos(students))
}

func (h *Handler) GetStudentsByStatus(w http.ResponseWriter, r *http.Request) {
	status, err := ParseStatus(chi.URLParam(r, "status"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "fetching students by status", "status", status)
	students, err := h.service.ListByStatus(r.Context(), status)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, toDtos(students))
}

func (h *Handler) GetStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.logger.InfoContext(r.Context(), "fetching student by ID", "id", id)
	student, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ToDto(student))
}

func (h *Handler) UpdateStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	details, ok := h.decodeStudentRequest(w, r)
	if !ok {
		return
	}

	h.logger.InfoContext(r.Context(), "updating student", "id", id)
	student, err := h.service.Update(r.Context(), id, details)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.publish(r.Context(), EventUpdated, student, nil)
	httputil.RespondWithJSON(w, http.StatusOK, ToDto(student))
}

func (h *Handler) DeleteStudent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.logger.InfoContext(r.Context(), "deleting student", "id", id)
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.publish(r.Context(), EventDeleted, &Student{ID: id}, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddProgressEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, fields := h.progressRequest(r)
	if fields == nil {
		if err := h.validate.Struct(&req); err != nil {
			fields = fieldErrors(err)
		}
	}
	if fields == nil && *req.Grade > *req.MaxGrade {
		fields = map[string]string{"grade": "must not exceed maxGrade"}
	}
	if fields != nil {
		httputil.RespondWithFieldErrors(w, "validation failed", fields)
		return
	}

	h.logger.InfoContext(r.Context(), "adding progress entry", "id", id, "topic", req.Topic)
	student, err := h.service.AddProgressEntry(r.Context(), id, req.toInput())
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordProgressAdded(r.Context())
	h.publish(r.Context(), EventProgressAdded, student, map[string]string{"topic": req.Topic})
	httputil.RespondWithJSON(w, http.StatusOK, ToDto(student))
}

// progressRequest reads the entry from query parameters when "topic" is present there,
// otherwise from the JSON body.
func (h *Handler) progressRequest(r *http.Request) (AddProgressRequest, map[string]string) {
	var req AddProgressRequest

	q := r.URL.Query()
	if !q.Has("topic") {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			return req, map[string]string{"body": err.Error()}
		}
		return req, nil
	}

	req.Topic = q.Get("topic")
	req.Description = q.Get("description")
	req.Comments = q.Get("comments")

	fields := map[string]string{}
	for name, dst := range map[string]**float64{"grade": &req.Grade, "maxGrade": &req.MaxGrade} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fields[name] = "must be a number"
			continue
		}
		if !isFinite(v) {
			fields[name] = "must be a finite number"
			continue
		}
		*dst = &v
	}
	if len(fields) > 0 {
		return req, fields
	}
	return req, nil
}

func (h *Handler) GetExpiringStudents(w http.ResponseWriter, r *http.Request) {
	days := defaultDaysBeforeExpiry
	if raw := r.URL.Query().Get("daysBeforeExpiry"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			httputil.RespondWithFieldErrors(w, "validation failed", map[string]string{
				"daysBeforeExpiry": "must be a non-negative integer",
			})
			return
		}
		days = v
	}

	h.logger.InfoContext(r.Context(), "fetching students with expiring subscription", "days_before_expiry", days)
	students, err := h.service.ListExpiringSubscriptions(r.Context(), days)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, toDtos(students))
}

func (h *Handler) ExtendSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	months, err := strconv.Atoi(r.URL.Query().Get("monthsToAdd"))
	if err != nil || months < 1 {
		httputil.RespondWithFieldErrors(w, "validation failed", map[string]string{
			"monthsToAdd": "must be an integer of at least 1",
		})
		return
	}

	h.logger.InfoContext(r.Context(), "extending subscription", "id", id, "months", months)
	student, err := h.service.ExtendSubscription(r.Context(), id, months)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordSubscriptionExtended(r.Context(), months)
	h.publish(r.Context(), EventSubscriptionExtended, student, map[string]string{
		"subscriptionExpiry": student.SubscriptionExpiry.Format(DateLayout),
		"monthsAdded":        strconv.Itoa(months),
	})
	httputil.RespondWithJSON(w, http.StatusOK, ToDto(student))
}

func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	status, err := ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "changing student status", "id", id, "status", status)
	student, err := h.service.ChangeStatus(r.Context(), id, status)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.metrics.RecordStatusChange(r.Context(), string(status))
	h.publish(r.Context(), EventStatusChanged, student, map[string]string{"status": string(status)})
	httputil.RespondWithJSON(w, http.StatusOK, ToDto(student))
}

func (h *Handler) decodeStudentRequest(w http.ResponseWriter, r *http.Request) (Details, bool) {
	var req CreateStudentRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
		return Details{}, false
	}

	if err := h.validate.Struct(&req); err != nil {
		httputil.RespondWithFieldErrors(w, "validation failed", fieldErrors(err))
		return Details{}, false
	}

	details, err := req.toDetails()
	if err != nil {
		h.handleServiceError(w, r, err)
		return Details{}, false
	}
	return details, true
}

// publish is best-effort: a failed publish is logged and never fails the request.
func (h *Handler) publish(ctx context.Context, eventType EventType, student *Student, data map[string]string) {
	event := Event{
		Type:       eventType,
		StudentID:  student.ID,
		Email:      student.Email,
		OccurredAt: h.now().UTC(),
		Data:       data,
	}
	if err := h.publisher.SendMessage(ctx, student.ID, event); err != nil {
		h.logger.WarnContext(ctx, "failed to publish student event", "type", eventType, "id", student.ID, "error", err)
	}
}

func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var validationErr *ValidationError
	switch {
	case errors.As(err, &validationErr):
		h.logger.InfoContext(ctx, "invalid input", "fields", validationErr.Fields)
		httputil.RespondWithFieldErrors(w, "validation failed", validationErr.Fields)
	case errors.Is(err, ErrInvalidInput):
		h.logger.InfoContext(ctx, "invalid input", "error", err)
		httputil.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrStudentNotFound):
		h.logger.InfoContext(ctx, "student not found")
		httputil.RespondWithError(w, http.StatusNotFound, "Student not found")
	case errors.Is(err, ErrEmailExists):
		h.logger.InfoContext(ctx, "email already registered")
		httputil.RespondWithError(w, http.StatusConflict, ErrEmailExists.Error())
	case errors.Is(err, ErrInvalidStatusTransition):
		h.logger.InfoContext(ctx, "invalid status transition", "error", err)
		httputil.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.ErrorContext(ctx, "internal error", "error", err)
		httputil.RespondWithError(w, http.StatusInternalServerError, "internal server error")
	}
}

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"body": err.Error()}
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return fields
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "datetime":
		return "must be a date in YYYY-MM-DD format"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte", "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
