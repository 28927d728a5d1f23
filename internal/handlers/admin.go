package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/platform/httpx"
	"github.com/tolkdesk/api/internal/services"
)

const (
	defaultAuditPageSize = 25
	maxAuditPageSize     = 100
)

// AdminHandlers exposes operational endpoints for dispatch staff.
type AdminHandlers struct {
	system   services.SystemService
	bookings services.BookingService
	matching services.MatchingService
}

// NewAdminHandlers wires admin endpoints to their backing services.
func NewAdminHandlers(system services.SystemService, bookings services.BookingService, matching services.MatchingService) *AdminHandlers {
	return &AdminHandlers{system: system, bookings: bookings, matching: matching}
}

// Routes registers admin endpoints on the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	r.Use(RequireActor())
	r.Get("/audit-logs", h.listAuditLogs)
	r.Get("/health", h.systemHealth)
	r.Get("/bookings/{jobID}/translators", h.listEligibleTranslators)
	r.Post("/bookings/{jobID}:expire", h.expireBooking)
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "system service not configured", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.AuditLogFilter{
		Target: strings.TrimSpace(query.Get("target")),
		Actor:  strings.TrimSpace(query.Get("actor")),
		Action: strings.TrimSpace(query.Get("action")),
		Pagination: domain.Pagination{
			PageSize:  defaultAuditPageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_argument", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if size > maxAuditPageSize {
			size = maxAuditPageSize
		}
		filter.Pagination.PageSize = size
	}

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		from, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_argument", "from must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.From = &from
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		to, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("invalid_argument", "to must be an RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		filter.DateRange.To = &to
	}

	page, err := h.system.ListAuditLogs(r.Context(), filter)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("audit_log_error", "failed to list audit logs", http.StatusInternalServerError))
		return
	}

	items := make([]auditLogPayload, 0, len(page.Items))
	for _, entry := range page.Items {
		items = append(items, buildAuditLogPayload(entry))
	}

	writeJSONResponse(w, http.StatusOK, auditLogListResponse{
		Items:         items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *AdminHandlers) systemHealth(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "system service not configured", http.StatusServiceUnavailable))
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("health_error", "failed to collect health report", http.StatusInternalServerError))
		return
	}

	checks := make(map[string]healthCheckPayload, len(report.Checks))
	for name, check := range report.Checks {
		checks[name] = healthCheckPayload{
			Status:    check.Status,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		}
	}

	writeJSONResponse(w, http.StatusOK, systemHealthResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Uptime:      report.Uptime.String(),
		GeneratedAt: formatTime(report.GeneratedAt),
		Checks:      checks,
	})
}

func (h *AdminHandlers) listEligibleTranslators(w http.ResponseWriter, r *http.Request) {
	if h.bookings == nil || h.matching == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "matching service not configured", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_argument", "booking id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.bookings.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, services.ErrBookingNotFound) {
			httpx.WriteError(r.Context(), w, httpx.NewError("booking_not_found", "booking not found", http.StatusNotFound))
			return
		}
		httpx.WriteError(r.Context(), w, httpx.NewError("booking_error", "failed to load booking", http.StatusInternalServerError))
		return
	}

	translators, err := h.matching.EligibleTranslators(r.Context(), detail.Job)
	if err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("matching_error", "failed to match translators", http.StatusInternalServerError))
		return
	}

	items := make([]translatorPayload, 0, len(translators))
	for _, translator := range translators {
		items = append(items, buildTranslatorPayload(translator))
	}

	writeJSONResponse(w, http.StatusOK, eligibleTranslatorsResponse{Items: items})
}

func (h *AdminHandlers) expireBooking(w http.ResponseWriter, r *http.Request) {
	if h.bookings == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("service_unavailable", "booking service not configured", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_argument", "booking id is required", http.StatusBadRequest))
		return
	}

	job, err := h.bookings.MarkExpired(r.Context(), jobID, actorFromContext(r.Context()))
	if err != nil {
		writeBookingError(r.Context(), w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(job)})
}

type auditLogPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	Action    string         `json:"action"`
	Target    string         `json:"target,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type healthCheckPayload struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	CheckedAt string `json:"checked_at,omitempty"`
}

type systemHealthResponse struct {
	Status      string                        `json:"status"`
	Version     string                        `json:"version,omitempty"`
	CommitSHA   string                        `json:"commit_sha,omitempty"`
	Environment string                        `json:"environment,omitempty"`
	Uptime      string                        `json:"uptime,omitempty"`
	GeneratedAt string                        `json:"generated_at"`
	Checks      map[string]healthCheckPayload `json:"checks"`
}

type eligibleTranslatorsResponse struct {
	Items []translatorPayload `json:"items"`
}

func buildAuditLogPayload(entry services.AuditLogEntry) auditLogPayload {
	return auditLogPayload{
		ID:        entry.ID,
		Actor:     entry.Actor,
		Action:    entry.Action,
		Target:    entry.Target,
		Metadata:  cloneMap(entry.Metadata),
		CreatedAt: entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
