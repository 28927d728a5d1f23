package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/platform/httpx"
	"github.com/tolkdesk/api/internal/services"
)

const maxBookingBodySize = 32 * 1024

type createBookingRequest struct {
	FromLanguage  string   `json:"from_language"`
	Immediate     bool     `json:"immediate"`
	DueDate       string   `json:"due_date"`
	DueTime       string   `json:"due_time"`
	Duration      int      `json:"duration"`
	Requirements  []string `json:"requirements"`
	PhoneBooking  *bool    `json:"phone_booking"`
	OnSiteBooking *bool    `json:"on_site_booking"`
	Address       string   `json:"address"`
	Instructions  string   `json:"instructions"`
	Town          string   `json:"town"`
	Reference     string   `json:"reference"`
	ByAdmin       bool     `json:"by_admin"`
}

type attachEmailRequest struct {
	Email     string `json:"email"`
	Reference string `json:"reference"`
}

type updateBookingRequest struct {
	Due             string `json:"due"`
	FromLanguage    string `json:"from_language"`
	Status          string `json:"status"`
	AdminComments   string `json:"admin_comments"`
	SessionTime     string `json:"session_time"`
	Reference       string `json:"reference"`
	TranslatorID    string `json:"translator_id"`
	TranslatorEmail string `json:"translator_email"`
}

type acceptBookingRequest struct {
	NotifyCustomerPush bool `json:"notify_customer_push"`
}

// BookingHandlers exposes the booking lifecycle endpoints.
type BookingHandlers struct {
	bookings services.BookingService
}

// NewBookingHandlers constructs a new BookingHandlers instance.
func NewBookingHandlers(bookings services.BookingService) *BookingHandlers {
	return &BookingHandlers{bookings: bookings}
}

// Routes registers the /bookings endpoints.
func (h *BookingHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(RequireActor())
	r.Post("/", h.createBooking)
	r.Get("/{jobID}", h.getBooking)
	r.Put("/{jobID}", h.updateBooking)
	r.Post("/{jobID}/email", h.attachEmail)
	r.Post("/{jobID}:accept", h.acceptBooking)
	r.Post("/{jobID}:cancel", h.cancelBooking)
	r.Post("/{jobID}:end", h.endSession)
	r.Post("/{jobID}:not-carried-out", h.markNotCarriedOut)
	r.Post("/{jobID}:reopen", h.reopenBooking)
}

func (h *BookingHandlers) createBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	actorID := actorFromContext(ctx)

	var req createBookingRequest
	if !decodeBookingBody(ctx, w, r, &req) {
		return
	}

	result, err := h.bookings.Create(ctx, services.CreateBookingCommand{
		CustomerID:    actorID,
		FromLanguage:  req.FromLanguage,
		Immediate:     req.Immediate,
		DueDate:       req.DueDate,
		DueTime:       req.DueTime,
		Duration:      req.Duration,
		Requirements:  req.Requirements,
		PhoneBooking:  req.PhoneBooking,
		OnSiteBooking: req.OnSiteBooking,
		Address:       req.Address,
		Instructions:  req.Instructions,
		Town:          req.Town,
		Reference:     req.Reference,
		ByAdmin:       req.ByAdmin,
		ActorID:       actorID,
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	if result.Rejected {
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", result.Message, http.StatusBadRequest).
			WithDetails(map[string]any{"field": result.Field}))
		return
	}

	writeJSONResponse(w, http.StatusCreated, bookingResponse{Booking: buildBookingPayload(result.Job)})
}

func (h *BookingHandlers) getBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	detail, err := h.bookings.Get(ctx, jobID)
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	payload := bookingDetailResponse{Booking: buildBookingPayload(detail.Job)}
	if detail.Translator != nil {
		translator := buildTranslatorPayload(*detail.Translator)
		payload.Translator = &translator
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *BookingHandlers) updateBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	var req updateBookingRequest
	if !decodeBookingBody(ctx, w, r, &req) {
		return
	}

	cmd := services.UpdateBookingCommand{
		JobID:           jobID,
		FromLanguage:    req.FromLanguage,
		AdminComments:   req.AdminComments,
		SessionTime:     req.SessionTime,
		Reference:       req.Reference,
		TranslatorID:    req.TranslatorID,
		TranslatorEmail: req.TranslatorEmail,
		ActorID:         actorFromContext(ctx),
	}
	if raw := strings.TrimSpace(req.Due); raw != "" {
		due, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "due must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.Due = &due
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		status := domain.JobStatus(strings.ToLower(raw))
		if !status.Valid() {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status must be a valid booking status", http.StatusBadRequest))
			return
		}
		cmd.Status = status
	}

	result, err := h.bookings.Update(ctx, cmd)
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, updateBookingResponse{
		Booking:       buildBookingPayload(result.Job),
		StatusApplied: result.StatusApplied,
		StatusNote:    result.StatusNote,
	})
}

func (h *BookingHandlers) attachEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	var req attachEmailRequest
	if !decodeBookingBody(ctx, w, r, &req) {
		return
	}

	job, err := h.bookings.AttachCustomerEmail(ctx, services.AttachEmailCommand{
		JobID:     jobID,
		Email:     req.Email,
		Reference: req.Reference,
		ActorID:   actorFromContext(ctx),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(job)})
}

func (h *BookingHandlers) acceptBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	var req acceptBookingRequest
	if body, err := readLimitedBody(r, maxBookingBodySize); err == nil {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
			return
		}
	} else if !errors.Is(err, errEmptyBody) {
		writeBookingBodyError(ctx, w, err)
		return
	}

	result, err := h.bookings.Accept(ctx, services.AcceptBookingCommand{
		JobID:              jobID,
		TranslatorID:       actorFromContext(ctx),
		NotifyCustomerPush: req.NotifyCustomerPush,
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}
	if !result.Claimed {
		httpx.WriteError(ctx, w, httpx.NewError("booking_taken", result.Message, http.StatusConflict))
		return
	}

	writeJSONResponse(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(result.Job)})
}

func (h *BookingHandlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	result, err := h.bookings.Cancel(ctx, services.CancelBookingCommand{
		JobID:   jobID,
		ActorID: actorFromContext(ctx),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, cancelBookingResponse{
		Booking:  buildBookingPayload(result.Job),
		Canceled: result.Canceled,
		Reopened: result.Reopened,
		Message:  result.Message,
	})
}

func (h *BookingHandlers) endSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	job, err := h.bookings.EndSession(ctx, services.EndSessionCommand{
		JobID:   jobID,
		ActorID: actorFromContext(ctx),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(job)})
}

func (h *BookingHandlers) markNotCarriedOut(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	job, err := h.bookings.MarkCustomerDidNotCall(ctx, jobID, actorFromContext(ctx))
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, bookingResponse{Booking: buildBookingPayload(job)})
}

func (h *BookingHandlers) reopenBooking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobID := strings.TrimSpace(chi.URLParam(r, "jobID"))
	if jobID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "booking id is required", http.StatusBadRequest))
		return
	}

	result, err := h.bookings.Reopen(ctx, services.ReopenBookingCommand{
		JobID:   jobID,
		ActorID: actorFromContext(ctx),
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, reopenBookingResponse{
		Booking: buildBookingPayload(result.Job),
		Cloned:  result.Cloned,
	})
}

func decodeBookingBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxBookingBodySize)
	if err != nil {
		writeBookingBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeBookingBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeBookingError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrBookingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrBookingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("booking_not_found", "booking not found", http.StatusNotFound))
	case errors.Is(err, services.ErrBookingConflict):
		httpx.WriteError(ctx, w, httpx.NewError("booking_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrBookingInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("booking_invalid_state", err.Error(), http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("booking_error", "failed to process booking request", http.StatusInternalServerError))
	}
}

type bookingResponse struct {
	Booking bookingPayload `json:"booking"`
}

type bookingDetailResponse struct {
	Booking    bookingPayload     `json:"booking"`
	Translator *translatorPayload `json:"translator,omitempty"`
}

type updateBookingResponse struct {
	Booking       bookingPayload `json:"booking"`
	StatusApplied bool           `json:"status_applied"`
	StatusNote    string         `json:"status_note,omitempty"`
}

type cancelBookingResponse struct {
	Booking  bookingPayload `json:"booking"`
	Canceled bool           `json:"canceled"`
	Reopened bool           `json:"reopened"`
	Message  string         `json:"message,omitempty"`
}

type reopenBookingResponse struct {
	Booking bookingPayload `json:"booking"`
	Cloned  bool           `json:"cloned"`
}

type bookingPayload struct {
	ID               string `json:"id"`
	JobNumber        string `json:"job_number"`
	CustomerID       string `json:"customer_id"`
	CustomerName     string `json:"customer_name,omitempty"`
	CustomerEmail    string `json:"customer_email,omitempty"`
	FromLanguage     string `json:"from_language"`
	Immediate        bool   `json:"immediate"`
	Due              string `json:"due"`
	Duration         int    `json:"duration"`
	DurationLabel    string `json:"duration_label,omitempty"`
	Gender           string `json:"gender,omitempty"`
	Certification    string `json:"certification,omitempty"`
	JobType          string `json:"job_type"`
	PhoneBooking     bool   `json:"phone_booking"`
	OnSiteBooking    bool   `json:"on_site_booking"`
	Status           string `json:"status"`
	WillExpireAt     string `json:"will_expire_at,omitempty"`
	SessionTime      string `json:"session_time,omitempty"`
	SessionTimeLabel string `json:"session_time_label,omitempty"`
	AdminComments    string `json:"admin_comments,omitempty"`
	Reference        string `json:"reference,omitempty"`
	Address          string `json:"address,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
	Town             string `json:"town,omitempty"`
	EarmarkedFor     string `json:"earmarked_for,omitempty"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at,omitempty"`
	EndAt            string `json:"end_at,omitempty"`
	WithdrawAt       string `json:"withdraw_at,omitempty"`
}

type translatorPayload struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Email     string   `json:"email,omitempty"`
	Phone     string   `json:"phone,omitempty"`
	Town      string   `json:"town,omitempty"`
	Gender    string   `json:"gender,omitempty"`
	Category  string   `json:"category"`
	Level     string   `json:"level,omitempty"`
	Languages []string `json:"languages,omitempty"`
}

func buildBookingPayload(job services.Job) bookingPayload {
	payload := bookingPayload{
		ID:            strings.TrimSpace(job.ID),
		JobNumber:     strings.TrimSpace(job.JobNumber),
		CustomerID:    strings.TrimSpace(job.CustomerID),
		CustomerName:  strings.TrimSpace(job.CustomerName),
		CustomerEmail: strings.TrimSpace(job.CustomerEmail),
		FromLanguage:  strings.TrimSpace(job.FromLanguage),
		Immediate:     job.Immediate,
		Due:           formatTime(job.Due),
		Duration:      job.Duration,
		DurationLabel: domain.DurationLabel(job.Duration),
		Gender:        string(job.Gender),
		Certification: string(job.Certification),
		JobType:       string(job.JobType),
		PhoneBooking:  job.PhoneBooking,
		OnSiteBooking: job.OnSiteBooking,
		Status:        string(job.Status),
		WillExpireAt:  formatTime(job.WillExpireAt),
		SessionTime:   strings.TrimSpace(job.SessionTime),
		AdminComments: strings.TrimSpace(job.AdminComments),
		Reference:     strings.TrimSpace(job.Reference),
		Address:       strings.TrimSpace(job.Address),
		Instructions:  strings.TrimSpace(job.Instructions),
		Town:          strings.TrimSpace(job.Town),
		EarmarkedFor:  strings.TrimSpace(job.EarmarkedFor),
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
		EndAt:         formatTimePtr(job.EndAt),
		WithdrawAt:    formatTimePtr(job.WithdrawAt),
	}
	if payload.SessionTime != "" {
		payload.SessionTimeLabel = domain.SessionTimeLabel(payload.SessionTime)
	}
	return payload
}

func buildTranslatorPayload(translator services.Translator) translatorPayload {
	return translatorPayload{
		ID:        strings.TrimSpace(translator.ID),
		Name:      strings.TrimSpace(translator.Name),
		Email:     strings.TrimSpace(translator.Email),
		Phone:     strings.TrimSpace(translator.Phone),
		Town:      strings.TrimSpace(translator.Town),
		Gender:    string(translator.Gender),
		Category:  string(translator.Category),
		Level:     string(translator.Level),
		Languages: translator.Languages,
	}
}
