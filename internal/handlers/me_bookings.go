package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tolkdesk/api/internal/platform/httpx"
	"github.com/tolkdesk/api/internal/services"
)

const (
	defaultHistoryPageSize = 15
	maxHistoryPageSize     = 100
)

// MeHandlers exposes booking endpoints scoped to the authenticated user.
type MeHandlers struct {
	bookings services.BookingService
	matching services.MatchingService
}

// NewMeHandlers constructs a new MeHandlers instance.
func NewMeHandlers(bookings services.BookingService, matching services.MatchingService) *MeHandlers {
	return &MeHandlers{bookings: bookings, matching: matching}
}

// Routes registers the /me endpoints.
func (h *MeHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Use(RequireActor())
	r.Get("/bookings", h.listBookings)
	r.Get("/bookings/history", h.listHistory)
	r.Get("/jobs", h.listEligibleJobs)
}

func (h *MeHandlers) listBookings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	result, err := h.bookings.ListUserBookings(ctx, actorFromContext(ctx))
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userBookingsResponse{
		Emergency: buildBookingPayloads(result.Emergency),
		Scheduled: buildBookingPayloads(result.Scheduled),
	})
}

func (h *MeHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.bookings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("booking_service_unavailable", "booking service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	pageSize := defaultHistoryPageSize
	if sizeRaw := strings.TrimSpace(query.Get("page_size")); sizeRaw != "" {
		size, err := strconv.Atoi(sizeRaw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		switch {
		case size <= 0:
			pageSize = defaultHistoryPageSize
		case size > maxHistoryPageSize:
			pageSize = maxHistoryPageSize
		default:
			pageSize = size
		}
	}

	result, err := h.bookings.ListUserHistory(ctx, services.UserHistoryCommand{
		UserID: actorFromContext(ctx),
		Pagination: services.Pagination{
			PageSize:  pageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	})
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, userHistoryResponse{
		Items:         buildBookingPayloads(result.Jobs),
		NextPageToken: strings.TrimSpace(result.NextPageToken),
	})
}

func (h *MeHandlers) listEligibleJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.matching == nil {
		httpx.WriteError(ctx, w, httpx.NewError("matching_service_unavailable", "matching service unavailable", http.StatusServiceUnavailable))
		return
	}

	jobs, err := h.matching.EligibleBookings(ctx, actorFromContext(ctx))
	if err != nil {
		writeBookingError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, eligibleJobsResponse{Items: buildBookingPayloads(jobs)})
}

type userBookingsResponse struct {
	Emergency []bookingPayload `json:"emergency"`
	Scheduled []bookingPayload `json:"scheduled"`
}

type userHistoryResponse struct {
	Items         []bookingPayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type eligibleJobsResponse struct {
	Items []bookingPayload `json:"items"`
}

func buildBookingPayloads(jobs []services.Job) []bookingPayload {
	items := make([]bookingPayload, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, buildBookingPayload(job))
	}
	return items
}
