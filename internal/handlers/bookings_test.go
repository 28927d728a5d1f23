package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/services"
)

type stubBookingService struct {
	createFn      func(context.Context, services.CreateBookingCommand) (services.CreateBookingResult, error)
	attachEmailFn func(context.Context, services.AttachEmailCommand) (services.Job, error)
	getFn         func(context.Context, string) (services.BookingDetail, error)
	updateFn      func(context.Context, services.UpdateBookingCommand) (services.UpdateBookingResult, error)
	acceptFn      func(context.Context, services.AcceptBookingCommand) (services.AcceptBookingResult, error)
	cancelFn      func(context.Context, services.CancelBookingCommand) (services.CancelBookingResult, error)
	endSessionFn  func(context.Context, services.EndSessionCommand) (services.Job, error)
	markFn        func(context.Context, string, string) (services.Job, error)
	reopenFn      func(context.Context, services.ReopenBookingCommand) (services.ReopenBookingResult, error)
	expireFn      func(context.Context, string, string) (services.Job, error)
	listFn        func(context.Context, string) (services.UserBookingsResult, error)
	historyFn     func(context.Context, services.UserHistoryCommand) (services.UserHistoryResult, error)
}

func (s *stubBookingService) Create(ctx context.Context, cmd services.CreateBookingCommand) (services.CreateBookingResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.CreateBookingResult{}, errors.New("not implemented")
}

func (s *stubBookingService) AttachCustomerEmail(ctx context.Context, cmd services.AttachEmailCommand) (services.Job, error) {
	if s.attachEmailFn != nil {
		return s.attachEmailFn(ctx, cmd)
	}
	return services.Job{}, errors.New("not implemented")
}

func (s *stubBookingService) Get(ctx context.Context, jobID string) (services.BookingDetail, error) {
	if s.getFn != nil {
		return s.getFn(ctx, jobID)
	}
	return services.BookingDetail{}, errors.New("not implemented")
}

func (s *stubBookingService) Update(ctx context.Context, cmd services.UpdateBookingCommand) (services.UpdateBookingResult, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.UpdateBookingResult{}, errors.New("not implemented")
}

func (s *stubBookingService) Accept(ctx context.Context, cmd services.AcceptBookingCommand) (services.AcceptBookingResult, error) {
	if s.acceptFn != nil {
		return s.acceptFn(ctx, cmd)
	}
	return services.AcceptBookingResult{}, errors.New("not implemented")
}

func (s *stubBookingService) Cancel(ctx context.Context, cmd services.CancelBookingCommand) (services.CancelBookingResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.CancelBookingResult{}, errors.New("not implemented")
}

func (s *stubBookingService) EndSession(ctx context.Context, cmd services.EndSessionCommand) (services.Job, error) {
	if s.endSessionFn != nil {
		return s.endSessionFn(ctx, cmd)
	}
	return services.Job{}, errors.New("not implemented")
}

func (s *stubBookingService) MarkCustomerDidNotCall(ctx context.Context, jobID, actorID string) (services.Job, error) {
	if s.markFn != nil {
		return s.markFn(ctx, jobID, actorID)
	}
	return services.Job{}, errors.New("not implemented")
}

func (s *stubBookingService) Reopen(ctx context.Context, cmd services.ReopenBookingCommand) (services.ReopenBookingResult, error) {
	if s.reopenFn != nil {
		return s.reopenFn(ctx, cmd)
	}
	return services.ReopenBookingResult{}, errors.New("not implemented")
}

func (s *stubBookingService) MarkExpired(ctx context.Context, jobID, actorID string) (services.Job, error) {
	if s.expireFn != nil {
		return s.expireFn(ctx, jobID, actorID)
	}
	return services.Job{}, errors.New("not implemented")
}

func (s *stubBookingService) ListUserBookings(ctx context.Context, userID string) (services.UserBookingsResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return services.UserBookingsResult{}, errors.New("not implemented")
}

func (s *stubBookingService) ListUserHistory(ctx context.Context, cmd services.UserHistoryCommand) (services.UserHistoryResult, error) {
	if s.historyFn != nil {
		return s.historyFn(ctx, cmd)
	}
	return services.UserHistoryResult{}, errors.New("not implemented")
}

func newBookingRouter(service services.BookingService) http.Handler {
	handler := NewBookingHandlers(service)
	router := chi.NewRouter()
	router.Route("/bookings", handler.Routes)
	return router
}

func sampleJob() services.Job {
	return services.Job{
		ID:           "job_01HZXF8Q",
		JobNumber:    "TD-2025-000042",
		CustomerID:   "cust_1",
		CustomerName: "Test Customer",
		FromLanguage: "ar",
		Due:          time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC),
		Duration:     60,
		JobType:      domain.JobTypePaid,
		PhoneBooking: true,
		Status:       domain.JobStatusPending,
		WillExpireAt: time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC),
		CreatedAt:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestBookingHandlersCreateBookingSuccess(t *testing.T) {
	var captured services.CreateBookingCommand
	service := &stubBookingService{
		createFn: func(ctx context.Context, cmd services.CreateBookingCommand) (services.CreateBookingResult, error) {
			captured = cmd
			return services.CreateBookingResult{Job: sampleJob()}, nil
		},
	}

	body := `{"from_language":"ar","due_date":"3/12/2025","due_time":"14:30","duration":60,"requirements":["female"],"town":"Göteborg"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings/", bytes.NewBufferString(body))
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.CustomerID != "cust_1" || captured.ActorID != "cust_1" {
		t.Fatalf("expected actor cust_1 on command, got %+v", captured)
	}
	if captured.FromLanguage != "ar" || captured.DueDate != "3/12/2025" || captured.DueTime != "14:30" {
		t.Fatalf("unexpected command fields: %+v", captured)
	}
	if len(captured.Requirements) != 1 || captured.Requirements[0] != "female" {
		t.Fatalf("expected requirements to pass through, got %v", captured.Requirements)
	}

	var resp struct {
		Booking bookingPayload `json:"booking"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Booking.ID != "job_01HZXF8Q" || resp.Booking.JobNumber != "TD-2025-000042" {
		t.Fatalf("unexpected booking payload: %+v", resp.Booking)
	}
	if resp.Booking.Due != "2025-03-12T14:30:00Z" {
		t.Fatalf("expected RFC3339 due, got %q", resp.Booking.Due)
	}
	if resp.Booking.DurationLabel != "1h" {
		t.Fatalf("expected duration label 1h, got %q", resp.Booking.DurationLabel)
	}
}

func TestBookingHandlersCreateBookingValidationFailure(t *testing.T) {
	service := &stubBookingService{
		createFn: func(ctx context.Context, cmd services.CreateBookingCommand) (services.CreateBookingResult, error) {
			return services.CreateBookingResult{Rejected: true, Field: "due_date", Message: "due date is required"}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/", bytes.NewBufferString(`{"from_language":"ar"}`))
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "validation_failed" {
		t.Fatalf("expected validation_failed, got %v", body["error"])
	}
	// Error details are spread onto the top level of the body.
	if body["field"] != "due_date" {
		t.Fatalf("expected rejected field on error body, got %v", body["field"])
	}
	if body["message"] != "due date is required" {
		t.Fatalf("expected rejection message on error body, got %v", body["message"])
	}
}

func TestBookingHandlersCreateBookingRequiresActor(t *testing.T) {
	service := &stubBookingService{}

	req := httptest.NewRequest(http.MethodPost, "/bookings/", bytes.NewBufferString(`{}`))

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %v", body["error"])
	}
}

func TestBookingHandlersCreateBookingEmptyBody(t *testing.T) {
	service := &stubBookingService{}

	req := httptest.NewRequest(http.MethodPost, "/bookings/", nil)
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "invalid_request" {
		t.Fatalf("expected invalid_request, got %v", body["error"])
	}
}

func TestBookingHandlersGetBookingWithTranslator(t *testing.T) {
	job := sampleJob()
	job.Status = domain.JobStatusAssigned
	translator := services.Translator{
		ID:       "trn_1",
		Name:     "Amira Tolk",
		Category: domain.TranslatorCategoryProfessional,
		Level:    domain.LevelCertified,
	}
	service := &stubBookingService{
		getFn: func(ctx context.Context, jobID string) (services.BookingDetail, error) {
			if jobID != "job_01HZXF8Q" {
				t.Fatalf("unexpected job id %q", jobID)
			}
			return services.BookingDetail{Job: job, Translator: &translator}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/bookings/job_01HZXF8Q", nil)
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp struct {
		Booking    bookingPayload     `json:"booking"`
		Translator *translatorPayload `json:"translator"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Booking.Status != "assigned" {
		t.Fatalf("expected assigned status, got %q", resp.Booking.Status)
	}
	if resp.Translator == nil || resp.Translator.ID != "trn_1" || resp.Translator.Name != "Amira Tolk" {
		t.Fatalf("unexpected translator payload: %+v", resp.Translator)
	}
}

func TestBookingHandlersGetBookingNotFound(t *testing.T) {
	service := &stubBookingService{
		getFn: func(ctx context.Context, jobID string) (services.BookingDetail, error) {
			return services.BookingDetail{}, services.ErrBookingNotFound
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/bookings/job_missing", nil)
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "booking_not_found" {
		t.Fatalf("expected booking_not_found, got %v", body["error"])
	}
}

func TestBookingHandlersUpdateBooking(t *testing.T) {
	var captured services.UpdateBookingCommand
	job := sampleJob()
	job.Status = domain.JobStatusTimedOut
	service := &stubBookingService{
		updateFn: func(ctx context.Context, cmd services.UpdateBookingCommand) (services.UpdateBookingResult, error) {
			captured = cmd
			return services.UpdateBookingResult{Job: job, StatusApplied: true}, nil
		},
	}

	body := `{"due":"2025-03-14T10:00:00Z","status":"timedout","admin_comments":"no answer"}`
	req := httptest.NewRequest(http.MethodPut, "/bookings/job_01HZXF8Q", bytes.NewBufferString(body))
	req.Header.Set(actorHeader, "adm_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.JobID != "job_01HZXF8Q" || captured.ActorID != "adm_1" {
		t.Fatalf("unexpected command identity: %+v", captured)
	}
	if captured.Status != domain.JobStatusTimedOut || captured.AdminComments != "no answer" {
		t.Fatalf("unexpected command fields: %+v", captured)
	}
	if captured.Due == nil || !captured.Due.Equal(time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected parsed due, got %v", captured.Due)
	}

	var resp struct {
		StatusApplied bool   `json:"status_applied"`
		StatusNote    string `json:"status_note"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.StatusApplied {
		t.Fatalf("expected status_applied true")
	}
}

func TestBookingHandlersUpdateBookingRejectsInvalidStatus(t *testing.T) {
	service := &stubBookingService{
		updateFn: func(ctx context.Context, cmd services.UpdateBookingCommand) (services.UpdateBookingResult, error) {
			t.Fatalf("service should not be called for invalid status")
			return services.UpdateBookingResult{}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPut, "/bookings/job_1", bytes.NewBufferString(`{"status":"floating"}`))
	req.Header.Set(actorHeader, "adm_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestBookingHandlersUpdateBookingRejectsBadDue(t *testing.T) {
	service := &stubBookingService{}

	req := httptest.NewRequest(http.MethodPut, "/bookings/job_1", bytes.NewBufferString(`{"due":"next tuesday"}`))
	req.Header.Set(actorHeader, "adm_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestBookingHandlersAttachEmail(t *testing.T) {
	var captured services.AttachEmailCommand
	service := &stubBookingService{
		attachEmailFn: func(ctx context.Context, cmd services.AttachEmailCommand) (services.Job, error) {
			captured = cmd
			job := sampleJob()
			job.CustomerEmail = cmd.Email
			return job, nil
		},
	}

	body := `{"email":"kund@example.se","reference":"ward 4"}`
	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q/email", bytes.NewBufferString(body))
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.JobID != "job_01HZXF8Q" || captured.Email != "kund@example.se" || captured.Reference != "ward 4" {
		t.Fatalf("unexpected command: %+v", captured)
	}
}

func TestBookingHandlersAcceptBooking(t *testing.T) {
	var captured services.AcceptBookingCommand
	job := sampleJob()
	job.Status = domain.JobStatusAssigned
	service := &stubBookingService{
		acceptFn: func(ctx context.Context, cmd services.AcceptBookingCommand) (services.AcceptBookingResult, error) {
			captured = cmd
			return services.AcceptBookingResult{Job: job, Claimed: true}, nil
		},
	}

	// Accept tolerates an empty request body.
	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:accept", nil)
	req.Header.Set(actorHeader, "trn_9")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	if captured.JobID != "job_01HZXF8Q" || captured.TranslatorID != "trn_9" {
		t.Fatalf("unexpected command: %+v", captured)
	}
	if captured.NotifyCustomerPush {
		t.Fatalf("expected push flag to default false")
	}
}

func TestBookingHandlersAcceptBookingWithPushFlag(t *testing.T) {
	var captured services.AcceptBookingCommand
	service := &stubBookingService{
		acceptFn: func(ctx context.Context, cmd services.AcceptBookingCommand) (services.AcceptBookingResult, error) {
			captured = cmd
			return services.AcceptBookingResult{Job: sampleJob(), Claimed: true}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:accept", bytes.NewBufferString(`{"notify_customer_push":true}`))
	req.Header.Set(actorHeader, "trn_9")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if !captured.NotifyCustomerPush {
		t.Fatalf("expected push flag true")
	}
}

func TestBookingHandlersAcceptBookingTaken(t *testing.T) {
	service := &stubBookingService{
		acceptFn: func(ctx context.Context, cmd services.AcceptBookingCommand) (services.AcceptBookingResult, error) {
			return services.AcceptBookingResult{Claimed: false, Message: "Bokningen har redan accepterats."}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:accept", nil)
	req.Header.Set(actorHeader, "trn_9")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "booking_taken" {
		t.Fatalf("expected booking_taken, got %v", body["error"])
	}
}

func TestBookingHandlersCancelBookingReopened(t *testing.T) {
	job := sampleJob()
	service := &stubBookingService{
		cancelFn: func(ctx context.Context, cmd services.CancelBookingCommand) (services.CancelBookingResult, error) {
			if cmd.JobID != "job_01HZXF8Q" || cmd.ActorID != "trn_9" {
				t.Fatalf("unexpected command: %+v", cmd)
			}
			return services.CancelBookingResult{Job: job, Canceled: false, Reopened: true}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:cancel", nil)
	req.Header.Set(actorHeader, "trn_9")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d (%s)", rr.Code, rr.Body.String())
	}
	var resp struct {
		Canceled bool `json:"canceled"`
		Reopened bool `json:"reopened"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Canceled || !resp.Reopened {
		t.Fatalf("expected reopened cancel result, got %+v", resp)
	}
}

func TestBookingHandlersEndSession(t *testing.T) {
	job := sampleJob()
	job.Status = domain.JobStatusCompleted
	job.SessionTime = "1:30:00"
	service := &stubBookingService{
		endSessionFn: func(ctx context.Context, cmd services.EndSessionCommand) (services.Job, error) {
			return job, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:end", nil)
	req.Header.Set(actorHeader, "trn_9")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Booking bookingPayload `json:"booking"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Booking.SessionTime != "1:30:00" {
		t.Fatalf("expected session time, got %q", resp.Booking.SessionTime)
	}
	if resp.Booking.SessionTimeLabel != "1 tim 30 min" {
		t.Fatalf("expected session time label, got %q", resp.Booking.SessionTimeLabel)
	}
}

func TestBookingHandlersMarkNotCarriedOutInvalidState(t *testing.T) {
	service := &stubBookingService{
		markFn: func(ctx context.Context, jobID, actorID string) (services.Job, error) {
			return services.Job{}, services.ErrBookingInvalidState
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:not-carried-out", nil)
	req.Header.Set(actorHeader, "trn_9")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body["error"] != "booking_invalid_state" {
		t.Fatalf("expected booking_invalid_state, got %v", body["error"])
	}
}

func TestBookingHandlersReopenBookingCloned(t *testing.T) {
	clone := sampleJob()
	clone.ID = "job_CLONE"
	service := &stubBookingService{
		reopenFn: func(ctx context.Context, cmd services.ReopenBookingCommand) (services.ReopenBookingResult, error) {
			return services.ReopenBookingResult{Job: clone, Cloned: true}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/bookings/job_01HZXF8Q:reopen", nil)
	req.Header.Set(actorHeader, "adm_1")

	rr := httptest.NewRecorder()
	newBookingRouter(service).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var resp struct {
		Booking bookingPayload `json:"booking"`
		Cloned  bool           `json:"cloned"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Cloned || resp.Booking.ID != "job_CLONE" {
		t.Fatalf("expected cloned booking, got %+v", resp)
	}
}

func TestBookingHandlersServiceUnavailable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/bookings/job_1", nil)
	req.Header.Set(actorHeader, "cust_1")

	rr := httptest.NewRecorder()
	newBookingRouter(nil).ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
