package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/repositories"
)

type stubJobRepository struct {
	mu               sync.Mutex
	insertFn         func(context.Context, domain.Job) error
	updateFn         func(context.Context, domain.Job) error
	findFn           func(context.Context, string) (domain.Job, error)
	listByCustomerFn func(context.Context, string, repositories.JobListFilter) (domain.CursorPage[domain.Job], error)
	listPendingFn    func(context.Context, repositories.PendingJobCriteria) ([]domain.Job, error)
	inserted         []domain.Job
	updated          []domain.Job
}

func (s *stubJobRepository) Insert(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	s.inserted = append(s.inserted, job)
	s.mu.Unlock()
	if s.insertFn != nil {
		return s.insertFn(ctx, job)
	}
	return nil
}

func (s *stubJobRepository) Update(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	s.updated = append(s.updated, job)
	s.mu.Unlock()
	if s.updateFn != nil {
		return s.updateFn(ctx, job)
	}
	return nil
}

func (s *stubJobRepository) FindByID(ctx context.Context, jobID string) (domain.Job, error) {
	if s.findFn != nil {
		return s.findFn(ctx, jobID)
	}
	return domain.Job{}, repositories.NewAssignmentError(repositories.AssignmentErrorJobNotFound, "missing", nil)
}

func (s *stubJobRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.JobListFilter) (domain.CursorPage[domain.Job], error) {
	if s.listByCustomerFn != nil {
		return s.listByCustomerFn(ctx, customerID, filter)
	}
	return domain.CursorPage[domain.Job]{}, nil
}

func (s *stubJobRepository) ListPending(ctx context.Context, criteria repositories.PendingJobCriteria) ([]domain.Job, error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, criteria)
	}
	return nil, nil
}

type stubAssignmentRepository struct {
	mu           sync.Mutex
	claimFn      func(context.Context, string, string, time.Time) (domain.Assignment, error)
	insertFn     func(context.Context, domain.Assignment) (domain.Assignment, error)
	findOpenFn   func(context.Context, string) (domain.Assignment, error)
	cancelFn     func(context.Context, string, time.Time) error
	completeFn   func(context.Context, string, time.Time, string) error
	hasBookingFn func(context.Context, string, time.Time) (bool, error)
	listFn       func(context.Context, string, repositories.AssignmentListFilter) (domain.CursorPage[domain.Assignment], error)
	claims       []string
	cancels      []string
	completes    []string
}

func (s *stubAssignmentRepository) ClaimPending(ctx context.Context, jobID, translatorID string, at time.Time) (domain.Assignment, error) {
	s.mu.Lock()
	s.claims = append(s.claims, jobID)
	s.mu.Unlock()
	if s.claimFn != nil {
		return s.claimFn(ctx, jobID, translatorID, at)
	}
	return domain.Assignment{ID: "asg_1", JobID: jobID, TranslatorID: translatorID, CreatedAt: at}, nil
}

func (s *stubAssignmentRepository) Insert(ctx context.Context, assignment domain.Assignment) (domain.Assignment, error) {
	if s.insertFn != nil {
		return s.insertFn(ctx, assignment)
	}
	return assignment, nil
}

func (s *stubAssignmentRepository) FindOpenByJob(ctx context.Context, jobID string) (domain.Assignment, error) {
	if s.findOpenFn != nil {
		return s.findOpenFn(ctx, jobID)
	}
	return domain.Assignment{}, repositories.NewAssignmentError(repositories.AssignmentErrorNotFound, "no open assignment", nil)
}

func (s *stubAssignmentRepository) Cancel(ctx context.Context, assignmentID string, at time.Time) error {
	s.mu.Lock()
	s.cancels = append(s.cancels, assignmentID)
	s.mu.Unlock()
	if s.cancelFn != nil {
		return s.cancelFn(ctx, assignmentID, at)
	}
	return nil
}

func (s *stubAssignmentRepository) Complete(ctx context.Context, assignmentID string, at time.Time, completedBy string) error {
	s.mu.Lock()
	s.completes = append(s.completes, assignmentID)
	s.mu.Unlock()
	if s.completeFn != nil {
		return s.completeFn(ctx, assignmentID, at, completedBy)
	}
	return nil
}

func (s *stubAssignmentRepository) HasBookingAt(ctx context.Context, translatorID string, due time.Time) (bool, error) {
	if s.hasBookingFn != nil {
		return s.hasBookingFn(ctx, translatorID, due)
	}
	return false, nil
}

func (s *stubAssignmentRepository) ListByTranslator(ctx context.Context, translatorID string, filter repositories.AssignmentListFilter) (domain.CursorPage[domain.Assignment], error) {
	if s.listFn != nil {
		return s.listFn(ctx, translatorID, filter)
	}
	return domain.CursorPage[domain.Assignment]{}, nil
}

type stubTranslatorRepository struct {
	findFn        func(context.Context, string) (domain.Translator, error)
	findByEmailFn func(context.Context, string) (domain.Translator, error)
	queryFn       func(context.Context, repositories.TranslatorFilter) ([]domain.Translator, error)
	blockedFn     func(context.Context, string) ([]string, error)
	blockingFn    func(context.Context, string) ([]string, error)
}

func (s *stubTranslatorRepository) FindByID(ctx context.Context, translatorID string) (domain.Translator, error) {
	if s.findFn != nil {
		return s.findFn(ctx, translatorID)
	}
	return domain.Translator{}, repositories.NewAssignmentError(repositories.AssignmentErrorNotFound, "missing translator", nil)
}

func (s *stubTranslatorRepository) FindByEmail(ctx context.Context, email string) (domain.Translator, error) {
	if s.findByEmailFn != nil {
		return s.findByEmailFn(ctx, email)
	}
	return domain.Translator{}, repositories.NewAssignmentError(repositories.AssignmentErrorNotFound, "missing translator", nil)
}

func (s *stubTranslatorRepository) Query(ctx context.Context, filter repositories.TranslatorFilter) ([]domain.Translator, error) {
	if s.queryFn != nil {
		return s.queryFn(ctx, filter)
	}
	return nil, nil
}

func (s *stubTranslatorRepository) BlockedTranslatorIDs(ctx context.Context, customerID string) ([]string, error) {
	if s.blockedFn != nil {
		return s.blockedFn(ctx, customerID)
	}
	return nil, nil
}

func (s *stubTranslatorRepository) BlockingCustomerIDs(ctx context.Context, translatorID string) ([]string, error) {
	if s.blockingFn != nil {
		return s.blockingFn(ctx, translatorID)
	}
	return nil, nil
}

type stubCustomerRepository struct {
	findFn func(context.Context, string) (domain.Customer, error)
}

func (s *stubCustomerRepository) FindByID(ctx context.Context, customerID string) (domain.Customer, error) {
	if s.findFn != nil {
		return s.findFn(ctx, customerID)
	}
	return domain.Customer{ID: customerID, Name: "Test Customer", Email: "customer@example.com"}, nil
}

type stubBookingCounters struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubBookingCounters) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 1, nil
}

func (s *stubBookingCounters) Configure(context.Context, string, repositories.CounterConfig) error {
	return nil
}

// recordingNotifications appends one tag per dispatched notification so tests
// can assert fan-out order and content-free call counts.
type recordingNotifications struct {
	mu       sync.Mutex
	calls    []string
	excluded []string
}

func (r *recordingNotifications) record(event string) {
	r.mu.Lock()
	r.calls = append(r.calls, event)
	r.mu.Unlock()
}

func (r *recordingNotifications) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, call := range r.calls {
		if call == event {
			return true
		}
	}
	return false
}

func (r *recordingNotifications) BroadcastBooking(_ context.Context, _ Job, excludeTranslatorID string) {
	r.mu.Lock()
	r.excluded = append(r.excluded, excludeTranslatorID)
	r.mu.Unlock()
	r.record("broadcast")
}

func (r *recordingNotifications) SendSMSToEligible(context.Context, Job) (int, error) {
	r.record("sms")
	return 0, nil
}

func (r *recordingNotifications) NotifyAccepted(context.Context, Job, bool) {
	r.record("accepted")
}

func (r *recordingNotifications) NotifyStatusChanged(context.Context, Job, JobStatus) {
	r.record("status_changed")
}

func (r *recordingNotifications) NotifyBookingChanged(context.Context, Job, *time.Time, string) {
	r.record("booking_changed")
}

func (r *recordingNotifications) NotifyTranslatorChanged(context.Context, Job, *Translator, *Translator) {
	r.record("translator_changed")
}

func (r *recordingNotifications) NotifyCancelledToTranslator(context.Context, Job, string) {
	r.record("cancelled_translator")
}

func (r *recordingNotifications) NotifyCancelledToCustomer(context.Context, Job) {
	r.record("cancelled_customer")
}

func (r *recordingNotifications) NotifyExpired(context.Context, Job) {
	r.record("expired")
}

func (r *recordingNotifications) NotifySessionEnded(context.Context, Job, string, string) {
	r.record("session_ended")
}

func (r *recordingNotifications) RemindSessionStart(context.Context, Job, string) {
	r.record("remind")
}

type stubEventPublisher struct {
	mu     sync.Mutex
	events []BookingEvent
	err    error
}

func (s *stubEventPublisher) PublishBookingEvent(_ context.Context, event BookingEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return s.err
}

type stubAuditService struct {
	mu      sync.Mutex
	records []AuditLogRecord
	listFn  func(context.Context, AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

func (s *stubAuditService) Record(_ context.Context, record AuditLogRecord) {
	s.mu.Lock()
	s.records = append(s.records, record)
	s.mu.Unlock()
}

func (s *stubAuditService) List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[AuditLogEntry]{}, nil
}

func newBookingServiceForTest(t *testing.T, deps BookingServiceDeps) BookingService {
	t.Helper()
	if deps.Jobs == nil {
		deps.Jobs = &stubJobRepository{}
	}
	if deps.Assignments == nil {
		deps.Assignments = &stubAssignmentRepository{}
	}
	if deps.Customers == nil {
		deps.Customers = &stubCustomerRepository{}
	}
	if deps.Counters == nil {
		deps.Counters = &stubBookingCounters{}
	}
	svc, err := NewBookingService(deps)
	if err != nil {
		t.Fatalf("new booking service: %v", err)
	}
	return svc
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBookingServiceCreateScheduled(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := &stubJobRepository{}
	counters := &stubBookingCounters{nextFn: func(_ context.Context, counterID string, _ int64) (int64, error) {
		if counterID != "bookings" {
			t.Fatalf("expected bookings counter, got %s", counterID)
		}
		return 7, nil
	}}
	notifications := &recordingNotifications{}
	publisher := &stubEventPublisher{}
	audit := &stubAuditService{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Counters:      counters,
		Notifications: notifications,
		Events:        publisher,
		Audit:         audit,
		Clock:         fixedClock(now),
		IDGenerator:   func() string { return "TEST01" },
	})

	phone := true
	result, err := svc.Create(context.Background(), CreateBookingCommand{
		CustomerID:   "cus_1",
		ActorID:      "cus_1",
		FromLanguage: "ar",
		DueDate:      "3/12/2025",
		DueTime:      "14:30",
		Duration:     60,
		Requirements: []string{"female", "certified"},
		PhoneBooking: &phone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Rejected {
		t.Fatalf("unexpected rejection: %s %s", result.Field, result.Message)
	}

	job := result.Job
	if job.ID != "job_TEST01" {
		t.Fatalf("expected generated job id, got %s", job.ID)
	}
	if job.JobNumber != "TD-2025-000007" {
		t.Fatalf("expected job number TD-2025-000007, got %s", job.JobNumber)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending status, got %s", job.Status)
	}
	wantDue := time.Date(2025, 3, 12, 14, 30, 0, 0, time.UTC)
	if !job.Due.Equal(wantDue) {
		t.Fatalf("expected due %v, got %v", wantDue, job.Due)
	}
	// Less than 90 hours out, so the booking expires at the session start.
	if !job.WillExpireAt.Equal(wantDue) {
		t.Fatalf("expected expiry at due, got %v", job.WillExpireAt)
	}
	if job.Gender != domain.GenderFemale {
		t.Fatalf("expected female requirement, got %q", job.Gender)
	}
	if job.Certification != domain.CertificationCertified {
		t.Fatalf("expected certified requirement, got %q", job.Certification)
	}
	if !job.PhoneBooking || job.OnSiteBooking {
		t.Fatalf("expected phone booking, got phone=%v onsite=%v", job.PhoneBooking, job.OnSiteBooking)
	}

	if len(jobs.inserted) != 1 {
		t.Fatalf("expected one insert, got %d", len(jobs.inserted))
	}
	if !notifications.has("broadcast") {
		t.Fatalf("expected broadcast after create, got %v", notifications.calls)
	}
	if !notifications.has("sms") {
		t.Fatalf("expected sms fan-out after create, got %v", notifications.calls)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != domain.BookingEventCreated {
		t.Fatalf("expected created event, got %+v", publisher.events)
	}
	if len(audit.records) != 1 || audit.records[0].Action != "booking.create" {
		t.Fatalf("expected create audit record, got %+v", audit.records)
	}
}

func TestBookingServiceCreateImmediate(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	jobs := &stubJobRepository{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:  jobs,
		Clock: fixedClock(now),
	})

	result, err := svc.Create(context.Background(), CreateBookingCommand{
		CustomerID:   "cus_1",
		FromLanguage: "so",
		Immediate:    true,
		Duration:     30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if result.Rejected {
		t.Fatalf("unexpected rejection: %s", result.Message)
	}
	if !result.Job.Due.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("expected due 5 minutes out, got %v", result.Job.Due)
	}
	if !result.Job.PhoneBooking {
		t.Fatalf("immediate bookings must be phone bookings")
	}
}

func TestBookingServiceCreateValidation(t *testing.T) {
	svc := newBookingServiceForTest(t, BookingServiceDeps{})

	cases := []struct {
		name  string
		cmd   CreateBookingCommand
		field string
	}{
		{
			name:  "missing language",
			cmd:   CreateBookingCommand{CustomerID: "cus_1", Duration: 30},
			field: "from_language_id",
		},
		{
			name:  "missing date",
			cmd:   CreateBookingCommand{CustomerID: "cus_1", FromLanguage: "ar", Duration: 30},
			field: "due_date",
		},
		{
			name: "missing contact type",
			cmd: CreateBookingCommand{
				CustomerID:   "cus_1",
				FromLanguage: "ar",
				DueDate:      "6/1/2030",
				DueTime:      "10:00",
				Duration:     30,
			},
			field: "customer_phone_type",
		},
		{
			name:  "missing duration",
			cmd:   CreateBookingCommand{CustomerID: "cus_1", FromLanguage: "ar", Immediate: true},
			field: "duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := svc.Create(context.Background(), tc.cmd)
			if err != nil {
				t.Fatalf("create: %v", err)
			}
			if !result.Rejected {
				t.Fatalf("expected rejection")
			}
			if result.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, result.Field)
			}
		})
	}
}

func TestBookingServiceCreateRejectsPastDue(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	phone := true
	svc := newBookingServiceForTest(t, BookingServiceDeps{Clock: fixedClock(now)})

	result, err := svc.Create(context.Background(), CreateBookingCommand{
		CustomerID:   "cus_1",
		FromLanguage: "ar",
		DueDate:      "3/9/2025",
		DueTime:      "10:00",
		Duration:     30,
		PhoneBooking: &phone,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !result.Rejected || result.Field != "due_date" {
		t.Fatalf("expected past-due rejection, got %+v", result)
	}
}

func TestBookingServiceAcceptClaims(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(30 * time.Hour)

	var claimed bool
	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		job := domain.Job{
			ID: "job_1", JobNumber: "TD-2025-000001", CustomerID: "cus_1",
			Status: domain.JobStatusPending, Due: due, WillExpireAt: due,
		}
		if claimed {
			job.Status = domain.JobStatusAssigned
		}
		return job, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.claimFn = func(_ context.Context, jobID, translatorID string, at time.Time) (domain.Assignment, error) {
		claimed = true
		return domain.Assignment{ID: "asg_1", JobID: jobID, TranslatorID: translatorID, CreatedAt: at}, nil
	}
	notifications := &recordingNotifications{}
	publisher := &stubEventPublisher{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Assignments:   assignments,
		Notifications: notifications,
		Events:        publisher,
		Clock:         fixedClock(now),
	})

	result, err := svc.Accept(context.Background(), AcceptBookingCommand{JobID: "job_1", TranslatorID: "trn_1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !result.Claimed {
		t.Fatalf("expected claim to succeed: %s", result.Message)
	}
	if result.Job.Status != domain.JobStatusAssigned {
		t.Fatalf("expected assigned booking, got %s", result.Job.Status)
	}
	if !notifications.has("accepted") {
		t.Fatalf("expected acceptance notification, got %v", notifications.calls)
	}
	if len(publisher.events) != 1 || publisher.events[0].Type != domain.BookingEventAccepted {
		t.Fatalf("expected accepted event, got %+v", publisher.events)
	}
}

func TestBookingServiceAcceptLosesRace(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(30 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, Due: due, WillExpireAt: due}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.claimFn = func(context.Context, string, string, time.Time) (domain.Assignment, error) {
		return domain.Assignment{}, repositories.NewAssignmentError(repositories.AssignmentErrorJobTaken, "taken", nil)
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Assignments: assignments,
		Clock:       fixedClock(now),
	})

	result, err := svc.Accept(context.Background(), AcceptBookingCommand{JobID: "job_1", TranslatorID: "trn_1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Claimed {
		t.Fatalf("expected claim to fail")
	}
	if !strings.Contains(result.Message, "redan accepterats") {
		t.Fatalf("expected taken message, got %q", result.Message)
	}
}

func TestBookingServiceAcceptExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, WillExpireAt: now.Add(-time.Minute)}, nil
	}
	assignments := &stubAssignmentRepository{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Assignments: assignments,
		Clock:       fixedClock(now),
	})

	result, err := svc.Accept(context.Background(), AcceptBookingCommand{JobID: "job_1", TranslatorID: "trn_1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Claimed {
		t.Fatalf("expected expired booking to be refused")
	}
	if len(assignments.claims) != 0 {
		t.Fatalf("expected no claim attempt, got %d", len(assignments.claims))
	}
}

func TestBookingServiceAcceptDoubleBooked(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(30 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, Due: due, WillExpireAt: due}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.hasBookingFn = func(context.Context, string, time.Time) (bool, error) {
		return true, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Assignments: assignments,
		Clock:       fixedClock(now),
	})

	result, err := svc.Accept(context.Background(), AcceptBookingCommand{JobID: "job_1", TranslatorID: "trn_1"})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if result.Claimed {
		t.Fatalf("expected clash to block the claim")
	}
	if !strings.Contains(result.Message, "redan en bokning") {
		t.Fatalf("expected clash message, got %q", result.Message)
	}
}

func TestBookingServiceCancelByCustomer(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name   string
		due    time.Time
		status domain.JobStatus
	}{
		{name: "early withdrawal", due: now.Add(48 * time.Hour), status: domain.JobStatusWithdrawBefore24},
		{name: "late withdrawal", due: now.Add(2 * time.Hour), status: domain.JobStatusWithdrawAfter24},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jobs := &stubJobRepository{}
			jobs.findFn = func(context.Context, string) (domain.Job, error) {
				return domain.Job{ID: "job_1", CustomerID: "cus_1", Status: domain.JobStatusAssigned, Due: tc.due}, nil
			}
			assignments := &stubAssignmentRepository{}
			assignments.findOpenFn = func(context.Context, string) (domain.Assignment, error) {
				return domain.Assignment{ID: "asg_1", JobID: "job_1", TranslatorID: "trn_1"}, nil
			}
			notifications := &recordingNotifications{}

			svc := newBookingServiceForTest(t, BookingServiceDeps{
				Jobs:          jobs,
				Assignments:   assignments,
				Notifications: notifications,
				Clock:         fixedClock(now),
			})

			result, err := svc.Cancel(context.Background(), CancelBookingCommand{JobID: "job_1", ActorID: "cus_1"})
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if !result.Canceled || result.Reopened {
				t.Fatalf("expected plain cancellation, got %+v", result)
			}
			if result.Job.Status != tc.status {
				t.Fatalf("expected status %s, got %s", tc.status, result.Job.Status)
			}
			if result.Job.WithdrawAt == nil {
				t.Fatalf("expected withdraw timestamp")
			}
			if len(assignments.cancels) != 1 {
				t.Fatalf("expected assignment cancel, got %d", len(assignments.cancels))
			}
			if !notifications.has("cancelled_translator") {
				t.Fatalf("expected translator notification, got %v", notifications.calls)
			}
		})
	}
}

func TestBookingServiceCancelByTranslatorWithin24Hours(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", CustomerID: "cus_1", Status: domain.JobStatusAssigned, Due: now.Add(3 * time.Hour)}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs, Clock: fixedClock(now)})

	result, err := svc.Cancel(context.Background(), CancelBookingCommand{JobID: "job_1", ActorID: "trn_1"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if result.Canceled {
		t.Fatalf("expected cancellation to be refused")
	}
	if !strings.Contains(result.Message, "ring oss") {
		t.Fatalf("expected phone-us message, got %q", result.Message)
	}
	if len(jobs.updated) != 0 {
		t.Fatalf("expected no update, got %d", len(jobs.updated))
	}
}

func TestBookingServiceCancelByTranslatorReopens(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(72 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", CustomerID: "cus_1", Status: domain.JobStatusAssigned, Due: due}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.findOpenFn = func(context.Context, string) (domain.Assignment, error) {
		return domain.Assignment{ID: "asg_1", JobID: "job_1", TranslatorID: "trn_1"}, nil
	}
	notifications := &recordingNotifications{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Assignments:   assignments,
		Notifications: notifications,
		Clock:         fixedClock(now),
	})

	result, err := svc.Cancel(context.Background(), CancelBookingCommand{JobID: "job_1", ActorID: "trn_1"})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !result.Canceled || !result.Reopened {
		t.Fatalf("expected reopened cancellation, got %+v", result)
	}
	if result.Job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending booking, got %s", result.Job.Status)
	}
	if !result.Job.WillExpireAt.Equal(domain.ExpiryTime(due, now)) {
		t.Fatalf("expected expiry recomputed, got %v", result.Job.WillExpireAt)
	}
	if len(assignments.cancels) != 1 {
		t.Fatalf("expected assignment cancel, got %d", len(assignments.cancels))
	}
	if !notifications.has("cancelled_customer") || !notifications.has("broadcast") {
		t.Fatalf("expected customer mail and broadcast, got %v", notifications.calls)
	}
	notifications.mu.Lock()
	defer notifications.mu.Unlock()
	if len(notifications.excluded) != 1 || notifications.excluded[0] != "trn_1" {
		t.Fatalf("expected broadcast to exclude the bailing translator, got %v", notifications.excluded)
	}
}

func TestBookingServiceEndSession(t *testing.T) {
	now := time.Date(2025, 3, 10, 13, 30, 0, 0, time.UTC)
	due := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", CustomerID: "cus_1", Status: domain.JobStatusStarted, Due: due}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.findOpenFn = func(context.Context, string) (domain.Assignment, error) {
		return domain.Assignment{ID: "asg_1", JobID: "job_1", TranslatorID: "trn_1"}, nil
	}
	notifications := &recordingNotifications{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Assignments:   assignments,
		Notifications: notifications,
		Clock:         fixedClock(now),
	})

	job, err := svc.EndSession(context.Background(), EndSessionCommand{JobID: "job_1", ActorID: "trn_1"})
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("expected completed booking, got %s", job.Status)
	}
	if job.SessionTime != "1:30:00" {
		t.Fatalf("expected session time 1:30:00, got %s", job.SessionTime)
	}
	if job.EndAt == nil || !job.EndAt.Equal(now) {
		t.Fatalf("expected end timestamp %v, got %v", now, job.EndAt)
	}
	if len(assignments.completes) != 1 {
		t.Fatalf("expected assignment completion, got %d", len(assignments.completes))
	}
	if !notifications.has("session_ended") {
		t.Fatalf("expected session-ended mails, got %v", notifications.calls)
	}
}

func TestBookingServiceEndSessionIgnoresUnstarted(t *testing.T) {
	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs})

	job, err := svc.EndSession(context.Background(), EndSessionCommand{JobID: "job_1"})
	if err != nil {
		t.Fatalf("end session: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("expected booking untouched, got %s", job.Status)
	}
	if len(jobs.updated) != 0 {
		t.Fatalf("expected no update, got %d", len(jobs.updated))
	}
}

func TestBookingServiceMarkCustomerDidNotCall(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusAssigned}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.findOpenFn = func(context.Context, string) (domain.Assignment, error) {
		return domain.Assignment{ID: "asg_1", TranslatorID: "trn_1"}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Assignments: assignments,
		Clock:       fixedClock(now),
	})

	job, err := svc.MarkCustomerDidNotCall(context.Background(), "job_1", "trn_1")
	if err != nil {
		t.Fatalf("mark not carried out: %v", err)
	}
	if job.Status != domain.JobStatusNotCarriedOut {
		t.Fatalf("expected not carried out, got %s", job.Status)
	}
	if len(assignments.completes) != 1 {
		t.Fatalf("expected assignment completion, got %d", len(assignments.completes))
	}
}

func TestBookingServiceMarkCustomerDidNotCallRejectsClosed(t *testing.T) {
	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusWithdrawAfter24}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs})

	_, err := svc.MarkCustomerDidNotCall(context.Background(), "job_1", "trn_1")
	if !errors.Is(err, ErrBookingInvalidState) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
}

func TestBookingServiceReopenTimedOutClones(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{
			ID: "job_1", JobNumber: "TD-2025-000001", CustomerID: "cus_1",
			Status: domain.JobStatusTimedOut, Due: due, SessionTime: "1:00:00",
		}, nil
	}
	counters := &stubBookingCounters{nextFn: func(context.Context, string, int64) (int64, error) {
		return 9, nil
	}}
	notifications := &recordingNotifications{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Counters:      counters,
		Notifications: notifications,
		Clock:         fixedClock(now),
		IDGenerator:   func() string { return "CLONE1" },
	})

	result, err := svc.Reopen(context.Background(), ReopenBookingCommand{JobID: "job_1", ActorID: "adm_1"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !result.Cloned {
		t.Fatalf("expected a cloned booking")
	}
	if result.Job.ID != "job_CLONE1" {
		t.Fatalf("expected fresh id, got %s", result.Job.ID)
	}
	if result.Job.JobNumber != "TD-2025-000009" {
		t.Fatalf("expected fresh job number, got %s", result.Job.JobNumber)
	}
	if result.Job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending clone, got %s", result.Job.Status)
	}
	if result.Job.SessionTime != "" {
		t.Fatalf("expected session time cleared on clone")
	}
	if !strings.Contains(result.Job.AdminComments, "TD-2025-000001") {
		t.Fatalf("expected clone note to reference the original, got %q", result.Job.AdminComments)
	}
	if len(jobs.inserted) != 1 {
		t.Fatalf("expected clone insert, got %d", len(jobs.inserted))
	}
	if !notifications.has("broadcast") {
		t.Fatalf("expected broadcast after reopen, got %v", notifications.calls)
	}
}

func TestBookingServiceReopenWithdrawnResets(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)
	withdrawAt := now.Add(-time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{
			ID: "job_1", CustomerID: "cus_1", Status: domain.JobStatusWithdrawAfter24,
			Due: due, WithdrawAt: &withdrawAt,
		}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs, Clock: fixedClock(now)})

	result, err := svc.Reopen(context.Background(), ReopenBookingCommand{JobID: "job_1", ActorID: "adm_1"})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if result.Cloned {
		t.Fatalf("expected in-place reset, not a clone")
	}
	if result.Job.Status != domain.JobStatusPending {
		t.Fatalf("expected pending booking, got %s", result.Job.Status)
	}
	if result.Job.WithdrawAt != nil {
		t.Fatalf("expected withdraw timestamp cleared")
	}
	if len(jobs.updated) != 1 {
		t.Fatalf("expected one update, got %d", len(jobs.updated))
	}
}

func TestBookingServiceListUserBookingsSplits(t *testing.T) {
	jobs := &stubJobRepository{}
	jobs.listByCustomerFn = func(_ context.Context, customerID string, filter repositories.JobListFilter) (domain.CursorPage[domain.Job], error) {
		if customerID != "cus_1" {
			t.Fatalf("expected customer cus_1, got %s", customerID)
		}
		if len(filter.Status) != 3 {
			t.Fatalf("expected open statuses, got %v", filter.Status)
		}
		return domain.CursorPage[domain.Job]{Items: []domain.Job{
			{ID: "job_1", Immediate: true},
			{ID: "job_2"},
			{ID: "job_3"},
		}}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs})

	result, err := svc.ListUserBookings(context.Background(), "cus_1")
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	if len(result.Emergency) != 1 || len(result.Scheduled) != 2 {
		t.Fatalf("expected 1 emergency and 2 scheduled, got %d/%d", len(result.Emergency), len(result.Scheduled))
	}
}

func TestBookingServiceListUserHistory(t *testing.T) {
	jobs := &stubJobRepository{}
	jobs.listByCustomerFn = func(_ context.Context, _ string, filter repositories.JobListFilter) (domain.CursorPage[domain.Job], error) {
		if len(filter.Status) != len(historyStatuses) {
			t.Fatalf("expected history statuses, got %v", filter.Status)
		}
		if filter.Pagination.PageSize != 15 || filter.Pagination.PageToken != "tok" {
			t.Fatalf("expected pagination forwarded, got %+v", filter.Pagination)
		}
		return domain.CursorPage[domain.Job]{
			Items:         []domain.Job{{ID: "job_1", Status: domain.JobStatusCompleted}},
			NextPageToken: "next",
		}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs})

	result, err := svc.ListUserHistory(context.Background(), UserHistoryCommand{
		UserID:     "cus_1",
		Pagination: domain.Pagination{PageSize: 15, PageToken: "tok"},
	})
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(result.Jobs) != 1 || result.NextPageToken != "next" {
		t.Fatalf("expected one page with next token, got %+v", result)
	}
}

func TestBookingServiceGetIncludesTranslator(t *testing.T) {
	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusAssigned}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.findOpenFn = func(context.Context, string) (domain.Assignment, error) {
		return domain.Assignment{ID: "asg_1", TranslatorID: "trn_1"}, nil
	}
	translators := &stubTranslatorRepository{}
	translators.findFn = func(context.Context, string) (domain.Translator, error) {
		return domain.Translator{ID: "trn_1", Name: "Amina"}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Assignments: assignments,
		Translators: translators,
	})

	detail, err := svc.Get(context.Background(), "job_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Translator == nil || detail.Translator.ID != "trn_1" {
		t.Fatalf("expected translator attached, got %+v", detail.Translator)
	}
}

func TestBookingServiceGetMapsNotFound(t *testing.T) {
	svc := newBookingServiceForTest(t, BookingServiceDeps{})

	_, err := svc.Get(context.Background(), "job_missing")
	if !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestParseRequirementsPrecedence(t *testing.T) {
	cases := []struct {
		name string
		tags []string
		want domain.Certification
	}{
		{name: "none", tags: nil, want: domain.CertificationAny},
		{name: "normal", tags: []string{"normal"}, want: domain.CertificationNormal},
		{name: "certified", tags: []string{"certified"}, want: domain.CertificationCertified},
		{name: "normal and certified", tags: []string{"normal", "certified"}, want: domain.CertificationBoth},
		{name: "law alone", tags: []string{"certified_in_law"}, want: domain.CertificationLaw},
		{name: "health alone", tags: []string{"certified_in_health"}, want: domain.CertificationHealth},
		{name: "law beats certified", tags: []string{"certified", "certified_in_law"}, want: domain.CertificationLaw},
		{name: "law beats certified with normal", tags: []string{"normal", "certified", "certified_in_law"}, want: domain.CertificationNormalLaw},
		{name: "health beats law", tags: []string{"certified_in_law", "certified_in_health"}, want: domain.CertificationHealth},
		{name: "health beats law with normal", tags: []string{"normal", "certified_in_law", "certified_in_health"}, want: domain.CertificationNormalHealth},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gender, certification := parseRequirements(tc.tags)
			if gender != domain.GenderAny {
				t.Fatalf("expected no gender constraint, got %q", gender)
			}
			if certification != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, certification)
			}
		})
	}
}

func TestBookingServiceUpdateSwapsTranslatorWithoutStatusChange(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, Due: due}, nil
	}
	assignments := &stubAssignmentRepository{}
	assignments.findOpenFn = func(context.Context, string) (domain.Assignment, error) {
		return domain.Assignment{ID: "asg_1", JobID: "job_1", TranslatorID: "trn_1"}, nil
	}
	var inserted []domain.Assignment
	assignments.insertFn = func(_ context.Context, assignment domain.Assignment) (domain.Assignment, error) {
		inserted = append(inserted, assignment)
		return assignment, nil
	}
	translators := &stubTranslatorRepository{}
	translators.findFn = func(_ context.Context, id string) (domain.Translator, error) {
		return domain.Translator{ID: id, Name: "Tolk " + id, Email: id + "@example.com"}, nil
	}
	notifications := &recordingNotifications{}
	audit := &stubAuditService{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Assignments:   assignments,
		Translators:   translators,
		Notifications: notifications,
		Audit:         audit,
		Clock:         fixedClock(now),
	})

	// Same status on the command; only the translator moves.
	result, err := svc.Update(context.Background(), UpdateBookingCommand{
		JobID:        "job_1",
		Status:       domain.JobStatusAssigned,
		TranslatorID: "trn_2",
		ActorID:      "adm_1",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.StatusApplied {
		t.Fatalf("expected no status transition on a pure swap")
	}
	if len(assignments.cancels) != 1 || assignments.cancels[0] != "asg_1" {
		t.Fatalf("expected old assignment cancelled, got %v", assignments.cancels)
	}
	if len(inserted) != 1 || inserted[0].TranslatorID != "trn_2" {
		t.Fatalf("expected assignment for trn_2, got %+v", inserted)
	}
	if !notifications.has("translator_changed") {
		t.Fatalf("expected translator change mail, got %v", notifications.calls)
	}
	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.records) != 1 {
		t.Fatalf("expected an audit record for the swap, got %d", len(audit.records))
	}
}

func TestBookingServiceUpdateNoChangesStaysQuiet(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, Due: due, FromLanguage: "ar"}, nil
	}
	notifications := &recordingNotifications{}
	audit := &stubAuditService{}
	publisher := &stubEventPublisher{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Notifications: notifications,
		Audit:         audit,
		Events:        publisher,
		Clock:         fixedClock(now),
	})

	sameDue := due
	result, err := svc.Update(context.Background(), UpdateBookingCommand{
		JobID:        "job_1",
		Due:          &sameDue,
		FromLanguage: "ar",
		ActorID:      "adm_1",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if result.StatusApplied || result.Silent {
		t.Fatalf("unexpected result flags: %+v", result)
	}
	audit.mu.Lock()
	if len(audit.records) != 0 {
		t.Fatalf("expected no audit record for a no-op, got %d", len(audit.records))
	}
	audit.mu.Unlock()
	publisher.mu.Lock()
	if len(publisher.events) != 0 {
		t.Fatalf("expected no events for a no-op, got %d", len(publisher.events))
	}
	publisher.mu.Unlock()
	notifications.mu.Lock()
	defer notifications.mu.Unlock()
	if len(notifications.calls) != 0 {
		t.Fatalf("expected no notifications for a no-op, got %v", notifications.calls)
	}
}

func TestBookingServiceUpdateResolvesTranslatorByEmail(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, Due: due}, nil
	}
	assignments := &stubAssignmentRepository{}
	var inserted []domain.Assignment
	assignments.insertFn = func(_ context.Context, assignment domain.Assignment) (domain.Assignment, error) {
		inserted = append(inserted, assignment)
		return assignment, nil
	}
	translators := &stubTranslatorRepository{}
	translators.findByEmailFn = func(_ context.Context, email string) (domain.Translator, error) {
		if email != "amina@example.com" {
			t.Fatalf("unexpected email lookup %q", email)
		}
		return domain.Translator{ID: "trn_9", Name: "Amina", Email: email}, nil
	}
	translators.findFn = func(_ context.Context, id string) (domain.Translator, error) {
		return domain.Translator{ID: id, Name: "Amina"}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Assignments: assignments,
		Translators: translators,
		Clock:       fixedClock(now),
	})

	result, err := svc.Update(context.Background(), UpdateBookingCommand{
		JobID:           "job_1",
		Status:          domain.JobStatusAssigned,
		TranslatorEmail: "amina@example.com",
		ActorID:         "adm_1",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !result.StatusApplied {
		t.Fatalf("expected hand-assignment applied: %s", result.StatusNote)
	}
	if len(inserted) != 1 || inserted[0].TranslatorID != "trn_9" {
		t.Fatalf("expected assignment for resolved translator, got %+v", inserted)
	}
}

func TestBookingServiceUpdateRejectsUnknownTranslatorEmail(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, Due: now.Add(48 * time.Hour)}, nil
	}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:        jobs,
		Translators: &stubTranslatorRepository{},
		Clock:       fixedClock(now),
	})

	_, err := svc.Update(context.Background(), UpdateBookingCommand{
		JobID:           "job_1",
		Status:          domain.JobStatusAssigned,
		TranslatorEmail: "nobody@example.com",
		ActorID:         "adm_1",
	})
	if !errors.Is(err, ErrBookingInvalidInput) {
		t.Fatalf("expected invalid input for unknown email, got %v", err)
	}
}

func TestBookingServiceUpdatePendingToStartedCancels(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{ID: "job_1", Status: domain.JobStatusPending, Due: due}, nil
	}
	notifications := &recordingNotifications{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Notifications: notifications,
		Clock:         fixedClock(now),
	})

	result, err := svc.Update(context.Background(), UpdateBookingCommand{
		JobID:   "job_1",
		Status:  domain.JobStatusStarted,
		ActorID: "adm_1",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !result.StatusApplied {
		t.Fatalf("expected pending exit applied: %s", result.StatusNote)
	}
	if result.Job.Status != domain.JobStatusStarted {
		t.Fatalf("expected started, got %s", result.Job.Status)
	}
	if !notifications.has("cancelled_customer") {
		t.Fatalf("expected cancellation mail to customer, got %v", notifications.calls)
	}
}

func TestBookingServiceMarkExpired(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	jobs := &stubJobRepository{}
	jobs.findFn = func(context.Context, string) (domain.Job, error) {
		return domain.Job{
			ID:           "job_1",
			JobNumber:    "TD-2025-000042",
			Status:       domain.JobStatusPending,
			Due:          now.Add(time.Hour),
			WillExpireAt: now.Add(-time.Minute),
		}, nil
	}
	notifications := &recordingNotifications{}
	audit := &stubAuditService{}
	publisher := &stubEventPublisher{}

	svc := newBookingServiceForTest(t, BookingServiceDeps{
		Jobs:          jobs,
		Notifications: notifications,
		Audit:         audit,
		Events:        publisher,
		Clock:         fixedClock(now),
	})

	job, err := svc.MarkExpired(context.Background(), "job_1", "adm_1")
	if err != nil {
		t.Fatalf("mark expired: %v", err)
	}
	if job.Status != domain.JobStatusTimedOut {
		t.Fatalf("expected timed out, got %s", job.Status)
	}
	if len(jobs.updated) != 1 || jobs.updated[0].Status != domain.JobStatusTimedOut {
		t.Fatalf("expected persisted timeout, got %+v", jobs.updated)
	}
	if !notifications.has("expired") {
		t.Fatalf("expected expiry mail, got %v", notifications.calls)
	}
	audit.mu.Lock()
	if len(audit.records) != 1 || audit.records[0].Action != "booking.expire" {
		t.Fatalf("expected expiry audit, got %+v", audit.records)
	}
	audit.mu.Unlock()
	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	if len(publisher.events) != 1 || publisher.events[0].Type != domain.BookingEventExpired {
		t.Fatalf("expected expiry event, got %+v", publisher.events)
	}
}

func TestBookingServiceMarkExpiredRejections(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("not pending", func(t *testing.T) {
		jobs := &stubJobRepository{}
		jobs.findFn = func(context.Context, string) (domain.Job, error) {
			return domain.Job{ID: "job_1", Status: domain.JobStatusAssigned, WillExpireAt: now.Add(-time.Minute)}, nil
		}
		svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs, Clock: fixedClock(now)})

		_, err := svc.MarkExpired(context.Background(), "job_1", "adm_1")
		if !errors.Is(err, ErrBookingInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})

	t.Run("deadline not reached", func(t *testing.T) {
		jobs := &stubJobRepository{}
		jobs.findFn = func(context.Context, string) (domain.Job, error) {
			return domain.Job{ID: "job_1", Status: domain.JobStatusPending, WillExpireAt: now.Add(time.Hour)}, nil
		}
		svc := newBookingServiceForTest(t, BookingServiceDeps{Jobs: jobs, Clock: fixedClock(now)})

		_, err := svc.MarkExpired(context.Background(), "job_1", "adm_1")
		if !errors.Is(err, ErrBookingInvalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
	})
}
