package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/repositories"
)

const (
	jobIDPrefix        = "job_"
	assignmentIDPrefix = "asg_"

	// Immediate bookings start after a short grace period so the customer
	// can still be connected.
	immediateLeadTime = 5 * time.Minute

	// Translators may only bail out of a booking more than a day ahead.
	withdrawCutoff = 24 * time.Hour
)

var (
	// ErrBookingInvalidInput signals the caller provided invalid data.
	ErrBookingInvalidInput = errors.New("booking: invalid input")
	// ErrBookingNotFound indicates the booking could not be located.
	ErrBookingNotFound = errors.New("booking: not found")
	// ErrBookingInvalidState indicates an invalid status transition was attempted.
	ErrBookingInvalidState = errors.New("booking: invalid status transition")
	// ErrBookingConflict indicates the booking was taken or changed concurrently.
	ErrBookingConflict = errors.New("booking: conflict")
)

// Open statuses shown on a customer's booking list.
var openStatuses = []domain.JobStatus{
	domain.JobStatusPending,
	domain.JobStatusAssigned,
	domain.JobStatusStarted,
}

// Finished statuses shown on a customer's history page.
var historyStatuses = []domain.JobStatus{
	domain.JobStatusCompleted,
	domain.JobStatusWithdrawBefore24,
	domain.JobStatusWithdrawAfter24,
	domain.JobStatusTimedOut,
	domain.JobStatusNotCarriedOut,
}

// BookingServiceDeps bundles collaborators required to construct the booking service.
type BookingServiceDeps struct {
	Jobs          repositories.JobRepository
	Assignments   repositories.AssignmentRepository
	Translators   repositories.TranslatorRepository
	Customers     repositories.CustomerRepository
	Counters      repositories.CounterRepository
	UnitOfWork    repositories.UnitOfWork
	Notifications NotificationService
	Audit         AuditLogService
	Events        BookingEventPublisher
	Clock         func() time.Time
	IDGenerator   func() string
	// Sanitize strips markup from free-text fields before storage.
	Sanitize func(string) string
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type bookingService struct {
	jobs          repositories.JobRepository
	assignments   repositories.AssignmentRepository
	translators   repositories.TranslatorRepository
	customers     repositories.CustomerRepository
	counters      repositories.CounterRepository
	unitOfWork    repositories.UnitOfWork
	notifications NotificationService
	audit         AuditLogService
	events        BookingEventPublisher
	clock         func() time.Time
	newID         func() string
	sanitize      func(string) string
	logger        func(context.Context, string, map[string]any)
}

// NewBookingService wires dependencies into a concrete BookingService implementation.
func NewBookingService(deps BookingServiceDeps) (BookingService, error) {
	if deps.Jobs == nil {
		return nil, errors.New("booking service: job repository is required")
	}
	if deps.Assignments == nil {
		return nil, errors.New("booking service: assignment repository is required")
	}
	if deps.Customers == nil {
		return nil, errors.New("booking service: customer repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("booking service: counter repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	sanitize := deps.Sanitize
	if sanitize == nil {
		sanitize = func(s string) string { return s }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &bookingService{
		jobs:          deps.Jobs,
		assignments:   deps.Assignments,
		translators:   deps.Translators,
		customers:     deps.Customers,
		counters:      deps.Counters,
		unitOfWork:    unit,
		notifications: deps.Notifications,
		audit:         deps.Audit,
		events:        deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitize: sanitize,
		logger:   logger,
	}, nil
}

func (s *bookingService) Create(ctx context.Context, cmd CreateBookingCommand) (CreateBookingResult, error) {
	customerID := strings.TrimSpace(cmd.CustomerID)
	if customerID == "" {
		return CreateBookingResult{}, fmt.Errorf("%w: customer id is required", ErrBookingInvalidInput)
	}

	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return CreateBookingResult{}, s.mapRepositoryError(err)
	}

	if rejected, ok := validateCreateCommand(cmd); ok {
		return rejected, nil
	}

	now := s.now()

	var due time.Time
	if cmd.Immediate {
		due = now.Add(immediateLeadTime)
	} else {
		parsed, parseErr := time.ParseInLocation("1/2/2006 15:04", cmd.DueDate+" "+cmd.DueTime, now.Location())
		if parseErr != nil {
			return rejectCreate("due_date", "Invalid session date or time"), nil
		}
		if !parsed.After(now) {
			return rejectCreate("due_date", "Can't create a booking in the past"), nil
		}
		due = parsed
	}

	gender, certification := parseRequirements(cmd.Requirements)

	phone := cmd.PhoneBooking != nil && *cmd.PhoneBooking
	onSite := cmd.OnSiteBooking != nil && *cmd.OnSiteBooking
	if cmd.Immediate {
		phone = true
	}

	job := Job{
		ID:            s.nextJobID(),
		CustomerID:    customerID,
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		CustomerTown:  customer.Town,
		ConsumerType:  customer.ConsumerType,
		JobType:       customer.ConsumerType.JobType(),
		FromLanguage:  strings.TrimSpace(cmd.FromLanguage),
		Immediate:     cmd.Immediate,
		Due:           due,
		Duration:      cmd.Duration,
		Gender:        gender,
		Certification: certification,
		PhoneBooking:  phone,
		OnSiteBooking: onSite,
		Status:        domain.JobStatusPending,
		WillExpireAt:  domain.ExpiryTime(due, now),
		Address:       strings.TrimSpace(cmd.Address),
		Instructions:  s.sanitize(strings.TrimSpace(cmd.Instructions)),
		Town:          strings.TrimSpace(cmd.Town),
		Reference:     strings.TrimSpace(cmd.Reference),
		ByAdmin:       cmd.ByAdmin,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	number, err := s.generateJobNumber(ctx, now)
	if err != nil {
		return CreateBookingResult{}, err
	}
	job.JobNumber = number

	if err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.jobs.Insert(txCtx, domain.Job(job)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	}); err != nil {
		return CreateBookingResult{}, err
	}

	s.recordAudit(ctx, cmd.ActorID, "booking.create", job.ID, map[string]any{
		"jobNumber": job.JobNumber,
		"language":  job.FromLanguage,
		"immediate": job.Immediate,
	})
	s.publishEvent(ctx, BookingEvent{
		Type:          domain.BookingEventCreated,
		JobID:         job.ID,
		JobNumber:     job.JobNumber,
		CurrentStatus: job.Status,
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})
	if s.notifications != nil {
		s.notifications.BroadcastBooking(ctx, job, "")
		if _, err := s.notifications.SendSMSToEligible(ctx, job); err != nil {
			s.logger(ctx, "booking.sms.fanout.failed", map[string]any{
				"job":   job.ID,
				"error": err.Error(),
			})
		}
	}

	return CreateBookingResult{Job: job}, nil
}

func (s *bookingService) AttachCustomerEmail(ctx context.Context, cmd AttachEmailCommand) (Job, error) {
	jobID := strings.TrimSpace(cmd.JobID)
	if jobID == "" {
		return Job{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return Job{}, s.mapRepositoryError(err)
	}

	if email := strings.TrimSpace(cmd.Email); email != "" {
		job.CustomerEmail = email
	}
	if ref := strings.TrimSpace(cmd.Reference); ref != "" {
		job.Reference = ref
	}
	job.UpdatedAt = s.now()

	if err := s.jobs.Update(ctx, domain.Job(job)); err != nil {
		return Job{}, s.mapRepositoryError(err)
	}

	if s.notifications != nil {
		s.notifications.NotifyStatusChanged(ctx, job, job.Status)
	}
	return job, nil
}

func (s *bookingService) Get(ctx context.Context, jobID string) (BookingDetail, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return BookingDetail{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return BookingDetail{}, s.mapRepositoryError(err)
	}

	detail := BookingDetail{Job: job}
	assignment, err := s.assignments.FindOpenByJob(ctx, jobID)
	if err != nil {
		if !isNotFound(err) {
			return BookingDetail{}, s.mapRepositoryError(err)
		}
		return detail, nil
	}
	if s.translators != nil {
		translator, err := s.translators.FindByID(ctx, assignment.TranslatorID)
		if err == nil {
			detail.Translator = &translator
		} else if !isNotFound(err) {
			return BookingDetail{}, s.mapRepositoryError(err)
		}
	}
	return detail, nil
}

func (s *bookingService) Update(ctx context.Context, cmd UpdateBookingCommand) (UpdateBookingResult, error) {
	jobID := strings.TrimSpace(cmd.JobID)
	if jobID == "" {
		return UpdateBookingResult{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return UpdateBookingResult{}, s.mapRepositoryError(err)
	}

	now := s.now()
	previous := job

	var currentAssignment *Assignment
	if assignment, err := s.assignments.FindOpenByJob(ctx, jobID); err == nil {
		currentAssignment = &assignment
	} else if !isNotFound(err) {
		return UpdateBookingResult{}, s.mapRepositoryError(err)
	}

	targetTranslator := strings.TrimSpace(cmd.TranslatorID)
	if targetTranslator == "" {
		if email := strings.TrimSpace(cmd.TranslatorEmail); email != "" {
			if s.translators == nil {
				return UpdateBookingResult{}, fmt.Errorf("%w: translator lookup is not available", ErrBookingInvalidInput)
			}
			translator, err := s.translators.FindByEmail(ctx, email)
			if err != nil {
				if isNotFound(err) {
					return UpdateBookingResult{}, fmt.Errorf("%w: no translator registered for %s", ErrBookingInvalidInput, email)
				}
				return UpdateBookingResult{}, s.mapRepositoryError(err)
			}
			targetTranslator = translator.ID
		}
	}
	translatorChanged := targetTranslator != "" &&
		(currentAssignment == nil || currentAssignment.TranslatorID != targetTranslator)

	result := UpdateBookingResult{}

	decision := statusDecision{}
	target := cmd.Status
	if target != "" && target != job.Status {
		decision = decideStatusChange(job, target, cmd.AdminComments, cmd.SessionTime, translatorChanged)
		if decision.allowed {
			applyStatusDecision(&job, decision, target, s.sanitize(strings.TrimSpace(cmd.AdminComments)), now)
			if target == domain.JobStatusCompleted && cmd.SessionTime != "" {
				job.SessionTime = normalizeSessionTime(cmd.SessionTime)
				job.EndAt = &now
			}
			result.StatusApplied = true
		} else {
			result.StatusNote = decision.reason
		}
	}

	dueChanged := cmd.Due != nil && !cmd.Due.Equal(job.Due)
	if dueChanged {
		job.Due = *cmd.Due
		if job.Status == domain.JobStatusPending {
			job.WillExpireAt = domain.ExpiryTime(job.Due, job.CreatedAt)
		}
	}
	languageChanged := false
	if lang := strings.TrimSpace(cmd.FromLanguage); lang != "" && lang != job.FromLanguage {
		job.FromLanguage = lang
		languageChanged = true
	}
	referenceChanged := false
	if ref := strings.TrimSpace(cmd.Reference); ref != "" && ref != job.Reference {
		job.Reference = ref
		referenceChanged = true
	}
	job.UpdatedAt = now

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if currentAssignment != nil {
			switch {
			case decision.allowed && decision.completeAssignment:
				if err := s.assignments.Complete(txCtx, currentAssignment.ID, now, cmd.ActorID); err != nil {
					return s.mapRepositoryError(err)
				}
			case decision.allowed && decision.closeAssignment, translatorChanged:
				if err := s.assignments.Cancel(txCtx, currentAssignment.ID, now); err != nil {
					return s.mapRepositoryError(err)
				}
			}
		}
		if translatorChanged {
			if _, err := s.assignments.Insert(txCtx, Assignment{
				ID:           s.nextAssignmentID(),
				JobID:        job.ID,
				TranslatorID: targetTranslator,
				CreatedAt:    now,
			}); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.jobs.Update(txCtx, domain.Job(job)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return UpdateBookingResult{}, err
	}

	changed := result.StatusApplied || translatorChanged || dueChanged || languageChanged || referenceChanged
	if changed {
		diff := updateDiff(previous, job)
		if translatorChanged {
			change := map[string]any{"new": targetTranslator}
			if currentAssignment != nil {
				change["old"] = currentAssignment.TranslatorID
			}
			diff["translator"] = change
		}
		s.recordAudit(ctx, cmd.ActorID, "booking.update", job.ID, diff)
		s.publishEvent(ctx, BookingEvent{
			Type:           domain.BookingEventUpdated,
			JobID:          job.ID,
			JobNumber:      job.JobNumber,
			PreviousStatus: previous.Status,
			CurrentStatus:  job.Status,
			ActorID:        cmd.ActorID,
			OccurredAt:     now,
		})
	}

	result.Job = job

	// Edits landing once the session start has passed are saved without fanfare.
	if !job.Due.After(now) {
		result.Silent = true
		return result, nil
	}

	if s.notifications != nil && translatorChanged {
		current := s.lookupTranslator(ctx, targetTranslator)
		var prev *Translator
		if currentAssignment != nil {
			prev = s.lookupTranslator(ctx, currentAssignment.TranslatorID)
		}
		s.notifications.NotifyTranslatorChanged(ctx, job, current, prev)
	}
	s.dispatchStatusEffects(ctx, job, previous, decision, currentAssignment, targetTranslator)
	if s.notifications != nil && (dueChanged || languageChanged) {
		prevDue := previous.Due
		prevLang := ""
		if languageChanged {
			prevLang = previous.FromLanguage
		}
		var duePtr *time.Time
		if dueChanged {
			duePtr = &prevDue
		}
		s.notifications.NotifyBookingChanged(ctx, job, duePtr, prevLang)
	}

	return result, nil
}

func (s *bookingService) dispatchStatusEffects(ctx context.Context, job, previous Job, decision statusDecision, currentAssignment *Assignment, targetTranslator string) {
	if s.notifications == nil || !decision.allowed {
		return
	}
	for _, effect := range decision.effects {
		switch effect {
		case effectStatusChangedMail:
			s.notifications.NotifyStatusChanged(ctx, job, previous.Status)
		case effectCancellationMail:
			s.notifications.NotifyCancelledToCustomer(ctx, job)
		case effectAcceptanceMail:
			s.notifications.NotifyAccepted(ctx, job, false)
		case effectSessionStartReminders:
			if targetTranslator != "" {
				s.notifications.RemindSessionStart(ctx, job, targetTranslator)
			}
		case effectSessionEndedMails:
			completedBy := job.CustomerID
			if currentAssignment != nil {
				completedBy = currentAssignment.TranslatorID
			}
			s.notifications.NotifySessionEnded(ctx, job, job.SessionTime, completedBy)
		case effectCancelTranslatorMail:
			if currentAssignment != nil {
				s.notifications.NotifyCancelledToTranslator(ctx, job, currentAssignment.TranslatorID)
			}
		case effectBroadcast:
			s.notifications.BroadcastBooking(ctx, job, "")
		}
	}
}

func (s *bookingService) lookupTranslator(ctx context.Context, translatorID string) *Translator {
	if s.translators == nil || translatorID == "" {
		return nil
	}
	translator, err := s.translators.FindByID(ctx, translatorID)
	if err != nil {
		s.logger(ctx, "booking.translator.lookup.failed", map[string]any{
			"translator": translatorID,
			"error":      err.Error(),
		})
		return nil
	}
	return &translator
}

func (s *bookingService) Accept(ctx context.Context, cmd AcceptBookingCommand) (AcceptBookingResult, error) {
	jobID := strings.TrimSpace(cmd.JobID)
	translatorID := strings.TrimSpace(cmd.TranslatorID)
	if jobID == "" || translatorID == "" {
		return AcceptBookingResult{}, fmt.Errorf("%w: job id and translator id are required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return AcceptBookingResult{}, s.mapRepositoryError(err)
	}

	now := s.now()

	if job.Expired(now) {
		return AcceptBookingResult{Job: job, Message: "Bokningen har löpt ut och kan inte längre accepteras"}, nil
	}

	booked, err := s.assignments.HasBookingAt(ctx, translatorID, job.Due)
	if err != nil {
		return AcceptBookingResult{}, s.mapRepositoryError(err)
	}
	if booked {
		return AcceptBookingResult{Job: job, Message: "Du har redan en bokning denna tid, bokningen är inte accepterad"}, nil
	}

	if _, err := s.assignments.ClaimPending(ctx, jobID, translatorID, now); err != nil {
		mapped := s.mapRepositoryError(err)
		if errors.Is(mapped, ErrBookingConflict) {
			return AcceptBookingResult{Job: job, Message: "Bokningen har redan accepterats av en annan tolk"}, nil
		}
		return AcceptBookingResult{}, mapped
	}

	job, err = s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return AcceptBookingResult{}, s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, translatorID, "booking.accept", job.ID, map[string]any{"jobNumber": job.JobNumber})
	s.publishEvent(ctx, BookingEvent{
		Type:           domain.BookingEventAccepted,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		PreviousStatus: domain.JobStatusPending,
		CurrentStatus:  job.Status,
		ActorID:        translatorID,
		OccurredAt:     now,
	})
	if s.notifications != nil {
		s.notifications.NotifyAccepted(ctx, job, cmd.NotifyCustomerPush)
	}

	return AcceptBookingResult{Job: job, Claimed: true}, nil
}

func (s *bookingService) Cancel(ctx context.Context, cmd CancelBookingCommand) (CancelBookingResult, error) {
	jobID := strings.TrimSpace(cmd.JobID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if jobID == "" || actorID == "" {
		return CancelBookingResult{}, fmt.Errorf("%w: job id and actor id are required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return CancelBookingResult{}, s.mapRepositoryError(err)
	}

	if actorID == job.CustomerID {
		return s.cancelByCustomer(ctx, job, actorID)
	}
	return s.cancelByTranslator(ctx, job, actorID)
}

func (s *bookingService) cancelByCustomer(ctx context.Context, job Job, actorID string) (CancelBookingResult, error) {
	now := s.now()
	previous := job.Status

	job.WithdrawAt = &now
	if job.Due.Sub(now) >= withdrawCutoff {
		job.Status = domain.JobStatusWithdrawBefore24
	} else {
		job.Status = domain.JobStatusWithdrawAfter24
	}
	job.UpdatedAt = now

	var assignment *Assignment
	if open, err := s.assignments.FindOpenByJob(ctx, job.ID); err == nil {
		assignment = &open
	} else if !isNotFound(err) {
		return CancelBookingResult{}, s.mapRepositoryError(err)
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if assignment != nil {
			if err := s.assignments.Cancel(txCtx, assignment.ID, now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.jobs.Update(txCtx, domain.Job(job)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return CancelBookingResult{}, err
	}

	s.recordAudit(ctx, actorID, "booking.cancel", job.ID, map[string]any{
		"jobNumber": job.JobNumber,
		"status":    string(job.Status),
	})
	s.publishEvent(ctx, BookingEvent{
		Type:           domain.BookingEventCanceled,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		PreviousStatus: previous,
		CurrentStatus:  job.Status,
		ActorID:        actorID,
		OccurredAt:     now,
	})
	if assignment != nil && s.notifications != nil {
		s.notifications.NotifyCancelledToTranslator(ctx, job, assignment.TranslatorID)
	}

	return CancelBookingResult{Job: job, Canceled: true}, nil
}

func (s *bookingService) cancelByTranslator(ctx context.Context, job Job, actorID string) (CancelBookingResult, error) {
	now := s.now()

	if job.Due.Sub(now) <= withdrawCutoff {
		return CancelBookingResult{
			Job:     job,
			Message: "Du kan inte avboka en bokning som sker inom 24 timmar genom appen, vänligen ring oss",
		}, nil
	}

	previous := job.Status
	job.Status = domain.JobStatusPending
	job.CreatedAt = now
	job.WillExpireAt = domain.ExpiryTime(job.Due, now)
	job.UpdatedAt = now

	var assignment *Assignment
	if open, err := s.assignments.FindOpenByJob(ctx, job.ID); err == nil {
		assignment = &open
	} else if !isNotFound(err) {
		return CancelBookingResult{}, s.mapRepositoryError(err)
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if assignment != nil {
			if err := s.assignments.Cancel(txCtx, assignment.ID, now); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.jobs.Update(txCtx, domain.Job(job)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return CancelBookingResult{}, err
	}

	s.recordAudit(ctx, actorID, "booking.cancel", job.ID, map[string]any{
		"jobNumber": job.JobNumber,
		"reopened":  true,
	})
	s.publishEvent(ctx, BookingEvent{
		Type:           domain.BookingEventCanceled,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		PreviousStatus: previous,
		CurrentStatus:  job.Status,
		ActorID:        actorID,
		OccurredAt:     now,
	})
	if s.notifications != nil {
		s.notifications.NotifyCancelledToCustomer(ctx, job)
		s.notifications.BroadcastBooking(ctx, job, actorID)
	}

	return CancelBookingResult{Job: job, Canceled: true, Reopened: true}, nil
}

func (s *bookingService) EndSession(ctx context.Context, cmd EndSessionCommand) (Job, error) {
	jobID := strings.TrimSpace(cmd.JobID)
	if jobID == "" {
		return Job{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return Job{}, s.mapRepositoryError(err)
	}
	if job.Status != domain.JobStatusStarted {
		return job, nil
	}

	now := s.now()
	interval := domain.SessionInterval(job.Due, now)

	previous := job.Status
	job.Status = domain.JobStatusCompleted
	job.SessionTime = interval
	job.EndAt = &now
	job.UpdatedAt = now

	var assignment *Assignment
	if open, err := s.assignments.FindOpenByJob(ctx, jobID); err == nil {
		assignment = &open
	} else if !isNotFound(err) {
		return Job{}, s.mapRepositoryError(err)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if assignment != nil {
			if err := s.assignments.Complete(txCtx, assignment.ID, now, cmd.ActorID); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.jobs.Update(txCtx, domain.Job(job)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	s.recordAudit(ctx, cmd.ActorID, "booking.session.end", job.ID, map[string]any{
		"jobNumber":   job.JobNumber,
		"sessionTime": interval,
	})
	s.publishEvent(ctx, BookingEvent{
		Type:           domain.BookingEventSessionEnded,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		PreviousStatus: previous,
		CurrentStatus:  job.Status,
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	if s.notifications != nil {
		completedBy := cmd.ActorID
		s.notifications.NotifySessionEnded(ctx, job, interval, completedBy)
	}

	return job, nil
}

func (s *bookingService) MarkCustomerDidNotCall(ctx context.Context, jobID, actorID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return Job{}, s.mapRepositoryError(err)
	}
	if job.Status.Terminal() || job.Status == domain.JobStatusCompleted {
		return Job{}, fmt.Errorf("%w: booking already closed", ErrBookingInvalidState)
	}

	now := s.now()
	previous := job.Status
	job.Status = domain.JobStatusNotCarriedOut
	job.EndAt = &now
	job.UpdatedAt = now

	var assignment *Assignment
	if open, err := s.assignments.FindOpenByJob(ctx, jobID); err == nil {
		assignment = &open
	} else if !isNotFound(err) {
		return Job{}, s.mapRepositoryError(err)
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		if assignment != nil {
			if err := s.assignments.Complete(txCtx, assignment.ID, now, assignment.TranslatorID); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.jobs.Update(txCtx, domain.Job(job)); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return Job{}, err
	}

	s.recordAudit(ctx, actorID, "booking.not_carried_out", job.ID, map[string]any{"jobNumber": job.JobNumber})
	s.publishEvent(ctx, BookingEvent{
		Type:           domain.BookingEventSessionEnded,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		PreviousStatus: previous,
		CurrentStatus:  job.Status,
		ActorID:        actorID,
		OccurredAt:     now,
	})

	return job, nil
}

func (s *bookingService) Reopen(ctx context.Context, cmd ReopenBookingCommand) (ReopenBookingResult, error) {
	jobID := strings.TrimSpace(cmd.JobID)
	if jobID == "" {
		return ReopenBookingResult{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return ReopenBookingResult{}, s.mapRepositoryError(err)
	}

	now := s.now()

	var assignment *Assignment
	if open, err := s.assignments.FindOpenByJob(ctx, jobID); err == nil {
		assignment = &open
	} else if !isNotFound(err) {
		return ReopenBookingResult{}, s.mapRepositoryError(err)
	}

	result := ReopenBookingResult{}

	if job.Status != domain.JobStatusTimedOut {
		job.Status = domain.JobStatusPending
		job.CreatedAt = now
		job.WillExpireAt = domain.ExpiryTime(job.Due, now)
		job.WithdrawAt = nil
		job.UpdatedAt = now

		err = s.runInTx(ctx, func(txCtx context.Context) error {
			if assignment != nil {
				if err := s.assignments.Cancel(txCtx, assignment.ID, now); err != nil {
					return s.mapRepositoryError(err)
				}
			}
			if err := s.jobs.Update(txCtx, domain.Job(job)); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
		if err != nil {
			return ReopenBookingResult{}, err
		}
		result.Job = job
	} else {
		// A timed-out booking is relisted as a fresh copy so the original
		// keeps its expiry history.
		clone := job
		clone.ID = s.nextJobID()
		clone.Status = domain.JobStatusPending
		clone.CreatedAt = now
		clone.UpdatedAt = now
		clone.WillExpireAt = domain.ExpiryTime(clone.Due, now)
		clone.WithdrawAt = nil
		clone.EndAt = nil
		clone.SessionTime = ""
		clone.AdminComments = "Denna bokning är en kopia av bokning #" + job.JobNumber

		number, err := s.generateJobNumber(ctx, now)
		if err != nil {
			return ReopenBookingResult{}, err
		}
		clone.JobNumber = number

		err = s.runInTx(ctx, func(txCtx context.Context) error {
			if assignment != nil {
				if err := s.assignments.Cancel(txCtx, assignment.ID, now); err != nil {
					return s.mapRepositoryError(err)
				}
			}
			if err := s.jobs.Insert(txCtx, domain.Job(clone)); err != nil {
				return s.mapRepositoryError(err)
			}
			return nil
		})
		if err != nil {
			return ReopenBookingResult{}, err
		}
		result.Job = clone
		result.Cloned = true
	}

	s.recordAudit(ctx, cmd.ActorID, "booking.reopen", result.Job.ID, map[string]any{
		"jobNumber": result.Job.JobNumber,
		"cloned":    result.Cloned,
	})
	s.publishEvent(ctx, BookingEvent{
		Type:          domain.BookingEventCreated,
		JobID:         result.Job.ID,
		JobNumber:     result.Job.JobNumber,
		CurrentStatus: result.Job.Status,
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
	})
	if s.notifications != nil {
		s.notifications.BroadcastBooking(ctx, result.Job, "")
	}

	return result, nil
}

// MarkExpired closes a pending booking whose acceptance deadline has passed
// and pushes the no-translator-found notice to the customer.
func (s *bookingService) MarkExpired(ctx context.Context, jobID, actorID string) (Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return Job{}, fmt.Errorf("%w: job id is required", ErrBookingInvalidInput)
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return Job{}, s.mapRepositoryError(err)
	}
	if job.Status != domain.JobStatusPending {
		return Job{}, fmt.Errorf("%w: only pending bookings expire", ErrBookingInvalidState)
	}
	now := s.now()
	if !job.Expired(now) {
		return Job{}, fmt.Errorf("%w: booking has not reached its acceptance deadline", ErrBookingInvalidState)
	}

	previous := job.Status
	job.Status = domain.JobStatusTimedOut
	job.UpdatedAt = now

	if err := s.jobs.Update(ctx, domain.Job(job)); err != nil {
		return Job{}, s.mapRepositoryError(err)
	}

	s.recordAudit(ctx, actorID, "booking.expire", job.ID, map[string]any{"jobNumber": job.JobNumber})
	s.publishEvent(ctx, BookingEvent{
		Type:           domain.BookingEventExpired,
		JobID:          job.ID,
		JobNumber:      job.JobNumber,
		PreviousStatus: previous,
		CurrentStatus:  job.Status,
		ActorID:        actorID,
		OccurredAt:     now,
	})
	if s.notifications != nil {
		s.notifications.NotifyExpired(ctx, job)
	}

	return job, nil
}

func (s *bookingService) ListUserBookings(ctx context.Context, userID string) (UserBookingsResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserBookingsResult{}, fmt.Errorf("%w: user id is required", ErrBookingInvalidInput)
	}

	page, err := s.jobs.ListByCustomer(ctx, userID, repositories.JobListFilter{Status: openStatuses})
	if err != nil {
		return UserBookingsResult{}, s.mapRepositoryError(err)
	}

	result := UserBookingsResult{}
	for _, job := range page.Items {
		if job.Immediate {
			result.Emergency = append(result.Emergency, job)
		} else {
			result.Scheduled = append(result.Scheduled, job)
		}
	}
	return result, nil
}

func (s *bookingService) ListUserHistory(ctx context.Context, cmd UserHistoryCommand) (UserHistoryResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserHistoryResult{}, fmt.Errorf("%w: user id is required", ErrBookingInvalidInput)
	}

	page, err := s.jobs.ListByCustomer(ctx, userID, repositories.JobListFilter{
		Status:     historyStatuses,
		Pagination: cmd.Pagination,
	})
	if err != nil {
		return UserHistoryResult{}, s.mapRepositoryError(err)
	}

	return UserHistoryResult{Jobs: page.Items, NextPageToken: page.NextPageToken}, nil
}

// Helpers ---------------------------------------------------------------------

func rejectCreate(field, message string) CreateBookingResult {
	return CreateBookingResult{Rejected: true, Field: field, Message: message}
}

func validateCreateCommand(cmd CreateBookingCommand) (CreateBookingResult, bool) {
	if strings.TrimSpace(cmd.FromLanguage) == "" {
		return rejectCreate("from_language_id", "Du måste fylla i alla fält"), true
	}
	if !cmd.Immediate {
		if strings.TrimSpace(cmd.DueDate) == "" {
			return rejectCreate("due_date", "Du måste fylla i alla fält"), true
		}
		if strings.TrimSpace(cmd.DueTime) == "" {
			return rejectCreate("due_time", "Du måste fylla i alla fält"), true
		}
		if cmd.PhoneBooking == nil && cmd.OnSiteBooking == nil {
			return rejectCreate("customer_phone_type", "Du måste göra ett val här"), true
		}
	}
	if cmd.Duration <= 0 {
		return rejectCreate("duration", "Du måste fylla i alla fält"), true
	}
	return CreateBookingResult{}, false
}

// parseRequirements folds the submitted requirement tags into the gender and
// certification constraints of a booking.
func parseRequirements(tags []string) (Gender, Certification) {
	gender := domain.GenderAny
	var normal, certified, law, health bool

	for _, tag := range tags {
		switch strings.TrimSpace(strings.ToLower(tag)) {
		case "male":
			gender = domain.GenderMale
		case "female":
			gender = domain.GenderFemale
		case "normal":
			normal = true
		case "certified":
			certified = true
		case "certified_in_law":
			law = true
		case "certified_in_health":
			health = true
		}
	}

	// Health overrides law overrides plain certification, then the winner
	// compounds with "normal".
	certification := domain.CertificationAny
	switch {
	case health && normal:
		certification = domain.CertificationNormalHealth
	case health:
		certification = domain.CertificationHealth
	case law && normal:
		certification = domain.CertificationNormalLaw
	case law:
		certification = domain.CertificationLaw
	case certified && normal:
		certification = domain.CertificationBoth
	case certified:
		certification = domain.CertificationCertified
	case normal:
		certification = domain.CertificationNormal
	}
	return gender, certification
}

/// normalizeSessionTime expands an "H:MM" admin input to the stored "H:MM:SS"
// form.
func normalizeSessionTime(input string) string {
	trimmed := strings.TrimSpace(input)
	if strings.Count(trimmed, ":") == 1 {
		return trimmed + ":00"
	}
	return trimmed
}

func updateDiff(previous, current Job) map[string]any {
	diff := map[string]any{"jobNumber": current.JobNumber}
	if previous.Status != current.Status {
		diff["status"] = map[string]any{"old": string(previous.Status), "new": string(current.Status)}
	}
	if !previous.Due.Equal(current.Due) {
		diff["due"] = map[string]any{"old": previous.Due, "new": current.Due}
	}
	if previous.FromLanguage != current.FromLanguage {
		diff["language"] = map[string]any{"old": previous.FromLanguage, "new": current.FromLanguage}
	}
	return diff
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func (s *bookingService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrBookingNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrBookingConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("booking: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *bookingService) generateJobNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.counters.Next(ctx, "bookings", 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TD-%04d-%06d", now.Year(), seq), nil
}

func (s *bookingService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *bookingService) now() time.Time {
	return s.clock()
}

func (s *bookingService) nextJobID() string {
	return jobIDPrefix + s.newID()
}

func (s *bookingService) nextAssignmentID() string {
	return assignmentIDPrefix + s.newID()
}

func (s *bookingService) recordAudit(ctx context.Context, actor, action, target string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:    actor,
		Action:   action,
		Target:   target,
		Metadata: metadata,
	})
}

func (s *bookingService) publishEvent(ctx context.Context, event BookingEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishBookingEvent(ctx, event); err != nil {
		s.logger(ctx, "booking.event.publish.failed", map[string]any{
			"type":   string(event.Type),
			"job":    event.JobID,
			"error":  err.Error(),
			"status": string(event.CurrentStatus),
		})
	}
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
