package services

import (
	"context"
	"time"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Job                = domain.Job
	JobStatus          = domain.JobStatus
	Assignment         = domain.Assignment
	Translator         = domain.Translator
	Customer           = domain.Customer
	Gender             = domain.Gender
	Certification      = domain.Certification
	JobType            = domain.JobType
	TranslatorLevel    = domain.TranslatorLevel
	SystemHealthReport = domain.SystemHealthReport
	AuditLogEntry      = domain.AuditLog
)

// BookingService coordinates the booking lifecycle: creation, updates,
// acceptance, withdrawal, session completion, and reopening.
type BookingService interface {
	Create(ctx context.Context, cmd CreateBookingCommand) (CreateBookingResult, error)
	AttachCustomerEmail(ctx context.Context, cmd AttachEmailCommand) (Job, error)
	Get(ctx context.Context, jobID string) (BookingDetail, error)
	Update(ctx context.Context, cmd UpdateBookingCommand) (UpdateBookingResult, error)
	Accept(ctx context.Context, cmd AcceptBookingCommand) (AcceptBookingResult, error)
	Cancel(ctx context.Context, cmd CancelBookingCommand) (CancelBookingResult, error)
	EndSession(ctx context.Context, cmd EndSessionCommand) (Job, error)
	MarkCustomerDidNotCall(ctx context.Context, jobID, actorID string) (Job, error)
	Reopen(ctx context.Context, cmd ReopenBookingCommand) (ReopenBookingResult, error)
	MarkExpired(ctx context.Context, jobID, actorID string) (Job, error)
	ListUserBookings(ctx context.Context, userID string) (UserBookingsResult, error)
	ListUserHistory(ctx context.Context, cmd UserHistoryCommand) (UserHistoryResult, error)
}

// MatchingService answers the two dual queries of booking/translator
// eligibility.
type MatchingService interface {
	EligibleTranslators(ctx context.Context, job Job) ([]Translator, error)
	EligibleBookings(ctx context.Context, translatorID string) ([]Job, error)
}

// NotificationService fans out pushes, SMS, and mails for booking events.
// Delivery failures are logged, never surfaced to the booking flow.
type NotificationService interface {
	BroadcastBooking(ctx context.Context, job Job, excludeTranslatorID string)
	SendSMSToEligible(ctx context.Context, job Job) (int, error)
	NotifyAccepted(ctx context.Context, job Job, pushCustomer bool)
	NotifyStatusChanged(ctx context.Context, job Job, previous JobStatus)
	NotifyBookingChanged(ctx context.Context, job Job, previousDue *time.Time, previousLanguage string)
	NotifyTranslatorChanged(ctx context.Context, job Job, current, previous *Translator)
	NotifyCancelledToTranslator(ctx context.Context, job Job, translatorID string)
	NotifyCancelledToCustomer(ctx context.Context, job Job)
	NotifyExpired(ctx context.Context, job Job)
	NotifySessionEnded(ctx context.Context, job Job, sessionTime string, completedBy string)
	RemindSessionStart(ctx context.Context, job Job, translatorID string)
}

// SystemService aggregates operational concerns surfaced on admin endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// BookingEventPublisher publishes booking domain events for downstream consumers.
type BookingEventPublisher interface {
	PublishBookingEvent(ctx context.Context, event BookingEvent) error
}

// BookingEvent captures metadata for emitted booking domain events.
type BookingEvent struct {
	Type           domain.BookingEventType
	JobID          string
	JobNumber      string
	PreviousStatus JobStatus
	CurrentStatus  JobStatus
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// PushSender delivers a push envelope to the push provider.
type PushSender interface {
	Send(ctx context.Context, env PushEnvelope) error
}

// PushEnvelope is a provider-agnostic push request. Recipients are addressed
// by their registered email.
type PushEnvelope struct {
	Recipients   []string
	Heading      string
	Content      string
	Data         map[string]any
	AndroidSound string
	IOSSound     string
	SendAfter    *time.Time
}

// SMSSender delivers a single text message and returns the provider's
// delivery receipt identifier.
type SMSSender interface {
	Send(ctx context.Context, to, message string) (string, error)
}

// Mailer renders a named template and delivers it.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}

// MailMessage describes one templated mail delivery.
type MailMessage struct {
	To       string
	Name     string
	Subject  string
	Template string
	Data     map[string]any
}

// DomainError represents a structured error with stable codes for transport across layers.
type DomainError interface {
	error
	Code() string
	SafeMessage() string
}

// Command and DTO definitions ------------------------------------------------

// CreateBookingCommand carries the customer-submitted booking form.
type CreateBookingCommand struct {
	CustomerID    string
	FromLanguage  string
	Immediate     bool
	DueDate       string // m/d/Y, ignored for immediate bookings
	DueTime       string // H:i, ignored for immediate bookings
	Duration      int    // minutes
	Requirements  []string
	PhoneBooking  *bool
	OnSiteBooking *bool
	Address       string
	Instructions  string
	Town          string
	Reference     string
	ByAdmin       bool
	ActorID       string
}

// CreateBookingResult reports the stored booking or a field-level rejection.
type CreateBookingResult struct {
	Job      Job
	Rejected bool
	Field    string
	Message  string
}

// AttachEmailCommand stores or overrides the customer email on a fresh booking.
type AttachEmailCommand struct {
	JobID     string
	Email     string
	Reference string
	ActorID   string
}

// BookingDetail bundles a booking with its current translator, if any.
type BookingDetail struct {
	Job        Job
	Translator *Translator
}

// UpdateBookingCommand carries an admin edit of a live booking.
type UpdateBookingCommand struct {
	JobID           string
	Due             *time.Time
	FromLanguage    string
	Status          JobStatus
	AdminComments   string
	SessionTime     string // H:MM, required when closing a started session
	Reference       string
	TranslatorID    string // reassignment target, empty keeps the current one
	TranslatorEmail string // resolved to an id when TranslatorID is empty
	ActorID         string
}

// UpdateBookingResult reports which parts of the edit applied.
type UpdateBookingResult struct {
	Job           Job
	StatusApplied bool
	StatusNote    string
	Silent        bool // session already started, no notifications were sent
}

// AcceptBookingCommand carries a translator's claim on a pending booking.
type AcceptBookingCommand struct {
	JobID        string
	TranslatorID string
	// NotifyCustomerPush additionally pushes the acceptance to the customer,
	// used when accepting from a job-list link rather than the job page.
	NotifyCustomerPush bool
}

// AcceptBookingResult reports the claim outcome.
type AcceptBookingResult struct {
	Job     Job
	Claimed bool
	Message string
}

// CancelBookingCommand withdraws a booking on behalf of either side.
type CancelBookingCommand struct {
	JobID   string
	ActorID string
}

// CancelBookingResult reports the withdrawal outcome.
type CancelBookingResult struct {
	Job      Job
	Canceled bool
	Reopened bool // translator bailed early and the booking went back to pending
	Message  string
}

// EndSessionCommand closes a started session for billing.
type EndSessionCommand struct {
	JobID   string
	ActorID string
}

// ReopenBookingCommand puts a withdrawn or expired booking back on the market.
type ReopenBookingCommand struct {
	JobID   string
	ActorID string
}

// ReopenBookingResult reports the reopened booking; expired bookings are
// cloned into a fresh one rather than mutated.
type ReopenBookingResult struct {
	Job    Job
	Cloned bool
}

// UserBookingsResult splits a user's open bookings for list rendering.
type UserBookingsResult struct {
	Emergency []Job
	Scheduled []Job
}

// UserHistoryCommand pages through a user's finished bookings.
type UserHistoryCommand struct {
	UserID     string
	Pagination Pagination
}

// UserHistoryResult carries one history page.
type UserHistoryResult struct {
	Jobs          []Job
	NextPageToken string
}

// AuditLogRecord captures one audit entry before persistence.
type AuditLogRecord struct {
	Actor    string
	Action   string
	Target   string
	Metadata map[string]any
}

// AuditLogFilter mirrors repository filtering for service consumers.
type AuditLogFilter = repositories.AuditLogFilter
