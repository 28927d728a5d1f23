package repositories

import (
	"context"
	"time"

	domain "github.com/tolkdesk/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Jobs() JobRepository
	Assignments() AssignmentRepository
	Translators() TranslatorRepository
	Customers() CustomerRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// JobRepository persists booking documents.
type JobRepository interface {
	Insert(ctx context.Context, job domain.Job) error
	Update(ctx context.Context, job domain.Job) error
	FindByID(ctx context.Context, jobID string) (domain.Job, error)
	ListByCustomer(ctx context.Context, customerID string, filter JobListFilter) (domain.CursorPage[domain.Job], error)
	// ListPending returns unexpired pending bookings of the given job type in
	// any of the languages, ordered by session start.
	ListPending(ctx context.Context, criteria PendingJobCriteria) ([]domain.Job, error)
}

// JobListFilter narrows booking listings.
type JobListFilter struct {
	Status     []domain.JobStatus
	DueRange   domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// PendingJobCriteria narrows the pending pool before in-memory matching.
type PendingJobCriteria struct {
	JobType   domain.JobType
	Languages []string
	Now       time.Time
}

// AssignmentRepository records translator tenures on bookings.
type AssignmentRepository interface {
	// ClaimPending atomically creates an open assignment for the booking,
	// flips the booking to assigned, and returns the stored assignment. It
	// fails with a conflict error when the booking is no longer pending or
	// already holds an open assignment.
	ClaimPending(ctx context.Context, jobID, translatorID string, at time.Time) (domain.Assignment, error)
	Insert(ctx context.Context, assignment domain.Assignment) (domain.Assignment, error)
	FindOpenByJob(ctx context.Context, jobID string) (domain.Assignment, error)
	Cancel(ctx context.Context, assignmentID string, at time.Time) error
	Complete(ctx context.Context, assignmentID string, at time.Time, completedBy string) error
	// HasBookingAt reports whether the translator already holds an open
	// assignment on another booking due at the same instant.
	HasBookingAt(ctx context.Context, translatorID string, due time.Time) (bool, error)
	ListByTranslator(ctx context.Context, translatorID string, filter AssignmentListFilter) (domain.CursorPage[domain.Assignment], error)
}

// AssignmentListFilter narrows assignment listings.
type AssignmentListFilter struct {
	OnlyCompleted bool
	Pagination    domain.Pagination
}

// TranslatorRepository reads interpreter profiles for matching and dispatch.
type TranslatorRepository interface {
	FindByID(ctx context.Context, translatorID string) (domain.Translator, error)
	// FindByEmail resolves a translator by their registered email.
	FindByEmail(ctx context.Context, email string) (domain.Translator, error)
	Query(ctx context.Context, filter TranslatorFilter) ([]domain.Translator, error)
	// BlockedTranslatorIDs lists translators the customer has blacklisted.
	BlockedTranslatorIDs(ctx context.Context, customerID string) ([]string, error)
	// BlockingCustomerIDs lists customers that have blacklisted the translator.
	BlockingCustomerIDs(ctx context.Context, translatorID string) ([]string, error)
}

// TranslatorFilter narrows the translator pool before in-memory matching.
type TranslatorFilter struct {
	Category domain.TranslatorCategory
	Language string
}

// CustomerRepository reads booking-customer profiles.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID string) (domain.Customer, error)
}

// AuditLogRepository stores immutable audit entries.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLog) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLog], error)
}

// AuditLogFilter narrows audit listings.
type AuditLogFilter struct {
	Target     string
	Actor      string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
