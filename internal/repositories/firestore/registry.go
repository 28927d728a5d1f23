package firestore

import (
	"context"
	"errors"
	"fmt"

	pfirestore "github.com/tolkdesk/api/internal/platform/firestore"
	"github.com/tolkdesk/api/internal/repositories"
)

// Registry bundles the Firestore-backed repositories behind the
// repositories.Registry contract.
type Registry struct {
	provider *pfirestore.Provider

	jobs        *JobRepository
	assignments *AssignmentRepository
	translators *TranslatorRepository
	customers   *CustomerRepository
	auditLogs   *AuditLogRepository
	counters    *CounterRepository
	health      repositories.HealthRepository
}

// NewRegistry constructs all Firestore repositories on a shared provider.
// The health repository is optional; pass nil to disable dependency probes.
func NewRegistry(provider *pfirestore.Provider, health repositories.HealthRepository) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry: firestore provider is required")
	}

	jobs, err := NewJobRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: job repository: %w", err)
	}
	assignments, err := NewAssignmentRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: assignment repository: %w", err)
	}
	translators, err := NewTranslatorRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: translator repository: %w", err)
	}
	customers, err := NewCustomerRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: customer repository: %w", err)
	}
	auditLogs, err := NewAuditLogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: audit log repository: %w", err)
	}
	counters, err := NewCounterRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("registry: counter repository: %w", err)
	}

	return &Registry{
		provider:    provider,
		jobs:        jobs,
		assignments: assignments,
		translators: translators,
		customers:   customers,
		auditLogs:   auditLogs,
		counters:    counters,
		health:      health,
	}, nil
}

// Close releases the underlying Firestore client.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// Jobs returns the booking repository.
func (r *Registry) Jobs() repositories.JobRepository { return r.jobs }

// Assignments returns the assignment repository.
func (r *Registry) Assignments() repositories.AssignmentRepository { return r.assignments }

// Translators returns the translator repository.
func (r *Registry) Translators() repositories.TranslatorRepository { return r.translators }

// Customers returns the customer repository.
func (r *Registry) Customers() repositories.CustomerRepository { return r.customers }

// AuditLogs returns the audit log repository.
func (r *Registry) AuditLogs() repositories.AuditLogRepository { return r.auditLogs }

// Counters returns the counter repository.
func (r *Registry) Counters() repositories.CounterRepository { return r.counters }

// Health returns the dependency health repository, or nil when disabled.
func (r *Registry) Health() repositories.HealthRepository { return r.health }

// RunInTx groups repository calls. The claim race on bookings is already
// settled transactionally inside the assignment repository, so grouping here
// runs the callback directly.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
