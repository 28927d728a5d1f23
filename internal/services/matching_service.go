package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tolkdesk/api/internal/repositories"
)

// ErrMatchingInvalidInput signals the caller provided invalid data.
var ErrMatchingInvalidInput = errors.New("matching: invalid input")

// MatchingServiceDeps bundles collaborators required to construct the matching service.
type MatchingServiceDeps struct {
	Jobs        repositories.JobRepository
	Assignments repositories.AssignmentRepository
	Translators repositories.TranslatorRepository
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type matchingService struct {
	jobs        repositories.JobRepository
	assignments repositories.AssignmentRepository
	translators repositories.TranslatorRepository
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewMatchingService wires dependencies into a concrete MatchingService implementation.
func NewMatchingService(deps MatchingServiceDeps) (MatchingService, error) {
	if deps.Jobs == nil {
		return nil, errors.New("matching service: job repository is required")
	}
	if deps.Translators == nil {
		return nil, errors.New("matching service: translator repository is required")
	}
	if deps.Assignments == nil {
		return nil, errors.New("matching service: assignment repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &matchingService{
		jobs:        deps.Jobs,
		assignments: deps.Assignments,
		translators: deps.Translators,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// EligibleTranslators returns all translators that may serve the booking,
// applying the same predicate used when listing bookings for a translator.
func (s *matchingService) EligibleTranslators(ctx context.Context, job Job) ([]Translator, error) {
	if strings.TrimSpace(job.ID) == "" {
		return nil, fmt.Errorf("%w: job is required", ErrMatchingInvalidInput)
	}

	blocked, err := s.translators.BlockedTranslatorIDs(ctx, job.CustomerID)
	if err != nil {
		return nil, err
	}

	pool, err := s.translators.Query(ctx, repositories.TranslatorFilter{
		Category: job.JobType.TranslatorCategory(),
		Language: job.FromLanguage,
	})
	if err != nil {
		return nil, err
	}

	matched := make([]Translator, 0, len(pool))
	seen := make(map[string]bool, len(pool))
	for _, translator := range pool {
		if seen[translator.ID] {
			continue
		}
		seen[translator.ID] = true
		if slices.Contains(blocked, translator.ID) {
			continue
		}
		if !translatorFitsJob(translator, job) {
			continue
		}
		matched = append(matched, translator)
	}
	return matched, nil
}

// EligibleBookings returns the unexpired pending bookings the translator may
// accept, the dual of EligibleTranslators.
func (s *matchingService) EligibleBookings(ctx context.Context, translatorID string) ([]Job, error) {
	translatorID = strings.TrimSpace(translatorID)
	if translatorID == "" {
		return nil, fmt.Errorf("%w: translator id is required", ErrMatchingInvalidInput)
	}

	translator, err := s.translators.FindByID(ctx, translatorID)
	if err != nil {
		return nil, err
	}
	if translator.Suspended {
		return nil, nil
	}

	blocking, err := s.translators.BlockingCustomerIDs(ctx, translatorID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	jobs, err := s.jobs.ListPending(ctx, repositories.PendingJobCriteria{
		JobType:   translator.Category.JobType(),
		Languages: translator.Languages,
		Now:       now,
	})
	if err != nil {
		return nil, err
	}

	matched := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Expired(now) {
			continue
		}
		if slices.Contains(blocking, job.CustomerID) {
			continue
		}
		if !translatorFitsJob(translator, job) {
			continue
		}
		if job.EarmarkedFor == translator.ID {
			// An earmarked booking only surfaces while the translator is free
			// at its start time.
			clash, err := s.assignments.HasBookingAt(ctx, translator.ID, job.Due)
			if err != nil {
				s.logger(ctx, "matching.clash_check.failed", map[string]any{
					"job":        job.ID,
					"translator": translator.ID,
					"error":      err.Error(),
				})
				continue
			}
			if clash {
				continue
			}
		}
		matched = append(matched, job)
	}
	return matched, nil
}

// translatorFitsJob is the symmetric eligibility predicate between a booking
// and a translator. Repository queries narrow by job type and language; the
// remaining clauses are evaluated here.
func translatorFitsJob(translator Translator, job Job) bool {
	if translator.Suspended {
		return false
	}
	if translator.Category != job.JobType.TranslatorCategory() {
		return false
	}
	if !slices.Contains(translator.Languages, job.FromLanguage) {
		return false
	}
	if !job.Gender.Accepts(translator.Gender) {
		return false
	}
	if !job.Certification.Satisfies(translator.Level) {
		return false
	}
	if job.EarmarkedFor != "" && job.EarmarkedFor != translator.ID {
		return false
	}
	// Physical-only bookings stay within the customer's town.
	if !job.PhoneBooking && job.OnSiteBooking {
		if !strings.EqualFold(strings.TrimSpace(translator.Town), strings.TrimSpace(job.CustomerTown)) {
			return false
		}
	}
	return true
}
