package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/tolkdesk/api/internal/domain"
	pfirestore "github.com/tolkdesk/api/internal/platform/firestore"
	"github.com/tolkdesk/api/internal/repositories"
)

const (
	assignmentsCollection = "assignments"

	assignmentIDPrefix = "asg_"
)

type assignmentDocument struct {
	JobID        string     `firestore:"jobId"`
	TranslatorID string     `firestore:"translatorId"`
	Due          time.Time  `firestore:"due"`
	Open         bool       `firestore:"open"`
	CreatedAt    time.Time  `firestore:"createdAt"`
	CancelAt     *time.Time `firestore:"cancelAt,omitempty"`
	CompletedAt  *time.Time `firestore:"completedAt,omitempty"`
	CompletedBy  string     `firestore:"completedBy,omitempty"`
}

// AssignmentRepository implements repositories.AssignmentRepository backed by Firestore.
type AssignmentRepository struct {
	provider   *pfirestore.Provider
	base       *pfirestore.BaseRepository[assignmentDocument]
	jobs       *pfirestore.BaseRepository[jobDocument]
	generateID func() string
}

// NewAssignmentRepository constructs a Firestore-backed assignment repository.
func NewAssignmentRepository(provider *pfirestore.Provider) (*AssignmentRepository, error) {
	if provider == nil {
		return nil, errors.New("assignment repository: firestore provider is required")
	}
	return &AssignmentRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[assignmentDocument](provider, assignmentsCollection, nil, nil),
		jobs:     pfirestore.NewBaseRepository[jobDocument](provider, jobsCollection, nil, nil),
		generateID: func() string {
			return assignmentIDPrefix + ulid.Make().String()
		},
	}, nil
}

// ClaimPending atomically creates an open assignment for the booking and flips
// the booking to assigned. Two translators racing for the same booking contend
// on the job document, so exactly one claim commits.
func (r *AssignmentRepository) ClaimPending(ctx context.Context, jobID, translatorID string, at time.Time) (domain.Assignment, error) {
	if r == nil || r.provider == nil {
		return domain.Assignment{}, errors.New("assignment repository not initialised")
	}
	jobID = strings.TrimSpace(jobID)
	translatorID = strings.TrimSpace(translatorID)
	if jobID == "" || translatorID == "" {
		return domain.Assignment{}, errors.New("assignment repository: job id and translator id are required")
	}

	at = at.UTC()
	assignmentID := r.generateID()

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		jobRef, err := r.jobs.DocumentRef(ctx, jobID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(jobRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewAssignmentError(repositories.AssignmentErrorJobNotFound, fmt.Sprintf("booking %s not found", jobID), err)
			}
			return err
		}
		var jobDoc jobDocument
		if err := snap.DataTo(&jobDoc); err != nil {
			return fmt.Errorf("decode booking %s: %w", jobID, err)
		}
		if jobDoc.Status != string(domain.JobStatusPending) {
			return repositories.NewAssignmentError(repositories.AssignmentErrorJobTaken, fmt.Sprintf("booking %s is %s", jobID, jobDoc.Status), nil)
		}

		asgRef, err := r.base.DocumentRef(ctx, assignmentID)
		if err != nil {
			return err
		}
		if err := tx.Create(asgRef, assignmentDocument{
			JobID:        jobID,
			TranslatorID: translatorID,
			Due:          jobDoc.Due,
			Open:         true,
			CreatedAt:    at,
		}); err != nil {
			return err
		}
		return tx.Update(jobRef, []firestore.Update{
			{Path: "status", Value: string(domain.JobStatusAssigned)},
			{Path: "updatedAt", Value: at},
		})
	})
	if err != nil {
		return domain.Assignment{}, wrapAssignmentError("assignments.claim", err)
	}

	return domain.Assignment{
		ID:           assignmentID,
		JobID:        jobID,
		TranslatorID: translatorID,
		CreatedAt:    at,
	}, nil
}

// Insert stores an assignment created outside the claim path, such as an
// admin hand-assignment. Any open assignment on the booking is closed first.
func (r *AssignmentRepository) Insert(ctx context.Context, assignment domain.Assignment) (domain.Assignment, error) {
	if r == nil || r.provider == nil {
		return domain.Assignment{}, errors.New("assignment repository not initialised")
	}
	if strings.TrimSpace(assignment.JobID) == "" || strings.TrimSpace(assignment.TranslatorID) == "" {
		return domain.Assignment{}, errors.New("assignment repository: job id and translator id are required")
	}
	if strings.TrimSpace(assignment.ID) == "" {
		assignment.ID = r.generateID()
	}
	assignment.CreatedAt = assignment.CreatedAt.UTC()

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		jobRef, err := r.jobs.DocumentRef(ctx, assignment.JobID)
		if err != nil {
			return err
		}
		jobSnap, err := tx.Get(jobRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewAssignmentError(repositories.AssignmentErrorJobNotFound, fmt.Sprintf("booking %s not found", assignment.JobID), err)
			}
			return err
		}
		var jobDoc jobDocument
		if err := jobSnap.DataTo(&jobDoc); err != nil {
			return fmt.Errorf("decode booking %s: %w", assignment.JobID, err)
		}

		coll, err := r.collectionRef(ctx)
		if err != nil {
			return err
		}
		// Transactions require all reads before the first write.
		open := tx.Documents(coll.Where("jobId", "==", assignment.JobID).Where("open", "==", true))
		var openRefs []*firestore.DocumentRef
		for {
			snap, err := open.Next()
			if errors.Is(err, iterator.Done) {
				break
			}
			if err != nil {
				open.Stop()
				return err
			}
			openRefs = append(openRefs, snap.Ref)
		}
		open.Stop()

		for _, ref := range openRefs {
			if err := tx.Update(ref, []firestore.Update{
				{Path: "open", Value: false},
				{Path: "cancelAt", Value: assignment.CreatedAt},
			}); err != nil {
				return err
			}
		}

		asgRef, err := r.base.DocumentRef(ctx, assignment.ID)
		if err != nil {
			return err
		}
		// Due carries over so HasBookingAt sees hand-assignments too.
		return tx.Create(asgRef, assignmentDocument{
			JobID:        assignment.JobID,
			TranslatorID: assignment.TranslatorID,
			Due:          jobDoc.Due,
			Open:         true,
			CreatedAt:    assignment.CreatedAt,
		})
	})
	if err != nil {
		return domain.Assignment{}, wrapAssignmentError("assignments.insert", err)
	}
	return assignment, nil
}

// FindOpenByJob returns the active assignment on the booking.
func (r *AssignmentRepository) FindOpenByJob(ctx context.Context, jobID string) (domain.Assignment, error) {
	if r == nil || r.base == nil {
		return domain.Assignment{}, errors.New("assignment repository not initialised")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.Assignment{}, errors.New("assignment repository: job id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("jobId", "==", jobID).Where("open", "==", true).Limit(1)
	})
	if err != nil {
		return domain.Assignment{}, err
	}
	if len(docs) == 0 {
		return domain.Assignment{}, repositories.NewAssignmentError(repositories.AssignmentErrorNotFound, fmt.Sprintf("no open assignment for booking %s", jobID), nil)
	}
	return decodeAssignmentDocument(docs[0].ID, docs[0].Data), nil
}

// Cancel closes the assignment without completing it.
func (r *AssignmentRepository) Cancel(ctx context.Context, assignmentID string, at time.Time) error {
	return r.close(ctx, assignmentID, []firestore.Update{
		{Path: "open", Value: false},
		{Path: "cancelAt", Value: at.UTC()},
	})
}

// Complete closes the assignment recording who reported the session end.
func (r *AssignmentRepository) Complete(ctx context.Context, assignmentID string, at time.Time, completedBy string) error {
	return r.close(ctx, assignmentID, []firestore.Update{
		{Path: "open", Value: false},
		{Path: "completedAt", Value: at.UTC()},
		{Path: "completedBy", Value: completedBy},
	})
}

func (r *AssignmentRepository) close(ctx context.Context, assignmentID string, updates []firestore.Update) error {
	if r == nil || r.base == nil {
		return errors.New("assignment repository not initialised")
	}
	assignmentID = strings.TrimSpace(assignmentID)
	if assignmentID == "" {
		return errors.New("assignment repository: assignment id is required")
	}
	if _, err := r.base.Update(ctx, assignmentID, updates); err != nil {
		return err
	}
	return nil
}

// HasBookingAt reports whether the translator already holds an open assignment
// on a booking due at the same instant.
func (r *AssignmentRepository) HasBookingAt(ctx context.Context, translatorID string, due time.Time) (bool, error) {
	if r == nil || r.base == nil {
		return false, errors.New("assignment repository not initialised")
	}
	translatorID = strings.TrimSpace(translatorID)
	if translatorID == "" {
		return false, errors.New("assignment repository: translator id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("translatorId", "==", translatorID).
			Where("open", "==", true).
			Where("due", "==", due.UTC()).
			Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// ListByTranslator returns the translator's assignments, newest first.
func (r *AssignmentRepository) ListByTranslator(ctx context.Context, translatorID string, filter repositories.AssignmentListFilter) (domain.CursorPage[domain.Assignment], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Assignment]{}, errors.New("assignment repository not initialised")
	}
	translatorID = strings.TrimSpace(translatorID)
	if translatorID == "" {
		return domain.CursorPage[domain.Assignment]{}, errors.New("assignment repository: translator id is required")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeJobListToken(token)
		if err != nil {
			return domain.CursorPage[domain.Assignment]{}, fmt.Errorf("assignment repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("translatorId", "==", translatorID)
		if filter.OnlyCompleted {
			q = q.Where("completedBy", ">", "")
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Assignment]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeJobListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Assignment, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeAssignmentDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.Assignment]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

func (r *AssignmentRepository) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(assignmentsCollection), nil
}

func decodeAssignmentDocument(id string, doc assignmentDocument) domain.Assignment {
	return domain.Assignment{
		ID:           id,
		JobID:        doc.JobID,
		TranslatorID: doc.TranslatorID,
		CreatedAt:    doc.CreatedAt,
		CancelAt:     doc.CancelAt,
		CompletedAt:  doc.CompletedAt,
		CompletedBy:  doc.CompletedBy,
	}
}

func wrapAssignmentError(op string, err error) error {
	if err == nil {
		return nil
	}
	var asgErr *repositories.AssignmentError
	if errors.As(err, &asgErr) {
		if asgErr.Op == "" {
			asgErr.Op = op
		}
		return asgErr
	}
	return pfirestore.WrapError(op, err)
}
