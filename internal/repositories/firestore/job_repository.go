package firestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/tolkdesk/api/internal/domain"
	pfirestore "github.com/tolkdesk/api/internal/platform/firestore"
	"github.com/tolkdesk/api/internal/repositories"
)

const jobsCollection = "jobs"

type jobDocument struct {
	JobNumber     string     `firestore:"jobNumber"`
	CustomerID    string     `firestore:"customerId"`
	CustomerName  string     `firestore:"customerName"`
	CustomerEmail string     `firestore:"customerEmail"`
	CustomerTown  string     `firestore:"customerTown"`
	ConsumerType  string     `firestore:"consumerType"`
	FromLanguage  string     `firestore:"fromLanguage"`
	Immediate     bool       `firestore:"immediate"`
	Due           time.Time  `firestore:"due"`
	Duration      int        `firestore:"duration"`
	Gender        string     `firestore:"gender,omitempty"`
	Certification string     `firestore:"certification,omitempty"`
	JobType       string     `firestore:"jobType"`
	PhoneBooking  bool       `firestore:"phoneBooking"`
	OnSiteBooking bool       `firestore:"onSiteBooking"`
	Status        string     `firestore:"status"`
	WillExpireAt  time.Time  `firestore:"willExpireAt"`
	SessionTime   string     `firestore:"sessionTime,omitempty"`
	AdminComments string     `firestore:"adminComments,omitempty"`
	Reference     string     `firestore:"reference,omitempty"`
	Address       string     `firestore:"address,omitempty"`
	Instructions  string     `firestore:"instructions,omitempty"`
	Town          string     `firestore:"town,omitempty"`
	EarmarkedFor  string     `firestore:"earmarkedFor,omitempty"`
	ByAdmin       bool       `firestore:"byAdmin"`
	IgnoreExpired bool       `firestore:"ignoreExpired"`
	CreatedAt     time.Time  `firestore:"createdAt"`
	UpdatedAt     time.Time  `firestore:"updatedAt"`
	EndAt         *time.Time `firestore:"endAt,omitempty"`
	WithdrawAt    *time.Time `firestore:"withdrawAt,omitempty"`
}

// JobRepository implements repositories.JobRepository backed by Firestore.
type JobRepository struct {
	base *pfirestore.BaseRepository[jobDocument]
}

// NewJobRepository constructs a Firestore-backed booking repository.
func NewJobRepository(provider *pfirestore.Provider) (*JobRepository, error) {
	if provider == nil {
		return nil, errors.New("job repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[jobDocument](provider, jobsCollection, nil, nil)
	return &JobRepository{base: base}, nil
}

// Insert stores a new booking document. The ID must be unique.
func (r *JobRepository) Insert(ctx context.Context, job domain.Job) error {
	if r == nil || r.base == nil {
		return errors.New("job repository not initialised")
	}
	jobID := strings.TrimSpace(job.ID)
	if jobID == "" {
		return errors.New("job repository: job id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, jobID)
	if err != nil {
		return err
	}
	if _, err := docRef.Create(ctx, encodeJobDocument(job)); err != nil {
		return pfirestore.WrapError("jobs.insert", err)
	}
	return nil
}

// Update replaces the persisted booking state with the provided snapshot.
func (r *JobRepository) Update(ctx context.Context, job domain.Job) error {
	if r == nil || r.base == nil {
		return errors.New("job repository not initialised")
	}
	jobID := strings.TrimSpace(job.ID)
	if jobID == "" {
		return errors.New("job repository: job id is required")
	}
	if _, err := r.base.Set(ctx, jobID, encodeJobDocument(job)); err != nil {
		return err
	}
	return nil
}

// FindByID fetches a single booking.
func (r *JobRepository) FindByID(ctx context.Context, jobID string) (domain.Job, error) {
	if r == nil || r.base == nil {
		return domain.Job{}, errors.New("job repository not initialised")
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return domain.Job{}, errors.New("job repository: job id is required")
	}
	doc, err := r.base.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	return decodeJobDocument(jobID, doc.Data), nil
}

// ListByCustomer returns the customer's bookings ordered by session start,
// newest first.
func (r *JobRepository) ListByCustomer(ctx context.Context, customerID string, filter repositories.JobListFilter) (domain.CursorPage[domain.Job], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.Job]{}, errors.New("job repository not initialised")
	}
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return domain.CursorPage[domain.Job]{}, errors.New("job repository: customer id is required")
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
			return domain.CursorPage[domain.Job]{}, fmt.Errorf("job repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statuses := make([]string, 0, len(filter.Status))
	for _, status := range filter.Status {
		statuses = append(statuses, string(status))
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("customerId", "==", customerID)
		if len(statuses) == 1 {
			q = q.Where("status", "==", statuses[0])
		} else if len(statuses) > 1 {
			q = q.Where("status", "in", statuses)
		}
		if filter.DueRange.From != nil {
			q = q.Where("due", ">=", filter.DueRange.From.UTC())
		}
		if filter.DueRange.To != nil {
			q = q.Where("due", "<=", filter.DueRange.To.UTC())
		}
		q = q.OrderBy("due", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Job]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeJobListToken(last.Data.Due, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Job, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodeJobDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.Job]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// ListPending returns unexpired pending bookings of the given job type in any
// of the languages, ordered by session start. Expiry is filtered here rather
// than in the query so bookings flagged to ignore expiry stay visible.
func (r *JobRepository) ListPending(ctx context.Context, criteria repositories.PendingJobCriteria) ([]domain.Job, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("job repository not initialised")
	}
	if criteria.JobType == "" {
		return nil, errors.New("job repository: job type is required")
	}

	languages := make([]string, 0, len(criteria.Languages))
	for _, lang := range criteria.Languages {
		if trimmed := strings.TrimSpace(lang); trimmed != "" {
			languages = append(languages, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(domain.JobStatusPending)).
			Where("jobType", "==", string(criteria.JobType))
		if len(languages) == 1 {
			q = q.Where("fromLanguage", "==", languages[0])
		} else if len(languages) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(languages) > 10 {
				languages = languages[:10]
			}
			q = q.Where("fromLanguage", "in", languages)
		}
		return q.OrderBy("due", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	now := criteria.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	jobs := make([]domain.Job, 0, len(docs))
	for _, doc := range docs {
		job := decodeJobDocument(doc.ID, doc.Data)
		if job.Expired(now) {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func encodeJobDocument(job domain.Job) jobDocument {
	return jobDocument{
		JobNumber:     job.JobNumber,
		CustomerID:    job.CustomerID,
		CustomerName:  job.CustomerName,
		CustomerEmail: job.CustomerEmail,
		CustomerTown:  job.CustomerTown,
		ConsumerType:  string(job.ConsumerType),
		FromLanguage:  job.FromLanguage,
		Immediate:     job.Immediate,
		Due:           job.Due.UTC(),
		Duration:      job.Duration,
		Gender:        string(job.Gender),
		Certification: string(job.Certification),
		JobType:       string(job.JobType),
		PhoneBooking:  job.PhoneBooking,
		OnSiteBooking: job.OnSiteBooking,
		Status:        string(job.Status),
		WillExpireAt:  job.WillExpireAt.UTC(),
		SessionTime:   job.SessionTime,
		AdminComments: job.AdminComments,
		Reference:     job.Reference,
		Address:       job.Address,
		Instructions:  job.Instructions,
		Town:          job.Town,
		EarmarkedFor:  job.EarmarkedFor,
		ByAdmin:       job.ByAdmin,
		IgnoreExpired: job.IgnoreExpired,
		CreatedAt:     job.CreatedAt.UTC(),
		UpdatedAt:     job.UpdatedAt.UTC(),
		EndAt:         utcTimePtr(job.EndAt),
		WithdrawAt:    utcTimePtr(job.WithdrawAt),
	}
}

func decodeJobDocument(id string, doc jobDocument) domain.Job {
	return domain.Job{
		ID:            id,
		JobNumber:     doc.JobNumber,
		CustomerID:    doc.CustomerID,
		CustomerName:  doc.CustomerName,
		CustomerEmail: doc.CustomerEmail,
		CustomerTown:  doc.CustomerTown,
		ConsumerType:  domain.ConsumerType(doc.ConsumerType),
		FromLanguage:  doc.FromLanguage,
		Immediate:     doc.Immediate,
		Due:           doc.Due,
		Duration:      doc.Duration,
		Gender:        domain.Gender(doc.Gender),
		Certification: domain.Certification(doc.Certification),
		JobType:       domain.JobType(doc.JobType),
		PhoneBooking:  doc.PhoneBooking,
		OnSiteBooking: doc.OnSiteBooking,
		Status:        domain.JobStatus(doc.Status),
		WillExpireAt:  doc.WillExpireAt,
		SessionTime:   doc.SessionTime,
		AdminComments: doc.AdminComments,
		Reference:     doc.Reference,
		Address:       doc.Address,
		Instructions:  doc.Instructions,
		Town:          doc.Town,
		EarmarkedFor:  doc.EarmarkedFor,
		ByAdmin:       doc.ByAdmin,
		IgnoreExpired: doc.IgnoreExpired,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
		EndAt:         doc.EndAt,
		WithdrawAt:    doc.WithdrawAt,
	}
}

func encodeJobListToken(due time.Time, docID string) string {
	payload := fmt.Sprintf("%s|%s", due.UTC().Format(time.RFC3339Nano), docID)
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

func decodeJobListToken(token string) (time.Time, string, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", err
	}
	parts := strings.SplitN(string(data), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, "", errors.New("invalid token structure")
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, "", err
	}
	return ts, parts[1], nil
}

func utcTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	utc := t.UTC()
	return &utc
}
