package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// JobStatus enumerates valid lifecycle states for interpretation bookings.
type JobStatus string

const (
	// JobStatusPending indicates the booking awaits a translator.
	JobStatusPending JobStatus = "pending"
	// JobStatusAssigned indicates a translator has accepted the booking.
	JobStatusAssigned JobStatus = "assigned"
	// JobStatusStarted indicates the interpretation session is in progress.
	JobStatusStarted JobStatus = "started"
	// JobStatusCompleted indicates the session finished and was billed.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusWithdrawBefore24 indicates the customer withdrew more than 24h before the session.
	JobStatusWithdrawBefore24 JobStatus = "withdrawbefore24"
	// JobStatusWithdrawAfter24 indicates the customer withdrew within 24h of the session.
	JobStatusWithdrawAfter24 JobStatus = "withdrawafter24"
	// JobStatusTimedOut indicates no translator accepted before the expiry deadline.
	JobStatusTimedOut JobStatus = "timedout"
	// JobStatusNotCarriedOut indicates the customer did not call for a phone session.
	JobStatusNotCarriedOut JobStatus = "not_carried_out_customer"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusAssigned, JobStatusStarted, JobStatusCompleted,
		JobStatusWithdrawBefore24, JobStatusWithdrawAfter24, JobStatusTimedOut, JobStatusNotCarriedOut:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are expected from the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusWithdrawBefore24, JobStatusWithdrawAfter24, JobStatusNotCarriedOut:
		return true
	}
	return false
}

// Gender constrains which translators may take a booking. The zero value
// means no preference.
type Gender string

const (
	// GenderAny places no constraint on the translator.
	GenderAny Gender = ""
	// GenderMale requests a male translator.
	GenderMale Gender = "male"
	// GenderFemale requests a female translator.
	GenderFemale Gender = "female"
)

// Accepts reports whether a translator of the given gender satisfies the
// requirement.
func (g Gender) Accepts(other Gender) bool {
	return g == GenderAny || g == other
}

// JobType partitions bookings by how the session is funded.
type JobType string

const (
	// JobTypePaid is a regular paid booking.
	JobTypePaid JobType = "paid"
	// JobTypeRWS is a booking funded through the RWS scheme.
	JobTypeRWS JobType = "rws"
	// JobTypeUnpaid is a volunteer (NGO) booking.
	JobTypeUnpaid JobType = "unpaid"
)

// TranslatorCategory returns the translator population serving this job type.
func (t JobType) TranslatorCategory() TranslatorCategory {
	switch t {
	case JobTypeRWS:
		return TranslatorCategoryRWS
	case JobTypeUnpaid:
		return TranslatorCategoryVolunteer
	default:
		return TranslatorCategoryProfessional
	}
}

// ConsumerType identifies the funding class of the booking customer.
type ConsumerType string

const (
	// ConsumerTypePaid is a regular paying customer.
	ConsumerTypePaid ConsumerType = "paid"
	// ConsumerTypeRWS is a customer booking through the RWS scheme.
	ConsumerTypeRWS ConsumerType = "rwsconsumer"
	// ConsumerTypeNGO is a non-profit customer served by volunteers.
	ConsumerTypeNGO ConsumerType = "ngo"
)

// JobType maps the customer's funding class to the job type of its bookings.
func (c ConsumerType) JobType() JobType {
	switch c {
	case ConsumerTypeRWS:
		return JobTypeRWS
	case ConsumerTypeNGO:
		return JobTypeUnpaid
	default:
		return JobTypePaid
	}
}

// TranslatorCategory enumerates the translator populations.
type TranslatorCategory string

const (
	// TranslatorCategoryProfessional serves paid bookings.
	TranslatorCategoryProfessional TranslatorCategory = "professional"
	// TranslatorCategoryRWS serves RWS-funded bookings.
	TranslatorCategoryRWS TranslatorCategory = "rwstranslator"
	// TranslatorCategoryVolunteer serves unpaid NGO bookings.
	TranslatorCategoryVolunteer TranslatorCategory = "volunteer"
)

// JobType returns the job type this translator population serves.
func (c TranslatorCategory) JobType() JobType {
	switch c {
	case TranslatorCategoryRWS:
		return JobTypeRWS
	case TranslatorCategoryVolunteer:
		return JobTypeUnpaid
	default:
		return JobTypePaid
	}
}

// TranslatorLevel is the qualification level held by a translator.
type TranslatorLevel string

const (
	// LevelCertified is a state-authorized translator.
	LevelCertified TranslatorLevel = "Certified"
	// LevelCertifiedLaw is a state-authorized translator specialised in law.
	LevelCertifiedLaw TranslatorLevel = "Certified with specialisation in law"
	// LevelCertifiedHealth is a state-authorized translator specialised in health care.
	LevelCertifiedHealth TranslatorLevel = "Certified with specialisation in health care"
	// LevelLayman is an uncertified translator.
	LevelLayman TranslatorLevel = "Layman"
	// LevelCourseTrained is a translator who has read translation courses.
	LevelCourseTrained TranslatorLevel = "Read Translation courses"
)

// Certification is the qualification a customer requests for a booking.
// The zero value means any level is acceptable.
type Certification string

const (
	// CertificationAny places no qualification constraint.
	CertificationAny Certification = ""
	// CertificationNormal requests a layman or course-trained translator.
	CertificationNormal Certification = "normal"
	// CertificationCertified requests a state-authorized translator.
	CertificationCertified Certification = "yes"
	// CertificationLaw requests a law-specialised translator.
	CertificationLaw Certification = "law"
	// CertificationHealth requests a health-specialised translator.
	CertificationHealth Certification = "health"
	// CertificationBoth requests a certified translator alongside a normal one.
	CertificationBoth Certification = "both"
	// CertificationNormalLaw requests law specialisation alongside normal qualification.
	CertificationNormalLaw Certification = "n_law"
	// CertificationNormalHealth requests health specialisation alongside normal qualification.
	CertificationNormalHealth Certification = "n_health"
)

// Levels expands the requested certification into the set of translator
// levels that satisfy it. An empty expansion matches every level.
func (c Certification) Levels() []TranslatorLevel {
	switch c {
	case CertificationCertified, CertificationBoth:
		return []TranslatorLevel{LevelCertified, LevelCertifiedLaw, LevelCertifiedHealth}
	case CertificationLaw, CertificationNormalLaw:
		return []TranslatorLevel{LevelCertifiedLaw}
	case CertificationHealth, CertificationNormalHealth:
		return []TranslatorLevel{LevelCertifiedHealth}
	case CertificationNormal:
		return []TranslatorLevel{LevelLayman, LevelCourseTrained}
	default:
		return nil
	}
}

// Satisfies reports whether a translator holding the given level may take a
// booking with this certification requirement.
func (c Certification) Satisfies(level TranslatorLevel) bool {
	levels := c.Levels()
	if len(levels) == 0 {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

// Labels returns the customer-facing Swedish qualification labels used in
// notification texts.
func (c Certification) Labels() []string {
	switch c {
	case CertificationBoth:
		return []string{"Godkänd tolk", "Auktoriserad"}
	case CertificationCertified:
		return []string{"Auktoriserad"}
	case CertificationLaw, CertificationNormalLaw:
		return []string{"Rättstolk"}
	case CertificationHealth, CertificationNormalHealth:
		return []string{"Sjukvårdstolk"}
	default:
		return nil
	}
}

// Job is an interpretation booking as stored and returned to handlers.
type Job struct {
	ID            string
	JobNumber     string
	CustomerID    string
	CustomerName  string
	CustomerEmail string
	CustomerTown  string
	ConsumerType  ConsumerType
	FromLanguage  string
	Immediate     bool
	Due           time.Time
	Duration      int // minutes
	Gender        Gender
	Certification Certification
	JobType       JobType
	PhoneBooking  bool
	OnSiteBooking bool
	Status        JobStatus
	WillExpireAt  time.Time
	SessionTime   string
	AdminComments string
	Reference     string
	Address       string
	Instructions  string
	Town          string
	EarmarkedFor  string // non-empty when the booking targets one translator
	ByAdmin       bool
	IgnoreExpired bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	EndAt         *time.Time
	WithdrawAt    *time.Time
}

// Expired reports whether the acceptance deadline has passed at the given
// instant. Bookings flagged to ignore expiry never expire.
func (j Job) Expired(now time.Time) bool {
	if j.IgnoreExpired {
		return false
	}
	return !j.WillExpireAt.After(now)
}

// ContactAddress returns the session address, falling back to the customer's
// registered town when none was given on the booking.
func (j Job) ContactAddress() string {
	if strings.TrimSpace(j.Address) != "" {
		return j.Address
	}
	return j.CustomerTown
}

// Assignment records a translator's tenure on a booking.
type Assignment struct {
	ID           string
	JobID        string
	TranslatorID string
	CreatedAt    time.Time
	CancelAt     *time.Time
	CompletedAt  *time.Time
	CompletedBy  string
}

// Open reports whether the assignment is still active.
func (a Assignment) Open() bool {
	return a.CancelAt == nil && a.CompletedAt == nil
}

// Translator is the matching-relevant profile of an interpreter.
type Translator struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Town          string
	Gender        Gender
	Category      TranslatorCategory
	Level         TranslatorLevel
	Languages     []string
	MuteAll       bool // opted out of new-booking notifications
	MuteEmergency bool // opted out of immediate-booking notifications
	MuteNighttime bool // notifications outside business hours are deferred
	Suspended     bool
}

// Customer is the booking-relevant profile of a booking customer.
type Customer struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	Town         string
	ConsumerType ConsumerType
}

// BookingEventType enumerates domain events published on booking changes.
type BookingEventType string

const (
	// BookingEventCreated fires when a booking is stored.
	BookingEventCreated BookingEventType = "booking.created"
	// BookingEventUpdated fires when booking details change.
	BookingEventUpdated BookingEventType = "booking.updated"
	// BookingEventAccepted fires when a translator takes a booking.
	BookingEventAccepted BookingEventType = "booking.accepted"
	// BookingEventCanceled fires when a booking is withdrawn.
	BookingEventCanceled BookingEventType = "booking.canceled"
	// BookingEventExpired fires when a booking times out unaccepted.
	BookingEventExpired BookingEventType = "booking.expired"
	// BookingEventSessionEnded fires when a session is closed for billing.
	BookingEventSessionEnded BookingEventType = "booking.session_ended"
)

const (
	// HealthStatusOK indicates all dependencies are healthy.
	HealthStatusOK = "ok"
	// HealthStatusDegraded indicates at least one dependency is degraded but service remains running.
	HealthStatusDegraded = "degraded"
	// HealthStatusError indicates the service or a critical dependency is unavailable.
	HealthStatusError = "error"
)

// SystemHealthCheck describes the outcome of an individual dependency probe.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// AuditLog captures an immutable trace entry for admin and system actions.
type AuditLog struct {
	ID        string
	Actor     string
	Action    string
	Target    string
	Metadata  map[string]any
	CreatedAt time.Time
}
