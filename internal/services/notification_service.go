package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	domain "github.com/tolkdesk/api/internal/domain"
	"github.com/tolkdesk/api/internal/repositories"
)

const (
	pushTypeSuitableJob        = "suitable_job"
	pushTypeJobAccepted        = "job_accepted"
	pushTypeJobCancelled       = "job_cancelled"
	pushTypeJobExpired         = "job_expired"
	pushTypeSessionStartRemind = "session_start_remind"

	soundNormalBooking    = "normal_booking"
	soundEmergencyBooking = "emergency_booking"
	soundDefault          = "default"

	mailTemplateJobAccepted   = "emails/job-accepted"
	mailTemplateStatusChanged = "emails/status-changed"
	mailTemplateChangedDate   = "emails/changed-date"
	mailTemplateChangedLang   = "emails/changed-lang"
	mailTemplateNewTranslator = "emails/job-changed-translator-new-translator"
	mailTemplateOldTranslator = "emails/job-changed-translator-old-translator"
	mailTemplateSessionEnded  = "emails/session-ended"
	mailTemplateCancellation  = "emails/status-changed-from-pending-or-assigned-customer"
)

// swedishNames renders language display names in booking notification texts.
var swedishNames = display.Tags(language.Swedish)

// NotificationServiceDeps bundles collaborators required to construct the notification service.
type NotificationServiceDeps struct {
	Matching    MatchingService
	Assignments repositories.AssignmentRepository
	Translators repositories.TranslatorRepository
	Push        PushSender
	SMS         SMSSender
	Mailer      Mailer
	Clock       func() time.Time
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type notificationService struct {
	matching    MatchingService
	assignments repositories.AssignmentRepository
	translators repositories.TranslatorRepository
	push        PushSender
	sms         SMSSender
	mailer      Mailer
	clock       func() time.Time
	logger      func(context.Context, string, map[string]any)
}

// NewNotificationService wires dependencies into a concrete NotificationService implementation.
func NewNotificationService(deps NotificationServiceDeps) (NotificationService, error) {
	if deps.Matching == nil {
		return nil, errors.New("notification service: matching service is required")
	}
	if deps.Translators == nil {
		return nil, errors.New("notification service: translator repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &notificationService{
		matching:    deps.Matching,
		assignments: deps.Assignments,
		translators: deps.Translators,
		push:        deps.Push,
		sms:         deps.SMS,
		mailer:      deps.Mailer,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// BroadcastBooking pushes a new booking to every eligible translator,
// deferring delivery for translators who muted night-time notifications.
func (s *notificationService) BroadcastBooking(ctx context.Context, job Job, excludeTranslatorID string) {
	if s.push == nil {
		return
	}

	translators, err := s.matching.EligibleTranslators(ctx, job)
	if err != nil {
		s.logger(ctx, "notify.broadcast.match.failed", map[string]any{
			"job":   job.ID,
			"error": err.Error(),
		})
		return
	}

	now := s.clock()
	night := domain.NightTime(now)

	var immediate, deferred []string
	for _, translator := range translators {
		if translator.ID == excludeTranslatorID || translator.Email == "" {
			continue
		}
		if translator.MuteAll {
			continue
		}
		if job.Immediate && translator.MuteEmergency {
			continue
		}
		if night && translator.MuteNighttime {
			deferred = append(deferred, translator.Email)
			continue
		}
		immediate = append(immediate, translator.Email)
	}

	content := broadcastText(job)
	sound := soundNormalBooking
	if job.Immediate {
		sound = soundEmergencyBooking
	}
	data := jobPushData(job, pushTypeSuitableJob)

	g, gctx := errgroup.WithContext(ctx)
	if len(immediate) > 0 {
		env := PushEnvelope{
			Recipients:   immediate,
			Heading:      "Ny bokning",
			Content:      content,
			Data:         data,
			AndroidSound: sound,
			IOSSound:     sound + ".mp3",
		}
		g.Go(func() error { return s.push.Send(gctx, env) })
	}
	if len(deferred) > 0 {
		after := domain.NextBusinessMorning(now)
		env := PushEnvelope{
			Recipients:   deferred,
			Heading:      "Ny bokning",
			Content:      content,
			Data:         data,
			AndroidSound: sound,
			IOSSound:     sound + ".mp3",
			SendAfter:    &after,
		}
		g.Go(func() error { return s.push.Send(gctx, env) })
	}
	if err := g.Wait(); err != nil {
		s.logger(ctx, "notify.broadcast.push.failed", map[string]any{
			"job":   job.ID,
			"error": err.Error(),
		})
	}
}

// SendSMSToEligible texts every eligible translator about the booking and
// returns how many messages were attempted. Without a configured sender the
// fan-out is a no-op.
func (s *notificationService) SendSMSToEligible(ctx context.Context, job Job) (int, error) {
	if s.sms == nil {
		return 0, nil
	}

	translators, err := s.matching.EligibleTranslators(ctx, job)
	if err != nil {
		return 0, err
	}

	message := smsText(job)
	for _, translator := range translators {
		if translator.Phone == "" {
			continue
		}
		if _, err := s.sms.Send(ctx, translator.Phone, message); err != nil {
			s.logger(ctx, "notify.sms.failed", map[string]any{
				"job":        job.ID,
				"translator": translator.ID,
				"error":      err.Error(),
			})
		}
	}
	return len(translators), nil
}

func (s *notificationService) NotifyAccepted(ctx context.Context, job Job, pushCustomer bool) {
	s.sendMail(ctx, MailMessage{
		To:       job.CustomerEmail,
		Name:     job.CustomerName,
		Subject:  fmt.Sprintf("Bekräftelse - tolk har accepterat er bokning (bokning # %s)", job.JobNumber),
		Template: mailTemplateJobAccepted,
		Data:     jobMailData(job),
	})
	if pushCustomer && s.push != nil && job.CustomerEmail != "" {
		env := PushEnvelope{
			Recipients: []string{job.CustomerEmail},
			Heading:    "Bokning accepterad",
			Content: fmt.Sprintf("Din bokning för %s kl %s den %s har accepterats av en tolk. Vänligen öppna appen för att se detaljer.",
				languageLabel(job.FromLanguage), job.Due.Format("15:04"), job.Due.Format("2006-01-02")),
			Data:         jobPushData(job, pushTypeJobAccepted),
			AndroidSound: soundDefault,
			IOSSound:     soundDefault + ".mp3",
		}
		if err := s.push.Send(ctx, env); err != nil {
			s.logger(ctx, "notify.accepted.push.failed", map[string]any{"job": job.ID, "error": err.Error()})
		}
	}
}

func (s *notificationService) NotifyStatusChanged(ctx context.Context, job Job, previous JobStatus) {
	data := jobMailData(job)
	data["previous_status"] = string(previous)
	s.sendMail(ctx, MailMessage{
		To:       job.CustomerEmail,
		Name:     job.CustomerName,
		Subject:  fmt.Sprintf("Meddelande om ändring av tolkbokning med bokningsnr: #%s", job.JobNumber),
		Template: mailTemplateStatusChanged,
		Data:     data,
	})
}

func (s *notificationService) NotifyBookingChanged(ctx context.Context, job Job, previousDue *time.Time, previousLanguage string) {
	data := jobMailData(job)
	template := mailTemplateChangedLang
	if previousDue != nil {
		template = mailTemplateChangedDate
		data["old_time"] = previousDue.Format("2006-01-02 15:04")
	}
	if previousLanguage != "" {
		data["old_lang"] = languageLabel(previousLanguage)
	}

	subject := fmt.Sprintf("Meddelande om ändring av tolkbokning med bokningsnr: #%s", job.JobNumber)
	s.sendMail(ctx, MailMessage{
		To:       job.CustomerEmail,
		Name:     job.CustomerName,
		Subject:  subject,
		Template: template,
		Data:     data,
	})

	if translator := s.assignedTranslator(ctx, job.ID); translator != nil {
		s.sendMail(ctx, MailMessage{
			To:       translator.Email,
			Name:     translator.Name,
			Subject:  subject,
			Template: template,
			Data:     data,
		})
	}
}

func (s *notificationService) NotifyTranslatorChanged(ctx context.Context, job Job, current, previous *Translator) {
	subject := fmt.Sprintf("Meddelande om tilldelning av tolkuppdrag för uppdrag # %s", job.JobNumber)
	data := jobMailData(job)

	s.sendMail(ctx, MailMessage{
		To:       job.CustomerEmail,
		Name:     job.CustomerName,
		Subject:  subject,
		Template: mailTemplateJobAccepted,
		Data:     data,
	})
	if current != nil {
		s.sendMail(ctx, MailMessage{
			To:       current.Email,
			Name:     current.Name,
			Subject:  subject,
			Template: mailTemplateNewTranslator,
			Data:     data,
		})
	}
	if previous != nil {
		s.sendMail(ctx, MailMessage{
			To:       previous.Email,
			Name:     previous.Name,
			Subject:  fmt.Sprintf("Avbokning av bokningsnr: #%s", job.JobNumber),
			Template: mailTemplateOldTranslator,
			Data:     data,
		})
	}
}

func (s *notificationService) NotifyCancelledToTranslator(ctx context.Context, job Job, translatorID string) {
	if s.push == nil {
		return
	}
	translator, err := s.translators.FindByID(ctx, translatorID)
	if err != nil || translator.Email == "" {
		return
	}
	env := PushEnvelope{
		Recipients: []string{translator.Email},
		Heading:    "Bokning avbokad",
		Content: fmt.Sprintf("Kunden har avbokat bokningen för %s kl %s den %s. Var god och kolla dina tidigare bokningar för detaljer.",
			languageLabel(job.FromLanguage), job.Due.Format("15:04"), job.Due.Format("2006-01-02")),
		Data:         jobPushData(job, pushTypeJobCancelled),
		AndroidSound: soundDefault,
		IOSSound:     soundDefault + ".mp3",
	}
	if after := s.deferUntil(translator); after != nil {
		env.SendAfter = after
	}
	if err := s.push.Send(ctx, env); err != nil {
		s.logger(ctx, "notify.cancel.push.failed", map[string]any{"job": job.ID, "error": err.Error()})
	}
}

func (s *notificationService) NotifyCancelledToCustomer(ctx context.Context, job Job) {
	s.sendMail(ctx, MailMessage{
		To:       job.CustomerEmail,
		Name:     job.CustomerName,
		Subject:  fmt.Sprintf("Avbokning av bokningsnr: #%s", job.JobNumber),
		Template: mailTemplateCancellation,
		Data:     jobMailData(job),
	})
	if s.push == nil || job.CustomerEmail == "" {
		return
	}
	env := PushEnvelope{
		Recipients: []string{job.CustomerEmail},
		Heading:    "Tolk har avbokat",
		Content: fmt.Sprintf("Er %stolk, %s min %s, har avbokat tolkningen. Vi letar nu efter en ny tolk som kan ersätta den. Tack.",
			languageLabel(job.FromLanguage), domain.DurationLabel(job.Duration), job.Due.Format("2006-01-02 15:04")),
		Data:         jobPushData(job, pushTypeJobCancelled),
		AndroidSound: soundDefault,
		IOSSound:     soundDefault + ".mp3",
	}
	if err := s.push.Send(ctx, env); err != nil {
		s.logger(ctx, "notify.cancel.push.failed", map[string]any{"job": job.ID, "error": err.Error()})
	}
}

func (s *notificationService) NotifyExpired(ctx context.Context, job Job) {
	if s.push == nil || job.CustomerEmail == "" {
		return
	}
	env := PushEnvelope{
		Recipients: []string{job.CustomerEmail},
		Heading:    "Ingen tolk hittades",
		Content: fmt.Sprintf("Tyvärr har ingen tolk accepterat er bokning: (%s, %s, %s). Vänligen pröva boka om tiden.",
			languageLabel(job.FromLanguage), domain.DurationLabel(job.Duration), job.Due.Format("2006-01-02 15:04")),
		Data:         jobPushData(job, pushTypeJobExpired),
		AndroidSound: soundDefault,
		IOSSound:     soundDefault + ".mp3",
	}
	if err := s.push.Send(ctx, env); err != nil {
		s.logger(ctx, "notify.expired.push.failed", map[string]any{"job": job.ID, "error": err.Error()})
	}
}

// NotifySessionEnded sends the billing framing to the customer and the salary
// framing to the translator who carried out the session.
func (s *notificationService) NotifySessionEnded(ctx context.Context, job Job, sessionTime, completedBy string) {
	label := domain.SessionTimeLabel(sessionTime)
	subject := fmt.Sprintf("Information om avslutad tolkning för bokningsnummer # %s", job.JobNumber)

	customerData := jobMailData(job)
	customerData["session_time"] = label
	customerData["for_text"] = "faktura"
	s.sendMail(ctx, MailMessage{
		To:       job.CustomerEmail,
		Name:     job.CustomerName,
		Subject:  subject,
		Template: mailTemplateSessionEnded,
		Data:     customerData,
	})

	translator, err := s.translators.FindByID(ctx, completedBy)
	if err != nil {
		if translator := s.assignedTranslator(ctx, job.ID); translator != nil {
			s.sendSessionEndedToTranslator(ctx, job, *translator, subject, label)
		}
		return
	}
	s.sendSessionEndedToTranslator(ctx, job, translator, subject, label)
}

func (s *notificationService) sendSessionEndedToTranslator(ctx context.Context, job Job, translator Translator, subject, label string) {
	data := jobMailData(job)
	data["session_time"] = label
	data["for_text"] = "lön"
	s.sendMail(ctx, MailMessage{
		To:       translator.Email,
		Name:     translator.Name,
		Subject:  subject,
		Template: mailTemplateSessionEnded,
		Data:     data,
	})
}

// RemindSessionStart pushes a start reminder to the assigned translator and
// to the customer.
func (s *notificationService) RemindSessionStart(ctx context.Context, job Job, translatorID string) {
	if s.push == nil {
		return
	}

	location := "telefon"
	if !job.PhoneBooking && job.OnSiteBooking {
		location = "på plats i " + job.Town
	}

	if translator, err := s.translators.FindByID(ctx, translatorID); err == nil && translator.Email != "" {
		env := PushEnvelope{
			Recipients: []string{translator.Email},
			Heading:    "Påminnelse om tolkning",
			Content: fmt.Sprintf("Detta är en påminnelse om att du har en %stolkning (%s) kl %s den %s som varar i %s. Lycka till och kom ihåg att ge feedback efter utförd tolkning!",
				languageLabel(job.FromLanguage), location, job.Due.Format("15:04"), job.Due.Format("2006-01-02"), domain.DurationLabel(job.Duration)),
			Data:         jobPushData(job, pushTypeSessionStartRemind),
			AndroidSound: soundDefault,
			IOSSound:     soundDefault + ".mp3",
		}
		if after := s.deferUntil(translator); after != nil {
			env.SendAfter = after
		}
		if err := s.push.Send(ctx, env); err != nil {
			s.logger(ctx, "notify.remind.push.failed", map[string]any{"job": job.ID, "error": err.Error()})
		}
	}

	if job.CustomerEmail == "" {
		return
	}
	env := PushEnvelope{
		Recipients: []string{job.CustomerEmail},
		Heading:    "Påminnelse om tolkning",
		Content: fmt.Sprintf("Detta är en påminnelse om att du har en %stolkning (%s) kl %s den %s som varar i %s.",
			languageLabel(job.FromLanguage), location, job.Due.Format("15:04"), job.Due.Format("2006-01-02"), domain.DurationLabel(job.Duration)),
		Data:         jobPushData(job, pushTypeSessionStartRemind),
		AndroidSound: soundDefault,
		IOSSound:     soundDefault + ".mp3",
	}
	if err := s.push.Send(ctx, env); err != nil {
		s.logger(ctx, "notify.remind.push.failed", map[string]any{"job": job.ID, "error": err.Error()})
	}
}

// Helpers ---------------------------------------------------------------------

func (s *notificationService) sendMail(ctx context.Context, msg MailMessage) {
	if s.mailer == nil || msg.To == "" {
		return
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger(ctx, "notify.mail.failed", map[string]any{
			"template": msg.Template,
			"error":    err.Error(),
		})
	}
}

func (s *notificationService) assignedTranslator(ctx context.Context, jobID string) *Translator {
	if s.assignments == nil {
		return nil
	}
	assignment, err := s.assignments.FindOpenByJob(ctx, jobID)
	if err != nil {
		return nil
	}
	translator, err := s.translators.FindByID(ctx, assignment.TranslatorID)
	if err != nil {
		return nil
	}
	return &translator
}

// deferUntil returns the deferred delivery time for a translator who muted
// night-time pushes, nil when delivery may proceed now.
func (s *notificationService) deferUntil(translator Translator) *time.Time {
	now := s.clock()
	if !translator.MuteNighttime || !domain.NightTime(now) {
		return nil
	}
	after := domain.NextBusinessMorning(now)
	return &after
}

func broadcastText(job Job) string {
	if job.Immediate {
		return fmt.Sprintf("Ny akutbokning för %stolk %dmin", languageLabel(job.FromLanguage), job.Duration)
	}
	return fmt.Sprintf("Ny bokning för %stolk %dmin %s",
		languageLabel(job.FromLanguage), job.Duration, job.Due.Format("2006-01-02 15:04"))
}

func smsText(job Job) string {
	date := job.Due.Format("02.01.2006")
	clock := job.Due.Format("15:04")
	duration := domain.DurationLabel(job.Duration)
	if job.PhoneBooking {
		return fmt.Sprintf("Ny telefontolkning bokad %s kl %s, %s. Boknings-ID: %s. Öppna appen för att acceptera.",
			date, clock, duration, job.JobNumber)
	}
	return fmt.Sprintf("Ny kontakttolkning bokad %s kl %s i %s, %s. Boknings-ID: %s. Öppna appen för att acceptera.",
		date, clock, job.ContactAddress(), duration, job.JobNumber)
}

func jobPushData(job Job, pushType string) map[string]any {
	return map[string]any{
		"type":           pushType,
		"job_id":         job.ID,
		"job_number":     job.JobNumber,
		"language":       job.FromLanguage,
		"duration":       job.Duration,
		"immediate":      job.Immediate,
		"due":            job.Due.Format(time.RFC3339),
		"phone_booking":  job.PhoneBooking,
		"onsite_booking": job.OnSiteBooking,
	}
}

func jobMailData(job Job) map[string]any {
	return map[string]any{
		"job_id":     job.ID,
		"job_number": job.JobNumber,
		"language":   languageLabel(job.FromLanguage),
		"due":        job.Due.Format("2006-01-02 15:04"),
		"duration":   domain.DurationLabel(job.Duration),
		"town":       job.ContactAddress(),
	}
}

// languageLabel renders a BCP 47 language code as its Swedish display name,
// falling back to the raw value for unknown codes.
func languageLabel(code string) string {
	tag, err := language.Parse(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	if name := swedishNames.Name(tag); name != "" {
		return name
	}
	return code
}
