package services

import (
	"strings"
	"time"

	domain "github.com/tolkdesk/api/internal/domain"
)

// statusEffect enumerates the notifications owed after a status change is
// persisted. Effects are dispatched outside the transaction.
type statusEffect int

const (
	// effectStatusChangedMail mails the customer a generic status update.
	effectStatusChangedMail statusEffect = iota
	// effectCancellationMail mails the customer a withdrawal confirmation.
	effectCancellationMail
	// effectAcceptanceMail mails the customer that a translator took the booking.
	effectAcceptanceMail
	// effectSessionStartReminders pushes start reminders to the customer and
	// the newly assigned translator.
	effectSessionStartReminders
	// effectSessionEndedMails sends the billing and salary session mails.
	effectSessionEndedMails
	// effectCancelTranslatorMail mails the outgoing translator about the withdrawal.
	effectCancelTranslatorMail
	// effectBroadcast pushes the booking to all eligible translators again.
	effectBroadcast
)

// statusDecision is the outcome of evaluating a requested transition against
// the current booking. Nothing is mutated until the decision is applied.
type statusDecision struct {
	allowed bool
	reason  string

	// resetSchedule restarts the acceptance clock when a timed-out booking
	// returns to the market.
	resetSchedule bool
	// closeAssignment records cancel_at on the active assignment.
	closeAssignment bool
	// completeAssignment records completed_at on the active assignment.
	completeAssignment bool
	effects            []statusEffect
}

func rejectTransition(reason string) statusDecision {
	return statusDecision{reason: reason}
}

// decideStatusChange evaluates a requested transition without side effects.
// translatorChanged reports whether the edit also moves the booking to a
// different translator.
func decideStatusChange(job Job, target JobStatus, adminComment, sessionTime string, translatorChanged bool) statusDecision {
	if !target.Valid() {
		return rejectTransition("unknown status")
	}
	if target == job.Status && !translatorChanged {
		return rejectTransition("booking already in requested status")
	}

	comment := strings.TrimSpace(adminComment)

	switch job.Status {
	case domain.JobStatusPending:
		return decideFromPending(target, comment, translatorChanged)
	case domain.JobStatusAssigned:
		return decideFromAssigned(target, comment)
	case domain.JobStatusStarted:
		return decideFromStarted(target, comment, sessionTime)
	case domain.JobStatusCompleted:
		return decideFromCompleted(target, comment)
	case domain.JobStatusTimedOut:
		return decideFromTimedOut(target, translatorChanged)
	case domain.JobStatusWithdrawAfter24:
		if target == domain.JobStatusTimedOut {
			if comment == "" {
				return rejectTransition("admin comment is required")
			}
			return statusDecision{allowed: true}
		}
		return rejectTransition("withdrawn bookings can only time out")
	default:
		return rejectTransition("booking is in a terminal status")
	}
}

func decideFromPending(target JobStatus, comment string, translatorChanged bool) statusDecision {
	switch target {
	case domain.JobStatusAssigned:
		if !translatorChanged {
			return rejectTransition("assigning requires a translator")
		}
		return statusDecision{
			allowed: true,
			effects: []statusEffect{effectAcceptanceMail, effectSessionStartReminders},
		}
	case domain.JobStatusTimedOut:
		if comment == "" {
			return rejectTransition("admin comment is required")
		}
		return statusDecision{allowed: true, effects: []statusEffect{effectCancellationMail}}
	case domain.JobStatusPending:
		return rejectTransition("booking already in requested status")
	default:
		// Any other exit from a pending booking closes it with a
		// cancellation notice to the customer.
		return statusDecision{allowed: true, effects: []statusEffect{effectCancellationMail}}
	}
}

func decideFromAssigned(target JobStatus, comment string) statusDecision {
	switch target {
	case domain.JobStatusWithdrawBefore24, domain.JobStatusWithdrawAfter24:
		return statusDecision{
			allowed:         true,
			closeAssignment: true,
			effects:         []statusEffect{effectStatusChangedMail, effectCancelTranslatorMail},
		}
	case domain.JobStatusTimedOut:
		if comment == "" {
			return rejectTransition("admin comment is required")
		}
		return statusDecision{allowed: true, closeAssignment: true}
	default:
		return rejectTransition("assigned bookings cannot move to " + string(target))
	}
}

func decideFromStarted(target JobStatus, comment, sessionTime string) statusDecision {
	if comment == "" {
		return rejectTransition("admin comment is required")
	}
	if target == domain.JobStatusCompleted {
		if strings.TrimSpace(sessionTime) == "" {
			return rejectTransition("session time is required")
		}
		return statusDecision{
			allowed:            true,
			completeAssignment: true,
			effects:            []statusEffect{effectSessionEndedMails},
		}
	}
	return statusDecision{allowed: true}
}

func decideFromCompleted(target JobStatus, comment string) statusDecision {
	if target == domain.JobStatusTimedOut && comment == "" {
		return rejectTransition("admin comment is required")
	}
	return statusDecision{allowed: true}
}

func decideFromTimedOut(target JobStatus, translatorChanged bool) statusDecision {
	switch target {
	case domain.JobStatusPending:
		return statusDecision{
			allowed:       true,
			resetSchedule: true,
			effects:       []statusEffect{effectStatusChangedMail, effectBroadcast},
		}
	case domain.JobStatusAssigned:
		if !translatorChanged {
			return rejectTransition("assigning requires a translator")
		}
		return statusDecision{allowed: true, effects: []statusEffect{effectAcceptanceMail}}
	default:
		return rejectTransition("timed-out bookings cannot move to " + string(target))
	}
}

// applyStatusDecision mutates the booking per an allowed decision. The clock
// restart recomputes the acceptance deadline from now.
func applyStatusDecision(job *Job, decision statusDecision, target JobStatus, comment string, now time.Time) {
	job.Status = target
	if comment != "" {
		job.AdminComments = comment
	}
	if decision.resetSchedule {
		job.CreatedAt = now
		job.WillExpireAt = domain.ExpiryTime(job.Due, now)
	}
	job.UpdatedAt = now
}
