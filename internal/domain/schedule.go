package domain

import (
	"fmt"
	"time"
)

// Business-hours window for push delivery. Pushes landing between nightStart
// and morningStart are deferred for translators who muted night-time
// notifications.
const (
	nightStartHour   = 21
	morningStartHour = 9
)

// ExpiryTime returns the instant after which an unaccepted booking times
// out. Bookings due within 90 hours expire at the session start itself;
// bookings further out expire 48 hours before the session.
func ExpiryTime(due, createdAt time.Time) time.Time {
	if due.Sub(createdAt) <= 90*time.Hour {
		return due
	}
	return due.Add(-48 * time.Hour)
}

// NightTime reports whether the instant falls outside business hours.
func NightTime(t time.Time) bool {
	h := t.Hour()
	return h >= nightStartHour || h < morningStartHour
}

// NextBusinessMorning returns the first business-hours instant at or after t,
// used as the delivery time for deferred pushes.
func NextBusinessMorning(t time.Time) time.Time {
	if !NightTime(t) {
		return t
	}
	morning := time.Date(t.Year(), t.Month(), t.Day(), morningStartHour, 0, 0, 0, t.Location())
	if t.Hour() >= nightStartHour {
		morning = morning.AddDate(0, 0, 1)
	}
	return morning
}

// DurationLabel renders a minute count for notification texts: plain minutes
// under an hour, bare hours on the hour, otherwise "02h 30min".
func DurationLabel(minutes int) string {
	if minutes < 60 {
		return fmt.Sprintf("%dmin", minutes)
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%02dh %02dmin", minutes/60, minutes%60)
}

// SessionTimeLabel converts a "H:MM:SS" session time into the Swedish
// "H tim M min" form used in billing mails. Zero minutes are omitted.
func SessionTimeLabel(sessionTime string) string {
	var h, m, s int
	if _, err := fmt.Sscanf(sessionTime, "%d:%d:%d", &h, &m, &s); err != nil {
		return sessionTime
	}
	if m == 0 {
		return fmt.Sprintf("%d tim", h)
	}
	return fmt.Sprintf("%d tim %d min", h, m)
}

// SessionInterval formats the elapsed time between session start and end as
// "H:MM:SS" for storage on the booking.
func SessionInterval(start, end time.Time) string {
	d := end.Sub(start)
	if d < 0 {
		d = -d
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
