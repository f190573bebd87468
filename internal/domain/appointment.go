package domain

import (
	"fmt"
	"time"
)

// AppointmentStatus enumerates lifecycle states for appointments.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "Pending"
	StatusApproved  AppointmentStatus = "Approved"
	StatusRejected  AppointmentStatus = "Rejected"
	StatusCancelled AppointmentStatus = "Cancelled"
)

// AllStatuses lists the closed status set.
var AllStatuses = []AppointmentStatus{StatusPending, StatusApproved, StatusRejected, StatusCancelled}

// ParseStatus validates a status name.
func ParseStatus(name string) (AppointmentStatus, bool) {
	for _, s := range AllStatuses {
		if string(s) == name {
			return s, true
		}
	}
	return "", false
}

// ClockTime is a time of day expressed as the offset from midnight.
type ClockTime time.Duration

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// ParseClockTime parses an "HH:MM" value.
func ParseClockTime(value string) (ClockTime, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", value)
	}
	return NewClockTime(t.Hour(), t.Minute()), nil
}

// String renders the value as HH:MM.
func (c ClockTime) String() string {
	d := time.Duration(c)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// CivilDate strips the clock from t, keeping its calendar day in t's location, and returns
// midnight UTC of that day. All appointment dates are stored in this normalized form.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD value into a normalized civil date.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", value)
	}
	return CivilDate(t), nil
}

// Appointment is the aggregate for bookings.
type Appointment struct {
	ID          int64
	CustomerID  string
	StaffID     *string
	Date        time.Time
	StartTime   ClockTime
	EndTime     ClockTime
	Title       string
	Description string
	Status      AppointmentStatus
	StaffNote   string
	CreatedAt   time.Time
	UpdatedAt   *time.Time
}

// AssignedTo reports whether the appointment is assigned to the given staff user.
func (a *Appointment) AssignedTo(userID string) bool {
	return a.StaffID != nil && *a.StaffID == userID
}
