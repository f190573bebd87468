package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/appointment-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAppointmentCreated       EventType = "appointment_created"
	EventAppointmentUpdated       EventType = "appointment_updated"
	EventAppointmentDeleted       EventType = "appointment_deleted"
	EventAppointmentStatusChanged EventType = "appointment_status_changed"
	EventUserRegistered           EventType = "user_registered"
	EventUserRolesChanged         EventType = "user_roles_changed"
	EventUserDeleted              EventType = "user_deleted"
)

// AppointmentEventTypes lists events carrying an appointment id.
var AppointmentEventTypes = []EventType{
	EventAppointmentCreated,
	EventAppointmentUpdated,
	EventAppointmentDeleted,
	EventAppointmentStatusChanged,
}

// UserEventTypes lists directory events.
var UserEventTypes = []EventType{
	EventUserRegistered,
	EventUserRolesChanged,
	EventUserDeleted,
}

// AllEventTypes is the union of appointment and user events.
func AllEventTypes() []EventType {
	all := make([]EventType, 0, len(AppointmentEventTypes)+len(UserEventTypes))
	all = append(all, AppointmentEventTypes...)
	return append(all, UserEventTypes...)
}

// Event represents a domain event emitted by services.
type Event struct {
	ID            string      `json:"id"`
	Type          EventType   `json:"type"`
	AppointmentID int64       `json:"appointment_id,omitempty"`
	UserID        string      `json:"user_id,omitempty"`
	ActorID       string      `json:"actor_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Payload       interface{} `json:"payload"`
}

// NewAppointmentEvent stamps an appointment event with a fresh id.
func NewAppointmentEvent(eventType EventType, appointmentID int64, actorID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		AppointmentID: appointmentID,
		ActorID:       actorID,
		Timestamp:     at,
		Payload:       payload,
	}
}

// NewUserEvent stamps a directory event with a fresh id.
func NewUserEvent(eventType EventType, userID, actorID string, at time.Time, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		ActorID:   actorID,
		Timestamp: at,
		Payload:   payload,
	}
}

// AppointmentSnapshotPayload carries the record state after create or edit.
type AppointmentSnapshotPayload struct {
	CustomerID string                   `json:"customer_id"`
	StaffID    *string                  `json:"staff_id,omitempty"`
	Date       string                   `json:"date"`
	StartTime  string                   `json:"start_time"`
	EndTime    string                   `json:"end_time"`
	Title      string                   `json:"title"`
	Status     domain.AppointmentStatus `json:"status"`
}

// NewAppointmentSnapshot projects an appointment into an event payload.
func NewAppointmentSnapshot(appt *domain.Appointment) AppointmentSnapshotPayload {
	return AppointmentSnapshotPayload{
		CustomerID: appt.CustomerID,
		StaffID:    appt.StaffID,
		Date:       appt.Date.Format(domain.DateLayout),
		StartTime:  appt.StartTime.String(),
		EndTime:    appt.EndTime.String(),
		Title:      appt.Title,
		Status:     appt.Status,
	}
}

// AppointmentDeletedPayload payload.
type AppointmentDeletedPayload struct {
	CustomerID string  `json:"customer_id"`
	StaffID    *string `json:"staff_id,omitempty"`
}

// AppointmentStatusChangedPayload payload.
type AppointmentStatusChangedPayload struct {
	OldStatus domain.AppointmentStatus `json:"old_status"`
	NewStatus domain.AppointmentStatus `json:"new_status"`
	StaffNote string                   `json:"staff_note,omitempty"`
}

// UserRolesChangedPayload payload.
type UserRolesChangedPayload struct {
	Roles []domain.Role `json:"roles"`
}
