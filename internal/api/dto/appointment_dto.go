package dto

import (
	"time"

	"github.com/spec-kit/appointment-service/internal/domain"
)

// AppointmentRequest is the create/edit payload. Dates are YYYY-MM-DD and times HH:MM.
type AppointmentRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Date        string  `json:"date"`
	StartTime   string  `json:"start_time"`
	EndTime     string  `json:"end_time"`
	StaffID     *string `json:"staff_id"`
}

// ChangeStatusRequest payload.
type ChangeStatusRequest struct {
	Status    string `json:"status"`
	StaffNote string `json:"staff_note"`
}

// AppointmentResponse represents an appointment.
type AppointmentResponse struct {
	ID          int64                    `json:"id"`
	CustomerID  string                   `json:"customer_id"`
	StaffID     *string                  `json:"staff_id"`
	Date        string                   `json:"date"`
	StartTime   string                   `json:"start_time"`
	EndTime     string                   `json:"end_time"`
	Title       string                   `json:"title"`
	Description string                   `json:"description"`
	Status      domain.AppointmentStatus `json:"status"`
	StaffNote   string                   `json:"staff_note"`
	CreatedAt   time.Time                `json:"created_at"`
	UpdatedAt   *time.Time               `json:"updated_at"`
}

// NewAppointmentResponse maps an appointment.
func NewAppointmentResponse(a *domain.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:          a.ID,
		CustomerID:  a.CustomerID,
		StaffID:     a.StaffID,
		Date:        a.Date.Format(domain.DateLayout),
		StartTime:   a.StartTime.String(),
		EndTime:     a.EndTime.String(),
		Title:       a.Title,
		Description: a.Description,
		Status:      a.Status,
		StaffNote:   a.StaffNote,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

// NewAppointmentList maps a slice, never returning nil.
func NewAppointmentList(items []domain.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for i := range items {
		out = append(out, NewAppointmentResponse(&items[i]))
	}
	return out
}
