package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/appointment-service/internal/api/dto"
	"github.com/spec-kit/appointment-service/internal/auth"
	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/service"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// AppointmentsHandler exposes the appointment lifecycle.
type AppointmentsHandler struct {
	service *service.AppointmentService
}

// NewAppointmentsHandler constructs handler.
func NewAppointmentsHandler(appointmentService *service.AppointmentService) *AppointmentsHandler {
	return &AppointmentsHandler{service: appointmentService}
}

// List GET /appointments.
func (h *AppointmentsHandler) List(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var opts service.ListOptions
	if raw := c.Query("status"); raw != "" {
		st, ok := domain.ParseStatus(raw)
		if !ok {
			return apperrors.NewFieldErrors(map[string]string{"status": "unknown status"})
		}
		opts.Status = &st
	}
	items, err := h.service.List(c.UserContext(), caller, opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAppointmentList(items)})
}

// Get GET /appointments/:id.
func (h *AppointmentsHandler) Get(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	appt, err := h.service.Details(c.UserContext(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAppointmentResponse(appt)})
}

// Create POST /appointments.
func (h *AppointmentsHandler) Create(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.AppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	appt, err := h.service.Create(c.UserContext(), caller, toInput(req))
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAppointmentResponse(appt)})
}

// Update PUT /appointments/:id.
func (h *AppointmentsHandler) Update(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var req dto.AppointmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	appt, err := h.service.Edit(c.UserContext(), caller, id, toInput(req))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAppointmentResponse(appt)})
}

// Delete DELETE /appointments/:id.
func (h *AppointmentsHandler) Delete(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.UserContext(), caller, id); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ChangeStatus POST /appointments/:id/status.
func (h *AppointmentsHandler) ChangeStatus(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := appointmentID(c)
	if err != nil {
		return err
	}
	var req dto.ChangeStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	appt, err := h.service.ChangeStatus(c.UserContext(), caller, id, req.Status, req.StaffNote)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAppointmentResponse(appt)})
}

// appointmentID parses :id; an id that is not an integer cannot resolve and is reported as not found.
func appointmentID(c *fiber.Ctx) (int64, error) {
	raw := c.Params("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewNotFound("appointment", map[string]any{"id": raw})
	}
	return id, nil
}

func toInput(req dto.AppointmentRequest) service.AppointmentInput {
	return service.AppointmentInput{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		StaffID:     req.StaffID,
	}
}
