package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/appointment-service/internal/api/dto"
	"github.com/spec-kit/appointment-service/internal/service"
)

// StaffHandler lists staff members available for assignment.
type StaffHandler struct {
	users *service.UserService
}

// NewStaffHandler constructs handler.
func NewStaffHandler(users *service.UserService) *StaffHandler {
	return &StaffHandler{users: users}
}

// List GET /staff.
func (h *StaffHandler) List(c *fiber.Ctx) error {
	staff, err := h.users.ListStaff(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.StaffOption, 0, len(staff))
	for _, s := range staff {
		out = append(out, dto.StaffOption{ID: s.ID, FullName: s.FullName()})
	}
	return c.JSON(fiber.Map{"data": out})
}
