package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/appointment-service/internal/api/dto"
	"github.com/spec-kit/appointment-service/internal/auth"
	"github.com/spec-kit/appointment-service/internal/service"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// AdminHandler serves user management and reports. Routes are guarded by RequireRole(Admin).
type AdminHandler struct {
	users   *service.UserService
	reports *service.ReportService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(users *service.UserService, reports *service.ReportService) *AdminHandler {
	return &AdminHandler{users: users, reports: reports}
}

// ListUsers GET /admin/users.
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.users.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, dto.NewUserResponse(&users[i]))
	}
	return c.JSON(fiber.Map{"data": out})
}

// SetRoles PUT /admin/users/:id/roles.
func (h *AdminHandler) SetRoles(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SetRolesRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	user, err := h.users.SetRoles(c.UserContext(), caller, c.Params("id"), req.Roles)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(user)})
}

// DeleteUser DELETE /admin/users/:id.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	if err := h.users.DeleteUser(c.UserContext(), caller, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Overview GET /admin/reports/overview.
func (h *AdminHandler) Overview(c *fiber.Ctx) error {
	report, err := h.reports.Overview(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// StaffReport GET /admin/reports/staff.
func (h *AdminHandler) StaffReport(c *fiber.Ctx) error {
	rows, err := h.reports.StaffReport(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": rows})
}
