package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/appointment-service/internal/api/http/handlers"
	"github.com/spec-kit/appointment-service/internal/auth"
	"github.com/spec-kit/appointment-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Appointments   *handlers.AppointmentsHandler
	Staff          *handlers.StaffHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    *auth.RateLimiter
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.RateLimiter.Handle, cfg.Auth.Register)
	authGroup.Post("/login", cfg.RateLimiter.Handle, cfg.Auth.Login)

	authed := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	authed.Get("/me", cfg.Auth.Me)
	authed.Post("/password/change", cfg.Auth.ChangePassword)

	appointments := app.Group("/appointments", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated())
	appointments.Get("/", cfg.Appointments.List)
	appointments.Post("/", cfg.Appointments.Create)
	appointments.Get("/:id", cfg.Appointments.Get)
	appointments.Put("/:id", cfg.Appointments.Update)
	appointments.Delete("/:id", cfg.Appointments.Delete)
	appointments.Post("/:id/status", cfg.Appointments.ChangeStatus)

	app.Get("/staff", cfg.AuthMiddleware.Handle, auth.RequireAuthenticated(), cfg.Staff.List)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.RoleAdmin))
	admin.Get("/users", cfg.Admin.ListUsers)
	admin.Put("/users/:id/roles", cfg.Admin.SetRoles)
	admin.Delete("/users/:id", cfg.Admin.DeleteUser)
	admin.Get("/reports/overview", cfg.Admin.Overview)
	admin.Get("/reports/staff", cfg.Admin.StaffReport)
}
