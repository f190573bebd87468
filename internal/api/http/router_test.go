package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/appointment-service/internal/api/http/handlers"
	"github.com/spec-kit/appointment-service/internal/auth"
	"github.com/spec-kit/appointment-service/internal/config"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/observability"
	"github.com/spec-kit/appointment-service/internal/repository"
	"github.com/spec-kit/appointment-service/internal/service"
)

const (
	adminEmail    = "admin@site.com"
	adminPassword = "Admin123"
)

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()
	cfg := config.Config{Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4}}

	authService := service.NewAuthService(cfg, service.AuthDependencies{UserRepo: store.Users(), Dispatcher: dispatcher, Logger: logger})
	if err := authService.EnsureAdmin(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	userService := service.NewUserService(store.Users(), dispatcher, logger)
	apptService := service.NewAppointmentService(service.AppointmentDependencies{
		AppointmentRepo: store.Appointments(),
		UserRepo:        store.Users(),
		Dispatcher:      dispatcher,
		Logger:          logger,
	})
	reportService := service.NewReportService(service.ReportDependencies{
		AppointmentRepo: store.Appointments(),
		UserRepo:        store.Users(),
		Logger:          logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("appointment-service", "test", nil, nil, metrics),
		Auth:           handlers.NewAuthHandler(authService),
		Appointments:   handlers.NewAppointmentsHandler(apptService),
		Staff:          handlers.NewStaffHandler(userService),
		Admin:          handlers.NewAdminHandler(userService, reportService),
		AuthMiddleware: auth.NewAuthMiddleware(authService.TokenManager(), store.Users()),
	})
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func register(t *testing.T, app *fiber.App, first string) (token, id string) {
	t.Helper()
	status, body := call(t, app, "POST", "/auth/register", "", fiber.Map{
		"first_name": first, "last_name": "Test", "email": first + "@example.com", "password": "secret1",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("register %s: status %d body %v", first, status, body)
	}
	return sessionFrom(t, body)
}

func login(t *testing.T, app *fiber.App, email, password string) string {
	t.Helper()
	status, body := call(t, app, "POST", "/auth/login", "", fiber.Map{"email": email, "password": password})
	if status != fiber.StatusOK {
		t.Fatalf("login %s: status %d body %v", email, status, body)
	}
	token, _ := sessionFrom(t, body)
	return token
}

func sessionFrom(t *testing.T, body map[string]any) (string, string) {
	t.Helper()
	data := body["data"].(map[string]any)
	token := data["auth"].(map[string]any)["token"].(string)
	id := data["user"].(map[string]any)["id"].(string)
	return token, id
}

func inDays(n int) string {
	return time.Now().UTC().AddDate(0, 0, n).Format("2006-01-02")
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	app := newTestApp(t)
	alice, aliceID := register(t, app, "alice")
	bob, _ := register(t, app, "bob")
	admin := login(t, app, adminEmail, adminPassword)

	status, body := call(t, app, "POST", "/appointments", alice, fiber.Map{
		"title": "Checkup", "date": inDays(2), "start_time": "09:00", "end_time": "10:00",
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create: status %d body %v", status, body)
	}
	created := body["data"].(map[string]any)
	if created["status"] != "Pending" || created["customer_id"] != aliceID || created["updated_at"] != nil {
		t.Fatalf("unexpected created record %v", created)
	}
	path := "/appointments/" + jsonID(created["id"])

	if status, body := call(t, app, "GET", path, bob, nil); status != fiber.StatusForbidden || errorCode(body) != "FORBIDDEN" {
		t.Fatalf("foreign view: status %d body %v", status, body)
	}
	if status, _ := call(t, app, "GET", path, alice, nil); status != fiber.StatusOK {
		t.Fatalf("owner view: status %d", status)
	}

	status, body = call(t, app, "POST", path+"/status", admin, fiber.Map{"status": "Approved", "staff_note": "Confirmed"})
	if status != fiber.StatusOK {
		t.Fatalf("change status: status %d body %v", status, body)
	}
	approved := body["data"].(map[string]any)
	if approved["status"] != "Approved" || approved["staff_note"] != "Confirmed" || approved["updated_at"] == nil {
		t.Fatalf("unexpected approved record %v", approved)
	}

	status, body = call(t, app, "GET", "/appointments", bob, nil)
	if status != fiber.StatusOK || len(body["data"].([]any)) != 0 {
		t.Fatalf("bob list: status %d body %v", status, body)
	}
	status, body = call(t, app, "GET", "/appointments", admin, nil)
	if status != fiber.StatusOK || len(body["data"].([]any)) != 1 {
		t.Fatalf("admin list: status %d body %v", status, body)
	}

	if status, _ := call(t, app, "DELETE", path, bob, nil); status != fiber.StatusForbidden {
		t.Fatalf("foreign delete: status %d", status)
	}
	if status, _ := call(t, app, "DELETE", path, alice, nil); status != fiber.StatusNoContent {
		t.Fatalf("owner delete: status %d", status)
	}
	if status, body := call(t, app, "DELETE", path, alice, nil); status != fiber.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("second delete: status %d body %v", status, body)
	}
}

func TestValidationErrorsCarryFieldDetails(t *testing.T) {
	app := newTestApp(t)
	alice, _ := register(t, app, "alice")

	status, body := call(t, app, "POST", "/appointments", alice, fiber.Map{
		"title": "", "date": inDays(-2), "start_time": "10:00", "end_time": "09:00",
	})
	if status != fiber.StatusBadRequest || errorCode(body) != "VALIDATION_FAILED" {
		t.Fatalf("status %d body %v", status, body)
	}
	details := body["error"].(map[string]any)["details"].(map[string]any)
	for _, field := range []string{"title", "date", "end_time"} {
		if _, ok := details[field]; !ok {
			t.Fatalf("missing %s in %v", field, details)
		}
	}
}

func TestAuthenticationAndRouting(t *testing.T) {
	app := newTestApp(t)
	alice, _ := register(t, app, "alice")

	if status, body := call(t, app, "GET", "/appointments", "", nil); status != fiber.StatusUnauthorized || errorCode(body) != "UNAUTHORIZED" {
		t.Fatalf("anonymous list: status %d body %v", status, body)
	}
	if status, _ := call(t, app, "GET", "/appointments", "garbage", nil); status != fiber.StatusUnauthorized {
		t.Fatalf("bad token: status %d", status)
	}
	if status, body := call(t, app, "GET", "/appointments/abc", alice, nil); status != fiber.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("non-integer id: status %d body %v", status, body)
	}
	if status, body := call(t, app, "GET", "/nowhere", "", nil); status != fiber.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("unknown route: status %d body %v", status, body)
	}
	if status, _ := call(t, app, "POST", "/auth/login", "", fiber.Map{"email": "alice@example.com", "password": "nope"}); status != fiber.StatusUnauthorized {
		t.Fatalf("bad login: status %d", status)
	}
	if status, _ := call(t, app, "GET", "/health/live", "", nil); status != fiber.StatusOK {
		t.Fatalf("live: status %d", status)
	}
	if status, _ := call(t, app, "GET", "/health/ready", "", nil); status != fiber.StatusOK {
		t.Fatalf("ready: status %d", status)
	}
}

func TestAdminRoutesAndFreshRoles(t *testing.T) {
	app := newTestApp(t)
	bob, bobID := register(t, app, "bob")
	admin := login(t, app, adminEmail, adminPassword)

	if status, _ := call(t, app, "GET", "/admin/users", bob, nil); status != fiber.StatusForbidden {
		t.Fatalf("customer on admin route: status %d", status)
	}
	status, body := call(t, app, "GET", "/admin/reports/overview", admin, nil)
	if status != fiber.StatusOK || body["data"].(map[string]any)["total_users"].(float64) != 2 {
		t.Fatalf("overview: status %d body %v", status, body)
	}

	status, body = call(t, app, "PUT", "/admin/users/"+bobID+"/roles", admin, fiber.Map{"roles": []string{"Staff"}})
	if status != fiber.StatusOK {
		t.Fatalf("set roles: status %d body %v", status, body)
	}
	// Same token, new role set: bob is now staff and no longer a customer.
	if status, _ := call(t, app, "POST", "/appointments", bob, fiber.Map{
		"title": "x", "date": inDays(2), "start_time": "09:00", "end_time": "10:00",
	}); status != fiber.StatusForbidden {
		t.Fatalf("staff create: status %d", status)
	}
	status, body = call(t, app, "GET", "/staff", bob, nil)
	if status != fiber.StatusOK || len(body["data"].([]any)) != 1 {
		t.Fatalf("staff directory: status %d body %v", status, body)
	}
	status, body = call(t, app, "GET", "/admin/reports/staff", admin, nil)
	if status != fiber.StatusOK || len(body["data"].([]any)) != 1 {
		t.Fatalf("staff report: status %d body %v", status, body)
	}

	_, adminID := sessionFrom(t, loginBody(t, app))
	if status, body := call(t, app, "DELETE", "/admin/users/"+adminID, admin, nil); status != fiber.StatusConflict || errorCode(body) != "CONFLICT" {
		t.Fatalf("self delete: status %d body %v", status, body)
	}
	if status, _ := call(t, app, "DELETE", "/admin/users/"+bobID, admin, nil); status != fiber.StatusNoContent {
		t.Fatalf("delete bob: status %d", status)
	}
	if status, _ := call(t, app, "GET", "/appointments", bob, nil); status != fiber.StatusUnauthorized {
		t.Fatalf("deleted user token: status %d", status)
	}
}

func loginBody(t *testing.T, app *fiber.App) map[string]any {
	t.Helper()
	_, body := call(t, app, "POST", "/auth/login", "", fiber.Map{"email": adminEmail, "password": adminPassword})
	return body
}

func jsonID(v any) string {
	raw, _ := json.Marshal(v)
	return string(raw)
}
