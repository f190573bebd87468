package service

import (
	"context"
	"testing"
	"time"

	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/repository"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// fakeClock advances one second per reading so successive timestamps are strictly ordered.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(time.Second)
	return now
}

// Tuesday, 10 March 2026.
func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

type recordingDispatcher struct {
	events.Dispatcher
	published []events.Event
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{Dispatcher: events.NewInMemoryDispatcher()}
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return d.Dispatcher.Publish(ctx, event)
}

func (d *recordingDispatcher) types() []events.EventType {
	out := make([]events.EventType, len(d.published))
	for i, e := range d.published {
		out[i] = e.Type
	}
	return out
}

func createUser(t *testing.T, users repository.UserRepository, first string, roles ...domain.Role) domain.Caller {
	t.Helper()
	u := &domain.User{FirstName: first, LastName: "Test", Email: first + "@example.com", Roles: roles}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", first, err)
	}
	return u.Caller()
}

func expectCode(t *testing.T, err error, code string) {
	t.Helper()
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func expectFieldError(t *testing.T, err error, field string) {
	t.Helper()
	expectCode(t, err, apperrors.CodeValidationFailed)
	if _, ok := apperrors.ToDomainError(err).Details[field]; !ok {
		t.Fatalf("expected field error for %s, got %v", field, apperrors.ToDomainError(err).Details)
	}
}

func ptr[T any](v T) *T {
	return &v
}
