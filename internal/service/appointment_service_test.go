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

type apptFixture struct {
	store      *repository.MemoryStore
	svc        *AppointmentService
	dispatcher *recordingDispatcher
	alice      domain.Caller
	bob        domain.Caller
	staff      domain.Caller
	otherStaff domain.Caller
	admin      domain.Caller
}

func newApptFixture(t *testing.T, strict bool) *apptFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &apptFixture{store: store, dispatcher: newRecordingDispatcher()}
	f.alice = createUser(t, store.Users(), "alice", domain.RoleCustomer)
	f.bob = createUser(t, store.Users(), "bob", domain.RoleCustomer)
	f.staff = createUser(t, store.Users(), "sam", domain.RoleStaff)
	f.otherStaff = createUser(t, store.Users(), "sue", domain.RoleStaff)
	f.admin = createUser(t, store.Users(), "root", domain.RoleAdmin)
	f.svc = NewAppointmentService(AppointmentDependencies{
		AppointmentRepo:   store.Appointments(),
		UserRepo:          store.Users(),
		Dispatcher:        f.dispatcher,
		StrictTransitions: strict,
		Now:               newClock().Now,
	})
	return f
}

func checkup(date, start, end string) AppointmentInput {
	return AppointmentInput{Title: "Checkup", Date: date, StartTime: start, EndTime: end}
}

func (f *apptFixture) book(t *testing.T, caller domain.Caller, input AppointmentInput) *domain.Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), caller, input)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return appt
}

func TestCreateCheckupForTomorrow(t *testing.T) {
	f := newApptFixture(t, false)
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	stored, err := f.store.Appointments().GetByID(context.Background(), appt.ID)
	if err != nil {
		t.Fatalf("stored record missing: %v", err)
	}
	if stored.Status != domain.StatusPending || stored.CustomerID != f.alice.ID {
		t.Fatalf("unexpected record: %+v", stored)
	}
	if stored.CreatedAt.IsZero() || stored.UpdatedAt != nil || stored.StaffID != nil {
		t.Fatalf("unexpected timestamps or staff: %+v", stored)
	}
	if stored.StartTime.String() != "09:00" || stored.EndTime.String() != "10:00" {
		t.Fatalf("unexpected times %s-%s", stored.StartTime, stored.EndTime)
	}
	if types := f.dispatcher.types(); len(types) != 1 || types[0] != events.EventAppointmentCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreateRejectsPastDate(t *testing.T) {
	f := newApptFixture(t, false)
	_, err := f.svc.Create(context.Background(), f.alice, checkup("2026-03-09", "09:00", "10:00"))
	expectFieldError(t, err, "date")

	n, _ := f.store.Appointments().Count(context.Background(), repository.AppointmentFilter{})
	if n != 0 {
		t.Fatalf("expected no records persisted, got %d", n)
	}
	if len(f.dispatcher.published) != 0 {
		t.Fatal("no event expected on validation failure")
	}
}

func TestEditRejectsPastDate(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))
	f.dispatcher.published = nil

	_, err := f.svc.Edit(ctx, f.alice, appt.ID, checkup("2026-03-01", "09:00", "10:00"))
	expectFieldError(t, err, "date")

	stored, err := f.store.Appointments().GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("stored record missing: %v", err)
	}
	if got := stored.Date.Format(domain.DateLayout); got != "2026-03-11" || stored.UpdatedAt != nil {
		t.Fatalf("record changed by rejected edit: date %s updated_at %v", got, stored.UpdatedAt)
	}
	if len(f.dispatcher.published) != 0 {
		t.Fatal("no event expected on validation failure")
	}
}

func TestCreateAcceptsToday(t *testing.T) {
	f := newApptFixture(t, false)
	f.book(t, f.alice, checkup("2026-03-10", "08:00", "08:30"))
}

func TestTimeOrderingEnforced(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	for _, tc := range []struct{ start, end string }{{"10:00", "10:00"}, {"11:00", "10:00"}} {
		_, err := f.svc.Create(ctx, f.alice, checkup("2026-03-11", tc.start, tc.end))
		expectFieldError(t, err, "end_time")
	}

	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))
	_, err := f.svc.Edit(ctx, f.alice, appt.ID, checkup("2026-03-11", "12:00", "11:59"))
	expectFieldError(t, err, "end_time")
}

func TestCreateCollectsEveryFieldError(t *testing.T) {
	f := newApptFixture(t, false)
	_, err := f.svc.Create(context.Background(), f.alice, AppointmentInput{Date: "11/03/2026", StartTime: "9am", EndTime: "10:00"})
	details := apperrors.ToDomainError(err).Details
	for _, field := range []string{"title", "date", "start_time"} {
		if _, ok := details[field]; !ok {
			t.Fatalf("missing %s in %v", field, details)
		}
	}
}

func TestCreateLengthBounds(t *testing.T) {
	f := newApptFixture(t, false)
	long := make([]byte, MaxTitleLength+1)
	for i := range long {
		long[i] = 'x'
	}
	input := checkup("2026-03-11", "09:00", "10:00")
	input.Title = string(long)
	_, err := f.svc.Create(context.Background(), f.alice, input)
	expectFieldError(t, err, "title")
}

func TestCreateRequiresCustomerRole(t *testing.T) {
	f := newApptFixture(t, false)
	_, err := f.svc.Create(context.Background(), f.staff, checkup("2026-03-11", "09:00", "10:00"))
	expectCode(t, err, apperrors.CodeForbidden)
}

func TestCreateStaffAssignmentMustReferenceStaff(t *testing.T) {
	f := newApptFixture(t, false)
	input := checkup("2026-03-11", "09:00", "10:00")
	input.StaffID = ptr(f.bob.ID)
	_, err := f.svc.Create(context.Background(), f.alice, input)
	expectFieldError(t, err, "staff_id")

	input.StaffID = ptr("missing-user")
	_, err = f.svc.Create(context.Background(), f.alice, input)
	expectFieldError(t, err, "staff_id")

	input.StaffID = ptr(f.staff.ID)
	appt := f.book(t, f.alice, input)
	if !appt.AssignedTo(f.staff.ID) {
		t.Fatalf("expected assignment to %s", f.staff.ID)
	}
}

func TestForeignCustomerIsForbidden(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	_, err := f.svc.Details(ctx, f.bob, appt.ID)
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.svc.Edit(ctx, f.bob, appt.ID, checkup("2026-03-12", "09:00", "10:00"))
	expectCode(t, err, apperrors.CodeForbidden)
	expectCode(t, f.svc.Delete(ctx, f.bob, appt.ID), apperrors.CodeForbidden)

	// Staff in addition to Customer does not grant access to someone else's booking.
	bobStaff := domain.Caller{ID: f.bob.ID, Roles: []domain.Role{domain.RoleCustomer, domain.RoleStaff}}
	_, err = f.svc.Details(ctx, bobStaff, appt.ID)
	expectCode(t, err, apperrors.CodeForbidden)

	bobAdmin := domain.Caller{ID: f.bob.ID, Roles: []domain.Role{domain.RoleCustomer, domain.RoleAdmin}}
	if _, err := f.svc.Details(ctx, bobAdmin, appt.ID); err != nil {
		t.Fatalf("admin should view: %v", err)
	}
	if err := f.svc.Delete(ctx, bobAdmin, appt.ID); err != nil {
		t.Fatalf("admin should delete: %v", err)
	}
}

func TestAssignedStaffMayChangeStatus(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	input := checkup("2026-03-11", "09:00", "10:00")
	input.StaffID = ptr(f.staff.ID)
	appt := f.book(t, f.alice, input)

	_, err := f.svc.ChangeStatus(ctx, f.otherStaff, appt.ID, "Approved", "")
	expectCode(t, err, apperrors.CodeForbidden)

	updated, err := f.svc.ChangeStatus(ctx, f.staff, appt.ID, "Rejected", "Fully booked")
	if err != nil {
		t.Fatalf("assigned staff change status: %v", err)
	}
	if updated.Status != domain.StatusRejected || updated.StaffNote != "Fully booked" {
		t.Fatalf("unexpected record %+v", updated)
	}

	// The owning customer cannot change status, and assigned staff cannot edit or delete.
	_, err = f.svc.ChangeStatus(ctx, f.alice, appt.ID, "Cancelled", "")
	expectCode(t, err, apperrors.CodeForbidden)
	_, err = f.svc.Edit(ctx, f.staff, appt.ID, input)
	expectCode(t, err, apperrors.CodeForbidden)
	expectCode(t, f.svc.Delete(ctx, f.staff, appt.ID), apperrors.CodeForbidden)

	if _, err := f.svc.Details(ctx, f.staff, appt.ID); err != nil {
		t.Fatalf("assigned staff should view details: %v", err)
	}
}

func TestAdminApprovesPendingAppointment(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	if _, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Approved", "Confirmed"); err != nil {
		t.Fatalf("change status failed: %v", err)
	}
	stored, _ := f.store.Appointments().GetByID(ctx, appt.ID)
	if stored.Status != domain.StatusApproved || stored.StaffNote != "Confirmed" {
		t.Fatalf("unexpected record %+v", stored)
	}
	if stored.UpdatedAt == nil || !stored.UpdatedAt.After(stored.CreatedAt) {
		t.Fatalf("expected updated_at after created_at, got %v / %v", stored.UpdatedAt, stored.CreatedAt)
	}
	last := f.dispatcher.published[len(f.dispatcher.published)-1]
	payload, ok := last.Payload.(events.AppointmentStatusChangedPayload)
	if !ok || payload.OldStatus != domain.StatusPending || payload.NewStatus != domain.StatusApproved {
		t.Fatalf("unexpected status event %+v", last)
	}
}

func TestChangeStatusValidatesValue(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	_, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Done", "")
	expectFieldError(t, err, "status")

	// Permissive mode accepts any transition within the set.
	for _, s := range []string{"Cancelled", "Approved", "Pending"} {
		if _, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, s, ""); err != nil {
			t.Fatalf("permissive transition to %s failed: %v", s, err)
		}
	}
}

func TestStrictTransitions(t *testing.T) {
	f := newApptFixture(t, true)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	if _, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Approved", ""); err != nil {
		t.Fatalf("Pending -> Approved should pass: %v", err)
	}
	_, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Rejected", "")
	expectFieldError(t, err, "status")
	if _, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Cancelled", ""); err != nil {
		t.Fatalf("Approved -> Cancelled should pass: %v", err)
	}
	_, err = f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Pending", "")
	expectFieldError(t, err, "status")
}

func TestListScopingAndOrder(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	a := f.book(t, f.alice, checkup("2026-03-12", "09:00", "10:00"))
	b := f.book(t, f.alice, checkup("2026-03-12", "14:00", "15:00"))
	c := f.book(t, f.alice, checkup("2026-03-15", "08:00", "09:00"))
	assigned := checkup("2026-03-13", "10:00", "11:00")
	assigned.StaffID = ptr(f.staff.ID)
	d := f.book(t, f.bob, assigned)

	assertIDs := func(caller domain.Caller, want ...int64) {
		t.Helper()
		got, err := f.svc.List(ctx, caller, ListOptions{})
		if err != nil {
			t.Fatalf("list failed: %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d records, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i].ID != want[i] {
				t.Fatalf("position %d: expected %d, got %d", i, want[i], got[i].ID)
			}
		}
	}

	assertIDs(f.alice, c.ID, b.ID, a.ID)
	assertIDs(f.bob, d.ID)
	assertIDs(f.staff, d.ID)
	assertIDs(f.otherStaff)
	assertIDs(f.admin, c.ID, d.ID, b.ID, a.ID)

	pending, err := f.svc.List(ctx, f.admin, ListOptions{Status: ptr(domain.StatusApproved)})
	if err != nil || len(pending) != 0 {
		t.Fatalf("expected no approved records, got %d (%v)", len(pending), err)
	}
}

func TestMissingRecordIsNotFoundBeforeForbidden(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	for _, caller := range []domain.Caller{f.bob, f.admin, f.staff} {
		expectCode(t, f.svc.Delete(ctx, caller, 999), apperrors.CodeNotFound)
		_, err := f.svc.Details(ctx, caller, 999)
		expectCode(t, err, apperrors.CodeNotFound)
		_, err = f.svc.Edit(ctx, caller, 999, checkup("2026-03-11", "09:00", "10:00"))
		expectCode(t, err, apperrors.CodeNotFound)
		_, err = f.svc.ChangeStatus(ctx, caller, 999, "Approved", "")
		expectCode(t, err, apperrors.CodeNotFound)
	}
}

func TestEditKeepsOwnershipAndGuardsAssignment(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))
	if _, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Approved", "ok"); err != nil {
		t.Fatalf("change status: %v", err)
	}

	input := AppointmentInput{Title: "Follow-up", Description: "bring results", Date: "2026-03-14", StartTime: "11:00", EndTime: "11:30", StaffID: ptr(f.staff.ID)}
	edited, err := f.svc.Edit(ctx, f.alice, appt.ID, input)
	if err != nil {
		t.Fatalf("owner edit failed: %v", err)
	}
	if edited.StaffID != nil {
		t.Fatal("non-admin must not change staff assignment")
	}
	if edited.CustomerID != f.alice.ID || edited.Status != domain.StatusApproved || edited.StaffNote != "ok" {
		t.Fatalf("immutable fields changed: %+v", edited)
	}
	if !edited.CreatedAt.Equal(appt.CreatedAt) || edited.Title != "Follow-up" {
		t.Fatalf("unexpected edit result: %+v", edited)
	}

	byAdmin, err := f.svc.Edit(ctx, f.admin, appt.ID, input)
	if err != nil {
		t.Fatalf("admin edit failed: %v", err)
	}
	if !byAdmin.AssignedTo(f.staff.ID) || byAdmin.CustomerID != f.alice.ID {
		t.Fatalf("admin edit should assign staff and keep owner: %+v", byAdmin)
	}
}

// conflictRepo simulates a concurrent writer between read and write.
type conflictRepo struct {
	repository.AppointmentRepository
	exists bool
}

func (r *conflictRepo) Update(context.Context, *domain.Appointment, *time.Time) error {
	return repository.ErrConflict
}

func (r *conflictRepo) Exists(context.Context, int64) (bool, error) {
	return r.exists, nil
}

func TestConcurrentEditMapping(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	repo := &conflictRepo{AppointmentRepository: f.store.Appointments()}
	svc := NewAppointmentService(AppointmentDependencies{AppointmentRepo: repo, UserRepo: f.store.Users(), Now: newClock().Now})

	_, err := svc.Edit(ctx, f.alice, appt.ID, checkup("2026-03-12", "09:00", "10:00"))
	expectCode(t, err, apperrors.CodeNotFound)

	repo.exists = true
	_, err = svc.Edit(ctx, f.alice, appt.ID, checkup("2026-03-12", "09:00", "10:00"))
	expectCode(t, err, apperrors.CodeInternal)
	_, err = svc.ChangeStatus(ctx, f.admin, appt.ID, "Approved", "")
	expectCode(t, err, apperrors.CodeInternal)
}

func TestStaleUpdateDetectedByStore(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))

	stale, _ := f.store.Appointments().GetByID(ctx, appt.ID)
	if _, err := f.svc.ChangeStatus(ctx, f.admin, appt.ID, "Approved", ""); err != nil {
		t.Fatalf("change status: %v", err)
	}
	now := time.Now()
	stale.UpdatedAt = &now
	if err := f.store.Appointments().Update(ctx, stale, nil); err != repository.ErrConflict {
		t.Fatalf("expected ErrConflict for stale write, got %v", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	appt := f.book(t, f.alice, checkup("2026-03-11", "09:00", "10:00"))
	if err := f.svc.Delete(ctx, f.alice, appt.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := f.svc.Details(ctx, f.alice, appt.ID); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	types := f.dispatcher.types()
	if types[len(types)-1] != events.EventAppointmentDeleted {
		t.Fatalf("expected delete event, got %v", types)
	}
}

func TestTodayUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*3600)
	svc := NewAppointmentService(AppointmentDependencies{
		Location: loc,
		Now:      func() time.Time { return time.Date(2026, time.March, 10, 20, 0, 0, 0, time.UTC) },
	})
	if got := svc.Today().Format(domain.DateLayout); got != "2026-03-11" {
		t.Fatalf("expected 2026-03-11, got %s", got)
	}
}
