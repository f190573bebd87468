package service

import (
	"context"
	"testing"

	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/repository"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

func TestSetRoles(t *testing.T) {
	store := repository.NewMemoryStore()
	svc := NewUserService(store.Users(), nil, nil)
	ctx := context.Background()
	admin := createUser(t, store.Users(), "root", domain.RoleAdmin)
	bob := createUser(t, store.Users(), "bob", domain.RoleCustomer)

	_, err := svc.SetRoles(ctx, admin, bob.ID, []string{"Customer", "Wizard"})
	expectFieldError(t, err, "roles")

	user, err := svc.SetRoles(ctx, admin, bob.ID, []string{"Staff", "Customer", "Staff"})
	if err != nil {
		t.Fatalf("set roles failed: %v", err)
	}
	if len(user.Roles) != 2 || !user.HasRole(domain.RoleStaff) || !user.HasRole(domain.RoleCustomer) {
		t.Fatalf("unexpected roles %v", user.Roles)
	}

	staff, _ := svc.ListStaff(ctx)
	if len(staff) != 1 || staff[0].ID != bob.ID {
		t.Fatalf("expected bob in staff directory, got %+v", staff)
	}

	_, err = svc.SetRoles(ctx, admin, "missing", []string{"Staff"})
	expectCode(t, err, apperrors.CodeNotFound)
}

func TestDeleteUserRules(t *testing.T) {
	f := newApptFixture(t, false)
	ctx := context.Background()
	svc := NewUserService(f.store.Users(), f.dispatcher, nil)

	input := checkup("2026-03-11", "09:00", "10:00")
	input.StaffID = ptr(f.staff.ID)
	appt := f.book(t, f.alice, input)

	expectCode(t, svc.DeleteUser(ctx, f.admin, f.admin.ID), apperrors.CodeConflict)
	expectCode(t, svc.DeleteUser(ctx, f.admin, f.alice.ID), apperrors.CodeConflict)
	expectCode(t, svc.DeleteUser(ctx, f.admin, "missing"), apperrors.CodeNotFound)

	if err := svc.DeleteUser(ctx, f.admin, f.staff.ID); err != nil {
		t.Fatalf("delete staff failed: %v", err)
	}
	stored, err := f.store.Appointments().GetByID(ctx, appt.ID)
	if err != nil {
		t.Fatalf("appointment should survive staff deletion: %v", err)
	}
	if stored.StaffID != nil {
		t.Fatal("expected staff assignment cleared")
	}

	users, _ := svc.ListUsers(ctx)
	if len(users) != 4 {
		t.Fatalf("expected 4 remaining users, got %d", len(users))
	}
}
