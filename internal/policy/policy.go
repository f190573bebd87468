// Package policy holds the single authorization decision for appointment operations.
// It has no persistence dependencies; callers pass the stored record they re-fetched.
package policy

import "github.com/spec-kit/appointment-service/internal/domain"

// Operation names an action against an appointment.
type Operation string

const (
	OpViewList     Operation = "view_list"
	OpViewDetail   Operation = "view_detail"
	OpCreate       Operation = "create"
	OpEdit         Operation = "edit"
	OpDelete       Operation = "delete"
	OpChangeStatus Operation = "change_status"
)

// Can decides whether caller may perform op on appt. Admin supersedes every restriction.
// A caller holding several roles is permitted when any of them grants the operation.
// appt may be nil for OpViewList and OpCreate.
func Can(caller domain.Caller, appt *domain.Appointment, op Operation) bool {
	if caller.IsAdmin() {
		return true
	}
	switch op {
	case OpViewList:
		return true
	case OpCreate:
		return caller.Has(domain.RoleCustomer)
	}
	if appt == nil {
		return false
	}
	owner := appt.CustomerID == caller.ID
	switch op {
	case OpViewDetail:
		return owner || appt.AssignedTo(caller.ID)
	case OpEdit, OpDelete:
		return owner
	case OpChangeStatus:
		return caller.Has(domain.RoleStaff) && appt.AssignedTo(caller.ID)
	default:
		return false
	}
}

// ScopeKind selects which records a listing may return.
type ScopeKind int

const (
	// ScopeAll returns every record.
	ScopeAll ScopeKind = iota
	// ScopeCustomer returns records where customer_id matches.
	ScopeCustomer
	// ScopeStaff returns records where staff_id matches.
	ScopeStaff
	// ScopeParticipant returns records where either customer_id or staff_id matches.
	ScopeParticipant
)

// ListScope is the query restriction for OpViewList.
type ListScope struct {
	Kind   ScopeKind
	UserID string
}

// ScopeFor derives the listing filter for caller. Callers without Admin or Staff fall back to
// their own bookings, which is the Customer view.
func ScopeFor(caller domain.Caller) ListScope {
	switch {
	case caller.IsAdmin():
		return ListScope{Kind: ScopeAll}
	case caller.Has(domain.RoleStaff) && caller.Has(domain.RoleCustomer):
		return ListScope{Kind: ScopeParticipant, UserID: caller.ID}
	case caller.Has(domain.RoleStaff):
		return ListScope{Kind: ScopeStaff, UserID: caller.ID}
	default:
		return ListScope{Kind: ScopeCustomer, UserID: caller.ID}
	}
}
