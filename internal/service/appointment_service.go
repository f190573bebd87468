package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/observability"
	"github.com/spec-kit/appointment-service/internal/policy"
	"github.com/spec-kit/appointment-service/internal/repository"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

// strictTransitions is consulted only when strict mode is enabled.
var strictTransitions = map[domain.AppointmentStatus][]domain.AppointmentStatus{
	domain.StatusPending:  {domain.StatusApproved, domain.StatusRejected, domain.StatusCancelled},
	domain.StatusApproved: {domain.StatusCancelled},
}

// AppointmentService applies authorization and validation to appointment mutations.
type AppointmentService struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	loc          *time.Location
	strict       bool
	now          func() time.Time
}

// AppointmentDependencies bundles collaborators for the appointment service.
type AppointmentDependencies struct {
	AppointmentRepo   repository.AppointmentRepository
	UserRepo          repository.UserRepository
	Dispatcher        events.Dispatcher
	Logger            *zap.Logger
	Location          *time.Location
	StrictTransitions bool
	Now               func() time.Time
}

// AppointmentInput carries the caller-editable fields in wire form.
type AppointmentInput struct {
	Title       string
	Description string
	Date        string
	StartTime   string
	EndTime     string
	StaffID     *string
}

// ListOptions narrows a scoped listing.
type ListOptions struct {
	Status *domain.AppointmentStatus
}

// NewAppointmentService constructs the service.
func NewAppointmentService(deps AppointmentDependencies) *AppointmentService {
	s := &AppointmentService{
		appointments: deps.AppointmentRepo,
		users:        deps.UserRepo,
		dispatcher:   deps.Dispatcher,
		logger:       deps.Logger,
		loc:          deps.Location,
		strict:       deps.StrictTransitions,
		now:          deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Create books a new Pending appointment owned by the caller.
func (s *AppointmentService) Create(ctx context.Context, caller domain.Caller, input AppointmentInput) (*domain.Appointment, error) {
	ctx, span := s.startSpan(ctx, "AppointmentService.Create", caller)
	defer span.End()

	if !policy.Can(caller, nil, policy.OpCreate) {
		return nil, apperrors.NewForbidden("only customers can book appointments")
	}

	fields := fieldErrors{}
	draft := s.parseInput(input, fields)
	staffID := s.resolveStaff(ctx, input.StaffID, fields)
	if len(fields) > 0 {
		return nil, apperrors.NewFieldErrors(fields)
	}

	draft.CustomerID = caller.ID
	draft.StaffID = staffID
	draft.Status = domain.StatusPending
	draft.CreatedAt = s.timestamp()

	if err := s.appointments.Create(ctx, draft); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	span.SetAttributes(attribute.Int64("appointment.id", draft.ID))

	s.publish(ctx, events.NewAppointmentEvent(events.EventAppointmentCreated, draft.ID, caller.ID, draft.CreatedAt,
		events.NewAppointmentSnapshot(draft)))
	return draft, nil
}

// Edit updates the mutable fields of an appointment. Authorization is checked against the stored record.
func (s *AppointmentService) Edit(ctx context.Context, caller domain.Caller, id int64, input AppointmentInput) (*domain.Appointment, error) {
	ctx, span := s.startSpan(ctx, "AppointmentService.Edit", caller)
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment.id", id))

	stored, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(caller, stored, policy.OpEdit) {
		return nil, apperrors.NewForbidden("not allowed to edit this appointment")
	}

	fields := fieldErrors{}
	draft := s.parseInput(input, fields)
	staffID := stored.StaffID
	if caller.IsAdmin() {
		staffID = s.resolveStaff(ctx, input.StaffID, fields)
	}
	if len(fields) > 0 {
		return nil, apperrors.NewFieldErrors(fields)
	}

	next := *stored
	next.StaffID = staffID
	next.Date = draft.Date
	next.StartTime = draft.StartTime
	next.EndTime = draft.EndTime
	next.Title = draft.Title
	next.Description = draft.Description
	updatedAt := s.timestamp()
	next.UpdatedAt = &updatedAt

	if err := s.save(ctx, &next, stored.UpdatedAt); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewAppointmentEvent(events.EventAppointmentUpdated, next.ID, caller.ID, updatedAt,
		events.NewAppointmentSnapshot(&next)))
	return &next, nil
}

// Delete physically removes an appointment.
func (s *AppointmentService) Delete(ctx context.Context, caller domain.Caller, id int64) error {
	ctx, span := s.startSpan(ctx, "AppointmentService.Delete", caller)
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment.id", id))

	stored, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !policy.Can(caller, stored, policy.OpDelete) {
		return apperrors.NewForbidden("not allowed to delete this appointment")
	}

	if err := s.appointments.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFound(id)
		}
		return apperrors.NewInternalError(err)
	}

	s.publish(ctx, events.NewAppointmentEvent(events.EventAppointmentDeleted, id, caller.ID, s.timestamp(),
		events.AppointmentDeletedPayload{CustomerID: stored.CustomerID, StaffID: stored.StaffID}))
	return nil
}

// ChangeStatus sets the status and staff note of an appointment.
func (s *AppointmentService) ChangeStatus(ctx context.Context, caller domain.Caller, id int64, status, staffNote string) (*domain.Appointment, error) {
	ctx, span := s.startSpan(ctx, "AppointmentService.ChangeStatus", caller)
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment.id", id))

	stored, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(caller, stored, policy.OpChangeStatus) {
		return nil, apperrors.NewForbidden("not allowed to change the status of this appointment")
	}

	fields := fieldErrors{}
	newStatus, ok := domain.ParseStatus(strings.TrimSpace(status))
	if !ok {
		fields.add("status", "must be one of Pending, Approved, Rejected, Cancelled")
	} else if s.strict && !transitionAllowed(stored.Status, newStatus) {
		fields.add("status", fmt.Sprintf("transition from %s to %s is not allowed", stored.Status, newStatus))
	}
	staffNote = strings.TrimSpace(staffNote)
	fields.maxLength("staff_note", staffNote, MaxStaffNoteLength)
	if len(fields) > 0 {
		return nil, apperrors.NewFieldErrors(fields)
	}

	next := *stored
	next.Status = newStatus
	next.StaffNote = staffNote
	updatedAt := s.timestamp()
	next.UpdatedAt = &updatedAt

	if err := s.save(ctx, &next, stored.UpdatedAt); err != nil {
		return nil, err
	}

	s.publish(ctx, events.NewAppointmentEvent(events.EventAppointmentStatusChanged, id, caller.ID, updatedAt,
		events.AppointmentStatusChangedPayload{OldStatus: stored.Status, NewStatus: newStatus, StaffNote: staffNote}))
	return &next, nil
}

// List returns the appointments visible to caller, newest first.
func (s *AppointmentService) List(ctx context.Context, caller domain.Caller, opts ListOptions) ([]domain.Appointment, error) {
	ctx, span := s.startSpan(ctx, "AppointmentService.List", caller)
	defer span.End()

	if !policy.Can(caller, nil, policy.OpViewList) {
		return nil, apperrors.NewForbidden("not allowed to list appointments")
	}

	filter := scopeFilter(policy.ScopeFor(caller))
	filter.Status = opts.Status
	items, err := s.appointments.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return items, nil
}

// Details fetches one appointment. NotFound is decided before authorization.
func (s *AppointmentService) Details(ctx context.Context, caller domain.Caller, id int64) (*domain.Appointment, error) {
	ctx, span := s.startSpan(ctx, "AppointmentService.Details", caller)
	defer span.End()
	span.SetAttributes(attribute.Int64("appointment.id", id))

	stored, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.Can(caller, stored, policy.OpViewDetail) {
		return nil, apperrors.NewForbidden("not allowed to view this appointment")
	}
	return stored, nil
}

// Today returns the current civil date in the configured timezone.
func (s *AppointmentService) Today() time.Time {
	return domain.CivilDate(s.now().In(s.loc))
}

func (s *AppointmentService) parseInput(input AppointmentInput, fields fieldErrors) *domain.Appointment {
	appt := &domain.Appointment{
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
	}
	if fields.required("title", appt.Title) {
		fields.maxLength("title", appt.Title, MaxTitleLength)
	}
	fields.maxLength("description", appt.Description, MaxDescriptionLength)

	if fields.required("date", input.Date) {
		date, err := domain.ParseDate(strings.TrimSpace(input.Date))
		switch {
		case err != nil:
			fields.add("date", err.Error())
		case date.Before(s.Today()):
			fields.add("date", "must be today or later")
		default:
			appt.Date = date
		}
	}

	startOK, endOK := false, false
	if fields.required("start_time", input.StartTime) {
		start, err := domain.ParseClockTime(strings.TrimSpace(input.StartTime))
		if err != nil {
			fields.add("start_time", err.Error())
		} else {
			appt.StartTime, startOK = start, true
		}
	}
	if fields.required("end_time", input.EndTime) {
		end, err := domain.ParseClockTime(strings.TrimSpace(input.EndTime))
		if err != nil {
			fields.add("end_time", err.Error())
		} else {
			appt.EndTime, endOK = end, true
		}
	}
	if startOK && endOK && appt.EndTime <= appt.StartTime {
		fields.add("end_time", "must be after start time")
	}
	return appt
}

// resolveStaff normalizes an optional staff id; a set id must belong to a Staff user.
func (s *AppointmentService) resolveStaff(ctx context.Context, staffID *string, fields fieldErrors) *string {
	if staffID == nil || strings.TrimSpace(*staffID) == "" {
		return nil
	}
	id := strings.TrimSpace(*staffID)
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("staff lookup failed", zap.String("staff_id", id), zap.Error(err))
		}
		fields.add("staff_id", "must reference a staff member")
		return nil
	}
	if !user.HasRole(domain.RoleStaff) {
		fields.add("staff_id", "must reference a staff member")
		return nil
	}
	return &id
}

func (s *AppointmentService) load(ctx context.Context, id int64) (*domain.Appointment, error) {
	appt, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, apperrors.NewInternalError(err)
	}
	return appt, nil
}

// save writes next conditionally. On conflict the record is re-checked: gone maps to NotFound,
// still present is a fatal error.
func (s *AppointmentService) save(ctx context.Context, next *domain.Appointment, expected *time.Time) error {
	err := s.appointments.Update(ctx, next, expected)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrConflict) {
		return apperrors.NewInternalError(err)
	}
	exists, existsErr := s.appointments.Exists(ctx, next.ID)
	if existsErr != nil {
		return apperrors.NewInternalError(existsErr)
	}
	if !exists {
		return notFound(next.ID)
	}
	s.logger.Error("concurrent appointment update", zap.Int64("appointment_id", next.ID))
	return apperrors.NewInternalError(fmt.Errorf("appointment %d: %w", next.ID, err))
}

func (s *AppointmentService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *AppointmentService) startSpan(ctx context.Context, name string, caller domain.Caller) (context.Context, trace.Span) {
	return observability.Tracer().Start(ctx, name, trace.WithAttributes(attribute.String("caller.id", caller.ID)))
}

func (s *AppointmentService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handlers failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func transitionAllowed(from, to domain.AppointmentStatus) bool {
	for _, allowed := range strictTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func scopeFilter(scope policy.ListScope) repository.AppointmentFilter {
	id := scope.UserID
	switch scope.Kind {
	case policy.ScopeCustomer:
		return repository.AppointmentFilter{CustomerID: &id}
	case policy.ScopeStaff:
		return repository.AppointmentFilter{StaffID: &id}
	case policy.ScopeParticipant:
		return repository.AppointmentFilter{InvolvingUserID: &id}
	default:
		return repository.AppointmentFilter{}
	}
}

func notFound(id int64) error {
	return apperrors.NewNotFound("appointment", map[string]any{"id": id})
}
