package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/appointment-service/internal/domain"
)

// AppointmentFilter narrows listings and counts. Nil fields are ignored.
type AppointmentFilter struct {
	CustomerID *string
	StaffID    *string
	// InvolvingUserID matches records where the user is either the customer or the assigned staff.
	InvolvingUserID *string
	Status          *domain.AppointmentStatus
	DateFrom        *time.Time // inclusive
	DateTo          *time.Time // exclusive
}

// AppointmentRepository encapsulates appointment persistence.
type AppointmentRepository interface {
	Create(ctx context.Context, appt *domain.Appointment) error
	GetByID(ctx context.Context, id int64) (*domain.Appointment, error)
	// Update persists appt only if the stored updated_at still equals expectedUpdatedAt.
	Update(ctx context.Context, appt *domain.Appointment, expectedUpdatedAt *time.Time) error
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
	// List orders by date desc, start time desc, id desc.
	List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error)
	Count(ctx context.Context, filter AppointmentFilter) (int, error)
}

type appointmentRepository struct {
	pool *pgxpool.Pool
}

// NewAppointmentRepository returns a Postgres-backed implementation.
func NewAppointmentRepository(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepository{pool: pool}
}

const appointmentColumns = `id, customer_id, staff_id, appointment_date, start_time, end_time,
               title, description, status, staff_note, created_at, updated_at`

func (r *appointmentRepository) Create(ctx context.Context, appt *domain.Appointment) error {
	const query = `
        INSERT INTO appointments (customer_id, staff_id, appointment_date, start_time, end_time, title, description, status, staff_note, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id`
	return r.pool.QueryRow(ctx, query,
		appt.CustomerID,
		appt.StaffID,
		appt.Date,
		clockToPg(appt.StartTime),
		clockToPg(appt.EndTime),
		appt.Title,
		appt.Description,
		appt.Status,
		appt.StaffNote,
		appt.CreatedAt,
	).Scan(&appt.ID)
}

func (r *appointmentRepository) Update(ctx context.Context, appt *domain.Appointment, expectedUpdatedAt *time.Time) error {
	const query = `
        UPDATE appointments SET staff_id=$1, appointment_date=$2, start_time=$3, end_time=$4, title=$5,
            description=$6, status=$7, staff_note=$8, updated_at=$9
        WHERE id=$10 AND updated_at IS NOT DISTINCT FROM $11`
	cmd, err := r.pool.Exec(ctx, query,
		appt.StaffID,
		appt.Date,
		clockToPg(appt.StartTime),
		clockToPg(appt.EndTime),
		appt.Title,
		appt.Description,
		appt.Status,
		appt.StaffNote,
		appt.UpdatedAt,
		appt.ID,
		expectedUpdatedAt,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (r *appointmentRepository) GetByID(ctx context.Context, id int64) (*domain.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id=$1`
	appt, err := scanAppointment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapNoRows(err)
	}
	return appt, nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id int64) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *appointmentRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM appointments WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (r *appointmentRepository) List(ctx context.Context, filter AppointmentFilter) ([]domain.Appointment, error) {
	where, args := buildAppointmentWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM appointments WHERE %s
             ORDER BY appointment_date DESC, start_time DESC, id DESC`, appointmentColumns, where)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *appt)
	}
	return result, rows.Err()
}

func (r *appointmentRepository) Count(ctx context.Context, filter AppointmentFilter) (int, error) {
	where, args := buildAppointmentWhere(filter)
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE `+where, args...).Scan(&count)
	return count, err
}

func buildAppointmentWhere(filter AppointmentFilter) (string, []any) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CustomerID != nil {
		args = append(args, *filter.CustomerID)
		clauses = append(clauses, fmt.Sprintf("customer_id=$%d", len(args)))
	}
	if filter.StaffID != nil {
		args = append(args, *filter.StaffID)
		clauses = append(clauses, fmt.Sprintf("staff_id=$%d", len(args)))
	}
	if filter.InvolvingUserID != nil {
		args = append(args, *filter.InvolvingUserID)
		clauses = append(clauses, fmt.Sprintf("(customer_id=$%d OR staff_id=$%d)", len(args), len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.DateFrom != nil {
		args = append(args, *filter.DateFrom)
		clauses = append(clauses, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if filter.DateTo != nil {
		args = append(args, *filter.DateTo)
		clauses = append(clauses, fmt.Sprintf("appointment_date < $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func scanAppointment(row pgx.Row) (*domain.Appointment, error) {
	var (
		appt       domain.Appointment
		start, end pgtype.Time
	)
	if err := row.Scan(
		&appt.ID,
		&appt.CustomerID,
		&appt.StaffID,
		&appt.Date,
		&start,
		&end,
		&appt.Title,
		&appt.Description,
		&appt.Status,
		&appt.StaffNote,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	); err != nil {
		return nil, err
	}
	appt.Date = domain.CivilDate(appt.Date)
	appt.StartTime = clockFromPg(start)
	appt.EndTime = clockFromPg(end)
	return &appt, nil
}

func clockToPg(c domain.ClockTime) pgtype.Time {
	return pgtype.Time{Microseconds: time.Duration(c).Microseconds(), Valid: true}
}

func clockFromPg(t pgtype.Time) domain.ClockTime {
	return domain.ClockTime(time.Duration(t.Microseconds) * time.Microsecond)
}
