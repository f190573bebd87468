package service

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/appointment-service/internal/domain"
	"github.com/spec-kit/appointment-service/internal/events"
	"github.com/spec-kit/appointment-service/internal/observability"
	"github.com/spec-kit/appointment-service/internal/repository"
	apperrors "github.com/spec-kit/appointment-service/pkg/util"
)

const overviewCacheKey = "overview"

// SnapshotCache stores report snapshots between requests.
type SnapshotCache interface {
	Load(ctx context.Context, key string, dst any) (bool, error)
	Store(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// DailyCount is the number of appointments on one calendar date.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// OverviewReport summarizes the appointment store.
type OverviewReport struct {
	TotalAppointments     int          `json:"total_appointments"`
	PendingAppointments   int          `json:"pending_appointments"`
	ApprovedAppointments  int          `json:"approved_appointments"`
	RejectedAppointments  int          `json:"rejected_appointments"`
	CancelledAppointments int          `json:"cancelled_appointments"`
	TodayAppointments     int          `json:"today_appointments"`
	ThisWeekAppointments  int          `json:"this_week_appointments"`
	ThisMonthAppointments int          `json:"this_month_appointments"`
	ThisWeekApproved      int          `json:"this_week_approved"`
	ThisWeekRejected      int          `json:"this_week_rejected"`
	ThisMonthApproved     int          `json:"this_month_approved"`
	ThisMonthRejected     int          `json:"this_month_rejected"`
	TotalUsers            int          `json:"total_users"`
	TotalCustomers        int          `json:"total_customers"`
	TotalStaff            int          `json:"total_staff"`
	Last7Days             []DailyCount `json:"last_7_days"`
	GeneratedAt           time.Time    `json:"generated_at"`
}

// StaffReportRow is one staff member's rollup.
type StaffReportRow struct {
	StaffID   string `json:"staff_id"`
	StaffName string `json:"staff_name"`
	Email     string `json:"email"`
	Total     int    `json:"total"`
	Approved  int    `json:"approved"`
	Rejected  int    `json:"rejected"`
	Pending   int    `json:"pending"`
}

// ReportService computes read-only rollups.
type ReportService struct {
	appointments repository.AppointmentRepository
	users        repository.UserRepository
	cache        SnapshotCache
	ttl          time.Duration
	bounded      bool
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger

	// generation counts invalidations; a snapshot computed across one is not stored.
	generation atomic.Uint64
}

// ReportDependencies bundles collaborators for the report service.
type ReportDependencies struct {
	AppointmentRepo repository.AppointmentRepository
	UserRepo        repository.UserRepository
	Cache           SnapshotCache
	CacheTTL        time.Duration
	BoundedWindows  bool
	Location        *time.Location
	Now             func() time.Time
	Logger          *zap.Logger
}

// NewReportService constructs the service.
func NewReportService(deps ReportDependencies) *ReportService {
	s := &ReportService{
		appointments: deps.AppointmentRepo,
		users:        deps.UserRepo,
		cache:        deps.Cache,
		ttl:          deps.CacheTTL,
		bounded:      deps.BoundedWindows,
		loc:          deps.Location,
		now:          deps.Now,
		logger:       deps.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// RegisterHandlers drops the cached overview whenever appointments or users change.
func (s *ReportService) RegisterHandlers(d events.Dispatcher) {
	if d == nil || s.cache == nil {
		return
	}
	events.SubscribeAll(d, func(ctx context.Context, _ events.Event) error {
		s.generation.Add(1)
		return s.cache.Invalidate(ctx, overviewCacheKey)
	}, events.AllEventTypes()...)
}

// Overview returns the dashboard counters, served from cache when fresh.
func (s *ReportService) Overview(ctx context.Context) (*OverviewReport, error) {
	ctx, span := observability.Tracer().Start(ctx, "ReportService.Overview")
	defer span.End()

	if s.cache != nil && s.ttl > 0 {
		var cached OverviewReport
		hit, err := s.cache.Load(ctx, overviewCacheKey, &cached)
		if err != nil {
			s.logger.Warn("report cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	generation := s.generation.Load()
	report, err := s.computeOverview(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	if s.cache != nil && s.ttl > 0 {
		if s.generation.Load() != generation {
			s.logger.Debug("report snapshot outdated by concurrent change; not caching")
		} else if err := s.cache.Store(ctx, overviewCacheKey, report, s.ttl); err != nil {
			s.logger.Warn("report cache write failed", zap.Error(err))
		}
	}
	return report, nil
}

func (s *ReportService) computeOverview(ctx context.Context) (*OverviewReport, error) {
	now := s.now().In(s.loc)
	today := domain.CivilDate(now)
	tomorrow := today.AddDate(0, 0, 1)
	weekStart := today.AddDate(0, 0, -int(today.Weekday()))
	monthStart := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	// Week and month count every appointment dated from the period start onward unless bounded.
	var weekEnd, monthEnd *time.Time
	if s.bounded {
		we, me := weekStart.AddDate(0, 0, 7), monthStart.AddDate(0, 1, 0)
		weekEnd, monthEnd = &we, &me
	}

	report := &OverviewReport{GeneratedAt: now.UTC()}
	c := &counter{ctx: ctx, repo: s.appointments}

	report.TotalAppointments = c.count(nil, nil, nil)
	report.PendingAppointments = c.count(status(domain.StatusPending), nil, nil)
	report.ApprovedAppointments = c.count(status(domain.StatusApproved), nil, nil)
	report.RejectedAppointments = c.count(status(domain.StatusRejected), nil, nil)
	report.CancelledAppointments = c.count(status(domain.StatusCancelled), nil, nil)

	report.TodayAppointments = c.count(nil, &today, &tomorrow)
	report.ThisWeekAppointments = c.count(nil, &weekStart, weekEnd)
	report.ThisMonthAppointments = c.count(nil, &monthStart, monthEnd)
	report.ThisWeekApproved = c.count(status(domain.StatusApproved), &weekStart, weekEnd)
	report.ThisWeekRejected = c.count(status(domain.StatusRejected), &weekStart, weekEnd)
	report.ThisMonthApproved = c.count(status(domain.StatusApproved), &monthStart, monthEnd)
	report.ThisMonthRejected = c.count(status(domain.StatusRejected), &monthStart, monthEnd)

	report.Last7Days = make([]DailyCount, 0, 7)
	for i := 6; i >= 0; i-- {
		from := today.AddDate(0, 0, -i)
		to := from.AddDate(0, 0, 1)
		report.Last7Days = append(report.Last7Days, DailyCount{
			Date:  from.Format(domain.DateLayout),
			Count: c.count(nil, &from, &to),
		})
	}
	if c.err != nil {
		return nil, c.err
	}

	var err error
	if report.TotalUsers, err = s.users.Count(ctx); err != nil {
		return nil, err
	}
	customers, err := s.users.ListByRole(ctx, domain.RoleCustomer)
	if err != nil {
		return nil, err
	}
	staff, err := s.users.ListByRole(ctx, domain.RoleStaff)
	if err != nil {
		return nil, err
	}
	report.TotalCustomers = len(customers)
	report.TotalStaff = len(staff)
	return report, nil
}

// StaffReport returns per-staff totals sorted by total descending. Ties keep directory order.
func (s *ReportService) StaffReport(ctx context.Context) ([]StaffReportRow, error) {
	ctx, span := observability.Tracer().Start(ctx, "ReportService.StaffReport")
	defer span.End()

	staff, err := s.users.ListByRole(ctx, domain.RoleStaff)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	rows := make([]StaffReportRow, 0, len(staff))
	for _, member := range staff {
		id := member.ID
		c := &counter{ctx: ctx, repo: s.appointments, staffID: &id}
		row := StaffReportRow{
			StaffID:   member.ID,
			StaffName: member.FullName(),
			Email:     member.Email,
			Total:     c.count(nil, nil, nil),
			Approved:  c.count(status(domain.StatusApproved), nil, nil),
			Rejected:  c.count(status(domain.StatusRejected), nil, nil),
			Pending:   c.count(status(domain.StatusPending), nil, nil),
		}
		if c.err != nil {
			return nil, apperrors.NewInternalError(c.err)
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Total > rows[j].Total })
	return rows, nil
}

// counter runs Count queries and keeps the first error.
type counter struct {
	ctx     context.Context
	repo    repository.AppointmentRepository
	staffID *string
	err     error
}

func (c *counter) count(st *domain.AppointmentStatus, from, to *time.Time) int {
	if c.err != nil {
		return 0
	}
	n, err := c.repo.Count(c.ctx, repository.AppointmentFilter{
		StaffID:  c.staffID,
		Status:   st,
		DateFrom: from,
		DateTo:   to,
	})
	if err != nil {
		c.err = err
		return 0
	}
	return n
}

func status(s domain.AppointmentStatus) *domain.AppointmentStatus {
	return &s
}
