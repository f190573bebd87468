package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/appointment-service/internal/domain"
)

// MemoryStore keeps users and appointments in process memory. It enforces the same referential
// rules as the Postgres schema: deleting a customer is restricted, deleting staff nulls assignments.
type MemoryStore struct {
	mu           sync.RWMutex
	users        map[string]*domain.User
	userOrder    []string
	appointments map[int64]*domain.Appointment
	nextID       int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*domain.User),
		appointments: make(map[int64]*domain.Appointment),
	}
}

// Appointments exposes the store as an AppointmentRepository.
func (s *MemoryStore) Appointments() AppointmentRepository {
	return memoryAppointments{s}
}

// Users exposes the store as a UserRepository.
func (s *MemoryStore) Users() UserRepository {
	return memoryUsers{s}
}

type memoryAppointments struct{ s *MemoryStore }

func (m memoryAppointments) Create(_ context.Context, appt *domain.Appointment) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	m.s.nextID++
	appt.ID = m.s.nextID
	m.s.appointments[appt.ID] = cloneAppointment(appt)
	return nil
}

func (m memoryAppointments) GetByID(_ context.Context, id int64) (*domain.Appointment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	appt, ok := m.s.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAppointment(appt), nil
}

func (m memoryAppointments) Update(_ context.Context, appt *domain.Appointment, expectedUpdatedAt *time.Time) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.appointments[appt.ID]
	if !ok || !sameInstant(stored.UpdatedAt, expectedUpdatedAt) {
		return ErrConflict
	}
	next := cloneAppointment(appt)
	next.CustomerID = stored.CustomerID
	next.CreatedAt = stored.CreatedAt
	m.s.appointments[appt.ID] = next
	return nil
}

func (m memoryAppointments) Delete(_ context.Context, id int64) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.appointments[id]; !ok {
		return ErrNotFound
	}
	delete(m.s.appointments, id)
	return nil
}

func (m memoryAppointments) Exists(_ context.Context, id int64) (bool, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	_, ok := m.s.appointments[id]
	return ok, nil
}

func (m memoryAppointments) List(_ context.Context, filter AppointmentFilter) ([]domain.Appointment, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.Appointment
	for _, appt := range m.s.appointments {
		if matchesFilter(appt, filter) {
			result = append(result, *cloneAppointment(appt))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime > b.StartTime
		}
		return a.ID > b.ID
	})
	return result, nil
}

func (m memoryAppointments) Count(_ context.Context, filter AppointmentFilter) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	count := 0
	for _, appt := range m.s.appointments {
		if matchesFilter(appt, filter) {
			count++
		}
	}
	return count, nil
}

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.s.emailTaken(user.Email, "") {
		return ErrEmailTaken
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.s.users[user.ID] = cloneUser(user)
	m.s.userOrder = append(m.s.userOrder, user.ID)
	return nil
}

func (m memoryUsers) Update(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.users[user.ID]
	if !ok {
		return ErrNotFound
	}
	if m.s.emailTaken(user.Email, user.ID) {
		return ErrEmailTaken
	}
	stored.FirstName = user.FirstName
	stored.LastName = user.LastName
	stored.Email = user.Email
	stored.PasswordHash = user.PasswordHash
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m memoryUsers) SetRoles(_ context.Context, id string, roles []domain.Role) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.users[id]
	if !ok {
		return ErrNotFound
	}
	stored.Roles = append([]domain.Role(nil), roles...)
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	user, ok := m.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (m memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, id := range m.s.userOrder {
		if u := m.s.users[id]; strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, ErrNotFound
}

func (m memoryUsers) List(_ context.Context) ([]domain.User, error) {
	return m.list(func(*domain.User) bool { return true }), nil
}

func (m memoryUsers) ListByRole(_ context.Context, role domain.Role) ([]domain.User, error) {
	return m.list(func(u *domain.User) bool { return u.HasRole(role) }), nil
}

func (m memoryUsers) Count(_ context.Context) (int, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	return len(m.s.users), nil
}

func (m memoryUsers) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.users[id]; !ok {
		return ErrNotFound
	}
	for _, appt := range m.s.appointments {
		if appt.CustomerID == id {
			return ErrCustomerHasAppointments
		}
	}
	for _, appt := range m.s.appointments {
		if appt.AssignedTo(id) {
			appt.StaffID = nil
		}
	}
	delete(m.s.users, id)
	for i, existing := range m.s.userOrder {
		if existing == id {
			m.s.userOrder = append(m.s.userOrder[:i], m.s.userOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m memoryUsers) list(keep func(*domain.User) bool) []domain.User {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.User
	for _, id := range m.s.userOrder {
		if u := m.s.users[id]; keep(u) {
			result = append(result, *cloneUser(u))
		}
	}
	return result
}

// emailTaken must be called with the lock held.
func (s *MemoryStore) emailTaken(email, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

func matchesFilter(appt *domain.Appointment, f AppointmentFilter) bool {
	if f.CustomerID != nil && appt.CustomerID != *f.CustomerID {
		return false
	}
	if f.StaffID != nil && !appt.AssignedTo(*f.StaffID) {
		return false
	}
	if f.InvolvingUserID != nil && appt.CustomerID != *f.InvolvingUserID && !appt.AssignedTo(*f.InvolvingUserID) {
		return false
	}
	if f.Status != nil && appt.Status != *f.Status {
		return false
	}
	if f.DateFrom != nil && appt.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && !appt.Date.Before(*f.DateTo) {
		return false
	}
	return true
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneAppointment(appt *domain.Appointment) *domain.Appointment {
	c := *appt
	if appt.StaffID != nil {
		staff := *appt.StaffID
		c.StaffID = &staff
	}
	if appt.UpdatedAt != nil {
		updated := *appt.UpdatedAt
		c.UpdatedAt = &updated
	}
	return &c
}

func cloneUser(u *domain.User) *domain.User {
	c := *u
	c.Roles = append([]domain.Role(nil), u.Roles...)
	return &c
}
