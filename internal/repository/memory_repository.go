package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"

	"github.com/ledgerline/banking-support/internal/domain"
)

var (
	_ MessageRepository       = (*MemoryMessageRepository)(nil)
	_ SupportTicketRepository = (*MemorySupportTicketRepository)(nil)
	_ RequestRepository       = (*MemoryRequestRepository)(nil)
	_ UserRepository          = (*MemoryUserRepository)(nil)
	_ StaffRepository         = (*MemoryStaffRepository)(nil)
)

// MemoryMessageRepository keeps the message log in process memory (development/tests).
type MemoryMessageRepository struct {
	mu       sync.RWMutex
	messages []domain.Message
	byUser   map[string][]int
	last     time.Time
	now      func() time.Time
}

// NewMemoryMessageRepository creates an empty in-memory message log.
func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		byUser: make(map[string][]int),
		now:    time.Now,
	}
}

// WithClock replaces the timestamp source.
func (r *MemoryMessageRepository) WithClock(now func() time.Time) *MemoryMessageRepository {
	r.now = now
	return r
}

func (r *MemoryMessageRepository) Append(_ context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	created := r.now().UTC()
	// timestamps never run backwards within the log
	if created.Before(r.last) {
		created = r.last
	}
	r.last = created

	msg.ID = ulid.Make().String()
	msg.CreatedAt = created
	r.messages = append(r.messages, *msg)
	r.byUser[msg.UserID] = append(r.byUser[msg.UserID], len(r.messages)-1)
	return nil
}

func (r *MemoryMessageRepository) ListByUser(_ context.Context, userID string) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.byUser[userID]
	result := make([]domain.Message, 0, len(idx))
	for _, i := range idx {
		result = append(result, r.messages[i])
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Before(result[j]) })
	return result, nil
}

func (r *MemoryMessageRepository) ListNewestFirst(_ context.Context) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Message, len(r.messages))
	copy(result, r.messages)
	sort.SliceStable(result, func(i, j int) bool { return result[j].Before(result[i]) })
	return result, nil
}

// MemorySupportTicketRepository keeps tickets in memory.
type MemorySupportTicketRepository struct {
	mu      sync.RWMutex
	tickets []domain.SupportTicket
}

// NewMemorySupportTicketRepository creates an empty ticket store.
func NewMemorySupportTicketRepository() *MemorySupportTicketRepository {
	return &MemorySupportTicketRepository{}
}

func (r *MemorySupportTicketRepository) Create(_ context.Context, ticket *domain.SupportTicket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now().UTC()
	r.tickets = append(r.tickets, *ticket)
	return nil
}

func (r *MemorySupportTicketRepository) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.SupportTicket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	limit, offset = normalizePage(limit, offset, 20)

	owned := []domain.SupportTicket{}
	for i := len(r.tickets) - 1; i >= 0; i-- {
		if r.tickets[i].UserID == userID {
			owned = append(owned, r.tickets[i])
		}
	}
	return pageOf(owned, limit, offset), nil
}

// MemoryRequestRepository keeps service requests in memory, one slice per kind.
type MemoryRequestRepository struct {
	mu     sync.RWMutex
	byKind map[domain.RequestKind][]domain.ServiceRequest
}

// NewMemoryRequestRepository creates an empty request store.
func NewMemoryRequestRepository() *MemoryRequestRepository {
	return &MemoryRequestRepository{byKind: make(map[domain.RequestKind][]domain.ServiceRequest)}
}

func (r *MemoryRequestRepository) Create(_ context.Context, req *domain.ServiceRequest) error {
	if _, err := tableFor(req.Kind); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	req.ID = uuid.NewString()
	req.CreatedAt = time.Now().UTC()
	r.byKind[req.Kind] = append(r.byKind[req.Kind], cloneRequest(*req))
	return nil
}

func (r *MemoryRequestRepository) GetByID(_ context.Context, kind domain.RequestKind, id string) (*domain.ServiceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, req := range r.byKind[kind] {
		if req.ID == id {
			found := cloneRequest(req)
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryRequestRepository) ListByUser(_ context.Context, kind domain.RequestKind, userID string, limit, offset int) ([]domain.ServiceRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	limit, offset = normalizePage(limit, offset, 20)

	list := r.byKind[kind]
	owned := []domain.ServiceRequest{}
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].UserID == userID {
			owned = append(owned, cloneRequest(list[i]))
		}
	}
	return pageOf(owned, limit, offset), nil
}

func (r *MemoryRequestRepository) MarkReviewed(_ context.Context, kind domain.RequestKind, id, staffID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.byKind[kind]
	for i := range list {
		if list[i].ID != id {
			continue
		}
		if list[i].Status == domain.RequestStatusReviewed {
			return pgx.ErrNoRows
		}
		reviewer := staffID
		reviewedAt := at
		list[i].Status = domain.RequestStatusReviewed
		list[i].ReviewedAt = &reviewedAt
		list[i].ReviewedBy = &reviewer
		return nil
	}
	return pgx.ErrNoRows
}

func cloneRequest(req domain.ServiceRequest) domain.ServiceRequest {
	if req.Details != nil {
		details := make(map[string]string, len(req.Details))
		for k, v := range req.Details {
			details[k] = v
		}
		req.Details = details
	}
	req.Documents = append([]string(nil), req.Documents...)
	return req
}

// MemoryUserRepository keeps customers in memory.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewMemoryUserRepository creates an empty customer store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = *user
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if strings.EqualFold(user.Email, email) {
			found := user
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *MemoryUserRepository) ListByIDs(_ context.Context, ids []string) (map[string]domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]domain.User, len(ids))
	for _, id := range ids {
		if user, ok := r.users[id]; ok {
			result[id] = user
		}
	}
	return result, nil
}

// MemoryStaffRepository keeps staff members in memory.
type MemoryStaffRepository struct {
	mu    sync.RWMutex
	staff map[string]domain.StaffMember
}

// NewMemoryStaffRepository creates an empty staff store.
func NewMemoryStaffRepository() *MemoryStaffRepository {
	return &MemoryStaffRepository{staff: make(map[string]domain.StaffMember)}
}

func (r *MemoryStaffRepository) Create(_ context.Context, staff *domain.StaffMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	staff.ID = uuid.NewString()
	staff.CreatedAt = time.Now().UTC()
	staff.UpdatedAt = staff.CreatedAt
	r.staff[staff.ID] = *staff
	return nil
}

func (r *MemoryStaffRepository) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	staff, ok := r.staff[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &staff, nil
}

func (r *MemoryStaffRepository) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, staff := range r.staff {
		if strings.EqualFold(staff.Email, email) {
			found := staff
			return &found, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func pageOf[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
