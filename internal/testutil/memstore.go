package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/invoicely/invoicely/internal/model"
	"github.com/invoicely/invoicely/internal/repository"
)

// MemStore is an in-memory repository.Querier with transaction support.
// Transactions are serialized and roll back by restoring a snapshot.
type MemStore struct {
	txMu sync.Mutex

	mu         sync.Mutex
	users      map[string]model.User
	businesses map[string]model.Business
	invoices   map[string]model.Invoice
	failOn     map[string]error
	calls      map[string]int
}

var _ repository.Querier = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		users:      make(map[string]model.User),
		businesses: make(map[string]model.Business),
		invoices:   make(map[string]model.Invoice),
		failOn:     make(map[string]error),
		calls:      make(map[string]int),
	}
}

// FailOn makes every later call to the named method return err.
func (s *MemStore) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[method] = err
}

// Calls returns how many times method was invoked.
func (s *MemStore) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// SeedUser stores a user as-is.
func (s *MemStore) SeedUser(user *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = *user
}

// SeedBusiness stores a business as-is.
func (s *MemStore) SeedBusiness(business *model.Business) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := *business
	b.InvoiceCount = nil
	s.businesses[b.ID] = b
}

// SeedInvoice stores an invoice as-is.
func (s *MemStore) SeedInvoice(invoice *model.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices[invoice.ID] = *invoice
}

// UserCount returns the number of stored users.
func (s *MemStore) UserCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// BusinessCount returns the number of stored businesses.
func (s *MemStore) BusinessCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.businesses)
}

// WithTx runs fn against the store and restores the prior state if fn fails.
func (s *MemStore) WithTx(ctx context.Context, fn func(q repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	users := copyMap(s.users)
	businesses := copyMap(s.businesses)
	invoices := copyMap(s.invoices)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.users, s.businesses, s.invoices = users, businesses, invoices
		s.mu.Unlock()
		return err
	}
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// enter records the call and returns any injected failure. Caller holds mu.
func (s *MemStore) enter(method string) error {
	s.calls[method]++
	return s.failOn[method]
}

// CreateUser implements repository.Querier.
func (s *MemStore) CreateUser(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateUser"); err != nil {
		return err
	}
	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrEmailExists
		}
		if user.ExternalID != nil && u.HasExternalID(*user.ExternalID) {
			return repository.ErrExternalIDExists
		}
	}
	s.users[user.ID] = *user
	return nil
}

// GetUserByID implements repository.Querier.
func (s *MemStore) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUserByID"); err != nil {
		return nil, err
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// GetUserByEmail implements repository.Querier.
func (s *MemStore) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUserByEmail"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// GetUserByExternalID implements repository.Querier.
func (s *MemStore) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetUserByExternalID"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if u.HasExternalID(externalID) {
			return &u, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// LockUser implements repository.Querier. Transactions are already serialized.
func (s *MemStore) LockUser(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("LockUser"); err != nil {
		return err
	}
	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	return nil
}

// UpdateUserIdentity implements repository.Querier.
func (s *MemStore) UpdateUserIdentity(ctx context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateUserIdentity"); err != nil {
		return err
	}
	existing, ok := s.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if user.ExternalID != nil {
		for id, u := range s.users {
			if id != user.ID && u.HasExternalID(*user.ExternalID) {
				return repository.ErrExternalIDExists
			}
		}
	}
	existing.ExternalID = user.ExternalID
	existing.FirstName = user.FirstName
	existing.LastName = user.LastName
	existing.UpdatedAt = user.UpdatedAt
	s.users[user.ID] = existing
	return nil
}

// emailTaken reports whether another business of userID uses email. Caller holds mu.
func (s *MemStore) emailTaken(userID string, email *string, excludeID string) bool {
	if email == nil || *email == "" {
		return false
	}
	for id, b := range s.businesses {
		if id != excludeID && b.UserID == userID && b.Email != nil && *b.Email == *email {
			return true
		}
	}
	return false
}

// CreateBusiness implements repository.Querier.
func (s *MemStore) CreateBusiness(ctx context.Context, business *model.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CreateBusiness"); err != nil {
		return err
	}
	if s.emailTaken(business.UserID, business.Email, "") {
		return repository.ErrBusinessEmailExists
	}
	b := *business
	b.InvoiceCount = nil
	s.businesses[b.ID] = b
	return nil
}

// GetBusinessByID implements repository.Querier.
func (s *MemStore) GetBusinessByID(ctx context.Context, id string) (*model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("GetBusinessByID"); err != nil {
		return nil, err
	}
	b, ok := s.businesses[id]
	if !ok {
		return nil, repository.ErrBusinessNotFound
	}
	return &b, nil
}

// ListBusinesses implements repository.Querier with case-insensitive
// substring search over name, email and phone.
func (s *MemStore) ListBusinesses(ctx context.Context, filter repository.BusinessFilter) ([]*model.Business, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ListBusinesses"); err != nil {
		return nil, 0, err
	}

	needle := strings.ToLower(filter.Search)
	matches := make([]model.Business, 0)
	for _, b := range s.businesses {
		if b.UserID != filter.UserID {
			continue
		}
		if needle != "" && !containsFold(b.Name, needle) && !containsFoldPtr(b.Email, needle) && !containsFoldPtr(b.Phone, needle) {
			continue
		}
		matches = append(matches, b)
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	total := len(matches)
	if filter.Limit > 0 {
		start := filter.Offset
		if start > total {
			start = total
		}
		end := start + filter.Limit
		if end > total {
			end = total
		}
		matches = matches[start:end]
	}

	out := make([]*model.Business, 0, len(matches))
	for i := range matches {
		b := matches[i]
		out = append(out, b.WithInvoiceCount(s.invoiceCount(b.ID)))
	}
	return out, total, nil
}

func containsFold(s, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(s), lowerNeedle)
}

func containsFoldPtr(s *string, lowerNeedle string) bool {
	return s != nil && containsFold(*s, lowerNeedle)
}

// CountBusinessesByUser implements repository.Querier.
func (s *MemStore) CountBusinessesByUser(ctx context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountBusinessesByUser"); err != nil {
		return 0, err
	}
	count := 0
	for _, b := range s.businesses {
		if b.UserID == userID {
			count++
		}
	}
	return count, nil
}

// BusinessEmailExists implements repository.Querier.
func (s *MemStore) BusinessEmailExists(ctx context.Context, userID, email, excludeID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("BusinessEmailExists"); err != nil {
		return false, err
	}
	return s.emailTaken(userID, &email, excludeID), nil
}

// UpdateBusiness implements repository.Querier.
func (s *MemStore) UpdateBusiness(ctx context.Context, business *model.Business) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("UpdateBusiness"); err != nil {
		return err
	}
	existing, ok := s.businesses[business.ID]
	if !ok {
		return repository.ErrBusinessNotFound
	}
	if s.emailTaken(existing.UserID, business.Email, business.ID) {
		return repository.ErrBusinessEmailExists
	}
	b := *business
	b.UserID = existing.UserID
	b.CreatedAt = existing.CreatedAt
	b.InvoiceCount = nil
	s.businesses[b.ID] = b
	return nil
}

// DeleteBusiness implements repository.Querier.
func (s *MemStore) DeleteBusiness(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("DeleteBusiness"); err != nil {
		return err
	}
	if _, ok := s.businesses[id]; !ok {
		return repository.ErrBusinessNotFound
	}
	delete(s.businesses, id)
	return nil
}

// CountInvoicesByBusiness implements repository.Querier.
func (s *MemStore) CountInvoicesByBusiness(ctx context.Context, businessID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("CountInvoicesByBusiness"); err != nil {
		return 0, err
	}
	return s.invoiceCount(businessID), nil
}

// invoiceCount counts invoices of a business. Caller holds mu.
func (s *MemStore) invoiceCount(businessID string) int {
	count := 0
	for _, inv := range s.invoices {
		if inv.BusinessID != nil && *inv.BusinessID == businessID {
			count++
		}
	}
	return count
}
