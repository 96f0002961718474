// Package service provides business logic for the application.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/invoicely/invoicely/internal/cache"
	"github.com/invoicely/invoicely/internal/events"
	"github.com/invoicely/invoicely/internal/metrics"
	"github.com/invoicely/invoicely/internal/model"
	"github.com/invoicely/invoicely/internal/repository"
)

// Pagination defaults.
const (
	DefaultPage    = 1
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// Store is the persistence boundary. Queries run on the pool unless they
// are issued through the Querier handed to WithTx.
type Store interface {
	repository.Querier
	WithTx(ctx context.Context, fn func(q repository.Querier) error) error
}

// BusinessCache is a read-through cache for single-business lookups.
type BusinessCache interface {
	GetBusiness(ctx context.Context, id string) (*model.CachedBusiness, error)
	SetBusiness(ctx context.Context, business *model.Business) error
	DeleteBusiness(ctx context.Context, id string) error
	IsNegativelyCached(ctx context.Context, id string) (bool, error)
	SetNegativeCache(ctx context.Context, id string) error
}

// EventPublisher emits business lifecycle events without blocking.
type EventPublisher interface {
	PublishAsync(event events.BusinessEvent)
}

// BusinessService handles business record logic.
type BusinessService struct {
	store     Store
	cache     BusinessCache
	publisher EventPublisher
	metrics   metrics.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewBusinessService creates a new BusinessService.
// cache and publisher may be nil.
func NewBusinessService(store Store, cache BusinessCache, publisher EventPublisher, recorder metrics.Recorder, logger *slog.Logger) *BusinessService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BusinessService{
		store:     store,
		cache:     cache,
		publisher: publisher,
		metrics:   recorder,
		logger:    logger.With("component", "business_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateBusiness creates a business for the user named by input.UserID.
// The id may be a local user id or an external identity reference.
func (s *BusinessService) CreateBusiness(ctx context.Context, input BusinessInput) (*model.Business, error) {
	if errs := ValidateBusiness(input, false); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	var business *model.Business
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		owner, err := resolveOwner(ctx, q, input.UserID.Value)
		if err != nil {
			return err
		}

		// Serializes concurrent creates for the same owner on the quota check.
		if err := q.LockUser(ctx, owner.ID); err != nil {
			return err
		}

		count, err := q.CountBusinessesByUser(ctx, owner.ID)
		if err != nil {
			return err
		}
		if count >= model.MaxBusinessesPerUser {
			return ErrBusinessLimitReached
		}

		if input.Email.Present() && input.Email.Value != "" {
			exists, err := q.BusinessEmailExists(ctx, owner.ID, input.Email.Value, "")
			if err != nil {
				return err
			}
			if exists {
				return ErrBusinessEmailExists
			}
		}

		business = &model.Business{
			ID:        uuid.NewString(),
			UserID:    owner.ID,
			Name:      input.Name.Value,
			Email:     input.Email.Ptr(),
			Address:   input.Address.Ptr(),
			Phone:     input.Phone.Ptr(),
			Website:   input.Website.Ptr(),
			LogoURL:   input.LogoURL.Ptr(),
			TaxID:     input.TaxID.Ptr(),
			CreatedAt: s.now(),
		}

		if err := q.CreateBusiness(ctx, business); err != nil {
			if errors.Is(err, repository.ErrBusinessEmailExists) {
				return ErrBusinessEmailExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrBusinessLimitReached) {
			s.metrics.IncBusinessLimitRejected()
		}
		return nil, s.fail(ctx, "create_business", err, "user_id", input.UserID.Value)
	}

	s.metrics.IncBusinessCreated()
	s.publish(events.BusinessCreated, business)

	return business, nil
}

// resolveOwner finds the owning user by local id, then by external identity.
func resolveOwner(ctx context.Context, q repository.Querier, userID string) (*model.User, error) {
	if id, ok := parseID(userID); ok {
		user, err := q.GetUserByID(ctx, id)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}

	user, err := q.GetUserByExternalID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// ListBusinessesInput defines input for listing businesses.
// A positive Limit switches to unpaginated top-N mode.
type ListBusinessesInput struct {
	UserID  string
	Search  string
	Page    int
	PerPage int
	Limit   int
}

// Pagination describes the page returned by ListBusinesses.
type Pagination struct {
	Total       int
	Pages       int
	PerPage     int
	CurrentPage int
	HasPrev     bool
	HasNext     bool
}

// ListBusinessesOutput defines output for listing businesses.
type ListBusinessesOutput struct {
	Businesses []*model.Business
	Pagination Pagination
}

// ListBusinesses returns a user's businesses annotated with invoice counts.
func (s *BusinessService) ListBusinesses(ctx context.Context, input ListBusinessesInput) (*ListBusinessesOutput, error) {
	if input.UserID == "" {
		return nil, ErrUserIDRequired
	}
	userID, ok := parseID(input.UserID)
	if !ok {
		return nil, ErrInvalidID
	}

	filter := repository.BusinessFilter{
		UserID: userID,
		Search: input.Search,
	}

	if input.Limit > 0 {
		filter.Limit = input.Limit
		businesses, total, err := s.store.ListBusinesses(ctx, filter)
		if err != nil {
			return nil, s.fail(ctx, "list_businesses", err, "user_id", userID)
		}
		return &ListBusinessesOutput{
			Businesses: businesses,
			Pagination: Pagination{
				Total:       total,
				Pages:       1,
				PerPage:     input.Limit,
				CurrentPage: 1,
			},
		}, nil
	}

	page := input.Page
	if page < 1 {
		page = DefaultPage
	}
	perPage := input.PerPage
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	filter.Limit = perPage
	filter.Offset = (page - 1) * perPage

	businesses, total, err := s.store.ListBusinesses(ctx, filter)
	if err != nil {
		return nil, s.fail(ctx, "list_businesses", err, "user_id", userID)
	}

	pages := 0
	if total > 0 {
		pages = (total + perPage - 1) / perPage
	}

	return &ListBusinessesOutput{
		Businesses: businesses,
		Pagination: Pagination{
			Total:       total,
			Pages:       pages,
			PerPage:     perPage,
			CurrentPage: page,
			HasPrev:     page > 1,
			HasNext:     page < pages,
		},
	}, nil
}

// GetBusiness retrieves a business with its live invoice count.
func (s *BusinessService) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	businessID, ok := parseID(id)
	if !ok {
		return nil, ErrInvalidID
	}

	business, err := s.lookupBusiness(ctx, businessID)
	if err != nil {
		return nil, s.fail(ctx, "get_business", err, "business_id", businessID)
	}

	count, err := s.store.CountInvoicesByBusiness(ctx, businessID)
	if err != nil {
		return nil, s.fail(ctx, "get_business", err, "business_id", businessID)
	}

	return business.WithInvoiceCount(count), nil
}

// lookupBusiness reads the business record through the cache.
func (s *BusinessService) lookupBusiness(ctx context.Context, id string) (*model.Business, error) {
	if s.cache != nil {
		cached, err := s.cache.GetBusiness(ctx, id)
		if err == nil {
			s.metrics.IncBusinessCacheHit()
			return cached.ToBusiness(), nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			s.metrics.IncBusinessCacheMiss()
			if negative, _ := s.cache.IsNegativelyCached(ctx, id); negative {
				return nil, ErrBusinessNotFound
			}
		} else {
			s.logger.WarnContext(ctx, "business cache read failed", "business_id", id, "error", err)
		}
	}

	business, err := s.store.GetBusinessByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrBusinessNotFound) {
			if s.cache != nil {
				_ = s.cache.SetNegativeCache(ctx, id)
			}
			return nil, ErrBusinessNotFound
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBusiness(ctx, business); err != nil {
			s.logger.WarnContext(ctx, "business cache write failed", "business_id", id, "error", err)
		}
	}

	return business, nil
}

// UpdateBusiness merges the attributes present in input into the stored business.
func (s *BusinessService) UpdateBusiness(ctx context.Context, id string, input BusinessInput) (*model.Business, error) {
	businessID, ok := parseID(id)
	if !ok {
		return nil, ErrInvalidID
	}

	if errs := ValidateBusiness(input, true); len(errs) > 0 {
		return nil, &ValidationError{Errors: errs}
	}

	var business *model.Business
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		existing, err := q.GetBusinessByID(ctx, businessID)
		if err != nil {
			if errors.Is(err, repository.ErrBusinessNotFound) {
				return ErrBusinessNotFound
			}
			return err
		}

		if input.Email.Present() && input.Email.Value != "" && input.Email.Value != existing.EmailValue() {
			exists, err := q.BusinessEmailExists(ctx, existing.UserID, input.Email.Value, existing.ID)
			if err != nil {
				return err
			}
			if exists {
				return ErrBusinessEmailExists
			}
		}

		applyBusinessUpdate(existing, input)
		now := s.now()
		existing.UpdatedAt = &now

		if err := q.UpdateBusiness(ctx, existing); err != nil {
			switch {
			case errors.Is(err, repository.ErrBusinessEmailExists):
				return ErrBusinessEmailExists
			case errors.Is(err, repository.ErrBusinessNotFound):
				return ErrBusinessNotFound
			}
			return err
		}

		count, err := q.CountInvoicesByBusiness(ctx, existing.ID)
		if err != nil {
			return err
		}

		business = existing.WithInvoiceCount(count)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, "update_business", err, "business_id", businessID)
	}

	s.invalidate(ctx, businessID)
	s.metrics.IncBusinessUpdated()
	s.publish(events.BusinessUpdated, business)

	return business, nil
}

// applyBusinessUpdate overwrites every attribute whose key was supplied.
// Name is never null here; validation rejects it first.
func applyBusinessUpdate(business *model.Business, input BusinessInput) {
	if input.Name.Set {
		business.Name = input.Name.Value
	}
	optional := []struct {
		field model.Field[string]
		dst   **string
	}{
		{input.Email, &business.Email},
		{input.Address, &business.Address},
		{input.Phone, &business.Phone},
		{input.Website, &business.Website},
		{input.LogoURL, &business.LogoURL},
		{input.TaxID, &business.TaxID},
	}
	for _, o := range optional {
		if o.field.Set {
			*o.dst = o.field.Ptr()
		}
	}
}

// DeleteBusiness removes a business that has no invoices.
func (s *BusinessService) DeleteBusiness(ctx context.Context, id string) error {
	businessID, ok := parseID(id)
	if !ok {
		return ErrInvalidID
	}

	var deleted *model.Business
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		business, err := q.GetBusinessByID(ctx, businessID)
		if err != nil {
			if errors.Is(err, repository.ErrBusinessNotFound) {
				return ErrBusinessNotFound
			}
			return err
		}

		count, err := q.CountInvoicesByBusiness(ctx, businessID)
		if err != nil {
			return err
		}
		if count > 0 {
			return &InvoicesAttachedError{Count: count}
		}

		if err := q.DeleteBusiness(ctx, businessID); err != nil {
			if errors.Is(err, repository.ErrBusinessNotFound) {
				return ErrBusinessNotFound
			}
			return err
		}

		deleted = business
		return nil
	})
	if err != nil {
		return s.fail(ctx, "delete_business", err, "business_id", businessID)
	}

	s.invalidate(ctx, businessID)
	s.metrics.IncBusinessDeleted()
	s.publish(events.BusinessDeleted, deleted)

	return nil
}

func (s *BusinessService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteBusiness(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "business cache invalidation failed", "business_id", id, "error", err)
	}
}

func (s *BusinessService) publish(eventType events.EventType, business *model.Business) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishAsync(events.NewBusinessEvent(eventType, business))
}

// fail logs err with the operation context and returns it. Rule rejections
// are logged at warn level; anything else is an internal failure.
func (s *BusinessService) fail(ctx context.Context, op string, err error, attrs ...any) error {
	args := append([]any{"op", op, "error", err}, attrs...)
	if isRejection(err) {
		s.logger.WarnContext(ctx, "business operation rejected", args...)
		return err
	}
	s.logger.ErrorContext(ctx, "business operation failed", args...)
	return fmt.Errorf("%s: %w", op, err)
}
