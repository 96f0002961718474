package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/invoicely/invoicely/internal/metrics"
	"github.com/invoicely/invoicely/internal/model"
	"github.com/invoicely/invoicely/internal/repository"
)

// Sync outcomes reported to metrics and logs.
const (
	SyncOutcomeExisting = "existing"
	SyncOutcomeLinked   = "linked"
	SyncOutcomeCreated  = "created"
	SyncOutcomeFailed   = "failed"
)

// SyncUserInput carries the identity provider's view of a user.
// Email, FirstName and LastName are optional.
type SyncUserInput struct {
	ExternalID string
	Email      string
	FirstName  string
	LastName   string
}

// UserSyncService reconciles local users with external identities.
type UserSyncService struct {
	store   Store
	metrics metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// NewUserSyncService creates a new UserSyncService.
func NewUserSyncService(store Store, recorder metrics.Recorder, logger *slog.Logger) *UserSyncService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserSyncService{
		store:   store,
		metrics: recorder,
		logger:  logger.With("component", "user_sync"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// ResolveOrCreate returns the local user linked to input.ExternalID, linking
// an existing user with the same email or creating a new one if needed.
// Existing profile names are never overwritten.
//
// Any persistence failure is reported as ErrUserSyncFailed; callers should
// treat it as "could not resolve user".
func (s *UserSyncService) ResolveOrCreate(ctx context.Context, input SyncUserInput) (*model.User, error) {
	if input.ExternalID == "" {
		return nil, ErrExternalIDRequired
	}

	var (
		user    *model.User
		outcome string
	)
	err := s.store.WithTx(ctx, func(q repository.Querier) error {
		var err error
		user, outcome, err = s.resolve(ctx, q, input)
		return err
	})

	// A concurrent sync linked the identity first; its row wins.
	if errors.Is(err, repository.ErrExternalIDExists) {
		user, err = s.store.GetUserByExternalID(ctx, input.ExternalID)
		outcome = SyncOutcomeExisting
	}

	if err != nil {
		s.metrics.IncUserSync(SyncOutcomeFailed)
		s.logger.ErrorContext(ctx, "user sync failed",
			"op", "resolve_or_create",
			"external_id", input.ExternalID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %w", ErrUserSyncFailed, err)
	}

	s.metrics.IncUserSync(outcome)
	if outcome != SyncOutcomeExisting {
		s.logger.InfoContext(ctx, "user synced",
			"user_id", user.ID,
			"external_id", input.ExternalID,
			"outcome", outcome,
		)
	}

	return user, nil
}

func (s *UserSyncService) resolve(ctx context.Context, q repository.Querier, input SyncUserInput) (*model.User, string, error) {
	user, err := q.GetUserByExternalID(ctx, input.ExternalID)
	if err == nil {
		return user, SyncOutcomeExisting, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, "", err
	}

	if input.Email != "" {
		user, err := q.GetUserByEmail(ctx, input.Email)
		if err == nil {
			externalID := input.ExternalID
			user.ExternalID = &externalID
			if user.FirstName == "" && input.FirstName != "" {
				user.FirstName = input.FirstName
			}
			if user.LastName == "" && input.LastName != "" {
				user.LastName = input.LastName
			}
			now := s.now()
			user.UpdatedAt = &now

			if err := q.UpdateUserIdentity(ctx, user); err != nil {
				return nil, "", err
			}
			return user, SyncOutcomeLinked, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, "", err
		}
	}

	externalID := input.ExternalID
	now := s.now()
	user = &model.User{
		ID:         uuid.NewString(),
		Email:      input.Email,
		ExternalID: &externalID,
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		CreatedAt:  now,
		UpdatedAt:  &now,
	}
	if user.Email == "" {
		user.Email = PlaceholderEmail(input.ExternalID)
	}

	if err := q.CreateUser(ctx, user); err != nil {
		return nil, "", err
	}
	return user, SyncOutcomeCreated, nil
}

// PlaceholderEmail synthesizes an address for identities that did not share one.
func PlaceholderEmail(externalID string) string {
	prefix := []rune(externalID)
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "user_" + string(prefix) + "@temp.com"
}
