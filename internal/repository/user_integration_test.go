//go:build integration

package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/invoicely/invoicely/internal/testutil"
)

func TestIntegrationUser_CreateAndLookup(t *testing.T) {
	ctx, repo := newTestRepository(t)

	user := testutil.NewTestUserWithExternalID(t, testutil.UniqueID("idp"))
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	byID, err := repo.GetUserByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if byID.Email != user.Email || !byID.HasExternalID(*user.ExternalID) {
		t.Errorf("GetUserByID = %+v", byID)
	}

	byEmail, err := repo.GetUserByEmail(ctx, user.Email)
	if err != nil || byEmail.ID != user.ID {
		t.Errorf("GetUserByEmail = %v, %v", byEmail, err)
	}

	byExternal, err := repo.GetUserByExternalID(ctx, *user.ExternalID)
	if err != nil || byExternal.ID != user.ID {
		t.Errorf("GetUserByExternalID = %v, %v", byExternal, err)
	}

	if _, err := repo.GetUserByExternalID(ctx, "unknown"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown external id err = %v", err)
	}
}

func TestIntegrationUser_UniqueConstraints(t *testing.T) {
	ctx, repo := newTestRepository(t)

	externalID := testutil.UniqueID("idp")
	first := testutil.NewTestUserWithExternalID(t, externalID)
	if err := repo.CreateUser(ctx, first); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sameExternal := testutil.NewTestUserWithExternalID(t, externalID)
	if err := repo.CreateUser(ctx, sameExternal); !errors.Is(err, ErrExternalIDExists) {
		t.Errorf("duplicate external id err = %v, want ErrExternalIDExists", err)
	}

	sameEmail := testutil.NewTestUser(t)
	sameEmail.Email = first.Email
	if err := repo.CreateUser(ctx, sameEmail); !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate email err = %v, want ErrEmailExists", err)
	}
}

func TestIntegrationUser_UpdateIdentity(t *testing.T) {
	ctx, repo := newTestRepository(t)

	user := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	externalID := testutil.UniqueID("idp")
	now := time.Now().UTC().Truncate(time.Microsecond)
	user.ExternalID = &externalID
	user.FirstName = "Ada"
	user.UpdatedAt = &now
	if err := repo.UpdateUserIdentity(ctx, user); err != nil {
		t.Fatalf("UpdateUserIdentity: %v", err)
	}

	got, err := repo.GetUserByExternalID(ctx, externalID)
	if err != nil {
		t.Fatalf("GetUserByExternalID: %v", err)
	}
	if got.ID != user.ID || got.FirstName != "Ada" {
		t.Errorf("after link: %+v", got)
	}

	// A second user cannot claim the same identity.
	other := testutil.NewTestUser(t)
	if err := repo.CreateUser(ctx, other); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	other.ExternalID = &externalID
	if err := repo.UpdateUserIdentity(ctx, other); !errors.Is(err, ErrExternalIDExists) {
		t.Errorf("claim linked identity err = %v, want ErrExternalIDExists", err)
	}

	ghost := testutil.NewTestUser(t)
	if err := repo.UpdateUserIdentity(ctx, ghost); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("update missing user err = %v, want ErrUserNotFound", err)
	}
}

func TestIntegrationUser_LockUserMissing(t *testing.T) {
	ctx, repo := newTestRepository(t)

	if err := repo.LockUser(ctx, testutil.UniqueUUID()); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("LockUser err = %v, want ErrUserNotFound", err)
	}
}
