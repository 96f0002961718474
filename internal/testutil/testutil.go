package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/invoicely/invoicely/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// MigrationFiles returns the migration scripts for direction ("up" or
// "down") in the order they must be applied.
func MigrationFiles(direction string) ([]string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(root, "migrations", "*."+direction+".sql"))
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no %s migrations found", direction)
	}

	sort.Strings(files)
	if direction == "down" {
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
	}
	return files, nil
}

// ResetSchema drops and recreates every table for tests.
func ResetSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, direction := range []string{"down", "up"} {
		files, err := MigrationFiles(direction)
		if err != nil {
			return err
		}
		for _, path := range files {
			sql, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s migration %s: %w", direction, filepath.Base(path), err)
			}
			if _, err := pool.Exec(ctx, string(sql)); err != nil {
				return fmt.Errorf("apply %s migration %s: %w", direction, filepath.Base(path), err)
			}
		}
	}
	return nil
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

// ProjectRoot returns the project root directory.
func ProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("failed to resolve testutil path")
	}
	root := filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
	return root, nil
}

// ============================================================================
// Test Data Factories
// ============================================================================

// NewTestUser creates a test user with sensible defaults.
func NewTestUser(t testing.TB) *model.User {
	t.Helper()
	id := uuid.NewString()
	return &model.User{
		ID:        id,
		Email:     "user-" + id[:8] + "@example.com",
		FirstName: "Test",
		LastName:  "User",
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestUserWithExternalID creates a test user linked to an external identity.
func NewTestUserWithExternalID(t testing.TB, externalID string) *model.User {
	t.Helper()
	user := NewTestUser(t)
	user.ExternalID = &externalID
	return user
}

// NewTestBusiness creates a test business owned by userID.
func NewTestBusiness(t testing.TB, userID string) *model.Business {
	t.Helper()
	id := uuid.NewString()
	email := "billing-" + id[:8] + "@example.com"
	return &model.Business{
		ID:        id,
		UserID:    userID,
		Name:      "Business " + id[:8],
		Email:     &email,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// NewTestInvoice creates a test invoice issued under businessID.
func NewTestInvoice(t testing.TB, userID, businessID string) *model.Invoice {
	t.Helper()
	id := uuid.NewString()
	return &model.Invoice{
		ID:            id,
		UserID:        userID,
		BusinessID:    &businessID,
		InvoiceNumber: "INV-" + id[:8],
		Status:        "draft",
		Currency:      "USD",
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

// InsertInvoice writes an invoice row directly; the service never creates them.
func InsertInvoice(ctx context.Context, pool *pgxpool.Pool, invoice *model.Invoice) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO invoices (id, user_id, business_id, invoice_number, status, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, invoice.ID, invoice.UserID, invoice.BusinessID, invoice.InvoiceNumber, invoice.Status, invoice.Currency, invoice.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invoice: %w", err)
	}
	return nil
}

// UniqueUUID generates a random UUID string for tests.
func UniqueUUID() string {
	return uuid.NewString()
}

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
