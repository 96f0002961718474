//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/invoicely/invoicely/internal/testutil"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := New(ctx, redisURL)
	if err != nil {
		t.Fatalf("failed to connect to redis: %v", err)
	}
	if err := testutil.FlushRedis(ctx, c.Client()); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBusinessCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	business := testutil.NewTestBusiness(t, testutil.UniqueUUID())
	business.Email = nil
	empty := ""
	business.Phone = &empty

	if _, err := c.GetBusiness(ctx, business.ID); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("GetBusiness() before set error = %v, want ErrCacheMiss", err)
	}

	if err := c.SetBusiness(ctx, business); err != nil {
		t.Fatalf("SetBusiness() error = %v", err)
	}

	cached, err := c.GetBusiness(ctx, business.ID)
	if err != nil {
		t.Fatalf("GetBusiness() error = %v", err)
	}
	got := cached.ToBusiness()

	if got.Name != business.Name || got.UserID != business.UserID {
		t.Errorf("got %+v, want %+v", got, business)
	}
	if got.Email != nil {
		t.Errorf("Email = %v, want nil", *got.Email)
	}
	if got.Phone == nil || *got.Phone != "" {
		t.Errorf("Phone = %v, want empty string", got.Phone)
	}
	if !got.CreatedAt.Equal(business.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, business.CreatedAt)
	}

	ttl, err := c.Client().TTL(ctx, BusinessKey(business.ID)).Result()
	if err != nil {
		t.Fatalf("TTL() error = %v", err)
	}
	if ttl <= 0 || ttl > DefaultBusinessTTL {
		t.Errorf("TTL = %v, want (0, %v]", ttl, DefaultBusinessTTL)
	}
}

func TestBusinessCache_NegativeEntry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	id := testutil.UniqueUUID()

	if err := c.SetNegativeCache(ctx, id); err != nil {
		t.Fatalf("SetNegativeCache() error = %v", err)
	}
	negative, err := c.IsNegativelyCached(ctx, id)
	if err != nil || !negative {
		t.Fatalf("IsNegativelyCached() = %v, %v; want true", negative, err)
	}

	business := testutil.NewTestBusiness(t, testutil.UniqueUUID())
	business.ID = id
	if err := c.SetBusiness(ctx, business); err != nil {
		t.Fatalf("SetBusiness() error = %v", err)
	}
	negative, _ = c.IsNegativelyCached(ctx, id)
	if negative {
		t.Error("SetBusiness should clear the negative entry")
	}

	if err := c.DeleteBusiness(ctx, id); err != nil {
		t.Fatalf("DeleteBusiness() error = %v", err)
	}
	if _, err := c.GetBusiness(ctx, id); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("GetBusiness() after delete error = %v, want ErrCacheMiss", err)
	}
}

func TestCheckIPRateLimit_Exhausts(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 3)
		if err != nil {
			t.Fatalf("CheckIPRateLimit() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d denied, want allowed", i+1)
		}
	}

	// A second boundary may refill one token; the burst is spent either way.
	denied := false
	for i := 0; i < 2 && !denied; i++ {
		res, err := c.CheckIPRateLimit(ctx, "203.0.113.7", 1, 3)
		if err != nil {
			t.Fatalf("CheckIPRateLimit() error = %v", err)
		}
		if !res.Allowed {
			denied = true
			if res.RetryAfter <= 0 {
				t.Errorf("RetryAfter = %v, want > 0", res.RetryAfter)
			}
		}
	}
	if !denied {
		t.Error("requests beyond burst were all allowed")
	}
}

func TestBusinessCache_UsesModelLayout(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	business := testutil.NewTestBusiness(t, testutil.UniqueUUID())
	if err := c.SetBusiness(ctx, business); err != nil {
		t.Fatalf("SetBusiness() error = %v", err)
	}

	fields, err := c.Client().HGetAll(ctx, BusinessKey(business.ID)).Result()
	if err != nil {
		t.Fatalf("HGetAll() error = %v", err)
	}
	want := business.ToCachedBusiness()
	if fields["null_mask"] != want.NullMask {
		t.Errorf("null_mask = %q, want %q", fields["null_mask"], want.NullMask)
	}
	if fields["name"] != want.Name {
		t.Errorf("name = %q, want %q", fields["name"], want.Name)
	}
}
