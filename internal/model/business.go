package model

import (
	"strconv"
	"strings"
	"time"
)

// MaxBusinessesPerUser is the number of businesses a user may own on the free plan.
const MaxBusinessesPerUser = 2

// Business is an invoicing identity owned by a single user.
type Business struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Name      string     `json:"name"`
	Email     *string    `json:"email"`
	Address   *string    `json:"address"`
	Phone     *string    `json:"phone"`
	Website   *string    `json:"website"`
	LogoURL   *string    `json:"logo_url"`
	TaxID     *string    `json:"tax_id"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`

	// InvoiceCount is populated on read paths only.
	InvoiceCount *int `json:"invoice_count,omitempty"`
}

// EmailValue returns the email or "" when unset.
func (b *Business) EmailValue() string {
	if b.Email == nil {
		return ""
	}
	return *b.Email
}

// WithInvoiceCount sets the live invoice count.
func (b *Business) WithInvoiceCount(n int) *Business {
	b.InvoiceCount = &n
	return b
}

// CachedBusiness represents business data stored in Redis.
// Optional columns use a separate presence flag so NULL survives the round trip.
type CachedBusiness struct {
	ID        string `redis:"id"`
	UserID    string `redis:"user_id"`
	Name      string `redis:"name"`
	Email     string `redis:"email"`
	Address   string `redis:"address"`
	Phone     string `redis:"phone"`
	Website   string `redis:"website"`
	LogoURL   string `redis:"logo_url"`
	TaxID     string `redis:"tax_id"`
	NullMask  string `redis:"null_mask"`  // one '1'/'0' per optional column
	CreatedAt string `redis:"created_at"` // Unix nanoseconds
	UpdatedAt string `redis:"updated_at"` // Unix nanoseconds or empty
}

// optionalFields returns pointers to the nullable columns in a fixed order.
func (b *Business) optionalFields() []**string {
	return []**string{&b.Email, &b.Address, &b.Phone, &b.Website, &b.LogoURL, &b.TaxID}
}

// ToCachedBusiness converts a Business to its cache representation.
// The invoice count is not cached.
func (b *Business) ToCachedBusiness() *CachedBusiness {
	values := make([]string, 0, 6)
	var mask strings.Builder
	for _, field := range b.optionalFields() {
		if *field == nil {
			mask.WriteByte('0')
			values = append(values, "")
			continue
		}
		mask.WriteByte('1')
		values = append(values, **field)
	}

	cached := &CachedBusiness{
		ID:        b.ID,
		UserID:    b.UserID,
		Name:      b.Name,
		Email:     values[0],
		Address:   values[1],
		Phone:     values[2],
		Website:   values[3],
		LogoURL:   values[4],
		TaxID:     values[5],
		NullMask:  mask.String(),
		CreatedAt: strconv.FormatInt(b.CreatedAt.UnixNano(), 10),
	}
	if b.UpdatedAt != nil {
		cached.UpdatedAt = strconv.FormatInt(b.UpdatedAt.UnixNano(), 10)
	}
	return cached
}

// ToBusiness converts a CachedBusiness back to the domain model.
func (c *CachedBusiness) ToBusiness() *Business {
	b := &Business{
		ID:     c.ID,
		UserID: c.UserID,
		Name:   c.Name,
	}

	values := []string{c.Email, c.Address, c.Phone, c.Website, c.LogoURL, c.TaxID}
	for i, field := range b.optionalFields() {
		if i < len(c.NullMask) && c.NullMask[i] == '1' {
			v := values[i]
			*field = &v
		}
	}

	if ts, err := strconv.ParseInt(c.CreatedAt, 10, 64); err == nil {
		b.CreatedAt = time.Unix(0, ts).UTC()
	}
	if c.UpdatedAt != "" {
		if ts, err := strconv.ParseInt(c.UpdatedAt, 10, 64); err == nil {
			t := time.Unix(0, ts).UTC()
			b.UpdatedAt = &t
		}
	}

	return b
}
