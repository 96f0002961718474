package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/invoicely/invoicely/internal/model"
)

// Common errors for business repository operations.
var (
	ErrBusinessNotFound    = errors.New("business not found")
	ErrBusinessEmailExists = errors.New("business email already exists for user")
)

// BusinessFilter defines filters for listing businesses.
// A Limit of zero returns every matching row.
type BusinessFilter struct {
	UserID string
	Search string
	Limit  int
	Offset int
}

const businessColumns = `b.id::text, b.user_id::text, b.name, b.email, b.address, b.phone, b.website, b.logo_url, b.tax_id, b.created_at, b.updated_at`

// CreateBusiness inserts a new business into the database.
func (q *Queries) CreateBusiness(ctx context.Context, business *model.Business) error {
	query := `
		INSERT INTO businesses (id, user_id, name, email, address, phone, website, logo_url, tax_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := q.db.Exec(ctx, query,
		business.ID,
		business.UserID,
		business.Name,
		business.Email,
		business.Address,
		business.Phone,
		business.Website,
		business.LogoURL,
		business.TaxID,
		business.CreatedAt,
		business.UpdatedAt,
	)

	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrBusinessEmailExists
		}
		return fmt.Errorf("failed to create business: %w", err)
	}

	return nil
}

// GetBusinessByID retrieves a business by its ID. InvoiceCount is left unset.
func (q *Queries) GetBusinessByID(ctx context.Context, id string) (*model.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses b WHERE b.id = $1`

	business, err := scanBusiness(q.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBusinessNotFound
		}
		return nil, fmt.Errorf("failed to get business by ID: %w", err)
	}

	return business, nil
}

// ListBusinesses returns one page of a user's businesses, newest first, each
// annotated with its invoice count, plus the total number of matching rows.
func (q *Queries) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]*model.Business, int, error) {
	where := ` WHERE b.user_id = $1`
	args := []any{filter.UserID}
	argIndex := 2

	if filter.Search != "" {
		where += fmt.Sprintf(" AND (b.name ILIKE $%d OR b.email ILIKE $%d OR b.phone ILIKE $%d)", argIndex, argIndex, argIndex)
		args = append(args, "%"+escapeLike(filter.Search)+"%")
		argIndex++
	}

	var total int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM businesses b`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count businesses: %w", err)
	}

	query := `SELECT ` + businessColumns + `,
		(SELECT COUNT(*) FROM invoices i WHERE i.business_id = b.id) AS invoice_count
		FROM businesses b` + where + ` ORDER BY b.created_at DESC, b.id DESC`

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIndex, argIndex+1)
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list businesses: %w", err)
	}
	defer rows.Close()

	businesses := make([]*model.Business, 0)
	for rows.Next() {
		var business model.Business
		var invoiceCount int
		err := rows.Scan(
			&business.ID,
			&business.UserID,
			&business.Name,
			&business.Email,
			&business.Address,
			&business.Phone,
			&business.Website,
			&business.LogoURL,
			&business.TaxID,
			&business.CreatedAt,
			&business.UpdatedAt,
			&invoiceCount,
		)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan business: %w", err)
		}
		businesses = append(businesses, business.WithInvoiceCount(invoiceCount))
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating businesses: %w", err)
	}

	return businesses, total, nil
}

// CountBusinessesByUser returns how many businesses the user owns.
func (q *Queries) CountBusinessesByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM businesses WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count businesses: %w", err)
	}
	return count, nil
}

// BusinessEmailExists checks whether another business of the same user uses email.
// Pass an empty excludeID when creating.
func (q *Queries) BusinessEmailExists(ctx context.Context, userID, email, excludeID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM businesses WHERE user_id = $1 AND email = $2`
	args := []any{userID, email}
	if excludeID != "" {
		query += ` AND id <> $3`
		args = append(args, excludeID)
	}
	query += `)`

	var exists bool
	if err := q.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check business email existence: %w", err)
	}
	return exists, nil
}

// UpdateBusiness writes every mutable column of the business.
func (q *Queries) UpdateBusiness(ctx context.Context, business *model.Business) error {
	query := `
		UPDATE businesses
		SET name = $2, email = $3, address = $4, phone = $5, website = $6,
		    logo_url = $7, tax_id = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := q.db.Exec(ctx, query,
		business.ID,
		business.Name,
		business.Email,
		business.Address,
		business.Phone,
		business.Website,
		business.LogoURL,
		business.TaxID,
		business.UpdatedAt,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return ErrBusinessEmailExists
		}
		return fmt.Errorf("failed to update business: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrBusinessNotFound
	}

	return nil
}

// DeleteBusiness permanently removes a business.
func (q *Queries) DeleteBusiness(ctx context.Context, id string) error {
	result, err := q.db.Exec(ctx, `DELETE FROM businesses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete business: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrBusinessNotFound
	}

	return nil
}

func scanBusiness(row pgx.Row) (*model.Business, error) {
	var business model.Business
	err := row.Scan(
		&business.ID,
		&business.UserID,
		&business.Name,
		&business.Email,
		&business.Address,
		&business.Phone,
		&business.Website,
		&business.LogoURL,
		&business.TaxID,
		&business.CreatedAt,
		&business.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &business, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
