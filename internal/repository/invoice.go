package repository

import (
	"context"
	"fmt"
)

// CountInvoicesByBusiness returns the number of invoices issued under a business.
func (q *Queries) CountInvoicesByBusiness(ctx context.Context, businessID string) (int, error) {
	var count int
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE business_id = $1`, businessID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count invoices: %w", err)
	}
	return count, nil
}
