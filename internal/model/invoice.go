package model

import "time"

// Invoice is owned by the invoicing module. This service only counts
// invoices per business; it never writes them.
type Invoice struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	BusinessID    *string    `json:"business_id"`
	InvoiceNumber string     `json:"invoice_number"`
	Status        string     `json:"status"`
	Currency      string     `json:"currency"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}
