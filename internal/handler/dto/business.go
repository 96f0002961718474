// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/invoicely/invoicely/internal/model"
)

// BusinessRequest is the body of create and update requests. Each field
// remembers whether its key was present.
type BusinessRequest struct {
	UserID  model.Field[string] `json:"user_id"`
	Name    model.Field[string] `json:"name"`
	Email   model.Field[string] `json:"email"`
	Address model.Field[string] `json:"address"`
	Phone   model.Field[string] `json:"phone"`
	Website model.Field[string] `json:"website"`
	LogoURL model.Field[string] `json:"logo_url"`
	TaxID   model.Field[string] `json:"tax_id"`
}

// BusinessResponse represents a business in API responses.
type BusinessResponse struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	Name         string     `json:"name"`
	Email        *string    `json:"email"`
	Address      *string    `json:"address"`
	Phone        *string    `json:"phone"`
	Website      *string    `json:"website"`
	LogoURL      *string    `json:"logo_url"`
	TaxID        *string    `json:"tax_id"`
	InvoiceCount *int       `json:"invoice_count,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    *time.Time `json:"updated_at"`
}

// BusinessEnvelope wraps a single business.
type BusinessEnvelope struct {
	Success  bool              `json:"success"`
	Business *BusinessResponse `json:"business"`
}

// BusinessListEnvelope wraps a page of businesses.
type BusinessListEnvelope struct {
	Success    bool               `json:"success"`
	Businesses []BusinessResponse `json:"businesses"`
	Pagination PaginationResponse `json:"pagination"`
}

// PaginationResponse provides page-based pagination info.
type PaginationResponse struct {
	Total       int  `json:"total"`
	Pages       int  `json:"pages"`
	PerPage     int  `json:"per_page"`
	CurrentPage int  `json:"current_page"`
	HasPrev     bool `json:"has_prev"`
	HasNext     bool `json:"has_next"`
}

// MessageResponse is returned by operations without a payload.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Success      bool     `json:"success"`
	Error        string   `json:"error"`
	Code         string   `json:"code"`
	Errors       []string `json:"errors,omitempty"`
	LimitReached bool     `json:"limit_reached,omitempty"`
	Message      string   `json:"message,omitempty"`
}

// ToBusinessResponse converts a Business model to BusinessResponse DTO.
func ToBusinessResponse(business *model.Business) *BusinessResponse {
	return &BusinessResponse{
		ID:           business.ID,
		UserID:       business.UserID,
		Name:         business.Name,
		Email:        business.Email,
		Address:      business.Address,
		Phone:        business.Phone,
		Website:      business.Website,
		LogoURL:      business.LogoURL,
		TaxID:        business.TaxID,
		InvoiceCount: business.InvoiceCount,
		CreatedAt:    business.CreatedAt,
		UpdatedAt:    business.UpdatedAt,
	}
}

// ToBusinessListResponse converts businesses to response DTOs.
func ToBusinessListResponse(businesses []*model.Business) []BusinessResponse {
	out := make([]BusinessResponse, 0, len(businesses))
	for _, b := range businesses {
		out = append(out, *ToBusinessResponse(b))
	}
	return out
}
