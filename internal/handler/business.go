package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/invoicely/invoicely/internal/handler/dto"
	"github.com/invoicely/invoicely/internal/model"
	"github.com/invoicely/invoicely/internal/service"
)

// Business operations, used to pick operation-specific error messages.
const (
	opCreate = "create"
	opList   = "list"
	opGet    = "get"
	opUpdate = "update"
	opDelete = "delete"
)

// LimitReachedMessage is shown when the business quota is exhausted.
var LimitReachedMessage = fmt.Sprintf(
	"You have reached the maximum limit of %d businesses. Please upgrade your plan to add more businesses.",
	model.MaxBusinessesPerUser,
)

var internalMessages = map[string]string{
	opCreate: "Failed to create business",
	opList:   "Failed to get businesses",
	opGet:    "Failed to get business",
	opUpdate: "Failed to update business",
	opDelete: "Failed to delete business",
}

// errNoData is returned by decodeBusiness for an empty body or object.
var errNoData = errors.New("no data provided")

// BusinessHandler handles HTTP requests for business operations.
type BusinessHandler struct {
	svc    *service.BusinessService
	logger *slog.Logger
}

// NewBusinessHandler creates a new BusinessHandler.
func NewBusinessHandler(svc *service.BusinessService, logger *slog.Logger) *BusinessHandler {
	return &BusinessHandler{
		svc:    svc,
		logger: logger,
	}
}

// Create handles POST /api/v1/businesses.
func (h *BusinessHandler) Create(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBusiness(w, r)
	if !ok {
		return
	}

	business, err := h.svc.CreateBusiness(r.Context(), toBusinessInput(req))
	if err != nil {
		h.handleServiceError(w, err, opCreate)
		return
	}

	h.logger.InfoContext(r.Context(), "business_created",
		"business_id", business.ID,
		"user_id", business.UserID,
	)

	writeJSON(w, http.StatusCreated, dto.BusinessEnvelope{
		Success:  true,
		Business: dto.ToBusinessResponse(business),
	})
}

// List handles GET /api/v1/businesses.
func (h *BusinessHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	input := service.ListBusinessesInput{
		UserID:  query.Get("user_id"),
		Search:  query.Get("search"),
		Page:    queryInt(query.Get("page")),
		PerPage: queryInt(query.Get("per_page")),
		Limit:   queryInt(query.Get("limit")),
	}

	result, err := h.svc.ListBusinesses(r.Context(), input)
	if err != nil {
		h.handleServiceError(w, err, opList)
		return
	}

	p := result.Pagination
	writeJSON(w, http.StatusOK, dto.BusinessListEnvelope{
		Success:    true,
		Businesses: dto.ToBusinessListResponse(result.Businesses),
		Pagination: dto.PaginationResponse{
			Total:       p.Total,
			Pages:       p.Pages,
			PerPage:     p.PerPage,
			CurrentPage: p.CurrentPage,
			HasPrev:     p.HasPrev,
			HasNext:     p.HasNext,
		},
	})
}

// Get handles GET /api/v1/businesses/{id}.
func (h *BusinessHandler) Get(w http.ResponseWriter, r *http.Request) {
	business, err := h.svc.GetBusiness(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleServiceError(w, err, opGet)
		return
	}

	writeJSON(w, http.StatusOK, dto.BusinessEnvelope{
		Success:  true,
		Business: dto.ToBusinessResponse(business),
	})
}

// Update handles PUT and PATCH /api/v1/businesses/{id}.
func (h *BusinessHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := service.ParseID(id); err != nil {
		h.handleServiceError(w, err, opUpdate)
		return
	}

	req, ok := h.decodeBusiness(w, r)
	if !ok {
		return
	}

	business, err := h.svc.UpdateBusiness(r.Context(), id, toBusinessInput(req))
	if err != nil {
		h.handleServiceError(w, err, opUpdate)
		return
	}

	h.logger.InfoContext(r.Context(), "business_updated",
		"business_id", business.ID,
		"user_id", business.UserID,
	)

	writeJSON(w, http.StatusOK, dto.BusinessEnvelope{
		Success:  true,
		Business: dto.ToBusinessResponse(business),
	})
}

// Delete handles DELETE /api/v1/businesses/{id}.
func (h *BusinessHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.DeleteBusiness(r.Context(), id); err != nil {
		h.handleServiceError(w, err, opDelete)
		return
	}

	h.logger.InfoContext(r.Context(), "business_deleted", "business_id", id)

	writeJSON(w, http.StatusOK, dto.MessageResponse{
		Success: true,
		Message: "Business deleted successfully",
	})
}

// decodeBusiness reads the request body. It writes the error response and
// returns false when the body is missing, empty or malformed.
func (h *BusinessHandler) decodeBusiness(w http.ResponseWriter, r *http.Request) (dto.BusinessRequest, bool) {
	var req dto.BusinessRequest

	err := decodeObject(r, &req)
	switch {
	case err == nil:
		return req, true
	case errors.Is(err, errNoData):
		h.writeError(w, http.StatusBadRequest, "NO_DATA", "No data provided")
	default:
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
	}
	return req, false
}

// decodeObject decodes a JSON object body into dst. An absent body, "null"
// and "{}" all yield errNoData.
func decodeObject(r *http.Request, dst any) error {
	if r.Body == nil {
		return errNoData
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return errNoData
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return errNoData
	}

	return json.Unmarshal(body, dst)
}

func toBusinessInput(req dto.BusinessRequest) service.BusinessInput {
	return service.BusinessInput{
		UserID:  req.UserID,
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
		Phone:   req.Phone,
		Website: req.Website,
		LogoURL: req.LogoURL,
		TaxID:   req.TaxID,
	}
}

// queryInt parses a query integer; missing or malformed values yield 0 so
// the service applies its defaults.
func queryInt(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

// handleServiceError maps service errors to HTTP responses.
func (h *BusinessHandler) handleServiceError(w http.ResponseWriter, err error, op string) {
	var (
		validationErr *service.ValidationError
		attachedErr   *service.InvoicesAttachedError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:  "Validation failed",
			Code:   "VALIDATION_FAILED",
			Errors: validationErr.Errors,
		})
	case errors.Is(err, service.ErrUserIDRequired):
		h.writeError(w, http.StatusBadRequest, "USER_ID_REQUIRED", "user_id is required")
	case errors.Is(err, service.ErrInvalidID) && op == opList:
		h.writeError(w, http.StatusBadRequest, "INVALID_USER_ID", "Invalid user_id format")
	case errors.Is(err, service.ErrInvalidID):
		h.writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid business ID format")
	case errors.Is(err, service.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found. Please log in again.")
	case errors.Is(err, service.ErrBusinessNotFound):
		h.writeError(w, http.StatusNotFound, "BUSINESS_NOT_FOUND", "Business not found")
	case errors.Is(err, service.ErrBusinessLimitReached):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{
			Error:        "Business limit reached",
			Code:         "BUSINESS_LIMIT_REACHED",
			LimitReached: true,
			Message:      LimitReachedMessage,
		})
	case errors.Is(err, service.ErrBusinessEmailExists) && op == opUpdate:
		h.writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Another business with this email already exists")
	case errors.Is(err, service.ErrBusinessEmailExists):
		h.writeError(w, http.StatusConflict, "EMAIL_EXISTS", "Business with this email already exists")
	case errors.As(err, &attachedErr):
		h.writeError(w, http.StatusBadRequest, "BUSINESS_HAS_INVOICES",
			fmt.Sprintf("Cannot delete business. Business has %d associated invoices.", attachedErr.Count))
	default:
		// The service has already logged the cause.
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", internalMessages[op])
	}
}

func (h *BusinessHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
