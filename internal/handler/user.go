package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/invoicely/invoicely/internal/handler/dto"
	"github.com/invoicely/invoicely/internal/service"
)

// UserHandler handles HTTP requests for user reconciliation.
type UserHandler struct {
	svc    *service.UserSyncService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserSyncService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:    svc,
		logger: logger,
	}
}

// Sync handles POST /api/v1/users/sync.
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	var req dto.SyncUserRequest
	if err := decodeObject(r, &req); err != nil && !errors.Is(err, errNoData) {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	user, err := h.svc.ResolveOrCreate(r.Context(), service.SyncUserInput{
		ExternalID: req.ExternalID,
		Email:      req.Email,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExternalIDRequired):
			h.writeError(w, http.StatusBadRequest, "EXTERNAL_ID_REQUIRED", "external_id is required")
		default:
			h.writeError(w, http.StatusInternalServerError, "USER_SYNC_FAILED", "Failed to sync user")
		}
		return
	}

	h.logger.InfoContext(r.Context(), "user_synced",
		"user_id", user.ID,
		"external_id", req.ExternalID,
	)

	writeJSON(w, http.StatusOK, dto.UserEnvelope{
		Success: true,
		User:    dto.ToUserResponse(user),
	})
}

func (h *UserHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
