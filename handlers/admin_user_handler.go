package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/services/audit"
	"github.com/upb/imu-filing/services/users"
	"github.com/upb/imu-filing/utils"
)

// UserAdminService defines back-office account management
type UserAdminService interface {
	List(ctx context.Context, filter models.UserFilter) ([]*models.User, int, error)
	Get(ctx context.Context, id uuid.UUID) (*models.User, error)
	Create(ctx context.Context, req users.CreateUserRequest, meta audit.Meta) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, req users.UpdateUserRequest, meta audit.Meta) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID, meta audit.Meta) error
	ResetPassword(ctx context.Context, id uuid.UUID, password string, meta audit.Meta) error
}

// ResetPasswordRequest is the body of the password reset endpoint
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,password,max=72"`
}

// AdminUserHandler handles back-office user management
type AdminUserHandler struct {
	service UserAdminService
	logger  *zap.Logger
}

// NewAdminUserHandler creates a new AdminUserHandler
func NewAdminUserHandler(service UserAdminService, logger *zap.Logger) *AdminUserHandler {
	return &AdminUserHandler{
		service: service,
		logger:  logger,
	}
}

// HandleList handles GET /api/v1/admin/users
func (h *AdminUserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.UserFilter{Search: q.Get("search")}
	if role := q.Get("role"); role != "" {
		ur := models.UserRole(role)
		if !ur.IsValid() {
			_ = utils.WriteBadRequest(w, "role must be one of: admin, operator, customer", nil)
			return
		}
		filter.Role = &ur
	}
	filter.Limit, filter.Offset = utils.ParsePagination(r)

	list, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = writeList(w, list, total, filter.Limit, filter.Offset)
}

// HandleGet handles GET /api/v1/admin/users/{id}
func (h *AdminUserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, user)
}

// HandleCreate handles POST /api/v1/admin/users
func (h *AdminUserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req users.CreateUserRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	user, err := h.service.Create(r.Context(), req, requestMeta(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, user)
}

// HandleUpdate handles PATCH /api/v1/admin/users/{id}
func (h *AdminUserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req users.UpdateUserRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	user, err := h.service.Update(r.Context(), id, req, requestMeta(r))
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, user)
}

// HandleDelete handles DELETE /api/v1/admin/users/{id}
func (h *AdminUserHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, requestMeta(r)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}

// HandleResetPassword handles POST /api/v1/admin/users/{id}/reset-password
func (h *AdminUserHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req ResetPasswordRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	if err := h.service.ResetPassword(r.Context(), id, req.Password, requestMeta(r)); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
