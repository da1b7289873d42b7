package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/imu-filing/services/drafts"
	"github.com/upb/imu-filing/utils"
)

// DraftStore keeps partially filled forms between visits
type DraftStore interface {
	Create(ctx context.Context, data json.RawMessage) (*drafts.Draft, error)
	Save(ctx context.Context, id uuid.UUID, data json.RawMessage) (*drafts.Draft, error)
	Load(ctx context.Context, id uuid.UUID) (*drafts.Draft, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// DraftRequest carries the opaque form state
type DraftRequest struct {
	Data json.RawMessage `json:"data"`
}

// DraftHandler handles form draft requests
type DraftHandler struct {
	store  DraftStore
	logger *zap.Logger
}

// NewDraftHandler creates a new DraftHandler
func NewDraftHandler(store DraftStore, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{
		store:  store,
		logger: logger,
	}
}

// HandleCreate handles POST /api/v1/drafts
func (h *DraftHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	draft, err := h.store.Create(r.Context(), req.Data)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteCreated(w, draft)
}

// HandleSave handles PUT /api/v1/drafts/{id}
func (h *DraftHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req DraftRequest
	if !decodeAndValidate(w, r, &req, h.logger) {
		return
	}

	draft, err := h.store.Save(r.Context(), id, req.Data)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, draft)
}

// HandleLoad handles GET /api/v1/drafts/{id}
func (h *DraftHandler) HandleLoad(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	draft, err := h.store.Load(r.Context(), id)
	if err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	_ = utils.WriteOK(w, draft)
}

// HandleDelete handles DELETE /api/v1/drafts/{id}
func (h *DraftHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	utils.WriteNoContent(w)
}
