package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/yourorg/bookingsystem/internal/domain"
	"github.com/yourorg/bookingsystem/internal/security/middleware"
)

// ItemResponse is the wire form of an item
type ItemResponse struct {
	ID          int64  `json:"id"`
	ItemType    string `json:"itemType"`
	Description string `json:"description,omitempty"`
	Status      bool   `json:"status"`
}

// ItemRequest creates or updates an item (superuser only)
type ItemRequest struct {
	ItemType    string `json:"itemType"`
	Description string `json:"description,omitempty"`
	Status      *bool  `json:"status,omitempty"`
}

// ItemsHandler serves the item catalog
type ItemsHandler struct {
	items  domain.ItemRepository
	logger *slog.Logger
}

// NewItemsHandler creates an items handler
func NewItemsHandler(items domain.ItemRepository, logger *slog.Logger) *ItemsHandler {
	return &ItemsHandler{items: items, logger: logger}
}

// List handles GET /api/items
func (h *ItemsHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.items.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]ItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toItemResponse(item))
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /api/items/{id}
func (h *ItemsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "item id must be an integer"})
		return
	}
	item, err := h.items.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

// Create handles POST /api/items (superuser only)
func (h *ItemsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerFromContext(r.Context())
	if caller == nil || !caller.Superuser {
		writeError(w, h.logger, domain.ErrForbidden)
		return
	}

	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}
	if req.ItemType == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "itemType is required"})
		return
	}

	item := &domain.Item{
		ItemType:    req.ItemType,
		Description: req.Description,
		Status:      true,
	}
	if req.Status != nil {
		item.Status = *req.Status
	}
	if err := h.items.Create(r.Context(), item); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

// Update handles PUT /api/items/{id} (superuser only). Flipping status
// off makes the item unbookable without touching existing reservations.
func (h *ItemsHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetCallerFromContext(r.Context())
	if caller == nil || !caller.Superuser {
		writeError(w, h.logger, domain.ErrForbidden)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body", Message: "item id must be an integer"})
		return
	}

	item, err := h.items.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	var req ItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid_body"})
		return
	}
	if req.ItemType != "" {
		item.ItemType = req.ItemType
	}
	if req.Description != "" {
		item.Description = req.Description
	}
	if req.Status != nil {
		item.Status = *req.Status
	}

	if err := h.items.Update(r.Context(), item); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(item))
}

func toItemResponse(item *domain.Item) ItemResponse {
	return ItemResponse{
		ID:          item.ID,
		ItemType:    item.ItemType,
		Description: item.Description,
		Status:      item.Status,
	}
}
