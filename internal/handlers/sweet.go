package handlers

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/sweetshop/apiserver/internal/services"
	"github.com/sweetshop/apiserver/types"
	"go.uber.org/zap"
)

// SweetHandler provides HTTP handlers for the sweets catalog.
type SweetHandler struct {
	inventory *services.InventoryService
	logger    *zap.Logger
}

// NewSweetHandler constructs a handler with the provided service.
func NewSweetHandler(inventory *services.InventoryService, logger *zap.Logger) *SweetHandler {
	return &SweetHandler{
		inventory: inventory,
		logger:    logger,
	}
}

// SweetRouter registers sweet routes on the given router. Every route
// requires authentication; catalog management also requires the admin role.
func SweetRouter(
	r chi.Router,
	inventory *services.InventoryService,
	authMiddleware func(http.Handler) http.Handler,
	logger *zap.Logger,
) {
	handler := NewSweetHandler(inventory, logger)
	requireAdmin := RequireRole(types.RoleAdmin, logger)

	r.Use(authMiddleware)

	r.Get("/", handler.List)
	r.Get("/search", handler.Search)
	r.Post("/{id}/purchase", handler.Purchase)

	r.Group(func(r chi.Router) {
		r.Use(requireAdmin)
		r.Post("/", handler.Create)
		r.Put("/{id}", handler.Update)
		r.Delete("/{id}", handler.Delete)
		r.Post("/{id}/restock", handler.Restock)
	})
}

type CreateSweetRequest struct {
	Name     string   `json:"name"`
	Category string   `json:"category"`
	Price    *float64 `json:"price"`
	Quantity *int     `json:"quantity,omitempty"`
}

type QuantityRequest struct {
	Quantity *int `json:"quantity"`
}

type SweetResponse struct {
	Message string      `json:"message"`
	Sweet   types.Sweet `json:"sweet"`
}

type SweetListResponse struct {
	Sweets []types.Sweet `json:"sweets"`
}

// List returns every sweet, newest first.
func (h *SweetHandler) List(w http.ResponseWriter, r *http.Request) {
	sweets, err := h.inventory.List(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SweetListResponse{Sweets: sweets})
}

// Search filters sweets by name, category and price range.
func (h *SweetHandler) Search(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSearchFilter(r)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	sweets, err := h.inventory.Search(r.Context(), filter)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SweetListResponse{Sweets: sweets})
}

// Create adds a sweet to the catalog.
func (h *SweetHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateSweetRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	sweet, err := h.inventory.Create(r.Context(), services.CreateSweetInput{
		Name:     req.Name,
		Category: req.Category,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, SweetResponse{Message: "Sweet created successfully", Sweet: sweet})
}

// Update applies a partial update; absent fields are left unchanged.
func (h *SweetHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch types.SweetPatch
	if err := decodeJSON(r, &patch, false); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	sweet, err := h.inventory.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SweetResponse{Message: "Sweet updated successfully", Sweet: sweet})
}

// Delete removes a sweet.
func (h *SweetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.inventory.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Sweet deleted successfully"})
}

// Purchase buys the requested quantity, one unit when the body is empty.
func (h *SweetHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	sweet, err := h.inventory.Purchase(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SweetResponse{Message: "Purchase successful", Sweet: sweet})
}

// Restock adds the requested quantity to stock.
func (h *SweetHandler) Restock(w http.ResponseWriter, r *http.Request) {
	var req QuantityRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	sweet, err := h.inventory.Restock(r.Context(), chi.URLParam(r, "id"), req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, SweetResponse{Message: "Restock successful", Sweet: sweet})
}

func parseSearchFilter(r *http.Request) (types.SearchFilter, error) {
	query := r.URL.Query()
	filter := types.SearchFilter{
		Name:     strings.TrimSpace(query.Get("name")),
		Category: strings.TrimSpace(query.Get("category")),
	}

	verr := &services.ValidationError{}
	filter.MinPrice = parsePrice(query.Get("minPrice"), "minPrice", verr)
	filter.MaxPrice = parsePrice(query.Get("maxPrice"), "maxPrice", verr)
	if err := verr.OrNil(); err != nil {
		return types.SearchFilter{}, err
	}
	return filter, nil
}

func parsePrice(raw, field string, verr *services.ValidationError) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		verr.Add(field, "must be a number")
		return nil
	}
	return &value
}
