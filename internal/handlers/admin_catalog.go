package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/platform/pagination"
	"github.com/rarewear/storefront-api/internal/services"
)

const maxProductBodyBytes = 256 * 1024

// AdminCatalogHandlers exposes product management and inventory endpoints for
// back office operators.
type AdminCatalogHandlers struct {
	catalog   services.CatalogService
	inventory services.InventoryService
}

// NewAdminCatalogHandlers constructs a new AdminCatalogHandlers instance.
func NewAdminCatalogHandlers(catalog services.CatalogService, inventory services.InventoryService) *AdminCatalogHandlers {
	return &AdminCatalogHandlers{catalog: catalog, inventory: inventory}
}

// Routes registers the admin catalog endpoints.
func (h *AdminCatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/products", h.createProduct)
	r.Put("/products/{productID}", h.updateProduct)
	r.Delete("/products/{productID}", h.deleteProduct)
	r.Post("/products/{productID}/stock", h.adjustStock)
	r.Get("/inventory/low-stock", h.listLowStock)
}

type productRequest struct {
	Name            string   `json:"name"`
	Subtitle        string   `json:"subtitle"`
	Description     string   `json:"description"`
	LongDescription string   `json:"longDescription"`
	MRP             int64    `json:"mrp"`
	Price           int64    `json:"price"`
	Images          []string `json:"images"`
	Colors          []string `json:"colors"`
	Sizes           []string `json:"sizes"`
	Category        string   `json:"category"`
	Gender          string   `json:"gender"`
	Features        []string `json:"features"`
	FabricCare      []string `json:"fabricCare"`
	Rating          float64  `json:"rating"`
	Reviews         int      `json:"reviews"`
	StockQuantity   int      `json:"stockQuantity"`
	SKU             string   `json:"sku"`
}

func (r productRequest) toCommand() services.UpsertProductCommand {
	return services.UpsertProductCommand{
		Name:            r.Name,
		Subtitle:        r.Subtitle,
		Description:     r.Description,
		LongDescription: r.LongDescription,
		MRP:             r.MRP,
		Price:           r.Price,
		Images:          r.Images,
		Colors:          r.Colors,
		Sizes:           r.Sizes,
		Category:        r.Category,
		Gender:          r.Gender,
		Features:        r.Features,
		FabricCare:      r.FabricCare,
		Rating:          r.Rating,
		Reviews:         r.Reviews,
		StockQuantity:   r.StockQuantity,
		SKU:             r.SKU,
	}
}

func (h *AdminCatalogHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := readLimitedBody(r, maxProductBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req productRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.CreateProduct(ctx, req.toCommand())
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxProductBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req productRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	product, err := h.catalog.UpdateProduct(ctx, productID, req.toCommand())
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

func (h *AdminCatalogHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	if err := h.catalog.DeleteProduct(ctx, productID); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"deleted": true, "id": productID})
}

type adjustStockRequest struct {
	Delta    *int `json:"delta"`
	Absolute *int `json:"absolute"`
}

func (h *AdminCatalogHandlers) adjustStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxOrderBodyBytes)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req adjustStockRequest
	if err := decodeJSONBody(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	level, err := h.inventory.AdjustStock(ctx, services.AdjustStockCommand{
		ProductID: productID,
		Delta:     req.Delta,
		Absolute:  req.Absolute,
		ActorID:   identity.UID,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, stockLevelResponse{Stock: buildStockLevelPayload(level)})
}

func (h *AdminCatalogHandlers) listLowStock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	params := pagination.Parse(query)

	threshold := 0
	if raw := strings.TrimSpace(query.Get("threshold")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "threshold must be a non-negative integer", http.StatusBadRequest))
			return
		}
		threshold = parsed
	}

	page, err := h.inventory.ListLowStock(ctx, services.LowStockQuery{
		Threshold: threshold,
		Page:      params.Page,
		Limit:     params.Limit,
	})
	if err != nil {
		writeInventoryError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildStockLevelPayload))
}

type stockLevelResponse struct {
	Stock stockLevelPayload `json:"stock"`
}

type stockLevelPayload struct {
	ProductID     string `json:"productId"`
	Name          string `json:"name,omitempty"`
	SKU           string `json:"sku,omitempty"`
	StockQuantity int    `json:"stockQuantity"`
	InStock       bool   `json:"inStock"`
	UpdatedAt     string `json:"updatedAt,omitempty"`
}

func buildStockLevelPayload(level domain.StockLevel) stockLevelPayload {
	return stockLevelPayload{
		ProductID:     level.ProductID,
		Name:          level.Name,
		SKU:           level.SKU,
		StockQuantity: level.StockQuantity,
		InStock:       level.InStock,
		UpdatedAt:     formatTime(level.UpdatedAt),
	}
}

func writeInventoryError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrInventoryInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrStockNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("stock_not_found", "stock record not found", http.StatusNotFound))
	case errors.Is(err, services.ErrNegativeStock):
		httpx.WriteError(ctx, w, httpx.NewError("negative_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "inventory store temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("inventory_error", "failed to process inventory request", http.StatusInternalServerError))
	}
}
