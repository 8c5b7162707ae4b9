package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/platform/pagination"
	"github.com/rarewear/storefront-api/internal/services"
)

// ProductHandlers exposes the public catalog endpoints.
type ProductHandlers struct {
	catalog services.CatalogService
}

// NewProductHandlers constructs a new ProductHandlers instance.
func NewProductHandlers(catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers the public /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	params := pagination.Parse(query)

	page, err := h.catalog.QueryProducts(ctx, services.ProductQuery{
		Category:    strings.TrimSpace(query.Get("category")),
		Gender:      strings.TrimSpace(query.Get("gender")),
		Search:      strings.TrimSpace(query.Get("search")),
		InStockOnly: query.Get("inStock") == "true",
		Page:        params.Page,
		Limit:       params.Limit,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildPagePayload(page, buildProductPayload))
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productID"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.GetProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponse{Product: buildProductPayload(product)})
}

type productResponse struct {
	Product productPayload `json:"product"`
}

type productPayload struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Subtitle        string   `json:"subtitle,omitempty"`
	Description     string   `json:"description,omitempty"`
	LongDescription string   `json:"longDescription,omitempty"`
	MRP             int64    `json:"mrp"`
	Price           int64    `json:"price"`
	Discount        int      `json:"discount"`
	Images          []string `json:"images,omitempty"`
	Colors          []string `json:"colors,omitempty"`
	Sizes           []string `json:"sizes,omitempty"`
	Category        string   `json:"category,omitempty"`
	Gender          string   `json:"gender,omitempty"`
	Features        []string `json:"features,omitempty"`
	FabricCare      []string `json:"fabricCare,omitempty"`
	Rating          float64  `json:"rating"`
	Reviews         int      `json:"reviews"`
	InStock         bool     `json:"inStock"`
	StockQuantity   int      `json:"stockQuantity"`
	SKU             string   `json:"sku,omitempty"`
	CreatedAt       string   `json:"createdAt,omitempty"`
	UpdatedAt       string   `json:"updatedAt,omitempty"`
}

func buildProductPayload(product domain.Product) productPayload {
	return productPayload{
		ID:              product.ID,
		Name:            product.Name,
		Subtitle:        product.Subtitle,
		Description:     product.Description,
		LongDescription: product.LongDescription,
		MRP:             product.MRP,
		Price:           product.Price,
		Discount:        product.Discount,
		Images:          product.Images,
		Colors:          product.Colors,
		Sizes:           product.Sizes,
		Category:        product.Category,
		Gender:          product.Gender,
		Features:        product.Features,
		FabricCare:      product.FabricCare,
		Rating:          product.Rating,
		Reviews:         product.Reviews,
		InStock:         product.InStock,
		StockQuantity:   product.StockQuantity,
		SKU:             product.SKU,
		CreatedAt:       formatTime(product.CreatedAt),
		UpdatedAt:       formatTime(product.UpdatedAt),
	}
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCatalogConflict):
		httpx.WriteError(ctx, w, httpx.NewError("product_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrStoreUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "catalog store temporarily unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
