package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

const productIDPrefix = "prd_"

var (
	// ErrCatalogInvalidInput signals the caller provided invalid product data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrCatalogConflict indicates a duplicate product id or concurrent write.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products repositories.ProductRepository
	clock    func() time.Time
	newID    func() string
	sanitise *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	return &catalogService{
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		sanitise: bluemonday.UGCPolicy(),
	}, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (domain.Product, error) {
	product, err := s.buildProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}

	now := s.clock()
	product.ID = productIDPrefix + s.newID()
	product.CreatedAt = now
	product.UpdatedAt = now

	if err := s.products.Insert(ctx, product); err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	existing, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}

	product, err := s.buildProduct(cmd)
	if err != nil {
		return domain.Product{}, err
	}
	product.ID = productID
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = s.clock()

	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	// Deletion leaves historical orders untouched; their item snapshots are frozen.
	if _, err := s.products.FindByID(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}
	return nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return domain.Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) QueryProducts(ctx context.Context, query ProductQuery) (domain.Page[domain.Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		Category:    strings.TrimSpace(query.Category),
		Gender:      strings.TrimSpace(query.Gender),
		Search:      strings.TrimSpace(query.Search),
		InStockOnly: query.InStockOnly,
		Page:        query.Page,
		Limit:       query.Limit,
	})
	if err != nil {
		return domain.Page[domain.Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

// buildProduct validates the command and derives discount and availability.
func (s *catalogService) buildProduct(cmd UpsertProductCommand) (domain.Product, error) {
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		return domain.Product{}, fmt.Errorf("%w: description is required", ErrCatalogInvalidInput)
	}
	if cmd.MRP <= 0 {
		return domain.Product{}, fmt.Errorf("%w: mrp must be positive", ErrCatalogInvalidInput)
	}
	if cmd.Price < 0 {
		return domain.Product{}, fmt.Errorf("%w: price cannot be negative", ErrCatalogInvalidInput)
	}
	if cmd.Price > cmd.MRP {
		return domain.Product{}, fmt.Errorf("%w: price cannot exceed mrp", ErrCatalogInvalidInput)
	}
	if cmd.StockQuantity < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock quantity cannot be negative", ErrCatalogInvalidInput)
	}

	return domain.Product{
		Name:            name,
		Subtitle:        strings.TrimSpace(cmd.Subtitle),
		Description:     s.sanitise.Sanitize(description),
		LongDescription: s.sanitise.Sanitize(strings.TrimSpace(cmd.LongDescription)),
		MRP:             cmd.MRP,
		Price:           cmd.Price,
		Discount:        discountPercent(cmd.MRP, cmd.Price),
		Images:          trimAll(cmd.Images),
		Colors:          trimAll(cmd.Colors),
		Sizes:           trimAll(cmd.Sizes),
		Category:        strings.TrimSpace(cmd.Category),
		Gender:          strings.TrimSpace(cmd.Gender),
		Features:        trimAll(cmd.Features),
		FabricCare:      trimAll(cmd.FabricCare),
		Rating:          cmd.Rating,
		Reviews:         cmd.Reviews,
		InStock:         cmd.StockQuantity > 0,
		StockQuantity:   cmd.StockQuantity,
		SKU:             strings.TrimSpace(cmd.SKU),
	}, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return err
}

// discountPercent derives the rounded percentage saved against MRP.
func discountPercent(mrp, price int64) int {
	if mrp <= 0 || price >= mrp {
		return 0
	}
	return int(math.Round(float64(mrp-price) / float64(mrp) * 100))
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
