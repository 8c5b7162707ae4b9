package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/text/cases"

	"github.com/rarewear/storefront-api/internal/domain"
	pfirestore "github.com/rarewear/storefront-api/internal/platform/firestore"
	"github.com/rarewear/storefront-api/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products in Firestore.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	products := pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil)
	return &ProductRepository{provider: provider, products: products}, nil
}

// Insert stores a new product, failing when the ID already exists.
func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product insert: id is required")
	}

	_, err := r.products.Create(ctx, product.ID, newProductDocument(product))
	return err
}

// Update overwrites the product document.
func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	if strings.TrimSpace(product.ID) == "" {
		return errors.New("product update: id is required")
	}

	doc := newProductDocument(product)
	docRef, err := r.products.DocumentRef(ctx, product.ID)
	if err != nil {
		return err
	}
	// Write inside a transaction so updates cannot resurrect a deleted product.
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(docRef); err != nil {
			return pfirestore.WrapError("products.update", err)
		}
		if err := tx.Set(docRef, doc); err != nil {
			return pfirestore.WrapError("products.update", err)
		}
		return nil
	})
}

// Delete removes the product document. Missing documents are not an error.
func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	if r == nil || r.products == nil {
		return errors.New("product repository not initialised")
	}
	return r.products.Delete(ctx, productID)
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.products == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}

	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns a page of products newest first. Category, gender, stock
// filters and offset pagination run server side. Free-text search is folded
// case-insensitively in memory because Firestore has no substring operator;
// it scans at most the newest searchWindowLimit documents matching the other
// filters, and totals count matches within that window.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	if r == nil || r.products == nil {
		return domain.Page[domain.Product]{}, errors.New("product repository not initialised")
	}

	build := func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		if gender := strings.TrimSpace(filter.Gender); gender != "" {
			q = q.Where("gender", "==", gender)
		}
		if filter.InStockOnly {
			q = q.Where("inStock", "==", true)
		}
		return q.OrderBy("createdAt", firestore.Desc)
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
			return build(q).Limit(searchWindowLimit)
		})
		if err != nil {
			return domain.Page[domain.Product]{}, err
		}
		products := make([]domain.Product, 0, len(docs))
		for _, doc := range docs {
			products = append(products, doc.Data.toDomain(doc.ID))
		}
		return pageOf(filterProductsBySearch(products, search), filter.Page, filter.Limit), nil
	}

	docs, total, err := queryPage(ctx, r.products, build, filter.Page, filter.Limit)
	if err != nil {
		return domain.Page[domain.Product]{}, err
	}
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID))
	}
	return pagedResult(products, total, filter.Page, filter.Limit), nil
}

func filterProductsBySearch(products []domain.Product, search string) []domain.Product {
	folder := cases.Fold()
	needle := folder.String(search)

	matched := products[:0]
	for _, product := range products {
		haystack := folder.String(product.Name + " " + product.Subtitle + " " + product.Description)
		if strings.Contains(haystack, needle) {
			matched = append(matched, product)
		}
	}
	return matched
}

// searchWindowLimit caps how many documents a free-text search fetches; the
// substring match has to run in memory, so the scan stops at the newest
// window rather than the whole collection.
const searchWindowLimit = 500

// queryPage runs the filtered query with server-side offset pagination and a
// matching aggregation count, so plain listings never materialise the whole
// collection.
func queryPage[T any](ctx context.Context, repo *pfirestore.BaseRepository[T], build pfirestore.QueryBuilder, page, limit int) ([]pfirestore.Document[T], int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	countQuery, err := repo.CollectionQuery(ctx)
	if err != nil {
		return nil, 0, err
	}
	if build != nil {
		countQuery = build(countQuery)
	}
	total, err := aggregateCount(ctx, countQuery)
	if err != nil {
		return nil, 0, err
	}

	docs, err := repo.Query(ctx, func(q firestore.Query) firestore.Query {
		if build != nil {
			q = build(q)
		}
		return q.Offset((page - 1) * limit).Limit(limit)
	})
	if err != nil {
		return nil, 0, err
	}
	return docs, int(total), nil
}

// pageOf slices an in-memory result set into a 1-indexed offset page.
func pageOf[T any](items []T, page, limit int) domain.Page[T] {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	total := len(items)
	low := (page - 1) * limit
	if low > total {
		low = total
	}
	high := low + limit
	if high > total {
		high = total
	}

	out := make([]T, high-low)
	copy(out, items[low:high])
	return pagedResult(out, total, page, limit)
}

// pagedResult wraps an already-sliced page of items with offset metadata.
func pagedResult[T any](items []T, total, page, limit int) domain.Page[T] {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	pages := 0
	if total > 0 {
		pages = (total + limit - 1) / limit
	}
	return domain.Page[T]{
		Items: items,
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	}
}

// Document structures --------------------------------------------------------

type productDocument struct {
	Name            string    `firestore:"name"`
	Subtitle        string    `firestore:"subtitle,omitempty"`
	Description     string    `firestore:"description,omitempty"`
	LongDescription string    `firestore:"longDescription,omitempty"`
	MRP             int64     `firestore:"mrp"`
	Price           int64     `firestore:"price"`
	Discount        int       `firestore:"discount"`
	Images          []string  `firestore:"images,omitempty"`
	Colors          []string  `firestore:"colors,omitempty"`
	Sizes           []string  `firestore:"sizes,omitempty"`
	Category        string    `firestore:"category"`
	Gender          string    `firestore:"gender,omitempty"`
	Features        []string  `firestore:"features,omitempty"`
	FabricCare      []string  `firestore:"fabricCare,omitempty"`
	Rating          float64   `firestore:"rating"`
	Reviews         int       `firestore:"reviews"`
	InStock         bool      `firestore:"inStock"`
	StockQuantity   int       `firestore:"stockQuantity"`
	SKU             string    `firestore:"sku,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// recalculate keeps the derived availability flag consistent with stock.
func (d *productDocument) recalculate() {
	d.InStock = d.StockQuantity > 0
}

func newProductDocument(product domain.Product) productDocument {
	doc := productDocument{
		Name:            strings.TrimSpace(product.Name),
		Subtitle:        strings.TrimSpace(product.Subtitle),
		Description:     strings.TrimSpace(product.Description),
		LongDescription: strings.TrimSpace(product.LongDescription),
		MRP:             product.MRP,
		Price:           product.Price,
		Discount:        product.Discount,
		Images:          product.Images,
		Colors:          product.Colors,
		Sizes:           product.Sizes,
		Category:        strings.TrimSpace(product.Category),
		Gender:          strings.TrimSpace(product.Gender),
		Features:        product.Features,
		FabricCare:      product.FabricCare,
		Rating:          product.Rating,
		Reviews:         product.Reviews,
		StockQuantity:   product.StockQuantity,
		SKU:             strings.TrimSpace(product.SKU),
		CreatedAt:       product.CreatedAt.UTC(),
		UpdatedAt:       product.UpdatedAt.UTC(),
	}
	doc.recalculate()
	return doc
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:              id,
		Name:            d.Name,
		Subtitle:        d.Subtitle,
		Description:     d.Description,
		LongDescription: d.LongDescription,
		MRP:             d.MRP,
		Price:           d.Price,
		Discount:        d.Discount,
		Images:          d.Images,
		Colors:          d.Colors,
		Sizes:           d.Sizes,
		Category:        d.Category,
		Gender:          d.Gender,
		Features:        d.Features,
		FabricCare:      d.FabricCare,
		Rating:          d.Rating,
		Reviews:         d.Reviews,
		InStock:         d.StockQuantity > 0,
		StockQuantity:   d.StockQuantity,
		SKU:             d.SKU,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func (d productDocument) stockLevel(id string) domain.StockLevel {
	return domain.StockLevel{
		ProductID:     id,
		Name:          d.Name,
		SKU:           d.SKU,
		StockQuantity: d.StockQuantity,
		InStock:       d.StockQuantity > 0,
		UpdatedAt:     d.UpdatedAt,
	}
}

var errProductDecode = errors.New("decode product document")

func decodeProduct(snap *firestore.DocumentSnapshot) (productDocument, error) {
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return productDocument{}, fmt.Errorf("%w %s: %v", errProductDecode, snap.Ref.ID, err)
	}
	return doc, nil
}
