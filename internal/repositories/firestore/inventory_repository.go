package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rarewear/storefront-api/internal/domain"
	pfirestore "github.com/rarewear/storefront-api/internal/platform/firestore"
	"github.com/rarewear/storefront-api/internal/repositories"
)

// InventoryRepository manages product stock outside the order lifecycle:
// manual adjustments, absolute restocks and low-stock reporting.
type InventoryRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	effects  *pfirestore.BaseRepository[stockEffectDocument]
	now      func() time.Time
}

// InventoryRepositoryOption customises InventoryRepository construction.
type InventoryRepositoryOption func(*InventoryRepository)

// WithInventoryClock injects a custom clock, primarily for tests.
func WithInventoryClock(clock func() time.Time) InventoryRepositoryOption {
	return func(r *InventoryRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// NewInventoryRepository constructs a Firestore backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider, opts ...InventoryRepositoryOption) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	repo := &InventoryRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		effects:  pfirestore.NewBaseRepository[stockEffectDocument](provider, stockEffectsCollection, nil, nil),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// AdjustStock applies a relative stock delta inside a transaction, refusing
// adjustments that would drive the quantity negative.
func (r *InventoryRepository) AdjustStock(ctx context.Context, productID string, delta int) (domain.StockLevel, error) {
	return r.mutateStock(ctx, "inventory.adjust", productID, func(current int) (int, error) {
		next := current + delta
		if next < 0 {
			return 0, &repositories.InventoryError{
				Code:      repositories.InventoryErrorNegativeStock,
				Message:   fmt.Sprintf("adjustment would drive stock for product %s below zero", productID),
				ProductID: productID,
			}
		}
		return next, nil
	})
}

// SetStock replaces the stock quantity with an absolute value.
func (r *InventoryRepository) SetStock(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	return r.mutateStock(ctx, "inventory.set", productID, func(int) (int, error) {
		if quantity < 0 {
			return 0, &repositories.InventoryError{
				Code:      repositories.InventoryErrorNegativeStock,
				Message:   fmt.Sprintf("stock for product %s cannot be negative", productID),
				ProductID: productID,
			}
		}
		return quantity, nil
	})
}

func (r *InventoryRepository) mutateStock(ctx context.Context, op, productID string, next func(current int) (int, error)) (domain.StockLevel, error) {
	if r == nil || r.provider == nil {
		return domain.StockLevel{}, errors.New("inventory repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.StockLevel{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, "inventory: product id is required", nil)
	}

	var level domain.StockLevel
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		productRef, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(productRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return &repositories.InventoryError{
					Code:      repositories.InventoryErrorProductNotFound,
					Message:   fmt.Sprintf("product %s not found", productID),
					ProductID: productID,
					Err:       err,
				}
			}
			return err
		}
		productDoc, err := decodeProduct(snap)
		if err != nil {
			return err
		}

		quantity, err := next(productDoc.StockQuantity)
		if err != nil {
			return err
		}
		productDoc.StockQuantity = quantity
		productDoc.UpdatedAt = r.now().UTC()
		productDoc.recalculate()

		if err := tx.Set(productRef, productDoc); err != nil {
			return err
		}
		level = productDoc.stockLevel(productID)
		return nil
	})
	if err != nil {
		return domain.StockLevel{}, wrapStockError(op, err)
	}
	return level, nil
}

// ListLowStock returns products at or below the threshold, lowest stock first.
func (r *InventoryRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.Page[domain.StockLevel], error) {
	if r == nil || r.products == nil {
		return domain.Page[domain.StockLevel]{}, errors.New("inventory repository not initialised")
	}

	threshold := query.Threshold
	if threshold < 0 {
		threshold = 0
	}

	docs, total, err := queryPage(ctx, r.products, func(q firestore.Query) firestore.Query {
		return q.Where("stockQuantity", "<=", threshold).
			OrderBy("stockQuantity", firestore.Asc).
			OrderBy("name", firestore.Asc)
	}, query.Page, query.Limit)
	if err != nil {
		return domain.Page[domain.StockLevel]{}, wrapStockError("inventory.lowStock", err)
	}

	levels := make([]domain.StockLevel, 0, len(docs))
	for _, doc := range docs {
		levels = append(levels, doc.Data.stockLevel(doc.ID))
	}
	return pagedResult(levels, total, query.Page, query.Limit), nil
}

// GetEffect loads the stock-effect ledger entry for an order. Orders that
// never reached confirmed have no ledger document; that reads as an empty
// record, not as not-found.
func (r *InventoryRepository) GetEffect(ctx context.Context, orderID string) (domain.StockEffectRecord, error) {
	if r == nil || r.effects == nil {
		return domain.StockEffectRecord{}, errors.New("inventory repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.StockEffectRecord{}, repositories.NewInventoryError(repositories.InventoryErrorUnknown, "inventory: order id is required", nil)
	}

	doc, err := r.effects.Get(ctx, orderID)
	if err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return domain.StockEffectRecord{OrderID: orderID}, nil
		}
		return domain.StockEffectRecord{}, wrapStockError("inventory.effect", err)
	}

	lines := make([]domain.StockLine, len(doc.Data.Lines))
	for i, line := range doc.Data.Lines {
		lines[i] = domain.StockLine{ProductID: line.ProductID, Quantity: line.Quantity}
	}
	return domain.StockEffectRecord{
		OrderID:       doc.ID,
		Lines:         lines,
		DecrementedAt: doc.Data.DecrementedAt,
		RestoredAt:    doc.Data.RestoredAt,
		UpdatedAt:     doc.Data.UpdatedAt,
	}, nil
}

func wrapStockError(op string, err error) error {
	if err == nil {
		return nil
	}
	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		if invErr.Op == "" {
			invErr.Op = op
		}
		return invErr
	}
	return pfirestore.WrapError(op, err)
}
