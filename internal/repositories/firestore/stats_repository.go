package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	"github.com/rarewear/storefront-api/internal/domain"
	pfirestore "github.com/rarewear/storefront-api/internal/platform/firestore"
)

// StatsRepository answers dashboard aggregates with Firestore server-side
// aggregation queries, so counters are always computed on demand rather than
// maintained as cached documents.
type StatsRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
}

// NewStatsRepository constructs a Firestore backed stats repository.
func NewStatsRepository(provider *pfirestore.Provider) (*StatsRepository, error) {
	if provider == nil {
		return nil, errors.New("stats repository requires firestore provider")
	}
	return &StatsRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection, nil, nil),
	}, nil
}

// CountProducts returns the total number of catalog products.
func (r *StatsRepository) CountProducts(ctx context.Context) (int64, error) {
	if r == nil || r.products == nil {
		return 0, errors.New("stats repository not initialised")
	}
	query, err := r.products.CollectionQuery(ctx)
	if err != nil {
		return 0, err
	}
	return aggregateCount(ctx, query)
}

// OrderStats computes order counts and revenue. With excludeCancelledRevenue
// set, cancelled and payment-failed orders are dropped from the revenue sum
// via inclusion-exclusion over equality-filtered aggregation queries.
func (r *StatsRepository) OrderStats(ctx context.Context, excludeCancelledRevenue bool) (domain.DashboardStats, error) {
	if r == nil || r.orders == nil {
		return domain.DashboardStats{}, errors.New("stats repository not initialised")
	}

	query, err := r.orders.CollectionQuery(ctx)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.DashboardStats{}
	if stats.TotalOrders, err = aggregateCount(ctx, query); err != nil {
		return domain.DashboardStats{}, err
	}
	if stats.PendingOrders, err = aggregateCount(ctx, query.Where("orderStatus", "==", string(domain.OrderStatusPending))); err != nil {
		return domain.DashboardStats{}, err
	}
	if stats.CancelledOrders, err = aggregateCount(ctx, query.Where("orderStatus", "==", string(domain.OrderStatusCancelled))); err != nil {
		return domain.DashboardStats{}, err
	}
	if stats.DeliveredOrders, err = aggregateCount(ctx, query.Where("orderStatus", "==", string(domain.OrderStatusDelivered))); err != nil {
		return domain.DashboardStats{}, err
	}

	total, err := aggregateSum(ctx, query, "total")
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats.Revenue = total

	if excludeCancelledRevenue {
		cancelled, err := aggregateSum(ctx, query.Where("orderStatus", "==", string(domain.OrderStatusCancelled)), "total")
		if err != nil {
			return domain.DashboardStats{}, err
		}
		failed, err := aggregateSum(ctx, query.Where("paymentStatus", "==", string(domain.PaymentStatusFailed)), "total")
		if err != nil {
			return domain.DashboardStats{}, err
		}
		both, err := aggregateSum(ctx, query.
			Where("orderStatus", "==", string(domain.OrderStatusCancelled)).
			Where("paymentStatus", "==", string(domain.PaymentStatusFailed)), "total")
		if err != nil {
			return domain.DashboardStats{}, err
		}
		stats.Revenue = total - cancelled - failed + both
	}

	return stats, nil
}

func aggregateCount(ctx context.Context, query firestore.Query) (int64, error) {
	results, err := query.NewAggregationQuery().WithCount("count").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("stats.count", err)
	}
	return aggregationInt64(results, "count")
}

func aggregateSum(ctx context.Context, query firestore.Query, field string) (int64, error) {
	results, err := query.NewAggregationQuery().WithSum(field, "sum").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("stats.sum", err)
	}
	return aggregationInt64(results, "sum")
}

func aggregationInt64(results firestore.AggregationResult, alias string) (int64, error) {
	raw, ok := results[alias]
	if !ok {
		return 0, fmt.Errorf("stats: aggregation alias %q missing", alias)
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("stats: aggregation alias %q has unexpected type %T", alias, raw)
	}
	switch v := value.ValueType.(type) {
	case *firestorepb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *firestorepb.Value_DoubleValue:
		return int64(v.DoubleValue), nil
	case *firestorepb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("stats: aggregation alias %q has unexpected value type %T", alias, value.ValueType)
	}
}
