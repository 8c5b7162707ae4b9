package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rarewear/storefront-api/internal/domain"
)

type stubStatsRepository struct {
	countFn func(ctx context.Context) (int64, error)
	statsFn func(ctx context.Context, excludeCancelledRevenue bool) (domain.DashboardStats, error)
}

func (s *stubStatsRepository) CountProducts(ctx context.Context) (int64, error) {
	if s.countFn == nil {
		return 0, errors.New("count not implemented")
	}
	return s.countFn(ctx)
}

func (s *stubStatsRepository) OrderStats(ctx context.Context, excludeCancelledRevenue bool) (domain.DashboardStats, error) {
	if s.statsFn == nil {
		return domain.DashboardStats{}, errors.New("stats not implemented")
	}
	return s.statsFn(ctx, excludeCancelledRevenue)
}

func TestDashboardStatsCombinesRollups(t *testing.T) {
	stats := &stubStatsRepository{
		countFn: func(_ context.Context) (int64, error) { return 42, nil },
		statsFn: func(_ context.Context, exclude bool) (domain.DashboardStats, error) {
			if exclude {
				t.Fatalf("exclusion flag must be off by default")
			}
			return domain.DashboardStats{
				TotalOrders:     10,
				PendingOrders:   3,
				CancelledOrders: 2,
				DeliveredOrders: 4,
				Revenue:         102880,
			}, nil
		},
	}

	svc, err := NewAdminService(AdminServiceDeps{Stats: stats})
	if err != nil {
		t.Fatalf("NewAdminService: %v", err)
	}

	out, err := svc.DashboardStats(context.Background())
	if err != nil {
		t.Fatalf("DashboardStats returned error: %v", err)
	}
	if out.TotalProducts != 42 {
		t.Fatalf("expected 42 products, got %d", out.TotalProducts)
	}
	if out.TotalOrders != 10 || out.Revenue != 102880 {
		t.Fatalf("unexpected stats: %+v", out)
	}
}

func TestDashboardStatsPassesExclusionFlag(t *testing.T) {
	sawExclude := false
	stats := &stubStatsRepository{
		countFn: func(_ context.Context) (int64, error) { return 0, nil },
		statsFn: func(_ context.Context, exclude bool) (domain.DashboardStats, error) {
			sawExclude = exclude
			return domain.DashboardStats{}, nil
		},
	}

	svc, err := NewAdminService(AdminServiceDeps{Stats: stats, ExcludeCancelledRevenue: true})
	if err != nil {
		t.Fatalf("NewAdminService: %v", err)
	}

	if _, err := svc.DashboardStats(context.Background()); err != nil {
		t.Fatalf("DashboardStats returned error: %v", err)
	}
	if !sawExclude {
		t.Fatalf("expected exclusion flag forwarded to repository")
	}
}
