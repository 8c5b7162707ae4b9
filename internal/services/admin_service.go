package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

// AdminServiceDeps bundles collaborators required to construct the admin service.
type AdminServiceDeps struct {
	Stats repositories.StatsRepository
	// ExcludeCancelledRevenue drops cancelled and payment-failed orders from
	// the revenue rollup. Off by default: revenue counts every order total.
	ExcludeCancelledRevenue bool
}

type adminService struct {
	stats                   repositories.StatsRepository
	excludeCancelledRevenue bool
}

// NewAdminService wires dependencies into a concrete AdminService implementation.
func NewAdminService(deps AdminServiceDeps) (AdminService, error) {
	if deps.Stats == nil {
		return nil, errors.New("admin service: stats repository is required")
	}
	return &adminService{
		stats:                   deps.Stats,
		excludeCancelledRevenue: deps.ExcludeCancelledRevenue,
	}, nil
}

// DashboardStats computes all rollups on demand; nothing is cached between
// calls, so the dashboard always reflects the store at read time.
func (s *adminService) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	stats, err := s.stats.OrderStats(ctx, s.excludeCancelledRevenue)
	if err != nil {
		return domain.DashboardStats{}, s.mapRepositoryError(err)
	}

	stats.TotalProducts, err = s.stats.CountProducts(ctx)
	if err != nil {
		return domain.DashboardStats{}, s.mapRepositoryError(err)
	}
	return stats, nil
}

func (s *adminService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return err
}
