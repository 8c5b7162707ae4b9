package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rarewear/storefront-api/internal/platform/httpx"
	"github.com/rarewear/storefront-api/internal/services"
)

// DashboardHandlers answers admin dashboard aggregates.
type DashboardHandlers struct {
	admin services.AdminService
}

// NewDashboardHandlers constructs a new DashboardHandlers instance.
func NewDashboardHandlers(admin services.AdminService) *DashboardHandlers {
	return &DashboardHandlers{admin: admin}
}

// Routes registers the admin dashboard endpoints.
func (h *DashboardHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/dashboard", h.dashboard)
}

type dashboardResponse struct {
	TotalProducts   int64 `json:"totalProducts"`
	TotalOrders     int64 `json:"totalOrders"`
	PendingOrders   int64 `json:"pendingOrders"`
	CancelledOrders int64 `json:"cancelledOrders"`
	DeliveredOrders int64 `json:"deliveredOrders"`
	Revenue         int64 `json:"revenue"`
}

func (h *DashboardHandlers) dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.admin.DashboardStats(ctx)
	if err != nil {
		if errors.Is(err, services.ErrStoreUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("store_unavailable", "stats store temporarily unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("stats_error", "failed to compute dashboard stats", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, dashboardResponse{
		TotalProducts:   stats.TotalProducts,
		TotalOrders:     stats.TotalOrders,
		PendingOrders:   stats.PendingOrders,
		CancelledOrders: stats.CancelledOrders,
		DeliveredOrders: stats.DeliveredOrders,
		Revenue:         stats.Revenue,
	})
}
