package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

type stubInventoryRepository struct {
	adjustFn  func(ctx context.Context, productID string, delta int) (domain.StockLevel, error)
	setFn     func(ctx context.Context, productID string, quantity int) (domain.StockLevel, error)
	lowFn     func(ctx context.Context, query repositories.LowStockQuery) (domain.Page[domain.StockLevel], error)
	effectFn  func(ctx context.Context, orderID string) (domain.StockEffectRecord, error)
}

func (s *stubInventoryRepository) AdjustStock(ctx context.Context, productID string, delta int) (domain.StockLevel, error) {
	if s.adjustFn == nil {
		return domain.StockLevel{}, errors.New("adjust not implemented")
	}
	return s.adjustFn(ctx, productID, delta)
}

func (s *stubInventoryRepository) SetStock(ctx context.Context, productID string, quantity int) (domain.StockLevel, error) {
	if s.setFn == nil {
		return domain.StockLevel{}, errors.New("set not implemented")
	}
	return s.setFn(ctx, productID, quantity)
}

func (s *stubInventoryRepository) ListLowStock(ctx context.Context, query repositories.LowStockQuery) (domain.Page[domain.StockLevel], error) {
	if s.lowFn == nil {
		return domain.Page[domain.StockLevel]{}, errors.New("low stock not implemented")
	}
	return s.lowFn(ctx, query)
}

func (s *stubInventoryRepository) GetEffect(ctx context.Context, orderID string) (domain.StockEffectRecord, error) {
	if s.effectFn == nil {
		return domain.StockEffectRecord{}, errors.New("effect not implemented")
	}
	return s.effectFn(ctx, orderID)
}

type capturedStockEvents struct {
	events []StockEvent
}

func (c *capturedStockEvents) PublishStockEvent(_ context.Context, event StockEvent) error {
	c.events = append(c.events, event)
	return nil
}

func intPtr(v int) *int { return &v }

func TestAdjustStockRequiresExactlyOneMode(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepository{}})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	_, err = svc.AdjustStock(context.Background(), AdjustStockCommand{ProductID: "prd_tee"})
	if !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput with neither mode, got %v", err)
	}

	_, err = svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: "prd_tee",
		Delta:     intPtr(5),
		Absolute:  intPtr(10),
	})
	if !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput with both modes, got %v", err)
	}
}

func TestAdjustStockDeltaPublishesEvent(t *testing.T) {
	inventory := &stubInventoryRepository{
		adjustFn: func(_ context.Context, productID string, delta int) (domain.StockLevel, error) {
			if delta != -3 {
				t.Fatalf("expected delta -3, got %d", delta)
			}
			return domain.StockLevel{ProductID: productID, StockQuantity: 7, InStock: true}, nil
		},
	}
	events := &capturedStockEvents{}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: inventory, Events: events})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	level, err := svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: "prd_tee",
		Delta:     intPtr(-3),
		ActorID:   "admin-1",
	})
	if err != nil {
		t.Fatalf("AdjustStock returned error: %v", err)
	}
	if level.StockQuantity != 7 {
		t.Fatalf("expected quantity 7, got %d", level.StockQuantity)
	}
	if len(events.events) != 1 {
		t.Fatalf("expected one stock event, got %d", len(events.events))
	}
	if events.events[0].Type != "inventory.stock.changed" {
		t.Fatalf("unexpected event type %s", events.events[0].Type)
	}
}

func TestAdjustStockAbsoluteUsesSetStock(t *testing.T) {
	setCalled := false
	inventory := &stubInventoryRepository{
		setFn: func(_ context.Context, productID string, quantity int) (domain.StockLevel, error) {
			setCalled = true
			return domain.StockLevel{ProductID: productID, StockQuantity: quantity, InStock: quantity > 0}, nil
		},
	}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: inventory})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	level, err := svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: "prd_tee",
		Absolute:  intPtr(0),
	})
	if err != nil {
		t.Fatalf("AdjustStock returned error: %v", err)
	}
	if !setCalled {
		t.Fatalf("expected SetStock to be used for absolute quantity")
	}
	if level.InStock {
		t.Fatalf("expected out of stock at zero quantity")
	}
}

func TestAdjustStockMapsNegativeStock(t *testing.T) {
	inventory := &stubInventoryRepository{
		adjustFn: func(_ context.Context, productID string, _ int) (domain.StockLevel, error) {
			return domain.StockLevel{}, &repositories.InventoryError{
				Code:      repositories.InventoryErrorNegativeStock,
				ProductID: productID,
			}
		},
	}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: inventory})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	_, err = svc.AdjustStock(context.Background(), AdjustStockCommand{
		ProductID: "prd_tee",
		Delta:     intPtr(-100),
	})
	if !errors.Is(err, ErrNegativeStock) {
		t.Fatalf("expected ErrNegativeStock, got %v", err)
	}
}

func TestListLowStockRejectsNegativeThreshold(t *testing.T) {
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: &stubInventoryRepository{}})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	_, err = svc.ListLowStock(context.Background(), LowStockQuery{Threshold: -1})
	if !errors.Is(err, ErrInventoryInvalidInput) {
		t.Fatalf("expected ErrInventoryInvalidInput, got %v", err)
	}
}

func TestGetEffectMapsNotFound(t *testing.T) {
	inventory := &stubInventoryRepository{
		effectFn: func(_ context.Context, _ string) (domain.StockEffectRecord, error) {
			return domain.StockEffectRecord{}, stubNotFoundError{}
		},
	}
	svc, err := NewInventoryService(InventoryServiceDeps{Inventory: inventory})
	if err != nil {
		t.Fatalf("NewInventoryService: %v", err)
	}

	_, err = svc.GetEffect(context.Background(), "ord_1")
	if !errors.Is(err, ErrStockNotFound) {
		t.Fatalf("expected ErrStockNotFound, got %v", err)
	}
}
