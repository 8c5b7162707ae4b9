package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rarewear/storefront-api/internal/domain"
	"github.com/rarewear/storefront-api/internal/repositories"
)

const stockEventChanged = "inventory.stock.changed"

var (
	// ErrInventoryInvalidInput signals the caller provided invalid stock data.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrStockNotFound indicates the product has no stock record.
	ErrStockNotFound = errors.New("inventory: product not found")
	// ErrNegativeStock indicates an adjustment would drive stock below zero.
	ErrNegativeStock = errors.New("inventory: stock cannot go negative")
)

// InventoryServiceDeps bundles collaborators required to construct the inventory service.
type InventoryServiceDeps struct {
	Inventory repositories.InventoryRepository
	Clock     func() time.Time
	Events    StockEventPublisher
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	inventory repositories.InventoryRepository
	clock     func() time.Time
	events    StockEventPublisher
	logger    func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Inventory == nil {
		return nil, errors.New("inventory service: inventory repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		inventory: deps.Inventory,
		clock: func() time.Time {
			return clock().UTC()
		},
		events: deps.Events,
		logger: logger,
	}, nil
}

func (s *inventoryService) AdjustStock(ctx context.Context, cmd AdjustStockCommand) (domain.StockLevel, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.StockLevel{}, fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if (cmd.Delta == nil) == (cmd.Absolute == nil) {
		return domain.StockLevel{}, fmt.Errorf("%w: exactly one of delta or absolute quantity is required", ErrInventoryInvalidInput)
	}

	var (
		level domain.StockLevel
		err   error
	)
	if cmd.Delta != nil {
		level, err = s.inventory.AdjustStock(ctx, productID, *cmd.Delta)
	} else {
		level, err = s.inventory.SetStock(ctx, productID, *cmd.Absolute)
	}
	if err != nil {
		return domain.StockLevel{}, s.mapRepositoryError(err)
	}

	s.publishEvent(ctx, StockEvent{
		Type:          stockEventChanged,
		ProductID:     level.ProductID,
		StockQuantity: level.StockQuantity,
		InStock:       level.InStock,
		ActorID:       strings.TrimSpace(cmd.ActorID),
		OccurredAt:    s.clock(),
	})

	return level, nil
}

func (s *inventoryService) ListLowStock(ctx context.Context, query LowStockQuery) (domain.Page[domain.StockLevel], error) {
	if query.Threshold < 0 {
		return domain.Page[domain.StockLevel]{}, fmt.Errorf("%w: threshold cannot be negative", ErrInventoryInvalidInput)
	}

	page, err := s.inventory.ListLowStock(ctx, repositories.LowStockQuery{
		Threshold: query.Threshold,
		Page:      query.Page,
		Limit:     query.Limit,
	})
	if err != nil {
		return domain.Page[domain.StockLevel]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *inventoryService) GetEffect(ctx context.Context, orderID string) (domain.StockEffectRecord, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.StockEffectRecord{}, fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}

	record, err := s.inventory.GetEffect(ctx, orderID)
	if err != nil {
		return domain.StockEffectRecord{}, s.mapRepositoryError(err)
	}
	return record, nil
}

func (s *inventoryService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorProductNotFound:
			return fmt.Errorf("%w: %s", ErrStockNotFound, invErr.ProductID)
		case repositories.InventoryErrorNegativeStock:
			return fmt.Errorf("%w: product %s", ErrNegativeStock, invErr.ProductID)
		case repositories.InventoryErrorInsufficientStock:
			return fmt.Errorf("%w: product %s", ErrInsufficientStock, invErr.ProductID)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrStockNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return err
}

func (s *inventoryService) publishEvent(ctx context.Context, event StockEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishStockEvent(ctx, event); err != nil {
		s.logger(ctx, "inventory.event.publish.failed", map[string]any{
			"type":    event.Type,
			"product": event.ProductID,
			"error":   err.Error(),
		})
	}
}
