package firestore

import (
	"testing"
	"time"

	"github.com/rarewear/storefront-api/internal/domain"
)

func TestPageOfSlicesAndCounts(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	page := pageOf(items, 2, 2)
	if page.Total != 5 || page.Pages != 3 {
		t.Fatalf("expected total 5 pages 3, got %d/%d", page.Total, page.Pages)
	}
	if len(page.Items) != 2 || page.Items[0] != 3 || page.Items[1] != 4 {
		t.Fatalf("unexpected page items: %v", page.Items)
	}

	last := pageOf(items, 3, 2)
	if len(last.Items) != 1 || last.Items[0] != 5 {
		t.Fatalf("unexpected last page: %v", last.Items)
	}

	beyond := pageOf(items, 9, 2)
	if len(beyond.Items) != 0 {
		t.Fatalf("expected empty page past the end, got %v", beyond.Items)
	}
	if beyond.Total != 5 {
		t.Fatalf("total must survive empty pages, got %d", beyond.Total)
	}
}

func TestPageOfDefaults(t *testing.T) {
	page := pageOf([]string{"a"}, 0, 0)
	if page.Page != 1 || page.Limit != 20 {
		t.Fatalf("expected defaults page 1 limit 20, got %d/%d", page.Page, page.Limit)
	}

	empty := pageOf([]string(nil), 1, 10)
	if empty.Pages != 0 || empty.Total != 0 {
		t.Fatalf("expected zero pages for empty set, got %d/%d", empty.Pages, empty.Total)
	}
}

func TestFilterProductsBySearchFoldsCase(t *testing.T) {
	products := []domain.Product{
		{ID: "1", Name: "Heavyweight Tee"},
		{ID: "2", Name: "Logo Cap", Subtitle: "Cotton twill"},
		{ID: "3", Name: "Joggers", Description: "Relaxed fit heavyweight fleece"},
	}

	matched := filterProductsBySearch(products, "HEAVYWEIGHT")
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	if matched[0].ID != "1" || matched[1].ID != "3" {
		t.Fatalf("unexpected match order: %v, %v", matched[0].ID, matched[1].ID)
	}

	if got := filterProductsBySearch(products, "denim"); len(got) != 0 {
		t.Fatalf("expected no matches, got %d", len(got))
	}
}

func TestProductDocumentDerivesAvailability(t *testing.T) {
	doc := newProductDocument(domain.Product{
		ID:            "prd_tee",
		Name:          "Heavyweight Tee",
		MRP:           5499,
		Price:         4399,
		StockQuantity: 0,
		InStock:       true, // stale flag must be recomputed
		CreatedAt:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if doc.InStock {
		t.Fatalf("expected inStock false with zero quantity")
	}

	doc.StockQuantity = 3
	doc.recalculate()
	if !doc.InStock {
		t.Fatalf("expected inStock true after restock")
	}

	product := doc.toDomain("prd_tee")
	if !product.InStock || product.StockQuantity != 3 {
		t.Fatalf("unexpected domain mapping: %+v", product)
	}
}

func TestFilterOrdersBySearchMatchesNumberAndEmail(t *testing.T) {
	orders := []domain.Order{
		{ID: "1", OrderNumber: "ORD-20260301-ABCDEFGH", UserEmail: "asha@example.com"},
		{ID: "2", OrderNumber: "ORD-20260302-IJKLMNOP", UserEmail: "ravi@example.com"},
	}

	if got := filterOrdersBySearch(orders, "abcdefgh"); len(got) != 1 || got[0].ID != "1" {
		t.Fatalf("expected order number match, got %v", got)
	}
	if got := filterOrdersBySearch(orders, "RAVI"); len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("expected email match, got %v", got)
	}
}

func TestAggregateStockLinesMergesDuplicateProducts(t *testing.T) {
	lines := aggregateStockLines([]domain.OrderItem{
		{ProductID: "prd_tee", Quantity: 2, Size: "L"},
		{ProductID: "prd_tee", Quantity: 1, Size: "XL"},
		{ProductID: "prd_cap", Quantity: 1},
		{ProductID: "", Quantity: 5},
		{ProductID: "prd_bad", Quantity: 0},
	})

	if len(lines) != 2 {
		t.Fatalf("expected 2 aggregated lines, got %d", len(lines))
	}
	if lines[0].ProductID != "prd_tee" || lines[0].Quantity != 3 {
		t.Fatalf("expected merged tee quantity 3, got %+v", lines[0])
	}
	if lines[1].ProductID != "prd_cap" || lines[1].Quantity != 1 {
		t.Fatalf("unexpected second line: %+v", lines[1])
	}
}
