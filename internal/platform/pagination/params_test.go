package pagination

import (
	"net/url"
	"testing"
)

func TestParseDefaults(t *testing.T) {
	params := Parse(url.Values{})
	if params.Page != 1 || params.Limit != DefaultLimit {
		t.Fatalf("expected defaults 1/%d, got %d/%d", DefaultLimit, params.Page, params.Limit)
	}
}

func TestParseClampsAndIgnoresGarbage(t *testing.T) {
	values := url.Values{}
	values.Set("page", "-3")
	values.Set("limit", "99999")
	params := Parse(values)
	if params.Page != 1 {
		t.Fatalf("negative page must fall back to 1, got %d", params.Page)
	}
	if params.Limit != MaxLimit {
		t.Fatalf("limit must be capped at %d, got %d", MaxLimit, params.Limit)
	}

	values.Set("page", "abc")
	values.Set("limit", "0")
	params = Parse(values)
	if params.Page != 1 || params.Limit != DefaultLimit {
		t.Fatalf("invalid values must fall back, got %d/%d", params.Page, params.Limit)
	}
}

func TestParseHonoursExplicitValues(t *testing.T) {
	values := url.Values{}
	values.Set("page", "3")
	values.Set("limit", "5")
	params := Parse(values)
	if params.Page != 3 || params.Limit != 5 {
		t.Fatalf("expected 3/5, got %d/%d", params.Page, params.Limit)
	}
	if params.Offset() != 10 {
		t.Fatalf("expected offset 10, got %d", params.Offset())
	}
}

func TestPagesCeiling(t *testing.T) {
	params := Params{Page: 1, Limit: 10}
	if got := params.Pages(0); got != 0 {
		t.Fatalf("empty set must have 0 pages, got %d", got)
	}
	if got := params.Pages(10); got != 1 {
		t.Fatalf("expected 1 page, got %d", got)
	}
	if got := params.Pages(11); got != 2 {
		t.Fatalf("expected 2 pages, got %d", got)
	}
}

func TestSliceBounds(t *testing.T) {
	params := Params{Page: 2, Limit: 10}
	low, high := params.Slice(15)
	if low != 10 || high != 15 {
		t.Fatalf("expected [10,15), got [%d,%d)", low, high)
	}

	low, high = params.Slice(5)
	if low != 5 || high != 5 {
		t.Fatalf("expected empty range past the end, got [%d,%d)", low, high)
	}
}
