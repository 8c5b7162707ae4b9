package pagination

import (
	"net/url"
	"strconv"
)

const (
	// DefaultLimit is applied when the caller does not supply a page size.
	DefaultLimit = 20
	// MaxLimit caps the page size regardless of what the caller requests.
	MaxLimit = 100
)

// Params carries 1-indexed page parameters parsed from a request.
type Params struct {
	Page  int
	Limit int
}

// Parse extracts page and limit query parameters, clamping them to sane bounds.
// Invalid or missing values fall back to page 1 and DefaultLimit.
func Parse(values url.Values) Params {
	return ParseWithDefaults(values, DefaultLimit)
}

// ParseWithDefaults behaves like Parse using the supplied default page size.
func ParseWithDefaults(values url.Values, defaultLimit int) Params {
	if defaultLimit <= 0 || defaultLimit > MaxLimit {
		defaultLimit = DefaultLimit
	}

	page := 1
	if raw := values.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}

	limit := defaultLimit
	if raw := values.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit}
}

// Offset returns the number of items preceding the requested page.
func (p Params) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// Pages computes the total page count for a result set of the given size.
func (p Params) Pages(total int) int {
	if total <= 0 || p.Limit <= 0 {
		return 0
	}
	return (total + p.Limit - 1) / p.Limit
}

// Slice returns the half-open index range [low, high) covering the requested
// page of an in-memory result set of length total.
func (p Params) Slice(total int) (int, int) {
	low := p.Offset()
	if low > total {
		low = total
	}
	high := low + p.Limit
	if high > total {
		high = total
	}
	return low, high
}
