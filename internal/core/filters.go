package core

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// PageSize is the backend's fixed transaction page size.
const PageSize = 5

// CategoryAll is the "no category constraint" sentinel used by selectors.
const CategoryAll = "all"

// TransactionFilters constrains a transaction listing. Zero values mean no
// constraint on that dimension.
type TransactionFilters struct {
	Search    string    `json:"search,omitempty"`
	Category  string    `json:"category,omitempty"`
	DateFrom  time.Time `json:"date_from,omitzero"`
	DateTo    time.Time `json:"date_to,omitzero"`
	AmountMin string    `json:"amount_min,omitempty"`
	AmountMax string    `json:"amount_max,omitempty"`
}

// TransactionPage is one page of a transaction listing.
type TransactionPage struct {
	Items       []Transaction `json:"items"`
	Count       int           `json:"count"`
	HasNext     bool          `json:"has_next"`
	HasPrevious bool          `json:"has_previous"`
}

// Query translates the filters and page into list request parameters.
// Empty fields, the "all" category and page 1 are omitted.
func (f TransactionFilters) Query(page int) url.Values {
	q := url.Values{}
	if v := strings.TrimSpace(f.AmountMin); v != "" {
		q.Set("amount_min", v)
	}
	if v := strings.TrimSpace(f.AmountMax); v != "" {
		q.Set("amount_max", v)
	}
	if !f.DateFrom.IsZero() {
		q.Set("date_from", f.DateFrom.Format(DateLayout))
	}
	if !f.DateTo.IsZero() {
		q.Set("date_to", f.DateTo.Format(DateLayout))
	}
	if v := strings.TrimSpace(f.Category); v != "" && v != CategoryAll {
		q.Set("category", v)
	}
	if v := strings.TrimSpace(f.Search); v != "" {
		q.Set("search", v)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}
	return q
}

// Key identifies a filters+page request. Two selections with the same key
// produce the same request.
func (f TransactionFilters) Key(page int) string {
	return f.Query(page).Encode()
}

// IsEmpty reports whether no constraint is set.
func (f TransactionFilters) IsEmpty() bool {
	return len(f.Query(1)) == 0
}

// TotalPages is ceil(count / PageSize).
func TotalPages(count int) int {
	if count <= 0 {
		return 0
	}
	return (count + PageSize - 1) / PageSize
}
