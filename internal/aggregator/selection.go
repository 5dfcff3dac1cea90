package aggregator

import (
	"fintrack/internal/core"
)

// View is the selection and what is currently shown for it.
type View struct {
	Filters    core.TransactionFilters `json:"filters"`
	Page       int                     `json:"page"`
	TotalPages int                     `json:"total_pages"`
	Month      string                  `json:"month"`
	// Transactions is nil until a page for the current selection has
	// loaded.
	Transactions *core.TransactionPage `json:"transactions"`
}

func (a *Aggregator) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	v := View{
		Filters: a.filters,
		Page:    a.page,
		Month:   a.month.String(),
	}
	if a.visible != nil && a.visible.key == a.filters.Key(a.page) {
		p := a.visible.page
		p.Items = append([]core.Transaction(nil), p.Items...)
		v.Transactions = &p
		v.TotalPages = core.TotalPages(p.Count)
	}
	return v
}

// ApplyFilters replaces the filters and goes back to the first page.
func (a *Aggregator) ApplyFilters(f core.TransactionFilters) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filters = f
	a.page = 1
}

func (a *Aggregator) Filters() core.TransactionFilters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filters
}

func (a *Aggregator) Page() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.page
}

// NextPage advances the page when the loaded page for the current
// selection reports a next one. It reports whether the page changed.
func (a *Aggregator) NextPage() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visible == nil || a.visible.key != a.filters.Key(a.page) || !a.visible.page.HasNext {
		return false
	}
	a.page++
	return true
}

// PreviousPage steps back one page; it does nothing on the first page.
func (a *Aggregator) PreviousPage() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.page <= 1 {
		return false
	}
	a.page--
	return true
}

// GoToPage selects page directly, as the CLI's -page flag does. Pages
// below 1 select the first page.
func (a *Aggregator) GoToPage(page int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.page = max(page, 1)
}

// SelectMonth changes the month the dashboard reports on.
func (a *Aggregator) SelectMonth(m core.Month) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.month = m
}

func (a *Aggregator) SelectedMonth() core.Month {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.month
}
