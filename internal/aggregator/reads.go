package aggregator

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// ListCategories returns every category sorted by name. The comparison is
// byte-wise, so upper case sorts before lower case.
func (a *Aggregator) ListCategories(ctx context.Context) ([]core.Category, error) {
	cats, err := fetch(ctx, a, a.categories, "categories", keyCategories, func(ctx context.Context) ([]core.Category, error) {
		cats, err := a.backend.ListCategories(ctx)
		if err != nil {
			return nil, err
		}
		sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
		return cats, nil
	})
	if err != nil {
		a.logger.LogError(ctx, "Listing categories failed", err, log.OpList, nil)
		return nil, err
	}
	return append([]core.Category(nil), cats...), nil
}

// ListTransactions returns one page of transactions for filters.
func (a *Aggregator) ListTransactions(ctx context.Context, filters core.TransactionFilters, page int) (core.TransactionPage, error) {
	if page < 1 {
		page = 1
	}
	key := filters.Key(page)
	p, err := fetch(ctx, a, a.transactions, "transactions", key, func(ctx context.Context) (core.TransactionPage, error) {
		return a.backend.ListTransactions(ctx, filters, page)
	})
	if err != nil {
		a.logger.LogError(ctx, "Listing transactions failed", err, log.OpList, nil)
		return core.TransactionPage{}, err
	}
	return p, nil
}

// CurrentTransactions fetches the selected filters and page. The visible
// page is replaced only if the selection is unchanged when the fetch
// completes and no session change or reset happened meanwhile; a result
// for an abandoned selection is returned but not shown. A page loaded
// across an invalidation is shown but stays stale.
func (a *Aggregator) CurrentTransactions(ctx context.Context) (core.TransactionPage, error) {
	epoch := a.currentEpoch()
	gen := a.transactions.Generation()
	a.mu.Lock()
	filters, page, resets := a.filters, a.page, a.resets
	a.mu.Unlock()
	key := filters.Key(page)

	p, err := a.ListTransactions(ctx, filters, page)
	if err != nil {
		return core.TransactionPage{}, err
	}

	current := a.currentEpoch() == epoch
	a.mu.Lock()
	stale := a.transactions.Generation() != gen
	switch {
	case !current || a.resets != resets:
		a.logger.DebugContext(ctx, "Discarding transactions loaded before a reset", log.FieldCacheKey, key)
	case a.filters.Key(a.page) != key:
		a.logger.DebugContext(ctx, "Discarding transactions for an abandoned selection", log.FieldCacheKey, key)
	default:
		a.visible = &visiblePage{key: key, page: p, stale: stale}
	}
	a.mu.Unlock()
	return p, nil
}

// CurrentBudget returns the budget of the current calendar month, nil when
// none is set.
func (a *Aggregator) CurrentBudget(ctx context.Context) (*core.Budget, error) {
	month := core.MonthOf(a.now())
	b, err := fetch(ctx, a, a.budgets, "budget", month.String(), a.backend.CurrentBudget)
	if err != nil {
		a.logger.LogError(ctx, "Loading budget failed", err, log.OpRead, nil)
		return nil, err
	}
	if b == nil {
		return nil, nil
	}
	out := *b
	return &out, nil
}

// Stats returns the backend's figures for month.
func (a *Aggregator) Stats(ctx context.Context, month core.Month) (core.DashboardStats, error) {
	s, err := fetch(ctx, a, a.stats, "stats", month.String(), func(ctx context.Context) (core.DashboardStats, error) {
		return a.backend.Stats(ctx, month)
	})
	if err != nil {
		a.logger.LogError(ctx, "Loading stats failed", err, log.OpRead, nil)
		return core.DashboardStats{}, err
	}
	return s, nil
}

// Dashboard returns the stats of the selected month with the remaining
// budget derived from them.
func (a *Aggregator) Dashboard(ctx context.Context) (core.DashboardView, error) {
	stats, err := a.Stats(ctx, a.SelectedMonth())
	if err != nil {
		return core.DashboardView{}, err
	}
	return core.NewDashboardView(stats), nil
}

// Summary is the current month as seen from the loaded transactions.
type Summary struct {
	Totals core.DerivedTotals `json:"totals"`
	Budget core.BudgetSummary `json:"budget"`
}

// Summary derives the current month's totals from the visible transaction
// page, loading it first if needed, and compares them to the budget.
func (a *Aggregator) Summary(ctx context.Context) (Summary, error) {
	txns, err := a.visibleOrLoad(ctx)
	if err != nil {
		return Summary{}, err
	}
	cats, err := a.ListCategories(ctx)
	if err != nil {
		return Summary{}, err
	}
	budget, err := a.CurrentBudget(ctx)
	if err != nil {
		return Summary{}, err
	}
	month := core.MonthOf(a.now())
	totals := core.ComputeDerivedTotals(txns, cats, month)
	return Summary{
		Totals: totals,
		Budget: core.NewBudgetSummary(month, budget, totals.TotalExpense),
	}, nil
}

func (a *Aggregator) visibleOrLoad(ctx context.Context) ([]core.Transaction, error) {
	if items, ok := a.visibleItems(true); ok {
		return items, nil
	}
	p, err := a.CurrentTransactions(ctx)
	if err != nil {
		return nil, err
	}
	return p.Items, nil
}

// visibleItems returns the visible page if it belongs to the current
// selection. With fresh set, a page invalidated since it was loaded does
// not count.
func (a *Aggregator) visibleItems(fresh bool) ([]core.Transaction, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.visible == nil || a.visible.key != a.filters.Key(a.page) || (fresh && a.visible.stale) {
		return nil, false
	}
	return append([]core.Transaction(nil), a.visible.page.Items...), true
}

// Refresh loads categories, the selected transactions, the current budget
// and the selected month's stats concurrently.
func (a *Aggregator) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.ListCategories(ctx)
		return err
	})
	g.Go(func() error {
		_, err := a.CurrentTransactions(ctx)
		return err
	})
	g.Go(func() error {
		_, err := a.CurrentBudget(ctx)
		return err
	})
	g.Go(func() error {
		_, err := a.Dashboard(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	a.logger.DebugContext(ctx, "Refreshed", log.FieldOperation, log.OpRefresh)
	return nil
}
