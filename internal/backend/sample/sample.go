// Package sample serves fixed demonstration data to signed-out users. It is
// read-only: every write fails with backend.ErrAnonymous.
package sample

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/backend"
	"fintrack/internal/core"
)

const budgetID core.ID = "budget-sample"

var categories = []core.Category{
	{ID: "cat-sample-income", Name: "Sample Salary", Type: core.Income},
	{ID: "cat-sample-groceries", Name: "Sample Groceries", Type: core.Expense},
	{ID: "cat-sample-fun", Name: "Sample Entertainment", Type: core.Expense},
}

type Store struct {
	now func() time.Time

	mu    sync.Mutex
	month core.Month
	items []core.Transaction
}

// New returns a store whose data is dated in the month containing now().
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{now: now}
}

var _ backend.Backend = (*Store)(nil)

// transactions returns the sample transactions, dated on the first days of
// the current month. They are rebuilt when the month rolls over.
func (s *Store) transactions() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	month := core.MonthOf(s.now())
	if s.items == nil || month != s.month {
		first := month.FirstDay()
		day := func(n int) string { return first.AddDate(0, 0, n-1).Format(core.DateLayout) }
		s.month = month
		s.items = []core.Transaction{
			{ID: "txn1", Type: core.Income, Description: "Monthly Salary", Amount: decimal.RequireFromString("2500.00"), CategoryID: categories[0].ID, Date: day(1)},
			{ID: "txn2", Type: core.Expense, Description: "Weekly Groceries", Amount: decimal.RequireFromString("85.50"), CategoryID: categories[1].ID, Date: day(2)},
			{ID: "txn3", Type: core.Expense, Description: "Movie Tickets", Amount: decimal.RequireFromString("25.00"), CategoryID: categories[2].ID, Date: day(3)},
		}
	}
	return append([]core.Transaction(nil), s.items...)
}

func (s *Store) ListCategories(context.Context) ([]core.Category, error) {
	return append([]core.Category(nil), categories...), nil
}

// ListTransactions applies the filters the way the backend does and pages
// the result.
func (s *Store) ListTransactions(_ context.Context, filters core.TransactionFilters, page int) (core.TransactionPage, error) {
	var matched []core.Transaction
	for _, t := range s.transactions() {
		if matches(t, filters) {
			matched = append(matched, t)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Date > matched[j].Date })

	if page < 1 {
		page = 1
	}
	start := (page - 1) * core.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := min(start+core.PageSize, len(matched))
	return core.TransactionPage{
		Items:       matched[start:end],
		Count:       len(matched),
		HasNext:     end < len(matched),
		HasPrevious: page > 1,
	}, nil
}

func matches(t core.Transaction, f core.TransactionFilters) bool {
	if q := strings.TrimSpace(f.Search); q != "" && !strings.Contains(strings.ToLower(t.Description), strings.ToLower(q)) {
		return false
	}
	if c := strings.TrimSpace(f.Category); c != "" && c != core.CategoryAll && string(t.CategoryID) != c {
		return false
	}
	if date, err := t.ParsedDate(); err == nil {
		if !f.DateFrom.IsZero() && date.Before(truncate(f.DateFrom)) {
			return false
		}
		if !f.DateTo.IsZero() && date.After(truncate(f.DateTo)) {
			return false
		}
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(f.AmountMin)); err == nil && t.Amount.LessThan(v) {
		return false
	}
	if v, err := decimal.NewFromString(strings.TrimSpace(f.AmountMax)); err == nil && t.Amount.GreaterThan(v) {
		return false
	}
	return true
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (s *Store) CurrentBudget(context.Context) (*core.Budget, error) {
	return &core.Budget{
		ID:     budgetID,
		Month:  core.MonthOf(s.now()).FirstDay().Format(core.DateLayout),
		Amount: decimal.RequireFromString("1000.00"),
	}, nil
}

// Stats aggregates the sample transactions of month. Only the current month
// has a budget.
func (s *Store) Stats(_ context.Context, month core.Month) (core.DashboardStats, error) {
	stats := core.DashboardStats{
		Month:             month.String(),
		TotalIncome:       decimal.Zero,
		TotalExpense:      decimal.Zero,
		IncomeCategories:  []core.CategoryAmount{},
		ExpenseCategories: []core.CategoryAmount{},
	}
	if month == core.MonthOf(s.now()) {
		stats.Budget = decimal.NewNullDecimal(decimal.RequireFromString("1000.00"))
	}

	names := make(map[core.ID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	for _, t := range s.transactions() {
		date, err := t.ParsedDate()
		if err != nil || !month.Contains(date) {
			continue
		}
		entry := core.CategoryAmount{Category: names[t.CategoryID], Amount: t.Amount}
		if t.Type == core.Income {
			stats.TotalIncome = stats.TotalIncome.Add(t.Amount)
			stats.IncomeCategories = append(stats.IncomeCategories, entry)
		} else {
			stats.TotalExpense = stats.TotalExpense.Add(t.Amount)
			stats.ExpenseCategories = append(stats.ExpenseCategories, entry)
		}
	}
	return stats, nil
}

func (s *Store) CreateCategory(context.Context, core.CategoryInput) (core.Category, error) {
	return core.Category{}, backend.ErrAnonymous
}

func (s *Store) UpdateCategory(context.Context, core.ID, core.CategoryInput) (core.Category, error) {
	return core.Category{}, backend.ErrAnonymous
}

func (s *Store) DeleteCategory(context.Context, core.ID) error {
	return backend.ErrAnonymous
}

func (s *Store) CreateTransaction(context.Context, core.TransactionWrite) (core.Transaction, error) {
	return core.Transaction{}, backend.ErrAnonymous
}

func (s *Store) UpdateTransaction(context.Context, core.ID, core.TransactionWrite) (core.Transaction, error) {
	return core.Transaction{}, backend.ErrAnonymous
}

func (s *Store) DeleteTransaction(context.Context, core.ID) error {
	return backend.ErrAnonymous
}

func (s *Store) CreateBudget(context.Context, core.Month, decimal.Decimal) (core.Budget, error) {
	return core.Budget{}, backend.ErrAnonymous
}

func (s *Store) UpdateBudget(context.Context, core.ID, decimal.Decimal) (core.Budget, error) {
	return core.Budget{}, backend.ErrAnonymous
}
