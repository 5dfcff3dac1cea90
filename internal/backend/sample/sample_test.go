package sample

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/backend"
	"fintrack/internal/core"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC) }
}

func TestSampleData(t *testing.T) {
	s := New(fixedClock())
	ctx := context.Background()

	cats, err := s.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 3)

	page, err := s.ListTransactions(ctx, core.TransactionFilters{}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, page.Count)
	assert.False(t, page.HasNext)
	assert.False(t, page.HasPrevious)
	assert.Equal(t, "2025-03-03", page.Items[0].Date)

	budget, err := s.CurrentBudget(ctx)
	require.NoError(t, err)
	require.NotNil(t, budget)
	assert.Equal(t, "2025-03-01", budget.Month)
	assert.Equal(t, "1000.00", core.FormatAmount(budget.Amount))

	totals := core.ComputeDerivedTotals(page.Items, cats, core.Month{Year: 2025, Month: time.March})
	assert.True(t, totals.TotalIncome.Equal(decimal.RequireFromString("2500")))
	assert.True(t, totals.TotalExpense.Equal(decimal.RequireFromString("110.5")))
}

func TestSampleStats(t *testing.T) {
	s := New(fixedClock())
	ctx := context.Background()

	stats, err := s.Stats(ctx, core.Month{Year: 2025, Month: time.March})
	require.NoError(t, err)
	assert.Equal(t, "2025-03", stats.Month)
	require.True(t, stats.Budget.Valid)
	assert.True(t, stats.Budget.Decimal.Equal(decimal.NewFromInt(1000)))
	assert.True(t, stats.TotalIncome.Equal(decimal.NewFromInt(2500)))
	assert.True(t, stats.TotalExpense.Equal(decimal.RequireFromString("110.5")))
	assert.Len(t, stats.IncomeCategories, 1)
	assert.Len(t, stats.ExpenseCategories, 2)

	other, err := s.Stats(ctx, core.Month{Year: 2025, Month: time.February})
	require.NoError(t, err)
	assert.False(t, other.Budget.Valid)
	assert.True(t, other.TotalExpense.IsZero())
}

func TestSampleFilters(t *testing.T) {
	s := New(fixedClock())
	ctx := context.Background()

	tests := []struct {
		name    string
		filters core.TransactionFilters
		want    []core.ID
	}{
		{"search is case insensitive", core.TransactionFilters{Search: "movie"}, []core.ID{"txn3"}},
		{"category", core.TransactionFilters{Category: "cat-sample-groceries"}, []core.ID{"txn2"}},
		{"all category", core.TransactionFilters{Category: core.CategoryAll}, []core.ID{"txn3", "txn2", "txn1"}},
		{"amount range", core.TransactionFilters{AmountMin: "20", AmountMax: "100"}, []core.ID{"txn3", "txn2"}},
		{"date range", core.TransactionFilters{
			DateFrom: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			DateTo:   time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		}, []core.ID{"txn2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := s.ListTransactions(ctx, tt.filters, 1)
			require.NoError(t, err)
			var ids []core.ID
			for _, item := range page.Items {
				ids = append(ids, item.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSampleRejectsWrites(t *testing.T) {
	s := New(fixedClock())
	ctx := context.Background()

	_, err := s.CreateTransaction(ctx, core.TransactionWrite{Amount: decimal.NewFromInt(1), CategoryID: "x"})
	assert.ErrorIs(t, err, backend.ErrAnonymous)
	assert.ErrorIs(t, s.DeleteCategory(ctx, "cat-sample-fun"), backend.ErrAnonymous)
	_, err = s.CreateBudget(ctx, core.Month{Year: 2025, Month: time.March}, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, backend.ErrAnonymous)
}
