package core

import (
	"github.com/shopspring/decimal"
)

// CategorySpend pairs a category with the expense total booked against it.
type CategorySpend struct {
	Category Category        `json:"category"`
	Spent    decimal.Decimal `json:"spent"`
}

// DerivedTotals are the values computed on the client from a transaction
// list rather than read from the backend.
type DerivedTotals struct {
	Month        Month                  `json:"-"`
	TotalIncome  decimal.Decimal        `json:"total_income"`
	TotalExpense decimal.Decimal        `json:"total_expense"`
	Balance      decimal.Decimal        `json:"balance"`
	Spent        map[ID]decimal.Decimal `json:"spent"`
	Categories   []CategorySpend        `json:"categories"`
}

// ComputeDerivedTotals sums the transactions dated inside month by type and
// buckets expenses by category. Transactions with an unparseable date are
// left out. Every category gets an entry, zero when nothing matched.
func ComputeDerivedTotals(transactions []Transaction, categories []Category, month Month) DerivedTotals {
	totals := DerivedTotals{
		Month:        month,
		TotalIncome:  decimal.Zero,
		TotalExpense: decimal.Zero,
		Spent:        make(map[ID]decimal.Decimal, len(categories)),
	}

	for _, txn := range transactions {
		date, err := txn.ParsedDate()
		if err != nil || !month.Contains(date) {
			continue
		}
		switch txn.Type {
		case Income:
			totals.TotalIncome = totals.TotalIncome.Add(txn.Amount)
		case Expense:
			totals.TotalExpense = totals.TotalExpense.Add(txn.Amount)
			if !txn.CategoryID.IsZero() {
				totals.Spent[txn.CategoryID] = totals.Spent[txn.CategoryID].Add(txn.Amount)
			}
		}
	}
	totals.Balance = totals.TotalIncome.Sub(totals.TotalExpense)

	totals.Categories = make([]CategorySpend, 0, len(categories))
	for _, cat := range categories {
		spent, ok := totals.Spent[cat.ID]
		if !ok {
			spent = decimal.Zero
			totals.Spent[cat.ID] = spent
		}
		totals.Categories = append(totals.Categories, CategorySpend{Category: cat, Spent: spent})
	}

	return totals
}

// BudgetRemaining is amount minus spent. A negative result means the
// budget is exceeded; no clamping happens here.
func BudgetRemaining(amount, spent decimal.Decimal) decimal.Decimal {
	return amount.Sub(spent)
}
