package core

import "github.com/shopspring/decimal"

// BudgetSummary compares a month's budget against what was spent in it.
type BudgetSummary struct {
	Month      string          `json:"month"`
	HasBudget  bool            `json:"has_budget"`
	Budget     decimal.Decimal `json:"budget"`
	Spent      decimal.Decimal `json:"spent"`
	Remaining  decimal.Decimal `json:"remaining"`
	OverBudget bool            `json:"over_budget"`
}

// NewBudgetSummary builds the summary for month. A nil budget counts as
// zero.
func NewBudgetSummary(month Month, budget *Budget, spent decimal.Decimal) BudgetSummary {
	amount := decimal.Zero
	if budget != nil {
		amount = budget.Amount
	}
	remaining := BudgetRemaining(amount, spent)
	return BudgetSummary{
		Month:      month.String(),
		HasBudget:  budget != nil,
		Budget:     amount,
		Spent:      spent,
		Remaining:  remaining,
		OverBudget: remaining.IsNegative(),
	}
}

// DashboardView is the stats snapshot for a month together with the
// remaining budget derived from it.
type DashboardView struct {
	Stats           DashboardStats  `json:"stats"`
	Balance         decimal.Decimal `json:"balance"`
	BudgetRemaining decimal.Decimal `json:"budget_remaining"`
	OverBudget      bool            `json:"over_budget"`
}

func NewDashboardView(stats DashboardStats) DashboardView {
	budget := decimal.Zero
	if stats.Budget.Valid {
		budget = stats.Budget.Decimal
	}
	remaining := BudgetRemaining(budget, stats.TotalExpense)
	return DashboardView{
		Stats:           stats,
		Balance:         stats.TotalIncome.Sub(stats.TotalExpense),
		BudgetRemaining: remaining,
		OverBudget:      remaining.IsNegative(),
	}
}
