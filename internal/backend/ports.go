// Package backend defines the ports the aggregator reads and writes
// through, and the switch that routes them to the remote backend or to the
// anonymous sample data.
package backend

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// ErrAnonymous is returned by writes attempted without a session.
var ErrAnonymous = errors.New("sign in to change your data")

// Ports for outbound adapters.
type (
	CategoryReader interface {
		ListCategories(ctx context.Context) ([]core.Category, error)
	}

	CategoryWriter interface {
		CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error)
		UpdateCategory(ctx context.Context, id core.ID, in core.CategoryInput) (core.Category, error)
		DeleteCategory(ctx context.Context, id core.ID) error
	}

	// TransactionReader lists one page of transactions matching filters.
	TransactionReader interface {
		ListTransactions(ctx context.Context, filters core.TransactionFilters, page int) (core.TransactionPage, error)
	}

	TransactionWriter interface {
		CreateTransaction(ctx context.Context, in core.TransactionWrite) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, id core.ID, in core.TransactionWrite) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id core.ID) error
	}

	// BudgetStore reads and writes monthly budgets. CurrentBudget returns
	// nil when no budget is set for the current month.
	BudgetStore interface {
		CurrentBudget(ctx context.Context) (*core.Budget, error)
		CreateBudget(ctx context.Context, month core.Month, amount decimal.Decimal) (core.Budget, error)
		UpdateBudget(ctx context.Context, id core.ID, amount decimal.Decimal) (core.Budget, error)
	}

	// StatsReader provides the backend's aggregated monthly figures.
	StatsReader interface {
		Stats(ctx context.Context, month core.Month) (core.DashboardStats, error)
	}
)

// Backend is every port together.
type Backend interface {
	CategoryReader
	CategoryWriter
	TransactionReader
	TransactionWriter
	BudgetStore
	StatsReader
}
