package backend

import (
	"context"

	"github.com/shopspring/decimal"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/log"
)

var _ Backend = (*api.Client)(nil)

// Switch routes every call to the remote backend while a session is
// authenticated and to the anonymous backend otherwise. The decision is
// made per call.
type Switch struct {
	remote        Backend
	anonymous     Backend
	authenticated func() bool
	logger        *log.Logger
}

func NewSwitch(remote, anonymous Backend, authenticated func() bool, logger *log.Logger) *Switch {
	if logger == nil {
		logger = log.Discard()
	}
	return &Switch{
		remote:        remote,
		anonymous:     anonymous,
		authenticated: authenticated,
		logger:        logger.WithComponent(log.ComponentBackend),
	}
}

// Anonymous reports whether calls currently go to the anonymous backend.
func (s *Switch) Anonymous() bool { return !s.authenticated() }

func (s *Switch) active(ctx context.Context, op string) Backend {
	if s.authenticated() {
		return s.remote
	}
	s.logger.DebugContext(ctx, "Serving anonymous data", log.FieldOperation, op)
	return s.anonymous
}

func (s *Switch) ListCategories(ctx context.Context) ([]core.Category, error) {
	return s.active(ctx, log.OpList).ListCategories(ctx)
}

func (s *Switch) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	return s.active(ctx, log.OpCreate).CreateCategory(ctx, in)
}

func (s *Switch) UpdateCategory(ctx context.Context, id core.ID, in core.CategoryInput) (core.Category, error) {
	return s.active(ctx, log.OpUpdate).UpdateCategory(ctx, id, in)
}

func (s *Switch) DeleteCategory(ctx context.Context, id core.ID) error {
	return s.active(ctx, log.OpDelete).DeleteCategory(ctx, id)
}

func (s *Switch) ListTransactions(ctx context.Context, filters core.TransactionFilters, page int) (core.TransactionPage, error) {
	return s.active(ctx, log.OpList).ListTransactions(ctx, filters, page)
}

func (s *Switch) CreateTransaction(ctx context.Context, in core.TransactionWrite) (core.Transaction, error) {
	return s.active(ctx, log.OpCreate).CreateTransaction(ctx, in)
}

func (s *Switch) UpdateTransaction(ctx context.Context, id core.ID, in core.TransactionWrite) (core.Transaction, error) {
	return s.active(ctx, log.OpUpdate).UpdateTransaction(ctx, id, in)
}

func (s *Switch) DeleteTransaction(ctx context.Context, id core.ID) error {
	return s.active(ctx, log.OpDelete).DeleteTransaction(ctx, id)
}

func (s *Switch) CurrentBudget(ctx context.Context) (*core.Budget, error) {
	return s.active(ctx, log.OpRead).CurrentBudget(ctx)
}

func (s *Switch) CreateBudget(ctx context.Context, month core.Month, amount decimal.Decimal) (core.Budget, error) {
	return s.active(ctx, log.OpCreate).CreateBudget(ctx, month, amount)
}

func (s *Switch) UpdateBudget(ctx context.Context, id core.ID, amount decimal.Decimal) (core.Budget, error) {
	return s.active(ctx, log.OpUpdate).UpdateBudget(ctx, id, amount)
}

func (s *Switch) Stats(ctx context.Context, month core.Month) (core.DashboardStats, error) {
	return s.active(ctx, log.OpRead).Stats(ctx, month)
}
