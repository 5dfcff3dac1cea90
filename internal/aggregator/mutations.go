package aggregator

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/api"
	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/notify"
)

const (
	titleTransactionError = "Transaction Error"
	titleCategoryError    = "Category Error"
	titleBudgetError      = "Budget Error"
	titleSampleData       = "Sample Data"
	titleCannotDelete     = "Cannot Delete Category"
)

// AddTransaction validates in and creates the transaction.
func (a *Aggregator) AddTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	w, err := in.Write()
	if err != nil {
		a.fail(ctx, titleTransactionError, "Failed to add transaction", err)
		return core.Transaction{}, err
	}
	t, err := a.backend.CreateTransaction(ctx, w)
	if err != nil {
		a.logger.LogError(ctx, "Creating transaction failed", err, log.OpCreate, nil)
		a.fail(ctx, titleTransactionError, "Failed to add transaction", err)
		return core.Transaction{}, err
	}
	a.invalidateTransactions()
	a.logger.InfoContext(ctx, "Transaction created",
		log.FieldTransaction, t.ID.String(),
		log.FieldAmount, core.FormatAmount(t.Amount))
	a.succeed(ctx, "Transaction Added", fmt.Sprintf("Added %s.", describe(t.Description, "transaction")))
	return t, nil
}

// EditTransaction validates in and updates transaction id.
func (a *Aggregator) EditTransaction(ctx context.Context, id core.ID, in core.TransactionInput) (core.Transaction, error) {
	if id.IsZero() {
		a.fail(ctx, titleTransactionError, "Failed to update transaction", core.ErrMissingID)
		return core.Transaction{}, core.ErrMissingID
	}
	w, err := in.Write()
	if err != nil {
		a.fail(ctx, titleTransactionError, "Failed to update transaction", err)
		return core.Transaction{}, err
	}
	t, err := a.backend.UpdateTransaction(ctx, id, w)
	if err != nil {
		a.logger.LogError(ctx, "Updating transaction failed", err, log.OpUpdate,
			log.LogFields{log.FieldTransaction: id.String()})
		a.fail(ctx, titleTransactionError, "Failed to update transaction", err)
		return core.Transaction{}, err
	}
	a.invalidateTransactions()
	a.logger.InfoContext(ctx, "Transaction updated", log.FieldTransaction, id.String())
	a.succeed(ctx, "Transaction Updated", fmt.Sprintf("Updated %q.", describe(t.Description, w.Description)))
	return t, nil
}

// DeleteTransaction deletes transaction id. The description used in the
// notification comes from the visible page when the transaction is on it.
func (a *Aggregator) DeleteTransaction(ctx context.Context, id core.ID) error {
	if id.IsZero() {
		a.fail(ctx, titleTransactionError, "Failed to delete transaction", core.ErrMissingID)
		return core.ErrMissingID
	}
	desc := "transaction"
	if items, ok := a.visibleItems(false); ok {
		for _, t := range items {
			if t.ID == id {
				desc = describe(t.Description, desc)
				break
			}
		}
	}
	if err := a.backend.DeleteTransaction(ctx, id); err != nil {
		a.logger.LogError(ctx, "Deleting transaction failed", err, log.OpDelete,
			log.LogFields{log.FieldTransaction: id.String()})
		a.fail(ctx, titleTransactionError, "Failed to delete transaction", err)
		return err
	}
	a.invalidateTransactions()
	a.logger.InfoContext(ctx, "Transaction deleted", log.FieldTransaction, id.String())
	a.succeed(ctx, "Transaction Deleted", fmt.Sprintf("Deleted %q.", desc))
	return nil
}

func (a *Aggregator) AddCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	if err := in.Validate(); err != nil {
		a.fail(ctx, titleCategoryError, "Failed to add category", err)
		return core.Category{}, err
	}
	c, err := a.backend.CreateCategory(ctx, in)
	if err != nil {
		a.logger.LogError(ctx, "Creating category failed", err, log.OpCreate, nil)
		a.fail(ctx, titleCategoryError, "Failed to add category", err)
		return core.Category{}, err
	}
	a.categories.Clear()
	a.logger.InfoContext(ctx, "Category created", log.FieldCategoryID, c.ID.String())
	a.succeed(ctx, "Category Added", fmt.Sprintf("Category %q created.", describe(c.Name, in.Name)))
	return c, nil
}

// EditCategory renames or retypes category id. Transactions and stats
// carry category names, so both are dropped along with the category list.
func (a *Aggregator) EditCategory(ctx context.Context, id core.ID, in core.CategoryInput) (core.Category, error) {
	if id.IsZero() {
		a.fail(ctx, titleCategoryError, "Failed to update category", core.ErrMissingID)
		return core.Category{}, core.ErrMissingID
	}
	if err := in.Validate(); err != nil {
		a.fail(ctx, titleCategoryError, "Failed to update category", err)
		return core.Category{}, err
	}
	c, err := a.backend.UpdateCategory(ctx, id, in)
	if err != nil {
		a.logger.LogError(ctx, "Updating category failed", err, log.OpUpdate,
			log.LogFields{log.FieldCategoryID: id.String()})
		a.fail(ctx, titleCategoryError, "Failed to update category", err)
		return core.Category{}, err
	}
	a.categories.Clear()
	a.invalidateTransactions()
	a.logger.InfoContext(ctx, "Category updated", log.FieldCategoryID, id.String())
	a.succeed(ctx, "Category Updated", fmt.Sprintf("Category %q updated.", describe(c.Name, in.Name)))
	return c, nil
}

// DeleteCategory deletes category id unless transactions on the visible
// page still reference it. Only the loaded page is checked; the backend
// has the final say for the rest.
func (a *Aggregator) DeleteCategory(ctx context.Context, id core.ID) error {
	if id.IsZero() {
		a.fail(ctx, titleCategoryError, "Failed to delete category", core.ErrMissingID)
		return core.ErrMissingID
	}
	name := a.categoryName(id)

	var inUse int
	if items, ok := a.visibleItems(false); ok {
		for _, t := range items {
			if t.CategoryID == id {
				inUse++
			}
		}
	}
	if inUse > 0 {
		err := core.NewCategoryInUseError(name, inUse)
		a.logger.WarnContext(ctx, "Category still referenced",
			log.FieldCategoryID, id.String(), "count", inUse)
		a.notify(ctx, notify.Failure(titleCannotDelete, err.Error()))
		return err
	}

	if err := a.backend.DeleteCategory(ctx, id); err != nil {
		a.logger.LogError(ctx, "Deleting category failed", err, log.OpDelete,
			log.LogFields{log.FieldCategoryID: id.String()})
		a.fail(ctx, titleCategoryError, "Failed to delete category", err)
		return err
	}
	a.categories.Clear()
	a.logger.InfoContext(ctx, "Category deleted", log.FieldCategoryID, id.String())
	a.succeed(ctx, "Category Deleted", fmt.Sprintf("Category %q deleted.", name))
	return nil
}

// SaveBudget sets the current month's budget, updating it when one exists
// and creating it otherwise.
func (a *Aggregator) SaveBudget(ctx context.Context, amount string) (core.Budget, error) {
	value, err := core.ParseBudgetAmount(amount)
	if err != nil {
		a.fail(ctx, titleBudgetError, "Failed to save budget", err)
		return core.Budget{}, err
	}
	current, err := a.CurrentBudget(ctx)
	if err != nil {
		a.fail(ctx, titleBudgetError, "Failed to save budget", err)
		return core.Budget{}, err
	}

	month := core.MonthOf(a.now())
	var saved core.Budget
	if current != nil {
		saved, err = a.backend.UpdateBudget(ctx, current.ID, value)
	} else {
		saved, err = a.backend.CreateBudget(ctx, month, value)
	}
	if err != nil {
		a.logger.LogError(ctx, "Saving budget failed", err, log.OpUpdate,
			log.LogFields{log.FieldMonth: month.String()})
		a.fail(ctx, titleBudgetError, "Failed to save budget", err)
		return core.Budget{}, err
	}

	a.budgets.Clear()
	if m, err := saved.MonthValue(); err == nil {
		month = m
	}
	if month == a.SelectedMonth() {
		a.stats.Invalidate(month.String())
	}
	a.logger.InfoContext(ctx, "Budget saved",
		log.FieldMonth, month.String(),
		log.FieldAmount, core.FormatAmount(value))
	a.succeed(ctx, "Budget Saved", "Monthly budget processed.")
	return saved, nil
}

// invalidateTransactions drops every cached page and the selected month's
// stats, and marks the visible page stale.
func (a *Aggregator) invalidateTransactions() {
	a.transactions.Clear()
	a.stats.Invalidate(a.SelectedMonth().String())
	a.mu.Lock()
	if a.visible != nil {
		a.visible.stale = true
	}
	a.mu.Unlock()
}

func (a *Aggregator) categoryName(id core.ID) string {
	if cats, ok := a.categories.Get(keyCategories); ok {
		for _, c := range cats {
			if c.ID == id {
				return c.Name
			}
		}
	}
	return id.String()
}

func (a *Aggregator) succeed(ctx context.Context, title, msg string) {
	a.notify(ctx, notify.Success(title, msg))
}

// fail reports a failed mutation. A 401 ends the session instead and is
// not reported; writes refused by the sample data get a sign-in hint.
func (a *Aggregator) fail(ctx context.Context, title, prefix string, err error) {
	switch {
	case api.IsUnauthorized(err):
		return
	case errors.Is(err, backend.ErrAnonymous):
		a.notify(ctx, notify.New(notify.LevelInfo, titleSampleData, "Sign in to change your data."))
	default:
		a.notify(ctx, notify.Failure(title, fmt.Sprintf("%s: %s", prefix, errorMessage(err))))
	}
}

func (a *Aggregator) notify(ctx context.Context, n notify.Notification) {
	if err := a.notifier.Notify(ctx, n); err != nil {
		a.logger.WarnContext(ctx, "Delivering notification failed",
			log.FieldError, err.Error(), "title", n.Title)
	}
}

func errorMessage(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

func describe(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
