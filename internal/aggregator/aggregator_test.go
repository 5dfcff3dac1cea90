package aggregator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fintrack/internal/aggregator"
	"fintrack/internal/api"
	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/notify"
)

var fixedNow = time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)

func newAggregator(t *testing.T, b backend.Backend) (*aggregator.Aggregator, *notify.Buffer) {
	t.Helper()
	buf := notify.NewBuffer(32)
	a := aggregator.New(b, aggregator.Config{},
		aggregator.WithNotifier(buf),
		aggregator.WithClock(func() time.Time { return fixedNow }))
	t.Cleanup(a.Close)
	return a, buf
}

func txn(id, cat, amount, desc string, typ core.TransactionType) core.Transaction {
	return core.Transaction{
		ID:          core.ID(id),
		Type:        typ,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		CategoryID:  core.ID(cat),
		Date:        "2025-03-02",
	}
}

func TestListCategoriesSortsByteWiseAndCaches(t *testing.T) {
	stub := newStub()
	stub.categories = []core.Category{
		{ID: "1", Name: "banana"},
		{ID: "2", Name: "Cherry"},
		{ID: "3", Name: "apple"},
	}
	a, _ := newAggregator(t, stub)

	cats, err := a.ListCategories(context.Background())
	require.NoError(t, err)
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	assert.Equal(t, []string{"Cherry", "apple", "banana"}, names)

	cats[0].Name = "mutated"
	again, err := a.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Cherry", again[0].Name)
	assert.Equal(t, 1, stub.count("ListCategories"))
}

func TestConcurrentReadsShareOneLoad(t *testing.T) {
	stub := newStub()
	stub.categories = []core.Category{{ID: "1", Name: "Food"}}
	a, _ := newAggregator(t, stub)
	release := stub.hold("ListCategories")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cats, err := a.ListCategories(context.Background())
			assert.NoError(t, err)
			assert.Len(t, cats, 1)
		}()
	}
	<-stub.started
	release()
	wg.Wait()

	assert.Equal(t, 1, stub.count("ListCategories"))
}

func TestInvalidationDuringLoadIsNotUndone(t *testing.T) {
	stub := newStub()
	stub.categories = []core.Category{{ID: "1", Name: "Food"}}
	a, _ := newAggregator(t, stub)
	release := stub.hold("ListCategories")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.ListCategories(context.Background())
		assert.NoError(t, err)
	}()
	<-stub.started

	_, err := a.AddCategory(context.Background(), core.CategoryInput{Name: "Rent", Type: core.Expense})
	require.NoError(t, err)
	release()
	<-done

	_, err = a.ListCategories(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stub.count("ListCategories"), "the raced result must not have been cached")
}

func TestSessionChangeDuringLoadIsNotCached(t *testing.T) {
	stub := newStub()
	a, _ := newAggregator(t, stub)
	sess := &stubSession{}
	a.BindSession(sess)
	release := stub.hold("Stats")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.Dashboard(context.Background())
		assert.NoError(t, err)
	}()
	<-stub.started
	sess.bump()
	release()
	<-done

	_, err := a.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stub.count("Stats"))
}

func TestSessionChangeResetsSelection(t *testing.T) {
	stub := newStub()
	stub.pages[1] = core.TransactionPage{Count: 6, HasNext: true}
	a, _ := newAggregator(t, stub)
	sess := &stubSession{}
	a.BindSession(sess)

	a.ApplyFilters(core.TransactionFilters{Search: "rent"})
	_, err := a.CurrentTransactions(context.Background())
	require.NoError(t, err)
	a.SelectMonth(core.Month{Year: 2024, Month: time.December})

	sess.bump()

	v := a.View()
	assert.True(t, v.Filters.IsEmpty())
	assert.Equal(t, 1, v.Page)
	assert.Nil(t, v.Transactions)
	assert.Equal(t, "2024-12", v.Month)

	_, err = a.CurrentTransactions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stub.count("ListTransactions"))
}

func TestAbandonedSelectionIsNotShown(t *testing.T) {
	stub := newStub()
	stub.pages[1] = core.TransactionPage{Items: []core.Transaction{txn("1", "1", "5.00", "Tea", core.Expense)}, Count: 1}
	a, _ := newAggregator(t, stub)
	release := stub.hold("ListTransactions")

	done := make(chan struct{})
	go func() {
		defer close(done)
		p, err := a.CurrentTransactions(context.Background())
		assert.NoError(t, err)
		assert.Len(t, p.Items, 1)
	}()
	<-stub.started
	a.ApplyFilters(core.TransactionFilters{Search: "coffee"})
	release()
	<-done

	assert.Nil(t, a.View().Transactions)
}

func TestSessionChangeDuringPageLoadIsNotShown(t *testing.T) {
	stub := newStub()
	stub.pages[1] = core.TransactionPage{Items: []core.Transaction{txn("1", "1", "5.00", "Secret", core.Expense)}, Count: 1}
	a, _ := newAggregator(t, stub)
	sess := &stubSession{}
	a.BindSession(sess)
	release := stub.hold("ListTransactions")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.CurrentTransactions(context.Background())
		assert.NoError(t, err)
	}()
	<-stub.started
	sess.bump()
	release()
	<-done

	assert.Nil(t, a.View().Transactions, "previous session's page must not come back")
}

func TestResetDuringPageLoadIsNotShown(t *testing.T) {
	stub := newStub()
	stub.pages[1] = core.TransactionPage{Items: []core.Transaction{txn("1", "1", "5.00", "Tea", core.Expense)}, Count: 1}
	a, _ := newAggregator(t, stub)
	release := stub.hold("ListTransactions")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.CurrentTransactions(context.Background())
		assert.NoError(t, err)
	}()
	<-stub.started
	a.Reset()
	release()
	<-done

	assert.Nil(t, a.View().Transactions)
}

func TestMutationDuringPageLoadLeavesPageStale(t *testing.T) {
	ctx := context.Background()
	stub := newStub()
	stub.categories = []core.Category{{ID: "1", Name: "Food", Type: core.Expense}}
	stub.pages[1] = core.TransactionPage{Items: []core.Transaction{txn("1", "1", "5.00", "Tea", core.Expense)}, Count: 1}
	a, _ := newAggregator(t, stub)
	release := stub.hold("ListTransactions")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := a.CurrentTransactions(ctx)
		assert.NoError(t, err)
	}()
	<-stub.started
	_, err := a.AddTransaction(ctx, core.TransactionInput{Amount: "3", CategoryID: "1", Description: "Bun"})
	require.NoError(t, err)
	release()
	<-done

	require.NotNil(t, a.View().Transactions, "the page still belongs to the current selection")
	_, err = a.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.count("ListTransactions"), "summary reloads a page fetched before the write")
}

func TestPagination(t *testing.T) {
	stub := newStub()
	stub.pages[1] = core.TransactionPage{Count: 7, HasNext: true}
	stub.pages[2] = core.TransactionPage{Count: 7, HasPrevious: true}
	a, _ := newAggregator(t, stub)
	ctx := context.Background()

	assert.False(t, a.PreviousPage(), "previous on page 1")
	assert.False(t, a.NextPage(), "next before the page loaded")

	_, err := a.CurrentTransactions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, a.View().TotalPages)
	require.True(t, a.NextPage())
	assert.Equal(t, 2, a.Page())

	_, err = a.CurrentTransactions(ctx)
	require.NoError(t, err)
	assert.False(t, a.NextPage(), "last page reports no next")

	a.ApplyFilters(core.TransactionFilters{Category: "3"})
	assert.Equal(t, 1, a.Page())
	assert.False(t, a.NextPage(), "page of the old filters does not count")

	a.GoToPage(2)
	require.True(t, a.PreviousPage())
	assert.Equal(t, 1, a.Page())
}

func TestMutationInvalidation(t *testing.T) {
	ctx := context.Background()
	validTxn := core.TransactionInput{Amount: "12.50", CategoryID: "1", Description: "Lunch"}
	validCat := core.CategoryInput{Name: "Rent", Type: core.Expense}

	tests := []struct {
		name   string
		mutate func(a *aggregator.Aggregator) error
		// reloaded lists the reads that must hit the backend again.
		reloaded []string
	}{
		{
			name: "add transaction",
			mutate: func(a *aggregator.Aggregator) error {
				_, err := a.AddTransaction(ctx, validTxn)
				return err
			},
			reloaded: []string{"ListTransactions", "Stats"},
		},
		{
			name: "edit transaction",
			mutate: func(a *aggregator.Aggregator) error {
				_, err := a.EditTransaction(ctx, "5", validTxn)
				return err
			},
			reloaded: []string{"ListTransactions", "Stats"},
		},
		{
			name:     "delete transaction",
			mutate:   func(a *aggregator.Aggregator) error { return a.DeleteTransaction(ctx, "5") },
			reloaded: []string{"ListTransactions", "Stats"},
		},
		{
			name: "add category",
			mutate: func(a *aggregator.Aggregator) error {
				_, err := a.AddCategory(ctx, validCat)
				return err
			},
			reloaded: []string{"ListCategories"},
		},
		{
			name: "edit category",
			mutate: func(a *aggregator.Aggregator) error {
				_, err := a.EditCategory(ctx, "1", validCat)
				return err
			},
			reloaded: []string{"ListCategories", "ListTransactions", "Stats"},
		},
		{
			name:     "delete category",
			mutate:   func(a *aggregator.Aggregator) error { return a.DeleteCategory(ctx, "2") },
			reloaded: []string{"ListCategories"},
		},
		{
			name: "save budget",
			mutate: func(a *aggregator.Aggregator) error {
				_, err := a.SaveBudget(ctx, "900")
				return err
			},
			reloaded: []string{"CurrentBudget", "Stats"},
		},
	}

	reads := []string{"ListCategories", "ListTransactions", "CurrentBudget", "Stats"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStub()
			stub.categories = []core.Category{{ID: "1", Name: "Food"}, {ID: "2", Name: "Fun"}}
			stub.pages[1] = core.TransactionPage{Items: []core.Transaction{txn("5", "1", "3.00", "Bread", core.Expense)}, Count: 1}
			stub.budget = &core.Budget{ID: "7", Month: "2025-03-01", Amount: decimal.RequireFromString("1000")}
			a, buf := newAggregator(t, stub)

			require.NoError(t, a.Refresh(ctx))
			before := map[string]int{}
			for _, r := range reads {
				before[r] = stub.count(r)
			}

			require.NoError(t, tt.mutate(a))
			require.NoError(t, a.Refresh(ctx))

			for _, r := range reads {
				want := before[r]
				for _, name := range tt.reloaded {
					if name == r {
						want++
					}
				}
				assert.Equal(t, want, stub.count(r), r)
			}

			got := buf.Drain()
			require.Len(t, got, 1)
			assert.Equal(t, notify.LevelSuccess, got[0].Level)
		})
	}
}

func TestFailedMutationLeavesCaches(t *testing.T) {
	ctx := context.Background()
	stub := newStub()
	stub.categories = []core.Category{{ID: "1", Name: "Food"}}
	a, buf := newAggregator(t, stub)
	require.NoError(t, a.Refresh(ctx))

	stub.failWrites(&api.Error{StatusCode: 500, Message: "boom"})
	_, err := a.AddCategory(ctx, core.CategoryInput{Name: "Rent", Type: core.Expense})
	require.Error(t, err)

	_, err = a.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.count("ListCategories"))
	assert.Equal(t, 1, stub.count("CreateCategory"), "no retry")

	got := buf.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "Category Error", got[0].Title)
	assert.Equal(t, "Failed to add category: boom", got[0].Message)
}

func TestValidationNeverReachesBackend(t *testing.T) {
	ctx := context.Background()
	stub := newStub()
	a, buf := newAggregator(t, stub)

	tests := []struct {
		name string
		run  func() error
		want error
	}{
		{"zero amount", func() error {
			_, err := a.AddTransaction(ctx, core.TransactionInput{Amount: "0", CategoryID: "1"})
			return err
		}, core.ErrInvalidAmount},
		{"no category", func() error {
			_, err := a.AddTransaction(ctx, core.TransactionInput{Amount: "5"})
			return err
		}, core.ErrMissingCategory},
		{"all category", func() error {
			_, err := a.EditTransaction(ctx, "1", core.TransactionInput{Amount: "5", CategoryID: core.CategoryAll})
			return err
		}, core.ErrMissingCategory},
		{"blank name", func() error {
			_, err := a.AddCategory(ctx, core.CategoryInput{Name: "  ", Type: core.Income})
			return err
		}, core.ErrEmptyCategoryName},
		{"bad type", func() error {
			_, err := a.EditCategory(ctx, "1", core.CategoryInput{Name: "Rent", Type: "other"})
			return err
		}, core.ErrInvalidCategoryType},
		{"negative budget", func() error {
			_, err := a.SaveBudget(ctx, "-1")
			return err
		}, core.ErrInvalidBudgetAmount},
		{"missing id", func() error { return a.DeleteTransaction(ctx, "") }, core.ErrMissingID},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.run()
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, core.IsValidationError(err))
			got := buf.Drain()
			require.Len(t, got, 1)
			assert.Equal(t, notify.LevelError, got[0].Level)
		})
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	assert.Empty(t, stub.calls)
}

func TestDeleteCategoryGuard(t *testing.T) {
	ctx := context.Background()
	stub := newStub()
	stub.categories = []core.Category{{ID: "1", Name: "Food"}, {ID: "2", Name: "Fun"}}
	stub.pages[1] = core.TransactionPage{Items: []core.Transaction{
		txn("5", "1", "3.00", "Bread", core.Expense),
		txn("6", "1", "4.00", "Milk", core.Expense),
	}, Count: 2}
	a, buf := newAggregator(t, stub)
	require.NoError(t, a.Refresh(ctx))

	err := a.DeleteCategory(ctx, "1")
	require.Error(t, err)
	assert.True(t, core.IsConflictError(err))
	assert.Equal(t, `Category "Food" has 2 associated transaction(s). Please reassign or delete them first.`, err.Error())
	assert.Equal(t, 0, stub.count("DeleteCategory"))

	got := buf.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, "Cannot Delete Category", got[0].Title)

	require.NoError(t, a.DeleteCategory(ctx, "2"))
	got = buf.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, `Category "Fun" deleted.`, got[0].Message)
}

func TestSaveBudgetUpdatesOrCreates(t *testing.T) {
	ctx := context.Background()

	t.Run("creates when absent", func(t *testing.T) {
		stub := newStub()
		a, buf := newAggregator(t, stub)
		b, err := a.SaveBudget(ctx, "750.5")
		require.NoError(t, err)
		assert.Equal(t, "2025-03-01", b.Month)
		assert.Equal(t, 1, stub.count("CreateBudget"))
		assert.Equal(t, 0, stub.count("UpdateBudget"))
		assert.Equal(t, "Monthly budget processed.", buf.Drain()[0].Message)

		cur, err := a.CurrentBudget(ctx)
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.Equal(t, "750.50", core.FormatAmount(cur.Amount))
	})

	t.Run("updates when present", func(t *testing.T) {
		stub := newStub()
		stub.budget = &core.Budget{ID: "7", Month: "2025-03-01", Amount: decimal.RequireFromString("1000")}
		a, _ := newAggregator(t, stub)
		_, err := a.SaveBudget(ctx, "1200")
		require.NoError(t, err)
		assert.Equal(t, 1, stub.count("UpdateBudget"))
		assert.Equal(t, 0, stub.count("CreateBudget"))
	})

	t.Run("other month selected keeps stats", func(t *testing.T) {
		stub := newStub()
		a, _ := newAggregator(t, stub)
		a.SelectMonth(core.Month{Year: 2025, Month: time.January})
		_, err := a.Dashboard(ctx)
		require.NoError(t, err)
		_, err = a.SaveBudget(ctx, "10")
		require.NoError(t, err)
		_, err = a.Dashboard(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stub.count("Stats"))
	})
}

func TestMutationNotifications(t *testing.T) {
	ctx := context.Background()

	t.Run("unauthorized is silent", func(t *testing.T) {
		stub := newStub()
		stub.failWrites(&api.Error{StatusCode: 401, Message: "Given token not valid for any token type"})
		a, buf := newAggregator(t, stub)
		err := a.DeleteTransaction(ctx, "1")
		assert.True(t, api.IsUnauthorized(err))
		assert.Zero(t, buf.Len())
	})

	t.Run("sample data hint", func(t *testing.T) {
		stub := newStub()
		stub.failWrites(backend.ErrAnonymous)
		a, buf := newAggregator(t, stub)
		_, err := a.AddTransaction(ctx, core.TransactionInput{Amount: "1", CategoryID: "1"})
		assert.ErrorIs(t, err, backend.ErrAnonymous)
		got := buf.Drain()
		require.Len(t, got, 1)
		assert.Equal(t, notify.LevelInfo, got[0].Level)
		assert.Equal(t, "Sample Data", got[0].Title)
	})

	t.Run("messages", func(t *testing.T) {
		stub := newStub()
		stub.pages[1] = core.TransactionPage{Items: []core.Transaction{txn("5", "1", "3.00", "Bread", core.Expense)}, Count: 1}
		a, buf := newAggregator(t, stub)
		_, err := a.CurrentTransactions(ctx)
		require.NoError(t, err)

		_, err = a.AddTransaction(ctx, core.TransactionInput{Amount: "2", CategoryID: "1"})
		require.NoError(t, err)
		_, err = a.EditTransaction(ctx, "5", core.TransactionInput{Amount: "2", CategoryID: "1", Description: "Rye"})
		require.NoError(t, err)
		require.NoError(t, a.DeleteTransaction(ctx, "5"))

		var msgs []string
		for _, n := range buf.Drain() {
			msgs = append(msgs, n.Title+": "+n.Message)
		}
		assert.Equal(t, []string{
			"Transaction Added: Added transaction.",
			`Transaction Updated: Updated "Rye".`,
			`Transaction Deleted: Deleted "Bread".`,
		}, msgs)
	})

	t.Run("notifier failure does not fail the mutation", func(t *testing.T) {
		stub := newStub()
		a := aggregator.New(stub, aggregator.Config{},
			aggregator.WithNotifier(notify.Func(func(context.Context, notify.Notification) error {
				return errors.New("queue down")
			})))
		t.Cleanup(a.Close)
		_, err := a.AddCategory(ctx, core.CategoryInput{Name: "Rent", Type: core.Expense})
		assert.NoError(t, err)
	})
}

func TestSummaryUsesLoadedTransactions(t *testing.T) {
	ctx := context.Background()
	stub := newStub()
	stub.categories = []core.Category{{ID: "1", Name: "Food"}, {ID: "2", Name: "Salary"}}
	stub.pages[1] = core.TransactionPage{Items: []core.Transaction{
		txn("5", "1", "30.00", "Groceries", core.Expense),
		txn("6", "2", "100.00", "Pay", core.Income),
		{ID: "7", Type: core.Expense, Amount: decimal.RequireFromString("9"), CategoryID: "1", Date: "2025-02-27"},
	}, Count: 3}
	stub.budget = &core.Budget{ID: "7", Month: "2025-03-01", Amount: decimal.RequireFromString("25")}
	a, _ := newAggregator(t, stub)

	s, err := a.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "30.00", core.FormatAmount(s.Totals.TotalExpense))
	assert.Equal(t, "70.00", core.FormatAmount(s.Totals.Balance))
	assert.Equal(t, "-5.00", core.FormatAmount(s.Budget.Remaining))
	assert.True(t, s.Budget.OverBudget)
	assert.Equal(t, 1, stub.count("ListTransactions"))

	_, err = a.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.count("ListTransactions"), "visible page reused")
}

func TestRefreshLoadsEverythingOnce(t *testing.T) {
	stub := newStub()
	a, _ := newAggregator(t, stub)
	require.NoError(t, a.Refresh(context.Background()))
	require.NoError(t, a.Refresh(context.Background()))
	for _, name := range []string{"ListCategories", "ListTransactions", "CurrentBudget", "Stats"} {
		assert.Equal(t, 1, stub.count(name), name)
	}
}
