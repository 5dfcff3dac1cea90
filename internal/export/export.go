// Package export turns a month of transactions into a flat table and hands
// it to a Writer (a spreadsheet, or memory in tests).
package export

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fintrack/internal/core"
)

// maxPages bounds the page walk in Collect.
const maxPages = 200

var ErrTooManyPages = errors.New("export: too many transaction pages")

// Source is what Collect reads from; *aggregator.Aggregator satisfies it.
type Source interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
	ListTransactions(ctx context.Context, filters core.TransactionFilters, page int) (core.TransactionPage, error)
	Stats(ctx context.Context, month core.Month) (core.DashboardStats, error)
}

// Writer stores a report and returns a reference to where it went.
type Writer interface {
	WriteReport(ctx context.Context, r Report) (ref string, err error)
}

type Report struct {
	Month        core.Month
	Categories   []core.Category
	Transactions []core.Transaction
	Stats        core.DashboardStats
}

// Collect gathers every transaction dated in month by walking the pages
// of a date-range listing, along with the categories and the month's
// stats.
func Collect(ctx context.Context, src Source, month core.Month) (Report, error) {
	cats, err := src.ListCategories(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list categories: %w", err)
	}

	first := month.FirstDay()
	filters := core.TransactionFilters{
		DateFrom: first,
		DateTo:   first.AddDate(0, 1, -1),
	}
	var txns []core.Transaction
	for page := 1; ; page++ {
		if page > maxPages {
			return Report{}, ErrTooManyPages
		}
		p, err := src.ListTransactions(ctx, filters, page)
		if err != nil {
			return Report{}, fmt.Errorf("list transactions page %d: %w", page, err)
		}
		txns = append(txns, p.Items...)
		if !p.HasNext {
			break
		}
	}

	stats, err := src.Stats(ctx, month)
	if err != nil {
		return Report{}, fmt.Errorf("stats %s: %w", month, err)
	}
	return Report{Month: month, Categories: cats, Transactions: txns, Stats: stats}, nil
}

// Header is the first row of every exported table.
var Header = []any{"Date", "Type", "Category", "Description", "Amount"}

// Rows renders r as a table: the header, one row per transaction, a blank
// row and the month totals. Amounts are two-decimal strings so the sheet
// parses them as numbers.
func Rows(r Report) [][]any {
	names := make(map[core.ID]string, len(r.Categories))
	for _, c := range r.Categories {
		names[c.ID] = c.Name
	}

	rows := make([][]any, 0, len(r.Transactions)+5)
	rows = append(rows, Header)
	for _, t := range r.Transactions {
		date := t.Date
		if d, err := t.ParsedDate(); err == nil {
			date = d.Format(core.DateLayout)
		}
		rows = append(rows, []any{
			date,
			string(t.Type),
			names[t.CategoryID],
			strings.TrimSpace(t.Description),
			core.FormatAmount(t.Amount),
		})
	}

	view := core.NewDashboardView(r.Stats)
	rows = append(rows,
		[]any{},
		[]any{"", "", "", "Total income", core.FormatAmount(r.Stats.TotalIncome)},
		[]any{"", "", "", "Total expense", core.FormatAmount(r.Stats.TotalExpense)},
		[]any{"", "", "", "Balance", core.FormatAmount(view.Balance)},
	)
	if r.Stats.Budget.Valid {
		rows = append(rows, []any{"", "", "", "Budget remaining", core.FormatAmount(view.BudgetRemaining)})
	}
	return rows
}
