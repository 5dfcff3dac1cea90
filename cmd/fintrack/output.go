package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"fintrack/internal/aggregator"
	"fintrack/internal/core"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printCategories(w io.Writer, cats []core.Category) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, c.Type)
	}
	tw.Flush()
}

func categoryNames(cats []core.Category) map[core.ID]string {
	names := make(map[core.ID]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}

func printTransactions(w io.Writer, view aggregator.View, names map[core.ID]string) {
	if view.Transactions == nil || len(view.Transactions.Items) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return
	}
	tw := table(w)
	fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tDESCRIPTION\tAMOUNT")
	for _, t := range view.Transactions.Items {
		date := t.Date
		if d, err := t.ParsedDate(); err == nil {
			date = d.Format(core.DateLayout)
		}
		name, ok := names[t.CategoryID]
		if !ok {
			name = t.CategoryID.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, date, t.Type, name, t.Description, core.FormatAmount(t.Amount))
	}
	tw.Flush()
	fmt.Fprintf(w, "Page %d of %d (%d transactions)\n", view.Page, view.TotalPages, view.Transactions.Count)
}

func printSummary(w io.Writer, s aggregator.Summary) {
	tw := table(w)
	fmt.Fprintf(tw, "Month\t%s\n", s.Budget.Month)
	fmt.Fprintf(tw, "Income\t%s\n", core.FormatAmount(s.Totals.TotalIncome))
	fmt.Fprintf(tw, "Expense\t%s\n", core.FormatAmount(s.Totals.TotalExpense))
	fmt.Fprintf(tw, "Balance\t%s\n", core.FormatAmount(s.Totals.Balance))
	if s.Budget.HasBudget {
		fmt.Fprintf(tw, "Budget\t%s\n", core.FormatAmount(s.Budget.Budget))
		fmt.Fprintf(tw, "Remaining\t%s\n", core.FormatAmount(s.Budget.Remaining))
	}
	tw.Flush()
	if s.Budget.OverBudget {
		fmt.Fprintln(w, "Over budget.")
	}
	if len(s.Totals.Categories) > 0 {
		fmt.Fprintln(w)
		tw = table(w)
		fmt.Fprintln(tw, "CATEGORY\tSPENT")
		for _, c := range s.Totals.Categories {
			fmt.Fprintf(tw, "%s\t%s\n", c.Category.Name, core.FormatAmount(c.Spent))
		}
		tw.Flush()
	}
}

func printDashboard(w io.Writer, month core.Month, v core.DashboardView) {
	tw := table(w)
	fmt.Fprintf(tw, "Month\t%s\n", month)
	fmt.Fprintf(tw, "Income\t%s\n", core.FormatAmount(v.Stats.TotalIncome))
	fmt.Fprintf(tw, "Expense\t%s\n", core.FormatAmount(v.Stats.TotalExpense))
	fmt.Fprintf(tw, "Balance\t%s\n", core.FormatAmount(v.Balance))
	if v.Stats.Budget.Valid {
		fmt.Fprintf(tw, "Budget\t%s\n", core.FormatAmount(v.Stats.Budget.Decimal))
		fmt.Fprintf(tw, "Remaining\t%s\n", core.FormatAmount(v.BudgetRemaining))
	}
	tw.Flush()
	for _, group := range []struct {
		title string
		items []core.CategoryAmount
	}{
		{"INCOME", v.Stats.IncomeCategories},
		{"EXPENSE", v.Stats.ExpenseCategories},
	} {
		if len(group.items) == 0 {
			continue
		}
		fmt.Fprintln(w)
		tw = table(w)
		fmt.Fprintf(tw, "%s\tAMOUNT\n", group.title)
		for _, c := range group.items {
			fmt.Fprintf(tw, "%s\t%s\n", c.Category, core.FormatAmount(c.Amount))
		}
		tw.Flush()
	}
}

// printRows writes an export table as tab-separated values.
func printRows(w io.Writer, rows [][]any) {
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprint(v)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
}

// prompter reads answers from stdin. Passwords are read without echo when
// stdin is a terminal.
type prompter struct {
	in  io.Reader
	br  *bufio.Reader
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: in, br: bufio.NewReader(in), out: out}
}

func (p *prompter) Line(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.br.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *prompter) Password(prompt string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.out, prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	// Fallback for non-terminal (e.g. tests, pipes)
	return p.Line(prompt)
}
