package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/core"
	"fintrack/internal/export"
	"fintrack/internal/export/memory"
	"fintrack/internal/notify"
	"fintrack/internal/session"
)

type command struct {
	app    *cli.App
	prompt *prompter
	stdout io.Writer
	stderr io.Writer
	json   bool
}

func (c *command) dispatch(ctx context.Context, name string, args []string) error {
	switch name {
	case "login":
		return c.login(ctx, args)
	case "logout":
		return c.logout()
	case "whoami":
		return c.whoami()
	case "register":
		return c.register(ctx, args)
	case "categories":
		return c.categories(ctx, args)
	case "transactions":
		return c.transactions(ctx, args)
	case "budget":
		return c.budget(ctx, args)
	case "summary":
		return c.summary(ctx)
	case "dashboard":
		return c.dashboard(ctx, args)
	case "export":
		return c.export(ctx, args)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(c.stdout, usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (c *command) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	return fs
}

// flushNotifications prints what the aggregator reported during the
// command.
func (c *command) flushNotifications() {
	for _, n := range c.app.Notifications.Drain() {
		mark := "ok"
		switch n.Level {
		case notify.LevelError:
			mark = "error"
		case notify.LevelInfo:
			mark = "info"
		}
		fmt.Fprintf(c.stderr, "[%s] %s: %s\n", mark, n.Title, n.Message)
	}
}

// --- session ---

func (c *command) login(ctx context.Context, args []string) error {
	fs := c.flags("login")
	email := fs.String("email", "", "account email (prompted if omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		v, err := c.prompt.Line("Email: ")
		if err != nil {
			return fmt.Errorf("failed to read email: %w", err)
		}
		*email = v
	}
	password, err := c.prompt.Password("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	snap, err := c.app.Session.Login(ctx, *email, password)
	if err != nil {
		return err
	}
	if c.json {
		return printJSON(c.stdout, snap.User)
	}
	fmt.Fprintf(c.stdout, "Signed in as %s (%s)\n", snap.User.DisplayName(), snap.User.Email)
	return nil
}

func (c *command) logout() error {
	c.app.Session.Logout()
	fmt.Fprintln(c.stdout, "Signed out.")
	return nil
}

func (c *command) whoami() error {
	snap := c.app.Session.Snapshot()
	if c.json {
		return printJSON(c.stdout, map[string]any{"state": snap.State, "user": snap.User})
	}
	if snap.State != session.StateAuthenticated || snap.User == nil {
		if snap.Err != nil {
			fmt.Fprintf(c.stdout, "Not signed in: %v\n", snap.Err)
			return nil
		}
		fmt.Fprintln(c.stdout, "Not signed in (showing sample data).")
		return nil
	}
	fmt.Fprintf(c.stdout, "%s (%s)\n", snap.User.DisplayName(), snap.User.Email)
	return nil
}

func (c *command) register(ctx context.Context, args []string) error {
	fs := c.flags("register")
	first := fs.String("first", "", "first name")
	last := fs.String("last", "", "last name")
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	password, err := c.prompt.Password("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}
	err = c.app.Session.Register(ctx, core.RegisterInput{
		FirstName: *first,
		LastName:  *last,
		Email:     *email,
		Password:  password,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Account created. Sign in with: fintrack login -email "+strings.TrimSpace(*email))
	return nil
}

// --- categories ---

func (c *command) categories(ctx context.Context, args []string) error {
	sub := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	fs := c.flags("categories " + sub)
	id := fs.String("id", "", "category id")
	name := fs.String("name", "", "category name")
	typ := fs.String("type", string(core.Expense), "income or expense")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in := core.CategoryInput{Name: *name, Type: core.TransactionType(*typ)}

	switch sub {
	case "", "list":
		cats, err := c.app.Aggregator.ListCategories(ctx)
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(c.stdout, cats)
		}
		printCategories(c.stdout, cats)
		return nil
	case "add":
		cat, err := c.app.Aggregator.AddCategory(ctx, in)
		if err != nil {
			return err
		}
		return c.printCreated(cat, cat.ID)
	case "edit":
		cat, err := c.app.Aggregator.EditCategory(ctx, core.ID(*id), in)
		if err != nil {
			return err
		}
		return c.printCreated(cat, cat.ID)
	case "delete":
		// Load the categories for the notification text and the category's
		// transactions so the in-use check sees them.
		if *id != "" {
			if _, err := c.app.Aggregator.ListCategories(ctx); err != nil {
				return err
			}
			c.app.Aggregator.ApplyFilters(core.TransactionFilters{Category: *id})
			if _, err := c.app.Aggregator.CurrentTransactions(ctx); err != nil {
				return err
			}
		}
		return c.app.Aggregator.DeleteCategory(ctx, core.ID(*id))
	default:
		return fmt.Errorf("unknown categories command %q", sub)
	}
}

// --- transactions ---

func (c *command) transactions(ctx context.Context, args []string) error {
	sub := ""
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		sub, args = args[0], args[1:]
	}

	fs := c.flags("transactions " + sub)
	// listing
	search := fs.String("search", "", "text to search in descriptions")
	category := fs.String("category", "", "category id, or all")
	from := fs.String("from", "", "earliest date, YYYY-MM-DD")
	to := fs.String("to", "", "latest date, YYYY-MM-DD")
	minAmount := fs.String("min", "", "smallest amount")
	maxAmount := fs.String("max", "", "largest amount")
	page := fs.Int("page", 1, "page number")
	// changes
	id := fs.String("id", "", "transaction id")
	amount := fs.String("amount", "", "amount")
	description := fs.String("description", "", "description")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in := core.TransactionInput{Amount: *amount, CategoryID: core.ID(*category), Description: *description}

	switch sub {
	case "", "list":
		filters := core.TransactionFilters{
			Search:    *search,
			Category:  *category,
			AmountMin: *minAmount,
			AmountMax: *maxAmount,
		}
		var err error
		if filters.DateFrom, err = parseOptionalDate("from", *from); err != nil {
			return err
		}
		if filters.DateTo, err = parseOptionalDate("to", *to); err != nil {
			return err
		}
		c.app.Aggregator.ApplyFilters(filters)
		c.app.Aggregator.GoToPage(*page)
		if _, err := c.app.Aggregator.CurrentTransactions(ctx); err != nil {
			return err
		}
		view := c.app.Aggregator.View()
		if c.json {
			return printJSON(c.stdout, view)
		}
		cats, err := c.app.Aggregator.ListCategories(ctx)
		if err != nil {
			return err
		}
		printTransactions(c.stdout, view, categoryNames(cats))
		return nil
	case "add":
		t, err := c.app.Aggregator.AddTransaction(ctx, in)
		if err != nil {
			return err
		}
		return c.printCreated(t, t.ID)
	case "edit":
		t, err := c.app.Aggregator.EditTransaction(ctx, core.ID(*id), in)
		if err != nil {
			return err
		}
		return c.printCreated(t, t.ID)
	case "delete":
		return c.app.Aggregator.DeleteTransaction(ctx, core.ID(*id))
	default:
		return fmt.Errorf("unknown transactions command %q", sub)
	}
}

func parseOptionalDate(field, s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	d, err := core.ParseDate(s)
	if err != nil {
		return time.Time{}, core.NewValidationError(field, "date must be YYYY-MM-DD")
	}
	return d, nil
}

// --- budget, summary, dashboard ---

func (c *command) budget(ctx context.Context, args []string) error {
	if len(args) > 0 && args[0] == "set" {
		if len(args) != 2 {
			return errors.New("usage: fintrack budget set AMOUNT")
		}
		b, err := c.app.Aggregator.SaveBudget(ctx, args[1])
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(c.stdout, b)
		}
		fmt.Fprintf(c.stdout, "Budget for %s: %s\n", budgetMonth(b), core.FormatAmount(b.Amount))
		return nil
	}
	if len(args) > 0 {
		return fmt.Errorf("unknown budget command %q", args[0])
	}

	b, err := c.app.Aggregator.CurrentBudget(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return printJSON(c.stdout, map[string]*core.Budget{"budget": b})
	}
	if b == nil {
		fmt.Fprintln(c.stdout, "No budget set for this month.")
		return nil
	}
	fmt.Fprintf(c.stdout, "Budget for %s: %s\n", budgetMonth(*b), core.FormatAmount(b.Amount))
	return nil
}

func budgetMonth(b core.Budget) string {
	if m, err := b.MonthValue(); err == nil {
		return m.String()
	}
	return b.Month
}

func (c *command) summary(ctx context.Context) error {
	sum, err := c.app.Aggregator.Summary(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return printJSON(c.stdout, sum)
	}
	printSummary(c.stdout, sum)
	return nil
}

func (c *command) dashboard(ctx context.Context, args []string) error {
	fs := c.flags("dashboard")
	month := fs.String("month", "", "month to show, YYYY-MM (default: current)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *month != "" {
		m, err := core.ParseMonth(*month)
		if err != nil {
			return err
		}
		c.app.Aggregator.SelectMonth(m)
	}
	view, err := c.app.Aggregator.Dashboard(ctx)
	if err != nil {
		return err
	}
	if c.json {
		return printJSON(c.stdout, view)
	}
	printDashboard(c.stdout, c.app.Aggregator.SelectedMonth(), view)
	return nil
}

// --- export ---

func (c *command) export(ctx context.Context, args []string) error {
	fs := c.flags("export")
	monthFlag := fs.String("month", "", "month to export, YYYY-MM (default: current)")
	dryRun := fs.Bool("dry-run", false, "print the table instead of writing it")
	if err := fs.Parse(args); err != nil {
		return err
	}
	month := c.app.Aggregator.SelectedMonth()
	if *monthFlag != "" {
		m, err := core.ParseMonth(*monthFlag)
		if err != nil {
			return err
		}
		month = m
	}

	var (
		w   export.Writer
		mem *memory.Store
	)
	if *dryRun {
		mem = memory.New()
		w = mem
	} else {
		var err error
		if w, err = c.app.Exporter(ctx); err != nil {
			return err
		}
	}

	report, err := export.Collect(ctx, c.app.Aggregator, month)
	if err != nil {
		return err
	}
	ref, err := w.WriteReport(ctx, report)
	if err != nil {
		return err
	}

	if mem != nil {
		rows, _ := mem.Table(month)
		printRows(c.stdout, rows)
		return nil
	}
	fmt.Fprintf(c.stdout, "Exported %d transactions for %s to %s\n", len(report.Transactions), month, ref)
	return nil
}

func (c *command) printCreated(v any, id core.ID) error {
	if c.json {
		return printJSON(c.stdout, v)
	}
	fmt.Fprintln(c.stdout, id)
	return nil
}
