package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

type (
	// ID identifies a backend entity. The backend uses integer primary keys,
	// the anonymous sample data uses strings; both decode into ID.
	ID string

	TransactionType string

	Profile struct {
		ID        ID     `json:"id,omitempty"`
		Username  string `json:"username,omitempty"`
		Email     string `json:"email,omitempty"`
		FirstName string `json:"first_name,omitempty"`
		LastName  string `json:"last_name,omitempty"`
	}

	Category struct {
		ID   ID              `json:"id"`
		Name string          `json:"name"`
		Type TransactionType `json:"type"`
	}

	Transaction struct {
		ID          ID              `json:"id"`
		Type        TransactionType `json:"type"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		CategoryID  ID              `json:"categoryId,omitempty"`
		// Date is kept as received so that unparseable values can be
		// skipped by the aggregation instead of failing the whole page.
		Date string `json:"date"`
	}

	Budget struct {
		ID     ID              `json:"id"`
		Month  string          `json:"month"` // first day of the month, 2006-01-02
		Amount decimal.Decimal `json:"amount"`
	}

	CategoryAmount struct {
		Category string          `json:"category"`
		Amount   decimal.Decimal `json:"amount"`
	}

	DashboardStats struct {
		Month             string              `json:"month"`
		Budget            decimal.NullDecimal `json:"budget"`
		TotalIncome       decimal.Decimal     `json:"total_income"`
		TotalExpense      decimal.Decimal     `json:"total_expense"`
		IncomeCategories  []CategoryAmount    `json:"income_categories"`
		ExpenseCategories []CategoryAmount    `json:"expense_categories"`
	}
)

func (id ID) String() string { return string(id) }

// IsZero reports whether the reference is absent.
func (id ID) IsZero() bool { return strings.TrimSpace(string(id)) == "" }

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", b, err)
	}
	*id = ID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as JSON numbers so the backend receives
// primary keys in their native form.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	if isDigits(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == Income || t == Expense
}

// IsEmpty reports whether the backend returned an empty profile record.
func (p Profile) IsEmpty() bool {
	return p.ID.IsZero() && p.Username == "" && p.Email == "" && p.FirstName == "" && p.LastName == ""
}

// DisplayName returns "First Last", falling back to the email.
func (p Profile) DisplayName() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name != "" {
		return name
	}
	return p.Email
}

// ParsedDate parses the transaction date. Both plain dates and RFC 3339
// timestamps are accepted.
func (t Transaction) ParsedDate() (time.Time, error) {
	return ParseDate(t.Date)
}

// MonthValue returns the calendar month the budget applies to.
func (b Budget) MonthValue() (Month, error) {
	d, err := ParseDate(b.Month)
	if err != nil {
		return Month{}, err
	}
	return MonthOf(d), nil
}
