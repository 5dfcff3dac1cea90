package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// maxCategoryPages bounds how many category pages are followed.
const maxCategoryPages = 50

// Client exposes the backend endpoints as typed methods.
type Client struct {
	exec *Executor
}

func NewClient(exec *Executor) *Client {
	return &Client{exec: exec}
}

func (c *Client) Executor() *Executor { return c.exec }

// ObtainToken exchanges credentials for an access token. The email is sent
// as the username.
func (c *Client) ObtainToken(ctx context.Context, email, password string) (Tokens, error) {
	var out Tokens
	err := c.exec.Do(ctx, Request{
		Method:    http.MethodPost,
		Path:      "/api/token/",
		Body:      tokenRequest{Username: email, Password: password},
		Anonymous: true,
	}, &out)
	return out, err
}

// Profile fetches the current user. A non-empty token is used instead of
// the executor's token source.
func (c *Client) Profile(ctx context.Context, token string) (core.Profile, error) {
	var out core.Profile
	err := c.exec.Do(ctx, Request{Method: http.MethodGet, Path: "/api/profile/", Token: token}, &out)
	return out, err
}

func (c *Client) Register(ctx context.Context, in core.RegisterInput) error {
	return c.exec.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/register/",
		Body: registerRequest{
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			Email:     strings.TrimSpace(in.Email),
			Password:  in.Password,
		},
		Anonymous: true,
	}, nil)
}

// ListCategories returns every category, following pagination when the
// backend paginates the list.
func (c *Client) ListCategories(ctx context.Context) ([]core.Category, error) {
	var all []core.Category
	for page := 1; page <= maxCategoryPages; page++ {
		var q url.Values
		if page > 1 {
			q = url.Values{"page": {strconv.Itoa(page)}}
		}
		var raw json.RawMessage
		if err := c.exec.Do(ctx, Request{Method: http.MethodGet, Path: "/api/categories/", Query: q}, &raw); err != nil {
			return nil, err
		}
		items, more, err := decodeList[core.Category](raw)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if !more {
			break
		}
	}
	return all, nil
}

func (c *Client) CreateCategory(ctx context.Context, in core.CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.exec.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/categories/",
		Body:   categoryPayload{Name: strings.TrimSpace(in.Name), Type: in.Type},
	}, &out)
	return out, err
}

func (c *Client) UpdateCategory(ctx context.Context, id core.ID, in core.CategoryInput) (core.Category, error) {
	var out core.Category
	err := c.exec.Do(ctx, Request{
		Method: http.MethodPatch,
		Path:   "/api/categories/" + url.PathEscape(id.String()) + "/",
		Body:   categoryPayload{Name: strings.TrimSpace(in.Name), Type: in.Type},
	}, &out)
	return out, err
}

func (c *Client) DeleteCategory(ctx context.Context, id core.ID) error {
	return c.exec.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/categories/" + url.PathEscape(id.String()) + "/",
	}, nil)
}

func (c *Client) ListTransactions(ctx context.Context, filters core.TransactionFilters, page int) (core.TransactionPage, error) {
	var env pageEnvelope[transactionWire]
	err := c.exec.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/transactions/",
		Query:  filters.Query(page),
	}, &env)
	if err != nil {
		return core.TransactionPage{}, err
	}
	items := make([]core.Transaction, 0, len(env.Results))
	for _, w := range env.Results {
		items = append(items, w.toCore())
	}
	return core.TransactionPage{
		Items:       items,
		Count:       env.Count,
		HasNext:     env.Next != nil && *env.Next != "",
		HasPrevious: env.Previous != nil && *env.Previous != "",
	}, nil
}

func (c *Client) CreateTransaction(ctx context.Context, in core.TransactionWrite) (core.Transaction, error) {
	var out transactionWire
	err := c.exec.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/transactions/",
		Body:   newTransactionPayload(in),
	}, &out)
	if err != nil {
		return core.Transaction{}, err
	}
	return out.toCore(), nil
}

func (c *Client) UpdateTransaction(ctx context.Context, id core.ID, in core.TransactionWrite) (core.Transaction, error) {
	var out transactionWire
	err := c.exec.Do(ctx, Request{
		Method: http.MethodPatch,
		Path:   "/api/transactions/" + url.PathEscape(id.String()) + "/",
		Body:   newTransactionPayload(in),
	}, &out)
	if err != nil {
		return core.Transaction{}, err
	}
	return out.toCore(), nil
}

func (c *Client) DeleteTransaction(ctx context.Context, id core.ID) error {
	return c.exec.Do(ctx, Request{
		Method: http.MethodDelete,
		Path:   "/api/transactions/" + url.PathEscape(id.String()) + "/",
	}, nil)
}

// CurrentBudget returns the budget of the backend's current month, or nil
// when none has been set (404).
func (c *Client) CurrentBudget(ctx context.Context) (*core.Budget, error) {
	var out core.Budget
	err := c.exec.Do(ctx, Request{Method: http.MethodGet, Path: "/api/monthly-budgets/current-month/"}, &out)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBudget creates the budget for month. The amount is sent with two
// decimals.
func (c *Client) CreateBudget(ctx context.Context, month core.Month, amount decimal.Decimal) (core.Budget, error) {
	var out core.Budget
	err := c.exec.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/api/monthly-budgets/",
		Body: budgetPayload{
			Amount: core.FormatAmount(amount),
			Month:  month.FirstDay().Format(core.DateLayout),
		},
	}, &out)
	return out, err
}

func (c *Client) UpdateBudget(ctx context.Context, id core.ID, amount decimal.Decimal) (core.Budget, error) {
	var out core.Budget
	err := c.exec.Do(ctx, Request{
		Method: http.MethodPatch,
		Path:   "/api/monthly-budgets/" + url.PathEscape(id.String()) + "/",
		Body:   budgetPayload{Amount: core.FormatAmount(amount)},
	}, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context, month core.Month) (core.DashboardStats, error) {
	var out core.DashboardStats
	err := c.exec.Do(ctx, Request{
		Method: http.MethodGet,
		Path:   "/api/stats/",
		Query:  url.Values{"month": {month.String()}},
	}, &out)
	if err != nil {
		return core.DashboardStats{}, fmt.Errorf("stats %s: %w", month, err)
	}
	if out.Month == "" {
		out.Month = month.String()
	}
	return out, nil
}
