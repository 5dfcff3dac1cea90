package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// Shapes exchanged with the backend. They stay private to the package;
// callers only see core types.
type (
	tokenRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	// Tokens is the token endpoint response. Only Access is used; Refresh
	// is kept for callers that want it.
	Tokens struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh,omitempty"`
	}

	registerRequest struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
		Password  string `json:"password"`
	}

	categoryPayload struct {
		Name string               `json:"name"`
		Type core.TransactionType `json:"type"`
	}

	transactionPayload struct {
		Amount      string  `json:"amount"`
		Category    core.ID `json:"category"`
		Description string  `json:"description"`
	}

	budgetPayload struct {
		Amount string `json:"amount"`
		Month  string `json:"month,omitempty"`
	}

	transactionWire struct {
		ID             core.ID              `json:"id"`
		Amount         decimal.Decimal      `json:"amount"`
		Description    string               `json:"description"`
		Category       core.ID              `json:"category"`
		Type           core.TransactionType `json:"type"`
		Date           string               `json:"date"`
		CreatedAt      string               `json:"created_at"`
		CategoryDetail *struct {
			Type core.TransactionType `json:"type"`
		} `json:"category_detail"`
	}

	pageEnvelope[T any] struct {
		Count    int     `json:"count"`
		Next     *string `json:"next"`
		Previous *string `json:"previous"`
		Results  []T     `json:"results"`
	}
)

// toCore maps a wire transaction. The type comes from the transaction, then
// from its category, then defaults to expense. The date comes from "date",
// then "created_at", and is normalised to a plain date when it parses.
func (w transactionWire) toCore() core.Transaction {
	txnType := w.Type
	if !txnType.Valid() && w.CategoryDetail != nil {
		txnType = w.CategoryDetail.Type
	}
	if !txnType.Valid() {
		txnType = core.Expense
	}

	date := w.Date
	if date == "" {
		date = w.CreatedAt
	}
	if t, err := core.ParseDate(date); err == nil {
		date = t.Format(core.DateLayout)
	}

	return core.Transaction{
		ID:          w.ID,
		Type:        txnType,
		Description: w.Description,
		Amount:      w.Amount,
		CategoryID:  w.Category,
		Date:        date,
	}
}

func newTransactionPayload(in core.TransactionWrite) transactionPayload {
	return transactionPayload{
		Amount:      core.FormatAmount(in.Amount),
		Category:    in.CategoryID,
		Description: in.Description,
	}
}

// decodeList accepts either a bare JSON array or a paginated envelope and
// reports the envelope's next link.
func decodeList[T any](raw json.RawMessage) ([]T, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, false, nil
	}
	if raw[0] == '[' {
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, false, fmt.Errorf("decode list: %w", err)
		}
		return items, false, nil
	}
	var env pageEnvelope[T]
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, false, fmt.Errorf("decode page: %w", err)
	}
	return env.Results, env.Next != nil && *env.Next != "", nil
}
