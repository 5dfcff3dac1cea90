package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

type (
	// TransactionInput is the payload of a create or edit form.
	TransactionInput struct {
		Amount      string
		CategoryID  ID
		Description string
	}

	// TransactionWrite is a validated transaction ready to be sent.
	TransactionWrite struct {
		Amount      decimal.Decimal
		CategoryID  ID
		Description string
	}

	// CategoryInput is the payload of a category form.
	CategoryInput struct {
		Name string
		Type TransactionType
	}

	// RegisterInput is the account creation form.
	RegisterInput struct {
		FirstName string
		LastName  string
		Email     string
		Password  string
	}
)

// MinPasswordLength is the shortest password the backend accepts on
// registration.
const MinPasswordLength = 8

// Validate runs the form checks and returns the parsed amount.
func (in TransactionInput) Validate() (decimal.Decimal, error) {
	amount, err := ParseAmount(in.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	if in.CategoryID.IsZero() || string(in.CategoryID) == CategoryAll {
		return decimal.Zero, ErrMissingCategory
	}
	return amount, nil
}

// Write validates the input and returns the payload to send.
func (in TransactionInput) Write() (TransactionWrite, error) {
	amount, err := in.Validate()
	if err != nil {
		return TransactionWrite{}, err
	}
	return TransactionWrite{
		Amount:      amount,
		CategoryID:  in.CategoryID,
		Description: strings.TrimSpace(in.Description),
	}, nil
}

func (in CategoryInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return ErrEmptyCategoryName
	}
	if !in.Type.Valid() {
		return ErrInvalidCategoryType
	}
	return nil
}
