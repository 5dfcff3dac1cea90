package session

import (
	"strings"
	"unicode/utf8"

	"github.com/badoux/checkmail"

	"fintrack/internal/core"
)

func validateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return core.NewValidationError("email", "Email is required.")
	}
	if err := checkmail.ValidateFormat(strings.TrimSpace(email)); err != nil {
		return core.NewValidationError("email", "Please enter a valid email address.")
	}
	return nil
}

func validateLogin(email, password string) error {
	if err := validateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return core.NewValidationError("password", "Password is required.")
	}
	return nil
}

func validateRegister(in core.RegisterInput) error {
	if strings.TrimSpace(in.FirstName) == "" {
		return core.NewValidationError("first_name", "First name is required.")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return core.NewValidationError("last_name", "Last name is required.")
	}
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if utf8.RuneCountInString(in.Password) < core.MinPasswordLength {
		return core.NewValidationError("password", "Password must be at least 8 characters long.")
	}
	return nil
}
