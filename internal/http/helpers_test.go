package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"fintrack/internal/api"
	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/session"
)

func TestErrorResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"validation", core.ErrInvalidAmount, http.StatusBadRequest, "validation"},
		{"wrapped validation", fmt.Errorf("save: %w", core.ErrMissingCategory), http.StatusBadRequest, "validation"},
		{"category in use", core.NewCategoryInUseError("Rent", 2), http.StatusConflict, "conflict"},
		{"bad credentials", &session.AuthError{Kind: session.InvalidCredentials, Msg: "no"}, http.StatusUnauthorized, "invalid_credentials"},
		{"expired", session.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
		{"registration", &session.AuthError{Kind: session.RegistrationFailed, Msg: "taken"}, http.StatusBadRequest, "registration_failed"},
		{"auth server error", &session.AuthError{Kind: session.ServerError, Msg: "down"}, http.StatusBadGateway, "server_error"},
		{"login in progress", session.ErrLoginInProgress, http.StatusConflict, "session"},
		{"anonymous", backend.ErrAnonymous, http.StatusForbidden, "anonymous"},
		{"backend 404", &api.Error{StatusCode: 404, Message: "Not found."}, http.StatusNotFound, "backend"},
		{"backend 500", &api.Error{StatusCode: 500, Message: "boom"}, http.StatusBadGateway, "backend"},
		{"network", &api.NetworkError{Method: "GET", Path: "/", Err: errors.New("refused")}, http.StatusBadGateway, "network"},
		{"unknown", errors.New("disk full"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := errorResponse(tt.err)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Error == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestErrorResponseHidesInternalText(t *testing.T) {
	_, body := errorResponse(errors.New("open /var/lib/secret.db: permission denied"))
	if body.Error != "internal error" {
		t.Errorf("Error = %q", body.Error)
	}
}

func TestFlexString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"12.50"`, "12.50"},
		{`12.5`, "12.5"},
		{`" 7 "`, "7"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var v struct {
			Amount flexString `json:"amount"`
		}
		if err := json.Unmarshal([]byte(`{"amount":`+tt.in+`}`), &v); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.in, err)
		}
		if got := v.Amount.String(); got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}

	var v struct {
		Amount flexString `json:"amount"`
	}
	if err := json.Unmarshal([]byte(`{"amount":true}`), &v); err == nil {
		t.Error("bool accepted")
	}
}
