package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"fintrack/internal/api"
	"fintrack/internal/backend"
	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

const maxBodyBytes = 1 << 20

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Encoding response failed", log.FieldError, err.Error())
	}
}

// writeError maps err to a status and writes it. Unexpected errors are
// logged; their text is not sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).LogError(r.Context(), "Request failed", err, r.Method+" "+r.URL.Path, nil)
	}
	writeJSON(w, status, body)
}

func errorResponse(err error) (int, errorBody) {
	var (
		validationErr *core.ValidationError
		conflictErr   *core.ConflictError
		authErr       *session.AuthError
		apiErr        *api.Error
		networkErr    *api.NetworkError
	)
	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, errorBody{Error: validationErr.Msg, Kind: "validation", Field: validationErr.Field}
	case errors.As(err, &conflictErr):
		return http.StatusConflict, errorBody{Error: conflictErr.Error(), Kind: "conflict"}
	case errors.As(err, &authErr):
		return authStatus(authErr.Kind), errorBody{Error: authErr.Msg, Kind: authErr.Kind.String()}
	case errors.Is(err, session.ErrLoginInProgress), errors.Is(err, session.ErrSuperseded):
		return http.StatusConflict, errorBody{Error: err.Error(), Kind: "session"}
	case errors.Is(err, backend.ErrAnonymous):
		return http.StatusForbidden, errorBody{Error: "Sign in to change your data.", Kind: "anonymous"}
	case errors.As(err, &apiErr):
		status := apiErr.StatusCode
		if status < 400 || status >= 500 {
			status = http.StatusBadGateway
		}
		return status, errorBody{Error: apiErr.Message, Kind: "backend"}
	case errors.As(err, &networkErr):
		return http.StatusBadGateway, errorBody{Error: "The finance service could not be reached.", Kind: "network"}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, errorBody{Error: err.Error(), Kind: "request"}
	default:
		return http.StatusInternalServerError, errorBody{Error: "internal error"}
	}
}

func authStatus(k session.Kind) int {
	switch k {
	case session.InvalidCredentials, session.SessionExpired:
		return http.StatusUnauthorized
	case session.RegistrationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

var errBadRequest = errors.New("bad request")

// decode reads a JSON body into v. Any failure is a 400.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is empty", errBadRequest)
		}
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

// flexString accepts a JSON string or number. Amounts arrive as either
// depending on the form that sent them.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected a string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

func (s *Server) writeRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.clientIP.Extract(r),
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many attempts. Please try again later.", Kind: "rate_limited"})
}
