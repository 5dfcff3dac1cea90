package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuth holds user OAuth credentials. They are used when no service
// account is configured; the token file is written by fintrack-oauth-init.
type OAuth struct {
	ClientJSON string
	ClientFile string
	TokenFile  string
}

func (o OAuth) configured() bool {
	return strings.TrimSpace(o.TokenFile) != "" &&
		(strings.TrimSpace(o.ClientJSON) != "" || strings.TrimSpace(o.ClientFile) != "")
}

// OAuthClientConfig parses the OAuth client definition downloaded from the
// Google console, scoped to spreadsheets.
func OAuthClientConfig(o OAuth) (*oauth2.Config, error) {
	var b []byte
	switch {
	case strings.TrimSpace(o.ClientJSON) != "":
		b = []byte(o.ClientJSON)
	case strings.TrimSpace(o.ClientFile) != "":
		var err error
		if b, err = os.ReadFile(o.ClientFile); err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, errors.New("set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE")
	}
	cfg, err := google.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func LoadToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &tok, nil
}

// SaveToken writes the token readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// clientOptions picks the service account when one is set and falls back
// to the stored user token.
func clientOptions(ctx context.Context, cfg Config) ([]goption.ClientOption, error) {
	creds, err := credentials(cfg)
	if err == nil {
		return []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, nil
	}
	if !errors.Is(err, ErrMissingCredentials) || !cfg.OAuth.configured() {
		return nil, err
	}

	oc, err := OAuthClientConfig(cfg.OAuth)
	if err != nil {
		return nil, err
	}
	tok, err := LoadToken(cfg.OAuth.TokenFile)
	if err != nil {
		return nil, err
	}
	return []goption.ClientOption{goption.WithTokenSource(oc.TokenSource(ctx, tok))}, nil
}
