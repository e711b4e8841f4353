package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	applog "budget/internal/log"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var errNoCredentials = errors.New("missing Google credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or an OAuth client and token)")

// Credentials names where Google credentials come from. A service account is
// preferred; otherwise an OAuth client plus a saved user token is used. Inline
// JSON wins over a file in both cases.
type Credentials struct {
	JSON string
	File string

	OAuthClientJSON string
	OAuthClientFile string
	OAuthTokenJSON  string
	OAuthTokenFile  string
}

func readSource(inline, file, what string) ([]byte, error) {
	switch {
	case strings.TrimSpace(inline) != "":
		return []byte(inline), nil
	case strings.TrimSpace(file) != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", what, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("missing %s", what)
}

func (c Credentials) hasServiceAccount() bool {
	return strings.TrimSpace(c.JSON) != "" || strings.TrimSpace(c.File) != ""
}

func (c Credentials) hasOAuthClient() bool {
	return strings.TrimSpace(c.OAuthClientJSON) != "" || strings.TrimSpace(c.OAuthClientFile) != ""
}

// load returns the service account JSON.
func (c Credentials) load() ([]byte, error) {
	if !c.hasServiceAccount() {
		return nil, errNoCredentials
	}
	return readSource(c.JSON, c.File, "service account")
}

// OAuthConfig parses an OAuth client definition scoped to spreadsheets.
func OAuthConfig(clientJSON []byte) (*oauth2.Config, error) {
	cfg, err := google.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// SaveToken writes tok to path readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

func (c Credentials) oauthTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	clientJSON, err := readSource(c.OAuthClientJSON, c.OAuthClientFile, "oauth client")
	if err != nil {
		return nil, err
	}
	cfg, err := OAuthConfig(clientJSON)
	if err != nil {
		return nil, err
	}
	tokenJSON, err := readSource(c.OAuthTokenJSON, c.OAuthTokenFile, "oauth token")
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(tokenJSON, &tok); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

func (c Credentials) clientOptions(ctx context.Context) ([]goption.ClientOption, string, error) {
	switch {
	case c.hasServiceAccount():
		data, err := c.load()
		if err != nil {
			return nil, "", err
		}
		return []goption.ClientOption{
			goption.WithCredentialsJSON(data),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}, "service_account", nil
	case c.hasOAuthClient():
		ts, err := c.oauthTokenSource(ctx)
		if err != nil {
			return nil, "", err
		}
		return []goption.ClientOption{goption.WithTokenSource(ts)}, "oauth", nil
	}
	return nil, "", errNoCredentials
}

// GoogleWriter writes value ranges through the Sheets v4 API.
type GoogleWriter struct {
	svc           *gsheet.Service
	spreadsheetID string
}

func NewGoogleWriter(ctx context.Context, spreadsheetID string, creds Credentials) (*GoogleWriter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	opts, auth, err := creds.clientOptions(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created",
		applog.FieldComponent, applog.ComponentSheets,
		"spreadsheet_id", spreadsheetID,
		"auth", auth)
	return &GoogleWriter{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (g *GoogleWriter) Clear(ctx context.Context, rng string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, rng, &gsheet.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear %s: %w", rng, err)
	}
	return nil
}

func (g *GoogleWriter) Update(ctx context.Context, rng string, rows [][]any) error {
	vr := &gsheet.ValueRange{Values: rows}
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

var _ ValuesWriter = (*GoogleWriter)(nil)
