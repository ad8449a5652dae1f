// Package credentials exchanges Google OAuth authorization codes for access
// tokens and resolves them to the numeric Google account id that the ledger
// links to a wallet.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/alexbensimon/pakt/pkg/identity"
)

const (
	googleTokenEndpoint     = "https://oauth2.googleapis.com/token" //nolint:gosec // G101: public endpoint
	googleTokenInfoEndpoint = "https://oauth2.googleapis.com/tokeninfo"
)

// ErrUpstream marks failures of the Google endpoints themselves, as opposed
// to malformed input.
var ErrUpstream = errors.New("credentials: google oauth unavailable")

// Doer sends HTTP requests. *http.Client and *resiliency.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Endpoints can be pointed at a test server.
type Endpoints struct {
	Token     string
	TokenInfo string
}

// GoogleOAuth handles the authorization code exchange.
type GoogleOAuth struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	endpoints    Endpoints
	httpClient   Doer
}

// Option configures GoogleOAuth.
type Option func(*GoogleOAuth)

func WithEndpoints(e Endpoints) Option { return func(g *GoogleOAuth) { g.endpoints = e } }
func WithHTTPClient(d Doer) Option     { return func(g *GoogleOAuth) { g.httpClient = d } }

// NewGoogleOAuth creates a Google OAuth handler. Empty client credentials
// are read from GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET.
func NewGoogleOAuth(clientID, clientSecret, redirectURI string, opts ...Option) *GoogleOAuth {
	if clientID == "" {
		clientID = os.Getenv("GOOGLE_CLIENT_ID")
	}
	if clientSecret == "" {
		clientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	}
	g := &GoogleOAuth{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		endpoints:    Endpoints{Token: googleTokenEndpoint, TokenInfo: googleTokenInfoEndpoint},
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TokenResponse represents the OAuth token response.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	TokenType    string `json:"token_type"`
	IDToken      string `json:"id_token,omitempty"`
}

// TokenInfo is the tokeninfo response. Sub is the Google account id.
type TokenInfo struct {
	Sub       string `json:"sub"`
	Audience  string `json:"aud"`
	Scope     string `json:"scope"`
	ExpiresIn string `json:"expires_in"`
	Email     string `json:"email,omitempty"`
}

// SourceID parses Sub as the ledger's external identity.
func (t *TokenInfo) SourceID() (*big.Int, error) {
	return identity.ParseSourceID(t.Sub)
}

// Session is an authenticated Google account.
type Session struct {
	AccessToken string
	SourceID    *big.Int
}

// ExchangeCode exchanges an authorization code for tokens. An empty
// redirectURI uses the configured one.
func (g *GoogleOAuth) ExchangeCode(ctx context.Context, code, redirectURI string) (*TokenResponse, error) {
	if code == "" {
		return nil, errors.New("credentials: empty authorization code")
	}
	if redirectURI == "" {
		redirectURI = g.RedirectURI
	}
	data := url.Values{
		"client_id":     {g.ClientID},
		"client_secret": {g.ClientSecret},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"grant_type":    {"authorization_code"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoints.Token, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var tokenResp TokenResponse
	if err := g.do(req, "token exchange", &tokenResp); err != nil {
		return nil, err
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%w: token exchange returned no access token", ErrUpstream)
	}
	return &tokenResp, nil
}

// TokenInfo resolves an access token to its account.
func (g *GoogleOAuth) TokenInfo(ctx context.Context, accessToken string) (*TokenInfo, error) {
	u := g.endpoints.TokenInfo + "?" + url.Values{"access_token": {accessToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var info TokenInfo
	if err := g.do(req, "token info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Authenticate exchanges code and resolves the account id in one step.
func (g *GoogleOAuth) Authenticate(ctx context.Context, code string) (*Session, error) {
	tok, err := g.ExchangeCode(ctx, code, "")
	if err != nil {
		return nil, err
	}
	info, err := g.TokenInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	id, err := info.SourceID()
	if err != nil {
		return nil, fmt.Errorf("%w: token info subject: %v", ErrUpstream, err)
	}
	return &Session{AccessToken: tok.AccessToken, SourceID: id}, nil
}

func (g *GoogleOAuth) do(req *http.Request, what string, out any) error {
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s failed: %v", ErrUpstream, what, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s failed with status %d: %s", ErrUpstream, what, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v", ErrUpstream, what, err)
	}
	return nil
}
