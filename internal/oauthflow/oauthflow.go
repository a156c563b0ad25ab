// Package oauthflow consumes the boundary of an external authorization
// authorization-code + PKCE OAuth handshake: it builds the authorize
// URL, exchanges a code for tokens, refreshes tokens, and decodes the
// id_token payload. It is grounded on the teacher's
// internal/auth/gemini/gemini_auth.go, which wraps golang.org/x/oauth2's
// Config/Token types rather than hand-rolling the handshake, adapted
// from a hardcoded Google endpoint pair to a configurable upstream
// identity provider and extended with the PKCE extras the codex
// handshake (internal/auth/codex/openai_auth.go) adds on top via
// oauth2.SetAuthURLParam. The handshake's HTML pages and the CLI login
// helper that drives a local browser are external collaborators per
// spec.md §1 and are not implemented here — only what the core
// consumes from the exchange.
package oauthflow

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Provider holds the configuration of the upstream identity provider.
type Provider struct {
	AuthURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       string // defaults to "openid email profile offline_access"
	HTTPClient   *http.Client
}

func (p *Provider) httpClient() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

func (p *Provider) scopes() []string {
	if p.Scopes != "" {
		return strings.Split(p.Scopes, " ")
	}
	return []string{"openid", "email", "profile", "offline_access"}
}

// config builds the oauth2.Config the rest of this file drives, the
// same shape the teacher assembles per-request in getTokenFromWeb.
func (p *Provider) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURI,
		Scopes:       p.scopes(),
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// PKCECodes holds a generated verifier/challenge pair.
type PKCECodes struct {
	CodeVerifier  string
	CodeChallenge string
}

// GeneratePKCECodes creates a fresh S256 verifier/challenge pair.
func GeneratePKCECodes() (*PKCECodes, error) {
	verifier, err := randomURLSafe(96)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256([]byte(verifier))
	challenge := base64.RawURLEncoding.EncodeToString(sum[:])
	return &PKCECodes{CodeVerifier: verifier, CodeChallenge: challenge}, nil
}

func randomURLSafe(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// AuthorizeURL builds the GET /oauth/start redirect target, matching
// exactly the parameters spec.md §6 says are consumed: S256 PKCE, the
// fixed scope string, and the vendor extras
// id_token_add_organizations / codex_cli_simplified_flow. It is built
// via oauth2.Config.AuthCodeURL plus oauth2.SetAuthURLParam for the
// PKCE and vendor extras the oauth2.Config type has no first-class
// field for.
func (p *Provider) AuthorizeURL(state string, pkce *PKCECodes) string {
	return p.config().AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		oauth2.SetAuthURLParam("prompt", "login"),
		oauth2.SetAuthURLParam("id_token_add_organizations", "true"),
		oauth2.SetAuthURLParam("codex_cli_simplified_flow", "true"),
	)
}

// TokenSet is the token-endpoint response shape the core manufactures
// an Account from, whether arriving via /auth/callback or via CLI
// import of an externally obtained token set.
type TokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// ExchangeCode exchanges an authorization code for a TokenSet via
// oauth2.Config.Exchange, passing code_verifier as the PKCE extra
// parameter the oauth2 package has no dedicated field for.
func (p *Provider) ExchangeCode(ctx context.Context, code string, pkce *PKCECodes) (*TokenSet, int, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient())
	tok, err := p.config().Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", pkce.CodeVerifier))
	if err != nil {
		return nil, statusFromOAuthError(err), err
	}
	return tokenSetFromToken(tok), http.StatusOK, nil
}

// RefreshTokens exchanges a refresh_token for a renewed TokenSet via
// an oauth2.TokenSource seeded with the stored refresh token, the same
// conf.TokenSource pattern the teacher's gemini_auth.go drives for its
// own token refresh.
func (p *Provider) RefreshTokens(ctx context.Context, refreshToken string) (*TokenSet, int, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient())
	src := p.config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, statusFromOAuthError(err), err
	}
	return tokenSetFromToken(tok), http.StatusOK, nil
}

// tokenSetFromToken copies the oauth2.Token fields plus the id_token
// carried in its Extras map into the TokenSet shape the rest of the
// core (Account construction, JSON import) already works with.
func tokenSetFromToken(tok *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if idTok, ok := tok.Extra("id_token").(string); ok {
		ts.IDToken = idTok
	}
	if !tok.Expiry.IsZero() {
		ts.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	return ts
}

// statusFromOAuthError recovers the token endpoint's HTTP status from
// an *oauth2.RetrieveError, falling back to 0 (transport-level
// failure) when the error did not reach the endpoint at all.
func statusFromOAuthError(err error) int {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return rErr.Response.StatusCode
	}
	return 0
}

// Claims is the subset of id_token payload fields the core cares
// about: email and an upstream account id.
type Claims struct {
	Email string `json:"email"`
	Auth  struct {
		ChatgptAccountID string `json:"chatgpt_account_id"`
	} `json:"https://api.openai.com/auth"`
}

func (c *Claims) AccountID() string { return c.Auth.ChatgptAccountID }

// ParseIDToken decodes (without signature verification — the core
// only needs the claims, not authentication of the caller, which is
// explicitly out of scope) the payload segment of a JWT id_token.
func ParseIDToken(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("oauthflow: malformed id_token")
	}
	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("oauthflow: decode id_token payload: %w", err)
	}
	var c Claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return nil, fmt.Errorf("oauthflow: unmarshal id_token claims: %w", err)
	}
	return &c, nil
}

func base64URLDecode(s string) ([]byte, error) {
	if m := len(s) % 4; m != 0 {
		s += strings.Repeat("=", 4-m)
	}
	return base64.URLEncoding.DecodeString(s)
}

// ExpiresAt converts an expires_in second count observed at "now" into
// an absolute expiry instant.
func ExpiresAt(now time.Time, expiresIn int64) time.Time {
	return now.Add(time.Duration(expiresIn) * time.Second)
}
