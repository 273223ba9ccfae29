// Package google implements Google sign-in for Chatdeck via OpenID Connect.
// It handles discovery against accounts.google.com, authorization code
// exchange, ID token verification, and profile claim extraction.
package google

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/chatdeck/chatdeck/internal/config"
)

// Issuer is Google's fixed OIDC issuer. Discovery always runs against it;
// only client credentials come from configuration.
const Issuer = "https://accounts.google.com"

// Profile holds the identity claims Chatdeck keeps from a Google ID token.
type Profile struct {
	Sub     string
	Email   string
	Name    string
	Picture string
}

// Provider wraps the verifier and OAuth2 config for Google sign-in
type Provider struct {
	verifier *oidc.IDTokenVerifier
	config   *oauth2.Config
}

// NewProvider initializes Google sign-in using a background context.
func NewProvider(cfg *config.GoogleConfig) (*Provider, error) {
	return NewProviderWithContext(context.Background(), cfg)
}

// NewProviderWithContext initializes Google sign-in with the given context,
// allowing callers to set deadlines or cancellation for the discovery request.
func NewProviderWithContext(ctx context.Context, cfg *config.GoogleConfig) (*Provider, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("Google sign-in is not enabled")
	}

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("Google client ID is required")
	}

	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("Google client secret is required")
	}

	provider, err := oidc.NewProvider(ctx, Issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	oauth2Config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
	}

	return &Provider{
		verifier: verifier,
		config:   oauth2Config,
	}, nil
}

// GetAuthURL returns the OAuth2 authorization URL
func (p *Provider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode exchanges the authorization code for tokens
func (p *Provider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	return token, nil
}

// VerifyIDToken verifies the raw ID token from a token exchange
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (*oidc.IDToken, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return idToken, nil
}

// ExtractProfile extracts the Chatdeck identity claims from a verified ID token
func (p *Provider) ExtractProfile(idToken *oidc.IDToken) (*Profile, error) {
	var claims struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}

	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token claims: %w", err)
	}

	if claims.Sub == "" {
		return nil, fmt.Errorf("ID token missing 'sub' claim")
	}

	if claims.Email == "" {
		return nil, fmt.Errorf("ID token missing 'email' claim")
	}

	// Google marks unverified addresses explicitly; refuse them rather than
	// linking an account the caller may not own.
	if !claims.EmailVerified {
		return nil, fmt.Errorf("Google account email is not verified")
	}

	// Name is optional, use email if not provided
	if claims.Name == "" {
		claims.Name = claims.Email
	}

	return &Profile{
		Sub:     claims.Sub,
		Email:   claims.Email,
		Name:    claims.Name,
		Picture: claims.Picture,
	}, nil
}
