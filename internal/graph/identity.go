package graph

import (
	"context"
	"errors"

	"clientreports/internal/apperrors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// DefaultScope requests the application permissions granted to the app registration
const DefaultScope = "https://graph.microsoft.com/.default"

// IdentityProvider supplies bearer tokens for the mailbox API.
// An empty token means the caller is not authenticated.
type IdentityProvider interface {
	AccessToken(ctx context.Context) (string, error)
}

var errNotAuthenticated = errors.New("not authenticated")

// TokenSource exposes identity as an oauth2.TokenSource bound to ctx, so an
// oauth2 client can inject the bearer header. An empty token is an error.
func TokenSource(ctx context.Context, identity IdentityProvider) oauth2.TokenSource {
	return identitySource{ctx: ctx, identity: identity}
}

type identitySource struct {
	ctx      context.Context
	identity IdentityProvider
}

func (s identitySource) Token() (*oauth2.Token, error) {
	tok, err := s.identity.AccessToken(s.ctx)
	if err != nil {
		if !errors.Is(err, apperrors.ErrProvider) {
			err = apperrors.Provider("acquire token", err)
		}
		return nil, err
	}
	if tok == "" {
		return nil, apperrors.Provider("acquire token", errNotAuthenticated)
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// OAuthIdentity adapts an oauth2.TokenSource; the source handles caching and refresh
type OAuthIdentity struct {
	source oauth2.TokenSource
}

// NewOAuthIdentity wraps any token source
func NewOAuthIdentity(source oauth2.TokenSource) *OAuthIdentity {
	return &OAuthIdentity{source: source}
}

// NewClientCredentialsIdentity authenticates as the app registration against the tenant
func NewClientCredentialsIdentity(ctx context.Context, tenantID, clientID, clientSecret string) *OAuthIdentity {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     microsoft.AzureADEndpoint(tenantID).TokenURL,
		Scopes:       []string{DefaultScope},
	}
	return NewOAuthIdentity(oauth2.ReuseTokenSource(nil, cfg.TokenSource(ctx)))
}

// AccessToken returns the current access token
func (i *OAuthIdentity) AccessToken(_ context.Context) (string, error) {
	if i.source == nil {
		return "", apperrors.Provider("acquire token", errors.New("no token source configured"))
	}
	tok, err := i.source.Token()
	if err != nil {
		return "", apperrors.Provider("acquire token", err)
	}
	if !tok.Valid() {
		return "", nil
	}
	return tok.AccessToken, nil
}
