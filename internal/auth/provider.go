package auth

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/tazhate/outlookcal/internal/storage"
)

// Scopes requested from the Microsoft identity platform. offline_access
// gives us a refresh token so the session survives restarts.
var Scopes = []string{
	"offline_access",
	"User.Read",
	"MailboxSettings.Read",
	"Calendars.ReadWrite",
}

// defaultAccount keys the stored token. The app has exactly one active
// session at a time.
const defaultAccount = "default"

// Provider manages the OAuth session: interactive sign-in through the
// authorization-code flow, silent reuse of a persisted refresh token, and
// sign-out. It hands the graph client a TokenSource; the provider is
// constructed once at startup and injected, never reached through a
// package-level singleton.
type Provider struct {
	cfg   *oauth2.Config
	store *storage.Storage

	mu     sync.Mutex
	source oauth2.TokenSource
}

func New(clientID, tenant, redirectURI string, store *storage.Storage) *Provider {
	return &Provider{
		cfg: &oauth2.Config{
			ClientID:    clientID,
			Endpoint:    microsoft.AzureADEndpoint(tenant),
			RedirectURL: redirectURI,
			Scopes:      Scopes,
		},
		store: store,
	}
}

// AuthURL returns the Microsoft authorize URL to send the browser to.
func (p *Provider) AuthURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades an authorization code for a token and persists it.
func (p *Provider) Exchange(ctx context.Context, code string) error {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange code: %w", err)
	}
	if err := p.store.SaveToken(defaultAccount, token); err != nil {
		return err
	}

	p.mu.Lock()
	p.source = p.newSource(token)
	p.mu.Unlock()
	return nil
}

// TokenSource returns the session's token source, restoring a persisted
// token when there is one. Returns storage.ErrNoSession when the user has
// never signed in.
func (p *Provider) TokenSource() (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source != nil {
		return p.source, nil
	}

	token, err := p.store.Token(defaultAccount)
	if err != nil {
		return nil, err
	}

	p.source = p.newSource(token)
	return p.source, nil
}

// SignedIn reports whether a session token is available.
func (p *Provider) SignedIn() bool {
	_, err := p.TokenSource()
	return err == nil
}

// SignOut drops the in-memory source and purges the stored token.
func (p *Provider) SignOut() error {
	p.mu.Lock()
	p.source = nil
	p.mu.Unlock()

	return p.store.DeleteToken(defaultAccount)
}

// newSource builds a refreshing token source that writes rotated tokens
// back to storage, so a refresh during one run is still valid on the next.
func (p *Provider) newSource(token *oauth2.Token) oauth2.TokenSource {
	inner := p.cfg.TokenSource(context.Background(), token)
	return oauth2.ReuseTokenSource(token, &persistingSource{
		inner:   inner,
		store:   p.store,
		account: defaultAccount,
		last:    token.AccessToken,
	})
}

type persistingSource struct {
	inner   oauth2.TokenSource
	store   *storage.Storage
	account string

	mu   sync.Mutex
	last string
}

func (s *persistingSource) Token() (*oauth2.Token, error) {
	token, err := s.inner.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	rotated := token.AccessToken != s.last
	if rotated {
		s.last = token.AccessToken
	}
	s.mu.Unlock()

	if rotated {
		if err := s.store.SaveToken(s.account, token); err != nil {
			return nil, err
		}
	}
	return token, nil
}
