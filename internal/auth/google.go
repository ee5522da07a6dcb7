package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ScopeCalendarEvents = "https://www.googleapis.com/auth/calendar.events.readonly"
	userInfoURL         = "https://www.googleapis.com/oauth2/v2/userinfo"
)

var LoginScopes = []string{"openid", "email", "profile", ScopeCalendarEvents}

type GoogleUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Google wraps the OAuth client used for login and for refreshing calendar
// access. Every outbound call goes through an http.Client with a timeout.
type Google struct {
	cfg         *oauth2.Config
	client      *http.Client
	userInfoURL string
	forcePrompt bool
}

type GoogleOption func(*Google)

// WithEndpoints points the client at another authorization server; tests use it.
func WithEndpoints(ep oauth2.Endpoint, userInfo string) GoogleOption {
	return func(g *Google) {
		g.cfg.Endpoint = ep
		g.userInfoURL = userInfo
	}
}

func NewGoogle(clientID, clientSecret, redirectURI string, forcePrompt bool, timeout time.Duration, opts ...GoogleOption) *Google {
	g := &Google{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       LoginScopes,
			Endpoint:     google.Endpoint,
		},
		client:      &http.Client{Timeout: timeout},
		userInfoURL: userInfoURL,
		forcePrompt: forcePrompt,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Google) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, g.client)
}

// NewState returns a random value for the OAuth state parameter.
func NewState() string {
	return oauth2.GenerateVerifier()
}

// AuthURL is the consent page. state comes back untouched on the callback.
// force asks Google to show consent again, which is the only way to get a
// new refresh token for a returning user.
func (g *Google) AuthURL(state string, force bool) string {
	opts := []oauth2.AuthCodeOption{
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if force || g.forcePrompt {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "consent"))
	}
	return g.cfg.AuthCodeURL(state, opts...)
}

func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.cfg.Exchange(g.ctx(ctx), code)
}

func (g *Google) UserInfo(ctx context.Context, tok *oauth2.Token) (*GoogleUser, error) {
	ctx = g.ctx(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.cfg.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("userinfo: %s: %s", resp.Status, body)
	}
	var u GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	if u.ID == "" || u.Email == "" {
		return nil, fmt.Errorf("userinfo: missing id or email")
	}
	return &u, nil
}

// TokenSource refreshes access tokens from a stored refresh token.
func (g *Google) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	return g.cfg.TokenSource(g.ctx(ctx), &oauth2.Token{RefreshToken: refreshToken})
}

// HTTPClient is the bounded client shared by every Google call.
func (g *Google) HTTPClient() *http.Client {
	return g.client
}
