package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/dukerupert/courtside/internal/model"
)

const ProviderFederated = "federated"

type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	Scopes       []string
}

// Enabled reports whether enough is configured to offer federated sign-in.
func (c OAuthConfig) Enabled() bool {
	return c.ClientID != "" && c.AuthURL != "" && c.TokenURL != "" && c.UserInfoURL != ""
}

// OAuthProvider signs users in through an OAuth2 authorization-code flow and
// an OpenID Connect userinfo endpoint.
type OAuthProvider struct {
	cfg         *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

type OAuthOption func(*OAuthProvider)

func WithHTTPClient(c *http.Client) OAuthOption {
	return func(p *OAuthProvider) {
		p.httpClient = c
	}
}

func NewOAuthProvider(cfg OAuthConfig, opts ...OAuthOption) *OAuthProvider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	p := &OAuthProvider{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      scopes,
		},
		userInfoURL: cfg.UserInfoURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OAuthProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type userInfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func (p *OAuthProvider) Exchange(ctx context.Context, code string) (*model.User, error) {
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &ProviderError{Code: CodeFederatedFailed, Message: fmt.Sprintf("Sign-in was rejected by the identity provider: %v", err)}
	}

	resp, err := p.cfg.Client(ctx, tok).Get(p.userInfoURL)
	if err != nil {
		return nil, &ProviderError{Code: CodeFederatedFailed, Message: fmt.Sprintf("Could not reach the identity provider: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, &ProviderError{Code: CodeFederatedFailed, Message: fmt.Sprintf("Identity provider returned status %d", resp.StatusCode)}
	}

	var info userInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, &ProviderError{Code: CodeFederatedFailed, Message: "Identity provider returned an unreadable profile"}
	}
	if info.Sub == "" {
		return nil, &ProviderError{Code: CodeFederatedFailed, Message: "Identity provider did not return a subject"}
	}

	return &model.User{
		UID:         FederatedUID(p.cfg.Endpoint.AuthURL, info.Sub),
		Email:       info.Email,
		DisplayName: info.Name,
		Provider:    ProviderFederated,
	}, nil
}

// FederatedUID derives a stable user identifier from the issuer and subject.
func FederatedUID(issuer, subject string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(issuer+"#"+subject)).String()
}
