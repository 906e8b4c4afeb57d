package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// CallbackPath is the redirect target registered with the provider for the
// browser authorization-code flow.
const CallbackPath = "/login/oauth2/code/keycloak"

const oauthScopes = "openid profile email"

var (
	// ErrBadCredentials indicates the provider rejected a password grant.
	ErrBadCredentials = errors.New("auth: invalid credentials")
	// ErrDuplicateUser indicates the provider already holds the username or email.
	ErrDuplicateUser = errors.New("auth: username or email already exists")
)

// ProviderConfig describes the Keycloak deployment the service delegates to.
type ProviderConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string
	BackendURL   string
	FrontendURL  string
	HTTPClient   *http.Client
}

// Provider wraps the identity provider's OAuth2 and admin endpoints. All token
// issuance and password handling is delegated here; the service never stores
// credentials of its own.
type Provider struct {
	config     ProviderConfig
	oauth      *oauth2.Config
	admin      *clientcredentials.Config
	httpClient *http.Client
}

// TokenEndpointInfo is the metadata handed to clients that exchange password
// credentials directly with the provider.
type TokenEndpointInfo struct {
	TokenURL  string `json:"tokenUrl"`
	ClientID  string `json:"clientId"`
	GrantType string `json:"grantType"`
}

// RegistrationRequest carries the attributes for a provider-side account.
type RegistrationRequest struct {
	Username  string
	Password  string
	Email     string
	FirstName string
	LastName  string
}

// NewProvider constructs a Provider from validated configuration.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("auth: provider base url is required")
	}
	if strings.TrimSpace(cfg.Realm) == "" {
		return nil, fmt.Errorf("auth: provider realm is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("auth: provider client id is required")
	}

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.BackendURL = strings.TrimRight(strings.TrimSpace(cfg.BackendURL), "/")
	cfg.FrontendURL = strings.TrimRight(strings.TrimSpace(cfg.FrontendURL), "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	realmURL := cfg.BaseURL + "/realms/" + cfg.Realm

	provider := &Provider{
		config: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.BackendURL + CallbackPath,
			Scopes:       strings.Fields(oauthScopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:  realmURL + "/protocol/openid-connect/auth",
				TokenURL: realmURL + "/protocol/openid-connect/token",
			},
		},
		admin: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     realmURL + "/protocol/openid-connect/token",
		},
		httpClient: httpClient,
	}

	return provider, nil
}

// IssuerURL returns the realm URL, which Keycloak uses as the token issuer.
func (p *Provider) IssuerURL() string {
	return p.config.BaseURL + "/realms/" + p.config.Realm
}

// JWKSURL returns the realm's signing-key document URL.
func (p *Provider) JWKSURL() string {
	return p.IssuerURL() + "/protocol/openid-connect/certs"
}

// AuthCodeURL returns the provider login URL for the authorization-code flow.
func (p *Provider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// RegistrationURL returns the provider's registration-form URL with the same
// redirect parameters as the login flow.
func (p *Provider) RegistrationURL(state string) string {
	query := url.Values{}
	query.Set("client_id", p.config.ClientID)
	query.Set("redirect_uri", p.oauth.RedirectURL)
	query.Set("response_type", "code")
	query.Set("scope", oauthScopes)
	query.Set("state", state)
	return p.IssuerURL() + "/protocol/openid-connect/registrations?" + query.Encode()
}

// LogoutURL returns the provider logout URL redirecting back to the frontend.
func (p *Provider) LogoutURL() string {
	query := url.Values{}
	query.Set("client_id", p.config.ClientID)
	query.Set("post_logout_redirect_uri", p.config.FrontendURL)
	query.Set("redirect_uri", p.config.FrontendURL)
	return p.IssuerURL() + "/protocol/openid-connect/logout?" + query.Encode()
}

// TokenEndpoint returns the metadata clients need for a direct password grant.
func (p *Provider) TokenEndpoint() TokenEndpointInfo {
	return TokenEndpointInfo{
		TokenURL:  p.oauth.Endpoint.TokenURL,
		ClientID:  p.config.ClientID,
		GrantType: "password",
	}
}

// Exchange trades an authorization code for a provider token.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return p.oauth.Exchange(ctx, code)
}

// LoginWithPassword performs a resource-owner password grant against the
// provider token endpoint.
func (p *Provider) LoginWithPassword(ctx context.Context, username, password string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.PasswordCredentialsToken(ctx, username, password)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) &&
			(retrieveErr.Response.StatusCode == http.StatusUnauthorized ||
				retrieveErr.Response.StatusCode == http.StatusBadRequest) {
			return nil, fmt.Errorf("%w: %v", ErrBadCredentials, retrieveErr.ErrorCode)
		}
		return nil, err
	}
	return token, nil
}

// FetchUserInfo retrieves the userinfo document for the provided token.
func (p *Provider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.IssuerURL()+"/protocol/openid-connect/userinfo", nil)
	if err != nil {
		return UserInfo{}, err
	}
	token.SetAuthHeader(req)

	response, err := p.httpClient.Do(req)
	if err != nil {
		return UserInfo{}, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return UserInfo{}, fmt.Errorf("userinfo request returned status %d", response.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(response.Body).Decode(&info); err != nil {
		return UserInfo{}, err
	}
	return info, nil
}

type adminUserPayload struct {
	Username    string                 `json:"username"`
	Email       string                 `json:"email"`
	FirstName   string                 `json:"firstName"`
	LastName    string                 `json:"lastName"`
	Enabled     bool                   `json:"enabled"`
	Credentials []adminCredentialEntry `json:"credentials"`
}

type adminCredentialEntry struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

// Register creates an account at the provider through its admin API using a
// client-credentials grant. The provider stores and hashes the password.
func (p *Provider) Register(ctx context.Context, request RegistrationRequest) error {
	payload := adminUserPayload{
		Username:  request.Username,
		Email:     request.Email,
		FirstName: request.FirstName,
		LastName:  request.LastName,
		Enabled:   true,
		Credentials: []adminCredentialEntry{
			{Type: "password", Value: request.Password, Temporary: false},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	response, err := p.adminDo(ctx, http.MethodPost, p.adminUsersURL(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer response.Body.Close()

	switch response.StatusCode {
	case http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusConflict:
		return ErrDuplicateUser
	default:
		detail, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("provider registration returned status %d: %s", response.StatusCode, strings.TrimSpace(string(detail)))
	}
}

// DeleteUser removes the provider-side account for the given subject. A
// missing account is not an error.
func (p *Provider) DeleteUser(ctx context.Context, externalID string) error {
	if strings.TrimSpace(externalID) == "" {
		return fmt.Errorf("auth: external id is required")
	}

	response, err := p.adminDo(ctx, http.MethodDelete, p.adminUsersURL()+"/"+url.PathEscape(externalID), nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNoContent || response.StatusCode == http.StatusOK ||
		response.StatusCode == http.StatusNotFound {
		return nil
	}
	return fmt.Errorf("provider deletion returned status %d", response.StatusCode)
}

func (p *Provider) adminUsersURL() string {
	return p.config.BaseURL + "/admin/realms/" + p.config.Realm + "/users"
}

func (p *Provider) adminDo(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.admin.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("admin token request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	return p.httpClient.Do(req)
}
