package duo

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	healthCheckPath = "/oauth/v1/health_check"
	authorizePath   = "/oauth/v1/authorize"
	tokenPath       = "/oauth/v1/token"

	clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

	// Duo requires the state parameter to be between 22 and 1024 characters
	stateLength = 36

	requestExpiration = 5 * time.Minute
)

var stateAlphabet = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ1234567890")

// AuthResult is the verification verdict embedded in the exchanged token.
type AuthResult struct {
	Status string `json:"status"`
	Result string `json:"result"`
}

// Allowed reports whether the provider approved the verification.
func (r *AuthResult) Allowed() bool {
	return r != nil && strings.EqualFold(r.Status, "allow")
}

// Token is the decoded result of an authorization code exchange.
type Token struct {
	PreferredUsername string
	AuthTime          int64
	AuthResult        *AuthResult
}

// Client is the provider contract the login flow depends on. Implementations
// talk to the remote MFA service; the flow only sees this interface.
type Client interface {
	// HealthCheck verifies the provider is reachable and the credentials are valid.
	HealthCheck(ctx context.Context) error

	// GenerateState returns a new opaque CSRF state token for a challenge.
	GenerateState() (string, error)

	// CreateAuthURL returns the challenge URL the browser should be redirected to.
	CreateAuthURL(username, state string) (string, error)

	// ExchangeAuthorizationCode trades the provider-issued code for a
	// verification result bound to username.
	ExchangeAuthorizationCode(ctx context.Context, code, username string) (*Token, error)
}

// ClientFactory builds a Client for a resolved credential triple and redirect
// URI. The flow resolves per-tenant overrides before calling it.
type ClientFactory func(clientID, secret, apiHostname, redirectURI string) (Client, error)

// HTTPClient implements Client against the Duo Universal Prompt HTTP API.
type HTTPClient struct {
	clientID    string
	secret      string
	baseURL     string
	redirectURI string
	httpClient  *http.Client
	now         func() time.Time
}

// Option is a function that configures an HTTPClient
type Option func(*HTTPClient)

// WithHTTPClient sets the HTTP client used for provider API calls
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		c.httpClient = client
	}
}

// WithClock overrides the time source, used by tests to pin JWT timestamps
func WithClock(now func() time.Time) Option {
	return func(c *HTTPClient) {
		c.now = now
	}
}

// NewHTTPClient creates a Duo API client for the given credentials. The
// apiHostname is the bare Duo hostname (api-xxxx.duosecurity.com); a full URL
// with a scheme is also accepted, which tests use to point at a local server.
func NewHTTPClient(clientID, secret, apiHostname, redirectURI string, opts ...Option) (*HTTPClient, error) {
	if clientID == "" {
		return nil, fmt.Errorf("duo client id is required")
	}
	if secret == "" {
		return nil, fmt.Errorf("duo client secret is required")
	}
	if apiHostname == "" {
		return nil, fmt.Errorf("duo api hostname is required")
	}
	if redirectURI == "" {
		return nil, fmt.Errorf("redirect uri is required")
	}

	baseURL := apiHostname
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	client := &HTTPClient{
		clientID:    clientID,
		secret:      secret,
		baseURL:     baseURL,
		redirectURI: redirectURI,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

type healthCheckResponse struct {
	Stat    string `json:"stat"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HealthCheck calls the provider health check endpoint. A non-OK stat or any
// transport failure is returned as an error; the caller decides fail-open or
// fail-secure.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	assertion, err := c.clientAssertion(c.baseURL + healthCheckPath)
	if err != nil {
		return fmt.Errorf("failed to sign health check assertion: %w", err)
	}

	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_assertion", assertion)

	body, err := c.postForm(ctx, c.baseURL+healthCheckPath, form)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}

	var resp healthCheckResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("failed to decode health check response: %w", err)
	}

	if !strings.EqualFold(resp.Stat, "OK") {
		return fmt.Errorf("duo health check failed: %s (code %d)", resp.Message, resp.Code)
	}

	return nil
}

// GenerateState returns a random URL-safe state token.
func (c *HTTPClient) GenerateState() (string, error) {
	state := make([]rune, stateLength)
	max := big.NewInt(int64(len(stateAlphabet)))
	for i := range state {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate state token: %w", err)
		}
		state[i] = stateAlphabet[n.Int64()]
	}
	return string(state), nil
}

// CreateAuthURL builds the signed challenge URL for username. The request
// parameters are carried in a JWT signed with the integration secret.
func (c *HTTPClient) CreateAuthURL(username, state string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("username is required")
	}
	if len(state) < 22 {
		return "", fmt.Errorf("state must be at least 22 characters")
	}

	now := c.now()
	request := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"response_type":          "code",
		"scope":                  "openid",
		"client_id":              c.clientID,
		"redirect_uri":           c.redirectURI,
		"state":                  state,
		"duo_uname":              username,
		"use_duo_code_attribute": true,
		"exp":                    now.Add(requestExpiration).Unix(),
	})

	signed, err := request.SignedString([]byte(c.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign authorization request: %w", err)
	}

	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", c.clientID)
	params.Set("request", signed)

	return c.baseURL + authorizePath + "?" + params.Encode(), nil
}

type tokenResponse struct {
	IDToken     string `json:"id_token"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// ExchangeAuthorizationCode trades the authorization code for the
// verification result. The returned id_token is verified against the
// integration secret and must be bound to the supplied username.
func (c *HTTPClient) ExchangeAuthorizationCode(ctx context.Context, code, username string) (*Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	tokenEndpoint := c.baseURL + tokenPath
	assertion, err := c.clientAssertion(tokenEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token assertion: %w", err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.redirectURI)
	form.Set("client_id", c.clientID)
	form.Set("client_assertion_type", clientAssertionType)
	form.Set("client_assertion", assertion)

	body, err := c.postForm(ctx, tokenEndpoint, form)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}

	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if resp.IDToken == "" {
		return nil, fmt.Errorf("token response did not include an id_token")
	}

	token, err := c.parseIDToken(resp.IDToken, tokenEndpoint)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(token.PreferredUsername, username) {
		return nil, fmt.Errorf("id_token username %q does not match requested username", token.PreferredUsername)
	}

	return token, nil
}

func (c *HTTPClient) parseIDToken(idToken, tokenEndpoint string) (*Token, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected id_token signing method %v", t.Header["alg"])
		}
		return []byte(c.secret), nil
	},
		jwt.WithAudience(c.clientID),
		jwt.WithIssuer(tokenEndpoint),
		jwt.WithLeeway(time.Minute),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id_token: %w", err)
	}

	token := &Token{}
	if username, ok := claims["preferred_username"].(string); ok {
		token.PreferredUsername = username
	}
	if authTime, ok := claims["auth_time"].(float64); ok {
		token.AuthTime = int64(authTime)
	}
	if result, ok := claims["auth_result"].(map[string]interface{}); ok {
		authResult := &AuthResult{}
		if status, ok := result["status"].(string); ok {
			authResult.Status = status
		}
		if res, ok := result["result"].(string); ok {
			authResult.Result = res
		}
		token.AuthResult = authResult
	}

	return token, nil
}

// clientAssertion builds the HS512 JWT Duo expects as client authentication
// for the given endpoint.
func (c *HTTPClient) clientAssertion(audience string) (string, error) {
	now := c.now()
	assertion := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{
		"iss": c.clientID,
		"sub": c.clientID,
		"aud": audience,
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(requestExpiration).Unix(),
	})
	return assertion.SignedString([]byte(c.secret))
}

func (c *HTTPClient) postForm(ctx context.Context, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, nil
}
