// Package identityapi is the HTTP client for the remote identity API: token
// issue, token refresh, current-user lookup and the Google id_token exchange.
package identityapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	tokenPath   = "/api/token/"
	refreshPath = "/api/token/refresh/"
	mePath      = "/api/users/me/"
	googlePath  = "/api/auth/google/"

	codeTokenNotValid = "token_not_valid"
	maxBodyBytes      = 1 << 20
)

// TokenPair is the response of the token endpoint.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshedToken is the response of the refresh endpoint.
type RefreshedToken struct {
	Access string `json:"access"`
}

// User is the identity record returned by /api/users/me/.
type User struct {
	ID         ID     `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// GoogleUser is the user block of the Google exchange response.
type GoogleUser struct {
	ID         ID     `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	IsVerified bool   `json:"is_verified"`
}

// GoogleExchange is the response of the Google id_token exchange.
type GoogleExchange struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
	User    GoogleUser `json:"user"`
}

// ID accepts both numeric and string identifiers.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

type errorBody struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

// Client calls the identity API over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client. A nil httpClient gets a default with the given timeout.
func NewClient(baseURL string, httpClient *http.Client, timeout time.Duration) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ObtainTokenPair exchanges a username/password pair for an access/refresh pair.
func (c *Client) ObtainTokenPair(ctx context.Context, username, password string) (TokenPair, error) {
	var pair TokenPair
	resp, err := c.do(ctx, http.MethodPost, tokenPath, "", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return pair, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
		return pair, statusError(tokenPath, resp.StatusCode, "", ErrInvalidCredentials)
	}
	if err := checkStatus(tokenPath, resp); err != nil {
		return pair, err
	}
	if err := decodeJSON(resp, &pair); err != nil {
		return pair, err
	}
	if pair.Access == "" || pair.Refresh == "" {
		return pair, fmt.Errorf("%w: token pair missing access or refresh", ErrMalformedResponse)
	}
	return pair, nil
}

// FetchCurrentUser loads the identity of the access token's owner.
func (c *Client) FetchCurrentUser(ctx context.Context, accessToken string) (User, error) {
	var user User
	resp, err := c.do(ctx, http.MethodGet, mePath, accessToken, nil)
	if err != nil {
		return user, err
	}
	defer resp.Body.Close()

	if err := checkStatus(mePath, resp); err != nil {
		return user, err
	}
	if err := decodeJSON(resp, &user); err != nil {
		return user, err
	}
	return user, nil
}

// RefreshAccessToken mints a new access token from a refresh token.
//
// The content type is checked before the status so that an HTML error page
// is reported as ErrMalformedResponse rather than a rejected refresh token.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (RefreshedToken, error) {
	var out RefreshedToken
	resp, err := c.do(ctx, http.MethodPost, refreshPath, "", map[string]string{"refresh": refreshToken})
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if !isJSON(resp) {
		if resp.StatusCode >= http.StatusInternalServerError {
			return out, statusError(refreshPath, resp.StatusCode, "", ErrTransient)
		}
		return out, fmt.Errorf("%w: %s content type %q", ErrMalformedResponse, refreshPath, resp.Header.Get("Content-Type"))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("%w: read refresh response: %v", ErrTransient, err)
	}

	var eb errorBody
	_ = json.Unmarshal(body, &eb)
	if eb.Code == codeTokenNotValid || resp.StatusCode == http.StatusUnauthorized {
		return out, statusError(refreshPath, resp.StatusCode, eb.Code, ErrRefreshTokenInvalid)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return out, statusError(refreshPath, resp.StatusCode, eb.Code, ErrTransient)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, statusError(refreshPath, resp.StatusCode, eb.Code, ErrUnexpectedStatus)
	}

	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if out.Access == "" {
		return out, fmt.Errorf("%w: refresh response missing access", ErrMalformedResponse)
	}
	return out, nil
}

// ExchangeGoogleIDToken trades a Google id_token for a token pair and user.
func (c *Client) ExchangeGoogleIDToken(ctx context.Context, idToken string) (GoogleExchange, error) {
	var out GoogleExchange
	resp, err := c.do(ctx, http.MethodPost, googlePath, "", map[string]string{"id_token": idToken})
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if err := checkStatus(googlePath, resp); err != nil {
		return out, err
	}
	if err := decodeJSON(resp, &out); err != nil {
		return out, err
	}
	if out.Access == "" || out.Refresh == "" {
		return out, fmt.Errorf("%w: google exchange missing tokens", ErrMalformedResponse)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path, bearer string, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", path, err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	return resp, nil
}

func checkStatus(path string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	var eb errorBody
	if isJSON(resp) {
		_ = json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&eb)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return statusError(path, resp.StatusCode, eb.Code, ErrTransient)
	}
	return statusError(path, resp.StatusCode, eb.Code, ErrUnexpectedStatus)
}

func decodeJSON(resp *http.Response, v any) error {
	if !isJSON(resp) {
		return fmt.Errorf("%w: content type %q", ErrMalformedResponse, resp.Header.Get("Content-Type"))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func isJSON(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func statusError(path string, status int, code string, kind error) error {
	return &StatusError{Endpoint: path, Status: status, Code: code, kind: kind}
}
