// Package workos wraps the WorkOS user-management API surface the proxy
// depends on: unsealing the session cookie, checking the access token it
// carries, and exchanging the refresh token for a new one.
package workos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.workos.com"

// Authentication-failure reasons reported by a Session. Only
// ReasonNoSessionCookie is treated specially by callers; the rest are
// diagnostic.
const (
	ReasonNoSessionCookie      = "no_session_cookie_provided"
	ReasonInvalidSessionCookie = "invalid_session_cookie"
	ReasonInvalidJWT           = "invalid_jwt"
	ReasonSessionExpired       = "session_expired"
	ReasonInvalidRefreshToken  = "invalid_refresh_token"
)

type AuthenticateResult struct {
	Authenticated bool
	AccessToken   string
	Reason        string
}

type Client struct {
	apiKey     string
	clientID   string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, clientID string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		clientID:   clientID,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// NewClientWithBaseURL points the client at a non-default API host. Used by
// tests and self-hosted gateways.
func NewClientWithBaseURL(apiKey, clientID, baseURL string, timeout time.Duration) *Client {
	c := NewClient(apiKey, clientID, timeout)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// LoadSealedSession decrypts a sealed session cookie value into a Session
// handle. An empty sealed value still yields a usable Session; its
// Authenticate call reports ReasonNoSessionCookie.
func (c *Client) LoadSealedSession(sealed, cookiePassword string) (*Session, error) {
	if sealed == "" {
		return &Session{client: c}, nil
	}
	payload, err := unseal(sealed, cookiePassword)
	if err != nil {
		return nil, fmt.Errorf("unseal session cookie: %w", err)
	}
	return &Session{client: c, payload: payload}, nil
}

type refreshRequest struct {
	ClientID     string `json:"client_id"`
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (c *Client) refreshSession(ctx context.Context, refreshToken string) (refreshResponse, error) {
	body, err := json.Marshal(refreshRequest{
		ClientID:     c.clientID,
		GrantType:    "refresh_token",
		RefreshToken: refreshToken,
	})
	if err != nil {
		return refreshResponse{}, fmt.Errorf("marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/user_management/authenticate", bytes.NewReader(body))
	if err != nil {
		return refreshResponse{}, fmt.Errorf("build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return refreshResponse{}, fmt.Errorf("refresh session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return refreshResponse{}, &APIError{Status: resp.StatusCode, Body: string(detail)}
	}

	var parsed refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return refreshResponse{}, fmt.Errorf("decode refresh response: %w", err)
	}
	return parsed, nil
}

// APIError is a non-2xx response from the WorkOS API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workos api status %d: %s", e.Status, e.Body)
}
