package client

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
	"time"
)

// DefaultBaseURL is used when no API address is configured.
const DefaultBaseURL = "http://localhost:4000"

// Stable error tokens returned by the device token endpoint.
var (
	ErrAuthorizationPending = errors.New("authorization_pending")
	ErrInvalidDeviceCode    = errors.New("invalid_device_code")
	ErrExpiredDeviceCode    = errors.New("expired_device_code")
	ErrUserNotFound         = errors.New("user_not_found")
)

// Client provides typed access to the todofordevs API for interactive tools.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = DefaultBaseURL
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// BaseURL reports the normalised API address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// Unwrap maps device flow error tokens onto the package sentinels.
func (e APIError) Unwrap() error {
	switch e.Message {
	case ErrAuthorizationPending.Error():
		return ErrAuthorizationPending
	case ErrInvalidDeviceCode.Error():
		return ErrInvalidDeviceCode
	case ErrExpiredDeviceCode.Error():
		return ErrExpiredDeviceCode
	case ErrUserNotFound.Error():
		return ErrUserNotFound
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, token string, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	// The token endpoint answers 202 while approval is outstanding.
	if resp.StatusCode >= http.StatusBadRequest || resp.StatusCode == http.StatusAccepted {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	if msg := strings.TrimSpace(payload.Error); msg != "" {
		return msg
	}
	return strings.TrimSpace(payload.Message)
}

// User reflects API user payloads.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Session is returned by password login and signup.
type Session struct {
	User      User   `json:"user"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// Login exchanges credentials for a browser session token.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// Signup registers an account.
func (c *Client) Signup(ctx context.Context, email, password, name string) (Session, error) {
	body := map[string]string{
		"email":    email,
		"password": password,
		"name":     name,
	}
	var resp Session
	if err := c.do(ctx, http.MethodPost, "/auth/signup", body, "", &resp); err != nil {
		return Session{}, err
	}
	return resp, nil
}

// Me returns the user a bearer token belongs to.
func (c *Client) Me(ctx context.Context, token string) (User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, token, &user); err != nil {
		return User{}, err
	}
	return user, nil
}

// DeviceAuthorization is the challenge handed to a CLI that starts a device login.
type DeviceAuthorization struct {
	DeviceCode              string `json:"device_code"`
	UserCode                string `json:"user_code"`
	VerificationURL         string `json:"verification_uri"`
	VerificationURLComplete string `json:"verification_uri_complete"`
	ExpiresIn               int    `json:"expires_in"`
	Interval                int    `json:"interval"`
}

// StartDeviceAuthorization begins a device login. A non-empty token lets the
// server approve the request immediately for an already signed-in user.
func (c *Client) StartDeviceAuthorization(ctx context.Context, token string) (DeviceAuthorization, error) {
	var resp DeviceAuthorization
	if err := c.do(ctx, http.MethodPost, "/auth/device", nil, token, &resp); err != nil {
		return DeviceAuthorization{}, err
	}
	return resp, nil
}

// DeviceToken is the credential issued once a device login is approved.
type DeviceToken struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresIn int    `json:"expires_in"`
	User      User   `json:"user"`
}

// PollDeviceAuthorization asks whether the device code has been approved.
// Pending and terminal states are reported as errors matching ErrAuthorizationPending,
// ErrInvalidDeviceCode, ErrExpiredDeviceCode or ErrUserNotFound.
func (c *Client) PollDeviceAuthorization(ctx context.Context, deviceCode string) (DeviceToken, error) {
	path := "/auth/device/token?code=" + url.QueryEscape(deviceCode)
	var resp DeviceToken
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return DeviceToken{}, err
	}
	return resp, nil
}

// VerifyResult mirrors the approval page response.
type VerifyResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// VerifyDevice approves userCode on behalf of the session token holder.
func (c *Client) VerifyDevice(ctx context.Context, sessionToken, userCode string) (VerifyResult, error) {
	body := map[string]string{"user_code": userCode}
	var resp VerifyResult
	if err := c.do(ctx, http.MethodPost, "/auth/device/verify", body, sessionToken, &resp); err != nil {
		return VerifyResult{}, err
	}
	return resp, nil
}
