// Package auth is an email/password client for the identity provider's
// REST API. The signed-in user's UID doubles as the chat session id.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultEndpoint is the identity toolkit base URL.
const DefaultEndpoint = "https://identitytoolkit.googleapis.com/v1"

// Session is a signed-in user.
type Session struct {
	UID          string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// AuthError carries the provider's error message.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Client signs users up and in. It remembers the current session.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *log.Logger

	mu        sync.RWMutex
	current   *Session
	listeners []func(*Session)
}

// NewClient creates a client. An empty endpoint selects DefaultEndpoint.
func NewClient(endpoint, apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	ep := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if ep == "" {
		ep = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		endpoint:   ep,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// SignUp registers a new user and makes it the current session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "accounts:signUp", email, password)
}

// SignIn signs an existing user in and makes it the current session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return c.authenticate(ctx, "accounts:signInWithPassword", email, password)
}

// SignOut forgets the current session.
func (c *Client) SignOut() {
	c.setCurrent(nil)
}

// Current returns the signed-in session or nil.
func (c *Client) Current() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// OnChange registers fn to be called whenever the session changes.
func (c *Client) OnChange(fn func(*Session)) {
	c.mu.Lock()
	c.listeners = append(c.listeners, fn)
	c.mu.Unlock()
}

func (c *Client) setCurrent(s *Session) {
	c.mu.Lock()
	c.current = s
	listeners := append([]func(*Session){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(s)
	}
}

func (c *Client) authenticate(ctx context.Context, method, email, password string) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &AuthError{Message: "MISSING_EMAIL_OR_PASSWORD"}
	}

	body, err := json.Marshal(map[string]interface{}{
		"email":             email,
		"password":          password,
		"returnSecureToken": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	u := c.endpoint + "/" + method + "?key=" + url.QueryEscape(c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &AuthError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		msg := providerMessage(data)
		c.logger.Printf("%s failed for %s: %s", method, email, msg)
		return nil, &AuthError{Status: resp.StatusCode, Message: msg}
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if s.Email == "" {
		s.Email = email
	}
	c.setCurrent(&s)
	return &s, nil
}

func providerMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return "Unknown error"
}
