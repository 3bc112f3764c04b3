package mux

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

const (
	// DefaultBaseURL is the public Mux API endpoint.
	DefaultBaseURL = "https://api.mux.com"

	// DefaultTimeout bounds every API call.
	DefaultTimeout = 10 * time.Second

	defaultReconnectWindow = 10
)

var (
	// ErrMissingCredentials is returned when the token id or secret is empty.
	ErrMissingCredentials = errors.New("mux token id and/or secret not configured")

	// ErrNotFound is returned when the API answers 404.
	ErrNotFound = errors.New("mux resource not found")
)

// APIError is a non-2xx response from the API other than 404.
type APIError struct {
	StatusCode int
	Type       string
	Messages   []string
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Type != "" {
		return fmt.Sprintf("mux api error %d (%s): %s", e.StatusCode, e.Type, msg)
	}
	return fmt.Sprintf("mux api error %d: %s", e.StatusCode, msg)
}

// Client talks to the Mux Video REST API.
type Client struct {
	baseURL     string
	tokenID     string
	tokenSecret string
	timeout     time.Duration
	http        *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API endpoint (used by tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// WithTimeout sets the per-call deadline. Non-positive values are ignored.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient returns a Client authenticating with the given access token pair.
func NewClient(tokenID, tokenSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		tokenID:     tokenID,
		tokenSecret: tokenSecret,
		timeout:     DefaultTimeout,
		http:        &http.Client{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CreateLiveStream creates a public live stream whose recordings are public too.
func (c *Client) CreateLiveStream(ctx context.Context) (*LiveStream, error) {
	body := createLiveStreamRequest{
		PlaybackPolicy:   []string{"public"},
		ReconnectWindow:  defaultReconnectWindow,
		NewAssetSettings: newAssetSettings{PlaybackPolicy: []string{"public"}},
	}

	var out envelope[LiveStream]
	if err := c.do(ctx, http.MethodPost, "/video/v1/live-streams", body, &out); err != nil {
		return nil, fmt.Errorf("create live stream: %w", err)
	}
	return &out.Data, nil
}

// GetLiveStream fetches a live stream by id.
func (c *Client) GetLiveStream(ctx context.Context, id string) (*LiveStream, error) {
	var out envelope[LiveStream]
	if err := c.do(ctx, http.MethodGet, "/video/v1/live-streams/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("get live stream %s: %w", id, err)
	}
	return &out.Data, nil
}

// GetAsset fetches a recording by id.
func (c *Client) GetAsset(ctx context.Context, id string) (*Asset, error) {
	var out envelope[Asset]
	if err := c.do(ctx, http.MethodGet, "/video/v1/assets/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, fmt.Errorf("get asset %s: %w", id, err)
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.tokenID == "" || c.tokenSecret == "" {
		return ErrMissingCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.tokenID, c.tokenSecret)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request error: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("response body reading error: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Type = eb.Error.Type
			apiErr.Messages = eb.Error.Messages
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
