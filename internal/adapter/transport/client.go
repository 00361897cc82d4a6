// Package transport is the HTTP client shared by the REST-based provider adapters.
// It attaches authorization, bounds every metadata call with a timeout and logs
// each request without its query string, so short-lived signed URLs never hit the logs.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jun/gophgallery/internal/adapter"
)

// DefaultCallTimeout bounds listing and metadata calls.
const DefaultCallTimeout = 20 * time.Second

// maxErrorBody caps how much of an error response is kept in a StatusError.
const maxErrorBody = 2048

// NewHTTPClient returns an http.Client suited to provider traffic: no overall timeout
// (content streams can be long) but bounded dial and response-header waits.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 30 * time.Second,
			MaxIdleConnsPerHost:   16,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Client is a logging HTTP client bound to one credential.
type Client struct {
	HTTP        *http.Client
	Tag         string
	CallTimeout time.Duration
	Authorize   func(req *http.Request)
}

// New creates a Client. A nil httpClient uses NewHTTPClient.
func New(tag string, httpClient *http.Client, authorize func(*http.Request)) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}
	return &Client{
		HTTP:        httpClient,
		Tag:         tag,
		CallTimeout: DefaultCallTimeout,
		Authorize:   authorize,
	}
}

// Bearer returns an authorizer that sets an OAuth2 bearer token.
func Bearer(token string) func(*http.Request) {
	return func(req *http.Request) {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}

// Basic returns an authorizer that sets HTTP Basic credentials.
func Basic(username, password string) func(*http.Request) {
	return func(req *http.Request) {
		req.SetBasicAuth(username, password)
	}
}

// Do sends req with authorization attached (when authorized is true) and logs it.
func (c *Client) Do(req *http.Request, authorized bool) (*http.Response, error) {
	if authorized && c.Authorize != nil {
		c.Authorize(req)
	}
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		log.Printf("[%s] %s %s%s failed after %dms: %v", c.Tag, req.Method, req.URL.Host, req.URL.Path, elapsed, err)
		return nil, err
	}
	log.Printf("[%s] %s %s%s -> %d (%dms)", c.Tag, req.Method, req.URL.Host, req.URL.Path, resp.StatusCode, elapsed)
	return resp, nil
}

// GetJSON performs an authorized GET and decodes the JSON response into out.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	return c.doJSON(ctx, http.MethodGet, url, nil, nil, out)
}

// PostJSON performs an authorized POST with a JSON body and decodes the response into out.
// A nil body sends the literal "null", which some RPC-style APIs require.
func (c *Client) PostJSON(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPost, url, payload, map[string]string{"Content-Type": "application/json"}, out)
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, headers map[string]string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.CallTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req, true)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Open sends a request whose body the caller streams. No call timeout is applied
// beyond the client's response-header timeout; ctx still cancels it.
func (c *Client) Open(ctx context.Context, method, url string, headers map[string]string, authorized bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.Do(req, authorized)
	if err != nil {
		return nil, err
	}
	if err := CheckStatus(resp); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp, nil
}

// CheckStatus converts a non-2xx response into an *adapter.StatusError.
// It reads (but does not close) the body on failure.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &adapter.StatusError{StatusCode: resp.StatusCode, Body: string(b)}
}

// ContentFromResponse wraps a successful content response.
func ContentFromResponse(resp *http.Response, rng *adapter.ByteRange) *adapter.Content {
	return &adapter.Content{
		Body:     resp.Body,
		Length:   resp.ContentLength,
		MIMEType: resp.Header.Get("Content-Type"),
		Partial:  rng == nil || resp.StatusCode == http.StatusPartialContent,
	}
}
