// Package appstore is a client for the App Store Connect API and its Apple
// Developer Enterprise twin, covering the certificate, device, bundle id and
// profile endpoints needed to provision a signing setup.
//
// Every call takes the bearer token explicitly; the client keeps no credentials.
package appstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/benbjohnson/clock"
)

const (
	// StandardURL is the App Store Connect API
	StandardURL = "https://api.appstoreconnect.apple.com"
	// EnterpriseURL is the Apple Developer Enterprise Program API
	EnterpriseURL = "https://api.enterprise.developer.apple.com"

	pageLimit = "200"
)

// Client talks to one portal host
type Client struct {
	baseURL    string
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
	maxPages   int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseURL points the client at another host, mainly for tests
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithClock sets the clock used to filter expired certificates and name profiles
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxPages stops pagination after n pages. 0 follows every next link.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// NewClient returns a client for the standard or the enterprise portal
func NewClient(enterprise bool, opts ...Option) *Client {
	c := &Client{
		baseURL:    StandardURL,
		httpClient: http.DefaultClient,
		clock:      clock.New(),
		logger:     slog.Default(),
	}
	if enterprise {
		c.baseURL = EnterpriseURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the portal host the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends one request and returns the status and body. Transport failures are
// reported as KindTransport, the status is left to the caller.
func (c *Client) do(op, token, method, rawURL string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, &Error{Kind: KindTransport, Op: op, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("portal request", "method", method, "url", rawURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &Error{Kind: KindTransport, Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, &Error{Kind: KindTransport, Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	return resp.StatusCode, data, nil
}

// call sends a request, requires a 2xx status and decodes the body into out
func (c *Client) call(op, token, method, rawURL string, body, out interface{}) error {
	status, data, err := c.do(op, token, method, rawURL, body)
	if err != nil {
		return err
	}
	if status < 200 || status > 299 {
		return &Error{Kind: KindTransport, Op: op, StatusCode: status, Body: data}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindDecode, Op: op, StatusCode: status, Body: data, Err: err}
	}
	return nil
}

// listAll fetches the first page and follows links.next, concatenating the
// pages in order. A next link that is not an absolute URL ends pagination,
// as does one that was already visited or the WithMaxPages cap.
func listAll[T any](c *Client, op, token, path string, query url.Values) ([]T, error) {
	current := c.endpoint(path, query)
	visited := map[string]bool{current: true}

	var all []T
	for pages := 1; ; pages++ {
		var page listResponse[T]
		if err := c.call(op, token, http.MethodGet, current, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Data...)

		next := page.Links.Next
		if next == "" {
			return all, nil
		}
		u, err := url.Parse(next)
		if err != nil || !u.IsAbs() {
			c.logger.Debug("ignoring unusable next link", "op", op, "next", next)
			return all, nil
		}
		if visited[next] {
			c.logger.Warn("pagination link repeats, stopping", "op", op, "next", next)
			return all, nil
		}
		if c.maxPages > 0 && pages >= c.maxPages {
			c.logger.Warn("pagination page limit reached, stopping", "op", op, "pages", pages)
			return all, nil
		}
		visited[next] = true
		current = next
	}
}
