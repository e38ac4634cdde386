// Package httpapi is the typed client for the console server's polling
// endpoints. Exact paths are server-owned; the client only knows the
// operation names and wire shapes.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StatusError carries a non-2xx response status and the server's error string.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Code)
}

// Client talks to the console server. All methods take a context so callers
// can cancel superseded requests.
type Client struct {
	base      *url.URL
	csrfToken string
	hc        *http.Client
}

// New creates a client for the given base URL and anti-forgery token.
func New(baseURL, csrfToken string) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Client{
		base:      base,
		csrfToken: csrfToken,
		hc:        &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *Client) endpoint(name string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + name
	return u.String()
}

// getJSON issues a GET and decodes the JSON body into out. A 204 response
// returns (false, nil) without touching out.
func (c *Client) getJSON(ctx context.Context, name string, query url.Values, out any) (bool, error) {
	u := c.endpoint(name)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// postForm issues a form-encoded POST with the anti-forgery header and
// decodes the JSON body into out.
func (c *Client) postForm(ctx context.Context, name string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(name), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-CSRF-TOKEN", c.csrfToken)
	_, err = c.do(req, out)
	return err
}

func (c *Client) do(req *http.Request, out any) (bool, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(body, &e)
		return false, &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return true, nil
}
