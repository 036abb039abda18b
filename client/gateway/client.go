// Package gateway is the HTTP client of the fees backend. Every call is a single attempt:
// no retry, no backoff, no caching.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Tokens  TokenStore

	// OnUnauthorized is called after a 401 cleared the stored token; typically sends the operator to login.
	OnUnauthorized func()
}

func NewClient(baseURL string, tokens TokenStore) *Client {
	if tokens == nil {
		tokens = NewMemoryTokenStore("")
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: defaultTimeout},
		Tokens:  tokens,
	}
}

// Do sends in as the JSON body (if not nil) and decodes the response into out (if not nil).
// Failures are *Error values, or ErrUnauthorized.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = buf
	}

	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err = c.checkResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportError(errors.Wrap(err, "decoding response"))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.Tokens.Token()
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode/100 == 2 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = c.Tokens.Clear()
		if c.OnUnauthorized != nil {
			c.OnUnauthorized()
		}
		return ErrUnauthorized
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	return responseError(resp.StatusCode, b)
}
