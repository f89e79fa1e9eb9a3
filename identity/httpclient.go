package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client calls a remote identity provider over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

var _ Provider = (*Client)(nil)

// NewClient returns a provider client with a bounded request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type refreshResponse struct {
	Valid    bool      `json:"valid"`
	Identity *Identity `json:"identity,omitempty"`
}

// Refresh forwards the request's cookies to the provider's refresh endpoint.
// The provider's Set-Cookie headers are returned for forwarding to the
// browser.
func (c *Client) Refresh(ctx context.Context, cookies []*http.Cookie) (*RefreshResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/sessions/refresh", nil)
	if err != nil {
		return nil, err
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// The provider has definitively rejected the session.
		return nil, ErrInvalidSession
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: provider returned %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: provider returned %d", ErrUnavailable, resp.StatusCode)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
	}
	if !body.Valid || body.Identity == nil {
		return nil, ErrInvalidSession
	}

	return &RefreshResult{
		Identity:   body.Identity,
		SetCookies: resp.Cookies(),
	}, nil
}
