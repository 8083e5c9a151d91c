package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/lot-reservation/internal/queue"
)

// Client talks to the external auth service over HTTP.  Every call is
// bounded by the client timeout; transport failures and 5xx answers are
// reported as ErrUnavailable.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the auth service rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type validateTokenResp struct {
	Valid bool `json:"valid"`
	User  struct {
		UserID string `json:"userId"`
		Sub    string `json:"sub"`
		Role   string `json:"role"`
	} `json:"user"`
}

// ResolveIdentity posts the token to /auth/validate-token.
func (c *Client) ResolveIdentity(ctx context.Context, token string) (Identity, error) {
	var out validateTokenResp
	status, err := c.do(ctx, http.MethodPost, "/auth/validate-token", map[string]string{"token": token}, &out)
	if err != nil {
		return Identity{}, err
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden || !out.Valid {
		return Identity{}, ErrInvalidToken
	}
	id := out.User.UserID
	if id == "" {
		id = out.User.Sub
	}
	role := ParseRole(out.User.Role)
	if id == "" || role == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: id, Role: role}, nil
}

// LookupProfile fetches /auth/validate-user/:userId.
func (c *Client) LookupProfile(ctx context.Context, userID string) (Profile, error) {
	var out struct {
		Valid bool `json:"valid"`
		User  struct {
			ID    string `json:"id"`
			Email string `json:"email"`
			Role  string `json:"role"`
		} `json:"user"`
	}
	status, err := c.do(ctx, http.MethodGet, "/auth/validate-user/"+url.PathEscape(userID), nil, &out)
	if err != nil {
		return Profile{}, err
	}
	if status == http.StatusNotFound || !out.Valid {
		return Profile{}, ErrUserNotFound
	}
	return Profile{UserID: out.User.ID, Email: out.User.Email, Role: ParseRole(out.User.Role)}, nil
}

// Notify forwards a notification to /auth/send-notification, where the
// auth service looks up the user's device tokens and pushes it.
func (c *Client) Notify(ctx context.Context, n queue.Notification) error {
	status, err := c.do(ctx, http.MethodPost, "/auth/send-notification", n, nil)
	if err != nil {
		return err
	}
	if status >= 300 {
		return fmt.Errorf("send notification: unexpected status %d", status)
	}
	return nil
}

// do performs the request and decodes a 2xx JSON body into out.  It returns
// the HTTP status for 4xx answers so callers can map them.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (int, error) {
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return resp.StatusCode, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return resp.StatusCode, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return resp.StatusCode, fmt.Errorf("decode auth response: %w", err)
	}
	return resp.StatusCode, nil
}
