package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const userAgent = "botcheck-go-srv/1.0"

// StatusError carries the upstream HTTP status so callers can tell a gone
// resource from a rate limit and back off accordingly.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cloud api error: status %d on %s", e.Code, e.Path)
}

// Client talks to the companion service (verification, cloud sync,
// server-backed history). Constructed once in main and passed down;
// the token travels with the client, not in package state.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	base       string
	token      string
}

func NewClient(base, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		// 10 requests per 5 seconds keeps us under the service's limit
		limiter: rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		base:    base,
		token:   token,
	}
}

// DoRequest is the JSON request/response helper all endpoints go through.
func (c *Client) DoRequest(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bodyReader)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Path: path}
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}
