package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	internal_errors "github.com/itchan-dev/retroboard/shared/errors"
)

// APIClient struct handles all communication with the backend REST API.
type APIClient struct {
	BaseURL    string
	HttpClient *http.Client
	token      string
}

// New creates a client that authenticates every request with token.
func New(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HttpClient: &http.Client{Timeout: 15 * time.Second},
		token:      token,
	}
}

func (c *APIClient) Token() string { return c.token }

// WebsocketURL is the realtime endpoint of the same server.
func (c *APIClient) WebsocketURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/ws"
	return u.String(), nil
}

// do is the single, unified helper for making API requests.
// A non-nil body is sent as JSON.
func (c *APIClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend unavailable: %w", err)
	}
	return resp, nil
}

// call performs the request and decodes the response into out (which may be nil).
// Any status other than want becomes an *ErrorWithStatusCode carrying the server message.
func (c *APIClient) call(ctx context.Context, method, path string, body any, want int, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &internal_errors.ErrorWithStatusCode{
			Message:    strings.TrimSpace(string(bodyBytes)),
			StatusCode: resp.StatusCode,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func boardPath(boardId string, parts ...string) string {
	segments := append([]string{"/v1/boards", url.PathEscape(boardId)}, parts...)
	return strings.Join(segments, "/")
}
