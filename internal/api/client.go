// client.go - HTTP client for a running daemon.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/abhaldrota/SubManage-FHE/internal/coordinator"
)

// APIError is an error response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Client calls the daemon's HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a client for the daemon at baseURL, e.g. http://127.0.0.1:8080.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Create submits a new record and returns its id.
func (c *Client) Create(ctx context.Context, req coordinator.CreateRequest) (string, error) {
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, "create", http.MethodPost, "/records", req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

// RequestDecryption decrypts and verifies a record.
func (c *Client) RequestDecryption(ctx context.Context, id string) (coordinator.DecryptResult, error) {
	var res coordinator.DecryptResult
	err := c.do(ctx, "decrypt", http.MethodPost, "/records/"+url.PathEscape(id)+"/decrypt", nil, &res)
	return res, err
}

// Refresh reloads the daemon's cache from the ledger.
func (c *Client) Refresh(ctx context.Context) ([]coordinator.Record, error) {
	var resp struct {
		Records []coordinator.Record `json:"records"`
	}
	err := c.do(ctx, "list", http.MethodPost, "/records/refresh", nil, &resp)
	return resp.Records, err
}

// Search returns the cached records matching query and category.
func (c *Client) Search(ctx context.Context, query, category string) ([]coordinator.Record, error) {
	q := url.Values{}
	if query != "" {
		q.Set("q", query)
	}
	if category != "" {
		q.Set("category", category)
	}
	path := "/records"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp struct {
		Records []coordinator.Record `json:"records"`
	}
	err := c.do(ctx, "list", http.MethodGet, path, nil, &resp)
	return resp.Records, err
}

// Stats returns the daemon's derived statistics.
func (c *Client) Stats(ctx context.Context) (coordinator.Stats, error) {
	var s coordinator.Stats
	err := c.do(ctx, "stats", http.MethodGet, "/stats", nil, &s)
	return s, err
}

// History returns the most recent n entries; n <= 0 returns all.
func (c *Client) History(ctx context.Context, n int) ([]coordinator.HistoryEntry, error) {
	var resp struct {
		Entries []coordinator.HistoryEntry `json:"entries"`
	}
	err := c.do(ctx, "history", http.MethodGet, "/history?limit="+strconv.Itoa(n), nil, &resp)
	return resp.Entries, err
}

// CheckAvailability probes the ledger through the daemon.
func (c *Client) CheckAvailability(ctx context.Context) (bool, error) {
	var resp struct {
		Available bool `json:"available"`
	}
	err := c.do(ctx, "availability", http.MethodGet, "/availability", nil, &resp)
	return resp.Available, err
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &coordinator.Error{Kind: coordinator.KindNetworkFailure, Op: op, Err: fmt.Errorf("%w: %w", coordinator.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&env)
		apiErr := &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
		return &coordinator.Error{Kind: kindFor(apiErr), Op: op, Err: apiErr}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return nil
}

// kindFor is the inverse of statusFor.
func kindFor(e *APIError) coordinator.Kind {
	switch e.Code {
	case "INVALID_INPUT", "BAD_JSON", "BAD_LIMIT":
		return coordinator.KindInvalidInput
	case "UNAUTHENTICATED":
		return coordinator.KindUnauthenticated
	case "USER_REJECTED":
		return coordinator.KindUserRejected
	case "ALREADY_VERIFIED":
		return coordinator.KindAlreadyVerified
	case "VERIFICATION_FAILED":
		return coordinator.KindVerificationFailure
	case "LEDGER_UNAVAILABLE", "NOT_FOUND", "RATE_LIMITED":
		return coordinator.KindNetworkFailure
	default:
		return coordinator.KindUnknown
	}
}
