package contest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/timoknapp/contest-dashboard/pkg/logger"
	"github.com/timoknapp/contest-dashboard/pkg/models"
)

const (
	// DefaultURL is the public contest-list endpoint
	DefaultURL = "https://codeforces.com/api/contest.list"

	// DefaultTimeout bounds a single outbound call
	DefaultTimeout = 10 * time.Second

	defaultFailureMessage = "Failed to fetch contests"
)

// ErrTransport marks failures before a status envelope could be read:
// network errors, non-2xx responses and malformed JSON.
var ErrTransport = errors.New("contest source transport failure")

// StatusError is returned when the envelope status is not "OK".
type StatusError struct {
	Status  string
	Comment string
}

func (e *StatusError) Error() string {
	if e.Comment != "" {
		return e.Comment
	}
	return defaultFailureMessage
}

// Source fetches the full contest collection.
type Source interface {
	Fetch(ctx context.Context) ([]models.Contest, error)
}

// Client is the HTTP implementation of Source.
type Client struct {
	url  string
	http *http.Client
}

// NewClient creates a client for the given endpoint. Empty url and
// non-positive timeout fall back to the defaults.
func NewClient(url string, timeout time.Duration) *Client {
	if url == "" {
		url = DefaultURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// URL returns the endpoint this client talks to
func (c *Client) URL() string {
	return c.url
}

// Timeout returns the bound applied to one outbound call
func (c *Client) Timeout() time.Duration {
	return c.http.Timeout
}

// Fetch performs one GET against the contest-list endpoint.
func (c *Client) Fetch(ctx context.Context) ([]models.Contest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected HTTP status %d", ErrTransport, res.StatusCode)
	}

	var envelope models.ContestListResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}

	if envelope.Status != models.StatusOK {
		return nil, &StatusError{Status: envelope.Status, Comment: envelope.Comment}
	}

	logger.Debug("Fetched %d contests from %s in %s", len(envelope.Result), c.url, time.Since(start))
	if envelope.Result == nil {
		return []models.Contest{}, nil
	}
	return envelope.Result, nil
}
