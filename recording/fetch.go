// Package recording downloads caller recordings from the telephony
// provider.
package recording

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrFetch is returned when a recording cannot be downloaded.
var ErrFetch = errors.New("recording download failed")

// Client fetches recordings over authenticated HTTP. Recording URLs are
// protected by the provider account credentials via basic auth.
type Client struct {
	http       *http.Client
	accountSID string
	authToken  string
	logger     *slog.Logger
}

// NewClient creates a recording fetcher with a bounded request timeout.
func NewClient(accountSID, authToken string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:       &http.Client{Timeout: timeout},
		accountSID: accountSID,
		authToken:  authToken,
		logger:     logger,
	}
}

// Fetch downloads the recording at url and returns its raw bytes.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrFetch, err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrFetch, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFetch, err)
	}

	c.logger.Debug("recording downloaded", slog.String("url", url), slog.Int("bytes", len(data)))
	return data, nil
}
