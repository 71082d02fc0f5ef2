// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/metrics"
)

// client wraps one Plex Media Server endpoint with authentication, a
// client-side token bucket, and 429 retry.
type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newClient(baseURL, token string, rps float64, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// get executes an authenticated GET and decodes the JSON envelope into
// result. The path must start with a slash.
func (c *client) get(ctx context.Context, path string, query url.Values, result any) error {
	started := time.Now()
	err := c.doGet(ctx, path, query, result)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProviderRequest("plex", path, status, time.Since(started))
	return err
}

func (c *client) doGet(ctx context.Context, path string, query url.Values, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.doWithRetry(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("plex %s: unexpected status %d %s", path, resp.StatusCode, resp.Status)
	}
	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// doWithRetry waits for the token bucket, then retries on HTTP 429 with
// exponential backoff, honoring Retry-After when the server sends one.
func (c *client) doWithRetry(req *http.Request) (*http.Response, error) {
	const maxRetries = 5
	baseDelay := time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}
		resp.Body.Close()

		if attempt == maxRetries {
			return nil, fmt.Errorf("rate limit exceeded after %d retries", maxRetries)
		}

		retryDelay := baseDelay * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				retryDelay = seconds
			}
		}
		logging.Warn().
			Dur("retry_delay", retryDelay).
			Int("attempt", attempt+1).
			Msg("plex rate limited, retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(retryDelay):
		}
	}
	return nil, fmt.Errorf("retry loop exhausted")
}
