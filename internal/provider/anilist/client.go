// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package anilist

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/metrics"
)

const breakerName = "anilist-graphql"

// graphQLRequest is the POST body AniList expects.
type graphQLRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// client executes GraphQL documents against the AniList API behind a token
// bucket and a circuit breaker.
type client struct {
	url        string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[json.RawMessage]
}

func newClient(url, token string, rps float64, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)
	breaker := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// An untracked entry is a normal outcome, not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateGauge(to))
		},
	})

	return &client{
		url:        url,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		breaker:    breaker,
	}
}

// stateGauge encodes breaker states the way the metric documents them:
// 0=closed, 1=half-open, 2=open.
func stateGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// do executes one GraphQL document and unmarshals the data payload into
// result. The operation label is used only for metrics.
func (c *client) do(ctx context.Context, operation, query string, variables, result any) error {
	started := time.Now()
	data, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.post(ctx, query, variables)
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProviderRequest("anilist", operation, status, time.Since(started))

	if err != nil {
		return fmt.Errorf("anilist %s: %w", operation, err)
	}
	if result != nil {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("anilist %s: decode data: %w", operation, err)
		}
	}
	return nil
}

func (c *client) post(ctx context.Context, query string, variables any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(graphQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := resp.Header.Get("Retry-After")
		return nil, fmt.Errorf("rate limited (retry after %ss)", retryAfter)
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw)
	}

	var gqlResp graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gqlResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(gqlResp.Errors) > 0 {
		first := gqlResp.Errors[0]
		// AniList signals "no list entry" through a 404-status error.
		if first.Status == http.StatusNotFound {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("graphql error: %s (status %d)", first.Message, first.Status)
	}
	return gqlResp.Data, nil
}

var errNotFound = errors.New("not found")

func itoa(n int) string { return strconv.Itoa(n) }
