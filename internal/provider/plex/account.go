// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package plex

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/concordus/internal/metrics"
	"github.com/tomtom215/concordus/internal/provider"
)

// Account-level services live on plex.tv, not on the media server: the
// discover API holds the user's watchlist, the community API holds written
// reviews. Both accept the same token as the server.
const (
	defaultDiscoverURL  = "https://discover.provider.plex.tv"
	defaultCommunityURL = "https://community.plex.tv/api"
)

// reviewQuery fetches the signed-in user's review for one cloud catalog id.
const reviewQuery = `query Review($metadataID: ID!) {
  metadataReviewV2(metadata: {id: $metadataID}) {
    ... on ActivityReview {
      message
    }
    ... on ActivityWatchReview {
      message
    }
  }
}`

// accountClient talks to the plex.tv account services.
type accountClient struct {
	discoverURL  string
	communityURL string
	token        string
	httpClient   *http.Client
	limiter      *rate.Limiter
}

func newAccountClient(token string, rps float64, timeout time.Duration) *accountClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &accountClient{
		discoverURL:  defaultDiscoverURL,
		communityURL: defaultCommunityURL,
		token:        token,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// watchlistSet indexes account watchlist membership by catalog id.
type watchlistSet map[provider.ExternalID]struct{}

func (s watchlistSet) contains(ids []provider.ExternalID) bool {
	for _, id := range ids {
		if _, ok := s[id]; ok {
			return true
		}
	}
	return false
}

// watchlist fetches the account's full watchlist and indexes it by every
// external id each entry carries.
func (a *accountClient) watchlist(ctx context.Context) (watchlistSet, error) {
	started := time.Now()
	set, err := a.fetchWatchlist(ctx)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProviderRequest("plex", "watchlist", status, time.Since(started))
	return set, err
}

func (a *accountClient) fetchWatchlist(ctx context.Context) (watchlistSet, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := a.discoverURL + "/library/sections/watchlist/all?includeGuids=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", a.token)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch watchlist: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("watchlist: unexpected status %d %s", resp.StatusCode, resp.Status)
	}

	var container mediaContainerResponse
	if err := json.NewDecoder(resp.Body).Decode(&container); err != nil {
		return nil, fmt.Errorf("decode watchlist: %w", err)
	}

	set := make(watchlistSet)
	for _, m := range container.MediaContainer.Metadata {
		for _, id := range parseGuids(m.Guids) {
			set[id] = struct{}{}
		}
	}
	return set, nil
}

// review fetches the user's written review for one item. The empty string
// means no review exists.
func (a *accountClient) review(ctx context.Context, plexGUID string) (string, error) {
	id, ok := cloudMetadataID(plexGUID)
	if !ok {
		return "", nil
	}

	started := time.Now()
	msg, err := a.fetchReview(ctx, id)

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ObserveProviderRequest("plex", "review", status, time.Since(started))
	return msg, err
}

func (a *accountClient) fetchReview(ctx context.Context, metadataID string) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]any{
		"query":     reviewQuery,
		"variables": map[string]string{"metadataID": metadataID},
	})
	if err != nil {
		return "", fmt.Errorf("encode review query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.communityURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Plex-Token", a.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch review: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("review: unexpected status %d %s", resp.StatusCode, resp.Status)
	}

	var decoded reviewResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode review: %w", err)
	}
	return decoded.Data.Review.Message, nil
}

// cloudMetadataID extracts the trailing id from a "plex://movie/<id>" guid.
func cloudMetadataID(plexGUID string) (string, bool) {
	rest, ok := strings.CutPrefix(plexGUID, "plex://")
	if !ok {
		return "", false
	}
	if i := strings.LastIndexByte(rest, '/'); i >= 0 && i+1 < len(rest) {
		return rest[i+1:], true
	}
	return "", false
}
