// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package plex implements the library capability interface against a Plex
// Media Server. Movies are read directly from section listings; seasons are
// assembled from the show -> season -> episode hierarchy so per-episode view
// history is available for unit derivation.
package plex

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/provider"
)

func init() {
	provider.RegisterLibrary("plex", func(cfg config.LibraryConfig) (provider.Library, error) {
		return New(cfg), nil
	})
}

// Plex item type discriminators used by section listings.
const (
	typeMovie = "1"
	typeShow  = "2"
)

// Library is the Plex implementation of provider.Library.
type Library struct {
	client  *client
	account *accountClient
}

// New creates a Plex library provider from configuration.
func New(cfg config.LibraryConfig) *Library {
	return &Library{
		client:  newClient(cfg.URL, cfg.Token, cfg.RequestsPerSecond, cfg.Timeout),
		account: newAccountClient(cfg.Token, cfg.RequestsPerSecond, cfg.Timeout),
	}
}

func (l *Library) Namespace() string { return "plex" }

// Sections lists the server's movie and show libraries. Other section types
// (music, photos) are not reconcilable and are filtered out.
func (l *Library) Sections(ctx context.Context) ([]provider.Section, error) {
	var resp mediaContainerResponse
	if err := l.client.get(ctx, "/library/sections", nil, &resp); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	var sections []provider.Section
	for _, d := range resp.MediaContainer.Directory {
		if d.Type != "movie" && d.Type != "show" {
			continue
		}
		sections = append(sections, provider.Section{Key: d.Key, Title: d.Title, Type: d.Type})
	}
	return sections, nil
}

// Items lists the reconcilable entities of one section: movies directly, or
// one item per season of each show.
func (l *Library) Items(ctx context.Context, section provider.Section, opts provider.ListOptions) ([]provider.LibraryItem, error) {
	switch section.Type {
	case "movie":
		return l.movies(ctx, section, opts)
	case "show":
		return l.seasons(ctx, section, opts)
	default:
		logging.Debug().Str("section", section.Title).Str("type", section.Type).
			Msg("skipping unsupported section type")
		return nil, nil
	}
}

// Reinit is a no-op for Plex: the token is static and the client holds no
// session state.
func (l *Library) Reinit(ctx context.Context) error { return nil }

func listQuery(itemType string, opts provider.ListOptions) url.Values {
	q := url.Values{}
	q.Set("type", itemType)
	q.Set("includeGuids", "1")
	if opts.OnlyWatched {
		q.Set("viewCount>", "0")
	}
	if !opts.ModifiedSince.IsZero() {
		q.Set("updatedAt>", strconv.FormatInt(opts.ModifiedSince.Unix(), 10))
	}
	return q
}

func keyFilter(keys []string) map[string]struct{} {
	if len(keys) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}

func (l *Library) movies(ctx context.Context, section provider.Section, opts provider.ListOptions) ([]provider.LibraryItem, error) {
	var resp mediaContainerResponse
	path := fmt.Sprintf("/library/sections/%s/all", section.Key)
	if err := l.client.get(ctx, path, listQuery(typeMovie, opts), &resp); err != nil {
		return nil, fmt.Errorf("list movies in section %s: %w", section.Key, err)
	}

	wanted := keyFilter(opts.Keys)
	onList := l.watchlist(ctx)
	firstViews := l.firstViews(ctx, section.Key)
	var items []provider.LibraryItem
	for _, m := range resp.MediaContainer.Metadata {
		if wanted != nil {
			if _, ok := wanted[m.RatingKey]; !ok {
				continue
			}
		}
		item := &movieItem{
			meta:        m,
			sectionKey:  section.Key,
			onWatchlist: onList.contains(parseGuids(m.Guids)),
			firstViewed: firstViews[m.RatingKey],
		}
		if m.ViewCount > 0 {
			item.review = l.review(ctx, m.GUID)
		}
		items = append(items, item)
	}
	return items, nil
}

// seasons walks shows, then each show's seasons, then each season's
// episodes. The watched/modified filters apply at show level; season-level
// narrowing happens through opts.Keys.
func (l *Library) seasons(ctx context.Context, section provider.Section, opts provider.ListOptions) ([]provider.LibraryItem, error) {
	var shows mediaContainerResponse
	path := fmt.Sprintf("/library/sections/%s/all", section.Key)
	if err := l.client.get(ctx, path, listQuery(typeShow, opts), &shows); err != nil {
		return nil, fmt.Errorf("list shows in section %s: %w", section.Key, err)
	}

	wanted := keyFilter(opts.Keys)
	onList := l.watchlist(ctx)
	firstViews := l.firstViews(ctx, section.Key)
	var items []provider.LibraryItem
	for _, show := range shows.MediaContainer.Metadata {
		seasons, err := l.children(ctx, show.RatingKey)
		if err != nil {
			return nil, fmt.Errorf("list seasons of %q: %w", show.Title, err)
		}

		// The watchlist and a written review both live at show level and
		// carry over to every season. The review is fetched at most once.
		showOnList := onList.contains(parseGuids(show.Guids))
		showReview := ""
		reviewFetched := false

		for _, season := range seasons {
			// Index 0 is Plex's specials pseudo-season.
			if season.Index <= 0 {
				continue
			}
			if wanted != nil {
				if _, ok := wanted[season.RatingKey]; !ok {
					continue
				}
			}

			episodes, err := l.children(ctx, season.RatingKey)
			if err != nil {
				return nil, fmt.Errorf("list episodes of %q %q: %w", show.Title, season.Title, err)
			}
			if opts.OnlyWatched && !anyViewed(episodes) {
				continue
			}
			if anyViewed(episodes) && !reviewFetched {
				showReview = l.review(ctx, show.GUID)
				reviewFetched = true
			}
			item := &seasonItem{
				meta:        season,
				show:        show,
				episodes:    episodes,
				sectionKey:  section.Key,
				onWatchlist: showOnList,
				firstViews:  firstViews,
			}
			if anyViewed(episodes) {
				item.review = showReview
			}
			items = append(items, item)
		}
	}
	return items, nil
}

func (l *Library) children(ctx context.Context, ratingKey string) ([]metadata, error) {
	var resp mediaContainerResponse
	path := fmt.Sprintf("/library/metadata/%s/children", ratingKey)
	if err := l.client.get(ctx, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// watchlist reads the account watchlist. An unreachable account service
// degrades to "nothing watchlisted": the signal is advisory, a listing never
// fails over it.
func (l *Library) watchlist(ctx context.Context) watchlistSet {
	set, err := l.account.watchlist(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Account watchlist unavailable")
		return nil
	}
	return set
}

// review reads the user's written review for one cloud catalog id, empty
// when there is none or the community service is unreachable.
func (l *Library) review(ctx context.Context, plexGUID string) string {
	msg, err := l.account.review(ctx, plexGUID)
	if err != nil {
		logging.Warn().Str("guid", plexGUID).Err(err).Msg("Review lookup failed")
		return ""
	}
	return msg
}

// firstViews reads the section's playback history and keeps the earliest
// recorded view per rating key. Without history, unit first-view timestamps
// fall back to last-viewed.
func (l *Library) firstViews(ctx context.Context, sectionKey string) map[string]time.Time {
	var resp mediaContainerResponse
	q := url.Values{}
	q.Set("librarySectionID", sectionKey)
	q.Set("sort", "viewedAt:asc")
	if err := l.client.get(ctx, "/status/sessions/history/all", q, &resp); err != nil {
		logging.Warn().Str("section", sectionKey).Err(err).Msg("Playback history unavailable")
		return nil
	}

	first := make(map[string]time.Time, len(resp.MediaContainer.Metadata))
	for _, row := range resp.MediaContainer.Metadata {
		t, ok := unixTime(row.ViewedAt)
		if !ok || row.RatingKey == "" {
			continue
		}
		if cur, seen := first[row.RatingKey]; !seen || t.Before(cur) {
			first[row.RatingKey] = t
		}
	}
	return first
}

func anyViewed(episodes []metadata) bool {
	for _, ep := range episodes {
		if ep.ViewCount > 0 {
			return true
		}
	}
	return false
}
