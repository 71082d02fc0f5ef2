// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

// Package anilist implements the tracker capability interface against the
// AniList GraphQL API. List mutations have no native batch form, so batch
// updates are issued as one document of aliased SaveMediaListEntry fields.
package anilist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/concordus/internal/cache"
	"github.com/tomtom215/concordus/internal/config"
	"github.com/tomtom215/concordus/internal/logging"
	"github.com/tomtom215/concordus/internal/provider"
)

func init() {
	provider.RegisterTracker("anilist", func(cfg config.TrackerConfig) (provider.Tracker, error) {
		return New(cfg), nil
	})
}

const (
	viewerQuery = `query { Viewer { id } }`

	entryQuery = `query ($userId: Int, $mediaId: Int) {
  MediaList(userId: $userId, mediaId: $mediaId) {
    id status progress repeat score(format: POINT_100) notes
    startedAt { year month day } completedAt { year month day }
    media { id title { romaji english } format episodes }
  }
}`

	searchQuery = `query ($search: String) {
  Page(perPage: 10) {
    media(search: $search, type: ANIME) {
      id title { romaji english } format episodes
    }
  }
}`

	collectionQuery = `query ($userId: Int) {
  MediaListCollection(userId: $userId, type: ANIME) {
    lists {
      entries {
        id status progress repeat score(format: POINT_100) notes
        startedAt { year month day } completedAt { year month day }
        media { id title { romaji english } format episodes }
      }
    }
  }
}`

	deleteMutation = `mutation ($id: Int) {
  DeleteMediaListEntry(id: $id) { deleted }
}`
)

// Tracker is the AniList implementation of provider.Tracker.
type Tracker struct {
	client *client
	cache  *cache.Cache

	mu       sync.Mutex
	viewerID int
}

// New creates an AniList tracker provider from configuration.
func New(cfg config.TrackerConfig) *Tracker {
	return &Tracker{
		client: newClient(cfg.URL, cfg.Token, cfg.RequestsPerSecond, cfg.Timeout),
		cache:  cache.New(cfg.EntryCacheTTL),
	}
}

func (t *Tracker) Namespace() string { return "anilist" }

// viewer resolves and memoizes the authenticated user's id.
func (t *Tracker) viewer(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.viewerID != 0 {
		return t.viewerID, nil
	}

	var resp struct {
		Viewer struct {
			ID int `json:"id"`
		} `json:"Viewer"`
	}
	if err := t.client.do(ctx, "viewer", viewerQuery, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Viewer.ID == 0 {
		return 0, errors.New("anilist: viewer query returned no user")
	}
	t.viewerID = resp.Viewer.ID
	return t.viewerID, nil
}

func parseMediaKey(mediaKey string) (int, error) {
	id, err := strconv.Atoi(mediaKey)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid anilist media key %q", mediaKey)
	}
	return id, nil
}

// GetEntry returns the viewer's list entry for a media id, or nil when the
// media is untracked. Results are cached until the next write or reinit.
func (t *Tracker) GetEntry(ctx context.Context, mediaKey string) (*provider.ListEntry, error) {
	if cached, ok := t.cache.Get(mediaKey); ok {
		entry, _ := cached.(*provider.ListEntry)
		return entry, nil
	}

	mediaID, err := parseMediaKey(mediaKey)
	if err != nil {
		return nil, err
	}
	userID, err := t.viewer(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		MediaList *listEntry `json:"MediaList"`
	}
	err = t.client.do(ctx, "get_entry", entryQuery,
		map[string]any{"userId": userID, "mediaId": mediaID}, &resp)
	if errors.Is(err, errNotFound) {
		t.cache.Set(mediaKey, (*provider.ListEntry)(nil))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.MediaList == nil {
		t.cache.Set(mediaKey, (*provider.ListEntry)(nil))
		return nil, nil
	}

	entry := resp.MediaList.toListEntry(t.Namespace())
	t.cache.Set(mediaKey, entry)
	t.rememberEntryID(mediaKey, resp.MediaList.ID)
	return entry, nil
}

// entry ids are needed for deletion; AniList deletes by list-row id, not
// media id.
func (t *Tracker) rememberEntryID(mediaKey string, id int) {
	t.cache.Set("entry-id:"+mediaKey, id)
}

func (t *Tracker) entryID(ctx context.Context, mediaKey string) (int, error) {
	if cached, ok := t.cache.Get("entry-id:" + mediaKey); ok {
		if id, ok := cached.(int); ok && id > 0 {
			return id, nil
		}
	}
	t.cache.Delete(mediaKey)
	entry, err := t.GetEntry(ctx, mediaKey)
	if err != nil {
		return 0, err
	}
	if entry == nil {
		return 0, fmt.Errorf("anilist: no list entry for media %s", mediaKey)
	}
	if cached, ok := t.cache.Get("entry-id:" + mediaKey); ok {
		if id, ok := cached.(int); ok && id > 0 {
			return id, nil
		}
	}
	return 0, fmt.Errorf("anilist: entry id unavailable for media %s", mediaKey)
}

// UpdateEntry creates or updates the list entry for one media id.
func (t *Tracker) UpdateEntry(ctx context.Context, mediaKey string, snap provider.EntrySnapshot) error {
	return t.UpdateEntries(ctx, []provider.EntryUpdate{{MediaKey: mediaKey, Snapshot: snap}})
}

// UpdateEntries applies all updates in one aliased-mutation document.
func (t *Tracker) UpdateEntries(ctx context.Context, updates []provider.EntryUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	query, variables, err := buildSaveDocument(updates)
	if err != nil {
		return err
	}
	if err := t.client.do(ctx, "save_entries", query, variables, nil); err != nil {
		return err
	}

	for _, u := range updates {
		t.cache.Delete(u.MediaKey)
		t.cache.Delete("entry-id:" + u.MediaKey)
	}
	logging.Debug().Int("entries", len(updates)).Msg("anilist entries saved")
	return nil
}

// buildSaveDocument assembles one mutation with an aliased SaveMediaListEntry
// field per update, each bound to its own variable set.
func buildSaveDocument(updates []provider.EntryUpdate) (string, map[string]any, error) {
	var decls, fields []string
	variables := make(map[string]any, len(updates)*8)

	for i, u := range updates {
		mediaID, err := parseMediaKey(u.MediaKey)
		if err != nil {
			return "", nil, err
		}
		vars := saveVariablesFor(mediaID, u.Snapshot)

		suffix := strconv.Itoa(i)
		decls = append(decls,
			fmt.Sprintf("$mediaId%s: Int", suffix),
			fmt.Sprintf("$status%s: MediaListStatus", suffix),
			fmt.Sprintf("$progress%s: Int", suffix),
			fmt.Sprintf("$repeat%s: Int", suffix),
			fmt.Sprintf("$scoreRaw%s: Int", suffix),
			fmt.Sprintf("$notes%s: String", suffix),
			fmt.Sprintf("$startedAt%s: FuzzyDateInput", suffix),
			fmt.Sprintf("$completedAt%s: FuzzyDateInput", suffix),
		)
		fields = append(fields, fmt.Sprintf(
			"u%[1]s: SaveMediaListEntry(mediaId: $mediaId%[1]s, status: $status%[1]s, progress: $progress%[1]s, repeat: $repeat%[1]s, scoreRaw: $scoreRaw%[1]s, notes: $notes%[1]s, startedAt: $startedAt%[1]s, completedAt: $completedAt%[1]s) { id }",
			suffix))

		variables["mediaId"+suffix] = vars.MediaID
		if vars.Status != "" {
			variables["status"+suffix] = vars.Status
		}
		if vars.Progress != nil {
			variables["progress"+suffix] = *vars.Progress
		}
		if vars.Repeat != nil {
			variables["repeat"+suffix] = *vars.Repeat
		}
		if vars.ScoreRaw != nil {
			variables["scoreRaw"+suffix] = *vars.ScoreRaw
		}
		if vars.Notes != nil {
			variables["notes"+suffix] = *vars.Notes
		}
		if vars.StartedAt != nil {
			variables["startedAt"+suffix] = vars.StartedAt
		}
		if vars.CompletedAt != nil {
			variables["completedAt"+suffix] = vars.CompletedAt
		}
	}

	query := fmt.Sprintf("mutation (%s) {\n%s\n}",
		strings.Join(decls, ", "), strings.Join(fields, "\n"))
	return query, variables, nil
}

// DeleteEntry removes the viewer's list entry for a media id.
func (t *Tracker) DeleteEntry(ctx context.Context, mediaKey string) error {
	id, err := t.entryID(ctx, mediaKey)
	if err != nil {
		return err
	}
	if err := t.client.do(ctx, "delete_entry", deleteMutation, map[string]any{"id": id}, nil); err != nil {
		return err
	}
	t.cache.Delete(mediaKey)
	t.cache.Delete("entry-id:" + mediaKey)
	return nil
}

// Search performs a catalog title search. Results carry empty snapshots;
// only catalog identity is returned.
func (t *Tracker) Search(ctx context.Context, query string) ([]provider.ListEntry, error) {
	var resp struct {
		Page struct {
			Media []media `json:"media"`
		} `json:"Page"`
	}
	err := t.client.do(ctx, "search", searchQuery, map[string]any{"search": query}, &resp)
	if err != nil {
		return nil, err
	}

	results := make([]provider.ListEntry, 0, len(resp.Page.Media))
	for _, m := range resp.Page.Media {
		results = append(results, provider.ListEntry{
			Namespace: t.Namespace(),
			MediaKey:  itoa(m.ID),
			Title:     m.Title.preferred(),
			Format:    m.Format,
			Units:     m.Episodes,
		})
	}
	return results, nil
}

// backupDocument is the serialized form of a full-list backup.
type backupDocument struct {
	ViewerID int         `json:"viewer_id"`
	Entries  []listEntry `json:"entries"`
}

// BackupList serializes the viewer's entire anime list.
func (t *Tracker) BackupList(ctx context.Context) ([]byte, error) {
	userID, err := t.viewer(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		MediaListCollection struct {
			Lists []struct {
				Entries []listEntry `json:"entries"`
			} `json:"lists"`
		} `json:"MediaListCollection"`
	}
	err = t.client.do(ctx, "backup_list", collectionQuery, map[string]any{"userId": userID}, &resp)
	if err != nil {
		return nil, err
	}

	doc := backupDocument{ViewerID: userID}
	for _, list := range resp.MediaListCollection.Lists {
		doc.Entries = append(doc.Entries, list.Entries...)
	}
	return json.Marshal(doc)
}

// restoreChunkSize bounds the aliased-mutation document size on restore.
const restoreChunkSize = 25

// RestoreList re-applies a previously taken backup, chunked through the
// batch-update path.
func (t *Tracker) RestoreList(ctx context.Context, blob []byte) error {
	var doc backupDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		return fmt.Errorf("anilist: decode backup: %w", err)
	}

	updates := make([]provider.EntryUpdate, 0, len(doc.Entries))
	for _, e := range doc.Entries {
		if e.Media.ID <= 0 {
			continue
		}
		updates = append(updates, provider.EntryUpdate{
			MediaKey: itoa(e.Media.ID),
			Snapshot: e.toSnapshot(),
		})
	}

	for start := 0; start < len(updates); start += restoreChunkSize {
		end := start + restoreChunkSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := t.UpdateEntries(ctx, updates[start:end]); err != nil {
			return fmt.Errorf("anilist: restore chunk at %d: %w", start, err)
		}
	}
	logging.Info().Int("entries", len(updates)).Msg("anilist list restored")
	return nil
}

// Reinit re-resolves the viewer and drops all cached entries.
func (t *Tracker) Reinit(ctx context.Context) error {
	t.cache.Clear()
	t.mu.Lock()
	t.viewerID = 0
	t.mu.Unlock()

	_, err := t.viewer(ctx)
	return err
}
