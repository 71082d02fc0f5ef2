// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package mappings

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/tomtom215/concordus/internal/logging"
)

// Reserved document keys. IncludesKey lists further documents to load before
// the current one; ReplaceKey inside a nested mapping makes the override
// replace the inherited structure instead of merging into it.
const (
	IncludesKey = "$includes"
	ReplaceKey  = "$replace"
)

// Set is the result of one load pass: the deep-merged document set, its
// content hash, and per-edge source contributions for provenance.
type Set struct {
	// Entries maps composite descriptors to their target mappings.
	Entries map[string]interface{}

	// Hash is the content hash of the merged entries, used to short-circuit
	// sync passes when nothing upstream changed.
	Hash string

	// contributions records, per canonical edge key, the ordered list of
	// sources that asserted that edge, oldest first.
	contributions map[string][]string
}

// Contributions returns the provenance source list for an edge key.
func (s *Set) Contributions(key string) []string {
	return s.contributions[key]
}

// Loader fetches and merges declarative mapping documents. Documents are
// YAML or JSON, addressed by path or URL, merged in order with later
// documents taking precedence key-by-key.
type Loader struct {
	client  *http.Client
	sources []string
	custom  string
	parser  *yaml.YAML
}

// NewLoader creates a loader over the canonical sources plus an optional
// custom override source, which is always merged last.
func NewLoader(sources []string, custom string) *Loader {
	return &Loader{
		client:  &http.Client{Timeout: 30 * time.Second},
		sources: sources,
		custom:  custom,
		parser:  yaml.Parser(),
	}
}

// CanonicalSource returns the primary upstream source, used to classify
// edges as custom when other sources contributed them.
func (l *Loader) CanonicalSource() string {
	if len(l.sources) > 0 {
		return l.sources[0]
	}
	return l.custom
}

// Load fetches and deep-merges all sources. Include cycles are broken with
// a warning: a document revisited anywhere in one pass is skipped, never
// re-loaded.
func (l *Loader) Load(ctx context.Context) (*Set, error) {
	merged := make(map[string]interface{})
	contrib := make(map[string][]string)
	visited := make(map[string]struct{})

	all := make([]string, 0, len(l.sources)+1)
	all = append(all, l.sources...)
	if l.custom != "" {
		all = append(all, l.custom)
	}

	var loaded int
	for _, src := range all {
		if err := l.loadOne(ctx, src, visited, merged, contrib); err != nil {
			return nil, err
		}
		loaded++
	}
	if loaded == 0 {
		return nil, fmt.Errorf("no mapping sources configured")
	}

	hash, err := hashEntries(merged)
	if err != nil {
		return nil, fmt.Errorf("hash mapping set: %w", err)
	}

	return &Set{Entries: merged, Hash: hash, contributions: contrib}, nil
}

// loadOne loads a single document, recursing into its includes first so the
// including document takes precedence over what it includes.
func (l *Loader) loadOne(ctx context.Context, source string, visited map[string]struct{}, merged map[string]interface{}, contrib map[string][]string) error {
	if _, seen := visited[source]; seen {
		logging.Warn().Str("source", source).Msg("Mapping source already loaded, skipping (include cycle?)")
		return nil
	}
	visited[source] = struct{}{}

	raw, err := l.fetch(ctx, source)
	if err != nil {
		return fmt.Errorf("fetch mapping source %s: %w", source, err)
	}

	doc, err := l.parser.Unmarshal(raw)
	if err != nil {
		return fmt.Errorf("parse mapping source %s: %w", source, err)
	}

	if includes, ok := doc[IncludesKey]; ok {
		delete(doc, IncludesKey)
		for _, inc := range toStringSlice(includes) {
			ref, err := resolveRef(source, inc)
			if err != nil {
				logging.Warn().Str("source", source).Str("include", inc).Err(err).
					Msg("Unresolvable include, skipping")
				continue
			}
			if err := l.loadOne(ctx, ref, visited, merged, contrib); err != nil {
				return err
			}
		}
	}

	deepMerge(merged, doc)
	recordContributions(doc, source, contrib)

	logging.Debug().Str("source", source).Int("entries", len(doc)).Msg("Mapping source loaded")
	return nil
}

// fetch retrieves a document by URL or filesystem path.
func (l *Loader) fetch(ctx context.Context, source string) ([]byte, error) {
	if isURL(source) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, http.NoBody)
		if err != nil {
			return nil, err
		}
		resp, err := l.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// resolveRef resolves an include reference relative to the including
// document.
func resolveRef(base, ref string) (string, error) {
	if isURL(ref) || filepath.IsAbs(ref) {
		return ref, nil
	}
	if isURL(base) {
		baseURL, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		refURL, err := url.Parse(ref)
		if err != nil {
			return "", err
		}
		return baseURL.ResolveReference(refURL).String(), nil
	}
	return filepath.Join(filepath.Dir(base), ref), nil
}

// deepMerge merges src into dst key-by-key. Nested maps merge recursively,
// unless the overriding map carries the $replace marker, in which case it
// replaces the inherited map wholesale.
func deepMerge(dst, src map[string]interface{}) {
	for k, v := range src {
		srcMap, srcIsMap := toStringMap(v)
		if !srcIsMap {
			dst[k] = v
			continue
		}
		if replaceRequested(srcMap) {
			delete(srcMap, ReplaceKey)
			dst[k] = srcMap
			continue
		}
		if dstMap, ok := toStringMap(dst[k]); ok {
			deepMerge(dstMap, srcMap)
			dst[k] = dstMap
			continue
		}
		dst[k] = srcMap
	}
}

// replaceRequested reports whether a nested map opts out of merging.
func replaceRequested(m map[string]interface{}) bool {
	v, ok := m[ReplaceKey]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

// recordContributions appends source to the provenance list of every edge
// the document asserts, in both directions. Malformed entries are ignored
// here; sync validation logs and drops them.
func recordContributions(doc map[string]interface{}, source string, contrib map[string][]string) {
	for desc, v := range doc {
		srcNode, err := ParseDescriptor(desc)
		if err != nil {
			continue
		}
		targets, ok := toStringMap(v)
		if !ok {
			continue
		}
		for targetDesc, tv := range targets {
			dstNode, err := ParseDescriptor(targetDesc)
			if err != nil {
				continue
			}
			ranges, ok := toStringMap(tv)
			if !ok {
				continue
			}
			for srcRange, drv := range ranges {
				if srcRange == ReplaceKey {
					continue
				}
				dstRange := toStringPtr(drv)
				appendContribution(contrib, edgeKey(srcNode, dstNode, srcRange, dstRange), source)
				appendContribution(contrib, edgeKey(dstNode, srcNode, derefOr(dstRange, ""), &srcRange), source)
			}
		}
	}
}

func appendContribution(contrib map[string][]string, key, source string) {
	for _, s := range contrib[key] {
		if s == source {
			return
		}
	}
	contrib[key] = append(contrib[key], source)
}

// hashEntries computes the content hash of the merged document set. JSON
// marshaling sorts map keys, so the hash is stable across load order.
func hashEntries(entries map[string]interface{}) (string, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(data)), nil
}

func toStringMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}

func toStringSlice(v interface{}) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, e := range s {
			if str, ok := e.(string); ok {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}

func toStringPtr(v interface{}) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

func derefOr(s *string, def string) string {
	if s != nil {
		return *s
	}
	return def
}
