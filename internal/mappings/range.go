// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package mappings

import (
	"fmt"
	"strconv"
	"strings"
)

// Range is the compact season/episode interval notation qualifying an edge:
//
//	s2            whole season 2
//	s2:e1-e12     episodes 1-12 of season 2
//	s2:e5         single episode
//	s2:e5-        open-ended from episode 5
//	s2:-e12       open start through episode 12
//	e1-e12        episode window, season-independent
//
// Any form may carry a |<ratio> suffix declaring how many episodes on this
// side correspond to one episode on the other side of the edge.
type Range struct {
	// Season is the 1-based season number; 0 means unspecified.
	Season int

	// Start / End bound the episode interval; 0 means open on that end.
	Start int
	End   int

	// HasEpisodes distinguishes "s2" (whole season) from "s2:e0-" forms.
	HasEpisodes bool

	// Ratio is the episode correspondence ratio; 0 and 1 both mean 1:1.
	Ratio int
}

// ParseRange parses the range notation. The empty string parses to the zero
// Range, meaning "no qualification".
func ParseRange(s string) (Range, error) {
	var r Range
	if s == "" {
		return r, nil
	}

	body := s
	if i := strings.IndexByte(body, '|'); i >= 0 {
		ratio, err := strconv.Atoi(body[i+1:])
		if err != nil || ratio < 1 {
			return r, fmt.Errorf("range %q: invalid ratio %q", s, body[i+1:])
		}
		r.Ratio = ratio
		body = body[:i]
	}

	seasonPart := body
	episodePart := ""
	if i := strings.IndexByte(body, ':'); i >= 0 {
		seasonPart, episodePart = body[:i], body[i+1:]
	} else if strings.HasPrefix(body, "e") || strings.HasPrefix(body, "-e") {
		seasonPart, episodePart = "", body
	}

	if seasonPart != "" {
		if !strings.HasPrefix(seasonPart, "s") {
			return r, fmt.Errorf("range %q: expected season marker", s)
		}
		season, err := strconv.Atoi(seasonPart[1:])
		if err != nil || season < 0 {
			return r, fmt.Errorf("range %q: invalid season %q", s, seasonPart)
		}
		r.Season = season
	}

	if episodePart == "" {
		if seasonPart == "" {
			return r, fmt.Errorf("range %q: empty", s)
		}
		return r, nil
	}

	r.HasEpisodes = true
	start, end, err := parseEpisodeInterval(episodePart)
	if err != nil {
		return r, fmt.Errorf("range %q: %w", s, err)
	}
	r.Start, r.End = start, end
	if r.Start > 0 && r.End > 0 && r.End < r.Start {
		return r, fmt.Errorf("range %q: inverted interval", s)
	}
	return r, nil
}

// parseEpisodeInterval parses "e5", "e1-e12", "e5-", "-e12".
func parseEpisodeInterval(s string) (start, end int, err error) {
	parseEp := func(part string) (int, error) {
		if !strings.HasPrefix(part, "e") {
			return 0, fmt.Errorf("expected episode marker in %q", part)
		}
		n, err := strconv.Atoi(part[1:])
		if err != nil || n < 1 {
			return 0, fmt.Errorf("invalid episode %q", part)
		}
		return n, nil
	}

	before, after, dashed := strings.Cut(s, "-")
	if !dashed {
		n, err := parseEp(s)
		if err != nil {
			return 0, 0, err
		}
		return n, n, nil
	}
	if before != "" {
		if start, err = parseEp(before); err != nil {
			return 0, 0, err
		}
	}
	if after != "" {
		if end, err = parseEp(after); err != nil {
			return 0, 0, err
		}
	}
	if before == "" && after == "" {
		return 0, 0, fmt.Errorf("empty interval")
	}
	return start, end, nil
}

// String renders the range back to its compact notation.
func (r Range) String() string {
	if r.IsZero() {
		return ""
	}
	var b strings.Builder
	if r.Season > 0 {
		fmt.Fprintf(&b, "s%d", r.Season)
	}
	if r.HasEpisodes {
		if r.Season > 0 {
			b.WriteByte(':')
		}
		switch {
		case r.Start > 0 && r.End == r.Start:
			fmt.Fprintf(&b, "e%d", r.Start)
		case r.Start > 0 && r.End > 0:
			fmt.Fprintf(&b, "e%d-e%d", r.Start, r.End)
		case r.Start > 0:
			fmt.Fprintf(&b, "e%d-", r.Start)
		default:
			fmt.Fprintf(&b, "-e%d", r.End)
		}
	}
	if r.Ratio > 1 {
		fmt.Fprintf(&b, "|%d", r.Ratio)
	}
	return b.String()
}

// IsZero reports whether the range carries no qualification at all.
func (r Range) IsZero() bool {
	return r.Season == 0 && !r.HasEpisodes && r.Ratio <= 1
}

// Contains reports whether an episode index lies within the range's episode
// window. A range without an episode window contains every episode.
func (r Range) Contains(ep int) bool {
	if !r.HasEpisodes {
		return true
	}
	if r.Start > 0 && ep < r.Start {
		return false
	}
	if r.End > 0 && ep > r.End {
		return false
	}
	return true
}

// startOr returns the window start, or def when the start is open.
func (r Range) startOr(def int) int {
	if r.HasEpisodes && r.Start > 0 {
		return r.Start
	}
	return def
}

// ratio returns the effective correspondence ratio.
func (r Range) ratio() int {
	if r.Ratio > 1 {
		return r.Ratio
	}
	return 1
}

// TranslateEpisode maps an episode index on the source side of an edge to
// the corresponding index on the destination side. A nil destination range
// means the whole destination node with a 1:1 correspondence.
//
// The ratio declared on a side counts that side's episodes per one episode
// on a ratio-free side: src|2 means two source episodes collapse onto one
// destination episode.
func TranslateEpisode(src Range, dst *Range, ep int) (int, bool) {
	if !src.Contains(ep) {
		return 0, false
	}

	offset := ep - src.startOr(1)
	offset /= src.ratio()

	if dst == nil {
		return 1 + offset, true
	}

	target := dst.startOr(1) + offset*dst.ratio()
	if !dst.Contains(target) {
		return 0, false
	}
	return target, true
}
