// Concordus - Watch-State Reconciliation for Media Libraries
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/concordus

package reconcile

import (
	"math"
	"regexp"
	"strings"
)

// tokenSplitPattern matches non-alphanumeric sequences for tokenization.
var tokenSplitPattern = regexp.MustCompile(`[^a-z0-9]+`)

// fingerprint is a term-frequency vector over a title's tokens, normalized
// for cosine comparison. Catalog titles are short, so plain term frequency
// without corpus weighting is enough to rank fuzzy search results.
type fingerprint struct {
	tokens map[string]float64
	norm   float64
}

// newFingerprint tokenizes a title into a fingerprint. Returns nil when the
// title produces no usable tokens.
func newFingerprint(title string) *fingerprint {
	raw := tokenSplitPattern.Split(strings.ToLower(title), -1)
	counts := make(map[string]float64, len(raw))
	for _, token := range raw {
		if len(token) < 2 {
			continue
		}
		counts[token]++
	}
	if len(counts) == 0 {
		return nil
	}
	var norm float64
	for _, count := range counts {
		norm += count * count
	}
	return &fingerprint{tokens: counts, norm: math.Sqrt(norm)}
}

// TitleSimilarity computes the cosine similarity of two titles' token
// fingerprints, in [0, 1]. Either title tokenizing to nothing yields 0.
func TitleSimilarity(a, b string) float64 {
	fa, fb := newFingerprint(a), newFingerprint(b)
	if fa == nil || fb == nil || fa.norm == 0 || fb.norm == 0 {
		return 0
	}
	var dot float64
	for token, count := range fa.tokens {
		if other, ok := fb.tokens[token]; ok {
			dot += count * other
		}
	}
	if dot == 0 {
		return 0
	}
	return dot / (fa.norm * fb.norm)
}
