// Package assemble builds the externally visible parts of evaluation
// results: search highlights, facets and suggestions, trending ranks, and
// spam recommendations.
package assemble

import (
	"html"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/signals"
)

// Defaults for search assembly.
const (
	DefaultHighlightWindow = 40
	DefaultFacetSize       = 10
	MaxSuggestions         = 5
	MaxRelatedSearches     = 5
	relatedSearchDepth     = 10

	markOpen  = "<mark>"
	markClose = "</mark>"
	ellipsis  = "..."
)

// Highlights holds marked-up snippets for one result. Fields are empty
// when nothing matched there.
type Highlights struct {
	Title   string   `json:"title,omitempty"`
	Content string   `json:"content,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Highlight marks the first occurrence of the longest matching variant in
// the title and body. Snippets keep window runes of context on each side and
// are HTML-escaped apart from the mark tags. Matching tags are returned as-is.
func Highlight(item *content.Item, variants []string, window int) Highlights {
	if window <= 0 {
		window = DefaultHighlightWindow
	}
	ordered := longestFirst(variants)

	var h Highlights
	if start, end, ok := findAny(item.Title, ordered); ok {
		h.Title = snippet(item.Title, start, end, window)
	}
	body := signals.PlainText(item.Body)
	if start, end, ok := findAny(body, ordered); ok {
		h.Content = snippet(body, start, end, window)
	}
	for _, tag := range item.Tags {
		lt := strings.ToLower(tag)
		for _, v := range ordered {
			if strings.Contains(lt, v) {
				h.Tags = append(h.Tags, tag)
				break
			}
		}
	}
	return h
}

func longestFirst(variants []string) []string {
	out := make([]string, 0, len(variants))
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// findAny returns the byte range in text of the first variant found. Lower
// casing can change byte lengths for a few scripts; matches are only used
// when the lowered text keeps the same length.
func findAny(text string, variants []string) (int, int, bool) {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		return 0, 0, false
	}
	for _, v := range variants {
		if i := strings.Index(lower, v); i >= 0 {
			return i, i + len(v), true
		}
	}
	return 0, 0, false
}

// snippet cuts window runes around [start,end), escapes the text and marks
// the match.
func snippet(text string, start, end, window int) string {
	from := start
	for n := 0; n < window && from > 0; n++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for n := 0; n < window && to < len(text); n++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}

	var b strings.Builder
	if from > 0 {
		b.WriteString(ellipsis)
	}
	b.WriteString(html.EscapeString(text[from:start]))
	b.WriteString(markOpen)
	b.WriteString(html.EscapeString(text[start:end]))
	b.WriteString(markClose)
	b.WriteString(html.EscapeString(text[end:to]))
	if to < len(text) {
		b.WriteString(ellipsis)
	}
	return b.String()
}

// FacetValue is one facet bucket.
type FacetValue struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Facets groups results by tag, type and source.
type Facets struct {
	Tags    []FacetValue `json:"tags"`
	Types   []FacetValue `json:"types"`
	Sources []FacetValue `json:"sources"`
}

// BuildFacets counts tags, types and sources across items. Each list is
// sorted by count descending then value, and truncated to topN.
func BuildFacets(items []*content.Item, topN int) Facets {
	if topN <= 0 {
		topN = DefaultFacetSize
	}
	tags := map[string]int{}
	types := map[string]int{}
	sources := map[string]int{}
	for _, item := range items {
		seen := map[string]struct{}{}
		for _, t := range item.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" {
				continue
			}
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			tags[t]++
		}
		if item.Type != "" {
			types[item.Type]++
		}
		if item.Source != "" {
			sources[item.Source]++
		}
	}
	return Facets{
		Tags:    topValues(tags, topN),
		Types:   topValues(types, topN),
		Sources: topValues(sources, topN),
	}
}

func topValues(counts map[string]int, topN int) []FacetValue {
	values := make([]FacetValue, 0, len(counts))
	for v, c := range counts {
		values = append(values, FacetValue{Value: v, Count: c})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	if len(values) > topN {
		values = values[:topN]
	}
	return values
}

// Suggestions returns the query followed by the query combined with each
// suggestion pattern it does not already contain, at most MaxSuggestions.
func Suggestions(normalized string, patterns []string) []string {
	if normalized == "" {
		return nil
	}
	out := []string{normalized}
	for _, p := range patterns {
		if len(out) == MaxSuggestions {
			break
		}
		if p == "" || strings.Contains(normalized, p) {
			continue
		}
		out = append(out, normalized+" "+p)
	}
	return out
}

// RelatedSearches returns the tags that co-occur most often in the top
// results, excluding the query terms.
func RelatedSearches(items []*content.Item, terms []string) []string {
	exclude := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		exclude[t] = struct{}{}
	}
	if len(items) > relatedSearchDepth {
		items = items[:relatedSearchDepth]
	}
	counts := map[string]int{}
	for _, item := range items {
		for _, t := range item.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if _, skip := exclude[t]; skip || t == "" {
				continue
			}
			counts[t]++
		}
	}
	top := topValues(counts, MaxRelatedSearches)
	related := make([]string, len(top))
	for i, v := range top {
		related[i] = v.Value
	}
	return related
}
