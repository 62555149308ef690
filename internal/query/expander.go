// Package query expands a raw search query into the ordered set of variants
// used to fetch and score candidates: the query itself, its terms, synonym
// substitutions, stems and typo corrections.
package query

import (
	"strings"
	"unicode"

	"github.com/onnwee/contentrank/internal/ranking"
)

// stemSuffixes are tried in order; the first match wins.
var stemSuffixes = []string{"ing", "est", "ed", "er", "ly", "s"}

// minStemLength is the shortest stem that is emitted.
const minStemLength = 3

// Expansion is the result of expanding one query.
type Expansion struct {
	Original   string   `json:"original"`
	Normalized string   `json:"normalized"`
	Terms      []string `json:"terms"`
	Variants   []string `json:"variants"`
}

// Expander expands queries using a lexicon. It is safe for concurrent use.
type Expander struct {
	lex *ranking.Lexicon
	max int
}

// NewExpander creates an expander. A nil lexicon uses the defaults.
func NewExpander(lex *ranking.Lexicon) *Expander {
	if lex == nil {
		lex = ranking.DefaultLexicon()
	}
	max := lex.MaxExpansions
	if max <= 0 {
		max = ranking.DefaultMaxExpansions
	}
	return &Expander{lex: lex, max: max}
}

// Expand returns the variants of raw in priority order: original, lower-cased
// query, terms, synonyms, stems, typo corrections. Duplicates are dropped and
// the list is capped at the lexicon's MaxExpansions.
func (e *Expander) Expand(raw string) Expansion {
	terms := Terms(raw)
	normalized := strings.Join(terms, " ")
	exp := Expansion{Original: raw, Normalized: normalized, Terms: terms}

	vs := newVariantSet(e.max)
	vs.add(strings.TrimSpace(raw))
	vs.add(normalized)
	for _, t := range terms {
		vs.add(t)
	}
	if len(terms) == 0 {
		exp.Variants = vs.items
		return exp
	}

	e.addSynonyms(vs, normalized, terms)

	for _, t := range terms {
		if stem, ok := Stem(t); ok {
			vs.add(stem)
		}
	}

	e.addTypos(vs, normalized, terms)

	exp.Variants = vs.items
	return exp
}

// Extra returns the variants that are not the query, its normalized form or
// one of its terms: the synonyms, stems and corrections.
func (e Expansion) Extra() []string {
	own := make(map[string]struct{}, len(e.Terms)+2)
	own[e.Original] = struct{}{}
	own[e.Normalized] = struct{}{}
	for _, t := range e.Terms {
		own[t] = struct{}{}
	}
	var extra []string
	for _, v := range e.Variants {
		if _, ok := own[v]; !ok {
			extra = append(extra, v)
		}
	}
	return extra
}

// Original returns an expansion that carries only the query itself, for
// callers that disable expansion.
func Original(raw string) Expansion {
	terms := Terms(raw)
	exp := Expansion{Original: raw, Normalized: strings.Join(terms, " "), Terms: terms}
	vs := newVariantSet(2)
	vs.add(strings.TrimSpace(raw))
	vs.add(exp.Normalized)
	exp.Variants = vs.items
	return exp
}

// addSynonyms emits every member of a group that matches the query, plus the
// query with the matched member substituted by each other member.
func (e *Expander) addSynonyms(vs *variantSet, normalized string, terms []string) {
	for _, group := range e.lex.SynonymGroups() {
		for _, member := range group {
			if !containsPhrase(normalized, member) {
				continue
			}
			for _, other := range group {
				vs.add(other)
			}
			if len(terms) > 1 || strings.Contains(member, " ") {
				for _, other := range group {
					if other != member {
						vs.add(replacePhrase(normalized, member, other))
					}
				}
			}
			break
		}
	}
}

// addTypos adds the correction for a misspelled term and the misspelling for
// a correct term, plus the corrected query.
func (e *Expander) addTypos(vs *variantSet, normalized string, terms []string) {
	for _, pair := range e.lex.TypoPairs() {
		typo, fix := pair[0], pair[1]
		for _, t := range terms {
			switch t {
			case typo:
				vs.add(fix)
				if len(terms) > 1 {
					vs.add(replacePhrase(normalized, typo, fix))
				}
			case fix:
				vs.add(typo)
			}
		}
	}
}

// Terms splits s into lower-cased terms with surrounding punctuation removed.
func Terms(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
		})
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

// Stem strips the first matching suffix when at least three characters
// remain. It reports whether a stem was produced.
func Stem(term string) (string, bool) {
	for _, suffix := range stemSuffixes {
		if strings.HasSuffix(term, suffix) && len(term)-len(suffix) >= minStemLength {
			return term[:len(term)-len(suffix)], true
		}
	}
	return term, false
}

func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}

func replacePhrase(normalized, from, to string) string {
	out := strings.ReplaceAll(" "+normalized+" ", " "+from+" ", " "+to+" ")
	return strings.TrimSpace(out)
}

type variantSet struct {
	items []string
	seen  map[string]struct{}
	max   int
}

func newVariantSet(max int) *variantSet {
	return &variantSet{seen: make(map[string]struct{}), max: max}
}

func (v *variantSet) add(s string) {
	if s == "" || len(v.items) >= v.max {
		return
	}
	if _, ok := v.seen[s]; ok {
		return
	}
	v.seen[s] = struct{}{}
	v.items = append(v.items, s)
}
