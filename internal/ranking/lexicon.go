package ranking

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxExpansions caps the number of query variants.
const DefaultMaxExpansions = 50

// Lexicon holds the keyword, synonym and typo tables used by signal
// extraction and query expansion. Once published through a Store it must be
// treated as read-only.
type Lexicon struct {
	SpamKeywords       []string            `yaml:"spam_keywords"`
	QualityIndicators  []string            `yaml:"quality_indicators"`
	ToxicTerms         []string            `yaml:"toxic_terms"`
	Synonyms           map[string][]string `yaml:"synonyms"` // canonical term -> synonyms
	Typos              map[string]string   `yaml:"typos"`    // misspelling -> correction
	SuggestionPatterns []string            `yaml:"suggestion_patterns"`
	MaxExpansions      int                 `yaml:"max_expansions"`
}

// DefaultLexicon returns the built-in tables.
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		SpamKeywords: []string{
			"buy now", "click here", "act now", "guaranteed", "limited time offer",
			"free money", "make money fast", "work from home", "risk free", "no credit check",
			"earn cash", "double your income", "100% free", "order now", "special promotion",
			"viagra", "casino", "crypto giveaway", "once in a lifetime",
		},
		QualityIndicators: []string{
			"tutorial", "guide", "example", "examples", "learn", "beginners", "step",
			"explained", "documentation", "analysis", "research", "how to", "best practices",
			"walkthrough", "reference", "introduction", "overview", "tips",
		},
		ToxicTerms: []string{
			"idiot", "stupid", "moron", "hate you", "kill yourself", "loser", "trash human",
			"shut up", "worthless",
		},
		Synonyms: map[string][]string{
			"ai":         {"artificial intelligence", "machine learning", "ml"},
			"javascript": {"js", "ecmascript"},
			"tutorial":   {"guide", "walkthrough", "how to"},
			"bug":        {"error", "issue", "defect"},
			"fast":       {"quick", "rapid", "speedy"},
			"editor":     {"ide"},
			"database":   {"db"},
			"golang":     {"go"},
			"react":      {"reactjs"},
		},
		Typos: map[string]string{
			"tutoral":    "tutorial",
			"tutorail":   "tutorial",
			"javscript":  "javascript",
			"pyhton":     "python",
			"databse":    "database",
			"recieve":    "receive",
			"cusor":      "cursor",
			"programing": "programming",
		},
		SuggestionPatterns: []string{"tutorial", "guide", "tips", "examples", "best practices"},
		MaxExpansions:      DefaultMaxExpansions,
	}
}

// LoadLexicon reads a YAML lexicon file. Sections missing from the file keep
// their default tables. On error, returns the default lexicon.
func LoadLexicon(filePath string) (*Lexicon, error) {
	if filePath == "" {
		return DefaultLexicon(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read lexicon file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultLexicon(), fmt.Errorf("failed to read lexicon file: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes YAML lexicon data over the defaults.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var loaded Lexicon
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return DefaultLexicon(), fmt.Errorf("failed to parse lexicon: %w", err)
	}

	lex := DefaultLexicon()
	if loaded.SpamKeywords != nil {
		lex.SpamKeywords = loaded.SpamKeywords
	}
	if loaded.QualityIndicators != nil {
		lex.QualityIndicators = loaded.QualityIndicators
	}
	if loaded.ToxicTerms != nil {
		lex.ToxicTerms = loaded.ToxicTerms
	}
	if loaded.Synonyms != nil {
		lex.Synonyms = loaded.Synonyms
	}
	if loaded.Typos != nil {
		lex.Typos = loaded.Typos
	}
	if loaded.SuggestionPatterns != nil {
		lex.SuggestionPatterns = loaded.SuggestionPatterns
	}
	if loaded.MaxExpansions > 0 {
		lex.MaxExpansions = loaded.MaxExpansions
	}
	lex.normalize()
	return lex, nil
}

// normalize lower-cases and deduplicates every table.
func (l *Lexicon) normalize() {
	l.SpamKeywords = normalizeList(l.SpamKeywords)
	l.QualityIndicators = normalizeList(l.QualityIndicators)
	l.ToxicTerms = normalizeList(l.ToxicTerms)
	l.SuggestionPatterns = normalizeList(l.SuggestionPatterns)

	synonyms := make(map[string][]string, len(l.Synonyms))
	for k, v := range l.Synonyms {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		synonyms[k] = normalizeList(append(synonyms[k], v...))
	}
	l.Synonyms = synonyms

	typos := make(map[string]string, len(l.Typos))
	for k, v := range l.Typos {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.ToLower(strings.TrimSpace(v))
		if k != "" && v != "" && k != v {
			typos[k] = v
		}
	}
	l.Typos = typos

	if l.MaxExpansions <= 0 {
		l.MaxExpansions = DefaultMaxExpansions
	}
}

// SynonymGroups returns each canonical term with its synonyms as one group,
// ordered by canonical term for deterministic expansion.
func (l *Lexicon) SynonymGroups() [][]string {
	keys := make([]string, 0, len(l.Synonyms))
	for k := range l.Synonyms {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	groups := make([][]string, 0, len(keys))
	for _, k := range keys {
		group := append([]string{k}, l.Synonyms[k]...)
		groups = append(groups, group)
	}
	return groups
}

// TypoPairs returns (misspelling, correction) pairs ordered by misspelling.
func (l *Lexicon) TypoPairs() [][2]string {
	keys := make([]string, 0, len(l.Typos))
	for k := range l.Typos {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, l.Typos[k]})
	}
	return pairs
}

func normalizeList(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
