package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/onnwee/contentrank/internal/content"
	"github.com/onnwee/contentrank/internal/query"
	"github.com/onnwee/contentrank/internal/signals"
)

// Search component names.
const (
	ComponentTitle      = "title"
	ComponentContent    = "content"
	ComponentTags       = "tags"
	ComponentPopularity = "popularity"
)

// Raw text-match levels.
const (
	titleExact         = 1.0
	titleSubstring     = 0.8
	titleOverlapFactor = 0.6
	titleVariantFloor  = 0.5

	contentPhraseBase    = 0.6
	contentPhraseStep    = 0.1
	contentOverlapFactor = 0.5
	contentVariantFloor  = 0.3

	tagExact        = 1.0
	tagContainsTerm = 0.7
	tagVariant      = 0.5
)

// SearchScore is the relevance composite of one item for a query.
type SearchScore struct {
	Result
	Signals signals.Set
}

// Search scores a candidate against an expanded query at now.
func (e *Engine) Search(c content.SearchCandidate, exp query.Expansion, now time.Time) SearchScore {
	item := c.Item
	w := e.weights.Search
	ex := e.extractor
	extra := exp.Extra()

	set := ex.Engagement(item)
	set[signals.Recency] = ex.Recency(item.CreatedAt, now)
	set[signals.Personalization] = signals.PersonalizationScore(item, c.User)

	title := TitleMatch(item.Title, exp, extra)
	switch title {
	case titleExact:
		title *= w.ExactMatchBoost
	case titleSubstring:
		title *= w.PhraseMatchBoost
	}

	popularity := (set[signals.Views] + signals.LogNormalize(
		float64(item.LikeCount+item.CommentCount),
		e.weights.Signals.Scales.Likes,
	)) / 2
	var popularityBoost float64
	if item.IsTrending || item.IsVerified {
		popularityBoost = w.PopularityBoost
	}

	res := Compute([]Component{
		{Name: ComponentTitle, Raw: title},
		{Name: ComponentContent, Raw: ContentMatch(item.Body, exp, extra)},
		{Name: ComponentTags, Raw: TagMatch(item.Tags, exp, extra)},
		{Name: ComponentPopularity, Raw: popularity, Boost: popularityBoost},
		{Name: ComponentRecency, Raw: set[signals.Recency]},
		{Name: ComponentPersonalization, Raw: set[signals.Personalization]},
	}, map[string]float64{
		ComponentTitle:           w.Title,
		ComponentContent:         w.Content,
		ComponentTags:            w.Tags,
		ComponentPopularity:      w.Popularity,
		ComponentRecency:         w.Recency,
		ComponentPersonalization: w.Personalization,
	})
	return SearchScore{Result: res, Signals: set}
}

// TitleMatch returns the raw title match before boosts: 1.0 for an exact
// match, 0.8 when the title contains the query, otherwise the share of query
// terms in the title times 0.6, raised to 0.5 when an expanded variant
// appears in the title.
func TitleMatch(title string, exp query.Expansion, extra []string) float64 {
	lt := strings.Join(query.Terms(title), " ")
	q := exp.Normalized
	if q == "" || lt == "" {
		return 0
	}
	if lt == q {
		return titleExact
	}
	if signals.CountTerm(lt, q) > 0 {
		return titleSubstring
	}
	score := overlap(lt, exp.Terms) * titleOverlapFactor
	if score < titleVariantFloor && anyVariant(lt, extra) {
		score = titleVariantFloor
	}
	return score
}

// ContentMatch returns min(1, 0.6+0.1*n) when the phrase occurs n>0 times
// in the body, otherwise term overlap times 0.5, raised to 0.3 when an
// expanded variant appears.
func ContentMatch(body string, exp query.Expansion, extra []string) float64 {
	lb := strings.ToLower(signals.PlainText(body))
	if exp.Normalized == "" || strings.TrimSpace(lb) == "" {
		return 0
	}
	if n := signals.CountTerm(lb, exp.Normalized); n > 0 {
		return math.Min(1, contentPhraseBase+contentPhraseStep*float64(n))
	}
	score := overlap(lb, exp.Terms) * contentOverlapFactor
	if score < contentVariantFloor && anyVariant(lb, extra) {
		score = contentVariantFloor
	}
	return score
}

// TagMatch returns the best tag match: 1.0 when a tag equals the query or a
// term, 0.7 when a tag contains a term, 0.5 when a tag matches a variant.
func TagMatch(tags []string, exp query.Expansion, extra []string) float64 {
	var best float64
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if tag == exp.Normalized {
			return tagExact
		}
		for _, t := range exp.Terms {
			if tag == t {
				return tagExact
			}
			if strings.Contains(tag, t) {
				best = math.Max(best, tagContainsTerm)
			}
		}
		if best < tagVariant {
			for _, v := range extra {
				if tag == v || strings.Contains(tag, v) {
					best = tagVariant
					break
				}
			}
		}
	}
	return best
}

func overlap(text string, terms []string) float64 {
	if len(terms) == 0 {
		return 0
	}
	matched := 0
	for _, t := range terms {
		if signals.CountTerm(text, t) > 0 {
			matched++
		}
	}
	return float64(matched) / float64(len(terms))
}

func anyVariant(text string, variants []string) bool {
	for _, v := range variants {
		if signals.CountTerm(text, strings.ToLower(v)) > 0 {
			return true
		}
	}
	return false
}
