package signals

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	linkPattern        = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	punctuationRunExpr = regexp.MustCompile(`[!?]{2,}`)
	markupPattern      = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	sentenceSplit      = regexp.MustCompile(`[.!?]+`)
)

// TextStats holds the raw counts behind the text signals. Scorers use them
// for formulas that need counts rather than densities, and for reasons.
type TextStats struct {
	Words            int
	Letters          int
	Uppercase        int
	Sentences        int
	Links            int
	PunctuationRuns  int
	CapsRatio        float64
	PunctuationRatio float64
	AvgWordLength    float64 // letters per word
	WordsPerSentence float64
	SpamMatches      int
	SpamTerms        []string
	QualityMatches   int
	ToxicMatches     int
	ToxicTerms       []string
}

// Text computes text-pattern signals over title and body. HTML in the body
// is reduced to its text first. With zero words every density and ratio is 0.
func (e *Extractor) Text(title, body string) (Set, TextStats) {
	text := strings.TrimSpace(strings.TrimSpace(title) + " " + PlainText(body))
	stats := analyze(text)

	set := Set{
		KeywordDensity:     0,
		QualityDensity:     0,
		ToxicDensity:       0,
		LinkDensity:        0,
		CapsRatio:          0,
		PunctuationRatio:   0,
		AvgWordLength:      0,
		SentenceComplexity: 0,
	}
	if stats.Words == 0 {
		return set, stats
	}

	lower := strings.ToLower(text)
	stats.SpamMatches, stats.SpamTerms = countTerms(lower, e.lex.SpamKeywords)
	stats.QualityMatches, _ = countTerms(lower, e.lex.QualityIndicators)
	stats.ToxicMatches, stats.ToxicTerms = countTerms(lower, e.lex.ToxicTerms)

	words := float64(stats.Words)
	set[KeywordDensity] = unit(float64(stats.SpamMatches) / words)
	set[QualityDensity] = unit(float64(stats.QualityMatches) / words)
	set[ToxicDensity] = unit(float64(stats.ToxicMatches) / words)
	set[LinkDensity] = unit(float64(stats.Links) / words)
	set[CapsRatio] = unit(stats.CapsRatio)
	set[PunctuationRatio] = unit(stats.PunctuationRatio)
	set[AvgWordLength] = unit(stats.AvgWordLength / 10)
	set[SentenceComplexity] = unit(stats.WordsPerSentence / 25)
	return set, stats
}

// PlainText returns the visible text of s when it contains HTML markup, and s
// unchanged otherwise.
func PlainText(s string) string {
	if !markupPattern.MatchString(s) {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func analyze(text string) TextStats {
	var st TextStats

	var punct, nonSpace int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		nonSpace++
		switch {
		case unicode.IsLetter(r):
			st.Letters++
			if unicode.IsUpper(r) {
				st.Uppercase++
			}
		case unicode.IsPunct(r):
			punct++
		}
	}

	var wordLetters int
	for _, tok := range strings.Fields(text) {
		n := 0
		hasAlnum := false
		for _, r := range tok {
			if unicode.IsLetter(r) {
				n++
				hasAlnum = true
			} else if unicode.IsDigit(r) {
				hasAlnum = true
			}
		}
		if hasAlnum {
			st.Words++
			wordLetters += n
		}
	}
	if st.Words == 0 {
		return TextStats{}
	}

	for _, seg := range sentenceSplit.Split(text, -1) {
		if strings.IndexFunc(seg, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			st.Sentences++
		}
	}
	if st.Sentences == 0 {
		st.Sentences = 1
	}

	st.Links = len(linkPattern.FindAllStringIndex(text, -1))
	st.PunctuationRuns = len(punctuationRunExpr.FindAllStringIndex(text, -1))
	if st.Letters > 0 {
		st.CapsRatio = float64(st.Uppercase) / float64(st.Letters)
	}
	if nonSpace > 0 {
		st.PunctuationRatio = float64(punct) / float64(nonSpace)
	}
	st.AvgWordLength = float64(wordLetters) / float64(st.Words)
	st.WordsPerSentence = float64(st.Words) / float64(st.Sentences)
	return st
}

// countTerms counts whole-word occurrences of each term in lower-cased text
// and returns the total and the distinct terms found, in lexicon order.
func countTerms(lower string, terms []string) (int, []string) {
	total := 0
	var found []string
	for _, term := range terms {
		if n := CountTerm(lower, term); n > 0 {
			total += n
			found = append(found, term)
		}
	}
	return total, found
}

// CountTerm counts non-overlapping occurrences of term in text that are not
// part of a longer word. Both arguments should already be lower-cased.
func CountTerm(text, term string) int {
	if term == "" {
		return 0
	}
	count := 0
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], term)
		if i < 0 {
			break
		}
		start := offset + i
		end := start + len(term)
		if isBoundary(text, start-1) && isBoundary(text, end) {
			count++
			offset = end
		} else {
			offset = start + 1
		}
	}
	return count
}

func isBoundary(text string, i int) bool {
	if i < 0 || i >= len(text) {
		return true
	}
	c := text[i]
	if c >= 0x80 {
		// Inside a multi-byte rune; treat letters outside ASCII as word characters.
		return false
	}
	return !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9')
}

func unit(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
