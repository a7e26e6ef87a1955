package routing

import (
	"regexp"
	"strings"

	"github.com/prismgw/prism/internal/services/tokenizer"
)

// Keyword buckets tuned on observed traffic. Matches are substring-based
// on the lowercased query.
var complexKeywords = []string{
	"architecture", "architect", "design a", "optimize", "refactor",
	"algorithm", "analyze", "analysis", "debug", "implement", "integrate",
	"migrate", "performance", "security", "scalab", "trade-off",
	"tradeoff", "distributed", "concurrency", "prove", "derive",
}

var quickKeywords = []string{
	"define", "what is", "who is", "when did", "when was", "translate",
	"convert", "summarize", "tl;dr", "quick", "briefly", "one sentence",
}

var inquiryTerms = []string{
	"why", "how", "what if", "could", "would", "should", "compare",
	"versus", "vs",
}

var creativeMarkers = []string{
	"story", "poem", "poetry", "fiction", "lyrics", "song", "screenplay",
	"creative writing",
}

var codeLangKeywords = []string{
	"func ", "def ", "class ", "import ", "return ", "const ", "var ",
	"=>", "println", "console.log", "#include", "package ",
}

var errorVocabulary = []string{
	"error", "exception", "traceback", "stack trace", "panic", "undefined",
	"null pointer", "segfault", "nullpointerexception", "cannot read",
}

var structuredOutputRe = regexp.MustCompile(`\b(json|list|bullet|table|csv)\b`)

// codeSignals counts independent indicators that the query is about code.
func codeSignals(lower string) int {
	signals := 0
	if strings.Contains(lower, "```") {
		signals++
	}
	for _, kw := range codeLangKeywords {
		if strings.Contains(lower, kw) {
			signals++
			break
		}
	}
	braces := strings.Count(lower, "{") + strings.Count(lower, "}") +
		strings.Count(lower, "(") + strings.Count(lower, ")") +
		strings.Count(lower, ";")
	if braces >= 6 {
		signals++
	}
	for _, v := range errorVocabulary {
		if strings.Contains(lower, v) {
			signals++
			break
		}
	}
	return signals
}

func countMatches(lower string, bucket []string) int {
	n := 0
	for _, kw := range bucket {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

func countInquiryTerms(lower string) int {
	n := 0
	for _, term := range inquiryTerms {
		n += countWordOccurrences(lower, term)
	}
	return n
}

// countWordOccurrences counts term occurrences on word boundaries so "vs"
// does not match inside "versus".
func countWordOccurrences(lower, term string) int {
	n := 0
	idx := 0
	for {
		i := strings.Index(lower[idx:], term)
		if i < 0 {
			return n
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordChar(lower[start-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			n++
		}
		idx = end
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}

// complexityScore maps a query and its session context onto [0, 100].
func complexityScore(est *tokenizer.Estimator, query string, sessionTokens int) int {
	lower := strings.ToLower(query)
	queryTokens := est.Estimate(query)

	score := 50

	// Length bands, mutually exclusive.
	switch {
	case queryTokens < 20:
		score -= 20
	case queryTokens < 50:
		score -= 10
	case queryTokens > 500:
		score += 15
	case queryTokens > 200:
		score += 10
	}

	if add := 5 * countMatches(lower, complexKeywords); add > 25 {
		score += 25
	} else {
		score += add
	}
	if sub := 5 * countMatches(lower, quickKeywords); sub > 15 {
		score -= 15
	} else {
		score -= sub
	}

	switch inquiries := countInquiryTerms(lower); {
	case inquiries >= 3:
		score += 15
	case inquiries >= 2:
		score += 8
	}

	switch signals := codeSignals(lower); {
	case signals >= 3:
		score += 15
	case signals >= 2:
		score += 10
	}

	switch {
	case sessionTokens > 100_000:
		score += 10
	case sessionTokens > 50_000:
		score += 5
	}

	if queryTokens < 100 && structuredOutputRe.MatchString(lower) {
		score -= 10
	}

	for _, m := range creativeMarkers {
		if strings.Contains(lower, m) {
			if score < 50 {
				score = 50
			}
			if score > 65 {
				score = 65
			}
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}
