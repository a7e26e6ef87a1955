package memory

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/models"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

const (
	maxRecentMemories = 24
	maxKeywords       = 20
	topMemories       = 3
	maxBlockChars     = 1500

	blockHeader = "### Long-Term User Memory"
	blockFooter = "### End Memory"
)

// Weights for keyword hits against a memory row.
const (
	summaryHitWeight = 2
	tagHitWeight     = 3
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "have": {}, "this": {}, "that": {},
	"with": {}, "from": {}, "they": {}, "will": {}, "what": {}, "when": {},
	"make": {}, "like": {}, "time": {}, "just": {}, "about": {}, "into": {},
	"than": {}, "them": {}, "then": {}, "some": {}, "could": {}, "would": {},
	"should": {}, "there": {}, "their": {}, "which": {}, "your": {},
	"please": {}, "help": {},
}

// Result is one retrieval pass: the injectable context block plus the
// counters surfaced in the X-Memory-* headers.
type Result struct {
	Block  string
	Hits   int
	Tokens int
}

// Retriever ranks stored memories against the current query and renders
// the bounded context block.
type Retriever struct {
	store     Store
	estimator *tokenizer.Estimator
	logger    *zap.Logger
}

func NewRetriever(store Store, estimator *tokenizer.Estimator, logger *zap.Logger) *Retriever {
	return &Retriever{store: store, estimator: estimator, logger: logger}
}

// FetchRelevant pulls recent memories, scores them by keyword overlap and
// returns the context block. Retrieval failures degrade to an empty
// result; the request continues without memory.
func (r *Retriever) FetchRelevant(ctx context.Context, userID uuid.UUID, query string) Result {
	if r.store == nil {
		return Result{}
	}

	memories, err := r.store.ListRecent(ctx, userID, maxRecentMemories)
	if err != nil {
		r.logger.Warn("memory retrieval failed", zap.Error(err))
		return Result{}
	}
	if len(memories) == 0 {
		return Result{}
	}

	selected := rank(memories, ExtractKeywords(query))
	if len(selected) == 0 {
		return Result{}
	}

	block := renderBlock(selected)
	return Result{
		Block:  block,
		Hits:   len(selected),
		Tokens: r.estimator.Estimate(block),
	}
}

// AugmentQuery prepends the memory block to the user query. An empty
// block returns the query unchanged.
func AugmentQuery(block, query string) string {
	if block == "" {
		return query
	}
	return block + "\n\nCurrent request:\n" + query
}

type scoredMemory struct {
	memory models.UserMemory
	score  int
}

// rank keeps the top scoring memories; when nothing scores, the single
// most recent row is kept so returning users always get some continuity.
func rank(memories []models.UserMemory, keywords []string) []models.UserMemory {
	scored := make([]scoredMemory, 0, len(memories))
	for _, m := range memories {
		s := scoreMemory(m, keywords)
		if s > 0 {
			scored = append(scored, scoredMemory{memory: m, score: s})
		}
	}

	if len(scored) == 0 {
		return []models.UserMemory{memories[0]}
	}

	// Insertion sort by score descending; input is at most 24 rows.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].score > scored[j-1].score; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	n := len(scored)
	if n > topMemories {
		n = topMemories
	}
	out := make([]models.UserMemory, n)
	for i := 0; i < n; i++ {
		out[i] = scored[i].memory
	}
	return out
}

func scoreMemory(m models.UserMemory, keywords []string) int {
	summary := strings.ToLower(m.SummaryText)
	tags := decodeTags(m.Tags)

	score := 0
	for _, kw := range keywords {
		if strings.Contains(summary, kw) {
			score += summaryHitWeight
		}
		for _, tag := range tags {
			if strings.Contains(tag, kw) {
				score += tagHitWeight
				break
			}
		}
	}
	return score
}

func decodeTags(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil
	}
	for i, t := range tags {
		tags[i] = strings.ToLower(t)
	}
	return tags
}

func renderBlock(memories []models.UserMemory) string {
	var sb strings.Builder
	sb.WriteString(blockHeader)
	sb.WriteString("\n")
	for _, m := range memories {
		sb.WriteString("- ")
		sb.WriteString(m.SummaryText)
		sb.WriteString("\n")
	}
	sb.WriteString(blockFooter)

	block := sb.String()
	if len(block) > maxBlockChars {
		// Cut on a rune boundary so a multibyte summary never leaks
		// invalid UTF-8 into the prompt.
		cut := maxBlockChars
		for cut > 0 && !utf8.RuneStart(block[cut]) {
			cut--
		}
		block = block[:cut]
	}
	return block
}

// ExtractKeywords lowercases the text, strips punctuation and keeps up to
// 20 non-stop-word tokens of length >= 3.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, maxKeywords)
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		keywords = append(keywords, f)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
