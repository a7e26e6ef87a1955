package tokenizer

import (
	"container/list"
	"math"
	"strings"
	"sync"
	"unicode/utf8"
)

// ImageTokens is the flat per-image token weight applied on top of the
// text estimate.
const ImageTokens = 1600

const memoCapacity = 100

type memoEntry struct {
	key    string
	tokens int
}

// Estimator computes budget-grade token counts with a deterministic
// word+char heuristic. Counts are memoized by exact string in a small LRU;
// callers must tolerate eviction.
type Estimator struct {
	mu    sync.Mutex
	order *list.List
	memo  map[string]*list.Element
}

func NewEstimator() *Estimator {
	return &Estimator{
		order: list.New(),
		memo:  make(map[string]*list.Element, memoCapacity),
	}
}

// Estimate returns ceil((words + chars/4) / 2) for the given text.
// Empty or whitespace-only input yields 0; the result is never negative.
func (e *Estimator) Estimate(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	e.mu.Lock()
	if el, ok := e.memo[text]; ok {
		e.order.MoveToFront(el)
		tokens := el.Value.(*memoEntry).tokens
		e.mu.Unlock()
		return tokens
	}
	e.mu.Unlock()

	words := len(strings.Fields(text))
	chars := utf8.RuneCountInString(text)
	tokens := int(math.Ceil((float64(words) + float64(chars)/4.0) / 2.0))
	if tokens < 0 {
		tokens = 0
	}

	e.mu.Lock()
	e.memo[text] = e.order.PushFront(&memoEntry{key: text, tokens: tokens})
	if e.order.Len() > memoCapacity {
		oldest := e.order.Back()
		e.order.Remove(oldest)
		delete(e.memo, oldest.Value.(*memoEntry).key)
	}
	e.mu.Unlock()

	return tokens
}

// EstimateWithImages adds the flat image weight to the text estimate.
func (e *Estimator) EstimateWithImages(text string, imageCount int) int {
	if imageCount < 0 {
		imageCount = 0
	}
	return e.Estimate(text) + ImageTokens*imageCount
}
