package memory

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/models"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

type fakeStore struct {
	memories []models.UserMemory
	messages []models.ChatMessage
	state    *models.ConversationMemoryState

	upsertedMemories []models.UserMemory
	upsertedStates   []models.ConversationMemoryState
	listErr          error
}

func (f *fakeStore) ListRecent(_ context.Context, _ uuid.UUID, limit int) ([]models.UserMemory, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.memories) > limit {
		return f.memories[:limit], nil
	}
	return f.memories, nil
}

func (f *fakeStore) UpsertMemory(_ context.Context, row *models.UserMemory) error {
	f.upsertedMemories = append(f.upsertedMemories, *row)
	return nil
}

func (f *fakeStore) GetState(_ context.Context, _ uuid.UUID) (*models.ConversationMemoryState, error) {
	return f.state, nil
}

func (f *fakeStore) UpsertState(_ context.Context, row *models.ConversationMemoryState) error {
	f.upsertedStates = append(f.upsertedStates, *row)
	return nil
}

func (f *fakeStore) ListMessagesSince(_ context.Context, _ uuid.UUID, since *time.Time, limit int) ([]models.ChatMessage, error) {
	var out []models.ChatMessage
	for _, m := range f.messages {
		if since != nil && !m.CreatedAt.After(*since) {
			continue
		}
		out = append(out, m)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func memoryRow(summary string, tags []string, age time.Duration) models.UserMemory {
	tagsJSON, _ := json.Marshal(tags)
	m := models.UserMemory{SummaryText: summary, Tags: tagsJSON}
	m.CreatedAt = time.Now().Add(-age)
	return m
}

func TestExtractKeywords(t *testing.T) {
	kws := ExtractKeywords("Why does the Postgres query planner choose a seq-scan for THIS index?!")
	assert.Contains(t, kws, "postgres")
	assert.Contains(t, kws, "query")
	assert.Contains(t, kws, "planner")
	assert.Contains(t, kws, "index")
	assert.NotContains(t, kws, "the")  // stop word
	assert.NotContains(t, kws, "this") // stop word
	assert.NotContains(t, kws, "a")    // too short
}

func TestExtractKeywordsCap(t *testing.T) {
	var words []string
	for i := 0; i < 40; i++ {
		words = append(words, strings.Repeat(string(rune('a'+i%26)), 3+i%4)+"x")
	}
	kws := ExtractKeywords(strings.Join(words, " "))
	assert.LessOrEqual(t, len(kws), 20)
}

func TestFetchRelevantRanksByKeywordOverlap(t *testing.T) {
	store := &fakeStore{memories: []models.UserMemory{
		memoryRow("User prefers dark roast coffee", []string{"coffee"}, time.Hour),
		memoryRow("Works on a Kubernetes migration project", []string{"kubernetes", "infra"}, 2*time.Hour),
		memoryRow("Asked about sourdough baking", []string{"baking"}, 3*time.Hour),
	}}
	r := NewRetriever(store, tokenizer.NewEstimator(), zap.NewNop())

	res := r.FetchRelevant(context.Background(), uuid.New(), "How should I plan the kubernetes migration rollout?")
	require.NotEmpty(t, res.Block)
	assert.Contains(t, res.Block, "Kubernetes migration")
	assert.NotContains(t, res.Block, "sourdough")
	assert.True(t, strings.HasPrefix(res.Block, "### Long-Term User Memory"))
	assert.True(t, strings.HasSuffix(res.Block, "### End Memory"))
	assert.Equal(t, 1, res.Hits)
	assert.Positive(t, res.Tokens)
}

func TestFetchRelevantFallsBackToMostRecent(t *testing.T) {
	store := &fakeStore{memories: []models.UserMemory{
		memoryRow("Most recent note", nil, time.Hour),
		memoryRow("Older note", nil, 2*time.Hour),
	}}
	r := NewRetriever(store, tokenizer.NewEstimator(), zap.NewNop())

	res := r.FetchRelevant(context.Background(), uuid.New(), "zzz qqq completely unrelated")
	assert.Equal(t, 1, res.Hits)
	assert.Contains(t, res.Block, "Most recent note")
}

func TestFetchRelevantDegradesSilently(t *testing.T) {
	store := &fakeStore{listErr: assert.AnError}
	r := NewRetriever(store, tokenizer.NewEstimator(), zap.NewNop())

	res := r.FetchRelevant(context.Background(), uuid.New(), "anything")
	assert.Equal(t, Result{}, res)
}

func TestFetchRelevantTruncatesBlock(t *testing.T) {
	long := strings.Repeat("kubernetes cluster details ", 40)
	store := &fakeStore{memories: []models.UserMemory{
		memoryRow(long, nil, time.Hour),
		memoryRow(long, nil, 2*time.Hour),
		memoryRow(long, nil, 3*time.Hour),
	}}
	r := NewRetriever(store, tokenizer.NewEstimator(), zap.NewNop())

	res := r.FetchRelevant(context.Background(), uuid.New(), "kubernetes cluster")
	assert.LessOrEqual(t, len(res.Block), 1500)
}

func TestRenderBlockTruncatesOnRuneBoundary(t *testing.T) {
	// Both parities: one of the two cap positions lands inside a
	// two-byte rune, which must not be split.
	for _, prefix := range []string{"", "a"} {
		block := renderBlock([]models.UserMemory{
			{SummaryText: prefix + strings.Repeat("é", 1200)},
		})
		assert.LessOrEqual(t, len(block), 1500)
		assert.True(t, utf8.ValidString(block))
	}
}

func TestAugmentQuery(t *testing.T) {
	assert.Equal(t, "plain", AugmentQuery("", "plain"))

	got := AugmentQuery("### Long-Term User Memory\n- x\n### End Memory", "plain")
	assert.True(t, strings.HasSuffix(got, "\n\nCurrent request:\nplain"))
}
