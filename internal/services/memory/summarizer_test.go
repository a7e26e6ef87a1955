package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/models"
	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

// fakeAdapter streams a fixed summary as a single canonical-ish event.
type fakeAdapter struct {
	provider registry.Provider
	summary  string
	err      error
	calls    int
}

func (a *fakeAdapter) Provider() registry.Provider { return a.provider }

func (a *fakeAdapter) CallStream(_ context.Context, _ *providers.CallRequest) (*providers.StreamHandle, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	body := fmt.Sprintf("data: {\"text\":%q}\n\ndata: [DONE]\n\n", a.summary)
	return &providers.StreamHandle{
		Body: io.NopCloser(strings.NewReader(body)),
		ExtractDeltas: func(payload []byte) []string {
			var ev struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(payload, &ev); err != nil || ev.Text == "" {
				return nil
			}
			return []string{ev.Text}
		},
	}, nil
}

func longMessages(n int) []models.ChatMessage {
	msgs := make([]models.ChatMessage, n)
	base := time.Now().Add(-time.Hour)
	for i := range msgs {
		msgs[i] = models.ChatMessage{
			Role:    []string{"user", "assistant"}[i%2],
			Content: strings.Repeat("the user is migrating a large postgres database to a new region ", 10),
		}
		msgs[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
	}
	return msgs
}

func TestMaybeSummarizeWritesMemoryAndState(t *testing.T) {
	store := &fakeStore{messages: longMessages(4)}
	adapter := &fakeAdapter{provider: registry.ProviderOpenAI, summary: "User is migrating a postgres database across regions."}
	s := NewSummarizer(store, []providers.Adapter{adapter}, tokenizer.NewEstimator(), zap.NewNop())

	convID, userID := uuid.New(), uuid.New()
	s.MaybeSummarize(context.Background(), convID, userID, 5000)

	require.Len(t, store.upsertedMemories, 1)
	mem := store.upsertedMemories[0]
	assert.Equal(t, userID, mem.UserID)
	assert.Equal(t, convID, *mem.ConversationID)
	assert.Contains(t, mem.SummaryText, "postgres")
	assert.Equal(t, store.messages[3].CreatedAt, mem.SourceWindowEndAt)

	require.Len(t, store.upsertedStates, 1)
	state := store.upsertedStates[0]
	assert.Equal(t, 5000, state.LastSummarizedTotalTokens)
	assert.NotNil(t, state.LastSummarizedAt)
}

func TestMaybeSummarizeSkipsWhenGatesClosed(t *testing.T) {
	recent := time.Now().Add(-time.Minute)
	store := &fakeStore{
		messages: longMessages(4),
		state: &models.ConversationMemoryState{
			LastSummarizedAt:          &recent,
			LastSummarizedTotalTokens: 5000,
		},
	}
	adapter := &fakeAdapter{provider: registry.ProviderOpenAI, summary: "unused"}
	s := NewSummarizer(store, []providers.Adapter{adapter}, tokenizer.NewEstimator(), zap.NewNop())

	// 5000 -> 6000 tokens is under the 2200 delta and the time gate is
	// only a minute old.
	s.MaybeSummarize(context.Background(), uuid.New(), uuid.New(), 6000)
	assert.Zero(t, adapter.calls)
	assert.Empty(t, store.upsertedMemories)
}

func TestMaybeSummarizeSkipsTinyWindows(t *testing.T) {
	store := &fakeStore{messages: longMessages(1)}
	adapter := &fakeAdapter{provider: registry.ProviderOpenAI, summary: "unused"}
	s := NewSummarizer(store, []providers.Adapter{adapter}, tokenizer.NewEstimator(), zap.NewNop())

	s.MaybeSummarize(context.Background(), uuid.New(), uuid.New(), 5000)
	assert.Zero(t, adapter.calls)
}

func TestMaybeSummarizeFallsThroughProviderLadder(t *testing.T) {
	store := &fakeStore{messages: longMessages(4)}
	broken := &fakeAdapter{provider: registry.ProviderOpenAI, err: assert.AnError}
	working := &fakeAdapter{provider: registry.ProviderAnthropic, summary: "User prefers concise answers."}
	s := NewSummarizer(store, []providers.Adapter{broken, working}, tokenizer.NewEstimator(), zap.NewNop())

	s.MaybeSummarize(context.Background(), uuid.New(), uuid.New(), 5000)
	assert.Equal(t, 1, broken.calls)
	assert.Equal(t, 1, working.calls)
	require.Len(t, store.upsertedMemories, 1)
}

func TestMaybeSummarizeTagsFromSummary(t *testing.T) {
	store := &fakeStore{messages: longMessages(4)}
	adapter := &fakeAdapter{provider: registry.ProviderOpenAI, summary: "User runs nightly spark jobs against the warehouse cluster."}
	s := NewSummarizer(store, []providers.Adapter{adapter}, tokenizer.NewEstimator(), zap.NewNop())

	s.MaybeSummarize(context.Background(), uuid.New(), uuid.New(), 5000)
	require.Len(t, store.upsertedMemories, 1)

	var tags []string
	require.NoError(t, json.Unmarshal(store.upsertedMemories[0].Tags, &tags))
	assert.Contains(t, tags, "spark")
	assert.LessOrEqual(t, len(tags), 8)
}
