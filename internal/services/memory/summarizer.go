package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/models"
	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/sse"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

const (
	// Debounce gates: summarize when either enough wall-clock time or
	// enough new tokens accumulated since the last pass.
	summarizeInterval   = 10 * time.Minute
	summarizeTokenDelta = 2200

	// Window gates on the fetched messages themselves.
	minWindowMessages     = 2
	minTranscriptTokens   = 220
	summarizeWindowLimit  = 24
	summarizeCallTimeout  = 15 * time.Second
	summarizeMaxChars     = 1200
	maxSummaryTags        = 8
	summarizeBudgetTokens = 512
)

const summaryPrompt = `Extract durable user memory from this conversation window.
Write 2-4 short sentences capturing stable facts about the user: preferences,
ongoing projects, recurring topics, constraints. Skip pleasantries and
one-off details. Respond with the summary only.`

// Summarizer runs the asynchronous write-back path: after a response
// completes it decides whether the conversation window warrants a new
// memory row and, if so, asks the cheapest ready provider for a summary.
type Summarizer struct {
	store     Store
	adapters  []providers.Adapter
	estimator *tokenizer.Estimator
	logger    *zap.Logger
	now       func() time.Time
}

func NewSummarizer(store Store, adapters []providers.Adapter, estimator *tokenizer.Estimator, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		store:     store,
		adapters:  adapters,
		estimator: estimator,
		logger:    logger,
		now:       time.Now,
	}
}

// summaryTiers maps each provider in the fallback ladder to the cheap
// tier used for summarization calls.
var summaryTiers = map[registry.Provider]registry.Tier{
	registry.ProviderOpenAI:    registry.TierGPTMini,
	registry.ProviderAnthropic: registry.TierHaiku,
	registry.ProviderGoogle:    registry.TierGeminiFlash,
}

// MaybeSummarize is fired as a detached task after a response completes.
// Every failure path logs and returns; summarization must never surface
// an error to the request that triggered it.
func (s *Summarizer) MaybeSummarize(ctx context.Context, conversationID, userID uuid.UUID, totalTokens int) {
	if s.store == nil || len(s.adapters) == 0 {
		return
	}

	state, err := s.store.GetState(ctx, conversationID)
	if err != nil {
		s.logger.Warn("failed to load memory state", zap.Error(err))
		return
	}

	timeGate := true
	tokenGate := true
	var sinceMessage *time.Time
	if state != nil {
		if state.LastSummarizedAt != nil {
			timeGate = s.now().Sub(*state.LastSummarizedAt) >= summarizeInterval
		}
		tokenGate = totalTokens-state.LastSummarizedTotalTokens >= summarizeTokenDelta
		sinceMessage = state.LastSummarizedMessageCreated
	}
	if !timeGate && !tokenGate {
		return
	}

	messages, err := s.store.ListMessagesSince(ctx, conversationID, sinceMessage, summarizeWindowLimit)
	if err != nil {
		s.logger.Warn("failed to load summarization window", zap.Error(err))
		return
	}
	if len(messages) < minWindowMessages {
		return
	}

	transcript := renderTranscript(messages)
	if s.estimator.Estimate(transcript) < minTranscriptTokens && !timeGate {
		return
	}

	summary, err := s.summarize(ctx, transcript)
	if err != nil {
		s.logger.Warn("memory summarization failed", zap.Error(err))
		return
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return
	}

	windowEnd := messages[len(messages)-1].CreatedAt
	tags := ExtractKeywords(summary)
	if len(tags) > maxSummaryTags {
		tags = tags[:maxSummaryTags]
	}
	tagsJSON, _ := json.Marshal(tags)

	row := &models.UserMemory{
		UserID:            userID,
		ConversationID:    &conversationID,
		SourceWindowEndAt: windowEnd,
		SummaryText:       summary,
		Tags:              tagsJSON,
	}
	if err := s.store.UpsertMemory(ctx, row); err != nil {
		s.logger.Warn("failed to upsert memory", zap.Error(err))
		return
	}

	now := s.now()
	if err := s.store.UpsertState(ctx, &models.ConversationMemoryState{
		ConversationID:               conversationID,
		UserID:                       userID,
		LastSummarizedAt:             &now,
		LastSummarizedMessageCreated: &windowEnd,
		LastSummarizedTotalTokens:    totalTokens,
		UpdatedAt:                    now,
	}); err != nil {
		s.logger.Warn("failed to upsert memory state", zap.Error(err))
	}
}

// summarize walks the adapter ladder until one call succeeds.
func (s *Summarizer) summarize(ctx context.Context, transcript string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, summarizeCallTimeout)
	defer cancel()

	prompt := summaryPrompt + "\n\n" + transcript

	var lastErr error
	for _, adapter := range s.adapters {
		tier, ok := summaryTiers[adapter.Provider()]
		if !ok {
			continue
		}
		entry := registry.MustLookup(tier)

		handle, err := adapter.CallStream(callCtx, &providers.CallRequest{
			ModelID:   entry.ProviderModelID,
			BudgetCap: summarizeBudgetTokens,
			Messages:  []providers.Message{{Role: "user", Content: prompt}},
		})
		if err != nil {
			lastErr = err
			continue
		}

		text, err := sse.CollectText(callCtx, handle, summarizeMaxChars)
		if err != nil {
			lastErr = err
			continue
		}
		return text, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no provider available for summarization")
	}
	return "", lastErr
}

func renderTranscript(messages []models.ChatMessage) string {
	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(m.Role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
