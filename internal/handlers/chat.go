package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/middleware"
	"github.com/prismgw/prism/internal/services/conversation"
	"github.com/prismgw/prism/internal/services/debate"
	"github.com/prismgw/prism/internal/services/memory"
	"github.com/prismgw/prism/internal/services/pricing"
	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/routing"
	"github.com/prismgw/prism/internal/services/sse"
	"github.com/prismgw/prism/internal/services/tokenizer"
	"github.com/prismgw/prism/internal/services/video"
)

// chatRequest is the wire shape of POST /v1/chat/stream.
type chatRequest struct {
	Query                    string                        `json:"query"`
	ConversationID           string                        `json:"conversationId"`
	Platform                 string                        `json:"platform"`
	History                  []providers.Message           `json:"history"`
	Images                   []providers.ImageAttachment   `json:"images,omitempty"`
	VideoAssetIDs            []string                      `json:"videoAssetIds,omitempty"`
	ModelOverride            string                        `json:"modelOverride,omitempty"`
	GeminiFlashThinkingLevel string                        `json:"geminiFlashThinkingLevel,omitempty"`
	Mode                     string                        `json:"mode,omitempty"`
	DebateProfile            string                        `json:"debateProfile,omitempty"`
}

// ChatHandler ties the core together: auth context, ownership, memory
// and video context injection, routing, optional debate, the provider
// call and the canonical SSE stream.
type ChatHandler struct {
	logger        *zap.Logger
	cfg           *config.Config
	engine        *routing.Engine
	estimator     *tokenizer.Estimator
	costs         *pricing.Engine
	adapters      map[registry.Provider]providers.Adapter
	readiness     routing.Readiness
	conversations conversation.Store
	retriever     *memory.Retriever
	summarizer    *memory.Summarizer
	videos        video.Store
	debates       *debate.Orchestrator
}

type ChatHandlerConfig struct {
	Logger        *zap.Logger
	Config        *config.Config
	Engine        *routing.Engine
	Estimator     *tokenizer.Estimator
	Costs         *pricing.Engine
	Adapters      map[registry.Provider]providers.Adapter
	Readiness     routing.Readiness
	Conversations conversation.Store // nil in lite mode
	Retriever     *memory.Retriever  // nil in lite mode
	Summarizer    *memory.Summarizer // nil in lite mode
	Videos        video.Store        // nil in lite mode
	Debates       *debate.Orchestrator
}

func NewChatHandler(cfg ChatHandlerConfig) *ChatHandler {
	return &ChatHandler{
		logger:        cfg.Logger,
		cfg:           cfg.Config,
		engine:        cfg.Engine,
		estimator:     cfg.Estimator,
		costs:         cfg.Costs,
		adapters:      cfg.Adapters,
		readiness:     cfg.Readiness,
		conversations: cfg.Conversations,
		retriever:     cfg.Retriever,
		summarizer:    cfg.Summarizer,
		videos:        cfg.Videos,
		debates:       cfg.Debates,
	}
}

// Stream handles one chat request end to end and responds with the
// canonical SSE stream plus the stable header contract.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		sendError(w, http.StatusUnauthorized, errUnauthorized, "authentication required")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, errBadRequest, "invalid request body: "+err.Error())
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		sendError(w, http.StatusBadRequest, errBadRequest, "conversationId must be a UUID")
		return
	}
	if req.Platform != "web" && req.Platform != "mobile" {
		sendError(w, http.StatusBadRequest, errBadRequest, "platform must be web or mobile")
		return
	}
	if len(req.Query) > h.cfg.Server.MaxQueryChars {
		sendError(w, http.StatusBadRequest, errBadRequest,
			fmt.Sprintf("query exceeds %d characters", h.cfg.Server.MaxQueryChars))
		return
	}
	if strings.TrimSpace(req.Query) == "" && len(req.Images) == 0 && len(req.VideoAssetIDs) == 0 {
		sendError(w, http.StatusBadRequest, errBadRequest, "query is required without attachments")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.cfg.Server.FunctionTimeout)
	defer cancel()

	// Conversation ownership and running session size.
	sessionTokens := 0
	if h.conversations != nil {
		owner, err := h.conversations.VerifyOwnership(ctx, conversationID, userID)
		if err != nil {
			h.logger.Error("ownership check failed", zap.Error(err))
			sendError(w, http.StatusInternalServerError, errServerMisconfig, "conversation lookup failed")
			return
		}
		if !owner.Exists || !owner.Owned {
			sendError(w, http.StatusForbidden, errForbidden, "conversation does not belong to the caller")
			return
		}
		sessionTokens = owner.TotalTokens
	}

	// Video context. Every referenced asset must be ready.
	var artifacts []video.Artifact
	if len(req.VideoAssetIDs) > 0 {
		assetIDs := make([]uuid.UUID, 0, len(req.VideoAssetIDs))
		for _, raw := range req.VideoAssetIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				sendError(w, http.StatusBadRequest, errBadRequest, "videoAssetIds must be UUIDs")
				return
			}
			assetIDs = append(assetIDs, id)
		}

		if h.videos == nil {
			// Lite mode has no artifact store; video references degrade
			// to no-ops like the rest of the persistence layer.
			h.logger.Warn("video context unavailable, ignoring video asset references",
				zap.Int("count", len(assetIDs)))
		} else {
			artifacts, err = h.videos.ListReadyFor(ctx, assetIDs, userID)
			if err != nil {
				h.logger.Warn("video artifact lookup failed", zap.Error(err))
				artifacts = nil
			}
			if len(artifacts) < len(assetIDs) {
				sendError(w, http.StatusBadRequest, errVideoNotReady,
					(&video.ErrNotReady{Requested: len(assetIDs), Ready: len(artifacts)}).Error())
				return
			}
		}
	}

	// Memory retrieval degrades silently; the request continues without
	// context on any failure.
	var memRes memory.Result
	if h.retriever != nil {
		memRes = h.retriever.FetchRelevant(ctx, userID, req.Query)
	}
	augmented := memory.AugmentQuery(memRes.Block, req.Query)
	if block := video.ContextBlock(artifacts); block != "" {
		augmented = block + "\n\n" + augmented
	}
	sessionTokens += memRes.Tokens

	// Manual override. The normalizer itself never fails; an explicit
	// override string that resolves to nothing is a client error.
	override := routing.NormalizeOverride(req.ModelOverride)
	if req.ModelOverride != "" && !strings.EqualFold(req.ModelOverride, "auto") && override == "" {
		sendError(w, http.StatusBadRequest, errBadRequest, "unrecognized model override: "+req.ModelOverride)
		return
	}

	params := routing.Params{
		UserQuery:            augmented,
		CurrentSessionTokens: sessionTokens,
		Platform:             req.Platform,
		History:              req.History,
		Images:               req.Images,
		HasVideoAssets:       len(artifacts) > 0,
	}
	decision := h.engine.DetermineRoute(params, override)

	decision, err = routing.NormalizeAvailability(decision, h.readiness, sessionTokens)
	if err != nil {
		var unavailable *routing.ErrProviderUnavailable
		if errors.As(err, &unavailable) {
			sendError(w, http.StatusBadRequest, errProviderUnavailable, unavailable.Error())
			return
		}
		sendError(w, http.StatusInternalServerError, errServerMisconfig, err.Error())
		return
	}
	middleware.RouteDecisions.WithLabelValues(string(decision.ModelTier), decision.Rationale).Inc()

	// The user message is recorded before the response stream starts.
	queryTokens := h.estimator.Estimate(req.Query)
	if h.conversations != nil {
		if err := h.conversations.RecordMessage(ctx, conversation.MessageRecord{
			ConversationID: conversationID,
			Role:           "user",
			Content:        req.Query,
			TokenCount:     queryTokens,
		}); err != nil {
			h.logger.Warn("failed to record user message", zap.Error(err))
		}
	}

	messages := append(append([]providers.Message{}, req.History...), providers.Message{
		Role:    "user",
		Content: augmented,
	})

	debateOutcome := h.maybeDebate(ctx, w, &req, decision, artifacts)
	if debateOutcome == nil {
		return // response already written
	}
	if debateOutcome.ran {
		messages[len(messages)-1].Content = debate.BuildSynthesisQuery(augmented, debateOutcome.outputs)
	}

	// Pre-flight estimate over the final prompt, synthesized form
	// included. Challenger costs are not part of the estimate.
	estimate := h.costs.PreFlight(decision.ModelTier, joinContents(messages), len(req.Images), 0)

	call := &providers.CallRequest{
		ModelID:   decision.ProviderModelID,
		BudgetCap: decision.BudgetCap,
		Messages:  messages,
		Images:    req.Images,
	}
	if decision.ModelTier == registry.TierGeminiFlash {
		call.ThinkingLevel = thinkingLevel(req.GeminiFlashThinkingLevel)
	}

	adapter, ok := h.adapters[decision.Provider]
	if !ok {
		sendError(w, http.StatusInternalServerError, errServerMisconfig,
			"no adapter configured for provider "+string(decision.Provider))
		return
	}

	handle, err := adapter.CallStream(ctx, call)
	if err != nil {
		h.sendUpstreamError(w, ctx, decision.Provider, err)
		return
	}

	h.writeHeaders(w, decision, handle, estimate, memRes, override, debateOutcome)
	w.WriteHeader(http.StatusOK)

	sw := middleware.NewStreamingResponseWriter(w)
	var assistant strings.Builder

	pipeErr := sse.Pipe(ctx, handle.Body, handle.ExtractDeltas, sw, sse.Options{
		OnDelta: func(text string) { assistant.WriteString(text) },
		OnComplete: func() {
			h.finalize(conversationID, userID, decision, estimate, assistant.String(), queryTokens, sessionTokens)
		},
	})
	if pipeErr != nil {
		h.logger.Warn("stream terminated",
			zap.String("provider", string(decision.Provider)),
			zap.Error(pipeErr))
	}
}

// debateResult carries the orchestration outcome into header writing.
// A nil *debateResult from maybeDebate means an error response was
// already sent.
type debateResult struct {
	ran     bool
	profile debate.Profile
	trigger string
	outputs []debate.Output
}

func (h *ChatHandler) maybeDebate(ctx context.Context, w http.ResponseWriter, req *chatRequest, decision routing.Decision, artifacts []video.Artifact) *debateResult {
	none := &debateResult{}

	if h.debates == nil {
		return none
	}

	explicit := req.Mode == "debate"
	hasImages := len(req.Images) > 0
	hasVideo := len(artifacts) > 0

	var profile debate.Profile
	trigger := ""
	switch {
	case explicit:
		p, ok := debate.ParseProfile(req.DebateProfile)
		if !ok {
			sendError(w, http.StatusBadRequest, errBadRequest, "unknown debate profile: "+req.DebateProfile)
			return nil
		}
		if !h.cfg.Debate.Enabled {
			sendError(w, http.StatusBadRequest, errBadRequest, "debate mode is disabled")
			return nil
		}
		if err := debate.CheckEligibility(p, hasImages, hasVideo, true); err != nil {
			sendError(w, http.StatusBadRequest, errBadRequest, err.Error())
			return nil
		}
		profile, trigger = p, "explicit"

	case h.cfg.Debate.Enabled && h.cfg.Debate.AutoEnabled &&
		decision.ComplexityScore >= h.cfg.Debate.ComplexityThreshold:
		if debate.CheckEligibility(debate.ProfileGeneral, hasImages, hasVideo, false) != nil {
			return none
		}
		profile, trigger = debate.ProfileGeneral, "auto"

	default:
		return none
	}

	plan := debate.GetPlan(profile, decision.ModelTier, h.videoLadder())
	outputs := h.debates.Run(ctx, plan, req.Query)
	if outputs == nil {
		// Zero challengers produced output: silent fallback to the
		// normal single-provider path.
		return none
	}

	middleware.DebateRuns.WithLabelValues(string(profile), trigger).Inc()
	return &debateResult{ran: true, profile: profile, trigger: trigger, outputs: outputs}
}

func (h *ChatHandler) videoLadder() []registry.Tier {
	var ladder []registry.Tier
	for _, raw := range h.cfg.Debate.VideoUIModelLadder {
		if tier := routing.NormalizeOverride(raw); tier != "" {
			ladder = append(ladder, tier)
		}
	}
	return ladder
}

func (h *ChatHandler) writeHeaders(w http.ResponseWriter, decision routing.Decision, handle *providers.StreamHandle, estimate pricing.Estimate, memRes memory.Result, override registry.Tier, d *debateResult) {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")

	header.Set("X-Router-Model", string(decision.ModelTier))
	header.Set("X-Router-Model-Id", handle.EffectiveModelID)
	header.Set("X-Provider", string(decision.Provider))
	header.Set("X-Router-Rationale", decision.Rationale)
	header.Set("X-Complexity-Score", strconv.Itoa(decision.ComplexityScore))

	switch {
	case d.ran:
		header.Set("X-Model-Override", "debate:"+string(d.profile))
	case override != "":
		header.Set("X-Model-Override", string(override))
	default:
		header.Set("X-Model-Override", "auto")
	}

	thinking := handle.EffectiveThinkingLevel
	if thinking == "" || thinking == "none" {
		thinking = "n/a"
	}
	header.Set("X-Gemini-Thinking-Level", thinking)

	header.Set("X-Memory-Hits", strconv.Itoa(memRes.Hits))
	header.Set("X-Memory-Tokens", strconv.Itoa(memRes.Tokens))
	header.Set("X-Cost-Estimate-USD", fmt.Sprintf("%.6f", estimate.EstimatedUSD))
	header.Set("X-Cost-Pricing-Version", estimate.PricingVersion)

	// Debate headers are additive: absent entirely unless debate ran.
	if d.ran {
		header.Set("X-Debate-Mode", "true")
		header.Set("X-Debate-Profile", string(d.profile))
		header.Set("X-Debate-Trigger", d.trigger)
		header.Set("X-Debate-Model", string(decision.ModelTier))
		header.Set("X-Debate-Cost-Note", "partial")
	}
}

func (h *ChatHandler) sendUpstreamError(w http.ResponseWriter, ctx context.Context, provider registry.Provider, err error) {
	middleware.UpstreamErrors.WithLabelValues(string(provider)).Inc()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		sendError(w, http.StatusGatewayTimeout, errDeadlineExceeded, "request deadline exceeded")
		return
	}

	var upstream *providers.UpstreamError
	if errors.As(err, &upstream) {
		sendErrorDetail(w, http.StatusBadGateway, apiError{
			Message:  "upstream provider error",
			Type:     errUpstream,
			Provider: string(upstream.Provider),
			Details:  upstream.Details,
		})
		return
	}

	sendErrorDetail(w, http.StatusBadGateway, apiError{
		Message:  "upstream provider error",
		Type:     errUpstream,
		Provider: string(provider),
		Details:  err.Error(),
	})
}

// finalize runs after the stream terminates: the final cost is reconciled
// against the actual completion length, the assistant message is
// persisted, session counters advance and the memory summarizer fires as
// a detached task. The request context may already be gone, so this uses
// its own deadline.
func (h *ChatHandler) finalize(conversationID, userID uuid.UUID, decision routing.Decision, estimate pricing.Estimate, assistantText string, queryTokens, sessionTokens int) {
	assistantTokens := h.estimator.Estimate(assistantText)

	final := h.costs.Final(decision.ModelTier, pricing.Usage{
		PromptTokens:     estimate.PromptTokens,
		CompletionTokens: assistantTokens,
	})
	h.logger.Debug("request cost reconciled",
		zap.String("tier", string(decision.ModelTier)),
		zap.Float64("estimated_usd", estimate.EstimatedUSD),
		zap.Float64("final_usd", final.USD),
		zap.String("pricing_version", final.PricingVersion))

	if h.conversations == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.conversations.RecordMessage(ctx, conversation.MessageRecord{
		ConversationID: conversationID,
		Role:           "assistant",
		Content:        assistantText,
		TokenCount:     assistantTokens,
		ModelUsed:      string(decision.ModelTier),
	}); err != nil {
		h.logger.Warn("failed to record assistant message", zap.Error(err))
	}
	if err := h.conversations.IncrementTokens(ctx, conversationID, queryTokens+assistantTokens); err != nil {
		h.logger.Warn("failed to increment session tokens", zap.Error(err))
	}

	if h.summarizer != nil {
		total := sessionTokens + queryTokens + assistantTokens
		go func() {
			sumCtx, sumCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer sumCancel()
			h.summarizer.MaybeSummarize(sumCtx, conversationID, userID, total)
		}()
	}
}

func joinContents(messages []providers.Message) string {
	var sb strings.Builder
	for i, m := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.Content)
	}
	return sb.String()
}

func thinkingLevel(requested string) string {
	if strings.EqualFold(requested, "low") {
		return "low"
	}
	return "high"
}
