package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/middleware"
	"github.com/prismgw/prism/internal/services/conversation"
	"github.com/prismgw/prism/internal/services/debate"
	"github.com/prismgw/prism/internal/services/pricing"
	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/routing"
	"github.com/prismgw/prism/internal/services/tokenizer"
	"github.com/prismgw/prism/internal/services/video"
)

type fakeAdapter struct {
	mu       sync.Mutex
	provider registry.Provider
	text     string
	err      error
	calls    []*providers.CallRequest
}

func (f *fakeAdapter) Provider() registry.Provider { return f.provider }

func (f *fakeAdapter) CallStream(ctx context.Context, req *providers.CallRequest) (*providers.StreamHandle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	var body strings.Builder
	for _, chunk := range strings.SplitAfter(f.text, " ") {
		payload, _ := json.Marshal(map[string]string{"text": chunk})
		body.WriteString("data: " + string(payload) + "\n\n")
	}
	body.WriteString("data: [DONE]\n\n")

	return &providers.StreamHandle{
		Body: io.NopCloser(strings.NewReader(body.String())),
		ExtractDeltas: func(payload []byte) []string {
			var ev struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(payload, &ev); err != nil {
				return nil
			}
			return []string{ev.Text}
		},
		EffectiveModelID:       req.ModelID,
		EffectiveThinkingLevel: req.ThinkingLevel,
	}, nil
}

func (f *fakeAdapter) lastCall() *providers.CallRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

type fakeConversations struct {
	mu          sync.Mutex
	ownership   conversation.Ownership
	records     []conversation.MessageRecord
	tokenDeltas []int
}

func (f *fakeConversations) VerifyOwnership(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Ownership, error) {
	return f.ownership, nil
}

func (f *fakeConversations) IncrementTokens(ctx context.Context, conversationID uuid.UUID, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenDeltas = append(f.tokenDeltas, delta)
	return nil
}

func (f *fakeConversations) RecordMessage(ctx context.Context, rec conversation.MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeConversations) recorded() []conversation.MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]conversation.MessageRecord, len(f.records))
	copy(out, f.records)
	return out
}

type fakeVideos struct {
	artifacts []video.Artifact
}

func (f *fakeVideos) ListReadyFor(ctx context.Context, assetIDs []uuid.UUID, userID uuid.UUID) ([]video.Artifact, error) {
	return f.artifacts, nil
}

func allReady() routing.Readiness {
	return routing.Readiness{
		registry.ProviderAnthropic: {Enabled: true, CredentialsPresent: true},
		registry.ProviderOpenAI:    {Enabled: true, CredentialsPresent: true},
		registry.ProviderGoogle:    {Enabled: true, CredentialsPresent: true},
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			FunctionTimeout: 30 * time.Second,
			MaxQueryChars:   20000,
		},
		Debate: config.DebateConfig{
			Enabled:                true,
			AutoEnabled:            false,
			ComplexityThreshold:    85,
			WorkerMaxTokensGeneral: 900,
			WorkerMaxTokensCode:    1200,
			WorkerMaxTokensVideoUI: 1200,
		},
	}
}

type chatFixture struct {
	handler       *ChatHandler
	cfg           *config.Config
	adapters      map[registry.Provider]*fakeAdapter
	conversations *fakeConversations
	videos        *fakeVideos
	userID        uuid.UUID
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()

	cfg := testConfig()
	fakes := map[registry.Provider]*fakeAdapter{
		registry.ProviderAnthropic: {provider: registry.ProviderAnthropic, text: "primary answer"},
		registry.ProviderOpenAI:    {provider: registry.ProviderOpenAI, text: "challenger view"},
		registry.ProviderGoogle:    {provider: registry.ProviderGoogle, text: "synthesis view"},
	}
	adapters := make(map[registry.Provider]providers.Adapter, len(fakes))
	for p, a := range fakes {
		adapters[p] = a
	}

	estimator := tokenizer.NewEstimator()
	convs := &fakeConversations{ownership: conversation.Ownership{Exists: true, Owned: true, TotalTokens: 100}}
	vids := &fakeVideos{}

	handler := NewChatHandler(ChatHandlerConfig{
		Logger:        zap.NewNop(),
		Config:        cfg,
		Engine:        routing.NewEngine(estimator, zap.NewNop(), false),
		Estimator:     estimator,
		Costs:         pricing.NewEngine(estimator),
		Adapters:      adapters,
		Readiness:     allReady(),
		Conversations: convs,
		Videos:        vids,
		Debates:       debate.NewOrchestrator(adapters, cfg.Debate, zap.NewNop()),
	})

	return &chatFixture{
		handler:       handler,
		cfg:           cfg,
		adapters:      fakes,
		conversations: convs,
		videos:        vids,
		userID:        uuid.New(),
	}
}

func (f *chatFixture) request(body map[string]interface{}) map[string]interface{} {
	req := map[string]interface{}{
		"query":          "Summarize the main findings of the attached report",
		"conversationId": uuid.New().String(),
		"platform":       "web",
	}
	for k, v := range body {
		req[k] = v
	}
	return req
}

func (f *chatFixture) post(t *testing.T, body map[string]interface{}, authenticated bool) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/stream", bytes.NewReader(raw))
	if authenticated {
		req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDContextKey, f.userID))
	}

	rec := httptest.NewRecorder()
	f.handler.Stream(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestStreamRequiresAuth(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, f.request(nil), false)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)
}

func TestStreamValidation(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"non-uuid conversation id", map[string]interface{}{"conversationId": "not-a-uuid"}},
		{"unknown platform", map[string]interface{}{"platform": "desktop"}},
		{"empty query without attachments", map[string]interface{}{"query": "   "}},
		{"oversized query", map[string]interface{}{"query": strings.Repeat("a", 20001)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			rec := f.post(t, f.request(tt.body), true)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "bad_request", decodeError(t, rec).Type)
		})
	}
}

func TestStreamRejectsForeignConversation(t *testing.T) {
	f := newChatFixture(t)
	f.conversations.ownership = conversation.Ownership{Exists: true, Owned: false}

	rec := f.post(t, f.request(nil), true)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decodeError(t, rec).Type)
}

func TestStreamHappyPath(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, f.request(map[string]interface{}{"modelOverride": "sonnet-4.6"}), true)

	require.Equal(t, http.StatusOK, rec.Code)

	h := rec.Header()
	assert.Equal(t, "text/event-stream", h.Get("Content-Type"))
	assert.Equal(t, "sonnet-4.6", h.Get("X-Router-Model"))
	assert.Equal(t, "claude-sonnet-4-6", h.Get("X-Router-Model-Id"))
	assert.Equal(t, "anthropic", h.Get("X-Provider"))
	assert.Equal(t, "sonnet-4.6", h.Get("X-Model-Override"))
	assert.Equal(t, "manual-override", h.Get("X-Router-Rationale"))
	assert.NotEmpty(t, h.Get("X-Complexity-Score"))
	assert.Equal(t, "n/a", h.Get("X-Gemini-Thinking-Level"))
	assert.Equal(t, "0", h.Get("X-Memory-Hits"))
	assert.Equal(t, "0", h.Get("X-Memory-Tokens"))
	assert.Regexp(t, `^\d+\.\d{6}$`, h.Get("X-Cost-Estimate-USD"))
	assert.Equal(t, pricing.Version, h.Get("X-Cost-Pricing-Version"))
	assert.Empty(t, h.Get("X-Debate-Mode"))

	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, `"type":"content_block_delta"`))
	assert.Equal(t, 1, strings.Count(body, "data: [DONE]"))

	records := f.conversations.recorded()
	require.Len(t, records, 2)
	assert.Equal(t, "user", records[0].Role)
	assert.Equal(t, "assistant", records[1].Role)
	assert.Equal(t, "primary answer", records[1].Content)
	assert.Equal(t, "sonnet-4.6", records[1].ModelUsed)
	require.Len(t, f.conversations.tokenDeltas, 1)
	assert.Positive(t, f.conversations.tokenDeltas[0])
}

func TestStreamUnrecognizedOverride(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, f.request(map[string]interface{}{"modelOverride": "mystery-model"}), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Type)
}

func TestStreamOverrideToUnreadyProvider(t *testing.T) {
	f := newChatFixture(t)
	f.handler.readiness = routing.Readiness{
		registry.ProviderOpenAI: {Enabled: true, CredentialsPresent: true},
	}

	rec := f.post(t, f.request(map[string]interface{}{"modelOverride": "sonnet-4.6"}), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "provider_unavailable", decodeError(t, rec).Type)
}

func TestStreamVideoNotReady(t *testing.T) {
	f := newChatFixture(t)
	f.videos.artifacts = nil

	rec := f.post(t, f.request(map[string]interface{}{
		"videoAssetIds": []string{uuid.New().String(), uuid.New().String()},
	}), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "video_not_ready", decodeError(t, rec).Type)
}

func TestStreamLiteModeIgnoresVideoAssets(t *testing.T) {
	f := newChatFixture(t)
	f.handler.videos = nil

	rec := f.post(t, f.request(map[string]interface{}{
		"modelOverride": "sonnet-4.6",
		"videoAssetIds": []string{uuid.New().String()},
	}), true)

	require.Equal(t, http.StatusOK, rec.Code)
	// Without an artifact store the request routes on text alone.
	assert.Equal(t, "sonnet-4.6", rec.Header().Get("X-Router-Model"))
	assert.Equal(t, 1, strings.Count(rec.Body.String(), "data: [DONE]"))
}

func TestStreamUpstreamError(t *testing.T) {
	f := newChatFixture(t)
	f.adapters[registry.ProviderAnthropic].err = &providers.UpstreamError{
		Provider:   registry.ProviderAnthropic,
		StatusCode: 500,
		Details:    "model overloaded",
	}

	rec := f.post(t, f.request(map[string]interface{}{"modelOverride": "sonnet-4.6"}), true)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	e := decodeError(t, rec)
	assert.Equal(t, "upstream_error", e.Type)
	assert.Equal(t, "anthropic", e.Provider)
	assert.Equal(t, "model overloaded", e.Details)
}

func TestStreamExplicitDebate(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, f.request(map[string]interface{}{
		"modelOverride": "sonnet-4.6",
		"mode":          "debate",
		"debateProfile": "general",
	}), true)

	require.Equal(t, http.StatusOK, rec.Code)

	h := rec.Header()
	assert.Equal(t, "true", h.Get("X-Debate-Mode"))
	assert.Equal(t, "general", h.Get("X-Debate-Profile"))
	assert.Equal(t, "explicit", h.Get("X-Debate-Trigger"))
	assert.Equal(t, "debate:general", h.Get("X-Model-Override"))

	// The primary model receives the synthesized prompt, not the raw query.
	call := f.adapters[registry.ProviderAnthropic].lastCall()
	require.NotNil(t, call)
	last := call.Messages[len(call.Messages)-1]
	assert.Contains(t, last.Content, "TEAM DEBATE NOTES")
	assert.Contains(t, last.Content, "challenger view")
}

func TestStreamDebateUnknownProfile(t *testing.T) {
	f := newChatFixture(t)

	rec := f.post(t, f.request(map[string]interface{}{
		"mode":          "debate",
		"debateProfile": "courtroom",
	}), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decodeError(t, rec).Type)
}

func TestStreamDebateDisabled(t *testing.T) {
	f := newChatFixture(t)
	f.cfg.Debate.Enabled = false

	rec := f.post(t, f.request(map[string]interface{}{
		"mode":          "debate",
		"debateProfile": "general",
	}), true)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "disabled")
}

func TestStreamThinkingLevelHeader(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		want      string
	}{
		{"explicit low", "low", "low"},
		{"default high", "", "high"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newChatFixture(t)
			rec := f.post(t, f.request(map[string]interface{}{
				"modelOverride":            "gemini-3-flash",
				"geminiFlashThinkingLevel": tt.requested,
			}), true)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Get("X-Gemini-Thinking-Level"))
		})
	}
}
