package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

func TestBudgetGateDailyQuota(t *testing.T) {
	gate := NewBudgetGate(2)
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	gate.now = func() time.Time { return day }
	gate.lastReset = day

	require.NoError(t, gate.Reserve())
	require.NoError(t, gate.Reserve())
	err := gate.Reserve()
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeRemote))
	assert.Equal(t, 0, gate.Remaining())
	assert.Equal(t, "Day: 2/2 requests", gate.GetStatus())

	day = day.Add(24 * time.Hour)
	assert.Equal(t, 2, gate.Remaining(), "counter rolls over at the day boundary")
	assert.NoError(t, gate.Reserve())
}

func TestBudgetGateUnlimited(t *testing.T) {
	var nilGate *BudgetGate
	assert.NoError(t, nilGate.Reserve())
	assert.Equal(t, -1, nilGate.Remaining())

	gate := NewBudgetGate(0)
	for i := 0; i < 50; i++ {
		require.NoError(t, gate.Reserve())
	}
	assert.Equal(t, "Day: unlimited", gate.GetStatus())
}

func TestOpenAIComplete(t *testing.T) {
	var got openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"content":"Save a little each week!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL}, NewBudgetGate(10))
	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "How do I save?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Save a little each week!", resp.Content)
	assert.Equal(t, 15, resp.TotalTokens)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 1)

	stats := p.GetUsageStats()
	assert.Equal(t, 1, stats.TotalRequests)
	assert.Equal(t, 15, stats.TotalTokens)
	assert.Equal(t, 9, stats.RemainingToday)
}

func TestOpenAIErrorStatusIsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", BaseURL: srv.URL}, nil)
	_, err := p.Complete(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeRemote))
	assert.Equal(t, 1, p.GetUsageStats().FailedRequests)
}

func TestOpenAIWithoutKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIConfig{}, nil)
	assert.False(t, p.IsAvailable())
	_, err := p.Complete(context.Background(), CompletionRequest{})
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeRemote))
}

type fakeModels struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model, f.contents, f.config = model, contents, config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{TotalTokenCount: 42},
	}
}

func TestGeminiMapsRoles(t *testing.T) {
	fake := &fakeModels{resp: textResponse("A piggy bank keeps coins safe.")}
	p := newGeminiProvider(fake, "gemini-2.5-flash", time.Second, NewBudgetGate(5))

	resp, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "be a dragon"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello!"},
			{Role: RoleUser, Content: "what is a piggy bank?"},
		},
		MaxTokens: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, "A piggy bank keeps coins safe.", resp.Content)
	assert.Equal(t, 42, resp.TotalTokens)
	assert.Equal(t, "gemini-2.5-flash", fake.model)
	require.Len(t, fake.contents, 3)
	assert.Equal(t, genai.RoleUser, fake.contents[0].Role)
	assert.Equal(t, genai.RoleModel, fake.contents[1].Role)
	require.NotNil(t, fake.config.SystemInstruction)
	assert.Equal(t, "be a dragon", fake.config.SystemInstruction.Parts[0].Text)
	assert.EqualValues(t, 200, fake.config.MaxOutputTokens)
}

func TestGeminiFailures(t *testing.T) {
	fake := &fakeModels{err: errors.New("unavailable")}
	p := newGeminiProvider(fake, "m", 0, nil)
	_, err := p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeRemote))

	fake.err, fake.resp = nil, textResponse("   ")
	_, err = p.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "q"}}})
	assert.Error(t, err, "blank replies are failures")
	assert.Equal(t, 2, p.GetUsageStats().FailedRequests)

	_, err = NewGeminiProvider(context.Background(), GeminiConfig{}, nil)
	assert.Error(t, err)
}

func TestBuildTutorMessages(t *testing.T) {
	history := []Message{{Role: RoleUser, Content: "hi"}, {Role: RoleAssistant, Content: "hello"}}
	msgs := BuildTutorMessages(&PetContext{Hunger: 40, Happiness: 70, Coins: "5.50", OpenTasks: 2}, history, "why save?")

	require.Len(t, msgs, 4)
	assert.Equal(t, RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "5.50 coins")
	assert.Equal(t, "why save?", msgs[3].Content)

	assert.Equal(t, TutorSystemPrompt, BuildTutorMessages(nil, nil, "q")[0].Content)
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider("try later")
	resp, err := p.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "try later", resp.Content)
	assert.False(t, p.IsAvailable())
	assert.Equal(t, 1, p.GetUsageStats().TotalRequests)
}
