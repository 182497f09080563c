package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// GeminiConfig configures the Gemini API client.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overrides the API endpoint
	Timeout time.Duration
}

// contentGenerator is the slice of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements LLMProvider with Google's genai SDK.
type GeminiProvider struct {
	models     contentGenerator
	model      string
	timeout    time.Duration
	budgetGate *BudgetGate
	usage      usage
}

// NewGeminiProvider creates a Gemini client for the Gemini API backend.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig, budgetGate *BudgetGate) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return newGeminiProvider(client.Models, cfg.Model, cfg.Timeout, budgetGate), nil
}

func newGeminiProvider(models contentGenerator, model string, timeout time.Duration, gate *BudgetGate) *GeminiProvider {
	return &GeminiProvider{
		models:     models,
		model:      model,
		timeout:    timeout,
		budgetGate: gate,
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "Gemini"
}

// IsAvailable reports whether a client was built.
func (p *GeminiProvider) IsAvailable() bool {
	return p.models != nil
}

// Complete sends the conversation to generateContent. System messages become
// the system instruction; assistant turns are sent with the model role.
func (p *GeminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !p.IsAvailable() {
		return nil, vaulterr.New(vaulterr.CodeRemote, "gemini client not configured")
	}
	if err := p.budgetGate.Reserve(); err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	model := p.model
	if req.Model != "" {
		model = req.Model
	}
	contents, config := geminiRequest(req)

	start := time.Now()
	resp, err := p.models.GenerateContent(ctx, model, contents, config)
	if err == nil && (resp == nil || strings.TrimSpace(resp.Text()) == "") {
		err = fmt.Errorf("empty response")
	}
	if err != nil {
		p.usage.record(0, err)
		return nil, vaulterr.Wrap(vaulterr.CodeRemote, "gemini generation failed", err)
	}

	out := &CompletionResponse{
		Content: resp.Text(),
		Model:   model,
		Latency: time.Since(start),
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if u := resp.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0] != nil {
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	p.usage.record(out.TotalTokens, nil)
	return out, nil
}

func geminiRequest(req CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(req.Temperature))
	}

	var system []string
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return contents, config
}

// GetUsageStats returns current usage statistics.
func (p *GeminiProvider) GetUsageStats() UsageStats {
	return p.usage.snapshot(p.budgetGate)
}

var _ LLMProvider = (*GeminiProvider)(nil)
