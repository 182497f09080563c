package ai

import (
	"context"
)

// StaticProvider answers every request with the same reply. It backs the
// "none" provider so the tutor stays usable without a model.
type StaticProvider struct {
	reply string
	usage usage
}

// NewStaticProvider returns a provider that always answers reply.
func NewStaticProvider(reply string) *StaticProvider {
	return &StaticProvider{reply: reply}
}

func (p *StaticProvider) Name() string { return "Static" }

// IsAvailable is false: the static reply is the same text the tutor falls
// back to when a real provider fails.
func (p *StaticProvider) IsAvailable() bool { return false }

func (p *StaticProvider) Complete(_ context.Context, _ CompletionRequest) (*CompletionResponse, error) {
	p.usage.record(0, nil)
	return &CompletionResponse{Content: p.reply, Model: "static", FinishReason: "STOP"}, nil
}

func (p *StaticProvider) GetUsageStats() UsageStats {
	return p.usage.snapshot(nil)
}

var _ LLMProvider = (*StaticProvider)(nil)
