// Package ai provides the text generation layer behind the dragon tutor.
// Providers are interchangeable: Gemini, an OpenAI-compatible endpoint, or a
// static reply when no model is configured.
package ai

import (
	"context"
	"fmt"
	"sync"
	"time"

	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
)

// Roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message for the model.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// CompletionRequest is the input for one generation.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Model       string    `json:"model,omitempty"` // Override default model
}

// CompletionResponse is the output of one generation.
type CompletionResponse struct {
	Content      string        `json:"content"`
	Model        string        `json:"model"`
	PromptTokens int           `json:"prompt_tokens"`
	OutputTokens int           `json:"output_tokens"`
	TotalTokens  int           `json:"total_tokens"`
	Latency      time.Duration `json:"latency"`
	FinishReason string        `json:"finish_reason"`
}

// UsageStats tracks provider usage.
type UsageStats struct {
	TotalRequests  int       `json:"total_requests"`
	FailedRequests int       `json:"failed_requests"`
	TotalTokens    int       `json:"total_tokens"`
	RemainingToday int       `json:"remaining_today"` // -1 when unlimited
	LastReset      time.Time `json:"last_reset"`
}

// LLMProvider is the interface the tutor talks to.
type LLMProvider interface {
	// Complete sends the conversation and returns the model's reply.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// GetUsageStats returns current usage.
	GetUsageStats() UsageStats

	// Name returns the provider name (for logging).
	Name() string

	// IsAvailable reports whether the provider is configured.
	IsAvailable() bool
}

// ErrBudgetExceeded is returned once the daily request quota is used up.
var ErrBudgetExceeded = vaulterr.New(vaulterr.CodeRemote, "daily tutor quota exhausted")

// BudgetGate enforces a daily request quota. A limit of 0 disables it.
type BudgetGate struct {
	mu         sync.Mutex
	dailyLimit int
	used       int
	lastReset  time.Time
	now        func() time.Time
}

// NewBudgetGate creates a quota of dailyLimit requests per calendar day.
func NewBudgetGate(dailyLimit int) *BudgetGate {
	return &BudgetGate{
		dailyLimit: dailyLimit,
		lastReset:  time.Now(),
		now:        time.Now,
	}
}

// Reserve takes one request from today's quota.
func (bg *BudgetGate) Reserve() error {
	if bg == nil {
		return nil
	}
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.maybeReset()
	if bg.dailyLimit > 0 && bg.used >= bg.dailyLimit {
		return ErrBudgetExceeded
	}
	bg.used++
	return nil
}

// Remaining returns the requests left today, or -1 when unlimited.
func (bg *BudgetGate) Remaining() int {
	if bg == nil || bg.dailyLimit <= 0 {
		return -1
	}
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.maybeReset()
	return bg.dailyLimit - bg.used
}

// LastReset returns when the counter last rolled over.
func (bg *BudgetGate) LastReset() time.Time {
	if bg == nil {
		return time.Time{}
	}
	bg.mu.Lock()
	defer bg.mu.Unlock()
	return bg.lastReset
}

// GetStatus returns a human-readable quota status.
func (bg *BudgetGate) GetStatus() string {
	if bg == nil || bg.dailyLimit <= 0 {
		return "Day: unlimited"
	}
	bg.mu.Lock()
	defer bg.mu.Unlock()
	bg.maybeReset()
	return fmt.Sprintf("Day: %d/%d requests", bg.used, bg.dailyLimit)
}

// maybeReset clears the counter when the day has changed. Caller holds mu.
func (bg *BudgetGate) maybeReset() {
	now := bg.now()
	if now.YearDay() != bg.lastReset.YearDay() || now.Year() != bg.lastReset.Year() {
		bg.used = 0
		bg.lastReset = now
	}
}

// usage is the shared request counter embedded by providers.
type usage struct {
	mu    sync.Mutex
	stats UsageStats
}

func (u *usage) record(tokens int, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.stats.TotalRequests++
	if err != nil {
		u.stats.FailedRequests++
		return
	}
	u.stats.TotalTokens += tokens
}

func (u *usage) snapshot(gate *BudgetGate) UsageStats {
	u.mu.Lock()
	s := u.stats
	u.mu.Unlock()
	s.RemainingToday = gate.Remaining()
	s.LastReset = gate.LastReset()
	return s
}
