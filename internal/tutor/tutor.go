// Package tutor answers children's money questions through a text
// generation provider. Every failure degrades to a fixed reply; Ask never
// returns a provider error to the caller.
package tutor

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/infra/ai"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

// MaxQuestionLength bounds a question in runes.
const MaxQuestionLength = 500

// DefaultFallbackReply is used when Options.FallbackReply is empty.
const DefaultFallbackReply = "Sorry, I couldn't get an answer right now. Please try again in a little while!"

// Options tunes a Tutor.
type Options struct {
	FallbackReply string
	HistoryTurns  int // question/answer pairs kept per user
	MaxTokens     int
	Temperature   float64
}

// Reply is the tutor's answer.
type Reply struct {
	Text     string `json:"text"`
	Fallback bool   `json:"fallback"` // true when Text is the fixed fallback
}

// Tutor keeps a bounded conversation per user and calls the provider.
type Tutor struct {
	provider ai.LLMProvider
	opts     Options
	eventLog *events.EventLog
	logger   *logger.Logger
	metrics  *metrics.Collector

	mu      sync.Mutex
	history map[string][]ai.Message
}

// New creates a tutor. A nil event log, logger or collector is replaced by
// a no-op or the global instance.
func New(provider ai.LLMProvider, opts Options, eventLog *events.EventLog, log *logger.Logger, m *metrics.Collector) *Tutor {
	if opts.FallbackReply == "" {
		opts.FallbackReply = DefaultFallbackReply
	}
	if opts.HistoryTurns < 0 {
		opts.HistoryTurns = 0
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 300
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.7
	}
	if provider == nil {
		provider = ai.NewStaticProvider(opts.FallbackReply)
	}
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.Get()
	}
	return &Tutor{
		provider: provider,
		opts:     opts,
		eventLog: eventLog,
		logger:   log.With(zap.String("provider", provider.Name())),
		metrics:  m,
		history:  make(map[string][]ai.Message),
	}
}

// Ask answers a question for userID. pc, when set, lets the tutor mention
// the child's dragon and balance. An empty or oversized question is a
// validation error; everything else yields a reply.
func (t *Tutor) Ask(ctx context.Context, userID, question string, pc *ai.PetContext) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{}, vaulterr.New(vaulterr.CodeValidation, "question is required")
	}
	if utf8.RuneCountInString(question) > MaxQuestionLength {
		return Reply{}, vaulterr.New(vaulterr.CodeValidation, "question is too long")
	}

	if !t.provider.IsAvailable() {
		return t.fallback(userID, nil), nil
	}

	msgs := ai.BuildTutorMessages(pc, t.History(userID), question)

	start := time.Now()
	resp, err := t.provider.Complete(ctx, ai.CompletionRequest{
		Messages:    msgs,
		MaxTokens:   t.opts.MaxTokens,
		Temperature: t.opts.Temperature,
	})
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = vaulterr.New(vaulterr.CodeRemote, "empty reply")
	}
	t.metrics.RecordTutorCall(time.Since(start), err)
	if err != nil {
		return t.fallback(userID, err), nil
	}

	answer := strings.TrimSpace(resp.Content)
	t.remember(userID, question, answer)
	t.emit(userID, answer, false)
	t.logger.Debug("tutor answered",
		zap.String("user", userID),
		zap.Int("tokens", resp.TotalTokens),
		zap.Duration("latency", resp.Latency),
	)
	return Reply{Text: answer}, nil
}

func (t *Tutor) fallback(userID string, cause error) Reply {
	if cause != nil {
		t.logger.Warn("tutor unavailable, using fallback reply", zap.String("user", userID), zap.Error(cause))
	}
	t.emit(userID, t.opts.FallbackReply, true)
	return Reply{Text: t.opts.FallbackReply, Fallback: true}
}

func (t *Tutor) emit(userID, reply string, fallback bool) {
	if t.eventLog == nil {
		return
	}
	t.eventLog.Append(events.Event{
		Type:   events.EventTypeTutorReply,
		UserID: userID,
		Payload: events.TutorPayload{
			Provider: t.provider.Name(),
			Fallback: fallback,
			Chars:    utf8.RuneCountInString(reply),
		},
	})
}

func (t *Tutor) remember(userID, question, answer string) {
	if t.opts.HistoryTurns == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.history[userID],
		ai.Message{Role: ai.RoleUser, Content: question},
		ai.Message{Role: ai.RoleAssistant, Content: answer},
	)
	if limit := t.opts.HistoryTurns * 2; len(h) > limit {
		h = append([]ai.Message(nil), h[len(h)-limit:]...)
	}
	t.history[userID] = h
}

// History returns a copy of the remembered turns for userID.
func (t *Tutor) History(userID string) []ai.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ai.Message(nil), t.history[userID]...)
}

// Forget drops userID's conversation. Called on sign-out.
func (t *Tutor) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.history, userID)
}

// Usage returns the provider's usage counters.
func (t *Tutor) Usage() ai.UsageStats {
	return t.provider.GetUsageStats()
}
