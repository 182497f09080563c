package tutor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/infra/ai"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
	"github.com/dragonsvault/server/internal/platform/metrics"
)

type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	err     error
	seen    []ai.CompletionRequest
}

func (p *scriptedProvider) Complete(_ context.Context, req ai.CompletionRequest) (*ai.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, req)
	if p.err != nil {
		return nil, p.err
	}
	r := p.replies[0]
	p.replies = p.replies[1:]
	return &ai.CompletionResponse{Content: r}, nil
}

func (p *scriptedProvider) GetUsageStats() ai.UsageStats { return ai.UsageStats{} }
func (p *scriptedProvider) Name() string                 { return "scripted" }
func (p *scriptedProvider) IsAvailable() bool            { return true }

func TestAskAnswersAndRemembers(t *testing.T) {
	p := &scriptedProvider{replies: []string{"Saving means keeping coins for later.", "  Try a jar!  "}}
	log := events.NewEventLog(nil)
	m := metrics.New()
	tu := New(p, Options{HistoryTurns: 6}, log, nil, m)

	r, err := tu.Ask(context.Background(), "kid-1", "What is saving?", &ai.PetContext{Coins: "1.00"})
	require.NoError(t, err)
	assert.Equal(t, "Saving means keeping coins for later.", r.Text)
	assert.False(t, r.Fallback)

	r, err = tu.Ask(context.Background(), "kid-1", "How do I start?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Try a jar!", r.Text)

	second := p.seen[1].Messages
	require.Len(t, second, 4, "system, prior question, prior answer, new question")
	assert.Equal(t, "What is saving?", second[1].Content)
	assert.Equal(t, ai.RoleAssistant, second[2].Role)

	assert.Len(t, tu.History("kid-1"), 4)
	assert.Empty(t, tu.History("kid-2"), "history is per user")
	assert.Equal(t, 2, log.Len())
	assert.EqualValues(t, 2, m.TutorRequests)
}

func TestHistoryIsBounded(t *testing.T) {
	p := &scriptedProvider{replies: []string{"a", "b", "c"}}
	tu := New(p, Options{HistoryTurns: 1}, nil, nil, metrics.New())

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := tu.Ask(context.Background(), "kid", q, nil)
		require.NoError(t, err)
	}
	h := tu.History("kid")
	require.Len(t, h, 2)
	assert.Equal(t, "q3", h[0].Content)
	assert.Equal(t, "c", h[1].Content)

	tu.Forget("kid")
	assert.Empty(t, tu.History("kid"))
}

func TestFailureUsesFallback(t *testing.T) {
	p := &scriptedProvider{err: vaulterr.Wrap(vaulterr.CodeRemote, "boom", errors.New("network down"))}
	log := events.NewEventLog(nil)
	m := metrics.New()
	tu := New(p, Options{}, log, nil, m)

	r, err := tu.Ask(context.Background(), "kid", "Why do banks exist?", nil)
	require.NoError(t, err)
	assert.True(t, r.Fallback)
	assert.Equal(t, DefaultFallbackReply, r.Text)
	assert.Empty(t, tu.History("kid"), "failed turns are not remembered")
	assert.EqualValues(t, 1, m.TutorFailures)

	evs := log.GetByUser("kid")
	require.Len(t, evs, 1)
	payload := evs[0].Payload.(events.TutorPayload)
	assert.True(t, payload.Fallback)
}

func TestEmptyReplyUsesFallback(t *testing.T) {
	p := &scriptedProvider{replies: []string{"   "}}
	tu := New(p, Options{FallbackReply: "later!"}, nil, nil, metrics.New())

	r, err := tu.Ask(context.Background(), "kid", "hello?", nil)
	require.NoError(t, err)
	assert.Equal(t, Reply{Text: "later!", Fallback: true}, r)
}

func TestQuestionValidation(t *testing.T) {
	tu := New(&scriptedProvider{}, Options{}, nil, nil, metrics.New())

	_, err := tu.Ask(context.Background(), "kid", "   ", nil)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeValidation))

	_, err = tu.Ask(context.Background(), "kid", strings.Repeat("a", MaxQuestionLength+1), nil)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeValidation))
}

func TestStaticProviderNeverCallsOut(t *testing.T) {
	p := ai.NewStaticProvider("no tutor today")

	tu := New(p, Options{FallbackReply: "no tutor today"}, nil, nil, metrics.New())
	r, err := tu.Ask(context.Background(), "kid", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, Reply{Text: "no tutor today", Fallback: true}, r)
}
