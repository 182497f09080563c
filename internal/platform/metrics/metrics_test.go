package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreConcurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.RecordDecay(time.Millisecond)
			c.RecordCompletion(250)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), c.DecayTicks)
	assert.Equal(t, int64(50), c.TasksCompleted)
	assert.Equal(t, int64(50*250), c.RewardsPaidCents)
}

func TestClockMaxLatency(t *testing.T) {
	c := New()
	c.RecordDecay(2 * time.Millisecond)
	c.RecordGrowth(9*time.Millisecond, true)
	c.RecordGrowth(1*time.Millisecond, false)

	assert.Equal(t, int64(9*time.Millisecond), c.ClockLatMax)
	assert.Equal(t, int64(2), c.GrowthChecks)
	assert.Equal(t, int64(1), c.GrowthGrants)
}

func TestHandlerServesJSON(t *testing.T) {
	c := New()
	c.RecordTutorCall(time.Second, errors.New("quota"))

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["tutor"]["failures"])
}

func TestPrometheusHandler(t *testing.T) {
	c := New()
	c.RecordWSMessage(true)
	c.RecordSession(1)

	rec := httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	out := rec.Body.String()
	assert.True(t, strings.Contains(out, `vault_ws_messages_total{direction="in"} 1`))
	assert.True(t, strings.Contains(out, "vault_sessions 1"))
}
