package network

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/domain/role"
	"github.com/dragonsvault/server/internal/events"
	"github.com/dragonsvault/server/internal/infra/storage"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/session"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// HistoryHandler serves a user's recent vault activity. With a Recapper it
// reads persisted events; otherwise it reads the in-process event log.
type HistoryHandler struct {
	recapper *storage.Recapper
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewHistoryHandler creates the handler. recapper may be nil.
func NewHistoryHandler(recapper *storage.Recapper, el *events.EventLog, log *logger.Logger) *HistoryHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &HistoryHandler{recapper: recapper, eventLog: el, logger: log}
}

// HistoryEvent is one readable entry.
type HistoryEvent struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Summary   string `json:"summary"`
	Impact    string `json:"impact"`
}

// HistoryResponse is the API response for the history endpoint.
type HistoryResponse struct {
	UserID      string         `json:"user_id"`
	TotalEvents int            `json:"total_events"`
	FilteredBy  string         `json:"filtered_by,omitempty"`
	GeneratedAt string         `json:"generated_at"`
	Events      []HistoryEvent `json:"events"`
}

// HandleHistory returns the newest events, oldest first.
// GET /api/history?limit=N&type=TASK_COMPLETED
func (hh *HistoryHandler) HandleHistory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Authorize(role.ActionView); err != nil {
		writeError(w, err)
		return
	}
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	eventType := r.URL.Query().Get("type")

	entries, err := hh.entries(r.Context(), sess.UserID, limit)
	if err != nil {
		hh.logger.Warn("history lookup failed", zap.String("user", sess.UserID), zap.Error(err))
		writeError(w, err)
		return
	}

	out := make([]HistoryEvent, 0, len(entries))
	for _, e := range entries {
		if eventType != "" && e.Type != eventType {
			continue
		}
		out = append(out, e)
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		UserID:      sess.UserID,
		TotalEvents: len(out),
		FilteredBy:  eventType,
		GeneratedAt: formatTime(time.Now()),
		Events:      out,
	})
}

func (hh *HistoryHandler) entries(ctx context.Context, userID string, limit int) ([]HistoryEvent, error) {
	if hh.recapper != nil {
		recap, err := hh.recapper.GenerateRecap(ctx, userID, limit)
		if err != nil {
			return nil, err
		}
		out := make([]HistoryEvent, len(recap))
		for i, e := range recap {
			out[i] = HistoryEvent{
				Timestamp: e.Timestamp,
				Type:      e.EventType,
				Summary:   e.Summary,
				Impact:    e.Impact,
			}
		}
		return out, nil
	}

	evs := hh.eventLog.GetByUser(userID)
	if len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	out := make([]HistoryEvent, len(evs))
	for i, e := range evs {
		out[i] = HistoryEvent{
			Timestamp: formatTime(e.Timestamp),
			Type:      string(e.Type),
			Summary:   storage.Summarize(string(e.Type), payloadMap(e.Payload)),
			Impact:    storage.Impact(string(e.Type)),
		}
	}
	return out, nil
}

// payloadMap flattens a typed payload the same way the event persister does.
func payloadMap(payload interface{}) map[string]interface{} {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
