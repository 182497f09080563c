package network

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dragonsvault/server/internal/domain/pet"
	"github.com/dragonsvault/server/internal/domain/role"
	"github.com/dragonsvault/server/internal/domain/task"
	vaulterr "github.com/dragonsvault/server/internal/platform/errors"
	"github.com/dragonsvault/server/internal/platform/logger"
	"github.com/dragonsvault/server/internal/platform/metrics"
	"github.com/dragonsvault/server/internal/session"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 16 << 10

// Options tunes the HTTP and WebSocket surface.
type Options struct {
	AllowedOrigins       []string // empty allows any origin
	ClientSendBuffer     int
	MaxMessagesPerSecond int
	MaxClientsPerUser    int
}

// Server serves the vault HTTP API and the /ws endpoint.
type Server struct {
	opts     Options
	sessions *session.Manager
	exec     Executor
	hub      *Hub
	history  *HistoryHandler
	metrics  *metrics.Collector
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the API. history may be nil.
func NewServer(opts Options, sessions *session.Manager, exec Executor, hub *Hub, history *HistoryHandler, log *logger.Logger, m *metrics.Collector) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if m == nil {
		m = metrics.Get()
	}
	s := &Server{
		opts:     opts,
		sessions: sessions,
		exec:     exec,
		hub:      hub,
		history:  history,
		metrics:  m,
		logger:   log,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.Handle("GET /metrics/prometheus", s.metrics.PrometheusHandler())

	mux.HandleFunc("POST /api/session", s.handleSignIn)
	mux.HandleFunc("DELETE /api/session", s.handleSignOut)
	mux.HandleFunc("POST /api/session/role", s.handleChooseRole)
	mux.HandleFunc("DELETE /api/session/role", s.handleClearRole)
	mux.HandleFunc("GET /api/route", s.handleRoute)

	mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/pet", s.withSession(s.handleState))
	mux.HandleFunc("POST /api/pet/feed", s.withSession(s.commandHandler(CommandFeed)))
	mux.HandleFunc("POST /api/pet/play", s.withSession(s.commandHandler(CommandPlay)))

	mux.HandleFunc("GET /api/tasks", s.withSession(s.handleTasks))
	mux.HandleFunc("POST /api/tasks", s.withSession(s.commandHandler(CommandAddTask)))
	mux.HandleFunc("DELETE /api/tasks/{id}", s.withSession(s.commandHandler(CommandRemoveTask)))
	mux.HandleFunc("POST /api/tasks/{id}/complete", s.withSession(s.commandHandler(CommandCompleteTask)))

	mux.HandleFunc("GET /api/balance", s.withSession(s.handleBalance))
	mux.HandleFunc("POST /api/tutor", s.withSession(s.commandHandler(CommandAskTutor)))

	if s.history != nil {
		mux.HandleFunc("GET /api/history", s.withSession(s.history.HandleHistory))
	}

	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession resolves the bearer token to a live session.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(bearerToken(r))
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, sess)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

// SessionResponse describes a session to its client.
type SessionResponse struct {
	Token       string `json:"token,omitempty"`
	UserID      string `json:"user_id"`
	State       string `json:"state"`
	Role        string `json:"role,omitempty"`
	Destination string `json:"destination"`
}

func describe(sess *session.Session, withToken bool) SessionResponse {
	resp := SessionResponse{
		UserID:      sess.UserID,
		State:       string(sess.State()),
		Role:        string(sess.Role()),
		Destination: sess.Destination(role.Location{AtAuth: true}),
	}
	if withToken {
		resp.Token = sess.Token
	}
	return resp
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	sess, err := s.sessions.SignIn(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, describe(sess, true))
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.SignOut(r.Context(), bearerToken(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		State:       string(role.StateUnauthenticated),
		Destination: role.RouteLogin,
	})
}

func (s *Server) handleChooseRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	rl, err := role.ParseRole(strings.ToLower(strings.TrimSpace(req.Role)))
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.sessions.ChooseRole(bearerToken(r), rl)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess, false))
}

func (s *Server) handleClearRole(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.ClearRole(bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, describe(sess, false))
}

// handleRoute answers where a client at ?at=<path> must go. It works
// without a session: the caller is then unauthenticated.
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	at := r.URL.Query().Get("at")
	loc := role.Location{
		AtAuth:       at == "/auth" || strings.HasPrefix(at, "/auth/"),
		AtChooseRole: at == role.RouteChooseRole,
	}
	state := role.StateUnauthenticated
	if sess, err := s.sessions.Get(bearerToken(r)); err == nil {
		state = sess.State()
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"state":       string(state),
		"destination": role.Destination(state, loc),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]pet.CareItem{
		"foods":      pet.Foods,
		"activities": pet.Activities,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.run(w, r, sess, Command{Type: CommandGetState})
}

func (s *Server) handleTasks(w http.ResponseWriter, _ *http.Request, sess *session.Session) {
	if err := sess.Authorize(role.ActionView); err != nil {
		writeError(w, err)
		return
	}
	tasks := sess.Engine.Tasks()
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": tasks})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Authorize(role.ActionView); err != nil {
		writeError(w, err)
		return
	}
	b, err := sess.Engine.RefreshBalance(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"coins":      b.Coins,
		"coins_text": task.FormatCents(b.Coins),
		"food":       b.Food,
	})
}

// commandHandler decodes the body into a Command of the given type. The
// {id} path value, when present, is the task id.
func (s *Server) commandHandler(typ string) sessionHandler {
	return func(w http.ResponseWriter, r *http.Request, sess *session.Session) {
		var cmd Command
		if r.ContentLength != 0 && r.Method == http.MethodPost {
			if !decodeBody(w, r, &cmd) {
				return
			}
		}
		cmd.Type = typ
		if id := r.PathValue("id"); id != "" {
			cmd.TaskID = id
		}
		s.run(w, r, sess, cmd)
	}
}

func (s *Server) run(w http.ResponseWriter, r *http.Request, sess *session.Session, cmd Command) {
	result, err := s.exec.Execute(r.Context(), sess, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if cmd.Type == CommandAddTask {
		status = http.StatusCreated
	}
	writeJSON(w, status, result)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// handleWS upgrades an authenticated request. The token may be passed as
// ?token= since browsers cannot set headers on a WebSocket handshake.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(bearerToken(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if limit := s.opts.MaxClientsPerUser; limit > 0 && s.hub.ClientCount(sess.UserID) >= limit {
		writeError(w, vaulterr.New(vaulterr.CodeForbidden, "too many connections for this user"))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		s.metrics.RecordWSError()
		return
	}

	client := NewClient(s.hub, conn, sess, s.exec, s.opts.ClientSendBuffer, s.opts.MaxMessagesPerSecond)
	if !s.hub.Register(client) {
		conn.Close()
		return
	}
	client.reply(Outbound{Type: MessageState, Data: sess.Engine.Snapshot()})

	go client.WritePump()
	client.ReadPump(r.Context())
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorBody(err error) *ErrorBody {
	code := vaulterr.GetCode(err)
	msg := err.Error()
	var e *vaulterr.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	return &ErrorBody{Code: string(code), Message: msg}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, vaulterr.GetCode(err).HTTPStatus(), map[string]*ErrorBody{"error": errorBody(err)})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, vaulterr.Wrap(vaulterr.CodeValidation, "invalid JSON body", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
