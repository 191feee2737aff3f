package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/mzanetti/aura/internal/chat"
	"github.com/mzanetti/aura/internal/config"
	"github.com/mzanetti/aura/internal/notify"
	"github.com/mzanetti/aura/internal/observability"
	"github.com/mzanetti/aura/internal/session"
	"github.com/mzanetti/aura/internal/tasks"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	store    session.Store
	pipeline chat.Pipeline
	queue    *tasks.Queue
	center   *notify.Center
	activity *notify.ActivityStream
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, store session.Store, pipeline chat.Pipeline,
	queue *tasks.Queue, center *notify.Center, activity *notify.ActivityStream, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		store:    store,
		pipeline: pipeline,
		queue:    queue,
		center:   center,
		activity: activity,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so another website cannot attach to a user's
				// notification stream if the service is exposed beyond
				// localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/sessions", s.handleCreateSession)
	r.Post("/v1/sessions/{id}/end", s.handleEndSession)
	r.Post("/v1/sessions/{id}/messages", s.handlePostMessage)
	r.Get("/v1/sessions/{id}/tasks", s.handleListTasks)
	r.Post("/v1/sessions/{id}/tasks/clear_completed", s.handleClearCompleted)
	r.Get("/v1/sessions/{id}/notifications", s.handleListNotifications)
	r.Post("/v1/notifications/{id}/read", s.handleMarkNotificationRead)
	r.Get("/v1/sessions/{id}/stream", s.handleStream)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type createSessionResponse struct {
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id"`
	Status          string    `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	InactivityTTLMS int64     `json:"inactivity_ttl_ms"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		req.UserID = "anonymous"
	}

	sess := s.sessions.Create(req.UserID)
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:       sess.ID,
		UserID:          sess.UserID,
		Status:          string(sess.Status),
		StartedAt:       sess.StartedAt,
		InactivityTTLMS: s.cfg.SessionInactivityTimeout.Milliseconds(),
	})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
	}
	respondJSON(w, http.StatusOK, map[string]any{"session_id": sess.ID, "status": sess.Status})
}

type postMessageRequest struct {
	Text        string `json:"text"`
	UseMemory   bool   `json:"use_memory"`
	ForceSearch bool   `json:"force_search"`
}

type postMessageResponse struct {
	ResponseText  string `json:"response_text"`
	AwaitingUser  bool   `json:"awaiting_user"`
	PlanOrigin    string `json:"plan_origin,omitempty"`
	PlanStepIndex int    `json:"plan_step_index,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	ctx := r.Context()
	meta, err := s.store.LoadMetadata(ctx, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "metadata_load_failed", err.Error())
		return
	}
	hadPlan := meta.PendingPlan.Outstanding()

	res, err := s.pipeline.Run(ctx, id, chat.Message{
		Text:        req.Text,
		Origin:      chat.OriginUser,
		UseMemory:   req.UseMemory,
		ForceSearch: req.ForceSearch,
	}, meta.PendingPlan)
	if err != nil {
		respondError(w, http.StatusBadGateway, "pipeline_failed", err.Error())
		return
	}

	newMeta := session.Metadata{}
	if res.Plan.Outstanding() {
		newMeta.PendingPlan = res.Plan
	}
	if err := s.store.SaveMetadata(ctx, id, newMeta); err != nil {
		respondError(w, http.StatusInternalServerError, "metadata_save_failed", err.Error())
		return
	}

	// A plan that stopped being outstanding settles the confirmation the
	// waiting task was parked on, whether it resumed or was abandoned.
	if hadPlan && !res.Plan.Outstanding() {
		if waiting, ok := s.queue.FindTaskByStatus(id, tasks.StatusWaitingUser); ok {
			if _, err := s.queue.UpdateTask(id, waiting.ID, tasks.StatusCompleted); err == nil && s.metrics != nil {
				s.metrics.ObserveTaskEvent(string(tasks.StatusCompleted))
			}
		}
	}

	for _, ev := range res.Events {
		s.activity.Publish(id, ev)
		if s.metrics != nil && strings.HasPrefix(ev.Type, "plan_") {
			s.metrics.PlanEvents.WithLabelValues(ev.Type).Inc()
		}
	}
	_ = s.sessions.Touch(id)

	out := postMessageResponse{ResponseText: res.ResponseText}
	if res.Plan.Outstanding() {
		out.AwaitingUser = true
		out.PlanOrigin = res.Plan.Origin
		out.PlanStepIndex = res.Plan.Index
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"tasks": s.queue.ListBySession(id)})
}

func (s *Server) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"removed": s.queue.ClearCompleted(id)})
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	unreadOnly := strings.EqualFold(r.URL.Query().Get("unread"), "true")
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": s.center.ListBySession(id, unreadOnly),
	})
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_notification_id", "missing notification id")
		return
	}
	n, err := s.center.MarkRead(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "notification_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, n)
}

// streamEnvelope wraps both buses into one wire shape so a single websocket
// carries notifications and agent activity.
type streamEnvelope struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}
	if _, err := s.sessions.Get(id); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	notifications, cancelNotifications := s.center.Subscribe(id)
	defer cancelNotifications()
	events, cancelEvents := s.activity.Subscribe(id)
	defer cancelEvents()

	if s.metrics != nil {
		s.metrics.StreamClients.Inc()
		defer s.metrics.StreamClients.Dec()
	}

	// Reader goroutine only notices close; clients never send payloads.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := r.Context()
	for {
		var env streamEnvelope
		select {
		case <-ctx.Done():
			return
		case <-readerDone:
			return
		case n, ok := <-notifications:
			if !ok {
				return
			}
			env = streamEnvelope{Kind: "notification", Data: n}
		case ev, ok := <-events:
			if !ok {
				return
			}
			env = streamEnvelope{Kind: "agent_event", Data: ev}
		}
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
