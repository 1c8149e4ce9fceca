package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/loom/internal/scroll"
	"github.com/MikeSquared-Agency/loom/internal/timeline"
)

type Server struct {
	router  *chi.Mux
	port    int
	manager *Manager
}

func NewServer(port int, apiToken string, manager *Manager) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router:  router,
		port:    port,
		manager: manager,
	}

	router.Get("/health", s.health)
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/v1/conversations", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Post("/", s.openConversation)
		r.Route("/{conversationID}", func(r chi.Router) {
			r.Delete("/", s.closeConversation)
			r.Get("/timeline", s.getTimeline)
			r.Post("/viewport", s.reportViewport)
			r.Post("/near-top", s.nearTop)
			r.Post("/records", s.appendRecord)
			r.Post("/references/{externalID}/expand", s.expandReference)
			r.Post("/references/{externalID}/collapse", s.collapseReference)
		})
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware rejects requests whose Authorization header does not
// carry the configured token. An empty token disables the check, for local
// development.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != token {
				writeError(w, http.StatusUnauthorized, "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) openConversation(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.ChannelID == "" || req.Channel == "" {
		writeError(w, http.StatusBadRequest, "channel_id and channel_type are required")
		return
	}

	id, err := s.manager.Open(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, "open conversation: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"conversation_id": id.String()})
}

func (s *Server) closeConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return
	}
	if !s.manager.Close(id) {
		writeError(w, http.StatusNotFound, ErrUnknownConversation.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type timelineResponse struct {
	Entries      []timeline.Entry `json:"entries"`
	EndOfHistory bool             `json:"end_of_history"`
	Loading      bool             `json:"loading"`
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request) {
	mg, ok := s.session(w, r)
	if !ok {
		return
	}
	entries := mg.session.Timeline()
	if entries == nil {
		entries = []timeline.Entry{}
	}
	writeJSON(w, http.StatusOK, timelineResponse{
		Entries:      entries,
		EndOfHistory: mg.session.EndOfHistory(),
		Loading:      mg.session.Loading(),
	})
}

type viewportReport struct {
	ScrollTop      float64 `json:"scroll_top"`
	ContentHeight  float64 `json:"content_height"`
	ViewportHeight float64 `json:"viewport_height"`
}

// reportViewport ingests the host's latest scroll geometry. The response
// carries the offset the host should apply, which differs from its reading
// when a prepend anchor or a scroll-to-bottom landed.
func (s *Server) reportViewport(w http.ResponseWriter, r *http.Request) {
	mg, ok := s.session(w, r)
	if !ok {
		return
	}
	var rep viewportReport
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	mg.viewport.update(scroll.Metrics{
		ScrollTop:      rep.ScrollTop,
		ContentHeight:  rep.ContentHeight,
		ViewportHeight: rep.ViewportHeight,
	})
	mg.session.OnContentHeightChange(rep.ContentHeight)

	writeJSON(w, http.StatusOK, map[string]float64{"scroll_top": mg.viewport.scrollTop()})
}

// nearTop starts a backward page load. The load outlives the request, so it
// runs on the background context rather than the request's.
func (s *Server) nearTop(w http.ResponseWriter, r *http.Request) {
	mg, ok := s.session(w, r)
	if !ok {
		return
	}
	mg.session.NotifyNearTop(context.Background())
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) appendRecord(w http.ResponseWriter, r *http.Request) {
	mg, ok := s.session(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty record body")
		return
	}
	mg.session.AppendLive(body)
	w.WriteHeader(http.StatusAccepted)
}

type referenceResponse struct {
	ID       string `json:"id"`
	State    any    `json:"state"`
	Expanded bool   `json:"expanded"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) expandReference(w http.ResponseWriter, r *http.Request) {
	mg, ok := s.session(w, r)
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "externalID")

	err := mg.session.Resolve(r.Context(), externalID)
	snap, _ := mg.session.Reference(externalID)
	resp := referenceResponse{ID: externalID, State: snap.State, Expanded: snap.Expanded}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) collapseReference(w http.ResponseWriter, r *http.Request) {
	mg, ok := s.session(w, r)
	if !ok {
		return
	}
	externalID := chi.URLParam(r, "externalID")
	mg.session.Collapse(externalID)

	snap, _ := mg.session.Reference(externalID)
	writeJSON(w, http.StatusOK, referenceResponse{ID: externalID, State: snap.State, Expanded: snap.Expanded})
}

func (s *Server) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*managed, bool) {
	id, ok := s.conversationID(w, r)
	if !ok {
		return nil, false
	}
	mg, ok := s.manager.get(id)
	if !ok {
		writeError(w, http.StatusNotFound, ErrUnknownConversation.Error())
		return nil, false
	}
	return mg, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
