package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/neurolens/lucid/internal/engine"
	"github.com/neurolens/lucid/internal/explain"
)

type Server struct {
	router *chi.Mux
	port   int
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer wires the HTTP surface. Reads are open; mutating routes sit
// behind bearer auth when apiToken is non-empty. metricsHandler may be nil
// to leave /metrics unrouted.
func NewServer(port int, apiToken string, eng *engine.Engine, metricsHandler http.Handler, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		engine: eng,
		logger: logger,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/lucid/status", s.status)
	if metricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	router.Route("/api/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/explanation", s.getExplanation)
		r.Get("/chat/history", s.getHistory)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))
			r.Post("/analyses", s.postAnalysis)
			r.Post("/chat", s.postChat)
			r.Delete("/chat/history", s.deleteHistory)
		})
	})

	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("API server starting", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

// BearerAuthMiddleware guards a route group with a static bearer token. An
// empty token disables the check.
func BearerAuthMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) != token {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":  "lucid",
		"status":   "ok",
		"sessions": s.engine.SessionCount(),
	})
}

// sessionID parses the path parameter. A malformed id answers 400 and
// reports false.
func (s *Server) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) postAnalysis(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req engine.AnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	// The URL names the session; a session id in the body is ignored.
	req.SessionID = sessionID

	exp, err := s.engine.Analyze(r.Context(), req)
	if err != nil {
		if errors.Is(err, explain.ErrInvalidProbabilities) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) getExplanation(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	exp, ok := s.engine.Explanation(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "no analysis yet")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

type chatRequest struct {
	Question string `json:"question"`
}

func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	turn, err := s.engine.Ask(r.Context(), sessionID, req.Question)
	if err != nil {
		if errors.Is(err, engine.ErrBlankQuestion) {
			writeError(w, http.StatusBadRequest, "question is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}

	writeJSON(w, http.StatusOK, turn)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	turns := s.engine.History(sessionID)
	writeJSON(w, http.StatusOK, map[string]any{
		"turns": turns,
		"count": len(turns),
	})
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.sessionID(w, r)
	if !ok {
		return
	}

	s.engine.ClearHistory(sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
