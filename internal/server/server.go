package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/abhinavprkash/ThreadPilot/internal/database"
	"github.com/abhinavprkash/ThreadPilot/internal/feedback"
	"github.com/abhinavprkash/ThreadPilot/internal/ingest"
)

var md = goldmark.New()

var directivesPage = template.Must(template.New("directives").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Directives: {{.Team}}</title>
  <style>
    body { font-family: sans-serif; max-width: 720px; margin: 2rem auto; padding: 0 1rem; }
    h1 { font-size: 1.4rem; }
    .meta { color: #666; font-size: 0.9rem; }
    ul { line-height: 1.6; }
  </style>
</head>
<body>
  <h1>Quality directives for {{.Team}}</h1>
  <p class="meta">{{.Count}} active directive(s)</p>
  {{.Instructions}}
</body>
</html>
`))

// Server exposes the feedback pipeline over HTTP: reaction intake, the
// metrics snapshot, directive inspection, and persona management.
type Server struct {
	db       *database.DB
	ingestor *ingest.Ingestor
	metrics  *feedback.Metrics
	enhancer *feedback.Enhancer
	mux      *http.ServeMux
}

// New creates a new Server. A dailyLimit of zero selects the default
// per-user feedback cap.
func New(db *database.DB, dailyLimit int) *Server {
	s := &Server{
		db:       db,
		ingestor: ingest.NewIngestor(db, dailyLimit),
		metrics:  feedback.NewMetrics(db, dailyLimit),
		enhancer: feedback.NewEnhancer(db),
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/reactions", s.handleReactions)
	s.mux.HandleFunc("/api/metrics", s.handleMetrics)
	s.mux.HandleFunc("/api/directives", s.handleDirectives)
	s.mux.HandleFunc("/api/personas/", s.handlePersona)
	s.mux.HandleFunc("/directives/", s.handleDirectivesPage)
}

type reactionRequest struct {
	Emoji     string `json:"emoji"`
	UserID    string `json:"user_id"`
	Team      string `json:"team"`
	Channel   string `json:"channel"`
	SourceRef string `json:"source_ref"`
	Comment   string `json:"comment,omitempty"`
}

func (s *Server) handleReactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Emoji == "" || req.UserID == "" || req.Channel == "" || req.SourceRef == "" {
		http.Error(w, "emoji, user_id, channel, and source_ref are required", http.StatusBadRequest)
		return
	}

	res, err := s.ingestor.HandleReaction(ingest.Reaction{
		Emoji:     req.Emoji,
		UserID:    req.UserID,
		Team:      req.Team,
		Channel:   req.Channel,
		SourceRef: req.SourceRef,
		Comment:   req.Comment,
	})
	if err != nil {
		log.Printf("Error handling reaction: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	var team *string
	if v := r.URL.Query().Get("team"); v != "" {
		team = &v
	}

	snapshot, err := s.metrics.ComputeSnapshot(days, team)
	if err != nil {
		log.Printf("Error computing snapshot: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDirectives(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	team := r.URL.Query().Get("team")
	if team == "" {
		http.Error(w, "team is required", http.StatusBadRequest)
		return
	}

	directives, err := s.db.GetActiveDirectives(team, feedback.DefaultMaxDirectives, feedback.DefaultExpiryDays)
	if err != nil {
		log.Printf("Error listing directives: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	if directives == nil {
		directives = []database.Directive{}
	}
	writeJSON(w, http.StatusOK, directives)
}

type personaRequest struct {
	Role         string             `json:"role"`
	Team         string             `json:"team"`
	CustomTopics []string           `json:"custom_topics,omitempty"`
	CustomBoosts map[string]float64 `json:"custom_boosts,omitempty"`
}

func (s *Server) handlePersona(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimPrefix(r.URL.Path, "/api/personas/")
	if userID == "" || strings.Contains(userID, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		cfg, err := s.db.GetUserPersona(userID)
		if err != nil {
			log.Printf("Error loading persona: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if cfg == nil {
			http.Error(w, "persona not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	case http.MethodPut:
		var req personaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		cfg := database.UserPersonaConfig{
			UserID:       userID,
			Role:         req.Role,
			Team:         req.Team,
			CustomTopics: req.CustomTopics,
			CustomBoosts: req.CustomBoosts,
		}
		if err := s.db.SetUserPersona(cfg); err != nil {
			log.Printf("Error storing persona: %v", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, cfg)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleDirectivesPage(w http.ResponseWriter, r *http.Request) {
	team := strings.TrimPrefix(r.URL.Path, "/directives/")
	if team == "" || strings.Contains(team, "/") {
		http.NotFound(w, r)
		return
	}

	instructions, err := s.enhancer.GetPromptInstructions(team, "")
	if err != nil {
		log.Printf("Error loading instructions: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	directives, err := s.db.GetActiveDirectives(team, feedback.DefaultMaxDirectives, feedback.DefaultExpiryDays)
	if err != nil {
		log.Printf("Error listing directives: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = directivesPage.Execute(w, map[string]any{
		"Team":         team,
		"Count":        len(directives),
		"Instructions": renderMarkdown(instructions),
	})
	if err != nil {
		log.Printf("Error rendering directives page: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func Serve(db *database.DB, port, dailyLimit int) error {
	srv := New(db, dailyLimit)

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
