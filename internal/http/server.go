package http

import (
	"bytes"
	"embed"
	"encoding/json"
	"html/template"
	"net/http"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"intake-chat/internal/core"
	"intake-chat/internal/events"
	"intake-chat/internal/logger"
	"intake-chat/internal/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// Options tune the HTTP surface.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server bundles the dependencies of the HTTP handlers and implements
// http.Handler.
type Server struct {
	Sessions   *core.SessionStore
	Chat       *core.ChatService
	Summarizer *core.Summarizer
	// Broker feeds the doctor dashboard stream; nil disables it.
	Broker    *events.Broker
	Templates *template.Template

	// origins is the allow-list shared by CORS and the WebSocket upgrade.
	origins  []string
	upgrader websocket.Upgrader
	handler  http.Handler
}

var defaultOrigins = []string{"http://localhost:*", "http://127.0.0.1:*"}

// NewServer parses the embedded templates and builds the router.
func NewServer(sessions *core.SessionStore, chat *core.ChatService, summarizer *core.Summarizer, broker *events.Broker, opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"trusted": func(s string) template.HTML { return template.HTML(s) },
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		Sessions:   sessions,
		Chat:       chat,
		Summarizer: summarizer,
		Broker:     broker,
		Templates:  tmpl,
		origins:    opts.AllowedOrigins,
	}
	if len(s.origins) == 0 {
		s.origins = defaultOrigins
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.handler = s.routes(opts)
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes(opts Options) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Logging)
	router.Use(middleware.Recovery)
	if opts.MaxBodyBytes > 0 {
		router.Use(middleware.BodyLimit(opts.MaxBodyBytes))
	}

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/", s.handleStart).Methods(http.MethodGet)

	router.HandleFunc("/sessions/{id}", s.handlePatientPage).Methods(http.MethodGet)
	page := router.PathPrefix("/sessions/{id}").Subrouter()
	page.HandleFunc("/messages", s.handlePostMessage).Methods(http.MethodPost)
	page.HandleFunc("/image", s.handleImage).Methods(http.MethodPost)
	page.HandleFunc("/lookup", s.handleLookup).Methods(http.MethodPost)
	page.HandleFunc("/progress", s.handleProgress).Methods(http.MethodGet)
	page.HandleFunc("/reset", s.handleReset).Methods(http.MethodPost)
	page.HandleFunc("/summary", s.handleSummary).Methods(http.MethodGet)
	page.HandleFunc("/questions", s.handleQuestion).Methods(http.MethodPost)
	page.HandleFunc("/recommendations", s.handleRecommendations).Methods(http.MethodPost)
	page.HandleFunc("/followup", s.handleFollowUp).Methods(http.MethodGet)
	page.HandleFunc("/print", s.handlePrint).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{id}/messages", s.handleAPIMessage).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{id}/reset", s.handleAPIReset).Methods(http.MethodPost)

	router.HandleFunc("/ws/sessions/{id}", s.handleWebSocket).Methods(http.MethodGet)

	router.HandleFunc("/doctor", s.handleDoctorPage).Methods(http.MethodGet)
	router.HandleFunc("/doctor/stream", s.handleDoctorStream).Methods(http.MethodGet)

	return cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "HX-Request", "HX-Target", "HX-Current-URL"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})(router)
}

// session resolves the {id} route variable, writing a 404 when unknown.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*core.Session, bool) {
	sess, err := s.Sessions.Get(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.Templates.ExecuteTemplate(&buf, name, data); err != nil {
		logger.Log.WithError(err).WithField("template", name).Error("Failed to render template")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Error("Failed to encode response")
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
