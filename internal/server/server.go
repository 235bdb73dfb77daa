package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/yuin/goldmark"

	"memestash/internal/analyze"
	"memestash/internal/config"
	"memestash/internal/database"
	"memestash/internal/generate"
	"memestash/internal/styleguide"
	"memestash/internal/trends"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// GuideSynthesizer is the style guide surface the server needs.
type GuideSynthesizer interface {
	Synthesize(ctx context.Context) (*styleguide.Result, error)
	Latest() (*database.StyleGuide, error)
}

// MemeGenerator runs generation requests.
type MemeGenerator interface {
	Run(ctx context.Context, req generate.Request) (*generate.Result, error)
}

// HumorAnalyzer runs analysis batches.
type HumorAnalyzer interface {
	AnalyzeAll(ctx context.Context) (*analyze.Result, error)
	AnalyzeIDs(ctx context.Context, ids []int64) (*analyze.Result, error)
}

// Server is the HTTP surface: a JSON API for the extension and scripts, and
// an HTML dashboard for the owner.
type Server struct {
	cfg      *config.Config
	db       *database.DB
	trends   *trends.Aggregator
	guides   GuideSynthesizer
	gen      MemeGenerator
	analyzer HumorAnalyzer
	pages    map[string]*template.Template
	router   *mux.Router
}

// New creates a new Server.
func New(cfg *config.Config, db *database.DB, guides GuideSynthesizer, gen MemeGenerator, analyzer HumorAnalyzer) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
	}

	// Parse base template first
	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// For each page template, clone the base and parse the page into the clone.
	// This gives each page its own {{define "content"}} and {{define "title"}}.
	pageNames := []string{"index.html", "login.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		_, err = clone.ParseFS(templateFS, "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	s := &Server{
		cfg:      cfg,
		db:       db,
		trends:   trends.NewAggregator(db),
		guides:   guides,
		gen:      gen,
		analyzer: analyzer,
		pages:    pages,
		router:   mux.NewRouter(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	// Open API routes: login and extension ingest.
	open := s.router.PathPrefix("/api").Subrouter()
	open.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	open.HandleFunc("/collect", s.handleCollect).Methods(http.MethodPost, http.MethodOptions)

	// Everything else under /api needs a session.
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.requireSession)
	api.HandleFunc("/trends", s.handleTrends).Methods(http.MethodGet)
	api.HandleFunc("/style-guide", s.handleGetStyleGuide).Methods(http.MethodGet)
	api.HandleFunc("/style-guide", s.handleSynthesizeStyleGuide).Methods(http.MethodPost)
	api.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)

	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	s.router.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// HTML pages
	s.router.HandleFunc("/login", s.handleLoginPage).Methods(http.MethodGet)
	s.router.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	s.router.HandleFunc("/", s.handleDashboard).Methods(http.MethodGet)
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if s.hasValidSession(r) {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	s.render(w, "login.html", nil)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	clearSession(w)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !s.hasValidSession(r) {
		http.Redirect(w, r, "/login", http.StatusFound)
		return
	}

	stats, err := s.db.GetStats()
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	report, _ := s.trends.Aggregate(7)
	guide, _ := s.guides.Latest()
	recent, _ := s.db.GetRecentGeneratedMemes(10)

	s.render(w, "index.html", map[string]any{
		"Stats":  stats,
		"Report": report,
		"Guide":  guide,
		"Recent": recent,
	})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
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
func Serve(cfg *config.Config, db *database.DB, guides GuideSynthesizer, gen MemeGenerator, analyzer HumorAnalyzer, port int) error {
	srv, err := New(cfg, db, guides, gen, analyzer)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
