// Package server wires the plat-wfs HTTP server.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"go.uber.org/zap"

	"github.com/joeblew999/plat-wfs/internal/api"
	"github.com/joeblew999/plat-wfs/internal/api/editor"
	"github.com/joeblew999/plat-wfs/internal/db"
	"github.com/joeblew999/plat-wfs/internal/service"
	"github.com/joeblew999/plat-wfs/internal/session"
	"github.com/joeblew999/plat-wfs/internal/store"
	"github.com/joeblew999/plat-wfs/internal/templates"
	"github.com/joeblew999/plat-wfs/internal/wfs"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	WebDir  string // Path to web/ directory for static files, pages and fragment overrides
	Log     *zap.Logger
	// HTTPClient is used for WFS requests. Nil uses the wfs default.
	HTTPClient *http.Client
}

// Server is the plat-wfs HTTP server.
type Server struct {
	config   Config
	log      *zap.Logger
	mux      *http.ServeMux
	humaAPI  huma.API
	db       *sql.DB
	bus      *service.EventBus
	services *api.Services
	renderer *templates.Renderer
}

// New creates a new server. A missing feature cache is logged and the
// server runs without it.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()

	humaConfig := huma.DefaultConfig("plat-wfs API", api.Version)
	humaConfig.Info.Description = "Interactive WFS vector layers: layer definitions, viewer sessions with hover, selection and popups, and a DuckDB feature cache."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())

	s := &Server{
		config:   cfg,
		log:      log,
		mux:      mux,
		humaAPI:  humago.New(mux, humaConfig),
		bus:      service.NewEventBus(),
		renderer: loadRenderer(cfg.WebDir, log),
	}

	conn, err := db.Open(db.Config{
		DataDir:    cfg.DataDir,
		DBName:     "wfs",
		Extensions: []string{"json", "spatial"},
		Log:        log,
	})
	var features *store.FeatureStore
	if err == nil {
		features, err = store.New(context.Background(), conn)
		if err != nil {
			conn.Close()
		} else {
			s.db = conn
		}
	}
	if err != nil {
		log.Warn("feature cache unavailable", zap.Error(err))
	}

	sources := service.NewSourceService(cfg.DataDir)
	opts := []session.Option{
		session.WithSources(sources),
		session.WithBus(s.bus),
		session.WithLogger(log),
	}
	if features != nil {
		opts = append(opts, session.WithSink(features))
	}
	wfsOpts := []wfs.Option{wfs.WithLogger(log)}
	if cfg.HTTPClient != nil {
		wfsOpts = append(wfsOpts, wfs.WithHTTPClient(cfg.HTTPClient))
	}

	s.services = &api.Services{
		Layer:    service.NewLayerService(cfg.DataDir),
		Source:   sources,
		Sessions: session.NewRegistry(wfs.NewClient(wfsOpts...), opts...),
		Store:    features,
	}

	s.routes()
	return s
}

// loadRenderer uses web/templates/fragments when present, else the
// built-in fragments.
func loadRenderer(webDir string, log *zap.Logger) *templates.Renderer {
	if webDir != "" {
		fragmentsDir := filepath.Join(webDir, "templates", "fragments")
		if _, err := os.Stat(fragmentsDir); err == nil {
			r, err := templates.New(fragmentsDir)
			if err == nil {
				log.Info("loaded fragment templates", zap.String("dir", fragmentsDir))
				return r
			}
			log.Warn("fragment templates invalid, using built-ins", zap.String("dir", fragmentsDir), zap.Error(err))
		}
	}
	return templates.Default()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Sessions returns the viewer session registry.
func (s *Server) Sessions() *session.Registry {
	return s.services.Sessions
}

// Close closes every session and the feature cache.
func (s *Server) Close() error {
	s.services.Sessions.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// REST API (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewDBHandler(s.db).RegisterRoutes(s.humaAPI)
	api.NewInfoHandler(s.config.DataDir, s.db != nil, func() int {
		return len(s.services.Sessions.List())
	}).RegisterRoutes(s.humaAPI)

	// Datastar SSE routes for the editor and viewer pages
	layerHandler := editor.NewLayerHandler(s.services.Layer, s.services.Sessions, s.bus, s.renderer)
	layerHandler.RegisterRoutes(s.humaAPI)

	viewerHandler := editor.NewViewerHandler(s.services.Sessions, s.renderer)
	viewerHandler.RegisterRoutes(s.humaAPI)

	sourceHandler := editor.NewSourceHandler(s.services.Source, s.services.Layer, s.bus, s.renderer)
	sourceHandler.RegisterRoutes(s.humaAPI)

	editor.NewEventHandler(layerHandler, sourceHandler, viewerHandler, s.bus).RegisterRoutes(s.humaAPI)

	// Static files and pages
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
	}
	s.mux.HandleFunc("/viewer", s.handlePage("viewer.html"))
	s.mux.HandleFunc("/editor", s.handlePage("editor.html"))
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-wfs",
		"status":  "running",
	})
}

func (s *Server) handlePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.WebDir == "" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, filepath.Join(s.config.WebDir, "templates", name))
	}
}
