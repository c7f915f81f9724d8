package web

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/census-resolver/internal/cache"
	"github.com/census-resolver/internal/census"
	"github.com/census-resolver/internal/db"
	"github.com/census-resolver/internal/resolver"
	"github.com/census-resolver/internal/store"
	"github.com/census-resolver/internal/web/handlers"
	"github.com/census-resolver/internal/web/middleware"
)

// Server represents the web server
type Server struct {
	config     *Config
	store      store.Store
	dbConn     *sql.DB
	cache      *cache.Cache
	httpServer *http.Server
	router     *mux.Router
}

// NewServer creates a new web server instance over the configured
// store backend.
func NewServer(config *Config) (*Server, error) {
	st, conn, err := openStore(config)
	if err != nil {
		return nil, err
	}

	server := &Server{
		config: config,
		store:  st,
		dbConn: conn,
		cache:  cache.New(st),
	}

	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      server.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server, nil
}

func openStore(config *Config) (store.Store, *sql.DB, error) {
	switch config.Database.Backend {
	case BackendSQLite:
		conn, err := db.OpenSnapshot(config.Database.SnapshotPath, false)
		if err != nil {
			return nil, nil, err
		}
		return store.NewSQLiteStore(conn), conn, nil
	case BackendPostgres:
		conn, err := db.NewConnection()
		if err != nil {
			return nil, nil, err
		}
		return store.NewPostgresStore(conn.DB), conn.DB, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", config.Database.Backend)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	client := census.NewClient(s.cache, census.Options{
		BaseURL:  s.config.Census.BaseURL,
		APIKey:   s.config.Census.APIKey,
		CacheTTL: time.Duration(s.config.Census.CacheTTLHours) * time.Hour,
	})

	searchHandler := &handlers.SearchHandler{
		SummaryLevels: resolver.NewSummaryLevelResolver(s.store),
		Geographies:   resolver.NewGeographyResolver(s.store),
		Tables:        resolver.NewDataTableResolver(s.store),
	}
	dataHandler := &handlers.DataHandler{Client: client}
	apiHandler := &handlers.APIHandler{Store: s.store}
	exportHandler := &handlers.ExportHandler{DB: s.dbConn}

	api := s.router.PathPrefix("/api").Subrouter()

	// Resolution endpoints
	api.HandleFunc("/search/summary-levels", searchHandler.SearchSummaryLevels).Methods("GET")
	api.HandleFunc("/search/geographies", searchHandler.SearchGeographies).Methods("GET")
	api.HandleFunc("/search/tables", searchHandler.SearchTables).Methods("GET")

	// Data fetch endpoint (cache-gated upstream call)
	api.HandleFunc("/data", dataHandler.GetData).Methods("GET")

	// Diagnostics
	api.HandleFunc("/stats", apiHandler.GetStats).Methods("GET")

	// Reference data export (importer-compatible CSV)
	api.HandleFunc("/export/{table}", exportHandler.ExportTable).Methods("GET")

	s.router.Use(middleware.CORS())
	s.router.Use(middleware.RequestLogging())
	api.Use(middleware.APIKey(s.config.Server.APIKey))
}

// Start starts the web server
func (s *Server) Start() error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		fmt.Printf("Starting server on http://%s\n", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server error: %v\n", err)
		}
	}()

	<-stop
	fmt.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		fmt.Printf("Server shutdown error: %v\n", err)
	}

	// Let detached cache writes finish before the store closes.
	s.cache.Flush()

	if err := s.store.Close(); err != nil {
		fmt.Printf("Store close error: %v\n", err)
	}

	fmt.Println("Server stopped")
	return nil
}
