package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/craftpad/runbox/config"
	"github.com/craftpad/runbox/pkgmanager"
	"github.com/craftpad/runbox/runtime"
)

// ExecutionService is the slice of the execution runtime the API serves
type ExecutionService interface {
	ExecuteCode(ctx context.Context, req runtime.ExecutionRequest) runtime.ExecutionResult
	ActiveContainers() []runtime.ContainerInfo
	StopContainer(id string) bool
	SupportedLanguages() []string
	HealthCheck(ctx context.Context) runtime.Health
}

// PackageService is the slice of the package manager the API serves
type PackageService interface {
	Install(ctx context.Context, req pkgmanager.InstallRequest) pkgmanager.InstallResult
	InstalledPackages(ctx context.Context, projectID, lang string) ([]string, error)
}

// Server is the HTTP boundary over the execution runtime and package
// manager. It validates inbound JSON, constructs execution requests and
// serializes results; all execution semantics live below it.
type Server struct {
	logger *zap.Logger
	cfg    *config.Config
	exec   ExecutionService
	pkgs   PackageService
	router *mux.Router
	server *http.Server
}

// NewServer creates the API server and wires its routes
func NewServer(logger *zap.Logger, cfg *config.Config, exec ExecutionService, pkgs PackageService) *Server {
	s := &Server{
		logger: logger,
		cfg:    cfg,
		exec:   exec,
		pkgs:   pkgs,
	}

	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/execute", s.handleExecute).Methods("POST")
	api.HandleFunc("/terminal", s.handleTerminal).Methods("POST")
	api.HandleFunc("/packages/install", s.handlePackageInstall).Methods("POST")
	api.HandleFunc("/packages/{projectId}/{language}", s.handlePackageList).Methods("GET")
	api.HandleFunc("/containers/active", s.handleActiveContainers).Methods("GET")
	api.HandleFunc("/containers/{id}/stop", s.handleStopContainer).Methods("POST")
	api.HandleFunc("/languages", s.handleLanguages).Methods("GET")
	api.HandleFunc("/execution/health", s.handleHealth).Methods("GET")

	s.router = router
	return s
}

// Router exposes the handler tree (used by tests and the fx wiring)
func (s *Server) Router() http.Handler {
	return s.router
}

// Start serves HTTP on the configured port until Shutdown
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("http api listening", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(start)))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
