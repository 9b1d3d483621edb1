package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/schema"
	"github.com/lychee-technology/customapi"
	"github.com/lychee-technology/customapi/factory"
	"go.uber.org/zap"
)

// Server serves generated endpoints and the admin API.
type Server struct {
	registry  customapi.ContentTypeRegistry
	builder   customapi.TreeBuilder
	manager   customapi.DefinitionManager
	endpoints customapi.EndpointService
	health    func(ctx context.Context) error

	baseURL        string
	warningsHeader string
	decoder        *schema.Decoder
	router         chi.Router
}

// NewServer creates a Server over the wired services.
func NewServer(services *factory.Services, config *customapi.Config, health func(ctx context.Context) error) *Server {
	s := &Server{
		registry:       services.Registry,
		builder:        services.Builder,
		manager:        services.Manager,
		endpoints:      services.Endpoints,
		health:         health,
		baseURL:        config.Server.BaseURL,
		warningsHeader: config.Response.WarningsHeader,
		decoder:        newQueryDecoder(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/{slug}", func(r chi.Router) {
		r.Get("/", s.handleEndpoint)
		r.Get("/docs", s.handleEndpointDocs)
	})

	r.Route("/admin/custom-api", func(r chi.Router) {
		r.Get("/content-types", s.handleListContentTypes)
		r.Get("/content-types/{uid}", s.handleGetContentType)
		r.Get("/content-types/{uid}/tree", s.handleBuildTree)

		r.Post("/tree/toggle-item", s.handleToggleItem)
		r.Post("/tree/toggle-category", s.handleToggleCategory)
		r.Post("/tree/compile", s.handleCompile)

		r.Get("/definitions", s.handleListDefinitions)
		r.Post("/definitions", s.handleCreateDefinition)
		r.Get("/definitions/{id}", s.handleGetDefinition)
		r.Put("/definitions/{id}", s.handleUpdateDefinition)
		r.Delete("/definitions/{id}", s.handleDeleteDefinition)
		r.Get("/definitions/{id}/validate", s.handleValidateDefinition)
		r.Post("/definitions/{id}/clean", s.handleCleanDefinition)

		r.Get("/slugs/check", s.handleCheckSlug)
		r.Get("/slugs/generate", s.handleGenerateSlug)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func main() {
	config, err := customapi.LoadConfigFromEnv()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Sugar().Fatalf("failed to load configuration: %v", err)
	}

	logger, err := newLogger(config.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config); err != nil {
		sugar.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context, config *customapi.Config) error {
	services, health, cleanup, err := buildServices(ctx, config)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:         ":" + config.Server.Port,
		Handler:      NewServer(services, config, health),
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.S().Infow("starting server", "port", config.Server.Port, "engine", config.Query.Engine)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	zap.S().Infow("shutting down server", "timeout", config.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
