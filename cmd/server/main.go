package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ilyakaznacheev/cleanenv"

	"github.com/draftpress/documents/pkg/documents"
	"github.com/draftpress/documents/pkg/documents/api"
	"github.com/draftpress/documents/pkg/documents/config"
)

type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	Environment string `env:"ENVIRONMENT" env-default:"development"`

	DatabaseURL string `env:"DATABASE_URL" env-default:""`
	DBSchema    string `env:"DB_SCHEMA" env-default:"documents"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" env-default:"false"`
	Surreal     SurrealConfig

	SchemaPath string `env:"SCHEMA_PATH" env-default:""`

	EventLogging      bool `env:"EVENT_LOGGING" env-default:"true"`
	PopulateRelations bool `env:"POPULATE_RELATIONS" env-default:"false"`
	PopulateDepth     int  `env:"POPULATE_DEPTH" env-default:"-1"`
}

type SurrealConfig struct {
	Namespace string `env:"SURREAL_NAMESPACE" env-default:"documents"`
	Database  string `env:"SURREAL_DATABASE" env-default:"documents"`
	Username  string `env:"SURREAL_USER" env-default:""`
	Password  string `env:"SURREAL_PASS" env-default:""`
}

// options maps the environment configuration onto server options. The
// database kind follows from the URL scheme.
func (c Config) options() ([]config.Option, error) {
	opts := []config.Option{
		config.WithPort(c.Port),
		config.WithEnvironment(c.Environment),
		config.WithDatabaseSchema(c.DBSchema),
		config.WithAutoMigrate(c.AutoMigrate),
		config.WithEventLogging(c.EventLogging),
		config.WithPopulateFlags(c.PopulateRelations, c.PopulateDepth),
	}
	if c.SchemaPath != "" {
		opts = append(opts, config.WithSchemaPath(c.SchemaPath))
	}

	switch {
	case c.DatabaseURL == "" || c.DatabaseURL == "memory":
		opts = append(opts, config.WithDatabase("memory", ""))
	case strings.HasPrefix(c.DatabaseURL, "postgres://"),
		strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		opts = append(opts, config.WithDatabase("postgres", c.DatabaseURL))
	case strings.HasPrefix(c.DatabaseURL, "ws://"),
		strings.HasPrefix(c.DatabaseURL, "wss://"):
		opts = append(opts,
			config.WithDatabase("surreal", c.DatabaseURL),
			config.WithSurrealTarget(c.Surreal.Namespace, c.Surreal.Database, c.Surreal.Username, c.Surreal.Password))
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL format: %s", c.DatabaseURL)
	}

	return opts, nil
}

func main() {
	var envConfig Config
	if err := cleanenv.ReadEnv(&envConfig); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	opts, err := envConfig.options()
	if err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	serverConfig, err := config.Load(opts...)
	if err != nil {
		slog.Error("Failed to load server configuration", "err", err)
		os.Exit(1)
	}

	svc, err := serverConfig.BuildService()
	if err != nil {
		slog.Error("Failed to build documents service", "err", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: routes(svc, serverConfig),
	}

	go func() {
		slog.Info("Documents server starting",
			"port", serverConfig.Port,
			"env", serverConfig.Environment,
			"database", serverConfig.DatabaseType)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", "err", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "err", err)
		os.Exit(1)
	}

	slog.Info("Server exiting")
}

func routes(svc documents.Service, cfg *config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS for development
	if cfg.Environment == "development" {
		r.Use(corsAllowAll)
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy", "environment": %q, "database_type": %q}`,
			cfg.Environment, cfg.DatabaseType)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/documents", api.NewDocumentHandler(svc).Routes())
	})

	return r
}

func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
