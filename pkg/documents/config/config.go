// Package config assembles a documents.Service from declarative settings,
// typically sourced from the environment in cmd/server and from code in
// embedded setups.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftpress/documents/pkg/documents"
	"github.com/draftpress/documents/pkg/documents/repo/memory"
	repopg "github.com/draftpress/documents/pkg/documents/repo/postgres"
	reposurreal "github.com/draftpress/documents/pkg/documents/repo/surreal"
	"github.com/draftpress/documents/pkg/documents/schema"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		DBSchema:           "documents",
		SurrealNamespace:   "documents",
		SurrealDatabase:    "documents",
		EnableEventLogging: true,
		PopulateRelations:  false,
		MaxPopulateDepth:   -1,
	}
}

// ServerConfig represents server configuration for the documents service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "surreal"
	DBSchema     string // Postgres schema to use (default: documents)
	AutoMigrate  bool   // create the entry table on startup (postgres only)

	// SurrealDB connection details, used when DatabaseType is "surreal".
	SurrealNamespace string
	SurrealDatabase  string
	SurrealUsername  string
	SurrealPassword  string

	// Content types, from a descriptor file and/or code.
	SchemaPath string
	Types      []documents.ContentType

	// Service options
	EnableEventLogging bool
	PopulateRelations  bool
	MaxPopulateDepth   int

	Logger *slog.Logger
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case "surreal":
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using surreal")
		}
		if c.SurrealNamespace == "" || c.SurrealDatabase == "" {
			return errors.New("surreal namespace and database are required")
		}
	default:
		return errors.New("database_type must be 'memory', 'postgres' or 'surreal'")
	}

	return nil
}

// BuildService creates a Service instance from the server configuration.
func (c *ServerConfig) BuildService() (documents.Service, error) {
	var options []documents.Option

	repo, err := c.buildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}
	options = append(options, documents.WithRepository(repo))

	reg, err := c.buildRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build content-type registry: %w", err)
	}
	options = append(options, documents.WithContentTypes(reg))

	validator, err := schema.NewValidator(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to compile content-type schemas: %w", err)
	}
	options = append(options, documents.WithValidator(validator))

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	options = append(options, documents.WithLogger(logger))

	if c.EnableEventLogging {
		options = append(options, documents.WithEventHub(documents.NewLoggingEventHub(logger)))
	} else {
		options = append(options, documents.WithEventHub(documents.NewNoopEventHub()))
	}

	options = append(options, documents.WithFlags(documents.Flags{
		PopulateRelations: c.PopulateRelations,
		MaxPopulateDepth:  c.MaxPopulateDepth,
	}))

	return documents.New(options...)
}

// buildRepository creates a Repository based on the configuration.
func (c *ServerConfig) buildRepository() (documents.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return memory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schemaName := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schemaName == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schemaName))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		if c.AutoMigrate {
			if err := repopg.Migrate(context.Background(), pool); err != nil {
				return nil, fmt.Errorf("failed to migrate entry table: %w", err)
			}
		}
		return repopg.NewWithPool(pool), nil
	case "surreal":
		return reposurreal.New(
			context.Background(),
			c.DatabaseURL,
			c.SurrealNamespace,
			c.SurrealDatabase,
			c.SurrealUsername,
			c.SurrealPassword,
		)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildRegistry merges file-loaded and programmatic content types. On a UID
// collision the programmatic descriptor wins.
func (c *ServerConfig) buildRegistry() (*documents.Registry, error) {
	var types []documents.ContentType
	if c.SchemaPath != "" {
		loaded, err := schema.LoadTypes(c.SchemaPath)
		if err != nil {
			return nil, err
		}
		types = append(types, loaded...)
	}
	types = append(types, c.Types...)
	return documents.NewRegistry(types...), nil
}

// PingPostgres verifies connectivity to Postgres and optionally sets
// search_path for the session. It fails if the schema (when provided) does
// not exist.
func PingPostgres(databaseURL, schemaName string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schemaName != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schemaName))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}
