package config

import (
	"fmt"
	"log/slog"

	"github.com/draftpress/documents/pkg/documents"
)

// WithPort sets the server port.
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing).
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend.
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		switch dbType {
		case "memory":
		case "postgres", "surreal":
			if url == "" {
				return fmt.Errorf("database URL is required for %s", dbType)
			}
		default:
			return fmt.Errorf("database type must be 'memory', 'postgres' or 'surreal', got: %s", dbType)
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres).
func WithDatabaseSchema(schemaName string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schemaName
		return nil
	}
}

// WithAutoMigrate creates the entry table on startup (postgres only).
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithSurrealTarget sets the SurrealDB namespace, database and credentials.
func WithSurrealTarget(namespace, database, username, password string) Option {
	return func(c *ServerConfig) error {
		if namespace == "" || database == "" {
			return fmt.Errorf("surreal namespace and database cannot be empty")
		}
		c.SurrealNamespace = namespace
		c.SurrealDatabase = database
		c.SurrealUsername = username
		c.SurrealPassword = password
		return nil
	}
}

// WithSchemaPath points at a JSON file of content-type descriptors.
func WithSchemaPath(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return fmt.Errorf("schema path cannot be empty")
		}
		c.SchemaPath = path
		return nil
	}
}

// WithContentTypes registers content types programmatically. They are merged
// with any file-loaded descriptors; on a UID collision these win.
func WithContentTypes(types ...documents.ContentType) Option {
	return func(c *ServerConfig) error {
		c.Types = append(c.Types, types...)
		return nil
	}
}

// WithEventLogging toggles lifecycle event logging.
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithPopulateFlags sets the relation-population flag snapshot handed to the
// service: populate selects full relation objects over {count: N} collapsing,
// depth bounds deep populate (negative means unlimited).
func WithPopulateFlags(populate bool, depth int) Option {
	return func(c *ServerConfig) error {
		c.PopulateRelations = populate
		c.MaxPopulateDepth = depth
		return nil
	}
}

// WithLogger sets the logger used by the service and event hub.
func WithLogger(logger *slog.Logger) Option {
	return func(c *ServerConfig) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.Logger = logger
		return nil
	}
}
