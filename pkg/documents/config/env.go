package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
// Server:
//
//	PORT - Server port (default: "8080")
//	ENVIRONMENT - Runtime environment (default: "development")
//
// Database:
//
//	DATABASE_URL - Connection string. "postgresql://" or "postgres://"
//	               selects postgres, "ws://" or "wss://" selects SurrealDB,
//	               empty or "memory" selects the in-memory store.
//	DB_SCHEMA - Postgres schema (default: "documents")
//	AUTO_MIGRATE - Create the entry table on startup (postgres only)
//	SURREAL_NAMESPACE, SURREAL_DATABASE - SurrealDB target (default: "documents")
//	SURREAL_USER, SURREAL_PASS - SurrealDB credentials (optional)
//
// Content types:
//
//	SCHEMA_PATH - JSON file of content-type descriptors
//
// Service:
//
//	EVENT_LOGGING - Log lifecycle events (default: true)
//	POPULATE_RELATIONS - Resolve relations instead of count collapsing
//	POPULATE_DEPTH - Deep-populate depth bound (negative: unlimited)
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}

		if v, ok := lookupEnv(prefix, "SCHEMA_PATH"); ok && v != "" {
			c.SchemaPath = v
		}

		if v, set, err := parseBoolEnv(prefix, "EVENT_LOGGING"); err != nil {
			return err
		} else if set {
			c.EnableEventLogging = v
		}
		if v, set, err := parseBoolEnv(prefix, "POPULATE_RELATIONS"); err != nil {
			return err
		} else if set {
			c.PopulateRelations = v
		}
		if v, set, err := parseIntEnv(prefix, "POPULATE_DEPTH"); err != nil {
			return err
		} else if set {
			c.MaxPopulateDepth = v
		}

		return nil
	}
}

// applyDatabaseEnv applies database configuration from environment.
func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "DB_SCHEMA"); ok && v != "" {
		c.DBSchema = v
	}
	if v, set, err := parseBoolEnv(prefix, "AUTO_MIGRATE"); err != nil {
		return err
	} else if set {
		c.AutoMigrate = v
	}

	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	switch {
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "ws://"), strings.HasPrefix(dbURL, "wss://"):
		c.DatabaseType = "surreal"
		c.DatabaseURL = dbURL
		applySurrealEnv(prefix, c)
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgresql://...' or 'ws://...')", dbURL)
	}

	return nil
}

// applySurrealEnv reads SurrealDB target and credential variables.
func applySurrealEnv(prefix string, c *ServerConfig) {
	if v, ok := lookupEnv(prefix, "SURREAL_NAMESPACE"); ok && v != "" {
		c.SurrealNamespace = v
	}
	if v, ok := lookupEnv(prefix, "SURREAL_DATABASE"); ok && v != "" {
		c.SurrealDatabase = v
	}
	if v, ok := lookupEnv(prefix, "SURREAL_USER"); ok && v != "" {
		c.SurrealUsername = v
	}
	if v, ok := lookupEnv(prefix, "SURREAL_PASS"); ok && v != "" {
		c.SurrealPassword = v
	}
}

func lookupEnv(prefix, key string) (string, bool) {
	return os.LookupEnv(prefix + key)
}

func parseBoolEnv(prefix, key string) (bool, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return false, false, nil
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("invalid boolean for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}

func parseIntEnv(prefix, key string) (int, bool, error) {
	raw, ok := lookupEnv(prefix, key)
	if !ok || raw == "" {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("invalid integer for %s%s: %w", prefix, key, err)
	}
	return parsed, true, nil
}
