package config

import (
	"context"
	"testing"

	"github.com/draftpress/documents/pkg/documents"
)

func TestWithPort(t *testing.T) {
	cfg, err := Load(WithPort("9090"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got: %s", cfg.Port)
	}
}

func TestWithPortEmpty(t *testing.T) {
	_, err := Load(WithPort(""))
	if err == nil {
		t.Error("expected error for empty port, got nil")
	}
}

func TestWithEnvironment(t *testing.T) {
	cfg, err := Load(WithEnvironment("production"))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("expected environment production, got: %s", cfg.Environment)
	}
}

func TestWithDatabase(t *testing.T) {
	tests := []struct {
		name      string
		dbType    string
		url       string
		wantError bool
	}{
		{"memory valid", "memory", "", false},
		{"postgres valid", "postgres", "postgresql://localhost/test", false},
		{"postgres missing url", "postgres", "", true},
		{"surreal valid", "surreal", "ws://localhost:8000/rpc", false},
		{"surreal missing url", "surreal", "", true},
		{"invalid type", "mysql", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(WithDatabase(tt.dbType, tt.url))
			if tt.wantError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got: %v", err)
			}
			if cfg.DatabaseType != tt.dbType {
				t.Errorf("expected database type %s, got: %s", tt.dbType, cfg.DatabaseType)
			}
			if cfg.DatabaseURL != tt.url {
				t.Errorf("expected database URL %s, got: %s", tt.url, cfg.DatabaseURL)
			}
		})
	}
}

func TestWithSurrealTarget(t *testing.T) {
	cfg, err := Load(
		WithDatabase("surreal", "ws://localhost:8000/rpc"),
		WithSurrealTarget("app", "cms", "root", "secret"),
	)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if cfg.SurrealNamespace != "app" || cfg.SurrealDatabase != "cms" {
		t.Errorf("unexpected surreal target: %s/%s", cfg.SurrealNamespace, cfg.SurrealDatabase)
	}
}

func TestWithSurrealTargetEmpty(t *testing.T) {
	_, err := Load(WithSurrealTarget("", "cms", "", ""))
	if err == nil {
		t.Error("expected error for empty namespace, got nil")
	}
}

func TestWithSchemaPathEmpty(t *testing.T) {
	_, err := Load(WithSchemaPath(""))
	if err == nil {
		t.Error("expected error for empty schema path, got nil")
	}
}

func TestWithPopulateFlags(t *testing.T) {
	cfg, err := Load(WithPopulateFlags(true, 2))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if !cfg.PopulateRelations {
		t.Error("expected populate relations enabled")
	}
	if cfg.MaxPopulateDepth != 2 {
		t.Errorf("expected populate depth 2, got: %d", cfg.MaxPopulateDepth)
	}
}

func TestWithLoggerNil(t *testing.T) {
	_, err := Load(WithLogger(nil))
	if err == nil {
		t.Error("expected error for nil logger, got nil")
	}
}

func TestWithContentTypes(t *testing.T) {
	article := documents.ContentType{
		UID:            "api::article.article",
		CollectionName: "articles",
		Attributes: map[string]documents.Attribute{
			"title": {Type: documents.AttributeString, Required: true},
		},
	}

	cfg, err := Load(WithContentTypes(article))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if len(cfg.Types) != 1 || cfg.Types[0].UID != "api::article.article" {
		t.Errorf("expected article content type, got: %+v", cfg.Types)
	}
}

func TestValidateRejectsIncompleteSurreal(t *testing.T) {
	_, err := Load(func(c *ServerConfig) error {
		c.DatabaseType = "surreal"
		c.DatabaseURL = "ws://localhost:8000/rpc"
		c.SurrealNamespace = ""
		return nil
	})
	if err == nil {
		t.Error("expected error for missing surreal namespace, got nil")
	}
}

func TestBuildServiceMemory(t *testing.T) {
	article := documents.ContentType{
		UID:            "api::article.article",
		CollectionName: "articles",
		Attributes: map[string]documents.Attribute{
			"title": {Type: documents.AttributeString, Required: true},
			"views": {Type: documents.AttributeInteger},
		},
	}

	cfg, err := Load(WithContentTypes(article), WithEventLogging(false))
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	svc, err := cfg.BuildService()
	if err != nil {
		t.Fatalf("expected no error building service, got: %v", err)
	}
	if svc == nil {
		t.Fatal("expected a service instance")
	}

	entry, err := svc.Create(context.Background(), documents.CreateRequest{
		ContentType: "api::article.article",
		Data:        documents.Entry{"title": "Wired"},
	})
	if err != nil {
		t.Fatalf("expected create to succeed, got: %v", err)
	}
	if entry.DocumentID() == "" {
		t.Error("expected a document id on the created entry")
	}
}

func TestBuildServiceRejectsBadSchemaFile(t *testing.T) {
	cfg := ServerConfig{
		Port:         "8080",
		DatabaseType: "memory",
		SchemaPath:   "/nonexistent/types.json",
	}

	if _, err := cfg.BuildService(); err == nil {
		t.Error("expected error for missing schema file, got nil")
	}
}
