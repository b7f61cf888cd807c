package schema

import (
	"context"
	"fmt"
	"time"

	goskema "github.com/reoring/goskema"
	js "github.com/reoring/goskema/jsonschema"

	"github.com/draftpress/documents/pkg/documents"
)

// datetimeSchema accepts time.Time values or RFC 3339 strings. Values pass
// through unconverted; repositories decide the stored representation.
type datetimeSchema struct{}

func (datetimeSchema) Parse(ctx context.Context, v any) (any, error) {
	if err := (datetimeSchema{}).TypeCheck(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (datetimeSchema) ParseWithMeta(ctx context.Context, v any) (goskema.Decoded[any], error) {
	p, err := (datetimeSchema{}).Parse(ctx, v)
	return goskema.Decoded[any]{Value: p, Presence: goskema.PresenceMap{"/": goskema.PresenceSeen}}, err
}

func (datetimeSchema) TypeCheck(ctx context.Context, v any) error {
	switch t := v.(type) {
	case time.Time, *time.Time:
		return nil
	case string:
		if _, err := time.Parse(time.RFC3339Nano, t); err != nil {
			return goskema.Issues{{Path: "/", Code: goskema.CodeInvalidFormat, Message: "expected an RFC 3339 datetime"}}
		}
		return nil
	default:
		return goskema.Issues{{Path: "/", Code: goskema.CodeInvalidType, Message: "expected a datetime"}}
	}
}

func (datetimeSchema) RuleCheck(ctx context.Context, v any) error { return nil }

func (datetimeSchema) Validate(ctx context.Context, v any) error {
	return (datetimeSchema{}).TypeCheck(ctx, v)
}

func (datetimeSchema) ValidateValue(ctx context.Context, v any) error {
	return (datetimeSchema{}).TypeCheck(ctx, v)
}

func (datetimeSchema) JSONSchema() (*js.Schema, error) {
	return &js.Schema{Type: "string", Format: "date-time"}, nil
}

// anyValueSchema passes arbitrary JSON values through untouched. It backs
// attributes of type json, whose shape is caller-defined.
type anyValueSchema struct{}

func (anyValueSchema) Parse(ctx context.Context, v any) (any, error) { return v, nil }

func (anyValueSchema) ParseWithMeta(ctx context.Context, v any) (goskema.Decoded[any], error) {
	return goskema.Decoded[any]{Value: v, Presence: goskema.PresenceMap{"/": goskema.PresenceSeen}}, nil
}

func (anyValueSchema) TypeCheck(ctx context.Context, v any) error     { return nil }
func (anyValueSchema) RuleCheck(ctx context.Context, v any) error     { return nil }
func (anyValueSchema) Validate(ctx context.Context, v any) error      { return nil }
func (anyValueSchema) ValidateValue(ctx context.Context, v any) error { return nil }

func (anyValueSchema) JSONSchema() (*js.Schema, error) { return &js.Schema{}, nil }

// relationSchema accepts relation references: an entry id string, a
// populated entry map, or (for to-many attributes) a slice of either.
type relationSchema struct{ many bool }

func (s relationSchema) Parse(ctx context.Context, v any) (any, error) {
	if err := s.TypeCheck(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (s relationSchema) ParseWithMeta(ctx context.Context, v any) (goskema.Decoded[any], error) {
	p, err := s.Parse(ctx, v)
	return goskema.Decoded[any]{Value: p, Presence: goskema.PresenceMap{"/": goskema.PresenceSeen}}, err
}

func (s relationSchema) TypeCheck(ctx context.Context, v any) error {
	if s.many {
		switch t := v.(type) {
		case []string:
			return nil
		case []any:
			for i, el := range t {
				if !validReference(el) {
					return goskema.Issues{{
						Path:    fmt.Sprintf("/%d", i),
						Code:    goskema.CodeInvalidType,
						Message: "expected an entry reference",
					}}
				}
			}
			return nil
		default:
			return goskema.Issues{{Path: "/", Code: goskema.CodeInvalidType, Message: "expected a list of entry references"}}
		}
	}
	if !validReference(v) {
		return goskema.Issues{{Path: "/", Code: goskema.CodeInvalidType, Message: "expected an entry reference"}}
	}
	return nil
}

func (s relationSchema) RuleCheck(ctx context.Context, v any) error { return nil }

func (s relationSchema) Validate(ctx context.Context, v any) error {
	return s.TypeCheck(ctx, v)
}

func (s relationSchema) ValidateValue(ctx context.Context, v any) error {
	return s.TypeCheck(ctx, v)
}

func (s relationSchema) JSONSchema() (*js.Schema, error) {
	if s.many {
		return &js.Schema{Type: "array", Items: &js.Schema{Type: "string"}}, nil
	}
	return &js.Schema{Type: "string"}, nil
}

func validReference(v any) bool {
	switch v.(type) {
	case string, map[string]any, documents.Entry:
		return true
	}
	return false
}
