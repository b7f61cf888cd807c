// Package schema compiles content-type descriptors into goskema schemas
// and validates entry data against them before it reaches a repository.
package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	goskema "github.com/reoring/goskema"
	g "github.com/reoring/goskema/dsl"

	"github.com/draftpress/documents/pkg/documents"
)

// Validator checks entry data against compiled content-type schemas.
// Each content type is compiled once and the schema cached for reuse,
// so a validator is safe to share across goroutines.
type Validator struct {
	mu       sync.RWMutex
	compiled map[string]goskema.Schema[map[string]any]
}

// NewValidator precompiles one schema per registered content type so a
// malformed descriptor fails at composition time, not on the first write.
// A nil registry yields an empty validator that compiles lazily instead.
func NewValidator(reg *documents.Registry) (*Validator, error) {
	v := &Validator{compiled: make(map[string]goskema.Schema[map[string]any])}
	if reg == nil {
		return v, nil
	}
	for _, ct := range reg.All() {
		s, err := Compile(ct)
		if err != nil {
			return nil, err
		}
		v.compiled[ct.UID] = s
	}
	return v, nil
}

// ValidateEntityCreation checks data against the content type's attribute
// schema. Identifier and lifecycle fields injected by the service are not
// attributes; unknown keys are stripped rather than rejected, so they pass
// through unchecked. Failures come back as a *documents.ValidationError
// carrying one message list per offending field.
func (v *Validator) ValidateEntityCreation(ctx context.Context, ct documents.ContentType, data documents.Entry) error {
	s, err := v.schemaFor(ct)
	if err != nil {
		return err
	}
	if _, err := s.Parse(ctx, map[string]any(data)); err != nil {
		return asValidationError(err)
	}
	return nil
}

func (v *Validator) schemaFor(ct documents.ContentType) (goskema.Schema[map[string]any], error) {
	v.mu.RLock()
	s, ok := v.compiled[ct.UID]
	v.mu.RUnlock()
	if ok {
		return s, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.compiled[ct.UID]; ok {
		return s, nil
	}
	s, err := Compile(ct)
	if err != nil {
		return nil, err
	}
	v.compiled[ct.UID] = s
	return s, nil
}

// Compile builds the goskema schema for one content type. Required
// attributes must be present and non-null; optional attributes accept
// explicit nulls. String length bounds run as a refine rule because the
// adapter Min/Max checks only apply to numeric values.
func Compile(ct documents.ContentType) (goskema.Schema[map[string]any], error) {
	b := g.Object()

	names := make([]string, 0, len(ct.Attributes))
	for name := range ct.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		attr := ct.Attributes[name]
		ad, err := adapterFor(attr)
		if err != nil {
			return nil, fmt.Errorf("content type %q, attribute %q: %w", ct.UID, name, err)
		}
		if attr.Required {
			b = b.Field(name, ad).Required()
		} else {
			b = b.Field(name, ad.Nullable()).Optional()
		}
	}

	if rule := lengthRule(ct); rule != nil {
		b = b.Refine("string_length", rule)
	}
	return b.UnknownStrip().Build()
}

// MustCompile is Compile for static descriptors known to be well formed.
func MustCompile(ct documents.ContentType) goskema.Schema[map[string]any] {
	s, err := Compile(ct)
	if err != nil {
		panic(err)
	}
	return s
}

func adapterFor(attr documents.Attribute) (g.AnyAdapter, error) {
	switch attr.Type {
	case documents.AttributeString, documents.AttributeText:
		return g.StringOf[string](), nil
	case documents.AttributeInteger:
		return numericBounds(g.IntOf[int](), attr), nil
	case documents.AttributeFloat:
		return numericBounds(g.FloatOf[float64](), attr), nil
	case documents.AttributeBoolean:
		return g.BoolOf[bool](), nil
	case documents.AttributeDateTime:
		return g.SchemaOf[any](datetimeSchema{}), nil
	case documents.AttributeJSON:
		return g.SchemaOf[any](anyValueSchema{}), nil
	case documents.AttributeRelation:
		return g.SchemaOf[any](relationSchema{many: attr.Many}), nil
	default:
		return g.AnyAdapter{}, fmt.Errorf("unsupported attribute type %q", attr.Type)
	}
}

func numericBounds(ad g.AnyAdapter, attr documents.Attribute) g.AnyAdapter {
	if attr.Min != nil {
		ad = ad.Min(*attr.Min)
	}
	if attr.Max != nil {
		ad = ad.Max(*attr.Max)
	}
	return ad
}

type lengthBound struct {
	name string
	min  *float64
	max  *float64
}

// lengthRule returns a refine hook enforcing rune-count bounds on string
// attributes, or nil when the type declares none.
func lengthRule(ct documents.ContentType) func(context.Context, map[string]any) error {
	var bounds []lengthBound
	for name, attr := range ct.Attributes {
		if attr.Type != documents.AttributeString && attr.Type != documents.AttributeText {
			continue
		}
		if attr.Min == nil && attr.Max == nil {
			continue
		}
		bounds = append(bounds, lengthBound{name: name, min: attr.Min, max: attr.Max})
	}
	if len(bounds) == 0 {
		return nil
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i].name < bounds[j].name })

	return func(_ context.Context, m map[string]any) error {
		var iss goskema.Issues
		for _, b := range bounds {
			s, ok := m[b.name].(string)
			if !ok {
				continue
			}
			n := float64(utf8.RuneCountInString(s))
			if b.min != nil && n < *b.min {
				iss = goskema.AppendIssues(iss, goskema.Issue{
					Path:    "/" + b.name,
					Code:    goskema.CodeTooShort,
					Message: fmt.Sprintf("must be at least %d characters", int(*b.min)),
				})
			}
			if b.max != nil && n > *b.max {
				iss = goskema.AppendIssues(iss, goskema.Issue{
					Path:    "/" + b.name,
					Code:    goskema.CodeTooLong,
					Message: fmt.Sprintf("must be at most %d characters", int(*b.max)),
				})
			}
		}
		if len(iss) > 0 {
			return iss
		}
		return nil
	}
}

// asValidationError flattens goskema issues into the per-field error tree.
func asValidationError(err error) error {
	iss, ok := goskema.AsIssues(err)
	if !ok {
		return documents.NewValidationError(map[string][]string{"data": {err.Error()}})
	}
	details := make(map[string][]string, len(iss))
	for _, it := range iss {
		msg := it.Message
		if msg == "" {
			msg = it.Code
		}
		field := fieldPath(it.Path)
		details[field] = append(details[field], msg)
	}
	return documents.NewValidationError(details)
}

// fieldPath converts a JSON pointer like /tags/2 into the dotted form
// tags.2 used as validation detail keys. Root-level issues land on "data".
func fieldPath(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "data"
	}
	return strings.ReplaceAll(p, "/", ".")
}
