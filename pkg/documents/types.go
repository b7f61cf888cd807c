package documents

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Well-known entry field names.
const (
	FieldID          = "id"
	FieldDocumentID  = "documentId"
	FieldEntryID     = "entryId"
	FieldPublishedAt = "publishedAt"
	FieldLocale      = "locale"
	FieldCreatedAt   = "createdAt"
	FieldUpdatedAt   = "updatedAt"
	FieldCount       = "count"
)

// Lifecycle event names emitted on the event hub.
const (
	EventEntryCreate    = "entry.create"
	EventEntryUpdate    = "entry.update"
	EventEntryDelete    = "entry.delete"
	EventEntryPublish   = "entry.publish"
	EventEntryUnpublish = "entry.unpublish"
)

// Pagination defaults applied when a caller supplies nothing usable.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Entry is one instance of a content type: an attribute bag holding the
// entry's fields, relation references, and lifecycle timestamps. Entries
// are owned by the repository; the service never retains one beyond the
// scope of a single operation.
type Entry map[string]any

// ID returns the entry's identifier field as a string.
func (e Entry) ID() string {
	return stringField(e, FieldID)
}

// DocumentID returns the stable document identifier, if present.
func (e Entry) DocumentID() string {
	return stringField(e, FieldDocumentID)
}

// EntryID returns the relocated row identifier of a remapped entry.
func (e Entry) EntryID() string {
	return stringField(e, FieldEntryID)
}

// Locale returns the entry's locale, if present.
func (e Entry) Locale() string {
	return stringField(e, FieldLocale)
}

// PublishedAt returns the publish timestamp, or nil for a draft. It
// tolerates the representations produced by the repositories and by JSON
// round trips (time.Time, *time.Time, RFC 3339 string).
func (e Entry) PublishedAt() *time.Time {
	v, ok := e[FieldPublishedAt]
	if !ok || v == nil {
		return nil
	}
	switch t := v.(type) {
	case time.Time:
		return &t
	case *time.Time:
		return t
	case string:
		if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return &parsed
		}
	}
	return nil
}

// IsDraft reports whether the entry is in draft state.
func (e Entry) IsDraft() bool {
	return e.PublishedAt() == nil
}

func stringField(e Entry, field string) string {
	if v, ok := e[field]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// AttributeType identifies the kind of a content-type attribute.
type AttributeType string

// Attribute type constants (typed).
const (
	AttributeString   AttributeType = "string"
	AttributeText     AttributeType = "text"
	AttributeInteger  AttributeType = "integer"
	AttributeFloat    AttributeType = "float"
	AttributeBoolean  AttributeType = "boolean"
	AttributeDateTime AttributeType = "datetime"
	AttributeJSON     AttributeType = "json"
	AttributeRelation AttributeType = "relation"
)

// Attribute describes one attribute of a content type.
//
// For relation attributes, Target names the UID of the related content
// type and Many selects to-many over to-one cardinality. Min and Max
// constrain string lengths and numeric ranges during validation.
type Attribute struct {
	Type     AttributeType `json:"type"`
	Required bool          `json:"required,omitempty"`
	Min      *float64      `json:"min,omitempty"`
	Max      *float64      `json:"max,omitempty"`
	Target   string        `json:"target,omitempty"`
	Many     bool          `json:"many,omitempty"`
}

// IsRelation reports whether the attribute references other entries.
func (a Attribute) IsRelation() bool {
	return a.Type == AttributeRelation
}

// ContentType is the static descriptor of an entry shape.
type ContentType struct {
	UID            string               `json:"uid"`
	CollectionName string               `json:"collectionName"`
	Localized      bool                 `json:"localized,omitempty"`
	Attributes     map[string]Attribute `json:"attributes"`
}

// RelationAttributes returns the names of the type's relation attributes
// in sorted order.
func (ct ContentType) RelationAttributes() []string {
	var names []string
	for name, attr := range ct.Attributes {
		if attr.IsRelation() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Registry holds the content types known to a service. It is built once
// at composition time and read-only afterwards.
type Registry struct {
	types map[string]ContentType
}

// NewRegistry creates a registry from the given content types.
func NewRegistry(types ...ContentType) *Registry {
	r := &Registry{types: make(map[string]ContentType, len(types))}
	for _, ct := range types {
		r.types[ct.UID] = ct
	}
	return r
}

// Get returns the content type registered under uid.
func (r *Registry) Get(uid string) (ContentType, error) {
	ct, ok := r.types[uid]
	if !ok {
		return ContentType{}, fmt.Errorf("%q: %w", uid, ErrContentTypeNotFound)
	}
	return ct, nil
}

// All returns every registered content type, sorted by UID.
func (r *Registry) All() []ContentType {
	out := make([]ContentType, 0, len(r.types))
	for _, ct := range r.types {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// Pagination describes one page of a paged result set.
type Pagination struct {
	Page      int `json:"page"`
	PageSize  int `json:"pageSize"`
	PageCount int `json:"pageCount"`
	Total     int `json:"total"`
}

// Page bundles a page of entries with its pagination metadata.
type Page struct {
	Results    []Entry    `json:"results"`
	Pagination Pagination `json:"pagination"`
}

// BatchResult reports the affected-row count of a batch transition.
type BatchResult struct {
	Count int `json:"count"`
}

// LifecycleEvent is the payload broadcast on the event hub after a state
// transition.
type LifecycleEvent struct {
	Model string `json:"model"`
	Entry Entry  `json:"entry"`
}

// Flags is an immutable configuration snapshot read once per logical
// operation. PopulateRelations selects full relation objects over the
// count-collapsed {count: N} form; MaxPopulateDepth bounds deep populate
// (negative means unlimited, cycle-guarded).
type Flags struct {
	PopulateRelations bool
	MaxPopulateDepth  int
}

// toPositiveInt coerces an arbitrary caller-supplied pagination value to
// a positive int. Unparseable or non-positive values fall back to def.
func toPositiveInt(v any, def int) int {
	var n int
	switch t := v.(type) {
	case nil:
		return def
	case int:
		n = t
	case int32:
		n = int(t)
	case int64:
		n = int(t)
	case float64:
		n = int(t)
	case float32:
		n = int(t)
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return def
		}
		n = int(f)
	default:
		return def
	}
	if n < 1 {
		return def
	}
	return n
}
