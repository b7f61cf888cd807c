package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftpress/documents/pkg/documents"
	"github.com/draftpress/documents/pkg/documents/schema"
)

func float64Ptr(f float64) *float64 { return &f }

func articleType() documents.ContentType {
	return documents.ContentType{
		UID:            "api::article.article",
		CollectionName: "articles",
		Attributes: map[string]documents.Attribute{
			"title":    {Type: documents.AttributeString, Required: true, Min: float64Ptr(3), Max: float64Ptr(40)},
			"subtitle": {Type: documents.AttributeText},
			"views":    {Type: documents.AttributeInteger, Min: float64Ptr(0), Max: float64Ptr(1000)},
			"rating":   {Type: documents.AttributeFloat},
			"featured": {Type: documents.AttributeBoolean},
			"airedAt":  {Type: documents.AttributeDateTime},
			"meta":     {Type: documents.AttributeJSON},
			"author":   {Type: documents.AttributeRelation, Target: "api::author.author"},
			"tags":     {Type: documents.AttributeRelation, Target: "api::tag.tag", Many: true},
		},
	}
}

func newValidator(t *testing.T) *schema.Validator {
	t.Helper()
	v, err := schema.NewValidator(documents.NewRegistry(articleType()))
	require.NoError(t, err)
	return v
}

func validationDetails(t *testing.T, err error) map[string][]string {
	t.Helper()
	require.Error(t, err)
	var verr *documents.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Details
}

func TestValidator_ValidEntries(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()
	ct := articleType()

	t.Run("AllAttributeKinds", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title":    "Go Generics",
			"subtitle": "a field report",
			"views":    42,
			"rating":   4.5,
			"featured": true,
			"airedAt":  "2024-03-01T10:00:00Z",
			"meta":     map[string]any{"source": "rss", "weight": 3},
			"author":   "author-entry-1",
			"tags":     []string{"tag-1", "tag-2"},
		})
		assert.NoError(t, err)
	})

	t.Run("OnlyRequiredFields", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{"title": "Minimal"})
		assert.NoError(t, err)
	})

	t.Run("OptionalExplicitNull", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title":    "Nulled",
			"subtitle": nil,
			"meta":     nil,
		})
		assert.NoError(t, err)
	})

	t.Run("DatetimeAsTime", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title":   "Timestamped",
			"airedAt": time.Now().UTC(),
		})
		assert.NoError(t, err)
	})

	t.Run("PopulatedRelationForms", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title":  "Rich Relations",
			"author": map[string]any{"id": "author-entry-1", "name": "Ada"},
			"tags":   []any{"tag-1", documents.Entry{"id": "tag-entry-2"}},
		})
		assert.NoError(t, err)
	})

	t.Run("ManagedFieldsIgnored", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title":                    "With Managed Fields",
			documents.FieldID:          "row-1",
			documents.FieldDocumentID:  "doc-1",
			documents.FieldPublishedAt: nil,
			documents.FieldCreatedAt:   time.Now(),
			"somethingNobodyDeclared":  "ignored",
		})
		assert.NoError(t, err)
	})
}

func TestValidator_Violations(t *testing.T) {
	v := newValidator(t)
	ctx := context.Background()
	ct := articleType()

	t.Run("RequiredMissing", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{"views": 1})
		details := validationDetails(t, err)
		require.Contains(t, details, "title")
		assert.Equal(t, []string{"required property missing"}, details["title"])
	})

	t.Run("RequiredNull", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{"title": nil})
		details := validationDetails(t, err)
		require.Contains(t, details, "title")
		assert.Equal(t, []string{"invalid type"}, details["title"])
	})

	t.Run("WrongScalarType", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title": "Typed",
			"views": "ten",
		})
		details := validationDetails(t, err)
		require.Contains(t, details, "views")
		assert.Equal(t, []string{"invalid type"}, details["views"])
	})

	t.Run("IntegerBelowMin", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title": "Negative",
			"views": -5,
		})
		details := validationDetails(t, err)
		require.Contains(t, details, "views")
		assert.Equal(t, []string{"too_small"}, details["views"])
	})

	t.Run("IntegerAboveMax", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title": "Huge",
			"views": 2000,
		})
		details := validationDetails(t, err)
		require.Contains(t, details, "views")
		assert.Equal(t, []string{"too_big"}, details["views"])
	})

	t.Run("StringTooShort", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{"title": "ab"})
		details := validationDetails(t, err)
		require.Contains(t, details, "title")
		assert.Equal(t, []string{"must be at least 3 characters"}, details["title"])
	})

	t.Run("StringTooLong", func(t *testing.T) {
		long := make([]rune, 41)
		for i := range long {
			long[i] = 'x'
		}
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{"title": string(long)})
		details := validationDetails(t, err)
		require.Contains(t, details, "title")
		assert.Equal(t, []string{"must be at most 40 characters"}, details["title"])
	})

	t.Run("BadDatetime", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title":   "Dated",
			"airedAt": "yesterday",
		})
		details := validationDetails(t, err)
		require.Contains(t, details, "airedAt")
		assert.Equal(t, []string{"expected an RFC 3339 datetime"}, details["airedAt"])
	})

	t.Run("ScalarForToManyRelation", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title": "Tagged",
			"tags":  "tag-1",
		})
		details := validationDetails(t, err)
		require.Contains(t, details, "tags")
		assert.Equal(t, []string{"expected a list of entry references"}, details["tags"])
	})

	t.Run("BadRelationElement", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{
			"title": "Tagged",
			"tags":  []any{"tag-1", 42},
		})
		details := validationDetails(t, err)
		require.Contains(t, details, "tags.1")
		assert.Equal(t, []string{"expected an entry reference"}, details["tags.1"])
	})

	t.Run("JoinedMessage", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, documents.Entry{"views": "ten"})
		require.Error(t, err)
		var verr *documents.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "title: required property missing; views: invalid type", verr.Message)
		assert.Len(t, verr.Details, 2)
	})

	t.Run("NilEntryReportsRequired", func(t *testing.T) {
		err := v.ValidateEntityCreation(ctx, ct, nil)
		details := validationDetails(t, err)
		require.Contains(t, details, "title")
	})
}

func TestCompile(t *testing.T) {
	t.Run("UnsupportedAttributeType", func(t *testing.T) {
		_, err := schema.Compile(documents.ContentType{
			UID: "api::bad.bad",
			Attributes: map[string]documents.Attribute{
				"payload": {Type: documents.AttributeType("blob")},
			},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unsupported attribute type "blob"`)
	})

	t.Run("MustCompilePanics", func(t *testing.T) {
		assert.Panics(t, func() {
			schema.MustCompile(documents.ContentType{
				UID: "api::bad.bad",
				Attributes: map[string]documents.Attribute{
					"payload": {Type: documents.AttributeType("blob")},
				},
			})
		})
	})

	t.Run("NewValidatorRejectsBadRegistry", func(t *testing.T) {
		reg := documents.NewRegistry(documents.ContentType{
			UID: "api::bad.bad",
			Attributes: map[string]documents.Attribute{
				"payload": {Type: documents.AttributeType("blob")},
			},
		})
		_, err := schema.NewValidator(reg)
		assert.Error(t, err)
	})

	t.Run("NilRegistry", func(t *testing.T) {
		v, err := schema.NewValidator(nil)
		require.NoError(t, err)
		err = v.ValidateEntityCreation(context.Background(), articleType(), documents.Entry{"title": "Lazy"})
		assert.NoError(t, err)
	})
}

func TestLoadTypes(t *testing.T) {
	writeFile := func(t *testing.T, contents string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "types.json")
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
		return path
	}

	t.Run("ValidFile", func(t *testing.T) {
		path := writeFile(t, `[
			{
				"uid": "api::article.article",
				"collectionName": "articles",
				"localized": true,
				"attributes": {
					"title": {"type": "string", "required": true},
					"views": {"type": "integer", "min": 0},
					"tags":  {"type": "relation", "target": "api::tag.tag", "many": true}
				}
			},
			{
				"uid": "api::tag.tag",
				"collectionName": "tags",
				"attributes": {
					"label": {"type": "string", "required": true}
				}
			}
		]`)

		types, err := schema.LoadTypes(path)
		require.NoError(t, err)
		require.Len(t, types, 2)
		assert.Equal(t, "api::article.article", types[0].UID)
		assert.True(t, types[0].Localized)
		assert.True(t, types[0].Attributes["title"].Required)
		require.NotNil(t, types[0].Attributes["views"].Min)
		assert.Equal(t, float64(0), *types[0].Attributes["views"].Min)
		assert.True(t, types[0].Attributes["tags"].Many)

		reg, err := schema.LoadRegistry(path)
		require.NoError(t, err)
		ct, err := reg.Get("api::tag.tag")
		require.NoError(t, err)
		assert.Equal(t, "tags", ct.CollectionName)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := schema.LoadTypes(filepath.Join(t.TempDir(), "absent.json"))
		assert.Error(t, err)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		_, err := schema.LoadTypes(writeFile(t, `{not json`))
		assert.Error(t, err)
	})

	t.Run("MissingUID", func(t *testing.T) {
		_, err := schema.LoadTypes(writeFile(t, `[{"collectionName": "x", "attributes": {}}]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "missing uid")
	})

	t.Run("BadAttributeType", func(t *testing.T) {
		_, err := schema.LoadTypes(writeFile(t, `[
			{"uid": "api::b.b", "attributes": {"x": {"type": "blob"}}}
		]`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported attribute type")
	})
}
