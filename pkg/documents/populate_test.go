package documents_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftpress/documents/pkg/documents"
)

// The fixture graph is cyclic on purpose: articles reference authors and
// authors reference articles back.
func populateRegistry() *documents.Registry {
	return documents.NewRegistry(
		documents.ContentType{
			UID:            "api::article.article",
			CollectionName: "articles",
			Attributes: map[string]documents.Attribute{
				"title":  {Type: documents.AttributeString, Required: true},
				"tags":   {Type: documents.AttributeRelation, Target: "api::tag.tag", Many: true},
				"author": {Type: documents.AttributeRelation, Target: "api::author.author"},
			},
		},
		documents.ContentType{
			UID:            "api::author.author",
			CollectionName: "authors",
			Attributes: map[string]documents.Attribute{
				"name":     {Type: documents.AttributeString, Required: true},
				"articles": {Type: documents.AttributeRelation, Target: "api::article.article", Many: true},
			},
		},
		documents.ContentType{
			UID:            "api::tag.tag",
			CollectionName: "tags",
			Attributes: map[string]documents.Attribute{
				"label": {Type: documents.AttributeString},
			},
		},
	)
}

func TestPopulateBuilder(t *testing.T) {
	registry := populateRegistry()

	t.Run("WalksRelationGraph", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::article.article").
			Build()

		require.Contains(t, populate, "tags")
		require.Contains(t, populate, "author")

		// Tags have no relations of their own.
		assert.Nil(t, populate["tags"].Populate)

		// Authors recurse into their articles.
		author := populate["author"].Populate
		require.Contains(t, author, "articles")
	})

	t.Run("CycleIsNotReentered", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::article.article").
			Build()

		// article -> author -> articles stops there: the articles relation
		// is listed but does not descend back into the article type.
		author := populate["author"].Populate
		require.Contains(t, author, "articles")
		assert.Nil(t, author["articles"].Populate)
	})

	t.Run("MaxDepthBoundsTraversal", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::article.article").
			MaxDepth(1).
			Build()

		require.Contains(t, populate, "author")
		assert.Nil(t, populate["author"].Populate)
	})

	t.Run("ZeroDepthYieldsNothing", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::article.article").
			MaxDepth(0).
			Build()

		assert.Nil(t, populate)
	})

	t.Run("CountMode", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::article.article").
			CountRelationsIf(true).
			Build()

		assert.Equal(t, documents.PopulateValue{Count: true}, populate["tags"])
		assert.Equal(t, documents.PopulateValue{Count: true}, populate["author"])
		assert.Nil(t, populate["author"].Populate)
	})

	t.Run("NoRelations", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::tag.tag").
			Build()

		assert.Nil(t, populate)
	})

	t.Run("UnknownRoot", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(registry).
			ContentType("api::missing.missing").
			Build()

		assert.Nil(t, populate)
	})

	t.Run("NilRegistry", func(t *testing.T) {
		populate := documents.NewPopulateBuilder(nil).
			ContentType("api::article.article").
			Build()

		assert.Nil(t, populate)
	})
}

func TestCollapseRelationCounts(t *testing.T) {
	registry := populateRegistry()
	articleType, err := registry.Get("api::article.article")
	require.NoError(t, err)

	t.Run("CollapsesEachForm", func(t *testing.T) {
		entry := documents.Entry{
			"title":  "Hello",
			"tags":   []any{documents.Entry{"label": "a"}, documents.Entry{"label": "b"}},
			"author": documents.Entry{"name": "Ada"},
		}

		out := documents.CollapseRelationCounts(entry, articleType)

		assert.Equal(t, documents.Entry{documents.FieldCount: 2}, out["tags"])
		assert.Equal(t, documents.Entry{documents.FieldCount: 1}, out["author"])
		assert.Equal(t, "Hello", out["title"])
	})

	t.Run("NullRelationCountsZero", func(t *testing.T) {
		entry := documents.Entry{"title": "Hello", "author": nil}

		out := documents.CollapseRelationCounts(entry, articleType)

		assert.Equal(t, documents.Entry{documents.FieldCount: 0}, out["author"])
	})

	t.Run("ReferenceFormsCount", func(t *testing.T) {
		entry := documents.Entry{
			"tags":   []string{"row-1", "row-2", "row-3"},
			"author": "row-9",
		}

		out := documents.CollapseRelationCounts(entry, articleType)

		assert.Equal(t, documents.Entry{documents.FieldCount: 3}, out["tags"])
		assert.Equal(t, documents.Entry{documents.FieldCount: 1}, out["author"])
	})

	t.Run("AlreadyCollapsedPassesThrough", func(t *testing.T) {
		entry := documents.Entry{
			"tags": documents.Entry{documents.FieldCount: 7},
		}

		out := documents.CollapseRelationCounts(entry, articleType)

		assert.Equal(t, documents.Entry{documents.FieldCount: 7}, out["tags"])
	})

	t.Run("AbsentRelationStaysAbsent", func(t *testing.T) {
		entry := documents.Entry{"title": "Hello"}

		out := documents.CollapseRelationCounts(entry, articleType)

		assert.NotContains(t, out, "tags")
		assert.NotContains(t, out, "author")
	})

	t.Run("InputUntouched", func(t *testing.T) {
		entry := documents.Entry{"tags": []string{"row-1"}}

		documents.CollapseRelationCounts(entry, articleType)

		assert.Equal(t, []string{"row-1"}, entry["tags"])
	})

	t.Run("NoRelationTypeReturnsSameEntry", func(t *testing.T) {
		tagType, err := registry.Get("api::tag.tag")
		require.NoError(t, err)
		entry := documents.Entry{"label": "a"}

		out := documents.CollapseRelationCounts(entry, tagType)

		assert.Equal(t, entry, out)
	})

	t.Run("Nil", func(t *testing.T) {
		assert.Nil(t, documents.CollapseRelationCounts(nil, articleType))
	})
}
