package documents

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemapIdentifiers(t *testing.T) {
	t.Run("PromotesDocumentID", func(t *testing.T) {
		entry := Entry{
			FieldID:         "row-1",
			FieldDocumentID: "doc-1",
			"title":         "Hello",
		}

		out := RemapIdentifiers(entry)

		assert.Equal(t, "doc-1", out.ID())
		assert.Equal(t, "row-1", out.EntryID())
		assert.Equal(t, "Hello", out["title"])
		_, hasDocumentID := out[FieldDocumentID]
		assert.False(t, hasDocumentID)
	})

	t.Run("LeavesInputUntouched", func(t *testing.T) {
		entry := Entry{FieldID: "row-1", FieldDocumentID: "doc-1"}

		RemapIdentifiers(entry)

		assert.Equal(t, "row-1", entry.ID())
		assert.Equal(t, "doc-1", entry.DocumentID())
	})

	t.Run("WithoutDocumentIDPassesThrough", func(t *testing.T) {
		entry := Entry{FieldID: "row-1", "title": "Hello"}

		out := RemapIdentifiers(entry)

		assert.Equal(t, entry, out)
	})

	t.Run("Idempotent", func(t *testing.T) {
		entry := Entry{FieldID: "row-1", FieldDocumentID: "doc-1"}

		once := RemapIdentifiers(entry)
		twice := RemapIdentifiers(once)

		assert.Equal(t, once, twice)
	})

	t.Run("WithoutRowIDStillPromotes", func(t *testing.T) {
		entry := Entry{FieldDocumentID: "doc-1"}

		out := RemapIdentifiers(entry)

		assert.Equal(t, "doc-1", out.ID())
		_, hasEntryID := out[FieldEntryID]
		assert.False(t, hasEntryID)
	})

	t.Run("Nil", func(t *testing.T) {
		assert.Nil(t, RemapIdentifiers(nil))
	})
}

func TestRemapEntries(t *testing.T) {
	entries := []Entry{
		{FieldID: "row-1", FieldDocumentID: "doc-1"},
		{FieldID: "row-2", FieldDocumentID: "doc-2"},
	}

	out := RemapEntries(entries)

	require.Len(t, out, 2)
	assert.Equal(t, "doc-1", out[0].ID())
	assert.Equal(t, "doc-2", out[1].ID())

	assert.Nil(t, RemapEntries(nil))
}

func TestStripFields(t *testing.T) {
	data := Entry{
		FieldID:          "row-1",
		FieldPublishedAt: time.Now(),
		"title":          "Hello",
	}

	out := stripFields(data, FieldID, FieldPublishedAt)

	assert.Equal(t, Entry{"title": "Hello"}, out)
	assert.Contains(t, data, FieldID, "input must keep its fields")
}

func TestForceDraft(t *testing.T) {
	t.Run("OverridesPublishedAt", func(t *testing.T) {
		data := Entry{"title": "Hello", FieldPublishedAt: time.Now()}

		out := forceDraft(data)

		v, present := out[FieldPublishedAt]
		require.True(t, present)
		assert.Nil(t, v)
		assert.Equal(t, "Hello", out["title"])
	})

	t.Run("NilData", func(t *testing.T) {
		out := forceDraft(nil)

		v, present := out[FieldPublishedAt]
		require.True(t, present)
		assert.Nil(t, v)
	})
}

func TestWithField(t *testing.T) {
	data := Entry{"title": "Hello"}

	out := withField(data, FieldLocale, "fr")

	assert.Equal(t, "fr", out.Locale())
	assert.NotContains(t, data, FieldLocale)
}

func TestEntryCopy(t *testing.T) {
	original := Entry{
		"title": "Hello",
		"meta":  map[string]any{"views": 3},
		"tags":  []any{"a", "b"},
		"refs":  []string{"x", "y"},
		"nested": Entry{
			"inner": []Entry{{"k": "v"}},
		},
	}

	copied := original.Copy()
	copied["meta"].(map[string]any)["views"] = 99
	copied["tags"].([]any)[0] = "mutated"
	copied["refs"].([]string)[0] = "mutated"
	copied["nested"].(Entry)["inner"].([]Entry)[0]["k"] = "mutated"

	assert.Equal(t, 3, original["meta"].(map[string]any)["views"])
	assert.Equal(t, "a", original["tags"].([]any)[0])
	assert.Equal(t, "x", original["refs"].([]string)[0])
	assert.Equal(t, "v", original["nested"].(Entry)["inner"].([]Entry)[0]["k"])

	var none Entry
	assert.Nil(t, none.Copy())
}

func TestEntryPublishedAt(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	tests := []struct {
		name  string
		value any
		want  *time.Time
	}{
		{"Missing", nil, nil},
		{"Time", now, &now},
		{"TimePointer", &now, &now},
		{"RFC3339String", now.Format(time.RFC3339), &now},
		{"RFC3339NanoString", now.Format(time.RFC3339Nano), &now},
		{"Garbage", "yesterday", nil},
		{"WrongType", 42, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := Entry{}
			if tt.value != nil {
				entry[FieldPublishedAt] = tt.value
			}

			got := entry.PublishedAt()
			if tt.want == nil {
				assert.Nil(t, got)
				assert.True(t, entry.IsDraft())
			} else {
				require.NotNil(t, got)
				assert.True(t, tt.want.Equal(*got))
				assert.False(t, entry.IsDraft())
			}
		})
	}

	t.Run("ExplicitNull", func(t *testing.T) {
		entry := Entry{FieldPublishedAt: nil}
		assert.Nil(t, entry.PublishedAt())
		assert.True(t, entry.IsDraft())
	})
}

func TestToPositiveInt(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int
	}{
		{"Nil", nil, 10},
		{"Int", 3, 3},
		{"Int64", int64(4), 4},
		{"Float", 2.9, 2},
		{"NumericString", "5", 5},
		{"FloatString", "5.7", 5},
		{"EmptyString", "", 10},
		{"Garbage", "many", 10},
		{"Zero", 0, 10},
		{"Negative", -2, 10},
		{"Bool", true, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, toPositiveInt(tt.value, 10))
		})
	}
}

func TestTransitionIDs(t *testing.T) {
	published := time.Now().UTC()
	entries := []Entry{
		{FieldID: "d-1", FieldEntryID: "row-1", FieldPublishedAt: nil},
		{FieldID: "d-2", FieldEntryID: "row-2", FieldPublishedAt: published},
		{FieldID: "d-3", FieldEntryID: "row-3", FieldPublishedAt: nil},
		{FieldPublishedAt: nil}, // no usable id
	}

	assert.Equal(t, []string{"row-1", "row-3"}, transitionIDs(entries, true))
	assert.Equal(t, []string{"row-2"}, transitionIDs(entries, false))
}

func TestStoreID(t *testing.T) {
	assert.Equal(t, "row-1", storeID(Entry{FieldID: "doc-1", FieldEntryID: "row-1"}))
	assert.Equal(t, "raw-1", storeID(Entry{FieldID: "raw-1"}))
	assert.Equal(t, "", storeID(Entry{}))
}
