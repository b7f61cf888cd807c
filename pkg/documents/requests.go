package documents

// Request DTOs

// CreateRequest contains parameters for creating a new entry. The entry
// is always created as a draft; any publishedAt in Data is overridden.
type CreateRequest struct {
	ContentType string
	Data        Entry
	Locale      string
}

// UpdateRequest contains parameters for patching an existing entry.
// Identifier fields and publishedAt are stripped from Data before the
// patch applies; status changes go through Publish/Unpublish only.
type UpdateRequest struct {
	ContentType string
	Entry       Entry
	Data        Entry
}

// CloneRequest contains parameters for duplicating an entry. Data
// overrides the source attributes; the clone starts as a draft under
// fresh identifiers.
type CloneRequest struct {
	ContentType string
	Entry       Entry
	Data        Entry
}

// DeleteRequest contains parameters for removing an entry.
type DeleteRequest struct {
	ContentType string
	Entry       Entry
}

// PublishRequest contains parameters for a draft-to-published transition.
type PublishRequest struct {
	ContentType string
	Entry       Entry
}

// UnpublishRequest contains parameters for a published-to-draft
// transition. Data is an optional patch applied alongside the transition.
type UnpublishRequest struct {
	ContentType string
	Entry       Entry
	Data        Entry
}

// PublishManyRequest contains parameters for a batch publish.
type PublishManyRequest struct {
	ContentType string
	Entries     []Entry
}

// UnpublishManyRequest contains parameters for a batch unpublish.
type UnpublishManyRequest struct {
	ContentType string
	Entries     []Entry
}
