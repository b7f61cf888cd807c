package documents

import (
	"context"
)

// Service defines the main interface for the documents library. All
// entries returned to callers carry remapped identifiers (documentId
// promoted to id, the row id relocated to entryId).
type Service interface {
	// Read operations
	Find(ctx context.Context, contentType string, opts ...FindOption) ([]Entry, error)
	FindPage(ctx context.Context, contentType string, opts ...FindOption) (*Page, error)
	FindOne(ctx context.Context, contentType, id string, opts ...FindOption) (Entry, error)

	// Single-entry lifecycle operations
	Create(ctx context.Context, req CreateRequest) (Entry, error)
	Update(ctx context.Context, req UpdateRequest) (Entry, error)
	Clone(ctx context.Context, req CloneRequest) (Entry, error)
	Delete(ctx context.Context, req DeleteRequest) (Entry, error)
	Publish(ctx context.Context, req PublishRequest) (Entry, error)
	Unpublish(ctx context.Context, req UnpublishRequest) (Entry, error)

	// Batch transitions
	PublishMany(ctx context.Context, req PublishManyRequest) (*BatchResult, error)
	UnpublishMany(ctx context.Context, req UnpublishManyRequest) (*BatchResult, error)

	// Draft-relation counting
	CountDraftRelations(ctx context.Context, contentType, id string) (int, error)
	CountManyEntriesDraftRelations(ctx context.Context, contentType string, ids []string, locale string) (int, error)
}
