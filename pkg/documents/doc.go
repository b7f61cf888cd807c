// Package documents provides the publish lifecycle for content entries:
// draft/published state keyed on a nullable publishedAt timestamp, deep
// relation populate with optional count collapse, identifier remapping,
// and batch publish/unpublish with lifecycle event emission.
//
// It exposes a single Service interface that orchestrates entry
// create/update/clone/delete and the publish/unpublish transitions over a
// pluggable Repository. Implementations of repositories (memory, Postgres,
// SurrealDB) are provided under subpackages, as are the goskema-backed
// entity validator (schema), a mountable HTTP handler set (api), and a
// configuration loader (config).
//
// # Status Model
//
// An entry's publishedAt attribute is the sole source of truth for its
// draft/published status: a nil publishedAt means draft, a non-nil one
// means published. Transitioning that attribute through Publish/Unpublish
// (or their batch forms) is the only supported way to change status;
// Update strips any caller-supplied publishedAt from a patch.
package documents
