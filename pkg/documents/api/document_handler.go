// Package api exposes the document lifecycle service over HTTP. The
// handlers are thin: they bind route and query parameters, call the
// service, and render its results.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	json "github.com/goccy/go-json"

	"github.com/draftpress/documents/pkg/documents"
)

// EntryRequest is the request body for entry writes. Data carries the
// attribute bag; Locale applies to creation only.
type EntryRequest struct {
	Data   documents.Entry `json:"data"`
	Locale string          `json:"locale,omitempty"`
}

// BulkRequest is the request body for batch transitions. DocumentIDs name
// the target documents; Locale optionally scopes the lookup.
type BulkRequest struct {
	DocumentIDs []string `json:"documentIds"`
	Locale      string   `json:"locale,omitempty"`
}

// CountResponse is the response body for counting endpoints.
type CountResponse struct {
	Count int `json:"count"`
}

// ErrorResponse is the envelope for error replies.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody describes one failed request.
type ErrorBody struct {
	Status  int                 `json:"status"`
	Name    string              `json:"name"`
	Message string              `json:"message"`
	Details map[string][]string `json:"details,omitempty"`
}

// DocumentHandler handles HTTP requests for entry lifecycle operations.
type DocumentHandler struct {
	service documents.Service
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(service documents.Service) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Routes returns the routes for document lifecycle operations. Static
// segments take priority over the {id} parameter, so the collection-level
// action routes never shadow entry lookups.
func (h *DocumentHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{contentType}", h.ListEntries)
	r.Post("/{contentType}", h.CreateEntry)
	r.Get("/{contentType}/draft-relations", h.CountManyDraftRelations)
	r.Post("/{contentType}/actions/bulk-publish", h.BulkPublish)
	r.Post("/{contentType}/actions/bulk-unpublish", h.BulkUnpublish)
	r.Get("/{contentType}/{id}", h.GetEntry)
	r.Put("/{contentType}/{id}", h.UpdateEntry)
	r.Delete("/{contentType}/{id}", h.DeleteEntry)
	r.Post("/{contentType}/{id}/actions/clone", h.CloneEntry)
	r.Post("/{contentType}/{id}/actions/publish", h.PublishEntry)
	r.Post("/{contentType}/{id}/actions/unpublish", h.UnpublishEntry)
	r.Get("/{contentType}/{id}/draft-relations", h.CountDraftRelations)

	return r
}

// ListEntries returns one page of entries.
// Query parameters: page, pageSize, locale, sort (comma-separated,
// field or field:desc), status (draft|published), populate
// (comma-separated relation paths, dotted for nesting).
func (h *DocumentHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")

	page, err := h.service.FindPage(r.Context(), contentType, findOptions(r)...)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, page)
}

// GetEntry retrieves an entry by id or document id.
func (h *DocumentHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	entry, err := h.service.FindOne(r.Context(), contentType, id, findOptions(r)...)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entry == nil {
		respondError(w, r, documents.ErrEntryNotFound)
		return
	}

	render.JSON(w, r, entry)
}

// CreateEntry creates a new draft entry.
func (h *DocumentHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.service.Create(r.Context(), documents.CreateRequest{
		ContentType: contentType,
		Data:        req.Data,
		Locale:      req.Locale,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("Entry created", "content_type", contentType, "document_id", entry.ID())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

// UpdateEntry patches an entry's attributes.
func (h *DocumentHandler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	var req EntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, ok := h.fetch(w, r, contentType, id)
	if !ok {
		return
	}

	entry, err := h.service.Update(r.Context(), documents.UpdateRequest{
		ContentType: contentType,
		Entry:       target,
		Data:        req.Data,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, entry)
}

// CloneEntry duplicates an entry under fresh identifiers. The optional
// body carries attribute overrides.
func (h *DocumentHandler) CloneEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	req, err := decodeOptional(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, ok := h.fetch(w, r, contentType, id)
	if !ok {
		return
	}

	entry, err := h.service.Clone(r.Context(), documents.CloneRequest{
		ContentType: contentType,
		Entry:       target,
		Data:        req.Data,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("Entry cloned", "content_type", contentType, "source", id, "document_id", entry.ID())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, entry)
}

// DeleteEntry removes an entry and returns it as it was.
func (h *DocumentHandler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	target, ok := h.fetch(w, r, contentType, id)
	if !ok {
		return
	}

	entry, err := h.service.Delete(r.Context(), documents.DeleteRequest{
		ContentType: contentType,
		Entry:       target,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("Entry deleted", "content_type", contentType, "document_id", id)
	render.JSON(w, r, entry)
}

// PublishEntry stamps an entry's publish timestamp.
func (h *DocumentHandler) PublishEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	target, ok := h.fetch(w, r, contentType, id)
	if !ok {
		return
	}

	entry, err := h.service.Publish(r.Context(), documents.PublishRequest{
		ContentType: contentType,
		Entry:       target,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	if entry == nil {
		respondError(w, r, documents.ErrEntryNotFound)
		return
	}

	slog.Info("Entry published", "content_type", contentType, "document_id", id)
	render.JSON(w, r, entry)
}

// UnpublishEntry clears an entry's publish timestamp. The optional body
// carries a patch applied alongside the transition.
func (h *DocumentHandler) UnpublishEntry(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	req, err := decodeOptional(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, ok := h.fetch(w, r, contentType, id)
	if !ok {
		return
	}

	entry, err := h.service.Unpublish(r.Context(), documents.UnpublishRequest{
		ContentType: contentType,
		Entry:       target,
		Data:        req.Data,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	slog.Info("Entry unpublished", "content_type", contentType, "document_id", id)
	render.JSON(w, r, entry)
}

// BulkPublish publishes every draft among the named documents.
func (h *DocumentHandler) BulkPublish(w http.ResponseWriter, r *http.Request) {
	h.bulkTransition(w, r, true)
}

// BulkUnpublish reverts every published entry among the named documents
// to draft.
func (h *DocumentHandler) BulkUnpublish(w http.ResponseWriter, r *http.Request) {
	h.bulkTransition(w, r, false)
}

func (h *DocumentHandler) bulkTransition(w http.ResponseWriter, r *http.Request, publish bool) {
	contentType := chi.URLParam(r, "contentType")

	var req BulkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.DocumentIDs) == 0 {
		http.Error(w, "documentIds is required", http.StatusBadRequest)
		return
	}

	opts := []documents.FindOption{
		documents.WithFilter(documents.FieldDocumentID, documents.Filters{documents.OpIn: req.DocumentIDs}),
	}
	if req.Locale != "" {
		opts = append(opts, documents.WithLocale(req.Locale))
	}
	entries, err := h.service.Find(r.Context(), contentType, opts...)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var result *documents.BatchResult
	if publish {
		result, err = h.service.PublishMany(r.Context(), documents.PublishManyRequest{
			ContentType: contentType,
			Entries:     entries,
		})
	} else {
		result, err = h.service.UnpublishMany(r.Context(), documents.UnpublishManyRequest{
			ContentType: contentType,
			Entries:     entries,
		})
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	if result == nil {
		result = &documents.BatchResult{}
	}

	slog.Info("Bulk transition applied",
		"content_type", contentType,
		"publish", publish,
		"count", result.Count)
	render.JSON(w, r, result)
}

// CountDraftRelations reports how many related entries of one entry are
// still drafts.
func (h *DocumentHandler) CountDraftRelations(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")
	id := chi.URLParam(r, "id")

	count, err := h.service.CountDraftRelations(r.Context(), contentType, id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, CountResponse{Count: count})
}

// CountManyDraftRelations sums draft-relation counts across the entries
// named by repeated id query parameters.
func (h *DocumentHandler) CountManyDraftRelations(w http.ResponseWriter, r *http.Request) {
	contentType := chi.URLParam(r, "contentType")

	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		http.Error(w, "Missing required 'id' parameter", http.StatusBadRequest)
		return
	}
	locale := r.URL.Query().Get("locale")

	count, err := h.service.CountManyEntriesDraftRelations(r.Context(), contentType, ids, locale)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, CountResponse{Count: count})
}

// fetch resolves the target entry of a single-entry operation, writing
// the error reply itself when the entry cannot be produced.
func (h *DocumentHandler) fetch(w http.ResponseWriter, r *http.Request, contentType, id string) (documents.Entry, bool) {
	entry, err := h.service.FindOne(r.Context(), contentType, id)
	if err != nil {
		respondError(w, r, err)
		return nil, false
	}
	if entry == nil {
		respondError(w, r, documents.ErrEntryNotFound)
		return nil, false
	}
	return entry, true
}

// decodeOptional reads an EntryRequest body, tolerating an absent one.
func decodeOptional(r *http.Request) (EntryRequest, error) {
	var req EntryRequest
	if r.Body == nil {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err == nil || errors.Is(err, io.EOF) {
		return req, nil
	}
	return EntryRequest{}, err
}

// findOptions binds the read-path query parameters.
func findOptions(r *http.Request) []documents.FindOption {
	q := r.URL.Query()

	opts := []documents.FindOption{
		documents.WithRawPagination(q.Get("page"), q.Get("pageSize")),
	}

	if locale := q.Get("locale"); locale != "" {
		opts = append(opts, documents.WithLocale(locale))
	}
	if sort := q.Get("sort"); sort != "" {
		opts = append(opts, documents.WithSort(strings.Split(sort, ",")...))
	}
	switch q.Get("status") {
	case "draft":
		opts = append(opts, documents.WithFilter(documents.FieldPublishedAt, documents.Filters{documents.OpNull: true}))
	case "published":
		opts = append(opts, documents.WithFilter(documents.FieldPublishedAt, documents.Filters{documents.OpNotNull: true}))
	}
	if populate := q.Get("populate"); populate != "" {
		opts = append(opts, documents.WithPopulate(parsePopulate(populate)))
	}

	return opts
}

// parsePopulate turns a comma-separated list of relation paths (dotted
// for nesting) into a populate specification.
func parsePopulate(raw string) documents.Populate {
	populate := make(documents.Populate)
	for _, path := range strings.Split(raw, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		node := populate
		segments := strings.Split(path, ".")
		for i, segment := range segments {
			value := node[segment]
			if i == len(segments)-1 {
				node[segment] = value
				break
			}
			if value.Populate == nil {
				value.Populate = make(documents.Populate)
			}
			node[segment] = value
			node = value.Populate
		}
	}
	return populate
}

// respondError maps domain errors onto HTTP status codes and renders the
// error envelope.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *documents.ValidationError
	var aerr *documents.ApplicationError

	body := ErrorBody{Message: err.Error()}
	switch {
	case errors.As(err, &verr):
		body.Status = http.StatusBadRequest
		body.Name = "ValidationError"
		body.Details = verr.Details
	case errors.As(err, &aerr):
		body.Status = http.StatusBadRequest
		body.Name = "ApplicationError"
	case errors.Is(err, documents.ErrEntryNotFound),
		errors.Is(err, documents.ErrContentTypeNotFound):
		body.Status = http.StatusNotFound
		body.Name = "NotFoundError"
	default:
		slog.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		body.Status = http.StatusInternalServerError
		body.Name = "InternalServerError"
	}

	render.Status(r, body.Status)
	render.JSON(w, r, ErrorResponse{Error: body})
}
