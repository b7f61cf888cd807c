package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// service implements the Service interface
type service struct {
	repository Repository
	types      *Registry
	validator  Validator
	eventHub   EventHub
	flagSource FlagSource
	hooks      *Hooks
	logger     *slog.Logger
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithContentTypes sets the content-type registry for the service
func WithContentTypes(types *Registry) Option {
	return func(s *service) {
		s.types = types
	}
}

// WithValidator sets the entity validator. Without one, create and batch
// publish skip the validation gate.
func WithValidator(v Validator) Option {
	return func(s *service) {
		s.validator = v
	}
}

// WithEventHub sets the event hub for the service
func WithEventHub(hub EventHub) Option {
	return func(s *service) {
		s.eventHub = hub
	}
}

// WithFlagSource sets a per-call provider of the configuration snapshot
func WithFlagSource(source FlagSource) Option {
	return func(s *service) {
		s.flagSource = source
	}
}

// WithFlags pins a static configuration snapshot
func WithFlags(flags Flags) Option {
	return func(s *service) {
		s.flagSource = func(context.Context) Flags { return flags }
	}
}

// WithHooks sets the lifecycle hooks for the service
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		if hooks != nil {
			s.hooks = hooks
		}
	}
}

// WithLogger sets the logger used for event and hub diagnostics
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		hooks:  &Hooks{},
		logger: slog.Default(),
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.types == nil {
		return nil, fmt.Errorf("content type registry is required")
	}

	return s, nil
}

// DefaultFlags is the snapshot used when no flag source is configured:
// relation output collapses to counts and populate depth is unlimited.
func DefaultFlags() Flags {
	return Flags{PopulateRelations: false, MaxPopulateDepth: -1}
}

func (s *service) flagsFor(ctx context.Context) Flags {
	if s.flagSource == nil {
		return DefaultFlags()
	}
	return s.flagSource(ctx)
}

// Read operations

func (s *service) Find(ctx context.Context, contentType string, opts ...FindOption) ([]Entry, error) {
	if _, err := s.types.Get(contentType); err != nil {
		return nil, err
	}

	results, err := s.repository.FindMany(ctx, contentType, newFindParams(opts))
	if err != nil {
		return nil, err
	}
	return RemapEntries(results), nil
}

func (s *service) FindPage(ctx context.Context, contentType string, opts ...FindOption) (*Page, error) {
	if _, err := s.types.Get(contentType); err != nil {
		return nil, err
	}

	params := newFindParams(opts)
	if params.Page < 1 {
		params.Page = DefaultPage
	}
	if params.PageSize < 1 {
		params.PageSize = DefaultPageSize
	}

	// List and count run concurrently; the count ignores pagination.
	var (
		results  []Entry
		total    int
		listErr  error
		countErr error
		wg       sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results, listErr = s.repository.FindMany(ctx, contentType, params)
	}()
	go func() {
		defer wg.Done()
		total, countErr = s.repository.Count(ctx, contentType, params)
	}()
	wg.Wait()

	if listErr != nil {
		return nil, listErr
	}
	if countErr != nil {
		return nil, countErr
	}

	return &Page{
		Results: RemapEntries(results),
		Pagination: Pagination{
			Page:      params.Page,
			PageSize:  params.PageSize,
			PageCount: (total + params.PageSize - 1) / params.PageSize,
			Total:     total,
		},
	}, nil
}

func (s *service) FindOne(ctx context.Context, contentType, id string, opts ...FindOption) (Entry, error) {
	if _, err := s.types.Get(contentType); err != nil {
		return nil, err
	}

	entry, err := s.repository.FindOne(ctx, contentType, id, newFindParams(opts))
	if errors.Is(err, ErrEntryNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return RemapIdentifiers(entry), nil
}

// Single-entry lifecycle operations

func (s *service) Create(ctx context.Context, req CreateRequest) (Entry, error) {
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}
	if err := s.hooks.executeBeforeCreate(ctx, &req); err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	// New entries are always drafts, whatever the caller supplied.
	data := forceDraft(req.Data)
	if req.Locale != "" {
		data = withField(data, FieldLocale, req.Locale)
	}

	if s.validator != nil {
		if err := s.validator.ValidateEntityCreation(ctx, ct, data); err != nil {
			return nil, err
		}
	}

	entry, err := s.repository.Create(ctx, ct.UID, data, FindParams{
		Locale:   req.Locale,
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		s.hooks.executeOnError(ctx, "create", err)
		return nil, err
	}

	entry = s.present(entry, ct, flags)
	s.emitEvent(ctx, EventEntryCreate, ct.UID, entry)
	if err := s.hooks.executeAfterCreate(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Update(ctx context.Context, req UpdateRequest) (Entry, error) {
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}
	if err := s.hooks.executeBeforeUpdate(ctx, &req); err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	// Identifiers never move and status only changes via the publish
	// transitions, so both are stripped from the patch.
	data := stripFields(req.Data, FieldID, FieldDocumentID, FieldEntryID, FieldPublishedAt)

	entry, err := s.repository.Update(ctx, ct.UID, storeID(req.Entry), data, FindParams{
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		s.hooks.executeOnError(ctx, "update", err)
		return nil, err
	}

	entry = s.present(entry, ct, flags)
	s.emitEvent(ctx, EventEntryUpdate, ct.UID, entry)
	if err := s.hooks.executeAfterUpdate(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Clone(ctx context.Context, req CloneRequest) (Entry, error) {
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	// The clone gets fresh identifiers and starts as a draft.
	data := forceDraft(stripFields(req.Data, FieldID, FieldDocumentID, FieldEntryID))

	entry, err := s.repository.Clone(ctx, ct.UID, storeID(req.Entry), data, FindParams{
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		s.hooks.executeOnError(ctx, "clone", err)
		return nil, err
	}

	entry = s.present(entry, ct, flags)
	s.emitEvent(ctx, EventEntryCreate, ct.UID, entry)
	if err := s.hooks.executeAfterCreate(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Delete(ctx context.Context, req DeleteRequest) (Entry, error) {
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}
	if err := s.hooks.executeBeforeDelete(ctx, &req); err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	// Relations are populated before removal so the caller can react to
	// the deletion of a fully-described tree.
	entry, err := s.repository.Delete(ctx, ct.UID, storeID(req.Entry), FindParams{
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		s.hooks.executeOnError(ctx, "delete", err)
		return nil, err
	}

	entry = s.present(entry, ct, flags)
	s.emitEvent(ctx, EventEntryDelete, ct.UID, entry)
	if err := s.hooks.executeAfterDelete(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) Publish(ctx context.Context, req PublishRequest) (Entry, error) {
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}
	if err := s.hooks.executeBeforePublish(ctx, &req); err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	res, err := s.repository.Publish(ctx, ct.UID, storeID(req.Entry), FindParams{
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		s.hooks.executeOnError(ctx, "publish", err)
		return nil, err
	}
	if res == nil || len(res.Versions) == 0 {
		return nil, nil
	}

	versions := s.presentAll(res.Versions, ct, flags)
	s.emitAll(ctx, EventEntryPublish, ct.UID, versions)
	for _, version := range versions {
		if err := s.hooks.executeAfterPublish(ctx, version); err != nil {
			return nil, err
		}
	}
	return versions[0], nil
}

func (s *service) Unpublish(ctx context.Context, req UnpublishRequest) (Entry, error) {
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}
	if err := s.hooks.executeBeforeUnpublish(ctx, &req); err != nil {
		return nil, err
	}

	if req.Entry.PublishedAt() == nil {
		return nil, ErrAlreadyDraft
	}

	flags := s.flagsFor(ctx)

	// The patch rides along with the transition itself.
	data := forceDraft(stripFields(req.Data, FieldID, FieldDocumentID, FieldEntryID))

	entry, err := s.repository.Update(ctx, ct.UID, storeID(req.Entry), data, FindParams{
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		s.hooks.executeOnError(ctx, "unpublish", err)
		return nil, err
	}

	entry = s.present(entry, ct, flags)
	s.emitEvent(ctx, EventEntryUnpublish, ct.UID, entry)
	if err := s.hooks.executeAfterUnpublish(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Batch transitions

func (s *service) PublishMany(ctx context.Context, req PublishManyRequest) (*BatchResult, error) {
	if len(req.Entries) == 0 {
		return nil, nil
	}
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	// All-or-nothing validation gate: every candidate is checked
	// concurrently and any failure aborts the batch before a write.
	if s.validator != nil {
		errs := make([]error, len(req.Entries))
		var wg sync.WaitGroup
		for i := range req.Entries {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = s.validator.ValidateEntityCreation(ctx, ct, req.Entries[i])
			}(i)
		}
		wg.Wait()
		for _, verr := range errs {
			if verr != nil {
				return nil, verr
			}
		}
	}

	// Entries already published are silently excluded, not errors.
	ids := transitionIDs(req.Entries, true)
	if len(ids) == 0 {
		return &BatchResult{Count: 0}, nil
	}

	res, err := s.repository.UpdateMany(ctx, ct.UID, UpdateManyParams{
		Where: Filters{FieldID: Filters{OpIn: ids}},
		Data:  Entry{FieldPublishedAt: time.Now().UTC()},
	})
	if err != nil {
		return nil, err
	}

	if err := s.emitBatch(ctx, EventEntryPublish, ct, flags, ids); err != nil {
		return nil, err
	}
	return &BatchResult{Count: res.Count}, nil
}

func (s *service) UnpublishMany(ctx context.Context, req UnpublishManyRequest) (*BatchResult, error) {
	if len(req.Entries) == 0 {
		return nil, nil
	}
	ct, err := s.types.Get(req.ContentType)
	if err != nil {
		return nil, err
	}

	flags := s.flagsFor(ctx)

	// No validation gate: unpublishing never requires revalidation.
	ids := transitionIDs(req.Entries, false)
	if len(ids) == 0 {
		return &BatchResult{Count: 0}, nil
	}

	res, err := s.repository.UpdateMany(ctx, ct.UID, UpdateManyParams{
		Where: Filters{FieldID: Filters{OpIn: ids}},
		Data:  Entry{FieldPublishedAt: nil},
	})
	if err != nil {
		return nil, err
	}

	if err := s.emitBatch(ctx, EventEntryUnpublish, ct, flags, ids); err != nil {
		return nil, err
	}
	return &BatchResult{Count: res.Count}, nil
}

// emitBatch re-fetches the rows touched by a bulk transition (the bulk
// primitive returns only a count) and emits one event per entry. Events
// go out strictly after the mutation, with no ordering guarantee among
// them.
func (s *service) emitBatch(ctx context.Context, event string, ct ContentType, flags Flags, ids []string) error {
	updated, err := s.repository.FindMany(ctx, ct.UID, FindParams{
		Filters:  Filters{FieldID: Filters{OpIn: ids}},
		Populate: s.deepPopulate(ct.UID, flags),
	})
	if err != nil {
		return err
	}

	entries := s.presentAll(updated, ct, flags)
	s.emitAll(ctx, event, ct.UID, entries)

	after := s.hooks.executeAfterPublish
	if event == EventEntryUnpublish {
		after = s.hooks.executeAfterUnpublish
	}
	for _, entry := range entries {
		if err := after(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// Draft-relation counting

func (s *service) CountDraftRelations(ctx context.Context, contentType, id string) (int, error) {
	ct, err := s.types.Get(contentType)
	if err != nil {
		return 0, err
	}
	rels := ct.RelationAttributes()
	if len(rels) == 0 {
		return 0, nil
	}

	entry, err := s.repository.FindOne(ctx, ct.UID, id, FindParams{
		Populate: relationPopulate(rels),
	})
	if errors.Is(err, ErrEntryNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return countDraftsIn(entry, rels), nil
}

func (s *service) CountManyEntriesDraftRelations(ctx context.Context, contentType string, ids []string, locale string) (int, error) {
	ct, err := s.types.Get(contentType)
	if err != nil {
		return 0, err
	}
	rels := ct.RelationAttributes()
	if len(rels) == 0 || len(ids) == 0 {
		return 0, nil
	}

	entries, err := s.repository.FindMany(ctx, ct.UID, FindParams{
		Filters:  Filters{FieldID: Filters{OpIn: ids}},
		Locale:   locale,
		Populate: relationPopulate(rels),
	})
	if err != nil {
		return 0, err
	}

	total := 0
	for _, entry := range entries {
		total += countDraftsIn(entry, rels)
	}
	return total, nil
}

// Helpers

func (s *service) deepPopulate(uid string, flags Flags) Populate {
	return NewPopulateBuilder(s.types).
		ContentType(uid).
		MaxDepth(flags.MaxPopulateDepth).
		CountRelationsIf(!flags.PopulateRelations).
		Build()
}

// present post-processes a fetched entry for return: relation output is
// collapsed to counts when the snapshot favors them, then identifiers are
// remapped.
func (s *service) present(e Entry, ct ContentType, flags Flags) Entry {
	if e == nil {
		return nil
	}
	if !flags.PopulateRelations {
		e = CollapseRelationCounts(e, ct)
	}
	return RemapIdentifiers(e)
}

func (s *service) presentAll(entries []Entry, ct ContentType, flags Flags) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = s.present(e, ct, flags)
	}
	return out
}

func (s *service) emitEvent(ctx context.Context, event, model string, entry Entry) {
	if s.eventHub == nil {
		return
	}
	if err := s.eventHub.Emit(ctx, event, LifecycleEvent{Model: model, Entry: entry}); err != nil {
		// Emission is fire-and-forget; the operation already succeeded.
		s.logger.Warn("event emission failed",
			"event", event,
			"model", model,
			"error", err)
	}
}

// emitAll fans event emission out across the batch.
func (s *service) emitAll(ctx context.Context, event, model string, entries []Entry) {
	if s.eventHub == nil || len(entries) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(e Entry) {
			defer wg.Done()
			s.emitEvent(ctx, event, model, e)
		}(entry)
	}
	wg.Wait()
}

// storeID resolves the repository row id from either a raw entry or a
// remapped one (where the row id lives under entryId).
func storeID(e Entry) string {
	if id := e.EntryID(); id != "" {
		return id
	}
	return e.ID()
}

// transitionIDs selects the row ids of entries eligible for a transition:
// drafts when wantDraft, published entries otherwise.
func transitionIDs(entries []Entry, wantDraft bool) []string {
	var ids []string
	for _, e := range entries {
		if e.IsDraft() != wantDraft {
			continue
		}
		if id := storeID(e); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// relationPopulate builds the one-level full populate used for draft
// counting.
func relationPopulate(rels []string) Populate {
	populate := make(Populate, len(rels))
	for _, name := range rels {
		populate[name] = PopulateValue{}
	}
	return populate
}

// countDraftsIn totals the populated related entries still in draft
// state across the given relation attributes.
func countDraftsIn(e Entry, rels []string) int {
	total := 0
	for _, name := range rels {
		v, ok := e[name]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				if related, ok := toEntry(item); ok && related.IsDraft() {
					total++
				}
			}
		case []Entry:
			for _, related := range t {
				if related.IsDraft() {
					total++
				}
			}
		case []map[string]any:
			for _, item := range t {
				if Entry(item).IsDraft() {
					total++
				}
			}
		default:
			if related, ok := toEntry(v); ok && related.IsDraft() {
				total++
			}
		}
	}
	return total
}

// toEntry converts a populated relation value to an Entry, rejecting the
// count-collapsed form.
func toEntry(v any) (Entry, bool) {
	var e Entry
	switch t := v.(type) {
	case Entry:
		e = t
	case map[string]any:
		e = Entry(t)
	default:
		return nil, false
	}
	if _, ok := e[FieldCount]; ok && len(e) == 1 {
		return nil, false
	}
	return e, true
}
