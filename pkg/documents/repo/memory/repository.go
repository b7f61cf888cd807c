package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftpress/documents/pkg/documents"
)

// record is the stored form of an entry: identifier and lifecycle fields
// live beside the attribute bag, mirroring the column/JSONB split of the
// database-backed repositories.
type record struct {
	id          string
	documentID  string
	contentType string
	locale      string
	data        documents.Entry
	publishedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// Repository implements documents.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	entries map[string]*record  // id -> record
	byType  map[string][]string // content type -> ids in insertion order
}

// New creates a new in-memory repository
func New() documents.Repository {
	return &Repository{
		entries: make(map[string]*record),
		byType:  make(map[string][]string),
	}
}

func (r *Repository) FindMany(ctx context.Context, contentType string, params documents.FindParams) ([]documents.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := r.matchingRecords(contentType, params)
	sortRecords(matched, params.Sort)

	// Apply pagination after filtering and sorting
	if params.Page > 0 && params.PageSize > 0 {
		offset := (params.Page - 1) * params.PageSize
		if offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[offset:]
		}
		if params.PageSize < len(matched) {
			matched = matched[:params.PageSize]
		}
	}

	result := make([]documents.Entry, 0, len(matched))
	for _, rec := range matched {
		result = append(result, r.assemble(rec, params.Populate))
	}
	return result, nil
}

func (r *Repository) FindOne(ctx context.Context, contentType, id string, params documents.FindParams) (documents.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.lookup(contentType, id)
	if err != nil {
		return nil, err
	}
	return r.assemble(rec, params.Populate), nil
}

func (r *Repository) Count(ctx context.Context, contentType string, params documents.FindParams) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.matchingRecords(contentType, params)), nil
}

func (r *Repository) Create(ctx context.Context, contentType string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	rec := &record{
		id:          uuid.NewString(),
		documentID:  uuid.NewString(),
		contentType: contentType,
		locale:      localeOf(data, params),
		data:        attributeBag(data),
		publishedAt: data.PublishedAt(),
		createdAt:   now,
		updatedAt:   now,
	}

	r.entries[rec.id] = rec
	r.byType[contentType] = append(r.byType[contentType], rec.id)

	return r.assemble(rec, params.Populate), nil
}

func (r *Repository) Update(ctx context.Context, contentType, id string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(contentType, id)
	if err != nil {
		return nil, err
	}

	applyPatch(rec, data)
	rec.updatedAt = time.Now().UTC()

	return r.assemble(rec, params.Populate), nil
}

func (r *Repository) Clone(ctx context.Context, contentType, id string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	source, err := r.lookup(contentType, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec := &record{
		id:          uuid.NewString(),
		documentID:  uuid.NewString(),
		contentType: contentType,
		locale:      source.locale,
		data:        source.data.Copy(),
		publishedAt: source.publishedAt,
		createdAt:   now,
		updatedAt:   now,
	}
	applyPatch(rec, data)
	if locale := data.Locale(); locale != "" {
		rec.locale = locale
	}

	r.entries[rec.id] = rec
	r.byType[contentType] = append(r.byType[contentType], rec.id)

	return r.assemble(rec, params.Populate), nil
}

func (r *Repository) Delete(ctx context.Context, contentType, id string, params documents.FindParams) (documents.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(contentType, id)
	if err != nil {
		return nil, err
	}

	// Assemble before removal so the populated tree survives the delete.
	entry := r.assemble(rec, params.Populate)

	delete(r.entries, rec.id)
	ids := r.byType[contentType]
	for i, existing := range ids {
		if existing == rec.id {
			r.byType[contentType] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return entry, nil
}

func (r *Repository) Publish(ctx context.Context, contentType, id string, params documents.FindParams) (*documents.PublishResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, err := r.lookup(contentType, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.publishedAt = &now
	rec.updatedAt = now

	return &documents.PublishResult{
		Versions: []documents.Entry{r.assemble(rec, params.Populate)},
	}, nil
}

func (r *Repository) UpdateMany(ctx context.Context, contentType string, params documents.UpdateManyParams) (*documents.UpdateManyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	now := time.Now().UTC()
	for _, id := range r.byType[contentType] {
		rec := r.entries[id]
		if !matchFilters(r.baseView(rec), params.Where) {
			continue
		}
		applyPatch(rec, params.Data)
		rec.updatedAt = now
		count++
	}
	return &documents.UpdateManyResult{Count: count}, nil
}

// lookup resolves an entry by row id, falling back to the stable document
// id. Caller must hold at least a read lock.
func (r *Repository) lookup(contentType, id string) (*record, error) {
	if rec, exists := r.entries[id]; exists && rec.contentType == contentType {
		return rec, nil
	}
	for _, candidate := range r.byType[contentType] {
		if rec := r.entries[candidate]; rec != nil && rec.documentID == id {
			return rec, nil
		}
	}
	return nil, documents.ErrEntryNotFound
}

func (r *Repository) matchingRecords(contentType string, params documents.FindParams) []*record {
	var matched []*record
	for _, id := range r.byType[contentType] {
		rec := r.entries[id]
		if params.Locale != "" && rec.locale != params.Locale {
			continue
		}
		if !matchFilters(r.baseView(rec), params.Filters) {
			continue
		}
		matched = append(matched, rec)
	}
	return matched
}

// baseView is the flat field view filters match against; it shares the
// stored data and must not escape the repository.
func (r *Repository) baseView(rec *record) documents.Entry {
	view := make(documents.Entry, len(rec.data)+6)
	for k, v := range rec.data {
		view[k] = v
	}
	view[documents.FieldID] = rec.id
	view[documents.FieldDocumentID] = rec.documentID
	view[documents.FieldLocale] = rec.locale
	if rec.publishedAt != nil {
		view[documents.FieldPublishedAt] = *rec.publishedAt
	} else {
		view[documents.FieldPublishedAt] = nil
	}
	view[documents.FieldCreatedAt] = rec.createdAt
	view[documents.FieldUpdatedAt] = rec.updatedAt
	return view
}

// assemble builds the returned entry: a deep copy of the attribute bag
// with identifier and lifecycle fields merged in and populate resolved.
// Caller must hold at least a read lock.
func (r *Repository) assemble(rec *record, populate documents.Populate) documents.Entry {
	entry := rec.data.Copy()
	if entry == nil {
		entry = make(documents.Entry)
	}
	entry[documents.FieldID] = rec.id
	entry[documents.FieldDocumentID] = rec.documentID
	if rec.locale != "" {
		entry[documents.FieldLocale] = rec.locale
	}
	if rec.publishedAt != nil {
		entry[documents.FieldPublishedAt] = *rec.publishedAt
	} else {
		entry[documents.FieldPublishedAt] = nil
	}
	entry[documents.FieldCreatedAt] = rec.createdAt
	entry[documents.FieldUpdatedAt] = rec.updatedAt

	r.resolvePopulate(entry, populate)
	return entry
}

// resolvePopulate replaces relation id references with related entries,
// or with their {count: N} form when the specification asks for counts.
func (r *Repository) resolvePopulate(entry documents.Entry, populate documents.Populate) {
	for attr, pv := range populate {
		refs, ok := entry[attr]
		if !ok {
			continue
		}
		ids, many := refIDs(refs)

		if pv.Count {
			entry[attr] = documents.Entry{documents.FieldCount: len(ids)}
			continue
		}

		var related []any
		for _, id := range ids {
			rec, exists := r.entries[id]
			if !exists {
				continue
			}
			related = append(related, r.assemble(rec, pv.Populate))
		}
		if many {
			if related == nil {
				related = []any{}
			}
			entry[attr] = related
		} else if len(related) > 0 {
			entry[attr] = related[0]
		} else {
			entry[attr] = nil
		}
	}
}

// refIDs extracts relation references. A string is a to-one reference;
// slices are to-many.
func refIDs(v any) (ids []string, many bool) {
	switch t := v.(type) {
	case nil:
		return nil, false
	case string:
		return []string{t}, false
	case []string:
		return t, true
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				ids = append(ids, s)
			}
		}
		return ids, true
	default:
		return nil, false
	}
}

// attributeBag strips identifier and lifecycle fields out of incoming
// data, leaving only the attributes that belong in the stored bag.
func attributeBag(data documents.Entry) documents.Entry {
	bag := make(documents.Entry, len(data))
	for k, v := range data {
		switch k {
		case documents.FieldID, documents.FieldDocumentID, documents.FieldEntryID,
			documents.FieldPublishedAt, documents.FieldLocale,
			documents.FieldCreatedAt, documents.FieldUpdatedAt:
			continue
		}
		bag[k] = v
	}
	return bag.Copy()
}

func localeOf(data documents.Entry, params documents.FindParams) string {
	if params.Locale != "" {
		return params.Locale
	}
	return data.Locale()
}

// applyPatch merges patch fields into the record. A publishedAt key in
// the patch transitions the record's status; absent keys keep their
// stored values.
func applyPatch(rec *record, patch documents.Entry) {
	if v, present := patch[documents.FieldPublishedAt]; present {
		if v == nil {
			rec.publishedAt = nil
		} else {
			rec.publishedAt = patch.PublishedAt()
		}
	}
	for k, v := range attributeBag(patch) {
		rec.data[k] = v
	}
}

func sortRecords(recs []*record, fields []string) {
	if len(fields) == 0 {
		return // insertion order is creation order
	}
	sort.SliceStable(recs, func(i, j int) bool {
		for _, field := range fields {
			name, desc := sortField(field)
			cmp := compareRecords(recs[i], recs[j], name)
			if cmp == 0 {
				continue
			}
			if desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func sortField(field string) (name string, desc bool) {
	name = field
	if idx := strings.IndexByte(field, ':'); idx >= 0 {
		name = field[:idx]
		desc = strings.EqualFold(field[idx+1:], "desc")
	}
	return name, desc
}

func compareRecords(a, b *record, field string) int {
	switch field {
	case documents.FieldCreatedAt:
		return a.createdAt.Compare(b.createdAt)
	case documents.FieldUpdatedAt:
		return a.updatedAt.Compare(b.updatedAt)
	case documents.FieldID:
		return strings.Compare(a.id, b.id)
	}
	return compareValues(a.data[field], b.data[field])
}

func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs)
	}
	return 0
}

// matchFilters evaluates a filter set against the flat field view.
func matchFilters(view documents.Entry, filters documents.Filters) bool {
	for field, cond := range filters {
		value := view[field]
		if !matchCondition(value, cond) {
			return false
		}
	}
	return true
}

func matchCondition(value, cond any) bool {
	switch ops := cond.(type) {
	case documents.Filters:
		return matchOperators(value, ops)
	case map[string]any:
		return matchOperators(value, ops)
	default:
		return equalValues(value, cond)
	}
}

func matchOperators(value any, ops map[string]any) bool {
	for op, operand := range ops {
		switch op {
		case documents.OpEq:
			if !equalValues(value, operand) {
				return false
			}
		case documents.OpIn:
			if !containsValue(operand, value) {
				return false
			}
		case documents.OpNull:
			want, _ := operand.(bool)
			if (value == nil) != want {
				return false
			}
		case documents.OpNotNull:
			want, _ := operand.(bool)
			if (value != nil) != want {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func containsValue(operand, value any) bool {
	switch list := operand.(type) {
	case []string:
		for _, item := range list {
			if equalValues(value, item) {
				return true
			}
		}
	case []any:
		for _, item := range list {
			if equalValues(value, item) {
				return true
			}
		}
	}
	return false
}

func equalValues(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		if bf, ok := toFloat(b); ok {
			return af == bf
		}
		return false
	}
	if at, ok := a.(time.Time); ok {
		if bt, ok := b.(time.Time); ok {
			return at.Equal(bt)
		}
		return false
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	default:
		return 0, false
	}
}
