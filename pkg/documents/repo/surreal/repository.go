// Package surreal provides a SurrealDB-backed repository for document
// entries.
//
// The implementation uses the surrealcbor codec so time.Time values and
// record ids survive the round trip between Go and SurrealDB's internal
// CBOR format, and parameterized SurrealQL for every query.
package surreal

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	surrealdb "github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/models"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"github.com/draftpress/documents/pkg/documents"
)

const table = "entry"

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// entryRecord is the stored shape of an entry. Attribute values live in
// the Data document; identifier and lifecycle fields are record fields.
type entryRecord struct {
	ID          *models.RecordID `json:"id,omitempty"`
	DocumentID  string           `json:"document_id"`
	ContentType string           `json:"content_type"`
	Locale      string           `json:"locale,omitempty"`
	Data        map[string]any   `json:"data"`
	PublishedAt *time.Time       `json:"published_at"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Repository implements documents.Repository using SurrealDB
type Repository struct {
	db *surrealdb.DB
}

// New connects to SurrealDB over WebSocket and returns a repository bound
// to the given namespace and database. The surrealcbor codec is required:
// without it time.Time values are marshaled in a format SurrealDB rejects.
func New(ctx context.Context, wsURL, namespace, database, username, password string) (*Repository, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	conf := connection.NewConfig(u)
	codec := surrealcbor.New()
	conf.Marshaler = codec
	conf.Unmarshaler = codec

	db, err := surrealdb.FromConnection(ctx, gorillaws.New(conf))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if username != "" && password != "" {
		if _, err := db.SignIn(ctx, map[string]any{
			"user": username,
			"pass": password,
		}); err != nil {
			return nil, fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := db.Use(ctx, namespace, database); err != nil {
		return nil, fmt.Errorf("failed to use namespace/database: %w", err)
	}

	return &Repository{db: db}, nil
}

// NewWithDB wraps an already configured connection.
func NewWithDB(db *surrealdb.DB) *Repository {
	return &Repository{db: db}
}

// Close closes the database connection
func (r *Repository) Close(ctx context.Context) error {
	return r.db.Close(ctx)
}

func (r *Repository) FindMany(ctx context.Context, contentType string, params documents.FindParams) ([]documents.Entry, error) {
	b := newCondBuilder()
	b.conds = append(b.conds, "content_type = "+b.bind(contentType))
	if params.Locale != "" {
		b.conds = append(b.conds, "locale = "+b.bind(params.Locale))
	}
	if err := b.applyFilters(params.Filters); err != nil {
		return nil, err
	}
	order, err := orderClause(params.Sort)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table + " WHERE " + strings.Join(b.conds, " AND ") + order
	if params.Page > 0 && params.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d START %d", params.PageSize, (params.Page-1)*params.PageSize)
	}

	result, err := surrealdb.Query[[]entryRecord](ctx, r.db, query, b.params)
	if err != nil {
		return nil, fmt.Errorf("failed to find entries: %w", err)
	}

	rows := queryRows(result)
	entries := make([]documents.Entry, 0, len(rows))
	for i := range rows {
		entries = append(entries, assemble(&rows[i]))
	}
	if err := r.populateEntries(ctx, entries, params.Populate); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) FindOne(ctx context.Context, contentType, id string, params documents.FindParams) (documents.Entry, error) {
	rec, err := r.getRecord(ctx, contentType, id, params.Locale)
	if err != nil {
		return nil, err
	}
	entry := assemble(rec)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Count(ctx context.Context, contentType string, params documents.FindParams) (int, error) {
	b := newCondBuilder()
	b.conds = append(b.conds, "content_type = "+b.bind(contentType))
	if params.Locale != "" {
		b.conds = append(b.conds, "locale = "+b.bind(params.Locale))
	}
	if err := b.applyFilters(params.Filters); err != nil {
		return 0, err
	}

	type countRow struct {
		Count int `json:"count"`
	}
	query := "SELECT count() FROM " + table + " WHERE " + strings.Join(b.conds, " AND ") + " GROUP ALL"
	result, err := surrealdb.Query[[]countRow](ctx, r.db, query, b.params)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	if result == nil || len(*result) == 0 || len((*result)[0].Result) == 0 {
		return 0, nil
	}
	return (*result)[0].Result[0].Count, nil
}

func (r *Repository) Create(ctx context.Context, contentType string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	now := time.Now().UTC()
	rid := models.NewRecordID(table, uuid.NewString())
	rec := entryRecord{
		ID:          &rid,
		DocumentID:  uuid.NewString(),
		ContentType: contentType,
		Locale:      localeOf(data, params),
		Data:        attributeBag(data),
		PublishedAt: data.PublishedAt(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := surrealdb.Create[entryRecord](ctx, r.db, rid, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create entry: %w", err)
	}

	entry := assemble(created)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Update(ctx context.Context, contentType, id string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	rec, err := r.getRecord(ctx, contentType, id, "")
	if err != nil {
		return nil, err
	}

	applyPatch(rec, data)
	rec.UpdatedAt = time.Now().UTC()

	updated, err := surrealdb.Update[entryRecord](ctx, r.db, *rec.ID, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to update entry: %w", err)
	}

	entry := assemble(updated)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Clone(ctx context.Context, contentType, id string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	source, err := r.getRecord(ctx, contentType, id, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rid := models.NewRecordID(table, uuid.NewString())
	rec := entryRecord{
		ID:          &rid,
		DocumentID:  uuid.NewString(),
		ContentType: contentType,
		Locale:      source.Locale,
		Data:        copyBag(source.Data),
		PublishedAt: source.PublishedAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyPatch(&rec, data)
	if l := data.Locale(); l != "" {
		rec.Locale = l
	}

	created, err := surrealdb.Create[entryRecord](ctx, r.db, rid, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to clone entry: %w", err)
	}

	entry := assemble(created)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Delete(ctx context.Context, contentType, id string, params documents.FindParams) (documents.Entry, error) {
	rec, err := r.getRecord(ctx, contentType, id, "")
	if err != nil {
		return nil, err
	}

	// Resolve the populated tree before the record disappears.
	entry := assemble(rec)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}

	if _, err := surrealdb.Delete[entryRecord](ctx, r.db, *rec.ID); err != nil {
		return nil, fmt.Errorf("failed to delete entry: %w", err)
	}
	return entry, nil
}

func (r *Repository) Publish(ctx context.Context, contentType, id string, params documents.FindParams) (*documents.PublishResult, error) {
	rec, err := r.getRecord(ctx, contentType, id, "")
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	rec.PublishedAt = &now
	rec.UpdatedAt = now

	updated, err := surrealdb.Update[entryRecord](ctx, r.db, *rec.ID, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to publish entry: %w", err)
	}

	entry := assemble(updated)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return &documents.PublishResult{Versions: []documents.Entry{entry}}, nil
}

func (r *Repository) UpdateMany(ctx context.Context, contentType string, params documents.UpdateManyParams) (*documents.UpdateManyResult, error) {
	b := newCondBuilder()
	b.conds = append(b.conds, "content_type = "+b.bind(contentType))
	if err := b.applyFilters(params.Where); err != nil {
		return nil, err
	}

	var sets []string
	bag := attributeBag(params.Data)
	fields := make([]string, 0, len(bag))
	for field := range bag {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		if !identPattern.MatchString(field) {
			return nil, fmt.Errorf("invalid update field %q", field)
		}
		sets = append(sets, "data."+field+" = "+b.bind(bag[field]))
	}
	if _, present := params.Data[documents.FieldPublishedAt]; present {
		sets = append(sets, "published_at = "+b.bind(params.Data.PublishedAt()))
	}
	sets = append(sets, "updated_at = "+b.bind(time.Now().UTC()))

	// A single UPDATE statement keeps the bulk transition atomic; the
	// returned rows give the affected count.
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") +
		" WHERE " + strings.Join(b.conds, " AND ")
	result, err := surrealdb.Query[[]entryRecord](ctx, r.db, query, b.params)
	if err != nil {
		return nil, fmt.Errorf("failed to update entries: %w", err)
	}
	return &documents.UpdateManyResult{Count: len(queryRows(result))}, nil
}

// Record helpers

func (r *Repository) getRecord(ctx context.Context, contentType, id, locale string) (*entryRecord, error) {
	query := "SELECT * FROM " + table + " WHERE content_type = $content_type AND (id = $rid OR document_id = $key)"
	params := map[string]any{
		"content_type": contentType,
		"rid":          models.NewRecordID(table, id),
		"key":          id,
	}
	if locale != "" {
		params["locale"] = locale
		query += " AND locale = $locale"
	}
	query += " ORDER BY created_at ASC LIMIT 1"

	result, err := surrealdb.Query[[]entryRecord](ctx, r.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	rows := queryRows(result)
	if len(rows) == 0 {
		return nil, documents.ErrEntryNotFound
	}
	return &rows[0], nil
}

func queryRows(result *[]surrealdb.QueryResult[[]entryRecord]) []entryRecord {
	if result == nil || len(*result) == 0 {
		return nil
	}
	return (*result)[0].Result
}

func recordKey(rid *models.RecordID) string {
	if rid == nil {
		return ""
	}
	if s, ok := rid.ID.(string); ok {
		return s
	}
	return fmt.Sprint(rid.ID)
}

func assemble(rec *entryRecord) documents.Entry {
	entry := make(documents.Entry, len(rec.Data)+6)
	for k, v := range rec.Data {
		entry[k] = v
	}
	entry[documents.FieldID] = recordKey(rec.ID)
	entry[documents.FieldDocumentID] = rec.DocumentID
	if rec.Locale != "" {
		entry[documents.FieldLocale] = rec.Locale
	}
	if rec.PublishedAt != nil {
		entry[documents.FieldPublishedAt] = rec.PublishedAt.UTC()
	} else {
		entry[documents.FieldPublishedAt] = nil
	}
	entry[documents.FieldCreatedAt] = rec.CreatedAt.UTC()
	entry[documents.FieldUpdatedAt] = rec.UpdatedAt.UTC()
	return entry
}

// applyPatch merges patch fields into the record. A publishedAt key in
// the patch transitions the record's status; absent keys keep their
// stored values.
func applyPatch(rec *entryRecord, patch documents.Entry) {
	if v, present := patch[documents.FieldPublishedAt]; present {
		if v == nil {
			rec.PublishedAt = nil
		} else {
			rec.PublishedAt = patch.PublishedAt()
		}
	}
	if rec.Data == nil {
		rec.Data = make(map[string]any)
	}
	for k, v := range attributeBag(patch) {
		rec.Data[k] = v
	}
}

// populateEntries resolves relation id references in place, fetching each
// populated attribute's referenced records in one batch.
func (r *Repository) populateEntries(ctx context.Context, entries []documents.Entry, populate documents.Populate) error {
	if len(entries) == 0 || len(populate) == 0 {
		return nil
	}
	for attr, pv := range populate {
		if pv.Count {
			for _, entry := range entries {
				refs, ok := entry[attr]
				if !ok {
					continue
				}
				ids, _ := refIDs(refs)
				entry[attr] = documents.Entry{documents.FieldCount: len(ids)}
			}
			continue
		}

		var all []models.RecordID
		seen := make(map[string]struct{})
		for _, entry := range entries {
			ids, _ := refIDs(entry[attr])
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				all = append(all, models.NewRecordID(table, id))
			}
		}

		related := make(map[string]documents.Entry, len(all))
		if len(all) > 0 {
			result, err := surrealdb.Query[[]entryRecord](ctx, r.db,
				"SELECT * FROM "+table+" WHERE id IN $ids",
				map[string]any{"ids": all})
			if err != nil {
				return fmt.Errorf("failed to populate entries: %w", err)
			}
			rows := queryRows(result)
			fetched := make([]documents.Entry, 0, len(rows))
			for i := range rows {
				entry := assemble(&rows[i])
				related[recordKey(rows[i].ID)] = entry
				fetched = append(fetched, entry)
			}
			if err := r.populateEntries(ctx, fetched, pv.Populate); err != nil {
				return err
			}
		}

		for _, entry := range entries {
			refs, ok := entry[attr]
			if !ok {
				continue
			}
			ids, many := refIDs(refs)
			var resolved []any
			for _, id := range ids {
				if rel, exists := related[id]; exists {
					resolved = append(resolved, rel.Copy())
				}
			}
			if many {
				if resolved == nil {
					resolved = []any{}
				}
				entry[attr] = resolved
			} else if len(resolved) > 0 {
				entry[attr] = resolved[0]
			} else {
				entry[attr] = nil
			}
		}
	}
	return nil
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
// data, leaving only the attributes that belong in the stored document.
func attributeBag(data documents.Entry) map[string]any {
	bag := make(map[string]any, len(data))
	for k, v := range data {
		switch k {
		case documents.FieldID, documents.FieldDocumentID, documents.FieldEntryID,
			documents.FieldPublishedAt, documents.FieldLocale,
			documents.FieldCreatedAt, documents.FieldUpdatedAt:
			continue
		}
		bag[k] = v
	}
	return bag
}

func copyBag(bag map[string]any) map[string]any {
	copied := make(map[string]any, len(bag))
	for k, v := range bag {
		copied[k] = v
	}
	return copied
}

func localeOf(data documents.Entry, params documents.FindParams) string {
	if params.Locale != "" {
		return params.Locale
	}
	return data.Locale()
}

// Condition builder

type condBuilder struct {
	conds  []string
	params map[string]any
	n      int
}

func newCondBuilder() *condBuilder {
	return &condBuilder{params: make(map[string]any)}
}

// bind registers a parameter and returns its $name placeholder.
// Parameterized queries are mandatory: field values never appear in the
// query text.
func (b *condBuilder) bind(value any) string {
	b.n++
	name := fmt.Sprintf("p%d", b.n)
	b.params[name] = value
	return "$" + name
}

func (b *condBuilder) applyFilters(filters documents.Filters) error {
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		cond := filters[field]
		ops, isOps := operatorMap(cond)
		if !isOps {
			if err := b.condition(field, documents.OpEq, cond); err != nil {
				return err
			}
			continue
		}
		opNames := make([]string, 0, len(ops))
		for op := range ops {
			opNames = append(opNames, op)
		}
		sort.Strings(opNames)
		for _, op := range opNames {
			if err := b.condition(field, op, ops[op]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *condBuilder) condition(field, op string, operand any) error {
	expr, isID, err := fieldExpr(field)
	if err != nil {
		return err
	}

	switch op {
	case documents.OpEq:
		if isID {
			operand = models.NewRecordID(table, fmt.Sprint(operand))
		}
		b.conds = append(b.conds, expr+" = "+b.bind(operand))
		return nil

	case documents.OpIn:
		if isID {
			rids := make([]models.RecordID, 0)
			for _, v := range toStringSlice(operand) {
				rids = append(rids, models.NewRecordID(table, v))
			}
			b.conds = append(b.conds, expr+" IN "+b.bind(rids))
			return nil
		}
		b.conds = append(b.conds, expr+" IN "+b.bind(operand))
		return nil

	case documents.OpNull:
		want, _ := operand.(bool)
		b.conds = append(b.conds, nullCondition(expr, want))
		return nil

	case documents.OpNotNull:
		want, _ := operand.(bool)
		b.conds = append(b.conds, nullCondition(expr, !want))
		return nil
	}
	return fmt.Errorf("unsupported filter operator %q", op)
}

// nullCondition covers both NULL and NONE so the check holds whether the
// field was written explicitly or never set.
func nullCondition(expr string, wantNull bool) string {
	if wantNull {
		return fmt.Sprintf("(%s = NULL OR %s = NONE)", expr, expr)
	}
	return fmt.Sprintf("(%s != NULL AND %s != NONE)", expr, expr)
}

func fieldExpr(field string) (expr string, isID bool, err error) {
	switch field {
	case documents.FieldID:
		return "id", true, nil
	case documents.FieldDocumentID:
		return "document_id", false, nil
	case documents.FieldPublishedAt:
		return "published_at", false, nil
	case documents.FieldLocale:
		return "locale", false, nil
	case documents.FieldCreatedAt:
		return "created_at", false, nil
	case documents.FieldUpdatedAt:
		return "updated_at", false, nil
	}
	if !identPattern.MatchString(field) {
		return "", false, fmt.Errorf("invalid filter field %q", field)
	}
	return "data." + field, false, nil
}

func operatorMap(cond any) (map[string]any, bool) {
	switch ops := cond.(type) {
	case documents.Filters:
		return ops, true
	case map[string]any:
		return ops, true
	default:
		return nil, false
	}
}

func toStringSlice(operand any) []string {
	switch list := operand.(type) {
	case []string:
		return list
	case []any:
		values := make([]string, 0, len(list))
		for _, item := range list {
			values = append(values, fmt.Sprint(item))
		}
		return values
	default:
		return []string{fmt.Sprint(operand)}
	}
}

func orderClause(sorts []string) (string, error) {
	if len(sorts) == 0 {
		return " ORDER BY created_at ASC", nil
	}
	parts := make([]string, 0, len(sorts))
	for _, field := range sorts {
		name := field
		direction := "ASC"
		if idx := strings.IndexByte(field, ':'); idx >= 0 {
			name = field[:idx]
			if strings.EqualFold(field[idx+1:], "desc") {
				direction = "DESC"
			}
		}
		expr, _, err := fieldExpr(name)
		if err != nil {
			return "", fmt.Errorf("invalid sort field %q", name)
		}
		parts = append(parts, expr+" "+direction)
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
