package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/draftpress/documents/pkg/documents"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements documents.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) documents.Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) documents.Repository {
	return &Repository{db: pool}
}

// Migrate creates the entry table and its indexes if they do not exist.
func Migrate(ctx context.Context, db DBTX) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entry (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content_type TEXT NOT NULL,
			locale TEXT,
			data JSONB NOT NULL DEFAULT '{}'::jsonb,
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_content_type ON entry (content_type)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_document_id ON entry (document_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_published_at ON entry (published_at)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate entry schema: %w", err)
		}
	}
	return nil
}

const entryColumns = `id, document_id, locale, data, published_at, created_at, updated_at`

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// entryRow is the column-level form of a stored entry.
type entryRow struct {
	id          string
	documentID  string
	locale      *string
	data        map[string]any
	publishedAt *time.Time
	createdAt   time.Time
	updatedAt   time.Time
}

// Error handling helper
func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("entry already exists")
		case "23502": // not_null_violation
			return fmt.Errorf("required column %s is missing", pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Entry operations

func (r *Repository) FindMany(ctx context.Context, contentType string, params documents.FindParams) ([]documents.Entry, error) {
	b := newWhereBuilder()
	b.add("content_type", contentType)
	if params.Locale != "" {
		b.add("locale", params.Locale)
	}
	if err := b.applyFilters(params.Filters); err != nil {
		return nil, err
	}
	order, err := orderClause(params.Sort)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + entryColumns + ` FROM entry` + b.clause() + order
	if params.Page > 0 && params.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", params.PageSize, (params.Page-1)*params.PageSize)
	}

	rows, err := r.db.Query(ctx, query, b.args...)
	if err != nil {
		return nil, r.handlePostgresError("find entries", err)
	}
	defer rows.Close()

	var entries []documents.Entry
	for rows.Next() {
		er, err := scanRow(rows)
		if err != nil {
			return nil, r.handlePostgresError("scan entry", err)
		}
		entries = append(entries, assembleRow(er))
	}
	if err = rows.Err(); err != nil {
		return nil, r.handlePostgresError("iterate entry rows", err)
	}

	if err := r.populateEntries(ctx, entries, params.Populate); err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) FindOne(ctx context.Context, contentType, id string, params documents.FindParams) (documents.Entry, error) {
	er, err := r.getRow(ctx, contentType, id, params.Locale)
	if err != nil {
		return nil, err
	}
	entry := assembleRow(er)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Count(ctx context.Context, contentType string, params documents.FindParams) (int, error) {
	b := newWhereBuilder()
	b.add("content_type", contentType)
	if params.Locale != "" {
		b.add("locale", params.Locale)
	}
	if err := b.applyFilters(params.Filters); err != nil {
		return 0, err
	}

	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM entry`+b.clause(), b.args...).Scan(&count)
	if err != nil {
		return 0, r.handlePostgresError("count entries", err)
	}
	return count, nil
}

func (r *Repository) Create(ctx context.Context, contentType string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	raw, err := marshalBag(attributeBag(data))
	if err != nil {
		return nil, err
	}

	var locale *string
	if l := localeOf(data, params); l != "" {
		locale = &l
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO entry (
			id, document_id, content_type, locale, data, published_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + entryColumns

	er, err := scanRow(r.db.QueryRow(ctx, query,
		uuid.NewString(), uuid.NewString(), contentType, locale,
		raw, data.PublishedAt(), now, now))
	if err != nil {
		return nil, r.handlePostgresError("create entry", err)
	}

	entry := assembleRow(er)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Update(ctx context.Context, contentType, id string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	raw, err := marshalBag(attributeBag(data))
	if err != nil {
		return nil, err
	}

	args := []any{contentType, id, raw, time.Now().UTC()}
	query := `UPDATE entry SET data = data || $3::jsonb, updated_at = $4`
	if _, present := data[documents.FieldPublishedAt]; present {
		args = append(args, data.PublishedAt())
		query += fmt.Sprintf(", published_at = $%d", len(args))
	}
	query += ` WHERE content_type = $1 AND (id = $2 OR document_id = $2) RETURNING ` + entryColumns

	er, err := scanRow(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrEntryNotFound
		}
		return nil, r.handlePostgresError("update entry", err)
	}

	entry := assembleRow(er)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Clone(ctx context.Context, contentType, id string, data documents.Entry, params documents.FindParams) (documents.Entry, error) {
	source, err := r.getRow(ctx, contentType, id, "")
	if err != nil {
		return nil, err
	}

	bag := source.data
	if bag == nil {
		bag = make(map[string]any)
	}
	for k, v := range attributeBag(data) {
		bag[k] = v
	}
	raw, err := marshalBag(bag)
	if err != nil {
		return nil, err
	}

	publishedAt := source.publishedAt
	if _, present := data[documents.FieldPublishedAt]; present {
		publishedAt = data.PublishedAt()
	}
	locale := source.locale
	if l := data.Locale(); l != "" {
		locale = &l
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO entry (
			id, document_id, content_type, locale, data, published_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + entryColumns

	er, err := scanRow(r.db.QueryRow(ctx, query,
		uuid.NewString(), uuid.NewString(), contentType, locale,
		raw, publishedAt, now, now))
	if err != nil {
		return nil, r.handlePostgresError("clone entry", err)
	}

	entry := assembleRow(er)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Delete(ctx context.Context, contentType, id string, params documents.FindParams) (documents.Entry, error) {
	query := `DELETE FROM entry WHERE content_type = $1 AND (id = $2 OR document_id = $2) RETURNING ` + entryColumns

	er, err := scanRow(r.db.QueryRow(ctx, query, contentType, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrEntryNotFound
		}
		return nil, r.handlePostgresError("delete entry", err)
	}

	// Related entries are untouched by the delete, so the populated tree
	// can still be resolved for the returned snapshot.
	entry := assembleRow(er)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *Repository) Publish(ctx context.Context, contentType, id string, params documents.FindParams) (*documents.PublishResult, error) {
	now := time.Now().UTC()
	query := `
		UPDATE entry SET published_at = $3, updated_at = $3
		WHERE content_type = $1 AND (id = $2 OR document_id = $2)
		RETURNING ` + entryColumns

	er, err := scanRow(r.db.QueryRow(ctx, query, contentType, id, now))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrEntryNotFound
		}
		return nil, r.handlePostgresError("publish entry", err)
	}

	entry := assembleRow(er)
	if err := r.populateEntries(ctx, []documents.Entry{entry}, params.Populate); err != nil {
		return nil, err
	}
	return &documents.PublishResult{Versions: []documents.Entry{entry}}, nil
}

func (r *Repository) UpdateMany(ctx context.Context, contentType string, params documents.UpdateManyParams) (*documents.UpdateManyResult, error) {
	b := newWhereBuilder()
	b.add("content_type", contentType)
	if err := b.applyFilters(params.Where); err != nil {
		return nil, err
	}

	sets := []string{}
	if bag := attributeBag(params.Data); len(bag) > 0 {
		raw, err := marshalBag(bag)
		if err != nil {
			return nil, err
		}
		b.args = append(b.args, raw)
		sets = append(sets, fmt.Sprintf("data = data || $%d::jsonb", len(b.args)))
	}
	if _, present := params.Data[documents.FieldPublishedAt]; present {
		b.args = append(b.args, params.Data.PublishedAt())
		sets = append(sets, fmt.Sprintf("published_at = $%d", len(b.args)))
	}
	b.args = append(b.args, time.Now().UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(b.args)))

	query := `UPDATE entry SET ` + strings.Join(sets, ", ") + b.clause()
	tag, err := r.db.Exec(ctx, query, b.args...)
	if err != nil {
		return nil, r.handlePostgresError("update entries", err)
	}
	return &documents.UpdateManyResult{Count: int(tag.RowsAffected())}, nil
}

// Row helpers

func (r *Repository) getRow(ctx context.Context, contentType, id, locale string) (*entryRow, error) {
	query := `SELECT ` + entryColumns + ` FROM entry WHERE content_type = $1 AND (id = $2 OR document_id = $2)`
	args := []any{contentType, id}
	if locale != "" {
		args = append(args, locale)
		query += ` AND locale = $3`
	}
	query += ` ORDER BY created_at LIMIT 1`

	er, err := scanRow(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, documents.ErrEntryNotFound
		}
		return nil, r.handlePostgresError("get entry", err)
	}
	return er, nil
}

func scanRow(row pgx.Row) (*entryRow, error) {
	var (
		er  entryRow
		raw []byte
	)
	if err := row.Scan(&er.id, &er.documentID, &er.locale, &raw,
		&er.publishedAt, &er.createdAt, &er.updatedAt); err != nil {
		return nil, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &er.data); err != nil {
			return nil, fmt.Errorf("unmarshal entry data: %w", err)
		}
	}
	return &er, nil
}

func assembleRow(er *entryRow) documents.Entry {
	entry := make(documents.Entry, len(er.data)+6)
	for k, v := range er.data {
		entry[k] = v
	}
	entry[documents.FieldID] = er.id
	entry[documents.FieldDocumentID] = er.documentID
	if er.locale != nil && *er.locale != "" {
		entry[documents.FieldLocale] = *er.locale
	}
	if er.publishedAt != nil {
		entry[documents.FieldPublishedAt] = er.publishedAt.UTC()
	} else {
		entry[documents.FieldPublishedAt] = nil
	}
	entry[documents.FieldCreatedAt] = er.createdAt.UTC()
	entry[documents.FieldUpdatedAt] = er.updatedAt.UTC()
	return entry
}

// populateEntries resolves relation id references in place. References to
// a populated attribute are fetched in one batch per attribute, then
// nested specifications recurse into the fetched set.
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

		var all []string
		seen := make(map[string]struct{})
		for _, entry := range entries {
			ids, _ := refIDs(entry[attr])
			for _, id := range ids {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				all = append(all, id)
			}
		}

		related := make(map[string]documents.Entry, len(all))
		if len(all) > 0 {
			rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM entry WHERE id = ANY($1)`, all)
			if err != nil {
				return r.handlePostgresError("populate entries", err)
			}
			var fetched []documents.Entry
			for rows.Next() {
				er, err := scanRow(rows)
				if err != nil {
					rows.Close()
					return r.handlePostgresError("scan related entry", err)
				}
				entry := assembleRow(er)
				related[er.id] = entry
				fetched = append(fetched, entry)
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return r.handlePostgresError("iterate related rows", err)
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
// data, leaving only the attributes that belong in the JSONB bag.
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

func marshalBag(bag map[string]any) ([]byte, error) {
	raw, err := json.Marshal(bag)
	if err != nil {
		return nil, fmt.Errorf("marshal entry data: %w", err)
	}
	return raw, nil
}

func localeOf(data documents.Entry, params documents.FindParams) string {
	if params.Locale != "" {
		return params.Locale
	}
	return data.Locale()
}

// Filter and sort builders

type whereBuilder struct {
	conds []string
	args  []any
}

func newWhereBuilder() *whereBuilder {
	return &whereBuilder{}
}

func (b *whereBuilder) add(column string, arg any) {
	b.args = append(b.args, arg)
	b.conds = append(b.conds, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *whereBuilder) clause() string {
	if len(b.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conds, " AND ")
}

func (b *whereBuilder) applyFilters(filters documents.Filters) error {
	fields := make([]string, 0, len(filters))
	for field := range filters {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if !identPattern.MatchString(field) {
			return fmt.Errorf("invalid filter field %q", field)
		}
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

func (b *whereBuilder) condition(field, op string, operand any) error {
	column, isColumn := columnFor(field)

	switch op {
	case documents.OpEq:
		if isColumn {
			b.add(column, operand)
			return nil
		}
		raw, err := marshalBag(map[string]any{field: operand})
		if err != nil {
			return err
		}
		b.args = append(b.args, raw)
		b.conds = append(b.conds, fmt.Sprintf("data @> $%d::jsonb", len(b.args)))
		return nil

	case documents.OpIn:
		values := toStringSlice(operand)
		b.args = append(b.args, values)
		if isColumn {
			b.conds = append(b.conds, fmt.Sprintf("%s = ANY($%d)", column, len(b.args)))
		} else {
			b.conds = append(b.conds, fmt.Sprintf("data->>'%s' = ANY($%d)", field, len(b.args)))
		}
		return nil

	case documents.OpNull:
		want, _ := operand.(bool)
		b.conds = append(b.conds, nullCondition(field, column, isColumn, want))
		return nil

	case documents.OpNotNull:
		want, _ := operand.(bool)
		b.conds = append(b.conds, nullCondition(field, column, isColumn, !want))
		return nil
	}
	return fmt.Errorf("unsupported filter operator %q", op)
}

func nullCondition(field, column string, isColumn, wantNull bool) string {
	if isColumn {
		if wantNull {
			return column + " IS NULL"
		}
		return column + " IS NOT NULL"
	}
	if wantNull {
		return fmt.Sprintf("(data->'%s' IS NULL OR data->'%s' = 'null'::jsonb)", field, field)
	}
	return fmt.Sprintf("(data->'%s' IS NOT NULL AND data->'%s' <> 'null'::jsonb)", field, field)
}

func columnFor(field string) (string, bool) {
	switch field {
	case documents.FieldID:
		return "id", true
	case documents.FieldDocumentID:
		return "document_id", true
	case documents.FieldPublishedAt:
		return "published_at", true
	case documents.FieldLocale:
		return "locale", true
	case documents.FieldCreatedAt:
		return "created_at", true
	case documents.FieldUpdatedAt:
		return "updated_at", true
	}
	return "", false
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
		return " ORDER BY created_at", nil
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
		if !identPattern.MatchString(name) {
			return "", fmt.Errorf("invalid sort field %q", name)
		}
		if column, isColumn := columnFor(name); isColumn {
			parts = append(parts, column+" "+direction)
		} else {
			parts = append(parts, fmt.Sprintf("data->>'%s' %s", name, direction))
		}
	}
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
