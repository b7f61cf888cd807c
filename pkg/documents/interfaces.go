package documents

import (
	"context"
)

// Filter operators understood by repositories. A filter value may be a
// direct value (equality) or a map of operator to operand.
const (
	OpEq      = "$eq"
	OpIn      = "$in"
	OpNull    = "$null"
	OpNotNull = "$notNull"
)

// Filters selects entries by field value. Keys are entry field names;
// values are either a literal (equality) or an operator map such as
// Filters{OpIn: ids}.
type Filters map[string]any

// FindParams carries the read parameters a repository applies while
// fetching: filtering, locale scoping, sorting, pagination, and relation
// populate. Zero Page/PageSize means no pagination.
type FindParams struct {
	Filters  Filters
	Locale   string
	Sort     []string
	Page     int
	PageSize int
	Populate Populate
}

// UpdateManyParams describes the filtered bulk mutation primitive: every
// entry matching Where has the fields of Data applied in one atomic
// statement.
type UpdateManyParams struct {
	Where Filters
	Data  Entry
}

// UpdateManyResult reports only the affected-row count; the mutated rows
// must be re-fetched when needed.
type UpdateManyResult struct {
	Count int
}

// PublishResult is the row set produced by a publish transition.
type PublishResult struct {
	Versions []Entry
}

// Repository defines the interface for entry persistence. Implementations
// resolve Populate specifications themselves and return ErrEntryNotFound
// for absent ids. Relation attribute values hold entry id references
// (string for to-one, a string slice for to-many) until populated.
type Repository interface {
	// FindMany returns the entries of a content type matching params.
	FindMany(ctx context.Context, contentType string, params FindParams) ([]Entry, error)

	// FindOne returns a single entry by id (row id or document id).
	FindOne(ctx context.Context, contentType, id string, params FindParams) (Entry, error)

	// Count returns the number of entries matching params, ignoring
	// pagination.
	Count(ctx context.Context, contentType string, params FindParams) (int, error)

	// Create inserts a new entry built from data and returns it with
	// params applied.
	Create(ctx context.Context, contentType string, data Entry, params FindParams) (Entry, error)

	// Update applies the fields of data to an existing entry and returns
	// the result with params applied.
	Update(ctx context.Context, contentType, id string, data Entry, params FindParams) (Entry, error)

	// Clone duplicates an entry's attributes merged with data into a new
	// entry under fresh identifiers.
	Clone(ctx context.Context, contentType, id string, data Entry, params FindParams) (Entry, error)

	// Delete removes an entry and returns it as it was, with params
	// applied before removal.
	Delete(ctx context.Context, contentType, id string, params FindParams) (Entry, error)

	// Publish stamps the entry's publish timestamp and returns the
	// resulting row set.
	Publish(ctx context.Context, contentType, id string, params FindParams) (*PublishResult, error)

	// UpdateMany applies one filtered, atomic bulk update and reports the
	// affected-row count.
	UpdateMany(ctx context.Context, contentType string, params UpdateManyParams) (*UpdateManyResult, error)
}

// EventHub defines the interface for lifecycle event broadcast. Emission
// is fire-and-forget: the service logs hub failures and never fails an
// operation on one.
type EventHub interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Validator checks an entry candidate against its content-type schema,
// returning a *ValidationError on violation.
type Validator interface {
	ValidateEntityCreation(ctx context.Context, contentType ContentType, candidate Entry) error
}

// FlagSource supplies the configuration snapshot for one logical
// operation. It is read once at the start of each call; the snapshot
// flows through every stage of that call.
type FlagSource func(ctx context.Context) Flags

// FindOption represents a functional option for read operations.
type FindOption func(*FindParams)

// WithFilters sets the filter set for the query.
func WithFilters(filters Filters) FindOption {
	return func(p *FindParams) {
		p.Filters = filters
	}
}

// WithFilter adds a single field filter.
func WithFilter(field string, value any) FindOption {
	return func(p *FindParams) {
		if p.Filters == nil {
			p.Filters = make(Filters)
		}
		p.Filters[field] = value
	}
}

// WithLocale scopes the query to one locale.
func WithLocale(locale string) FindOption {
	return func(p *FindParams) {
		p.Locale = locale
	}
}

// WithSort sets the sort fields (name or name:desc).
func WithSort(fields ...string) FindOption {
	return func(p *FindParams) {
		p.Sort = fields
	}
}

// WithPage sets the page number.
func WithPage(page int) FindOption {
	return func(p *FindParams) {
		p.Page = page
	}
}

// WithPageSize sets the page size.
func WithPageSize(pageSize int) FindOption {
	return func(p *FindParams) {
		p.PageSize = pageSize
	}
}

// WithRawPagination coerces caller-supplied pagination values of any type
// (string, number, nil) onto the query, falling back to DefaultPage and
// DefaultPageSize for unparseable or non-positive input.
func WithRawPagination(page, pageSize any) FindOption {
	return func(p *FindParams) {
		p.Page = toPositiveInt(page, DefaultPage)
		p.PageSize = toPositiveInt(pageSize, DefaultPageSize)
	}
}

// WithPopulate sets the relation populate specification.
func WithPopulate(populate Populate) FindOption {
	return func(p *FindParams) {
		p.Populate = populate
	}
}

func newFindParams(opts []FindOption) FindParams {
	var params FindParams
	for _, opt := range opts {
		opt(&params)
	}
	return params
}
