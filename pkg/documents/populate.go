package documents

// Populate is a declarative tree describing which relation attributes to
// traverse when loading an entry, and to what depth. Repositories resolve
// it while fetching.
type Populate map[string]PopulateValue

// PopulateValue configures one populated relation attribute. Count asks
// for the {count: N} form instead of full related entries; Populate
// recurses into the related type.
type PopulateValue struct {
	Count    bool     `json:"count,omitempty"`
	Populate Populate `json:"populate,omitempty"`
}

// PopulateBuilder constructs a populate specification from a content
// type's relation graph.
type PopulateBuilder struct {
	registry       *Registry
	uid            string
	maxDepth       int
	countRelations bool
}

// NewPopulateBuilder creates a builder over the given registry. Depth is
// unlimited until MaxDepth narrows it.
func NewPopulateBuilder(registry *Registry) *PopulateBuilder {
	return &PopulateBuilder{registry: registry, maxDepth: -1}
}

// ContentType sets the root content type to build from.
func (b *PopulateBuilder) ContentType(uid string) *PopulateBuilder {
	b.uid = uid
	return b
}

// MaxDepth bounds relation traversal. A negative depth means unlimited;
// cycles are never re-entered either way.
func (b *PopulateBuilder) MaxDepth(depth int) *PopulateBuilder {
	b.maxDepth = depth
	return b
}

// CountRelationsIf switches every relation in the built specification to
// the count form when count is true.
func (b *PopulateBuilder) CountRelationsIf(count bool) *PopulateBuilder {
	b.countRelations = count
	return b
}

// Build walks the relation graph and returns the populate specification.
// Unknown root types yield nil.
func (b *PopulateBuilder) Build() Populate {
	if b.registry == nil || b.uid == "" {
		return nil
	}
	onPath := map[string]bool{b.uid: true}
	return b.walk(b.uid, b.maxDepth, onPath)
}

func (b *PopulateBuilder) walk(uid string, depth int, onPath map[string]bool) Populate {
	if depth == 0 {
		return nil
	}
	ct, err := b.registry.Get(uid)
	if err != nil {
		return nil
	}
	rels := ct.RelationAttributes()
	if len(rels) == 0 {
		return nil
	}

	populate := make(Populate, len(rels))
	for _, name := range rels {
		if b.countRelations {
			populate[name] = PopulateValue{Count: true}
			continue
		}
		attr := ct.Attributes[name]
		value := PopulateValue{}
		if attr.Target != "" && !onPath[attr.Target] {
			onPath[attr.Target] = true
			value.Populate = b.walk(attr.Target, depth-1, onPath)
			delete(onPath, attr.Target)
		}
		populate[name] = value
	}
	return populate
}

// CollapseRelationCounts returns a copy of the entry with every relation
// attribute replaced by its {count: N} form: arrays by their length,
// single related objects by 1, null by 0. Already-collapsed values pass
// through unchanged.
func CollapseRelationCounts(e Entry, ct ContentType) Entry {
	if e == nil {
		return nil
	}
	rels := ct.RelationAttributes()
	if len(rels) == 0 {
		return e
	}

	out := make(Entry, len(e))
	for k, v := range e {
		out[k] = v
	}
	for _, name := range rels {
		if v, ok := out[name]; ok {
			out[name] = relationCount(v)
		}
	}
	return out
}

func relationCount(v any) Entry {
	switch t := v.(type) {
	case nil:
		return Entry{FieldCount: 0}
	case []any:
		return Entry{FieldCount: len(t)}
	case []Entry:
		return Entry{FieldCount: len(t)}
	case []map[string]any:
		return Entry{FieldCount: len(t)}
	case []string:
		return Entry{FieldCount: len(t)}
	case Entry:
		if _, ok := t[FieldCount]; ok && len(t) == 1 {
			return t
		}
		return Entry{FieldCount: 1}
	case map[string]any:
		if _, ok := t[FieldCount]; ok && len(t) == 1 {
			return Entry(t)
		}
		return Entry{FieldCount: 1}
	case string:
		return Entry{FieldCount: 1}
	default:
		return Entry{FieldCount: 0}
	}
}
