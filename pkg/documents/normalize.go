package documents

// Pure entry transformations. Every function here returns a new value and
// leaves its input untouched.

// RemapIdentifiers promotes the stable document identifier to the
// externally visible id field and relocates the previous row identifier
// to entryId. Entries without a documentId field pass through unchanged,
// which makes the remapping idempotent.
func RemapIdentifiers(e Entry) Entry {
	if e == nil {
		return nil
	}
	docID, ok := e[FieldDocumentID]
	if !ok {
		return e
	}

	out := make(Entry, len(e))
	for k, v := range e {
		if k == FieldDocumentID || k == FieldID {
			continue
		}
		out[k] = v
	}
	if id, hasID := e[FieldID]; hasID {
		out[FieldEntryID] = id
	}
	out[FieldID] = docID
	return out
}

// RemapEntries applies RemapIdentifiers to every element, preserving
// order.
func RemapEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = RemapIdentifiers(e)
	}
	return out
}

// stripFields returns a copy of data without the named fields.
func stripFields(data Entry, fields ...string) Entry {
	out := make(Entry, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// forceDraft returns a copy of data with publishedAt pinned to null.
func forceDraft(data Entry) Entry {
	out := make(Entry, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[FieldPublishedAt] = nil
	return out
}

// withField returns a copy of data with one field set.
func withField(data Entry, field string, value any) Entry {
	out := make(Entry, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out[field] = value
	return out
}

// Copy returns a deep copy of the entry. Nested maps and slices are
// duplicated; scalar values (including time.Time) are shared as-is.
func (e Entry) Copy() Entry {
	if e == nil {
		return nil
	}
	return copyMap(e)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case Entry:
		return Entry(copyMap(t))
	case map[string]any:
		return copyMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = copyValue(item)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []Entry:
		out := make([]Entry, len(t))
		for i, item := range t {
			out[i] = Entry(copyMap(item))
		}
		return out
	default:
		return v
	}
}
