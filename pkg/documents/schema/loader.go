package schema

import (
	"fmt"
	"os"

	json "github.com/goccy/go-json"

	"github.com/draftpress/documents/pkg/documents"
)

// LoadTypes reads content-type descriptors from a JSON file holding an
// array of descriptors. Every descriptor is compiled once to surface
// schema errors at load time.
func LoadTypes(path string) ([]documents.ContentType, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content types: %w", err)
	}

	var types []documents.ContentType
	if err := json.Unmarshal(raw, &types); err != nil {
		return nil, fmt.Errorf("parse content types %s: %w", path, err)
	}

	for i, ct := range types {
		if ct.UID == "" {
			return nil, fmt.Errorf("content type at index %d: missing uid", i)
		}
		if _, err := Compile(ct); err != nil {
			return nil, err
		}
	}
	return types, nil
}

// LoadRegistry is LoadTypes plus registry construction.
func LoadRegistry(path string) (*documents.Registry, error) {
	types, err := LoadTypes(path)
	if err != nil {
		return nil, err
	}
	return documents.NewRegistry(types...), nil
}
