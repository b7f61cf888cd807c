package documents

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error types
var (
	// ErrEntryNotFound indicates an entry was not found in the repository
	ErrEntryNotFound = errors.New("entry not found")

	// ErrContentTypeNotFound indicates an unregistered content type UID
	ErrContentTypeNotFound = errors.New("content type not found")
)

// ErrAlreadyDraft rejects unpublishing an entry whose publishedAt is
// already null. The code token is part of the public contract.
var ErrAlreadyDraft = &ApplicationError{
	Code:    "already.draft",
	Message: "entry is already a draft",
}

// ApplicationError represents a domain-rule violation. It is fatal to the
// single-entry call that raised it; batch operations pre-filter instead
// of attempt-and-catch, so it never aborts batch siblings.
type ApplicationError struct {
	Code    string
	Message string
}

func (e *ApplicationError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches application errors by code, so errors.Is(err, ErrAlreadyDraft)
// works regardless of message wording.
func (e *ApplicationError) Is(target error) bool {
	t, ok := target.(*ApplicationError)
	return ok && t.Code == e.Code
}

// ValidationError represents a schema violation found while validating an
// entry candidate. Message is the joined human-readable form; Details maps
// each offending field path to its messages. It is raised synchronously,
// never retried, and propagated to the caller unchanged.
type ValidationError struct {
	Message string
	Details map[string][]string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError from a per-field error tree,
// joining the messages into a deterministic summary.
func NewValidationError(details map[string][]string) *ValidationError {
	paths := make([]string, 0, len(details))
	for path := range details {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	var parts []string
	for _, path := range paths {
		for _, msg := range details[path] {
			parts = append(parts, fmt.Sprintf("%s: %s", path, msg))
		}
	}
	return &ValidationError{
		Message: strings.Join(parts, "; "),
		Details: details,
	}
}
