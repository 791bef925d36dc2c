package student

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrStudentNotFound         = errors.New("student not found")
	ErrInvalidInput            = errors.New("invalid input")
	ErrEmailExists             = errors.New("student with this email already exists")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// ValidationError carries per-field messages and matches ErrInvalidInput.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid input: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}
