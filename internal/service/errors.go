package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrDeviceAuth is returned when an ingest credential does not match any
// active device. Unknown keys and disabled devices are deliberately
// indistinguishable so the response leaks nothing about why the key failed.
var ErrDeviceAuth = errors.New("invalid or inactive API key")

// ValidationError reports malformed or out-of-range ingest fields.
// Nothing is persisted when one is returned.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return fmt.Sprintf("validation failed: %s", strings.Join(names, ", "))
}

func newValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}
