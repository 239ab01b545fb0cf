// Package chaterr holds the categorized errors surfaced by the chat runtime.
//
// Vetoes and unknown ids are not errors; operations report them as false results.
// Only misuse and storage failures travel as errors.
package chaterr

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
)

const (
	CategoryMisuse            = "misuse"
	CategoryNotFound          = "not_found"
	CategoryStorageIO         = "storage_io"
	CategoryStorageCorrupt    = "storage_corrupt"
	CategoryDeviceUnavailable = "device_unavailable"
)

// Error is a stable, categorized runtime failure.
type Error struct {
	Category string
	Detail   string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Category
	}

	return fmt.Sprintf("%s: %s", e.Category, e.Detail)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a categorized error.
func New(category string, detail string) error {
	return &Error{Category: category, Detail: detail}
}

// Misuse reports an integration bug such as passing a node to a text-only operation.
func Misuse(format string, args ...any) error {
	return &Error{Category: CategoryMisuse, Detail: fmt.Sprintf(format, args...)}
}

// CategoryOf returns the category of err, or "" when err is nil.
func CategoryOf(err error) string {
	if err == nil {
		return ""
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return categorized.Category
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return CategoryStorageCorrupt
	}
	if errors.Is(err, fs.ErrNotExist) {
		return CategoryNotFound
	}

	return CategoryStorageIO
}

// Is reports whether err carries category.
func Is(err error, category string) bool {
	return err != nil && CategoryOf(err) == category
}

// Storage wraps a storage driver error with its category. op names the failed
// operation, for example "get history".
func Storage(err error, op string) error {
	if err == nil {
		return nil
	}

	var categorized *Error
	if errors.As(err, &categorized) {
		return err
	}

	return &Error{Category: CategoryOf(err), Detail: fmt.Sprintf("%s: %v", op, err), Err: err}
}
