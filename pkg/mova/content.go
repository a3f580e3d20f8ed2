package mova

import (
	"errors"
	"fmt"
)

// Category groups examples under one topic. Values are immutable once fetched.
type Category struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

// Example is one learning item. Content holds markup and Image is a path
// relative to the content host.
type Example struct {
	ID         int64  `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	Image      string `json:"image"`
	CategoryID int64  `json:"category"`
}

// RenderedExample is an Example prepared for display.
type RenderedExample struct {
	Title string
	// Body is the example content with markup stripped.
	Body  string
	Image string
}

// ContentErrorKind is the closed set of content pipeline failure kinds.
type ContentErrorKind string

const (
	// ContentErrorSourceUnavailable means the upstream fetch failed.
	ContentErrorSourceUnavailable ContentErrorKind = "source_unavailable"
	// ContentErrorCacheUnavailable means the cache backend could not be reached.
	ContentErrorCacheUnavailable ContentErrorKind = "cache_unavailable"
	// ContentErrorDeserialization means a payload could not be decoded.
	ContentErrorDeserialization ContentErrorKind = "deserialization_failure"
)

var (
	// ErrSourceUnavailable matches any ContentError of the source kind.
	ErrSourceUnavailable = &ContentError{Kind: ContentErrorSourceUnavailable}
	// ErrCacheUnavailable matches any ContentError of the cache kind.
	ErrCacheUnavailable = &ContentError{Kind: ContentErrorCacheUnavailable}
	// ErrDeserialization matches any ContentError of the deserialization kind.
	ErrDeserialization = &ContentError{Kind: ContentErrorDeserialization}
)

// ContentError is a classified failure from the cache or upstream layers.
type ContentError struct {
	Kind ContentErrorKind
	// Op names the failed operation, for example "fetch categories".
	Op  string
	Err error
}

// Error returns the failure summary.
func (e *ContentError) Error() string {
	if e == nil {
		return "<nil>"
	}
	message := string(e.Kind)
	if e.Op != "" {
		message = e.Op + ": " + message
	}
	if e.Err != nil {
		message = fmt.Sprintf("%s: %v", message, e.Err)
	}

	return message
}

// Unwrap returns the wrapped cause.
func (e *ContentError) Unwrap() error {
	if e == nil {
		return nil
	}

	return e.Err
}

// Is matches the package sentinels by kind.
func (e *ContentError) Is(target error) bool {
	sentinel, ok := target.(*ContentError)
	if !ok || e == nil || sentinel == nil {
		return false
	}
	if sentinel.Op != "" || sentinel.Err != nil {
		return e == sentinel
	}

	return e.Kind == sentinel.Kind
}

// ContentErrorKindOf returns the kind of the first ContentError in err's chain.
func ContentErrorKindOf(err error) (ContentErrorKind, bool) {
	var contentErr *ContentError
	if !errors.As(err, &contentErr) {
		return "", false
	}

	return contentErr.Kind, true
}
