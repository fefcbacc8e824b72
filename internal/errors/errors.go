package errors

import (
	"errors"
	"fmt"
)

// Category classifies build errors by the precondition or stage that failed
type Category string

const (
	CategoryInvalidInput        Category = "invalid_input"
	CategoryArchivePrecondition Category = "archive_precondition"
	CategoryUnsupportedArchive  Category = "unsupported_archive"
	CategoryExtraction          Category = "extraction"
	CategoryLinkerConfig        Category = "linker_config"
	CategoryManifest            Category = "manifest"
	CategoryDataset             Category = "dataset"
)

// BuildError is the error type produced by every stage of the image pipeline.
// Category identifies the failing precondition or stage, Stage names the
// pipeline stage that was running when the error occurred.
type BuildError struct {
	Category Category `json:"category"`
	Stage    string   `json:"stage,omitempty"`
	Message  string   `json:"message"`
	Cause    error    `json:"-"`
}

// Error implements the error interface
func (e *BuildError) Error() string {
	msg := e.Message
	if e.Stage != "" {
		msg = fmt.Sprintf("%s: %s", e.Stage, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *BuildError) Unwrap() error {
	return e.Cause
}

// New creates a BuildError with the given category and message
func New(category Category, format string, args ...interface{}) *BuildError {
	return &BuildError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap creates a BuildError that wraps an underlying cause
func Wrap(category Category, cause error, format string, args ...interface{}) *BuildError {
	return &BuildError{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
		Cause:    cause,
	}
}

// WithStage returns a copy of the error annotated with the pipeline stage
func (e *BuildError) WithStage(stage string) *BuildError {
	copied := *e
	copied.Stage = stage
	return &copied
}

// CategoryOf returns the category of err, or an empty category if err is not
// a BuildError.
func CategoryOf(err error) Category {
	var buildErr *BuildError
	if errors.As(err, &buildErr) {
		return buildErr.Category
	}
	return ""
}

// Is reports whether err is a BuildError with the given category
func Is(err error, category Category) bool {
	return CategoryOf(err) == category
}
