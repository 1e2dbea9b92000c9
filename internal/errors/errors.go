// Package errors provides categorized errors and the sentinel kinds shared by the
// annotation packages.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"time"
)

// ErrorCategory represents the type of error for better categorization
type ErrorCategory string

const (
	CategoryFileIO      ErrorCategory = "file-io"
	CategoryFileParsing ErrorCategory = "file-parsing"
	CategoryValidation  ErrorCategory = "validation"
	CategoryNotFound    ErrorCategory = "not-found"
	CategoryState       ErrorCategory = "state"
	CategoryIntegration ErrorCategory = "integration"
	CategoryGeneric     ErrorCategory = "generic"
)

// Sentinel kinds. Callers match them with Is.
var (
	// ErrMalformedLabelLine marks a label line that was skipped during decode.
	ErrMalformedLabelLine = stderrors.New("malformed label line")
	// ErrMissingLabelFile is informational: the image is treated as having no boxes.
	ErrMissingLabelFile = stderrors.New("label file not found")
	// ErrUnresolvedClass is returned when class input matches neither an id nor a name.
	ErrUnresolvedClass = stderrors.New("class not found")
	// ErrOutOfRange is returned by page and box jumps outside the valid range.
	ErrOutOfRange = stderrors.New("out of range")
	// ErrNoBoxesOnPage is returned when jumping to an image that has no boxes.
	ErrNoBoxesOnPage = stderrors.New("no boxes on page")
	// ErrUnwritableLabelPath is returned when a label directory or file cannot be written.
	ErrUnwritableLabelPath = stderrors.New("label path not writable")
	// ErrIndex is returned for a box index that does not exist on an image.
	ErrIndex = stderrors.New("box index out of bounds")
	// ErrNoImage is returned when an image path is not part of the dataset.
	ErrNoImage = stderrors.New("image not loaded")
	// ErrNoSelection is returned by editor actions that need a selected box.
	ErrNoSelection = stderrors.New("no box selected")
	// ErrNoSubject is returned when a proposer finds nothing worth boxing.
	ErrNoSubject = stderrors.New("no subject found")
)

// EnhancedError wraps an error with a category and context data
type EnhancedError struct {
	Err       error
	Component string
	Category  ErrorCategory
	Context   map[string]any
	Timestamp time.Time
}

// Error implements the error interface
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap implements the error unwrapping interface
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another EnhancedError by category, anything else through the wrapped error.
func (ee *EnhancedError) Is(target error) bool {
	if ee2, ok := target.(*EnhancedError); ok {
		return ee.Category == ee2.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetContext returns a copy of the error context
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.Context == nil {
		return nil
	}
	out := make(map[string]any, len(ee.Context))
	maps.Copy(out, ee.Context)
	return out
}

// ErrorBuilder provides a fluent interface for creating enhanced errors
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts building an enhanced error around err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts building an enhanced error from a format string.
// %w verbs wrap as with fmt.Errorf.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component sets the component name
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context adds context data to the error
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the EnhancedError
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Component: eb.component,
		Category:  eb.category,
		Context:   eb.context,
		Timestamp: time.Now(),
	}
	if ee.Component == "" {
		ee.Component = "unknown"
	}
	if ee.Category == "" {
		ee.Category = CategoryGeneric
	}
	return ee
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// CategoryOf returns the category of the first EnhancedError in the chain.
func CategoryOf(err error) ErrorCategory {
	var ee *EnhancedError
	if stderrors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
