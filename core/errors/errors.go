// Package errors provides the error taxonomy shared by the ReqIF
// normalization pipeline: malformed input, rejected conversions,
// attachment I/O failures and per-member archive failures.
package errors

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Sentinel errors for common cases
var (
	// ErrMalformedInput indicates bytes that cannot be structurally parsed
	ErrMalformedInput = errors.New("malformed input")
	// ErrConversionRejected indicates a parsed bundle rejected by the target schema
	ErrConversionRejected = errors.New("conversion rejected")
	// ErrAttachmentIO indicates an attachment could not be written
	ErrAttachmentIO = errors.New("attachment i/o")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// MalformedInputError reports a document that could not be parsed:
// bad encoding, an invalid root construct, or schema-level XML errors.
// The workaround engine cannot recover from it.
type MalformedInputError struct {
	Source  string // File or archive member, if known
	Message string // Human-readable reason
	Err     error  // Underlying error, if any
}

func (e *MalformedInputError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Source != "" {
		return fmt.Sprintf("malformed input %s: %s", e.Source, msg)
	}
	return msg
}

func (e *MalformedInputError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedInput, e.Err}
	}
	return []error{ErrMalformedInput}
}

// ConversionRejectedError reports a structurally valid bundle that the
// schema converter refused because of an unsupported construct.
type ConversionRejectedError struct {
	Construct string // e.g. "attribute type", "field name", "reference"
	Subject   string // Identifier or name the construct belongs to
	Message   string
}

func (e *ConversionRejectedError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("%s %q: %s", e.Construct, e.Subject, e.Message)
	}
	if e.Construct != "" {
		return fmt.Sprintf("%s: %s", e.Construct, e.Message)
	}
	return e.Message
}

func (e *ConversionRejectedError) Unwrap() error {
	return ErrConversionRejected
}

// AttachmentIOError reports a failure writing one extracted attachment.
type AttachmentIOError struct {
	Name string // Entry name inside the archive
	Path string // Destination path, if resolved
	Err  error
}

func (e *AttachmentIOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("attachment %s: write %s: %v", e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("attachment %s: %v", e.Name, e.Err)
}

func (e *AttachmentIOError) Unwrap() []error {
	return []error{ErrAttachmentIO, e.Err}
}

// ArchiveMemberError scopes any pipeline error to one archive member.
// It is collected by the aggregator and never aborts the archive.
type ArchiveMemberError struct {
	Member string
	Err    error
}

func (e *ArchiveMemberError) Error() string {
	return fmt.Sprintf("[%s] %v", e.Member, e.Err)
}

func (e *ArchiveMemberError) Unwrap() error {
	return e.Err
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// NewMalformed creates a MalformedInputError
func NewMalformed(source, message string, err error) *MalformedInputError {
	return &MalformedInputError{
		Source:  source,
		Message: message,
		Err:     err,
	}
}

// NewRejected creates a ConversionRejectedError
func NewRejected(construct, subject, message string) *ConversionRejectedError {
	return &ConversionRejectedError{
		Construct: construct,
		Subject:   subject,
		Message:   message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Truncate shortens msg to at most limit runes. A non-positive limit
// returns msg unchanged.
func Truncate(msg string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	runes := []rune(msg)
	return string(runes[:limit])
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}
