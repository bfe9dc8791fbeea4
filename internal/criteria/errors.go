package criteria

import (
	"errors"
	"fmt"
)

// Error represents a failure while building or compiling a criteria tree.
//
// Every error is synchronous and non-retryable; it is raised at the earliest
// point the problem can be detected (construction, then compile, then render).
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Path is the dotted property path involved, if any.
	Path string

	// Err is the underlying cause, if any.
	Err error
}

// ErrorCode categorizes criteria errors.
type ErrorCode string

const (
	// ErrCodeUnknownProperty indicates a property or association name that
	// does not exist on the resolved entity.
	ErrCodeUnknownProperty ErrorCode = "UNKNOWN_PROPERTY"

	// ErrCodeInvalidOperand indicates an expression that fails a predicate's
	// type validation.
	ErrCodeInvalidOperand ErrorCode = "INVALID_OPERAND"

	// ErrCodeDuplicateRoot indicates From was called twice on one specification.
	ErrCodeDuplicateRoot ErrorCode = "DUPLICATE_ROOT"

	// ErrCodeMissingRoot indicates a specification compiled before From was called.
	ErrCodeMissingRoot ErrorCode = "MISSING_ROOT"

	// ErrCodeForeignPath indicates a path resolved by a root that is not part
	// of the specification being compiled.
	ErrCodeForeignPath ErrorCode = "FOREIGN_PATH"

	// ErrCodeCompilerDefect indicates a node type the compiler or rewriter does
	// not handle. It is a programming error: callers must not recover from it.
	ErrCodeCompilerDefect ErrorCode = "COMPILER_DEFECT"

	// ErrCodeUnsupported indicates a construct a renderer cannot express.
	ErrCodeUnsupported ErrorCode = "UNSUPPORTED"
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path=%s)", e.Path)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Defect builds a COMPILER_DEFECT error for an unhandled node.
func Defect(format string, args ...any) *Error {
	return &Error{Code: ErrCodeCompilerDefect, Message: fmt.Sprintf(format, args...)}
}

// Unsupported builds an UNSUPPORTED error.
func Unsupported(format string, args ...any) *Error {
	return &Error{Code: ErrCodeUnsupported, Message: fmt.Sprintf(format, args...)}
}

func invalidOperand(path string, format string, args ...any) *Error {
	return &Error{Code: ErrCodeInvalidOperand, Path: path, Message: fmt.Sprintf(format, args...)}
}

// IsUnknownProperty returns true if err is an UNKNOWN_PROPERTY error.
// Uses errors.As to handle wrapped errors.
func IsUnknownProperty(err error) bool { return hasCode(err, ErrCodeUnknownProperty) }

// IsInvalidOperand returns true if err is an INVALID_OPERAND error.
func IsInvalidOperand(err error) bool { return hasCode(err, ErrCodeInvalidOperand) }

// IsDuplicateRoot returns true if err is a DUPLICATE_ROOT error.
func IsDuplicateRoot(err error) bool { return hasCode(err, ErrCodeDuplicateRoot) }

// IsMissingRoot returns true if err is a MISSING_ROOT error.
func IsMissingRoot(err error) bool { return hasCode(err, ErrCodeMissingRoot) }

// IsForeignPath returns true if err is a FOREIGN_PATH error.
func IsForeignPath(err error) bool { return hasCode(err, ErrCodeForeignPath) }

// IsCompilerDefect returns true if err is a COMPILER_DEFECT error.
func IsCompilerDefect(err error) bool { return hasCode(err, ErrCodeCompilerDefect) }

// IsUnsupported returns true if err is an UNSUPPORTED error.
func IsUnsupported(err error) bool { return hasCode(err, ErrCodeUnsupported) }

func hasCode(err error, code ErrorCode) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
