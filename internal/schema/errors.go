package schema

import (
	"errors"
	"fmt"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// ErrorCode categorizes schema loading errors.
type ErrorCode string

const (
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeNoFiles       ErrorCode = "NO_FILES"
	ErrCodeLoadFailed    ErrorCode = "LOAD_FAILED"
	ErrCodeBuildFailed   ErrorCode = "BUILD_FAILED"
	ErrCodeInvalidEntity ErrorCode = "INVALID_ENTITY"
	ErrCodeUnknownTarget ErrorCode = "UNKNOWN_TARGET"
)

// Error is a schema problem with its CUE source position when known.
type Error struct {
	Code    ErrorCode
	Entity  string
	Field   string
	Message string
	Pos     token.Pos

	// Err is the underlying cause, e.g. a *metadata.Error.
	Err error
}

func (e *Error) Error() string {
	where := e.Entity
	if e.Field != "" {
		where += "." + e.Field
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if where != "" {
		msg = fmt.Sprintf("%s: %s: %s", e.Code, where, e.Message)
	}
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the schema error code of err, or "" if err is not one.
func CodeOf(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// fromCUE converts a CUE evaluation error, keeping the first position.
func fromCUE(err error, entity, field string) *Error {
	e := &Error{Code: ErrCodeInvalidEntity, Entity: entity, Field: field, Message: err.Error(), Err: err}
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return e
	}
	e.Message = errs[0].Error()
	if pos := cueerrors.Positions(errs[0]); len(pos) > 0 {
		e.Pos = pos[0]
	}
	return e
}
