package metadata

import (
	"errors"
	"fmt"
)

// Error represents a problem detected while building or looking up entity metadata.
// Metadata errors are raised when the entity is resolved and are never swallowed.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Entity names the affected entity.
	Entity string

	// Property names the affected property, if any.
	Property string

	// Message is a human-readable description.
	Message string
}

// ErrorCode categorizes metadata errors.
type ErrorCode string

const (
	// ErrCodeDuplicateRole indicates more than one property claims the
	// version, partition or identity role.
	ErrCodeDuplicateRole ErrorCode = "DUPLICATE_ROLE"

	// ErrCodeDuplicateProperty indicates two properties share a name.
	ErrCodeDuplicateProperty ErrorCode = "DUPLICATE_PROPERTY"

	// ErrCodeUnknownEntity indicates a lookup for an entity that was never registered.
	ErrCodeUnknownEntity ErrorCode = "UNKNOWN_ENTITY"

	// ErrCodeInvalidMapping indicates an inconsistent property or association declaration.
	ErrCodeInvalidMapping ErrorCode = "INVALID_MAPPING"
)

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("%s: %s (entity=%s, property=%s)", e.Code, e.Message, e.Entity, e.Property)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s: %s (entity=%s)", e.Code, e.Message, e.Entity)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsDuplicateRole returns true if err is a DUPLICATE_ROLE metadata error.
// Uses errors.As to handle wrapped errors.
func IsDuplicateRole(err error) bool {
	return hasCode(err, ErrCodeDuplicateRole)
}

// IsUnknownEntity returns true if err is an UNKNOWN_ENTITY metadata error.
func IsUnknownEntity(err error) bool {
	return hasCode(err, ErrCodeUnknownEntity)
}

// IsInvalidMapping returns true if err is an INVALID_MAPPING metadata error.
func IsInvalidMapping(err error) bool {
	return hasCode(err, ErrCodeInvalidMapping)
}

func hasCode(err error, code ErrorCode) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}
