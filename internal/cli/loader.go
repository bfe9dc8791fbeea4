package cli

import (
	"errors"

	"go.uber.org/multierr"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/metadata"
	"github.com/roach88/critq/internal/schema"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNoFiles     = "E003" // No CUE files or no entities found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed

	// Schema errors
	ErrCodeInvalidEntity   = "E101" // Malformed entity declaration
	ErrCodeUnknownTarget   = "E102" // Association target not defined
	ErrCodeDuplicateRole   = "E103" // Two properties claim identity, version or partition
	ErrCodeInvalidMapping  = "E104" // Inconsistent property or association mapping
	ErrCodeUnknownEntity   = "E105" // Statement root names no entity
	ErrCodeDuplicateMember = "E106" // Two properties share a name

	// Statement errors
	ErrCodeInvalidScenario = "E201" // Scenario file unreadable or invalid
	ErrCodeUnknownProperty = "E202" // Path names no property
	ErrCodeInvalidOperand  = "E203" // Operand fails type validation
	ErrCodeUnsupported     = "E204" // Dialect cannot express the statement
	ErrCodeInvalidQuery    = "E205" // Any other criteria error
	ErrCodeCheckFailed     = "E206" // Rendered SQL failed the syntax check
)

// LoadResult contains a loaded schema and the registry built from it.
type LoadResult struct {
	Schema   *schema.Result
	Registry *metadata.Registry
}

// LoadSchema loads dir and registers its entities with naming. In
// collect-all mode errs holds every problem found; the result may still be
// partially usable.
func LoadSchema(dir string, mode schema.Mode, naming string) (*LoadResult, []error) {
	strategy, err := metadata.ParseNaming(naming)
	if err != nil {
		return nil, []error{err}
	}

	res, err := schema.Load(dir, mode)
	if res == nil {
		return nil, []error{err}
	}
	errs := multierr.Errors(err)
	if len(errs) > 0 && mode == schema.FailFast {
		return &LoadResult{Schema: res}, errs
	}

	reg, err := schema.Register(res.Definitions, mode, metadata.WithNaming(strategy))
	errs = append(errs, multierr.Errors(err)...)
	return &LoadResult{Schema: res, Registry: reg}, errs
}

// ErrorCodeFor maps an error from loading, building or rendering to a CLI
// error code.
func ErrorCodeFor(err error) string {
	var se *schema.Error
	if errors.As(err, &se) {
		if code := metadataCode(se.Err); code != "" {
			return code
		}
		switch se.Code {
		case schema.ErrCodeNotFound:
			return ErrCodeNotFound
		case schema.ErrCodeNoFiles:
			return ErrCodeNoFiles
		case schema.ErrCodeLoadFailed:
			return ErrCodeLoadFailed
		case schema.ErrCodeBuildFailed:
			return ErrCodeBuildFailed
		case schema.ErrCodeInvalidEntity:
			return ErrCodeInvalidEntity
		case schema.ErrCodeUnknownTarget:
			return ErrCodeUnknownTarget
		}
	}
	if code := metadataCode(err); code != "" {
		return code
	}

	var ce *criteria.Error
	if errors.As(err, &ce) {
		switch ce.Code {
		case criteria.ErrCodeUnknownProperty:
			return ErrCodeUnknownProperty
		case criteria.ErrCodeInvalidOperand:
			return ErrCodeInvalidOperand
		case criteria.ErrCodeUnsupported:
			return ErrCodeUnsupported
		default:
			return ErrCodeInvalidQuery
		}
	}
	return ErrCodeGeneric
}

func metadataCode(err error) string {
	var me *metadata.Error
	if err == nil || !errors.As(err, &me) {
		return ""
	}
	switch me.Code {
	case metadata.ErrCodeDuplicateRole:
		return ErrCodeDuplicateRole
	case metadata.ErrCodeDuplicateProperty:
		return ErrCodeDuplicateMember
	case metadata.ErrCodeUnknownEntity:
		return ErrCodeUnknownEntity
	default:
		return ErrCodeInvalidMapping
	}
}
