package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/critq/internal/config"
	"github.com/roach88/critq/internal/schema"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Naming string
}

// ValidationIssue is one problem found in a schema.
type ValidationIssue struct {
	Code    string `json:"code"`
	Entity  string `json:"entity,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Entities int               `json:"entities"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <schema-dir>",
		Short: "Validate entity definitions",
		Long: `Validate the CUE entity definitions in a directory.

Every entity is checked and every problem reported: malformed property or
association declarations, duplicate identity/version/partition roles,
and associations whose target is not defined.

Exit codes:
  0 - Schema valid
  1 - Schema has errors
  2 - Command error (directory missing, no CUE files)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Naming, config.KeyNaming, "", "naming strategy (underscore_plural|underscore|raw)")

	return cmd
}

func runValidate(opts *ValidateOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, errs := LoadSchema(dir, schema.CollectAll, opts.Naming)
	if loaded == nil {
		return formatter.Fail(ExitCommandError, ErrorCodeFor(errs[0]), errs[0].Error())
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", len(loaded.Schema.Files), dir)

	result := ValidationResult{Valid: len(errs) == 0, Entities: len(loaded.Schema.Definitions)}
	for _, err := range errs {
		result.Errors = append(result.Errors, issueFor(err))
	}

	if result.Valid {
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d entities valid\n", result.Entities)
		return nil
	}
	return outputValidationErrors(formatter, result)
}

func issueFor(err error) ValidationIssue {
	issue := ValidationIssue{Code: ErrorCodeFor(err), Message: err.Error()}
	var se *schema.Error
	if errors.As(err, &se) {
		issue.Entity = se.Entity
		issue.Field = se.Field
		issue.Message = se.Message
		if se.Pos.IsValid() {
			issue.File = se.Pos.Filename()
			issue.Line = se.Pos.Line()
		}
	}
	return issue
}

// outputValidationErrors outputs every issue and returns an ExitFailure.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		first := result.Errors[0]
		if err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: first.Code, Message: first.Message},
		}); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", issue.File, issue.Line)
		}
		where := issue.Entity
		if issue.Field != "" {
			where += "." + issue.Field
		}
		if where != "" {
			fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", issue.Code, where, issue.Message)
		} else {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}
	return failure
}
