package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/critq/internal/config"
	"github.com/roach88/critq/internal/harness"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/querymodel"
	"github.com/roach88/critq/internal/querysql"
	"github.com/roach88/critq/internal/schema"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect        string
	Check          bool
	InlineLiterals bool
	Naming         string
	Schema         string
}

// CompileOutput is the rendered statement.
type CompileOutput struct {
	Scenario     string          `json:"scenario"`
	Dialect      string          `json:"dialect"`
	Text         string          `json:"text"`
	Placeholders []string        `json:"placeholders,omitempty"`
	Parameters   []ParameterInfo `json:"parameters,omitempty"`
	Fingerprint  string          `json:"fingerprint"`
}

// ParameterInfo is one model parameter and its bound value.
type ParameterInfo struct {
	Name  string `json:"name"`
	Path  string `json:"path,omitempty"`
	Type  string `json:"type"`
	Value any    `json:"value,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <scenario.yaml>",
		Short: "Compile a statement and render it for a dialect",
		Long: `Compile the statement described by a scenario file and print the
rendered query.

The statement is built against the scenario's schema, literals are
rewritten to named parameters unless --inline-literals is set, and the
compiled model is rendered for --dialect. --check parses the rendered
PostgreSQL or MySQL text with that dialect's grammar.

Examples:
  critq compile scenarios/title_and_author.yaml
  critq compile scenarios/author_page.yaml --dialect mongo --format json
  critq compile q.yaml --schema ./schema --dialect mysql --check`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Dialect, config.KeyDialect, "d", "postgres", "target dialect (postgres|mysql|sqlite|mongo)")
	cmd.Flags().BoolVar(&opts.Check, "check", false, "validate rendered SQL syntax")
	cmd.Flags().BoolVar(&opts.InlineLiterals, config.KeyInlineLiterals, false, "render literals inline instead of as parameters")
	cmd.Flags().StringVar(&opts.Naming, config.KeyNaming, "", "naming strategy, overriding the scenario's")
	cmd.Flags().StringVar(&opts.Schema, config.KeySchema, "", "CUE schema directory, overriding the scenario's")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	log, err := opts.Logger("compile")
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	dialect, err := harness.ParseDialect(opts.Dialect)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error())
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalidScenario, err.Error())
	}
	if opts.Schema != "" {
		scenario.Schema = opts.Schema
	}
	if opts.Naming != "" {
		scenario.Naming = opts.Naming
	}
	scenario.InlineLiterals = scenario.InlineLiterals || opts.InlineLiterals
	if scenario.Schema == "" {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "no schema: set --schema or the scenario's schema field")
	}

	loaded, errs := LoadSchema(scenario.Schema, schema.FailFast, scenario.Naming)
	if len(errs) > 0 {
		return formatter.Fail(ExitCommandError, ErrorCodeFor(errs[0]), errs[0].Error())
	}
	formatter.VerboseLog("Loaded %d entities from %s", len(loaded.Schema.Definitions), scenario.Schema)

	m, err := harness.Compile(scenario, loaded.Registry, log.Logger)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrorCodeFor(err), err.Error())
	}

	out, err := harness.Render(m, dialect, harness.RenderOptions{Logger: log.Logger})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrorCodeFor(err), err.Error())
	}
	if opts.Check {
		if err := checkSyntax(formatter, dialect, out.Text); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeCheckFailed, err.Error())
		}
	}

	fingerprint, err := querymodel.Fingerprint(m)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrorCodeFor(err), err.Error())
	}
	result := CompileOutput{
		Scenario:     scenario.Name,
		Dialect:      dialect,
		Text:         out.Text,
		Placeholders: out.Params,
		Fingerprint:  fingerprint,
	}
	for _, p := range m.Parameters {
		info := ParameterInfo{Name: p.Name, Path: p.Path, Type: p.Type.String()}
		if p.Bound() {
			info.Value = ir.ToGo(p.Value)
		}
		result.Parameters = append(result.Parameters, info)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	writeCompileText(formatter, result)
	return nil
}

// checkSyntax parses SQL with the dialect's grammar; other dialects are
// skipped.
func checkSyntax(f *OutputFormatter, dialect, text string) error {
	d, err := querysql.ParseDialect(dialect)
	if err != nil || d == querysql.SQLite {
		f.VerboseLog("No syntax checker for %s", dialect)
		return nil
	}
	return querysql.Check(d, text)
}

func writeCompileText(f *OutputFormatter, result CompileOutput) {
	fmt.Fprintln(f.Writer, result.Text)
	if len(result.Parameters) == 0 {
		return
	}
	fmt.Fprintln(f.Writer)
	fmt.Fprintln(f.Writer, "Parameters:")
	for _, p := range result.Parameters {
		fmt.Fprintf(f.Writer, "  %s %s = %v\n", p.Name, p.Type, p.Value)
	}
	if len(result.Placeholders) > len(result.Parameters) {
		fmt.Fprintf(f.Writer, "Placeholders: %v\n", result.Placeholders)
	}
}
