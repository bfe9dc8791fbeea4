package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/metadata"
	"github.com/roach88/critq/internal/querymodel"
	"github.com/roach88/critq/internal/rewrite"
	"github.com/roach88/critq/internal/schema"
)

// Harness runs scenarios: build, rewrite, compile, then render for every
// expected dialect.
type Harness struct {
	registry *metadata.Registry
	log      zerolog.Logger
	check    bool
	dialects []string

	// loaded caches registries by schema directory and naming.
	loaded map[string]*metadata.Registry
}

// Option configures a Harness.
type Option func(*Harness)

// WithRegistry supplies entities for scenarios that name no schema.
func WithRegistry(r *metadata.Registry) Option {
	return func(h *Harness) { h.registry = r }
}

// WithLogger passes l to the rewriter, compiler and renderers.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Harness) { h.log = l }
}

// WithCheck validates rendered SQL with the dialect's syntax checker.
func WithCheck(check bool) Option {
	return func(h *Harness) { h.check = check }
}

// WithDialects renders these dialects even when a scenario expects
// nothing for them.
func WithDialects(dialects ...string) Option {
	return func(h *Harness) { h.dialects = dialects }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{log: zerolog.Nop(), loaded: make(map[string]*metadata.Registry)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run is New(opts...).Run(scenario).
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return New(opts...).Run(scenario)
}

// Run executes scenario. The returned error reports problems running it
// (an unreadable schema, no registry); expectation mismatches are recorded
// in the Result.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	reg, err := h.registryFor(scenario)
	if err != nil {
		return nil, err
	}
	result := NewResult(scenario.Name)
	log := h.log.With().Str("scenario", scenario.Name).Logger()

	m, err := Compile(scenario, reg, log)
	if scenario.Error != "" {
		switch {
		case err == nil:
			result.AddError(fmt.Sprintf("expected error %s, statement compiled", scenario.Error))
		case ErrorCode(err) != scenario.Error:
			result.AddError(fmt.Sprintf("expected error %s, got %v", scenario.Error, err))
		}
		return result, nil
	}
	if err != nil {
		result.AddError(err.Error())
		return result, nil
	}
	result.Model = m

	for _, msg := range EvaluateAssertions(m, scenario.Assertions) {
		result.AddError(msg)
	}

	for _, dialect := range h.dialectsFor(scenario) {
		out, err := Render(m, dialect, RenderOptions{Logger: log, Check: h.check})
		exp, expected := scenario.Expect[dialect]
		if err != nil {
			switch {
			case !expected:
				result.AddError(fmt.Sprintf("%s: %v", dialect, err))
			case exp.Error == "":
				result.AddError(fmt.Sprintf("%s: unexpected error: %v", dialect, err))
			case ErrorCode(err) != exp.Error:
				result.AddError(fmt.Sprintf("%s: expected error %s, got %v", dialect, exp.Error, err))
			}
			continue
		}
		result.Outputs[dialect] = out
		if expected {
			for _, msg := range compareOutput(dialect, exp, out) {
				result.AddError(msg)
			}
		}
	}
	return result, nil
}

// Compile builds and compiles the scenario statement against reg,
// rewriting literals to parameters unless the scenario inlines them.
func Compile(s *Scenario, reg *metadata.Registry, log zerolog.Logger) (*querymodel.Model, error) {
	stmt, err := Build(criteria.NewBuilder(reg), &s.Statement)
	if err != nil {
		return nil, err
	}
	if !s.InlineLiterals {
		if stmt, err = rewrite.Apply(stmt, rewrite.WithLogger(log)); err != nil {
			return nil, err
		}
	}
	return querymodel.Compile(stmt, querymodel.WithLogger(log))
}

func (h *Harness) registryFor(s *Scenario) (*metadata.Registry, error) {
	if s.Schema == "" {
		if h.registry == nil {
			return nil, fmt.Errorf("scenario %s: no schema and no registry", s.Name)
		}
		return h.registry, nil
	}
	key := s.Schema + "\x00" + s.Naming
	if reg, ok := h.loaded[key]; ok {
		return reg, nil
	}
	naming, err := metadata.ParseNaming(s.Naming)
	if err != nil {
		return nil, err
	}
	reg, err := schema.LoadRegistry(s.Schema, metadata.WithNaming(naming))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	h.loaded[key] = reg
	return reg, nil
}

// dialectsFor returns the configured dialects plus the expected ones, in
// Dialects order.
func (h *Harness) dialectsFor(s *Scenario) []string {
	var out []string
	for _, d := range Dialects {
		_, expected := s.Expect[d]
		if expected || slices.Contains(h.dialects, d) {
			out = append(out, d)
		}
	}
	return out
}

func compareOutput(dialect string, exp DialectExpect, out *Output) []string {
	if exp.Error != "" {
		return []string{fmt.Sprintf("%s: expected error %s, rendered %s", dialect, exp.Error, out.Text)}
	}
	var errs []string
	want := strings.TrimSpace(exp.Text)
	if dialect == Mongo {
		if err := jsonEqual(want, out.Text); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", dialect, err))
		}
	} else if want != out.Text {
		errs = append(errs, fmt.Sprintf("%s: text mismatch\n  want: %s\n   got: %s", dialect, want, out.Text))
	}
	if exp.Params != nil && !slices.Equal(exp.Params, out.Params) {
		errs = append(errs, fmt.Sprintf("%s: params %v, want %v", dialect, out.Params, exp.Params))
	}
	return errs
}

// jsonEqual compares two JSON documents structurally.
func jsonEqual(want, got string) error {
	var w, g any
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		return fmt.Errorf("expected text is not JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(got), &g); err != nil {
		return fmt.Errorf("rendered text is not JSON: %w", err)
	}
	if d := cmp.Diff(w, g); d != "" {
		return fmt.Errorf("command mismatch (-want +got):\n%s", d)
	}
	return nil
}

// ErrorCode returns the code of a criteria, metadata or schema error, or
// ERROR for anything else.
func ErrorCode(err error) string {
	var ce *criteria.Error
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	var me *metadata.Error
	if errors.As(err, &me) {
		return string(me.Code)
	}
	if code := schema.CodeOf(err); code != "" {
		return string(code)
	}
	return "ERROR"
}
