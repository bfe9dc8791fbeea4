package querysql

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/ir"
	"github.com/roach88/critq/internal/querymodel"
)

// Renderer turns query models into parameterized SQL text for one dialect.
//
// Values are never interpolated except for literals the caller chose to
// keep inline (see the rewrite package). Placeholders are numbered in the
// order the model's Walk visits them, which is also the order of
// Statement.Bindings.
type Renderer struct {
	dialect   Dialect
	log       zerolog.Logger
	stableKey string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger logs each rendered statement at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

// WithStableOrder appends root.column ASC to every top-level query as a
// final tiebreaker so result order is deterministic. Grouped, distinct and
// aggregate-only queries are left alone.
func WithStableOrder(column string) Option {
	return func(r *Renderer) { r.stableKey = column }
}

// New creates a Renderer for d.
func New(d Dialect, opts ...Option) *Renderer {
	r := &Renderer{dialect: d, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dialect returns the renderer's dialect.
func (r *Renderer) Dialect() Dialect { return r.dialect }

// Statement is rendered SQL plus its placeholder bindings.
type Statement struct {
	SQL      string
	Bindings []Binding
}

// Binding ties one placeholder to a model parameter.
type Binding struct {
	Parameter querymodel.Parameter

	// Element is the index into a collection parameter that was expanded
	// into one placeholder per element, or -1 when the placeholder carries
	// the whole parameter.
	Element int
}

// Render renders m.
func (r *Renderer) Render(m *querymodel.Model) (*Statement, error) {
	if m == nil {
		return nil, criteria.Defect("render: nil model")
	}
	st := &state{dialect: r.dialect, params: m.Parameters}
	if m.Kind != criteria.KindQuery {
		st.qualify = map[string]string{m.Alias: m.Table}
	}
	w := newWalker(st, m)
	w.stableKey = r.stableKey
	sql, err := w.render()
	if err != nil {
		return nil, err
	}
	r.log.Debug().
		Str("dialect", string(r.dialect)).
		Int("placeholders", len(st.bindings)).
		Str("sql", sql).
		Msg("rendered statement")
	return &Statement{SQL: sql, Bindings: st.bindings}, nil
}

// Args returns the driver arguments in placeholder order. values overrides
// parameter values by name; every placeholder must end up bound.
func (s *Statement) Args(values map[string]ir.IRValue) ([]any, error) {
	args := make([]any, len(s.Bindings))
	var errs error
	for i, b := range s.Bindings {
		v := b.Parameter.Value
		if override, ok := values[b.Parameter.Name]; ok {
			v = override
		}
		if v == nil {
			errs = multierr.Append(errs, fmt.Errorf("parameter %q (placeholder %d) is not bound", b.Parameter.Name, i+1))
			continue
		}
		arg, err := bindValue(v, b)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		args[i] = arg
	}
	if errs != nil {
		return nil, errs
	}
	return args, nil
}

// bindValue converts an IRValue to the Go value handed to database/sql.
func bindValue(v ir.IRValue, b Binding) (any, error) {
	arr, isArray := v.(ir.IRArray)
	switch {
	case b.Element >= 0 && !isArray:
		return nil, fmt.Errorf("parameter %q was expanded as a collection but is bound to %T", b.Parameter.Name, v)
	case b.Element >= 0 && b.Element >= len(arr):
		return nil, fmt.Errorf("parameter %q has %d elements, statement was rendered for more", b.Parameter.Name, len(arr))
	case b.Element >= 0:
		return ir.ToGo(arr[b.Element]), nil
	case isArray:
		return ir.ToGoSlice(arr), nil
	}
	if _, ok := v.(ir.IRObject); ok {
		return nil, fmt.Errorf("parameter %q: objects cannot be bound as SQL parameters", b.Parameter.Name)
	}
	return ir.ToGo(v), nil
}
