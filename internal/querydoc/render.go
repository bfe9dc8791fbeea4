package querydoc

import (
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/critq/internal/criteria"
	"github.com/roach88/critq/internal/querymodel"
)

// Renderer turns query models into MongoDB commands.
type Renderer struct {
	log zerolog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithLogger logs each rendered command at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Renderer) { r.log = l }
}

func New(opts ...Option) *Renderer {
	r := &Renderer{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Statement is a rendered command. Queries fill Pipeline; updates fill
// Filter and Update; deletes fill Filter.
type Statement struct {
	Kind       criteria.StatementKind
	Collection string
	Pipeline   []bson.D
	Filter     bson.D
	Update     bson.D
}

// Command returns the database command document for the statement, as
// accepted by RunCommand.
func (s *Statement) Command() bson.D {
	filter := s.Filter
	if filter == nil {
		filter = bson.D{}
	}
	switch s.Kind {
	case criteria.KindUpdate:
		return bson.D{
			{Key: "update", Value: s.Collection},
			{Key: "updates", Value: bson.A{bson.D{
				{Key: "q", Value: filter},
				{Key: "u", Value: s.Update},
				{Key: "multi", Value: true},
			}}},
		}
	case criteria.KindDelete:
		return bson.D{
			{Key: "delete", Value: s.Collection},
			{Key: "deletes", Value: bson.A{bson.D{
				{Key: "q", Value: filter},
				{Key: "limit", Value: 0},
			}}},
		}
	}
	pipeline := make(bson.A, len(s.Pipeline))
	for i, stage := range s.Pipeline {
		pipeline[i] = stage
	}
	return bson.D{
		{Key: "aggregate", Value: s.Collection},
		{Key: "pipeline", Value: pipeline},
		{Key: "cursor", Value: bson.D{}},
	}
}

// ExtJSON returns the command as relaxed MongoDB extended JSON.
func (s *Statement) ExtJSON() (string, error) {
	b, err := bson.MarshalExtJSON(s.Command(), false, false)
	if err != nil {
		return "", fmt.Errorf("marshal %s command: %w", s.Kind, err)
	}
	return string(b), nil
}

// Render renders m.
func (r *Renderer) Render(m *querymodel.Model) (*Statement, error) {
	if m == nil {
		return nil, criteria.Defect("render: nil model")
	}
	w := newWalker(m)
	if err := querymodel.Walk(m, w); err != nil {
		return nil, err
	}
	stmt, err := w.assemble()
	if err != nil {
		return nil, err
	}
	r.log.Debug().
		Str("collection", stmt.Collection).
		Stringer("kind", stmt.Kind).
		Int("stages", len(stmt.Pipeline)).
		Msg("rendered command")
	return stmt, nil
}
