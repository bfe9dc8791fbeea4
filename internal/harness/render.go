package harness

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/roach88/critq/internal/querydoc"
	"github.com/roach88/critq/internal/querymodel"
	"github.com/roach88/critq/internal/querysql"
)

// Mongo is the document dialect name; the SQL dialects use querysql names.
const Mongo = "mongo"

// Dialects lists every dialect a model can be rendered for.
var Dialects = []string{
	querysql.Postgres.String(),
	querysql.MySQL.String(),
	querysql.SQLite.String(),
	Mongo,
}

// ParseDialect normalizes a dialect name.
func ParseDialect(name string) (string, error) {
	switch strings.ToLower(name) {
	case "mongo", "mongodb":
		return Mongo, nil
	}
	d, err := querysql.ParseDialect(name)
	if err != nil {
		return "", fmt.Errorf("unknown dialect %q (want postgres, mysql, sqlite or mongo)", name)
	}
	return d.String(), nil
}

// Output is a model rendered for one dialect.
type Output struct {
	Dialect string `json:"dialect"`

	// Text is SQL, or the MongoDB command as extended JSON.
	Text string `json:"text"`

	// Params names the parameter behind each placeholder, in order.
	Params []string `json:"params,omitempty"`
}

// RenderOptions tune Render.
type RenderOptions struct {
	Logger zerolog.Logger

	// Check parses rendered SQL with the dialect's syntax checker when one
	// exists.
	Check bool
}

// Render renders m for dialect.
func Render(m *querymodel.Model, dialect string, opts RenderOptions) (*Output, error) {
	if dialect == Mongo {
		stmt, err := querydoc.New(querydoc.WithLogger(opts.Logger)).Render(m)
		if err != nil {
			return nil, err
		}
		text, err := stmt.ExtJSON()
		if err != nil {
			return nil, err
		}
		return &Output{Dialect: dialect, Text: text}, nil
	}

	d, err := querysql.ParseDialect(dialect)
	if err != nil {
		return nil, err
	}
	stmt, err := querysql.New(d, querysql.WithLogger(opts.Logger)).Render(m)
	if err != nil {
		return nil, err
	}
	if opts.Check && d != querysql.SQLite {
		if err := querysql.Check(d, stmt.SQL); err != nil {
			return nil, err
		}
	}
	out := &Output{Dialect: dialect, Text: stmt.SQL}
	for _, b := range stmt.Bindings {
		out.Params = append(out.Params, b.Parameter.Name)
	}
	return out, nil
}
