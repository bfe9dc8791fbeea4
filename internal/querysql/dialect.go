package querysql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Dialect selects the SQL flavour a Renderer emits.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
	SQLite   Dialect = "sqlite"
)

// Dialects lists the supported dialects.
var Dialects = []Dialect{Postgres, MySQL, SQLite}

// ParseDialect accepts the dialect names used in configuration.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown SQL dialect %q", name)
}

func (d Dialect) String() string { return string(d) }

// placeholder returns the bind marker for the n-th placeholder (1-based).
func (d Dialect) placeholder(n int) string {
	if d == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// arrayBinding reports whether one placeholder can carry a whole list.
func (d Dialect) arrayBinding() bool {
	return d == Postgres
}

var plainIdent = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var reserved = map[string]bool{
	"all": true, "and": true, "any": true, "as": true, "asc": true, "between": true,
	"by": true, "case": true, "check": true, "column": true, "default": true,
	"delete": true, "desc": true, "distinct": true, "else": true, "end": true,
	"exists": true, "false": true, "foreign": true, "from": true, "group": true,
	"having": true, "in": true, "index": true, "insert": true, "is": true,
	"join": true, "key": true, "like": true, "limit": true, "not": true,
	"null": true, "offset": true, "on": true, "or": true, "order": true,
	"primary": true, "range": true, "references": true, "rows": true,
	"select": true, "set": true, "table": true, "then": true, "true": true,
	"union": true, "update": true, "user": true, "values": true, "when": true,
	"where": true,
}

// quote returns ident unchanged when it is a plain lower-case identifier
// and quoted in the dialect's style otherwise.
func (d Dialect) quote(ident string) string {
	if plainIdent.MatchString(ident) && !reserved[ident] {
		return ident
	}
	if d == MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d Dialect) boolean(b bool) string {
	switch {
	case d == SQLite && b:
		return "1"
	case d == SQLite:
		return "0"
	case b:
		return "TRUE"
	default:
		return "FALSE"
	}
}

// concat joins string expressions.
func (d Dialect) concat(parts ...string) string {
	if d == MySQL {
		return "CONCAT(" + strings.Join(parts, ", ") + ")"
	}
	return strings.Join(parts, " || ")
}

func (d Dialect) regex(left, pattern string, negated bool) string {
	switch {
	case d == Postgres && negated:
		return left + " !~ " + pattern
	case d == Postgres:
		return left + " ~ " + pattern
	case negated:
		return left + " NOT REGEXP " + pattern
	default:
		return left + " REGEXP " + pattern
	}
}

// arrayContains tests membership of elem in the array-valued column.
func (d Dialect) arrayContains(column, elem string) string {
	switch d {
	case Postgres:
		return elem + " = ANY(" + column + ")"
	case MySQL:
		return "JSON_CONTAINS(" + column + ", JSON_ARRAY(" + elem + "))"
	default:
		return "EXISTS (SELECT 1 FROM json_each(" + column + ") WHERE json_each.value = " + elem + ")"
	}
}

// cardinality is the element count of an array-valued column.
func (d Dialect) cardinality(column string) string {
	switch d {
	case Postgres:
		return "cardinality(" + column + ")"
	case MySQL:
		return "JSON_LENGTH(" + column + ")"
	default:
		return "json_array_length(" + column + ")"
	}
}

// ilike renders a case-insensitive LIKE.
func (d Dialect) ilike(left, pattern string, negated bool) string {
	not := ""
	if negated {
		not = "NOT "
	}
	if d == Postgres {
		return left + " " + not + "ILIKE " + pattern
	}
	return "LOWER(" + left + ") " + not + "LIKE LOWER(" + pattern + ")"
}

func (d Dialect) function(name string) string {
	if name == "LENGTH" && d == MySQL {
		return "CHAR_LENGTH"
	}
	return name
}

// page renders LIMIT/OFFSET. An offset without a limit needs an explicit
// unbounded limit outside Postgres.
func (d Dialect) page(limit, offset int) string {
	var b strings.Builder
	switch {
	case limit > 0:
		b.WriteString(" LIMIT " + strconv.Itoa(limit))
	case offset > 0 && d == MySQL:
		b.WriteString(" LIMIT 18446744073709551615")
	case offset > 0 && d == SQLite:
		b.WriteString(" LIMIT -1")
	}
	if offset > 0 {
		b.WriteString(" OFFSET " + strconv.Itoa(offset))
	}
	return b.String()
}

func (d Dialect) supportsFullJoin() bool {
	return d != MySQL
}
