package querysql

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v5"
	"github.com/xwb1989/sqlparser"

	"github.com/roach88/critq/internal/criteria"
)

// Check parses sql with a real grammar for d and reports syntax errors.
// SQLite has no standalone parser here; its output is verified by
// executing it in tests.
func Check(d Dialect, sql string) error {
	switch d {
	case Postgres:
		if _, err := pg_query.Parse(sql); err != nil {
			return fmt.Errorf("postgres syntax: %w", err)
		}
		return nil
	case MySQL:
		if _, err := sqlparser.Parse(sql); err != nil {
			return fmt.Errorf("mysql syntax: %w", err)
		}
		return nil
	}
	return criteria.Unsupported("no syntax checker for %s", d)
}
