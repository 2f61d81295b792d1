// Package sqlxrepos implements the domain repositories over postgres with sqlx.
package sqlxrepos

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/shulehq/shule/core"
)

func wrapDB(db *sql.DB) *sqlx.DB {
	return sqlx.NewDb(db, "postgres")
}

// buildWhere joins conditions into a WHERE clause, or returns "" when empty.
func buildWhere(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

// buildOrderBy renders an ORDER BY clause from orderings, or the fallback.
func buildOrderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	parts := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		parts = append(parts, ord.String())
	}
	return " ORDER BY " + strings.Join(parts, ", ")
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
