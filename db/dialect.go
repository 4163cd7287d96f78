package db

import (
	"database/sql"
	"strconv"
	"strings"

	"github.com/lib/pq"
)

// Dialect names the SQL flavour behind a *sql.DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DialectForDSN picks the dialect from the shape of a connection string.
func DialectForDSN(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return Postgres
	}
	return SQLite
}

// DialectOf inspects the driver behind db.
func DialectOf(db *sql.DB) Dialect {
	if _, ok := db.Driver().(*pq.Driver); ok {
		return Postgres
	}
	return SQLite
}

// Rebind rewrites ? placeholders into the dialect's bind syntax.
// Queries must not contain literal question marks.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// MigrationDir is the embedded directory holding this dialect's migrations.
func (d Dialect) MigrationDir() string {
	return string(d) + "/migrations"
}
