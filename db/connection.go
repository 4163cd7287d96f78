package db

import (
	"database/sql"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/cadence/errors"
	"github.com/teranos/cadence/logger"
)

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database before failing.
const SQLiteBusyTimeoutMS = 5000

// Open opens the database named by dsn.
// postgres:// and postgresql:// URLs use lib/pq; anything else is a SQLite path.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	log = logger.AddDBSymbol(log)
	dialect := DialectForDSN(dsn)

	log.Debugw("Opening database", logger.FieldPath, Redact(dsn), logger.FieldDialect, dialect)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case Postgres:
		db, err = sql.Open("postgres", dsn)
	default:
		db, err = sql.Open("sqlite3", sqliteDSN(dsn))
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to connect to %s database", dialect)
	}

	log.Infow("Database opened successfully",
		logger.FieldPath, Redact(dsn),
		logger.FieldDialect, dialect,
	)

	return db, nil
}

// OpenWithMigrations opens the database and applies pending migrations.
func OpenWithMigrations(dsn string, log *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(dsn, log)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, log); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to run migrations")
	}
	return db, nil
}

// sqliteDSN turns a plain path into a DSN that enables WAL, foreign keys and
// a busy timeout on every pooled connection.
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.HasPrefix(path, "file:") {
		return path
	}
	params := url.Values{}
	params.Set("_journal_mode", "WAL")
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", "5000")
	return "file:" + path + "?" + params.Encode()
}

// Redact hides the password of a postgres URL for logging.
func Redact(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}

// IsUniqueViolation reports whether err is a primary key or unique constraint
// failure from either driver.
func IsUniqueViolation(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
