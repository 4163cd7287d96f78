package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/cadence/errors"
)

func TestOpenWithMigrations(t *testing.T) {
	t.Run("successfully opens database and runs migrations", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "pulse_jobs", "pulse_executions"} {
			var exists int
			err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&exists)
			require.NoError(t, err)
			assert.Equal(t, 1, exists, "%s table should exist after migrations", table)
		}
	})

	t.Run("migration errors include stack traces", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")

		firstDB, err := Open(dbPath, nil)
		require.NoError(t, err)
		firstDB.Close()

		// Read-only directory: WAL files cannot be created
		require.NoError(t, os.Chmod(tmpDir, 0555))
		defer os.Chmod(tmpDir, 0755)
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}

		db, err := OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)

		assert.NotNil(t, errors.GetReportableStackTrace(err))
		assert.Contains(t, fmt.Sprintf("%+v", err), "connection.go", "stack should reference source file")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("records every migration", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))

		files, err := migrationFiles(SQLite.MigrationDir())
		require.NoError(t, err)
		applied, err := AppliedMigrations(db)
		require.NoError(t, err)
		assert.Len(t, applied, len(files))
		assert.Equal(t, "000", applied[0])
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, nil))
		require.NoError(t, Migrate(db, nil), "running migrations multiple times should be safe")
	})

	t.Run("dialects ship the same migration versions", func(t *testing.T) {
		lite, err := migrationFiles(SQLite.MigrationDir())
		require.NoError(t, err)
		pg, err := migrationFiles(Postgres.MigrationDir())
		require.NoError(t, err)
		assert.Equal(t, lite, pg)
	})

	t.Run("closed database fails", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		assert.Error(t, Migrate(db, nil))
	})

	t.Run("executions cascade with their job", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec("INSERT INTO pulse_jobs (id, state) VALUES ('a', x'7b7d')")
		require.NoError(t, err)
		_, err = db.Exec("INSERT INTO pulse_executions (id, job_id, status, run_time) VALUES ('e1', 'a', 'Executed', '2024-01-01T00:00:00.000000Z')")
		require.NoError(t, err)

		_, err = db.Exec("DELETE FROM pulse_jobs WHERE id = 'a'")
		require.NoError(t, err)

		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM pulse_executions").Scan(&n))
		assert.Zero(t, n)
	})
}

func TestTimeLayoutOrdersLexically(t *testing.T) {
	a := FormatTime(mustParse(t, "2024-01-01T09:00:00Z"))
	b := FormatTime(mustParse(t, "2024-01-01T10:00:00.5Z"))
	assert.Less(t, a, b)
	assert.Len(t, a, len(b))

	back, err := ParseTime(b)
	require.NoError(t, err)
	assert.True(t, back.Equal(mustParse(t, "2024-01-01T10:00:00.5Z")))
}

func TestEpochSecondsRoundTrip(t *testing.T) {
	ts := mustParse(t, "2024-03-10T12:30:45.123456Z")
	assert.True(t, FromEpochSeconds(EpochSeconds(ts)).Equal(ts))
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339Nano, s)
	require.NoError(t, err)
	return ts
}
