// Package dbtest opens throwaway sqlite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/mind-engage/mindengage-exams/internal/db"
)

// DSN returns a file DSN inside t's temp dir.
func DSN(t testing.TB) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	return "file:" + path + "?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
}

// NewHandle returns an unopened handle on a fresh database, closed on cleanup.
func NewHandle(t testing.TB) *db.Handle {
	t.Helper()
	h := db.NewHandle(db.DriverSQLite, DSN(t))
	t.Cleanup(func() { _ = h.Close() })
	return h
}
