// Package testdb locates the PostgreSQL database used by integration tests.
// Tests call RequireURL and are skipped when no database is configured,
// except in CI where a missing database is a failure.
package testdb

import (
	"os"
	"testing"

	"github.com/phrazzld/mailroom/internal/redact"
)

// Database connection environment variables, in lookup order.
const (
	EnvTestDBURL   = "MAILROOM_TEST_DB_URL"
	EnvDatabaseURL = "DATABASE_URL"
)

var ciVariables = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "CIRCLECI"}

// DatabaseURL returns the first non-empty database URL variable.
func DatabaseURL() string {
	for _, name := range []string{EnvTestDBURL, EnvDatabaseURL} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// IsCI reports whether the tests run under a CI provider.
func IsCI() bool {
	for _, name := range ciVariables {
		if os.Getenv(name) != "" {
			return true
		}
	}
	return false
}

// ShouldSkipDatabaseTest reports whether no database is configured.
func ShouldSkipDatabaseTest() bool {
	return DatabaseURL() == ""
}

// RequireURL returns the database URL or stops t.
func RequireURL(t testing.TB) string {
	t.Helper()
	url := DatabaseURL()
	switch {
	case url != "":
		t.Logf("using test database %s", redact.String(url))
		return url
	case IsCI():
		t.Fatalf("no test database configured: set %s or %s", EnvTestDBURL, EnvDatabaseURL)
	default:
		t.Skipf("skipping database test: %s not set", EnvTestDBURL)
	}
	return ""
}
