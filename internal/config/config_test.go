package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/record"
)

func TestFromViper_Defaults(t *testing.T) {
	s, err := FromViper(New())
	require.NoError(t, err)
	require.Equal(t, "instance1", s.Instance)
	require.Equal(t, DriverPostgres, s.DBDriver)
	require.Equal(t, time.Second, s.RateLimitDelay)
	require.Equal(t, 3, s.MaxRetries)
	require.Equal(t, 30*time.Second, s.Timeout)
	require.Zero(t, s.RequestsPerSecond)
	require.Equal(t, record.Entities(), s.Entities)
}

func TestFromViper_FromEnv(t *testing.T) {
	t.Setenv("ELT_INSTANCE", "moodle2")
	t.Setenv("ELT_INSTANCE_PREFIX", "moodle")
	t.Setenv("ELT_DB_DRIVER", "SQLite")
	t.Setenv("ELT_DSN", "file:raw.db")
	t.Setenv("ELT_RATE_LIMIT_DELAY", "250ms")
	t.Setenv("ELT_MAX_RETRIES", "5")
	t.Setenv("ELT_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("ELT_ENTITIES", "grades, course")
	t.Setenv("MOODLE_URLS", "https://m1.com,https://m2.com")
	t.Setenv("MOODLE_TOKENS", "a,b")

	v := New()
	s, err := FromViper(v)
	require.NoError(t, err)
	require.Equal(t, "moodle2", s.Instance)
	require.Equal(t, DriverSQLite, s.DBDriver)
	require.Equal(t, "file:raw.db", s.DSN)
	require.Equal(t, 250*time.Millisecond, s.RateLimitDelay)
	require.Equal(t, 5, s.MaxRetries)
	require.Equal(t, 2.5, s.RequestsPerSecond)
	require.Equal(t, []string{"courses", "grades"}, s.Entities)

	cfg, err := s.Resolver().ResolveInstance(v, s.Instance)
	require.NoError(t, err)
	require.Equal(t, "https://m2.com", cfg.URL)
}

func TestFromViper_Invalid(t *testing.T) {
	cases := map[string]string{
		"ELT_DB_DRIVER":           "mysql",
		"ELT_ENTITIES":            "users,quizzes",
		"ELT_MAX_RETRIES":         "-1",
		"ELT_REQUESTS_PER_SECOND": "-3",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := FromViper(New())
			require.ErrorIs(t, err, errs.ErrConfiguration)
		})
	}
}

func TestParseEntities_AcceptsSingular(t *testing.T) {
	got, err := ParseEntities("completion,user,users")
	require.NoError(t, err)
	require.Equal(t, []string{"users", "completions"}, got)
}
