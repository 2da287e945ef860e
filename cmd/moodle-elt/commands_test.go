package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/and161185/moodle-elt/internal/errs"
	"github.com/and161185/moodle-elt/internal/moodle"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runApp(t, newApp(zap.NewNop()), args...)
}

func runApp(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cmd := a.rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInstances_ListsWithoutTokens(t *testing.T) {
	t.Setenv("MOODLE_URLS", "https://m1.example.com,https://m2.example.com")
	t.Setenv("MOODLE_TOKENS", "secret1,secret2")

	out, err := run(t, "instances")
	require.NoError(t, err)
	require.Contains(t, out, "instance1\thttps://m1.example.com")
	require.Contains(t, out, "instance2\thttps://m2.example.com")
	require.NotContains(t, out, "secret")
}

func TestInstances_IndividualKeys(t *testing.T) {
	t.Setenv("MOODLE4_URL", "https://four.example.com")
	t.Setenv("MOODLE4_TOKEN", "secret")

	out, err := run(t, "instances", "--instance", "moodle4")
	require.NoError(t, err)
	require.Equal(t, "moodle4\thttps://four.example.com\n", out)
}

func TestInstances_Missing(t *testing.T) {
	_, err := run(t, "instances")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRoot_RejectsUnknownDriver(t *testing.T) {
	_, err := run(t, "migrate", "--db-driver", "oracle")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestExtract_RejectsUnknownEntity(t *testing.T) {
	_, err := run(t, "extract", "--entity", "users", "--entity", "quizzes")
	require.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestMigrate_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.db")
	_, err := run(t, "migrate", "--db-driver", "sqlite", "--dsn", path)
	require.NoError(t, err)

	// idempotent
	_, err = run(t, "migrate", "--db-driver", "sqlite", "--dsn", path)
	require.NoError(t, err)
}

type moodleStub struct {
	mu     sync.Mutex
	tokens []string
	calls  []string
}

func (m *moodleStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	fn := r.PostForm.Get("wsfunction")
	m.mu.Lock()
	m.tokens = append(m.tokens, r.PostForm.Get("wstoken"))
	m.calls = append(m.calls, fn+":"+r.PostForm.Get("courseid"))
	m.mu.Unlock()

	switch fn {
	case moodle.FnGetCourses:
		_, _ = w.Write([]byte(`[{"id": 1, "fullname": "Site"}, {"id": 2, "fullname": "Maths"}]`))
	case moodle.FnGetEnrolledUsers:
		_, _ = w.Write([]byte(`[{"id": 10, "username": "alice"}]`))
	default:
		_, _ = w.Write([]byte(`[]`))
	}
}

func TestExtract_EndToEndSQLite(t *testing.T) {
	stub := &moodleStub{}
	srv := httptest.NewTLSServer(stub)
	t.Cleanup(srv.Close)

	t.Setenv("MOODLE_URLS", srv.URL)
	t.Setenv("MOODLE_TOKENS", "tok")
	t.Setenv("ELT_RATE_LIMIT_DELAY", "0")
	dsn := filepath.Join(t.TempDir(), "raw.db")

	_, err := run(t, "migrate", "--db-driver", "sqlite", "--dsn", dsn)
	require.NoError(t, err)

	extract := func() string {
		a := newApp(zap.NewNop())
		a.httpClient = srv.Client()
		out, err := runApp(t, a, "extract", "--db-driver", "sqlite", "--dsn", dsn,
			"--entity", "enrolment", "--entity", "courses")
		require.NoError(t, err)
		return out
	}

	start := time.Now()
	out := extract()
	require.Contains(t, out, "courses            extracted=2 inserted=2 stored=2 failed=0")
	require.Contains(t, out, "enrolments         extracted=2 inserted=2 stored=2 failed=0")
	require.NotContains(t, out, "users")

	out = extract()
	require.Contains(t, out, "courses            extracted=2 inserted=2 stored=4 failed=0")
	require.Less(t, time.Since(start), 5*time.Second)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Equal(t, []string{
		moodle.FnGetCourses + ":",
		moodle.FnGetEnrolledUsers + ":1",
		moodle.FnGetEnrolledUsers + ":2",
	}, stub.calls[:3])
	for _, tok := range stub.tokens {
		require.Equal(t, "tok", tok)
	}
}
