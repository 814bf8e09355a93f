package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebdav "golang.org/x/net/webdav"

	"github.com/atinyakov/BudgetKeeper/internal/cloudsync"
	"github.com/atinyakov/BudgetKeeper/internal/dataset/sqldb"
	"github.com/atinyakov/BudgetKeeper/internal/models"
)

var t0 = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

// run executes the CLI against dataDir and returns stdout.
func run(t *testing.T, dataDir, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand(BuildInfo{Version: "test"})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--data_dir", dataDir, "--log_level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedPayee(t *testing.T, dbPath, name string) models.Payee {
	t.Helper()
	ctx := context.Background()
	s := sqldb.NewSQLite(dbPath)
	require.NoError(t, s.Init(ctx))
	defer s.Close()
	p := models.Payee{ID: uuid.New(), Description: name, Audit: models.NewAudit(t0)}
	require.NoError(t, s.CreatePayee(ctx, p))
	return p
}

func payees(t *testing.T, dbPath string) []string {
	t.Helper()
	ctx := context.Background()
	s := sqldb.NewSQLite(dbPath)
	require.NoError(t, s.Init(ctx))
	defer s.Close()
	ps, err := s.ReadPayees(ctx)
	require.NoError(t, err)
	var names []string
	for _, p := range ps {
		names = append(names, p.Description)
	}
	return names
}

func TestExportImport(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	snapshot := filepath.Join(t.TempDir(), "out", "budget.db.gz")
	seedPayee(t, filepath.Join(a, "budget.db"), "Bookshop")
	seedPayee(t, filepath.Join(b, "budget.db"), "Butcher")

	out, err := run(t, a, "", "export", snapshot)
	require.NoError(t, err, out)
	assert.Contains(t, out, "exported")

	// b exports into the same snapshot: a's rows survive.
	_, err = run(t, b, "", "export", snapshot)
	require.NoError(t, err)

	_, err = run(t, a, "", "import", snapshot)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Bookshop", "Butcher"}, payees(t, filepath.Join(a, "budget.db")))
}

func TestImport_MissingSnapshot(t *testing.T) {
	_, err := run(t, t.TempDir(), "", "import", filepath.Join(t.TempDir(), "none.db"))
	assert.ErrorContains(t, err, "snapshot not found")
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	other := filepath.Join(t.TempDir(), "other.db")
	seedPayee(t, filepath.Join(dir, "budget.db"), "Local")
	seedPayee(t, other, "Other")

	_, err := run(t, dir, "", "merge", other, "--direction", "pull")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Local", "Other"}, payees(t, filepath.Join(dir, "budget.db")))
	assert.Equal(t, []string{"Other"}, payees(t, other))

	_, err = run(t, dir, "", "merge", other)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Local", "Other"}, payees(t, other))

	_, err = run(t, dir, "", "merge", other, "--direction", "sideways")
	assert.Error(t, err)
}

func TestStatus_Disabled(t *testing.T) {
	out, err := run(t, t.TempDir(), "", "status")
	require.NoError(t, err)
	assert.Equal(t, "Mode: none\nLast sync: never\n", out)
}

func TestEnableSyncStatus_WebDav(t *testing.T) {
	h := &xwebdav.Handler{FileSystem: xwebdav.NewMemFS(), LockSystem: xwebdav.NewMemLS()}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != "carol" || p != "pw" {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	dir := t.TempDir()
	seedPayee(t, filepath.Join(dir, "budget.db"), "Chemist")

	// server comes from --set, username and password from the prompt.
	out, err := run(t, dir, "carol\npw\n", "enable", "webdav",
		"--set", "server="+srv.URL,
		"--set", "accept_invalid_certificate=true")
	require.NoError(t, err, out)
	assert.Contains(t, out, "username: password: ")
	assert.Contains(t, out, "cloud sync enabled: webdav")

	out, err = run(t, dir, "", "sync")
	require.NoError(t, err, out)

	out, err = run(t, dir, "", "status", "--json")
	require.NoError(t, err)
	var st cloudsync.Status
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, cloudsync.ModeWebDav, st.Mode)
	assert.NotNil(t, st.LastSync)

	_, err = run(t, dir, "", "disable")
	require.NoError(t, err)
	out, err = run(t, dir, "", "sync")
	require.NoError(t, err, "sync while disabled is a no-op")
	assert.Contains(t, out, "sync complete")
}

func TestEnable_HandshakeFailure(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "", "enable", "s3", "--interactive=false",
		"--set", "bucket=b", "--set", "endpoint=http://127.0.0.1:1", "--set", "app_key=k", "--set", "app_secret=s",
		"--set", "path_style=true")
	assert.Error(t, err)

	out, err := run(t, dir, "", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Mode: none")
}
