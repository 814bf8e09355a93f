package webdav

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xwebdav "golang.org/x/net/webdav"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
	"github.com/atinyakov/BudgetKeeper/internal/filesystem/fstest"
)

func newServer(t *testing.T, user, pass string) *httptest.Server {
	t.Helper()
	h := &xwebdav.Handler{FileSystem: xwebdav.NewMemFS(), LockSystem: xwebdav.NewMemLS()}
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func connected(t *testing.T, srv *httptest.Server, base string) *FS {
	t.Helper()
	fsys := New()
	require.NoError(t, fsys.SetAuthentication(map[string]string{
		KeyServer:                   srv.URL,
		KeyBaseDirectory:            base,
		KeyUsername:                 "alice",
		KeyPassword:                 "secret",
		KeyAcceptInvalidCertificate: "true",
	}))
	require.NoError(t, fsys.Connect(context.Background()))
	return fsys
}

func TestFS_Contract(t *testing.T) {
	srv := newServer(t, "alice", "secret")
	fstest.Run(t, connected(t, srv, "/BudgetKeeper"))
}

func TestFS_ConnectCreatesBaseDirectory(t *testing.T) {
	srv := newServer(t, "alice", "secret")
	connected(t, srv, "Budget/Sync")

	root := connected(t, srv, "")
	ok, err := root.DirExists(context.Background(), "Budget/Sync")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFS_WrongPassword(t *testing.T) {
	srv := newServer(t, "alice", "secret")
	fsys := New()
	require.NoError(t, fsys.SetAuthentication(map[string]string{
		KeyServer:                   srv.URL,
		KeyUsername:                 "alice",
		KeyPassword:                 "wrong",
		KeyAcceptInvalidCertificate: "true",
	}))
	err := fsys.Connect(context.Background())
	assert.ErrorIs(t, err, filesystem.ErrIO)
}

func TestFS_InvalidCertificateRejectedByDefault(t *testing.T) {
	srv := newServer(t, "alice", "secret")
	fsys := New()
	require.NoError(t, fsys.SetAuthentication(map[string]string{
		KeyServer:   srv.URL,
		KeyUsername: "alice",
		KeyPassword: "secret",
	}))
	assert.Error(t, fsys.Connect(context.Background()))
}

func TestFS_RequiresAuthentication(t *testing.T) {
	fsys := New()
	_, err := fsys.FileExists(context.Background(), "budget.db")
	assert.ErrorIs(t, err, filesystem.ErrNotAuthenticated)
	assert.ErrorIs(t, err, filesystem.ErrIO)

	assert.Error(t, fsys.SetAuthentication(map[string]string{}))
	assert.Equal(t, filesystem.KindWebDAV, fsys.Kind())
}

func TestFS_CancelledContextStopsBeforeRequest(t *testing.T) {
	srv := newServer(t, "alice", "secret")
	fsys := connected(t, srv, "Sync")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := fsys.ReadFile(ctx, "budget.db")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, fsys.WriteFile(ctx, "budget.db", []byte("x")), context.Canceled)

	exists, err := fsys.FileExists(context.Background(), "budget.db")
	require.NoError(t, err)
	assert.False(t, exists)
}
