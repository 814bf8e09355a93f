// Package webdav implements filesystem.FileSystem on a WebDAV server.
package webdav

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"sync"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
)

// Credential keys accepted by SetAuthentication.
const (
	KeyServer                   = "server"
	KeyBaseDirectory            = "base_directory"
	KeyUsername                 = "username"
	KeyPassword                 = "password"
	KeyAcceptInvalidCertificate = "accept_invalid_certificate"
)

// DefaultTimeout bounds every request to the server.
const DefaultTimeout = 60 * time.Second

var _ filesystem.FileSystem = (*FS)(nil)

// FS talks to one WebDAV server. All paths are relative to the base directory.
type FS struct {
	mu      sync.RWMutex
	client  *gowebdav.Client
	base    string
	timeout time.Duration
}

// New returns an unauthenticated provider.
func New() *FS {
	return &FS{timeout: DefaultTimeout}
}

func (f *FS) Kind() filesystem.Kind { return filesystem.KindWebDAV }

// SetAuthentication builds the client. The server is contacted by Connect, not here.
func (f *FS) SetAuthentication(creds map[string]string) error {
	server := creds[KeyServer]
	if server == "" {
		return filesystem.Wrap(filesystem.KindWebDAV, "auth", "", fmt.Errorf("%s is required", KeyServer))
	}
	base, err := filesystem.Clean(creds[KeyBaseDirectory])
	if err != nil {
		return filesystem.Wrap(filesystem.KindWebDAV, "auth", "", err)
	}

	client := gowebdav.NewClient(server, creds[KeyUsername], creds[KeyPassword])
	client.SetTimeout(f.timeout)
	if insecure, _ := strconv.ParseBool(creds[KeyAcceptInvalidCertificate]); insecure {
		client.SetTransport(&http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // opted in by the user
		})
	}

	f.mu.Lock()
	f.client = client
	f.base = base
	f.mu.Unlock()
	return nil
}

// Connect checks the server answers with the configured credentials and
// creates the base directory when missing.
func (f *FS) Connect(ctx context.Context) error {
	c, err := f.conn(ctx, "connect", "")
	if err != nil {
		return err
	}
	if err := c.Connect(); err != nil {
		return f.fail("connect", "", err)
	}
	return f.CreateDir(ctx, "")
}

// conn checks ctx only before a call starts. gowebdav requests take no
// context, so a request in flight is bounded by the client timeout
// (DefaultTimeout), not by ctx or the sync deadline.
func (f *FS) conn(ctx context.Context, op, name string) (*gowebdav.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail(op, name, err)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.client == nil {
		return nil, f.fail(op, name, filesystem.ErrNotAuthenticated)
	}
	return f.client, nil
}

// remote maps a provider path to the server path.
func (f *FS) remote(name string) (string, error) {
	clean, err := filesystem.Clean(name)
	if err != nil {
		return "", err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return "/" + path.Join(f.base, clean), nil
}

func (f *FS) fail(op, name string, err error) error {
	if gowebdav.IsErrNotFound(err) {
		err = fmt.Errorf("%w: %v", filesystem.ErrNotFound, err)
	}
	return filesystem.Wrap(filesystem.KindWebDAV, op, name, err)
}

// prepare resolves the client and server path for one operation.
func (f *FS) prepare(ctx context.Context, op, name string) (*gowebdav.Client, string, error) {
	c, err := f.conn(ctx, op, name)
	if err != nil {
		return nil, "", err
	}
	p, err := f.remote(name)
	if err != nil {
		return nil, "", f.fail(op, name, err)
	}
	return c, p, nil
}

func (f *FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	c, p, err := f.prepare(ctx, "read", name)
	if err != nil {
		return nil, err
	}
	b, err := c.Read(p)
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	return b, nil
}

func (f *FS) WriteFile(ctx context.Context, name string, data []byte) error {
	c, p, err := f.prepare(ctx, "write", name)
	if err != nil {
		return err
	}
	if dir := path.Dir(p); dir != "/" {
		if err := f.mkdirAll(c, dir); err != nil {
			return f.fail("write", name, err)
		}
	}
	if err := c.Write(p, data, 0o644); err != nil {
		return f.fail("write", name, err)
	}
	return nil
}

// stat returns (nil, nil) when p does not exist.
func (f *FS) stat(c *gowebdav.Client, p string) (isDir *bool, err error) {
	info, err := c.Stat(p)
	if gowebdav.IsErrNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d := info.IsDir()
	return &d, nil
}

func (f *FS) FileExists(ctx context.Context, name string) (bool, error) {
	c, p, err := f.prepare(ctx, "stat", name)
	if err != nil {
		return false, err
	}
	isDir, err := f.stat(c, p)
	if err != nil {
		return false, f.fail("stat", name, err)
	}
	return isDir != nil && !*isDir, nil
}

func (f *FS) DirExists(ctx context.Context, dir string) (bool, error) {
	c, p, err := f.prepare(ctx, "stat", dir)
	if err != nil {
		return false, err
	}
	isDir, err := f.stat(c, p)
	if err != nil {
		return false, f.fail("stat", dir, err)
	}
	return isDir != nil && *isDir, nil
}

func (f *FS) DeleteFile(ctx context.Context, name string) error {
	c, p, err := f.prepare(ctx, "delete", name)
	if err != nil {
		return err
	}
	if err := c.Remove(p); err != nil && !gowebdav.IsErrNotFound(err) {
		return f.fail("delete", name, err)
	}
	return nil
}

// transfer copies or moves src to dst after checking overwrite permission.
func (f *FS) transfer(ctx context.Context, op, src, dst string, overwrite bool) error {
	c, sp, err := f.prepare(ctx, op, src)
	if err != nil {
		return err
	}
	dp, err := f.remote(dst)
	if err != nil {
		return f.fail(op, dst, err)
	}
	if !overwrite {
		isDir, err := f.stat(c, dp)
		if err != nil {
			return f.fail(op, dst, err)
		}
		if isDir != nil {
			return f.fail(op, dst, filesystem.ErrExists)
		}
	}
	if dir := path.Dir(dp); dir != "/" {
		if err := f.mkdirAll(c, dir); err != nil {
			return f.fail(op, dst, err)
		}
	}
	if op == "copy" {
		err = c.Copy(sp, dp, overwrite)
	} else {
		err = c.Rename(sp, dp, overwrite)
	}
	if err != nil {
		return f.fail(op, src, err)
	}
	return nil
}

func (f *FS) CopyFile(ctx context.Context, src, dst string, overwrite bool) error {
	return f.transfer(ctx, "copy", src, dst, overwrite)
}

func (f *FS) MoveFile(ctx context.Context, src, dst string, overwrite bool) error {
	return f.transfer(ctx, "move", src, dst, overwrite)
}

func (f *FS) mkdirAll(c *gowebdav.Client, p string) error {
	isDir, err := f.stat(c, p)
	if err != nil {
		return err
	}
	if isDir != nil {
		if !*isDir {
			return fmt.Errorf("%s is a file", p)
		}
		return nil
	}
	return c.MkdirAll(p, 0o755)
}

func (f *FS) CreateDir(ctx context.Context, dir string) error {
	c, p, err := f.prepare(ctx, "mkdir", dir)
	if err != nil {
		return err
	}
	if p == "/" {
		return nil
	}
	if err := f.mkdirAll(c, p); err != nil {
		return f.fail("mkdir", dir, err)
	}
	return nil
}

func (f *FS) list(ctx context.Context, dir, pattern string, wantDirs bool) ([]string, error) {
	c, p, err := f.prepare(ctx, "list", dir)
	if err != nil {
		return nil, err
	}
	infos, err := c.ReadDir(p)
	if err != nil {
		return nil, f.fail("list", dir, err)
	}
	var names []string
	for _, info := range infos {
		if info.IsDir() == wantDirs {
			names = append(names, info.Name())
		}
	}
	return filesystem.Filter(names, pattern), nil
}

func (f *FS) ListFiles(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.list(ctx, dir, pattern, false)
}

func (f *FS) ListDirs(ctx context.Context, dir, pattern string) ([]string, error) {
	return f.list(ctx, dir, pattern, true)
}

func (f *FS) DeleteDir(ctx context.Context, dir string, recursive bool) error {
	c, p, err := f.prepare(ctx, "rmdir", dir)
	if err != nil {
		return err
	}
	if p == "/" || p == "/"+f.baseDir() {
		return f.fail("rmdir", dir, errors.New("refusing to delete the base directory"))
	}
	if !recursive {
		infos, err := c.ReadDir(p)
		if gowebdav.IsErrNotFound(err) {
			return nil
		}
		if err != nil {
			return f.fail("rmdir", dir, err)
		}
		if len(infos) > 0 {
			return f.fail("rmdir", dir, filesystem.ErrNotEmpty)
		}
	}
	if err := c.RemoveAll(p); err != nil && !gowebdav.IsErrNotFound(err) {
		return f.fail("rmdir", dir, err)
	}
	return nil
}

func (f *FS) baseDir() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.base
}

func (f *FS) MoveDir(ctx context.Context, src, dst string) error {
	c, sp, err := f.prepare(ctx, "move", src)
	if err != nil {
		return err
	}
	dp, err := f.remote(dst)
	if err != nil {
		return f.fail("move", dst, err)
	}
	isDir, err := f.stat(c, dp)
	if err != nil {
		return f.fail("move", dst, err)
	}
	if isDir != nil {
		return f.fail("move", dst, filesystem.ErrExists)
	}
	if parent := path.Dir(dp); parent != "/" {
		if err := f.mkdirAll(c, parent); err != nil {
			return f.fail("move", dst, err)
		}
	}
	if err := c.Rename(sp, dp, false); err != nil {
		return f.fail("move", src, err)
	}
	return nil
}
