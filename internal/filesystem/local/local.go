// Package local implements filesystem.FileSystem on a local directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/atinyakov/BudgetKeeper/internal/filesystem"
)

var _ filesystem.FileSystem = (*FS)(nil)

// FS maps provider paths to files under root.
type FS struct {
	root string
}

// New returns a provider rooted at root, creating the directory if needed.
func New(root string) (*FS, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, filesystem.Wrap(filesystem.KindLocal, "init", root, err)
	}
	return &FS{root: root}, nil
}

func (f *FS) Kind() filesystem.Kind { return filesystem.KindLocal }

// Root returns the directory the provider is rooted at.
func (f *FS) Root() string { return f.root }

// SetAuthentication accepts and ignores any credentials.
func (f *FS) SetAuthentication(map[string]string) error { return nil }

// Abs returns the OS path for name.
func (f *FS) Abs(name string) (string, error) {
	clean, err := filesystem.Clean(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

func (f *FS) fail(op, name string, err error) error {
	return filesystem.Wrap(filesystem.KindLocal, op, name, err)
}

func (f *FS) ReadFile(ctx context.Context, name string) ([]byte, error) {
	p, err := f.Abs(name)
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, f.fail("read", name, err)
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, f.fail("read", name, filesystem.ErrNotFound)
	}
	if err != nil {
		return nil, f.fail("read", name, err)
	}
	return b, nil
}

// WriteFile replaces name atomically through a temp file in the same directory.
func (f *FS) WriteFile(ctx context.Context, name string, data []byte) error {
	p, err := f.Abs(name)
	if err != nil {
		return f.fail("write", name, err)
	}
	if err := ctx.Err(); err != nil {
		return f.fail("write", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return f.fail("write", name, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return f.fail("write", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return f.fail("write", name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return f.fail("write", name, err)
	}
	if err := tmp.Close(); err != nil {
		return f.fail("write", name, err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return f.fail("write", name, err)
	}
	return nil
}

func (f *FS) stat(name string) (fs.FileInfo, error) {
	p, err := f.Abs(name)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return info, err
}

func (f *FS) FileExists(_ context.Context, name string) (bool, error) {
	info, err := f.stat(name)
	if err != nil {
		return false, f.fail("stat", name, err)
	}
	return info != nil && !info.IsDir(), nil
}

func (f *FS) DirExists(_ context.Context, dir string) (bool, error) {
	info, err := f.stat(dir)
	if err != nil {
		return false, f.fail("stat", dir, err)
	}
	return info != nil && info.IsDir(), nil
}

func (f *FS) DeleteFile(_ context.Context, name string) error {
	p, err := f.Abs(name)
	if err != nil {
		return f.fail("delete", name, err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return f.fail("delete", name, err)
	}
	return nil
}

// checkTarget fails with ErrExists when dst exists and overwrite is false.
func (f *FS) checkTarget(ctx context.Context, op, dst string, overwrite bool) error {
	exists, err := f.FileExists(ctx, dst)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return f.fail(op, dst, filesystem.ErrExists)
	}
	return nil
}

func (f *FS) CopyFile(ctx context.Context, src, dst string, overwrite bool) error {
	if err := f.checkTarget(ctx, "copy", dst, overwrite); err != nil {
		return err
	}
	data, err := f.ReadFile(ctx, src)
	if err != nil {
		return err
	}
	return f.WriteFile(ctx, dst, data)
}

func (f *FS) MoveFile(ctx context.Context, src, dst string, overwrite bool) error {
	if err := f.checkTarget(ctx, "move", dst, overwrite); err != nil {
		return err
	}
	sp, err := f.Abs(src)
	if err != nil {
		return f.fail("move", src, err)
	}
	dp, err := f.Abs(dst)
	if err != nil {
		return f.fail("move", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dp), 0o755); err != nil {
		return f.fail("move", dst, err)
	}
	if err := os.Rename(sp, dp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.fail("move", src, filesystem.ErrNotFound)
		}
		return f.fail("move", src, err)
	}
	return nil
}

func (f *FS) CreateDir(_ context.Context, dir string) error {
	p, err := f.Abs(dir)
	if err != nil {
		return f.fail("mkdir", dir, err)
	}
	if err := os.MkdirAll(p, 0o755); err != nil {
		return f.fail("mkdir", dir, err)
	}
	return nil
}

func (f *FS) list(op, dir, pattern string, wantDirs bool) ([]string, error) {
	p, err := f.Abs(dir)
	if err != nil {
		return nil, f.fail(op, dir, err)
	}
	entries, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, f.fail(op, dir, filesystem.ErrNotFound)
	}
	if err != nil {
		return nil, f.fail(op, dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() == wantDirs {
			names = append(names, e.Name())
		}
	}
	return filesystem.Filter(names, pattern), nil
}

func (f *FS) ListFiles(_ context.Context, dir, pattern string) ([]string, error) {
	return f.list("list", dir, pattern, false)
}

func (f *FS) ListDirs(_ context.Context, dir, pattern string) ([]string, error) {
	return f.list("list", dir, pattern, true)
}

func (f *FS) DeleteDir(_ context.Context, dir string, recursive bool) error {
	clean, err := filesystem.Clean(dir)
	if err != nil {
		return f.fail("rmdir", dir, err)
	}
	if clean == "" {
		return f.fail("rmdir", dir, fmt.Errorf("refusing to delete the root"))
	}
	p := filepath.Join(f.root, filepath.FromSlash(clean))
	if recursive {
		if err := os.RemoveAll(p); err != nil {
			return f.fail("rmdir", dir, err)
		}
		return nil
	}
	entries, err := os.ReadDir(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return f.fail("rmdir", dir, err)
	}
	if len(entries) > 0 {
		return f.fail("rmdir", dir, filesystem.ErrNotEmpty)
	}
	if err := os.Remove(p); err != nil {
		return f.fail("rmdir", dir, err)
	}
	return nil
}

func (f *FS) MoveDir(ctx context.Context, src, dst string) error {
	exists, err := f.DirExists(ctx, dst)
	if err != nil {
		return err
	}
	if exists {
		return f.fail("move", dst, filesystem.ErrExists)
	}
	sp, err := f.Abs(src)
	if err != nil {
		return f.fail("move", src, err)
	}
	dp, err := f.Abs(dst)
	if err != nil {
		return f.fail("move", dst, err)
	}
	if err := os.MkdirAll(filepath.Dir(dp), 0o755); err != nil {
		return f.fail("move", dst, err)
	}
	if err := os.Rename(sp, dp); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f.fail("move", src, filesystem.ErrNotFound)
		}
		return f.fail("move", src, err)
	}
	return nil
}
