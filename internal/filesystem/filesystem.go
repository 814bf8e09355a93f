// Package filesystem defines the storage capability set the snapshot
// transport works against, and the error kind every provider reports.
//
// Paths are slash separated and relative to the provider's root. A missing
// file or directory is not an error: Exists methods report false and
// Delete methods succeed.
package filesystem

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
)

// Kind selects a provider variant.
type Kind string

const (
	KindLocal   Kind = "local"
	KindDropbox Kind = "dropbox"
	KindWebDAV  Kind = "webdav"
	KindS3      Kind = "s3"
)

// FileSystem is implemented by every provider.
type FileSystem interface {
	Kind() Kind
	// SetAuthentication configures provider-specific credentials. Keys are
	// defined by each provider package.
	SetAuthentication(credentials map[string]string) error

	ReadFile(ctx context.Context, name string) ([]byte, error)
	WriteFile(ctx context.Context, name string, data []byte) error
	FileExists(ctx context.Context, name string) (bool, error)
	DeleteFile(ctx context.Context, name string) error
	CopyFile(ctx context.Context, src, dst string, overwrite bool) error
	MoveFile(ctx context.Context, src, dst string, overwrite bool) error

	CreateDir(ctx context.Context, dir string) error
	DirExists(ctx context.Context, dir string) (bool, error)
	// ListFiles returns the names of files directly inside dir that match
	// pattern (path.Match syntax, empty matches all), sorted.
	ListFiles(ctx context.Context, dir, pattern string) ([]string, error)
	// ListDirs is ListFiles for subdirectories.
	ListDirs(ctx context.Context, dir, pattern string) ([]string, error)
	DeleteDir(ctx context.Context, dir string, recursive bool) error
	MoveDir(ctx context.Context, src, dst string) error
}

var (
	// ErrIO is matched by every error a provider returns.
	ErrIO = errors.New("i/o error")
	// ErrNotAuthenticated is returned before SetAuthentication succeeded.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound is returned when an operation needs a file that is missing.
	ErrNotFound = errors.New("not found")
	// ErrExists is returned when a copy or move would overwrite without permission.
	ErrExists = errors.New("already exists")
	// ErrNotEmpty is returned by a non-recursive delete of a populated directory.
	ErrNotEmpty = errors.New("directory not empty")
)

// Error describes a failed provider operation.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Kind, e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrIO and the cause.
func (e *Error) Unwrap() []error { return []error{ErrIO, e.Err} }

// Wrap returns err as an *Error. nil stays nil and an *Error is returned as is.
func Wrap(kind Kind, op, name string, err error) error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Path: name, Err: err}
}

// Match reports whether name matches pattern. An empty pattern matches all.
func Match(pattern, name string) bool {
	if pattern == "" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// Filter returns the sorted names that match pattern.
func Filter(names []string, pattern string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if Match(pattern, n) {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Clean normalizes a provider path: slash separated, no leading or trailing
// slash, and "" for the root. Paths with ".." segments are rejected.
func Clean(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid path %q", name)
		}
	}
	return strings.TrimPrefix(path.Clean("/"+name), "/"), nil
}
