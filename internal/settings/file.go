package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps settings in a JSON file. Every write rewrites the file.
// Credential values are sealed when a Sealer is set.
type FileStore struct {
	path   string
	sealer *Sealer

	mu     sync.Mutex
	loaded bool
	data   map[string]string
}

// NewFileStore returns a store backed by path. The file is created on the
// first write.
func NewFileStore(path string, sealer *Sealer) *FileStore {
	return &FileStore{path: path, sealer: sealer}
}

// Path returns the settings file location.
func (f *FileStore) Path() string { return f.path }

func (f *FileStore) load() error {
	if f.loaded {
		return nil
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			f.data = make(map[string]string)
			f.loaded = true
			return nil
		}
		return fmt.Errorf("read settings: %w", err)
	}
	data := make(map[string]string)
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decode settings %s: %w", f.path, err)
		}
	}
	f.data = data
	f.loaded = true
	return nil
}

func (f *FileStore) save(data map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func sensitive(key string) bool {
	return strings.Contains(key, ".")
}

func (f *FileStore) open(key, v string) (string, error) {
	if f.sealer == nil || !sensitive(key) {
		return v, nil
	}
	return f.sealer.Open(v)
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return "", false, err
	}
	v, ok := f.data[key]
	if !ok {
		return "", false, nil
	}
	v, err := f.open(key, v)
	if err != nil {
		return "", false, fmt.Errorf("setting %s: %w", key, err)
	}
	return v, true, nil
}

func (f *FileStore) SetMany(ctx context.Context, values map[string]string) error {
	return f.Replace(ctx, values, func(string) bool { return false })
}

func (f *FileStore) Delete(ctx context.Context, keys ...string) error {
	drop := make(map[string]bool, len(keys))
	for _, k := range keys {
		drop[k] = true
	}
	return f.Replace(ctx, nil, func(k string) bool { return drop[k] })
}

// Replace builds the next state in memory and commits it with a single
// file rename, so a failed write leaves the previous settings in place.
func (f *FileStore) Replace(_ context.Context, set map[string]string, drop func(string) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	next := make(map[string]string, len(f.data)+len(set))
	for k, v := range f.data {
		if !drop(k) {
			next[k] = v
		}
	}
	for k, v := range set {
		if f.sealer != nil && sensitive(k) {
			sealed, err := f.sealer.Seal(v)
			if err != nil {
				return fmt.Errorf("setting %s: %w", k, err)
			}
			v = sealed
		}
		next[k] = v
	}
	if err := f.save(next); err != nil {
		return err
	}
	f.data = next
	return nil
}

func (f *FileStore) All(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		plain, err := f.open(k, v)
		if err != nil {
			return nil, fmt.Errorf("setting %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}
