// Package settings persists the small key/value state of the sync façade:
// the active mode, the last successful sync and per-mode credentials.
package settings

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Well-known keys.
const (
	KeySyncMode         = "sync_mode"
	KeyLastSyncDateTime = "last_sync_date_time"
)

// CredentialKey scopes a provider credential key to a sync mode,
// e.g. "dropbox.access_token".
func CredentialKey(mode, key string) string {
	return mode + "." + key
}

// HasCredentialPrefix reports whether key is a credential of mode.
func HasCredentialPrefix(key, mode string) bool {
	return strings.HasPrefix(key, CredentialKey(mode, ""))
}

// Credentials returns the credentials stored for mode, unscoped.
func Credentials(ctx context.Context, s Store, mode string) (map[string]string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	p := CredentialKey(mode, "")
	out := make(map[string]string)
	for k, v := range all {
		if HasCredentialPrefix(k, mode) {
			out[strings.TrimPrefix(k, p)] = v
		}
	}
	return out, nil
}

// Store is a string key/value store. Get reports missing keys with ok=false.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetMany writes all values in one step.
	SetMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	// Replace removes every key drop matches and writes set, in one step.
	// Either both happen or neither does.
	Replace(ctx context.Context, set map[string]string, drop func(key string) bool) error
	All(ctx context.Context) (map[string]string, error)
}

// Set writes a single value.
func Set(ctx context.Context, s Store, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

// Memory is a Store that keeps values in memory.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *Memory) SetMany(_ context.Context, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *Memory) Replace(_ context.Context, set map[string]string, drop func(string) bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if drop(k) {
			delete(m.data, k)
		}
	}
	for k, v := range set {
		m.data[k] = v
	}
	return nil
}

func (m *Memory) All(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.data), nil
}

// Keys returns the keys of values in sorted order.
func Keys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
