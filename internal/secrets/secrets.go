// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package secrets provides read access to credentials without embedding them
// in source.
//
// A Store answers Get(key). Stores are composed with Chain so the environment
// can override the on-disk secrets file.
package secrets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

// ErrNotFound is returned when a store does not hold the key.
var ErrNotFound = errors.New("secret not found")

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store defines read access to secret values.
type Store interface {
	// Get returns the value for key, or an error wrapping ErrNotFound.
	Get(key string) (string, error)
}

// =============================================================================
// ENVIRONMENT STORE
// =============================================================================

// EnvStore reads secrets from environment variables.
type EnvStore struct {
	// Prefix is prepended to the key, e.g. "MISTERIO_" maps CLAVE_API to
	// MISTERIO_CLAVE_API. Empty means the key is used as-is.
	Prefix string

	lookup func(string) (string, bool)
}

// NewEnvStore creates a store backed by the process environment.
func NewEnvStore(prefix string) *EnvStore {
	return &EnvStore{Prefix: prefix, lookup: os.LookupEnv}
}

// Get returns the trimmed environment value. Empty values count as absent.
func (e *EnvStore) Get(key string) (string, error) {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	name := e.Prefix + key
	v, ok := lookup(name)
	v = strings.TrimSpace(v)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: environment variable %s", ErrNotFound, name)
	}
	return v, nil
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore reads secrets from a flat TOML file such as
// .streamlit/secrets.toml. The file is read once, on first use.
//
// SECURITY: values are never logged or included in errors.
type FileStore struct {
	path string

	once   sync.Once
	values map[string]any
	err    error
}

// NewFileStore creates a file-backed store. The file need not exist.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) load() {
	f.values = map[string]any{}
	if _, err := toml.DecodeFile(f.path, &f.values); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return
		}
		f.err = fmt.Errorf("failed to read secrets file %s: %w", f.path, err)
	}
}

// Get returns the trimmed string value stored under key.
func (f *FileStore) Get(key string) (string, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return "", f.err
	}
	raw, ok := f.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s in %s", ErrNotFound, key, f.path)
	}
	v, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("secret %s in %s is not a string", key, f.path)
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", fmt.Errorf("%w: %s in %s is empty", ErrNotFound, key, f.path)
	}
	return v, nil
}

// =============================================================================
// MAP STORE
// =============================================================================

// MapStore is an in-memory store, mainly for tests and embedding.
type MapStore map[string]string

// Get returns the trimmed value for key.
func (m MapStore) Get(key string) (string, error) {
	v := strings.TrimSpace(m[key])
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// =============================================================================
// CHAIN
// =============================================================================

// Chain consults stores in order. The first store holding the key wins.
// Errors other than ErrNotFound stop the search and are returned as-is.
type Chain []Store

// Get implements Store.
func (c Chain) Get(key string) (string, error) {
	var misses []error
	for _, s := range c {
		if s == nil {
			continue
		}
		v, err := s.Get(key)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return "", err
		}
		misses = append(misses, err)
	}
	if len(misses) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return "", errors.Join(misses...)
}

// Default returns the standard chain: environment first, then the secrets file.
func Default(secretsPath string) Chain {
	return Chain{NewEnvStore(""), NewFileStore(secretsPath)}
}
