// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvStore_Get(t *testing.T) {
	t.Setenv("MISTERIO_TEST_CLAVE_API", "  gsk_abc  ")
	t.Setenv("MISTERIO_TEST_EMPTY", "")

	s := NewEnvStore("MISTERIO_TEST_")

	v, err := s.Get("CLAVE_API")
	require.NoError(t, err)
	assert.Equal(t, "gsk_abc", v)

	_, err = s.Get("EMPTY")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Get(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	require.NoError(t, os.WriteFile(path, []byte("CLAVE_API = \"gsk_file\"\nNUMBER = 3\nBLANK = \"\"\n"), 0o600))

	s := NewFileStore(path)

	v, err := s.Get("CLAVE_API")
	require.NoError(t, err)
	assert.Equal(t, "gsk_file", v)

	_, err = s.Get("NUMBER")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound), "wrong type is not a miss")

	_, err = s.Get("BLANK")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Get("OTHER")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_MissingFile(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "nope.toml"))
	_, err := s.Get("CLAVE_API")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.toml")
	require.NoError(t, os.WriteFile(path, []byte("CLAVE_API = \n"), 0o600))

	_, err := NewFileStore(path).Get("CLAVE_API")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

type failingStore struct{ err error }

func (f failingStore) Get(string) (string, error) { return "", f.err }

func TestChain(t *testing.T) {
	boom := errors.New("vault sealed")

	tests := []struct {
		name    string
		chain   Chain
		want    string
		wantErr error
	}{
		{
			name:  "first hit wins",
			chain: Chain{MapStore{"CLAVE_API": "env"}, MapStore{"CLAVE_API": "file"}},
			want:  "env",
		},
		{
			name:  "falls through misses",
			chain: Chain{MapStore{}, nil, MapStore{"CLAVE_API": "file"}},
			want:  "file",
		},
		{
			name:    "all miss",
			chain:   Chain{MapStore{}, MapStore{}},
			wantErr: ErrNotFound,
		},
		{
			name:    "empty chain",
			chain:   Chain{},
			wantErr: ErrNotFound,
		},
		{
			name:    "hard error propagates",
			chain:   Chain{MapStore{}, failingStore{err: boom}, MapStore{"CLAVE_API": "late"}},
			wantErr: boom,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.chain.Get("CLAVE_API")
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
