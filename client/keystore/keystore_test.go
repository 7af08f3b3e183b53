// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package keystore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestLoadEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keys.json"))
	_, err := s.Load()
	require.True(t, errors.Is(err, ErrNoKeys))
	require.NoError(t, s.Clear())
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keys.json")
	s := New(path)

	in := Keys{UserID: "u1", PublicKey: "pub", WrappedPrivateKey: "w1:abc", Published: true}
	require.NoError(t, s.Save(in))

	out, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, in, out)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLoadIncomplete(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, s.Save(Keys{PublicKey: "pub"}))
	_, err := s.Load()
	require.True(t, errors.Is(err, ErrNoKeys))
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))
	_, err := New(path).Load()
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoKeys))
}

func TestClear(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "keys.json"))
	require.NoError(t, s.Save(Keys{PublicKey: "pub", WrappedPrivateKey: "w1:x"}))
	require.NoError(t, s.Clear())
	_, err := s.Load()
	require.True(t, errors.Is(err, ErrNoKeys))
}
