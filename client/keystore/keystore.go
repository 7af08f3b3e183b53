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

// Package keystore keeps a user's chat key material on local disk. Only the
// public key and the password-wrapped private key are ever written.
package keystore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

var ErrNoKeys = errors.New("keystore: no keys stored")

type Keys struct {
	UserID            string `json:"userId,omitempty"`
	PublicKey         string `json:"publicKey"`
	WrappedPrivateKey string `json:"wrappedPrivateKey"`
	Published         bool   `json:"published"`
}

type Store struct {
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

// DefaultPath is chat/keys.json under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "keystore: locate config dir")
	}
	return filepath.Join(dir, "chat", "keys.json"), nil
}

func (s *Store) Path() string { return s.path }

// Load returns ErrNoKeys when nothing usable is stored.
func (s *Store) Load() (Keys, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Keys{}, ErrNoKeys
	}
	if err != nil {
		return Keys{}, errors.Wrap(err, "keystore: read")
	}
	var k Keys
	if err := json.Unmarshal(b, &k); err != nil {
		return Keys{}, errors.Wrap(err, "keystore: decode")
	}
	if k.PublicKey == "" || k.WrappedPrivateKey == "" {
		return Keys{}, ErrNoKeys
	}
	return k, nil
}

// Save writes via a temp file then rename, with mode 0600.
func (s *Store) Save(k Keys) error {
	b, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return errors.Wrap(err, "keystore: encode")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "keystore: create dir")
	}

	f, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "keystore: create temp")
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "keystore: write")
	}
	if err := f.Chmod(0o600); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "keystore: chmod")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "keystore: close")
	}
	return errors.Wrap(os.Rename(tmp, s.path), "keystore: rename")
}

// Clear removes stored keys. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "keystore: remove")
	}
	return nil
}
