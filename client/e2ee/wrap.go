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

package e2ee

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// WrapVersion tags every wrapped private key.
const WrapVersion = "w1"

const saltSize = 16

var (
	ErrWrongPassword = errors.New("e2ee: wrong password")
	ErrNoWrappedKey  = errors.New("e2ee: no wrapped key")
	ErrMalformed     = errors.New("e2ee: malformed wrapped key")
)

type kdfParams struct {
	time    uint32
	memory  uint32 // KiB
	threads uint8
}

var kdf = kdfParams{time: 1, memory: 64 * 1024, threads: 4}

func deriveWrapKey(password string, salt []byte) *[keySize]byte {
	raw := argon2.IDKey([]byte(password), salt, kdf.time, kdf.memory, kdf.threads, keySize)
	var k [keySize]byte
	copy(k[:], raw)
	wipe(raw)
	return &k
}

// WrapPrivateKey seals privateKey under a key derived from password. The
// result is safe to keep in local storage.
func WrapPrivateKey(privateKey, password string) (string, error) {
	priv, err := decodeKey(privateKey)
	if err != nil {
		return "", errors.Wrap(err, "private key")
	}
	defer wipe(priv[:])

	buf := make([]byte, saltSize+nonceSize)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", errors.Wrap(err, "e2ee: read salt")
	}
	salt := buf[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], buf[saltSize:])

	key := deriveWrapKey(password, salt)
	defer wipe(key[:])

	sealed := secretbox.Seal(buf, priv[:], &nonce, key)
	return WrapVersion + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// UnwrapPrivateKey reverses WrapPrivateKey. An empty blob is ErrNoWrappedKey;
// any authentication failure is ErrWrongPassword.
func UnwrapPrivateKey(wrapped, password string) (string, error) {
	if wrapped == "" {
		return "", ErrNoWrappedKey
	}
	version, payload, ok := strings.Cut(wrapped, ":")
	if !ok || version != WrapVersion {
		return "", errors.Wrapf(ErrUnsupportedVersion, "wrapped key version %q", version)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.Wrap(ErrMalformed, "decode")
	}
	if len(raw) < saltSize+nonceSize+secretbox.Overhead {
		return "", errors.Wrap(ErrMalformed, "too short")
	}

	salt := raw[:saltSize]
	var nonce [nonceSize]byte
	copy(nonce[:], raw[saltSize:saltSize+nonceSize])

	key := deriveWrapKey(password, salt)
	defer wipe(key[:])

	plain, ok := secretbox.Open(nil, raw[saltSize+nonceSize:], &nonce, key)
	if !ok {
		return "", ErrWrongPassword
	}
	defer wipe(plain)
	if len(plain) != keySize {
		return "", errors.Wrap(ErrMalformed, "unexpected key length")
	}
	return base64.StdEncoding.EncodeToString(plain), nil
}

//go:noinline
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(&b)
}
