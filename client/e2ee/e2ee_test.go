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
	"encoding/base64"
	"os"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// Cheap KDF for tests; the format does not record parameters.
	kdf = kdfParams{time: 1, memory: 1024, threads: 1}
	os.Exit(m.Run())
}

func mustKeyPair(t *testing.T) KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	return kp
}

func TestGenerateKeyPair(t *testing.T) {
	kp := mustKeyPair(t)
	pub, err := base64.StdEncoding.DecodeString(kp.PublicKey)
	require.NoError(t, err)
	require.Len(t, pub, 32)
	priv, err := base64.StdEncoding.DecodeString(kp.PrivateKey)
	require.NoError(t, err)
	require.Len(t, priv, 32)

	other := mustKeyPair(t)
	require.NotEqual(t, kp.PublicKey, other.PublicKey)
}

func TestEncryptDecrypt(t *testing.T) {
	alice, bob := mustKeyPair(t), mustKeyPair(t)

	env, err := Encrypt("is the bike still for sale?", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(env, "v1:"))
	require.Equal(t, "v1", ParseVersion(env))

	plain, err := Decrypt(env, alice.PublicKey, bob.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, "is the bike still for sale?", plain)

	// The sender can read back its own message with the shared key.
	plain, err = Decrypt(env, bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, "is the bike still for sale?", plain)
}

func TestEncryptFreshNonce(t *testing.T) {
	alice, bob := mustKeyPair(t), mustKeyPair(t)
	a, err := Encrypt("same", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	b, err := Encrypt("same", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestDecryptWrongKey(t *testing.T) {
	alice, bob, eve := mustKeyPair(t), mustKeyPair(t), mustKeyPair(t)
	env, err := Encrypt("hi", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	_, err = Decrypt(env, alice.PublicKey, eve.PrivateKey)
	require.True(t, errors.Is(err, ErrDecryptionFailed))
	require.Equal(t, Placeholder, DecryptOrPlaceholder(env, alice.PublicKey, eve.PrivateKey))
}

func TestDecryptTampered(t *testing.T) {
	alice, bob := mustKeyPair(t), mustKeyPair(t)
	env, err := Encrypt("hi", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(env, "v1:"))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xff
	tampered := "v1:" + base64.StdEncoding.EncodeToString(raw)

	_, err = Decrypt(tampered, alice.PublicKey, bob.PrivateKey)
	require.True(t, errors.Is(err, ErrDecryptionFailed))

	_, err = Decrypt("v1:not-base64!!", alice.PublicKey, bob.PrivateKey)
	require.True(t, errors.Is(err, ErrDecryptionFailed))

	_, err = Decrypt("v1:"+base64.StdEncoding.EncodeToString([]byte("short")), alice.PublicKey, bob.PrivateKey)
	require.True(t, errors.Is(err, ErrDecryptionFailed))
}

func TestDecryptUnsupportedVersion(t *testing.T) {
	alice, bob := mustKeyPair(t), mustKeyPair(t)
	env, err := Encrypt("hi", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)

	v2 := "v2:" + strings.TrimPrefix(env, "v1:")
	before := v2
	_, err = Decrypt(v2, alice.PublicKey, bob.PrivateKey)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))
	require.Equal(t, before, v2)

	_, err = Decrypt("plain text without a tag", alice.PublicKey, bob.PrivateKey)
	require.True(t, errors.Is(err, ErrUnsupportedVersion))
	require.Equal(t, Placeholder, DecryptOrPlaceholder(v2, alice.PublicKey, bob.PrivateKey))
}

func TestInvalidKeys(t *testing.T) {
	alice := mustKeyPair(t)
	_, err := Encrypt("hi", "bogus", alice.PrivateKey)
	require.True(t, errors.Is(err, ErrInvalidKey))
	_, err = Encrypt("hi", alice.PublicKey, base64.StdEncoding.EncodeToString([]byte("short")))
	require.True(t, errors.Is(err, ErrInvalidKey))

	bob := mustKeyPair(t)
	env, err := Encrypt("hi", bob.PublicKey, alice.PrivateKey)
	require.NoError(t, err)
	_, err = Decrypt(env, "not-a-key", bob.PrivateKey)
	require.True(t, errors.Is(err, ErrDecryptionFailed))
	require.False(t, errors.Is(err, ErrInvalidKey))
	_, err = Decrypt(env, alice.PublicKey, base64.StdEncoding.EncodeToString([]byte("short")))
	require.True(t, errors.Is(err, ErrDecryptionFailed))
	require.Equal(t, Placeholder, DecryptOrPlaceholder(env, "not-a-key", bob.PrivateKey))
}

func TestWrapUnwrap(t *testing.T) {
	kp := mustKeyPair(t)
	wrapped, err := WrapPrivateKey(kp.PrivateKey, "hunter2")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(wrapped, "w1:"))
	require.NotContains(t, wrapped, kp.PrivateKey)

	priv, err := UnwrapPrivateKey(wrapped, "hunter2")
	require.NoError(t, err)
	require.Equal(t, kp.PrivateKey, priv)
}

func TestUnwrapErrors(t *testing.T) {
	kp := mustKeyPair(t)
	wrapped, err := WrapPrivateKey(kp.PrivateKey, "hunter2")
	require.NoError(t, err)

	_, err = UnwrapPrivateKey(wrapped, "hunter3")
	require.True(t, errors.Is(err, ErrWrongPassword))

	_, err = UnwrapPrivateKey("", "hunter2")
	require.True(t, errors.Is(err, ErrNoWrappedKey))
	require.False(t, errors.Is(err, ErrWrongPassword))

	_, err = UnwrapPrivateKey("w1:AAAA", "hunter2")
	require.True(t, errors.Is(err, ErrMalformed))

	_, err = UnwrapPrivateKey("w0:"+strings.TrimPrefix(wrapped, "w1:"), "hunter2")
	require.True(t, errors.Is(err, ErrUnsupportedVersion))
}

func TestSessionLifecycle(t *testing.T) {
	peer := mustKeyPair(t)

	s := NewSession()
	require.Equal(t, StateNoKeys, s.State())
	_, err := s.Encrypt("hi", peer.PublicKey)
	require.True(t, errors.Is(err, ErrLocked))
	require.True(t, errors.Is(s.MarkPublished(), ErrInvalidState))

	require.NoError(t, s.Generate("pw"))
	require.Equal(t, StateKeysGenerated, s.State())
	require.True(t, errors.Is(s.Generate("pw"), ErrInvalidState))

	require.NoError(t, s.MarkPublished())
	require.Equal(t, StatePublicKeyPublished, s.State())

	env, err := s.Encrypt("hello", peer.PublicKey)
	require.NoError(t, err)
	plain, err := Decrypt(env, s.PublicKey(), peer.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, "hello", plain)

	require.NoError(t, s.Lock())
	require.Equal(t, StateLocked, s.State())
	require.Equal(t, Placeholder, s.Decrypt(env, peer.PublicKey))

	err = s.Unlock("wrong")
	require.True(t, errors.Is(err, ErrWrongPassword))
	require.Equal(t, StateLocked, s.State())

	require.NoError(t, s.Unlock("pw"))
	require.Equal(t, StateUnlocked, s.State())
	require.Equal(t, "hello", s.Decrypt(env, peer.PublicKey))
}

func TestRestoreSession(t *testing.T) {
	require.Equal(t, StateNoKeys, RestoreSession("", "").State())

	kp := mustKeyPair(t)
	wrapped, err := WrapPrivateKey(kp.PrivateKey, "pw")
	require.NoError(t, err)

	s := RestoreSession(kp.PublicKey, wrapped)
	require.Equal(t, StateLocked, s.State())
	require.NoError(t, s.Unlock("pw"))
	require.Equal(t, StateUnlocked, s.State())
	require.Equal(t, wrapped, s.WrappedPrivateKey())
}
