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

// Package e2ee implements the client-side message envelope. Servers only ever
// see the opaque envelope strings produced here and the public half of each
// key pair.
package e2ee

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/box"
)

const (
	// Version tags every envelope produced by Encrypt.
	Version = "v1"

	// Placeholder is shown in place of a message that cannot be decrypted.
	Placeholder = "[Unable to decrypt message]"

	keySize   = 32
	nonceSize = 24
)

var (
	ErrUnsupportedVersion = errors.New("e2ee: unsupported envelope version")
	ErrDecryptionFailed   = errors.New("e2ee: decryption failed")
	ErrInvalidKey         = errors.New("e2ee: invalid key")
)

// KeyPair holds base64 (standard encoding) X25519 keys.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, errors.Wrap(err, "e2ee: generate key pair")
	}
	defer wipe(priv[:])
	return KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pub[:]),
		PrivateKey: base64.StdEncoding.EncodeToString(priv[:]),
	}, nil
}

// Encrypt seals plaintext for recipientPublicKey using a fresh random nonce.
func Encrypt(plaintext, recipientPublicKey, senderPrivateKey string) (string, error) {
	peer, err := decodeKey(recipientPublicKey)
	if err != nil {
		return "", errors.Wrap(err, "recipient public key")
	}
	priv, err := decodeKey(senderPrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "sender private key")
	}
	defer wipe(priv[:])

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", errors.Wrap(err, "e2ee: read nonce")
	}

	sealed := box.Seal(nonce[:], []byte(plaintext), &nonce, peer, priv)
	return Version + ":" + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an envelope sent by senderPublicKey. An envelope with any
// version other than v1 fails with ErrUnsupportedVersion; a damaged or
// forged one, or a malformed key, fails with ErrDecryptionFailed.
func Decrypt(envelope, senderPublicKey, recipientPrivateKey string) (string, error) {
	version, payload, ok := strings.Cut(envelope, ":")
	if !ok || version != Version {
		return "", errors.Wrapf(ErrUnsupportedVersion, "version %q", version)
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", errors.Wrap(ErrDecryptionFailed, "malformed payload")
	}
	if len(raw) < nonceSize+box.Overhead {
		return "", errors.Wrap(ErrDecryptionFailed, "payload too short")
	}

	// An unusable key cannot open the box either.
	peer, err := decodeKey(senderPublicKey)
	if err != nil {
		return "", errors.Wrap(ErrDecryptionFailed, "invalid sender public key")
	}
	priv, err := decodeKey(recipientPrivateKey)
	if err != nil {
		return "", errors.Wrap(ErrDecryptionFailed, "invalid recipient private key")
	}
	defer wipe(priv[:])

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	plain, ok := box.Open(nil, raw[nonceSize:], &nonce, peer, priv)
	if !ok {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// DecryptOrPlaceholder is Decrypt for display paths: any failure renders as
// Placeholder.
func DecryptOrPlaceholder(envelope, senderPublicKey, recipientPrivateKey string) string {
	plain, err := Decrypt(envelope, senderPublicKey, recipientPrivateKey)
	if err != nil {
		return Placeholder
	}
	return plain
}

// ParseVersion reports the version tag of an envelope without opening it.
func ParseVersion(envelope string) string {
	version, _, _ := strings.Cut(envelope, ":")
	return version
}

func decodeKey(s string) (*[keySize]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(raw) != keySize {
		return nil, ErrInvalidKey
	}
	var k [keySize]byte
	copy(k[:], raw)
	wipe(raw)
	return &k, nil
}
