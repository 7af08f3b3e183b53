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
	"sync"

	"github.com/pkg/errors"
)

type State int

const (
	StateNoKeys State = iota
	StateKeysGenerated
	StatePublicKeyPublished
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateNoKeys:
		return "no-keys"
	case StateKeysGenerated:
		return "keys-generated"
	case StatePublicKeyPublished:
		return "public-key-published"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidState = errors.New("e2ee: invalid session state")
	ErrLocked       = errors.New("e2ee: private key is locked")
)

// Session tracks a user's key material across login and unlock. The private
// key is held in memory only while the session is unlocked.
type Session struct {
	mu         sync.Mutex
	state      State
	publicKey  string
	wrapped    string
	privateKey string
}

func NewSession() *Session {
	return &Session{state: StateNoKeys}
}

// RestoreSession resumes from stored key material. With a wrapped key the
// session starts Locked; without one it starts with no keys.
func RestoreSession(publicKey, wrappedPrivateKey string) *Session {
	if publicKey == "" || wrappedPrivateKey == "" {
		return NewSession()
	}
	return &Session{state: StateLocked, publicKey: publicKey, wrapped: wrappedPrivateKey}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) PublicKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicKey
}

func (s *Session) WrappedPrivateKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wrapped
}

// Generate creates a fresh key pair and wraps the private half with password.
func (s *Session) Generate(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNoKeys {
		return errors.Wrapf(ErrInvalidState, "generate from %s", s.state)
	}
	kp, err := GenerateKeyPair()
	if err != nil {
		return err
	}
	wrapped, err := WrapPrivateKey(kp.PrivateKey, password)
	if err != nil {
		return err
	}
	s.publicKey, s.wrapped, s.privateKey = kp.PublicKey, wrapped, kp.PrivateKey
	s.state = StateKeysGenerated
	return nil
}

// MarkPublished records that the server accepted the public key.
func (s *Session) MarkPublished() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateKeysGenerated {
		return errors.Wrapf(ErrInvalidState, "publish from %s", s.state)
	}
	s.state = StatePublicKeyPublished
	return nil
}

// Lock drops the in-memory private key.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StatePublicKeyPublished, StateUnlocked, StateLocked:
	default:
		return errors.Wrapf(ErrInvalidState, "lock from %s", s.state)
	}
	s.privateKey = ""
	s.state = StateLocked
	return nil
}

// Unlock recovers the private key. A wrong password leaves the session Locked.
func (s *Session) Unlock(password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUnlocked {
		return nil
	}
	if s.state != StateLocked {
		return errors.Wrapf(ErrInvalidState, "unlock from %s", s.state)
	}
	priv, err := UnwrapPrivateKey(s.wrapped, password)
	if err != nil {
		return err
	}
	s.privateKey = priv
	s.state = StateUnlocked
	return nil
}

func (s *Session) key() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.privateKey == "" {
		return "", ErrLocked
	}
	return s.privateKey, nil
}

func (s *Session) Encrypt(plaintext, recipientPublicKey string) (string, error) {
	priv, err := s.key()
	if err != nil {
		return "", err
	}
	return Encrypt(plaintext, recipientPublicKey, priv)
}

// Decrypt renders an envelope for display. A locked session shows the
// placeholder.
func (s *Session) Decrypt(envelope, senderPublicKey string) string {
	priv, err := s.key()
	if err != nil {
		return Placeholder
	}
	return DecryptOrPlaceholder(envelope, senderPublicKey, priv)
}
