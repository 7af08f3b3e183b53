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

package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/angad2803/Thapar-Marketplace/client/api"
	"github.com/angad2803/Thapar-Marketplace/client/e2ee"
	"github.com/angad2803/Thapar-Marketplace/client/keystore"
)

var (
	keyFile    string
	passphrase string
	serverURL  string
	token      string

	keys   *keystore.Store
	client *api.Client
)

func Execute() error {
	root := &cobra.Command{
		Use:           "chat",
		Short:         "Marketplace chat client with end-to-end encryption",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if keyFile == "" {
				p, err := keystore.DefaultPath()
				if err != nil {
					return err
				}
				keyFile = p
			}
			if token == "" {
				token = os.Getenv("CHAT_TOKEN")
			}
			keys = keystore.New(keyFile)
			client = api.New(serverURL, token)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&keyFile, "keys", "", "key file (default <config dir>/chat/keys.json)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "passphrase protecting the private key")
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8081", "chat server base URL")
	root.PersistentFlags().StringVar(&token, "token", "", "access token (default $CHAT_TOKEN)")

	root.AddCommand(initCmd(), publishCmd(), sendCmd(), historyCmd(), listenCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func requirePassphrase() error {
	if passphrase == "" {
		return errors.New("passphrase required (-p)")
	}
	return nil
}

func requireToken() error {
	if token == "" {
		return errors.New("access token required (--token or CHAT_TOKEN)")
	}
	return nil
}

// unlocked restores the stored session and unlocks it with the passphrase.
func unlocked() (*e2ee.Session, keystore.Keys, error) {
	if err := requirePassphrase(); err != nil {
		return nil, keystore.Keys{}, err
	}
	k, err := keys.Load()
	if err != nil {
		if errors.Is(err, keystore.ErrNoKeys) {
			return nil, k, errors.New("no keys found, run `chat init` first")
		}
		return nil, k, err
	}
	s := e2ee.RestoreSession(k.PublicKey, k.WrappedPrivateKey)
	if err := s.Unlock(passphrase); err != nil {
		return nil, k, err
	}
	return s, k, nil
}

// peerKeys caches public keys fetched from the server for one command run.
type peerKeys map[string]string

func (p peerKeys) get(ctx context.Context, userID string) (string, error) {
	if k, ok := p[userID]; ok {
		return k, nil
	}
	pk, err := client.FetchPublicKey(ctx, userID)
	if err != nil {
		return "", err
	}
	p[userID] = pk.Key
	return pk.Key, nil
}

// render shows message content, decrypting it when it is an envelope. self is
// the local user; both directions decrypt with the other party's key.
func render(ctx context.Context, s *e2ee.Session, peers peerKeys, self string, m api.Message) string {
	if !m.IsEncrypted {
		return m.Content
	}
	other := m.SenderID
	if m.SenderID == self {
		other = m.ReceiverID
	}
	key, err := peers.get(ctx, other)
	if err != nil || key == "" {
		return e2ee.Placeholder
	}
	return s.Decrypt(m.Content, key)
}
