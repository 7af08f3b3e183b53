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
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/angad2803/Thapar-Marketplace/client/e2ee"
	"github.com/angad2803/Thapar-Marketplace/client/keystore"
)

func initCmd() *cobra.Command {
	var (
		userID string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a key pair and store it wrapped with the passphrase",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassphrase(); err != nil {
				return err
			}
			if _, err := keys.Load(); err == nil && !force {
				return errors.Errorf("keys already exist at %s (use --force to replace)", keys.Path())
			}

			s := e2ee.NewSession()
			if err := s.Generate(passphrase); err != nil {
				return err
			}
			if err := keys.Save(keystore.Keys{
				UserID:            userID,
				PublicKey:         s.PublicKey(),
				WrappedPrivateKey: s.WrappedPrivateKey(),
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Keys created at %s\nPublic key: %s\n", keys.Path(), s.PublicKey())
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "your user id")
	cmd.Flags().BoolVar(&force, "force", false, "replace existing keys")
	return cmd
}

func publishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish",
		Short: "Publish your public key to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			k, err := keys.Load()
			if err != nil {
				return err
			}
			if err := client.PublishKey(cmd.Context(), k.PublicKey); err != nil {
				return err
			}
			k.Published = true
			if err := keys.Save(k); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Public key published.")
			return nil
		},
	}
}
