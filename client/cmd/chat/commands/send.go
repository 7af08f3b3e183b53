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

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/angad2803/Thapar-Marketplace/client/api"
)

// send <user> <message>: encrypt for <user> and post the envelope.
func sendCmd() *cobra.Command {
	var (
		listingID string
		plain     bool
	)
	cmd := &cobra.Command{
		Use:   "send <user> <message>",
		Short: "Encrypt and send a message to a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			ctx := cmd.Context()
			peer, text := args[0], args[1]

			req := api.SendRequest{
				ReceiverID:      peer,
				Content:         text,
				ListingID:       listingID,
				ClientMessageID: uuid.NewString(),
			}
			if !plain {
				s, _, err := unlocked()
				if err != nil {
					return err
				}
				pk, err := client.FetchPublicKey(ctx, peer)
				if err != nil {
					return err
				}
				if pk.Key == "" {
					return errors.Errorf("%s has not published a public key (use --plain to send unencrypted)", peer)
				}
				if req.Content, err = s.Encrypt(text, pk.Key); err != nil {
					return err
				}
				req.IsEncrypted = true
			}

			msg, err := client.Send(ctx, req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", msg.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&listingID, "listing", "", "listing the message refers to")
	cmd.Flags().BoolVar(&plain, "plain", false, "send without encryption")
	return cmd
}
