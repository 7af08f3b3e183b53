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
	"time"

	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <user>",
		Short: "Show and mark read the conversation with a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			ctx := cmd.Context()
			s, k, err := unlocked()
			if err != nil {
				return err
			}
			thread, err := client.Thread(ctx, args[0])
			if err != nil {
				return err
			}

			peers := peerKeys{}
			out := cmd.OutOrStdout()
			for _, m := range thread {
				fmt.Fprintf(out, "[%s] %s: %s\n",
					m.CreatedAt.Local().Format(time.DateTime), m.SenderID, render(ctx, s, peers, k.UserID, m))
			}
			if len(thread) == 0 {
				fmt.Fprintln(out, "No messages.")
			}
			return nil
		},
	}
}
