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
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/angad2803/Thapar-Marketplace/client/api"
	"github.com/angad2803/Thapar-Marketplace/client/realtime"
)

// listen prints incoming messages, typing and presence until interrupted.
func listenCmd() *cobra.Command {
	var ack bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Stream live chat events",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireToken(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, k, err := unlocked()
			if err != nil {
				return err
			}
			socket, err := client.SocketURL()
			if err != nil {
				return err
			}
			conn, _, err := realtime.Dial(ctx, socket, token)
			if err != nil {
				return err
			}
			defer conn.Close()

			peers := peerKeys{}
			out := cmd.OutOrStdout()
			for {
				ev, err := conn.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				switch ev.Name {
				case "message:new":
					var m api.Message
					if err := ev.Decode(&m); err != nil {
						return err
					}
					fmt.Fprintf(out, "%s: %s\n", m.SenderID, render(ctx, s, peers, k.UserID, m))
					if ack {
						if err := conn.MarkRead(m.ID); err != nil {
							return errors.Wrap(err, "mark read")
						}
					}
				case "message:read":
					var r struct {
						MessageID string `json:"messageId"`
					}
					if err := ev.Decode(&r); err == nil {
						fmt.Fprintf(out, "* read %s\n", r.MessageID)
					}
				case "user:typing", "user:stop-typing", "presence:online", "presence:offline":
					var p struct {
						UserID string `json:"userId"`
					}
					if err := ev.Decode(&p); err == nil {
						fmt.Fprintf(out, "* %s %s\n", p.UserID, ev.Name)
					}
				case "error":
					var e struct {
						Message string `json:"message"`
					}
					if err := ev.Decode(&e); err == nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "server: %s\n", e.Message)
					}
				}
			}
		},
	}
	cmd.Flags().BoolVar(&ack, "ack", false, "mark incoming messages read")
	return cmd
}
