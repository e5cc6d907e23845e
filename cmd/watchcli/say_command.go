package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/watchclient"
)

func newSayCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "say <text>",
		Short: "Send a message to the global chat",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireName(); err != nil {
				return err
			}

			socket, err := watchclient.Dial(cmd.Context(), ctx.server, ctx.identity(), watchclient.WithLogger(ctx.logger()))
			if err != nil {
				return err
			}
			defer socket.Close()

			// the relay echoes global messages to the sender, which confirms delivery
			delivered := make(chan struct{}, 1)
			defer socket.OnGlobalMessage(func(protocol.ChatMessage) {
				select {
				case delivered <- struct{}{}:
				default:
				}
			})()

			if err := socket.SendGlobalMessage(cmd.Context(), strings.Join(args, " ")); err != nil {
				return err
			}

			select {
			case <-delivered:
				return nil
			case <-time.After(5 * time.Second):
				return fmt.Errorf("no confirmation from %s", ctx.server)
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		},
	}
}

func newMembersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "members <content-id|room-key>",
		Short: "List who is watching in a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := url.JoinPath(ctx.server, "api", "v1", "rooms", roomKeyFor(args[0]), "members")
			if err != nil {
				return fmt.Errorf("invalid server url: %w", err)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, endpoint, nil)
			if err != nil {
				return err
			}

			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return fmt.Errorf("failed to get members: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("failed to get members: %s", resp.Status)
			}

			var body struct {
				Data protocol.JoinedRoomPayload `json:"data"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				return fmt.Errorf("failed to decode members: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(body.Data.Members) == 0 {
				fmt.Fprintf(out, "nobody is watching %s\n", body.Data.RoomKey)
				return nil
			}
			for _, m := range body.Data.Members {
				fmt.Fprintf(out, "%s\t%s\tsince %s\n", m.Name, m.UserId, m.JoinedAt.Local().Format(time.Kitchen))
			}

			return nil
		},
	}
}
