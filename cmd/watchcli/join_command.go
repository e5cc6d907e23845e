package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/watchclient"
)

const roomKeyPrefix = "watch_"

// roomKeyFor accepts either a room key or the content id it is derived from.
func roomKeyFor(arg string) string {
	if strings.HasPrefix(arg, roomKeyPrefix) {
		return arg
	}

	return roomKeyPrefix + arg
}

func newJoinCommand(ctx *commandContext) *cobra.Command {
	var settle time.Duration

	cmd := &cobra.Command{
		Use:   "join <content-id|room-key>",
		Short: "Join a watch room and relay playback and chat from stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := ctx.requireName(); err != nil {
				return err
			}

			return runJoin(cmd.Context(), ctx, roomKeyFor(args[0]), settle, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().DurationVar(&settle, "settle", watchclient.DefaultSettleWindow, "How long player events are ignored after a remote command")

	return cmd
}

func runJoin(ctx context.Context, cc *commandContext, roomKey string, settle time.Duration, in io.Reader, out io.Writer) error {
	logger := cc.logger()

	socket, err := watchclient.Dial(ctx, cc.server, cc.identity(), watchclient.WithLogger(logger))
	if err != nil {
		return err
	}
	defer socket.Close()

	player := &consolePlayer{out: out}
	session, err := watchclient.Join(ctx, socket, roomKey, player,
		watchclient.WithLogger(logger),
		watchclient.WithSettleWindow(settle),
	)
	if err != nil {
		return err
	}
	defer session.Close(context.WithoutCancel(ctx))
	player.reportPosition(session.Sync.HandleTimeUpdate)

	c := &console{session: session, socket: socket, player: player, out: out}

	defer socket.OnMembers(func(key string, members []protocol.Member) {
		if key == roomKey {
			c.printMembers(members)
		}
	})()
	defer session.Chat.OnReceive(func(msg protocol.ChatMessage) {
		c.printMessage("", msg)
	})()
	defer socket.OnGlobalMessage(func(msg protocol.ChatMessage) {
		c.printMessage("(global) ", msg)
	})()
	defer socket.OnWatchSync(func(event protocol.SyncEvent) {
		fmt.Fprintf(out, "* %s from %s\n", event.Action, event.OriginatorId)
	})()
	defer socket.OnError(func(payload protocol.ErrorPayload) {
		fmt.Fprintf(out, "! relay: %s\n", payload.Message)
	})()

	fmt.Fprintf(out, "joined %s, type /help for commands\n", roomKey)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-socket.Done():
			return fmt.Errorf("connection to %s lost", cc.server)
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == "/quit" {
				return nil
			}
			if err := c.handleLine(ctx, line); err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
		}
	}
}
