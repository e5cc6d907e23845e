package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/watchclient"
)

// consolePlayer stands in for a video player: it prints the commands it is given and keeps a
// position so /play and /pause can be issued as if from a real player.
type consolePlayer struct {
	out io.Writer

	mu         sync.Mutex
	position   float64
	playing    bool
	onPosition func(seconds float64)
}

// reportPosition makes the player tell fn about every position change, like the time ticks of a real player.
func (p *consolePlayer) reportPosition(fn func(seconds float64)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.onPosition = fn
}

func (p *consolePlayer) SeekTo(seconds float64) error {
	p.mu.Lock()
	p.position = seconds
	report := p.onPosition
	p.mu.Unlock()

	fmt.Fprintf(p.out, "* player: seek to %s\n", formatPosition(seconds))
	if report != nil {
		report(seconds)
	}
	return nil
}

func (p *consolePlayer) Play() error {
	p.mu.Lock()
	p.playing = true
	p.mu.Unlock()

	fmt.Fprintln(p.out, "* player: play")
	return nil
}

func (p *consolePlayer) Pause() error {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()

	fmt.Fprintln(p.out, "* player: pause")
	return nil
}

func formatPosition(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(100 * time.Millisecond)
	return d.String()
}

var errUnknownCommand = errors.New("unknown command")

// console turns typed lines into player events and chat messages.
type console struct {
	session *watchclient.Session
	socket  *watchclient.Socket
	player  *consolePlayer
	out     io.Writer
}

func (c *console) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if !strings.HasPrefix(line, "/") {
		_, err := c.session.Chat.Send(ctx, line)
		return err
	}

	command, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch command {
	case "play":
		return c.session.Sync.HandlePlay(ctx)
	case "pause":
		return c.session.Sync.HandlePause(ctx)
	case "seek", "time":
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil || seconds < 0 {
			return fmt.Errorf("/%s needs a position in seconds", command)
		}
		c.player.mu.Lock()
		c.player.position = seconds
		c.player.mu.Unlock()

		if command == "time" {
			c.session.Sync.HandleTimeUpdate(seconds)
			return nil
		}
		return c.session.Sync.HandleSeek(ctx, seconds)
	case "global":
		return c.socket.SendGlobalMessage(ctx, arg)
	case "members":
		c.printMembers(c.session.Members())
		return nil
	case "help":
		fmt.Fprintln(c.out, "commands: /play /pause /seek <sec> /time <sec> /global <text> /members /quit; anything else is sent to the room")
		return nil
	}

	return fmt.Errorf("%w: /%s", errUnknownCommand, command)
}

func (c *console) printMembers(members []protocol.Member) {
	names := make([]string, 0, len(members))
	for _, m := range members {
		names = append(names, m.Name)
	}
	fmt.Fprintf(c.out, "* %d watching: %s\n", len(members), strings.Join(names, ", "))
}

func (c *console) printMessage(prefix string, msg protocol.ChatMessage) {
	at := time.UnixMilli(msg.Timestamp).Format("15:04")
	fmt.Fprintf(c.out, "%s[%s] %s: %s\n", prefix, at, msg.SenderName, msg.Text)
}
