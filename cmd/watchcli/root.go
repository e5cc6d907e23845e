package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anitogether/relay/pkg/protocol"
)

type commandContext struct {
	server   string
	userId   string
	name     string
	avatar   string
	logLevel string
}

func (c *commandContext) identity() protocol.Identity {
	return protocol.Identity{
		Id:     c.userId,
		Name:   c.name,
		Avatar: c.avatar,
	}
}

func (c *commandContext) requireName() error {
	if strings.TrimSpace(c.name) == "" {
		return errors.New("--name is required")
	}

	return nil
}

func (c *commandContext) logger() *slog.Logger {
	level := slog.LevelWarn
	_ = level.UnmarshalText([]byte(strings.ToUpper(c.logLevel)))

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "watchcli",
		Short:         "Terminal client for the watch-together relay",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&ctx.server, "server", "s", "http://localhost:4000", "Relay server URL")
	rootCmd.PersistentFlags().StringVar(&ctx.userId, "user-id", "", "User id, a guest id is assigned when empty")
	rootCmd.PersistentFlags().StringVarP(&ctx.name, "name", "n", "", "Display name")
	rootCmd.PersistentFlags().StringVar(&ctx.avatar, "avatar", "", "Avatar URL")
	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "Logging level")

	rootCmd.AddCommand(newJoinCommand(ctx))
	rootCmd.AddCommand(newSayCommand(ctx))
	rootCmd.AddCommand(newMembersCommand(ctx))

	return rootCmd
}
