// cmd/chat: one-shot command line front end over the same store the server uses
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"chatdesk/config"
	"chatdesk/models"
	"chatdesk/services"
	"chatdesk/storage"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var v = viper.New()

type chatAction func(ctx context.Context, chat *services.ChatService, args []string, out io.Writer) error

// withChat opens the configured store, builds the chat service, runs fn and
// closes the store again.
func withChat(fn chatAction) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(v)
		if err != nil {
			return err
		}
		if err := config.InitLogger(cfg.LogLevel, true); err != nil {
			return err
		}

		ctx := cmd.Context()
		store, err := storage.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error().Err(err).Msg("closing store")
			}
		}()

		chat := services.NewChatServiceFromConfig(ctx, cfg, store)
		return fn(ctx, chat, args, cmd.OutOrStdout())
	}
}

func printConversations(out io.Writer, c models.Collection) {
	for _, conv := range c {
		marker := " "
		if conv.Active {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %s  %s (%d messages)\n", marker, conv.ID, conv.Title, len(conv.Messages))
	}
}

func printMessages(out io.Writer, msgs []services.MessageView) {
	for _, m := range msgs {
		fmt.Fprintf(out, "[%s]\n", m.Role)
		for _, line := range m.Lines {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the completion gateway from the terminal",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
		SilenceUsage: true,
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List conversations, the active one is marked with *",
			Args:  cobra.NoArgs,
			RunE: withChat(func(_ context.Context, chat *services.ChatService, _ []string, out io.Writer) error {
				printConversations(out, chat.Conversations())
				return nil
			}),
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the active conversation",
			Args:  cobra.NoArgs,
			RunE: withChat(func(_ context.Context, chat *services.ChatService, _ []string, out io.Writer) error {
				printMessages(out, chat.Snapshot().Messages)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "send <message>",
			Short: "Send a message to the active conversation and print the reply",
			Args:  cobra.MinimumNArgs(1),
			RunE: withChat(func(ctx context.Context, chat *services.ChatService, args []string, out io.Writer) error {
				if err := chat.Send(ctx, strings.Join(args, " ")); err != nil {
					return err
				}
				msgs := chat.Snapshot().Messages
				printMessages(out, msgs[len(msgs)-1:])
				return nil
			}),
		},
		&cobra.Command{
			Use:   "new",
			Short: "Start a new conversation and make it active",
			Args:  cobra.NoArgs,
			RunE: withChat(func(ctx context.Context, chat *services.ChatService, _ []string, out io.Writer) error {
				printConversations(out, chat.NewConversation(ctx))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "switch <id>",
			Short: "Make another conversation active",
			Args:  cobra.ExactArgs(1),
			RunE: withChat(func(ctx context.Context, chat *services.ChatService, args []string, out io.Writer) error {
				c, err := chat.SwitchConversation(ctx, args[0])
				if err != nil {
					return err
				}
				printConversations(out, c)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Clear the active conversation's history",
			Args:  cobra.NoArgs,
			RunE: withChat(func(ctx context.Context, chat *services.ChatService, _ []string, out io.Writer) error {
				chat.ClearChat(ctx)
				printMessages(out, chat.Snapshot().Messages)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "models",
			Short: "List the selectable models",
			Args:  cobra.NoArgs,
			RunE: withChat(func(_ context.Context, chat *services.ChatService, _ []string, out io.Writer) error {
				selected := chat.Snapshot().Model
				for _, m := range chat.Models() {
					marker := " "
					if m.ID == selected {
						marker = "*"
					}
					fmt.Fprintf(out, "%s %-30s %s\n", marker, m.ID, m.Name)
				}
				return nil
			}),
		},
	)

	if err := config.BindFlags(root.PersistentFlags(), v); err != nil {
		panic(err)
	}
	if err := config.BindEnv(v); err != nil {
		panic(err)
	}
	return root
}

func main() {
	config.SetDefaults(v)
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
