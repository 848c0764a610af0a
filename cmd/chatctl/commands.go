package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/matheus3301/chatsync/internal/chat"
	"github.com/matheus3301/chatsync/internal/control"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(
		statusCmd, loginCmd, logoutCmd,
		chatsCmd, messagesCmd, openCmd, closeCmd, moreCmd,
		sendCmd, typingCmd, presenceCmd, usersCmd,
		groupCmd, watchCmd,
	)
	groupCmd.AddCommand(groupCreateCmd, groupRenameCmd, groupAddCmd, groupRemoveCmd)

	sendCmd.Flags().String("file-url", "", "send an uploaded file instead of text")
	sendCmd.Flags().String("file-name", "", "file name shown to recipients")
	sendCmd.Flags().String("mime", "", "attachment MIME type")
	sendCmd.Flags().Int64("size", 0, "attachment size in bytes")
	sendCmd.Flags().String("reply-to", "", "id of the message being answered")
	sendCmd.Flags().StringSlice("mention", nil, "user ids mentioned in the message")
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			return printStatus(cmd.OutOrStdout(), st)
		})
	},
}

var loginCmd = &cobra.Command{
	Use:   "login <token|->",
	Short: "Sign in with a backend token (\"-\" reads it from stdin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := readToken(cmd.InOrStdin(), args[0])
		if err != nil {
			return err
		}
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.Login(ctx, token)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", resp.UserID)
			return nil
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget stored credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			return c.Logout(ctx)
		})
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List conversations, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.Conversations(ctx)
			if err != nil {
				return err
			}
			return printConversations(cmd.OutOrStdout(), resp)
		})
	},
}

var messagesCmd = &cobra.Command{
	Use:   "messages <conversation>",
	Short: "Show cached messages of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.Messages(ctx, args[0])
			if err != nil {
				return err
			}
			return printMessages(cmd.OutOrStdout(), resp)
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <conversation>",
	Short: "Make a conversation active and load its latest page",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.Select(ctx, args[0])
			if err != nil {
				return err
			}
			return printMessages(cmd.OutOrStdout(), resp)
		})
	},
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Leave the active conversation",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			return c.Deselect(ctx)
		})
	},
}

var moreCmd = &cobra.Command{
	Use:   "more <conversation>",
	Short: "Load the next page of older messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.LoadMore(ctx, args[0])
			if err != nil {
				return err
			}
			return printMessages(cmd.OutOrStdout(), resp)
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <conversation> [text...]",
	Short: "Send a text message or an uploaded file",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := sendRequest(cmd, args)
		if err != nil {
			return err
		}
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.Send(ctx, req)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sent (client id %s)\n", resp.ClientID)
			return nil
		})
	},
}

func sendRequest(cmd *cobra.Command, args []string) (control.SendRequest, error) {
	flags := cmd.Flags()
	fileURL, _ := flags.GetString("file-url")
	replyTo, _ := flags.GetString("reply-to")
	mentions, _ := flags.GetStringSlice("mention")
	req := control.SendRequest{
		ConversationID: args[0],
		ReplyTo:        replyTo,
		Mentions:       mentions,
	}
	text := strings.Join(args[1:], " ")
	if fileURL == "" {
		if text == "" {
			return req, errors.New("nothing to send: give a text or --file-url")
		}
		req.Type = chat.TextMessage
		req.Content = text
		return req, nil
	}
	if text != "" {
		return req, errors.New("a message carries either text or a file, not both")
	}
	name, _ := flags.GetString("file-name")
	mime, _ := flags.GetString("mime")
	size, _ := flags.GetInt64("size")
	if name == "" {
		name = fileURL[strings.LastIndex(fileURL, "/")+1:]
	}
	req.Type = chat.FileMessage
	req.File = &chat.Attachment{Name: name, URL: fileURL, MimeType: mime, Size: size}
	return req, nil
}

var typingCmd = &cobra.Command{
	Use:   "typing <conversation>",
	Short: "Signal that you are typing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			return c.Typing(ctx, args[0])
		})
	},
}

var presenceCmd = &cobra.Command{
	Use:   "presence <user>",
	Short: "Ask whether a user is online",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			resp, err := c.Presence(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(cmd.OutOrStdout(), resp)
			}
			state := "offline"
			if resp.Online {
				state = "online"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", resp.UserID, state)
			return nil
		})
	},
}

var usersCmd = &cobra.Command{
	Use:   "users <query>",
	Short: "Search the user directory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, func(ctx context.Context, c *control.Client) error {
			users, err := c.SearchUsers(ctx, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printUsers(cmd.OutOrStdout(), users)
		})
	},
}

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage group conversations",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name> <user> <user> [user...]",
	Short: "Create a group with at least two other members",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return groupCall(cmd, func(ctx context.Context, c *control.Client) (chat.Conversation, error) {
			return c.CreateGroup(ctx, args[0], args[1:])
		})
	},
}

var groupRenameCmd = &cobra.Command{
	Use:   "rename <conversation> <name>",
	Short: "Rename a group",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return groupCall(cmd, func(ctx context.Context, c *control.Client) (chat.Conversation, error) {
			return c.RenameGroup(ctx, args[0], strings.Join(args[1:], " "))
		})
	},
}

var groupAddCmd = &cobra.Command{
	Use:   "add <conversation> <user>",
	Short: "Add a member to a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return groupCall(cmd, func(ctx context.Context, c *control.Client) (chat.Conversation, error) {
			return c.AddMember(ctx, args[0], args[1])
		})
	},
}

var groupRemoveCmd = &cobra.Command{
	Use:   "remove <conversation> <user>",
	Short: "Remove a member from a group",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return groupCall(cmd, func(ctx context.Context, c *control.Client) (chat.Conversation, error) {
			return c.RemoveMember(ctx, args[0], args[1])
		})
	},
}

func groupCall(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) (chat.Conversation, error)) error {
	return run(cmd, func(ctx context.Context, c *control.Client) error {
		conv, err := fn(ctx, c)
		if err != nil {
			return err
		}
		if jsonFlag {
			return outputJSON(cmd.OutOrStdout(), conv)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  (%d members)\n", conv.ID, conv.Name, len(conv.Participants))
		return nil
	})
}

var watchCmd = &cobra.Command{
	Use:   "watch [namespace]",
	Short: "Stream daemon events as JSON lines (e.g. chat., presence., notify.)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ns := ""
		if len(args) == 1 {
			ns = args[0]
		}
		c, err := connect()
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		out := cmd.OutOrStdout()
		return c.Watch(ctx, ns, func(env control.EventEnvelope) error {
			return outputJSONLine(out, env)
		})
	},
}

func readToken(in io.Reader, arg string) (string, error) {
	if arg != "-" {
		return strings.TrimSpace(arg), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", errors.New("empty token on stdin")
	}
	return token, nil
}
