package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/control"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/spf13/cobra"
	"google.golang.org/grpc/status"
)

var (
	sessionFlag string
	jsonFlag    bool
	timeoutFlag time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "chatctl",
	Short:         "Control a chatsync session daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sessionFlag, "session", "", "session name (overrides config default)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 10*time.Second, "request timeout")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if st, ok := status.FromError(err); ok {
			fmt.Fprintf(os.Stderr, "error: %s (%s)\n", st.Message(), st.Code())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// connect resolves the session and dials its daemon.
func connect() (*control.Client, error) {
	name := session.Resolve(sessionFlag)
	if err := session.ValidateName(name); err != nil {
		return nil, err
	}
	c, err := control.Dial(session.SocketPath(name))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to daemon for session %q: %w", name, err)
	}
	return c, nil
}

// run dials the daemon and calls fn with a request-scoped context.
func run(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeoutFlag)
	defer cancel()
	err = fn(ctx, c)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("daemon did not answer within %s", timeoutFlag)
	}
	return err
}
