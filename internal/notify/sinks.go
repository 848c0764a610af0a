package notify

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/matheus3301/chatsync/internal/bus"
	"go.uber.org/zap"
)

// Toast publishes the notification on the bus for watchers.
type Toast struct {
	Bus *bus.Bus
}

func (Toast) Name() string { return "toast" }

func (t Toast) Notify(_ context.Context, n Notification) error {
	t.Bus.Emit(bus.NotifyMessage, n)
	return nil
}

// Bell rings the terminal bell.
type Bell struct {
	mu sync.Mutex
	W  io.Writer
}

func (*Bell) Name() string { return "bell" }

func (b *Bell) Notify(context.Context, Notification) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := io.WriteString(b.W, "\a")
	return err
}

// Command runs an external program such as notify-send with the title and
// preview appended as arguments. The process is not waited on.
type Command struct {
	Path   string
	Args   []string
	Logger *zap.Logger
}

func (*Command) Name() string { return "command" }

func (c *Command) Notify(_ context.Context, n Notification) error {
	args := append(append([]string(nil), c.Args...), n.Title, n.Preview)
	cmd := exec.Command(c.Path, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Path, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil && c.Logger != nil {
			c.Logger.Warn("notify command exited", zap.String("command", c.Path), zap.Error(err))
		}
	}()
	return nil
}
