package notify

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/JPShag/ComitSwapBot/internal/swap"
)

// Console writes swap announcements to a writer, stdout by default.
type Console struct {
	out io.Writer
}

// NewConsole creates a console notifier writing to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a console notifier writing to w.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Name identifies the sink in logs.
func (c *Console) Name() string { return "console" }

// Notify prints the announcement and returns a fresh correlation id.
func (c *Console) Notify(_ context.Context, s *swap.AtomicSwap) (string, error) {
	id := uuid.NewString()
	_, err := fmt.Fprintf(c.out, "----- swap event %s -----\n%s\n", id, FormatSwapMessage(s))
	if err != nil {
		return "", err
	}
	return id, nil
}
