package dispatch

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Confirmer asks the operator a yes/no question. It shows prompt itself.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Decline is a Confirmer that always answers no.
var Decline = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })

type lineConfirmer struct {
	in  *bufio.Reader
	out io.Writer
}

// LineConfirmer writes the prompt to out and reads one line from in. An
// answer containing y or Y is affirmative.
func LineConfirmer(in io.Reader, out io.Writer) Confirmer {
	return &lineConfirmer{in: bufio.NewReader(in), out: out}
}

func (c *lineConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := fmt.Fprint(c.out, prompt); err != nil {
		return false, err
	}
	line, err := c.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	return strings.ContainsAny(line, "yY"), nil
}
