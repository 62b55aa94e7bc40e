package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"golang.org/x/term"

	"github.com/jmcleod/ironca/dispatch"
)

// surveyConfirmer asks through survey when stdin is a terminal.
type surveyConfirmer struct{}

func (surveyConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	answer := false
	err := survey.AskOne(&survey.Confirm{
		Message: strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(prompt), "[y/N]")),
		Default: false,
	}, &answer)
	if err != nil {
		return false, err
	}
	return answer, nil
}

// newConfirmer uses survey on a terminal and plain line input otherwise.
func newConfirmer(out io.Writer) dispatch.Confirmer {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return surveyConfirmer{}
	}
	return dispatch.LineConfirmer(os.Stdin, out)
}

// readPassphrase prompts for the CA key passphrase without echo.
func readPassphrase(out io.Writer) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", nil
	}
	io.WriteString(out, "CA key passphrase: ")
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	io.WriteString(out, "\n")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
