package main

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"golang.org/x/term"
)

var (
	errNoTerminal = errors.New("title is required: pass -title or run in a terminal")
	errAborted    = errors.New("aborted")
)

// titlePrompter asks the user for a form title.
type titlePrompter func(ctx context.Context) (string, error)

// terminalPrompt prompts with survey when in is a terminal and fails with
// errNoTerminal otherwise.
func terminalPrompt(in *os.File) titlePrompter {
	return func(ctx context.Context) (string, error) {
		if !term.IsTerminal(int(in.Fd())) {
			return "", errNoTerminal
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		var title string
		prompt := &survey.Input{
			Message: "Form title:",
			Help:    "Every saved form needs a title.",
		}
		if err := survey.AskOne(prompt, &title, survey.WithValidator(survey.Required)); err != nil {
			if errors.Is(err, terminal.InterruptErr) {
				return "", errAborted
			}
			return "", err
		}
		return strings.TrimSpace(title), nil
	}
}
