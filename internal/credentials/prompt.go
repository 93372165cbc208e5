package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// PromptRequest describes why credentials are needed.
type PromptRequest struct {
	// URL is the remote without credentials.
	URL string
	// Username is the one that was just refused, if any.
	Username string
	// Attempt counts prompts for this loop, starting at 1.
	Attempt int
}

// PromptResult is the user's answer. OK is false when they declined.
type PromptResult struct {
	Set  Set
	Save bool
	OK   bool
}

// Prompter asks for credentials.
type Prompter interface {
	Prompt(ctx context.Context, req PromptRequest) (PromptResult, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, req PromptRequest) (PromptResult, error)

func (f PrompterFunc) Prompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	return f(ctx, req)
}

// Interactive reports whether stdin and stdout are terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// HuhPrompter asks on the terminal.
type HuhPrompter struct{}

func (HuhPrompter) Prompt(ctx context.Context, req PromptRequest) (PromptResult, error) {
	username := req.Username
	var password string
	save := false
	proceed := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Authentication required").
				Description(fmt.Sprintf("%s refused the request (attempt %d).", req.URL, req.Attempt)),
			huh.NewInput().
				Title("Username").
				Value(&username).
				Validate(func(s string) error {
					if s == "" {
						return fmt.Errorf("username is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
			huh.NewConfirm().
				Title("Remember these credentials?").
				Value(&save),
			huh.NewConfirm().
				Title("Retry with these credentials?").
				Affirmative("Retry").
				Negative("Cancel").
				Value(&proceed),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return PromptResult{}, nil
		}
		return PromptResult{}, err
	}
	if !proceed {
		return PromptResult{}, nil
	}
	set := NewSet(username, password)
	return PromptResult{Set: set, Save: save, OK: true}, nil
}
