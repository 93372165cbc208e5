package credentials

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sergeknystautas/hgrun/internal/classify"
	"github.com/sergeknystautas/hgrun/internal/hgerr"
)

// State is a step of the retry loop.
type State int

const (
	StateAttempt State = iota
	StateRetry
	StateSuccess
	StateFail
)

func (s State) String() string {
	switch s {
	case StateAttempt:
		return "attempt"
	case StateRetry:
		return "retry"
	case StateSuccess:
		return "success"
	case StateFail:
		return "fail"
	}
	return "unknown"
}

// AttemptFunc runs the remote command once against target, which carries
// the current credentials. It must not keep the process around after
// returning.
type AttemptFunc func(ctx context.Context, target string) ([]string, error)

// Outcome reports how the loop ended.
type Outcome struct {
	Lines []string
	// States lists every state visited, in order.
	States []State
	// Prompts counts how often new credentials were requested.
	Prompts int
	// AuthRequired is set when the remote refused at least once.
	AuthRequired bool
	// Saved is set when credentials were persisted.
	Saved bool
}

// Controller runs a remote command, asking for new credentials when the
// remote refuses the current ones. Each newly supplied set is tried once;
// a set that was already refused ends the loop.
type Controller struct {
	// Store supplies cached credentials and keeps saved ones. Optional.
	Store Store
	// Prompter asks for credentials. Nil means batch mode.
	Prompter Prompter
	// Batch disables prompting even with a Prompter.
	Batch bool
	// SavePaths records the remote in the repository config after a
	// successful authenticated run the user asked to remember. Optional.
	SavePaths func(remote string) error

	Classifier *classify.Classifier
	Logger     *zap.Logger
}

func (c *Controller) classifier() *classify.Classifier {
	if c.Classifier == nil {
		return classify.Default()
	}
	return c.Classifier
}

func (c *Controller) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger.Named("credentials")
}

// NeedsAuth reports whether the last line asks for credentials. A refused
// push that would create new remote heads is not an authentication problem.
func (c *Controller) NeedsAuth(lines []string) bool {
	cl := c.classifier()
	last := classify.Last(lines)
	if cl.Is(last, classify.PushCreatesNewHeads) {
		return false
	}
	return cl.Is(last, classify.AuthFailed) || cl.Is(last, classify.AuthRequired)
}

// Run drives the loop for op against remote. Credentials handled by the
// loop are scrubbed before it returns, whatever the outcome.
func (c *Controller) Run(ctx context.Context, op, remote string, attempt AttemptFunc) (*Outcome, error) {
	log := c.logger().With(zap.String("op", op), zap.String("remote", StripURL(remote)))
	key := Key(remote)
	bare := StripURL(remote)

	current := c.initial(remote, key, log)
	defer current.Scrub()

	refused := map[[32]byte]bool{}
	save := false
	out := &Outcome{}
	state := StateAttempt

	for {
		out.States = append(out.States, state)
		switch state {
		case StateAttempt:
			target, err := EmbedURL(bare, current)
			if err != nil {
				return out, fmt.Errorf("invalid remote url: %w", err)
			}
			lines, err := attempt(ctx, target)
			if err != nil {
				return out, err
			}
			out.Lines = lines
			if !c.NeedsAuth(lines) {
				state = StateSuccess
				continue
			}
			out.AuthRequired = true
			if !current.Empty() {
				refused[current.fingerprint()] = true
			}
			log.Info("remote refused credentials", zap.Int("prompts", out.Prompts))
			state = StateRetry

		case StateRetry:
			if c.Batch || c.Prompter == nil {
				state = StateFail
				continue
			}
			res, err := c.Prompter.Prompt(ctx, PromptRequest{URL: bare, Username: current.Username, Attempt: out.Prompts + 1})
			out.Prompts++
			if err != nil {
				return out, err
			}
			if !res.OK || res.Set.Empty() {
				res.Set.Scrub()
				state = StateFail
				continue
			}
			if refused[res.Set.fingerprint()] {
				log.Info("refused credentials supplied again")
				res.Set.Scrub()
				state = StateFail
				continue
			}
			current.Scrub()
			current = res.Set
			save = res.Save
			state = StateAttempt

		case StateSuccess:
			if save && out.AuthRequired {
				c.persist(key, remote, current, log)
				out.Saved = true
			}
			return out, nil

		case StateFail:
			return out, &hgerr.Error{
				Kind:   hgerr.AuthenticationFailed,
				Op:     op,
				Reason: "remote refused credentials",
				Output: out.Lines,
			}
		}
	}
}

// initial picks the credentials of the first attempt: those embedded in the
// URL, else a cached set, else none.
func (c *Controller) initial(remote, key string, log *zap.Logger) Set {
	embedded := FromURL(remote)
	if len(embedded.Secret) > 0 || c.Store == nil {
		return embedded
	}
	cached, err := c.Store.Get(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Warn("failed to read cached credentials", zap.Error(err))
		}
		return embedded
	}
	if embedded.Username != "" && cached.Username != embedded.Username {
		cached.Scrub()
		return embedded
	}
	return cached
}

func (c *Controller) persist(key, remote string, s Set, log *zap.Logger) {
	if c.Store != nil {
		if err := c.Store.Set(key, s); err != nil {
			log.Warn("failed to store credentials", zap.Error(err))
		}
	}
	if c.SavePaths != nil {
		withUser, err := EmbedURL(StripURL(remote), Set{Username: s.Username})
		if err != nil {
			return
		}
		if err := c.SavePaths(withUser); err != nil {
			log.Warn("failed to save remote path", zap.Error(err))
		}
	}
}
