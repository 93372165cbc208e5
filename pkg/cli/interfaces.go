package cli

import (
	"context"
)

// EventsClient talks to a running `hgrun watch` process.
type EventsClient interface {
	// IsRunning checks if the watch process is serving.
	IsRunning() bool

	// History fetches recent invocations, newest first. An empty repo
	// means all repositories.
	History(ctx context.Context, repo string, limit int) ([]HistoryItem, error)

	// Follow streams working-copy-changed events to fn until ctx is done
	// or the server goes away.
	Follow(ctx context.Context, repo string, fn func(Event)) error
}
