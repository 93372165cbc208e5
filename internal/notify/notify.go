// Package notify delivers working-copy-changed notifications.
package notify

import (
	"sync"

	"github.com/google/uuid"
)

// Notifier is told when a repository's working-copy parent may have changed.
type Notifier interface {
	WorkingCopyChanged(repoRoot string)
}

// Func adapts a function to Notifier.
type Func func(repoRoot string)

func (f Func) WorkingCopyChanged(repoRoot string) { f(repoRoot) }

// Nop discards notifications.
type Nop struct{}

func (Nop) WorkingCopyChanged(string) {}

// Event is one delivered notification.
type Event struct {
	Type string `json:"type"`
	Repo string `json:"repo"`
	ID   string `json:"id"`
}

// TypeWorkingCopyChanged is the Event.Type of working-copy notifications.
const TypeWorkingCopyChanged = "working-copy-changed"

// Broadcaster fans notifications out to subscribers. A subscriber that is
// not keeping up loses events rather than blocking the sender.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[chan Event]struct{}
	buffer int
}

// NewBroadcaster returns a broadcaster whose subscriber channels hold
// buffer events.
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer < 1 {
		buffer = 1
	}
	return &Broadcaster{subs: make(map[chan Event]struct{}), buffer: buffer}
}

// Subscribe returns a channel of events and a function that ends the
// subscription and closes the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) WorkingCopyChanged(repoRoot string) {
	ev := Event{Type: TypeWorkingCopyChanged, Repo: repoRoot, ID: uuid.NewString()}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Multi notifies each of its members in order.
type Multi []Notifier

func (m Multi) WorkingCopyChanged(repoRoot string) {
	for _, n := range m {
		if n != nil {
			n.WorkingCopyChanged(repoRoot)
		}
	}
}
